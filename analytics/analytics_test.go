package analytics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campkit/core"
)

func at(day int) time.Time { return time.Date(2026, 7, day, 10, 0, 0, 0, time.UTC) }

func TestEngagementCountsDistinctCampersPerDay(t *testing.T) {
	g := NewEngagement()
	for _, u := range []core.UserID{"a", "b", "a"} {
		ev := core.NewEvent(core.EventPointsAdded, u)
		ev.Time = at(1)
		g.OnEvent(ev)
	}
	ev := core.NewEvent(core.EventPointsAdded, "c")
	ev.Time = at(2)
	g.OnEvent(ev)

	assert.Equal(t, 2, g.Snapshot(at(1), 0).DailyActive)
	assert.Equal(t, 1, g.Snapshot(at(2), 0).DailyActive)
	assert.Equal(t, 0, g.Snapshot(at(3), 0).DailyActive)
}

func TestEngagementSnapshot(t *testing.T) {
	g := NewEngagement()
	events := []core.Event{
		{Type: core.EventPointsAdded, UserID: "alice", Time: at(6), Action: core.ActionActivityCompleted, Delta: 10},
		{Type: core.EventPointsAdded, UserID: "bob", Time: at(6), Action: core.ActionChallengeCompleted, Delta: 100},
		{Type: core.EventBadgeAwarded, UserID: "alice", Time: at(6), Badge: core.BadgeExplorer},
		{Type: core.EventBadgeAwarded, UserID: "bob", Time: at(6), Badge: core.BadgeExplorer},
		{Type: core.EventBadgeAwarded, UserID: "bob", Time: at(6), Badge: core.BadgeRisingStar},
		{Type: core.EventLevelUp, UserID: "bob", Time: at(6), Level: 2},
		{Type: core.EventEnrollmentCreated, UserID: "carol", Time: at(7), TripID: "trip-1"},
		{Type: core.EventEnrollmentStatus, UserID: "carol", Time: at(7), TripID: "trip-1", Status: "cancelled"},
		{Type: core.EventProofFailed, UserID: "carol", Time: at(7), TripID: "trip-1"},
	}
	for _, e := range events {
		g.OnEvent(e)
	}

	s := g.Snapshot(at(6), 1)
	assert.Equal(t, "2026-07-06", s.Day)
	assert.Equal(t, 2, s.DailyActive)
	assert.Equal(t, 3, s.WeeklyActive)
	assert.Equal(t, 3, s.MonthlyActive)
	assert.Equal(t, int64(110), s.PointsAwarded)
	assert.Equal(t, int64(3), s.BadgesAwarded)
	assert.Equal(t, int64(1), s.LevelUps)
	assert.Equal(t, int64(100), s.PointsByAction[core.ActionChallengeCompleted])
	require.Len(t, s.TopBadges, 1)
	assert.Equal(t, BadgeCount{Badge: core.BadgeExplorer, Holders: 2}, s.TopBadges[0])
	assert.Equal(t, int64(1), s.Enrollments["trip-1"])
	assert.Equal(t, int64(1), s.Cancellations["trip-1"])
	assert.Equal(t, int64(1), s.ProofFailures)
}

func TestMetricsCountEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics("test", reg)
	require.NoError(t, err)

	bridge := NewBridge(m, NewEngagement())
	bridge.OnEvent(core.Event{Type: core.EventPointsAdded, UserID: "a", Action: core.ActionEcoAction, Delta: 10})
	bridge.OnEvent(core.Event{Type: core.EventPointsAdded, UserID: "a", Action: core.ActionEcoAction, Delta: 10})
	bridge.OnEvent(core.Event{Type: core.EventBadgeAwarded, UserID: "a", Badge: core.BadgeEcoWarrior})
	bridge.OnEvent(core.Event{Type: core.EventLevelUp, UserID: "a", Level: 2})
	bridge.OnEvent(core.Event{Type: core.EventProofFailed, UserID: "a"})
	bridge.OnEvent(core.Event{Type: core.EventProofUploaded, UserID: "a"})

	assert.Equal(t, float64(20), testutil.ToFloat64(m.points.WithLabelValues("eco_action")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.badges.WithLabelValues("eco_warrior")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.levelUps))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.proofs.WithLabelValues("failed")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.events.WithLabelValues("points_added")))

	again, err := NewMetrics("test", reg)
	require.NoError(t, err)
	again.OnEvent(core.Event{Type: core.EventLevelUp})
	assert.Equal(t, float64(2), testutil.ToFloat64(m.levelUps))
}
