package analytics

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"campkit/core"
)

// Hook receives domain events for KPI aggregation.
type Hook interface {
	OnEvent(e core.Event)
}

const dayLayout = "2006-01-02"

// Engagement aggregates the admin dashboard figures: active campers per
// day/week/month, points per day and action, badge popularity, and seats
// taken per trip.
type Engagement struct {
	mu sync.RWMutex

	dailyActive   map[string]map[core.UserID]struct{}
	weeklyActive  map[string]map[core.UserID]struct{}
	monthlyActive map[string]map[core.UserID]struct{}

	pointsByDay    map[string]int64
	pointsByAction map[core.ActionKind]int64

	badgesByDay  map[string]int64
	badgeHolders map[core.BadgeID]map[core.UserID]struct{}
	levelUps     map[string]int64

	enrollmentsByTrip map[string]int64
	cancelledByTrip   map[string]int64
	proofFailures     int64
}

func NewEngagement() *Engagement {
	return &Engagement{
		dailyActive:       map[string]map[core.UserID]struct{}{},
		weeklyActive:      map[string]map[core.UserID]struct{}{},
		monthlyActive:     map[string]map[core.UserID]struct{}{},
		pointsByDay:       map[string]int64{},
		pointsByAction:    map[core.ActionKind]int64{},
		badgesByDay:       map[string]int64{},
		badgeHolders:      map[core.BadgeID]map[core.UserID]struct{}{},
		levelUps:          map[string]int64{},
		enrollmentsByTrip: map[string]int64{},
		cancelledByTrip:   map[string]int64{},
	}
}

func (g *Engagement) OnEvent(e core.Event) {
	g.mu.Lock()
	defer g.mu.Unlock()

	day := e.Time.UTC().Format(dayLayout)
	if e.UserID != "" {
		addUser(g.dailyActive, day, e.UserID)
		addUser(g.weeklyActive, weekKey(e.Time), e.UserID)
		addUser(g.monthlyActive, monthKey(e.Time), e.UserID)
	}

	switch e.Type {
	case core.EventPointsAdded:
		if e.Delta > 0 {
			g.pointsByDay[day] += e.Delta
			g.pointsByAction[e.Action] += e.Delta
		}
	case core.EventBadgeAwarded:
		g.badgesByDay[day]++
		holders := g.badgeHolders[e.Badge]
		if holders == nil {
			holders = map[core.UserID]struct{}{}
			g.badgeHolders[e.Badge] = holders
		}
		holders[e.UserID] = struct{}{}
	case core.EventLevelUp:
		g.levelUps[day]++
	case core.EventEnrollmentCreated:
		g.enrollmentsByTrip[e.TripID]++
	case core.EventEnrollmentStatus:
		if e.Status == "cancelled" {
			g.cancelledByTrip[e.TripID]++
		}
	case core.EventProofFailed:
		g.proofFailures++
	}
}

func addUser(m map[string]map[core.UserID]struct{}, key string, user core.UserID) {
	users := m[key]
	if users == nil {
		users = map[core.UserID]struct{}{}
		m[key] = users
	}
	users[user] = struct{}{}
}

// BadgeCount pairs a badge with how many campers hold it.
type BadgeCount struct {
	Badge   core.BadgeID `json:"badge"`
	Holders int          `json:"holders"`
}

// Snapshot is the JSON shape served to the admin dashboard.
type Snapshot struct {
	Day            string                    `json:"day"`
	DailyActive    int                       `json:"daily_active"`
	WeeklyActive   int                       `json:"weekly_active"`
	MonthlyActive  int                       `json:"monthly_active"`
	PointsAwarded  int64                     `json:"points_awarded"`
	BadgesAwarded  int64                     `json:"badges_awarded"`
	LevelUps       int64                     `json:"level_ups"`
	PointsByAction map[core.ActionKind]int64 `json:"points_by_action"`
	TopBadges      []BadgeCount              `json:"top_badges"`
	Enrollments    map[string]int64          `json:"enrollments_by_trip"`
	Cancellations  map[string]int64          `json:"cancellations_by_trip"`
	ProofFailures  int64                     `json:"proof_upload_failures"`
}

// Snapshot reports the figures for the day containing at; topBadges bounds the badge list.
func (g *Engagement) Snapshot(at time.Time, topBadges int) Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	day := at.UTC().Format(dayLayout)
	s := Snapshot{
		Day:            day,
		DailyActive:    len(g.dailyActive[day]),
		WeeklyActive:   len(g.weeklyActive[weekKey(at)]),
		MonthlyActive:  len(g.monthlyActive[monthKey(at)]),
		PointsAwarded:  g.pointsByDay[day],
		BadgesAwarded:  g.badgesByDay[day],
		LevelUps:       g.levelUps[day],
		PointsByAction: make(map[core.ActionKind]int64, len(g.pointsByAction)),
		Enrollments:    make(map[string]int64, len(g.enrollmentsByTrip)),
		Cancellations:  make(map[string]int64, len(g.cancelledByTrip)),
		ProofFailures:  g.proofFailures,
	}
	for k, v := range g.pointsByAction {
		s.PointsByAction[k] = v
	}
	for k, v := range g.enrollmentsByTrip {
		s.Enrollments[k] = v
	}
	for k, v := range g.cancelledByTrip {
		s.Cancellations[k] = v
	}
	s.TopBadges = make([]BadgeCount, 0, len(g.badgeHolders))
	for b, holders := range g.badgeHolders {
		s.TopBadges = append(s.TopBadges, BadgeCount{Badge: b, Holders: len(holders)})
	}
	sort.Slice(s.TopBadges, func(i, j int) bool {
		if s.TopBadges[i].Holders != s.TopBadges[j].Holders {
			return s.TopBadges[i].Holders > s.TopBadges[j].Holders
		}
		return s.TopBadges[i].Badge < s.TopBadges[j].Badge
	})
	if topBadges >= 0 && len(s.TopBadges) > topBadges {
		s.TopBadges = s.TopBadges[:topBadges]
	}
	return s
}

func weekKey(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

func monthKey(t time.Time) string { return t.UTC().Format("2006-01") }
