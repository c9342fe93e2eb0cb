package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	mem "campkit/adapters/memory"
	"campkit/core"
	"campkit/leaderboard"
)

type stepClock struct{ t time.Time }

func (c *stepClock) now() time.Time { return c.t }

func newTestService(t *testing.T, opts ...ServiceOption) (*ProgressService, *mem.Store) {
	t.Helper()
	store := mem.New()
	svc := NewProgressService(store, NewEventBus(DispatchSync), DefaultRuleEngine(), opts...)
	return svc, store
}

func TestRecordActionAddsPointsAndLevelsUp(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	levelUps := 0
	svc.Subscribe(core.EventLevelUp, func(ctx context.Context, e core.Event) { levelUps++ })

	res, err := svc.RecordAction(ctx, "User1", core.PointsContext{Action: core.ActionChallengeCompleted, Difficulty: core.DifficultyAdvanced})
	if err != nil {
		t.Fatal(err)
	}
	if res.Points != 100 || res.TotalPoints != 100 || res.Level != 2 || !res.LeveledUp {
		t.Fatalf("unexpected result %+v", res)
	}
	if levelUps != 1 {
		t.Fatalf("expected one level up event, got %d", levelUps)
	}
	if len(res.Badges) != 1 || res.Badges[0].ID != core.BadgeRisingStar {
		t.Fatalf("expected rising_star, got %+v", res.Badges)
	}

	p, err := svc.GetProgress(ctx, "user1")
	if err != nil {
		t.Fatal(err)
	}
	if p.ChallengesCompleted != 1 || !p.HasBadge(core.BadgeRisingStar) {
		t.Fatalf("unexpected progress %+v", p)
	}
}

func TestRecordActionRejectsBadInput(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	if _, err := svc.RecordAction(ctx, "  ", core.PointsContext{Action: core.ActionEcoAction}); !errors.Is(err, core.ErrEmptyUserID) {
		t.Fatalf("expected ErrEmptyUserID, got %v", err)
	}
	if _, err := svc.RecordAction(ctx, "u", core.PointsContext{Action: "dance"}); !errors.Is(err, core.ErrInvalidContext) {
		t.Fatalf("expected ErrInvalidContext, got %v", err)
	}
}

func TestRecordActionAwardsEverySatisfiedBadge(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	seed := core.NewUserProgress("u")
	seed.TotalPoints = 995
	seed.ActivitiesCompleted = 9
	if err := store.PutProgress(ctx, seed); err != nil {
		t.Fatal(err)
	}

	var awarded []core.BadgeID
	svc.Subscribe(core.EventBadgeAwarded, func(ctx context.Context, e core.Event) { awarded = append(awarded, e.Badge) })

	res, err := svc.RecordAction(ctx, "u", core.PointsContext{Action: core.ActionActivityCompleted})
	if err != nil {
		t.Fatal(err)
	}
	want := []core.BadgeID{core.BadgeRisingStar, core.BadgeTrailblazer, core.BadgeActiveCamper}
	if len(res.Badges) != len(want) || len(awarded) != len(want) {
		t.Fatalf("want %v, got result %+v events %v", want, res.Badges, awarded)
	}
	for i, id := range want {
		if res.Badges[i].ID != id || awarded[i] != id {
			t.Fatalf("want %v, got result %+v events %v", want, res.Badges, awarded)
		}
	}

	again, err := svc.RecordAction(ctx, "u", core.PointsContext{Action: core.ActionActivityCompleted})
	if err != nil {
		t.Fatal(err)
	}
	if len(again.Badges) != 0 {
		t.Fatalf("badges must not be awarded twice: %+v", again.Badges)
	}
}

func TestStreakAcrossDays(t *testing.T) {
	clock := &stepClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	svc, _ := newTestService(t, WithClock(clock.now))
	ctx := context.Background()

	milestones := 0
	svc.Subscribe(core.EventStreakMilestone, func(ctx context.Context, e core.Event) { milestones++ })

	var last ActionResult
	for day := 0; day < 7; day++ {
		res, err := svc.RecordAction(ctx, "u", core.PointsContext{Action: core.ActionEcoAction})
		if err != nil {
			t.Fatal(err)
		}
		last = res
		clock.t = clock.t.Add(24 * time.Hour)
	}
	p, _ := svc.GetProgress(ctx, "u")
	if p.CurrentStreak != 7 || p.LongestStreak != 7 {
		t.Fatalf("unexpected streak %+v", p)
	}
	if milestones != 1 {
		t.Fatalf("expected one streak milestone, got %d", milestones)
	}
	found := false
	for _, b := range last.Badges {
		if b.ID == core.BadgeWeekStreak {
			found = true
		}
	}
	if !found {
		t.Fatalf("week_streak expected on day 7, got %+v", last.Badges)
	}
}

func TestCompleteTripUnlocksExplorerOnce(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	badges, err := svc.CompleteTrip(ctx, "u", "trip-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(badges) != 1 || badges[0].ID != core.BadgeExplorer {
		t.Fatalf("expected explorer, got %+v", badges)
	}
	badges, err = svc.CompleteTrip(ctx, "u", "trip-1")
	if err != nil || len(badges) != 0 {
		t.Fatalf("repeat completion must be a no-op, got %+v %v", badges, err)
	}
	p, _ := svc.GetProgress(ctx, "u")
	if len(p.CompletedTrips) != 1 {
		t.Fatalf("trips must be a set: %v", p.CompletedTrips)
	}
	if _, err := svc.CompleteTrip(ctx, "u", ""); err == nil {
		t.Fatal("expected error for empty trip id")
	}
}

func TestAwardBadge(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	events := 0
	svc.Subscribe(core.EventBadgeAwarded, func(ctx context.Context, e core.Event) { events++ })

	if err := svc.AwardBadge(ctx, "u", core.BadgeGoodSamaritan); err != nil {
		t.Fatal(err)
	}
	if err := svc.AwardBadge(ctx, "u", core.BadgeGoodSamaritan); err != nil {
		t.Fatal(err)
	}
	if events != 1 {
		t.Fatalf("award must be idempotent, got %d events", events)
	}
	if err := svc.AwardBadge(ctx, "u", "made_up"); !errors.Is(err, core.ErrUnknownBadge) {
		t.Fatalf("expected ErrUnknownBadge, got %v", err)
	}
}

func TestStoredLevelIsRecomputed(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	p := core.NewUserProgress("u")
	p.TotalPoints = 450
	p.Level = 99
	_ = store.PutProgress(ctx, p)

	got, err := svc.GetProgress(ctx, "u")
	if err != nil {
		t.Fatal(err)
	}
	if got.Level != 5 {
		t.Fatalf("level should be recomputed to 5, got %d", got.Level)
	}
	info, _ := svc.LevelInfo(ctx, "u")
	if info.NextLevelMin != 500 || info.Progress != 0.5 {
		t.Fatalf("unexpected level info %+v", info)
	}
}

func TestEvaluateRulesAfterSeed(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	p := core.NewUserProgress("u")
	p.PhotosShared = 25
	_ = store.PutProgress(ctx, p)

	badges, err := svc.EvaluateRules(ctx, "u")
	if err != nil {
		t.Fatal(err)
	}
	if len(badges) != 1 || badges[0].ID != core.BadgePhotographer {
		t.Fatalf("expected photographer, got %+v", badges)
	}
}

func TestLeaderboardFedByRanker(t *testing.T) {
	board := leaderboard.NewSkipList()
	svc, _ := newTestService(t, WithRanker(board))
	ctx := context.Background()

	_, _ = svc.RecordAction(ctx, "a", core.PointsContext{Action: core.ActionActivityCompleted})
	_, _ = svc.RecordAction(ctx, "b", core.PointsContext{Action: core.ActionChallengeCompleted})

	top := svc.Leaderboard(2)
	if len(top) != 2 || top[0].User != "b" || top[0].Points != 50 || top[1].User != "a" {
		t.Fatalf("unexpected leaderboard %+v", top)
	}

	plain, _ := newTestService(t)
	if plain.Leaderboard(5) != nil {
		t.Fatal("no ranker means no leaderboard")
	}
}

func TestRankBeyondTopN(t *testing.T) {
	svc, _ := newTestService(t, WithRanker(leaderboard.NewSkipList()))
	ctx := context.Background()
	for _, u := range []core.UserID{"a", "b", "c"} {
		_, _ = svc.RecordAction(ctx, u, core.PointsContext{Action: core.ActionActivityCompleted})
	}
	_, _ = svc.RecordAction(ctx, "Lead", core.PointsContext{Action: core.ActionChallengeCompleted})

	if r, ok := svc.Rank("lead"); !ok || r != 1 {
		t.Fatalf("lead rank = %d, %v", r, ok)
	}
	if r, ok := svc.Rank(" C "); !ok || r != 4 {
		t.Fatalf("c rank = %d, %v", r, ok)
	}
	if _, ok := svc.Rank("ghost"); ok {
		t.Fatal("unknown camper should be unranked")
	}

	plain, _ := newTestService(t)
	if _, ok := plain.Rank("a"); ok {
		t.Fatal("no ranker means no rank")
	}
}
