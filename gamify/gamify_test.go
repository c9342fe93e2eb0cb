package gamify

import (
	"context"
	"testing"
	"time"

	mem "campkit/adapters/memory"
	"campkit/analytics"
	"campkit/core"
	"campkit/engine"
	"campkit/realtime"
)

func TestNewDefaultsAndOptions(t *testing.T) {
	hub := realtime.NewHub()
	stats := analytics.NewEngagement()
	svc := New(
		WithRealtime(hub),
		WithHooks(stats),
		WithStore(mem.New()),
		WithDispatchMode(engine.DispatchSync),
	)
	_, ch := hub.Subscribe(8, realtime.Filter{Types: []core.EventType{core.EventPointsAdded}})

	res, err := svc.RecordAction(context.Background(), "alice", core.PointsContext{Action: core.ActionActivityCompleted})
	if err != nil || res.TotalPoints != 10 {
		t.Fatalf("record action total=%d err=%v", res.TotalPoints, err)
	}

	ev := <-ch
	if ev.UserID != "alice" || ev.Delta != 10 {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if got := stats.Snapshot(time.Now(), 0).DailyActive; got != 1 {
		t.Fatalf("expected 1 active camper, got %d", got)
	}
	if top := svc.Leaderboard(1); len(top) != 1 || top[0].User != "alice" {
		t.Fatalf("default ranker not fed: %+v", top)
	}
}

func TestInMemoryFallback(t *testing.T) {
	svc := New(WithDispatchMode(engine.DispatchSync))
	defer svc.Close()
	if _, err := svc.RecordAction(context.Background(), "bob", core.PointsContext{Action: core.ActionPhotoShared}); err != nil {
		t.Fatalf("fallback record action: %v", err)
	}
	p, err := svc.GetProgress(context.Background(), "bob")
	if err != nil {
		t.Fatalf("fallback get progress: %v", err)
	}
	if p.TotalPoints != 5 || p.PhotosShared != 1 {
		t.Fatalf("unexpected progress %+v", p)
	}
}
