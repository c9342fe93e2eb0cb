package realtime

import (
	"context"
	"encoding/json"
	"testing"

	"campkit/core"
)

func TestHubSubscribeBroadcastUnsubscribe(t *testing.T) {
	h := NewHub()
	id, ch := h.Subscribe(1, Filter{})

	ev := core.NewPointsAdded("bob", core.ActionPhotoShared, 5, 5)
	h.Broadcast(context.Background(), ev)

	received := <-ch
	if received.UserID != "bob" || received.Type != core.EventPointsAdded {
		t.Fatalf("unexpected event: %+v", received)
	}

	h.Unsubscribe(id)
	if _, ok := <-ch; ok {
		t.Fatal("expected channel closed after unsubscribe")
	}
	if h.Len() != 0 {
		t.Fatalf("expected no subscribers, got %d", h.Len())
	}
}

func TestHubFilters(t *testing.T) {
	h := NewHub()
	_, mine := h.Subscribe(4, Filter{User: "alice", Types: []core.EventType{core.EventBadgeAwarded}})

	h.Broadcast(context.Background(), core.NewBadgeAwarded("bob", core.BadgeExplorer))
	h.Broadcast(context.Background(), core.NewPointsAdded("alice", core.ActionEcoAction, 10, 10))
	h.Broadcast(context.Background(), core.NewBadgeAwarded("alice", core.BadgeExplorer))

	if len(mine) != 1 {
		t.Fatalf("expected exactly one matching event, got %d", len(mine))
	}
	if ev := <-mine; ev.Badge != core.BadgeExplorer {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestHubDropsWhenFull(t *testing.T) {
	h := NewHub()
	_, ch := h.Subscribe(1, Filter{})
	h.Broadcast(context.Background(), core.NewLevelUp("a", 2))
	h.Broadcast(context.Background(), core.NewLevelUp("a", 3))
	if h.Dropped() != 1 {
		t.Fatalf("expected one dropped delivery, got %d", h.Dropped())
	}
	if ev := <-ch; ev.Level != 2 {
		t.Fatalf("expected first event kept, got %+v", ev)
	}
}

func TestMarshalJSON(t *testing.T) {
	ev := core.NewBadgeAwarded("alice", core.BadgeRisingStar)
	var out core.Event
	if err := json.Unmarshal(MarshalJSON(ev), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Badge != core.BadgeRisingStar {
		t.Fatalf("unexpected badge: %s", out.Badge)
	}
}
