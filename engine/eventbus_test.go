package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"campkit/core"
)

func TestEventBusSync(t *testing.T) {
	bus := NewEventBus(DispatchSync)
	count := 0
	bus.Subscribe(core.EventPointsAdded, func(ctx context.Context, e core.Event) { count++ })
	bus.Publish(context.Background(), core.NewPointsAdded("u", core.ActionActivityCompleted, 10, 10))
	bus.Publish(context.Background(), core.NewLevelUp("u", 2))
	if count != 1 {
		t.Fatalf("want 1 got %d", count)
	}
}

func TestEventBusAsync(t *testing.T) {
	bus := NewEventBus(DispatchAsync)
	defer bus.Close()
	ch := make(chan struct{})
	bus.Subscribe(core.EventPointsAdded, func(ctx context.Context, e core.Event) { close(ch) })
	bus.Publish(context.Background(), core.NewPointsAdded("u", core.ActionActivityCompleted, 10, 10))
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timeout")
	}
}

func TestEventBusSubscribeAllAndUnsubscribe(t *testing.T) {
	bus := NewEventBus(DispatchSync)
	var all, typed int
	bus.SubscribeAll(func(ctx context.Context, e core.Event) { all++ })
	unsub := bus.Subscribe(core.EventBadgeAwarded, func(ctx context.Context, e core.Event) { typed++ })

	bus.Publish(context.Background(), core.NewBadgeAwarded("u", core.BadgeExplorer))
	bus.Publish(context.Background(), core.NewLevelUp("u", 3))
	unsub()
	bus.Publish(context.Background(), core.NewBadgeAwarded("u", core.BadgeAdventurer))

	if all != 3 || typed != 1 {
		t.Fatalf("all=%d typed=%d", all, typed)
	}
}

func TestEventBusRecoversHandlerPanic(t *testing.T) {
	bus := NewEventBus(DispatchSync)
	called := false
	bus.Subscribe(core.EventLevelUp, func(ctx context.Context, e core.Event) { panic("boom") })
	bus.Subscribe(core.EventLevelUp, func(ctx context.Context, e core.Event) { called = true })
	bus.Publish(context.Background(), core.NewLevelUp("u", 2))
	if !called {
		t.Fatal("second handler should still run")
	}
}

func TestEventBusCloseDrainsQueue(t *testing.T) {
	bus := NewEventBus(DispatchAsync, WithWorkers(1, 64))
	var n atomic.Int64
	bus.Subscribe(core.EventPointsAdded, func(ctx context.Context, e core.Event) { n.Add(1) })
	for i := 0; i < 50; i++ {
		bus.Publish(context.Background(), core.NewPointsAdded("u", core.ActionEcoAction, 15, 15))
	}
	bus.Close()
	bus.Close()
	if n.Load() != 50 {
		t.Fatalf("want 50 delivered, got %d", n.Load())
	}
}
