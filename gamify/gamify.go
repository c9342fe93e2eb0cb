// Package gamify assembles a ready-to-use ProgressService.
package gamify

import (
	"context"
	"log/slog"

	mem "campkit/adapters/memory"
	"campkit/analytics"
	"campkit/core"
	"campkit/engine"
	"campkit/leaderboard"
	"campkit/realtime"
)

// Option configures the builder.
type Option func(*config)

type config struct {
	store    engine.ProgressStore
	mode     engine.DispatchMode
	rules    engine.RuleEngine
	leveling core.Leveling
	ranker   engine.Ranker
	hub      *realtime.Hub
	hooks    []analytics.Hook
	logger   *slog.Logger
}

// WithStore sets the persistence adapter.
func WithStore(s engine.ProgressStore) Option { return func(c *config) { c.store = s } }

// WithRuleEngine sets the rule engine.
func WithRuleEngine(r engine.RuleEngine) Option { return func(c *config) { c.rules = r } }

// WithDispatchMode selects sync or async event dispatch.
func WithDispatchMode(m engine.DispatchMode) Option { return func(c *config) { c.mode = m } }

// WithLeveling replaces the level curve.
func WithLeveling(l core.Leveling) Option { return func(c *config) { c.leveling = l } }

// WithRanker feeds a leaderboard. Without one an in-process skip list is used.
func WithRanker(r engine.Ranker) Option { return func(c *config) { c.ranker = r } }

// WithRealtime forwards every event to the hub.
func WithRealtime(h *realtime.Hub) Option { return func(c *config) { c.hub = h } }

// WithHooks forwards every event to analytics hooks (metrics, DAU, webhooks).
func WithHooks(h ...analytics.Hook) Option {
	return func(c *config) { c.hooks = append(c.hooks, h...) }
}

func WithLogger(l *slog.Logger) Option { return func(c *config) { c.logger = l } }

// New builds a configured ProgressService. Defaults:
//   - store: in-memory
//   - rules: DefaultRuleEngine
//   - dispatch: async
//   - ranker: in-process skip list
func New(opts ...Option) *engine.ProgressService {
	cfg := &config{mode: engine.DispatchAsync, rules: engine.DefaultRuleEngine()}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.store == nil {
		cfg.store = mem.New()
	}
	if cfg.ranker == nil {
		cfg.ranker = leaderboard.NewSkipList()
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	bus := engine.NewEventBus(cfg.mode, engine.WithBusLogger(cfg.logger))
	svc := engine.NewProgressService(cfg.store, bus, cfg.rules,
		engine.WithLeveling(cfg.leveling),
		engine.WithRanker(cfg.ranker),
		engine.WithLogger(cfg.logger),
	)
	if cfg.hub != nil {
		bus.SubscribeAll(cfg.hub.Broadcast)
	}
	if len(cfg.hooks) > 0 {
		bridge := analytics.NewBridge(cfg.hooks...)
		bus.SubscribeAll(func(_ context.Context, e core.Event) { bridge.OnEvent(e) })
	}
	return svc
}
