package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"campkit/core"
	"campkit/leaderboard"
)

// ActionResult reports what one scored action changed.
type ActionResult struct {
	Points      int64        `json:"points"`
	TotalPoints int64        `json:"total_points"`
	Level       int64        `json:"level"`
	LeveledUp   bool         `json:"leveled_up"`
	Badges      []core.Badge `json:"badges"`
}

// ProgressService wires storage, event bus, and rules into a cohesive API.
type ProgressService struct {
	store    ProgressStore
	bus      *EventBus
	rules    RuleEngine
	leveling core.Leveling
	ranker   Ranker
	logger   *slog.Logger
	now      func() time.Time
}

// ServiceOption tunes a ProgressService.
type ServiceOption func(*ProgressService)

func WithLeveling(l core.Leveling) ServiceOption {
	return func(s *ProgressService) {
		if l != nil {
			s.leveling = l
		}
	}
}

func WithRanker(r Ranker) ServiceOption { return func(s *ProgressService) { s.ranker = r } }

func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *ProgressService) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source, used by tests that span days.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *ProgressService) {
		if now != nil {
			s.now = now
		}
	}
}

func NewProgressService(store ProgressStore, bus *EventBus, rules RuleEngine, opts ...ServiceOption) *ProgressService {
	if store == nil || bus == nil || rules == nil {
		panic("NewProgressService requires non-nil store, bus, and rules")
	}
	s := &ProgressService{
		store:    store,
		bus:      bus,
		rules:    rules,
		leveling: core.DefaultLeveling,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func DefaultRuleEngine() RuleEngine {
	return &simpleRuleEngine{rules: []core.Rule{core.LevelUpRule{}, core.StreakRule{Every: 7}}}
}

// Subscribe convenience method.
func (s *ProgressService) Subscribe(typ core.EventType, handler func(context.Context, core.Event)) func() {
	return s.bus.Subscribe(typ, handler)
}

func (s *ProgressService) Publish(ctx context.Context, ev core.Event) {
	s.bus.Publish(ctx, ev)
}

// Leveling exposes the curve so every surface derives levels the same way.
func (s *ProgressService) Leveling() core.Leveling { return s.leveling }

// RecordAction scores one action and folds it into the camper's progress.
func (s *ProgressService) RecordAction(ctx context.Context, user core.UserID, pc core.PointsContext) (ActionResult, error) {
	normalized, err := core.NormalizeUserID(user)
	if err != nil {
		return ActionResult{}, err
	}
	if err := core.ValidateContext(pc); err != nil {
		return ActionResult{}, err
	}
	prev, err := s.load(ctx, normalized)
	if err != nil {
		return ActionResult{}, err
	}

	now := s.now()
	points := core.CalculatePoints(pc)
	next := prev.Clone()
	if err := next.Apply(pc, points, now, s.leveling); err != nil {
		return ActionResult{}, err
	}
	badges := s.unlockBadges(&next, pc.Action, pc, now)

	if err := s.store.PutProgress(ctx, next); err != nil {
		return ActionResult{}, fmt.Errorf("save progress: %w", err)
	}
	if s.ranker != nil {
		s.ranker.Update(normalized, next.TotalPoints)
	}

	trigger := core.NewPointsAdded(normalized, pc.Action, points, next.TotalPoints)
	trigger.TripID = pc.TripID
	s.bus.Publish(ctx, trigger)
	s.publishDerived(ctx, prev, next, trigger, badges)

	s.logger.Debug("action recorded",
		"user_id", normalized, "action", pc.Action, "points", points, "total", next.TotalPoints, "badges", len(badges))

	return ActionResult{
		Points:      points,
		TotalPoints: next.TotalPoints,
		Level:       next.Level,
		LeveledUp:   next.Level > prev.Level,
		Badges:      badges,
	}, nil
}

// CompleteTrip records a finished trip and awards any badge it unlocks.
func (s *ProgressService) CompleteTrip(ctx context.Context, user core.UserID, tripID string) ([]core.Badge, error) {
	normalized, err := core.NormalizeUserID(user)
	if err != nil {
		return nil, err
	}
	if tripID == "" {
		return nil, errors.New("trip id is required")
	}
	prev, err := s.load(ctx, normalized)
	if err != nil {
		return nil, err
	}
	if prev.HasCompletedTrip(tripID) {
		return nil, nil
	}
	now := s.now()
	next := prev.Clone()
	next.AddCompletedTrip(tripID)
	next.UpdatedAt = now.UTC()
	pc := core.PointsContext{TripID: tripID}
	badges := s.unlockBadges(&next, "", pc, now)
	if err := s.store.PutProgress(ctx, next); err != nil {
		return nil, fmt.Errorf("save progress: %w", err)
	}
	trigger := core.NewEvent(core.EventTripCompleted, normalized)
	trigger.TripID = tripID
	s.bus.Publish(ctx, trigger)
	s.publishDerived(ctx, prev, next, trigger, badges)
	return badges, nil
}

// AwardBadge grants a catalog badge directly. Awarding a held badge is a no-op.
func (s *ProgressService) AwardBadge(ctx context.Context, user core.UserID, badge core.BadgeID) error {
	normalized, err := core.NormalizeUserID(user)
	if err != nil {
		return err
	}
	if err := core.ValidateBadgeID(badge); err != nil {
		return err
	}
	p, err := s.load(ctx, normalized)
	if err != nil {
		return err
	}
	if !p.AddBadge(badge, s.now()) {
		return nil
	}
	if err := s.store.PutProgress(ctx, p); err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	s.bus.Publish(ctx, core.NewBadgeAwarded(normalized, badge))
	return nil
}

// GetProgress returns the camper's progress with the level recomputed from points.
func (s *ProgressService) GetProgress(ctx context.Context, user core.UserID) (core.UserProgress, error) {
	normalized, err := core.NormalizeUserID(user)
	if err != nil {
		return core.UserProgress{}, err
	}
	return s.load(ctx, normalized)
}

// LevelInfo returns the progress-bar view for a camper.
func (s *ProgressService) LevelInfo(ctx context.Context, user core.UserID) (core.LevelInfo, error) {
	p, err := s.GetProgress(ctx, user)
	if err != nil {
		return core.LevelInfo{}, err
	}
	return core.DescribeLevel(s.leveling, p.TotalPoints), nil
}

// EvaluateRules re-runs badge evaluation against stored progress, for example
// after a catalog change.
func (s *ProgressService) EvaluateRules(ctx context.Context, user core.UserID) ([]core.Badge, error) {
	prev, err := s.GetProgress(ctx, user)
	if err != nil {
		return nil, err
	}
	next := prev.Clone()
	badges := s.unlockBadges(&next, "", core.PointsContext{}, s.now())
	if len(badges) == 0 {
		return nil, nil
	}
	if err := s.store.PutProgress(ctx, next); err != nil {
		return nil, fmt.Errorf("save progress: %w", err)
	}
	for _, b := range badges {
		s.bus.Publish(ctx, core.NewBadgeAwarded(next.UserID, b.ID))
	}
	return badges, nil
}

// Leaderboard returns the top n campers, or nil without a ranker.
func (s *ProgressService) Leaderboard(n int) []leaderboard.Entry {
	if s.ranker == nil {
		return nil
	}
	return s.ranker.TopN(n)
}

// Rank returns the camper's 1-based leaderboard position. ok is false for
// unranked campers or without a ranker.
func (s *ProgressService) Rank(user core.UserID) (rank int, ok bool) {
	if s.ranker == nil {
		return 0, false
	}
	normalized, err := core.NormalizeUserID(user)
	if err != nil {
		return 0, false
	}
	e, ok := s.ranker.Get(normalized)
	if !ok {
		return 0, false
	}
	return e.Rank, true
}

func (s *ProgressService) Close() { s.bus.Close() }

func (s *ProgressService) load(ctx context.Context, user core.UserID) (core.UserProgress, error) {
	p, err := s.store.GetProgress(ctx, user)
	if err != nil {
		return core.UserProgress{}, fmt.Errorf("load progress: %w", err)
	}
	if p.UserID == "" {
		p.UserID = user
	}
	// stored levels are never trusted
	p.Level = s.leveling.Level(p.TotalPoints)
	return p, nil
}

// unlockBadges calls the evaluator until it finds nothing new, adding each
// badge to p before asking again.
func (s *ProgressService) unlockBadges(p *core.UserProgress, action core.ActionKind, pc core.PointsContext, now time.Time) []core.Badge {
	var out []core.Badge
	for {
		b, ok := core.CheckBadgeUnlock(*p, action, pc)
		if !ok || !p.AddBadge(b.ID, now) {
			return out
		}
		out = append(out, b)
	}
}

func (s *ProgressService) publishDerived(ctx context.Context, prev, next core.UserProgress, trigger core.Event, badges []core.Badge) {
	for _, d := range s.rules.Evaluate(ctx, prev, next, trigger) {
		s.bus.Publish(ctx, d)
	}
	for _, b := range badges {
		s.bus.Publish(ctx, core.NewBadgeAwarded(next.UserID, b.ID))
	}
}

type simpleRuleEngine struct{ rules []core.Rule }

func (s *simpleRuleEngine) Evaluate(ctx context.Context, prev, next core.UserProgress, trigger core.Event) []core.Event {
	var out []core.Event
	for _, r := range s.rules {
		out = append(out, r.Evaluate(ctx, prev, next, trigger)...)
	}
	return out
}
