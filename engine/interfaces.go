package engine

import (
	"context"

	"campkit/core"
	"campkit/leaderboard"
)

// ProgressStore persists one UserProgress document per camper.
// GetProgress returns zero-valued progress for unknown users.
type ProgressStore interface {
	GetProgress(ctx context.Context, user core.UserID) (core.UserProgress, error)
	PutProgress(ctx context.Context, progress core.UserProgress) error
}

// RuleEngine evaluates rules and emits derived events.
type RuleEngine interface {
	Evaluate(ctx context.Context, prev, next core.UserProgress, trigger core.Event) []core.Event
}

// Ranker receives points totals after each change and answers standings.
type Ranker interface {
	Update(user core.UserID, points int64)
	TopN(n int) []leaderboard.Entry
	// Get returns the user's entry with its 1-based rank.
	Get(user core.UserID) (leaderboard.Entry, bool)
}
