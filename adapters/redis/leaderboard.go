package redis

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"campkit/core"
	"campkit/leaderboard"
)

// Leaderboard ranks campers in a sorted set shared by every server instance.
// Equal scores are ordered by member descending, as ZREVRANGE does.
type Leaderboard struct {
	client  *redis.Client
	key     string
	timeout time.Duration
	logger  *slog.Logger
}

func NewLeaderboard(client *redis.Client, prefix string, logger *slog.Logger) *Leaderboard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Leaderboard{
		client:  client,
		key:     joinKey(prefix, "leaderboard", "points"),
		timeout: 2 * time.Second,
		logger:  logger,
	}
}

func (l *Leaderboard) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), l.timeout)
}

func (l *Leaderboard) Update(user core.UserID, points int64) {
	ctx, cancel := l.ctx()
	defer cancel()
	if err := l.client.ZAdd(ctx, l.key, redis.Z{Score: float64(points), Member: string(user)}).Err(); err != nil {
		l.logger.Warn("leaderboard update failed", "user_id", user, "error", err)
	}
}

func (l *Leaderboard) Remove(user core.UserID) {
	ctx, cancel := l.ctx()
	defer cancel()
	if err := l.client.ZRem(ctx, l.key, string(user)).Err(); err != nil {
		l.logger.Warn("leaderboard remove failed", "user_id", user, "error", err)
	}
}

func (l *Leaderboard) TopN(n int) []leaderboard.Entry {
	if n <= 0 {
		return nil
	}
	ctx, cancel := l.ctx()
	defer cancel()
	zs, err := l.client.ZRevRangeWithScores(ctx, l.key, 0, int64(n-1)).Result()
	if err != nil {
		l.logger.Warn("leaderboard read failed", "error", err)
		return nil
	}
	out := make([]leaderboard.Entry, 0, len(zs))
	for i, z := range zs {
		member, _ := z.Member.(string)
		out = append(out, leaderboard.Entry{User: core.UserID(member), Points: int64(z.Score), Rank: i + 1})
	}
	return out
}

func (l *Leaderboard) Get(user core.UserID) (leaderboard.Entry, bool) {
	ctx, cancel := l.ctx()
	defer cancel()
	pipe := l.client.Pipeline()
	rank := pipe.ZRevRank(ctx, l.key, string(user))
	score := pipe.ZScore(ctx, l.key, string(user))
	if _, err := pipe.Exec(ctx); err != nil {
		if !errors.Is(err, redis.Nil) {
			l.logger.Warn("leaderboard read failed", "user_id", user, "error", err)
		}
		return leaderboard.Entry{}, false
	}
	return leaderboard.Entry{User: user, Points: int64(score.Val()), Rank: int(rank.Val()) + 1}, true
}

var _ leaderboard.Board = (*Leaderboard)(nil)
