package sqlx

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	libsqlx "github.com/jmoiron/sqlx"

	"campkit/core"
)

type progressRow struct {
	UserID        string    `db:"user_id"`
	TotalPoints   int64     `db:"total_points"`
	Level         int64     `db:"level"`
	CurrentStreak int       `db:"current_streak"`
	LongestStreak int       `db:"longest_streak"`
	LastActiveDay string    `db:"last_active_day"`
	Counters      string    `db:"counters"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// counters is the JSON column holding per-action tallies.
type counters struct {
	ActivitiesCompleted int `json:"activities_completed"`
	ChallengesCompleted int `json:"challenges_completed"`
	PhotosShared        int `json:"photos_shared"`
	MessagesSent        int `json:"messages_sent"`
	HelpProvided        int `json:"help_provided"`
	EcoActions          int `json:"eco_actions"`
	EarlyActivities     int `json:"early_activities"`
	NightActivities     int `json:"night_activities"`
	PerfectChallenges   int `json:"perfect_challenges"`
}

func countersOf(p core.UserProgress) counters {
	return counters{
		ActivitiesCompleted: p.ActivitiesCompleted,
		ChallengesCompleted: p.ChallengesCompleted,
		PhotosShared:        p.PhotosShared,
		MessagesSent:        p.MessagesSent,
		HelpProvided:        p.HelpProvided,
		EcoActions:          p.EcoActions,
		EarlyActivities:     p.EarlyActivities,
		NightActivities:     p.NightActivities,
		PerfectChallenges:   p.PerfectChallenges,
	}
}

func (c counters) applyTo(p *core.UserProgress) {
	p.ActivitiesCompleted = c.ActivitiesCompleted
	p.ChallengesCompleted = c.ChallengesCompleted
	p.PhotosShared = c.PhotosShared
	p.MessagesSent = c.MessagesSent
	p.HelpProvided = c.HelpProvided
	p.EcoActions = c.EcoActions
	p.EarlyActivities = c.EarlyActivities
	p.NightActivities = c.NightActivities
	p.PerfectChallenges = c.PerfectChallenges
}

type badgeRow struct {
	BadgeID  string    `db:"badge_id"`
	EarnedAt time.Time `db:"earned_at"`
}

// GetProgress loads the progress row with its badges and trips.
func (s *Store) GetProgress(ctx context.Context, user core.UserID) (core.UserProgress, error) {
	var row progressRow
	err := s.db.GetContext(ctx, &row, s.q(`SELECT user_id, total_points, level, current_streak, longest_streak, last_active_day, counters, updated_at FROM user_progress WHERE user_id = ?`), user)
	if errors.Is(err, sql.ErrNoRows) {
		return core.NewUserProgress(user), nil
	}
	if err != nil {
		return core.UserProgress{}, fmt.Errorf("query progress: %w", err)
	}

	p := core.NewUserProgress(user)
	p.TotalPoints = row.TotalPoints
	p.Level = row.Level
	p.CurrentStreak = row.CurrentStreak
	p.LongestStreak = row.LongestStreak
	p.LastActiveDay = row.LastActiveDay
	p.UpdatedAt = row.UpdatedAt.UTC()
	var c counters
	if row.Counters != "" {
		if err := json.Unmarshal([]byte(row.Counters), &c); err != nil {
			return core.UserProgress{}, fmt.Errorf("decode counters: %w", err)
		}
	}
	c.applyTo(&p)

	var badges []badgeRow
	if err := s.db.SelectContext(ctx, &badges, s.q(`SELECT badge_id, earned_at FROM user_badges WHERE user_id = ? ORDER BY position`), user); err != nil {
		return core.UserProgress{}, fmt.Errorf("query badges: %w", err)
	}
	for _, b := range badges {
		p.Badges = append(p.Badges, core.EarnedBadge{BadgeID: core.BadgeID(b.BadgeID), EarnedAt: b.EarnedAt.UTC()})
	}

	var trips []string
	if err := s.db.SelectContext(ctx, &trips, s.q(`SELECT trip_id FROM user_trips WHERE user_id = ? ORDER BY position`), user); err != nil {
		return core.UserProgress{}, fmt.Errorf("query trips: %w", err)
	}
	p.CompletedTrips = append(p.CompletedTrips, trips...)
	return p, nil
}

// PutProgress upserts the row and appends badges and trips not yet stored.
func (s *Store) PutProgress(ctx context.Context, p core.UserProgress) error {
	if p.UserID == "" {
		return core.ErrEmptyUserID
	}
	c, err := json.Marshal(countersOf(p))
	if err != nil {
		return fmt.Errorf("encode counters: %w", err)
	}
	updated := p.UpdatedAt.UTC()
	if p.UpdatedAt.IsZero() {
		updated = s.now().UTC()
	}
	return s.inTx(ctx, func(tx *libsqlx.Tx) error {
		var exists bool
		if err := tx.GetContext(ctx, &exists, s.q(`SELECT EXISTS(SELECT 1 FROM user_progress WHERE user_id = ?)`), p.UserID); err != nil {
			return fmt.Errorf("check progress: %w", err)
		}
		if exists {
			_, err = tx.ExecContext(ctx, s.q(`UPDATE user_progress SET total_points = ?, level = ?, current_streak = ?, longest_streak = ?, last_active_day = ?, counters = ?, updated_at = ? WHERE user_id = ?`),
				p.TotalPoints, p.Level, p.CurrentStreak, p.LongestStreak, p.LastActiveDay, string(c), updated, p.UserID)
		} else {
			_, err = tx.ExecContext(ctx, s.q(`INSERT INTO user_progress (user_id, total_points, level, current_streak, longest_streak, last_active_day, counters, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
				p.UserID, p.TotalPoints, p.Level, p.CurrentStreak, p.LongestStreak, p.LastActiveDay, string(c), updated)
		}
		if err != nil {
			return fmt.Errorf("write progress: %w", err)
		}

		var stored []string
		if err := tx.SelectContext(ctx, &stored, s.q(`SELECT badge_id FROM user_badges WHERE user_id = ?`), p.UserID); err != nil {
			return fmt.Errorf("query badges: %w", err)
		}
		have := toSet(stored)
		for i, b := range p.Badges {
			if have[string(b.BadgeID)] {
				continue
			}
			if _, err := tx.ExecContext(ctx, s.q(`INSERT INTO user_badges (user_id, badge_id, position, earned_at) VALUES (?, ?, ?, ?)`),
				p.UserID, b.BadgeID, i, b.EarnedAt.UTC()); err != nil {
				return fmt.Errorf("insert badge: %w", err)
			}
		}

		stored = stored[:0]
		if err := tx.SelectContext(ctx, &stored, s.q(`SELECT trip_id FROM user_trips WHERE user_id = ?`), p.UserID); err != nil {
			return fmt.Errorf("query trips: %w", err)
		}
		have = toSet(stored)
		for i, t := range p.CompletedTrips {
			if have[t] {
				continue
			}
			if _, err := tx.ExecContext(ctx, s.q(`INSERT INTO user_trips (user_id, trip_id, position) VALUES (?, ?, ?)`),
				p.UserID, t, i); err != nil {
				return fmt.Errorf("insert trip: %w", err)
			}
		}
		return nil
	})
}

func toSet(items []string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}
	return m
}
