package core

import (
	"context"
	"strings"
)

// CheckBadgeUnlock scans the catalog in order and returns the first badge the
// camper does not hold whose requirement is met. At most one badge is returned
// per call; callers add it to progress and call again to find the next one.
func CheckBadgeUnlock(progress UserProgress, action ActionKind, pc PointsContext) (Badge, bool) {
	for _, b := range catalog {
		if progress.HasBadge(b.ID) {
			continue
		}
		if requirementMet(b, progress, action, pc) {
			return b, true
		}
	}
	return Badge{}, false
}

func requirementMet(b Badge, p UserProgress, action ActionKind, pc PointsContext) bool {
	v := b.Requirement.Value
	switch b.Requirement.Type {
	case RequirementPoints:
		return p.TotalPoints >= v
	case RequirementTrips:
		return int64(len(p.CompletedTrips)) >= v
	case RequirementActivities:
		return int64(p.ActivitiesCompleted) >= v
	case RequirementStreak:
		return int64(p.CurrentStreak) >= v
	case RequirementCustom:
		pred, ok := customPredicates[b.ID]
		return ok && pred(p, action, pc, v)
	}
	return false
}

type customPredicate func(p UserProgress, action ActionKind, pc PointsContext, threshold int64) bool

func counterAtLeast(get func(UserProgress) int) customPredicate {
	return func(p UserProgress, _ ActionKind, _ PointsContext, threshold int64) bool {
		return int64(get(p)) >= threshold
	}
}

var customPredicates = map[BadgeID]customPredicate{
	BadgePhotographer:  counterAtLeast(func(p UserProgress) int { return p.PhotosShared }),
	BadgeSocialite:     counterAtLeast(UserProgress.InteractionsCount),
	BadgeGoodSamaritan: counterAtLeast(func(p UserProgress) int { return p.HelpProvided }),
	BadgeEcoWarrior:    counterAtLeast(func(p UserProgress) int { return p.EcoActions }),
	BadgeEarlyBird:     counterAtLeast(func(p UserProgress) int { return p.EarlyActivities }),
	BadgeNightOwl:      counterAtLeast(func(p UserProgress) int { return p.NightActivities }),
	BadgeSurvivor: func(_ UserProgress, action ActionKind, pc PointsContext, _ int64) bool {
		return action == ActionChallengeCompleted && strings.Contains(strings.ToLower(pc.ChallengeID), "survie")
	},
	BadgeLightning: func(_ UserProgress, action ActionKind, pc PointsContext, _ int64) bool {
		return action == ActionPerfectChallenge && pc.TimeBonus
	},
}

// Rule derives follow-up events from a progress transition.
type Rule interface {
	Evaluate(ctx context.Context, prev, next UserProgress, trigger Event) []Event
}

// LevelUpRule emits a level up when the derived level increased.
type LevelUpRule struct{}

func (LevelUpRule) Evaluate(_ context.Context, prev, next UserProgress, trigger Event) []Event {
	if trigger.Type != EventPointsAdded {
		return nil
	}
	if next.Level > prev.Level {
		return []Event{NewLevelUp(next.UserID, next.Level)}
	}
	return nil
}

// StreakRule emits a streak milestone event every seven consecutive days.
type StreakRule struct{ Every int }

func (r StreakRule) Evaluate(_ context.Context, prev, next UserProgress, _ Event) []Event {
	every := r.Every
	if every <= 0 {
		every = 7
	}
	if next.CurrentStreak > prev.CurrentStreak && next.CurrentStreak%every == 0 {
		ev := NewEvent(EventStreakMilestone, next.UserID)
		ev.Streak = next.CurrentStreak
		return []Event{ev}
	}
	return nil
}
