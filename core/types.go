package core

import (
	"errors"
	"math"
	"strings"
	"time"
)

var (
	ErrEmptyUserID    = errors.New("empty user id")
	ErrUnknownBadge   = errors.New("unknown badge")
	ErrInvalidContext = errors.New("invalid points context")
)

// UserID uniquely identifies a camper.
type UserID string

// ActionKind enumerates the scored actions a camper can perform.
type ActionKind string

const (
	ActionActivityCompleted  ActionKind = "activity_completed"
	ActionChallengeCompleted ActionKind = "challenge_completed"
	ActionPhotoShared        ActionKind = "photo_shared"
	ActionHelpProvided       ActionKind = "help_provided"
	ActionEcoAction          ActionKind = "eco_action"
	ActionMessageSent        ActionKind = "message_sent"
	ActionEarlyActivity      ActionKind = "early_activity"
	ActionNightActivity      ActionKind = "night_activity"
	ActionPerfectChallenge   ActionKind = "perfect_challenge"
)

// Difficulty of a challenge. Values are the labels shown to campers.
type Difficulty string

const (
	DifficultyBeginner     Difficulty = "débutant"
	DifficultyIntermediate Difficulty = "intermédiaire"
	DifficultyAdvanced     Difficulty = "avancé"
)

// PointsContext describes one scored action.
type PointsContext struct {
	Action      ActionKind `json:"action" validate:"required"`
	TripID      string     `json:"trip_id,omitempty" validate:"omitempty,max=128"`
	ActivityID  string     `json:"activity_id,omitempty" validate:"omitempty,max=128"`
	ChallengeID string     `json:"challenge_id,omitempty" validate:"omitempty,max=128"`
	Difficulty  Difficulty `json:"difficulty,omitempty"`
	TimeBonus   bool       `json:"time_bonus,omitempty"`
	// Quality is a score in [0,1]; nil when the action carries none.
	Quality *float64 `json:"quality,omitempty" validate:"omitempty,gte=0,lte=1"`
}

// EarnedBadge records when a badge entered a camper's collection.
type EarnedBadge struct {
	BadgeID  BadgeID   `json:"badge_id" firestore:"badge_id" db:"badge_id"`
	EarnedAt time.Time `json:"earned_at" firestore:"earned_at" db:"earned_at"`
}

// UserProgress is the durable gamification state of one camper.
// Level is derived from TotalPoints and is recomputed on every mutation.
type UserProgress struct {
	UserID         UserID        `json:"user_id" firestore:"user_id"`
	TotalPoints    int64         `json:"total_points" firestore:"total_points"`
	Level          int64         `json:"level" firestore:"level"`
	Badges         []EarnedBadge `json:"badges" firestore:"badges"`
	CompletedTrips []string      `json:"completed_trips" firestore:"completed_trips"`
	CurrentStreak  int           `json:"current_streak" firestore:"current_streak"`
	LongestStreak  int           `json:"longest_streak" firestore:"longest_streak"`
	LastActiveDay  string        `json:"last_active_day,omitempty" firestore:"last_active_day"`

	ActivitiesCompleted int `json:"activities_completed" firestore:"activities_completed"`
	ChallengesCompleted int `json:"challenges_completed" firestore:"challenges_completed"`
	PhotosShared        int `json:"photos_shared" firestore:"photos_shared"`
	MessagesSent        int `json:"messages_sent" firestore:"messages_sent"`
	HelpProvided        int `json:"help_provided" firestore:"help_provided"`
	EcoActions          int `json:"eco_actions" firestore:"eco_actions"`
	EarlyActivities     int `json:"early_activities" firestore:"early_activities"`
	NightActivities     int `json:"night_activities" firestore:"night_activities"`
	PerfectChallenges   int `json:"perfect_challenges" firestore:"perfect_challenges"`

	UpdatedAt time.Time `json:"updated_at" firestore:"updated_at"`
}

// NewUserProgress returns the zero-valued progress created on first access.
func NewUserProgress(user UserID) UserProgress {
	return UserProgress{
		UserID:         user,
		Level:          1,
		Badges:         []EarnedBadge{},
		CompletedTrips: []string{},
	}
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (p UserProgress) Clone() UserProgress {
	cp := p
	cp.Badges = append(make([]EarnedBadge, 0, len(p.Badges)), p.Badges...)
	cp.CompletedTrips = append(make([]string, 0, len(p.CompletedTrips)), p.CompletedTrips...)
	return cp
}

// HasBadge reports whether the badge is already in the collection.
func (p UserProgress) HasBadge(id BadgeID) bool {
	for _, b := range p.Badges {
		if b.BadgeID == id {
			return true
		}
	}
	return false
}

// HasCompletedTrip reports whether the trip is already recorded.
func (p UserProgress) HasCompletedTrip(tripID string) bool {
	for _, t := range p.CompletedTrips {
		if t == tripID {
			return true
		}
	}
	return false
}

// InteractionsCount sums the community interactions a camper performed.
func (p UserProgress) InteractionsCount() int {
	return p.MessagesSent + p.HelpProvided + p.PhotosShared
}

// AddBadge inserts the badge unless present. Returns false on duplicates.
func (p *UserProgress) AddBadge(id BadgeID, at time.Time) bool {
	if p.HasBadge(id) {
		return false
	}
	p.Badges = append(p.Badges, EarnedBadge{BadgeID: id, EarnedAt: at.UTC()})
	return true
}

// AddCompletedTrip records the trip unless present. Returns false on duplicates.
func (p *UserProgress) AddCompletedTrip(tripID string) bool {
	if tripID == "" || p.HasCompletedTrip(tripID) {
		return false
	}
	p.CompletedTrips = append(p.CompletedTrips, tripID)
	return true
}

// Apply folds one scored action into the progress: points, the matching
// counter, the daily streak and the derived level.
func (p *UserProgress) Apply(pc PointsContext, points int64, now time.Time, lv Leveling) error {
	if points < 0 {
		return errors.New("points cannot be negative")
	}
	total, err := AddSafe(p.TotalPoints, points)
	if err != nil {
		return err
	}
	p.TotalPoints = total
	switch pc.Action {
	case ActionActivityCompleted:
		p.ActivitiesCompleted++
	case ActionChallengeCompleted:
		p.ChallengesCompleted++
	case ActionPhotoShared:
		p.PhotosShared++
	case ActionHelpProvided:
		p.HelpProvided++
	case ActionEcoAction:
		p.EcoActions++
	case ActionMessageSent:
		p.MessagesSent++
	case ActionEarlyActivity:
		p.EarlyActivities++
	case ActionNightActivity:
		p.NightActivities++
	case ActionPerfectChallenge:
		p.PerfectChallenges++
	}
	p.TouchStreak(now)
	p.Level = lv.Level(p.TotalPoints)
	p.UpdatedAt = now.UTC()
	return nil
}

// TouchStreak registers activity on now's UTC day.
func (p *UserProgress) TouchStreak(now time.Time) {
	today := now.UTC().Format(dayLayout)
	switch {
	case p.LastActiveDay == today:
		if p.CurrentStreak == 0 {
			p.CurrentStreak = 1
		}
	case p.LastActiveDay != "" && isNextDay(p.LastActiveDay, today):
		p.CurrentStreak++
	default:
		p.CurrentStreak = 1
	}
	p.LastActiveDay = today
	if p.CurrentStreak > p.LongestStreak {
		p.LongestStreak = p.CurrentStreak
	}
}

const dayLayout = "2006-01-02"

func isNextDay(prev, today string) bool {
	a, err := time.Parse(dayLayout, prev)
	if err != nil {
		return false
	}
	b, err := time.Parse(dayLayout, today)
	if err != nil {
		return false
	}
	return b.Sub(a) == 24*time.Hour
}

// AddSafe adds delta to base ensuring no signed overflow occurs.
func AddSafe(base int64, delta int64) (int64, error) {
	if (delta > 0 && base > math.MaxInt64-delta) || (delta < 0 && base < math.MinInt64-delta) {
		return 0, errors.New("integer overflow in AddSafe")
	}
	return base + delta, nil
}

// NormalizeUserID trims and lowercases user identifiers.
func NormalizeUserID(id UserID) (UserID, error) {
	s := strings.TrimSpace(string(id))
	if s == "" {
		return "", ErrEmptyUserID
	}
	return UserID(strings.ToLower(s)), nil
}
