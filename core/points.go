package core

import (
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"
)

// basePoints is the fixed reward table keyed by action kind.
var basePoints = map[ActionKind]int64{
	ActionActivityCompleted:  10,
	ActionChallengeCompleted: 50,
	ActionPhotoShared:        5,
	ActionHelpProvided:       15,
	ActionEcoAction:          10,
	ActionMessageSent:        1,
	ActionEarlyActivity:      5,
	ActionNightActivity:      5,
	ActionPerfectChallenge:   25,
}

var difficultyFactor = map[Difficulty]float64{
	DifficultyBeginner:     1.0,
	DifficultyIntermediate: 1.5,
	DifficultyAdvanced:     2.0,
}

const (
	timeBonusPoints  = 5
	qualityThreshold = 0.8
	qualityFactor    = 1.2
)

var validate = validator.New()

// BasePoints returns the table value for an action and whether it is known.
func BasePoints(action ActionKind) (int64, bool) {
	v, ok := basePoints[action]
	return v, ok
}

// Actions lists every scored action kind.
func Actions() []ActionKind {
	return []ActionKind{
		ActionActivityCompleted,
		ActionChallengeCompleted,
		ActionPhotoShared,
		ActionHelpProvided,
		ActionEcoAction,
		ActionMessageSent,
		ActionEarlyActivity,
		ActionNightActivity,
		ActionPerfectChallenge,
	}
}

// ValidateContext checks that the action is known and optional fields are in range.
func ValidateContext(pc PointsContext) error {
	if err := validate.Struct(pc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidContext, err)
	}
	if _, ok := basePoints[pc.Action]; !ok {
		return fmt.Errorf("%w: unknown action %q", ErrInvalidContext, pc.Action)
	}
	if pc.Difficulty != "" {
		if _, ok := difficultyFactor[pc.Difficulty]; !ok {
			return fmt.Errorf("%w: unknown difficulty %q", ErrInvalidContext, pc.Difficulty)
		}
	}
	return nil
}

// CalculatePoints maps a scored action to its reward. Unknown actions score 0.
//
// Modifiers are exclusive and checked in order: challenge difficulty,
// time bonus, then quality above 0.8.
func CalculatePoints(pc PointsContext) int64 {
	base, ok := basePoints[pc.Action]
	if !ok {
		return 0
	}
	if pc.Action == ActionChallengeCompleted && pc.Difficulty != "" {
		if f, ok := difficultyFactor[pc.Difficulty]; ok {
			return int64(math.Round(float64(base) * f))
		}
	}
	if pc.TimeBonus {
		return base + timeBonusPoints
	}
	if pc.Quality != nil && *pc.Quality > qualityThreshold {
		return int64(math.Round(float64(base) * qualityFactor))
	}
	return base
}
