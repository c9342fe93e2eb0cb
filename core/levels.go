package core

// Leveling maps cumulative points to levels. Every surface that shows a level
// goes through one Leveling so they cannot disagree.
type Leveling interface {
	Level(totalPoints int64) int64
	PointsForLevel(level int64) int64
}

// LinearLeveling grants one level per Step points: level = floor(points/Step)+1.
type LinearLeveling struct{ Step int64 }

// DefaultLeveling is the canonical curve, 100 points per level.
var DefaultLeveling Leveling = LinearLeveling{Step: 100}

func (l LinearLeveling) step() int64 {
	if l.Step <= 0 {
		return 100
	}
	return l.Step
}

func (l LinearLeveling) Level(totalPoints int64) int64 {
	if totalPoints <= 0 {
		return 1
	}
	return totalPoints/l.step() + 1
}

// PointsForLevel is the inverse of Level on level boundaries.
func (l LinearLeveling) PointsForLevel(level int64) int64 {
	if level <= 1 {
		return 0
	}
	return (level - 1) * l.step()
}

// CalculateLevel applies DefaultLeveling.
func CalculateLevel(totalPoints int64) int64 {
	return DefaultLeveling.Level(totalPoints)
}

// NextLevelPoints returns the total needed to reach the level after the current one.
func NextLevelPoints(lv Leveling, totalPoints int64) int64 {
	return lv.PointsForLevel(lv.Level(totalPoints) + 1)
}

// LevelProgress returns the fraction of the current level already earned, in [0,1].
func LevelProgress(lv Leveling, totalPoints int64) float64 {
	if totalPoints < 0 {
		totalPoints = 0
	}
	cur := lv.PointsForLevel(lv.Level(totalPoints))
	next := NextLevelPoints(lv, totalPoints)
	if next <= cur {
		return 0
	}
	f := float64(totalPoints-cur) / float64(next-cur)
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

// LevelInfo is the progress-bar view of a points total.
type LevelInfo struct {
	Level           int64   `json:"level"`
	CurrentLevelMin int64   `json:"current_level_points"`
	NextLevelMin    int64   `json:"next_level_points"`
	Progress        float64 `json:"progress"`
}

// DescribeLevel builds the LevelInfo for totalPoints.
func DescribeLevel(lv Leveling, totalPoints int64) LevelInfo {
	lvl := lv.Level(totalPoints)
	return LevelInfo{
		Level:           lvl,
		CurrentLevelMin: lv.PointsForLevel(lvl),
		NextLevelMin:    lv.PointsForLevel(lvl + 1),
		Progress:        LevelProgress(lv, totalPoints),
	}
}
