package gamification

import "math"

// Levels follow a quadratic curve: stepping from level N to N+1 costs
// 100*N XP, so the cumulative XP needed to sit at level L is
// 50*L*(L-1). Levels only ever go up.

const levelStepXP = 100

// XPForLevel returns the cumulative XP floor of a level.
func XPForLevel(level int) int64 {
	if level <= 1 {
		return 0
	}
	l := int64(level)
	return levelStepXP / 2 * l * (l - 1)
}

// LevelForXP returns the highest level whose floor is at or below xp.
func LevelForXP(xp int64) int {
	if xp <= 0 {
		return 1
	}
	// Closed-form estimate from 50*L*(L-1) <= xp, then correct for
	// float rounding at the boundaries.
	level := int((1 + math.Sqrt(1+0.08*float64(xp))) / 2)
	if level < 1 {
		level = 1
	}
	for XPForLevel(level+1) <= xp {
		level++
	}
	for level > 1 && XPForLevel(level) > xp {
		level--
	}
	return level
}

// LevelWindow bounds one level: FloorXP is its entry threshold, CeilXP
// the next level's.
type LevelWindow struct {
	Level   int
	FloorXP int64
	CeilXP  int64
}

func WindowForXP(xp int64) LevelWindow {
	level := LevelForXP(xp)
	return LevelWindow{
		Level:   level,
		FloorXP: XPForLevel(level),
		CeilXP:  XPForLevel(level + 1),
	}
}

var levelTitles = []struct {
	level int
	title string
}{
	{1, "Beginner"},
	{5, "Regular"},
	{10, "Enthusiast"},
	{15, "Athlete"},
	{20, "Competitor"},
	{30, "Champion"},
	{40, "Elite"},
	{50, "Legend"},
}

// TitleForLevel returns the highest milestone title at or below level.
func TitleForLevel(level int) string {
	title := levelTitles[0].title
	for _, t := range levelTitles {
		if level < t.level {
			break
		}
		title = t.title
	}
	return title
}

var levelFeatures = map[int][]string{
	3:  {"custom_tags"},
	5:  {"leaderboard"},
	10: {"advanced_insights"},
	20: {"coach_mode"},
}

// FeaturesForLevel returns the features unlocked exactly at level.
func FeaturesForLevel(level int) []string {
	return levelFeatures[level]
}
