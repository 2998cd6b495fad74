package gamification

import (
	"fmt"
	"time"
)

const (
	earlyBirdHour = 8
	newUserWindow = 30 * 24 * time.Hour
	xpPerKm       = 10
)

// categoryXP is the flat XP added to the base for each activity
// category.
var categoryXP = map[string]int{
	"outdoor":     12,
	"cardio":      5,
	"strength":    8,
	"flexibility": 3,
}

var defaultMessages = []string{
	"Nice work. See you tomorrow?",
	"Another one in the books.",
	"Consistency beats intensity. You have both today.",
	"Your future self says thanks.",
	"That was strong. Recover well.",
}

// Engine turns a workout summary plus the user's prior state into a
// reward decision. It is pure: no clock, no I/O, so the same input
// always produces the same decision.
type Engine struct {
	catalog  *Catalog
	loc      *time.Location
	messages []string
}

// NewEngine accepts a nil catalog, which disables badge awards.
func NewEngine(catalog *Catalog, loc *time.Location) *Engine {
	if loc == nil {
		loc = time.Local
	}
	return &Engine{catalog: catalog, loc: loc, messages: defaultMessages}
}

// Input is everything Evaluate needs about the user before this
// workout. Owned holds badge ids already granted; SkipBadges suppresses
// badge evaluation when the owned set could not be loaded.
type Input struct {
	Workout        WorkoutSummary
	XPBefore       int64
	WorkoutsBefore int64
	Streak         StreakState
	Owned          map[string]bool
	SkipBadges     bool
}

// Evaluate computes the reward and the advanced streak state.
//
// Base XP is 1 per active minute plus 10 per kilometer plus the
// category bonus, each addend truncated. Every percentage bonus applies
// to the base independently (no compounding) and is truncated before
// summing. The streak bonus scales off the streak as it stood before
// this workout.
func (e *Engine) Evaluate(in Input) (RewardDecision, StreakState) {
	w := in.Workout
	day := DayOf(w.CompletedAt, e.loc)
	local := w.CompletedAt.In(e.loc)

	base := int(w.ActiveMinutes) + int(xpPerKm*w.DistanceKm) + categoryXP[w.Category]
	if base < 0 {
		base = 0
	}

	var bonuses []BonusXP
	add := func(source string, pct float64) {
		if xp := int(float64(base) * pct); xp > 0 {
			bonuses = append(bonuses, BonusXP{Source: source, XP: xp})
		}
	}

	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		add("weekend", 0.50)
	}
	if local.Hour() < earlyBirdHour {
		add("early_bird", 0.25)
	}
	if prior := in.Streak.CurrentAsOf(day); prior > 0 {
		pct := float64(prior) / 7 * 0.10
		if pct > 1 {
			pct = 1
		}
		add("streak", pct)
	}
	if !w.AccountCreatedAt.IsZero() && w.CompletedAt.Sub(w.AccountCreatedAt) < newUserWindow {
		add("new_user", 0.20)
	}
	if w.MultiplierPct > 100 {
		add("multiplier", float64(w.MultiplierPct-100)/100)
	}

	total := base
	for _, b := range bonuses {
		total += b.XP
	}

	xpAfter := in.XPBefore + int64(total)
	levelBefore := LevelForXP(in.XPBefore)
	levelAfter := LevelForXP(xpAfter)

	streak := Advance(in.Streak, day)

	d := RewardDecision{
		BaseXP:     base,
		Bonuses:    bonuses,
		TotalXP:    total,
		XPAfter:    xpAfter,
		Level:      levelAfter,
		LeveledUp:  levelAfter > levelBefore,
		StreakDays: streak.Current,
	}
	if d.LeveledUp {
		d.Title = TitleForLevel(levelAfter)
		for lvl := levelBefore + 1; lvl <= levelAfter; lvl++ {
			d.Unlocked = append(d.Unlocked, FeaturesForLevel(lvl)...)
		}
	}

	if e.catalog != nil && !in.SkipBadges {
		before := Totals{
			XP:       in.XPBefore,
			Workouts: in.WorkoutsBefore,
			Streak:   in.Streak.CurrentAsOf(day),
		}
		after := Totals{
			XP:       xpAfter,
			Workouts: in.WorkoutsBefore + 1,
			Streak:   streak.Current,
		}
		d.Badges = e.catalog.NewlyEarned(before, after, in.Owned)
	}

	d.Message = e.message(d)
	return d, streak
}

// message picks deterministically so a replayed completion reads the
// same as the original.
func (e *Engine) message(d RewardDecision) string {
	if d.LeveledUp {
		return fmt.Sprintf("Level %d reached. %s suits you.", d.Level, d.Title)
	}
	if len(d.Badges) > 0 {
		return fmt.Sprintf("Badge earned: %s!", d.Badges[0].Name)
	}
	if len(e.messages) == 0 {
		return ""
	}
	return e.messages[int(d.XPAfter%int64(len(e.messages)))]
}
