package gamification

import (
	"sort"
	"time"
)

// StreakState tracks consecutive activity days. Current is the length
// of the run ending at LastDay; callers wanting "the streak as of
// today" go through CurrentAsOf, which treats a run that ended before
// yesterday as broken. All day values are calendar dates normalized to
// midnight UTC.
type StreakState struct {
	Current int       `json:"current"`
	Longest int       `json:"longest"`
	LastDay time.Time `json:"last_day,omitempty"`
}

// DayOf returns t's calendar date as observed in loc, normalized to
// midnight UTC so dates compare with Equal and step with AddDate.
func DayOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// CurrentAsOf returns the live streak length: the stored run if it
// ended today or yesterday, otherwise 0.
func (s StreakState) CurrentAsOf(today time.Time) int {
	if s.LastDay.IsZero() {
		return 0
	}
	if s.LastDay.Equal(today) || s.LastDay.AddDate(0, 0, 1).Equal(today) {
		return s.Current
	}
	return 0
}

// Advance folds one activity day into the state. Same-day repeats and
// out-of-order days leave the state untouched; a gap of more than one
// day resets the run to 1.
func Advance(s StreakState, day time.Time) StreakState {
	switch {
	case s.LastDay.IsZero():
		s.Current = 1
	case day.Equal(s.LastDay) || day.Before(s.LastDay):
		return s
	case day.Equal(s.LastDay.AddDate(0, 0, 1)):
		s.Current++
	default:
		s.Current = 1
	}
	s.LastDay = day
	if s.Current > s.Longest {
		s.Longest = s.Current
	}
	return s
}

// FromHistory rebuilds streak state from a full list of activity days
// in one pass. Input days may be unsorted and contain duplicates or
// arbitrary times of day.
func FromHistory(days []time.Time) StreakState {
	uniq := make(map[time.Time]struct{}, len(days))
	for _, d := range days {
		y, m, dd := d.Date()
		uniq[time.Date(y, m, dd, 0, 0, 0, 0, time.UTC)] = struct{}{}
	}
	if len(uniq) == 0 {
		return StreakState{}
	}

	sorted := make([]time.Time, 0, len(uniq))
	for d := range uniq {
		sorted = append(sorted, d)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	st := StreakState{LastDay: sorted[len(sorted)-1]}
	run := 0
	for i, d := range sorted {
		if i > 0 && d.Equal(sorted[i-1].AddDate(0, 0, 1)) {
			run++
		} else {
			run = 1
		}
		if run > st.Longest {
			st.Longest = run
		}
	}
	st.Current = run
	return st
}
