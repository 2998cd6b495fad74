package activity

import (
	"fmt"
	"time"

	"github.com/mikepolyak/fitness-vibe-sub002/internal/gamification"
	"github.com/mikepolyak/fitness-vibe-sub002/internal/shared/geo"
)

// speedWindowSize is the number of trailing route points used to smooth
// the current-speed estimate when the device sends no speed of its own.
const speedWindowSize = 5

func newSession(id, userID string, t ActivityType, snap UserSnapshot) *Session {
	return &Session{
		ID:        id,
		UserID:    userID,
		Type:      t,
		weightKg:  snap.WeightKg,
		userSince: snap.CreatedAt,
	}
}

// begin moves a fresh or planned session into the active state.
func (s *Session) begin(now time.Time) error {
	if s.Status != "" && s.Status != StatusPlanned {
		return fmt.Errorf("%w: cannot start a %s session", ErrInvalidState, s.Status)
	}
	s.Status = StatusActive
	s.StartedAt = now
	return nil
}

// addPoint validates and applies one GPS sample. A point whose timestamp
// does not advance past the previous point is dropped without error and
// reported as accepted=false.
func (s *Session) addPoint(p RoutePoint, now time.Time, calc *Calculator) (bool, error) {
	if s.Status != StatusActive {
		return false, fmt.Errorf("%w: cannot record points while %s", ErrInvalidState, s.Status)
	}
	if !geo.ValidLatLon(p.Lat, p.Lon) {
		return false, fmt.Errorf("%w: coordinates out of range", ErrValidation)
	}
	if p.SpeedKmh != nil && *p.SpeedKmh < 0 {
		return false, fmt.Errorf("%w: negative speed", ErrValidation)
	}
	if p.AccuracyM != nil && *p.AccuracyM < 0 {
		return false, fmt.Errorf("%w: negative accuracy", ErrValidation)
	}
	if p.RecordedAt.IsZero() {
		p.RecordedAt = now
	}
	if n := len(s.Route); n > 0 && !p.RecordedAt.After(s.Route[n-1].RecordedAt) {
		return false, nil
	}

	if n := len(s.Route); n > 0 {
		last := s.Route[n-1]
		s.Stats.DistanceKm += geo.HaversineKm(last.Lat, last.Lon, p.Lat, p.Lon)
		if last.ElevationM != nil && p.ElevationM != nil && *p.ElevationM > *last.ElevationM {
			s.Stats.ElevationGainM += *p.ElevationM - *last.ElevationM
		}
	}
	s.Route = append(s.Route, p)
	s.Stats.PointCount = len(s.Route)

	s.window = append(s.window, p)
	if len(s.window) > speedWindowSize {
		s.window = s.window[1:]
	}
	s.currentSpeedKmh = s.windowSpeedKmh(p)
	if s.currentSpeedKmh > s.Stats.MaxSpeedKmh {
		s.Stats.MaxSpeedKmh = s.currentSpeedKmh
	}

	s.refreshDerived(now, calc)
	return true, nil
}

func (s *Session) windowSpeedKmh(p RoutePoint) float64 {
	if p.SpeedKmh != nil {
		return *p.SpeedKmh
	}
	if len(s.window) < 2 {
		return 0
	}
	var dist float64
	for i := 1; i < len(s.window); i++ {
		a, b := s.window[i-1], s.window[i]
		dist += geo.HaversineKm(a.Lat, a.Lon, b.Lat, b.Lon)
	}
	elapsed := s.window[len(s.window)-1].RecordedAt.Sub(s.window[0].RecordedAt)
	if elapsed <= 0 {
		return 0
	}
	return dist / elapsed.Hours()
}

func (s *Session) pauseAt(now time.Time) error {
	if s.Status != StatusActive {
		return fmt.Errorf("%w: cannot pause while %s", ErrInvalidState, s.Status)
	}
	s.Status = StatusPaused
	s.Pauses = append(s.Pauses, PauseInterval{PausedAt: now})
	return nil
}

func (s *Session) resumeAt(now time.Time) error {
	if s.Status != StatusPaused {
		return fmt.Errorf("%w: cannot resume while %s", ErrInvalidState, s.Status)
	}
	s.Status = StatusActive
	if n := len(s.Pauses); n > 0 && s.Pauses[n-1].ResumedAt.IsZero() {
		s.Pauses[n-1].ResumedAt = now
	}
	// A fresh window after a pause avoids phantom speed spikes from the
	// positional jump across the gap.
	s.window = nil
	s.currentSpeedKmh = 0
	return nil
}

// prepareCompletion validates the request and computes the final stats
// without mutating the session. The caller persists first and applies
// markCompleted only after the transaction commits.
func (s *Session) prepareCompletion(req CompleteRequest, now time.Time, calc *Calculator) (time.Time, Stats, error) {
	if !s.Status.Live() {
		return time.Time{}, Stats{}, fmt.Errorf("%w: cannot complete a %s session", ErrInvalidState, s.Status)
	}
	end := now
	if req.EndTime != nil {
		end = *req.EndTime
	}
	if end.Before(s.StartedAt) {
		return time.Time{}, Stats{}, fmt.Errorf("%w: end time precedes session start", ErrValidation)
	}
	if req.PerceivedExertion != nil && (*req.PerceivedExertion < 1 || *req.PerceivedExertion > 5) {
		return time.Time{}, Stats{}, fmt.Errorf("%w: perceived exertion must be between 1 and 5", ErrValidation)
	}
	if req.DistanceKmOverride != nil && *req.DistanceKmOverride < 0 {
		return time.Time{}, Stats{}, fmt.Errorf("%w: negative distance override", ErrValidation)
	}
	if req.CaloriesOverride != nil && *req.CaloriesOverride < 0 {
		return time.Time{}, Stats{}, fmt.Errorf("%w: negative calorie override", ErrValidation)
	}
	if req.XPMultiplierPct < 0 {
		return time.Time{}, Stats{}, fmt.Errorf("%w: negative xp multiplier", ErrValidation)
	}
	return end, s.statsAsOf(end, calc, req.DistanceKmOverride, req.CaloriesOverride), nil
}

func (s *Session) markCompleted(end time.Time, stats Stats, req CompleteRequest, reward *gamification.RewardDecision) {
	s.closeOpenPause(end)
	s.EndedAt = end
	s.Stats = stats
	if req.PerceivedExertion != nil {
		s.PerceivedExertion = *req.PerceivedExertion
	}
	if req.Notes != "" {
		s.Notes = req.Notes
	}
	s.Status = StatusCompleted
	s.reward = reward
}

func (s *Session) prepareCancel(now time.Time, calc *Calculator) (Stats, error) {
	if !s.Status.Live() {
		return Stats{}, fmt.Errorf("%w: cannot cancel a %s session", ErrInvalidState, s.Status)
	}
	return s.statsAsOf(now, calc, nil, nil), nil
}

func (s *Session) markCancelled(end time.Time, stats Stats, reason string) {
	s.closeOpenPause(end)
	s.EndedAt = end
	s.Stats = stats
	s.CancelReason = reason
	s.Status = StatusCancelled
}

func (s *Session) closeOpenPause(at time.Time) {
	if n := len(s.Pauses); n > 0 && s.Pauses[n-1].ResumedAt.IsZero() {
		s.Pauses[n-1].ResumedAt = at
	}
}

// pausedDurationUntil sums pause time overlapping [StartedAt, t]. An
// open pause counts up to t.
func (s *Session) pausedDurationUntil(t time.Time) time.Duration {
	var total time.Duration
	for _, p := range s.Pauses {
		start := p.PausedAt
		if start.After(t) {
			continue
		}
		end := p.ResumedAt
		if end.IsZero() || end.After(t) {
			end = t
		}
		if end.After(start) {
			total += end.Sub(start)
		}
	}
	return total
}

func (s *Session) activeDurationUntil(t time.Time) time.Duration {
	if s.StartedAt.IsZero() || t.Before(s.StartedAt) {
		return 0
	}
	active := t.Sub(s.StartedAt) - s.pausedDurationUntil(t)
	if active < 0 {
		return 0
	}
	return active
}

func (s *Session) statsAsOf(t time.Time, calc *Calculator, distOverride, calOverride *float64) Stats {
	active := s.activeDurationUntil(t)
	st := Stats{
		DistanceKm:     s.Stats.DistanceKm,
		ActiveMinutes:  active.Minutes(),
		PausedMinutes:  s.pausedDurationUntil(t).Minutes(),
		MaxSpeedKmh:    s.Stats.MaxSpeedKmh,
		ElevationGainM: s.Stats.ElevationGainM,
		PointCount:     len(s.Route),
	}
	if distOverride != nil {
		st.DistanceKm = *distOverride
	}
	if v, ok := SpeedKmh(st.DistanceKm, active.Hours()); ok {
		st.AvgSpeedKmh = &v
	}
	if v, ok := PaceMinPerKm(st.DistanceKm, st.ActiveMinutes); ok {
		st.PaceMinPerKm = &v
	}
	st.Calories = calc.Calories(s.Type, s.weightKg, active.Hours())
	if calOverride != nil {
		st.Calories = *calOverride
	}
	return st
}

func (s *Session) refreshDerived(now time.Time, calc *Calculator) {
	s.Stats = s.statsAsOf(now, calc, nil, nil)
}

func (s *Session) view(now time.Time, calc *Calculator) SessionView {
	v := SessionView{
		ID:                s.ID,
		UserID:            s.UserID,
		Type:              s.Type,
		Status:            s.Status,
		IsPublic:          s.IsPublic,
		Tags:              append([]string(nil), s.Tags...),
		PlannedStart:      s.PlannedStart,
		Notes:             s.Notes,
		CancelReason:      s.CancelReason,
		PerceivedExertion: s.PerceivedExertion,
		Stats:             s.Stats,
	}
	if !s.StartedAt.IsZero() {
		t := s.StartedAt
		v.StartedAt = &t
	}
	if !s.EndedAt.IsZero() {
		t := s.EndedAt
		v.EndedAt = &t
	}
	if s.Status.Live() {
		v.Stats = s.statsAsOf(now, calc, nil, nil)
	}
	return v
}
