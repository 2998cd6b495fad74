package activity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mikepolyak/fitness-vibe-sub002/internal/db"
	"github.com/mikepolyak/fitness-vibe-sub002/internal/gamification"
)

// Rewarder applies the gamification outcome of a completed workout on
// the completion transaction. Implemented by gamification.Service.
type Rewarder interface {
	Apply(ctx context.Context, q db.Querier, w gamification.WorkoutSummary) (gamification.RewardDecision, error)
	Publish(ctx context.Context, userID string, d gamification.RewardDecision)
}

// UserDirectory resolves the profile snapshot captured at session
// start.
type UserDirectory interface {
	Snapshot(ctx context.Context, userID string) (UserSnapshot, error)
}

// Publisher fans live events out to websocket watchers.
type Publisher interface {
	Broadcast(topic string, payload []byte)
}

type Service struct {
	db      db.Pool
	store   *Store
	mgr     *Manager
	rewards Rewarder
	users   UserDirectory
	hub     Publisher
	calc    *Calculator
	log     *slog.Logger
	now     func() time.Time
}

func NewService(pool db.Pool, store *Store, mgr *Manager, rewards Rewarder, users UserDirectory, hub Publisher, calc *Calculator, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	if calc == nil {
		calc = NewCalculator(0)
	}
	return &Service{
		db:      pool,
		store:   store,
		mgr:     mgr,
		rewards: rewards,
		users:   users,
		hub:     hub,
		calc:    calc,
		log:     log,
		now:     time.Now,
	}
}

func sessionTopic(id string) string { return "activity:" + id }
func userTopic(id string) string    { return "user:" + id }

type liveEvent struct {
	Type            string        `json:"type"`
	SessionID       string        `json:"session_id"`
	Status          SessionStatus `json:"status,omitempty"`
	Lat             float64       `json:"lat,omitempty"`
	Lon             float64       `json:"lon,omitempty"`
	DistanceKm      float64       `json:"distance_km,omitempty"`
	CurrentSpeedKmh float64       `json:"current_speed_kmh,omitempty"`
	ActiveMinutes   float64       `json:"active_minutes,omitempty"`
}

type rewardEvent struct {
	Type       string   `json:"type"`
	UserID     string   `json:"user_id"`
	SessionID  string   `json:"session_id"`
	TotalXP    int      `json:"total_xp"`
	XPAfter    int64    `json:"xp_after"`
	Level      int      `json:"level"`
	LeveledUp  bool     `json:"leveled_up"`
	Badges     []string `json:"badges,omitempty"`
	StreakDays int      `json:"streak_days"`
}

func (s *Service) broadcast(topic string, v any) {
	if s.hub == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	s.hub.Broadcast(topic, payload)
}

// Start begins a new session, or activates a planned one when the
// request names it. At most one live session per user: a second start
// fails with ErrConcurrentSession while the first stays untouched.
func (s *Service) Start(ctx context.Context, userID string, req StartRequest) (SessionView, error) {
	if userID == "" {
		return SessionView{}, fmt.Errorf("%w: user id required", ErrValidation)
	}
	if req.PlannedSessionID != "" {
		return s.startPlanned(ctx, userID, req.PlannedSessionID)
	}
	if req.ActivityType == "" {
		return SessionView{}, fmt.Errorf("%w: activity_type required", ErrValidation)
	}

	snap, err := s.users.Snapshot(ctx, userID)
	if err != nil {
		return SessionView{}, fmt.Errorf("load user: %w", err)
	}

	now := s.now()
	sess, err := s.mgr.StartUser(userID, func() (*Session, error) {
		ns := newSession(uuid.NewString(), userID, req.ActivityType, snap)
		ns.IsPublic = req.IsPublic
		ns.Tags = append([]string(nil), req.Tags...)
		if err := ns.begin(now); err != nil {
			return nil, err
		}
		return ns, nil
	})
	if err != nil {
		return SessionView{}, err
	}

	if err := s.store.InsertSession(ctx, s.db, sess); err != nil {
		s.mgr.Remove(sess.ID)
		return SessionView{}, fmt.Errorf("persist session: %w", err)
	}

	s.log.Info("session started",
		"session_id", sess.ID, "user_id", userID, "activity_type", sess.Type)
	return s.viewOf(sess.ID, now)
}

func (s *Service) startPlanned(ctx context.Context, userID, plannedID string) (SessionView, error) {
	snap, err := s.users.Snapshot(ctx, userID)
	if err != nil {
		return SessionView{}, fmt.Errorf("load user: %w", err)
	}

	if !s.mgr.Has(plannedID) {
		rec, err := s.store.GetSession(ctx, s.db, plannedID)
		if err != nil {
			return SessionView{}, err
		}
		if rec.UserID != userID || rec.Status != StatusPlanned {
			return SessionView{}, fmt.Errorf("%w: planned session %s", ErrNotFound, plannedID)
		}
		ns := newSession(plannedID, userID, rec.Type, snap)
		ns.Status = StatusPlanned
		ns.PlannedStart = rec.PlannedStart
		ns.IsPublic = rec.IsPublic
		ns.Tags = rec.Tags
		s.mgr.Adopt(ns)
	}

	now := s.now()
	sess, err := s.mgr.ActivatePlanned(userID, plannedID, func(ss *Session) error {
		// Refresh the profile snapshot: weight at start time beats
		// weight at plan time for the calorie math.
		ss.weightKg = snap.WeightKg
		ss.userSince = snap.CreatedAt
		return ss.begin(now)
	})
	if err != nil {
		return SessionView{}, err
	}

	if err := s.store.MarkStarted(ctx, s.db, plannedID, now); err != nil {
		s.mgr.Remove(plannedID)
		return SessionView{}, fmt.Errorf("persist session start: %w", err)
	}

	s.log.Info("planned session started",
		"session_id", sess.ID, "user_id", userID, "activity_type", sess.Type)
	return s.viewOf(plannedID, now)
}

// Plan records a future session. Planned sessions hold no live slot
// until started.
func (s *Service) Plan(ctx context.Context, userID string, req PlanRequest) (SessionView, error) {
	if userID == "" {
		return SessionView{}, fmt.Errorf("%w: user id required", ErrValidation)
	}
	if req.ActivityType == "" {
		return SessionView{}, fmt.Errorf("%w: activity_type required", ErrValidation)
	}
	if req.PlannedStart.IsZero() {
		return SessionView{}, fmt.Errorf("%w: planned_start required", ErrValidation)
	}

	ns := newSession(uuid.NewString(), userID, req.ActivityType, UserSnapshot{})
	ns.Status = StatusPlanned
	start := req.PlannedStart
	ns.PlannedStart = &start
	ns.IsPublic = req.IsPublic
	ns.Tags = append([]string(nil), req.Tags...)

	if err := s.store.InsertSession(ctx, s.db, ns); err != nil {
		return SessionView{}, fmt.Errorf("persist plan: %w", err)
	}
	s.mgr.Adopt(ns)

	s.log.Info("session planned",
		"session_id", ns.ID, "user_id", userID, "activity_type", ns.Type)
	return ns.view(s.now(), s.calc), nil
}

func (s *Service) ListPlans(ctx context.Context, userID string) ([]SessionView, error) {
	recs, err := s.store.ListPlanned(ctx, s.db, userID)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	return views(recs), nil
}

func (s *Service) DeletePlan(ctx context.Context, userID, id string) error {
	if err := s.store.DeletePlanned(ctx, s.db, userID, id); err != nil {
		return err
	}
	s.mgr.Remove(id)
	return nil
}

// AddPoint applies one GPS sample to an active session. Stale points
// (timestamp not after the previous one) are acknowledged but ignored.
func (s *Service) AddPoint(_ context.Context, userID, sessionID string, req PointRequest) (PointResponse, error) {
	now := s.now()
	var resp PointResponse
	var event *liveEvent

	err := s.mgr.WithSession(sessionID, func(ss *Session) error {
		if ss.UserID != userID {
			return fmt.Errorf("%w: %s", ErrNotFound, sessionID)
		}
		accepted, err := ss.addPoint(RoutePoint{
			Lat:        req.Lat,
			Lon:        req.Lon,
			ElevationM: req.ElevationM,
			SpeedKmh:   req.SpeedKmh,
			AccuracyM:  req.AccuracyM,
			RecordedAt: req.RecordedAt,
		}, now, s.calc)
		if err != nil {
			return err
		}
		resp = PointResponse{
			Accepted:        accepted,
			DistanceKm:      ss.Stats.DistanceKm,
			CurrentSpeedKmh: ss.currentSpeedKmh,
			PointCount:      ss.Stats.PointCount,
		}
		if accepted {
			event = &liveEvent{
				Type:            "route_point",
				SessionID:       sessionID,
				Lat:             req.Lat,
				Lon:             req.Lon,
				DistanceKm:      ss.Stats.DistanceKm,
				CurrentSpeedKmh: ss.currentSpeedKmh,
				ActiveMinutes:   ss.Stats.ActiveMinutes,
			}
		}
		return nil
	})
	if err != nil {
		return PointResponse{}, err
	}
	if event != nil {
		s.broadcast(sessionTopic(sessionID), event)
	}
	return resp, nil
}

func (s *Service) Pause(ctx context.Context, userID, sessionID string) (TransitionResponse, error) {
	return s.transition(ctx, userID, sessionID, StatusPaused, (*Session).pauseAt)
}

func (s *Service) Resume(ctx context.Context, userID, sessionID string) (TransitionResponse, error) {
	return s.transition(ctx, userID, sessionID, StatusActive, (*Session).resumeAt)
}

func (s *Service) transition(_ context.Context, userID, sessionID string, target SessionStatus, apply func(*Session, time.Time) error) (TransitionResponse, error) {
	now := s.now()
	var resp TransitionResponse

	err := s.mgr.WithSession(sessionID, func(ss *Session) error {
		if ss.UserID != userID {
			return fmt.Errorf("%w: %s", ErrNotFound, sessionID)
		}
		if err := apply(ss, now); err != nil {
			return err
		}
		ss.refreshDerived(now, s.calc)
		resp = TransitionResponse{
			SessionID:     sessionID,
			Status:        ss.Status,
			At:            now,
			ActiveMinutes: ss.Stats.ActiveMinutes,
			PausedMinutes: ss.Stats.PausedMinutes,
		}
		return nil
	})
	if err != nil {
		return TransitionResponse{}, err
	}

	s.broadcast(sessionTopic(sessionID), liveEvent{
		Type:      "status",
		SessionID: sessionID,
		Status:    target,
	})
	return resp, nil
}

// Complete finalizes a live session: metrics are frozen, the session
// row, route and reward all commit in one transaction, and only then is
// the in-memory state flipped. Completing an already-completed session
// replays the stored outcome instead of erroring.
func (s *Service) Complete(ctx context.Context, userID, sessionID string, req CompleteRequest) (CompleteResponse, error) {
	now := s.now()
	var resp CompleteResponse
	var replayed bool
	var reward gamification.RewardDecision

	err := s.mgr.WithSession(sessionID, func(ss *Session) error {
		if ss.UserID != userID {
			return fmt.Errorf("%w: %s", ErrNotFound, sessionID)
		}
		if ss.Status == StatusCompleted {
			replayed = true
			resp = CompleteResponse{Session: ss.view(now, s.calc), Reward: ss.reward}
			return nil
		}

		end, stats, err := ss.prepareCompletion(req, now, s.calc)
		if err != nil {
			return err
		}

		summary := gamification.WorkoutSummary{
			SessionID:        ss.ID,
			UserID:           ss.UserID,
			Category:         string(ss.Type.Category()),
			ActiveMinutes:    stats.ActiveMinutes,
			DistanceKm:       stats.DistanceKm,
			CompletedAt:      end,
			AccountCreatedAt: ss.userSince,
			MultiplierPct:    req.XPMultiplierPct,
		}

		tx, err := s.db.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin completion tx: %w", err)
		}
		defer func() { _ = tx.Rollback(ctx) }()

		reward, err = s.rewards.Apply(ctx, tx, summary)
		if err != nil {
			return fmt.Errorf("apply reward: %w", err)
		}
		if err := s.store.FinalizeSession(ctx, tx, ss.ID, end, stats, req, &reward); err != nil {
			return err
		}
		if err := s.store.InsertRoutePoints(ctx, tx, ss.ID, ss.Route); err != nil {
			return fmt.Errorf("save route: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit completion: %w", err)
		}

		ss.markCompleted(end, stats, req, &reward)
		resp = CompleteResponse{Session: ss.view(now, s.calc), Reward: &reward}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return s.completeFromStore(ctx, userID, sessionID)
		}
		return CompleteResponse{}, err
	}
	if replayed {
		return resp, nil
	}

	s.mgr.Remove(sessionID)
	s.rewards.Publish(ctx, userID, reward)

	s.broadcast(sessionTopic(sessionID), liveEvent{
		Type:      "status",
		SessionID: sessionID,
		Status:    StatusCompleted,
	})
	badgeIDs := make([]string, 0, len(reward.Badges))
	for _, b := range reward.Badges {
		badgeIDs = append(badgeIDs, b.ID)
	}
	s.broadcast(userTopic(userID), rewardEvent{
		Type:       "reward",
		UserID:     userID,
		SessionID:  sessionID,
		TotalXP:    reward.TotalXP,
		XPAfter:    reward.XPAfter,
		Level:      reward.Level,
		LeveledUp:  reward.LeveledUp,
		Badges:     badgeIDs,
		StreakDays: reward.StreakDays,
	})

	s.log.Info("session completed",
		"session_id", sessionID, "user_id", userID,
		"distance_km", resp.Session.Stats.DistanceKm,
		"active_minutes", resp.Session.Stats.ActiveMinutes,
		"total_xp", reward.TotalXP)
	return resp, nil
}

// completeFromStore handles Complete for sessions absent from memory:
// already-terminal rows replay or reject, live rows lost to a restart
// surface as not found.
func (s *Service) completeFromStore(ctx context.Context, userID, sessionID string) (CompleteResponse, error) {
	rec, err := s.store.GetSession(ctx, s.db, sessionID)
	if err != nil {
		return CompleteResponse{}, err
	}
	if rec.UserID != userID {
		return CompleteResponse{}, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	switch rec.Status {
	case StatusCompleted:
		return CompleteResponse{Session: rec.SessionView, Reward: rec.Reward}, nil
	case StatusCancelled:
		return CompleteResponse{}, fmt.Errorf("%w: session was cancelled", ErrInvalidState)
	default:
		return CompleteResponse{}, fmt.Errorf("%w: session state no longer available", ErrNotFound)
	}
}

// Cancel abandons a live session. Partial metrics and the route are
// kept for reference, but no reward is ever granted.
func (s *Service) Cancel(ctx context.Context, userID, sessionID string, req CancelRequest) (CancelResponse, error) {
	now := s.now()
	var resp CancelResponse

	err := s.mgr.WithSession(sessionID, func(ss *Session) error {
		if ss.UserID != userID {
			return fmt.Errorf("%w: %s", ErrNotFound, sessionID)
		}
		stats, err := ss.prepareCancel(now, s.calc)
		if err != nil {
			return err
		}

		tx, err := s.db.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin cancel tx: %w", err)
		}
		defer func() { _ = tx.Rollback(ctx) }()

		if err := s.store.CancelSession(ctx, tx, ss.ID, now, stats, req.Reason); err != nil {
			return err
		}
		if err := s.store.InsertRoutePoints(ctx, tx, ss.ID, ss.Route); err != nil {
			return fmt.Errorf("save route: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit cancel: %w", err)
		}

		ss.markCancelled(now, stats, req.Reason)
		resp = CancelResponse{Session: ss.view(now, s.calc)}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return s.cancelFromStore(ctx, userID, sessionID)
		}
		return CancelResponse{}, err
	}

	s.mgr.Remove(sessionID)
	s.broadcast(sessionTopic(sessionID), liveEvent{
		Type:      "status",
		SessionID: sessionID,
		Status:    StatusCancelled,
	})
	s.log.Info("session cancelled",
		"session_id", sessionID, "user_id", userID, "reason", req.Reason)
	return resp, nil
}

func (s *Service) cancelFromStore(ctx context.Context, userID, sessionID string) (CancelResponse, error) {
	rec, err := s.store.GetSession(ctx, s.db, sessionID)
	if err != nil {
		return CancelResponse{}, err
	}
	if rec.UserID != userID {
		return CancelResponse{}, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	if rec.Status.Terminal() {
		return CancelResponse{}, fmt.Errorf("%w: session already %s", ErrInvalidState, rec.Status)
	}
	return CancelResponse{}, fmt.Errorf("%w: session state no longer available", ErrNotFound)
}

// Get returns the caller's session, live or persisted.
func (s *Service) Get(ctx context.Context, userID, sessionID string) (SessionView, error) {
	if s.mgr.Has(sessionID) {
		var view SessionView
		err := s.mgr.WithSession(sessionID, func(ss *Session) error {
			if ss.UserID != userID {
				return fmt.Errorf("%w: %s", ErrNotFound, sessionID)
			}
			view = ss.view(s.now(), s.calc)
			return nil
		})
		if err == nil {
			return view, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return SessionView{}, err
		}
	}

	rec, err := s.store.GetSession(ctx, s.db, sessionID)
	if err != nil {
		return SessionView{}, err
	}
	if rec.UserID != userID {
		return SessionView{}, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	return rec.SessionView, nil
}

// Live returns the user's current live session, if any.
func (s *Service) Live(_ context.Context, userID string) (SessionView, bool) {
	id, ok := s.mgr.LiveSessionID(userID)
	if !ok {
		return SessionView{}, false
	}
	view, err := s.viewOf(id, s.now())
	if err != nil {
		return SessionView{}, false
	}
	return view, true
}

func (s *Service) ListCompleted(ctx context.Context, userID string, limit int) ([]SessionView, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	recs, err := s.store.ListCompleted(ctx, s.db, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return views(recs), nil
}

// ExportGPX renders a completed session's route as a GPX 1.1 document.
func (s *Service) ExportGPX(ctx context.Context, userID, sessionID string) ([]byte, string, error) {
	rec, err := s.store.GetSession(ctx, s.db, sessionID)
	if err != nil {
		return nil, "", err
	}
	if rec.UserID != userID {
		return nil, "", fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	if rec.Status != StatusCompleted {
		return nil, "", fmt.Errorf("%w: only completed sessions export", ErrInvalidState)
	}
	pts, err := s.store.RoutePoints(ctx, s.db, sessionID)
	if err != nil {
		return nil, "", fmt.Errorf("load route: %w", err)
	}
	data, err := buildGPX(rec, pts)
	if err != nil {
		return nil, "", fmt.Errorf("render gpx: %w", err)
	}
	return data, fmt.Sprintf("%s-%s.gpx", rec.Type, sessionID[:8]), nil
}

func (s *Service) viewOf(sessionID string, now time.Time) (SessionView, error) {
	var view SessionView
	err := s.mgr.WithSession(sessionID, func(ss *Session) error {
		view = ss.view(now, s.calc)
		return nil
	})
	return view, err
}

func views(recs []SessionRecord) []SessionView {
	out := make([]SessionView, len(recs))
	for i, rec := range recs {
		out[i] = rec.SessionView
	}
	return out
}
