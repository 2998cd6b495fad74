package activity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/mikepolyak/fitness-vibe-sub002/internal/db"
	"github.com/mikepolyak/fitness-vibe-sub002/internal/gamification"
)

// Store is stateless; methods take the Querier to run against so
// finalization writes can share the completion transaction.
type Store struct{}

func NewStore() *Store {
	return &Store{}
}

// SessionRecord is a persisted session as read back from the database,
// including the reward decision stored at completion time.
type SessionRecord struct {
	SessionView
	Reward *gamification.RewardDecision
}

// InsertSession writes the initial row for a new session, live or
// planned.
func (st *Store) InsertSession(ctx context.Context, q db.Querier, s *Session) error {
	var startedAt any
	if !s.StartedAt.IsZero() {
		startedAt = s.StartedAt
	}
	tags := s.Tags
	if tags == nil {
		tags = []string{}
	}
	_, err := q.Exec(ctx, `
		INSERT INTO activity_sessions (id, user_id, activity_type, status, is_public, tags, planned_start, started_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, s.ID, s.UserID, string(s.Type), string(s.Status), s.IsPublic, tags, s.PlannedStart, startedAt)
	return err
}

// MarkStarted flips a planned row to active. The row must still be
// planned; anything else means the plan was activated or removed in
// the meantime.
func (st *Store) MarkStarted(ctx context.Context, q db.Querier, id string, at time.Time) error {
	tag, err := q.Exec(ctx, `
		UPDATE activity_sessions
		SET status = 'active', started_at = $2, updated_at = now()
		WHERE id = $1 AND status = 'planned'
	`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: planned session %s", ErrNotFound, id)
	}
	return nil
}

// FinalizeSession writes the terminal completed state, stats and the
// reward decision onto the session row.
func (st *Store) FinalizeSession(ctx context.Context, q db.Querier, id string, end time.Time, stats Stats, req CompleteRequest, d *gamification.RewardDecision) error {
	reward, err := json.Marshal(d)
	if err != nil {
		return err
	}
	exertion := 0
	if req.PerceivedExertion != nil {
		exertion = *req.PerceivedExertion
	}
	tag, err := q.Exec(ctx, `
		UPDATE activity_sessions
		SET status = 'completed', ended_at = $2, notes = $3, perceived_exertion = $4,
		    distance_km = $5, active_minutes = $6, paused_minutes = $7,
		    avg_speed_kmh = $8, max_speed_kmh = $9, pace_min_per_km = $10,
		    elevation_gain_m = $11, calories = $12, point_count = $13,
		    reward = $14, updated_at = now()
		WHERE id = $1 AND status IN ('active','paused')
	`, id, end, req.Notes, exertion,
		stats.DistanceKm, stats.ActiveMinutes, stats.PausedMinutes,
		stats.AvgSpeedKmh, stats.MaxSpeedKmh, stats.PaceMinPerKm,
		stats.ElevationGainM, stats.Calories, stats.PointCount, reward)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: session %s is not live", ErrInvalidState, id)
	}
	return nil
}

// CancelSession writes the terminal cancelled state with whatever
// partial stats the session accumulated.
func (st *Store) CancelSession(ctx context.Context, q db.Querier, id string, end time.Time, stats Stats, reason string) error {
	tag, err := q.Exec(ctx, `
		UPDATE activity_sessions
		SET status = 'cancelled', ended_at = $2, cancel_reason = $3,
		    distance_km = $4, active_minutes = $5, paused_minutes = $6,
		    avg_speed_kmh = $7, max_speed_kmh = $8, pace_min_per_km = $9,
		    elevation_gain_m = $10, calories = $11, point_count = $12,
		    updated_at = now()
		WHERE id = $1 AND status IN ('active','paused')
	`, id, end, reason,
		stats.DistanceKm, stats.ActiveMinutes, stats.PausedMinutes,
		stats.AvgSpeedKmh, stats.MaxSpeedKmh, stats.PaceMinPerKm,
		stats.ElevationGainM, stats.Calories, stats.PointCount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: session %s is not live", ErrInvalidState, id)
	}
	return nil
}

// InsertRoutePoints bulk-copies the route at finalization time.
func (st *Store) InsertRoutePoints(ctx context.Context, tx pgx.Tx, sessionID string, pts []RoutePoint) error {
	if len(pts) == 0 {
		return nil
	}
	_, err := tx.CopyFrom(ctx,
		pgx.Identifier{"route_points"},
		[]string{"session_id", "seq", "lat", "lon", "elevation_m", "speed_kmh", "accuracy_m", "recorded_at"},
		pgx.CopyFromSlice(len(pts), func(i int) ([]any, error) {
			p := pts[i]
			return []any{sessionID, i, p.Lat, p.Lon, p.ElevationM, p.SpeedKmh, p.AccuracyM, p.RecordedAt}, nil
		}))
	return err
}

const sessionColumns = `
	id, user_id, activity_type, status, is_public, tags, planned_start, started_at, ended_at,
	notes, cancel_reason, perceived_exertion,
	distance_km, active_minutes, paused_minutes, avg_speed_kmh, max_speed_kmh, pace_min_per_km,
	elevation_gain_m, calories, point_count, reward`

func scanSession(row pgx.Row) (SessionRecord, error) {
	var rec SessionRecord
	var rewardJSON []byte
	err := row.Scan(
		&rec.ID, &rec.UserID, &rec.Type, &rec.Status, &rec.IsPublic, &rec.Tags,
		&rec.PlannedStart, &rec.StartedAt, &rec.EndedAt,
		&rec.Notes, &rec.CancelReason, &rec.PerceivedExertion,
		&rec.Stats.DistanceKm, &rec.Stats.ActiveMinutes, &rec.Stats.PausedMinutes,
		&rec.Stats.AvgSpeedKmh, &rec.Stats.MaxSpeedKmh, &rec.Stats.PaceMinPerKm,
		&rec.Stats.ElevationGainM, &rec.Stats.Calories, &rec.Stats.PointCount,
		&rewardJSON)
	if err != nil {
		return SessionRecord{}, err
	}
	if len(rewardJSON) > 0 {
		var d gamification.RewardDecision
		if err := json.Unmarshal(rewardJSON, &d); err != nil {
			return SessionRecord{}, fmt.Errorf("decode stored reward: %w", err)
		}
		rec.Reward = &d
	}
	return rec, nil
}

func (st *Store) GetSession(ctx context.Context, q db.Querier, id string) (SessionRecord, error) {
	row := q.QueryRow(ctx, `SELECT`+sessionColumns+` FROM activity_sessions WHERE id = $1`, id)
	rec, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return SessionRecord{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, err
}

func (st *Store) listSessions(ctx context.Context, q db.Querier, sql string, args ...any) ([]SessionRecord, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (st *Store) ListCompleted(ctx context.Context, q db.Querier, userID string, limit int) ([]SessionRecord, error) {
	return st.listSessions(ctx, q, `
		SELECT`+sessionColumns+` FROM activity_sessions
		WHERE user_id = $1 AND status = 'completed'
		ORDER BY ended_at DESC LIMIT $2
	`, userID, limit)
}

func (st *Store) ListPlanned(ctx context.Context, q db.Querier, userID string) ([]SessionRecord, error) {
	return st.listSessions(ctx, q, `
		SELECT`+sessionColumns+` FROM activity_sessions
		WHERE user_id = $1 AND status = 'planned'
		ORDER BY planned_start
	`, userID)
}

func (st *Store) DeletePlanned(ctx context.Context, q db.Querier, userID, id string) error {
	tag, err := q.Exec(ctx, `
		DELETE FROM activity_sessions
		WHERE id = $1 AND user_id = $2 AND status = 'planned'
	`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: planned session %s", ErrNotFound, id)
	}
	return nil
}

func (st *Store) RoutePoints(ctx context.Context, q db.Querier, sessionID string) ([]RoutePoint, error) {
	rows, err := q.Query(ctx, `
		SELECT lat, lon, elevation_m, speed_kmh, accuracy_m, recorded_at
		FROM route_points WHERE session_id = $1 ORDER BY seq
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pts []RoutePoint
	for rows.Next() {
		var p RoutePoint
		if err := rows.Scan(&p.Lat, &p.Lon, &p.ElevationM, &p.SpeedKmh, &p.AccuracyM, &p.RecordedAt); err != nil {
			return nil, err
		}
		pts = append(pts, p)
	}
	return pts, rows.Err()
}

// CompletedDays lists the completion timestamps of a user's workouts.
// It satisfies gamification.HistoryLoader for streak rebuilds.
func (st *Store) CompletedDays(ctx context.Context, q db.Querier, userID string) ([]time.Time, error) {
	rows, err := q.Query(ctx, `
		SELECT ended_at FROM activity_sessions
		WHERE user_id = $1 AND status = 'completed' AND ended_at IS NOT NULL
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var days []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		days = append(days, t)
	}
	return days, rows.Err()
}
