package gamification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/mikepolyak/fitness-vibe-sub002/internal/db"
)

// Store is stateless; every method takes the Querier to run against so
// reward writes can ride the caller's transaction.
type Store struct{}

func NewStore() *Store {
	return &Store{}
}

// ProgressForUpdate loads the user's progress row with a row lock. A
// missing row comes back as fresh level-1 progress, not an error.
func (st *Store) ProgressForUpdate(ctx context.Context, q db.Querier, userID string) (Progress, error) {
	return st.progress(ctx, q, userID, true)
}

// Progress is the lock-free read used by profile endpoints.
func (st *Store) Progress(ctx context.Context, q db.Querier, userID string) (Progress, error) {
	return st.progress(ctx, q, userID, false)
}

func (st *Store) progress(ctx context.Context, q db.Querier, userID string, forUpdate bool) (Progress, error) {
	sql := `
		SELECT xp, level, total_workouts, streak_current, streak_longest, last_activity_day, updated_at
		FROM user_progress WHERE user_id = $1`
	if forUpdate {
		sql += " FOR UPDATE"
	}

	p := Progress{UserID: userID, Level: 1}
	var lastDay *time.Time
	row := q.QueryRow(ctx, sql, userID)
	err := row.Scan(&p.XP, &p.Level, &p.TotalWorkouts, &p.Streak.Current, &p.Streak.Longest, &lastDay, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Progress{UserID: userID, Level: 1}, nil
	}
	if err != nil {
		return Progress{}, err
	}
	if lastDay != nil {
		p.Streak.LastDay = *lastDay
	}
	return p, nil
}

func (st *Store) SaveProgress(ctx context.Context, q db.Querier, p Progress) error {
	var lastDay any
	if !p.Streak.LastDay.IsZero() {
		lastDay = p.Streak.LastDay
	}
	_, err := q.Exec(ctx, `
		INSERT INTO user_progress (user_id, xp, level, total_workouts, streak_current, streak_longest, last_activity_day, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now())
		ON CONFLICT (user_id) DO UPDATE SET
			xp = EXCLUDED.xp,
			level = EXCLUDED.level,
			total_workouts = EXCLUDED.total_workouts,
			streak_current = EXCLUDED.streak_current,
			streak_longest = EXCLUDED.streak_longest,
			last_activity_day = EXCLUDED.last_activity_day,
			updated_at = now()
	`, p.UserID, p.XP, p.Level, p.TotalWorkouts, p.Streak.Current, p.Streak.Longest, lastDay)
	return err
}

func (st *Store) OwnedBadgeIDs(ctx context.Context, q db.Querier, userID string) (map[string]bool, error) {
	rows, err := q.Query(ctx, `SELECT badge_id FROM user_badges WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	owned := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		owned[id] = true
	}
	return owned, rows.Err()
}

func (st *Store) GrantBadges(ctx context.Context, q db.Querier, userID string, at time.Time, badges []Badge) error {
	for _, b := range badges {
		_, err := q.Exec(ctx, `
			INSERT INTO user_badges (user_id, badge_id, earned_at)
			VALUES ($1,$2,$3)
			ON CONFLICT (user_id, badge_id) DO NOTHING
		`, userID, b.ID, at)
		if err != nil {
			return fmt.Errorf("grant badge %s: %w", b.ID, err)
		}
	}
	return nil
}

func (st *Store) GrantedBadges(ctx context.Context, q db.Querier, userID string) ([]GrantedBadge, error) {
	rows, err := q.Query(ctx, `
		SELECT badge_id, earned_at FROM user_badges
		WHERE user_id = $1 ORDER BY earned_at, badge_id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []GrantedBadge
	for rows.Next() {
		var g GrantedBadge
		if err := rows.Scan(&g.BadgeID, &g.EarnedAt); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// RecordTransaction appends one row to the XP audit trail.
func (st *Store) RecordTransaction(ctx context.Context, q db.Querier, w WorkoutSummary, d RewardDecision) error {
	bonuses, err := json.Marshal(d.Bonuses)
	if err != nil {
		return err
	}
	badgeIDs := make([]string, 0, len(d.Badges))
	for _, b := range d.Badges {
		badgeIDs = append(badgeIDs, b.ID)
	}
	_, err = q.Exec(ctx, `
		INSERT INTO xp_transactions (id, user_id, session_id, base_xp, bonus_xp, total_xp, xp_after, level_after, badge_ids, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, uuid.NewString(), w.UserID, w.SessionID, d.BaseXP, bonuses, d.TotalXP, d.XPAfter, d.Level, badgeIDs, w.CompletedAt)
	return err
}

func (st *Store) TopByXP(ctx context.Context, q db.Querier, limit int) ([]LeaderboardEntry, error) {
	rows, err := q.Query(ctx, `
		SELECT user_id, xp, level FROM user_progress
		ORDER BY xp DESC, user_id LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LeaderboardEntry
	for rows.Next() {
		e := LeaderboardEntry{Rank: len(out) + 1}
		if err := rows.Scan(&e.UserID, &e.XP, &e.Level); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
