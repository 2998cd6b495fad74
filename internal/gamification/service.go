package gamification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mikepolyak/fitness-vibe-sub002/internal/db"
	"github.com/redis/go-redis/v9"
)

const leaderboardKey = "gamification:leaderboard:xp"

// HistoryLoader supplies the calendar days a user completed workouts
// on, for rebuilding streaks from scratch. The activity store
// implements it.
type HistoryLoader interface {
	CompletedDays(ctx context.Context, q db.Querier, userID string) ([]time.Time, error)
}

// Service owns persistent gamification state. Apply is the only write
// path and always runs inside the caller's completion transaction.
type Service struct {
	db      db.Pool
	rdb     *redis.Client
	store   *Store
	engine  *Engine
	catalog *Catalog
	history HistoryLoader
	log     *slog.Logger
	loc     *time.Location
	now     func() time.Time
}

func NewService(pool db.Pool, rdb *redis.Client, engine *Engine, catalog *Catalog, history HistoryLoader, log *slog.Logger, loc *time.Location) *Service {
	if log == nil {
		log = slog.Default()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Service{
		db:      pool,
		rdb:     rdb,
		store:   NewStore(),
		engine:  engine,
		catalog: catalog,
		history: history,
		log:     log,
		loc:     loc,
		now:     time.Now,
	}
}

// Apply awards the reward for one completed workout on q, which is the
// completion transaction. Progress and audit writes are all-or-nothing
// with the caller's session write. Enrichment reads (owned badges,
// streak history) run outside the transaction and degrade to warnings
// so a hiccup there can never block the XP award.
func (s *Service) Apply(ctx context.Context, q db.Querier, w WorkoutSummary) (RewardDecision, error) {
	prog, err := s.store.ProgressForUpdate(ctx, q, w.UserID)
	if err != nil {
		return RewardDecision{}, fmt.Errorf("load progress: %w", err)
	}

	readQ := db.Querier(q)
	if s.db != nil {
		readQ = s.db
	}

	if prog.Streak.LastDay.IsZero() && prog.TotalWorkouts > 0 && s.history != nil {
		// Row predates streak tracking; rebuild from the workout log.
		days, herr := s.history.CompletedDays(ctx, readQ, w.UserID)
		if herr != nil {
			s.log.Warn("streak rebuild failed, treating streak as fresh",
				"user_id", w.UserID, "error", herr)
		} else {
			prog.Streak = FromHistory(s.localDays(days))
		}
	}

	owned, ownedErr := s.store.OwnedBadgeIDs(ctx, readQ, w.UserID)
	if ownedErr != nil {
		s.log.Warn("owned badge lookup failed, skipping badge awards",
			"user_id", w.UserID, "error", ownedErr)
	}

	decision, streak := s.engine.Evaluate(Input{
		Workout:        w,
		XPBefore:       prog.XP,
		WorkoutsBefore: prog.TotalWorkouts,
		Streak:         prog.Streak,
		Owned:          owned,
		SkipBadges:     ownedErr != nil,
	})

	prog.UserID = w.UserID
	prog.XP = decision.XPAfter
	prog.Level = decision.Level
	prog.TotalWorkouts++
	prog.Streak = streak

	if err := s.store.SaveProgress(ctx, q, prog); err != nil {
		return RewardDecision{}, fmt.Errorf("save progress: %w", err)
	}
	if len(decision.Badges) > 0 {
		if err := s.store.GrantBadges(ctx, q, w.UserID, w.CompletedAt, decision.Badges); err != nil {
			return RewardDecision{}, err
		}
	}
	if err := s.store.RecordTransaction(ctx, q, w, decision); err != nil {
		return RewardDecision{}, fmt.Errorf("record xp transaction: %w", err)
	}
	return decision, nil
}

// Publish pushes the awarded XP into the redis leaderboard after the
// completion transaction commits. Best effort: failures are logged and
// the SQL leaderboard remains authoritative.
func (s *Service) Publish(ctx context.Context, userID string, d RewardDecision) {
	if s.rdb == nil || d.TotalXP == 0 {
		return
	}
	if err := s.rdb.ZIncrBy(ctx, leaderboardKey, float64(d.TotalXP), userID).Err(); err != nil {
		s.log.Warn("leaderboard cache update failed", "user_id", userID, "error", err)
	}
}

func (s *Service) Profile(ctx context.Context, userID string) (ProfileView, error) {
	prog, err := s.store.Progress(ctx, s.db, userID)
	if err != nil {
		return ProfileView{}, fmt.Errorf("load progress: %w", err)
	}
	badges, err := s.store.GrantedBadges(ctx, s.db, userID)
	if err != nil {
		return ProfileView{}, fmt.Errorf("load badges: %w", err)
	}

	window := WindowForXP(prog.XP)
	today := DayOf(s.now(), s.loc)
	return ProfileView{
		UserID:         userID,
		XP:             prog.XP,
		Level:          window.Level,
		Title:          TitleForLevel(window.Level),
		XPIntoLevel:    prog.XP - window.FloorXP,
		XPForNextLevel: window.CeilXP - window.FloorXP,
		CurrentStreak:  prog.Streak.CurrentAsOf(today),
		LongestStreak:  prog.Streak.Longest,
		TotalWorkouts:  prog.TotalWorkouts,
		Badges:         badges,
	}, nil
}

// Leaderboard serves from the redis sorted set when available and falls
// back to SQL when the cache is cold or down.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	if s.rdb != nil {
		zs, err := s.rdb.ZRevRangeWithScores(ctx, leaderboardKey, 0, int64(limit-1)).Result()
		if err != nil {
			s.log.Warn("leaderboard cache read failed", "error", err)
		} else if len(zs) > 0 {
			entries := make([]LeaderboardEntry, 0, len(zs))
			for i, z := range zs {
				member, _ := z.Member.(string)
				xp := int64(z.Score)
				entries = append(entries, LeaderboardEntry{
					Rank:   i + 1,
					UserID: member,
					XP:     xp,
					Level:  LevelForXP(xp),
				})
			}
			return entries, nil
		}
	}
	return s.store.TopByXP(ctx, s.db, limit)
}

// RebuildStreak recomputes the user's streak from the full workout log
// and persists it. Exposed for support tooling and for users migrated
// in without streak state.
func (s *Service) RebuildStreak(ctx context.Context, userID string) (StreakState, error) {
	if s.history == nil {
		return StreakState{}, fmt.Errorf("no workout history source configured")
	}
	days, err := s.history.CompletedDays(ctx, s.db, userID)
	if err != nil {
		return StreakState{}, fmt.Errorf("load workout days: %w", err)
	}
	prog, err := s.store.Progress(ctx, s.db, userID)
	if err != nil {
		return StreakState{}, fmt.Errorf("load progress: %w", err)
	}
	prog.Streak = FromHistory(s.localDays(days))
	if err := s.store.SaveProgress(ctx, s.db, prog); err != nil {
		return StreakState{}, fmt.Errorf("save progress: %w", err)
	}
	return prog.Streak, nil
}

// localDays converts raw completion timestamps to calendar days in the
// reward timezone.
func (s *Service) localDays(ts []time.Time) []time.Time {
	days := make([]time.Time, len(ts))
	for i, t := range ts {
		days[i] = DayOf(t, s.loc)
	}
	return days
}

// BadgeStatuses merges the catalog with the user's earned badges. A nil
// catalog yields an empty list.
func (s *Service) BadgeStatuses(ctx context.Context, userID string) ([]BadgeStatus, error) {
	if s.catalog == nil {
		return nil, nil
	}
	granted, err := s.store.GrantedBadges(ctx, s.db, userID)
	if err != nil {
		return nil, fmt.Errorf("load badges: %w", err)
	}
	earnedAt := make(map[string]time.Time, len(granted))
	for _, g := range granted {
		earnedAt[g.BadgeID] = g.EarnedAt
	}

	out := make([]BadgeStatus, 0, len(s.catalog.Badges))
	for _, b := range s.catalog.Badges {
		bs := BadgeStatus{Badge: b}
		if at, ok := earnedAt[b.ID]; ok {
			bs.Earned = true
			t := at
			bs.EarnedAt = &t
		}
		out = append(out, bs)
	}
	return out, nil
}

// Catalog exposes the badge definitions, which may be nil when the
// embedded catalog failed to parse.
func (s *Service) Catalog() *Catalog {
	return s.catalog
}
