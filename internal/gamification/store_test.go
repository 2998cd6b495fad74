package gamification

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
)

func TestProgressScan(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	lastDay := time.Date(2026, time.March, 9, 0, 0, 0, 0, time.UTC)
	updatedAt := time.Now()
	mock.ExpectQuery(`SELECT xp, level, total_workouts, streak_current, streak_longest, last_activity_day, updated_at`).
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{"xp", "level", "total_workouts", "streak_current", "streak_longest", "last_activity_day", "updated_at"}).
			AddRow(int64(250), 2, int64(4), 3, 5, &lastDay, updatedAt))

	p, err := NewStore().Progress(context.Background(), mock, "user-1")
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if p.XP != 250 || p.Level != 2 || p.TotalWorkouts != 4 {
		t.Fatalf("unexpected progress: %+v", p)
	}
	if p.Streak.Current != 3 || p.Streak.Longest != 5 || !p.Streak.LastDay.Equal(lastDay) {
		t.Fatalf("unexpected streak: %+v", p.Streak)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestProgressNullLastDay(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(`SELECT xp, level, total_workouts`).
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{"xp", "level", "total_workouts", "streak_current", "streak_longest", "last_activity_day", "updated_at"}).
			AddRow(int64(40), 1, int64(1), 0, 0, (*time.Time)(nil), time.Now()))

	p, err := NewStore().Progress(context.Background(), mock, "user-1")
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if !p.Streak.LastDay.IsZero() {
		t.Fatalf("expected zero last day, got %v", p.Streak.LastDay)
	}
}

func TestProgressForUpdateMissingRow(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs("new-user").
		WillReturnError(pgx.ErrNoRows)

	p, err := NewStore().ProgressForUpdate(context.Background(), mock, "new-user")
	if err != nil {
		t.Fatalf("missing row should yield fresh progress, got %v", err)
	}
	if p.UserID != "new-user" || p.Level != 1 || p.XP != 0 {
		t.Fatalf("unexpected fresh progress: %+v", p)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestProgressQueryError(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(`SELECT xp`).WithArgs("user-1").WillReturnError(errors.New("db down"))

	if _, err := NewStore().Progress(context.Background(), mock, "user-1"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestSaveProgress(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	lastDay := time.Date(2026, time.March, 9, 0, 0, 0, 0, time.UTC)
	mock.ExpectExec(`INSERT INTO user_progress`).
		WithArgs("user-1", int64(250), 2, int64(4), 3, 5, lastDay).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	p := Progress{
		UserID:        "user-1",
		XP:            250,
		Level:         2,
		TotalWorkouts: 4,
		Streak:        StreakState{Current: 3, Longest: 5, LastDay: lastDay},
	}
	if err := NewStore().SaveProgress(context.Background(), mock, p); err != nil {
		t.Fatalf("save progress: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSaveProgressNoStreakDay(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec(`INSERT INTO user_progress`).
		WithArgs("user-2", int64(10), 1, int64(1), 0, 0, nil).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	p := Progress{UserID: "user-2", XP: 10, Level: 1, TotalWorkouts: 1}
	if err := NewStore().SaveProgress(context.Background(), mock, p); err != nil {
		t.Fatalf("save progress: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestOwnedBadgeIDs(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(`SELECT badge_id FROM user_badges`).
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{"badge_id"}).
			AddRow("first-workout").
			AddRow("xp-100"))

	owned, err := NewStore().OwnedBadgeIDs(context.Background(), mock, "user-1")
	if err != nil {
		t.Fatalf("owned badges: %v", err)
	}
	if len(owned) != 2 || !owned["first-workout"] || !owned["xp-100"] {
		t.Fatalf("unexpected owned set: %v", owned)
	}
}

func TestGrantBadges(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	at := time.Now()
	mock.ExpectExec(`INSERT INTO user_badges`).
		WithArgs("user-1", "first-workout", at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO user_badges`).
		WithArgs("user-1", "xp-100", at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	badges := []Badge{{ID: "first-workout"}, {ID: "xp-100"}}
	if err := NewStore().GrantBadges(context.Background(), mock, "user-1", at, badges); err != nil {
		t.Fatalf("grant badges: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGrantBadgesError(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	at := time.Now()
	mock.ExpectExec(`INSERT INTO user_badges`).
		WithArgs("user-1", "first-workout", at).
		WillReturnError(errors.New("constraint"))

	err = NewStore().GrantBadges(context.Background(), mock, "user-1", at, []Badge{{ID: "first-workout"}})
	if err == nil || !strings.Contains(err.Error(), "first-workout") {
		t.Fatalf("expected error naming the badge, got %v", err)
	}
}

func TestGrantedBadges(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	earnedAt := time.Now()
	mock.ExpectQuery(`SELECT badge_id, earned_at FROM user_badges`).
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows([]string{"badge_id", "earned_at"}).
			AddRow("first-workout", earnedAt).
			AddRow("streak-3", earnedAt))

	got, err := NewStore().GrantedBadges(context.Background(), mock, "user-1")
	if err != nil {
		t.Fatalf("granted badges: %v", err)
	}
	if len(got) != 2 || got[0].BadgeID != "first-workout" || got[1].BadgeID != "streak-3" {
		t.Fatalf("unexpected badges: %+v", got)
	}
}

func TestRecordTransaction(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	completedAt := time.Now()
	mock.ExpectExec(`INSERT INTO xp_transactions`).
		WithArgs(pgxmock.AnyArg(), "user-1", "session-1", 92, pgxmock.AnyArg(), 115, int64(115), 2, pgxmock.AnyArg(), completedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	w := WorkoutSummary{SessionID: "session-1", UserID: "user-1", CompletedAt: completedAt}
	d := RewardDecision{
		BaseXP:  92,
		Bonuses: []BonusXP{{Source: "early_bird", XP: 23}},
		TotalXP: 115,
		XPAfter: 115,
		Level:   2,
	}
	if err := NewStore().RecordTransaction(context.Background(), mock, w, d); err != nil {
		t.Fatalf("record transaction: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTopByXP(t *testing.T) {
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("mock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(`SELECT user_id, xp, level FROM user_progress`).
		WithArgs(10).
		WillReturnRows(pgxmock.NewRows([]string{"user_id", "xp", "level"}).
			AddRow("user-a", int64(900), 4).
			AddRow("user-b", int64(400), 3))

	entries, err := NewStore().TopByXP(context.Background(), mock, 10)
	if err != nil {
		t.Fatalf("top by xp: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Rank != 1 || entries[0].UserID != "user-a" || entries[1].Rank != 2 {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}
