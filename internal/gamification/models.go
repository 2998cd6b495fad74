package gamification

import "time"

// WorkoutSummary is the slice of a completed session the reward engine
// cares about. Category is the activity category slug ("outdoor",
// "cardio", ...), not the concrete activity type.
type WorkoutSummary struct {
	SessionID        string
	UserID           string
	Category         string
	ActiveMinutes    float64
	DistanceKm       float64
	CompletedAt      time.Time
	AccountCreatedAt time.Time
	MultiplierPct    int
}

type BonusXP struct {
	Source string `json:"source"`
	XP     int    `json:"xp"`
}

// RewardDecision is the full, itemized outcome of one workout reward.
// It is returned to the client and stored on the session row so a
// replayed completion can answer with the original decision.
type RewardDecision struct {
	BaseXP     int       `json:"base_xp"`
	Bonuses    []BonusXP `json:"bonuses,omitempty"`
	TotalXP    int       `json:"total_xp"`
	XPAfter    int64     `json:"xp_after"`
	Level      int       `json:"level"`
	LeveledUp  bool      `json:"leveled_up"`
	Title      string    `json:"title,omitempty"`
	Unlocked   []string  `json:"unlocked_features,omitempty"`
	Badges     []Badge   `json:"badges_earned,omitempty"`
	StreakDays int       `json:"streak_days"`
	Message    string    `json:"message,omitempty"`
}

// Progress is one user's persistent gamification state.
type Progress struct {
	UserID        string
	XP            int64
	Level         int
	TotalWorkouts int64
	Streak        StreakState
	UpdatedAt     time.Time
}

type GrantedBadge struct {
	BadgeID  string    `json:"badge_id"`
	EarnedAt time.Time `json:"earned_at"`
}

type ProfileView struct {
	UserID         string         `json:"user_id"`
	XP             int64          `json:"xp"`
	Level          int            `json:"level"`
	Title          string         `json:"title"`
	XPIntoLevel    int64          `json:"xp_into_level"`
	XPForNextLevel int64          `json:"xp_for_next_level"`
	CurrentStreak  int            `json:"current_streak"`
	LongestStreak  int            `json:"longest_streak"`
	TotalWorkouts  int64          `json:"total_workouts"`
	Badges         []GrantedBadge `json:"badges"`
}

type LeaderboardEntry struct {
	Rank   int    `json:"rank"`
	UserID string `json:"user_id"`
	XP     int64  `json:"xp"`
	Level  int    `json:"level"`
}

// BadgeStatus is a catalog badge annotated with whether the user holds
// it.
type BadgeStatus struct {
	Badge
	Earned   bool       `json:"earned"`
	EarnedAt *time.Time `json:"earned_at,omitempty"`
}
