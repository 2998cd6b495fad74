package activity

import (
	"time"

	"github.com/mikepolyak/fitness-vibe-sub002/internal/gamification"
)

type SessionStatus string

const (
	StatusPlanned   SessionStatus = "planned"
	StatusActive    SessionStatus = "active"
	StatusPaused    SessionStatus = "paused"
	StatusCompleted SessionStatus = "completed"
	StatusCancelled SessionStatus = "cancelled"
)

// Live reports whether the session still accepts lifecycle transitions.
func (s SessionStatus) Live() bool {
	return s == StatusActive || s == StatusPaused
}

// Terminal reports whether the session reached an end state. Terminal
// sessions never change again.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type ActivityType string

const (
	TypeRunning  ActivityType = "running"
	TypeCycling  ActivityType = "cycling"
	TypeWalking  ActivityType = "walking"
	TypeHiking   ActivityType = "hiking"
	TypeSwimming ActivityType = "swimming"
	TypeRowing   ActivityType = "rowing"
	TypeHIIT     ActivityType = "hiit"
	TypeStrength ActivityType = "strength"
	TypeYoga     ActivityType = "yoga"
)

type Category string

const (
	CategoryOutdoor     Category = "outdoor"
	CategoryCardio      Category = "cardio"
	CategoryStrength    Category = "strength"
	CategoryFlexibility Category = "flexibility"
	CategoryGeneral     Category = "general"
)

func (t ActivityType) Category() Category {
	switch t {
	case TypeRunning, TypeCycling, TypeWalking, TypeHiking:
		return CategoryOutdoor
	case TypeSwimming, TypeRowing, TypeHIIT:
		return CategoryCardio
	case TypeStrength:
		return CategoryStrength
	case TypeYoga:
		return CategoryFlexibility
	default:
		return CategoryGeneral
	}
}

type RoutePoint struct {
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	ElevationM *float64  `json:"elevation_m,omitempty"`
	SpeedKmh   *float64  `json:"speed_kmh,omitempty"`
	AccuracyM  *float64  `json:"accuracy_m,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// PauseInterval records one pause. ResumedAt stays zero while the pause
// is still open.
type PauseInterval struct {
	PausedAt  time.Time `json:"paused_at"`
	ResumedAt time.Time `json:"resumed_at,omitempty"`
}

// Stats holds the derived metrics for a session. AvgSpeedKmh and
// PaceMinPerKm are nil while undefined (no distance covered yet).
type Stats struct {
	DistanceKm     float64  `json:"distance_km"`
	ActiveMinutes  float64  `json:"active_minutes"`
	PausedMinutes  float64  `json:"paused_minutes"`
	AvgSpeedKmh    *float64 `json:"avg_speed_kmh,omitempty"`
	MaxSpeedKmh    float64  `json:"max_speed_kmh"`
	PaceMinPerKm   *float64 `json:"pace_min_per_km,omitempty"`
	ElevationGainM float64  `json:"elevation_gain_m"`
	Calories       float64  `json:"calories"`
	PointCount     int      `json:"point_count"`
}

// Session is the in-memory aggregate for one workout. All mutation goes
// through the Manager so that concurrent GPS updates and lifecycle calls
// serialize per session.
type Session struct {
	ID                string
	UserID            string
	Type              ActivityType
	Status            SessionStatus
	IsPublic          bool
	Tags              []string
	PlannedStart      *time.Time
	StartedAt         time.Time
	EndedAt           time.Time
	Pauses            []PauseInterval
	Route             []RoutePoint
	Notes             string
	CancelReason      string
	PerceivedExertion int
	Stats             Stats

	weightKg  float64
	userSince time.Time

	reward          *gamification.RewardDecision
	window          []RoutePoint
	currentSpeedKmh float64
}

type SessionView struct {
	ID                string        `json:"id"`
	UserID            string        `json:"user_id"`
	Type              ActivityType  `json:"activity_type"`
	Status            SessionStatus `json:"status"`
	IsPublic          bool          `json:"is_public"`
	Tags              []string      `json:"tags,omitempty"`
	PlannedStart      *time.Time    `json:"planned_start,omitempty"`
	StartedAt         *time.Time    `json:"started_at,omitempty"`
	EndedAt           *time.Time    `json:"ended_at,omitempty"`
	Notes             string        `json:"notes,omitempty"`
	CancelReason      string        `json:"cancel_reason,omitempty"`
	PerceivedExertion int           `json:"perceived_exertion,omitempty"`
	Stats             Stats         `json:"stats"`
}

type StartRequest struct {
	ActivityType     ActivityType `json:"activity_type"`
	PlannedSessionID string       `json:"planned_session_id,omitempty"`
	IsPublic         bool         `json:"is_public"`
	Tags             []string     `json:"tags,omitempty"`
}

type PlanRequest struct {
	ActivityType ActivityType `json:"activity_type"`
	PlannedStart time.Time    `json:"planned_start"`
	IsPublic     bool         `json:"is_public"`
	Tags         []string     `json:"tags,omitempty"`
}

type PointRequest struct {
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	ElevationM *float64  `json:"elevation_m,omitempty"`
	SpeedKmh   *float64  `json:"speed_kmh,omitempty"`
	AccuracyM  *float64  `json:"accuracy_m,omitempty"`
	RecordedAt time.Time `json:"recorded_at,omitempty"`
}

// PointResponse reports whether the point was applied. Out-of-order
// points come back with Accepted=false and unchanged totals.
type PointResponse struct {
	Accepted        bool    `json:"accepted"`
	DistanceKm      float64 `json:"distance_km"`
	CurrentSpeedKmh float64 `json:"current_speed_kmh"`
	PointCount      int     `json:"point_count"`
}

// TransitionResponse confirms a pause or resume.
type TransitionResponse struct {
	SessionID     string        `json:"session_id"`
	Status        SessionStatus `json:"status"`
	At            time.Time     `json:"at"`
	ActiveMinutes float64       `json:"active_minutes"`
	PausedMinutes float64       `json:"paused_minutes"`
}

type CompleteRequest struct {
	EndTime            *time.Time `json:"end_time,omitempty"`
	DistanceKmOverride *float64   `json:"distance_km,omitempty"`
	CaloriesOverride   *float64   `json:"calories,omitempty"`
	PerceivedExertion  *int       `json:"perceived_exertion,omitempty"`
	Notes              string     `json:"notes,omitempty"`
	XPMultiplierPct    int        `json:"xp_multiplier_pct,omitempty"`
}

type CompleteResponse struct {
	Session SessionView                  `json:"session"`
	Reward  *gamification.RewardDecision `json:"reward,omitempty"`
}

type CancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

type CancelResponse struct {
	Session SessionView `json:"session"`
}

// UserSnapshot carries the profile fields captured when a session
// starts. Weight feeds the calorie formula, CreatedAt the new-user XP
// bonus.
type UserSnapshot struct {
	WeightKg  float64
	CreatedAt time.Time
}
