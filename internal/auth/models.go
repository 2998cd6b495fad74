package auth

import "time"

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	FullName     string    `json:"full_name,omitempty"`
	AvatarURL    string    `json:"avatar_url,omitempty"`
	WeightKg     float64   `json:"weight_kg,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type RegisterRequest struct {
	Email    string  `json:"email"`
	Username string  `json:"username"`
	Password string  `json:"password"`
	FullName string  `json:"full_name"`
	AvatarURL string `json:"avatar_url"`
	WeightKg float64 `json:"weight_kg"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// UpdateProfileRequest carries partial profile edits; nil fields stay
// unchanged.
type UpdateProfileRequest struct {
	FullName  *string  `json:"full_name,omitempty"`
	AvatarURL *string  `json:"avatar_url,omitempty"`
	WeightKg  *float64 `json:"weight_kg,omitempty"`
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}
