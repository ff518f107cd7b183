package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// User represents the user entity in the database.
//
// Secret is a per-user rotating value: windowed email OTPs and reset token
// signatures are derived from it, so rotating it invalidates everything
// issued against the previous value. TOTPSecret and Is2FAEnabled belong to
// the legacy single-secret 2FA flow; the factors/challenges tables carry
// the richer MFA state.
type User struct {
	ID                  uuid.UUID       `json:"id" db:"id"`
	Username            string          `json:"username" db:"username"`
	Email               string          `json:"email" db:"email"`
	PasswordHash        string          `json:"-" db:"password_hash"`
	Secret              string          `json:"-" db:"secret"`
	Role                string          `json:"role" db:"role"`
	EmailVerifiedAt     *time.Time      `json:"email_verified_at,omitempty" db:"email_verified_at"`
	Is2FAEnabled        bool            `json:"is_2fa_enabled" db:"is_2fa_enabled"`
	TOTPSecret          *string         `json:"-" db:"totp_secret"`
	IsOnboarded         bool            `json:"is_onboarded" db:"is_onboarded"`
	AppMetadata         json.RawMessage `json:"app_metadata,omitempty" db:"app_metadata"`
	UserMetadata        json.RawMessage `json:"user_metadata,omitempty" db:"user_metadata"`
	FailedLoginAttempts int             `json:"failed_login_attempts" db:"failed_login_attempts"`
	LockoutUntil        *time.Time      `json:"lockout_until,omitempty" db:"lockout_until"`
	LastLoginAt         *time.Time      `json:"last_login_at,omitempty" db:"last_login_at"`
	CreatedAt           time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at" db:"updated_at"`
}

// IsEmailVerified reports whether the user completed email verification.
func (u *User) IsEmailVerified() bool {
	return u.EmailVerifiedAt != nil
}

// IsLockedOut reports whether the user is inside a lockout window.
func (u *User) IsLockedOut(now time.Time) bool {
	return u.LockoutUntil != nil && u.LockoutUntil.After(now)
}

// CreateUserRequest carries registration input. The password arrives plain
// and is hashed by the service layer.
type CreateUserRequest struct {
	Username string `json:"username" binding:"required,min=3,max=64"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

// UserResponse is the user shape returned by API endpoints.
type UserResponse struct {
	ID            uuid.UUID  `json:"id"`
	Username      string     `json:"username"`
	Email         string     `json:"email"`
	Role          string     `json:"role"`
	IsEmailVerify bool       `json:"is_email_verify"`
	Is2FAEnabled  bool       `json:"is_2fa_enabled"`
	IsOnboarded   bool       `json:"is_onboarded"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// ToResponse converts a User model to an API UserResponse.
func (u *User) ToResponse() UserResponse {
	return UserResponse{
		ID:            u.ID,
		Username:      u.Username,
		Email:         u.Email,
		Role:          u.Role,
		IsEmailVerify: u.IsEmailVerified(),
		Is2FAEnabled:  u.Is2FAEnabled,
		IsOnboarded:   u.IsOnboarded,
		LastLoginAt:   u.LastLoginAt,
		CreatedAt:     u.CreatedAt,
	}
}
