package models

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken represents the refresh_tokens entity. The opaque token value
// is stored hashed and is single-use: a refresh revokes the row and mints a
// new session and token pair.
type RefreshToken struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	UserID        uuid.UUID  `json:"user_id" db:"user_id"`
	SessionID     uuid.UUID  `json:"session_id" db:"session_id"`
	TokenHash     string     `json:"-" db:"token_hash"`
	ExpiresAt     time.Time  `json:"expires_at" db:"expires_at"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	RevokedAt     *time.Time `json:"revoked_at,omitempty" db:"revoked_at"`
	RevokedReason *string    `json:"revoked_reason,omitempty" db:"revoked_reason"`
}

// IsRevoked reports whether the token was consumed or revoked.
func (t *RefreshToken) IsRevoked() bool {
	return t.RevokedAt != nil
}

// TokenPair is the session credential pair returned to clients.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresIn    int64     `json:"expires_in"`
	ExpiresAt    time.Time `json:"expires_at"`
	SessionID    uuid.UUID `json:"session_id"`
}

// RefreshRequest carries the presented access+refresh pair for rotation.
type RefreshRequest struct {
	AccessToken  string `json:"access_token" binding:"required"`
	RefreshToken string `json:"refresh_token" binding:"required"`
}
