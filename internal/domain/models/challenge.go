package models

import (
	"time"

	"github.com/google/uuid"
)

// ChallengeLifetime bounds how long a challenge stays verifiable.
const ChallengeLifetime = 5 * time.Minute

// Challenge represents one verification attempt against a factor. It is
// single-use, pinned to the IP it was created from, and valid for five
// minutes after creation.
type Challenge struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	FactorID   uuid.UUID  `json:"factor_id" db:"factor_id"`
	IPAddress  string     `json:"ip_address" db:"ip_address"`
	OTPCode    *string    `json:"-" db:"otp_code"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	VerifiedAt *time.Time `json:"verified_at,omitempty" db:"verified_at"`
}

// IsVerified reports whether the challenge was already consumed.
func (c *Challenge) IsVerified() bool {
	return c.VerifiedAt != nil
}

// IsExpired reports whether the challenge is past its lifetime.
func (c *Challenge) IsExpired(now time.Time) bool {
	return now.After(c.CreatedAt.Add(ChallengeLifetime))
}

// ChallengeResponse is the challenge shape returned at creation.
type ChallengeResponse struct {
	ID        uuid.UUID `json:"id"`
	FactorID  uuid.UUID `json:"factor_id"`
	ExpiresAt time.Time `json:"expires_at"`
}
