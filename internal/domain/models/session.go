package models

import (
	"time"

	"github.com/google/uuid"
)

// AAL is the authentication assurance level of a session.
type AAL string

const (
	// AAL1 is reached with a single factor (password).
	AAL1 AAL = "aal1"
	// AAL2 is reached with password plus a verified second factor.
	AAL2 AAL = "aal2"
)

// AMREntry records one authentication method used to reach the current AAL.
type AMREntry struct {
	Method    string `json:"method"`
	Timestamp int64  `json:"timestamp"`
}

// Session represents the session entity. One row per active session, with a
// denormalized TTL-bound copy in the cache keyed by session id. Mutations
// write the durable row first, then the cache copy.
type Session struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	UserID    uuid.UUID  `json:"user_id" db:"user_id"`
	FactorID  *uuid.UUID `json:"factor_id,omitempty" db:"factor_id"`
	AAL       AAL        `json:"aal" db:"aal"`
	AMR       []AMREntry `json:"amr" db:"amr"`
	IPAddress string     `json:"ip_address" db:"ip_address"`
	UserAgent string     `json:"user_agent" db:"user_agent"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// SessionUpdate is a partial update applied to both session copies.
// Nil fields are left untouched.
type SessionUpdate struct {
	FactorID *uuid.UUID
	AAL      *AAL
	AMR      []AMREntry
}
