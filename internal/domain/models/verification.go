package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// VerificationWindow is the cache-resident, TTL-bound one-time-code record
// backing email verification, password reset and signup OTP delivery.
// Issuance is idempotent per purpose key: while a window is alive, repeated
// issuance returns the existing code and the remaining TTL.
type VerificationWindow struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
	IP     string    `json:"ip"`
	Code   string    `json:"verification_code"`
}

// EmailVerificationKey is the purpose key for signup email verification.
func EmailVerificationKey(email string) string {
	return fmt.Sprintf("email:%s:verification", email)
}

// PasswordResetKey is the purpose key for a password-reset window.
func PasswordResetKey(token string) string {
	return fmt.Sprintf("forgot-password:%s", token)
}

// VerificationIssued reports an issued (or re-issued) window to the caller.
type VerificationIssued struct {
	VerificationCode string        `json:"verification_code"`
	ExpiresIn        time.Duration `json:"expires_in"`
}
