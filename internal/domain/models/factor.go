package models

import (
	"time"

	"github.com/google/uuid"
)

// FactorType enumerates supported second-factor mechanisms.
type FactorType string

const (
	FactorTypeTOTP FactorType = "TOTP"
)

// FactorStatus is the enrollment state of a factor.
type FactorStatus string

const (
	FactorStatusUnverified FactorStatus = "UNVERIFIED"
	FactorStatusVerified   FactorStatus = "VERIFIED"
)

// Factor represents an enrolled second-authentication mechanism. The TOTP
// secret is stored encrypted; the plaintext is only ever returned once, at
// enrollment. At most one VERIFIED TOTP factor per user is meaningful.
type Factor struct {
	ID              uuid.UUID    `json:"id" db:"id"`
	UserID          uuid.UUID    `json:"user_id" db:"user_id"`
	FactorType      FactorType   `json:"factor_type" db:"factor_type"`
	Status          FactorStatus `json:"status" db:"status"`
	EncryptedSecret string       `json:"-" db:"encrypted_secret"`
	FriendlyName    string       `json:"friendly_name" db:"friendly_name"`
	CreatedAt       time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at" db:"updated_at"`
}

// EnrollFactorRequest carries MFA enrollment input.
type EnrollFactorRequest struct {
	FriendlyName string `json:"friendly_name" binding:"required,max=128"`
}

// EnrollFactorResponse returns the raw secret and provisioning data.
// Neither the secret nor the URI is ever persisted in plaintext.
type EnrollFactorResponse struct {
	FactorID     uuid.UUID  `json:"factor_id"`
	FactorType   FactorType `json:"factor_type"`
	Secret       string     `json:"secret"`
	OTPAuthURL   string     `json:"otpauth_url"`
	QRCode       string     `json:"qr_code"`
	FriendlyName string     `json:"friendly_name"`
}

// VerifyFactorRequest carries a challenge verification attempt.
type VerifyFactorRequest struct {
	ChallengeID uuid.UUID `json:"challenge_id" binding:"required"`
	Code        string    `json:"code" binding:"required,len=6,numeric"`
}

// UnenrollFactorRequest carries the re-authentication proof for unenroll.
type UnenrollFactorRequest struct {
	Password    string    `json:"password" binding:"required"`
	ChallengeID uuid.UUID `json:"challenge_id" binding:"required"`
	Code        string    `json:"code" binding:"required,len=6,numeric"`
}
