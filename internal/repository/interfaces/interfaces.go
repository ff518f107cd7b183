// Package interfaces declares the narrow storage capabilities the services
// depend on. Durable implementations live in repository/postgres, cache
// implementations in repository/redis.
package interfaces

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/driftline/auth-service/internal/domain/models"
)

// UserRepository is the durable store for users.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	UpdateFailedAttempts(ctx context.Context, id uuid.UUID, attempts int, lockoutUntil *time.Time) error
}

// SessionRepository is the durable store for sessions.
type SessionRepository interface {
	Create(ctx context.Context, session *models.Session) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Session, error)
	FindByUserID(ctx context.Context, userID uuid.UUID) ([]*models.Session, error)
	Update(ctx context.Context, session *models.Session) error
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteAllByUserID(ctx context.Context, userID uuid.UUID) (int64, error)
}

// SessionCache is the TTL-bound denormalized session copy.
type SessionCache interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Session, error)
	Set(ctx context.Context, session *models.Session) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// RefreshTokenRepository is the durable store for refresh tokens.
type RefreshTokenRepository interface {
	Create(ctx context.Context, token *models.RefreshToken) error
	FindByTokenHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	Revoke(ctx context.Context, id uuid.UUID, reason *string) error
	RevokeAllByUserID(ctx context.Context, userID uuid.UUID, reason *string) (int64, error)
	DeleteBySessionID(ctx context.Context, sessionID uuid.UUID) error
}

// FactorRepository is the durable store for MFA factors.
type FactorRepository interface {
	Create(ctx context.Context, factor *models.Factor) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Factor, error)
	FindVerifiedTOTPByUserID(ctx context.Context, userID uuid.UUID) (*models.Factor, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.FactorStatus) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// ChallengeRepository is the durable store for factor challenges.
type ChallengeRepository interface {
	Create(ctx context.Context, challenge *models.Challenge) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Challenge, error)
	MarkVerified(ctx context.Context, id uuid.UUID, at time.Time) error
	DeleteByFactorID(ctx context.Context, factorID uuid.UUID) error
}

// VerificationWindowStore is the cache store for verification windows.
// Create is atomic set-if-absent-with-TTL so concurrent duplicate issuance
// cannot mint two codes for one purpose key.
type VerificationWindowStore interface {
	Create(ctx context.Context, key string, window *models.VerificationWindow, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (*models.VerificationWindow, time.Duration, error)
	Delete(ctx context.Context, key string) error
}
