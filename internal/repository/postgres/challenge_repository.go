package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	domainErrors "github.com/driftline/auth-service/internal/domain/errors"
	"github.com/driftline/auth-service/internal/domain/models"
)

// ChallengeRepositoryPostgres implements interfaces.ChallengeRepository.
type ChallengeRepositoryPostgres struct {
	pool *pgxpool.Pool
}

// NewChallengeRepositoryPostgres creates a new ChallengeRepositoryPostgres.
func NewChallengeRepositoryPostgres(pool *pgxpool.Pool) *ChallengeRepositoryPostgres {
	return &ChallengeRepositoryPostgres{pool: pool}
}

// Create persists a new challenge bound to the requester's IP.
func (r *ChallengeRepositoryPostgres) Create(ctx context.Context, challenge *models.Challenge) error {
	query := `
		INSERT INTO challenges (id, factor_id, ip_address, otp_code, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.pool.Exec(ctx, query,
		challenge.ID, challenge.FactorID, challenge.IPAddress, challenge.OTPCode, challenge.CreatedAt,
	)
	if err != nil {
		return domainErrors.WrapDatabase(fmt.Errorf("failed to create challenge: %w", err))
	}
	return nil
}

// FindByID retrieves a challenge by id.
func (r *ChallengeRepositoryPostgres) FindByID(ctx context.Context, id uuid.UUID) (*models.Challenge, error) {
	query := `
		SELECT id, factor_id, ip_address, otp_code, created_at, verified_at
		FROM challenges WHERE id = $1
	`
	c := &models.Challenge{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&c.ID, &c.FactorID, &c.IPAddress, &c.OTPCode, &c.CreatedAt, &c.VerifiedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrChallengeNotFound
		}
		return nil, domainErrors.WrapDatabase(fmt.Errorf("failed to find challenge: %w", err))
	}
	return c, nil
}

// MarkVerified consumes a challenge. The verified_at guard makes the
// challenge single-use even under concurrent verify attempts.
func (r *ChallengeRepositoryPostgres) MarkVerified(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE challenges SET verified_at = $1 WHERE id = $2 AND verified_at IS NULL`
	result, err := r.pool.Exec(ctx, query, at, id)
	if err != nil {
		return domainErrors.WrapDatabase(fmt.Errorf("failed to mark challenge verified: %w", err))
	}
	if result.RowsAffected() == 0 {
		return domainErrors.ErrChallengeVerified
	}
	return nil
}

// DeleteByFactorID removes all challenges of a factor.
func (r *ChallengeRepositoryPostgres) DeleteByFactorID(ctx context.Context, factorID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM challenges WHERE factor_id = $1`, factorID)
	if err != nil {
		return domainErrors.WrapDatabase(fmt.Errorf("failed to delete challenges by factor: %w", err))
	}
	return nil
}
