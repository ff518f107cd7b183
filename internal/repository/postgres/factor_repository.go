package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	domainErrors "github.com/driftline/auth-service/internal/domain/errors"
	"github.com/driftline/auth-service/internal/domain/models"
)

// FactorRepositoryPostgres implements interfaces.FactorRepository.
type FactorRepositoryPostgres struct {
	pool *pgxpool.Pool
}

// NewFactorRepositoryPostgres creates a new FactorRepositoryPostgres.
func NewFactorRepositoryPostgres(pool *pgxpool.Pool) *FactorRepositoryPostgres {
	return &FactorRepositoryPostgres{pool: pool}
}

func scanFactor(row pgx.Row) (*models.Factor, error) {
	f := &models.Factor{}
	err := row.Scan(&f.ID, &f.UserID, &f.FactorType, &f.Status, &f.EncryptedSecret,
		&f.FriendlyName, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrFactorNotFound
		}
		return nil, domainErrors.WrapDatabase(err)
	}
	return f, nil
}

// Create persists a new factor in state UNVERIFIED.
func (r *FactorRepositoryPostgres) Create(ctx context.Context, factor *models.Factor) error {
	query := `
		INSERT INTO factors (id, user_id, factor_type, status, encrypted_secret, friendly_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.pool.Exec(ctx, query,
		factor.ID, factor.UserID, factor.FactorType, factor.Status,
		factor.EncryptedSecret, factor.FriendlyName, factor.CreatedAt, factor.UpdatedAt,
	)
	if err != nil {
		return domainErrors.WrapDatabase(fmt.Errorf("failed to create factor: %w", err))
	}
	return nil
}

// FindByID retrieves a factor by id.
func (r *FactorRepositoryPostgres) FindByID(ctx context.Context, id uuid.UUID) (*models.Factor, error) {
	query := `
		SELECT id, user_id, factor_type, status, encrypted_secret, friendly_name, created_at, updated_at
		FROM factors WHERE id = $1
	`
	return scanFactor(r.pool.QueryRow(ctx, query, id))
}

// FindVerifiedTOTPByUserID retrieves the user's verified TOTP factor, if any.
func (r *FactorRepositoryPostgres) FindVerifiedTOTPByUserID(ctx context.Context, userID uuid.UUID) (*models.Factor, error) {
	query := `
		SELECT id, user_id, factor_type, status, encrypted_secret, friendly_name, created_at, updated_at
		FROM factors
		WHERE user_id = $1 AND factor_type = $2 AND status = $3
		ORDER BY created_at DESC
		LIMIT 1
	`
	return scanFactor(r.pool.QueryRow(ctx, query, userID, models.FactorTypeTOTP, models.FactorStatusVerified))
}

// UpdateStatus transitions a factor's status.
func (r *FactorRepositoryPostgres) UpdateStatus(ctx context.Context, id uuid.UUID, status models.FactorStatus) error {
	query := `UPDATE factors SET status = $1, updated_at = NOW() WHERE id = $2`
	result, err := r.pool.Exec(ctx, query, status, id)
	if err != nil {
		return domainErrors.WrapDatabase(fmt.Errorf("failed to update factor status: %w", err))
	}
	if result.RowsAffected() == 0 {
		return domainErrors.ErrFactorNotFound
	}
	return nil
}

// Delete removes a factor.
func (r *FactorRepositoryPostgres) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM factors WHERE id = $1`, id)
	if err != nil {
		return domainErrors.WrapDatabase(fmt.Errorf("failed to delete factor: %w", err))
	}
	if result.RowsAffected() == 0 {
		return domainErrors.ErrFactorNotFound
	}
	return nil
}
