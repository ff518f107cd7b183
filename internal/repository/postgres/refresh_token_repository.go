package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	domainErrors "github.com/driftline/auth-service/internal/domain/errors"
	"github.com/driftline/auth-service/internal/domain/models"
)

// RefreshTokenRepositoryPostgres implements interfaces.RefreshTokenRepository.
type RefreshTokenRepositoryPostgres struct {
	pool *pgxpool.Pool
}

// NewRefreshTokenRepositoryPostgres creates a new RefreshTokenRepositoryPostgres.
func NewRefreshTokenRepositoryPostgres(pool *pgxpool.Pool) *RefreshTokenRepositoryPostgres {
	return &RefreshTokenRepositoryPostgres{pool: pool}
}

// Create persists a new refresh token. token_hash is unique.
func (r *RefreshTokenRepositoryPostgres) Create(ctx context.Context, token *models.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (id, user_id, session_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.pool.Exec(ctx, query,
		token.ID, token.UserID, token.SessionID, token.TokenHash, token.ExpiresAt, token.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return domainErrors.ErrAlreadyExists
		}
		return domainErrors.WrapDatabase(fmt.Errorf("failed to create refresh token: %w", err))
	}
	return nil
}

// FindByTokenHash retrieves a refresh token by its hashed value. The row is
// returned even when revoked so the caller can reject the replay explicitly.
func (r *RefreshTokenRepositoryPostgres) FindByTokenHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	query := `
		SELECT id, user_id, session_id, token_hash, expires_at, created_at, revoked_at, revoked_reason
		FROM refresh_tokens
		WHERE token_hash = $1
	`
	rt := &models.RefreshToken{}
	err := r.pool.QueryRow(ctx, query, tokenHash).Scan(
		&rt.ID, &rt.UserID, &rt.SessionID, &rt.TokenHash, &rt.ExpiresAt, &rt.CreatedAt,
		&rt.RevokedAt, &rt.RevokedReason,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrNotFound
		}
		return nil, domainErrors.WrapDatabase(fmt.Errorf("failed to find refresh token by hash: %w", err))
	}
	return rt, nil
}

// Revoke marks a refresh token as consumed. Revoking an already revoked
// token reports not found so the rotation race loser fails loudly.
func (r *RefreshTokenRepositoryPostgres) Revoke(ctx context.Context, id uuid.UUID, reason *string) error {
	query := `
		UPDATE refresh_tokens
		SET revoked_at = CURRENT_TIMESTAMP, revoked_reason = $1
		WHERE id = $2 AND revoked_at IS NULL
	`
	result, err := r.pool.Exec(ctx, query, reason, id)
	if err != nil {
		return domainErrors.WrapDatabase(fmt.Errorf("failed to revoke refresh token: %w", err))
	}
	if result.RowsAffected() == 0 {
		return domainErrors.ErrNotFound
	}
	return nil
}

// RevokeAllByUserID revokes every live refresh token of a user.
func (r *RefreshTokenRepositoryPostgres) RevokeAllByUserID(ctx context.Context, userID uuid.UUID, reason *string) (int64, error) {
	query := `
		UPDATE refresh_tokens
		SET revoked_at = CURRENT_TIMESTAMP, revoked_reason = $1
		WHERE user_id = $2 AND revoked_at IS NULL
	`
	result, err := r.pool.Exec(ctx, query, reason, userID)
	if err != nil {
		return 0, domainErrors.WrapDatabase(fmt.Errorf("failed to revoke user refresh tokens: %w", err))
	}
	return result.RowsAffected(), nil
}

// DeleteBySessionID removes all refresh tokens of a session.
func (r *RefreshTokenRepositoryPostgres) DeleteBySessionID(ctx context.Context, sessionID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE session_id = $1`, sessionID)
	if err != nil {
		return domainErrors.WrapDatabase(fmt.Errorf("failed to delete refresh tokens by session: %w", err))
	}
	return nil
}
