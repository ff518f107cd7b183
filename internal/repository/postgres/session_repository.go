package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	domainErrors "github.com/driftline/auth-service/internal/domain/errors"
	"github.com/driftline/auth-service/internal/domain/models"
)

// SessionRepositoryPostgres implements interfaces.SessionRepository.
// The amr column is JSONB.
type SessionRepositoryPostgres struct {
	pool *pgxpool.Pool
}

// NewSessionRepositoryPostgres creates a new SessionRepositoryPostgres.
func NewSessionRepositoryPostgres(pool *pgxpool.Pool) *SessionRepositoryPostgres {
	return &SessionRepositoryPostgres{pool: pool}
}

func scanSession(row pgx.Row) (*models.Session, error) {
	s := &models.Session{}
	var amr []byte
	err := row.Scan(&s.ID, &s.UserID, &s.FactorID, &s.AAL, &amr,
		&s.IPAddress, &s.UserAgent, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrSessionNotFound
		}
		return nil, domainErrors.WrapDatabase(err)
	}
	if len(amr) > 0 {
		if err := json.Unmarshal(amr, &s.AMR); err != nil {
			return nil, domainErrors.WrapDatabase(fmt.Errorf("failed to decode session amr: %w", err))
		}
	}
	return s, nil
}

// Create persists a new session row.
func (r *SessionRepositoryPostgres) Create(ctx context.Context, session *models.Session) error {
	amr, err := json.Marshal(session.AMR)
	if err != nil {
		return fmt.Errorf("failed to encode session amr: %w", err)
	}
	query := `
		INSERT INTO sessions (id, user_id, factor_id, aal, amr, ip_address, user_agent, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = r.pool.Exec(ctx, query,
		session.ID, session.UserID, session.FactorID, session.AAL, amr,
		session.IPAddress, session.UserAgent, session.CreatedAt, session.UpdatedAt,
	)
	if err != nil {
		return domainErrors.WrapDatabase(fmt.Errorf("failed to create session: %w", err))
	}
	return nil
}

// FindByID retrieves a session by id.
func (r *SessionRepositoryPostgres) FindByID(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	query := `
		SELECT id, user_id, factor_id, aal, amr, ip_address, user_agent, created_at, updated_at
		FROM sessions WHERE id = $1
	`
	return scanSession(r.pool.QueryRow(ctx, query, id))
}

// FindByUserID lists all sessions of a user.
func (r *SessionRepositoryPostgres) FindByUserID(ctx context.Context, userID uuid.UUID) ([]*models.Session, error) {
	query := `
		SELECT id, user_id, factor_id, aal, amr, ip_address, user_agent, created_at, updated_at
		FROM sessions WHERE user_id = $1 ORDER BY created_at DESC
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, domainErrors.WrapDatabase(fmt.Errorf("failed to list sessions: %w", err))
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, domainErrors.WrapDatabase(err)
	}
	return sessions, nil
}

// Update rewrites the mutable fields of a session row.
func (r *SessionRepositoryPostgres) Update(ctx context.Context, session *models.Session) error {
	amr, err := json.Marshal(session.AMR)
	if err != nil {
		return fmt.Errorf("failed to encode session amr: %w", err)
	}
	query := `
		UPDATE sessions
		SET factor_id = $1, aal = $2, amr = $3, updated_at = $4
		WHERE id = $5
	`
	result, err := r.pool.Exec(ctx, query, session.FactorID, session.AAL, amr, session.UpdatedAt, session.ID)
	if err != nil {
		return domainErrors.WrapDatabase(fmt.Errorf("failed to update session: %w", err))
	}
	if result.RowsAffected() == 0 {
		return domainErrors.ErrSessionNotFound
	}
	return nil
}

// Delete removes a session row.
func (r *SessionRepositoryPostgres) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return domainErrors.WrapDatabase(fmt.Errorf("failed to delete session: %w", err))
	}
	if result.RowsAffected() == 0 {
		return domainErrors.ErrSessionNotFound
	}
	return nil
}

// DeleteAllByUserID removes every session of a user.
func (r *SessionRepositoryPostgres) DeleteAllByUserID(ctx context.Context, userID uuid.UUID) (int64, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	if err != nil {
		return 0, domainErrors.WrapDatabase(fmt.Errorf("failed to delete user sessions: %w", err))
	}
	return result.RowsAffected(), nil
}
