package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	domainErrors "github.com/driftline/auth-service/internal/domain/errors"
	"github.com/driftline/auth-service/internal/domain/models"
)

const userColumns = `id, username, email, password_hash, secret, role, email_verified_at,
	is_2fa_enabled, totp_secret, is_onboarded, app_metadata, user_metadata,
	failed_login_attempts, lockout_until, last_login_at, created_at, updated_at`

// UserRepositoryPostgres implements interfaces.UserRepository.
type UserRepositoryPostgres struct {
	pool *pgxpool.Pool
}

// NewUserRepositoryPostgres creates a new UserRepositoryPostgres.
func NewUserRepositoryPostgres(pool *pgxpool.Pool) *UserRepositoryPostgres {
	return &UserRepositoryPostgres{pool: pool}
}

func scanUser(row pgx.Row) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Secret, &u.Role, &u.EmailVerifiedAt,
		&u.Is2FAEnabled, &u.TOTPSecret, &u.IsOnboarded, &u.AppMetadata, &u.UserMetadata,
		&u.FailedLoginAttempts, &u.LockoutUntil, &u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrUserNotFound
		}
		return nil, domainErrors.WrapDatabase(err)
	}
	return u, nil
}

// Create persists a new user. Uniqueness violations map to the identifier
// they collide on.
func (r *UserRepositoryPostgres) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, username, email, password_hash, secret, role,
			is_2fa_enabled, is_onboarded, app_metadata, user_metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.pool.Exec(ctx, query,
		user.ID, user.Username, user.Email, user.PasswordHash, user.Secret, user.Role,
		user.Is2FAEnabled, user.IsOnboarded, user.AppMetadata, user.UserMetadata,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			if strings.Contains(pgErr.ConstraintName, "email") {
				return domainErrors.ErrEmailExists
			}
			return domainErrors.ErrUsernameExists
		}
		return domainErrors.WrapDatabase(fmt.Errorf("failed to create user: %w", err))
	}
	return nil
}

// FindByID retrieves a user by id.
func (r *UserRepositoryPostgres) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, userColumns)
	return scanUser(r.pool.QueryRow(ctx, query, id))
}

// FindByEmail retrieves a user by email.
func (r *UserRepositoryPostgres) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE email = $1`, userColumns)
	return scanUser(r.pool.QueryRow(ctx, query, email))
}

// FindByUsername retrieves a user by username.
func (r *UserRepositoryPostgres) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE username = $1`, userColumns)
	return scanUser(r.pool.QueryRow(ctx, query, username))
}

// Update writes the mutable security-sensitive fields of a user.
func (r *UserRepositoryPostgres) Update(ctx context.Context, user *models.User) error {
	query := `
		UPDATE users
		SET username = $1, email = $2, password_hash = $3, secret = $4, role = $5,
			email_verified_at = $6, is_2fa_enabled = $7, totp_secret = $8,
			is_onboarded = $9, updated_at = NOW()
		WHERE id = $10
	`
	result, err := r.pool.Exec(ctx, query,
		user.Username, user.Email, user.PasswordHash, user.Secret, user.Role,
		user.EmailVerifiedAt, user.Is2FAEnabled, user.TOTPSecret,
		user.IsOnboarded, user.ID,
	)
	if err != nil {
		return domainErrors.WrapDatabase(fmt.Errorf("failed to update user: %w", err))
	}
	if result.RowsAffected() == 0 {
		return domainErrors.ErrUserNotFound
	}
	return nil
}

// UpdateLastLogin records a successful signin and clears failed attempts.
func (r *UserRepositoryPostgres) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE users
		SET last_login_at = $1, failed_login_attempts = 0, lockout_until = NULL, updated_at = NOW()
		WHERE id = $2
	`
	result, err := r.pool.Exec(ctx, query, at, id)
	if err != nil {
		return domainErrors.WrapDatabase(fmt.Errorf("failed to update last login: %w", err))
	}
	if result.RowsAffected() == 0 {
		return domainErrors.ErrUserNotFound
	}
	return nil
}

// UpdateFailedAttempts writes the failed-attempt counter and lockout window.
func (r *UserRepositoryPostgres) UpdateFailedAttempts(ctx context.Context, id uuid.UUID, attempts int, lockoutUntil *time.Time) error {
	query := `
		UPDATE users
		SET failed_login_attempts = $1, lockout_until = $2, updated_at = NOW()
		WHERE id = $3
	`
	result, err := r.pool.Exec(ctx, query, attempts, lockoutUntil, id)
	if err != nil {
		return domainErrors.WrapDatabase(fmt.Errorf("failed to update failed attempts: %w", err))
	}
	if result.RowsAffected() == 0 {
		return domainErrors.ErrUserNotFound
	}
	return nil
}
