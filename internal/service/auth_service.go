package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	domainErrors "github.com/driftline/auth-service/internal/domain/errors"
	"github.com/driftline/auth-service/internal/domain/models"
	"github.com/driftline/auth-service/internal/events"
	"github.com/driftline/auth-service/internal/infrastructure/security"
	"github.com/driftline/auth-service/internal/repository/interfaces"
	"github.com/driftline/auth-service/internal/utils/metrics"
)

// AuthService orchestrates registration, signin, email verification, logout
// and the password-reset flow.
type AuthService struct {
	userRepo         interfaces.UserRepository
	refreshTokenRepo interfaces.RefreshTokenRepository
	password         security.PasswordService
	tokenManager     *security.TokenManager
	sessions         *SessionService
	tokens           *TokenService
	verifications    *VerificationService
	publisher        events.Publisher
	logger           *zap.Logger

	maxFailedAttempts int
	lockoutDuration   time.Duration
}

// NewAuthService creates a new AuthService.
func NewAuthService(
	userRepo interfaces.UserRepository,
	refreshTokenRepo interfaces.RefreshTokenRepository,
	password security.PasswordService,
	tokenManager *security.TokenManager,
	sessions *SessionService,
	tokens *TokenService,
	verifications *VerificationService,
	publisher events.Publisher,
	maxFailedAttempts int,
	lockoutDuration time.Duration,
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		userRepo:          userRepo,
		refreshTokenRepo:  refreshTokenRepo,
		password:          password,
		tokenManager:      tokenManager,
		sessions:          sessions,
		tokens:            tokens,
		verifications:     verifications,
		publisher:         publisher,
		maxFailedAttempts: maxFailedAttempts,
		lockoutDuration:   lockoutDuration,
		logger:            logger.Named("auth_service"),
	}
}

// Register creates an unverified user and opens their email verification
// window. The response carries the verification code and its validity so
// the client can drive the confirm step.
func (s *AuthService) Register(ctx context.Context, req models.CreateUserRequest, ip string) (*models.RegisterResult, error) {
	passwordHash, err := s.password.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	secret, err := security.GenerateUserSecret()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	user := &models.User{
		ID:           uuid.New(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: passwordHash,
		Secret:       secret,
		Role:         "user",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		metrics.RegistrationAttemptsTotal.WithLabelValues("conflict").Inc()
		return nil, err
	}

	issued, err := s.verifications.StartEmailVerification(ctx, user.ID, user.Email, ip, user.Secret)
	if err != nil {
		// The user row exists; they can request a resend via signin.
		s.logger.Error("Failed to issue verification window after registration", zap.Error(err), zap.String("user_id", user.ID.String()))
		return nil, err
	}

	metrics.RegistrationAttemptsTotal.WithLabelValues("success").Inc()
	s.logger.Info("User registered", zap.String("user_id", user.ID.String()), zap.String("username", user.Username))
	return &models.RegisterResult{User: user, Verification: *issued}, nil
}

// VerifyEmail redeems the verification window. The window binds user, email
// and issuing IP; the OTP proves the code was derived from the user's
// current secret. On success the secret rotates, so the consumed code (and
// anything else derived from the old secret) is dead even before the window
// would have expired.
func (s *AuthService) VerifyEmail(ctx context.Context, req models.VerifyEmailRequest, ip string) error {
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return domainErrors.ErrInvalidInput
	}
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.IsEmailVerified() {
		return domainErrors.ErrVerificationNotFound
	}

	return s.verifications.RedeemEmailVerification(ctx, userID, req.Email, ip, req.VerificationCode, func(ctx context.Context) error {
		valid, err := security.VerifyWindowedOTP(user.Secret, req.OTP)
		if err != nil {
			return err
		}
		if !valid {
			return domainErrors.ErrVerificationMismatch
		}

		newSecret, err := security.GenerateUserSecret()
		if err != nil {
			return err
		}
		now := time.Now()
		user.EmailVerifiedAt = &now
		user.Secret = newSecret
		user.UpdatedAt = now
		if err := s.userRepo.Update(ctx, user); err != nil {
			return err
		}

		if err := s.publisher.Publish(ctx, events.EventEmailVerified, user.ID.String(),
			events.SessionEventPayload{UserID: user.ID.String()}); err != nil {
			s.logger.Error("Failed to publish email verified event", zap.Error(err), zap.String("user_id", user.ID.String()))
		}
		return nil
	})
}

// Signin verifies credentials and opens an aal1 session. A first factor
// only ever yields aal1, whatever factors the user has enrolled; escalation
// goes through the challenge flow. An unverified email is not an error: the
// typed alternate outcome carries a fresh (or re-used) verification window
// so the client can resume.
func (s *AuthService) Signin(ctx context.Context, req models.SigninRequest, ip, userAgent string) (*models.SigninResult, error) {
	strategy, identifier, err := SelectStrategy(req, s.userRepo)
	if err != nil {
		return nil, err
	}

	user, err := strategy.Resolve(ctx, identifier)
	if err != nil {
		if errors.Is(err, domainErrors.ErrUserNotFound) {
			metrics.SigninAttemptsTotal.WithLabelValues("unknown_user").Inc()
			return nil, domainErrors.ErrInvalidCredentials
		}
		return nil, err
	}

	now := time.Now()
	if user.IsLockedOut(now) {
		metrics.SigninAttemptsTotal.WithLabelValues("locked_out").Inc()
		return nil, domainErrors.ErrUserLockedOut
	}

	match, err := s.password.CheckPasswordHash(req.Password, user.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !match {
		s.recordFailedAttempt(ctx, user, now)
		metrics.SigninAttemptsTotal.WithLabelValues("bad_password").Inc()
		return nil, domainErrors.ErrInvalidCredentials
	}

	if user.FailedLoginAttempts > 0 || user.LockoutUntil != nil {
		if err := s.userRepo.UpdateFailedAttempts(ctx, user.ID, 0, nil); err != nil {
			s.logger.Warn("Failed to reset failed-attempt counter", zap.Error(err), zap.String("user_id", user.ID.String()))
		}
	}

	if !user.IsEmailVerified() {
		issued, err := s.verifications.StartEmailVerification(ctx, user.ID, user.Email, ip, user.Secret)
		if err != nil {
			return nil, err
		}
		metrics.SigninAttemptsTotal.WithLabelValues("email_unverified").Inc()
		return &models.SigninResult{
			Status:       models.SigninStatusEmailUnverified,
			User:         user,
			Verification: issued,
		}, nil
	}

	session, err := s.sessions.Create(ctx, CreateSessionParams{
		UserID:    user.ID,
		AAL:       models.AAL1,
		AMR:       []models.AMREntry{{Method: "password", Timestamp: now.Unix()}},
		IPAddress: ip,
		UserAgent: userAgent,
	})
	if err != nil {
		return nil, err
	}
	pair, err := s.tokens.CreatePair(ctx, user, session)
	if err != nil {
		return nil, err
	}

	if err := s.userRepo.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("Failed to record last login", zap.Error(err), zap.String("user_id", user.ID.String()))
	}

	metrics.SigninAttemptsTotal.WithLabelValues("success").Inc()
	return &models.SigninResult{
		Status:    models.SigninStatusOK,
		User:      user,
		TokenPair: pair,
	}, nil
}

func (s *AuthService) recordFailedAttempt(ctx context.Context, user *models.User, now time.Time) {
	attempts := user.FailedLoginAttempts + 1
	var lockoutUntil *time.Time
	if attempts >= s.maxFailedAttempts {
		until := now.Add(s.lockoutDuration)
		lockoutUntil = &until
		s.logger.Warn("User locked out after repeated failures",
			zap.String("user_id", user.ID.String()),
			zap.Int("attempts", attempts),
		)
	}
	if err := s.userRepo.UpdateFailedAttempts(ctx, user.ID, attempts, lockoutUntil); err != nil {
		s.logger.Error("Failed to record failed signin attempt", zap.Error(err), zap.String("user_id", user.ID.String()))
	}
}

// Logout revokes the caller's session and the refresh tokens minted for it.
func (s *AuthService) Logout(ctx context.Context, sessionID uuid.UUID) error {
	if err := s.refreshTokenRepo.DeleteBySessionID(ctx, sessionID); err != nil {
		s.logger.Warn("Failed to delete refresh tokens on logout", zap.Error(err), zap.String("session_id", sessionID.String()))
	}
	return s.sessions.Delete(ctx, sessionID)
}

// LogoutAll revokes every session and refresh token of a user.
func (s *AuthService) LogoutAll(ctx context.Context, userID uuid.UUID) error {
	if err := s.tokens.RevokeAllForUser(ctx, userID, "logout_all"); err != nil {
		return err
	}
	return s.sessions.RevokeAllForUser(ctx, userID)
}

// ListSessions returns the user's live sessions from the durable store.
func (s *AuthService) ListSessions(ctx context.Context, userID uuid.UUID) ([]*models.Session, error) {
	return s.sessions.ListForUser(ctx, userID)
}

// ForgotPassword opens a reset window and publishes the signed RID token
// for delivery. An unknown email reports success without side effects so
// the endpoint cannot be used to probe for accounts.
func (s *AuthService) ForgotPassword(ctx context.Context, email, ip string) error {
	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domainErrors.ErrUserNotFound) {
			s.logger.Info("Password reset requested for unknown email")
			return nil
		}
		return err
	}

	windowToken, ttl, err := s.verifications.StartPasswordReset(ctx, user.ID, user.Email, ip)
	if err != nil {
		return err
	}
	ridToken, err := s.tokenManager.GenerateResetToken(user, ip, windowToken)
	if err != nil {
		return err
	}

	if err := s.publisher.Publish(ctx, events.EventPasswordResetRequested, user.ID.String(),
		events.PasswordResetRequestedPayload{
			UserID:      user.ID.String(),
			Email:       user.Email,
			ResetToken:  ridToken,
			ExpiresInMs: ttl.Milliseconds(),
		}); err != nil {
		s.logger.Error("Failed to publish password reset event", zap.Error(err), zap.String("user_id", user.ID.String()))
	}
	return nil
}

// ResetPassword redeems a RID token. The signature check runs against the
// user's current secret and the requesting IP; a rotated secret or a
// different IP invalidates the token outright. On success the password is
// replaced, the secret rotates again, and every session dies.
func (s *AuthService) ResetPassword(ctx context.Context, req models.ResetPasswordRequest, ip string) error {
	userID, err := s.tokenManager.ExtractResetSubject(req.Token)
	if err != nil {
		return err
	}
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	claims, err := s.tokenManager.ParseResetToken(req.Token, user, ip)
	if err != nil {
		return err
	}

	return s.verifications.RedeemPasswordReset(ctx, claims.ID, user.ID, user.Email, ip, func(ctx context.Context) error {
		passwordHash, err := s.password.HashPassword(req.NewPassword)
		if err != nil {
			return err
		}
		newSecret, err := security.GenerateUserSecret()
		if err != nil {
			return err
		}
		user.PasswordHash = passwordHash
		user.Secret = newSecret
		user.FailedLoginAttempts = 0
		user.LockoutUntil = nil
		user.UpdatedAt = time.Now()
		if err := s.userRepo.Update(ctx, user); err != nil {
			return err
		}

		if err := s.tokens.RevokeAllForUser(ctx, user.ID, "password_reset"); err != nil {
			s.logger.Error("Failed to revoke refresh tokens after password reset", zap.Error(err), zap.String("user_id", user.ID.String()))
		}
		if err := s.sessions.RevokeAllForUser(ctx, user.ID); err != nil {
			s.logger.Error("Failed to revoke sessions after password reset", zap.Error(err), zap.String("user_id", user.ID.String()))
		}

		if err := s.publisher.Publish(ctx, events.EventPasswordChanged, user.ID.String(),
			events.SessionEventPayload{UserID: user.ID.String()}); err != nil {
			s.logger.Error("Failed to publish password changed event", zap.Error(err), zap.String("user_id", user.ID.String()))
		}
		return nil
	})
}
