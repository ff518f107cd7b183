package service

import (
	"context"
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

// VerificationService manages the short-lived, IP-bound, idempotent
// verification windows backing email verification, password reset and
// signup OTP delivery.
type VerificationService struct {
	windows   interfaces.VerificationWindowStore
	publisher events.Publisher
	logger    *zap.Logger

	emailTTL time.Duration
	resetTTL time.Duration
}

// NewVerificationService creates a new VerificationService.
func NewVerificationService(
	windows interfaces.VerificationWindowStore,
	publisher events.Publisher,
	logger *zap.Logger,
	emailTTL, resetTTL time.Duration,
) *VerificationService {
	return &VerificationService{
		windows:   windows,
		publisher: publisher,
		logger:    logger.Named("verification_service"),
		emailTTL:  emailTTL,
		resetTTL:  resetTTL,
	}
}

// StartEmailVerification issues (or re-issues) the email verification
// window for a user. The code is the windowed OTP derived from the user's
// rotating secret. Issuance is exactly-once per live window: if a window is
// already alive, its code and the remaining TTL are returned unchanged and
// no new notification is published.
func (s *VerificationService) StartEmailVerification(ctx context.Context, userID uuid.UUID, email, ip, secret string) (*models.VerificationIssued, error) {
	code, err := security.GenerateWindowedOTP(secret)
	if err != nil {
		return nil, err
	}

	key := models.EmailVerificationKey(email)
	window := &models.VerificationWindow{UserID: userID, Email: email, IP: ip, Code: code}

	created, err := s.windows.Create(ctx, key, window, s.emailTTL)
	if err != nil {
		return nil, err
	}
	if !created {
		// A live window exists; return its code and remaining TTL so
		// repeated "resend" calls stay spam-free.
		existing, remaining, err := s.windows.Get(ctx, key)
		if err == nil {
			metrics.VerificationWindowsIssued.WithLabelValues("email", "true").Inc()
			return &models.VerificationIssued{VerificationCode: existing.Code, ExpiresIn: remaining}, nil
		}
		if err != domainErrors.ErrVerificationNotFound {
			return nil, err
		}
		// The window expired between SetNX and Get; retry the create once.
		if created, err = s.windows.Create(ctx, key, window, s.emailTTL); err != nil {
			return nil, err
		}
	}

	metrics.VerificationWindowsIssued.WithLabelValues("email", "false").Inc()
	if err := s.publisher.Publish(ctx, events.EventEmailVerificationRequested, userID.String(),
		events.EmailVerificationRequestedPayload{
			UserID:           userID.String(),
			Email:            email,
			VerificationCode: code,
			ExpiresInMs:      s.emailTTL.Milliseconds(),
		}); err != nil {
		s.logger.Error("Failed to publish email verification event", zap.Error(err), zap.String("user_id", userID.String()))
	}
	return &models.VerificationIssued{VerificationCode: code, ExpiresIn: s.emailTTL}, nil
}

// RedeemEmailVerification validates every bound field of the window in
// order, runs the dependent state change, and deletes the window only after
// both succeed. A partial validation failure leaves the window intact so
// the legitimate holder can retry within the TTL.
func (s *VerificationService) RedeemEmailVerification(ctx context.Context, userID uuid.UUID, email, ip, code string, apply func(ctx context.Context) error) error {
	key := models.EmailVerificationKey(email)
	window, _, err := s.windows.Get(ctx, key)
	if err != nil {
		return err
	}

	if window.IP != ip {
		return domainErrors.ErrVerificationMismatch
	}
	if window.UserID != userID {
		return domainErrors.ErrVerificationMismatch
	}
	if window.Email != email {
		return domainErrors.ErrVerificationMismatch
	}
	if window.Code != code {
		return domainErrors.ErrVerificationMismatch
	}

	if err := apply(ctx); err != nil {
		return err
	}
	if err := s.windows.Delete(ctx, key); err != nil {
		// The state change already committed; an undeleted window expires
		// on its own TTL. Log and report success.
		s.logger.Error("Failed to delete redeemed verification window", zap.Error(err), zap.String("key", key))
	}
	return nil
}

// StartPasswordReset issues a password-reset window keyed by an opaque
// token. The token is also the window code; the caller wraps it in a
// signed RID token before it leaves the service.
func (s *VerificationService) StartPasswordReset(ctx context.Context, userID uuid.UUID, email, ip string) (string, time.Duration, error) {
	token, err := security.GenerateOpaqueToken(32)
	if err != nil {
		return "", 0, err
	}

	key := models.PasswordResetKey(token)
	window := &models.VerificationWindow{UserID: userID, Email: email, IP: ip, Code: token}
	created, err := s.windows.Create(ctx, key, window, s.resetTTL)
	if err != nil {
		return "", 0, err
	}
	if !created {
		// Token collision is not practically possible; treat as a fault.
		return "", 0, domainErrors.ErrInternal
	}
	metrics.VerificationWindowsIssued.WithLabelValues("password_reset", "false").Inc()
	return token, s.resetTTL, nil
}

// RedeemPasswordReset validates the reset window and runs the password
// update. Field order matches the email redeem: IP, user, email, code.
func (s *VerificationService) RedeemPasswordReset(ctx context.Context, token string, userID uuid.UUID, email, ip string, apply func(ctx context.Context) error) error {
	key := models.PasswordResetKey(token)
	window, _, err := s.windows.Get(ctx, key)
	if err != nil {
		return err
	}

	if window.IP != ip {
		return domainErrors.ErrVerificationMismatch
	}
	if window.UserID != userID {
		return domainErrors.ErrVerificationMismatch
	}
	if window.Email != email {
		return domainErrors.ErrVerificationMismatch
	}
	if window.Code != token {
		return domainErrors.ErrVerificationMismatch
	}

	if err := apply(ctx); err != nil {
		return err
	}
	if err := s.windows.Delete(ctx, key); err != nil {
		s.logger.Error("Failed to delete redeemed reset window", zap.Error(err), zap.String("key", key))
	}
	return nil
}
