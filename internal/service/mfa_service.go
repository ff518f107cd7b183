package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	domainErrors "github.com/driftline/auth-service/internal/domain/errors"
	"github.com/driftline/auth-service/internal/domain/models"
	"github.com/driftline/auth-service/internal/infrastructure/security"
	"github.com/driftline/auth-service/internal/repository/interfaces"
	"github.com/driftline/auth-service/internal/utils/metrics"
)

// MFAService drives the factor/challenge lifecycle: enrollment, challenge
// creation, verification with session escalation to aal2, and unenrollment.
type MFAService struct {
	factorRepo    interfaces.FactorRepository
	challengeRepo interfaces.ChallengeRepository
	totp          security.TOTPService
	encryption    security.EncryptionService
	password      security.PasswordService
	sessions      *SessionService
	tokens        *TokenService
	logger        *zap.Logger

	encryptionKeyHex string
}

// NewMFAService creates a new MFAService.
func NewMFAService(
	factorRepo interfaces.FactorRepository,
	challengeRepo interfaces.ChallengeRepository,
	totp security.TOTPService,
	encryption security.EncryptionService,
	password security.PasswordService,
	sessions *SessionService,
	tokens *TokenService,
	encryptionKeyHex string,
	logger *zap.Logger,
) *MFAService {
	return &MFAService{
		factorRepo:       factorRepo,
		challengeRepo:    challengeRepo,
		totp:             totp,
		encryption:       encryption,
		password:         password,
		sessions:         sessions,
		tokens:           tokens,
		encryptionKeyHex: encryptionKeyHex,
		logger:           logger.Named("mfa_service"),
	}
}

// EnrollFactor creates an UNVERIFIED TOTP factor. The plaintext secret and
// provisioning URL are returned exactly once, here; only the encrypted
// secret is persisted. A user with a verified TOTP factor cannot enroll
// another.
func (s *MFAService) EnrollFactor(ctx context.Context, user *models.User, req models.EnrollFactorRequest) (*models.EnrollFactorResponse, error) {
	if _, err := s.factorRepo.FindVerifiedTOTPByUserID(ctx, user.ID); err == nil {
		return nil, domainErrors.ErrFactorAlreadyExists
	} else if !errors.Is(err, domainErrors.ErrFactorNotFound) {
		return nil, err
	}

	secret, otpAuthURL, err := s.totp.GenerateSecret(user.Email)
	if err != nil {
		return nil, err
	}
	encryptedSecret, err := s.encryption.Encrypt(secret, s.encryptionKeyHex)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	factor := &models.Factor{
		ID:              uuid.New(),
		UserID:          user.ID,
		FactorType:      models.FactorTypeTOTP,
		Status:          models.FactorStatusUnverified,
		EncryptedSecret: encryptedSecret,
		FriendlyName:    req.FriendlyName,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.factorRepo.Create(ctx, factor); err != nil {
		return nil, err
	}

	s.logger.Info("Factor enrolled",
		zap.String("user_id", user.ID.String()),
		zap.String("factor_id", factor.ID.String()),
	)
	return &models.EnrollFactorResponse{
		FactorID:     factor.ID,
		FactorType:   factor.FactorType,
		Secret:       secret,
		OTPAuthURL:   otpAuthURL,
		QRCode:       otpAuthURL,
		FriendlyName: factor.FriendlyName,
	}, nil
}

// CreateChallenge opens a verification attempt against a factor, pinned to
// the caller's IP. The factor must belong to the caller.
func (s *MFAService) CreateChallenge(ctx context.Context, userID, factorID uuid.UUID, ip string) (*models.ChallengeResponse, error) {
	factor, err := s.factorRepo.FindByID(ctx, factorID)
	if err != nil {
		return nil, err
	}
	if factor.UserID != userID {
		return nil, domainErrors.ErrForbidden
	}

	challenge := &models.Challenge{
		ID:        uuid.New(),
		FactorID:  factor.ID,
		IPAddress: ip,
		CreatedAt: time.Now(),
	}
	if err := s.challengeRepo.Create(ctx, challenge); err != nil {
		return nil, err
	}
	return &models.ChallengeResponse{
		ID:        challenge.ID,
		FactorID:  challenge.FactorID,
		ExpiresAt: challenge.CreatedAt.Add(models.ChallengeLifetime),
	}, nil
}

// consumeChallenge runs the ordered guard chain over a challenge and its
// code, and consumes the challenge on success. Guard order is fixed:
// ownership, existence, single-use, IP pin, lifetime, then the code itself.
func (s *MFAService) consumeChallenge(ctx context.Context, userID uuid.UUID, factor *models.Factor, challengeID uuid.UUID, code, ip string) error {
	if factor.UserID != userID {
		return domainErrors.ErrForbidden
	}

	challenge, err := s.challengeRepo.FindByID(ctx, challengeID)
	if err != nil {
		return err
	}
	if challenge.FactorID != factor.ID {
		return domainErrors.ErrChallengeNotFound
	}
	if challenge.IsVerified() {
		return domainErrors.ErrChallengeVerified
	}
	if challenge.IPAddress != ip {
		return domainErrors.ErrChallengeIPMismatch
	}
	if challenge.IsExpired(time.Now()) {
		return domainErrors.ErrChallengeExpired
	}

	secret, err := s.encryption.Decrypt(factor.EncryptedSecret, s.encryptionKeyHex)
	if err != nil {
		return err
	}
	valid, err := s.totp.ValidateCode(secret, code)
	if err != nil {
		return err
	}
	if !valid {
		return domainErrors.ErrInvalidTOTPCode
	}

	// MarkVerified is conditional on verified_at IS NULL, so a concurrent
	// consumer of the same challenge loses here instead of double-spending.
	if err := s.challengeRepo.MarkVerified(ctx, challenge.ID, time.Now()); err != nil {
		return err
	}
	return nil
}

// VerifyChallenge consumes a challenge, promotes an unverified factor, and
// escalates the caller's session to aal2 with a totp AMR entry. It returns
// a fresh token pair carrying the new assurance level.
func (s *MFAService) VerifyChallenge(ctx context.Context, user *models.User, sessionID uuid.UUID, req models.VerifyFactorRequest, ip string, factorID uuid.UUID) (*models.TokenPair, error) {
	factor, err := s.factorRepo.FindByID(ctx, factorID)
	if err != nil {
		metrics.MFAVerificationsTotal.WithLabelValues("factor_not_found").Inc()
		return nil, err
	}
	if err := s.consumeChallenge(ctx, user.ID, factor, req.ChallengeID, req.Code, ip); err != nil {
		metrics.MFAVerificationsTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	if factor.Status == models.FactorStatusUnverified {
		if err := s.factorRepo.UpdateStatus(ctx, factor.ID, models.FactorStatusVerified); err != nil {
			return nil, err
		}
	}

	aal2 := models.AAL2
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	amr := append(append([]models.AMREntry{}, session.AMR...), models.AMREntry{
		Method:    "totp",
		Timestamp: time.Now().Unix(),
	})
	session, err = s.sessions.Update(ctx, sessionID, models.SessionUpdate{
		FactorID: &factor.ID,
		AAL:      &aal2,
		AMR:      amr,
	})
	if err != nil {
		return nil, err
	}

	pair, err := s.tokens.CreatePair(ctx, user, session)
	if err != nil {
		return nil, err
	}
	metrics.MFAVerificationsTotal.WithLabelValues("success").Inc()
	s.logger.Info("Challenge verified, session escalated",
		zap.String("user_id", user.ID.String()),
		zap.String("factor_id", factor.ID.String()),
		zap.String("session_id", sessionID.String()),
	)
	return pair, nil
}

// UnenrollFactor removes a factor. It demands full re-authentication: the
// account password plus a freshly verified challenge against the factor
// being removed. The caller's session drops back to aal1.
func (s *MFAService) UnenrollFactor(ctx context.Context, user *models.User, sessionID, factorID uuid.UUID, req models.UnenrollFactorRequest, ip string) error {
	match, err := s.password.CheckPasswordHash(req.Password, user.PasswordHash)
	if err != nil {
		return err
	}
	if !match {
		return domainErrors.ErrInvalidCredentials
	}

	factor, err := s.factorRepo.FindByID(ctx, factorID)
	if err != nil {
		return err
	}
	if err := s.consumeChallenge(ctx, user.ID, factor, req.ChallengeID, req.Code, ip); err != nil {
		return err
	}

	if err := s.challengeRepo.DeleteByFactorID(ctx, factor.ID); err != nil {
		s.logger.Warn("Failed to delete challenges of unenrolled factor", zap.Error(err), zap.String("factor_id", factor.ID.String()))
	}
	if err := s.factorRepo.Delete(ctx, factor.ID); err != nil {
		return err
	}

	aal1 := models.AAL1
	amr := make([]models.AMREntry, 0, 1)
	session, err := s.sessions.Get(ctx, sessionID)
	if err == nil {
		for _, entry := range session.AMR {
			if entry.Method != "totp" {
				amr = append(amr, entry)
			}
		}
	}
	if _, err := s.sessions.Update(ctx, sessionID, models.SessionUpdate{AAL: &aal1, AMR: amr}); err != nil {
		s.logger.Warn("Failed to downgrade session after unenroll", zap.Error(err), zap.String("session_id", sessionID.String()))
	}

	s.logger.Info("Factor unenrolled",
		zap.String("user_id", user.ID.String()),
		zap.String("factor_id", factor.ID.String()),
	)
	return nil
}
