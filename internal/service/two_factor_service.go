package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	domainErrors "github.com/driftline/auth-service/internal/domain/errors"
	"github.com/driftline/auth-service/internal/domain/models"
	"github.com/driftline/auth-service/internal/infrastructure/security"
	"github.com/driftline/auth-service/internal/repository/interfaces"
)

// TwoFactorService is the single-secret 2FA lifecycle that predates the
// factor/challenge machinery: one pending-or-active TOTP secret per user,
// toggled by the is_2fa_enabled flag. Both systems coexist; this one has no
// challenge objects and no session escalation.
type TwoFactorService struct {
	userRepo   interfaces.UserRepository
	totp       security.TOTPService
	encryption security.EncryptionService
	password   security.PasswordService
	sessions   *SessionService
	tokens     *TokenService
	logger     *zap.Logger

	encryptionKeyHex string
}

// NewTwoFactorService creates a new TwoFactorService.
func NewTwoFactorService(
	userRepo interfaces.UserRepository,
	totp security.TOTPService,
	encryption security.EncryptionService,
	password security.PasswordService,
	sessions *SessionService,
	tokens *TokenService,
	encryptionKeyHex string,
	logger *zap.Logger,
) *TwoFactorService {
	return &TwoFactorService{
		userRepo:         userRepo,
		totp:             totp,
		encryption:       encryption,
		password:         password,
		sessions:         sessions,
		tokens:           tokens,
		encryptionKeyHex: encryptionKeyHex,
		logger:           logger.Named("two_factor_service"),
	}
}

// Generate mints a pending TOTP secret for the user. The secret is stored
// encrypted but 2FA stays off until Enable confirms a valid code.
func (s *TwoFactorService) Generate(ctx context.Context, user *models.User) (*models.Generate2FAResponse, error) {
	if user.Is2FAEnabled {
		return nil, domainErrors.Err2FAAlreadyEnabled
	}

	secret, otpAuthURL, err := s.totp.GenerateSecret(user.Email)
	if err != nil {
		return nil, err
	}
	encryptedSecret, err := s.encryption.Encrypt(secret, s.encryptionKeyHex)
	if err != nil {
		return nil, err
	}

	user.TOTPSecret = &encryptedSecret
	user.UpdatedAt = time.Now()
	if err := s.userRepo.Update(ctx, user); err != nil {
		return nil, err
	}

	return &models.Generate2FAResponse{
		Secret:     secret,
		OTPAuthURL: otpAuthURL,
		QRCode:     otpAuthURL,
	}, nil
}

// Enable activates 2FA after the user proves possession of the pending
// secret with a first valid code.
func (s *TwoFactorService) Enable(ctx context.Context, user *models.User, code string) error {
	if user.Is2FAEnabled {
		return domainErrors.Err2FAAlreadyEnabled
	}
	if user.TOTPSecret == nil {
		return domainErrors.Err2FANotEnabled
	}

	valid, err := s.verifyCode(*user.TOTPSecret, code)
	if err != nil {
		return err
	}
	if !valid {
		return domainErrors.ErrInvalidTOTPCode
	}

	user.Is2FAEnabled = true
	user.UpdatedAt = time.Now()
	if err := s.userRepo.Update(ctx, user); err != nil {
		return err
	}
	s.logger.Info("2FA enabled", zap.String("user_id", user.ID.String()))
	return nil
}

// Verify checks a code against the user's active 2FA secret.
func (s *TwoFactorService) Verify(ctx context.Context, user *models.User, code string) error {
	if !user.Is2FAEnabled || user.TOTPSecret == nil {
		return domainErrors.Err2FANotEnabled
	}
	valid, err := s.verifyCode(*user.TOTPSecret, code)
	if err != nil {
		return err
	}
	if !valid {
		return domainErrors.ErrInvalidTOTPCode
	}
	return nil
}

// Disable turns 2FA off. The password re-check guards against a hijacked
// session; the user secret is rotated and every session and refresh token
// is revoked, so nothing issued under the old posture survives.
func (s *TwoFactorService) Disable(ctx context.Context, user *models.User, password string) error {
	if !user.Is2FAEnabled {
		return domainErrors.Err2FANotEnabled
	}

	match, err := s.password.CheckPasswordHash(password, user.PasswordHash)
	if err != nil {
		return err
	}
	if !match {
		return domainErrors.ErrInvalidCredentials
	}

	newSecret, err := security.GenerateUserSecret()
	if err != nil {
		return err
	}
	user.Is2FAEnabled = false
	user.TOTPSecret = nil
	user.Secret = newSecret
	user.UpdatedAt = time.Now()
	if err := s.userRepo.Update(ctx, user); err != nil {
		return err
	}

	if err := s.tokens.RevokeAllForUser(ctx, user.ID, "2fa_disabled"); err != nil {
		s.logger.Error("Failed to revoke refresh tokens after 2FA disable", zap.Error(err), zap.String("user_id", user.ID.String()))
	}
	if err := s.sessions.RevokeAllForUser(ctx, user.ID); err != nil {
		s.logger.Error("Failed to revoke sessions after 2FA disable", zap.Error(err), zap.String("user_id", user.ID.String()))
	}

	s.logger.Info("2FA disabled", zap.String("user_id", user.ID.String()))
	return nil
}

func (s *TwoFactorService) verifyCode(encryptedSecret, code string) (bool, error) {
	secret, err := s.encryption.Decrypt(encryptedSecret, s.encryptionKeyHex)
	if err != nil {
		return false, err
	}
	return s.totp.ValidateCode(secret, code)
}
