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

// TokenService mints session credential pairs and rotates them on refresh.
type TokenService struct {
	tokenManager     *security.TokenManager
	refreshTokenRepo interfaces.RefreshTokenRepository
	userRepo         interfaces.UserRepository
	factorRepo       interfaces.FactorRepository
	sessions         *SessionService
	logger           *zap.Logger
}

// NewTokenService creates a new TokenService.
func NewTokenService(
	tokenManager *security.TokenManager,
	refreshTokenRepo interfaces.RefreshTokenRepository,
	userRepo interfaces.UserRepository,
	factorRepo interfaces.FactorRepository,
	sessions *SessionService,
	logger *zap.Logger,
) *TokenService {
	return &TokenService{
		tokenManager:     tokenManager,
		refreshTokenRepo: refreshTokenRepo,
		userRepo:         userRepo,
		factorRepo:       factorRepo,
		sessions:         sessions,
		logger:           logger.Named("token_service"),
	}
}

// userAALLevel is the highest assurance level the user can reach: aal2 once
// a verified TOTP factor exists, aal1 otherwise.
func (s *TokenService) userAALLevel(ctx context.Context, userID uuid.UUID) models.AAL {
	if _, err := s.factorRepo.FindVerifiedTOTPByUserID(ctx, userID); err == nil {
		return models.AAL2
	}
	return models.AAL1
}

// CreatePair mints the signed access token and an opaque refresh token for
// a session, storing the refresh token hashed.
func (s *TokenService) CreatePair(ctx context.Context, user *models.User, session *models.Session) (*models.TokenPair, error) {
	accessToken, expiresAt, err := s.tokenManager.GenerateAccessToken(user, session, s.userAALLevel(ctx, user.ID))
	if err != nil {
		return nil, err
	}

	opaque, err := security.GenerateOpaqueToken(32)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	refreshToken := &models.RefreshToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		SessionID: session.ID,
		TokenHash: security.HashToken(opaque),
		ExpiresAt: now.Add(s.tokenManager.RefreshTokenTTL()),
		CreatedAt: now,
	}
	if err := s.refreshTokenRepo.Create(ctx, refreshToken); err != nil {
		return nil, err
	}

	return &models.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: opaque,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.tokenManager.AccessTokenTTL().Seconds()),
		ExpiresAt:    expiresAt,
		SessionID:    session.ID,
	}, nil
}

// Refresh rotates a session from its presented access+refresh token pair.
// Both tokens must decode to the same user, the refresh token must be live
// and unrevoked, and the stored session IP must match the request IP. The
// old token is revoked before the new session becomes visible, so a
// concurrent replay with the old pair is rejected rather than racing.
func (s *TokenService) Refresh(ctx context.Context, accessToken, refreshToken, ip, userAgent string) (*models.TokenPair, *models.User, error) {
	claims, err := s.tokenManager.ParseAccessToken(accessToken, true)
	if err != nil {
		metrics.TokenRefreshTotal.WithLabelValues("invalid_access").Inc()
		return nil, nil, domainErrors.ErrInvalidToken
	}
	subject, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, nil, domainErrors.ErrInvalidToken
	}

	stored, err := s.refreshTokenRepo.FindByTokenHash(ctx, security.HashToken(refreshToken))
	if err != nil {
		if errors.Is(err, domainErrors.ErrNotFound) {
			metrics.TokenRefreshTotal.WithLabelValues("unknown_token").Inc()
			return nil, nil, domainErrors.ErrInvalidRefreshToken
		}
		return nil, nil, err
	}
	if stored.IsRevoked() || time.Now().After(stored.ExpiresAt) {
		metrics.TokenRefreshTotal.WithLabelValues("revoked_token").Inc()
		return nil, nil, domainErrors.ErrInvalidRefreshToken
	}
	if stored.UserID != subject {
		metrics.TokenRefreshTotal.WithLabelValues("user_mismatch").Inc()
		return nil, nil, domainErrors.ErrInvalidRefreshToken
	}

	session, err := s.sessions.Get(ctx, stored.SessionID)
	if err != nil {
		return nil, nil, domainErrors.ErrInvalidRefreshToken
	}
	if session.IPAddress != ip {
		metrics.TokenRefreshTotal.WithLabelValues("ip_mismatch").Inc()
		return nil, nil, domainErrors.ErrSessionIPMismatch
	}

	user, err := s.userRepo.FindByID(ctx, stored.UserID)
	if err != nil {
		return nil, nil, err
	}

	// Rotation. Revoke first: the happens-before edge that rejects replays.
	reason := "rotated"
	if err := s.refreshTokenRepo.Revoke(ctx, stored.ID, &reason); err != nil {
		if errors.Is(err, domainErrors.ErrNotFound) {
			// A concurrent refresh already consumed this token.
			return nil, nil, domainErrors.ErrInvalidRefreshToken
		}
		return nil, nil, err
	}
	if err := s.sessions.Delete(ctx, session.ID); err != nil && !errors.Is(err, domainErrors.ErrSessionNotFound) {
		s.logger.Error("Failed to delete rotated session", zap.Error(err), zap.String("session_id", session.ID.String()))
	}

	newSession, err := s.sessions.Create(ctx, CreateSessionParams{
		UserID:    user.ID,
		FactorID:  session.FactorID,
		AAL:       session.AAL,
		AMR:       session.AMR,
		IPAddress: ip,
		UserAgent: userAgent,
	})
	if err != nil {
		return nil, nil, err
	}

	pair, err := s.CreatePair(ctx, user, newSession)
	if err != nil {
		return nil, nil, err
	}
	metrics.TokenRefreshTotal.WithLabelValues("success").Inc()
	return pair, user, nil
}

// RevokeAllForUser revokes every live refresh token of a user.
func (s *TokenService) RevokeAllForUser(ctx context.Context, userID uuid.UUID, reason string) error {
	_, err := s.refreshTokenRepo.RevokeAllByUserID(ctx, userID, &reason)
	return err
}
