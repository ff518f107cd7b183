package security

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/driftline/auth-service/internal/config"
	domainErrors "github.com/driftline/auth-service/internal/domain/errors"
	"github.com/driftline/auth-service/internal/domain/models"
)

// AccessTokenClaims is the access-token payload.
type AccessTokenClaims struct {
	jwt.RegisteredClaims
	Email        string            `json:"email"`
	Role         string            `json:"role"`
	AAL          models.AAL        `json:"aal"`
	AMR          []models.AMREntry `json:"amr"`
	AppMetadata  json.RawMessage   `json:"app_metadata,omitempty"`
	UserMetadata json.RawMessage   `json:"user_metadata,omitempty"`
	SessionID    string            `json:"session_id"`
	UserAALLevel models.AAL        `json:"user_aal_level"`
}

// ResetTokenClaims is the RID (reset-identifier) token payload. It is
// signed with a key derived from the user's rotating secret, so rotating
// the secret invalidates any outstanding reset link. VerifyHash pins the
// token to the IP the reset was requested from.
type ResetTokenClaims struct {
	jwt.RegisteredClaims
	Email      string `json:"email"`
	VerifyHash string `json:"verify_hash"`
	TokenType  string `json:"token_type"`
}

const resetTokenType = "password_reset"

// TokenManager signs and parses the service's JWTs.
type TokenManager struct {
	cfg config.JWTConfig
}

// NewTokenManager creates a TokenManager.
func NewTokenManager(cfg config.JWTConfig) *TokenManager {
	return &TokenManager{cfg: cfg}
}

// AccessTokenTTL exposes the configured access-token lifetime.
func (m *TokenManager) AccessTokenTTL() time.Duration {
	return m.cfg.AccessTokenTTL
}

// RefreshTokenTTL exposes the configured refresh-token lifetime.
func (m *TokenManager) RefreshTokenTTL() time.Duration {
	return m.cfg.RefreshTokenTTL
}

// userKey derives the per-user signing key from the service secret and the
// user's rotating secret.
func (m *TokenManager) userKey(userSecret string) []byte {
	sum := sha256.Sum256([]byte(m.cfg.Secret + ":" + userSecret))
	return sum[:]
}

// GenerateAccessToken mints the signed session token.
func (m *TokenManager) GenerateAccessToken(user *models.User, session *models.Session, userAALLevel models.AAL) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(m.cfg.AccessTokenTTL)

	claims := AccessTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Issuer:    m.cfg.Issuer,
			Audience:  jwt.ClaimStrings{m.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
		Email:        user.Email,
		Role:         user.Role,
		AAL:          session.AAL,
		AMR:          session.AMR,
		AppMetadata:  user.AppMetadata,
		UserMetadata: user.UserMetadata,
		SessionID:    session.ID.String(),
		UserAALLevel: userAALLevel,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(m.cfg.Secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, expiresAt, nil
}

// ParseAccessToken verifies and decodes an access token. With allowExpired
// the expiry claim is ignored, which the refresh flow needs: the pair may
// be rotated after the access token lapsed.
func (m *TokenManager) ParseAccessToken(tokenString string, allowExpired bool) (*AccessTokenClaims, error) {
	claims := &AccessTokenClaims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.cfg.Issuer),
	}
	if allowExpired {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}

	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(m.cfg.Secret), nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domainErrors.ErrExpiredToken
		}
		return nil, domainErrors.ErrInvalidToken
	}
	return claims, nil
}

// GenerateResetToken mints a RID token for the password-reset flow,
// signed against the user's current secret and pinned to the request IP.
// The JTI carries the reset-window key, so the signed wrapper and the
// cache-side window expire and invalidate together.
func (m *TokenManager) GenerateResetToken(user *models.User, ip, windowToken string) (string, error) {
	now := time.Now()
	claims := ResetTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			Issuer:    m.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.cfg.ResetTokenTTL)),
			ID:        windowToken,
		},
		Email:      user.Email,
		VerifyHash: HashToken(ip),
		TokenType:  resetTokenType,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.userKey(user.Secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign reset token: %w", err)
	}
	return signed, nil
}

// ExtractResetSubject decodes the subject of a RID token without verifying
// the signature, so the user (and their current secret) can be loaded first.
func (m *TokenManager) ExtractResetSubject(tokenString string) (uuid.UUID, error) {
	claims := &ResetTokenClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return uuid.Nil, domainErrors.ErrInvalidToken
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, domainErrors.ErrInvalidToken
	}
	return id, nil
}

// ParseResetToken verifies a RID token against the user's current secret
// and checks the IP-derived verification hash.
func (m *TokenManager) ParseResetToken(tokenString string, user *models.User, ip string) (*ResetTokenClaims, error) {
	claims := &ResetTokenClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return m.userKey(user.Secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.cfg.Issuer),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domainErrors.ErrExpiredToken
		}
		return nil, domainErrors.ErrInvalidToken
	}
	if claims.TokenType != resetTokenType || claims.Subject != user.ID.String() {
		return nil, domainErrors.ErrInvalidToken
	}
	if claims.VerifyHash != HashToken(ip) {
		return nil, domainErrors.ErrInvalidToken
	}
	return claims, nil
}
