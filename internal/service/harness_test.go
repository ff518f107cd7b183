package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/driftline/auth-service/internal/config"
	"github.com/driftline/auth-service/internal/domain/models"
	"github.com/driftline/auth-service/internal/infrastructure/security"
	redisrepo "github.com/driftline/auth-service/internal/repository/redis"
)

// testEnv wires the full service stack over in-memory fakes and a
// miniredis-backed verification window store.
type testEnv struct {
	users         *fakeUserRepo
	sessionRepo   *fakeSessionRepo
	cache         *fakeSessionCache
	refreshTokens *fakeRefreshTokenRepo
	factors       *fakeFactorRepo
	challenges    *fakeChallengeRepo
	publisher     *capturePublisher
	mr            *miniredis.Miniredis

	tokenManager *security.TokenManager
	password     security.PasswordService
	encryption   security.EncryptionService
	totp         security.TOTPService
	keyHex       string

	sessions      *SessionService
	tokens        *TokenService
	verifications *VerificationService
	auth          *AuthService
	mfa           *MFAService
	twoFactor     *TwoFactorService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	env := &testEnv{
		users:         newFakeUserRepo(),
		sessionRepo:   newFakeSessionRepo(),
		cache:         newFakeSessionCache(),
		refreshTokens: newFakeRefreshTokenRepo(),
		factors:       newFakeFactorRepo(),
		challenges:    newFakeChallengeRepo(),
		publisher:     &capturePublisher{},
		keyHex:        hex.EncodeToString(key),
	}

	env.mr = miniredis.RunT(t)
	redisClient := goredis.NewClient(&goredis.Options{Addr: env.mr.Addr()})
	t.Cleanup(func() { redisClient.Close() })
	windows := redisrepo.NewVerificationWindowStore(redisClient, zap.NewNop())

	env.tokenManager = security.NewTokenManager(config.JWTConfig{
		Secret:          "test-signing-secret",
		Issuer:          "driftline-auth",
		Audience:        "driftline",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 720 * time.Hour,
		ResetTokenTTL:   30 * time.Minute,
	})
	env.password, err = security.NewArgon2idPasswordService(security.Argon2idParams{
		Memory:      16 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	require.NoError(t, err)
	env.encryption = security.NewAESGCMEncryptionService()
	env.totp = security.NewTOTPService("Driftline")

	logger := zap.NewNop()
	env.sessions = NewSessionService(env.sessionRepo, env.cache, env.publisher, logger)
	env.tokens = NewTokenService(env.tokenManager, env.refreshTokens, env.users, env.factors, env.sessions, logger)
	env.verifications = NewVerificationService(windows, env.publisher, logger, 5*time.Minute, 30*time.Minute)
	env.auth = NewAuthService(env.users, env.refreshTokens, env.password, env.tokenManager,
		env.sessions, env.tokens, env.verifications, env.publisher, 3, 15*time.Minute, logger)
	env.mfa = NewMFAService(env.factors, env.challenges, env.totp, env.encryption,
		env.password, env.sessions, env.tokens, env.keyHex, logger)
	env.twoFactor = NewTwoFactorService(env.users, env.totp, env.encryption,
		env.password, env.sessions, env.tokens, env.keyHex, logger)
	return env
}

// createUser seeds a user directly into the fake store.
func (e *testEnv) createUser(t *testing.T, username, email, password string, emailVerified bool) *models.User {
	t.Helper()
	hash, err := e.password.HashPassword(password)
	require.NoError(t, err)
	secret, err := security.GenerateUserSecret()
	require.NoError(t, err)

	now := time.Now()
	user := &models.User{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Secret:       secret,
		Role:         "user",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if emailVerified {
		user.EmailVerifiedAt = &now
	}
	require.NoError(t, e.users.Create(context.Background(), user))
	return user
}

// createSession opens an aal1 password session for the user.
func (e *testEnv) createSession(t *testing.T, user *models.User, ip string) *models.Session {
	t.Helper()
	session, err := e.sessions.Create(context.Background(), CreateSessionParams{
		UserID:    user.ID,
		AAL:       models.AAL1,
		AMR:       []models.AMREntry{{Method: "password", Timestamp: time.Now().Unix()}},
		IPAddress: ip,
		UserAgent: "test-agent",
	})
	require.NoError(t, err)
	return session
}
