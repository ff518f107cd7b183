package http

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	goredis "github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/driftline/auth-service/internal/config"
	domainErrors "github.com/driftline/auth-service/internal/domain/errors"
	"github.com/driftline/auth-service/internal/domain/models"
	"github.com/driftline/auth-service/internal/events"
	"github.com/driftline/auth-service/internal/infrastructure/security"
	redisrepo "github.com/driftline/auth-service/internal/repository/redis"
	"github.com/driftline/auth-service/internal/service"
)

// Minimal in-memory stores backing the routing tests. Only the paths the
// tests drive need real behavior; everything else answers not-found.

type stubUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*models.User
}

func newStubUserRepo() *stubUserRepo {
	return &stubUserRepo{users: map[uuid.UUID]*models.User{}}
}

func (r *stubUserRepo) Create(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *user
	r.users[user.ID] = &copied
	return nil
}

func (r *stubUserRepo) FindByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, domainErrors.ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (r *stubUserRepo) FindByEmail(_ context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, domainErrors.ErrUserNotFound
}

func (r *stubUserRepo) FindByUsername(_ context.Context, username string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			copied := *u
			return &copied, nil
		}
	}
	return nil, domainErrors.ErrUserNotFound
}

func (r *stubUserRepo) Update(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return domainErrors.ErrUserNotFound
	}
	copied := *user
	r.users[user.ID] = &copied
	return nil
}

func (r *stubUserRepo) UpdateLastLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		u.LastLoginAt = &at
	}
	return nil
}

func (r *stubUserRepo) UpdateFailedAttempts(_ context.Context, id uuid.UUID, attempts int, lockoutUntil *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		u.FailedLoginAttempts = attempts
		u.LockoutUntil = lockoutUntil
	}
	return nil
}

type stubSessionRepo struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*models.Session
}

func newStubSessionRepo() *stubSessionRepo {
	return &stubSessionRepo{sessions: map[uuid.UUID]*models.Session{}}
}

func (r *stubSessionRepo) Create(_ context.Context, session *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *session
	r.sessions[session.ID] = &copied
	return nil
}

func (r *stubSessionRepo) FindByID(_ context.Context, id uuid.UUID) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, domainErrors.ErrSessionNotFound
	}
	copied := *s
	return &copied, nil
}

func (r *stubSessionRepo) FindByUserID(_ context.Context, userID uuid.UUID) ([]*models.Session, error) {
	return nil, nil
}

func (r *stubSessionRepo) Update(_ context.Context, session *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[session.ID]; !ok {
		return domainErrors.ErrSessionNotFound
	}
	copied := *session
	r.sessions[session.ID] = &copied
	return nil
}

func (r *stubSessionRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	return nil
}

func (r *stubSessionRepo) DeleteAllByUserID(_ context.Context, userID uuid.UUID) (int64, error) {
	return 0, nil
}

type stubSessionCache struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*models.Session
}

func newStubSessionCache() *stubSessionCache {
	return &stubSessionCache{sessions: map[uuid.UUID]*models.Session{}}
}

func (c *stubSessionCache) Get(_ context.Context, id uuid.UUID) (*models.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[id]
	if !ok {
		return nil, domainErrors.ErrSessionNotFound
	}
	copied := *s
	return &copied, nil
}

func (c *stubSessionCache) Set(_ context.Context, session *models.Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	copied := *session
	c.sessions[session.ID] = &copied
	return nil
}

func (c *stubSessionCache) Delete(_ context.Context, id uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, id)
	return nil
}

type stubRefreshTokenRepo struct{}

func (stubRefreshTokenRepo) Create(_ context.Context, _ *models.RefreshToken) error { return nil }
func (stubRefreshTokenRepo) FindByTokenHash(_ context.Context, _ string) (*models.RefreshToken, error) {
	return nil, domainErrors.ErrNotFound
}
func (stubRefreshTokenRepo) Revoke(_ context.Context, _ uuid.UUID, _ *string) error { return nil }
func (stubRefreshTokenRepo) RevokeAllByUserID(_ context.Context, _ uuid.UUID, _ *string) (int64, error) {
	return 0, nil
}
func (stubRefreshTokenRepo) DeleteBySessionID(_ context.Context, _ uuid.UUID) error { return nil }

type stubFactorRepo struct{}

func (stubFactorRepo) Create(_ context.Context, _ *models.Factor) error { return nil }
func (stubFactorRepo) FindByID(_ context.Context, _ uuid.UUID) (*models.Factor, error) {
	return nil, domainErrors.ErrFactorNotFound
}
func (stubFactorRepo) FindVerifiedTOTPByUserID(_ context.Context, _ uuid.UUID) (*models.Factor, error) {
	return nil, domainErrors.ErrFactorNotFound
}
func (stubFactorRepo) UpdateStatus(_ context.Context, _ uuid.UUID, _ models.FactorStatus) error {
	return nil
}
func (stubFactorRepo) Delete(_ context.Context, _ uuid.UUID) error { return nil }

type stubChallengeRepo struct{}

func (stubChallengeRepo) Create(_ context.Context, _ *models.Challenge) error { return nil }
func (stubChallengeRepo) FindByID(_ context.Context, _ uuid.UUID) (*models.Challenge, error) {
	return nil, domainErrors.ErrChallengeNotFound
}
func (stubChallengeRepo) MarkVerified(_ context.Context, _ uuid.UUID, _ time.Time) error {
	return nil
}
func (stubChallengeRepo) DeleteByFactorID(_ context.Context, _ uuid.UUID) error { return nil }

// routerTestEnv mounts the full routing tree over in-memory stores.
type routerTestEnv struct {
	router       *gin.Engine
	users        *stubUserRepo
	sessions     *service.SessionService
	tokenManager *security.TokenManager
	password     security.PasswordService
}

func newRouterTestEnv(t *testing.T) *routerTestEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	keyHex := hex.EncodeToString(key)

	mr := miniredis.RunT(t)
	redisClient := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { redisClient.Close() })

	logger := zap.NewNop()
	windows := redisrepo.NewVerificationWindowStore(redisClient, logger)

	tokenManager := security.NewTokenManager(config.JWTConfig{
		Secret:          "test-signing-secret",
		Issuer:          "driftline-auth",
		Audience:        "driftline",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 720 * time.Hour,
		ResetTokenTTL:   30 * time.Minute,
	})
	password, err := security.NewArgon2idPasswordService(security.Argon2idParams{
		Memory:      16 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	require.NoError(t, err)
	encryption := security.NewAESGCMEncryptionService()
	totpService := security.NewTOTPService("Driftline")

	users := newStubUserRepo()
	publisher := events.NopPublisher{}

	sessions := service.NewSessionService(newStubSessionRepo(), newStubSessionCache(), publisher, logger)
	tokens := service.NewTokenService(tokenManager, stubRefreshTokenRepo{}, users, stubFactorRepo{}, sessions, logger)
	verifications := service.NewVerificationService(windows, publisher, logger, 5*time.Minute, 30*time.Minute)
	auth := service.NewAuthService(users, stubRefreshTokenRepo{}, password, tokenManager,
		sessions, tokens, verifications, publisher, 10, 15*time.Minute, logger)
	mfa := service.NewMFAService(stubFactorRepo{}, stubChallengeRepo{}, totpService, encryption,
		password, sessions, tokens, keyHex, logger)
	twoFactor := service.NewTwoFactorService(users, totpService, encryption,
		password, sessions, tokens, keyHex, logger)

	router := SetupRouter(RouterDeps{
		AuthService:      auth,
		TokenService:     tokens,
		SessionService:   sessions,
		MFAService:       mfa,
		TwoFactorService: twoFactor,
		TokenManager:     tokenManager,
		UserRepo:         users,
		Logger:           logger,
	})

	return &routerTestEnv{
		router:       router,
		users:        users,
		sessions:     sessions,
		tokenManager: tokenManager,
		password:     password,
	}
}

func (e *routerTestEnv) createUser(t *testing.T, email, password string, emailVerified bool) *models.User {
	t.Helper()
	hash, err := e.password.HashPassword(password)
	require.NoError(t, err)
	secret, err := security.GenerateUserSecret()
	require.NoError(t, err)

	now := time.Now()
	user := &models.User{
		ID:           uuid.New(),
		Username:     "alice",
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

// bearerToken opens a session at the given assurance level and signs an
// access token for it.
func (e *routerTestEnv) bearerToken(t *testing.T, user *models.User, aal models.AAL) string {
	t.Helper()
	amr := []models.AMREntry{{Method: "password", Timestamp: time.Now().Unix()}}
	if aal == models.AAL2 {
		amr = append(amr, models.AMREntry{Method: "totp", Timestamp: time.Now().Unix()})
	}
	session, err := e.sessions.Create(context.Background(), service.CreateSessionParams{
		UserID:    user.ID,
		AAL:       aal,
		AMR:       amr,
		IPAddress: "203.0.113.7",
		UserAgent: "test-agent",
	})
	require.NoError(t, err)

	token, _, err := e.tokenManager.GenerateAccessToken(user, session, aal)
	require.NoError(t, err)
	return token
}

func (e *routerTestEnv) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestSignin_EmailUnverifiedAnswers422(t *testing.T) {
	env := newRouterTestEnv(t)
	env.createUser(t, "alice@example.com", "password123", false)

	w := env.do(http.MethodPost, "/api/v1/auth/signin", "", gin.H{
		"email":    "alice@example.com",
		"password": "password123",
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "email_unverified", body["status"])
	require.Len(t, body["verification_code"], 6)
	require.EqualValues(t, (5 * time.Minute).Milliseconds(), body["expires_in"])
}

func TestSignin_WrongPasswordAnswers401(t *testing.T) {
	env := newRouterTestEnv(t)
	env.createUser(t, "alice@example.com", "password123", true)

	w := env.do(http.MethodPost, "/api/v1/auth/signin", "", gin.H{
		"email":    "alice@example.com",
		"password": "wrong-password",
	})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTwoFactorDisable_RequiresAAL2(t *testing.T) {
	env := newRouterTestEnv(t)
	user := env.createUser(t, "alice@example.com", "password123", true)

	// An aal1 session is stopped at the gate.
	w := env.do(http.MethodPost, "/api/v1/auth/2fa/disable",
		env.bearerToken(t, user, models.AAL1), gin.H{"password": "password123"})
	require.Equal(t, http.StatusForbidden, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "insufficient_aal", body["code"])

	// An aal2 session passes the gate and reaches the service, which
	// rejects because 2FA was never enabled.
	w = env.do(http.MethodPost, "/api/v1/auth/2fa/disable",
		env.bearerToken(t, user, models.AAL2), gin.H{"password": "password123"})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestUnenrollFactor_RequiresAAL2(t *testing.T) {
	env := newRouterTestEnv(t)
	user := env.createUser(t, "alice@example.com", "password123", true)

	w := env.do(http.MethodDelete, "/api/v1/mfa/unenroll/"+uuid.NewString(),
		env.bearerToken(t, user, models.AAL1), nil)
	require.Equal(t, http.StatusForbidden, w.Code)
}
