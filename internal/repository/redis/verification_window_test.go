package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	domainErrors "github.com/driftline/auth-service/internal/domain/errors"
	"github.com/driftline/auth-service/internal/domain/models"
)

func testWindowStore(t *testing.T) (*VerificationWindowStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewVerificationWindowStore(client, zap.NewNop()), mr
}

func TestVerificationWindow_CreateAndGet(t *testing.T) {
	store, _ := testWindowStore(t)
	ctx := context.Background()

	window := &models.VerificationWindow{
		UserID: uuid.New(),
		Email:  "user@example.com",
		IP:     "203.0.113.7",
		Code:   "123456",
	}
	created, err := store.Create(ctx, models.EmailVerificationKey(window.Email), window, 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, created)

	got, ttl, err := store.Get(ctx, models.EmailVerificationKey(window.Email))
	require.NoError(t, err)
	assert.Equal(t, window.Code, got.Code)
	assert.Equal(t, window.UserID, got.UserID)
	assert.Equal(t, window.IP, got.IP)
	assert.Greater(t, ttl, 4*time.Minute)
}

func TestVerificationWindow_CreateIsExactlyOnce(t *testing.T) {
	store, mr := testWindowStore(t)
	ctx := context.Background()
	key := models.EmailVerificationKey("user@example.com")

	first := &models.VerificationWindow{UserID: uuid.New(), Email: "user@example.com", IP: "203.0.113.7", Code: "111111"}
	created, err := store.Create(ctx, key, first, 5*time.Minute)
	require.NoError(t, err)
	require.True(t, created)

	mr.FastForward(2 * time.Minute)

	// A second issuance must not replace the live window.
	second := &models.VerificationWindow{UserID: first.UserID, Email: first.Email, IP: first.IP, Code: "222222"}
	created, err = store.Create(ctx, key, second, 5*time.Minute)
	require.NoError(t, err)
	assert.False(t, created)

	got, ttl, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "111111", got.Code)
	// The TTL keeps counting down from the original issuance.
	assert.LessOrEqual(t, ttl, 3*time.Minute)
}

func TestVerificationWindow_Expiry(t *testing.T) {
	store, mr := testWindowStore(t)
	ctx := context.Background()
	key := models.EmailVerificationKey("user@example.com")

	window := &models.VerificationWindow{UserID: uuid.New(), Email: "user@example.com", IP: "203.0.113.7", Code: "123456"}
	created, err := store.Create(ctx, key, window, 5*time.Minute)
	require.NoError(t, err)
	require.True(t, created)

	mr.FastForward(5*time.Minute + time.Second)

	_, _, err = store.Get(ctx, key)
	assert.ErrorIs(t, err, domainErrors.ErrVerificationNotFound)

	// The key is free again for a fresh issuance.
	created, err = store.Create(ctx, key, window, 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, created)
}

func TestVerificationWindow_Delete(t *testing.T) {
	store, _ := testWindowStore(t)
	ctx := context.Background()
	key := models.PasswordResetKey("opaque-token")

	window := &models.VerificationWindow{UserID: uuid.New(), Email: "user@example.com", IP: "203.0.113.7", Code: "opaque-token"}
	created, err := store.Create(ctx, key, window, 30*time.Minute)
	require.NoError(t, err)
	require.True(t, created)

	require.NoError(t, store.Delete(ctx, key))

	_, _, err = store.Get(ctx, key)
	assert.ErrorIs(t, err, domainErrors.ErrVerificationNotFound)
}
