package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	domainErrors "github.com/driftline/auth-service/internal/domain/errors"
	"github.com/driftline/auth-service/internal/domain/models"
)

// VerificationWindowStore keeps verification windows in Redis under
// TTL-bound keys. Creation is SET NX so concurrent duplicate issuance for
// one purpose key can never mint two codes: the loser observes the winner's
// window.
type VerificationWindowStore struct {
	client *redis.Client
	logger *zap.Logger
}

// NewVerificationWindowStore creates a new VerificationWindowStore.
func NewVerificationWindowStore(client *redis.Client, logger *zap.Logger) *VerificationWindowStore {
	return &VerificationWindowStore{client: client, logger: logger}
}

func windowKey(key string) string {
	return fmt.Sprintf("verification:%s", key)
}

// Create atomically stores a window if none is alive under the key.
// It reports whether this call created the window.
func (s *VerificationWindowStore) Create(ctx context.Context, key string, window *models.VerificationWindow, ttl time.Duration) (bool, error) {
	data, err := json.Marshal(window)
	if err != nil {
		return false, fmt.Errorf("failed to marshal verification window: %w", err)
	}
	created, err := s.client.SetNX(ctx, windowKey(key), data, ttl).Result()
	if err != nil {
		s.logger.Error("Failed to create verification window", zap.Error(err), zap.String("key", key))
		return false, err
	}
	return created, nil
}

// Get retrieves a live window and its remaining TTL.
func (s *VerificationWindowStore) Get(ctx context.Context, key string) (*models.VerificationWindow, time.Duration, error) {
	pipe := s.client.TxPipeline()
	getCmd := pipe.Get(ctx, windowKey(key))
	ttlCmd := pipe.PTTL(ctx, windowKey(key))
	if _, err := pipe.Exec(ctx); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, 0, domainErrors.ErrVerificationNotFound
		}
		s.logger.Error("Failed to get verification window", zap.Error(err), zap.String("key", key))
		return nil, 0, err
	}

	var window models.VerificationWindow
	if err := json.Unmarshal([]byte(getCmd.Val()), &window); err != nil {
		s.logger.Error("Failed to unmarshal verification window", zap.Error(err), zap.String("key", key))
		return nil, 0, err
	}

	ttl := ttlCmd.Val()
	if ttl < 0 {
		return nil, 0, domainErrors.ErrVerificationNotFound
	}
	return &window, ttl, nil
}

// Delete removes a window after a successful redeem.
func (s *VerificationWindowStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, windowKey(key)).Err(); err != nil {
		s.logger.Error("Failed to delete verification window", zap.Error(err), zap.String("key", key))
		return err
	}
	return nil
}
