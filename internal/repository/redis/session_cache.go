package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	domainErrors "github.com/driftline/auth-service/internal/domain/errors"
	"github.com/driftline/auth-service/internal/domain/models"
)

// SessionCache holds the denormalized TTL-bound session copy keyed by
// session id. The durable row stays the source of truth; a cache miss is
// re-derived from it by the session service.
type SessionCache struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewSessionCache creates a new SessionCache.
func NewSessionCache(client *redis.Client, logger *zap.Logger, ttl time.Duration) *SessionCache {
	return &SessionCache{client: client, logger: logger, ttl: ttl}
}

func sessionKey(id uuid.UUID) string {
	return fmt.Sprintf("session:%s", id.String())
}

// Get retrieves a session copy from the cache.
func (c *SessionCache) Get(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	data, err := c.client.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domainErrors.ErrSessionNotFound
		}
		c.logger.Error("Failed to get session from cache", zap.Error(err), zap.String("session_id", id.String()))
		return nil, err
	}

	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		c.logger.Error("Failed to unmarshal session data", zap.Error(err), zap.String("session_id", id.String()))
		return nil, err
	}
	return &session, nil
}

// Set writes a session copy with the configured TTL.
func (c *SessionCache) Set(ctx context.Context, session *models.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		c.logger.Error("Failed to marshal session data", zap.Error(err), zap.String("session_id", session.ID.String()))
		return err
	}
	if err := c.client.Set(ctx, sessionKey(session.ID), data, c.ttl).Err(); err != nil {
		c.logger.Error("Failed to set session in cache", zap.Error(err), zap.String("session_id", session.ID.String()))
		return err
	}
	return nil
}

// Delete removes a session copy. Deleting an absent key is not an error.
func (c *SessionCache) Delete(ctx context.Context, id uuid.UUID) error {
	if err := c.client.Del(ctx, sessionKey(id)).Err(); err != nil {
		c.logger.Error("Failed to delete session from cache", zap.Error(err), zap.String("session_id", id.String()))
		return err
	}
	return nil
}
