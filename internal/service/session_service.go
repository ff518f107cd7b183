package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	domainErrors "github.com/driftline/auth-service/internal/domain/errors"
	"github.com/driftline/auth-service/internal/domain/models"
	"github.com/driftline/auth-service/internal/events"
	"github.com/driftline/auth-service/internal/repository/interfaces"
)

// SessionService manages sessions across the durable store and the cache.
// The durable row is the source of truth; every mutation writes the store
// first, then the cache, and reads fall back to the store on a cache miss.
type SessionService struct {
	sessionRepo interfaces.SessionRepository
	cache       interfaces.SessionCache
	publisher   events.Publisher
	logger      *zap.Logger
}

// NewSessionService creates a new SessionService.
func NewSessionService(
	sessionRepo interfaces.SessionRepository,
	cache interfaces.SessionCache,
	publisher events.Publisher,
	logger *zap.Logger,
) *SessionService {
	return &SessionService{
		sessionRepo: sessionRepo,
		cache:       cache,
		publisher:   publisher,
		logger:      logger.Named("session_service"),
	}
}

// CreateSessionParams carries the inputs for a new session.
type CreateSessionParams struct {
	UserID    uuid.UUID
	FactorID  *uuid.UUID
	AAL       models.AAL
	AMR       []models.AMREntry
	IPAddress string
	UserAgent string
}

// Create persists a new session row and its cache copy.
func (s *SessionService) Create(ctx context.Context, params CreateSessionParams) (*models.Session, error) {
	now := time.Now()
	session := &models.Session{
		ID:        uuid.New(),
		UserID:    params.UserID,
		FactorID:  params.FactorID,
		AAL:       params.AAL,
		AMR:       params.AMR,
		IPAddress: params.IPAddress,
		UserAgent: params.UserAgent,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		s.logger.Error("Failed to create session", zap.Error(err), zap.String("user_id", params.UserID.String()))
		return nil, err
	}
	if err := s.cache.Set(ctx, session); err != nil {
		// The durable row exists; the next Get repopulates the cache.
		s.logger.Warn("Failed to cache new session", zap.Error(err), zap.String("session_id", session.ID.String()))
	}

	if err := s.publisher.Publish(ctx, events.EventSessionCreated, session.UserID.String(),
		events.SessionEventPayload{
			SessionID: session.ID.String(),
			UserID:    session.UserID.String(),
			IPAddress: session.IPAddress,
			UserAgent: session.UserAgent,
		}); err != nil {
		s.logger.Error("Failed to publish session created event", zap.Error(err), zap.String("session_id", session.ID.String()))
	}
	return session, nil
}

// Get reads cache-first and re-derives the cache copy from the durable row
// on a miss. The cache is never trusted as sole source of truth.
func (s *SessionService) Get(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	session, err := s.cache.Get(ctx, id)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, domainErrors.ErrSessionNotFound) {
		s.logger.Warn("Session cache read failed, falling back to store", zap.Error(err), zap.String("session_id", id.String()))
	}

	session, err = s.sessionRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, session); err != nil {
		s.logger.Warn("Failed to repopulate session cache", zap.Error(err), zap.String("session_id", id.String()))
	}
	return session, nil
}

// Update applies a partial update across both copies. A missing durable row
// or missing cache copy fails the whole update: a deleted session must
// never be partially resurrected.
func (s *SessionService) Update(ctx context.Context, id uuid.UUID, update models.SessionUpdate) (*models.Session, error) {
	session, err := s.sessionRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.cache.Get(ctx, id); err != nil {
		if errors.Is(err, domainErrors.ErrSessionNotFound) {
			return nil, domainErrors.ErrSessionNotFound
		}
		return nil, err
	}

	if update.FactorID != nil {
		session.FactorID = update.FactorID
	}
	if update.AAL != nil {
		session.AAL = *update.AAL
	}
	if update.AMR != nil {
		session.AMR = update.AMR
	}
	session.UpdatedAt = time.Now()

	if err := s.sessionRepo.Update(ctx, session); err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, session); err != nil {
		s.logger.Warn("Failed to update session cache", zap.Error(err), zap.String("session_id", id.String()))
	}
	return session, nil
}

// ListForUser returns the user's sessions from the durable store. The
// cache is a per-session lookup structure and plays no part in listing.
func (s *SessionService) ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.Session, error) {
	return s.sessionRepo.FindByUserID(ctx, userID)
}

// Delete removes both copies of a session.
func (s *SessionService) Delete(ctx context.Context, id uuid.UUID) error {
	session, err := s.sessionRepo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.sessionRepo.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.cache.Delete(ctx, id); err != nil {
		s.logger.Warn("Failed to delete session cache copy", zap.Error(err), zap.String("session_id", id.String()))
	}

	if err := s.publisher.Publish(ctx, events.EventSessionRevoked, session.UserID.String(),
		events.SessionEventPayload{SessionID: id.String(), UserID: session.UserID.String()}); err != nil {
		s.logger.Error("Failed to publish session revoked event", zap.Error(err), zap.String("session_id", id.String()))
	}
	return nil
}

// RevokeAllForUser removes every session of a user from both stores.
func (s *SessionService) RevokeAllForUser(ctx context.Context, userID uuid.UUID) error {
	sessions, err := s.sessionRepo.FindByUserID(ctx, userID)
	if err != nil {
		return err
	}
	if _, err := s.sessionRepo.DeleteAllByUserID(ctx, userID); err != nil {
		return err
	}
	for _, session := range sessions {
		if err := s.cache.Delete(ctx, session.ID); err != nil {
			s.logger.Warn("Failed to delete session cache copy", zap.Error(err), zap.String("session_id", session.ID.String()))
		}
	}

	if err := s.publisher.Publish(ctx, events.EventAllSessionsRevoked, userID.String(),
		events.SessionEventPayload{UserID: userID.String()}); err != nil {
		s.logger.Error("Failed to publish all sessions revoked event", zap.Error(err), zap.String("user_id", userID.String()))
	}
	return nil
}
