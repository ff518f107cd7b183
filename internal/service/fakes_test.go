package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	domainErrors "github.com/driftline/auth-service/internal/domain/errors"
	"github.com/driftline/auth-service/internal/domain/models"
	"github.com/driftline/auth-service/internal/events"
)

// In-memory stand-ins for the repository interfaces, mirroring the error
// contracts of the Postgres and Redis implementations.

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*models.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: map[uuid.UUID]*models.User{}}
}

func (r *fakeUserRepo) Create(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == user.Email {
			return domainErrors.ErrEmailExists
		}
		if u.Username == user.Username {
			return domainErrors.ErrUsernameExists
		}
	}
	copied := *user
	r.users[user.ID] = &copied
	return nil
}

func (r *fakeUserRepo) FindByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, domainErrors.ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (r *fakeUserRepo) FindByEmail(_ context.Context, email string) (*models.User, error) {
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

func (r *fakeUserRepo) FindByUsername(_ context.Context, username string) (*models.User, error) {
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

func (r *fakeUserRepo) Update(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return domainErrors.ErrUserNotFound
	}
	copied := *user
	r.users[user.ID] = &copied
	return nil
}

func (r *fakeUserRepo) UpdateLastLogin(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return domainErrors.ErrUserNotFound
	}
	u.LastLoginAt = &at
	u.FailedLoginAttempts = 0
	u.LockoutUntil = nil
	return nil
}

func (r *fakeUserRepo) UpdateFailedAttempts(_ context.Context, id uuid.UUID, attempts int, lockoutUntil *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return domainErrors.ErrUserNotFound
	}
	u.FailedLoginAttempts = attempts
	u.LockoutUntil = lockoutUntil
	return nil
}

type fakeSessionRepo struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*models.Session
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{sessions: map[uuid.UUID]*models.Session{}}
}

func (r *fakeSessionRepo) Create(_ context.Context, session *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *session
	r.sessions[session.ID] = &copied
	return nil
}

func (r *fakeSessionRepo) FindByID(_ context.Context, id uuid.UUID) (*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, domainErrors.ErrSessionNotFound
	}
	copied := *s
	return &copied, nil
}

func (r *fakeSessionRepo) FindByUserID(_ context.Context, userID uuid.UUID) ([]*models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Session
	for _, s := range r.sessions {
		if s.UserID == userID {
			copied := *s
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *fakeSessionRepo) Update(_ context.Context, session *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[session.ID]; !ok {
		return domainErrors.ErrSessionNotFound
	}
	copied := *session
	r.sessions[session.ID] = &copied
	return nil
}

func (r *fakeSessionRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return domainErrors.ErrSessionNotFound
	}
	delete(r.sessions, id)
	return nil
}

func (r *fakeSessionRepo) DeleteAllByUserID(_ context.Context, userID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.sessions {
		if s.UserID == userID {
			delete(r.sessions, id)
			n++
		}
	}
	return n, nil
}

type fakeSessionCache struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*models.Session
}

func newFakeSessionCache() *fakeSessionCache {
	return &fakeSessionCache{sessions: map[uuid.UUID]*models.Session{}}
}

func (c *fakeSessionCache) Get(_ context.Context, id uuid.UUID) (*models.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[id]
	if !ok {
		return nil, domainErrors.ErrSessionNotFound
	}
	copied := *s
	return &copied, nil
}

func (c *fakeSessionCache) Set(_ context.Context, session *models.Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	copied := *session
	c.sessions[session.ID] = &copied
	return nil
}

func (c *fakeSessionCache) Delete(_ context.Context, id uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, id)
	return nil
}

type fakeRefreshTokenRepo struct {
	mu     sync.Mutex
	tokens map[uuid.UUID]*models.RefreshToken
}

func newFakeRefreshTokenRepo() *fakeRefreshTokenRepo {
	return &fakeRefreshTokenRepo{tokens: map[uuid.UUID]*models.RefreshToken{}}
}

func (r *fakeRefreshTokenRepo) Create(_ context.Context, token *models.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *token
	r.tokens[token.ID] = &copied
	return nil
}

func (r *fakeRefreshTokenRepo) FindByTokenHash(_ context.Context, tokenHash string) (*models.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tok := range r.tokens {
		if tok.TokenHash == tokenHash {
			copied := *tok
			return &copied, nil
		}
	}
	return nil, domainErrors.ErrNotFound
}

func (r *fakeRefreshTokenRepo) Revoke(_ context.Context, id uuid.UUID, reason *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tok, ok := r.tokens[id]
	if !ok || tok.RevokedAt != nil {
		return domainErrors.ErrNotFound
	}
	now := time.Now()
	tok.RevokedAt = &now
	tok.RevokedReason = reason
	return nil
}

func (r *fakeRefreshTokenRepo) RevokeAllByUserID(_ context.Context, userID uuid.UUID, reason *string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	var n int64
	for _, tok := range r.tokens {
		if tok.UserID == userID && tok.RevokedAt == nil {
			tok.RevokedAt = &now
			tok.RevokedReason = reason
			n++
		}
	}
	return n, nil
}

func (r *fakeRefreshTokenRepo) DeleteBySessionID(_ context.Context, sessionID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, tok := range r.tokens {
		if tok.SessionID == sessionID {
			delete(r.tokens, id)
		}
	}
	return nil
}

type fakeFactorRepo struct {
	mu      sync.Mutex
	factors map[uuid.UUID]*models.Factor
}

func newFakeFactorRepo() *fakeFactorRepo {
	return &fakeFactorRepo{factors: map[uuid.UUID]*models.Factor{}}
}

func (r *fakeFactorRepo) Create(_ context.Context, factor *models.Factor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *factor
	r.factors[factor.ID] = &copied
	return nil
}

func (r *fakeFactorRepo) FindByID(_ context.Context, id uuid.UUID) (*models.Factor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.factors[id]
	if !ok {
		return nil, domainErrors.ErrFactorNotFound
	}
	copied := *f
	return &copied, nil
}

func (r *fakeFactorRepo) FindVerifiedTOTPByUserID(_ context.Context, userID uuid.UUID) (*models.Factor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.factors {
		if f.UserID == userID && f.FactorType == models.FactorTypeTOTP && f.Status == models.FactorStatusVerified {
			copied := *f
			return &copied, nil
		}
	}
	return nil, domainErrors.ErrFactorNotFound
}

func (r *fakeFactorRepo) UpdateStatus(_ context.Context, id uuid.UUID, status models.FactorStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.factors[id]
	if !ok {
		return domainErrors.ErrFactorNotFound
	}
	f.Status = status
	f.UpdatedAt = time.Now()
	return nil
}

func (r *fakeFactorRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factors[id]; !ok {
		return domainErrors.ErrFactorNotFound
	}
	delete(r.factors, id)
	return nil
}

type fakeChallengeRepo struct {
	mu         sync.Mutex
	challenges map[uuid.UUID]*models.Challenge
}

func newFakeChallengeRepo() *fakeChallengeRepo {
	return &fakeChallengeRepo{challenges: map[uuid.UUID]*models.Challenge{}}
}

func (r *fakeChallengeRepo) Create(_ context.Context, challenge *models.Challenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *challenge
	r.challenges[challenge.ID] = &copied
	return nil
}

func (r *fakeChallengeRepo) FindByID(_ context.Context, id uuid.UUID) (*models.Challenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.challenges[id]
	if !ok {
		return nil, domainErrors.ErrChallengeNotFound
	}
	copied := *c
	return &copied, nil
}

func (r *fakeChallengeRepo) MarkVerified(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.challenges[id]
	if !ok {
		return domainErrors.ErrChallengeNotFound
	}
	if c.VerifiedAt != nil {
		return domainErrors.ErrChallengeVerified
	}
	c.VerifiedAt = &at
	return nil
}

func (r *fakeChallengeRepo) DeleteByFactorID(_ context.Context, factorID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.challenges {
		if c.FactorID == factorID {
			delete(r.challenges, id)
		}
	}
	return nil
}

// capturePublisher records published events for assertions.
type capturePublisher struct {
	mu       sync.Mutex
	captured []capturedEvent
}

type capturedEvent struct {
	Type    events.EventType
	Subject string
	Payload interface{}
}

func (p *capturePublisher) Publish(_ context.Context, eventType events.EventType, subject string, payload interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.captured = append(p.captured, capturedEvent{Type: eventType, Subject: subject, Payload: payload})
	return nil
}

func (p *capturePublisher) Close() error { return nil }

func (p *capturePublisher) byType(eventType events.EventType) []capturedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []capturedEvent
	for _, e := range p.captured {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
