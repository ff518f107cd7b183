// Package events defines the outbound event surface. Email and SMS delivery
// live outside this service; it only publishes the facts the notification
// pipeline consumes.
package events

import "context"

// EventType is the CloudEvents type string of an outbound event.
type EventType string

const (
	EventEmailVerificationRequested EventType = "auth.email.verification_requested"
	EventPasswordResetRequested     EventType = "auth.password.reset_requested"
	EventSessionCreated             EventType = "auth.session.created"
	EventSessionRevoked             EventType = "auth.session.revoked"
	EventAllSessionsRevoked         EventType = "auth.session.all_revoked"
	EventEmailVerified              EventType = "auth.email.verified"
	EventPasswordChanged            EventType = "auth.password.changed"
)

// EmailVerificationRequestedPayload asks the notification pipeline to
// deliver a verification code. Published at most once per live window.
type EmailVerificationRequestedPayload struct {
	UserID           string `json:"user_id"`
	Email            string `json:"email"`
	VerificationCode string `json:"verification_code"`
	ExpiresInMs      int64  `json:"expires_in_ms"`
}

// PasswordResetRequestedPayload asks the notification pipeline to deliver
// a reset link.
type PasswordResetRequestedPayload struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	ResetToken  string `json:"reset_token"`
	ExpiresInMs int64  `json:"expires_in_ms"`
}

// SessionEventPayload describes a session lifecycle change.
type SessionEventPayload struct {
	SessionID string `json:"session_id,omitempty"`
	UserID    string `json:"user_id"`
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// Publisher emits service events. Publish failures must not fail the
// request that produced them; callers log and continue.
type Publisher interface {
	Publish(ctx context.Context, eventType EventType, subject string, payload interface{}) error
	Close() error
}

// NopPublisher discards all events. Used when Kafka is disabled and in tests.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, eventType EventType, subject string, payload interface{}) error {
	return nil
}

func (NopPublisher) Close() error { return nil }

var _ Publisher = NopPublisher{}
