package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts all incoming HTTP requests.
	RequestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auth_service_requests_total",
		Help: "The total number of requests",
	})

	// ResponsesTotal counts responses by status code.
	ResponsesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_service_responses_total",
		Help: "The total number of responses by status code",
	}, []string{"status"})

	// RequestDuration tracks request handling latency.
	RequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "auth_service_request_duration_seconds",
		Help:    "The request duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// SigninAttemptsTotal counts signin attempts by outcome.
	SigninAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_service_signin_attempts_total",
		Help: "The total number of signin attempts",
	}, []string{"status"})

	// RegistrationAttemptsTotal counts registration attempts by outcome.
	RegistrationAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_service_registration_attempts_total",
		Help: "The total number of registration attempts",
	}, []string{"status"})

	// TokenRefreshTotal counts session refresh rotations by outcome.
	TokenRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_service_token_refresh_total",
		Help: "The total number of token refreshes",
	}, []string{"status"})

	// MFAVerificationsTotal counts MFA challenge verifications by outcome.
	MFAVerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_service_mfa_verifications_total",
		Help: "The total number of MFA challenge verifications",
	}, []string{"status"})

	// VerificationWindowsIssued counts verification windows by purpose and
	// whether an existing window was reused.
	VerificationWindowsIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_service_verification_windows_issued_total",
		Help: "The total number of verification windows issued",
	}, []string{"purpose", "reused"})
)
