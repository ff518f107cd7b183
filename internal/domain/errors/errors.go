package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// Generic
	ErrInternal      = errors.New("internal server error")
	ErrInvalidInput  = errors.New("invalid request")
	ErrNotFound      = errors.New("resource not found")
	ErrAlreadyExists = errors.New("resource already exists")
	ErrForbidden     = errors.New("forbidden")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrDatabase      = errors.New("database error")

	// Authentication
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInvalidToken        = errors.New("invalid token")
	ErrExpiredToken        = errors.New("expired token")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrSessionIPMismatch   = errors.New("session IP mismatch")

	// Users
	ErrUserNotFound     = errors.New("user not found")
	ErrEmailExists      = errors.New("email already in use")
	ErrUsernameExists   = errors.New("username already in use")
	ErrUserLockedOut    = errors.New("user temporarily locked out")
	ErrEmailNotVerified = errors.New("email not verified")

	// Sessions
	ErrSessionNotFound = errors.New("session not found")

	// Verification windows
	ErrVerificationNotFound = errors.New("verification window not found")
	ErrVerificationMismatch = errors.New("verification details do not match")

	// MFA factors and challenges
	ErrFactorNotFound      = errors.New("factor not found")
	ErrFactorAlreadyExists = errors.New("a verified TOTP factor already exists")
	ErrChallengeNotFound   = errors.New("challenge not found")
	ErrChallengeVerified   = errors.New("challenge already verified")
	ErrChallengeIPMismatch = errors.New("challenge IP mismatch")
	ErrChallengeExpired    = errors.New("challenge expired")
	ErrInvalidTOTPCode     = errors.New("invalid TOTP code")

	// Legacy 2FA
	Err2FAAlreadyEnabled = errors.New("2FA already enabled")
	Err2FANotEnabled     = errors.New("2FA not enabled")
)

// AppError carries the boundary shape for an application error.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
	Code       string
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new application error.
func NewAppError(err error, message string, statusCode int, code string) *AppError {
	return &AppError{Err: err, Message: message, StatusCode: statusCode, Code: code}
}

// WrapDatabase wraps any durable-store failure into a single database error
// so transport-specific errors never leak to callers.
func WrapDatabase(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrDatabase, err)
}

// IsNotFound reports whether err is a "not found" class error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrFactorNotFound) ||
		errors.Is(err, ErrChallengeNotFound) ||
		errors.Is(err, ErrVerificationNotFound)
}

// IsUnauthorized reports whether err is an authentication failure.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrExpiredToken) ||
		errors.Is(err, ErrInvalidRefreshToken)
}

// IsConflict reports whether err is a uniqueness conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyExists) ||
		errors.Is(err, ErrEmailExists) ||
		errors.Is(err, ErrUsernameExists)
}

// IsUnprocessable reports whether err is a state conflict that maps to 422.
func IsUnprocessable(err error) bool {
	return errors.Is(err, ErrFactorAlreadyExists) ||
		errors.Is(err, ErrChallengeVerified) ||
		errors.Is(err, ErrChallengeExpired) ||
		errors.Is(err, ErrInvalidTOTPCode) ||
		errors.Is(err, ErrEmailNotVerified) ||
		errors.Is(err, Err2FAAlreadyEnabled) ||
		errors.Is(err, Err2FANotEnabled)
}

// StatusCode maps a domain error to its HTTP status.
func StatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	switch {
	case IsNotFound(err):
		return http.StatusNotFound
	case IsUnauthorized(err):
		return http.StatusUnauthorized
	case IsConflict(err):
		return http.StatusConflict
	case IsUnprocessable(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrSessionIPMismatch),
		errors.Is(err, ErrVerificationMismatch):
		return http.StatusBadRequest
	case errors.Is(err, ErrUserLockedOut):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
