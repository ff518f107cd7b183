package service

import (
	"context"
	"errors"
	"fmt"

	domainErrors "github.com/driftline/auth-service/internal/domain/errors"
	"github.com/driftline/auth-service/internal/domain/models"
	"github.com/driftline/auth-service/internal/repository/interfaces"
)

// CredentialStrategy resolves a login identifier to a user record. The
// orchestrator picks the variant from which identifier the request supplied
// and must reject requests supplying neither before calling Resolve.
type CredentialStrategy interface {
	Resolve(ctx context.Context, identifier string) (*models.User, error)
	IdentifierType() string
}

type emailStrategy struct {
	userRepo interfaces.UserRepository
}

// NewEmailStrategy resolves users by email.
func NewEmailStrategy(userRepo interfaces.UserRepository) CredentialStrategy {
	return &emailStrategy{userRepo: userRepo}
}

func (s *emailStrategy) IdentifierType() string { return "email" }

func (s *emailStrategy) Resolve(ctx context.Context, identifier string) (*models.User, error) {
	user, err := s.userRepo.FindByEmail(ctx, identifier)
	if err != nil {
		if errors.Is(err, domainErrors.ErrUserNotFound) {
			return nil, fmt.Errorf("no user with this email: %w", domainErrors.ErrUserNotFound)
		}
		return nil, err
	}
	return user, nil
}

type usernameStrategy struct {
	userRepo interfaces.UserRepository
}

// NewUsernameStrategy resolves users by username.
func NewUsernameStrategy(userRepo interfaces.UserRepository) CredentialStrategy {
	return &usernameStrategy{userRepo: userRepo}
}

func (s *usernameStrategy) IdentifierType() string { return "username" }

func (s *usernameStrategy) Resolve(ctx context.Context, identifier string) (*models.User, error) {
	user, err := s.userRepo.FindByUsername(ctx, identifier)
	if err != nil {
		if errors.Is(err, domainErrors.ErrUserNotFound) {
			return nil, fmt.Errorf("no user with this username: %w", domainErrors.ErrUserNotFound)
		}
		return nil, err
	}
	return user, nil
}

// SelectStrategy picks the resolution strategy for a signin request.
// Exactly one identifier must be present.
func SelectStrategy(req models.SigninRequest, userRepo interfaces.UserRepository) (CredentialStrategy, string, error) {
	switch {
	case req.Email != "" && req.Username != "":
		return nil, "", fmt.Errorf("supply either email or username, not both: %w", domainErrors.ErrInvalidInput)
	case req.Email != "":
		return NewEmailStrategy(userRepo), req.Email, nil
	case req.Username != "":
		return NewUsernameStrategy(userRepo), req.Username, nil
	default:
		return nil, "", fmt.Errorf("email or username is required: %w", domainErrors.ErrInvalidInput)
	}
}
