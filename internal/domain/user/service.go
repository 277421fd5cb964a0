package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/ehr/patients/internal/platform/auth"
)

type Service struct {
	repo   Repository
	hasher auth.PasswordHasher
}

func NewService(repo Repository, hasher auth.PasswordHasher) *Service {
	return &Service{repo: repo, hasher: hasher}
}

// CreateUser hashes password and stores a new account.
func (s *Service) CreateUser(ctx context.Context, username, password string) (*User, error) {
	if username == "" {
		return nil, fmt.Errorf("username is required")
	}
	if password == "" {
		return nil, fmt.Errorf("password is required")
	}

	// Skip the hashing cost for a name that is already taken.
	if _, err := s.repo.GetByUsername(ctx, username); err == nil {
		return nil, ErrExists
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &User{Username: username, PasswordHash: hash}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// GetCredential implements auth.CredentialStore.
func (s *Service) GetCredential(ctx context.Context, username string) (*auth.Credential, error) {
	u, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, auth.ErrNoCredential
		}
		return nil, err
	}
	return &auth.Credential{Username: u.Username, PasswordHash: u.PasswordHash}, nil
}
