package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ehr/patients/internal/config"
)

var (
	// ErrUnauthenticated means the login credentials were missing or wrong.
	ErrUnauthenticated = errors.New("invalid username or password")
	// ErrUnauthorized means a bearer token was malformed, forged or expired.
	ErrUnauthorized = errors.New("invalid or expired token")
	// ErrNoCredential is returned by a CredentialStore for unknown usernames.
	ErrNoCredential = errors.New("credential not found")
)

// Login outcomes reported to a LoginObserver.
const (
	LoginSucceeded = "success"
	LoginRejected  = "rejected"
	LoginFailed    = "error"
)

type Credential struct {
	Username     string
	PasswordHash string
}

type CredentialStore interface {
	GetCredential(ctx context.Context, username string) (*Credential, error)
}

type LoginObserver interface {
	ObserveLogin(outcome string)
}

// Service issues and validates bearer tokens. The signing secret and the
// token lifetime are read from the settings snapshot on every call, so a
// config reload takes effect for the next request.
type Service struct {
	store    CredentialStore
	hasher   PasswordHasher
	settings *config.Store
	observer LoginObserver
	now      func() time.Time

	// dummyHash is verified against when the username is unknown so both
	// paths cost one argon2 computation.
	dummyHash string
}

func NewService(store CredentialStore, hasher PasswordHasher, settings *config.Store) *Service {
	s := &Service{
		store:    store,
		hasher:   hasher,
		settings: settings,
		now:      time.Now,
	}
	if h, err := hasher.Hash("not-a-real-password"); err == nil {
		s.dummyHash = h
	}
	return s
}

// SetObserver registers o to receive one outcome per IssueToken call.
func (s *Service) SetObserver(o LoginObserver) {
	s.observer = o
}

func (s *Service) issuer() *TokenIssuer {
	cfg := s.settings.Load()
	ti := NewTokenIssuer([]byte(cfg.TokenSecret), time.Duration(cfg.TokenTimeoutSeconds)*time.Second)
	ti.now = s.now
	return ti
}

// IssueToken checks username and password and returns a signed token whose
// subject is the username.
func (s *Service) IssueToken(ctx context.Context, username, password string) (string, error) {
	token, err := s.issueToken(ctx, username, password)
	if s.observer != nil {
		switch {
		case err == nil:
			s.observer.ObserveLogin(LoginSucceeded)
		case errors.Is(err, ErrUnauthenticated):
			s.observer.ObserveLogin(LoginRejected)
		default:
			s.observer.ObserveLogin(LoginFailed)
		}
	}
	return token, err
}

func (s *Service) issueToken(ctx context.Context, username, password string) (string, error) {
	cred, err := s.store.GetCredential(ctx, username)
	if errors.Is(err, ErrNoCredential) {
		if s.dummyHash != "" {
			_ = s.hasher.Verify(password, s.dummyHash)
		}
		return "", ErrUnauthenticated
	}
	if err != nil {
		return "", fmt.Errorf("look up credential: %w", err)
	}

	if err := s.hasher.Verify(password, cred.PasswordHash); err != nil {
		if errors.Is(err, ErrMismatchedPassword) {
			return "", ErrUnauthenticated
		}
		return "", fmt.Errorf("verify password for %s: %w", username, err)
	}

	return s.issuer().Issue(cred.Username)
}

// ValidateToken returns the claims of a valid token, or an error wrapping
// ErrUnauthorized.
func (s *Service) ValidateToken(tokenStr string) (*Claims, error) {
	claims, err := s.issuer().Parse(tokenStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return claims, nil
}
