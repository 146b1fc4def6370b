package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MacJediWizard/hiveguard/internal/access"
	"github.com/MacJediWizard/hiveguard/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PrincipalStore looks up principals for authentication.
type PrincipalStore interface {
	GetPrincipalByLogin(ctx context.Context, login string) (*models.Principal, error)
	GetPrincipalByID(ctx context.Context, id uuid.UUID) (*models.Principal, error)
}

// LoginGate decides whether an authenticated principal may start a session.
type LoginGate interface {
	CheckLogin(ctx context.Context, principal *models.Principal) error
}

// Authenticator verifies credentials and applies the login gate.
type Authenticator struct {
	principals PrincipalStore
	gate       LoginGate
	logger     zerolog.Logger
}

// NewAuthenticator creates a new Authenticator.
func NewAuthenticator(principals PrincipalStore, gate LoginGate, logger zerolog.Logger) *Authenticator {
	return &Authenticator{
		principals: principals,
		gate:       gate,
		logger:     logger.With().Str("component", "auth").Logger(),
	}
}

var (
	dummyHashOnce sync.Once
	dummyHash     string
)

// burnCompare spends roughly one bcrypt comparison so unknown logins take as
// long as wrong passwords.
func burnCompare(password string) {
	dummyHashOnce.Do(func() {
		dummyHash, _ = HashPassword("hiveguard-dummy-password")
	})
	_ = VerifyPassword(password, dummyHash)
}

// Login verifies the credentials and then asks the gate whether the
// principal may enter. A blocked installation yields
// *access.AuthenticationDeniedError.
func (a *Authenticator) Login(ctx context.Context, login, password string) (*models.Principal, error) {
	principal, err := a.principals.GetPrincipalByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, access.ErrNotFound) {
			burnCompare(password)
			return nil, access.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load principal: %w", err)
	}

	if principal.PasswordHash == "" || VerifyPassword(password, principal.PasswordHash) != nil {
		a.logger.Info().Str("login", login).Msg("invalid credentials")
		return nil, access.ErrInvalidCredentials
	}

	if err := a.gate.CheckLogin(ctx, principal); err != nil {
		a.logger.Warn().Str("login", principal.Login).Err(err).Msg("login denied")
		return nil, err
	}

	a.logger.Info().Str("login", principal.Login).Msg("login succeeded")
	return principal, nil
}

// Principal resolves a session user to its current principal record.
func (a *Authenticator) Principal(ctx context.Context, user *SessionUser) (*models.Principal, error) {
	return a.principals.GetPrincipalByID(ctx, user.ID)
}
