// Package auth provides cookie sessions and password credentials for the
// administrative surface.
package auth

import (
	"encoding/gob"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"github.com/rs/zerolog"
)

func init() {
	gob.Register(uuid.UUID{})
	gob.Register(time.Time{})
}

const (
	// SessionName is the name of the session cookie.
	SessionName = "hiveguard_session"
	// UserIDKey is the session key for the authenticated principal ID.
	UserIDKey = "user_id"
	// LoginKey is the session key for the principal's login.
	LoginKey = "login"
	// AuthenticatedAtKey is the session key for when the principal authenticated.
	AuthenticatedAtKey = "authenticated_at"
)

// ErrNoSession is returned when the request carries no authenticated session.
var ErrNoSession = errors.New("no user in session")

// ErrSessionExpired is returned when a session's login time is older than MaxAge.
var ErrSessionExpired = errors.New("session expired")

// SessionConfig holds session store configuration.
type SessionConfig struct {
	Secret     []byte
	MaxAge     int  // seconds
	Secure     bool // require HTTPS
	HTTPOnly   bool
	SameSite   http.SameSite
	CookiePath string
}

// DefaultSessionConfig returns a SessionConfig with secure defaults.
func DefaultSessionConfig(secret []byte, secure bool) SessionConfig {
	return SessionConfig{
		Secret:     secret,
		MaxAge:     86400,
		Secure:     secure,
		HTTPOnly:   true,
		SameSite:   http.SameSiteLaxMode,
		CookiePath: "/",
	}
}

// SessionStore wraps a gorilla/sessions cookie store.
type SessionStore struct {
	store  *sessions.CookieStore
	maxAge time.Duration
	now    func() time.Time
	logger zerolog.Logger
}

// NewSessionStore creates a new session store.
func NewSessionStore(cfg SessionConfig, logger zerolog.Logger) (*SessionStore, error) {
	if len(cfg.Secret) < 32 {
		return nil, fmt.Errorf("session secret must be at least 32 bytes")
	}

	store := sessions.NewCookieStore(cfg.Secret)
	store.Options = &sessions.Options{
		Path:     cfg.CookiePath,
		MaxAge:   cfg.MaxAge,
		HttpOnly: cfg.HTTPOnly,
		Secure:   cfg.Secure,
		SameSite: cfg.SameSite,
	}

	s := &SessionStore{
		store:  store,
		maxAge: time.Duration(cfg.MaxAge) * time.Second,
		now:    time.Now,
		logger: logger.With().Str("component", "session").Logger(),
	}

	s.logger.Info().
		Bool("secure", cfg.Secure).
		Int("max_age", cfg.MaxAge).
		Msg("session store initialized")

	return s, nil
}

func (s *SessionStore) get(r *http.Request) (*sessions.Session, error) {
	session, err := s.store.Get(r, SessionName)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

func (s *SessionStore) save(r *http.Request, w http.ResponseWriter, session *sessions.Session) error {
	if err := session.Save(r, w); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// SessionUser is the authenticated principal stored in the session.
type SessionUser struct {
	ID              uuid.UUID
	Login           string
	AuthenticatedAt time.Time
}

// SetUser stores the principal in the session after a successful login.
func (s *SessionStore) SetUser(r *http.Request, w http.ResponseWriter, user *SessionUser) error {
	session, err := s.get(r)
	if err != nil {
		return err
	}
	if user.AuthenticatedAt.IsZero() {
		user.AuthenticatedAt = s.now().UTC()
	}
	session.Values[UserIDKey] = user.ID
	session.Values[LoginKey] = user.Login
	session.Values[AuthenticatedAtKey] = user.AuthenticatedAt
	return s.save(r, w, session)
}

// GetUser returns the principal stored in the session.
func (s *SessionStore) GetUser(r *http.Request) (*SessionUser, error) {
	session, err := s.get(r)
	if err != nil {
		return nil, err
	}

	userID, ok := session.Values[UserIDKey].(uuid.UUID)
	if !ok {
		return nil, ErrNoSession
	}
	login, _ := session.Values[LoginKey].(string)
	authenticatedAt, ok := session.Values[AuthenticatedAtKey].(time.Time)
	if !ok || authenticatedAt.IsZero() {
		return nil, ErrNoSession
	}
	if s.maxAge > 0 && s.now().Sub(authenticatedAt) > s.maxAge {
		return nil, ErrSessionExpired
	}

	return &SessionUser{
		ID:              userID,
		Login:           login,
		AuthenticatedAt: authenticatedAt,
	}, nil
}

// ClearUser removes the principal from the session and expires the cookie.
func (s *SessionStore) ClearUser(r *http.Request, w http.ResponseWriter) error {
	session, err := s.get(r)
	if err != nil {
		return err
	}
	delete(session.Values, UserIDKey)
	delete(session.Values, LoginKey)
	delete(session.Values, AuthenticatedAtKey)
	session.Options.MaxAge = -1
	return s.save(r, w, session)
}
