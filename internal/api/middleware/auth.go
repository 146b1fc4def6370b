// Package middleware provides HTTP middleware for the hiveguard API.
package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/MacJediWizard/hiveguard/internal/access"
	"github.com/MacJediWizard/hiveguard/internal/auth"
	"github.com/MacJediWizard/hiveguard/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// ContextKey is the type for context keys used by this package.
type ContextKey string

const (
	// PrincipalContextKey holds the authenticated *models.Principal.
	PrincipalContextKey ContextKey = "principal"
	// ClientConfigContextKey holds the *models.ClientConfig matched by a
	// shared-secret request.
	ClientConfigContextKey ContextKey = "client_config"
	// AccessDecisionContextKey holds the access.Decision made by AccessGate.
	AccessDecisionContextKey ContextKey = "access_decision"
)

// Shared-secret headers sent by the remote authority.
const (
	HeaderAPIKey   = "X-SmartHive-API-Key"
	HeaderClientID = "X-SmartHive-Client-ID"
)

// PrincipalResolver loads the current principal for a session.
type PrincipalResolver interface {
	Principal(ctx context.Context, user *auth.SessionUser) (*models.Principal, error)
}

// AccessChecker gates privileged operations on the access state.
type AccessChecker interface {
	CheckAccess(ctx context.Context, principal *models.Principal) access.Decision
}

// ClientAuthenticator matches shared-secret credentials to the active configuration.
type ClientAuthenticator interface {
	AuthenticateClient(ctx context.Context, clientID, apiKey string) (*models.ClientConfig, error)
}

// SessionAuth requires a session cookie and resolves it to a principal.
// Stale sessions whose principal no longer exists are cleared.
func SessionAuth(sessions *auth.SessionStore, resolver PrincipalResolver, logger zerolog.Logger) gin.HandlerFunc {
	log := logger.With().Str("component", "auth_middleware").Logger()

	return func(c *gin.Context) {
		user, err := sessions.GetUser(c.Request)
		if err != nil {
			log.Debug().Err(err).Str("path", c.Request.URL.Path).Msg("unauthenticated request")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		principal, err := resolver.Principal(c.Request.Context(), user)
		if err != nil {
			if errors.Is(err, access.ErrNotFound) {
				log.Warn().Str("user_id", user.ID.String()).Msg("session user not found, clearing stale session")
				if clearErr := sessions.ClearUser(c.Request, c.Writer); clearErr != nil {
					log.Warn().Err(clearErr).Msg("failed to clear stale session")
				}
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session expired, please log in again"})
				return
			}
			log.Error().Err(err).Msg("failed to load session principal")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
			return
		}

		c.Set(string(PrincipalContextKey), principal)
		c.Next()
	}
}

// AccessGate denies non-exempt principals while the installation is blocked.
// Must run after SessionAuth.
func AccessGate(checker AccessChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal := GetPrincipal(c)
		if principal == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		decision := checker.CheckAccess(c.Request.Context(), principal)
		c.Set(string(AccessDecisionContextKey), decision)
		if !decision.Allowed {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": decision.Reason, "blocked": true})
			return
		}
		c.Next()
	}
}

// RequireSystemAdmin restricts a route group to system administrators.
func RequireSystemAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal := GetPrincipal(c)
		if principal == nil || !principal.IsSystemAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "system administrator privileges required"})
			return
		}
		c.Next()
	}
}

// ClientAuth authenticates the remote authority by its shared secret.
// Failures use the {success, error} envelope the remote authority expects.
func ClientAuth(authenticator ClientAuthenticator, logger zerolog.Logger) gin.HandlerFunc {
	log := logger.With().Str("component", "client_auth").Logger()

	return func(c *gin.Context) {
		apiKey := c.GetHeader(HeaderAPIKey)
		clientID := c.GetHeader(HeaderClientID)
		if apiKey == "" || clientID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Missing API key or client ID"})
			return
		}

		cfg, err := authenticator.AuthenticateClient(c.Request.Context(), clientID, apiKey)
		if err != nil {
			if errors.Is(err, access.ErrInvalidCredentials) {
				log.Warn().Str("client_id", clientID).Str("client_ip", c.ClientIP()).Msg("invalid client credentials")
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Invalid API credentials"})
				return
			}
			log.Error().Err(err).Msg("client authentication failed")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": "authentication failed"})
			return
		}

		c.Set(string(ClientConfigContextKey), cfg)
		c.Next()
	}
}

// GetPrincipal returns the authenticated principal, or nil.
func GetPrincipal(c *gin.Context) *models.Principal {
	v, ok := c.Get(string(PrincipalContextKey))
	if !ok {
		return nil
	}
	p, _ := v.(*models.Principal)
	return p
}

// GetClientConfig returns the configuration matched by ClientAuth, or nil.
func GetClientConfig(c *gin.Context) *models.ClientConfig {
	v, ok := c.Get(string(ClientConfigContextKey))
	if !ok {
		return nil
	}
	cfg, _ := v.(*models.ClientConfig)
	return cfg
}
