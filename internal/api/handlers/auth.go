package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MacJediWizard/hiveguard/internal/access"
	"github.com/MacJediWizard/hiveguard/internal/api/middleware"
	"github.com/MacJediWizard/hiveguard/internal/auth"
	"github.com/MacJediWizard/hiveguard/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// LoginService verifies credentials and applies the login gate.
type LoginService interface {
	Login(ctx context.Context, login, password string) (*models.Principal, error)
}

// AuthHandler handles login, logout and the current principal.
type AuthHandler struct {
	logins   LoginService
	sessions *auth.SessionStore
	logger   zerolog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(logins LoginService, sessions *auth.SessionStore, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		logins:   logins,
		sessions: sessions,
		logger:   logger.With().Str("component", "auth_handler").Logger(),
	}
}

// RegisterPublicRoutes registers routes that do not need a session.
func (h *AuthHandler) RegisterPublicRoutes(r *gin.RouterGroup) {
	r.POST("/auth/login", h.Login)
}

// RegisterRoutes registers routes behind SessionAuth.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/auth/logout", h.Logout)
}

// RegisterGatedRoutes registers routes behind SessionAuth and AccessGate.
func (h *AuthHandler) RegisterGatedRoutes(r *gin.RouterGroup) {
	r.GET("/me", h.Me)
}

// LoginRequest is the password login body.
type LoginRequest struct {
	Login    string `json:"login" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login authenticates with login and password and starts a session.
// A blocked installation refuses non-exempt principals.
// POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "login and password are required"})
		return
	}

	principal, err := h.logins.Login(c.Request.Context(), req.Login, req.Password)
	if err != nil {
		if access.IsAuthenticationDenied(err) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "blocked": true})
			return
		}
		respondError(c, h.logger, err, "log in")
		return
	}

	user := &auth.SessionUser{
		ID:              principal.ID,
		Login:           principal.Login,
		AuthenticatedAt: time.Now().UTC(),
	}
	if err := h.sessions.SetUser(c.Request, c.Writer, user); err != nil {
		h.logger.Error().Err(err).Msg("failed to save session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}

	c.JSON(http.StatusOK, principal)
}

// Logout ends the session.
// POST /api/v1/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.sessions.ClearUser(c.Request, c.Writer); err != nil {
		h.logger.Error().Err(err).Msg("failed to clear session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to log out"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// MeResponse describes the current principal.
type MeResponse struct {
	*models.Principal
	SystemAdmin bool `json:"system_admin"`
}

// Me returns the current principal.
// GET /api/v1/me
func (h *AuthHandler) Me(c *gin.Context) {
	p := middleware.GetPrincipal(c)
	c.JSON(http.StatusOK, MeResponse{Principal: p, SystemAdmin: p.IsSystemAdmin()})
}
