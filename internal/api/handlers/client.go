package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/MacJediWizard/hiveguard/internal/access"
	"github.com/MacJediWizard/hiveguard/internal/api/middleware"
	"github.com/MacJediWizard/hiveguard/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// InboundService applies pushes from the remote authority.
type InboundService interface {
	GetConfig(ctx context.Context, id uuid.UUID) (*models.ClientConfig, error)
	ApplyRemoteBlock(ctx context.Context, cfg *models.ClientConfig, blocked bool, reason string) error
	ApplyRemoteUnblock(ctx context.Context, cfg *models.ClientConfig) error
	ApplyRemoteWarning(ctx context.Context, cfg *models.ClientConfig, update access.WarningUpdate) error
}

// ClientHandler serves the shared-secret routes called by the remote
// authority. Responses use the {success, error} envelope.
type ClientHandler struct {
	service     InboundService
	hostVersion string
	now         func() time.Time
	logger      zerolog.Logger
}

// NewClientHandler creates a new ClientHandler.
func NewClientHandler(service InboundService, hostVersion string, logger zerolog.Logger) *ClientHandler {
	return &ClientHandler{
		service:     service,
		hostVersion: hostVersion,
		now:         time.Now,
		logger:      logger.With().Str("component", "client_handler").Logger(),
	}
}

// RegisterRoutes registers the inbound routes. The group must already apply
// middleware.ClientAuth.
func (h *ClientHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/ping", h.Ping)
	r.POST("/block", h.Block)
	r.POST("/unblock", h.Unblock)
	r.POST("/warning", h.Warning)
	r.GET("/status", h.Status)
}

// bindOptionalJSON decodes the body into v. An empty body leaves v unchanged.
func bindOptionalJSON(c *gin.Context, v any) error {
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Ping answers a liveness probe.
// GET /smarthive_client/ping
func (h *ClientHandler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"odoo_version":  h.hostVersion,
		"addon_version": access.AddonVersion,
		"timestamp":     h.now().UTC().Format(time.RFC3339),
	})
}

type blockRequest struct {
	Blocked     *bool   `json:"blocked"`
	BlockReason *string `json:"block_reason"`
}

// Block applies a remote block.
// POST /smarthive_client/block
func (h *ClientHandler) Block(c *gin.Context) {
	var req blockRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body"})
		return
	}

	blocked := true
	if req.Blocked != nil {
		blocked = *req.Blocked
	}
	reason := access.DefaultRemoteBlockReason
	if req.BlockReason != nil {
		reason = *req.BlockReason
	}

	if err := h.service.ApplyRemoteBlock(c.Request.Context(), middleware.GetClientConfig(c), blocked, reason); err != nil {
		respondEnvelope(c, h.logger, err, "block client")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Unblock clears a remote block.
// POST /smarthive_client/unblock
func (h *ClientHandler) Unblock(c *gin.Context) {
	if err := h.service.ApplyRemoteUnblock(c.Request.Context(), middleware.GetClientConfig(c)); err != nil {
		respondEnvelope(c, h.logger, err, "unblock client")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Warning sets the banner and payment fields.
// POST /smarthive_client/warning
func (h *ClientHandler) Warning(c *gin.Context) {
	var req access.WarningUpdate
	if err := bindOptionalJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body"})
		return
	}

	if err := h.service.ApplyRemoteWarning(c.Request.Context(), middleware.GetClientConfig(c), req); err != nil {
		respondEnvelope(c, h.logger, err, "set warning")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// Status reports the current access state.
// GET /smarthive_client/status
func (h *ClientHandler) Status(c *gin.Context) {
	cfg, err := h.service.GetConfig(c.Request.Context(), middleware.GetClientConfig(c).ID)
	if err != nil {
		respondEnvelope(c, h.logger, err, "get status")
		return
	}
	c.JSON(http.StatusOK, access.Snapshot(cfg))
}
