package handlers

import (
	"context"
	"net/http"

	"github.com/MacJediWizard/hiveguard/internal/access"
	"github.com/MacJediWizard/hiveguard/internal/api/middleware"
	"github.com/MacJediWizard/hiveguard/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// AddonService serves the banner and local admin override.
type AddonService interface {
	WarningData(ctx context.Context) access.WarningData
	SetLocalBlock(ctx context.Context, principal *models.Principal, blocked bool, reason string) (*models.ClientConfig, error)
	SetLocalWarning(ctx context.Context, principal *models.Principal, update access.WarningUpdate) (*models.ClientConfig, error)
}

// AddonHandler serves session routes under /smarthive_client.
type AddonHandler struct {
	service AddonService
	logger  zerolog.Logger
}

// NewAddonHandler creates a new AddonHandler.
func NewAddonHandler(service AddonService, logger zerolog.Logger) *AddonHandler {
	return &AddonHandler{
		service: service,
		logger:  logger.With().Str("component", "addon_handler").Logger(),
	}
}

// RegisterRoutes registers the banner and override routes. The group must
// already apply middleware.SessionAuth.
func (h *AddonHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/warning_data", h.WarningData)

	local := r.Group("/local")
	{
		local.POST("/block", h.LocalBlock)
		local.POST("/unblock", h.LocalUnblock)
		local.POST("/warning", h.LocalWarning)
	}
}

// WarningData returns the banner for the current user.
// GET /smarthive_client/warning_data
func (h *AddonHandler) WarningData(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.WarningData(c.Request.Context()))
}

type localBlockRequest struct {
	BlockReason string `json:"block_reason"`
}

// LocalBlock blocks access without contacting the remote authority.
// POST /smarthive_client/local/block
func (h *AddonHandler) LocalBlock(c *gin.Context) {
	var req localBlockRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body"})
		return
	}
	h.setBlock(c, true, req.BlockReason)
}

// LocalUnblock lifts a block without contacting the remote authority.
// POST /smarthive_client/local/unblock
func (h *AddonHandler) LocalUnblock(c *gin.Context) {
	h.setBlock(c, false, "")
}

func (h *AddonHandler) setBlock(c *gin.Context, blocked bool, reason string) {
	cfg, err := h.service.SetLocalBlock(c.Request.Context(), middleware.GetPrincipal(c), blocked, reason)
	if err != nil {
		respondEnvelope(c, h.logger, err, "update block state")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "is_blocked": cfg.IsBlocked, "block_reason": cfg.BlockReason})
}

// LocalWarning sets the banner without contacting the remote authority.
// POST /smarthive_client/local/warning
func (h *AddonHandler) LocalWarning(c *gin.Context) {
	var req access.WarningUpdate
	if err := bindOptionalJSON(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body"})
		return
	}

	if _, err := h.service.SetLocalWarning(c.Request.Context(), middleware.GetPrincipal(c), req); err != nil {
		respondEnvelope(c, h.logger, err, "set warning")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
