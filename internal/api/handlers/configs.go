package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/MacJediWizard/hiveguard/internal/access"
	"github.com/MacJediWizard/hiveguard/internal/api/middleware"
	"github.com/MacJediWizard/hiveguard/internal/models"
	"github.com/MacJediWizard/hiveguard/internal/remote"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ConfigService manages client configurations and status logs.
type ConfigService interface {
	ListConfigs(ctx context.Context) ([]*models.ClientConfig, error)
	GetConfig(ctx context.Context, id uuid.UUID) (*models.ClientConfig, error)
	GetActiveConfig(ctx context.Context) (*models.ClientConfig, error)
	CreateConfig(ctx context.Context, principal *models.Principal, cfg *models.ClientConfig) error
	UpdateConfigSettings(ctx context.Context, principal *models.Principal, id uuid.UUID, update access.SettingsUpdate) (*models.ClientConfig, error)
	ActivateConfig(ctx context.Context, principal *models.Principal, id uuid.UUID) error
	DeactivateConfig(ctx context.Context, principal *models.Principal, id uuid.UUID) error
	SetLocalAdminMode(ctx context.Context, principal *models.Principal, id uuid.UUID, enabled bool, localAdminID *uuid.UUID) error
	TestConnection(ctx context.Context, principal *models.Principal, id uuid.UUID) (remote.Result, error)
	SendHeartbeat(ctx context.Context, id uuid.UUID) remote.Result
	SendStatusUpdate(ctx context.Context, id uuid.UUID, payload map[string]any) remote.Result
	ListStatusLogs(ctx context.Context, filter access.StatusLogFilter) ([]*models.StatusLogEntry, error)
}

// ConfigsHandler serves the administrative configuration routes.
type ConfigsHandler struct {
	service ConfigService
	logger  zerolog.Logger
}

// NewConfigsHandler creates a new ConfigsHandler.
func NewConfigsHandler(service ConfigService, logger zerolog.Logger) *ConfigsHandler {
	return &ConfigsHandler{
		service: service,
		logger:  logger.With().Str("component", "configs_handler").Logger(),
	}
}

// RegisterRoutes registers the routes. The group must already require a
// system administrator.
func (h *ConfigsHandler) RegisterRoutes(r *gin.RouterGroup) {
	configs := r.Group("/configs")
	{
		configs.GET("", h.List)
		configs.POST("", h.Create)
		configs.GET("/active", h.Active)
		configs.GET("/:id", h.Get)
		configs.PUT("/:id", h.Update)
		configs.POST("/:id/activate", h.Activate)
		configs.POST("/:id/deactivate", h.Deactivate)
		configs.PUT("/:id/local-admin", h.LocalAdmin)
		configs.POST("/:id/test-connection", h.TestConnection)
		configs.POST("/:id/heartbeat", h.Heartbeat)
		configs.POST("/:id/status-report", h.StatusReport)
	}
	r.GET("/status-logs", h.StatusLogs)
}

// List returns all configurations.
// GET /api/v1/configs
func (h *ConfigsHandler) List(c *gin.Context) {
	configs, err := h.service.ListConfigs(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err, "list configurations")
		return
	}
	c.JSON(http.StatusOK, gin.H{"configs": configs})
}

// Get returns a configuration by ID.
// GET /api/v1/configs/:id
func (h *ConfigsHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	cfg, err := h.service.GetConfig(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err, "get configuration")
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// Active returns the active configuration.
// GET /api/v1/configs/active
func (h *ConfigsHandler) Active(c *gin.Context) {
	cfg, err := h.service.GetActiveConfig(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err, "get active configuration")
		return
	}
	if cfg == nil {
		respondError(c, h.logger, access.ErrNoActiveConfig, "get active configuration")
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// CreateConfigRequest is the body for creating a configuration.
type CreateConfigRequest struct {
	Name              string `json:"name"`
	ServerURL         string `json:"server_url" binding:"required"`
	ClientID          string `json:"client_id" binding:"required"`
	APIKey            string `json:"api_key" binding:"required"`
	HeartbeatInterval int    `json:"heartbeat_interval"`
	AutoReportStatus  *bool  `json:"auto_report_status"`
	Active            bool   `json:"active"`
}

// Create adds a configuration.
// POST /api/v1/configs
func (h *ConfigsHandler) Create(c *gin.Context) {
	var req CreateConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	cfg := models.NewClientConfig(req.ServerURL, req.ClientID, req.APIKey)
	if req.Name != "" {
		cfg.Name = req.Name
	}
	if req.HeartbeatInterval != 0 {
		cfg.HeartbeatInterval = req.HeartbeatInterval
	}
	if req.AutoReportStatus != nil {
		cfg.AutoReportStatus = *req.AutoReportStatus
	}
	cfg.Active = req.Active

	if err := h.service.CreateConfig(c.Request.Context(), middleware.GetPrincipal(c), cfg); err != nil {
		respondError(c, h.logger, err, "create configuration")
		return
	}
	c.JSON(http.StatusCreated, cfg)
}

// Update edits connection settings.
// PUT /api/v1/configs/:id
func (h *ConfigsHandler) Update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req access.SettingsUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	cfg, err := h.service.UpdateConfigSettings(c.Request.Context(), middleware.GetPrincipal(c), id, req)
	if err != nil {
		respondError(c, h.logger, err, "update configuration")
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// Activate makes a configuration the active one.
// POST /api/v1/configs/:id/activate
func (h *ConfigsHandler) Activate(c *gin.Context) {
	h.setActive(c, h.service.ActivateConfig)
}

// Deactivate deactivates a configuration.
// POST /api/v1/configs/:id/deactivate
func (h *ConfigsHandler) Deactivate(c *gin.Context) {
	h.setActive(c, h.service.DeactivateConfig)
}

func (h *ConfigsHandler) setActive(c *gin.Context, fn func(context.Context, *models.Principal, uuid.UUID) error) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := fn(c.Request.Context(), middleware.GetPrincipal(c), id); err != nil {
		respondError(c, h.logger, err, "change activation")
		return
	}
	h.Get(c)
}

// LocalAdminRequest toggles local admin mode.
type LocalAdminRequest struct {
	Enabled          bool       `json:"enabled"`
	LocalAdminUserID *uuid.UUID `json:"local_admin_user_id"`
}

// LocalAdmin enables or disables local admin mode.
// PUT /api/v1/configs/:id/local-admin
func (h *ConfigsHandler) LocalAdmin(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req LocalAdminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	if err := h.service.SetLocalAdminMode(c.Request.Context(), middleware.GetPrincipal(c), id, req.Enabled, req.LocalAdminUserID); err != nil {
		respondError(c, h.logger, err, "set local admin mode")
		return
	}
	h.Get(c)
}

// TestConnection sends a heartbeat and reports the outcome.
// POST /api/v1/configs/:id/test-connection
func (h *ConfigsHandler) TestConnection(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	res, err := h.service.TestConnection(c.Request.Context(), middleware.GetPrincipal(c), id)
	if err != nil {
		var connErr *access.ConnectionTestError
		if errors.As(err, &connErr) {
			c.JSON(resultStatus(connErr.Result), gin.H{"success": false, "error": connErr.Error(), "kind": connErr.Result.Kind})
			return
		}
		respondError(c, h.logger, err, "test connection")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Connection successful", "response": res.Body})
}

// Heartbeat sends a heartbeat immediately.
// POST /api/v1/configs/:id/heartbeat
func (h *ConfigsHandler) Heartbeat(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	writeResult(c, h.service.SendHeartbeat(c.Request.Context(), id))
}

// StatusReport posts a status report to the remote authority.
// POST /api/v1/configs/:id/status-report
func (h *ConfigsHandler) StatusReport(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	payload := map[string]any{}
	if err := bindOptionalJSON(c, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	writeResult(c, h.service.SendStatusUpdate(c.Request.Context(), id, payload))
}

func writeResult(c *gin.Context, res remote.Result) {
	if !res.Success {
		c.JSON(resultStatus(res), gin.H{"success": false, "error": res.Error, "kind": res.Kind})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "response": res.Body})
}

// StatusLogs lists status log entries, newest first.
// GET /api/v1/status-logs?config_id=&type=&limit=
func (h *ConfigsHandler) StatusLogs(c *gin.Context) {
	var filter access.StatusLogFilter
	if v := c.Query("config_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid config_id"})
			return
		}
		filter.ConfigID = &id
	}
	filter.Type = models.StatusType(c.Query("type"))
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		filter.Limit = n
	}

	logs, err := h.service.ListStatusLogs(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.logger, err, "list status logs")
		return
	}
	c.JSON(http.StatusOK, gin.H{"status_logs": logs})
}
