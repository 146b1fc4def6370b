package handlers

import (
	"net/http"

	"github.com/MacJediWizard/hiveguard/internal/access"
	"github.com/gin-gonic/gin"
)

// VersionInfo contains server version information.
type VersionInfo struct {
	Version      string `json:"version"`
	Commit       string `json:"commit,omitempty"`
	BuildDate    string `json:"build_date,omitempty"`
	AddonVersion string `json:"addon_version"`
	HostVersion  string `json:"host_version"`
}

// VersionHandler handles version-related HTTP endpoints.
type VersionHandler struct {
	info VersionInfo
}

// NewVersionHandler creates a new VersionHandler.
func NewVersionHandler(version, commit, buildDate, hostVersion string) *VersionHandler {
	return &VersionHandler{
		info: VersionInfo{
			Version:      version,
			Commit:       commit,
			BuildDate:    buildDate,
			AddonVersion: access.AddonVersion,
			HostVersion:  hostVersion,
		},
	}
}

// RegisterPublicRoutes registers version routes that don't require authentication.
func (h *VersionHandler) RegisterPublicRoutes(r *gin.Engine) {
	r.GET("/version", h.Get)
}

// Get returns the server version information.
// GET /version
func (h *VersionHandler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, h.info)
}
