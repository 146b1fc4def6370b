// Package handlers provides HTTP handlers for the hiveguard API.
package handlers

import (
	"errors"
	"net/http"

	"github.com/MacJediWizard/hiveguard/internal/access"
	"github.com/MacJediWizard/hiveguard/internal/models"
	"github.com/MacJediWizard/hiveguard/internal/remote"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// statusFor maps service errors to HTTP statuses.
func statusFor(err error) int {
	var validation *models.ValidationError
	var denied *access.AuthenticationDeniedError
	var connErr *access.ConnectionTestError
	switch {
	case errors.Is(err, access.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, access.ErrFeatureDisabled),
		errors.Is(err, access.ErrRemoteControlSuspended),
		errors.Is(err, access.ErrActiveConfigExists),
		errors.Is(err, access.ErrLoginTaken):
		return http.StatusConflict
	case errors.Is(err, access.ErrNotFound), errors.Is(err, access.ErrNoActiveConfig):
		return http.StatusNotFound
	case errors.Is(err, access.ErrIncompleteConfig), errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.Is(err, access.ErrInvalidCredentials), errors.As(err, &denied):
		return http.StatusUnauthorized
	case errors.As(err, &connErr):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// respondError writes err as {"error": ...}. Internal faults are logged and
// masked.
func respondError(c *gin.Context, logger zerolog.Logger, err error, op string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error().Err(err).Str("op", op).Msg("request failed")
		c.JSON(status, gin.H{"error": "failed to " + op})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// respondEnvelope writes err in the {success, error} envelope used by the
// add-on routes.
func respondEnvelope(c *gin.Context, logger zerolog.Logger, err error, op string) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error().Err(err).Str("op", op).Msg("request failed")
		msg = "failed to " + op
	}
	c.JSON(status, gin.H{"success": false, "error": msg})
}

// resultStatus maps a failed remote exchange to an HTTP status.
func resultStatus(res remote.Result) int {
	if res.Kind == remote.KindTimeout {
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return uuid.Nil, false
	}
	return id, true
}
