package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StateRefresher updates gauges derived from storage before a scrape.
type StateRefresher interface {
	Refresh(ctx context.Context)
}

// MetricsHandler serves Prometheus metrics from a dedicated registry.
type MetricsHandler struct {
	refresher StateRefresher
	handler   http.Handler
}

// NewMetricsHandler creates a new MetricsHandler. refresher may be nil.
func NewMetricsHandler(gatherer prometheus.Gatherer, refresher StateRefresher) *MetricsHandler {
	return &MetricsHandler{
		refresher: refresher,
		handler:   promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}),
	}
}

// RegisterPublicRoutes registers metrics routes that don't require authentication.
func (h *MetricsHandler) RegisterPublicRoutes(r *gin.Engine) {
	r.GET("/metrics", h.Metrics)
}

// Metrics returns metrics in Prometheus exposition format.
// GET /metrics
func (h *MetricsHandler) Metrics(c *gin.Context) {
	if h.refresher != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		h.refresher.Refresh(ctx)
		cancel()
	}
	h.handler.ServeHTTP(c.Writer, c.Request)
}
