package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/MacJediWizard/hiveguard/internal/models"
	"github.com/rs/zerolog"
)

// ConfigSource returns the active client configuration.
type ConfigSource interface {
	GetActiveConfig(ctx context.Context) (*models.ClientConfig, error)
}

// StateCollector refreshes the access state gauges from storage. Reads are
// cached so that frequent scrapes do not hit the database.
type StateCollector struct {
	source  ConfigSource
	metrics *PrometheusMetrics
	logger  zerolog.Logger

	mu            sync.Mutex
	lastCollected time.Time
	cacheExpiry   time.Duration
}

// NewStateCollector creates a new StateCollector.
func NewStateCollector(source ConfigSource, metrics *PrometheusMetrics, logger zerolog.Logger) *StateCollector {
	return &StateCollector{
		source:      source,
		metrics:     metrics,
		logger:      logger.With().Str("component", "state_collector").Logger(),
		cacheExpiry: 15 * time.Second,
	}
}

// Refresh updates the gauges unless they were refreshed recently.
func (c *StateCollector) Refresh(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.lastCollected.IsZero() && time.Since(c.lastCollected) < c.cacheExpiry {
		return
	}

	cfg, err := c.source.GetActiveConfig(ctx)
	if err != nil {
		c.logger.Warn().Err(err).Msg("failed to collect access state metrics")
		return
	}
	c.lastCollected = time.Now()

	if cfg == nil {
		c.metrics.ClientBlocked.Set(0)
		c.metrics.WarningShown.Set(0)
		c.metrics.LocalAdminMode.Set(0)
		c.metrics.LastContactSecond.Set(0)
		return
	}

	c.metrics.ClientBlocked.Set(boolToFloat(cfg.IsBlocked))
	c.metrics.WarningShown.Set(boolToFloat(cfg.ShowWarning))
	c.metrics.LocalAdminMode.Set(boolToFloat(cfg.LocalAdminMode))
	if cfg.LastContact != nil {
		c.metrics.LastContactSecond.Set(float64(cfg.LastContact.Unix()))
	} else {
		c.metrics.LastContactSecond.Set(0)
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
