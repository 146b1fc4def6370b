package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MacJediWizard/hiveguard/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog"
)

func newTestMetrics(t *testing.T) *PrometheusMetrics {
	t.Helper()
	m, err := NewPrometheusMetrics(prometheus.NewRegistry())
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}
	return m
}

func TestPrometheus_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewPrometheusMetrics(reg); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	if _, err := NewPrometheusMetrics(reg); err == nil {
		t.Fatal("expected error registering metrics twice")
	}
}

func TestPrometheus_Recorder(t *testing.T) {
	m := newTestMetrics(t)

	t.Run("heartbeats by result", func(t *testing.T) {
		m.HeartbeatResult("sent")
		m.HeartbeatResult("sent")
		m.HeartbeatResult("failed")

		if v := getCounterValue(t, m.Heartbeats, "sent"); v != 2 {
			t.Errorf("expected 2 sent heartbeats, got %v", v)
		}
		if v := getCounterValue(t, m.Heartbeats, "failed"); v != 1 {
			t.Errorf("expected 1 failed heartbeat, got %v", v)
		}
	})

	t.Run("access decisions and fail open", func(t *testing.T) {
		m.AccessDecision("deny")
		m.AccessDecision("fail_open")
		m.FailOpen()

		if v := getCounterValue(t, m.AccessDecisions, "deny"); v != 1 {
			t.Errorf("expected 1 deny, got %v", v)
		}
		if v := getPlainCounterValue(t, m.FailOpenTotal); v != 1 {
			t.Errorf("expected 1 fail open, got %v", v)
		}
	})

	t.Run("override actions", func(t *testing.T) {
		m.OverrideAction("block")
		m.OverrideAction("warning")

		if v := getCounterValue(t, m.OverrideActions, "block"); v != 1 {
			t.Errorf("expected 1 block, got %v", v)
		}
		if v := getCounterValue(t, m.OverrideActions, "unblock"); v != 0 {
			t.Errorf("expected 0 unblock, got %v", v)
		}
	})
}

func TestPrometheus_ObservePass(t *testing.T) {
	m := newTestMetrics(t)

	m.ObservePass(1500*time.Millisecond, []string{"heartbeat_sent", "heartbeat_sent", "skipped"})
	m.ObservePass(500*time.Millisecond, nil)

	count, sum := getHistogramValues(t, m.SchedulerPassDuration)
	if count != 2 {
		t.Errorf("expected 2 observations, got %d", count)
	}
	if sum != 2.0 {
		t.Errorf("expected sum 2.0, got %v", sum)
	}
	if v := getCounterValue(t, m.SchedulerOutcomes, "heartbeat_sent"); v != 2 {
		t.Errorf("expected 2 heartbeat_sent outcomes, got %v", v)
	}
}

type stubSource struct {
	cfg   *models.ClientConfig
	err   error
	calls int
}

func (s *stubSource) GetActiveConfig(context.Context) (*models.ClientConfig, error) {
	s.calls++
	return s.cfg, s.err
}

func TestStateCollector_Refresh(t *testing.T) {
	m := newTestMetrics(t)

	contact := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cfg := models.NewClientConfig("https://hive.example.com", "acme", "key")
	cfg.IsBlocked = true
	cfg.LocalAdminMode = true
	cfg.LastContact = &contact

	src := &stubSource{cfg: cfg}
	c := NewStateCollector(src, m, zerolog.Nop())

	c.Refresh(context.Background())
	if v := getGaugeValue(t, m.ClientBlocked); v != 1 {
		t.Errorf("expected blocked gauge 1, got %v", v)
	}
	if v := getGaugeValue(t, m.WarningShown); v != 0 {
		t.Errorf("expected warning gauge 0, got %v", v)
	}
	if v := getGaugeValue(t, m.LocalAdminMode); v != 1 {
		t.Errorf("expected local admin gauge 1, got %v", v)
	}
	if v := getGaugeValue(t, m.LastContactSecond); v != float64(contact.Unix()) {
		t.Errorf("expected last contact %d, got %v", contact.Unix(), v)
	}

	// Cached: a second refresh within the expiry does not read again.
	c.Refresh(context.Background())
	if src.calls != 1 {
		t.Errorf("expected 1 read, got %d", src.calls)
	}

	c.cacheExpiry = 0
	src.cfg = nil
	c.Refresh(context.Background())
	if v := getGaugeValue(t, m.ClientBlocked); v != 0 {
		t.Errorf("expected blocked gauge reset, got %v", v)
	}
	if v := getGaugeValue(t, m.LastContactSecond); v != 0 {
		t.Errorf("expected last contact reset, got %v", v)
	}
}

func TestStateCollector_ReadErrorKeepsGauges(t *testing.T) {
	m := newTestMetrics(t)
	cfg := models.NewClientConfig("https://hive.example.com", "acme", "key")
	cfg.IsBlocked = true

	src := &stubSource{cfg: cfg}
	c := NewStateCollector(src, m, zerolog.Nop())
	c.cacheExpiry = 0
	c.Refresh(context.Background())

	src.err = errors.New("database is locked")
	c.Refresh(context.Background())
	if v := getGaugeValue(t, m.ClientBlocked); v != 1 {
		t.Errorf("expected blocked gauge to survive read error, got %v", v)
	}
}

func getCounterValue(t *testing.T, counter *prometheus.CounterVec, label string) float64 {
	t.Helper()
	return getPlainCounterValue(t, counter.WithLabelValues(label))
}

func getPlainCounterValue(t *testing.T, counter prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := counter.Write(&m); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func getGaugeValue(t *testing.T, gauge prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := gauge.Write(&m); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	return m.GetGauge().GetValue()
}

func getHistogramValues(t *testing.T, hist prometheus.Histogram) (uint64, float64) {
	t.Helper()
	var m dto.Metric
	if err := hist.Write(&m); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	return m.GetHistogram().GetSampleCount(), m.GetHistogram().GetSampleSum()
}
