package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type mockPinger struct {
	pingErr error
}

func (m *mockPinger) Ping(_ context.Context) error {
	return m.pingErr
}

type mockPoolPinger struct {
	mockPinger
	health map[string]any
}

func (m *mockPoolPinger) Health() map[string]any {
	return m.health
}

func setupHealthTestRouter(checks map[string]Pinger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHealthHandler(checks, zerolog.Nop()).RegisterPublicRoutes(r)
	return r
}

func getHealth(t *testing.T, r *gin.Engine) (int, HealthResponse) {
	t.Helper()
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	r.ServeHTTP(w, req)

	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	return w.Code, resp
}

func TestHealthOverall(t *testing.T) {
	t.Run("all healthy", func(t *testing.T) {
		r := setupHealthTestRouter(map[string]Pinger{
			"database": &mockPoolPinger{health: map[string]any{"total_conns": 10}},
			"redis":    &mockPinger{},
		})

		code, resp := getHealth(t, r)
		if code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", code)
		}
		if resp.Status != HealthStatusHealthy {
			t.Fatalf("expected healthy, got %s", resp.Status)
		}
		db := resp.Checks["database"]
		if db == nil || db.Details["total_conns"] != float64(10) {
			t.Fatalf("expected database pool details, got %+v", db)
		}
	})

	t.Run("redis down", func(t *testing.T) {
		r := setupHealthTestRouter(map[string]Pinger{
			"database": &mockPinger{},
			"redis":    &mockPinger{pingErr: errors.New("connection refused")},
		})

		code, resp := getHealth(t, r)
		if code != http.StatusServiceUnavailable {
			t.Fatalf("expected status 503, got %d", code)
		}
		if resp.Checks["redis"].Status != HealthStatusUnhealthy {
			t.Fatalf("expected redis unhealthy, got %s", resp.Checks["redis"].Status)
		}
		if resp.Checks["redis"].Error != "redis ping failed" {
			t.Fatalf("expected masked error, got %q", resp.Checks["redis"].Error)
		}
		if resp.Checks["database"].Status != HealthStatusHealthy {
			t.Fatalf("expected database healthy, got %s", resp.Checks["database"].Status)
		}
	})

	t.Run("nil checks skipped", func(t *testing.T) {
		r := setupHealthTestRouter(map[string]Pinger{"redis": nil})

		code, resp := getHealth(t, r)
		if code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", code)
		}
		if len(resp.Checks) != 0 {
			t.Fatalf("expected no checks, got %v", resp.Checks)
		}
	})
}
