package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MacJediWizard/hiveguard/internal/access"
	"github.com/MacJediWizard/hiveguard/internal/api/middleware"
	"github.com/MacJediWizard/hiveguard/internal/db/memory"
	"github.com/MacJediWizard/hiveguard/internal/models"
	"github.com/MacJediWizard/hiveguard/internal/remote"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// testEnv wires a real access service to a memory store and a fake remote
// authority.
type testEnv struct {
	store     *memory.Store
	svc       *access.Service
	authority *httptest.Server
	calls     atomic.Int32
	response  atomic.Value // string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &testEnv{store: memory.New()}
	env.response.Store(`{"success": true, "blocked": false, "payment_status": "paid"}`)
	env.authority = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(env.response.Load().(string)))
	}))
	t.Cleanup(env.authority.Close)

	env.svc = access.NewService(access.ServiceConfig{
		Store:  env.store,
		Remote: remote.NewClient(&http.Client{Timeout: 2 * time.Second}, zerolog.Nop()),
		Stats:  env.store,
		Logger: zerolog.Nop(),
	})
	return env
}

func (e *testEnv) seedActive(t *testing.T, mutate func(*models.ClientConfig)) *models.ClientConfig {
	t.Helper()
	cfg := models.NewClientConfig(e.authority.URL, "acme", "s3cret")
	cfg.Active = true
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, e.store.CreateConfig(context.Background(), cfg))
	return cfg
}

func (e *testEnv) reload(t *testing.T, cfg *models.ClientConfig) *models.ClientConfig {
	t.Helper()
	got, err := e.store.GetConfig(context.Background(), cfg.ID)
	require.NoError(t, err)
	return got
}

// injectPrincipal stands in for SessionAuth.
func injectPrincipal(p *models.Principal) gin.HandlerFunc {
	return func(c *gin.Context) {
		if p != nil {
			c.Set(string(middleware.PrincipalContextKey), p)
		}
		c.Next()
	}
}

func doRequest(r http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func superuser() *models.Principal {
	p := models.NewPrincipal("admin")
	p.IsSuperuser = true
	return p
}
