package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MacJediWizard/hiveguard/internal/access"
	"github.com/MacJediWizard/hiveguard/internal/auth"
	"github.com/MacJediWizard/hiveguard/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResolver struct {
	principals map[uuid.UUID]*models.Principal
	err        error
}

func (s *stubResolver) Principal(_ context.Context, user *auth.SessionUser) (*models.Principal, error) {
	if s.err != nil {
		return nil, s.err
	}
	p, ok := s.principals[user.ID]
	if !ok {
		return nil, access.ErrNotFound
	}
	return p, nil
}

type stubChecker struct{ decision access.Decision }

func (s stubChecker) CheckAccess(context.Context, *models.Principal) access.Decision {
	return s.decision
}

type stubClientAuth struct {
	cfg *models.ClientConfig
	err error
}

func (s stubClientAuth) AuthenticateClient(_ context.Context, clientID, apiKey string) (*models.ClientConfig, error) {
	if s.err != nil {
		return nil, s.err
	}
	if clientID != s.cfg.ClientID || apiKey != s.cfg.APIKey {
		return nil, access.ErrInvalidCredentials
	}
	return s.cfg, nil
}

func newSessions(t *testing.T) *auth.SessionStore {
	t.Helper()
	s, err := auth.NewSessionStore(auth.DefaultSessionConfig([]byte("test-secret-that-is-at-least-32-bytes-long"), false), zerolog.Nop())
	require.NoError(t, err)
	return s
}

// loginCookies returns the cookies of a session holding id.
func loginCookies(t *testing.T, sessions *auth.SessionStore, id uuid.UUID) []*http.Cookie {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	require.NoError(t, sessions.SetUser(req, w, &auth.SessionUser{ID: id, Login: "user"}))
	return w.Result().Cookies()
}

func TestSessionAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sessions := newSessions(t)
	alice := models.NewPrincipal("alice")
	resolver := &stubResolver{principals: map[uuid.UUID]*models.Principal{alice.ID: alice}}

	r := gin.New()
	r.Use(SessionAuth(sessions, resolver, zerolog.Nop()))
	r.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"login": GetPrincipal(c).Login})
	})

	t.Run("no session", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/me", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("valid session", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		for _, c := range loginCookies(t, sessions, alice.ID) {
			req.AddCookie(c)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "alice")
	})

	t.Run("stale session", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		for _, c := range loginCookies(t, sessions, uuid.New()) {
			req.AddCookie(c)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "session expired")
	})

	t.Run("resolver fault", func(t *testing.T) {
		r := gin.New()
		r.Use(SessionAuth(sessions, &stubResolver{err: errors.New("db down")}, zerolog.Nop()))
		r.GET("/me", func(c *gin.Context) { c.Status(http.StatusOK) })

		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		for _, c := range loginCookies(t, sessions, alice.ID) {
			req.AddCookie(c)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}

func withPrincipal(p *models.Principal) gin.HandlerFunc {
	return func(c *gin.Context) {
		if p != nil {
			c.Set(string(PrincipalContextKey), p)
		}
		c.Next()
	}
}

func TestAccessGate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	user := models.NewPrincipal("bob")

	run := func(p *models.Principal, d access.Decision) *httptest.ResponseRecorder {
		r := gin.New()
		r.Use(withPrincipal(p), AccessGate(stubChecker{decision: d}))
		r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		return w
	}

	assert.Equal(t, http.StatusOK, run(user, access.Decision{Allowed: true}).Code)
	assert.Equal(t, http.StatusUnauthorized, run(nil, access.Decision{Allowed: true}).Code)

	w := run(user, access.Decision{Reason: "Overdue invoice"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Overdue invoice", body["error"])
	assert.Equal(t, true, body["blocked"])
}

func TestRequireSystemAdmin(t *testing.T) {
	gin.SetMode(gin.TestMode)

	run := func(p *models.Principal) int {
		r := gin.New()
		r.Use(withPrincipal(p), RequireSystemAdmin())
		r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		return w.Code
	}

	admin := models.NewPrincipal("root", models.CapabilitySystemAdmin)
	assert.Equal(t, http.StatusOK, run(admin))
	assert.Equal(t, http.StatusForbidden, run(models.NewPrincipal("bob", models.CapabilityHiveAdmin)))
	assert.Equal(t, http.StatusForbidden, run(nil))
}

func TestClientAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := models.NewClientConfig("https://hive.example.com", "acme", "s3cret")

	newRouter := func(a ClientAuthenticator) *gin.Engine {
		r := gin.New()
		r.Use(ClientAuth(a, zerolog.Nop()))
		r.GET("/ping", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"client_id": GetClientConfig(c).ClientID})
		})
		return r
	}
	do := func(r *gin.Engine, clientID, key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		if clientID != "" {
			req.Header.Set(HeaderClientID, clientID)
		}
		if key != "" {
			req.Header.Set(HeaderAPIKey, key)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	r := newRouter(stubClientAuth{cfg: cfg})

	w := do(r, "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"success":false,"error":"Missing API key or client ID"}`, w.Body.String())

	w = do(r, "acme", "wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"success":false,"error":"Invalid API credentials"}`, w.Body.String())

	w = do(r, "acme", "s3cret")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "acme")

	w = do(newRouter(stubClientAuth{err: errors.New("db down")}), "acme", "s3cret")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestSecurityHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SecurityHeaders(16))
	r.POST("/x", func(c *gin.Context) {
		var body map[string]any
		if err := c.ShouldBindJSON(&body); err != nil {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"a":1}`)))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"a":"this body is far too long"}`)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}
