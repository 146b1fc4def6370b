package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MacJediWizard/hiveguard/internal/access"
	"github.com/MacJediWizard/hiveguard/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func TestRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	r := gin.New()
	r.Use(RequestLogger(zerolog.New(&buf)))
	r.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	r.GET("/error", func(c *gin.Context) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "fail"})
	})

	t.Run("successful request", func(t *testing.T) {
		buf.Reset()
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/test?q=hello", nil)
		r.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", w.Code)
		}
		if !strings.Contains(buf.String(), `"level":"info"`) {
			t.Errorf("expected info level, got %s", buf.String())
		}
	})

	t.Run("server error logs at error level", func(t *testing.T) {
		buf.Reset()
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/error", nil)
		r.ServeHTTP(w, req)

		if !strings.Contains(buf.String(), `"level":"error"`) {
			t.Errorf("expected error level, got %s", buf.String())
		}
	})

	t.Run("secrets are redacted", func(t *testing.T) {
		buf.Reset()
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/test?api_key=s3cret&q=ok", nil)
		r.ServeHTTP(w, req)

		if strings.Contains(buf.String(), "s3cret") {
			t.Errorf("api key leaked into log: %s", buf.String())
		}
	})
}

func TestRedactQueryString(t *testing.T) {
	if got := redactQueryString(""); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
	if got := redactQueryString("q=1"); got != "q=1" {
		t.Errorf("expected unchanged query, got %q", got)
	}
	if got := redactQueryString("password=x"); got != "password=%5BREDACTED%5D" {
		t.Errorf("expected redacted password, got %q", got)
	}
}

func TestRequestLogger_AccessDecision(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	r := gin.New()
	r.Use(RequestLogger(zerolog.New(&buf)))
	r.Use(withPrincipal(models.NewPrincipal("bob")))
	r.Use(AccessGate(stubChecker{decision: access.Decision{Allowed: false, Reason: "Overdue"}}))
	r.GET("/gated", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/gated", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", w.Code)
	}
	for _, want := range []string{`"access":"denied"`, `"login":"bob"`, `"level":"warn"`} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("expected %s in log, got %s", want, buf.String())
		}
	}
}

func TestDecisionLabel(t *testing.T) {
	cases := map[string]access.Decision{
		"allowed":   {Allowed: true},
		"fail_open": {Allowed: true, FailOpen: true},
		"exempt":    {Allowed: true, Exempt: true},
		"denied":    {Allowed: false},
	}
	for want, d := range cases {
		if got := decisionLabel(d); got != want {
			t.Errorf("decisionLabel(%+v) = %q, want %q", d, got, want)
		}
	}
}
