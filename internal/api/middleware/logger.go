package middleware

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MacJediWizard/hiveguard/internal/access"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// sensitiveParams lists query parameter names whose values are redacted from logs.
var sensitiveParams = map[string]bool{
	"api_key":   true,
	"client_id": true,
	"password":  true,
	"secret":    true,
}

func redactQueryString(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}

	params, err := url.ParseQuery(rawQuery)
	if err != nil {
		return rawQuery
	}

	redacted := false
	for name, values := range params {
		if !sensitiveParams[strings.ToLower(name)] {
			continue
		}
		for i := range values {
			values[i] = "[REDACTED]"
		}
		redacted = true
	}
	if !redacted {
		return rawQuery
	}
	return params.Encode()
}

// RequestLogger logs each request at a level derived from its status.
// Inbound authority calls carry the matched client id, and gated requests
// carry the access decision.
func RequestLogger(logger zerolog.Logger) gin.HandlerFunc {
	log := logger.With().Str("component", "http").Logger()

	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		var event *zerolog.Event
		switch {
		case status >= http.StatusInternalServerError:
			event = log.Error()
		case status >= http.StatusBadRequest:
			event = log.Warn()
		default:
			event = log.Info()
		}

		if p := GetPrincipal(c); p != nil {
			event = event.Str("login", p.Login)
		}
		if cfg := GetClientConfig(c); cfg != nil {
			event = event.Str("client_id", cfg.ClientID)
		}
		if v, ok := c.Get(string(AccessDecisionContextKey)); ok {
			if d, ok := v.(access.Decision); ok {
				event = event.Str("access", decisionLabel(d))
			}
		}

		event.
			Str("method", c.Request.Method).
			Str("route", c.FullPath()).
			Str("path", c.Request.URL.Path).
			Str("query", redactQueryString(c.Request.URL.RawQuery)).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("request")
	}
}

func decisionLabel(d access.Decision) string {
	switch {
	case d.FailOpen:
		return "fail_open"
	case d.Exempt:
		return "exempt"
	case d.Allowed:
		return "allowed"
	default:
		return "denied"
	}
}
