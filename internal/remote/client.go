// Package remote implements authenticated request/response exchanges with the
// SmartHive remote authority.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	// Timeout is the fixed upper bound of one exchange.
	Timeout = 30 * time.Second

	// APIPath is the path prefix of the remote authority's client API.
	APIPath = "/smarthive/api/"

	// HeaderAPIKey carries the shared secret.
	HeaderAPIKey = "X-SmartHive-API-Key"
	// HeaderClientID carries the client identifier.
	HeaderClientID = "X-SmartHive-Client-ID"

	maxResponseBytes = 1 << 20
)

// Target identifies the remote authority and the credentials of one install.
type Target struct {
	ServerURL string
	ClientID  string
	APIKey    string
}

// URL builds the absolute URL of endpoint.
func (t Target) URL(endpoint string) string {
	return strings.TrimRight(t.ServerURL, "/") + APIPath + strings.TrimLeft(endpoint, "/")
}

// Requester performs one exchange with the remote authority.
type Requester interface {
	Request(ctx context.Context, target Target, endpoint, method string, payload any) Result
}

// Result is the normalized outcome of an exchange. Failures never surface as
// Go errors to callers; they are described by Success, Kind and Error.
type Result struct {
	Success    bool            `json:"success"`
	Error      string          `json:"error,omitempty"`
	Kind       ErrorKind       `json:"kind,omitempty"`
	StatusCode int             `json:"status_code,omitempty"`
	Body       json.RawMessage `json:"body,omitempty"`
}

// Decode unmarshals the raw response body into v.
func (r Result) Decode(v any) error {
	if len(r.Body) == 0 {
		return &Error{Kind: KindEmptyResponse, Message: "empty response from server"}
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return &Error{Kind: KindDecode, Message: "invalid JSON response from server", Err: err}
	}
	return nil
}

// Failure builds a failed Result from err, keeping its kind when err is an *Error.
func Failure(err error) Result {
	res := Result{Success: false, Error: err.Error()}
	var rerr *Error
	if errors.As(err, &rerr) {
		res.Kind = rerr.Kind
		res.StatusCode = rerr.StatusCode
	}
	return res
}

// Client talks to the remote authority over HTTP.
type Client struct {
	http   *http.Client
	logger zerolog.Logger
}

// NewClient creates a Client. httpClient should carry the fixed timeout; a nil
// client gets a plain one with Timeout.
func NewClient(httpClient *http.Client, logger zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: Timeout}
	}
	return &Client{
		http:   httpClient,
		logger: logger.With().Str("component", "remote_client").Logger(),
	}
}

// Request sends payload to endpoint and returns the normalized result.
func (c *Client) Request(ctx context.Context, target Target, endpoint, method string, payload any) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			err := &Error{Kind: KindConnection, Message: fmt.Sprintf("unexpected error: %v", r)}
			c.logger.Error().Str("endpoint", endpoint).Interface("panic", r).Msg("remote request panicked")
			res = Failure(err)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, Timeout)
	defer cancel()

	body, status, err := c.do(ctx, target, endpoint, method, payload)
	if err != nil {
		c.logFailure(endpoint, err)
		return Failure(err)
	}

	res = Result{StatusCode: status, Body: body}

	var envelope struct {
		Success *bool  `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		derr := &Error{Kind: KindDecode, Message: "invalid JSON response from server", Err: err}
		c.logFailure(endpoint, derr)
		return Failure(derr)
	}

	if envelope.Success == nil || !*envelope.Success {
		msg := envelope.Error
		if msg == "" {
			msg = "server reported failure"
		}
		res.Kind = KindRejected
		res.Error = msg
		c.logger.Warn().Str("endpoint", endpoint).Str("error", msg).Msg("remote authority rejected request")
		return res
	}

	res.Success = true
	return res
}

func (c *Client) do(ctx context.Context, target Target, endpoint, method string, payload any) ([]byte, int, error) {
	var reader io.Reader
	if method != http.MethodGet {
		if payload == nil {
			payload = map[string]any{}
		}
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("marshal request payload: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.URL(endpoint), reader)
	if err != nil {
		return nil, 0, &Error{Kind: KindConnection, Message: fmt.Sprintf("cannot build request to %s", target.ServerURL), Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderAPIKey, target.APIKey)
	req.Header.Set(HeaderClientID, target.ClientID)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, classifyTransportError(target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.StatusCode, &Error{
			Kind:       KindProtocol,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("HTTP error %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if isTimeout(err) {
			return nil, resp.StatusCode, &Error{Kind: KindTimeout, Message: fmt.Sprintf("request timeout (%s) reading response", Timeout), Err: err}
		}
		return nil, resp.StatusCode, &Error{Kind: KindConnection, Message: "connection lost while reading response", Err: err}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, resp.StatusCode, &Error{Kind: KindEmptyResponse, Message: "empty response from server"}
	}

	return body, resp.StatusCode, nil
}

func classifyTransportError(target Target, err error) error {
	if isTimeout(err) {
		return &Error{Kind: KindTimeout, Message: fmt.Sprintf("request timeout (%s) to server", Timeout), Err: err}
	}
	return &Error{Kind: KindConnection, Message: fmt.Sprintf("cannot connect to server at %s", target.ServerURL), Err: err}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func (c *Client) logFailure(endpoint string, err error) {
	var rerr *Error
	kind := ErrorKind("")
	if errors.As(err, &rerr) {
		kind = rerr.Kind
	}
	c.logger.Error().Err(err).Str("endpoint", endpoint).Str("kind", string(kind)).Msg("remote request failed")
}
