// Package httpclient builds the outbound HTTP client used to reach the remote authority.
package httpclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MacJediWizard/hiveguard/internal/config"
	"golang.org/x/net/proxy"
)

// DefaultTimeout bounds every remote authority call.
const DefaultTimeout = 30 * time.Second

// Options configures the HTTP client.
type Options struct {
	// Timeout for HTTP requests (default: 30s)
	Timeout time.Duration
	// Proxy contains proxy settings; nil means direct connections.
	Proxy *config.ProxyConfig
	// UserAgent is sent on every request when set, e.g. "hiveguard/1.2.0".
	UserAgent string
}

// New creates an HTTP client with optional proxy support.
func New(opts Options) (*http.Client, error) {
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   opts.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
	}

	if opts.Proxy != nil && opts.Proxy.HasProxy() {
		if err := configureProxy(transport, opts.Proxy); err != nil {
			return nil, fmt.Errorf("configure proxy: %w", err)
		}
	}

	var rt http.RoundTripper = transport
	if opts.UserAgent != "" {
		rt = &userAgentTransport{next: transport, userAgent: opts.UserAgent}
	}

	return &http.Client{
		Timeout:   opts.Timeout,
		Transport: rt,
	}, nil
}

type userAgentTransport struct {
	next      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") != "" {
		return t.next.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)
	return t.next.RoundTrip(req)
}

// configureProxy sets up proxy configuration on the transport.
func configureProxy(transport *http.Transport, cfg *config.ProxyConfig) error {
	// SOCKS5 proxy takes precedence if configured
	if cfg.SOCKS5Proxy != "" {
		return configureSocks5Proxy(transport, cfg.SOCKS5Proxy)
	}

	transport.Proxy = func(req *http.Request) (*url.URL, error) {
		return proxyFor(req, cfg)
	}
	return nil
}

func configureSocks5Proxy(transport *http.Transport, socks5URL string) error {
	proxyURL, err := url.Parse(socks5URL)
	if err != nil {
		return fmt.Errorf("parse SOCKS5 proxy URL: %w", err)
	}

	var auth *proxy.Auth
	if proxyURL.User != nil {
		password, _ := proxyURL.User.Password()
		auth = &proxy.Auth{
			User:     proxyURL.User.Username(),
			Password: password,
		}
	}

	dialer, err := proxy.SOCKS5("tcp", proxyURL.Host, auth, proxy.Direct)
	if err != nil {
		return fmt.Errorf("create SOCKS5 dialer: %w", err)
	}

	if cd, ok := dialer.(proxy.ContextDialer); ok {
		transport.DialContext = cd.DialContext
		return nil
	}
	transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
		return dialer.Dial(network, addr)
	}
	return nil
}

// proxyFor returns the proxy URL for the given request, or nil for a direct connection.
func proxyFor(req *http.Request, cfg *config.ProxyConfig) (*url.URL, error) {
	if bypassProxy(req.URL.Host, cfg.NoProxy) {
		return nil, nil
	}

	proxyURL := cfg.HTTPProxy
	if req.URL.Scheme == "https" && cfg.HTTPSProxy != "" {
		proxyURL = cfg.HTTPSProxy
	}
	if proxyURL == "" {
		return nil, nil
	}
	return url.Parse(proxyURL)
}

// bypassProxy checks host against a comma-separated NO_PROXY list.
func bypassProxy(host, noProxy string) bool {
	if noProxy == "" {
		return false
	}

	hostOnly, _, err := net.SplitHostPort(host)
	if err != nil {
		hostOnly = host
	}
	hostOnly = strings.ToLower(hostOnly)

	for _, pattern := range strings.Split(noProxy, ",") {
		pattern = strings.ToLower(strings.TrimSpace(pattern))
		switch {
		case pattern == "":
			continue
		case pattern == "*":
			return true
		case hostOnly == pattern:
			return true
		case strings.HasPrefix(pattern, ".") && strings.HasSuffix(hostOnly, pattern):
			return true
		case strings.HasSuffix(hostOnly, "."+pattern):
			return true
		}
	}
	return false
}

// Describe returns a log-safe description of the proxy settings.
func Describe(cfg *config.ProxyConfig) string {
	if cfg == nil || !cfg.HasProxy() {
		return "direct"
	}

	var parts []string
	if cfg.SOCKS5Proxy != "" {
		parts = append(parts, "socks5="+maskURL(cfg.SOCKS5Proxy))
	}
	if cfg.HTTPProxy != "" {
		parts = append(parts, "http="+maskURL(cfg.HTTPProxy))
	}
	if cfg.HTTPSProxy != "" {
		parts = append(parts, "https="+maskURL(cfg.HTTPSProxy))
	}
	if cfg.NoProxy != "" {
		parts = append(parts, "no_proxy="+cfg.NoProxy)
	}
	return strings.Join(parts, " ")
}

// maskURL hides the password component of a proxy URL.
func maskURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	if u.User != nil {
		if _, hasPass := u.User.Password(); hasPass {
			u.User = url.UserPassword(u.User.Username(), "****")
		}
	}
	return u.String()
}
