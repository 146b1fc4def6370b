package config

import "os"

// ProxyConfig holds outbound proxy settings for calls to the remote authority.
type ProxyConfig struct {
	HTTPProxy   string
	HTTPSProxy  string
	NoProxy     string
	SOCKS5Proxy string
}

// LoadProxyConfig reads proxy settings from the standard environment variables.
// Upper-case names take precedence over lower-case ones.
func LoadProxyConfig() ProxyConfig {
	return ProxyConfig{
		HTTPProxy:   firstEnv("HTTP_PROXY", "http_proxy"),
		HTTPSProxy:  firstEnv("HTTPS_PROXY", "https_proxy"),
		NoProxy:     firstEnv("NO_PROXY", "no_proxy"),
		SOCKS5Proxy: firstEnv("SOCKS5_PROXY", "socks5_proxy"),
	}
}

// HasProxy returns true if any proxy is configured.
func (p *ProxyConfig) HasProxy() bool {
	return p.HTTPProxy != "" || p.HTTPSProxy != "" || p.SOCKS5Proxy != ""
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}
