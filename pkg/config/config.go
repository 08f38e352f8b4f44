package config

import (
	"os"
	"time"
)

// AppConfig holds the global application configuration
type AppConfig struct {
	UserAgent       string           `yaml:"user_agent,omitempty"`
	AddressTemplate string           `yaml:"address_template"`         // fmt template: group name (%s), zero-padded entry ID (%04d)
	RobotsURL       string           `yaml:"robots_url,omitempty"`     // Where the crawl-delay directive is published
	BanMarker       string           `yaml:"ban_marker,omitempty"`     // Substring in a response body that signals a ban
	FetchTimeout    time.Duration    `yaml:"fetch_timeout,omitempty"`  // Per-request timeout; also the recorded duration of a timed-out fetch
	FallbackDelay   time.Duration    `yaml:"fallback_delay,omitempty"` // Inter-request delay when robots.txt yields none
	BatchSize       int              `yaml:"batch_size,omitempty"`     // Max entries planned per group per run
	LedgerDir       string           `yaml:"ledger_dir,omitempty"`     // Per-group status ledgers (JSONL)
	BatchDir        string           `yaml:"batch_dir,omitempty"`      // Per-group, per-machine run batches (JSONL)
	CanonicalDir    string           `yaml:"canonical_dir,omitempty"`  // Per-group canonical datasets (JSON array)
	CacheDir        string           `yaml:"cache_dir,omitempty"`      // Raw page cache (badger); empty disables caching
	MetricsAddr     string           `yaml:"metrics_addr,omitempty"`   // Optional Prometheus listen address; empty disables
	HTTPClient      HTTPClientConfig `yaml:"http_client_settings,omitempty"`
}

// HTTPClientConfig holds settings for the shared HTTP client
type HTTPClientConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns,omitempty"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host,omitempty"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout,omitempty"`
	TLSHandshakeTimeout time.Duration `yaml:"tls_handshake_timeout,omitempty"`
	DialerTimeout       time.Duration `yaml:"dialer_timeout,omitempty"`
	DialerKeepAlive     time.Duration `yaml:"dialer_keep_alive,omitempty"`
	ForceAttemptHTTP2   *bool         `yaml:"force_attempt_http2,omitempty"` // nil=default(true), false=disable
}

// ApplyEnv overrides deploy-time paths and addresses from the environment.
// Called after the yaml is parsed so .env files (loaded in main) win over
// the checked-in config but lose to nothing else.
func (c *AppConfig) ApplyEnv() {
	c.LedgerDir = envOr("GAMEDEX_LEDGER_DIR", c.LedgerDir)
	c.BatchDir = envOr("GAMEDEX_BATCH_DIR", c.BatchDir)
	c.CanonicalDir = envOr("GAMEDEX_CANONICAL_DIR", c.CanonicalDir)
	c.CacheDir = envOr("GAMEDEX_CACHE_DIR", c.CacheDir)
	c.MetricsAddr = envOr("GAMEDEX_METRICS_ADDR", c.MetricsAddr)
	c.UserAgent = envOr("GAMEDEX_USER_AGENT", c.UserAgent)
}

func envOr(key, current string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return current
}
