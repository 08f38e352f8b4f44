package config

import (
	"fmt"
	"strings"
	"time"

	"gamedex-scraper/pkg/utils"
)

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	if c.AddressTemplate == "" {
		return warnings, fmt.Errorf("%w: address_template is required", utils.ErrConfigValidation)
	}
	if !strings.Contains(c.AddressTemplate, "%s") || !strings.Contains(c.AddressTemplate, "%04d") {
		return warnings, fmt.Errorf(
			"%w: address_template must contain a group placeholder (%%s) followed by an entry placeholder (%%04d), got %q",
			utils.ErrConfigValidation, c.AddressTemplate)
	}
	if strings.Index(c.AddressTemplate, "%s") > strings.Index(c.AddressTemplate, "%04d") {
		return warnings, fmt.Errorf(
			"%w: address_template placeholders out of order, want %%s before %%04d", utils.ErrConfigValidation)
	}

	if c.UserAgent == "" {
		warnings = append(warnings, "user_agent is empty, defaulting to 'gamedex-scraper/1.0'")
		c.UserAgent = "gamedex-scraper/1.0"
	}
	if c.BanMarker == "" {
		warnings = append(warnings, "ban_marker is empty; ban detection disabled is unsafe, defaulting to 'you have been banned'")
		c.BanMarker = "you have been banned"
	}
	if c.FetchTimeout <= 0 {
		warnings = append(warnings, "fetch_timeout should be > 0, defaulting to 30s")
		c.FetchTimeout = 30 * time.Second
	}
	if c.FallbackDelay <= 0 {
		warnings = append(warnings, "fallback_delay should be > 0, defaulting to 10s")
		c.FallbackDelay = 10 * time.Second
	}
	if c.BatchSize <= 0 {
		warnings = append(warnings, "batch_size should be > 0, defaulting to 250")
		c.BatchSize = 250
	}
	if c.LedgerDir == "" {
		warnings = append(warnings, "ledger_dir is empty, defaulting to './data/ledger'")
		c.LedgerDir = "./data/ledger"
	}
	if c.BatchDir == "" {
		warnings = append(warnings, "batch_dir is empty, defaulting to './data/batches'")
		c.BatchDir = "./data/batches"
	}
	if c.CanonicalDir == "" {
		warnings = append(warnings, "canonical_dir is empty, defaulting to './data/canonical'")
		c.CanonicalDir = "./data/canonical"
	}

	// HTTP client defaults
	if c.HTTPClient.MaxIdleConns <= 0 {
		c.HTTPClient.MaxIdleConns = 10
	}
	if c.HTTPClient.MaxIdleConnsPerHost <= 0 {
		// One target host, sequential fetching: a couple of idle conns suffice
		c.HTTPClient.MaxIdleConnsPerHost = 2
	}
	if c.HTTPClient.IdleConnTimeout <= 0 {
		c.HTTPClient.IdleConnTimeout = 90 * time.Second
	}
	if c.HTTPClient.TLSHandshakeTimeout <= 0 {
		c.HTTPClient.TLSHandshakeTimeout = 10 * time.Second
	}
	if c.HTTPClient.DialerTimeout <= 0 {
		c.HTTPClient.DialerTimeout = 15 * time.Second
	}
	if c.HTTPClient.DialerKeepAlive <= 0 {
		c.HTTPClient.DialerKeepAlive = 30 * time.Second
	}

	return warnings, nil
}
