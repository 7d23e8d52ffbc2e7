package config

import (
	"net"
	"strings"

	"github.com/omarluq/keygate/internal/gate"
	"github.com/omarluq/keygate/internal/keypool"
)

// Valid keypool strategies.
var validKeyStrategies = map[string]bool{
	"":                          true, // Empty defaults to round_robin
	keypool.StrategyRoundRobin:  true,
	keypool.StrategyLeastLoaded: true,
	keypool.StrategyRandom:      true,
}

// Valid gate modes.
var validGateModes = map[string]bool{
	"":                true, // Empty defaults to local
	gate.ModeLocal:    true,
	gate.ModeFileLock: true,
}

var validThinkingModes = map[string]bool{
	"":         true,
	"enabled":  true,
	"disabled": true,
}

// Valid logging levels.
var validLogLevels = map[string]bool{
	"":      true, // Empty defaults to info
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Valid logging formats.
var validLogFormats = map[string]bool{
	"":        true, // Empty defaults to json
	"json":    true,
	"console": true,
	"text":    true, // Alias for console
	"pretty":  true,
}

// Validate checks the configuration for errors.
// It validates all required fields, valid values, and cross-field constraints.
// Returns a ValidationError containing all errors found, or nil if valid.
func (c *Config) Validate() error {
	errs := &ValidationError{}

	validateServer(c, errs)
	validateUpstream(c, errs)
	validateKeys(c, errs)
	validateGate(c, errs)
	validateRotation(c, errs)
	validateLogging(c, errs)

	return errs.ToError()
}

func validateServer(c *Config, errs *ValidationError) {
	// Empty listen falls back to DefaultListen
	if c.Server.Listen != "" {
		validateListenAddress(c.Server.Listen, errs)
	}

	if c.Server.TimeoutMS < 0 {
		errs.Add("server.timeout_ms must be >= 0")
	}
	if c.Server.MaxConcurrent < 0 {
		errs.Add("server.max_concurrent must be >= 0")
	}
	if c.Server.MaxBodyBytes < 0 {
		errs.Add("server.max_body_bytes must be >= 0")
	}
}

// validateListenAddress validates a listen address in host:port format.
func validateListenAddress(addr string, errs *ValidationError) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		errs.Addf("server.listen must be in host:port format (got %q)", addr)
		return
	}

	// Host can be empty (listen on all interfaces) or a valid IP/hostname
	if host != "" && net.ParseIP(host) == nil && strings.ContainsAny(host, " \t\n") {
		errs.Add("server.listen host contains invalid characters")
	}

	// SplitHostPort doesn't require a port
	if port == "" {
		errs.Add("server.listen port is required")
	}
}

func validateUpstream(c *Config, errs *ValidationError) {
	u := &c.Upstream
	if u.BaseURL != "" && !strings.HasPrefix(u.BaseURL, "http://") && !strings.HasPrefix(u.BaseURL, "https://") {
		errs.Addf("upstream.base_url must be an http(s) URL (got %q)", u.BaseURL)
	}
	if u.TimeoutMS < 0 {
		errs.Add("upstream.timeout_ms must be >= 0")
	}
	if u.MaxTokens < 0 {
		errs.Add("upstream.max_tokens must be >= 0")
	}
	if u.Temperature != nil && (*u.Temperature < 0 || *u.Temperature > 2) {
		errs.Addf("upstream.temperature must be 0-2 (got %g)", *u.Temperature)
	}
	if u.TopP != nil && (*u.TopP <= 0 || *u.TopP > 1) {
		errs.Addf("upstream.top_p must be in (0, 1] (got %g)", *u.TopP)
	}
	if !validThinkingModes[u.Thinking] {
		errs.Addf("upstream.thinking is invalid (got %q, valid: enabled, disabled)", u.Thinking)
	}
}

func validateKeys(c *Config, errs *ValidationError) {
	if !validKeyStrategies[c.Keys.Strategy] {
		errs.Addf("keys.strategy is invalid (got %q, valid: round_robin, least_loaded, random)",
			c.Keys.Strategy)
	}
	if c.Keys.RPMLimit < 0 {
		errs.Addf("keys.rpm_limit must be >= 0 (got %d)", c.Keys.RPMLimit)
	}
	if c.Keys.Name != "" && c.Keys.Name == c.Keys.ListVar {
		errs.Add("keys.list_var must differ from keys.name")
	}
}

func validateGate(c *Config, errs *ValidationError) {
	if !validGateModes[c.Gate.Mode] {
		errs.Addf("gate.mode is invalid (got %q, valid: local, file_lock)", c.Gate.Mode)
	}
	if c.Gate.PollIntervalMS < 0 {
		errs.Add("gate.poll_interval_ms must be >= 0")
	}
	if c.Gate.AcquireTimeoutMS < 0 {
		errs.Add("gate.acquire_timeout_ms must be >= 0")
	}
}

func validateRotation(c *Config, errs *ValidationError) {
	r := &c.Rotation
	if r.CooldownMS < 0 {
		errs.Add("rotation.cooldown_ms must be >= 0")
	}
	if r.RetryDelayMS < 0 {
		errs.Add("rotation.retry_delay_ms must be >= 0")
	}
	if r.MaxAttempts < 0 {
		errs.Add("rotation.max_attempts must be >= 0")
	}
	if r.MaxRetries < 0 {
		errs.Add("rotation.max_retries must be >= 0")
	}
}

func validateLogging(c *Config, errs *ValidationError) {
	if !validLogLevels[c.Logging.Level] {
		errs.Addf("logging.level is invalid (got %q, valid: debug, info, warn, error)",
			c.Logging.Level)
	}

	if !validLogFormats[c.Logging.Format] {
		errs.Addf("logging.format is invalid (got %q, valid: json, console, text, pretty)",
			c.Logging.Format)
	}

	if c.Logging.DebugOptions.MaxBodyLogSize < 0 {
		errs.Add("logging.debug_options.max_body_log_size must be >= 0")
	}
}
