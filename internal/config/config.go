// Package config provides configuration loading and parsing for keygate.
package config

import (
	"strings"
	"time"

	"github.com/omarluq/keygate/internal/chat"
	"github.com/omarluq/keygate/internal/gate"
	"github.com/omarluq/keygate/internal/health"
	"github.com/omarluq/keygate/internal/keypool"
	"github.com/omarluq/keygate/internal/rotation"
	"github.com/omarluq/keygate/internal/session"
	"github.com/rs/zerolog"
	"github.com/samber/mo"
)

// RuntimeConfig defines the interface for accessing runtime configuration that supports hot-reload.
// Components that need to observe config changes should use this interface instead of
// holding a direct *Config pointer, which would become stale after hot-reload.
//
// Usage pattern:
//
//	func (h *Handler) serve(w http.ResponseWriter, r *http.Request) {
//		cfg := h.runtime.Get()
//		timeout := cfg.Gate.GetAcquireTimeoutOption()
//		// Use timeout for this request...
//	}
type RuntimeConfig interface {
	Get() *Config
}

// Log level constants.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Defaults applied when a field is left empty. Tunables owned by other
// packages (cooldown, retry delay, lock dir) take their defaults from there.
const (
	DefaultListen        = "127.0.0.1:8787"
	DefaultModel         = "glm-4.7-flash"
	DefaultThinking      = "disabled"
	DefaultMaxTokens     = 8192
	defaultUpstreamMS    = 60000
	defaultMaxBodyBytes  = 10 << 20
	defaultServerTimeout = 120000
)

// Config represents the complete keygate configuration.
type Config struct {
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
	Upstream UpstreamConfig `yaml:"upstream" toml:"upstream"`
	Keys     KeysConfig     `yaml:"keys" toml:"keys"`
	Gate     GateConfig     `yaml:"gate" toml:"gate"`
	Health   HealthConfig   `yaml:"health" toml:"health"`
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Rotation RotationConfig `yaml:"rotation" toml:"rotation"`
}

// ServerConfig defines server-level settings.
type ServerConfig struct {
	Listen        string     `yaml:"listen" toml:"listen"`
	APIKey        string     `yaml:"api_key" toml:"api_key"` // Legacy: use Auth.APIKey instead
	Auth          AuthConfig `yaml:"auth" toml:"auth"`
	TimeoutMS     int        `yaml:"timeout_ms" toml:"timeout_ms"`
	MaxConcurrent int        `yaml:"max_concurrent" toml:"max_concurrent"`
	MaxBodyBytes  int64      `yaml:"max_body_bytes" toml:"max_body_bytes"`
	EnableHTTP2   bool       `yaml:"enable_http2" toml:"enable_http2"` // Enable HTTP/2 cleartext (h2c) support
}

// AuthConfig defines authentication settings for the HTTP surface.
type AuthConfig struct {
	// APIKey is the expected value for x-api-key header authentication.
	// If empty, API key authentication is disabled.
	APIKey string `yaml:"api_key" toml:"api_key"`

	// BearerSecret is the expected Bearer token value.
	// If empty but AllowBearer is true, any bearer token is accepted.
	BearerSecret string `yaml:"bearer_secret" toml:"bearer_secret"`

	// AllowBearer enables Authorization: Bearer token authentication.
	AllowBearer bool `yaml:"allow_bearer" toml:"allow_bearer"`
}

// IsEnabled returns true if any authentication method is configured.
func (a *AuthConfig) IsEnabled() bool {
	return a.APIKey != "" || a.AllowBearer
}

// GetEffectiveAPIKey returns the API key from Auth config or falls back to legacy ServerConfig.APIKey.
func (s *ServerConfig) GetEffectiveAPIKey() string {
	if s.Auth.APIKey != "" {
		return s.Auth.APIKey
	}
	return s.APIKey
}

// GetEffectiveListen returns the listen address with default fallback.
func (s *ServerConfig) GetEffectiveListen() string {
	if s.Listen == "" {
		return DefaultListen
	}
	return s.Listen
}

// GetTimeoutOption returns the timeout as an Option.
// Returns None if TimeoutMS is zero (use default).
func (s *ServerConfig) GetTimeoutOption() mo.Option[time.Duration] {
	if s.TimeoutMS <= 0 {
		return mo.None[time.Duration]()
	}
	return mo.Some(time.Duration(s.TimeoutMS) * time.Millisecond)
}

// GetEffectiveTimeout returns the server write timeout with default fallback.
func (s *ServerConfig) GetEffectiveTimeout() time.Duration {
	return s.GetTimeoutOption().OrElse(time.Duration(defaultServerTimeout) * time.Millisecond)
}

// GetMaxConcurrentOption returns the max concurrent setting as an Option.
// Returns None if MaxConcurrent is zero (unlimited).
func (s *ServerConfig) GetMaxConcurrentOption() mo.Option[int] {
	if s.MaxConcurrent <= 0 {
		return mo.None[int]()
	}
	return mo.Some(s.MaxConcurrent)
}

// GetMaxBodyBytesOption returns the request body limit as an Option.
func (s *ServerConfig) GetMaxBodyBytesOption() mo.Option[int64] {
	if s.MaxBodyBytes <= 0 {
		return mo.None[int64]()
	}
	return mo.Some(s.MaxBodyBytes)
}

// GetEffectiveMaxBodyBytes returns the request body limit, 10 MiB by default.
func (s *ServerConfig) GetEffectiveMaxBodyBytes() int64 {
	return s.GetMaxBodyBytesOption().OrElse(defaultMaxBodyBytes)
}

// UpstreamConfig describes the chat-completion endpoint and request defaults.
type UpstreamConfig struct {
	Temperature *float64 `yaml:"temperature" toml:"temperature"`
	TopP        *float64 `yaml:"top_p" toml:"top_p"`
	BaseURL     string   `yaml:"base_url" toml:"base_url"`
	Model       string   `yaml:"model" toml:"model"`
	Thinking    string   `yaml:"thinking" toml:"thinking"` // enabled, disabled
	TimeoutMS   int      `yaml:"timeout_ms" toml:"timeout_ms"`
	MaxTokens   int      `yaml:"max_tokens" toml:"max_tokens"`
}

// GetEffectiveBaseURL returns the base URL with default fallback.
func (u *UpstreamConfig) GetEffectiveBaseURL() string {
	if u.BaseURL == "" {
		return chat.DefaultBaseURL
	}
	return u.BaseURL
}

// GetEffectiveModel returns the model with default fallback.
func (u *UpstreamConfig) GetEffectiveModel() string {
	if u.Model == "" {
		return DefaultModel
	}
	return u.Model
}

// GetEffectiveThinking returns the thinking mode with default fallback.
func (u *UpstreamConfig) GetEffectiveThinking() string {
	if u.Thinking == "" {
		return DefaultThinking
	}
	return u.Thinking
}

// GetEffectiveMaxTokens returns the token limit with default fallback.
func (u *UpstreamConfig) GetEffectiveMaxTokens() int {
	if u.MaxTokens <= 0 {
		return DefaultMaxTokens
	}
	return u.MaxTokens
}

// GetEffectiveTimeout returns the upstream request timeout.
func (u *UpstreamConfig) GetEffectiveTimeout() time.Duration {
	if u.TimeoutMS <= 0 {
		return defaultUpstreamMS * time.Millisecond
	}
	return time.Duration(u.TimeoutMS) * time.Millisecond
}

// KeysConfig controls credential discovery and selection.
type KeysConfig struct {
	// Name is the base variable; Name_1, Name_2... are read until the first gap.
	Name string `yaml:"name" toml:"name"`

	// ListVar names a variable holding a comma-separated list of extra keys.
	ListVar string `yaml:"list_var" toml:"list_var"`

	// EnvFile is an optional dotenv file layered under the process environment.
	EnvFile string `yaml:"env_file" toml:"env_file"`

	Strategy string `yaml:"strategy" toml:"strategy"` // round_robin (default), least_loaded, random
	RPMLimit int    `yaml:"rpm_limit" toml:"rpm_limit"`
}

// GetEffectiveName returns the base variable name with default fallback.
func (k *KeysConfig) GetEffectiveName() string {
	if k.Name == "" {
		return keypool.DefaultName
	}
	return k.Name
}

// GetEffectiveStrategy returns the selection strategy with default fallback.
func (k *KeysConfig) GetEffectiveStrategy() string {
	if k.Strategy == "" {
		return keypool.StrategyRoundRobin
	}
	return k.Strategy
}

// GetRPMLimitOption returns the per-key RPM limit as an Option.
// Returns None if RPMLimit is zero (unlimited).
func (k *KeysConfig) GetRPMLimitOption() mo.Option[int] {
	if k.RPMLimit <= 0 {
		return mo.None[int]()
	}
	return mo.Some(k.RPMLimit)
}

// GateConfig controls how callers wait for a free credential.
type GateConfig struct {
	Mode             string `yaml:"mode" toml:"mode"` // local (default), file_lock
	LockDir          string `yaml:"lock_dir" toml:"lock_dir"`
	PollIntervalMS   int    `yaml:"poll_interval_ms" toml:"poll_interval_ms"`
	AcquireTimeoutMS int    `yaml:"acquire_timeout_ms" toml:"acquire_timeout_ms"`
}

// GetEffectiveMode returns the gate mode with default fallback.
func (g *GateConfig) GetEffectiveMode() string {
	if g.Mode == "" {
		return gate.ModeLocal
	}
	return g.Mode
}

// GetEffectiveLockDir returns the lock directory with default fallback.
func (g *GateConfig) GetEffectiveLockDir() string {
	if g.LockDir == "" {
		return gate.DefaultLockDir
	}
	return g.LockDir
}

// GetEffectivePollInterval returns the file-lock poll interval.
func (g *GateConfig) GetEffectivePollInterval() time.Duration {
	if g.PollIntervalMS <= 0 {
		return gate.DefaultPollInterval
	}
	return time.Duration(g.PollIntervalMS) * time.Millisecond
}

// GetAcquireTimeoutOption returns the acquisition timeout as an Option.
// Returns None if AcquireTimeoutMS is zero, meaning wait forever.
func (g *GateConfig) GetAcquireTimeoutOption() mo.Option[time.Duration] {
	if g.AcquireTimeoutMS <= 0 {
		return mo.None[time.Duration]()
	}
	return mo.Some(time.Duration(g.AcquireTimeoutMS) * time.Millisecond)
}

// RotationConfig tunes retry behavior for rate-limited calls.
type RotationConfig struct {
	CooldownMS   int `yaml:"cooldown_ms" toml:"cooldown_ms"`
	RetryDelayMS int `yaml:"retry_delay_ms" toml:"retry_delay_ms"`
	MaxAttempts  int `yaml:"max_attempts" toml:"max_attempts"` // 0 means twice the pool size
	MaxRetries   int `yaml:"max_retries" toml:"max_retries"`   // per-user session retries
}

// GetEffectiveCooldown returns the rate-limit cooldown.
func (r *RotationConfig) GetEffectiveCooldown() time.Duration {
	if r.CooldownMS <= 0 {
		return rotation.DefaultCooldown
	}
	return time.Duration(r.CooldownMS) * time.Millisecond
}

// GetEffectiveRetryDelay returns the pause between attempts.
func (r *RotationConfig) GetEffectiveRetryDelay() time.Duration {
	if r.RetryDelayMS <= 0 {
		return rotation.DefaultRetryDelay
	}
	return time.Duration(r.RetryDelayMS) * time.Millisecond
}

// GetMaxAttemptsOption returns the rotation attempt cap as an Option.
func (r *RotationConfig) GetMaxAttemptsOption() mo.Option[int] {
	if r.MaxAttempts <= 0 {
		return mo.None[int]()
	}
	return mo.Some(r.MaxAttempts)
}

// GetEffectiveMaxRetries returns the session retry count.
func (r *RotationConfig) GetEffectiveMaxRetries() int {
	if r.MaxRetries <= 0 {
		return session.DefaultMaxRetries
	}
	return r.MaxRetries
}

// HealthConfig wraps the circuit breaker settings.
type HealthConfig struct {
	CircuitBreaker health.CircuitBreakerConfig `yaml:"circuit_breaker" toml:"circuit_breaker"`
}

// LoggingConfig defines logging behavior.
type LoggingConfig struct {
	Level        string       `yaml:"level" toml:"level"`                 // debug, info, warn, error
	Format       string       `yaml:"format" toml:"format"`               // json, console
	Output       string       `yaml:"output" toml:"output"`               // stdout, stderr, or file path
	Pretty       bool         `yaml:"pretty" toml:"pretty"`               // enable colored console output
	DebugOptions DebugOptions `yaml:"debug_options" toml:"debug_options"` // granular debug logging controls
}

// ParseLevel converts a string log level to zerolog.Level.
// Returns zerolog.InfoLevel if the level string is invalid.
func (l *LoggingConfig) ParseLevel() zerolog.Level {
	switch strings.ToLower(l.Level) {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelInfo:
		return zerolog.InfoLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// EnableAllDebugOptions turns on all debug logging features.
// Used by --debug CLI flag shortcut.
func (l *LoggingConfig) EnableAllDebugOptions() {
	l.Level = LevelDebug
	l.DebugOptions = DebugOptions{
		LogRequestBody: true,
		MaxBodyLogSize: 1000,
	}
}

// DebugOptions defines granular debug logging controls.
type DebugOptions struct {
	// LogRequestBody enables logging of request body in debug mode.
	// Body is truncated to MaxBodyLogSize to prevent massive logs.
	LogRequestBody bool `yaml:"log_request_body" toml:"log_request_body"`

	// MaxBodyLogSize is the maximum number of bytes to log from request bodies.
	// Default: 1000 bytes.
	MaxBodyLogSize int `yaml:"max_body_log_size" toml:"max_body_log_size"`
}

// GetMaxBodyLogSize returns the effective max body log size with default fallback.
func (d *DebugOptions) GetMaxBodyLogSize() int {
	return d.GetMaxBodyLogSizeOption().OrElse(1000)
}

// IsEnabled returns true if any debug option is enabled.
func (d *DebugOptions) IsEnabled() bool {
	return d.LogRequestBody
}

// GetMaxBodyLogSizeOption returns the max body log size as an Option.
// Returns None if the value is not explicitly set (zero or negative).
func (d *DebugOptions) GetMaxBodyLogSizeOption() mo.Option[int] {
	if d.MaxBodyLogSize <= 0 {
		return mo.None[int]()
	}
	return mo.Some(d.MaxBodyLogSize)
}
