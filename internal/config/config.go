// Package config provides centralized configuration management for the service.
// It loads configuration from environment variables with defaults and validates
// all settings on startup to fail fast on misconfiguration.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Source   SourceConfig
	Cache    CacheConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
	Snapshot SnapshotConfig
	Filters  FiltersConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" envAlt:"PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading a request (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing a response (default: 60s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 45s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"45s"`
}

// SourceConfig describes where the spreadsheet CSV is fetched from.
type SourceConfig struct {
	// URL is the published CSV address. Empty is accepted at startup; every
	// fetch then fails with a configuration error.
	URL string `env:"SHEET_URL" envAlt:"VITE_SHEET_URL"`

	// Timeout bounds the primary fetch attempt (default: 10s)
	Timeout time.Duration `env:"SOURCE_TIMEOUT" default:"10s"`

	// RetryTimeout bounds the single retry attempt (default: 15s)
	RetryTimeout time.Duration `env:"SOURCE_RETRY_TIMEOUT" default:"15s"`

	// UserAgent is sent on the primary attempt
	UserAgent string `env:"SOURCE_USER_AGENT" default:"material-finder/1.0 (+csv-fetch)"`

	// RetryUserAgent is sent on the retry attempt
	RetryUserAgent string `env:"SOURCE_RETRY_USER_AGENT" default:"Mozilla/5.0 (compatible; material-finder/1.0)"`

	// MaxBodySize caps the downloaded CSV in bytes (default: 10MB)
	MaxBodySize int64 `env:"SOURCE_MAX_BODY_SIZE" default:"10485760"`

	// ProxyConcurrency bounds simultaneous /api/sheet.csv downloads (default: 4)
	ProxyConcurrency int `env:"PROXY_MAX_CONCURRENT" default:"4"`

	// ProxyMaxWait is how long a proxy request waits for a free slot (default: 5s)
	ProxyMaxWait time.Duration `env:"PROXY_MAX_WAIT" default:"5s"`
}

// CacheConfig controls the in-memory record cache.
type CacheConfig struct {
	// Duration is how long fetched records are reused (default: 5m)
	Duration time.Duration `env:"CACHE_DURATION" default:"5m"`

	// RefreshInterval enables background refreshes when positive (default: 0, off)
	RefreshInterval time.Duration `env:"CACHE_REFRESH_INTERVAL" default:"0s"`

	// Warm fetches once at startup so the first query is fast (default: true)
	Warm bool `env:"CACHE_WARM" default:"true"`
}

// RateLimitConfig holds per-client rate limiting settings.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the sustained rate per client IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// Burst is the number of requests allowed at once (default: 20)
	Burst int `env:"RATE_LIMIT_BURST" default:"20"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey guards the cache admin endpoints (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted X-API-Key values
	APIKeys []string `env:"API_KEYS"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`

	// AllowedOrigin is sent as Access-Control-Allow-Origin (default: *)
	AllowedOrigin string `env:"CORS_ALLOWED_ORIGIN" default:"*"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// SnapshotConfig holds the optional Postgres snapshot store settings.
type SnapshotConfig struct {
	// DatabaseURL enables snapshots when set
	DatabaseURL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the pool size (default: 4)
	MaxConns int `env:"DB_MAX_CONNS" default:"4"`

	// ConnectTimeout bounds the startup connection (default: 5s)
	ConnectTimeout time.Duration `env:"DB_CONNECT_TIMEOUT" default:"5s"`

	// QueryTimeout bounds each snapshot save or load (default: 5s)
	QueryTimeout time.Duration `env:"SNAPSHOT_TIMEOUT" default:"5s"`
}

// FiltersConfig controls which categorical filters are offered.
type FiltersConfig struct {
	// File is a TOML file of [[filter]] entries; empty uses the built-in list
	File string `env:"FILTERS_FILE"`

	// PageSize is the default number of results per page (default: 12)
	PageSize int `env:"PAGE_SIZE" default:"12"`

	// MaxPageSize caps the pageSize query parameter (default: 100)
	MaxPageSize int `env:"MAX_PAGE_SIZE" default:"100"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Enabled reports whether snapshots are configured.
func (c *SnapshotConfig) Enabled() bool {
	return c.DatabaseURL != ""
}
