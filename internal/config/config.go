// Package config loads service configuration from environment variables.
// Every section has defaults so a local run only needs DATABASE_URL.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Import    ImportConfig
	Rate      RateLimitConfig
	Security  SecurityConfig
	Auth      AuthConfig
	Redis     RedisConfig
	Storage   StorageConfig
	Logging   LoggingConfig
	Retention RetentionConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`
	Port int    `env:"SERVER_PORT" envAlt:"PORT" default:"5000"`

	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`
	IdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds graceful shutdown, including draining active imports.
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is applied by middleware to every request.
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"120s"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`
	MaxConns        int           `env:"DB_MAX_CONNS" default:"20"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// ImportConfig holds bulk patient import settings.
type ImportConfig struct {
	// MaxFileSize is the largest accepted upload in bytes (default: 10MB)
	MaxFileSize int64 `env:"IMPORT_MAX_FILE_SIZE" default:"10485760"`

	// MaxConcurrent is how many imports may run at once (default: 4)
	MaxConcurrent int `env:"IMPORT_MAX_CONCURRENT" default:"4"`

	// MaxWaitTime is how long a request waits for an import slot (default: 30s)
	MaxWaitTime time.Duration `env:"IMPORT_MAX_WAIT_TIME" default:"30s"`

	// Timeout bounds an import request end to end, replacing the request timeout (default: 5m)
	Timeout time.Duration `env:"IMPORT_TIMEOUT" default:"5m"`

	// IDStrategy selects the patient sequence source: count or redis (default: count)
	IDStrategy string `env:"IMPORT_ID_STRATEGY" default:"count"`
}

// RateLimitConfig holds per-IP rate limits.
type RateLimitConfig struct {
	Enabled           bool `env:"RATE_LIMIT_ENABLED" default:"true"`
	RequestsPerMinute int  `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"300"`
	ImportLimit       int  `env:"RATE_LIMIT_IMPORT" default:"10"`
}

// SecurityConfig holds transport security settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of proxy CIDRs whose forwarding headers are honored.
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`

	// AllowedOrigins lists CORS origins for the browser client.
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" default:"http://localhost:5173"`
}

// AuthConfig holds bearer token settings.
type AuthConfig struct {
	// Required rejects requests without a valid token. When false, requests
	// without a token act as DevUserID.
	Required  bool          `env:"AUTH_REQUIRED" default:"true"`
	JWTSecret string        `env:"AUTH_JWT_SECRET" envAlt:"SESSION_SECRET"`
	Issuer    string        `env:"AUTH_ISSUER" default:"cocaresync"`
	TokenTTL  time.Duration `env:"AUTH_TOKEN_TTL" default:"12h"`
	DevUserID string        `env:"AUTH_DEV_USER_ID" default:"dev-user"`
}

// RedisConfig holds the optional Redis connection used by the redis ID strategy.
type RedisConfig struct {
	URL       string `env:"REDIS_URL"`
	KeyPrefix string `env:"REDIS_KEY_PREFIX" default:"cocaresync:"`
}

// StorageConfig holds object storage settings for archiving uploaded import files.
type StorageConfig struct {
	Enabled   bool   `env:"STORAGE_ENABLED" default:"false"`
	Endpoint  string `env:"STORAGE_ENDPOINT" default:"localhost:9000"`
	AccessKey string `env:"STORAGE_ACCESS_KEY"`
	SecretKey string `env:"STORAGE_SECRET_KEY"`
	Bucket    string `env:"STORAGE_BUCKET" default:"patient-imports"`
	UseSSL    bool   `env:"STORAGE_USE_SSL" default:"false"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// RetentionConfig controls how long audit entries are kept.
type RetentionConfig struct {
	AuditRetentionDays int           `env:"AUDIT_RETENTION_DAYS" default:"2555"`
	CheckInterval      time.Duration `env:"AUDIT_RETENTION_CHECK_INTERVAL" default:"24h"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
