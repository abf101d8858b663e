package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// LookupFunc resolves an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

var durationType = reflect.TypeOf(time.Duration(0))

// Load reads configuration from the process environment, applies defaults
// and validates the result.
func Load() (*Config, error) {
	return LoadFrom(os.LookupEnv)
}

// LoadFrom is Load with an explicit variable source.
func LoadFrom(lookup LookupFunc) (*Config, error) {
	cfg := &Config{}

	if err := populate(reflect.ValueOf(cfg).Elem(), lookup); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// populate walks the struct and fills every field carrying an env tag.
func populate(v reflect.Value, lookup LookupFunc) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		target := v.Field(i)
		if !target.CanSet() {
			continue
		}

		if field.Type.Kind() == reflect.Struct {
			if err := populate(target, lookup); err != nil {
				return err
			}
			continue
		}

		name := field.Tag.Get("env")
		if name == "" {
			continue
		}

		raw, found := firstSet(lookup, name, field.Tag.Get("envAlt"))
		if !found {
			if field.Tag.Get("required") == "true" {
				return fmt.Errorf("required environment variable %s is not set", name)
			}
			raw = field.Tag.Get("default")
		}
		if raw == "" {
			continue
		}

		if err := assign(target, raw); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", name, raw, err)
		}
	}

	return nil
}

// firstSet returns the first non-empty value among the given variable names.
func firstSet(lookup LookupFunc, names ...string) (string, bool) {
	for _, n := range names {
		if n == "" {
			continue
		}
		if v, ok := lookup(n); ok && v != "" {
			return v, true
		}
	}
	return "", false
}

func assign(target reflect.Value, raw string) error {
	if target.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		target.SetInt(int64(d))
		return nil
	}

	switch target.Kind() {
	case reflect.String:
		target.SetString(raw)
	case reflect.Int, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		target.SetInt(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		target.SetBool(b)
	case reflect.Slice:
		if target.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", target.Type().Elem())
		}
		var items []string
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				items = append(items, part)
			}
		}
		target.Set(reflect.ValueOf(items))
	default:
		return fmt.Errorf("unsupported field type: %s", target.Kind())
	}
	return nil
}

// Validate checks cross-field constraints and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	if c.Database.URL == "" {
		add("DATABASE_URL is required")
	}
	if c.Database.MaxConns <= 0 {
		add("DB_MAX_CONNS must be positive")
	}
	if c.Database.MinConns < 0 {
		add("DB_MIN_CONNS must be non-negative")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		add("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)", c.Database.MaxConns, c.Database.MinConns)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		add("SERVER_PORT (%d) must be 1-65535", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		add("SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	if c.Import.MaxFileSize <= 0 {
		add("IMPORT_MAX_FILE_SIZE must be positive")
	}
	if c.Import.MaxConcurrent <= 0 {
		add("IMPORT_MAX_CONCURRENT must be positive")
	}
	if c.Import.MaxWaitTime <= 0 {
		add("IMPORT_MAX_WAIT_TIME must be positive")
	}
	if c.Import.Timeout <= 0 {
		add("IMPORT_TIMEOUT must be positive")
	}
	switch c.Import.IDStrategy {
	case "count":
	case "redis":
		if c.Redis.URL == "" {
			add("IMPORT_ID_STRATEGY is redis but REDIS_URL is empty")
		}
	default:
		add("IMPORT_ID_STRATEGY (%q) must be one of: count, redis", c.Import.IDStrategy)
	}

	if c.Rate.Enabled && (c.Rate.RequestsPerMinute <= 0 || c.Rate.ImportLimit <= 0) {
		add("RATE_LIMIT_REQUESTS_PER_MINUTE and RATE_LIMIT_IMPORT must be positive when rate limiting is enabled")
	}

	if c.Auth.Required && c.Auth.JWTSecret == "" {
		add("AUTH_REQUIRED is true but AUTH_JWT_SECRET is empty")
	}

	if c.Storage.Enabled && (c.Storage.AccessKey == "" || c.Storage.SecretKey == "") {
		add("STORAGE_ENABLED is true but STORAGE_ACCESS_KEY or STORAGE_SECRET_KEY is empty")
	}

	if c.Retention.AuditRetentionDays <= 0 {
		add("AUDIT_RETENTION_DAYS must be positive")
	}
	if c.Retention.CheckInterval <= 0 {
		add("AUDIT_RETENTION_CHECK_INTERVAL must be positive")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		add("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		add("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format)
	}

	if len(errs) > 0 {
		return errors.New("validation failed:\n  - " + strings.Join(errs, "\n  - "))
	}
	return nil
}

// String renders the config for logging with credentials masked.
func (c *Config) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Config{Server: {Addr: %q}, ", c.Server.Addr())
	fmt.Fprintf(&b, "Database: {URL: %s, MaxConns: %d, MinConns: %d}, ",
		maskURL(c.Database.URL), c.Database.MaxConns, c.Database.MinConns)
	fmt.Fprintf(&b, "Import: {MaxFileSize: %d, MaxConcurrent: %d, IDStrategy: %q}, ",
		c.Import.MaxFileSize, c.Import.MaxConcurrent, c.Import.IDStrategy)
	fmt.Fprintf(&b, "Rate: {Enabled: %v, RequestsPerMinute: %d}, ", c.Rate.Enabled, c.Rate.RequestsPerMinute)
	fmt.Fprintf(&b, "Auth: {Required: %v, JWTSecret: [MASKED]}, ", c.Auth.Required)
	fmt.Fprintf(&b, "Redis: {URL: %s}, ", maskURL(c.Redis.URL))
	fmt.Fprintf(&b, "Storage: {Enabled: %v, Endpoint: %q, Bucket: %q}, ",
		c.Storage.Enabled, c.Storage.Endpoint, c.Storage.Bucket)
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}}", c.Logging.Level, c.Logging.Format)
	return b.String()
}

// maskURL keeps scheme and host but hides credentials and path.
func maskURL(raw string) string {
	if raw == "" {
		return `""`
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "[MASKED]"
	}
	return u.Scheme + "://[MASKED]@" + u.Host
}
