// Package config loads process configuration.
//
// Values are resolved in three layers: built-in defaults, an optional YAML
// file named by FLEETOPS_CONFIG, and FLEETOPS_* environment variables.
// Later layers override earlier ones.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const devSigningKey = "dev-secret-key-change-in-production"

// Revocation store backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config is the full process configuration.
type Config struct {
	Environment string           `yaml:"environment"`
	Server      Server           `yaml:"server"`
	Auth        AuthConfig       `yaml:"auth"`
	Revocation  RevocationConfig `yaml:"revocation"`
	Redis       RedisConfig      `yaml:"redis"`
	Database    DatabaseConfig   `yaml:"database"`
	Audit       AuditConfig      `yaml:"audit"`
	RateLimit   RateLimitConfig  `yaml:"rate_limit"`
	Logging     LoggingConfig    `yaml:"logging"`
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AuthConfig holds credential signing and cookie settings.
type AuthConfig struct {
	SigningKey        string        `yaml:"signing_key"`
	Issuer            string        `yaml:"issuer"`
	Audience          string        `yaml:"audience"`
	AccessTTL         time.Duration `yaml:"access_ttl"`
	RefreshTTL        time.Duration `yaml:"refresh_ttl"`
	AccessCookieName  string        `yaml:"access_cookie_name"`
	RefreshCookieName string        `yaml:"refresh_cookie_name"`
	SecureCookies     bool          `yaml:"secure_cookies"`
	// SeedAdminEmail and SeedAdminPassword create a dev admin on the memory
	// account store. Ignored for postgres.
	SeedAdminEmail    string `yaml:"seed_admin_email"`
	SeedAdminPassword string `yaml:"seed_admin_password"`
}

// RevocationConfig selects the revocation store.
type RevocationConfig struct {
	Backend       string        `yaml:"backend"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// RedisConfig configures the shared redis client.
type RedisConfig struct {
	URL          string        `yaml:"url"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DatabaseConfig configures postgres.
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// AuditConfig configures audit publishing. An empty broker list keeps
// audit events in the process log only.
type AuditConfig struct {
	KafkaBrokers  []string      `yaml:"kafka_brokers"`
	Topic         string        `yaml:"topic"`
	BufferSize    int           `yaml:"buffer_size"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// RateLimitConfig bounds credential-minting requests per client IP.
type RateLimitConfig struct {
	Disabled  bool    `yaml:"disabled"`
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
}

// LoggingConfig controls the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// IsDev reports whether the process runs in development mode.
func (c *Config) IsDev() bool {
	return c.Environment == "" || c.Environment == "dev" || c.Environment == "development"
}

// Default returns a Config with development defaults.
func Default() *Config {
	return &Config{
		Environment: "dev",
		Server: Server{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Auth: AuthConfig{
			Issuer:            "fleetops",
			Audience:          "fleetops-api",
			AccessTTL:         15 * time.Minute,
			RefreshTTL:        7 * 24 * time.Hour,
			AccessCookieName:  "fleetops_access",
			RefreshCookieName: "fleetops_refresh",
		},
		Revocation: RevocationConfig{
			Backend:       BackendMemory,
			SweepInterval: 5 * time.Minute,
		},
		Redis: RedisConfig{
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Audit: AuditConfig{
			Topic:         "fleetops.audit",
			BufferSize:    1024,
			BatchSize:     100,
			FlushInterval: time.Second,
		},
		RateLimit: RateLimitConfig{
			PerSecond: 1,
			Burst:     5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the configuration from defaults, the file named by
// FLEETOPS_CONFIG (if any) and the environment, then validates it.
func Load() (*Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (*Config, error) {
	cfg := Default()

	if path := getenv("FLEETOPS_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnv(cfg, getenv); err != nil {
		return nil, err
	}

	if cfg.Auth.SigningKey == "" && cfg.IsDev() {
		cfg.Auth.SigningKey = devSigningKey
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	var errs []error
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v := getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	integer := func(key string, dst *int) {
		if v := getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(key string, dst *bool) {
		if v := getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("FLEETOPS_ENV", &cfg.Environment)

	str("FLEETOPS_ADDR", &cfg.Server.Addr)
	dur("FLEETOPS_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	dur("FLEETOPS_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	dur("FLEETOPS_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)

	str("FLEETOPS_JWT_SIGNING_KEY", &cfg.Auth.SigningKey)
	str("FLEETOPS_JWT_ISSUER", &cfg.Auth.Issuer)
	str("FLEETOPS_JWT_AUDIENCE", &cfg.Auth.Audience)
	dur("FLEETOPS_ACCESS_TTL", &cfg.Auth.AccessTTL)
	dur("FLEETOPS_REFRESH_TTL", &cfg.Auth.RefreshTTL)
	str("FLEETOPS_ACCESS_COOKIE", &cfg.Auth.AccessCookieName)
	str("FLEETOPS_REFRESH_COOKIE", &cfg.Auth.RefreshCookieName)
	boolean("FLEETOPS_SECURE_COOKIES", &cfg.Auth.SecureCookies)
	str("FLEETOPS_SEED_ADMIN_EMAIL", &cfg.Auth.SeedAdminEmail)
	str("FLEETOPS_SEED_ADMIN_PASSWORD", &cfg.Auth.SeedAdminPassword)

	str("FLEETOPS_REVOCATION_BACKEND", &cfg.Revocation.Backend)
	dur("FLEETOPS_REVOCATION_SWEEP_INTERVAL", &cfg.Revocation.SweepInterval)

	str("FLEETOPS_REDIS_URL", &cfg.Redis.URL)
	integer("FLEETOPS_REDIS_POOL_SIZE", &cfg.Redis.PoolSize)

	str("FLEETOPS_DATABASE_DSN", &cfg.Database.DSN)
	integer("FLEETOPS_DATABASE_MAX_OPEN_CONNS", &cfg.Database.MaxOpenConns)

	if v := getenv("FLEETOPS_KAFKA_BROKERS"); v != "" {
		cfg.Audit.KafkaBrokers = splitList(v)
	}
	str("FLEETOPS_AUDIT_TOPIC", &cfg.Audit.Topic)
	integer("FLEETOPS_AUDIT_BATCH_SIZE", &cfg.Audit.BatchSize)

	boolean("FLEETOPS_RATE_LIMIT_DISABLED", &cfg.RateLimit.Disabled)

	if v := getenv("FLEETOPS_RATE_LIMIT_PER_SECOND"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("FLEETOPS_RATE_LIMIT_PER_SECOND: %w", err))
		} else {
			cfg.RateLimit.PerSecond = f
		}
	}
	integer("FLEETOPS_RATE_LIMIT_BURST", &cfg.RateLimit.Burst)

	str("FLEETOPS_LOG_LEVEL", &cfg.Logging.Level)
	str("FLEETOPS_LOG_FORMAT", &cfg.Logging.Format)

	if len(errs) > 0 {
		return fmt.Errorf("parsing environment: %w", errors.Join(errs...))
	}
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Auth.SigningKey == "" {
		errs = append(errs, errors.New("auth.signing_key is required"))
	}
	if !c.IsDev() && c.Auth.SigningKey == devSigningKey {
		errs = append(errs, errors.New("auth.signing_key must be changed outside development"))
	}
	if c.Auth.AccessTTL <= 0 {
		errs = append(errs, errors.New("auth.access_ttl must be positive"))
	}
	if c.Auth.RefreshTTL <= 0 {
		errs = append(errs, errors.New("auth.refresh_ttl must be positive"))
	}
	if c.Auth.RefreshTTL > 0 && c.Auth.AccessTTL > c.Auth.RefreshTTL {
		errs = append(errs, errors.New("auth.access_ttl must not exceed auth.refresh_ttl"))
	}
	if c.Auth.AccessCookieName == "" || c.Auth.RefreshCookieName == "" {
		errs = append(errs, errors.New("auth cookie names are required"))
	}

	switch c.Revocation.Backend {
	case BackendMemory:
	case BackendRedis:
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("redis.url is required for the redis revocation backend"))
		}
	case BackendPostgres:
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("database.dsn is required for the postgres revocation backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown revocation backend %q", c.Revocation.Backend))
	}
	if c.Revocation.SweepInterval <= 0 {
		errs = append(errs, errors.New("revocation.sweep_interval must be positive"))
	}
	if len(c.Audit.KafkaBrokers) > 0 && c.Audit.Topic == "" {
		errs = append(errs, errors.New("audit.topic is required when kafka brokers are set"))
	}
	if c.Audit.BatchSize <= 0 {
		errs = append(errs, errors.New("audit.batch_size must be positive"))
	}
	if !c.RateLimit.Disabled && (c.RateLimit.PerSecond <= 0 || c.RateLimit.Burst <= 0) {
		errs = append(errs, errors.New("rate_limit.per_second and rate_limit.burst must be positive"))
	}
	return errors.Join(errs...)
}
