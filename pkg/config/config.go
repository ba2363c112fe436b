// Package config provides unified configuration for the exammaker
// identity service.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (EXAMMAKER_ prefix)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Config holds all configuration for the exammaker service.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Storage       StorageConfig       `yaml:"storage"`
	JWT           JWTConfig           `yaml:"jwt"`
	Secrets       SecretsConfig       `yaml:"secrets"`
	Password      PasswordConfig      `yaml:"password"`
	Invite        InviteConfig        `yaml:"invite"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
	Logging       LoggingConfig       `yaml:"logging"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`             // default: 8080
	ReadTimeout     time.Duration `yaml:"read_timeout"`     // default: 15s
	WriteTimeout    time.Duration `yaml:"write_timeout"`    // default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // default: 15s
	MaxBodySize     int64         `yaml:"max_body_size"`    // bytes, default: 64 KiB
}

// StorageConfig selects the backend for both stores. The credential and
// tenant stores always get separate connection settings, even when they
// point at the same server.
type StorageConfig struct {
	Type        string         `yaml:"type"` // "memory" or "postgres", default: "memory"
	Credentials PostgresConfig `yaml:"credentials"`
	Tenants     PostgresConfig `yaml:"tenants"`
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`         // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`        // default: 25
	MigrateOnStart bool   `yaml:"migrate_on_start"` // default: false
}

// JWTConfig holds access token signing settings.
type JWTConfig struct {
	Key        string        `yaml:"key"`
	KeyFile    string        `yaml:"key_file"`    // _file variant for key
	Issuer     string        `yaml:"issuer"`      // default: "exammaker"
	Audience   string        `yaml:"audience"`    // default: "exammaker"
	AccessTTL  time.Duration `yaml:"access_ttl"`  // default: 15m
	RefreshTTL time.Duration `yaml:"refresh_ttl"` // default: 168h
}

// SecretsConfig holds the server-wide password secret, base64 encoded.
type SecretsConfig struct {
	PasswordSecret     string `yaml:"password_secret"`
	PasswordSecretFile string `yaml:"password_secret_file"`
}

// PasswordConfig holds Argon2id cost parameters.
type PasswordConfig struct {
	MemoryKiB   uint32 `yaml:"memory_kib"`  // default: 65536
	Iterations  uint32 `yaml:"iterations"`  // default: 4
	Parallelism uint8  `yaml:"parallelism"` // default: 2
	SaltLength  uint32 `yaml:"salt_length"` // default: 256
	KeyLength   uint32 `yaml:"key_length"`  // default: 256
}

// InviteConfig bounds invite lifetimes.
type InviteConfig struct {
	DefaultTTL time.Duration `yaml:"default_ttl"` // default: 72h
	MaxTTL     time.Duration `yaml:"max_ttl"`     // default: 720h
}

// RateLimitConfig holds the two limiter tiers. IP applies to the
// public endpoints, Member to authenticated requests.
type RateLimitConfig struct {
	IP     LimitConfig `yaml:"ip"`
	Member LimitConfig `yaml:"member"`
}

// LimitConfig describes a token bucket. A zero rate disables the tier.
type LimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// LoggingConfig controls the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // default: "INFO"
	Format string `yaml:"format"` // "text" or "json", default: "text"
	Debug  string `yaml:"debug"`  // comma-separated debug categories
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			MaxBodySize:     64 << 10,
		},
		Storage: StorageConfig{
			Type:        "memory",
			Credentials: PostgresConfig{MaxConns: 25},
			Tenants:     PostgresConfig{MaxConns: 25},
		},
		JWT: JWTConfig{
			Issuer:     "exammaker",
			Audience:   "exammaker",
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
		},
		Password: PasswordConfig{
			MemoryKiB:   64 * 1024,
			Iterations:  4,
			Parallelism: 2,
			SaltLength:  256,
			KeyLength:   256,
		},
		Invite: InviteConfig{
			DefaultTTL: 72 * time.Hour,
			MaxTTL:     720 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			IP:     LimitConfig{RequestsPerSecond: 5, Burst: 20},
			Member: LimitConfig{RequestsPerSecond: 20, Burst: 40},
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}
