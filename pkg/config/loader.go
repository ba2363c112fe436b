package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a layered set of sources.
//
// The loading order is:
//  1. Built-in defaults
//  2. YAML config file (explicit path, EXAMMAKER_CONFIG env, ./config.yaml, /etc/exammaker/config.yaml)
//  3. Environment variable overrides
//  4. File reference resolution (_file suffix)
//  5. Validation
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	filePath := discoverConfigFile(configPath)
	if filePath != "" {
		if err := loadYAMLFile(filePath, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", filePath, err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

// discoverConfigFile finds the config file path using the discovery order:
// 1. Explicit configPath argument
// 2. EXAMMAKER_CONFIG environment variable
// 3. ./config.yaml in the current directory
// 4. /etc/exammaker/config.yaml
//
// Returns empty string if no config file is found.
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}
	if envPath := os.Getenv("EXAMMAKER_CONFIG"); envPath != "" {
		return envPath
	}
	for _, path := range []string{"config.yaml", "/etc/exammaker/config.yaml"} {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// loadYAMLFile reads and parses a YAML file into the Config struct.
// Fields not present in the YAML retain their current (default) values.
func loadYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides maps EXAMMAKER_* environment variables onto config
// fields. Malformed numeric or duration values are reported rather than
// silently ignored.
func applyEnvOverrides(cfg *Config) error {
	strs := map[string]*string{
		"EXAMMAKER_STORAGE":              &cfg.Storage.Type,
		"EXAMMAKER_CREDENTIALS_DSN":      &cfg.Storage.Credentials.DSN,
		"EXAMMAKER_TENANTS_DSN":          &cfg.Storage.Tenants.DSN,
		"EXAMMAKER_JWT_KEY":              &cfg.JWT.Key,
		"EXAMMAKER_JWT_ISSUER":           &cfg.JWT.Issuer,
		"EXAMMAKER_JWT_AUDIENCE":         &cfg.JWT.Audience,
		"EXAMMAKER_PASSWORD_SECRET":      &cfg.Secrets.PasswordSecret,
		"EXAMMAKER_LOG_LEVEL":            &cfg.Logging.Level,
		"EXAMMAKER_LOG_FORMAT":           &cfg.Logging.Format,
		"EXAMMAKER_DEBUG":                &cfg.Logging.Debug,
		"EXAMMAKER_METRICS_PATH":         &cfg.Observability.Metrics.Path,
		"EXAMMAKER_PASSWORD_SECRET_FILE": &cfg.Secrets.PasswordSecretFile,
	}
	for name, dst := range strs {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("EXAMMAKER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("EXAMMAKER_PORT: %w", err)
		}
		cfg.Server.Port = port
	}

	durations := map[string]*time.Duration{
		"EXAMMAKER_ACCESS_TTL":         &cfg.JWT.AccessTTL,
		"EXAMMAKER_REFRESH_TTL":        &cfg.JWT.RefreshTTL,
		"EXAMMAKER_INVITE_DEFAULT_TTL": &cfg.Invite.DefaultTTL,
		"EXAMMAKER_INVITE_MAX_TTL":     &cfg.Invite.MaxTTL,
	}
	for name, dst := range durations {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*dst = d
	}

	if v := os.Getenv("EXAMMAKER_MIGRATE_ON_START"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("EXAMMAKER_MIGRATE_ON_START: %w", err)
		}
		cfg.Storage.Credentials.MigrateOnStart = b
		cfg.Storage.Tenants.MigrateOnStart = b
	}
	return nil
}

// resolveFileReferences reads _file fields and populates the corresponding value fields.
// For each field ending in _file, if the value field is empty and the file field is set,
// the file is read, whitespace is trimmed, and the value field is populated.
func resolveFileReferences(cfg *Config) error {
	refs := []struct {
		path string
		file string
		dst  *string
	}{
		{"storage.credentials.dsn_file", cfg.Storage.Credentials.DSNFile, &cfg.Storage.Credentials.DSN},
		{"storage.tenants.dsn_file", cfg.Storage.Tenants.DSNFile, &cfg.Storage.Tenants.DSN},
		{"jwt.key_file", cfg.JWT.KeyFile, &cfg.JWT.Key},
		{"secrets.password_secret_file", cfg.Secrets.PasswordSecretFile, &cfg.Secrets.PasswordSecret},
	}
	for _, ref := range refs {
		if ref.file == "" || *ref.dst != "" {
			continue
		}
		val, err := readSecretFile(ref.file)
		if err != nil {
			return fmt.Errorf("%s: %w", ref.path, err)
		}
		*ref.dst = val
	}
	return nil
}

// readSecretFile reads a file and returns its content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// PasswordSecretBytes decodes secrets.password_secret. Standard and
// URL-safe base64 are both accepted, with or without padding.
func (c *Config) PasswordSecretBytes() ([]byte, error) {
	s := strings.TrimSpace(c.Secrets.PasswordSecret)
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.RawStdEncoding,
		base64.URLEncoding, base64.RawURLEncoding,
	} {
		if b, err := enc.DecodeString(s); err == nil {
			return b, nil
		}
	}
	return nil, fmt.Errorf("secrets.password_secret is not valid base64")
}
