package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rhuss/exammaker/pkg/debug"
)

// Minimum decoded length of secrets.password_secret.
const minPasswordSecretLength = 16

// Minimum length of jwt.key in bytes.
const minJWTKeyLength = 32

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be > 0, got %d", c.Server.Port))
	}
	if c.Server.MaxBodySize <= 0 {
		errs = append(errs, fmt.Errorf("server.max_body_size must be > 0, got %d", c.Server.MaxBodySize))
	}

	switch c.Storage.Type {
	case "memory":
	case "postgres":
		if c.Storage.Credentials.DSN == "" {
			errs = append(errs, fmt.Errorf("storage.credentials.dsn or storage.credentials.dsn_file is required when storage.type is \"postgres\""))
		}
		if c.Storage.Tenants.DSN == "" {
			errs = append(errs, fmt.Errorf("storage.tenants.dsn or storage.tenants.dsn_file is required when storage.type is \"postgres\""))
		}
		if c.Storage.Credentials.DSN != "" && c.Storage.Credentials.DSN == c.Storage.Tenants.DSN {
			errs = append(errs, fmt.Errorf("storage.credentials.dsn and storage.tenants.dsn must name different databases"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.type must be \"memory\" or \"postgres\", got %q", c.Storage.Type))
	}

	if len(c.JWT.Key) < minJWTKeyLength {
		errs = append(errs, fmt.Errorf("jwt.key or jwt.key_file is required and must be at least %d bytes", minJWTKeyLength))
	}
	if c.JWT.Issuer == "" {
		errs = append(errs, fmt.Errorf("jwt.issuer is required"))
	}
	if c.JWT.Audience == "" {
		errs = append(errs, fmt.Errorf("jwt.audience is required"))
	}
	if c.JWT.AccessTTL <= 0 {
		errs = append(errs, fmt.Errorf("jwt.access_ttl must be > 0, got %v", c.JWT.AccessTTL))
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		errs = append(errs, fmt.Errorf("jwt.refresh_ttl must exceed jwt.access_ttl, got %v", c.JWT.RefreshTTL))
	}

	if c.Secrets.PasswordSecret == "" {
		errs = append(errs, fmt.Errorf("secrets.password_secret or secrets.password_secret_file is required"))
	} else if b, err := c.PasswordSecretBytes(); err != nil {
		errs = append(errs, err)
	} else if len(b) < minPasswordSecretLength {
		errs = append(errs, fmt.Errorf("secrets.password_secret must decode to at least %d bytes, got %d", minPasswordSecretLength, len(b)))
	}

	if c.Password.Iterations == 0 {
		errs = append(errs, fmt.Errorf("password.iterations must be > 0"))
	}
	if c.Password.Parallelism == 0 {
		errs = append(errs, fmt.Errorf("password.parallelism must be > 0"))
	}
	if c.Password.MemoryKiB < 8*uint32(c.Password.Parallelism) {
		errs = append(errs, fmt.Errorf("password.memory_kib must be at least 8 per lane, got %d", c.Password.MemoryKiB))
	}

	if c.Invite.DefaultTTL <= 0 {
		errs = append(errs, fmt.Errorf("invite.default_ttl must be > 0, got %v", c.Invite.DefaultTTL))
	}
	if c.Invite.MaxTTL < c.Invite.DefaultTTL {
		errs = append(errs, fmt.Errorf("invite.max_ttl must be >= invite.default_ttl, got %v", c.Invite.MaxTTL))
	}

	for name, l := range map[string]LimitConfig{"ip": c.RateLimit.IP, "member": c.RateLimit.Member} {
		if l.RequestsPerSecond < 0 {
			errs = append(errs, fmt.Errorf("rate_limit.%s.requests_per_second must be >= 0", name))
		}
		if l.RequestsPerSecond > 0 && l.Burst <= 0 {
			errs = append(errs, fmt.Errorf("rate_limit.%s.burst must be > 0 when the tier is enabled", name))
		}
	}

	if !debug.ValidLevel(c.Logging.Level) {
		errs = append(errs, fmt.Errorf("logging.level must be one of TRACE, DEBUG, INFO, WARN, ERROR, got %q", c.Logging.Level))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be \"text\" or \"json\", got %q", c.Logging.Format))
	}

	if c.Observability.Metrics.Enabled && !strings.HasPrefix(c.Observability.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("observability.metrics.path must start with /, got %q", c.Observability.Metrics.Path))
	}

	return errors.Join(errs...)
}
