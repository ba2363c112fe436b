package api

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// ValidationConfig holds configurable limits for request validation.
type ValidationConfig struct {
	MinNameLength     int
	MinPasswordLength int
	MaxFieldLength    int
}

// DefaultValidationConfig returns a ValidationConfig with sensible defaults.
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		MinNameLength:     3,
		MinPasswordLength: 6,
		MaxFieldLength:    255,
	}
}

var (
	emailLocalPattern   = regexp.MustCompile("^[a-z0-9!#$%&'*+/=?^_`{|}~-]+(\\.[a-z0-9!#$%&'*+/=?^_`{|}~-]+)*$")
	emailLabelPattern   = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)
	organizationPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,62}$`)
)

// NormalizeEmail trims and lower-cases an address. Every store lookup and
// insert goes through it, which is what makes email uniqueness
// case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks the shape of an already normalized address.
func ValidateEmail(email string) *APIError {
	if len(email) < 6 || len(email) > 254 {
		return NewValidationError("email", "email must be between 6 and 254 characters")
	}
	at := strings.LastIndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return NewValidationError("email", "email is malformed")
	}

	local, domain := email[:at], email[at+1:]
	if len(local) > 64 || !emailLocalPattern.MatchString(local) {
		return NewValidationError("email", "email is malformed")
	}

	labels := strings.Split(domain, ".")
	if len(labels) < 2 {
		return NewValidationError("email", "email is malformed")
	}
	for _, label := range labels {
		if len(label) > 63 || !emailLabelPattern.MatchString(label) {
			return NewValidationError("email", "email is malformed")
		}
	}
	return nil
}

// ValidateName checks a display name.
func ValidateName(param, name string, cfg ValidationConfig) *APIError {
	trimmed := strings.TrimSpace(name)
	if n := utf8.RuneCountInString(trimmed); n < cfg.MinNameLength {
		return NewValidationError(param,
			fmt.Sprintf("%s must be at least %d characters", param, cfg.MinNameLength))
	}
	if cfg.MaxFieldLength > 0 && utf8.RuneCountInString(name) > cfg.MaxFieldLength {
		return NewValidationError(param,
			fmt.Sprintf("%s must be at most %d characters", param, cfg.MaxFieldLength))
	}
	return nil
}

// ValidatePassword checks password length. Whitespace-only passwords are
// rejected regardless of length.
func ValidatePassword(param, password string, cfg ValidationConfig) *APIError {
	if strings.TrimSpace(password) == "" {
		return NewValidationError(param, param+" is required")
	}
	if utf8.RuneCountInString(password) < cfg.MinPasswordLength {
		return NewValidationError(param,
			fmt.Sprintf("%s must be at least %d characters", param, cfg.MinPasswordLength))
	}
	return nil
}

// ValidateOrganizationIdentifier checks the organization slug.
func ValidateOrganizationIdentifier(identifier string) *APIError {
	if !organizationPattern.MatchString(identifier) {
		return NewValidationError("organization_identifier",
			"organization_identifier must be 2-63 lowercase letters, digits or dashes, starting with a letter or digit")
	}
	return nil
}

// ValidateOrganizationTitle checks the human-readable organization title.
func ValidateOrganizationTitle(title string, cfg ValidationConfig) *APIError {
	if strings.TrimSpace(title) == "" {
		return NewValidationError("organization_title", "organization_title is required")
	}
	if cfg.MaxFieldLength > 0 && utf8.RuneCountInString(title) > cfg.MaxFieldLength {
		return NewValidationError("organization_title",
			fmt.Sprintf("organization_title must be at most %d characters", cfg.MaxFieldLength))
	}
	return nil
}

// ValidateInviteTTL checks a requested invite lifetime against the
// configured ceiling.
func ValidateInviteTTL(ttl, max time.Duration) *APIError {
	if ttl <= 0 {
		return NewValidationError("ttl", "ttl must be positive")
	}
	if max > 0 && ttl > max {
		return NewValidationError("ttl", fmt.Sprintf("ttl must not exceed %s", max))
	}
	return nil
}
