package api

import (
	"strings"
	"testing"
	"time"
)

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  A@Acme.IO "); got != "a@acme.io" {
		t.Errorf("NormalizeEmail = %q, want %q", got, "a@acme.io")
	}
}

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		email   string
		wantErr bool
	}{
		{"a@acme.io", false},
		{"first.last+tag@mail.example.com", false},
		{"x@y.z", true}, // below minimum length
		{"no-at-sign.example.com", true},
		{"@acme.io", true},
		{"a@", true},
		{"a@localhost", true},
		{"a..b@acme.io", true},
		{".a@acme.io", true},
		{"a@-acme.io", true},
		{"a@acme-.io", true},
		{"a b@acme.io", true},
		{strings.Repeat("a", 65) + "@acme.io", true},
		{"a@" + strings.Repeat("b", 64) + ".io", true},
	}
	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			err := ValidateEmail(tt.email)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateEmail(%q) = %v, wantErr %v", tt.email, err, tt.wantErr)
			}
			if err != nil && (err.Type != ErrorTypeValidation || err.Param != "email") {
				t.Errorf("unexpected error shape: %+v", err)
			}
		})
	}
}

func TestValidateName(t *testing.T) {
	cfg := DefaultValidationConfig()

	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"valid", "Ada Lovelace", false},
		{"minimum", "Ada", false},
		{"multibyte runes count once", "Zoë", false},
		{"too short", "Al", true},
		{"blank", "     ", true},
		{"padded short", "  Al  ", true},
		{"too long", strings.Repeat("x", 256), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName("name", tt.value, cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName(%q) = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
		})
	}
}

func TestValidatePassword(t *testing.T) {
	cfg := DefaultValidationConfig()

	tests := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{"valid", "secret1", false},
		{"minimum", "secret", false},
		{"too short", "short", true},
		{"whitespace only", "        ", true},
		{"empty", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword("password", tt.value, cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePassword(%q) = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
			if err != nil && err.Param != "password" {
				t.Errorf("Param = %q, want password", err.Param)
			}
		})
	}
}

func TestValidateOrganizationIdentifier(t *testing.T) {
	tests := []struct {
		value   string
		wantErr bool
	}{
		{"acme", false},
		{"acme-inc", false},
		{"42", false},
		{"a", true},
		{"Acme", true},
		{"-acme", true},
		{"acme inc", true},
		{"acme_inc", true},
		{"", true},
		{strings.Repeat("a", 64), true},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			err := ValidateOrganizationIdentifier(tt.value)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateOrganizationIdentifier(%q) = %v, wantErr %v", tt.value, err, tt.wantErr)
			}
		})
	}
}

func TestValidateOrganizationTitle(t *testing.T) {
	cfg := DefaultValidationConfig()
	if err := ValidateOrganizationTitle("Acme Inc", cfg); err != nil {
		t.Errorf("valid title rejected: %v", err)
	}
	if err := ValidateOrganizationTitle("   ", cfg); err == nil {
		t.Error("blank title accepted")
	}
	if err := ValidateOrganizationTitle(strings.Repeat("t", 256), cfg); err == nil {
		t.Error("overlong title accepted")
	}
}

func TestValidateInviteTTL(t *testing.T) {
	max := 30 * 24 * time.Hour

	tests := []struct {
		name    string
		ttl     time.Duration
		wantErr bool
	}{
		{"one hour", time.Hour, false},
		{"at max", max, false},
		{"zero", 0, true},
		{"negative", -time.Minute, true},
		{"over max", max + time.Second, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateInviteTTL(tt.ttl, max)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateInviteTTL(%v) = %v, wantErr %v", tt.ttl, err, tt.wantErr)
			}
		})
	}
}
