package registration

import (
	"strings"

	"github.com/rhuss/exammaker/pkg/api"
)

// CreateOrganizationRequest registers an organization with its admin.
type CreateOrganizationRequest struct {
	OrganizationIdentifier string `json:"organization_identifier"`
	OrganizationTitle      string `json:"organization_title"`
	AdminEmail             string `json:"admin_email"`
	AdminName              string `json:"admin_name"`
	AdminPassword          string `json:"admin_password"`
}

// AcceptInviteRequest registers a member through an invite token.
type AcceptInviteRequest struct {
	Token    string `json:"token"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// normalize trims and lower-cases the fields that are matched exactly.
func (r *CreateOrganizationRequest) normalize() {
	r.OrganizationIdentifier = strings.ToLower(strings.TrimSpace(r.OrganizationIdentifier))
	r.OrganizationTitle = strings.TrimSpace(r.OrganizationTitle)
	r.AdminEmail = api.NormalizeEmail(r.AdminEmail)
	r.AdminName = strings.TrimSpace(r.AdminName)
}

// validate returns the first failing field.
func (r *CreateOrganizationRequest) validate(cfg api.ValidationConfig) *api.APIError {
	if err := api.ValidateOrganizationIdentifier(r.OrganizationIdentifier); err != nil {
		return err
	}
	if err := api.ValidateOrganizationTitle(r.OrganizationTitle, cfg); err != nil {
		return err
	}
	if err := api.ValidateEmail(r.AdminEmail); err != nil {
		err.Param = "admin_email"
		err.Message = strings.Replace(err.Message, "email", "admin_email", 1)
		return err
	}
	if err := api.ValidateName("admin_name", r.AdminName, cfg); err != nil {
		return err
	}
	return api.ValidatePassword("admin_password", r.AdminPassword, cfg)
}

func (r *AcceptInviteRequest) normalize() {
	r.Token = strings.TrimSpace(r.Token)
	r.Email = api.NormalizeEmail(r.Email)
	r.Name = strings.TrimSpace(r.Name)
}

func (r *AcceptInviteRequest) validate(cfg api.ValidationConfig) *api.APIError {
	if r.Token == "" {
		return api.NewValidationError("token", "token is required")
	}
	if err := api.ValidateEmail(r.Email); err != nil {
		return err
	}
	if err := api.ValidateName("name", r.Name, cfg); err != nil {
		return err
	}
	return api.ValidatePassword("password", r.Password, cfg)
}
