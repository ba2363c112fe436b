package integration

import (
	"bytes"
	"net/http"
	"strings"
	"testing"

	"github.com/rhuss/exammaker/pkg/api"
	"github.com/rhuss/exammaker/pkg/registration"
)

func assertErrorEnvelope(t *testing.T, resp *http.Response, status int, errType api.ErrorType) *api.APIError {
	t.Helper()
	expectStatus(t, resp, status)
	var errResp api.ErrorResponse
	decodeJSON(t, resp, &errResp)
	if errResp.Error == nil {
		t.Fatal("error object is nil")
	}
	if errResp.Error.Type != errType {
		t.Errorf("error.type = %q, want %q", errResp.Error.Type, errType)
	}
	return errResp.Error
}

func TestInvalidJSON(t *testing.T) {
	resp, err := http.Post(testEnv.BaseURL()+"/register/organization", "application/json",
		bytes.NewReader([]byte(`{invalid json`)))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	assertErrorEnvelope(t, resp, http.StatusBadRequest, api.ErrorTypeInvalidRequest)
}

func TestValidationErrorNamesField(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*registration.CreateOrganizationRequest)
		param  string
	}{
		{"bad identifier", func(r *registration.CreateOrganizationRequest) { r.OrganizationIdentifier = "Not Valid!" }, "organization_identifier"},
		{"blank title", func(r *registration.CreateOrganizationRequest) { r.OrganizationTitle = "   " }, "organization_title"},
		{"bad email", func(r *registration.CreateOrganizationRequest) { r.AdminEmail = "nope" }, "admin_email"},
		{"short password", func(r *registration.CreateOrganizationRequest) { r.AdminPassword = "12345" }, "admin_password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := uniqueOrg()
			tt.modify(&req)
			resp := postJSON(t, testEnv.BaseURL()+"/register/organization", "", req)
			apiErr := assertErrorEnvelope(t, resp, http.StatusUnprocessableEntity, api.ErrorTypeValidation)
			if apiErr.Param != tt.param {
				t.Errorf("param = %q, want %q", apiErr.Param, tt.param)
			}
		})
	}
}

func TestUnknownInviteToken(t *testing.T) {
	req := registration.AcceptInviteRequest{
		Token: strings.Repeat("A", 86), Email: uniqueEmail(), Name: "Nobody", Password: "battery-staple",
	}
	resp := postJSON(t, testEnv.BaseURL()+"/register/invite", "", req)
	assertErrorEnvelope(t, resp, http.StatusBadRequest, api.ErrorTypeNotFound)
}

func TestLoginErrorsDoNotLeakCause(t *testing.T) {
	org, _ := registerAndLogin(t)

	wrongPassword := postJSON(t, testEnv.BaseURL()+"/session/login", "",
		map[string]string{"email": org.AdminEmail, "password": "not-the-password"})
	unknownEmail := postJSON(t, testEnv.BaseURL()+"/session/login", "",
		map[string]string{"email": uniqueEmail(), "password": org.AdminPassword})

	a := assertErrorEnvelope(t, wrongPassword, http.StatusUnauthorized, api.ErrorTypeUnauthorized)
	b := assertErrorEnvelope(t, unknownEmail, http.StatusUnauthorized, api.ErrorTypeUnauthorized)
	if *a != *b {
		t.Errorf("login errors differ: %+v vs %+v", a, b)
	}
}

func TestMemberEndpointsWithoutToken(t *testing.T) {
	assertErrorEnvelope(t, getURL(t, testEnv.BaseURL()+"/session/me", ""), http.StatusUnauthorized, api.ErrorTypeUnauthorized)
	assertErrorEnvelope(t, postJSON(t, testEnv.BaseURL()+"/invite/create", "", nil), http.StatusUnauthorized, api.ErrorTypeUnauthorized)
	assertErrorEnvelope(t, postJSON(t, testEnv.BaseURL()+"/session/logout", "", nil), http.StatusUnauthorized, api.ErrorTypeUnauthorized)
}
