package integration

import (
	"net/http"
	"sync"
	"testing"

	"github.com/rhuss/exammaker/pkg/api"
	"github.com/rhuss/exammaker/pkg/registration"
)

type inviteResponse struct {
	Token string `json:"token"`
}

func createInvite(t *testing.T, accessToken string) string {
	t.Helper()
	resp := postJSON(t, testEnv.BaseURL()+"/invite/create", accessToken, map[string]string{"ttl": "1h"})
	expectStatus(t, resp, http.StatusOK)
	var inv inviteResponse
	decodeJSON(t, resp, &inv)
	return inv.Token
}

func TestRegisterOrganizationCreatesBothRecords(t *testing.T) {
	before := testEnv.Credentials.Len()
	org, pair := registerAndLogin(t)

	if got := testEnv.Credentials.Len(); got != before+1 {
		t.Errorf("credential count = %d, want %d", got, before+1)
	}

	resp := getURL(t, testEnv.BaseURL()+"/session/me", pair.AccessToken)
	expectStatus(t, resp, http.StatusOK)
	var me struct {
		Email             string `json:"email"`
		OrganizationTitle string `json:"organization_title"`
	}
	decodeJSON(t, resp, &me)
	if me.Email != org.AdminEmail || me.OrganizationTitle != org.OrganizationTitle {
		t.Errorf("me = %+v", me)
	}
}

func TestDuplicateIdentifierConflicts(t *testing.T) {
	org, _ := registerAndLogin(t)

	dup := uniqueOrg()
	dup.OrganizationIdentifier = org.OrganizationIdentifier
	before := testEnv.Credentials.Len()

	resp := postJSON(t, testEnv.BaseURL()+"/register/organization", "", dup)
	expectStatus(t, resp, http.StatusConflict)
	var errResp api.ErrorResponse
	decodeJSON(t, resp, &errResp)
	if errResp.Error.Code != api.CodeIdentifierTaken {
		t.Errorf("code = %q, want %q", errResp.Error.Code, api.CodeIdentifierTaken)
	}
	if got := testEnv.Credentials.Len(); got != before {
		t.Errorf("credential count changed to %d after conflict, want %d", got, before)
	}
}

func TestInviteFlow(t *testing.T) {
	_, admin := registerAndLogin(t)
	token := createInvite(t, admin.AccessToken)

	member := registration.AcceptInviteRequest{Token: token, Email: uniqueEmail(), Name: "Member", Password: "battery-staple"}
	expectStatus(t, postJSON(t, testEnv.BaseURL()+"/register/invite", "", member), http.StatusNoContent)

	pair := login(t, member.Email, member.Password)
	if pair.Name != "Member" {
		t.Errorf("name = %q, want Member", pair.Name)
	}

	// Members may invite too.
	if createInvite(t, pair.AccessToken) == "" {
		t.Error("member could not create an invite")
	}
}

func TestConcurrentInviteRedemptionSingleWinner(t *testing.T) {
	_, admin := registerAndLogin(t)
	token := createInvite(t, admin.AccessToken)
	before := testEnv.Credentials.Len()

	const n = 8
	statuses := make([]int, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := registration.AcceptInviteRequest{Token: token, Email: uniqueEmail(), Name: "Racer", Password: "battery-staple"}
			statuses[i] = postJSON(t, testEnv.BaseURL()+"/register/invite", "", req).StatusCode
		}()
	}
	wg.Wait()

	wins := 0
	for _, s := range statuses {
		switch s {
		case http.StatusNoContent:
			wins++
		case http.StatusBadRequest:
		default:
			t.Errorf("unexpected status %d", s)
		}
	}
	if wins != 1 {
		t.Errorf("wins = %d, want exactly 1 (statuses %v)", wins, statuses)
	}
	if got := testEnv.Credentials.Len(); got != before+1 {
		t.Errorf("credential count = %d, want %d (losers must be compensated)", got, before+1)
	}
}
