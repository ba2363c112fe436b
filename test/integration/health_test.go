package integration

import (
	"net/http"
	"strings"
	"testing"
)

func TestHealthEndpoint(t *testing.T) {
	resp := getURL(t, testEnv.BaseURL()+"/healthz", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	if body := readBody(t, resp); !strings.Contains(body, "ok") {
		t.Errorf("body = %q, want to contain 'ok'", body)
	}
}

func TestReadyEndpointChecksBothStores(t *testing.T) {
	resp := getURL(t, testEnv.BaseURL()+"/readyz", "")
	expectStatus(t, resp, http.StatusOK)

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	decodeJSON(t, resp, &body)
	if body.Checks["credentials"] != "ok" || body.Checks["tenants"] != "ok" {
		t.Errorf("checks = %v, want both stores ok", body.Checks)
	}
}

func TestHealthEndpointIgnoresBadToken(t *testing.T) {
	resp := getURL(t, testEnv.BaseURL()+"/healthz", "garbage")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 on bypassed endpoint, got %d", resp.StatusCode)
	}
}
