// Package integration provides end-to-end tests for the exammaker API.
//
// Tests run against a real exammaker HTTP handler wired exactly as the
// server command wires it, backed by in-memory stores and started
// in-process using net/http/httptest.
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rhuss/exammaker/pkg/auth"
	"github.com/rhuss/exammaker/pkg/auth/jwt"
	"github.com/rhuss/exammaker/pkg/password"
	"github.com/rhuss/exammaker/pkg/registration"
	"github.com/rhuss/exammaker/pkg/session"
	"github.com/rhuss/exammaker/pkg/storage/memory"
	transporthttp "github.com/rhuss/exammaker/pkg/transport/http"
)

// testEnv holds the shared server for all integration tests.
var testEnv *TestEnvironment

// TestEnvironment holds the exammaker server under test.
type TestEnvironment struct {
	Server      *httptest.Server
	Credentials *memory.CredentialStore
	Tenants     *memory.TenantStore
}

// TestMain starts the exammaker server before running tests.
func TestMain(m *testing.M) {
	testEnv = setupTestEnvironment()
	code := m.Run()
	testEnv.Teardown()
	os.Exit(code)
}

func setupTestEnvironment() *TestEnvironment {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	hasher, err := password.New(password.Params{
		Memory: 64, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32,
	}, []byte("integration-secret"))
	if err != nil {
		panic(fmt.Sprintf("creating hasher: %v", err))
	}
	signer, err := session.NewSigner(session.SignerConfig{
		Key:        []byte("integration-key-integration-key-"),
		Issuer:     "exammaker",
		Audience:   "exammaker",
		AccessTTL:  5 * time.Minute,
		RefreshTTL: time.Hour,
	})
	if err != nil {
		panic(fmt.Sprintf("creating signer: %v", err))
	}

	env := &TestEnvironment{
		Credentials: memory.NewCredentialStore(),
		Tenants:     memory.NewTenantStore(),
	}

	issuer, err := session.NewIssuer(env.Credentials, env.Tenants, hasher, signer, logger)
	if err != nil {
		panic(fmt.Sprintf("creating issuer: %v", err))
	}
	coord := registration.New(env.Credentials, env.Tenants, hasher, logger)

	cfg := transporthttp.DefaultConfig()
	chain := &auth.AuthChain{Authenticators: []auth.Authenticator{
		jwt.New(signer, session.NewRevocationGuard(env.Tenants)),
	}}
	adapter := transporthttp.NewAdapter(coord, issuer, cfg,
		transporthttp.WithAdapterLogger(logger),
		transporthttp.WithAuth(auth.Middleware(chain, nil, cfg.BypassEndpoints())),
		transporthttp.WithHealthCheck("credentials", env.Credentials),
		transporthttp.WithHealthCheck("tenants", env.Tenants),
	)

	env.Server = httptest.NewServer(adapter.Handler())
	return env
}

// BaseURL returns the server URL.
func (e *TestEnvironment) BaseURL() string {
	return e.Server.URL
}

// Teardown stops the server.
func (e *TestEnvironment) Teardown() {
	e.Server.Close()
}

var seq atomic.Int64

// uniqueOrg returns a registration request whose identifier and admin
// email do not collide with other tests sharing the environment.
func uniqueOrg() registration.CreateOrganizationRequest {
	n := seq.Add(1)
	return registration.CreateOrganizationRequest{
		OrganizationIdentifier: fmt.Sprintf("school-%d", n),
		OrganizationTitle:      fmt.Sprintf("School %d", n),
		AdminEmail:             fmt.Sprintf("admin%d@school.test", n),
		AdminName:              "Admin",
		AdminPassword:          "correct-horse",
	}
}

func uniqueEmail() string {
	return fmt.Sprintf("member%d@school.test", seq.Add(1))
}

type tokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
}

// registerAndLogin creates a fresh organization and returns its admin's tokens.
func registerAndLogin(t *testing.T) (registration.CreateOrganizationRequest, tokenPair) {
	t.Helper()
	org := uniqueOrg()
	resp := postJSON(t, testEnv.BaseURL()+"/register/organization", "", org)
	expectStatus(t, resp, http.StatusNoContent)
	return org, login(t, org.AdminEmail, org.AdminPassword)
}

func login(t *testing.T, email, pw string) tokenPair {
	t.Helper()
	resp := postJSON(t, testEnv.BaseURL()+"/session/login", "", map[string]string{"email": email, "password": pw})
	expectStatus(t, resp, http.StatusOK)
	var pair tokenPair
	decodeJSON(t, resp, &pair)
	return pair
}

// postJSON sends a POST with a JSON body and an optional bearer token.
func postJSON(t *testing.T, url, token string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshaling request: %v", err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(http.MethodPost, url, r)
	if err != nil {
		t.Fatalf("creating request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// getURL sends a GET with an optional bearer token.
func getURL(t *testing.T, url, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("creating request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("%s %s: expected %d, got %d: %s",
			resp.Request.Method, resp.Request.URL.Path, want, resp.StatusCode, readBody(t, resp))
	}
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	return string(data)
}

func decodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decoding JSON: %v", err)
	}
}
