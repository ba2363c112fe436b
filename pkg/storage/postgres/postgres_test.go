package postgres

import (
	"context"
	"errors"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/rhuss/exammaker/pkg/api"
	"github.com/rhuss/exammaker/pkg/storage"
)

func init() {
	// Configure testcontainers to use podman.
	// Detect the podman socket from `podman machine inspect`.
	if os.Getenv("DOCKER_HOST") == "" {
		out, err := exec.Command("podman", "machine", "inspect", "--format", "{{.ConnectionInfo.PodmanSocket.Path}}").Output()
		if err == nil {
			sock := strings.TrimSpace(string(out))
			if sock != "" {
				os.Setenv("DOCKER_HOST", "unix://"+sock)
			}
		}
	}
	// Ryuk needs privileged mode with podman.
	if os.Getenv("TESTCONTAINERS_RYUK_CONTAINER_PRIVILEGED") == "" {
		os.Setenv("TESTCONTAINERS_RYUK_CONTAINER_PRIVILEGED", "true")
	}
}

// setupTestDBs starts one PostgreSQL container holding two databases and
// returns a store on each. Tests are skipped if no container runtime is
// available.
func setupTestDBs(t *testing.T) (*CredentialStore, *TenantStore) {
	t.Helper()

	if os.Getenv("SKIP_INTEGRATION") == "true" {
		t.Skip("SKIP_INTEGRATION=true, skipping PostgreSQL integration tests")
	}

	if _, err := exec.LookPath("podman"); err != nil {
		if _, err := exec.LookPath("docker"); err != nil {
			t.Skip("no container runtime found, skipping integration tests")
		}
	}

	ctx := context.Background()

	container, err := pgmodule.Run(ctx,
		"postgres:16-alpine",
		pgmodule.WithDatabase("exammaker_credentials"),
		pgmodule.WithUsername("test"),
		pgmodule.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Skipf("skipping: could not start PostgreSQL container: %v", err)
	}

	t.Cleanup(func() {
		container.Terminate(context.Background())
	})

	credDSN, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("getting connection string: %v", err)
	}

	conn, err := pgx.Connect(ctx, credDSN)
	if err != nil {
		t.Fatalf("connecting: %v", err)
	}
	if _, err := conn.Exec(ctx, "CREATE DATABASE exammaker_tenants"); err != nil {
		t.Fatalf("creating tenant database: %v", err)
	}
	conn.Close(ctx)

	u, err := url.Parse(credDSN)
	if err != nil {
		t.Fatalf("parsing DSN: %v", err)
	}
	u.Path = "/exammaker_tenants"
	tenantDSN := u.String()

	creds, err := NewCredentialStore(ctx, Config{DSN: credDSN, MaxConns: 5, MinConns: 1, MigrateOnStart: true})
	if err != nil {
		t.Fatalf("creating credential store: %v", err)
	}
	t.Cleanup(func() { creds.Close() })

	tenants, err := NewTenantStore(ctx, Config{DSN: tenantDSN, MaxConns: 5, MinConns: 1, MigrateOnStart: true})
	if err != nil {
		t.Fatalf("creating tenant store: %v", err)
	}
	t.Cleanup(func() { tenants.Close() })

	return creds, tenants
}

func seedOrg(t *testing.T, s *TenantStore, membershipID int64) *api.Organization {
	t.Helper()
	org := &api.Organization{Title: "Acme", Identifier: "acme"}
	if err := s.CreateOrganization(context.Background(), org, membershipID); err != nil {
		t.Fatalf("CreateOrganization failed: %v", err)
	}
	return org
}

func newSession(membershipID int64) *api.SessionToken {
	return &api.SessionToken{
		ID:               api.NewSessionID(),
		MembershipID:     membershipID,
		AccessToken:      api.NewRefreshToken(),
		RefreshToken:     api.NewRefreshToken(),
		RefreshExpiresAt: time.Now().Add(time.Hour),
	}
}

func TestPostgres_Credentials(t *testing.T) {
	creds, _ := setupTestDBs(t)
	ctx := context.Background()

	c := &api.Credential{
		Email:        "Ann@Acme.io",
		Name:         "Ann Admin",
		PasswordHash: []byte{1, 2, 3},
		PasswordSalt: []byte{4, 5, 6},
	}
	if err := creds.CreateCredential(ctx, c); err != nil {
		t.Fatalf("CreateCredential failed: %v", err)
	}
	if c.ID == 0 {
		t.Fatal("ID not assigned")
	}

	got, err := creds.GetCredentialByEmail(ctx, "ANN@acme.io")
	if err != nil {
		t.Fatalf("GetCredentialByEmail failed: %v", err)
	}
	if got.ID != c.ID || got.Email != "ann@acme.io" {
		t.Errorf("got (%d, %q), want (%d, %q)", got.ID, got.Email, c.ID, "ann@acme.io")
	}
	if string(got.PasswordSalt) != string(c.PasswordSalt) {
		t.Error("salt did not round-trip")
	}

	dup := &api.Credential{Email: "ann@ACME.io", Name: "Other", PasswordHash: []byte{1}, PasswordSalt: []byte{1}}
	if err := creds.CreateCredential(ctx, dup); !errors.Is(err, storage.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}

	if err := creds.DeleteCredential(ctx, c.ID); err != nil {
		t.Fatalf("DeleteCredential failed: %v", err)
	}
	if _, err := creds.GetCredential(ctx, c.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if exists, _ := creds.EmailExists(ctx, "ann@acme.io"); exists {
		t.Error("email still exists after delete")
	}
}

func TestPostgres_OrganizationAndMembership(t *testing.T) {
	_, tenants := setupTestDBs(t)
	ctx := context.Background()

	org := seedOrg(t, tenants, 7)

	exists, err := tenants.OrganizationIdentifierExists(ctx, "acme")
	if err != nil || !exists {
		t.Errorf("OrganizationIdentifierExists = %v, %v; want true, nil", exists, err)
	}

	m, got, err := tenants.GetMembershipOrganization(ctx, 7)
	if err != nil {
		t.Fatalf("GetMembershipOrganization failed: %v", err)
	}
	if m.OrganizationID != org.ID || got.Title != "Acme" {
		t.Errorf("got membership org %d title %q, want %d %q", m.OrganizationID, got.Title, org.ID, "Acme")
	}

	// Duplicate identifier rolls back the membership insert too.
	err = tenants.CreateOrganization(ctx, &api.Organization{Title: "Acme 2", Identifier: "acme"}, 8)
	if !errors.Is(err, storage.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
	if _, err := tenants.GetMembership(ctx, 8); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("membership 8 should not exist, got %v", err)
	}
}

func TestPostgres_RedeemInvite(t *testing.T) {
	_, tenants := setupTestDBs(t)
	ctx := context.Background()
	org := seedOrg(t, tenants, 1)

	inv := &api.InviteToken{
		OrganizationID:        org.ID,
		CreatedByMembershipID: 1,
		Token:                 api.NewInviteToken(),
		ExpiresAt:             time.Now().Add(time.Hour),
	}
	if err := tenants.CreateInviteToken(ctx, inv); err != nil {
		t.Fatalf("CreateInviteToken failed: %v", err)
	}

	const n = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := range n {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := tenants.RedeemInvite(ctx, inv.Token, id, time.Now())
			switch {
			case err == nil:
				mu.Lock()
				wins++
				mu.Unlock()
			case !errors.Is(err, storage.ErrInviteUnavailable):
				t.Errorf("unexpected error: %v", err)
			}
		}(int64(100 + i))
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("wins = %d, want 1", wins)
	}

	got, err := tenants.GetInviteToken(ctx, inv.Token)
	if err != nil {
		t.Fatalf("GetInviteToken failed: %v", err)
	}
	if !got.Used() || got.UsedAt == nil {
		t.Error("invite not marked used")
	}
	if got.UpdatedAt.Equal(got.CreatedAt) {
		t.Error("updated_at not stamped on redemption")
	}
}

func TestPostgres_RedeemInvite_Expired(t *testing.T) {
	_, tenants := setupTestDBs(t)
	ctx := context.Background()
	org := seedOrg(t, tenants, 1)

	inv := &api.InviteToken{
		OrganizationID:        org.ID,
		CreatedByMembershipID: 1,
		Token:                 api.NewInviteToken(),
		ExpiresAt:             time.Now().Add(-time.Minute),
	}
	if err := tenants.CreateInviteToken(ctx, inv); err != nil {
		t.Fatalf("CreateInviteToken failed: %v", err)
	}

	_, err := tenants.RedeemInvite(ctx, inv.Token, 2, time.Now())
	if !errors.Is(err, storage.ErrInviteUnavailable) {
		t.Errorf("expected ErrInviteUnavailable, got %v", err)
	}
	if _, err := tenants.GetMembership(ctx, 2); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("membership created for expired invite: %v", err)
	}
}

func TestPostgres_Sessions(t *testing.T) {
	_, tenants := setupTestDBs(t)
	ctx := context.Background()
	seedOrg(t, tenants, 1)

	a, b := newSession(1), newSession(1)
	b.CreatedAt = time.Now().Add(time.Second)
	for _, s := range []*api.SessionToken{a, b} {
		if err := tenants.CreateSession(ctx, s); err != nil {
			t.Fatalf("CreateSession failed: %v", err)
		}
	}

	byRefresh, err := tenants.GetSessionByRefreshToken(ctx, a.RefreshToken)
	if err != nil {
		t.Fatalf("GetSessionByRefreshToken failed: %v", err)
	}
	if byRefresh.ID != a.ID {
		t.Errorf("ID = %q, want %q", byRefresh.ID, a.ID)
	}

	dup := newSession(1)
	dup.RefreshToken = a.RefreshToken
	if err := tenants.CreateSession(ctx, dup); !errors.Is(err, storage.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}

	flipped, err := tenants.RevokeSession(ctx, a.ID, time.Now())
	if err != nil || !flipped {
		t.Fatalf("RevokeSession = %v, %v; want true, nil", flipped, err)
	}
	flipped, _ = tenants.RevokeSession(ctx, a.ID, time.Now())
	if flipped {
		t.Error("second RevokeSession flipped again")
	}

	n, err := tenants.RevokeAllSessions(ctx, 1, time.Now())
	if err != nil {
		t.Fatalf("RevokeAllSessions failed: %v", err)
	}
	if n != 1 {
		t.Errorf("revoked = %d, want 1", n)
	}

	list, err := tenants.ListSessions(ctx, 1)
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != b.ID {
		t.Errorf("ListSessions order wrong: %d sessions", len(list))
	}
	for _, s := range list {
		if !s.Revoked {
			t.Errorf("session %s not revoked", s.ID)
		}
	}
}

func TestPostgres_HealthCheck(t *testing.T) {
	creds, tenants := setupTestDBs(t)
	if err := creds.HealthCheck(context.Background()); err != nil {
		t.Errorf("credential HealthCheck failed: %v", err)
	}
	if err := tenants.HealthCheck(context.Background()); err != nil {
		t.Errorf("tenant HealthCheck failed: %v", err)
	}
}
