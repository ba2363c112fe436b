package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/rhuss/exammaker/pkg/api"
	"github.com/rhuss/exammaker/pkg/storage"
)

// RevocationGuard rejects access tokens whose session has been revoked.
// It is consulted on every authenticated request.
type RevocationGuard struct {
	tenants storage.TenantStore
}

// NewRevocationGuard creates a guard over the tenant store.
func NewRevocationGuard(tenants storage.TenantStore) *RevocationGuard {
	return &RevocationGuard{tenants: tenants}
}

// Check returns an unauthorized error when the session is unknown or
// revoked. Store failures are returned wrapped; callers must treat any
// error as a rejection.
func (g *RevocationGuard) Check(ctx context.Context, sessionID string) error {
	if !api.ValidateSessionID(sessionID) {
		return api.NewUnauthorizedError()
	}
	sess, err := g.tenants.GetSession(ctx, sessionID)
	if errors.Is(err, storage.ErrNotFound) {
		return api.NewUnauthorizedError()
	}
	if err != nil {
		return fmt.Errorf("checking session %s: %w", sessionID, err)
	}
	if sess.Revoked {
		return api.NewUnauthorizedError()
	}
	return nil
}
