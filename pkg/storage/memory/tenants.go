package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rhuss/exammaker/pkg/api"
	"github.com/rhuss/exammaker/pkg/storage"
)

// TenantStore is an in-memory storage.TenantStore.
type TenantStore struct {
	mu sync.RWMutex

	nextOrgID    int64
	nextInviteID int64

	orgs         map[int64]*api.Organization
	identifiers  map[string]int64
	memberships  map[int64]*api.Membership
	invites      map[string]*api.InviteToken
	sessions     map[string]*api.SessionToken
	refreshIndex map[string]string
	accessIndex  map[string]string
}

var _ storage.TenantStore = (*TenantStore)(nil)

// NewTenantStore creates an empty tenant store.
func NewTenantStore() *TenantStore {
	return &TenantStore{
		orgs:         make(map[int64]*api.Organization),
		identifiers:  make(map[string]int64),
		memberships:  make(map[int64]*api.Membership),
		invites:      make(map[string]*api.InviteToken),
		sessions:     make(map[string]*api.SessionToken),
		refreshIndex: make(map[string]string),
		accessIndex:  make(map[string]string),
	}
}

func (s *TenantStore) OrganizationIdentifierExists(_ context.Context, identifier string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.identifiers[identifier]
	return ok, nil
}

// CreateOrganization inserts org and its founding membership atomically.
func (s *TenantStore) CreateOrganization(_ context.Context, org *api.Organization, membershipID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.identifiers[org.Identifier]; exists {
		return fmt.Errorf("organization %q: %w", org.Identifier, storage.ErrConflict)
	}
	if _, exists := s.memberships[membershipID]; exists {
		return fmt.Errorf("membership %d: %w", membershipID, storage.ErrConflict)
	}

	now := time.Now().UTC()
	s.nextOrgID++
	org.ID = s.nextOrgID
	org.CreatedAt = now
	org.UpdatedAt = now

	stored := *org
	s.orgs[org.ID] = &stored
	s.identifiers[org.Identifier] = org.ID
	s.memberships[membershipID] = &api.Membership{
		ID:             membershipID,
		OrganizationID: org.ID,
		CreatedAt:      now,
	}
	return nil
}

func (s *TenantStore) GetOrganization(_ context.Context, id int64) (*api.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	org, ok := s.orgs[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := *org
	return &out, nil
}

func (s *TenantStore) GetMembership(_ context.Context, id int64) (*api.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.memberships[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := *m
	return &out, nil
}

func (s *TenantStore) GetMembershipOrganization(_ context.Context, membershipID int64) (*api.Membership, *api.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.memberships[membershipID]
	if !ok {
		return nil, nil, storage.ErrNotFound
	}
	org, ok := s.orgs[m.OrganizationID]
	if !ok {
		return nil, nil, fmt.Errorf("organization %d of membership %d: %w", m.OrganizationID, membershipID, storage.ErrNotFound)
	}
	mOut, orgOut := *m, *org
	return &mOut, &orgOut, nil
}

// CreateInviteToken inserts inv, assigning its ID.
func (s *TenantStore) CreateInviteToken(_ context.Context, inv *api.InviteToken) error {
	if inv.Used() {
		return fmt.Errorf("invite token: %w", api.ValidateInviteTransition("", api.InviteStateUsed))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.invites[inv.Token]; exists {
		return fmt.Errorf("invite token: %w", storage.ErrConflict)
	}
	if _, ok := s.orgs[inv.OrganizationID]; !ok {
		return fmt.Errorf("organization %d: %w", inv.OrganizationID, storage.ErrNotFound)
	}

	s.nextInviteID++
	inv.ID = s.nextInviteID
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}
	inv.UpdatedAt = inv.CreatedAt

	s.invites[inv.Token] = cloneInvite(inv)
	return nil
}

func (s *TenantStore) GetInviteToken(_ context.Context, token string) (*api.InviteToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, ok := s.invites[token]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneInvite(inv), nil
}

// RedeemInvite marks the invite used and inserts the membership under one
// lock, so exactly one of several concurrent redemptions succeeds.
func (s *TenantStore) RedeemInvite(_ context.Context, token string, membershipID int64, now time.Time) (*api.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invites[token]
	if !ok || api.ValidateInviteTransition(inv.State(now), api.InviteStateUsed) != nil {
		return nil, storage.ErrInviteUnavailable
	}
	if _, exists := s.memberships[membershipID]; exists {
		return nil, fmt.Errorf("membership %d: %w", membershipID, storage.ErrConflict)
	}

	usedBy, usedAt := membershipID, now
	inv.UsedByMembershipID = &usedBy
	inv.UsedAt = &usedAt
	inv.UpdatedAt = now

	m := &api.Membership{ID: membershipID, OrganizationID: inv.OrganizationID, CreatedAt: now}
	s.memberships[membershipID] = m

	out := *m
	return &out, nil
}

// CreateSession inserts a new active session.
func (s *TenantStore) CreateSession(_ context.Context, sess *api.SessionToken) error {
	if err := api.ValidateSessionTransition("", sess.State()); err != nil {
		return fmt.Errorf("session %s: %w", sess.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[sess.ID]; exists {
		return fmt.Errorf("session %s: %w", sess.ID, storage.ErrConflict)
	}
	if _, exists := s.refreshIndex[sess.RefreshToken]; exists {
		return fmt.Errorf("session refresh token: %w", storage.ErrConflict)
	}
	if _, exists := s.accessIndex[sess.AccessToken]; exists {
		return fmt.Errorf("session access token: %w", storage.ErrConflict)
	}

	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now().UTC()
	}
	sess.UpdatedAt = sess.CreatedAt

	stored := *sess
	s.sessions[sess.ID] = &stored
	s.refreshIndex[sess.RefreshToken] = sess.ID
	s.accessIndex[sess.AccessToken] = sess.ID
	return nil
}

func (s *TenantStore) GetSession(_ context.Context, id string) (*api.SessionToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := *sess
	return &out, nil
}

func (s *TenantStore) GetSessionByRefreshToken(_ context.Context, refreshToken string) (*api.SessionToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.refreshIndex[refreshToken]
	if !ok {
		return nil, storage.ErrNotFound
	}
	out := *s.sessions[id]
	return &out, nil
}

// RevokeSession flips an active session to revoked. Reports false when
// the session is absent or already revoked.
func (s *TenantStore) RevokeSession(_ context.Context, id string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok || api.ValidateSessionTransition(sess.State(), api.SessionStateRevoked) != nil {
		return false, nil
	}
	sess.Revoked = true
	sess.UpdatedAt = now
	return true, nil
}

func (s *TenantStore) RevokeAllSessions(_ context.Context, membershipID int64, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, sess := range s.sessions {
		if sess.MembershipID != membershipID || sess.Revoked {
			continue
		}
		sess.Revoked = true
		sess.UpdatedAt = now
		n++
	}
	return n, nil
}

// ListSessions returns the membership's sessions ordered newest first.
func (s *TenantStore) ListSessions(_ context.Context, membershipID int64) ([]*api.SessionToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*api.SessionToken
	for _, sess := range s.sessions {
		if sess.MembershipID == membershipID {
			c := *sess
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// HealthCheck always returns nil for the in-memory store.
func (s *TenantStore) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *TenantStore) Close() error {
	return nil
}

func cloneInvite(inv *api.InviteToken) *api.InviteToken {
	out := *inv
	if inv.UsedByMembershipID != nil {
		v := *inv.UsedByMembershipID
		out.UsedByMembershipID = &v
	}
	if inv.UsedAt != nil {
		v := *inv.UsedAt
		out.UsedAt = &v
	}
	return &out
}
