package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rhuss/exammaker/pkg/api"
	"github.com/rhuss/exammaker/pkg/storage"
)

// CredentialStore is an in-memory storage.CredentialStore.
type CredentialStore struct {
	mu      sync.RWMutex
	nextID  int64
	byID    map[int64]*api.Credential
	byEmail map[string]int64
}

var _ storage.CredentialStore = (*CredentialStore)(nil)

// NewCredentialStore creates an empty credential store.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{
		byID:    make(map[int64]*api.Credential),
		byEmail: make(map[string]int64),
	}
}

// CreateCredential inserts c, assigning its ID and CreatedAt.
func (s *CredentialStore) CreateCredential(_ context.Context, c *api.Credential) error {
	email := api.NormalizeEmail(c.Email)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[email]; exists {
		return fmt.Errorf("credential %q: %w", email, storage.ErrConflict)
	}

	s.nextID++
	c.ID = s.nextID
	c.Email = email
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	s.byID[c.ID] = cloneCredential(c)
	s.byEmail[email] = c.ID
	return nil
}

func (s *CredentialStore) GetCredential(_ context.Context, id int64) (*api.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.byID[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneCredential(c), nil
}

func (s *CredentialStore) GetCredentialByEmail(_ context.Context, email string) (*api.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[api.NormalizeEmail(email)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneCredential(s.byID[id]), nil
}

func (s *CredentialStore) EmailExists(_ context.Context, email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.byEmail[api.NormalizeEmail(email)]
	return ok, nil
}

// DeleteCredential removes a credential. Absent ids are ignored.
func (s *CredentialStore) DeleteCredential(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byID[id]
	if !ok {
		return nil
	}
	delete(s.byEmail, c.Email)
	delete(s.byID, id)
	return nil
}

// HealthCheck always returns nil for the in-memory store.
func (s *CredentialStore) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *CredentialStore) Close() error {
	return nil
}

// Len returns the number of stored credentials.
func (s *CredentialStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func cloneCredential(c *api.Credential) *api.Credential {
	out := *c
	out.PasswordHash = append([]byte(nil), c.PasswordHash...)
	out.PasswordSalt = append([]byte(nil), c.PasswordSalt...)
	return &out
}
