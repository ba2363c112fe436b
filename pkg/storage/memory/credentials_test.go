package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/rhuss/exammaker/pkg/api"
	"github.com/rhuss/exammaker/pkg/storage"
)

func makeCredential(email string) *api.Credential {
	return &api.Credential{
		Email:        email,
		Name:         "Ann Admin",
		PasswordHash: []byte("hash"),
		PasswordSalt: []byte("salt"),
	}
}

func TestCreateAndGetCredential(t *testing.T) {
	s := NewCredentialStore()
	ctx := context.Background()

	c := makeCredential("Ann@Acme.io")
	if err := s.CreateCredential(ctx, c); err != nil {
		t.Fatalf("CreateCredential failed: %v", err)
	}
	if c.ID == 0 {
		t.Fatal("CreateCredential did not assign an ID")
	}
	if c.Email != "ann@acme.io" {
		t.Errorf("Email = %q, want %q", c.Email, "ann@acme.io")
	}

	got, err := s.GetCredential(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetCredential failed: %v", err)
	}
	if got.Name != "Ann Admin" {
		t.Errorf("Name = %q, want %q", got.Name, "Ann Admin")
	}

	byEmail, err := s.GetCredentialByEmail(ctx, "ANN@acme.io")
	if err != nil {
		t.Fatalf("GetCredentialByEmail failed: %v", err)
	}
	if byEmail.ID != c.ID {
		t.Errorf("ID = %d, want %d", byEmail.ID, c.ID)
	}
}

func TestCreateCredential_DuplicateEmailIsCaseInsensitive(t *testing.T) {
	s := NewCredentialStore()
	ctx := context.Background()

	if err := s.CreateCredential(ctx, makeCredential("ann@acme.io")); err != nil {
		t.Fatal(err)
	}
	err := s.CreateCredential(ctx, makeCredential("ANN@ACME.IO"))
	if !errors.Is(err, storage.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestCredentialIDsAreDistinct(t *testing.T) {
	s := NewCredentialStore()
	ctx := context.Background()

	a, b := makeCredential("a@acme.io"), makeCredential("b@acme.io")
	s.CreateCredential(ctx, a)
	s.CreateCredential(ctx, b)
	if a.ID == b.ID {
		t.Errorf("both credentials got ID %d", a.ID)
	}
}

func TestDeleteCredential(t *testing.T) {
	s := NewCredentialStore()
	ctx := context.Background()

	c := makeCredential("ann@acme.io")
	s.CreateCredential(ctx, c)

	if err := s.DeleteCredential(ctx, c.ID); err != nil {
		t.Fatalf("DeleteCredential failed: %v", err)
	}
	if _, err := s.GetCredential(ctx, c.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	exists, _ := s.EmailExists(ctx, "ann@acme.io")
	if exists {
		t.Error("email still reserved after delete")
	}

	// Deleting again is a no-op.
	if err := s.DeleteCredential(ctx, c.ID); err != nil {
		t.Errorf("second DeleteCredential = %v, want nil", err)
	}

	// The email can be registered again.
	if err := s.CreateCredential(ctx, makeCredential("ann@acme.io")); err != nil {
		t.Errorf("re-register after delete failed: %v", err)
	}
}

func TestGetCredential_ReturnsCopy(t *testing.T) {
	s := NewCredentialStore()
	ctx := context.Background()

	c := makeCredential("ann@acme.io")
	s.CreateCredential(ctx, c)

	got, _ := s.GetCredential(ctx, c.ID)
	got.Name = "mutated"
	got.PasswordHash[0] = 'X'

	again, _ := s.GetCredential(ctx, c.ID)
	if again.Name != "Ann Admin" || string(again.PasswordHash) != "hash" {
		t.Error("caller mutation leaked into the store")
	}
}
