package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/exammaker/pkg/api"
	"github.com/rhuss/exammaker/pkg/storage"
)

// CredentialStore is a PostgreSQL-backed storage.CredentialStore.
type CredentialStore struct {
	pool *pgxpool.Pool
}

var _ storage.CredentialStore = (*CredentialStore)(nil)

// NewCredentialStore opens the credential database.
func NewCredentialStore(ctx context.Context, cfg Config) (*CredentialStore, error) {
	pool, err := openPool(ctx, cfg, credentialMigrations)
	if err != nil {
		return nil, err
	}
	return &CredentialStore{pool: pool}, nil
}

const credentialColumns = `id, email, name, password_hash, password_salt, created_at`

// CreateCredential inserts c and fills in its ID and CreatedAt.
func (s *CredentialStore) CreateCredential(ctx context.Context, c *api.Credential) error {
	c.Email = api.NormalizeEmail(c.Email)
	err := s.pool.QueryRow(ctx, `
		INSERT INTO credentials (email, name, password_hash, password_salt)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, c.Email, c.Name, c.PasswordHash, c.PasswordSalt).Scan(&c.ID, &c.CreatedAt)
	return mapError(err, "inserting credential")
}

func (s *CredentialStore) GetCredential(ctx context.Context, id int64) (*api.Credential, error) {
	return s.getCredential(ctx, `SELECT `+credentialColumns+` FROM credentials WHERE id = $1`, id)
}

func (s *CredentialStore) GetCredentialByEmail(ctx context.Context, email string) (*api.Credential, error) {
	return s.getCredential(ctx,
		`SELECT `+credentialColumns+` FROM credentials WHERE lower(email) = $1`,
		api.NormalizeEmail(email))
}

func (s *CredentialStore) getCredential(ctx context.Context, query string, arg any) (*api.Credential, error) {
	var c api.Credential
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&c.ID, &c.Email, &c.Name, &c.PasswordHash, &c.PasswordSalt, &c.CreatedAt,
	)
	if err != nil {
		return nil, mapError(err, "querying credential")
	}
	return &c, nil
}

func (s *CredentialStore) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM credentials WHERE lower(email) = $1)`,
		api.NormalizeEmail(email),
	).Scan(&exists)
	return exists, mapError(err, "checking email")
}

// DeleteCredential removes a credential; deleting an absent row succeeds.
func (s *CredentialStore) DeleteCredential(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM credentials WHERE id = $1`, id)
	return mapError(err, "deleting credential")
}

// HealthCheck verifies database connectivity.
func (s *CredentialStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all pool connections.
func (s *CredentialStore) Close() error {
	s.pool.Close()
	return nil
}
