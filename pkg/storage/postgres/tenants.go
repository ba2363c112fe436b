package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rhuss/exammaker/pkg/api"
	"github.com/rhuss/exammaker/pkg/storage"
)

// TenantStore is a PostgreSQL-backed storage.TenantStore.
type TenantStore struct {
	pool *pgxpool.Pool
}

var _ storage.TenantStore = (*TenantStore)(nil)

// NewTenantStore opens the tenant database.
func NewTenantStore(ctx context.Context, cfg Config) (*TenantStore, error) {
	pool, err := openPool(ctx, cfg, tenantMigrations)
	if err != nil {
		return nil, err
	}
	return &TenantStore{pool: pool}, nil
}

func (s *TenantStore) OrganizationIdentifierExists(ctx context.Context, identifier string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM organizations WHERE identifier = $1)`,
		identifier,
	).Scan(&exists)
	return exists, mapError(err, "checking identifier")
}

// CreateOrganization inserts the organization and its founding membership
// in one transaction.
func (s *TenantStore) CreateOrganization(ctx context.Context, org *api.Organization, membershipID int64) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO organizations (title, identifier)
			VALUES ($1, $2)
			RETURNING id, created_at, updated_at
		`, org.Title, org.Identifier).Scan(&org.ID, &org.CreatedAt, &org.UpdatedAt)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO memberships (id, organization_id, created_at)
			VALUES ($1, $2, $3)
		`, membershipID, org.ID, org.CreatedAt)
		return err
	})
	return mapError(err, "creating organization")
}

func (s *TenantStore) GetOrganization(ctx context.Context, id int64) (*api.Organization, error) {
	var org api.Organization
	err := s.pool.QueryRow(ctx, `
		SELECT id, title, identifier, created_at, updated_at
		FROM organizations WHERE id = $1
	`, id).Scan(&org.ID, &org.Title, &org.Identifier, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		return nil, mapError(err, "querying organization")
	}
	return &org, nil
}

func (s *TenantStore) GetMembership(ctx context.Context, id int64) (*api.Membership, error) {
	var m api.Membership
	err := s.pool.QueryRow(ctx, `
		SELECT id, organization_id, created_at FROM memberships WHERE id = $1
	`, id).Scan(&m.ID, &m.OrganizationID, &m.CreatedAt)
	if err != nil {
		return nil, mapError(err, "querying membership")
	}
	return &m, nil
}

func (s *TenantStore) GetMembershipOrganization(ctx context.Context, membershipID int64) (*api.Membership, *api.Organization, error) {
	var (
		m   api.Membership
		org api.Organization
	)
	err := s.pool.QueryRow(ctx, `
		SELECT m.id, m.organization_id, m.created_at,
		       o.id, o.title, o.identifier, o.created_at, o.updated_at
		FROM memberships m
		JOIN organizations o ON o.id = m.organization_id
		WHERE m.id = $1
	`, membershipID).Scan(
		&m.ID, &m.OrganizationID, &m.CreatedAt,
		&org.ID, &org.Title, &org.Identifier, &org.CreatedAt, &org.UpdatedAt,
	)
	if err != nil {
		return nil, nil, mapError(err, "querying membership organization")
	}
	return &m, &org, nil
}

// CreateInviteToken inserts inv and fills in its ID and timestamps.
func (s *TenantStore) CreateInviteToken(ctx context.Context, inv *api.InviteToken) error {
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO invite_tokens (
			organization_id, created_by_membership_id, token,
			created_at, expires_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $4)
		RETURNING id, updated_at
	`, inv.OrganizationID, inv.CreatedByMembershipID, inv.Token,
		inv.CreatedAt, inv.ExpiresAt,
	).Scan(&inv.ID, &inv.UpdatedAt)
	return mapError(err, "inserting invite token")
}

func (s *TenantStore) GetInviteToken(ctx context.Context, token string) (*api.InviteToken, error) {
	var inv api.InviteToken
	err := s.pool.QueryRow(ctx, `
		SELECT id, organization_id, created_by_membership_id, used_by_membership_id,
		       token, created_at, used_at, expires_at, updated_at
		FROM invite_tokens WHERE token = $1
	`, token).Scan(
		&inv.ID, &inv.OrganizationID, &inv.CreatedByMembershipID, &inv.UsedByMembershipID,
		&inv.Token, &inv.CreatedAt, &inv.UsedAt, &inv.ExpiresAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, mapError(err, "querying invite token")
	}
	return &inv, nil
}

// RedeemInvite claims the invite with a conditional update and inserts the
// membership in the same transaction. Concurrent redeemers serialize on
// the invite row; the losers match no row.
func (s *TenantStore) RedeemInvite(ctx context.Context, token string, membershipID int64, now time.Time) (*api.Membership, error) {
	m := &api.Membership{ID: membershipID, CreatedAt: now}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			UPDATE invite_tokens
			SET used_by_membership_id = $1, used_at = $2, updated_at = $2
			WHERE token = $3
			  AND used_by_membership_id IS NULL
			  AND expires_at > $2
			RETURNING organization_id
		`, membershipID, now, token).Scan(&m.OrganizationID)
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.ErrInviteUnavailable
		}
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO memberships (id, organization_id, created_at)
			VALUES ($1, $2, $3)
		`, m.ID, m.OrganizationID, now)
		return err
	})
	if errors.Is(err, storage.ErrInviteUnavailable) {
		return nil, err
	}
	if err != nil {
		return nil, mapError(err, "redeeming invite")
	}
	return m, nil
}

const sessionColumns = `id, membership_id, access_token, refresh_token,
	created_at, refresh_expires_at, updated_at, revoked`

// CreateSession inserts a new session row.
func (s *TenantStore) CreateSession(ctx context.Context, sess *api.SessionToken) error {
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = time.Now().UTC()
	}
	sess.UpdatedAt = sess.CreatedAt
	_, err := s.pool.Exec(ctx, `
		INSERT INTO session_tokens (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, sess.ID, sess.MembershipID, sess.AccessToken, sess.RefreshToken,
		sess.CreatedAt, sess.RefreshExpiresAt, sess.UpdatedAt, sess.Revoked)
	return mapError(err, fmt.Sprintf("inserting session %s", sess.ID))
}

func (s *TenantStore) GetSession(ctx context.Context, id string) (*api.SessionToken, error) {
	return s.getSession(ctx, `SELECT `+sessionColumns+` FROM session_tokens WHERE id = $1`, id)
}

func (s *TenantStore) GetSessionByRefreshToken(ctx context.Context, refreshToken string) (*api.SessionToken, error) {
	return s.getSession(ctx, `SELECT `+sessionColumns+` FROM session_tokens WHERE refresh_token = $1`, refreshToken)
}

func (s *TenantStore) getSession(ctx context.Context, query, arg string) (*api.SessionToken, error) {
	sess, err := scanSession(s.pool.QueryRow(ctx, query, arg))
	if err != nil {
		return nil, mapError(err, "querying session")
	}
	return sess, nil
}

// RevokeSession flips revoked from false to true. Reports whether this
// call changed the row.
func (s *TenantStore) RevokeSession(ctx context.Context, id string, now time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE session_tokens SET revoked = true, updated_at = $2
		WHERE id = $1 AND revoked = false
	`, id, now)
	if err != nil {
		return false, mapError(err, "revoking session")
	}
	return tag.RowsAffected() == 1, nil
}

func (s *TenantStore) RevokeAllSessions(ctx context.Context, membershipID int64, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE session_tokens SET revoked = true, updated_at = $2
		WHERE membership_id = $1 AND revoked = false
	`, membershipID, now)
	if err != nil {
		return 0, mapError(err, "revoking sessions")
	}
	return tag.RowsAffected(), nil
}

// ListSessions returns a membership's sessions, newest first.
func (s *TenantStore) ListSessions(ctx context.Context, membershipID int64) ([]*api.SessionToken, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+sessionColumns+` FROM session_tokens
		WHERE membership_id = $1
		ORDER BY created_at DESC, id DESC
	`, membershipID)
	if err != nil {
		return nil, mapError(err, "listing sessions")
	}
	defer rows.Close()

	var out []*api.SessionToken
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}
	return out, nil
}

func scanSession(row pgx.Row) (*api.SessionToken, error) {
	var sess api.SessionToken
	err := row.Scan(
		&sess.ID, &sess.MembershipID, &sess.AccessToken, &sess.RefreshToken,
		&sess.CreatedAt, &sess.RefreshExpiresAt, &sess.UpdatedAt, &sess.Revoked,
	)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// HealthCheck verifies database connectivity.
func (s *TenantStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all pool connections.
func (s *TenantStore) Close() error {
	s.pool.Close()
	return nil
}
