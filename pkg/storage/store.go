package storage

import (
	"context"
	"time"

	"github.com/rhuss/exammaker/pkg/api"
)

// CredentialStore persists login identities (store A).
type CredentialStore interface {
	// CreateCredential inserts c and assigns c.ID and c.CreatedAt.
	// Returns ErrConflict when the email is already registered.
	CreateCredential(ctx context.Context, c *api.Credential) error

	GetCredential(ctx context.Context, id int64) (*api.Credential, error)

	// GetCredentialByEmail looks up a credential by normalized email.
	GetCredentialByEmail(ctx context.Context, email string) (*api.Credential, error)

	EmailExists(ctx context.Context, email string) (bool, error)

	// DeleteCredential removes a credential. It exists for saga
	// compensation only. Deleting an absent row is not an error.
	DeleteCredential(ctx context.Context, id int64) error

	HealthCheck(ctx context.Context) error
	Close() error
}

// TenantStore persists organizations, memberships, invites and sessions
// (store B).
type TenantStore interface {
	OrganizationIdentifierExists(ctx context.Context, identifier string) (bool, error)

	// CreateOrganization inserts org and the founding membership with the
	// given id in one transaction. Assigns org.ID and timestamps.
	CreateOrganization(ctx context.Context, org *api.Organization, membershipID int64) error

	GetOrganization(ctx context.Context, id int64) (*api.Organization, error)
	GetMembership(ctx context.Context, id int64) (*api.Membership, error)

	// GetMembershipOrganization resolves the organization a membership
	// belongs to.
	GetMembershipOrganization(ctx context.Context, membershipID int64) (*api.Membership, *api.Organization, error)

	// CreateInviteToken inserts inv and assigns inv.ID.
	CreateInviteToken(ctx context.Context, inv *api.InviteToken) error
	GetInviteToken(ctx context.Context, token string) (*api.InviteToken, error)

	// RedeemInvite marks the invite used by membershipID and inserts the
	// membership in one transaction. The mark is conditional on the invite
	// being unused and unexpired at now; when no row qualifies it returns
	// ErrInviteUnavailable and writes nothing.
	RedeemInvite(ctx context.Context, token string, membershipID int64, now time.Time) (*api.Membership, error)

	CreateSession(ctx context.Context, s *api.SessionToken) error
	GetSession(ctx context.Context, id string) (*api.SessionToken, error)
	GetSessionByRefreshToken(ctx context.Context, refreshToken string) (*api.SessionToken, error)

	// RevokeSession flips the session to revoked only if it is currently
	// active. Reports whether this call performed the flip.
	RevokeSession(ctx context.Context, id string, now time.Time) (bool, error)

	// RevokeAllSessions revokes every active session of a membership and
	// returns how many rows changed.
	RevokeAllSessions(ctx context.Context, membershipID int64, now time.Time) (int64, error)

	// ListSessions returns a membership's sessions, newest first.
	ListSessions(ctx context.Context, membershipID int64) ([]*api.SessionToken, error)

	HealthCheck(ctx context.Context) error
	Close() error
}
