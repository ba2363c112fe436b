package api

import "time"

// Credential is the login identity of one human. It lives in the credential
// store and is immutable once created.
type Credential struct {
	ID           int64
	Email        string // normalized, see NormalizeEmail
	Name         string
	PasswordHash []byte
	PasswordSalt []byte
	CreatedAt    time.Time
}

// Organization is a tenant. Identifier is the globally unique slug chosen at
// registration.
type Organization struct {
	ID         int64
	Title      string
	Identifier string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Membership links a credential to its organization. ID equals the
// Credential.ID of the same human; the stores are physically separate, so
// nothing but the registration coordinator keeps the two in step.
type Membership struct {
	ID             int64
	OrganizationID int64
	CreatedAt      time.Time
}

// InviteToken grants membership in OrganizationID to whoever redeems it first
// before ExpiresAt.
type InviteToken struct {
	ID                    int64
	OrganizationID        int64
	CreatedByMembershipID int64
	UsedByMembershipID    *int64
	Token                 string
	CreatedAt             time.Time
	UsedAt                *time.Time
	ExpiresAt             time.Time
	UpdatedAt             time.Time
}

// Used reports whether the invite has been redeemed.
func (t *InviteToken) Used() bool {
	return t.UsedByMembershipID != nil
}

// Expired reports whether now is at or past the expiry.
func (t *InviteToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Valid reports whether the invite can still be redeemed at now.
func (t *InviteToken) Valid(now time.Time) bool {
	return !t.Used() && !t.Expired(now)
}

// SessionToken is the persisted record of one issued access/refresh pair.
// Rows are never deleted; Revoked only ever goes from false to true.
type SessionToken struct {
	ID               string
	MembershipID     int64
	AccessToken      string
	RefreshToken     string
	CreatedAt        time.Time
	RefreshExpiresAt time.Time
	UpdatedAt        time.Time
	Revoked          bool
}

// RefreshExpired reports whether the refresh token can no longer be exchanged.
func (s *SessionToken) RefreshExpired(now time.Time) bool {
	return !now.Before(s.RefreshExpiresAt)
}
