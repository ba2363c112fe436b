package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/rhuss/exammaker/pkg/api"
	"github.com/rhuss/exammaker/pkg/observability"
	"github.com/rhuss/exammaker/pkg/storage"
)

// PasswordVerifier hashes and verifies passwords.
type PasswordVerifier interface {
	Hash(password string, salt []byte) (hash, usedSalt []byte, err error)
	Verify(password string, hash, salt []byte) bool
}

// TokenPair is the result of a login or refresh.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	SessionID    string    `json:"-"`
	Name         string    `json:"name,omitempty"`
	Email        string    `json:"email,omitempty"`
}

// Issuer logs members in and rotates and revokes their sessions.
type Issuer struct {
	credentials storage.CredentialStore
	tenants     storage.TenantStore
	hasher      PasswordVerifier
	signer      *Signer
	logger      *slog.Logger
	now         func() time.Time

	// dummyHash and dummySalt are verified against when the email is
	// unknown, so both login failure paths cost one hash.
	dummyHash []byte
	dummySalt []byte
}

// IssuerOption configures an Issuer.
type IssuerOption func(*Issuer)

// WithClock overrides time.Now for session timestamps.
func WithClock(now func() time.Time) IssuerOption {
	return func(i *Issuer) { i.now = now }
}

// NewIssuer creates an Issuer. It hashes one throwaway password to prime
// the unknown-email path.
func NewIssuer(credentials storage.CredentialStore, tenants storage.TenantStore, hasher PasswordVerifier, signer *Signer, logger *slog.Logger, opts ...IssuerOption) (*Issuer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	hash, salt, err := hasher.Hash(api.NewRefreshToken(), nil)
	if err != nil {
		return nil, fmt.Errorf("priming password verifier: %w", err)
	}
	i := &Issuer{
		credentials: credentials,
		tenants:     tenants,
		hasher:      hasher,
		signer:      signer,
		logger:      logger,
		now:         time.Now,
		dummyHash:   hash,
		dummySalt:   salt,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Login verifies email and password and issues a new session. Every
// failure returns the same unauthorized error.
func (i *Issuer) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	cred, err := i.credentials.GetCredentialByEmail(ctx, api.NormalizeEmail(email))
	if errors.Is(err, storage.ErrNotFound) {
		i.hasher.Verify(password, i.dummyHash, i.dummySalt)
		return nil, i.reject("unknown_email")
	}
	if err != nil {
		return nil, i.serverError("loading credential", err)
	}

	if !i.hasher.Verify(password, cred.PasswordHash, cred.PasswordSalt) {
		return nil, i.reject("bad_password")
	}

	_, org, err := i.tenants.GetMembershipOrganization(ctx, cred.ID)
	if errors.Is(err, storage.ErrNotFound) {
		i.logger.Warn("credential without membership", "membership_id", cred.ID)
		return nil, i.reject("no_membership")
	}
	if err != nil {
		return nil, i.serverError("loading membership", err)
	}

	pair, err := i.mint(ctx, cred, org)
	if err != nil {
		return nil, err
	}
	observability.SessionsIssuedTotal.WithLabelValues("login").Inc()
	i.logger.Info("login", "membership_id", cred.ID, "session_id", pair.SessionID)
	return pair, nil
}

// Refresh exchanges a refresh token for a new pair. The old session is
// revoked with a conditional write, so a token is accepted at most once
// even under concurrent use.
func (i *Issuer) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if !api.ValidateOpaqueToken(refreshToken) {
		return nil, i.reject("malformed_refresh")
	}

	sess, err := i.tenants.GetSessionByRefreshToken(ctx, refreshToken)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, i.reject("unknown_refresh")
	}
	if err != nil {
		return nil, i.serverError("loading session", err)
	}

	now := i.now()
	switch {
	case sess.Revoked:
		i.logger.Warn("revoked refresh token presented",
			"session_id", sess.ID, "membership_id", sess.MembershipID)
		return nil, i.reject("revoked_refresh")
	case sess.RefreshExpired(now):
		return nil, i.reject("expired_refresh")
	}

	flipped, err := i.tenants.RevokeSession(ctx, sess.ID, now)
	if err != nil {
		return nil, i.serverError("revoking session", err)
	}
	if !flipped {
		return nil, i.reject("refresh_race")
	}
	observability.SessionsRevokedTotal.WithLabelValues("rotated").Inc()

	cred, err := i.credentials.GetCredential(ctx, sess.MembershipID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, i.reject("credential_gone")
	}
	if err != nil {
		return nil, i.serverError("loading credential", err)
	}
	_, org, err := i.tenants.GetMembershipOrganization(ctx, sess.MembershipID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, i.reject("no_membership")
	}
	if err != nil {
		return nil, i.serverError("loading membership", err)
	}

	pair, err := i.mint(ctx, cred, org)
	if err != nil {
		return nil, err
	}
	observability.SessionsIssuedTotal.WithLabelValues("refresh").Inc()
	i.logger.Info("session refreshed",
		"membership_id", cred.ID, "old_session_id", sess.ID, "session_id", pair.SessionID)
	return pair, nil
}

// Logout revokes every active session of the membership and returns how
// many were revoked. Calling it again is harmless.
func (i *Issuer) Logout(ctx context.Context, membershipID int64) (int64, error) {
	n, err := i.tenants.RevokeAllSessions(ctx, membershipID, i.now())
	if err != nil {
		return 0, i.serverError("revoking sessions", err)
	}
	observability.SessionsRevokedTotal.WithLabelValues("logout").Add(float64(n))
	i.logger.Info("logout", "membership_id", membershipID, "revoked", n)
	return n, nil
}

// ActiveSessions counts the membership's sessions that are neither
// revoked nor past their refresh expiry.
func (i *Issuer) ActiveSessions(ctx context.Context, membershipID int64) (int, error) {
	sessions, err := i.tenants.ListSessions(ctx, membershipID)
	if err != nil {
		return 0, i.serverError("listing sessions", err)
	}
	now := i.now()
	n := 0
	for _, s := range sessions {
		if !s.Revoked && !s.RefreshExpired(now) {
			n++
		}
	}
	return n, nil
}

// mint signs a new access token, draws a refresh token and persists the
// session row.
func (i *Issuer) mint(ctx context.Context, cred *api.Credential, org *api.Organization) (*TokenPair, error) {
	now := i.now()
	sessionID := api.NewSessionID()
	expiresAt := now.Add(i.signer.AccessTTL())

	access, err := i.signer.Sign(Claims{
		Email:             cred.Email,
		Name:              cred.Name,
		OrganizationID:    org.ID,
		OrganizationTitle: org.Title,
		RegisteredClaims: jwtlib.RegisteredClaims{
			ID:        sessionID,
			Subject:   strconv.FormatInt(cred.ID, 10),
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
		},
	})
	if err != nil {
		return nil, i.serverError("signing access token", err)
	}

	sess := &api.SessionToken{
		ID:               sessionID,
		MembershipID:     cred.ID,
		AccessToken:      access,
		RefreshToken:     api.NewRefreshToken(),
		CreatedAt:        now,
		RefreshExpiresAt: now.Add(i.signer.RefreshTTL()),
	}
	if err := i.tenants.CreateSession(ctx, sess); err != nil {
		return nil, i.serverError("persisting session", err)
	}

	return &TokenPair{
		AccessToken:  sess.AccessToken,
		RefreshToken: sess.RefreshToken,
		ExpiresAt:    expiresAt,
		SessionID:    sess.ID,
		Name:         cred.Name,
		Email:        cred.Email,
	}, nil
}

func (i *Issuer) reject(reason string) error {
	observability.AuthFailuresTotal.WithLabelValues(reason).Inc()
	i.logger.Debug("session request rejected", "reason", reason)
	return api.NewUnauthorizedError()
}

func (i *Issuer) serverError(op string, err error) error {
	i.logger.Error("session operation failed", "op", op, "error", err.Error())
	return api.NewServerError(op + " failed")
}
