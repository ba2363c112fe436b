package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rhuss/exammaker/pkg/api"
	"github.com/rhuss/exammaker/pkg/saga"
	"github.com/rhuss/exammaker/pkg/storage"
)

// Saga and step names used in logs and metrics.
const (
	sagaCreateOrganization = "create_organization"
	sagaAcceptInvite       = "accept_invite"

	stepCredential   = "credential"
	stepOrganization = "organization"
	stepRedeemInvite = "redeem_invite"
)

// Default invite lifetimes.
const (
	DefaultInviteTTL = 72 * time.Hour
	MaxInviteTTL     = 30 * 24 * time.Hour
)

// PasswordHasher derives a password hash. A nil salt requests a fresh one.
type PasswordHasher interface {
	Hash(password string, salt []byte) (hash, usedSalt []byte, err error)
}

// Coordinator runs registrations across the credential and tenant stores.
type Coordinator struct {
	credentials storage.CredentialStore
	tenants     storage.TenantStore
	hasher      PasswordHasher
	logger      *slog.Logger

	now              func() time.Time
	validation       api.ValidationConfig
	defaultInviteTTL time.Duration
	maxInviteTTL     time.Duration
	undoTimeout      time.Duration
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithValidation overrides api.DefaultValidationConfig.
func WithValidation(cfg api.ValidationConfig) Option {
	return func(c *Coordinator) { c.validation = cfg }
}

// WithInviteTTL sets the lifetime used when a caller does not ask for one
// and the largest lifetime a caller may ask for.
func WithInviteTTL(defaultTTL, maxTTL time.Duration) Option {
	return func(c *Coordinator) {
		c.defaultInviteTTL = defaultTTL
		c.maxInviteTTL = maxTTL
	}
}

// WithUndoTimeout bounds saga compensation.
func WithUndoTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.undoTimeout = d }
}

// New creates a Coordinator. A nil logger uses slog.Default().
func New(credentials storage.CredentialStore, tenants storage.TenantStore, hasher PasswordHasher, logger *slog.Logger, opts ...Option) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Coordinator{
		credentials:      credentials,
		tenants:          tenants,
		hasher:           hasher,
		logger:           logger,
		now:              time.Now,
		validation:       api.DefaultValidationConfig(),
		defaultInviteTTL: DefaultInviteTTL,
		maxInviteTTL:     MaxInviteTTL,
		undoTimeout:      saga.DefaultUndoTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateOrganization registers a new organization and its admin. The
// admin's credential id becomes the admin's membership id.
func (c *Coordinator) CreateOrganization(ctx context.Context, req CreateOrganizationRequest) error {
	req.normalize()
	if err := req.validate(c.validation); err != nil {
		return err
	}

	if err := c.checkEmailFree(ctx, req.AdminEmail, "admin_email"); err != nil {
		return err
	}
	exists, err := c.tenants.OrganizationIdentifierExists(ctx, req.OrganizationIdentifier)
	if err != nil {
		return c.serverError("checking organization identifier", err)
	}
	if exists {
		return identifierTaken()
	}

	cred, err := c.newCredential(req.AdminEmail, req.AdminName, req.AdminPassword)
	if err != nil {
		return err
	}
	org := &api.Organization{
		Title:      req.OrganizationTitle,
		Identifier: req.OrganizationIdentifier,
	}

	err = c.saga(sagaCreateOrganization).Run(ctx,
		c.credentialStep(cred),
		saga.Step{
			Name: stepOrganization,
			Do: func(ctx context.Context) error {
				return c.tenants.CreateOrganization(ctx, org, cred.ID)
			},
		},
	)
	if err != nil {
		return c.sagaError(err, "admin_email", func(serr *saga.Error) error {
			if serr.Step == stepOrganization && errors.Is(serr.Err, storage.ErrConflict) {
				return identifierTaken()
			}
			return nil
		})
	}

	c.logger.Info("organization registered",
		"organization_id", org.ID,
		"organization_identifier", org.Identifier,
		"membership_id", cred.ID,
	)
	return nil
}

// AcceptInvite registers a member of the invite's organization and
// consumes the invite. Of several concurrent redemptions of one token at
// most one succeeds; the others see an invite_used error and leave no
// credential behind.
func (c *Coordinator) AcceptInvite(ctx context.Context, req AcceptInviteRequest) error {
	req.normalize()
	if err := req.validate(c.validation); err != nil {
		return err
	}

	if err := c.checkInvite(ctx, req.Token); err != nil {
		return err
	}
	if err := c.checkEmailFree(ctx, req.Email, "email"); err != nil {
		return err
	}

	cred, err := c.newCredential(req.Email, req.Name, req.Password)
	if err != nil {
		return err
	}

	var membership *api.Membership
	err = c.saga(sagaAcceptInvite).Run(ctx,
		c.credentialStep(cred),
		saga.Step{
			Name: stepRedeemInvite,
			Do: func(ctx context.Context) error {
				m, err := c.tenants.RedeemInvite(ctx, req.Token, cred.ID, c.now())
				membership = m
				return err
			},
		},
	)
	if err != nil {
		return c.sagaError(err, "email", func(serr *saga.Error) error {
			if serr.Step != stepRedeemInvite || !errors.Is(serr.Err, storage.ErrInviteUnavailable) {
				return nil
			}
			// Lost a race or crossed the expiry; report whichever applies now.
			if err := c.checkInvite(context.WithoutCancel(ctx), req.Token); err != nil {
				return err
			}
			return api.NewInviteExpiredError(api.CodeInviteUsed)
		})
	}

	c.logger.Info("invite accepted",
		"organization_id", membership.OrganizationID,
		"membership_id", membership.ID,
	)
	return nil
}

// CreateInvite issues a fresh invite into the organization of
// membershipID. A zero ttl uses the configured default.
func (c *Coordinator) CreateInvite(ctx context.Context, membershipID int64, ttl time.Duration) (*api.InviteToken, error) {
	m, err := c.tenants.GetMembership(ctx, membershipID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, api.NewUnauthorizedError()
	}
	if err != nil {
		return nil, c.serverError("loading membership", err)
	}

	if ttl == 0 {
		ttl = c.defaultInviteTTL
	}
	if err := api.ValidateInviteTTL(ttl, c.maxInviteTTL); err != nil {
		return nil, err
	}

	now := c.now()
	inv := &api.InviteToken{
		OrganizationID:        m.OrganizationID,
		CreatedByMembershipID: membershipID,
		Token:                 api.NewInviteToken(),
		CreatedAt:             now,
		ExpiresAt:             now.Add(ttl),
	}
	if err := c.tenants.CreateInviteToken(ctx, inv); err != nil {
		return nil, c.serverError("creating invite token", err)
	}

	c.logger.Info("invite created",
		"organization_id", inv.OrganizationID,
		"created_by", membershipID,
		"expires_at", inv.ExpiresAt,
	)
	return inv, nil
}

// checkInvite maps an invite lookup to NotFound or Expired errors.
func (c *Coordinator) checkInvite(ctx context.Context, token string) error {
	if !api.ValidateOpaqueToken(token) {
		return api.NewInviteNotFoundError()
	}
	inv, err := c.tenants.GetInviteToken(ctx, token)
	if errors.Is(err, storage.ErrNotFound) {
		return api.NewInviteNotFoundError()
	}
	if err != nil {
		return c.serverError("loading invite token", err)
	}

	switch inv.State(c.now()) {
	case api.InviteStateUsed:
		return api.NewInviteExpiredError(api.CodeInviteUsed)
	case api.InviteStateExpired:
		return api.NewInviteExpiredError(api.CodeInviteExpired)
	}
	return nil
}

func (c *Coordinator) checkEmailFree(ctx context.Context, email, param string) error {
	exists, err := c.credentials.EmailExists(ctx, email)
	if err != nil {
		return c.serverError("checking email", err)
	}
	if exists {
		return emailTaken(param)
	}
	return nil
}

func (c *Coordinator) newCredential(email, name, password string) (*api.Credential, error) {
	hash, salt, err := c.hasher.Hash(password, nil)
	if err != nil {
		return nil, c.serverError("hashing password", err)
	}
	return &api.Credential{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		PasswordSalt: salt,
	}, nil
}

// credentialStep inserts cred into the credential store and deletes it
// on compensation.
func (c *Coordinator) credentialStep(cred *api.Credential) saga.Step {
	return saga.Step{
		Name: stepCredential,
		Do: func(ctx context.Context) error {
			return c.credentials.CreateCredential(ctx, cred)
		},
		Undo: func(ctx context.Context) error {
			return c.credentials.DeleteCredential(ctx, cred.ID)
		},
	}
}

func (c *Coordinator) saga(name string) *saga.Saga {
	return saga.New(name, c.logger, saga.WithUndoTimeout(c.undoTimeout))
}

// sagaError maps a failed registration saga to an API error. classify may
// claim step-specific failures; a late email conflict in the credential
// step and anything else fall through to the common mapping.
func (c *Coordinator) sagaError(err error, emailParam string, classify func(*saga.Error) error) error {
	var serr *saga.Error
	if !errors.As(err, &serr) {
		return c.serverError("registration", err)
	}
	if mapped := classify(serr); mapped != nil {
		return mapped
	}
	if serr.Step == stepCredential && errors.Is(serr.Err, storage.ErrConflict) {
		return emailTaken(emailParam)
	}
	return c.serverError("registration", err)
}

func (c *Coordinator) serverError(op string, err error) error {
	c.logger.Error("registration failed", "op", op, "error", err.Error())
	return api.NewServerError(fmt.Sprintf("%s failed", op))
}

func emailTaken(param string) error {
	return api.NewConflictError(api.CodeEmailTaken, param, "email is already registered")
}

func identifierTaken() error {
	return api.NewConflictError(api.CodeIdentifierTaken, "organization_identifier",
		"organization identifier is already taken")
}
