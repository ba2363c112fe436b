package session

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// MinKeyLength is the shortest accepted HMAC key in bytes.
const MinKeyLength = 32

// Claims are the access token claims. Subject carries the membership id
// and ID (jti) the session id.
type Claims struct {
	Email             string `json:"email"`
	Name              string `json:"name"`
	OrganizationID    int64  `json:"org_id"`
	OrganizationTitle string `json:"org_title"`
	jwtlib.RegisteredClaims
}

// MembershipID parses the subject claim.
func (c *Claims) MembershipID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid subject %q", c.Subject)
	}
	return id, nil
}

// SignerConfig holds the signing context. It is read once at startup.
type SignerConfig struct {
	Key        []byte
	Issuer     string
	Audience   string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Signer signs and verifies access tokens. It is immutable after
// construction and safe for concurrent use.
type Signer struct {
	key        []byte
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewSigner validates cfg and creates a Signer. The key is copied.
func NewSigner(cfg SignerConfig) (*Signer, error) {
	var errs []error
	if len(cfg.Key) < MinKeyLength {
		errs = append(errs, fmt.Errorf("signing key must be at least %d bytes, got %d", MinKeyLength, len(cfg.Key)))
	}
	if cfg.Issuer == "" {
		errs = append(errs, errors.New("issuer is required"))
	}
	if cfg.Audience == "" {
		errs = append(errs, errors.New("audience is required"))
	}
	if cfg.AccessTTL <= 0 {
		errs = append(errs, errors.New("access ttl must be positive"))
	}
	if cfg.RefreshTTL <= 0 {
		errs = append(errs, errors.New("refresh ttl must be positive"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	return &Signer{
		key:        append([]byte(nil), cfg.Key...),
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        time.Now,
	}, nil
}

// AccessTTL returns the access token lifetime.
func (s *Signer) AccessTTL() time.Duration { return s.accessTTL }

// RefreshTTL returns the refresh token lifetime.
func (s *Signer) RefreshTTL() time.Duration { return s.refreshTTL }

// Sign stamps issuer and audience onto c and returns the signed token.
// The caller sets subject, jti, iat and exp.
func (s *Signer) Sign(c Claims) (string, error) {
	c.Issuer = s.issuer
	c.Audience = jwtlib.ClaimStrings{s.audience}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, &c)
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("signing access token: %w", err)
	}
	return signed, nil
}

// Parse verifies signature, algorithm, issuer, audience and expiry, and
// returns the claims.
func (s *Signer) Parse(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwtlib.ParseWithClaims(raw, claims,
		func(*jwtlib.Token) (any, error) { return s.key, nil },
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithIssuer(s.issuer),
		jwtlib.WithAudience(s.audience),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithIssuedAt(),
		jwtlib.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("parsing access token: %w", err)
	}
	if claims.ID == "" {
		return nil, errors.New("parsing access token: missing jti")
	}
	return claims, nil
}
