// Package jwt provides the bearer-token authenticator for member access
// tokens.
//
// Tokens are HS256 JWTs issued by the session package. A token is accepted
// only if its signature, issuer, audience and expiry verify and its
// session has not been revoked.
package jwt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/rhuss/exammaker/pkg/auth"
	"github.com/rhuss/exammaker/pkg/session"
)

// TokenParser verifies an access token and returns its claims.
type TokenParser interface {
	Parse(raw string) (*session.Claims, error)
}

// RevocationChecker reports whether a session may still be used. Any
// error is a rejection.
type RevocationChecker interface {
	Check(ctx context.Context, sessionID string) error
}

// Authenticator validates member access tokens.
type Authenticator struct {
	parser  TokenParser
	checker RevocationChecker
}

// New creates a JWT authenticator. checker may be nil only in tests that
// do not exercise revocation.
func New(parser TokenParser, checker RevocationChecker) *Authenticator {
	return &Authenticator{parser: parser, checker: checker}
}

// Authenticate extracts a bearer token from the Authorization header,
// validates it, and returns an identity on success.
//
// Decision outcomes:
//   - Abstain: no Authorization header or not a Bearer scheme
//   - No: bearer token present but invalid (expired, wrong issuer, bad signature, revoked, etc.)
//   - Yes: valid token of a live session with populated Identity
func (a *Authenticator) Authenticate(ctx context.Context, r *http.Request) auth.AuthResult {
	header := r.Header.Get("Authorization")
	if header == "" {
		return auth.AuthResult{Decision: auth.Abstain}
	}

	scheme, tokenStr, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return auth.AuthResult{Decision: auth.Abstain}
	}

	tokenStr = strings.TrimSpace(tokenStr)
	if tokenStr == "" {
		return auth.AuthResult{
			Decision: auth.No,
			Err:      errors.New("empty bearer token"),
		}
	}

	claims, err := a.parser.Parse(tokenStr)
	if err != nil {
		slog.Debug("JWT validation failed", "error", err)
		return auth.AuthResult{
			Decision: auth.No,
			Err:      fmt.Errorf("invalid JWT: %w", err),
		}
	}

	if a.checker != nil {
		if err := a.checker.Check(ctx, claims.ID); err != nil {
			return auth.AuthResult{
				Decision: auth.No,
				Err:      fmt.Errorf("session %s rejected: %w", claims.ID, err),
			}
		}
	}

	membershipID, err := claims.MembershipID()
	if err != nil {
		return auth.AuthResult{
			Decision: auth.No,
			Err:      fmt.Errorf("invalid JWT subject: %w", err),
		}
	}

	return auth.AuthResult{
		Decision: auth.Yes,
		Identity: &auth.Identity{
			Subject:           strconv.FormatInt(membershipID, 10),
			MembershipID:      membershipID,
			Email:             claims.Email,
			Name:              claims.Name,
			OrganizationID:    claims.OrganizationID,
			OrganizationTitle: claims.OrganizationTitle,
			SessionID:         claims.ID,
		},
	}
}
