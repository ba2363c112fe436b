package auth

import (
	"context"
	"errors"
	"net/http"
)

// AuthDecision is an authenticator's vote on a request.
type AuthDecision int

const (
	// Yes accepts the request with the returned identity.
	Yes AuthDecision = iota

	// No rejects the request. Later authenticators are not consulted.
	No

	// Abstain passes the request to the next authenticator, e.g. when no
	// credentials of the authenticator's kind are present.
	Abstain
)

// AuthResult is the outcome of one Authenticate call. Identity is set for
// Yes and Err for No.
type AuthResult struct {
	Decision AuthDecision
	Identity *Identity
	Err      error
}

// Identity represents an authenticated member. It is the only thing the
// rest of the system learns about the caller.
type Identity struct {
	// Subject is the unique identifier (required, non-empty). For members
	// it is the decimal membership id.
	Subject string

	MembershipID      int64
	Email             string
	Name              string
	OrganizationID    int64
	OrganizationTitle string

	// SessionID is the session the access token belongs to.
	SessionID string
}

// Authenticator votes on the credentials carried by a request.
type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) AuthResult
}

// Sentinel errors.
var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrTooManyRequests = errors.New("rate limit exceeded")
)

// AuthChain asks each authenticator in turn until one votes Yes or No.
type AuthChain struct {
	Authenticators []Authenticator
}

// Authenticate runs the chain. When every authenticator abstains the
// result is No with ErrUnauthenticated: there is no anonymous member.
func (c *AuthChain) Authenticate(ctx context.Context, r *http.Request) AuthResult {
	for _, authn := range c.Authenticators {
		result := authn.Authenticate(ctx, r)
		if result.Decision != Abstain {
			return result
		}
	}

	return AuthResult{
		Decision: No,
		Err:      ErrUnauthenticated,
	}
}
