package api

import (
	"fmt"
	"time"
)

// InviteState is the lifecycle position of an invite token. Expired is
// derived from the clock and never persisted.
type InviteState string

const (
	InviteStateCreated InviteState = "created"
	InviteStateUsed    InviteState = "used"
	InviteStateExpired InviteState = "expired"
)

// SessionState is the lifecycle position of a session token.
type SessionState string

const (
	SessionStateActive  SessionState = "active"
	SessionStateRevoked SessionState = "revoked"
)

// State returns the invite's state at now. A used invite reports Used even
// after its expiry has passed.
func (t *InviteToken) State(now time.Time) InviteState {
	switch {
	case t.Used():
		return InviteStateUsed
	case t.Expired(now):
		return InviteStateExpired
	default:
		return InviteStateCreated
	}
}

// State returns the session's persisted state.
func (s *SessionToken) State() SessionState {
	if s.Revoked {
		return SessionStateRevoked
	}
	return SessionStateActive
}

// ValidateInviteTransition checks whether an invite state transition is valid.
// An empty "from" state represents the token before it is persisted.
// Used and Expired are terminal.
func ValidateInviteTransition(from, to InviteState) *APIError {
	valid := map[InviteState][]InviteState{
		"":                 {InviteStateCreated},
		InviteStateCreated: {InviteStateUsed},
	}
	return checkTransition(valid[from], from, to)
}

// ValidateSessionTransition checks whether a session state transition is
// valid. Revoked is terminal.
func ValidateSessionTransition(from, to SessionState) *APIError {
	valid := map[SessionState][]SessionState{
		"":                 {SessionStateActive},
		SessionStateActive: {SessionStateRevoked},
	}
	return checkTransition(valid[from], from, to)
}

func checkTransition[S ~string](allowed []S, from, to S) *APIError {
	for _, s := range allowed {
		if s == to {
			return nil
		}
	}
	return NewInvalidRequestError("state",
		fmt.Sprintf("invalid transition from %s to %s", from, to))
}
