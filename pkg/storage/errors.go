package storage

import "errors"

// Sentinel errors for storage operations. Adapters wrap them with
// fmt.Errorf("...: %w") so callers match with errors.Is.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned when a write violates a uniqueness rule.
	ErrConflict = errors.New("record already exists")

	// ErrInviteUnavailable is returned by RedeemInvite when the token is
	// absent, already used, or expired at the moment of redemption.
	ErrInviteUnavailable = errors.New("invite token unavailable")
)
