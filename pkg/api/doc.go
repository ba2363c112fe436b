// Package api defines the core records of the exammaker identity and session
// service: credentials, organizations, memberships, invite tokens and session
// tokens, together with the error taxonomy, identifier generation, input
// validation and the token state machines.
//
// The package performs no I/O. Storage adapters in pkg/storage persist these
// records; pkg/registration and pkg/session operate on them.
//
// Core types:
//   - [Credential]: one per human, lives in the credential store
//   - [Organization], [Membership]: tenant records in the tenant store
//   - [InviteToken]: single-use, time-limited membership grant
//   - [SessionToken]: access/refresh pair bound to a membership
//   - [APIError]: structured error with type, code, param, and message
package api
