// Package session issues, rotates and revokes access/refresh token pairs.
//
// Every pair is backed by one session row in the tenant store. The row's
// id is minted before the access token is signed and travels inside it as
// the jti claim, so the id is the single key by which a session is
// refreshed, revoked and checked. The access token is a short-lived HS256
// JWT; the refresh token is an opaque random string that can be exchanged
// exactly once.
package session
