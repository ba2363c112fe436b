// Package storage defines the contracts of the two independently stored
// databases and the sentinel errors their adapters return.
//
// The credential store (store A) holds login identities. The tenant store
// (store B) holds organizations, memberships, invite tokens and sessions.
// The two never share a transaction; operations that span both are run as
// a saga by the registration package.
//
// Adapters live in the memory and postgres subpackages.
package storage
