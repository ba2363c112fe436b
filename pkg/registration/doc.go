// Package registration creates organizations with their first admin and
// admits new members through invite tokens.
//
// A registration writes to both stores: the credential goes to the
// credential store, the organization or membership to the tenant store.
// The two writes run as a saga; a failure in the tenant store deletes the
// credential that was just created. Email and identifier pre-checks are
// advisory, the stores' unique indexes are authoritative.
package registration
