// Package memory provides in-memory implementations of storage.CredentialStore
// and storage.TenantStore for tests and single-process development. Data is
// lost when the process exits.
//
// Each store guards its maps with its own mutex, so the two stores behave
// as independent databases. Records are copied on the way in and out;
// callers never share memory with the store.
package memory
