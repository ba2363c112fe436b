// Package transport provides the HTTP middleware chain and error
// serialization shared by the exammaker HTTP adapter.
//
// # Middleware
//
// Middleware wraps an http.Handler. Built-in middleware provides panic
// recovery, request ID assignment (X-Request-ID), structured access
// logging via log/slog and a per-client-IP rate limit for the public
// endpoints. Chain composes them outermost first.
//
// # Errors
//
// Every failure leaves the service as a JSON api.ErrorResponse. The
// HTTP status is derived from the APIError type by HTTPStatusFromError,
// and errors that are not APIErrors are reported as opaque server
// errors so storage details never reach a client.
package transport
