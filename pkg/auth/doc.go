// Package auth authenticates requests to the exammaker API.
//
// Authentication uses a chain-of-responsibility pattern with three-outcome
// voting: each authenticator returns Yes (identity found), No (credentials
// invalid), or Abstain (can't handle). A request on which every
// authenticator abstains is rejected.
//
// Auth is implemented as HTTP middleware. On success the middleware
// places the caller's Identity in the request context, where handlers and
// collaborating services read the membership and organization scope.
package auth
