// Package auth provides pluggable authentication for the sluice gateway.
//
// Authentication uses a chain-of-responsibility pattern with three-outcome
// voting: each authenticator returns Yes (identity found), No (credentials
// invalid), or Abstain (can't handle). A configurable default voter decides
// when all authenticators abstain.
//
// Auth is implemented as HTTP middleware, keeping it decoupled from the
// engine: handlers never see an unauthorized request. The middleware also
// injects the caller identity into the request context.
package auth
