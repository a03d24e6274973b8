/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package middleware provides HTTP middleware for per-client request admission control.
//
// The Admission middleware resolves a client key for each inbound request
// (X-Forwarded-For header value, or the transport-level remote address when
// the header is absent), asks the admission.Controller whether the request
// may be admitted, and translates the outcome into an HTTP response:
// 429 when the client is over its rate limit, 400 when no client key could
// be resolved, pass-through otherwise.
//
// The package also contains a RequestID middleware and helpers for passing
// a request-scoped logger through the context, which the Admission
// middleware picks up when no explicit logger is configured.
package middleware
