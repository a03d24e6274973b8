/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package admission implements per-client request admission control
// based on a sliding 1-second window of request timestamps.
//
// Controller is the entry point: its Check method decides whether a request
// from a client (identified by an arbitrary string key, typically an IP
// address) is allowed or should be rejected, and records the attempt either
// way. A rejected client still counts as active, so sustained offenders are
// not evicted from the store prematurely.
//
// Memory is bounded by a background reclamation loop that periodically drops
// clients that have been idle longer than the configured TTL. The loop is
// started lazily on the first Check call and is stopped by Shutdown.
//
// Key properties:
//   - At most `limit` requests per client are admitted within any trailing 1-second span.
//   - Clients are fully isolated from each other.
//   - All store mutations are serialized; concurrent Check calls never lose updates.
//   - The state for a client idle longer than `entryTTL` is discarded, and a later
//     Check for the same key starts a fresh window.
package admission
