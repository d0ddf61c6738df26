// Package authkit is the authentication and session-lifecycle engine for a
// multi-user account system: credential verification, access/refresh token
// issuance and rotation, revocation through a per-account token-version
// counter, and TOTP second-factor enrollment and login challenges.
//
// The package is a library, not a service. Callers supply the account store
// through [AccountProvider], a Redis client for the shared session state
// (refresh-token registry, one-time-code stores, login throttle), and an
// optional [Notifier] for best-effort email/SMS delivery. HTTP routing,
// domain record storage, and message rendering stay on the caller's side of
// the boundary.
//
// # Revocation model
//
// Access tokens are stateless. Each one snapshots the account's tokenVersion
// at issuance; [Engine.Authenticate] compares that snapshot against the live
// account and rejects on mismatch. Bumping the counter (login, logout,
// password change/reset) therefore invalidates every outstanding access
// token without any per-token storage. Refresh tokens are the only
// server-tracked credential: one active record per account, rotated in place
// on every use, with rotation of an already-rotated token treated as replay.
//
// # Concurrency
//
// Engine methods are safe for concurrent use after [Builder.Build]. There is
// no in-process shared mutable state beyond the backing stores; conditional
// updates (refresh rotation, code consumption) are serialized through Redis
// transactions, so concurrent service instances behave like one.
package authkit
