// Package stores contains the Redis-backed state the engine shares across
// service instances: the per-account refresh-token registry and the hashed
// one-time-code stores for password reset and email verification.
//
// Records use a compact versioned binary layout and are validated on read.
// Conditional updates go through WATCH transactions so concurrent mutations
// of the same key cannot both succeed.
package stores
