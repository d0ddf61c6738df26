// Package token signs and verifies the three JWT classes the engine deals
// in: short-lived access tokens, long-lived refresh tokens, and pre-auth
// login challenge tokens. Each class has its own HS256 secret and lifetime.
package token
