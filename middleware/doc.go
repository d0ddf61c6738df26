// Package middleware exposes an HTTP adapter for bearer-token enforcement on
// top of authkit.Engine.
//
// [Guard] reads the Authorization header, calls Engine.Authenticate, and
// injects the verified identity into the request context where handlers
// retrieve it with authkit.AuthResultFromContext.
//
// This package translates HTTP semantics into Engine calls. It does not
// implement authentication logic itself; all decisions are delegated to
// Engine.Authenticate.
package middleware
