// Package internal holds helpers shared by the engine and its stores that
// must never become part of the public API surface.
package internal
