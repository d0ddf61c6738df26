// Package rate implements the Redis-backed failed-login throttle.
package rate
