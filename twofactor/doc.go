// Package twofactor provides the time-based one-time-code capability behind
// second-factor enrollment and login challenges.
package twofactor
