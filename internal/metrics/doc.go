// Package metrics provides the engine's in-process counters. Counters are
// plain atomics; exporting them to an external system is the caller's job
// via the public Snapshot API.
package metrics
