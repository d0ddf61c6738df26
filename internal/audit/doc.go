// Package audit implements the engine's internal audit event model and the
// asynchronous dispatcher that feeds caller-provided sinks.
package audit
