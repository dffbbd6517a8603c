// Package engine orchestrates the lifecycle of cross-shell command execution:
// normalize, classify, admit into the process pool, spawn, capture output,
// enforce timeout with two-stage termination, and report a uniform result.
//
// The engine's public surface never returns an error for an expected
// operational fault; every fault category becomes a Failure CommandResult so
// adapters render failures consistently regardless of cause.
package engine
