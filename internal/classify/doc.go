// Package classify resolves the shell backend used to execute a raw command.
//
// Classification applies an ordered, first-match set of detectors over the
// command text and yields a ShellPlan describing the backend executable and
// its invocation template. Results are memoized in a bounded FIFO cache.
package classify
