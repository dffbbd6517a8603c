package engine

import (
	"time"

	"github.com/shellbridge/shellbridge/internal/classify"
)

const (
	// DefaultTimeout bounds command execution when callers do not override it.
	DefaultTimeout = 120 * time.Second
	// DefaultGracePeriod is the window between the terminate signal and the
	// forceful kill when a command overruns its budget.
	DefaultGracePeriod = 5 * time.Second
)

// ExecutionOptions carries per-command settings. The zero value requests the
// engine defaults for every field.
type ExecutionOptions struct {
	// TimeoutMillis overrides DefaultTimeout when positive.
	TimeoutMillis int64
	// WorkingDirectory sets the child working directory when non-empty.
	WorkingDirectory string
	// ExtraEnvironment appends variables to the inherited environment.
	ExtraEnvironment map[string]string
	// HumanDescription labels the command in audit and diagnostic logs.
	HumanDescription string
	// ShellOverride pins the backend, bypassing classification heuristics.
	ShellOverride classify.BackendKind
	// SkipRewrite bypasses the modernization rewriter for this command.
	SkipRewrite bool
}

func (executionOptions ExecutionOptions) effectiveTimeout(configuredDefault time.Duration) time.Duration {
	if executionOptions.TimeoutMillis > 0 {
		return time.Duration(executionOptions.TimeoutMillis) * time.Millisecond
	}
	if configuredDefault > 0 {
		return configuredDefault
	}
	return DefaultTimeout
}
