package engine

import "time"

// SuccessOutcome captures the observable output of a command that exited
// with code zero inside its time budget.
type SuccessOutcome struct {
	Stdout         string    `json:"stdout"`
	Stderr         string    `json:"stderr"`
	ExitCode       int       `json:"exit_code"`
	DurationMillis int64     `json:"duration_ms"`
	CompletedAt    time.Time `json:"completed_at"`
}

// FailureOutcome captures the observable output of a command that faulted.
// Partial stdout and stderr captured before the fault are preserved.
type FailureOutcome struct {
	Stdout         string          `json:"stdout"`
	Stderr         string          `json:"stderr"`
	ExitCode       int             `json:"exit_code"`
	DurationMillis int64           `json:"duration_ms"`
	CompletedAt    time.Time       `json:"completed_at"`
	Error          *ExecutionError `json:"error"`
}

// CommandResult is the outcome of a single command execution. Exactly one of
// Success or Failure is non-nil; the constructors enforce this.
type CommandResult struct {
	Success *SuccessOutcome `json:"success,omitempty"`
	Failure *FailureOutcome `json:"failure,omitempty"`
}

// Succeeded reports whether the result carries a success outcome.
func (commandResult CommandResult) Succeeded() bool {
	return commandResult.Success != nil
}

// Category returns the failure category, or the empty string for successes.
func (commandResult CommandResult) Category() FailureCategory {
	if commandResult.Failure == nil || commandResult.Failure.Error == nil {
		return ""
	}
	return commandResult.Failure.Error.Category
}

func newSuccessResult(outcome SuccessOutcome) CommandResult {
	return CommandResult{Success: &outcome}
}

func newFailureResult(outcome FailureOutcome) CommandResult {
	return CommandResult{Failure: &outcome}
}
