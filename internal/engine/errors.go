package engine

import "fmt"

const (
	errorRenderTemplateConstant          = "%s: %s"
	errorRenderWithCauseTemplate         = "%s: %s: %v"
	emptyCommandMessageConstant          = "command text must not be empty or blank"
	nulByteMessageConstant               = "command text must not contain NUL bytes"
	poolExhaustedFailureMessageConstant  = "process pool at capacity; command refused"
	spawnFailureMessageTemplateConstant  = "failed to spawn %s"
	timeoutFailureMessageTemplate        = "command exceeded its %s budget"
	cancelledFailureMessageConstant      = "command cancelled by caller"
	nonZeroExitMessageTemplateConstant   = "command exited with code %d"
	signalTerminationMessageConstant     = "command terminated by signal"
	errorCodeEmptyCommandConstant        = "EMPTY_COMMAND"
	errorCodeNulByteConstant             = "NUL_BYTE"
	errorCodePoolExhaustedConstant       = "POOL_EXHAUSTED"
	errorCodeSpawnFailedConstant         = "SPAWN_FAILED"
	errorCodeTimeoutConstant             = "TIMEOUT"
	errorCodeCancelledConstant           = "CANCELLED"
	errorCodeNonZeroExitConstant         = "NON_ZERO_EXIT"
	errorCodeSignalTerminatedConstant    = "SIGNAL_TERMINATED"
)

// FailureCategory is the machine-readable classification of an execution fault.
// Adapters use it to decide policy, for example retrying on resource
// exhaustion but never on validation failures.
type FailureCategory string

// Failure categories recognized by the engine.
const (
	FailureCategoryValidation        FailureCategory = "validation"
	FailureCategorySpawnFailure      FailureCategory = "spawn-failure"
	FailureCategoryTimeout           FailureCategory = "timeout"
	FailureCategoryCancelled         FailureCategory = "cancelled"
	FailureCategoryResourceExhausted FailureCategory = "resource-exhausted"
	FailureCategoryNonZeroExit       FailureCategory = "non-zero-exit"
)

// ExecutionError is the tagged error carried by a Failure outcome.
type ExecutionError struct {
	Category FailureCategory `json:"category"`
	Code     string          `json:"code"`
	Message  string          `json:"message"`
	Cause    error           `json:"-"`
}

// Error renders the category, message, and any wrapped cause.
func (executionError *ExecutionError) Error() string {
	if executionError.Cause != nil {
		return fmt.Sprintf(errorRenderWithCauseTemplate, executionError.Category, executionError.Message, executionError.Cause)
	}
	return fmt.Sprintf(errorRenderTemplateConstant, executionError.Category, executionError.Message)
}

// Unwrap exposes the underlying cause for errors.Is and errors.As.
func (executionError *ExecutionError) Unwrap() error {
	return executionError.Cause
}

func newEmptyCommandError() *ExecutionError {
	return &ExecutionError{
		Category: FailureCategoryValidation,
		Code:     errorCodeEmptyCommandConstant,
		Message:  emptyCommandMessageConstant,
	}
}

func newNulByteError() *ExecutionError {
	return &ExecutionError{
		Category: FailureCategoryValidation,
		Code:     errorCodeNulByteConstant,
		Message:  nulByteMessageConstant,
	}
}

func newPoolExhaustedError(admissionError error) *ExecutionError {
	return &ExecutionError{
		Category: FailureCategoryResourceExhausted,
		Code:     errorCodePoolExhaustedConstant,
		Message:  poolExhaustedFailureMessageConstant,
		Cause:    admissionError,
	}
}

func newSpawnError(executablePath string, spawnError error) *ExecutionError {
	return &ExecutionError{
		Category: FailureCategorySpawnFailure,
		Code:     errorCodeSpawnFailedConstant,
		Message:  fmt.Sprintf(spawnFailureMessageTemplateConstant, executablePath),
		Cause:    spawnError,
	}
}

func newTimeoutError(timeoutBudget string) *ExecutionError {
	return &ExecutionError{
		Category: FailureCategoryTimeout,
		Code:     errorCodeTimeoutConstant,
		Message:  fmt.Sprintf(timeoutFailureMessageTemplate, timeoutBudget),
	}
}

func newCancelledError(cancellationCause error) *ExecutionError {
	return &ExecutionError{
		Category: FailureCategoryCancelled,
		Code:     errorCodeCancelledConstant,
		Message:  cancelledFailureMessageConstant,
		Cause:    cancellationCause,
	}
}

func newNonZeroExitError(exitCode int) *ExecutionError {
	return &ExecutionError{
		Category: FailureCategoryNonZeroExit,
		Code:     errorCodeNonZeroExitConstant,
		Message:  fmt.Sprintf(nonZeroExitMessageTemplateConstant, exitCode),
	}
}

func newSignalTerminationError(waitError error) *ExecutionError {
	return &ExecutionError{
		Category: FailureCategoryNonZeroExit,
		Code:     errorCodeSignalTerminatedConstant,
		Message:  signalTerminationMessageConstant,
		Cause:    waitError,
	}
}
