package engine

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/shellbridge/shellbridge/internal/auditlog"
	"github.com/shellbridge/shellbridge/internal/classify"
	"github.com/shellbridge/shellbridge/internal/normalize"
	"github.com/shellbridge/shellbridge/internal/procpool"
)

const (
	executorComponentNameConstant            = "executor"
	correlationIdentifierTemplateConstant    = "run-%d"
	normalizerMissingMessageConstant         = "executor requires a command normalizer"
	classifierMissingMessageConstant         = "executor requires a shell classifier"
	poolMissingMessageConstant               = "executor requires a process pool"
	runnerMissingMessageConstant             = "executor requires a process runner"
	auditLoggerMissingMessageConstant        = "executor requires an audit logger"
	diagnosticLoggerMissingMessageConstant   = "executor requires a diagnostic logger"
	commandAcceptedLogMessageConstant        = "command accepted"
	commandCompletedLogMessageConstant       = "command completed"
	commandFailedLogMessageConstant          = "command failed"
	admissionRefusedLogMessageConstant       = "admission refused"
	terminateSignalFailedLogMessageConstant  = "terminate signal failed"
	forceKillFailedLogMessageConstant        = "force kill failed"
	logFieldCorrelationConstant              = "correlation_id"
	logFieldBackendConstant                  = "backend"
	logFieldExecutableConstant               = "executable"
	logFieldCategoryConstant                 = "category"
	logFieldDurationMillisConstant           = "duration_ms"
	payloadFieldCommandConstant              = "command"
	payloadFieldBackendConstant              = "backend"
	payloadFieldDescriptionConstant          = "description"
	payloadFieldExitCodeConstant             = "exit_code"
	payloadFieldCategoryConstant             = "category"
	payloadFieldDurationMillisConstant       = "duration_ms"
)

// ErrNormalizerNotConfigured indicates a missing command normalizer dependency.
var ErrNormalizerNotConfigured = errors.New(normalizerMissingMessageConstant)

// ErrClassifierNotConfigured indicates a missing shell classifier dependency.
var ErrClassifierNotConfigured = errors.New(classifierMissingMessageConstant)

// ErrPoolNotConfigured indicates a missing process pool dependency.
var ErrPoolNotConfigured = errors.New(poolMissingMessageConstant)

// ErrRunnerNotConfigured indicates a missing process runner dependency.
var ErrRunnerNotConfigured = errors.New(runnerMissingMessageConstant)

// ErrAuditLoggerNotConfigured indicates a missing audit logger dependency.
var ErrAuditLoggerNotConfigured = errors.New(auditLoggerMissingMessageConstant)

// ErrDiagnosticLoggerNotConfigured indicates a missing diagnostic logger dependency.
var ErrDiagnosticLoggerNotConfigured = errors.New(diagnosticLoggerMissingMessageConstant)

// CommandRewriter optionally rewrites command text before normalization.
// The modernization rule engine satisfies this interface.
type CommandRewriter interface {
	Rewrite(commandText string) string
}

// Dependencies enumerates the collaborators the executor requires.
type Dependencies struct {
	Normalizer  *normalize.Normalizer
	Classifier  *classify.Classifier
	Pool        *procpool.Pool
	Runner      ProcessRunner
	AuditLogger *auditlog.Logger
	Logger      *zap.Logger
	// Rewriter is optional; when nil no modernization rewriting occurs.
	Rewriter CommandRewriter
}

// Config carries the executor-wide timing defaults.
type Config struct {
	// DefaultTimeout applies when options leave TimeoutMillis unset.
	DefaultTimeout time.Duration
	// GracePeriod is the terminate-to-kill window on timeout or cancellation.
	GracePeriod time.Duration
}

func (configuration Config) withDefaults() Config {
	if configuration.DefaultTimeout <= 0 {
		configuration.DefaultTimeout = DefaultTimeout
	}
	if configuration.GracePeriod <= 0 {
		configuration.GracePeriod = DefaultGracePeriod
	}
	return configuration
}

// Executor coordinates the full command lifecycle: validation, normalization,
// backend classification, pool admission, process launch, output capture, and
// timeout escalation. Run never returns an error; every operational fault is
// expressed as a Failure outcome.
type Executor struct {
	dependencies       Dependencies
	configuration      Config
	metrics            *PerformanceMetrics
	correlationCounter atomic.Uint64
}

// NewExecutor validates the dependencies and creates an executor.
func NewExecutor(dependencies Dependencies, configuration Config) (*Executor, error) {
	if dependencies.Normalizer == nil {
		return nil, ErrNormalizerNotConfigured
	}
	if dependencies.Classifier == nil {
		return nil, ErrClassifierNotConfigured
	}
	if dependencies.Pool == nil {
		return nil, ErrPoolNotConfigured
	}
	if dependencies.Runner == nil {
		return nil, ErrRunnerNotConfigured
	}
	if dependencies.AuditLogger == nil {
		return nil, ErrAuditLoggerNotConfigured
	}
	if dependencies.Logger == nil {
		return nil, ErrDiagnosticLoggerNotConfigured
	}
	return &Executor{
		dependencies:  dependencies,
		configuration: configuration.withDefaults(),
		metrics:       &PerformanceMetrics{},
	}, nil
}

// Metrics exposes the executor's accumulated performance counters.
func (executor *Executor) Metrics() *PerformanceMetrics {
	return executor.metrics
}

// Plan reports the shell plan that Run would use for the given command,
// after rewriting and normalization, without executing anything.
func (executor *Executor) Plan(rawCommandText string, options ExecutionOptions) (string, classify.ShellPlan) {
	preparedCommandText := executor.prepareCommandText(rawCommandText, options)
	return preparedCommandText, executor.dependencies.Classifier.Classify(preparedCommandText, options.ShellOverride)
}

// Run executes one command to completion and returns its outcome. Operational
// faults (validation, spawn failure, timeout, cancellation, pool exhaustion,
// non-zero exit) become Failure outcomes rather than returned errors.
func (executor *Executor) Run(executionContext context.Context, rawCommandText string, options ExecutionOptions) CommandResult {
	correlationIdentifier := fmt.Sprintf(correlationIdentifierTemplateConstant, executor.correlationCounter.Add(1))
	startedAt := time.Now()

	if validationError := validateCommandText(rawCommandText); validationError != nil {
		return executor.finishFailure(correlationIdentifier, rawCommandText, options, startedAt, "", "", 0, validationError)
	}

	preparedCommandText := executor.prepareCommandText(rawCommandText, options)
	shellPlan := executor.dependencies.Classifier.Classify(preparedCommandText, options.ShellOverride)

	executor.dependencies.Logger.Debug(commandAcceptedLogMessageConstant,
		zap.String(logFieldCorrelationConstant, correlationIdentifier),
		zap.String(logFieldBackendConstant, string(shellPlan.Backend)),
		zap.String(logFieldExecutableConstant, shellPlan.Executable),
	)

	slot, admissionError := executor.dependencies.Pool.TryAdmit()
	if admissionError != nil {
		executor.dependencies.Logger.Warn(admissionRefusedLogMessageConstant,
			zap.String(logFieldCorrelationConstant, correlationIdentifier),
			zap.Error(admissionError),
		)
		return executor.finishFailure(correlationIdentifier, preparedCommandText, options, startedAt, "", "", 0, newPoolExhaustedError(admissionError))
	}
	defer slot.Release()

	specification := ProcessSpecification{
		ExecutablePath:   shellPlan.Executable,
		Arguments:        shellPlan.CommandArguments(preparedCommandText),
		WorkingDirectory: options.WorkingDirectory,
		ExtraEnvironment: options.ExtraEnvironment,
	}

	handle, startError := executor.dependencies.Runner.Start(executionContext, specification)
	if startError != nil {
		if errors.Is(startError, context.Canceled) || errors.Is(startError, context.DeadlineExceeded) {
			return executor.finishFailure(correlationIdentifier, preparedCommandText, options, startedAt, "", "", 0, newCancelledError(startError))
		}
		return executor.finishFailure(correlationIdentifier, preparedCommandText, options, startedAt, "", "", 0, newSpawnError(specification.ExecutablePath, startError))
	}
	slot.Bind(handle.OSProcess())

	timeoutBudget := options.effectiveTimeout(executor.configuration.DefaultTimeout)
	waitError, executionError := executor.awaitCompletion(executionContext, handle, timeoutBudget)

	capturedStdout := handle.CapturedStdout()
	capturedStderr := handle.CapturedStderr()
	exitCode := resolveExitCode(waitError)

	if executionError != nil {
		return executor.finishFailure(correlationIdentifier, preparedCommandText, options, startedAt, capturedStdout, capturedStderr, exitCode, executionError)
	}
	if waitError != nil {
		if exitCode >= 0 {
			return executor.finishFailure(correlationIdentifier, preparedCommandText, options, startedAt, capturedStdout, capturedStderr, exitCode, newNonZeroExitError(exitCode))
		}
		return executor.finishFailure(correlationIdentifier, preparedCommandText, options, startedAt, capturedStdout, capturedStderr, exitCode, newSignalTerminationError(waitError))
	}

	return executor.finishSuccess(correlationIdentifier, preparedCommandText, options, startedAt, capturedStdout, capturedStderr)
}

// awaitCompletion blocks until the process exits, the timeout fires, or the
// context is cancelled. On timeout or cancellation it signals the process to
// terminate, waits out the grace period, and kills forcefully if needed. The
// returned wait error is always the process's final wait result.
func (executor *Executor) awaitCompletion(executionContext context.Context, handle ProcessHandle, timeoutBudget time.Duration) (error, *ExecutionError) {
	timeoutTimer := time.NewTimer(timeoutBudget)
	defer timeoutTimer.Stop()

	select {
	case waitError := <-handle.Done():
		return waitError, nil
	case <-timeoutTimer.C:
		waitError := executor.escalateTermination(handle)
		return waitError, newTimeoutError(timeoutBudget.String())
	case <-executionContext.Done():
		waitError := executor.escalateTermination(handle)
		return waitError, newCancelledError(executionContext.Err())
	}
}

// escalateTermination sends the graceful terminate signal, waits up to the
// configured grace period, then kills forcefully and waits for the final exit.
func (executor *Executor) escalateTermination(handle ProcessHandle) error {
	if terminateError := handle.SignalTerminate(); terminateError != nil {
		executor.dependencies.Logger.Debug(terminateSignalFailedLogMessageConstant, zap.Error(terminateError))
	}

	graceTimer := time.NewTimer(executor.configuration.GracePeriod)
	defer graceTimer.Stop()

	select {
	case waitError := <-handle.Done():
		return waitError
	case <-graceTimer.C:
	}

	if killError := handle.ForceKill(); killError != nil {
		executor.dependencies.Logger.Debug(forceKillFailedLogMessageConstant, zap.Error(killError))
	}
	return <-handle.Done()
}

func (executor *Executor) prepareCommandText(rawCommandText string, options ExecutionOptions) string {
	commandText := rawCommandText
	if executor.dependencies.Rewriter != nil && !options.SkipRewrite {
		commandText = executor.dependencies.Rewriter.Rewrite(commandText)
	}
	return executor.dependencies.Normalizer.Normalize(commandText)
}

func (executor *Executor) finishSuccess(correlationIdentifier string, commandText string, options ExecutionOptions, startedAt time.Time, capturedStdout string, capturedStderr string) CommandResult {
	completedAt := time.Now()
	duration := completedAt.Sub(startedAt)
	executor.metrics.RecordRun(true, duration)
	executor.dependencies.AuditLogger.RecordEntry(auditlog.Entry{
		Level:         auditlog.LevelInfo,
		Component:     executorComponentNameConstant,
		CorrelationID: correlationIdentifier,
		Message:       commandCompletedLogMessageConstant,
		Payload: map[string]any{
			payloadFieldCommandConstant:        commandText,
			payloadFieldDescriptionConstant:    options.HumanDescription,
			payloadFieldExitCodeConstant:       0,
			payloadFieldDurationMillisConstant: duration.Milliseconds(),
		},
	})
	executor.dependencies.Logger.Info(commandCompletedLogMessageConstant,
		zap.String(logFieldCorrelationConstant, correlationIdentifier),
		zap.Int64(logFieldDurationMillisConstant, duration.Milliseconds()),
	)
	return newSuccessResult(SuccessOutcome{
		Stdout:         capturedStdout,
		Stderr:         capturedStderr,
		ExitCode:       0,
		DurationMillis: duration.Milliseconds(),
		CompletedAt:    completedAt,
	})
}

func (executor *Executor) finishFailure(correlationIdentifier string, commandText string, options ExecutionOptions, startedAt time.Time, capturedStdout string, capturedStderr string, exitCode int, executionError *ExecutionError) CommandResult {
	completedAt := time.Now()
	duration := completedAt.Sub(startedAt)
	executor.metrics.RecordRun(false, duration)
	executor.dependencies.AuditLogger.RecordEntry(auditlog.Entry{
		Level:         auditlog.LevelError,
		Component:     executorComponentNameConstant,
		CorrelationID: correlationIdentifier,
		Message:       commandFailedLogMessageConstant,
		Payload: map[string]any{
			payloadFieldCommandConstant:        commandText,
			payloadFieldDescriptionConstant:    options.HumanDescription,
			payloadFieldCategoryConstant:       string(executionError.Category),
			payloadFieldExitCodeConstant:       exitCode,
			payloadFieldDurationMillisConstant: duration.Milliseconds(),
		},
	})
	executor.dependencies.Logger.Warn(commandFailedLogMessageConstant,
		zap.String(logFieldCorrelationConstant, correlationIdentifier),
		zap.String(logFieldCategoryConstant, string(executionError.Category)),
		zap.Int64(logFieldDurationMillisConstant, duration.Milliseconds()),
	)
	return newFailureResult(FailureOutcome{
		Stdout:         capturedStdout,
		Stderr:         capturedStderr,
		ExitCode:       exitCode,
		DurationMillis: duration.Milliseconds(),
		CompletedAt:    completedAt,
		Error:          executionError,
	})
}

func validateCommandText(rawCommandText string) *ExecutionError {
	if strings.TrimSpace(rawCommandText) == "" {
		return newEmptyCommandError()
	}
	if strings.ContainsRune(rawCommandText, 0) {
		return newNulByteError()
	}
	return nil
}

// resolveExitCode maps a wait error to an exit code: 0 for nil, the child's
// code for exec.ExitError, and -1 when no code is available.
func resolveExitCode(waitError error) int {
	if waitError == nil {
		return 0
	}
	var exitError *exec.ExitError
	if errors.As(waitError, &exitError) {
		return exitError.ExitCode()
	}
	return -1
}
