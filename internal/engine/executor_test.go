package engine_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/shellbridge/shellbridge/internal/auditlog"
	"github.com/shellbridge/shellbridge/internal/classify"
	"github.com/shellbridge/shellbridge/internal/engine"
	"github.com/shellbridge/shellbridge/internal/normalize"
	"github.com/shellbridge/shellbridge/internal/procpool"
)

const (
	testPoolCapacityCount       = 2
	testShortTimeoutMillisCount = 200
	testShortGracePeriod        = 100 * time.Millisecond
)

// shellOutRunner adapts launched specifications to the host's POSIX shell so
// executor tests exercise real processes regardless of the planned backend.
type shellOutRunner struct {
	inner *engine.OSProcessRunner
}

func (runner *shellOutRunner) Start(executionContext context.Context, specification engine.ProcessSpecification) (engine.ProcessHandle, error) {
	commandText := specification.Arguments[len(specification.Arguments)-1]
	return runner.inner.Start(executionContext, engine.ProcessSpecification{
		ExecutablePath:   "/bin/sh",
		Arguments:        []string{"-c", commandText},
		WorkingDirectory: specification.WorkingDirectory,
		ExtraEnvironment: specification.ExtraEnvironment,
	})
}

// recordingRunner counts launches and delegates to a scripted handle.
type recordingRunner struct {
	mutex      sync.Mutex
	startCount int
	startError error
	handle     *scriptedHandle
}

func (runner *recordingRunner) Start(executionContext context.Context, specification engine.ProcessSpecification) (engine.ProcessHandle, error) {
	runner.mutex.Lock()
	runner.startCount++
	runner.mutex.Unlock()
	if runner.startError != nil {
		return nil, runner.startError
	}
	return runner.handle, nil
}

func (runner *recordingRunner) launches() int {
	runner.mutex.Lock()
	defer runner.mutex.Unlock()
	return runner.startCount
}

// scriptedHandle simulates a child process with scripted exit behavior.
type scriptedHandle struct {
	stdoutText      string
	stderrText      string
	waitChannel     chan error
	ignoreTerminate bool
	mutex           sync.Mutex
	terminated      bool
	killed          bool
}

func newScriptedHandle(stdoutText string, stderrText string) *scriptedHandle {
	return &scriptedHandle{
		stdoutText:  stdoutText,
		stderrText:  stderrText,
		waitChannel: make(chan error, 1),
	}
}

func (handle *scriptedHandle) exitNow(waitError error) {
	handle.waitChannel <- waitError
}

func (handle *scriptedHandle) OSProcess() *os.Process { return nil }

func (handle *scriptedHandle) Done() <-chan error { return handle.waitChannel }

func (handle *scriptedHandle) CapturedStdout() string { return handle.stdoutText }

func (handle *scriptedHandle) CapturedStderr() string { return handle.stderrText }

func (handle *scriptedHandle) SignalTerminate() error {
	handle.mutex.Lock()
	defer handle.mutex.Unlock()
	handle.terminated = true
	if !handle.ignoreTerminate {
		handle.waitChannel <- errors.New("terminated")
	}
	return nil
}

func (handle *scriptedHandle) ForceKill() error {
	handle.mutex.Lock()
	defer handle.mutex.Unlock()
	handle.killed = true
	handle.waitChannel <- errors.New("killed")
	return nil
}

func (handle *scriptedHandle) wasKilled() bool {
	handle.mutex.Lock()
	defer handle.mutex.Unlock()
	return handle.killed
}

func newTestAuditLogger(testInstance *testing.T) *auditlog.Logger {
	testInstance.Helper()
	auditLogger, creationError := auditlog.NewLogger(auditlog.Config{
		DestinationPath: filepath.Join(testInstance.TempDir(), "audit.log"),
	}, zaptest.NewLogger(testInstance))
	require.NoError(testInstance, creationError)
	testInstance.Cleanup(func() { _ = auditLogger.Close() })
	return auditLogger
}

func newTestExecutor(testInstance *testing.T, runner engine.ProcessRunner, configuration engine.Config) *engine.Executor {
	testInstance.Helper()
	diagnosticLogger := zaptest.NewLogger(testInstance)
	pool, poolError := procpool.NewPool(testPoolCapacityCount, diagnosticLogger)
	require.NoError(testInstance, poolError)
	executor, creationError := engine.NewExecutor(engine.Dependencies{
		Normalizer:  normalize.NewNormalizer(),
		Classifier:  classify.NewClassifier(),
		Pool:        pool,
		Runner:      runner,
		AuditLogger: newTestAuditLogger(testInstance),
		Logger:      diagnosticLogger,
	}, configuration)
	require.NoError(testInstance, creationError)
	return executor
}

func TestNewExecutorValidatesDependencies(t *testing.T) {
	diagnosticLogger := zaptest.NewLogger(t)
	pool, poolError := procpool.NewPool(testPoolCapacityCount, diagnosticLogger)
	require.NoError(t, poolError)
	auditLogger := newTestAuditLogger(t)

	complete := engine.Dependencies{
		Normalizer:  normalize.NewNormalizer(),
		Classifier:  classify.NewClassifier(),
		Pool:        pool,
		Runner:      engine.NewOSProcessRunner(),
		AuditLogger: auditLogger,
		Logger:      diagnosticLogger,
	}

	testCases := []struct {
		name          string
		mutate        func(dependencies *engine.Dependencies)
		expectedError error
	}{
		{name: "missing_normalizer", mutate: func(d *engine.Dependencies) { d.Normalizer = nil }, expectedError: engine.ErrNormalizerNotConfigured},
		{name: "missing_classifier", mutate: func(d *engine.Dependencies) { d.Classifier = nil }, expectedError: engine.ErrClassifierNotConfigured},
		{name: "missing_pool", mutate: func(d *engine.Dependencies) { d.Pool = nil }, expectedError: engine.ErrPoolNotConfigured},
		{name: "missing_runner", mutate: func(d *engine.Dependencies) { d.Runner = nil }, expectedError: engine.ErrRunnerNotConfigured},
		{name: "missing_audit_logger", mutate: func(d *engine.Dependencies) { d.AuditLogger = nil }, expectedError: engine.ErrAuditLoggerNotConfigured},
		{name: "missing_diagnostic_logger", mutate: func(d *engine.Dependencies) { d.Logger = nil }, expectedError: engine.ErrDiagnosticLoggerNotConfigured},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			dependencies := complete
			testCase.mutate(&dependencies)
			_, creationError := engine.NewExecutor(dependencies, engine.Config{})
			require.ErrorIs(t, creationError, testCase.expectedError)
		})
	}
}

func TestRunRejectsInvalidCommandText(t *testing.T) {
	runner := &recordingRunner{handle: newScriptedHandle("", "")}
	executor := newTestExecutor(t, runner, engine.Config{})

	testCases := []struct {
		name        string
		commandText string
	}{
		{name: "empty", commandText: ""},
		{name: "whitespace_only", commandText: "   \t  "},
		{name: "embedded_nul", commandText: "echo hi\x00"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			result := executor.Run(context.Background(), testCase.commandText, engine.ExecutionOptions{})
			require.False(t, result.Succeeded())
			require.Equal(t, engine.FailureCategoryValidation, result.Category())
		})
	}
	require.Zero(t, runner.launches())
}

func TestRunReturnsSuccessOutcome(t *testing.T) {
	executor := newTestExecutor(t, &shellOutRunner{inner: engine.NewOSProcessRunner()}, engine.Config{})

	result := executor.Run(context.Background(), "printf hello; printf trouble >&2", engine.ExecutionOptions{})

	require.True(t, result.Succeeded())
	require.Equal(t, "hello", result.Success.Stdout)
	require.Equal(t, "trouble", result.Success.Stderr)
	require.Equal(t, 0, result.Success.ExitCode)
	require.GreaterOrEqual(t, result.Success.DurationMillis, int64(0))
	require.False(t, result.Success.CompletedAt.IsZero())
}

func TestRunReportsNonZeroExit(t *testing.T) {
	executor := newTestExecutor(t, &shellOutRunner{inner: engine.NewOSProcessRunner()}, engine.Config{})

	result := executor.Run(context.Background(), "printf partial; exit 3", engine.ExecutionOptions{})

	require.False(t, result.Succeeded())
	require.Equal(t, engine.FailureCategoryNonZeroExit, result.Category())
	require.Equal(t, 3, result.Failure.ExitCode)
	require.Equal(t, "partial", result.Failure.Stdout)
}

func TestRunReportsSpawnFailure(t *testing.T) {
	spawnError := errors.New("executable vanished")
	runner := &recordingRunner{startError: spawnError}
	executor := newTestExecutor(t, runner, engine.Config{})

	result := executor.Run(context.Background(), "echo hi", engine.ExecutionOptions{})

	require.False(t, result.Succeeded())
	require.Equal(t, engine.FailureCategorySpawnFailure, result.Category())
	require.ErrorIs(t, result.Failure.Error, spawnError)
}

func TestRunEnforcesTimeoutWithEscalation(t *testing.T) {
	executor := newTestExecutor(t, &shellOutRunner{inner: engine.NewOSProcessRunner()}, engine.Config{
		GracePeriod: testShortGracePeriod,
	})

	startedAt := time.Now()
	result := executor.Run(context.Background(), "sleep 30", engine.ExecutionOptions{
		TimeoutMillis: testShortTimeoutMillisCount,
	})

	require.False(t, result.Succeeded())
	require.Equal(t, engine.FailureCategoryTimeout, result.Category())
	require.Less(t, time.Since(startedAt), 5*time.Second)
}

func TestRunForceKillsProcessIgnoringTerminate(t *testing.T) {
	handle := newScriptedHandle("", "")
	handle.ignoreTerminate = true
	runner := &recordingRunner{handle: handle}
	executor := newTestExecutor(t, runner, engine.Config{GracePeriod: testShortGracePeriod})

	result := executor.Run(context.Background(), "echo stubborn", engine.ExecutionOptions{
		TimeoutMillis: testShortTimeoutMillisCount,
	})

	require.False(t, result.Succeeded())
	require.Equal(t, engine.FailureCategoryTimeout, result.Category())
	require.True(t, handle.wasKilled())
}

func TestRunReportsCancellation(t *testing.T) {
	executor := newTestExecutor(t, &shellOutRunner{inner: engine.NewOSProcessRunner()}, engine.Config{
		GracePeriod: testShortGracePeriod,
	})

	executionContext, cancelExecution := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancelExecution()
	}()

	result := executor.Run(executionContext, "sleep 30", engine.ExecutionOptions{})

	require.False(t, result.Succeeded())
	require.Equal(t, engine.FailureCategoryCancelled, result.Category())
}

func TestRunRefusesWhenPoolExhausted(t *testing.T) {
	diagnosticLogger := zaptest.NewLogger(t)
	pool, poolError := procpool.NewPool(1, diagnosticLogger)
	require.NoError(t, poolError)
	executor, creationError := engine.NewExecutor(engine.Dependencies{
		Normalizer:  normalize.NewNormalizer(),
		Classifier:  classify.NewClassifier(),
		Pool:        pool,
		Runner:      &shellOutRunner{inner: engine.NewOSProcessRunner()},
		AuditLogger: newTestAuditLogger(t),
		Logger:      diagnosticLogger,
	}, engine.Config{})
	require.NoError(t, creationError)

	occupiedSlot, admissionError := pool.TryAdmit()
	require.NoError(t, admissionError)
	defer occupiedSlot.Release()

	result := executor.Run(context.Background(), "echo refused", engine.ExecutionOptions{})

	require.False(t, result.Succeeded())
	require.Equal(t, engine.FailureCategoryResourceExhausted, result.Category())
	require.ErrorIs(t, result.Failure.Error, procpool.ErrPoolExhausted)
}

func TestRunReleasesSlotAfterCompletion(t *testing.T) {
	executor := newTestExecutor(t, &shellOutRunner{inner: engine.NewOSProcessRunner()}, engine.Config{})

	for runIndex := 0; runIndex < testPoolCapacityCount+2; runIndex++ {
		result := executor.Run(context.Background(), "true", engine.ExecutionOptions{})
		require.True(t, result.Succeeded())
	}
}

func TestRunAppliesWorkingDirectoryAndEnvironment(t *testing.T) {
	executor := newTestExecutor(t, &shellOutRunner{inner: engine.NewOSProcessRunner()}, engine.Config{})
	workingDirectory := t.TempDir()

	result := executor.Run(context.Background(), "pwd; printf %s \"$SHELLBRIDGE_PROBE\"", engine.ExecutionOptions{
		WorkingDirectory: workingDirectory,
		ExtraEnvironment: map[string]string{"SHELLBRIDGE_PROBE": "probe-value"},
	})

	require.True(t, result.Succeeded())
	require.Contains(t, result.Success.Stdout, filepath.Base(workingDirectory))
	require.Contains(t, result.Success.Stdout, "probe-value")
}

func TestRunRecordsMetrics(t *testing.T) {
	executor := newTestExecutor(t, &shellOutRunner{inner: engine.NewOSProcessRunner()}, engine.Config{})

	require.True(t, executor.Run(context.Background(), "true", engine.ExecutionOptions{}).Succeeded())
	require.False(t, executor.Run(context.Background(), "exit 7", engine.ExecutionOptions{}).Succeeded())

	snapshot := executor.Metrics().Snapshot()
	require.Equal(t, int64(2), snapshot.CommandsExecuted)
	require.Equal(t, int64(1), snapshot.SuccessCount)
	require.Equal(t, int64(1), snapshot.FailureCount)
}

func TestPlanReportsBackendWithoutExecuting(t *testing.T) {
	runner := &recordingRunner{handle: newScriptedHandle("", "")}
	executor := newTestExecutor(t, runner, engine.Config{})

	normalizedText, shellPlan := executor.Plan("cd /c/work && git pull", engine.ExecutionOptions{})

	require.Equal(t, `cd C:\work ; git pull`, normalizedText)
	require.Equal(t, classify.BackendConsoleShell, shellPlan.Backend)
	require.Zero(t, runner.launches())
}

// uppercaseRewriter is a trivial rewriter used to verify the rewrite hook
// runs before normalization.
type uppercaseRewriter struct{}

func (uppercaseRewriter) Rewrite(commandText string) string {
	return commandText + " --color=never"
}

func TestRunAppliesRewriterBeforeNormalization(t *testing.T) {
	diagnosticLogger := zaptest.NewLogger(t)
	pool, poolError := procpool.NewPool(testPoolCapacityCount, diagnosticLogger)
	require.NoError(t, poolError)
	executor, creationError := engine.NewExecutor(engine.Dependencies{
		Normalizer:  normalize.NewNormalizer(),
		Classifier:  classify.NewClassifier(),
		Pool:        pool,
		Runner:      &shellOutRunner{inner: engine.NewOSProcessRunner()},
		AuditLogger: newTestAuditLogger(t),
		Logger:      diagnosticLogger,
		Rewriter:    uppercaseRewriter{},
	}, engine.Config{})
	require.NoError(t, creationError)

	rewrittenText, _ := executor.Plan("grep pattern file", engine.ExecutionOptions{})
	require.Equal(t, "grep pattern file --color=never", rewrittenText)
}
