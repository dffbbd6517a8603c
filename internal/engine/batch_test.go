package engine_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/shellbridge/shellbridge/internal/engine"
)

func TestNewBatchRunnerValidatesDependencies(t *testing.T) {
	executor := newTestExecutor(t, engine.NewOSProcessRunner(), engine.Config{})

	_, missingExecutorError := engine.NewBatchRunner(nil, zaptest.NewLogger(t))
	require.ErrorIs(t, missingExecutorError, engine.ErrBatchExecutorNotConfigured)

	_, missingLoggerError := engine.NewBatchRunner(executor, nil)
	require.ErrorIs(t, missingLoggerError, engine.ErrBatchLoggerNotConfigured)
}

func TestRunAllPreservesInputOrder(t *testing.T) {
	executor := newTestExecutor(t, &shellOutRunner{inner: engine.NewOSProcessRunner()}, engine.Config{})
	batchRunner, creationError := engine.NewBatchRunner(executor, zaptest.NewLogger(t))
	require.NoError(t, creationError)

	commandCount := testPoolCapacityCount*2 + 1
	commands := make([]engine.BatchCommand, 0, commandCount)
	for commandIndex := 0; commandIndex < commandCount; commandIndex++ {
		commands = append(commands, engine.BatchCommand{
			CommandText: fmt.Sprintf("printf %d", commandIndex),
		})
	}

	results := batchRunner.RunAll(context.Background(), commands)

	require.Len(t, results, commandCount)
	for commandIndex, result := range results {
		require.True(t, result.Succeeded())
		require.Equal(t, fmt.Sprintf("%d", commandIndex), result.Success.Stdout)
	}
}

func TestRunAllContinuesPastFailures(t *testing.T) {
	executor := newTestExecutor(t, &shellOutRunner{inner: engine.NewOSProcessRunner()}, engine.Config{})
	batchRunner, creationError := engine.NewBatchRunner(executor, zaptest.NewLogger(t))
	require.NoError(t, creationError)

	commands := []engine.BatchCommand{
		{CommandText: "printf first"},
		{CommandText: "exit 9"},
		{CommandText: ""},
		{CommandText: "printf last"},
	}

	results := batchRunner.RunAll(context.Background(), commands)

	require.Len(t, results, len(commands))
	require.True(t, results[0].Succeeded())
	require.Equal(t, engine.FailureCategoryNonZeroExit, results[1].Category())
	require.Equal(t, 9, results[1].Failure.ExitCode)
	require.Equal(t, engine.FailureCategoryValidation, results[2].Category())
	require.True(t, results[3].Succeeded())
	require.Equal(t, "last", results[3].Success.Stdout)
}

func TestRunAllHandlesEmptyBatch(t *testing.T) {
	executor := newTestExecutor(t, &shellOutRunner{inner: engine.NewOSProcessRunner()}, engine.Config{})
	batchRunner, creationError := engine.NewBatchRunner(executor, zaptest.NewLogger(t))
	require.NoError(t, creationError)

	results := batchRunner.RunAll(context.Background(), nil)
	require.Empty(t, results)
}
