package engine

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

const (
	batchExecutorMissingMessageConstant = "batch runner requires an executor"
	batchLoggerMissingMessageConstant   = "batch runner requires a diagnostic logger"
	batchWaveStartedLogMessageConstant  = "batch wave started"
	logFieldWaveIndexConstant           = "wave_index"
	logFieldWaveSizeConstant            = "wave_size"
)

// ErrBatchExecutorNotConfigured indicates a missing executor dependency.
var ErrBatchExecutorNotConfigured = errors.New(batchExecutorMissingMessageConstant)

// ErrBatchLoggerNotConfigured indicates a missing diagnostic logger dependency.
var ErrBatchLoggerNotConfigured = errors.New(batchLoggerMissingMessageConstant)

// BatchCommand pairs a command with its per-command options for batch runs.
type BatchCommand struct {
	CommandText string
	Options     ExecutionOptions
}

// BatchRunner executes command batches in pool-sized waves. Each wave runs
// concurrently; the next wave starts only after the current one completes.
// Results preserve the input order regardless of completion order.
type BatchRunner struct {
	executor *Executor
	logger   *zap.Logger
}

// NewBatchRunner validates the dependencies and creates a batch runner.
func NewBatchRunner(executor *Executor, logger *zap.Logger) (*BatchRunner, error) {
	if executor == nil {
		return nil, ErrBatchExecutorNotConfigured
	}
	if logger == nil {
		return nil, ErrBatchLoggerNotConfigured
	}
	return &BatchRunner{executor: executor, logger: logger}, nil
}

// RunAll executes every command and returns one result per command, in input
// order. Individual failures never abort the batch; a failed command simply
// contributes a Failure outcome at its index.
func (batchRunner *BatchRunner) RunAll(executionContext context.Context, commands []BatchCommand) []CommandResult {
	results := make([]CommandResult, len(commands))
	waveSize := batchRunner.executor.dependencies.Pool.Capacity()

	for waveStart := 0; waveStart < len(commands); waveStart += waveSize {
		waveEnd := waveStart + waveSize
		if waveEnd > len(commands) {
			waveEnd = len(commands)
		}

		batchRunner.logger.Debug(batchWaveStartedLogMessageConstant,
			zap.Int(logFieldWaveIndexConstant, waveStart/waveSize),
			zap.Int(logFieldWaveSizeConstant, waveEnd-waveStart),
		)

		var waveGroup sync.WaitGroup
		for commandIndex := waveStart; commandIndex < waveEnd; commandIndex++ {
			waveGroup.Add(1)
			go func(resultIndex int) {
				defer waveGroup.Done()
				command := commands[resultIndex]
				results[resultIndex] = batchRunner.executor.Run(executionContext, command.CommandText, command.Options)
			}(commandIndex)
		}
		waveGroup.Wait()
	}

	return results
}
