package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shellbridge/shellbridge/internal/engine"
	"github.com/shellbridge/shellbridge/internal/utils"
)

const (
	runCommandUseConstant              = "run [command...]"
	runCommandShortDescriptionConstant = "Execute one command through the engine"
	runCommandLongDescriptionConstant  = "run normalizes the command text, classifies the shell backend, and executes the command with pooled concurrency, timeout enforcement, and audit logging."
	executorNotReadyMessageConstant    = "execution engine not initialized"
)

// ErrExecutorNotReady indicates command execution was attempted before the
// application finished wiring the engine.
var ErrExecutorNotReady = errors.New(executorNotReadyMessageConstant)

// ExecutorProvider supplies the executor after configuration loads.
type ExecutorProvider func() *engine.Executor

// RunCommandBuilder assembles the run command.
type RunCommandBuilder struct {
	LoggerProvider   LoggerProvider
	ExecutorProvider ExecutorProvider
}

// Build constructs the run command.
func (builder *RunCommandBuilder) Build() (*cobra.Command, error) {
	flagValues := &executionFlags{}

	command := &cobra.Command{
		Use:   runCommandUseConstant,
		Short: runCommandShortDescriptionConstant,
		Long:  runCommandLongDescriptionConstant,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(command *cobra.Command, arguments []string) error {
			return builder.run(command, arguments, flagValues)
		},
	}

	flagValues.bind(command, true)

	return command, nil
}

func (builder *RunCommandBuilder) run(command *cobra.Command, arguments []string, flagValues *executionFlags) error {
	executor := builder.ExecutorProvider()
	if executor == nil {
		return ErrExecutorNotReady
	}

	commandText, argumentError := joinCommandArguments(arguments)
	if argumentError != nil {
		return argumentError
	}

	options, optionsError := flagValues.executionOptions()
	if optionsError != nil {
		return optionsError
	}

	result := executor.Run(command.Context(), commandText, options)

	outputWriter := utils.NewFlushingWriter(command.OutOrStdout())
	errorWriter := utils.NewFlushingWriter(command.ErrOrStderr())

	if flagValues.jsonOutput {
		if writeError := writeJSON(outputWriter, result); writeError != nil {
			return writeError
		}
		if !result.Succeeded() {
			return resultFailureError(result)
		}
		return nil
	}

	if result.Succeeded() {
		fmt.Fprint(outputWriter, result.Success.Stdout)
		fmt.Fprint(errorWriter, result.Success.Stderr)
		return nil
	}

	fmt.Fprint(outputWriter, result.Failure.Stdout)
	fmt.Fprint(errorWriter, result.Failure.Stderr)
	return resultFailureError(result)
}
