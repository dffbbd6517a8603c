package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/shellbridge/shellbridge/internal/engine"
	"github.com/shellbridge/shellbridge/internal/utils"
)

const (
	batchCommandUseConstant              = "batch <file>"
	batchCommandShortDescriptionConstant = "Execute a batch of commands in pool-sized waves"
	batchCommandLongDescriptionConstant  = "batch reads a YAML file listing commands and executes them concurrently in pool-sized waves, printing one result per command in input order."
	batchRunnerNotReadyMessageConstant   = "batch runner not initialized"
	batchFileReadErrorTemplateConstant   = "unable to read batch file %s: %w"
	batchFileParseErrorTemplateConstant  = "unable to parse batch file %s: %w"
	batchFileEmptyMessageConstant        = "batch file lists no commands"
	batchFailureCountTemplateConstant    = "%d of %d commands failed"
	batchLineSuccessTemplateConstant     = "[%d] ok (%dms) %s\n"
	batchLineFailureTemplateConstant     = "[%d] %s (%dms) %s\n"
)

// ErrBatchRunnerNotReady indicates batch execution was attempted before the
// application finished wiring the engine.
var ErrBatchRunnerNotReady = errors.New(batchRunnerNotReadyMessageConstant)

// BatchRunnerProvider supplies the batch runner after configuration loads.
type BatchRunnerProvider func() *engine.BatchRunner

// batchFileEntry is one command in a batch file.
type batchFileEntry struct {
	Command       string            `yaml:"command"`
	TimeoutMillis int64             `yaml:"timeout_ms"`
	Cwd           string            `yaml:"cwd"`
	Env           map[string]string `yaml:"env"`
	Description   string            `yaml:"description"`
	Shell         string            `yaml:"shell"`
}

// batchFile is the on-disk format consumed by the batch command.
type batchFile struct {
	Commands []batchFileEntry `yaml:"commands"`
}

// BatchCommandBuilder assembles the batch command.
type BatchCommandBuilder struct {
	LoggerProvider      LoggerProvider
	BatchRunnerProvider BatchRunnerProvider
}

// Build constructs the batch command.
func (builder *BatchCommandBuilder) Build() (*cobra.Command, error) {
	jsonOutput := false

	command := &cobra.Command{
		Use:   batchCommandUseConstant,
		Short: batchCommandShortDescriptionConstant,
		Long:  batchCommandLongDescriptionConstant,
		Args:  cobra.ExactArgs(1),
		RunE: func(command *cobra.Command, arguments []string) error {
			return builder.run(command, arguments[0], jsonOutput)
		},
	}

	command.Flags().BoolVar(&jsonOutput, jsonOutputFlagNameConstant, false, jsonOutputFlagUsageConstant)

	return command, nil
}

func (builder *BatchCommandBuilder) run(command *cobra.Command, batchFilePath string, jsonOutput bool) error {
	batchRunner := builder.BatchRunnerProvider()
	if batchRunner == nil {
		return ErrBatchRunnerNotReady
	}

	commands, loadError := loadBatchFile(batchFilePath)
	if loadError != nil {
		return loadError
	}

	results := batchRunner.RunAll(command.Context(), commands)

	outputWriter := utils.NewFlushingWriter(command.OutOrStdout())
	if jsonOutput {
		if writeError := writeJSON(outputWriter, results); writeError != nil {
			return writeError
		}
	} else {
		for resultIndex, result := range results {
			if result.Succeeded() {
				fmt.Fprintf(outputWriter, batchLineSuccessTemplateConstant,
					resultIndex, result.Success.DurationMillis, commands[resultIndex].CommandText)
				continue
			}
			fmt.Fprintf(outputWriter, batchLineFailureTemplateConstant,
				resultIndex, result.Failure.Error.Category, result.Failure.DurationMillis, commands[resultIndex].CommandText)
		}
	}

	failureCount := 0
	for _, result := range results {
		if !result.Succeeded() {
			failureCount++
		}
	}
	if failureCount > 0 {
		return fmt.Errorf(batchFailureCountTemplateConstant, failureCount, len(results))
	}
	return nil
}

func loadBatchFile(batchFilePath string) ([]engine.BatchCommand, error) {
	fileContents, readError := os.ReadFile(batchFilePath)
	if readError != nil {
		return nil, fmt.Errorf(batchFileReadErrorTemplateConstant, batchFilePath, readError)
	}

	var parsedFile batchFile
	if parseError := yaml.Unmarshal(fileContents, &parsedFile); parseError != nil {
		return nil, fmt.Errorf(batchFileParseErrorTemplateConstant, batchFilePath, parseError)
	}
	if len(parsedFile.Commands) == 0 {
		return nil, errors.New(batchFileEmptyMessageConstant)
	}

	commands := make([]engine.BatchCommand, 0, len(parsedFile.Commands))
	for _, entry := range parsedFile.Commands {
		shellOverride, shellError := resolveShellOverride(entry.Shell)
		if shellError != nil {
			return nil, shellError
		}
		commands = append(commands, engine.BatchCommand{
			CommandText: strings.TrimSpace(entry.Command),
			Options: engine.ExecutionOptions{
				TimeoutMillis:    entry.TimeoutMillis,
				WorkingDirectory: entry.Cwd,
				ExtraEnvironment: entry.Env,
				HumanDescription: entry.Description,
				ShellOverride:    shellOverride,
			},
		})
	}
	return commands, nil
}
