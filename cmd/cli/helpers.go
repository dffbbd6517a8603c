package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shellbridge/shellbridge/internal/classify"
	"github.com/shellbridge/shellbridge/internal/engine"
	"github.com/shellbridge/shellbridge/internal/utils/flags"
)

const (
	timeoutFlagNameConstant           = "timeout-ms"
	timeoutFlagUsageConstant          = "Per-command timeout in milliseconds (0 uses the configured default)."
	workingDirectoryFlagNameConstant  = "cwd"
	workingDirectoryFlagUsageConstant = "Working directory for the command."
	environmentFlagNameConstant       = "env"
	environmentFlagUsageConstant      = "Extra environment variable as KEY=VALUE (repeatable)."
	shellFlagNameConstant             = "shell"
	shellFlagDescriptionConstant      = "Pin the shell backend instead of classifying."
	descriptionFlagNameConstant       = "description"
	descriptionFlagUsageConstant      = "Human-readable label recorded in the audit log."
	jsonOutputFlagNameConstant        = "json"
	jsonOutputFlagUsageConstant       = "Emit the full result as JSON."
	modernizeFlagNameConstant         = "modernize"
	modernizeFlagUsageConstant        = "Apply command modernization rules before execution."

	autoShellChoiceConstant = "auto"

	environmentPairSeparatorConstant        = "="
	malformedEnvironmentTemplateConstant    = "malformed --env value %q; expected KEY=VALUE"
	unsupportedShellChoiceTemplateConstant  = "unsupported --shell value %q"
	commandArgumentsRequiredMessageConstant = "command text required"
	jsonIndentConstant                      = "  "
	commandFailureTemplateConstant          = "command failed (%s): %s"
)

var errCommandArgumentsRequired = errors.New(commandArgumentsRequiredMessageConstant)

// LoggerProvider supplies the diagnostic logger after configuration loads.
type LoggerProvider func() *zap.Logger

// shellBackendChoices lists accepted --shell values in display order.
var shellBackendChoices = []string{
	autoShellChoiceConstant,
	string(classify.BackendConsoleShell),
	string(classify.BackendPowerShellFamily),
	string(classify.BackendPosixSubsystem),
}

// executionFlags captures flag values shared by run, batch, and plan commands.
type executionFlags struct {
	timeoutMillis    int64
	workingDirectory string
	environmentPairs []string
	shellChoice      string
	description      string
	jsonOutput       bool
	modernizeEnabled bool
}

func (values *executionFlags) bind(command *cobra.Command, includeJSONOutput bool) {
	command.Flags().Int64Var(&values.timeoutMillis, timeoutFlagNameConstant, 0, timeoutFlagUsageConstant)
	command.Flags().StringVar(&values.workingDirectory, workingDirectoryFlagNameConstant, "", workingDirectoryFlagUsageConstant)
	command.Flags().StringArrayVar(&values.environmentPairs, environmentFlagNameConstant, nil, environmentFlagUsageConstant)
	command.Flags().StringVar(&values.shellChoice, shellFlagNameConstant, autoShellChoiceConstant, shellFlagUsage())
	command.Flags().StringVar(&values.description, descriptionFlagNameConstant, "", descriptionFlagUsageConstant)
	flags.AddToggleFlag(command.Flags(), &values.modernizeEnabled, modernizeFlagNameConstant, "", true, modernizeFlagUsageConstant)
	if includeJSONOutput {
		command.Flags().BoolVar(&values.jsonOutput, jsonOutputFlagNameConstant, false, jsonOutputFlagUsageConstant)
	}
}

func (values *executionFlags) executionOptions() (engine.ExecutionOptions, error) {
	extraEnvironment, environmentError := parseEnvironmentPairs(values.environmentPairs)
	if environmentError != nil {
		return engine.ExecutionOptions{}, environmentError
	}

	shellOverride, shellError := resolveShellOverride(values.shellChoice)
	if shellError != nil {
		return engine.ExecutionOptions{}, shellError
	}

	return engine.ExecutionOptions{
		TimeoutMillis:    values.timeoutMillis,
		WorkingDirectory: values.workingDirectory,
		ExtraEnvironment: extraEnvironment,
		HumanDescription: values.description,
		ShellOverride:    shellOverride,
		SkipRewrite:      !values.modernizeEnabled,
	}, nil
}

func shellFlagUsage() string {
	return flags.FormatChoiceUsage(autoShellChoiceConstant, shellBackendChoices, shellFlagDescriptionConstant)
}

func parseEnvironmentPairs(environmentPairs []string) (map[string]string, error) {
	if len(environmentPairs) == 0 {
		return nil, nil
	}
	extraEnvironment := make(map[string]string, len(environmentPairs))
	for _, environmentPair := range environmentPairs {
		variableName, variableValue, separatorFound := strings.Cut(environmentPair, environmentPairSeparatorConstant)
		if !separatorFound || len(variableName) == 0 {
			return nil, fmt.Errorf(malformedEnvironmentTemplateConstant, environmentPair)
		}
		extraEnvironment[variableName] = variableValue
	}
	return extraEnvironment, nil
}

func resolveShellOverride(shellChoice string) (classify.BackendKind, error) {
	normalizedChoice := strings.ToLower(strings.TrimSpace(shellChoice))
	switch normalizedChoice {
	case "", autoShellChoiceConstant:
		return "", nil
	case string(classify.BackendConsoleShell), string(classify.BackendPowerShellFamily), string(classify.BackendPosixSubsystem):
		return classify.BackendKind(normalizedChoice), nil
	default:
		return "", fmt.Errorf(unsupportedShellChoiceTemplateConstant, shellChoice)
	}
}

func joinCommandArguments(arguments []string) (string, error) {
	commandText := strings.TrimSpace(strings.Join(arguments, " "))
	if len(commandText) == 0 {
		return "", errCommandArgumentsRequired
	}
	return commandText, nil
}

func writeJSON(output io.Writer, payload any) error {
	encoded, marshalError := json.MarshalIndent(payload, "", jsonIndentConstant)
	if marshalError != nil {
		return marshalError
	}
	_, writeError := fmt.Fprintln(output, string(encoded))
	return writeError
}

func resultFailureError(result engine.CommandResult) error {
	return fmt.Errorf(commandFailureTemplateConstant, result.Failure.Error.Category, result.Failure.Error.Message)
}

func resolveLogger(provider LoggerProvider) *zap.Logger {
	if provider == nil {
		return zap.NewNop()
	}
	if logger := provider(); logger != nil {
		return logger
	}
	return zap.NewNop()
}
