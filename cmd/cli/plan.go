package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shellbridge/shellbridge/internal/classify"
	"github.com/shellbridge/shellbridge/internal/utils"
)

const (
	planCommandUseConstant              = "plan [command...]"
	planCommandShortDescriptionConstant = "Show how a command would execute without running it"
	planCommandLongDescriptionConstant  = "plan reports the normalized command text and the resolved shell backend invocation without spawning a process."
	planBackendLineTemplateConstant     = "backend:    %s\n"
	planExecutableLineTemplateConstant  = "executable: %s\n"
	planArgumentsLineTemplateConstant   = "arguments:  %q\n"
	planNormalizedLineTemplateConstant  = "normalized: %s\n"
)

// planReport is the JSON shape emitted by plan --json.
type planReport struct {
	Normalized string   `json:"normalized"`
	Backend    string   `json:"backend"`
	Executable string   `json:"executable"`
	Arguments  []string `json:"arguments"`
}

// PlanCommandBuilder assembles the plan command.
type PlanCommandBuilder struct {
	LoggerProvider   LoggerProvider
	ExecutorProvider ExecutorProvider
}

// Build constructs the plan command.
func (builder *PlanCommandBuilder) Build() (*cobra.Command, error) {
	flagValues := &executionFlags{}

	command := &cobra.Command{
		Use:   planCommandUseConstant,
		Short: planCommandShortDescriptionConstant,
		Long:  planCommandLongDescriptionConstant,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(command *cobra.Command, arguments []string) error {
			return builder.run(command, arguments, flagValues)
		},
	}

	flagValues.bind(command, true)

	return command, nil
}

func (builder *PlanCommandBuilder) run(command *cobra.Command, arguments []string, flagValues *executionFlags) error {
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

	normalizedText, shellPlan := executor.Plan(commandText, options)
	report := buildPlanReport(normalizedText, shellPlan)

	outputWriter := utils.NewFlushingWriter(command.OutOrStdout())
	if flagValues.jsonOutput {
		return writeJSON(outputWriter, report)
	}

	fmt.Fprintf(outputWriter, planNormalizedLineTemplateConstant, report.Normalized)
	fmt.Fprintf(outputWriter, planBackendLineTemplateConstant, report.Backend)
	fmt.Fprintf(outputWriter, planExecutableLineTemplateConstant, report.Executable)
	fmt.Fprintf(outputWriter, planArgumentsLineTemplateConstant, report.Arguments)
	return nil
}

func buildPlanReport(normalizedText string, shellPlan classify.ShellPlan) planReport {
	return planReport{
		Normalized: normalizedText,
		Backend:    string(shellPlan.Backend),
		Executable: shellPlan.Executable,
		Arguments:  shellPlan.CommandArguments(normalizedText),
	}
}
