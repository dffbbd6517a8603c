package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shellbridge/shellbridge/internal/replace"
	"github.com/shellbridge/shellbridge/internal/utils"
)

const (
	rewriteCommandUseConstant              = "rewrite [command...]"
	rewriteCommandShortDescriptionConstant = "Show the modernized form of a command"
	rewriteCommandLongDescriptionConstant  = "rewrite applies the command modernization rules (grep to rg, find to fd, and so on) and prints the result without executing anything."
	rewriteEngineNotReadyMessageConstant   = "rewrite engine not initialized"
	rewriteLineTemplateConstant            = "%s\n"
)

// ErrRewriteEngineNotReady indicates the rewrite command was invoked before
// the application finished wiring the modernization engine.
var ErrRewriteEngineNotReady = errors.New(rewriteEngineNotReadyMessageConstant)

// RewriteEngineProvider supplies the rewrite engine after configuration loads.
type RewriteEngineProvider func() *replace.Engine

// RewriteCommandBuilder assembles the rewrite command.
type RewriteCommandBuilder struct {
	LoggerProvider        LoggerProvider
	RewriteEngineProvider RewriteEngineProvider
}

// Build constructs the rewrite command.
func (builder *RewriteCommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:   rewriteCommandUseConstant,
		Short: rewriteCommandShortDescriptionConstant,
		Long:  rewriteCommandLongDescriptionConstant,
		Args:  cobra.MinimumNArgs(1),
		RunE:  builder.run,
	}

	return command, nil
}

func (builder *RewriteCommandBuilder) run(command *cobra.Command, arguments []string) error {
	rewriteEngine := builder.RewriteEngineProvider()
	if rewriteEngine == nil {
		return ErrRewriteEngineNotReady
	}

	commandText, argumentError := joinCommandArguments(arguments)
	if argumentError != nil {
		return argumentError
	}

	outputWriter := utils.NewFlushingWriter(command.OutOrStdout())
	fmt.Fprintf(outputWriter, rewriteLineTemplateConstant, rewriteEngine.Rewrite(commandText))
	return nil
}
