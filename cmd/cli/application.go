package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/shellbridge/shellbridge/internal/auditlog"
	"github.com/shellbridge/shellbridge/internal/classify"
	"github.com/shellbridge/shellbridge/internal/engine"
	"github.com/shellbridge/shellbridge/internal/normalize"
	"github.com/shellbridge/shellbridge/internal/procpool"
	"github.com/shellbridge/shellbridge/internal/replace"
	"github.com/shellbridge/shellbridge/internal/utils"
	"github.com/shellbridge/shellbridge/internal/utils/flags"
	pathutils "github.com/shellbridge/shellbridge/internal/utils/path"
)

const (
	applicationNameConstant                 = "shellbridge"
	applicationShortDescriptionConstant     = "Command-line interface for cross-shell command execution"
	applicationLongDescriptionConstant      = "shellbridge normalizes command text, picks the right shell backend, and executes commands with pooled concurrency, timeouts, and audit logging."
	configFileFlagNameConstant              = "config"
	configFileFlagUsageConstant             = "Optional path to a configuration file (YAML or JSON)."
	logLevelFlagNameConstant                = "log-level"
	logLevelFlagUsageConstant               = "Override the configured log level."
	logFormatFlagNameConstant               = "log-format"
	logFormatFlagUsageConstant              = "Override the configured log format (structured or console)."
	commonConfigurationKeyConstant          = "common"
	commonLogLevelConfigKeyConstant         = commonConfigurationKeyConstant + ".log_level"
	commonLogFormatConfigKeyConstant        = commonConfigurationKeyConstant + ".log_format"
	environmentPrefixConstant               = "SHELLBRIDGE"
	configurationNameConstant               = "config"
	configurationTypeConstant               = "yaml"
	configurationInitializedMessageConstant = "configuration initialized"
	configurationLogLevelFieldConstant      = "log_level"
	configurationLogFormatFieldConstant     = "log_format"
	configurationFileFieldConstant          = "config_file"
	configurationLoadErrorTemplateConstant  = "unable to load configuration: %w"
	loggerCreationErrorTemplateConstant     = "unable to create logger: %w"
	loggerSyncErrorTemplateConstant         = "unable to flush logger: %w"
	auditLoggerErrorTemplateConstant        = "unable to create audit logger: %w"
	processPoolErrorTemplateConstant        = "unable to create process pool: %w"
	executorErrorTemplateConstant           = "unable to create executor: %w"
	batchRunnerErrorTemplateConstant        = "unable to create batch runner: %w"
	rewriteRulesErrorTemplateConstant       = "unable to load rewrite rules: %w"
	rewriteEngineErrorTemplateConstant      = "unable to create rewrite engine: %w"
	rootCommandInfoMessageConstant          = "shellbridge CLI executed"
	logFieldCommandNameConstant             = "command_name"
	logFieldArgumentCountConstant           = "argument_count"
	loggerNotInitializedMessageConstant     = "logger not initialized"
	defaultConfigurationSearchPathConstant  = "."
	engineConfigurationKeyConstant          = "engine"
	auditConfigurationKeyConstant           = "audit"
	rewriteConfigurationKeyConstant         = "rewrite"
	defaultMaximumConcurrentCount           = 4
	defaultAuditLogFileNameConstant         = "audit.log"
	defaultAuditLogDirectoryNameConstant    = ".shellbridge"
)

// ApplicationConfiguration describes the persisted configuration for the CLI entrypoint.
type ApplicationConfiguration struct {
	Common  CommonConfiguration  `mapstructure:"common"`
	Engine  EngineConfiguration  `mapstructure:"engine"`
	Audit   AuditConfiguration   `mapstructure:"audit"`
	Rewrite RewriteConfiguration `mapstructure:"rewrite"`
}

// CommonConfiguration stores logging configuration shared across commands.
type CommonConfiguration struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// EngineConfiguration stores execution engine settings.
type EngineConfiguration struct {
	MaxConcurrent        int   `mapstructure:"max_concurrent"`
	DefaultTimeoutMillis int64 `mapstructure:"default_timeout_ms"`
	GracePeriodMillis    int64 `mapstructure:"grace_period_ms"`
}

// AuditConfiguration stores audit log settings.
type AuditConfiguration struct {
	Path                string `mapstructure:"path"`
	FlushThresholdBytes int    `mapstructure:"flush_threshold_bytes"`
	FlushIntervalMillis int64  `mapstructure:"flush_interval_ms"`
	MaxFileSizeBytes    int64  `mapstructure:"max_file_size_bytes"`
	RetentionCount      int    `mapstructure:"retention_count"`
}

// RewriteConfiguration stores command modernization settings.
type RewriteConfiguration struct {
	Enabled   bool   `mapstructure:"enabled"`
	RulesPath string `mapstructure:"rules_path"`
}

// Application wires the Cobra root command, configuration loader, structured
// logger, and the command execution engine.
type Application struct {
	rootCommand            *cobra.Command
	configurationLoader    *utils.ConfigurationLoader
	loggerFactory          *utils.LoggerFactory
	homeExpander           *pathutils.HomeExpander
	logger                 *zap.Logger
	configuration          ApplicationConfiguration
	configurationMetadata  utils.LoadedConfiguration
	configurationFilePath  string
	logLevelFlagValue      string
	logFormatFlagValue     string
	commandContextAccessor utils.CommandContextAccessor
	auditLogger            *auditlog.Logger
	processPool            *procpool.Pool
	executor               *engine.Executor
	batchRunner            *engine.BatchRunner
	rewriteEngine          *replace.Engine
}

// NewApplication assembles a fully wired CLI application instance.
func NewApplication() *Application {
	configurationLoader := utils.NewConfigurationLoader(
		configurationNameConstant,
		configurationTypeConstant,
		environmentPrefixConstant,
		[]string{defaultConfigurationSearchPathConstant},
	)
	embeddedConfiguration, embeddedConfigurationType := EmbeddedDefaultConfiguration()
	configurationLoader.SetEmbeddedConfiguration(embeddedConfiguration, embeddedConfigurationType)

	application := &Application{
		configurationLoader:    configurationLoader,
		loggerFactory:          utils.NewLoggerFactory(),
		homeExpander:           pathutils.NewHomeExpander(),
		logger:                 zap.NewNop(),
		commandContextAccessor: utils.NewCommandContextAccessor(),
	}

	cobraCommand := &cobra.Command{
		Use:           applicationNameConstant,
		Short:         applicationShortDescriptionConstant,
		Long:          applicationLongDescriptionConstant,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(command *cobra.Command, arguments []string) error {
			return application.initialize(command)
		},
		RunE: func(command *cobra.Command, arguments []string) error {
			return application.runRootCommand(command, arguments)
		},
	}

	cobraCommand.SetContext(context.Background())
	cobraCommand.PersistentFlags().StringVar(&application.configurationFilePath, configFileFlagNameConstant, "", configFileFlagUsageConstant)
	cobraCommand.PersistentFlags().StringVar(&application.logLevelFlagValue, logLevelFlagNameConstant, "", logLevelFlagUsageConstant)
	cobraCommand.PersistentFlags().StringVar(&application.logFormatFlagValue, logFormatFlagNameConstant, "", logFormatFlagUsageConstant)

	runBuilder := RunCommandBuilder{
		LoggerProvider:   application.loggerProvider,
		ExecutorProvider: application.executorProvider,
	}
	if runCommand, runBuildError := runBuilder.Build(); runBuildError == nil {
		cobraCommand.AddCommand(runCommand)
	}

	batchBuilder := BatchCommandBuilder{
		LoggerProvider:      application.loggerProvider,
		BatchRunnerProvider: application.batchRunnerProvider,
	}
	if batchCommand, batchBuildError := batchBuilder.Build(); batchBuildError == nil {
		cobraCommand.AddCommand(batchCommand)
	}

	planBuilder := PlanCommandBuilder{
		LoggerProvider:   application.loggerProvider,
		ExecutorProvider: application.executorProvider,
	}
	if planCommand, planBuildError := planBuilder.Build(); planBuildError == nil {
		cobraCommand.AddCommand(planCommand)
	}

	rewriteBuilder := RewriteCommandBuilder{
		LoggerProvider:        application.loggerProvider,
		RewriteEngineProvider: application.rewriteEngineProvider,
	}
	if rewriteCommand, rewriteBuildError := rewriteBuilder.Build(); rewriteBuildError == nil {
		cobraCommand.AddCommand(rewriteCommand)
	}

	application.rootCommand = cobraCommand

	return application
}

// Execute runs the configured Cobra command hierarchy under a signal-aware
// context. Interrupt or termination signals cancel in-flight commands, and
// shutdown drains the process pool and closes the audit log.
func (application *Application) Execute() error {
	executionContext, stopSignalHandling := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignalHandling()

	application.rootCommand.SetContext(executionContext)
	application.rootCommand.SetArgs(flags.NormalizeToggleArguments(os.Args[1:]))
	executionError := application.rootCommand.Execute()

	application.shutdown()

	if syncError := application.flushLogger(); syncError != nil {
		return fmt.Errorf(loggerSyncErrorTemplateConstant, syncError)
	}
	return executionError
}

// Execute builds a fresh application instance and executes the root command hierarchy.
func Execute() error {
	return NewApplication().Execute()
}

func (application *Application) initialize(command *cobra.Command) error {
	if loadError := application.initializeConfiguration(command); loadError != nil {
		return loadError
	}
	return application.initializeEngine()
}

func (application *Application) initializeConfiguration(command *cobra.Command) error {
	defaultValues := map[string]any{
		commonLogLevelConfigKeyConstant:  string(utils.LogLevelInfo),
		commonLogFormatConfigKeyConstant: string(utils.LogFormatStructured),
	}

	loadedConfiguration, loadError := application.configurationLoader.LoadConfiguration(application.configurationFilePath, defaultValues, &application.configuration)
	if loadError != nil {
		return fmt.Errorf(configurationLoadErrorTemplateConstant, loadError)
	}

	application.configurationMetadata = loadedConfiguration

	if application.persistentFlagChanged(command, logLevelFlagNameConstant) {
		application.configuration.Common.LogLevel = application.logLevelFlagValue
	}
	if application.persistentFlagChanged(command, logFormatFlagNameConstant) {
		application.configuration.Common.LogFormat = application.logFormatFlagValue
	}

	logger, loggerCreationError := application.loggerFactory.CreateLogger(
		utils.LogLevel(application.configuration.Common.LogLevel),
		utils.LogFormat(application.configuration.Common.LogFormat),
	)
	if loggerCreationError != nil {
		return fmt.Errorf(loggerCreationErrorTemplateConstant, loggerCreationError)
	}

	application.logger = logger

	application.logger.Debug(
		configurationInitializedMessageConstant,
		zap.String(configurationLogLevelFieldConstant, application.configuration.Common.LogLevel),
		zap.String(configurationLogFormatFieldConstant, application.configuration.Common.LogFormat),
		zap.String(configurationFileFieldConstant, application.configurationMetadata.ConfigFileUsed),
	)

	if command != nil {
		updatedContext := application.commandContextAccessor.WithConfigurationFilePath(
			command.Context(),
			application.configurationMetadata.ConfigFileUsed,
		)
		command.SetContext(updatedContext)
		if rootCommand := command.Root(); rootCommand != nil {
			rootCommand.SetContext(updatedContext)
		}
	}

	return nil
}

func (application *Application) initializeEngine() error {
	auditLogger, auditLoggerError := auditlog.NewLogger(auditlog.Config{
		DestinationPath:      application.resolveAuditLogPath(),
		FlushThresholdBytes:  application.configuration.Audit.FlushThresholdBytes,
		FlushInterval:        time.Duration(application.configuration.Audit.FlushIntervalMillis) * time.Millisecond,
		MaximumFileSizeBytes: application.configuration.Audit.MaxFileSizeBytes,
		RetentionCount:       application.configuration.Audit.RetentionCount,
	}, application.logger)
	if auditLoggerError != nil {
		return fmt.Errorf(auditLoggerErrorTemplateConstant, auditLoggerError)
	}
	application.auditLogger = auditLogger

	maximumConcurrent := application.configuration.Engine.MaxConcurrent
	if maximumConcurrent <= 0 {
		maximumConcurrent = defaultMaximumConcurrentCount
	}
	processPool, poolError := procpool.NewPool(maximumConcurrent, application.logger)
	if poolError != nil {
		return fmt.Errorf(processPoolErrorTemplateConstant, poolError)
	}
	application.processPool = processPool

	rewriteEngine, rewriteEngineError := application.buildRewriteEngine()
	if rewriteEngineError != nil {
		return rewriteEngineError
	}
	application.rewriteEngine = rewriteEngine

	executorDependencies := engine.Dependencies{
		Normalizer:  normalize.NewNormalizer(),
		Classifier:  classify.NewClassifier(),
		Pool:        application.processPool,
		Runner:      engine.NewOSProcessRunner(),
		AuditLogger: application.auditLogger,
		Logger:      application.logger,
	}
	if application.configuration.Rewrite.Enabled {
		executorDependencies.Rewriter = application.rewriteEngine
	}

	executor, executorError := engine.NewExecutor(executorDependencies, engine.Config{
		DefaultTimeout: time.Duration(application.configuration.Engine.DefaultTimeoutMillis) * time.Millisecond,
		GracePeriod:    time.Duration(application.configuration.Engine.GracePeriodMillis) * time.Millisecond,
	})
	if executorError != nil {
		return fmt.Errorf(executorErrorTemplateConstant, executorError)
	}
	application.executor = executor

	batchRunner, batchRunnerError := engine.NewBatchRunner(executor, application.logger)
	if batchRunnerError != nil {
		return fmt.Errorf(batchRunnerErrorTemplateConstant, batchRunnerError)
	}
	application.batchRunner = batchRunner

	return nil
}

func (application *Application) buildRewriteEngine() (*replace.Engine, error) {
	ruleSet := replace.DefaultRuleSet()
	rulesPath := strings.TrimSpace(application.configuration.Rewrite.RulesPath)
	if len(rulesPath) > 0 {
		loadedRuleSet, rulesError := replace.LoadRuleSet(application.homeExpander.Expand(rulesPath))
		if rulesError != nil {
			return nil, fmt.Errorf(rewriteRulesErrorTemplateConstant, rulesError)
		}
		ruleSet = loadedRuleSet
	}

	rewriteEngine, engineError := replace.NewEngine(ruleSet, application.logger, replace.Options{})
	if engineError != nil {
		return nil, fmt.Errorf(rewriteEngineErrorTemplateConstant, engineError)
	}
	return rewriteEngine, nil
}

func (application *Application) resolveAuditLogPath() string {
	configuredPath := strings.TrimSpace(application.configuration.Audit.Path)
	if len(configuredPath) > 0 {
		return application.homeExpander.Expand(configuredPath)
	}

	homeDirectory, homeDirectoryError := os.UserHomeDir()
	if homeDirectoryError != nil {
		return filepath.Join(defaultAuditLogDirectoryNameConstant, defaultAuditLogFileNameConstant)
	}
	return filepath.Join(homeDirectory, defaultAuditLogDirectoryNameConstant, defaultAuditLogFileNameConstant)
}

func (application *Application) shutdown() {
	if application.processPool != nil {
		application.processPool.Shutdown()
	}
	if application.auditLogger != nil {
		_ = application.auditLogger.Close()
	}
}

func (application *Application) loggerProvider() *zap.Logger {
	return application.logger
}

func (application *Application) executorProvider() *engine.Executor {
	return application.executor
}

func (application *Application) batchRunnerProvider() *engine.BatchRunner {
	return application.batchRunner
}

func (application *Application) rewriteEngineProvider() *replace.Engine {
	return application.rewriteEngine
}

func (application *Application) runRootCommand(command *cobra.Command, arguments []string) error {
	if application.logger == nil {
		return errors.New(loggerNotInitializedMessageConstant)
	}

	application.logger.Info(
		rootCommandInfoMessageConstant,
		zap.String(logFieldCommandNameConstant, command.Name()),
		zap.Int(logFieldArgumentCountConstant, len(arguments)),
	)

	return command.Help()
}

func (application *Application) flushLogger() error {
	if application.logger == nil {
		return nil
	}

	syncError := application.logger.Sync()
	switch {
	case syncError == nil:
		return nil
	case errors.Is(syncError, syscall.ENOTSUP):
		return nil
	case errors.Is(syncError, syscall.EINVAL):
		return nil
	default:
		return syncError
	}
}

func (application *Application) persistentFlagChanged(command *cobra.Command, flagName string) bool {
	if command == nil {
		return false
	}

	flagSetsToInspect := []*pflag.FlagSet{
		command.PersistentFlags(),
		command.InheritedFlags(),
	}
	if rootCommand := command.Root(); rootCommand != nil {
		flagSetsToInspect = append(flagSetsToInspect, rootCommand.PersistentFlags())
	}

	for _, flagSet := range flagSetsToInspect {
		if flagSet == nil {
			continue
		}
		if flagSet.Changed(flagName) {
			return true
		}
	}

	return false
}
