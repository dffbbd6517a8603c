package classify

import (
	"regexp"
	"strings"
)

const (
	consoleShellExecutableNameConstant       = "cmd.exe"
	powerShellExecutableNameConstant         = "powershell.exe"
	posixSubsystemExecutableNameConstant     = "wsl.exe"
	consoleShellCommandFlagConstant          = "/c"
	consoleShellDisableAutoRunFlagConstant   = "/d"
	consoleShellStripQuotesFlagConstant      = "/s"
	powerShellNoProfileFlagConstant          = "-NoProfile"
	powerShellCommandFlagConstant            = "-Command"
	posixSubsystemExecFlagConstant           = "-e"
	posixSubsystemShellNameConstant          = "sh"
	posixSubsystemShellCommandFlagConstant   = "-c"
	posixSubsystemPrefixTokenConstant        = "wsl"
	posixSubsystemPrefixExecutableConstant   = "wsl.exe"
	cmdletTokenPatternConstant               = `(^|\s)[A-Z][a-z]+-[A-Z][A-Za-z]+\b`
	powerShellSessionVariablePatternConstant = `\$PSVersionTable\b`
	powerShellModuleImportTokenConstant      = "Import-Module"
	subsystemMountPathPatternConstant        = `(^|\s)/mnt/[A-Za-z](/|\s|$)`
	defaultPlanCacheCapacityConstant         = 500
)

// BackendKind identifies one of the concrete shell backends the engine targets.
type BackendKind string

// Supported backend kinds.
const (
	BackendConsoleShell     BackendKind = "console-shell"
	BackendPowerShellFamily BackendKind = "powershell-family"
	BackendPosixSubsystem   BackendKind = "posix-subsystem"
)

// ArgumentMode describes how the command text is appended to the backend invocation.
type ArgumentMode string

// Supported trailing argument modes.
const (
	// ArgumentModeSingleArgument passes the entire command text as one trailing argument.
	ArgumentModeSingleArgument ArgumentMode = "single-argument"
	// ArgumentModeVerbatim forwards the remainder after the invocation token
	// as one trailing argument, preserving its interior spacing and quoting.
	ArgumentModeVerbatim ArgumentMode = "verbatim"
)

// ShellPlan captures the resolved backend invocation template for a command.
type ShellPlan struct {
	Backend         BackendKind
	Executable      string
	PrefixArguments []string
	ArgumentMode    ArgumentMode
}

// foreignEcosystemPrefixes lists leading tokens whose ecosystems parse their own
// arguments and therefore run best under the console shell.
var foreignEcosystemPrefixes = map[string]struct{}{
	"git":    {},
	"npm":    {},
	"npx":    {},
	"node":   {},
	"docker": {},
	"python": {},
}

var (
	cmdletTokenPattern               = regexp.MustCompile(cmdletTokenPatternConstant)
	powerShellSessionVariablePattern = regexp.MustCompile(powerShellSessionVariablePatternConstant)
	subsystemMountPathPattern        = regexp.MustCompile(subsystemMountPathPatternConstant)
)

// Classifier resolves ShellPlans from raw command text. Classification is a
// pure function of the text plus an optional override, so results are memoized.
type Classifier struct {
	planCache *planCache
}

// NewClassifier constructs a Classifier with the default cache capacity.
func NewClassifier() *Classifier {
	return NewClassifierWithCapacity(defaultPlanCacheCapacityConstant)
}

// NewClassifierWithCapacity constructs a Classifier whose plan cache holds at
// most the provided number of entries before batch eviction.
func NewClassifierWithCapacity(cacheCapacity int) *Classifier {
	return &Classifier{planCache: newPlanCache(cacheCapacity)}
}

// Classify resolves the ShellPlan for the supplied command text. When an
// override backend is provided it wins unconditionally and bypasses the cache.
func (classifier *Classifier) Classify(commandText string, overrideBackend BackendKind) ShellPlan {
	if len(overrideBackend) > 0 {
		return planForBackend(overrideBackend, commandText)
	}

	if cachedPlan, planCached := classifier.planCache.lookup(commandText); planCached {
		return cachedPlan
	}

	resolvedPlan := classifyCommandText(commandText)
	classifier.planCache.store(commandText, resolvedPlan)
	return resolvedPlan
}

func classifyCommandText(commandText string) ShellPlan {
	if IsSubsystemInvocation(commandText) {
		return planForBackend(BackendPosixSubsystem, commandText)
	}

	if containsPowerShellIndicators(commandText) {
		return planForBackend(BackendPowerShellFamily, commandText)
	}

	if hasForeignEcosystemPrefix(commandText) {
		return ShellPlan{
			Backend:    BackendConsoleShell,
			Executable: consoleShellExecutableNameConstant,
			PrefixArguments: []string{
				consoleShellDisableAutoRunFlagConstant,
				consoleShellStripQuotesFlagConstant,
				consoleShellCommandFlagConstant,
			},
			ArgumentMode: ArgumentModeSingleArgument,
		}
	}

	return planForBackend(BackendConsoleShell, commandText)
}

func planForBackend(backend BackendKind, commandText string) ShellPlan {
	switch backend {
	case BackendPosixSubsystem:
		if hasSubsystemPrefixToken(commandText) {
			return ShellPlan{
				Backend:      BackendPosixSubsystem,
				Executable:   posixSubsystemExecutableNameConstant,
				ArgumentMode: ArgumentModeVerbatim,
			}
		}
		return ShellPlan{
			Backend:    BackendPosixSubsystem,
			Executable: posixSubsystemExecutableNameConstant,
			PrefixArguments: []string{
				posixSubsystemExecFlagConstant,
				posixSubsystemShellNameConstant,
				posixSubsystemShellCommandFlagConstant,
			},
			ArgumentMode: ArgumentModeSingleArgument,
		}
	case BackendPowerShellFamily:
		return ShellPlan{
			Backend:    BackendPowerShellFamily,
			Executable: powerShellExecutableNameConstant,
			PrefixArguments: []string{
				powerShellNoProfileFlagConstant,
				powerShellCommandFlagConstant,
			},
			ArgumentMode: ArgumentModeSingleArgument,
		}
	default:
		return ShellPlan{
			Backend:         BackendConsoleShell,
			Executable:      consoleShellExecutableNameConstant,
			PrefixArguments: []string{consoleShellCommandFlagConstant},
			ArgumentMode:    ArgumentModeSingleArgument,
		}
	}
}

// CommandArguments assembles the trailing arguments for the plan given the
// command text, honoring the plan's argument mode.
func (plan ShellPlan) CommandArguments(commandText string) []string {
	arguments := append([]string{}, plan.PrefixArguments...)

	switch plan.ArgumentMode {
	case ArgumentModeVerbatim:
		remainder := commandText
		if plan.Backend == BackendPosixSubsystem {
			remainder = SubsystemRemainder(commandText)
		}
		if len(remainder) == 0 {
			return arguments
		}
		return append(arguments, remainder)
	default:
		return append(arguments, commandText)
	}
}

// IsSubsystemInvocation reports whether the command text targets the POSIX
// subsystem, either through an explicit invocation token or subsystem-style
// mount paths. The normalizer shares this test to avoid corrupting
// subsystem-native paths.
func IsSubsystemInvocation(commandText string) bool {
	if hasSubsystemPrefixToken(commandText) {
		return true
	}
	return subsystemMountPathPattern.MatchString(commandText)
}

func hasSubsystemPrefixToken(commandText string) bool {
	firstToken := firstCommandToken(commandText)
	loweredToken := strings.ToLower(firstToken)
	return loweredToken == posixSubsystemPrefixTokenConstant || loweredToken == posixSubsystemPrefixExecutableConstant
}

// SubsystemRemainder strips the subsystem invocation token from the command
// text, returning the portion forwarded verbatim to the subsystem shell.
func SubsystemRemainder(commandText string) string {
	trimmedText := strings.TrimSpace(commandText)
	if !hasSubsystemPrefixToken(trimmedText) {
		return trimmedText
	}

	separatorIndex := strings.IndexAny(trimmedText, " \t")
	if separatorIndex < 0 {
		return ""
	}
	return strings.TrimSpace(trimmedText[separatorIndex+1:])
}

func containsPowerShellIndicators(commandText string) bool {
	if strings.Contains(commandText, powerShellModuleImportTokenConstant) {
		return true
	}
	if powerShellSessionVariablePattern.MatchString(commandText) {
		return true
	}
	return cmdletTokenPattern.MatchString(commandText)
}

func hasForeignEcosystemPrefix(commandText string) bool {
	firstToken := strings.ToLower(firstCommandToken(commandText))
	_, prefixKnown := foreignEcosystemPrefixes[firstToken]
	return prefixKnown
}

func firstCommandToken(commandText string) string {
	fields := strings.Fields(commandText)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
