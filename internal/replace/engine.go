package replace

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	shellControlCharactersConstant           = "|;&$`<>\"'\\"
	gitMetadataDirectoryNameConstant         = ".git"
	fallbackPatternInvalidTemplateConstant   = "invalid fallback pattern %q: %w"
	commandRewrittenLogMessageConstant       = "command rewritten"
	rewriteSkippedLogMessageConstant         = "rewrite skipped"
	logFieldOriginalCommandConstant          = "original"
	logFieldRewrittenCommandConstant         = "rewritten"
	logFieldSkipReasonConstant               = "reason"
	skipReasonControlCharactersConstant      = "shell control characters"
	skipReasonFallbackPatternConstant        = "fallback pattern match"
	skipReasonToolUnavailableConstant        = "replacement tool unavailable"
	skipReasonUntranslatableConstant         = "invocation does not translate"
	batPlainStyleFlagConstant                = "--style=plain"
	ripgrepNoIgnoreFlagConstant              = "--no-ignore"
	ripgrepHiddenFlagConstant                = "--hidden"
	sedSubstitutionPatternConstant           = `^s/([^/]+)/([^/]*)/[gi]*$`
)

var sedSubstitutionPattern = regexp.MustCompile(sedSubstitutionPatternConstant)

// problematicGrepFlags lists grep flags with no faithful ripgrep equivalent.
var problematicGrepFlags = map[string]struct{}{
	"--null-data": {}, "-z": {}, "--line-buffered": {}, "--mmap": {},
	"-U": {}, "--binary": {}, "-Z": {}, "--null": {},
	"-P": {}, "--perl-regexp": {},
}

// untranslatableFindFlags lists find predicates fd cannot express.
var untranslatableFindFlags = map[string]struct{}{
	"-exec": {}, "-execdir": {}, "-ok": {}, "-okdir": {}, "-delete": {}, "-print0": {},
	"-size": {}, "-mtime": {}, "-ctime": {}, "-atime": {},
	"-perm": {}, "-readable": {}, "-writable": {}, "-executable": {},
	"-user": {}, "-group": {}, "-uid": {}, "-gid": {},
	"-and": {}, "-or": {}, "-not": {}, "!": {}, "(": {}, ")": {},
	"-regex": {}, "-iregex": {}, "-printf": {}, "-prune": {}, "-ls": {},
}

// Engine rewrites classic command invocations to their modern replacements.
// It implements the executor's rewriter hook: Rewrite returns the input
// unchanged whenever a faithful translation is not possible.
type Engine struct {
	ruleSet          RuleSet
	fallbackPatterns []*regexp.Regexp
	probe            *toolProbe
	insideGitRepo    bool
	logger           *zap.Logger
}

// Options adjusts engine construction. The zero value uses exec.LookPath for
// tool probes and the current working directory for git detection.
type Options struct {
	// Lookup resolves tool names; nil uses exec.LookPath.
	Lookup LookupFunction
	// WorkingDirectory anchors git repository detection; empty uses the
	// process working directory.
	WorkingDirectory string
}

// NewEngine compiles the rule set's fallback patterns and creates an engine.
func NewEngine(ruleSet RuleSet, logger *zap.Logger, options Options) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	fallbackPatterns := make([]*regexp.Regexp, 0, len(ruleSet.Settings.FallbackPatterns))
	for _, patternText := range ruleSet.Settings.FallbackPatterns {
		compiled, compileError := regexp.Compile(patternText)
		if compileError != nil {
			return nil, fmt.Errorf(fallbackPatternInvalidTemplateConstant, patternText, compileError)
		}
		fallbackPatterns = append(fallbackPatterns, compiled)
	}

	cacheTTL := time.Duration(ruleSet.Settings.ToolCheckTTLMillis) * time.Millisecond
	if cacheTTL <= 0 {
		cacheTTL = time.Duration(defaultToolCheckTTLMillisCount) * time.Millisecond
	}

	return &Engine{
		ruleSet:          ruleSet,
		fallbackPatterns: fallbackPatterns,
		probe:            newToolProbe(options.Lookup, ruleSet.Settings.CacheToolChecks, cacheTTL),
		insideGitRepo:    detectGitRepository(options.WorkingDirectory),
		logger:           logger,
	}, nil
}

// Rewrite returns the modernized command text, or the input unchanged when no
// rule applies or the invocation cannot be translated faithfully.
func (engine *Engine) Rewrite(commandText string) string {
	// Quoting and shell operators change argument boundaries; rewrites only
	// apply to simple single-command invocations.
	if strings.ContainsAny(commandText, shellControlCharactersConstant) {
		engine.logSkip(commandText, skipReasonControlCharactersConstant)
		return commandText
	}

	if engine.ruleSet.Settings.SemanticAnalysis && engine.matchesFallbackPattern(commandText) {
		engine.logSkip(commandText, skipReasonFallbackPatternConstant)
		return commandText
	}

	tokens := strings.Fields(commandText)
	if len(tokens) == 0 {
		return commandText
	}

	commandName := tokens[0]
	rule, ruleExists := engine.ruleSet.Rules[commandName]
	if !ruleExists || !rule.Enabled {
		return commandText
	}

	replacementTool, toolAvailable := engine.resolveReplacementTool(commandName, rule)
	if !toolAvailable {
		engine.logSkip(commandText, skipReasonToolUnavailableConstant)
		return commandText
	}

	rewrittenArguments, translated := engine.rewriteArguments(commandName, tokens[1:], rule)
	if !translated {
		engine.logSkip(commandText, skipReasonUntranslatableConstant)
		return commandText
	}

	rewrittenText := strings.TrimSpace(replacementTool + " " + strings.Join(rewrittenArguments, " "))
	engine.logger.Debug(commandRewrittenLogMessageConstant,
		zap.String(logFieldOriginalCommandConstant, commandText),
		zap.String(logFieldRewrittenCommandConstant, rewrittenText),
	)
	return rewrittenText
}

func (engine *Engine) rewriteArguments(commandName string, arguments []string, rule Rule) ([]string, bool) {
	switch commandName {
	case grepCommandNameConstant:
		return engine.rewriteGrepArguments(arguments, rule)
	case findCommandNameConstant:
		return engine.rewriteFindArguments(arguments, rule)
	case catCommandNameConstant:
		return rewriteCatArguments(arguments, rule)
	case listCommandNameConstant, psCommandNameConstant:
		return rewritePreservedFlagArguments(arguments, rule)
	case sedCommandNameConstant:
		return rewriteSedArguments(arguments)
	default:
		return nil, false
	}
}

// rewriteGrepArguments translates grep flags to ripgrep. Inside a git
// repository ripgrep skips ignored and hidden files by default, so the
// rewrite disables that filtering to keep grep's result set.
func (engine *Engine) rewriteGrepArguments(arguments []string, rule Rule) ([]string, bool) {
	rewritten := make([]string, 0, len(arguments)+2)
	if engine.insideGitRepo && !hasRipgrepIgnoreFlags(arguments) {
		rewritten = append(rewritten, ripgrepNoIgnoreFlagConstant, ripgrepHiddenFlagConstant)
	}

	for argumentIndex := 0; argumentIndex < len(arguments); argumentIndex++ {
		argument := arguments[argumentIndex]
		if !strings.HasPrefix(argument, "-") {
			rewritten = append(rewritten, argument)
			continue
		}
		if _, problematic := problematicGrepFlags[argument]; problematic {
			return nil, false
		}

		switch argument {
		case "-E", "--extended-regexp":
			// ripgrep's default syntax already covers ERE.
		case "-F", "--fixed-strings":
			rewritten = append(rewritten, "--fixed-strings")
		case "-o", "--only-matching":
			rewritten = append(rewritten, "--only-matching")
		case "-c", "--count":
			rewritten = append(rewritten, "--count")
		case "-l", "--files-with-matches":
			rewritten = append(rewritten, "--files-with-matches")
		case "-L", "--files-without-match":
			rewritten = append(rewritten, "--files-without-match")
		case "-A", "--after-context", "-B", "--before-context", "-C", "--context":
			rewritten = append(rewritten, contextFlagShortForm(argument))
			if argumentIndex+1 < len(arguments) {
				argumentIndex++
				rewritten = append(rewritten, arguments[argumentIndex])
			}
		case "--include":
			if argumentIndex+1 < len(arguments) {
				argumentIndex++
				rewritten = append(rewritten, "--glob", arguments[argumentIndex])
			}
		case "--exclude":
			if argumentIndex+1 < len(arguments) {
				argumentIndex++
				rewritten = append(rewritten, "--glob", "!"+arguments[argumentIndex])
			}
		default:
			if strings.HasPrefix(argument, "--include=") {
				rewritten = append(rewritten, "--glob", strings.TrimPrefix(argument, "--include="))
				continue
			}
			if strings.HasPrefix(argument, "--exclude=") {
				rewritten = append(rewritten, "--glob", "!"+strings.TrimPrefix(argument, "--exclude="))
				continue
			}
			if mapped, hasMapping := rule.FlagMappings[argument]; hasMapping {
				if mapped != "" {
					rewritten = append(rewritten, mapped)
				}
				continue
			}
			rewritten = append(rewritten, argument)
		}
	}
	return rewritten, true
}

// rewriteFindArguments translates find predicates to fd. fd takes the pattern
// first and search paths last, so the arguments are reassembled in that order.
func (engine *Engine) rewriteFindArguments(arguments []string, rule Rule) ([]string, bool) {
	// fd respects ignore files and hides dotfiles by default; find does not.
	rewritten := []string{"-H", "-I"}
	var namePattern string
	var searchPaths []string

	for argumentIndex := 0; argumentIndex < len(arguments); argumentIndex++ {
		argument := arguments[argumentIndex]
		if _, untranslatable := untranslatableFindFlags[argument]; untranslatable {
			return nil, false
		}

		switch argument {
		case "-name":
			if argumentIndex+1 < len(arguments) {
				argumentIndex++
				namePattern = arguments[argumentIndex]
			}
		case "-iname":
			rewritten = append(rewritten, "-i")
			if argumentIndex+1 < len(arguments) {
				argumentIndex++
				namePattern = arguments[argumentIndex]
			}
		case "-path":
			if argumentIndex+1 < len(arguments) {
				argumentIndex++
				rewritten = append(rewritten, "--glob", arguments[argumentIndex])
			}
		case "-type":
			if argumentIndex+1 < len(arguments) {
				argumentIndex++
				fileType, translatable := translateFindType(arguments[argumentIndex])
				if !translatable {
					return nil, false
				}
				rewritten = append(rewritten, "--type", fileType)
			}
		case "-maxdepth":
			if argumentIndex+1 < len(arguments) {
				argumentIndex++
				rewritten = append(rewritten, "--max-depth", arguments[argumentIndex])
			}
		case "-mindepth":
			if argumentIndex+1 < len(arguments) {
				argumentIndex++
				rewritten = append(rewritten, "--min-depth", arguments[argumentIndex])
			}
		default:
			if strings.HasPrefix(argument, "-") {
				if !containsFlag(rule.PreserveFlags, argument) {
					return nil, false
				}
				rewritten = append(rewritten, argument)
				continue
			}
			searchPaths = append(searchPaths, argument)
		}
	}

	if namePattern != "" {
		rewritten = append([]string{namePattern}, rewritten...)
	}
	rewritten = append(rewritten, searchPaths...)
	if len(searchPaths) == 0 && namePattern != "" {
		rewritten = append(rewritten, ".")
	}
	return rewritten, true
}

// rewriteCatArguments translates cat to bat with plain styling so the output
// stays byte-compatible with cat.
func rewriteCatArguments(arguments []string, rule Rule) ([]string, bool) {
	rewritten := []string{batPlainStyleFlagConstant}
	for _, argument := range arguments {
		if !strings.HasPrefix(argument, "-") {
			rewritten = append(rewritten, argument)
			continue
		}
		if mapped, hasMapping := rule.FlagMappings[argument]; hasMapping {
			if mapped != "" {
				rewritten = append(rewritten, mapped)
			}
			continue
		}
		if containsFlag(rule.PreserveFlags, argument) {
			rewritten = append(rewritten, argument)
		}
	}
	return rewritten, true
}

// rewritePreservedFlagArguments copies preserved flags and positional
// arguments, dropping everything else. Used where the replacement tool's
// defaults already improve on the classic command.
func rewritePreservedFlagArguments(arguments []string, rule Rule) ([]string, bool) {
	rewritten := make([]string, 0, len(arguments))
	for _, argument := range arguments {
		if !strings.HasPrefix(argument, "-") || containsFlag(rule.PreserveFlags, argument) {
			rewritten = append(rewritten, argument)
		}
	}
	return rewritten, true
}

// rewriteSedArguments translates simple s/pattern/replacement/ substitutions
// to sd. Anything beyond a single substitution expression keeps sed.
func rewriteSedArguments(arguments []string) ([]string, bool) {
	if len(arguments) == 0 {
		return nil, false
	}
	captures := sedSubstitutionPattern.FindStringSubmatch(arguments[0])
	if captures == nil {
		return nil, false
	}
	rewritten := []string{captures[1], captures[2]}
	rewritten = append(rewritten, arguments[1:]...)
	return rewritten, true
}

func (engine *Engine) resolveReplacementTool(commandName string, rule Rule) (string, bool) {
	if engine.probe.isAvailable(rule.Replacement) {
		return rule.Replacement, true
	}
	// eza and exa are drop-in alternatives for each other.
	if commandName == listCommandNameConstant && engine.probe.isAvailable(exaToolNameConstant) {
		return exaToolNameConstant, true
	}
	return "", false
}

func (engine *Engine) matchesFallbackPattern(commandText string) bool {
	for _, pattern := range engine.fallbackPatterns {
		if pattern.MatchString(commandText) {
			return true
		}
	}
	return false
}

func (engine *Engine) logSkip(commandText string, reason string) {
	engine.logger.Debug(rewriteSkippedLogMessageConstant,
		zap.String(logFieldOriginalCommandConstant, commandText),
		zap.String(logFieldSkipReasonConstant, reason),
	)
}

func contextFlagShortForm(flag string) string {
	switch flag {
	case "--after-context":
		return "-A"
	case "--before-context":
		return "-B"
	case "--context":
		return "-C"
	default:
		return flag
	}
}

func translateFindType(typeCharacter string) (string, bool) {
	switch typeCharacter {
	case "f":
		return "file", true
	case "d":
		return "directory", true
	case "l":
		return "symlink", true
	default:
		return "", false
	}
}

func containsFlag(flags []string, candidate string) bool {
	for _, flag := range flags {
		if flag == candidate {
			return true
		}
	}
	return false
}

func hasRipgrepIgnoreFlags(arguments []string) bool {
	for _, argument := range arguments {
		switch argument {
		case ripgrepNoIgnoreFlagConstant, ripgrepHiddenFlagConstant, "-u", "--unrestricted":
			return true
		}
	}
	return false
}

// detectGitRepository walks up from the starting directory looking for git
// metadata.
func detectGitRepository(startDirectory string) bool {
	currentDirectory := startDirectory
	if currentDirectory == "" {
		workingDirectory, workingDirectoryError := os.Getwd()
		if workingDirectoryError != nil {
			return false
		}
		currentDirectory = workingDirectory
	}
	for {
		if _, statError := os.Stat(filepath.Join(currentDirectory, gitMetadataDirectoryNameConstant)); statError == nil {
			return true
		}
		parentDirectory := filepath.Dir(currentDirectory)
		if parentDirectory == currentDirectory {
			return false
		}
		currentDirectory = parentDirectory
	}
}
