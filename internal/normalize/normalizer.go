package normalize

import (
	"regexp"
	"strings"

	"github.com/shellbridge/shellbridge/internal/classify"
)

const (
	unixSequentialOperatorConstant         = " && "
	consoleSequentialOperatorConstant      = " ; "
	unixDrivePathPatternConstant           = `(^|\s)/([A-Za-z])(/[^\s]*|$|\s)`
	drivePathSeparatorConstant             = `\`
	driveSuffixConstant                    = ":"
	unixPathSeparatorConstant              = "/"
	shellFrontEndBashTokenConstant         = "bash"
	shellFrontEndShTokenConstant           = "sh"
	shellFrontEndRunCommandFlagConstant    = "-c"
	powerShellInvocationPrefixConstant     = "powershell.exe -NoProfile -Command "
	defaultMemoTableCapacityConstant       = 500
	memoEvictionBatchDivisorConstant       = 5
	minimumMemoTableCapacityConstant       = 1
	minimumMemoEvictionCountConstant       = 1
	unixDrivePathDetectionHintConstant     = ":/"
	unixDrivePathLeadingSlashHintConstant  = "/"
	sequentialOperatorDetectionHint        = "&&"
	frontEndDetectionSeparatorSetConstant  = " \t"
)

var unixDrivePathPattern = regexp.MustCompile(unixDrivePathPatternConstant)

// shellFrontEndTokens names the cross-platform shell front-ends rewritten to
// the native PowerShell-family executable when no run-command flag is given.
var shellFrontEndTokens = map[string]struct{}{
	shellFrontEndBashTokenConstant: {},
	shellFrontEndShTokenConstant:   {},
}

// Normalizer rewrites Unix-style operators and paths into backend-native
// syntax, memoizing results keyed by the exact input text.
type Normalizer struct {
	memoTable *memoTable
}

// NewNormalizer constructs a Normalizer with the default memo table capacity.
func NewNormalizer() *Normalizer {
	return NewNormalizerWithCapacity(defaultMemoTableCapacityConstant)
}

// NewNormalizerWithCapacity constructs a Normalizer whose memo table holds at
// most the provided number of entries before batch eviction.
func NewNormalizerWithCapacity(memoCapacity int) *Normalizer {
	return &Normalizer{memoTable: newMemoTable(memoCapacity)}
}

// Normalize rewrites the raw command text for the target backend. Repeated
// calls with the same text are O(1) after the first.
func (normalizer *Normalizer) Normalize(rawCommandText string) string {
	if memoizedText, textMemoized := normalizer.memoTable.lookup(rawCommandText); textMemoized {
		return memoizedText
	}

	normalizedText := normalizeCommandText(rawCommandText)
	normalizer.memoTable.store(rawCommandText, normalizedText)
	return normalizedText
}

func normalizeCommandText(rawCommandText string) string {
	normalizedText := rewriteSequentialOperators(rawCommandText)
	normalizedText = rewriteUnixDrivePaths(normalizedText)
	normalizedText = rewriteShellFrontEndInvocation(normalizedText)
	return normalizedText
}

// rewriteSequentialOperators replaces the Unix unconditional sequential AND
// operator with the console-shell sequential operator. A bare single
// background operator is left untouched.
func rewriteSequentialOperators(commandText string) string {
	if !strings.Contains(commandText, sequentialOperatorDetectionHint) {
		return commandText
	}
	return strings.ReplaceAll(commandText, unixSequentialOperatorConstant, consoleSequentialOperatorConstant)
}

// rewriteUnixDrivePaths converts Unix-style absolute paths with a single
// drive-letter segment into native drive-letter form. Subsystem invocations
// are skipped entirely so subsystem-native paths are never corrupted.
// The pattern consumes the whitespace that bounds a bare drive path, so
// replacement repeats until a fixpoint to catch adjacent bare paths.
func rewriteUnixDrivePaths(commandText string) string {
	if !strings.Contains(commandText, unixDrivePathLeadingSlashHintConstant) {
		return commandText
	}
	if classify.IsSubsystemInvocation(commandText) {
		return commandText
	}

	for {
		rewrittenText := rewriteUnixDrivePathsOnce(commandText)
		if rewrittenText == commandText {
			return rewrittenText
		}
		commandText = rewrittenText
	}
}

func rewriteUnixDrivePathsOnce(commandText string) string {
	return unixDrivePathPattern.ReplaceAllStringFunc(commandText, func(matchedPath string) string {
		submatches := unixDrivePathPattern.FindStringSubmatch(matchedPath)
		if submatches == nil {
			return matchedPath
		}

		leadingSeparator := submatches[1]
		driveLetter := strings.ToUpper(submatches[2])
		pathRemainder := submatches[3]

		var trailingWhitespace string
		if trimmedRemainder := strings.TrimRight(pathRemainder, frontEndDetectionSeparatorSetConstant); trimmedRemainder != pathRemainder {
			trailingWhitespace = pathRemainder[len(trimmedRemainder):]
			pathRemainder = trimmedRemainder
		}

		nativeRemainder := strings.ReplaceAll(pathRemainder, unixPathSeparatorConstant, drivePathSeparatorConstant)
		if len(nativeRemainder) == 0 {
			nativeRemainder = drivePathSeparatorConstant
		}

		return leadingSeparator + driveLetter + driveSuffixConstant + nativeRemainder + trailingWhitespace
	})
}

// rewriteShellFrontEndInvocation rewrites an invocation of a cross-platform
// shell front-end lacking an explicit run-command flag into a direct
// PowerShell-family invocation that skips the user profile.
func rewriteShellFrontEndInvocation(commandText string) string {
	trimmedText := strings.TrimSpace(commandText)
	separatorIndex := strings.IndexAny(trimmedText, frontEndDetectionSeparatorSetConstant)
	if separatorIndex < 0 {
		return commandText
	}

	firstToken := strings.ToLower(trimmedText[:separatorIndex])
	if _, frontEndKnown := shellFrontEndTokens[firstToken]; !frontEndKnown {
		return commandText
	}

	remainder := strings.TrimSpace(trimmedText[separatorIndex+1:])
	if len(remainder) == 0 {
		return commandText
	}
	if hasRunCommandFlag(remainder) {
		return commandText
	}

	return powerShellInvocationPrefixConstant + remainder
}

func hasRunCommandFlag(commandRemainder string) bool {
	for _, argumentToken := range strings.Fields(commandRemainder) {
		if argumentToken == shellFrontEndRunCommandFlagConstant {
			return true
		}
	}
	return false
}
