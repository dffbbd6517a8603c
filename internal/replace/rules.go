// Package replace rewrites classic Unix commands to modern replacements
// (grep to rg, find to fd, and so on) when the replacement tool is installed
// and the invocation translates without semantic drift. Commands that cannot
// be translated faithfully pass through unchanged.
package replace

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	grepCommandNameConstant = "grep"
	findCommandNameConstant = "find"
	catCommandNameConstant  = "cat"
	listCommandNameConstant = "ls"
	sedCommandNameConstant  = "sed"
	psCommandNameConstant   = "ps"

	ripgrepToolNameConstant = "rg"
	fdToolNameConstant      = "fd"
	batToolNameConstant     = "bat"
	ezaToolNameConstant     = "eza"
	exaToolNameConstant     = "exa"
	sdToolNameConstant      = "sd"
	procsToolNameConstant   = "procs"

	defaultToolCheckTTLMillisCount = 1000

	ruleFileReadFailedTemplateConstant  = "failed to read rule file %s: %w"
	ruleFileParseFailedTemplateConstant = "failed to parse rule file %s: %w"
	ruleFilePathEmptyMessageConstant    = "rule file path must not be empty"
)

// ErrRuleFilePathEmpty indicates LoadRuleSet received an empty path.
var ErrRuleFilePathEmpty = errors.New(ruleFilePathEmptyMessageConstant)

// Rule describes how one classic command maps to its modern replacement.
type Rule struct {
	// Enabled toggles the rule without removing it from the set.
	Enabled bool `yaml:"enabled"`
	// Replacement is the modern tool the classic command rewrites to.
	Replacement string `yaml:"replacement"`
	// PreserveFlags lists flags copied through unchanged.
	PreserveFlags []string `yaml:"preserve_flags"`
	// FlagMappings maps classic flags to replacement flags; an empty value
	// drops the flag.
	FlagMappings map[string]string `yaml:"flag_mappings"`
	// FallbackToOriginal keeps the classic command when the replacement tool
	// is not installed.
	FallbackToOriginal bool `yaml:"fallback_to_original"`
}

// Settings carries rule-set-wide behavior switches.
type Settings struct {
	// ToolCheckTTLMillis bounds how long tool availability checks are cached.
	ToolCheckTTLMillis int64 `yaml:"tool_check_ttl_ms"`
	// CacheToolChecks disables the availability cache when false.
	CacheToolChecks bool `yaml:"cache_tool_checks"`
	// SemanticAnalysis suppresses rewrites matching FallbackPatterns.
	SemanticAnalysis bool `yaml:"semantic_analysis"`
	// FallbackPatterns are regular expressions naming invocations that must
	// keep their exact classic behavior.
	FallbackPatterns []string `yaml:"fallback_patterns"`
}

// RuleSet is the full replacement configuration keyed by classic command name.
type RuleSet struct {
	Rules    map[string]Rule `yaml:"rules"`
	Settings Settings        `yaml:"settings"`
}

// DefaultRuleSet returns the built-in replacement rules.
func DefaultRuleSet() RuleSet {
	return RuleSet{
		Rules: map[string]Rule{
			grepCommandNameConstant: {
				Enabled:     true,
				Replacement: ripgrepToolNameConstant,
				PreserveFlags: []string{
					"--color", "-n", "--line-number", "-i", "--ignore-case",
					"-v", "--invert-match", "-r", "--recursive", "-A", "-B", "-C",
				},
				FlagMappings:       map[string]string{},
				FallbackToOriginal: true,
			},
			findCommandNameConstant: {
				Enabled:     true,
				Replacement: fdToolNameConstant,
				PreserveFlags: []string{
					"-t", "--type", "-e", "--extension",
					"-H", "--hidden", "-I", "--no-ignore",
				},
				FlagMappings: map[string]string{
					"-name":  "",
					"-iname": "-i",
				},
				FallbackToOriginal: true,
			},
			catCommandNameConstant: {
				Enabled:       true,
				Replacement:   batToolNameConstant,
				PreserveFlags: []string{"--number"},
				FlagMappings: map[string]string{
					"-n": "--number",
				},
				FallbackToOriginal: true,
			},
			listCommandNameConstant: {
				Enabled:     true,
				Replacement: ezaToolNameConstant,
				PreserveFlags: []string{
					"-l", "-a", "--all", "-h", "--human-readable",
					"-t", "--time", "-r", "--reverse",
				},
				FlagMappings:       map[string]string{},
				FallbackToOriginal: true,
			},
			sedCommandNameConstant: {
				Enabled:            true,
				Replacement:        sdToolNameConstant,
				PreserveFlags:      []string{},
				FlagMappings:       map[string]string{},
				FallbackToOriginal: true,
			},
			psCommandNameConstant: {
				Enabled:            true,
				Replacement:        procsToolNameConstant,
				PreserveFlags:      []string{"-a", "-u", "-x", "-f"},
				FlagMappings:       map[string]string{},
				FallbackToOriginal: true,
			},
		},
		Settings: Settings{
			ToolCheckTTLMillis: defaultToolCheckTTLMillisCount,
			CacheToolChecks:    true,
			SemanticAnalysis:   true,
			FallbackPatterns: []string{
				`grep.*-P`,
				`grep.*--null-data`,
				`find.*-exec`,
				`find.*-size`,
				`find.*-perm`,
			},
		},
	}
}

// LoadRuleSet reads a YAML rule file and overlays it on the defaults. Rules
// present in the file replace the default rule of the same name; settings in
// the file replace the default settings wholesale when the settings block is
// present.
func LoadRuleSet(ruleFilePath string) (RuleSet, error) {
	if ruleFilePath == "" {
		return RuleSet{}, ErrRuleFilePathEmpty
	}

	fileContents, readError := os.ReadFile(ruleFilePath)
	if readError != nil {
		return RuleSet{}, fmt.Errorf(ruleFileReadFailedTemplateConstant, ruleFilePath, readError)
	}

	var loaded RuleSet
	if parseError := yaml.Unmarshal(fileContents, &loaded); parseError != nil {
		return RuleSet{}, fmt.Errorf(ruleFileParseFailedTemplateConstant, ruleFilePath, parseError)
	}

	merged := DefaultRuleSet()
	for commandName, rule := range loaded.Rules {
		merged.Rules[commandName] = rule
	}
	if loaded.Settings.ToolCheckTTLMillis > 0 {
		merged.Settings = loaded.Settings
	}
	return merged, nil
}
