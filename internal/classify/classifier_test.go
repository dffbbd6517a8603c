package classify_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shellbridge/shellbridge/internal/classify"
)

func TestClassifyDetectorOrdering(t *testing.T) {
	testCases := []struct {
		name            string
		commandText     string
		expectedBackend classify.BackendKind
		expectedBinary  string
	}{
		{
			name:            "SubsystemPrefixToken",
			commandText:     "wsl ls -la /home",
			expectedBackend: classify.BackendPosixSubsystem,
			expectedBinary:  "wsl.exe",
		},
		{
			name:            "SubsystemExecutablePrefix",
			commandText:     "wsl.exe uname -a",
			expectedBackend: classify.BackendPosixSubsystem,
			expectedBinary:  "wsl.exe",
		},
		{
			name:            "SubsystemMountPath",
			commandText:     "cat /mnt/c/Users/dev/notes.txt",
			expectedBackend: classify.BackendPosixSubsystem,
			expectedBinary:  "wsl.exe",
		},
		{
			name:            "CmdletToken",
			commandText:     "Get-Process | Sort-Object CPU",
			expectedBackend: classify.BackendPowerShellFamily,
			expectedBinary:  "powershell.exe",
		},
		{
			name:            "SessionStateVariable",
			commandText:     "echo $PSVersionTable",
			expectedBackend: classify.BackendPowerShellFamily,
			expectedBinary:  "powershell.exe",
		},
		{
			name:            "ModuleImport",
			commandText:     "Import-Module Az",
			expectedBackend: classify.BackendPowerShellFamily,
			expectedBinary:  "powershell.exe",
		},
		{
			name:            "RevisionControlPrefix",
			commandText:     "git status --short",
			expectedBackend: classify.BackendConsoleShell,
			expectedBinary:  "cmd.exe",
		},
		{
			name:            "PackageManagerPrefix",
			commandText:     "npm install --save-dev typescript",
			expectedBackend: classify.BackendConsoleShell,
			expectedBinary:  "cmd.exe",
		},
		{
			name:            "ContainerEnginePrefix",
			commandText:     "docker ps -a",
			expectedBackend: classify.BackendConsoleShell,
			expectedBinary:  "cmd.exe",
		},
		{
			name:            "DefaultConsoleShell",
			commandText:     "echo hello ; echo world",
			expectedBackend: classify.BackendConsoleShell,
			expectedBinary:  "cmd.exe",
		},
	}

	classifier := classify.NewClassifier()

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			plan := classifier.Classify(testCase.commandText, "")
			require.Equal(t, testCase.expectedBackend, plan.Backend)
			require.Equal(t, testCase.expectedBinary, plan.Executable)
		})
	}
}

func TestClassifySubsystemWinsOverLaterDetectors(t *testing.T) {
	classifier := classify.NewClassifier()

	// Detector ordering is first-match: a wsl prefix beats a cmdlet token.
	plan := classifier.Classify("wsl Get-Process", "")
	require.Equal(t, classify.BackendPosixSubsystem, plan.Backend)

	// A cmdlet token beats a foreign ecosystem prefix appearing later.
	plan = classifier.Classify("Invoke-Expression 'git status'", "")
	require.Equal(t, classify.BackendPowerShellFamily, plan.Backend)
}

func TestClassifyOverrideWinsUnconditionally(t *testing.T) {
	classifier := classify.NewClassifier()

	plan := classifier.Classify("git status", classify.BackendPowerShellFamily)
	require.Equal(t, classify.BackendPowerShellFamily, plan.Backend)
	require.Equal(t, "powershell.exe", plan.Executable)

	plan = classifier.Classify("Get-Process", classify.BackendConsoleShell)
	require.Equal(t, classify.BackendConsoleShell, plan.Backend)
}

func TestClassifyDeterministicAcrossRepeatedCalls(t *testing.T) {
	classifier := classify.NewClassifier()
	commandText := "npm run build"

	firstPlan := classifier.Classify(commandText, "")
	for callIndex := 0; callIndex < 10; callIndex++ {
		require.Equal(t, firstPlan, classifier.Classify(commandText, ""))
	}
}

func TestCommandArgumentsSingleArgumentMode(t *testing.T) {
	classifier := classify.NewClassifier()
	commandText := "echo hello ; echo world"

	plan := classifier.Classify(commandText, "")
	arguments := plan.CommandArguments(commandText)
	require.Equal(t, []string{"/c", commandText}, arguments)
}

func TestCommandArgumentsPowerShellTemplate(t *testing.T) {
	classifier := classify.NewClassifier()
	commandText := "Get-Process"

	plan := classifier.Classify(commandText, "")
	arguments := plan.CommandArguments(commandText)
	require.Equal(t, []string{"-NoProfile", "-Command", commandText}, arguments)
}

func TestCommandArgumentsSubsystemRemainderVerbatim(t *testing.T) {
	classifier := classify.NewClassifier()
	commandText := "wsl ls -la /home"

	plan := classifier.Classify(commandText, "")
	arguments := plan.CommandArguments(commandText)
	require.Equal(t, []string{"ls -la /home"}, arguments)
}

func TestCommandArgumentsSubsystemRemainderKeepsInteriorSpacing(t *testing.T) {
	classifier := classify.NewClassifier()
	commandText := `wsl echo "a   b"`

	plan := classifier.Classify(commandText, "")
	arguments := plan.CommandArguments(commandText)
	require.Equal(t, []string{`echo "a   b"`}, arguments)
}

func TestCommandArgumentsSubsystemBareTokenHasNoRemainder(t *testing.T) {
	classifier := classify.NewClassifier()

	plan := classifier.Classify("wsl", "")
	require.Empty(t, plan.CommandArguments("wsl"))
}

func TestCommandArgumentsSubsystemMountPathWrapped(t *testing.T) {
	classifier := classify.NewClassifier()
	commandText := "cat /mnt/c/Users/dev/notes.txt"

	plan := classifier.Classify(commandText, "")
	arguments := plan.CommandArguments(commandText)
	require.Equal(t, []string{"-e", "sh", "-c", commandText}, arguments)
}

func TestIsSubsystemInvocation(t *testing.T) {
	require.True(t, classify.IsSubsystemInvocation("wsl uname"))
	require.True(t, classify.IsSubsystemInvocation("grep pattern /mnt/d/logs/app.log"))
	require.False(t, classify.IsSubsystemInvocation("echo /c/Users"))
	require.False(t, classify.IsSubsystemInvocation("git status"))
}

func TestSubsystemRemainder(t *testing.T) {
	require.Equal(t, "uname -a", classify.SubsystemRemainder("wsl uname -a"))
	require.Equal(t, "", classify.SubsystemRemainder("wsl"))
	require.Equal(t, "echo hi", classify.SubsystemRemainder("echo hi"))
}
