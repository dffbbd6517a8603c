package engine

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

const environmentVariableTemplateConstant = "%s=%s"

// ProcessSpecification describes the child process to launch. The executable
// and arguments come straight out of a shell plan; the engine never invokes
// raw command text directly.
type ProcessSpecification struct {
	ExecutablePath   string
	Arguments        []string
	WorkingDirectory string
	ExtraEnvironment map[string]string
}

// ProcessHandle is a live child process with buffered output capture.
type ProcessHandle interface {
	// OSProcess exposes the underlying process for pool tracking.
	OSProcess() *os.Process
	// Done yields the wait result exactly once when the process exits.
	Done() <-chan error
	// CapturedStdout returns everything written to stdout so far.
	CapturedStdout() string
	// CapturedStderr returns everything written to stderr so far.
	CapturedStderr() string
	// SignalTerminate asks the process to exit gracefully.
	SignalTerminate() error
	// ForceKill terminates the process immediately.
	ForceKill() error
}

// ProcessRunner launches child processes. Implementations must not block
// in Start beyond what the operating system requires to fork and exec.
type ProcessRunner interface {
	Start(executionContext context.Context, specification ProcessSpecification) (ProcessHandle, error)
}

// OSProcessRunner launches real operating system processes.
type OSProcessRunner struct{}

// NewOSProcessRunner creates a runner backed by os/exec.
func NewOSProcessRunner() *OSProcessRunner {
	return &OSProcessRunner{}
}

// Start launches the specified process with stdout and stderr buffered in
// memory. Cancellation of the surrounding context is handled by the caller
// through the handle; the command itself is not tied to the context so the
// caller can distinguish graceful and forceful termination.
func (runner *OSProcessRunner) Start(executionContext context.Context, specification ProcessSpecification) (ProcessHandle, error) {
	if contextError := executionContext.Err(); contextError != nil {
		return nil, contextError
	}
	command := exec.Command(specification.ExecutablePath, specification.Arguments...)
	if specification.WorkingDirectory != "" {
		command.Dir = specification.WorkingDirectory
	}
	if len(specification.ExtraEnvironment) > 0 {
		command.Env = os.Environ()
		for variableName, variableValue := range specification.ExtraEnvironment {
			command.Env = append(command.Env, fmt.Sprintf(environmentVariableTemplateConstant, variableName, variableValue))
		}
	}
	handle := &osProcessHandle{waitChannel: make(chan error, 1)}
	command.Stdout = &handle.stdoutBuffer
	command.Stderr = &handle.stderrBuffer
	if startError := command.Start(); startError != nil {
		return nil, startError
	}
	handle.command = command
	go func() {
		handle.waitChannel <- command.Wait()
	}()
	return handle, nil
}

type osProcessHandle struct {
	command      *exec.Cmd
	stdoutBuffer bytes.Buffer
	stderrBuffer bytes.Buffer
	waitChannel  chan error
}

func (handle *osProcessHandle) OSProcess() *os.Process {
	return handle.command.Process
}

func (handle *osProcessHandle) Done() <-chan error {
	return handle.waitChannel
}

func (handle *osProcessHandle) CapturedStdout() string {
	return handle.stdoutBuffer.String()
}

func (handle *osProcessHandle) CapturedStderr() string {
	return handle.stderrBuffer.String()
}

func (handle *osProcessHandle) SignalTerminate() error {
	return handle.command.Process.Signal(syscall.SIGTERM)
}

func (handle *osProcessHandle) ForceKill() error {
	return handle.command.Process.Kill()
}
