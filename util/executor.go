package hotspotutil

import (
	"context"
	"os"
	"os/exec"

	"github.com/pkg/errors"
)

var _ CommandExecutor = (*systemCommandExecutor)(nil)

// The command executor is an abstraction layer on top of the exec package to
// improve testability and allow mocking the operating system operations.
type CommandExecutor interface {
	// Runs a command and returns its combined output. The returned error
	// carries the exit status when the command ran but exited non-zero.
	Output(string, ...string) ([]byte, error)
	// Runs a command discarding its output. Some callers only care about
	// the exit status (e.g., firewall rule existence checks).
	Run(string, ...string) error
	LookPath(string) (string, error)
	IsFileExist(string) bool
}

// Executes the given command in the operating system.
type systemCommandExecutor struct{}

// Constructs the command executor that invokes the requests in the
// operating system.
func NewSystemCommandExecutor() CommandExecutor {
	return &systemCommandExecutor{}
}

// Executes a given command and returns its combined output.
func (e *systemCommandExecutor) Output(command string, args ...string) ([]byte, error) {
	return exec.CommandContext(context.Background(), command, args...).CombinedOutput()
}

// Executes a given command discarding the output.
func (e *systemCommandExecutor) Run(command string, args ...string) error {
	return exec.CommandContext(context.Background(), command, args...).Run()
}

// Looks for a given command in the system PATH and returns absolute path if found.
func (e *systemCommandExecutor) LookPath(command string) (string, error) {
	return exec.LookPath(command)
}

// Looks for a given file. Returns true if the path exists, is accessible, and
// points to a regular file.
func (e *systemCommandExecutor) IsFileExist(path string) bool {
	if stat, err := os.Stat(path); err == nil {
		return stat.Mode().IsRegular()
	}
	return false
}

// Returns true when the error carries a command exit status, i.e. the
// command started but exited non-zero. Distinguishes "rule not present"
// from "iptables not installed" style failures.
func IsExitError(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr)
}
