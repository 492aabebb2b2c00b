package management

import (
	"errors"
	"fmt"
)

var (
	// ErrCommandNotFound is returned when no config provides a command.
	ErrCommandNotFound = errors.New("command not found")
	// ErrRequiresProject is returned when a project command is resolved
	// without an active project.
	ErrRequiresProject = errors.New("command requires a project")
	// ErrForbidden is returned when a project is outside a command's
	// allow-list.
	ErrForbidden = errors.New("project does not have access to this command")
	// ErrOptionNotFound is returned by Config.GetOption under config.Strict.
	ErrOptionNotFound = errors.New("no such option")
)

// CommandError is a failure meant to be shown to the user as is. ReturnCode
// becomes the process exit code.
type CommandError struct {
	Err        error
	ReturnCode int
}

// NewCommandError formats a CommandError with exit code 1.
func NewCommandError(format string, args ...any) *CommandError {
	return &CommandError{Err: fmt.Errorf(format, args...), ReturnCode: 1}
}

func (e *CommandError) Error() string { return e.Err.Error() }

func (e *CommandError) Unwrap() error { return e.Err }

// ExitCode returns the exit code err maps to: 0 for nil, the ReturnCode of a
// CommandError in the chain, 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ce *CommandError
	if errors.As(err, &ce) {
		return ce.ReturnCode
	}
	return 1
}
