package cli

import (
	"errors"
	"fmt"
)

// Exit codes reported by the quorum command. Scripts branch on these, so
// they are part of the CLI contract.
const (
	ExitOK      = 0
	ExitFailure = 1 // command ran and failed (provider or store errors)
	ExitConfig  = 2 // bad configuration or flags; nothing was attempted
)

// ConfigError reports an invalid or unloadable configuration. Field names
// the offending config path when one can be named.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("config error: %s", e.Message)
	}
	return fmt.Sprintf("config error in %s: %s", e.Field, e.Message)
}

// ExitCode marks configuration problems as exit 2.
func (e *ConfigError) ExitCode() int { return ExitConfig }

// CommandError wraps a failure from a command that got past configuration.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s failed: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ExitCode marks runtime failures as exit 1.
func (e *CommandError) ExitCode() int { return ExitFailure }

// NewConfigError creates a ConfigError for field.
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{
		Field:   field,
		Message: message,
	}
}

// NewCommandError wraps err as a CommandError for command.
func NewCommandError(command string, err error) *CommandError {
	return &CommandError{
		Command: command,
		Err:     err,
	}
}

// ExitCode extracts the exit code an error asks for. Plain errors exit
// ExitFailure; nil exits ExitOK.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var coder interface{ ExitCode() int }
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	return ExitFailure
}
