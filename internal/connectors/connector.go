// Package connectors defines how the development backend executes task commands.
package connectors

import (
	"context"
	"errors"
	"fmt"

	"github.com/kballard/go-shellquote"
)

// ErrEmptyCommand is returned when a task has no command to run.
var ErrEmptyCommand = errors.New("empty command")

// ExecResult holds the result of a command execution.
type ExecResult struct {
	Command  string   `json:"command"`
	Args     []string `json:"args"`
	ExitCode int      `json:"exit_code"`
	Stdout   string   `json:"stdout"`
	Stderr   string   `json:"stderr"`
}

// Connector defines the interface for executing commands.
type Connector interface {
	// Name returns the connector identifier.
	Name() string

	// Execute runs a command and returns the result.
	Execute(ctx context.Context, cmd string, args []string) (*ExecResult, error)

	// IsAllowed checks if a command is allowed to execute.
	IsAllowed(cmd string, args []string) bool
}

// ParseCommand splits a task command line into a program and its arguments
// using shell quoting rules. No shell is involved when the command runs.
func ParseCommand(line string) (string, []string, error) {
	words, err := shellquote.Split(line)
	if err != nil {
		return "", nil, fmt.Errorf("parse command %q: %w", line, err)
	}
	if len(words) == 0 {
		return "", nil, ErrEmptyCommand
	}
	return words[0], words[1:], nil
}
