// Package localexec runs task commands on the local machine behind an allowlist.
package localexec

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/fentz26/taskdeck/internal/connectors"
)

// anyArgs marks a program that may run with any arguments.
var anyArgs []string

// allowedCommands maps a program to the subcommands it may run with.
var allowedCommands = map[string][]string{
	"echo":     anyArgs,
	"date":     anyArgs,
	"sleep":    anyArgs,
	"true":     anyArgs,
	"false":    anyArgs,
	"uname":    anyArgs,
	"hostname": anyArgs,
	"git":      {"status", "log", "diff"},
	"go":       {"version", "env"},
}

// LocalExec implements the Connector interface for local command execution.
type LocalExec struct {
	workDir string
	extra   map[string]bool
}

// New creates a new LocalExec connector. Extra programs are allowed with any arguments.
func New(workDir string, extra ...string) *LocalExec {
	l := &LocalExec{workDir: workDir, extra: map[string]bool{}}
	for _, name := range extra {
		l.extra[name] = true
	}
	return l
}

// Name returns the connector identifier.
func (l *LocalExec) Name() string {
	return "localexec"
}

// IsAllowed checks if a command is in the allowlist.
func (l *LocalExec) IsAllowed(cmd string, args []string) bool {
	if l.extra[cmd] {
		return true
	}
	allowedSubcmds, ok := allowedCommands[cmd]
	if !ok {
		return false
	}
	if allowedSubcmds == nil {
		return true
	}
	if len(args) == 0 {
		return false
	}

	subcmd := args[0]
	for _, allowed := range allowedSubcmds {
		if subcmd == allowed {
			return true
		}
	}
	return false
}

// Execute runs a command if it's in the allowlist.
func (l *LocalExec) Execute(ctx context.Context, cmd string, args []string) (*connectors.ExecResult, error) {
	if !l.IsAllowed(cmd, args) {
		return nil, fmt.Errorf("command not allowed: %s %s", cmd, strings.Join(args, " "))
	}

	execCmd := exec.CommandContext(ctx, cmd, args...)
	if l.workDir != "" {
		execCmd.Dir = l.workDir
	}

	var stdout, stderr bytes.Buffer
	execCmd.Stdout = &stdout
	execCmd.Stderr = &stderr

	exitCode := 0
	if err := execCmd.Run(); err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			return nil, fmt.Errorf("exec error: %w", err)
		}
		exitCode = exitErr.ExitCode()
	}

	return &connectors.ExecResult{
		Command:  cmd,
		Args:     args,
		ExitCode: exitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}, nil
}
