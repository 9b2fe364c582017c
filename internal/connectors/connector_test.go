package connectors

import (
	"errors"
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line string
		cmd  string
		args []string
	}{
		{"echo hello", "echo", []string{"hello"}},
		{`echo "backup done" now`, "echo", []string{"backup done", "now"}},
		{"  date  ", "date", []string{}},
		{`git status --short`, "git", []string{"status", "--short"}},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			cmd, args, err := ParseCommand(tt.line)
			if err != nil {
				t.Fatalf("ParseCommand failed: %v", err)
			}
			if cmd != tt.cmd {
				t.Errorf("Expected cmd %s, got %s", tt.cmd, cmd)
			}
			if len(args) != len(tt.args) {
				t.Fatalf("Expected %d args, got %v", len(tt.args), args)
			}
			for i := range args {
				if args[i] != tt.args[i] {
					t.Errorf("Expected arg %d to be %q, got %q", i, tt.args[i], args[i])
				}
			}
		})
	}
}

func TestParseCommandErrors(t *testing.T) {
	if _, _, err := ParseCommand("   "); !errors.Is(err, ErrEmptyCommand) {
		t.Errorf("Expected ErrEmptyCommand, got %v", err)
	}
	if _, _, err := ParseCommand(`echo "unterminated`); err == nil {
		t.Error("Expected error for unterminated quote")
	}
}
