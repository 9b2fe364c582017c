package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{" WARN ", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"off", zerolog.Disabled},
		{"nonsense", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in, zerolog.InfoLevel); got != tt.want {
			t.Errorf("ParseLevel(%q): expected %s, got %s", tt.in, tt.want, got)
		}
	}
}

func TestNewConsole_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewConsole(&buf, "warn")

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("Expected info message to be filtered")
	}
	if !strings.Contains(out, "shown") {
		t.Error("Expected warn message to be written")
	}
}

func TestNewFile_AppendsJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "taskdeck.log")
	logger, closer, err := NewFile(path, "info")
	if err != nil {
		t.Fatalf("NewFile failed: %v", err)
	}
	tuiLogger := Component(logger, "tui")
	tuiLogger.Info().Str("task_id", "backup").Msg("selected")
	closer.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}
	line := string(data)
	if !strings.Contains(line, `"component":"tui"`) {
		t.Errorf("Expected component field, got %s", line)
	}
	if !strings.Contains(line, `"task_id":"backup"`) {
		t.Errorf("Expected task_id field, got %s", line)
	}
}

func TestNewFile_LeavesGlobalsAlone(t *testing.T) {
	before := zerolog.ErrorFieldName
	path := filepath.Join(t.TempDir(), "taskdeck.log")
	_, closer, err := NewFile(path, "info")
	if err != nil {
		t.Fatalf("NewFile failed: %v", err)
	}
	closer.Close()
	NewConsole(&bytes.Buffer{}, "info")

	if zerolog.ErrorFieldName != before {
		t.Errorf("Expected error field name %q to be untouched, got %q", before, zerolog.ErrorFieldName)
	}
}

func TestSetup_ErrorFieldName(t *testing.T) {
	Setup()
	Setup()

	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	logger.Error().Err(os.ErrNotExist).Msg("missing")

	if !strings.Contains(buf.String(), `"err":"file does not exist"`) {
		t.Errorf("Expected err field, got %s", buf.String())
	}
}
