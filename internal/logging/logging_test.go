package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"chatty":  slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

// TestNew_JSON verifies format and level reach the handler.
func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, closeFn := New(Options{Level: "warn", Format: "json", Output: &buf})
	defer closeFn()

	logger.Info("hidden")
	logger.With("component", "test").Warn("shown", "rows", 3)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if rec["msg"] != "shown" || rec["component"] != "test" || rec["rows"] != 3.0 {
		t.Errorf("unexpected record: %v", rec)
	}
}

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := New(Options{Output: &buf})

	logger.Debug("hidden")
	logger.Info("hello", "table", "People")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("debug record written at info level")
	}
	if !strings.Contains(out, "msg=hello") || !strings.Contains(out, "table=People") {
		t.Errorf("unexpected output: %q", out)
	}
}

// TestNew_File verifies a configured file receives the output.
func TestNew_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "sheetbridge.log")
	logger, closeFn := New(Options{File: path, MaxSizeMB: 1})

	logger.Info("to file")
	if err := closeFn(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Errorf("log file missing record: %q", data)
	}
}

func TestDiscard(t *testing.T) {
	if Discard().Enabled(context.Background(), slog.LevelError) {
		t.Error("Discard() logger is enabled")
	}
}
