package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "claimd.log")
	if err := Init(path); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer Cleanup()

	Info("refreshed session", "alice")
	Error("claim failed")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read log: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "INFO: ") || !strings.Contains(out, "refreshed session alice") {
		t.Errorf("info line missing from log: %q", out)
	}
	if !strings.Contains(out, "ERROR: ") || !strings.Contains(out, "claim failed") {
		t.Errorf("error line missing from log: %q", out)
	}

	if err := RotateLog(path); err != nil {
		t.Fatalf("RotateLog failed: %v", err)
	}
	data, _ = os.ReadFile(path)
	if len(data) != 0 {
		t.Errorf("rotated log should be empty, got %q", data)
	}
}

func TestLoggingBeforeInit(t *testing.T) {
	Cleanup()
	// Must not panic without a log file.
	Info("no file yet")
	Error("still no file")
}
