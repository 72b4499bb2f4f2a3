package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWithFile_WritesJSONLines(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cargoscoop.log")
	logger, closer, err := NewWithFile("production", "info", FileOptions{Path: path, MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("NewWithFile() error = %v", err)
	}
	logger.Info().Str("channel", "yuk_markazi").Msg("crawl completed")
	logger.Debug().Msg("below level")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 1 {
		t.Fatalf("log lines = %d, want 1:\n%s", len(lines), raw)
	}
	var line map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if line["service"] != "cargoscoop" || line["message"] != "crawl completed" {
		t.Fatalf("line = %v", line)
	}
}

func TestNewWithFile_WithoutPath(t *testing.T) {
	t.Parallel()

	_, closer, err := NewWithFile("local", "debug", FileOptions{})
	if err != nil {
		t.Fatalf("NewWithFile() error = %v", err)
	}
	if err := closer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}
