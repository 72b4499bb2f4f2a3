package logging

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewWithWriter_EmitsServiceField(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger, err := NewWithWriter("production", "info", &buf)
	if err != nil {
		t.Fatalf("NewWithWriter() error = %v", err)
	}
	logger.Info().Str("channel", "yuk_markazi").Msg("crawl started")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v (%q)", err, buf.String())
	}
	if line["service"] != "cargoscoop" {
		t.Fatalf("service = %v, want cargoscoop", line["service"])
	}
	if line["channel"] != "yuk_markazi" {
		t.Fatalf("channel = %v", line["channel"])
	}
}

func TestNewWithWriter_RejectsUnknownLevel(t *testing.T) {
	t.Parallel()

	if _, err := NewWithWriter("local", "loud", &bytes.Buffer{}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}
