package log

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestNewWithWriterTextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: slog.LevelDebug})

	logger.Debug("hello", "key", "value")

	out := buf.String()
	if !strings.Contains(out, "hello") {
		t.Errorf("expected output to contain message, got %q", out)
	}
	if !strings.Contains(out, "key=value") {
		t.Errorf("expected output to contain key=value, got %q", out)
	}
}

func TestNewWithWriterJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{JSON: true})

	logger.Info("structured")

	out := buf.String()
	if !strings.HasPrefix(out, "{") {
		t.Errorf("expected JSON output, got %q", out)
	}
	if !strings.Contains(out, `"msg":"structured"`) {
		t.Errorf("expected msg field, got %q", out)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: slog.LevelWarn})

	logger.Info("suppressed")
	if buf.Len() != 0 {
		t.Errorf("info should be suppressed at warn level, got %q", buf.String())
	}

	logger.Warn("emitted")
	if buf.Len() == 0 {
		t.Error("warn should be emitted at warn level")
	}
}

func TestNewNopDiscards(t *testing.T) {
	logger := NewNop()
	// Must not panic, must not write anywhere observable.
	logger.Error("goes nowhere", "a", 1)
}
