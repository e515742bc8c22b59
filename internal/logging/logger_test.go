package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewLoggerDefaultsToInfoLevel(t *testing.T) {
	l := NewLogger(nil)
	if l.level != LevelInfo {
		t.Fatalf("expected default level Info, got %v", l.level)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&Config{Level: LevelWarn, Output: &buf})

	l.Debug("should not appear")
	l.Info("should not appear either")
	if buf.Len() != 0 {
		t.Fatalf("expected no output below configured level, got %q", buf.String())
	}

	l.Warn("heads up")
	if !strings.Contains(buf.String(), "[WARN] heads up") {
		t.Fatalf("expected warn message in output, got %q", buf.String())
	}
}

func TestFormatArgs(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&Config{Level: LevelDebug, Output: &buf})

	l.Debug("connecting", "host", "sim.example.org", "port", 9000)
	out := buf.String()
	if !strings.Contains(out, "[DEBUG] connecting host=sim.example.org port=9000") {
		t.Fatalf("unexpected formatted output: %q", out)
	}
}

func TestDefaultLoggerIsSingleton(t *testing.T) {
	a := Default()
	b := Default()
	if a != b {
		t.Fatal("expected Default() to return the same logger instance")
	}
}

func TestSetDefault(t *testing.T) {
	var buf bytes.Buffer
	custom := NewLogger(&Config{Level: LevelDebug, Output: &buf})
	SetDefault(custom)
	defer SetDefault(NewLogger(nil))

	Info("hello")
	if !strings.Contains(buf.String(), "[INFO] hello") {
		t.Fatalf("expected SetDefault logger to receive message, got %q", buf.String())
	}
}
