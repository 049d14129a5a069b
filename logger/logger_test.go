package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestHandlerPlainOutput(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewHandler(&buf, Options{Level: slog.LevelDebug, NoColor: true}))

	ctx := ContextWithRequestID(context.Background(), 7)
	log.With("component", "gateway").WithGroup("upstream").InfoContext(ctx, "request done", "status", 200, "err", "none")

	line := buf.String()
	for _, want := range []string{"7 ", "INFO ", "| request done", " component=gateway", "upstream.status=200", "upstream.err=none"} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
	if strings.Contains(line, "\x1b[") {
		t.Errorf("NoColor output contains escape sequences: %q", line)
	}
	if !strings.HasSuffix(line, "\n") {
		t.Error("line not newline terminated")
	}
}

func TestHandlerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "warn", true)

	log.Info("dropped")
	log.Warn("kept")

	if strings.Contains(buf.String(), "dropped") {
		t.Error("info record written at warn level")
	}
	if !strings.Contains(buf.String(), "kept") {
		t.Error("warn record missing")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{" warning ", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestRequestIDFromContext(t *testing.T) {
	if _, ok := RequestIDFromContext(context.Background()); ok {
		t.Error("empty context reported a request id")
	}
	id, ok := RequestIDFromContext(ContextWithRequestID(context.Background(), 42))
	if !ok || id != 42 {
		t.Errorf("got %d, %v", id, ok)
	}
}
