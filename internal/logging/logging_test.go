package logging

import (
	"context"
	"log/slog"
	"testing"
)

func TestNewLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "bogus"} {
		if logger := New(level, "text"); logger == nil {
			t.Errorf("New(%q) returned nil", level)
		}
	}
}

func TestNewJSONFormat(t *testing.T) {
	if logger := New("info", "json"); logger == nil {
		t.Error("New with json format returned nil")
	}
}

func TestContextRoundTrip(t *testing.T) {
	logger := New("info", "text")
	ctx := WithLogger(context.Background(), logger)

	if got := L(ctx); got != logger {
		t.Error("L should return the logger stored in context")
	}
}

func TestLFallsBackToDefault(t *testing.T) {
	if got := L(context.Background()); got != slog.Default() {
		t.Error("L should fall back to slog.Default for bare contexts")
	}
}

func TestForChain(t *testing.T) {
	logger := New("info", "text")
	if got := ForChain(logger, 84532); got == nil {
		t.Error("ForChain returned nil")
	}
}
