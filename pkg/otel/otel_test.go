package otel

import (
	"log/slog"
	"strings"
	"testing"
)

func TestPrettyHandlerQuotesValuesWithSpaces(t *testing.T) {
	var sb strings.Builder
	logger := slog.New(NewPrettyHandler(&sb, slog.LevelInfo))

	logger.Info("proposal accepted", "component", "predictor", "instruction", "Answer the question.")

	line := sb.String()
	if !strings.Contains(line, "component=predictor") {
		t.Errorf("expected bare value, got %q", line)
	}
	if !strings.Contains(line, `instruction="Answer the question."`) {
		t.Errorf("expected quoted value, got %q", line)
	}
	if !strings.HasSuffix(line, "\n") {
		t.Errorf("expected trailing newline, got %q", line)
	}
}

func TestPrettyHandlerLevelFilter(t *testing.T) {
	var sb strings.Builder
	logger := slog.New(NewPrettyHandler(&sb, slog.LevelWarn))

	logger.Info("dropped")
	logger.Warn("kept")

	if strings.Contains(sb.String(), "dropped") {
		t.Errorf("info line should be filtered: %q", sb.String())
	}
	if !strings.Contains(sb.String(), "WARN kept") {
		t.Errorf("warn line missing: %q", sb.String())
	}
}

func TestPrettyHandlerGroupsAndAttrs(t *testing.T) {
	var sb strings.Builder
	logger := slog.New(NewPrettyHandler(&sb, slog.LevelInfo)).
		With("run_id", "run_x").
		WithGroup("engine")

	logger.Info("iteration", "idx", 3)

	line := sb.String()
	if !strings.Contains(line, "run_id=run_x") {
		t.Errorf("expected pre-rendered attr, got %q", line)
	}
	if !strings.Contains(line, "engine.idx=3") {
		t.Errorf("expected group-prefixed key, got %q", line)
	}
}

func TestPrettyHandlerDerivedDoesNotMutateBase(t *testing.T) {
	var sb strings.Builder
	base := NewPrettyHandler(&sb, slog.LevelInfo)

	slog.New(base.WithAttrs([]slog.Attr{slog.String("side", "a")})).Info("one")
	slog.New(base).Info("two")

	lines := strings.Split(strings.TrimSpace(sb.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected two lines, got %q", lines)
	}
	if !strings.Contains(lines[0], "side=a") {
		t.Errorf("derived line missing attr: %q", lines[0])
	}
	if strings.Contains(lines[1], "side=a") {
		t.Errorf("base handler picked up derived attrs: %q", lines[1])
	}
}
