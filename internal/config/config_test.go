package config

import (
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.LLM.URL != "http://localhost:8000/v1" {
		t.Errorf("unexpected default LLM URL: %s", cfg.LLM.URL)
	}
	if cfg.Optimizer.MinibatchSize != 3 {
		t.Errorf("unexpected default minibatch size: %d", cfg.Optimizer.MinibatchSize)
	}
	if !cfg.Optimizer.SkipPerfectScore {
		t.Error("expected skip_perfect_score default true")
	}
	if cfg.Optimizer.CandidateSelector != "pareto" {
		t.Errorf("unexpected default selector: %s", cfg.Optimizer.CandidateSelector)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("GEPA_LLM_MODEL", "gpt-4o")
	t.Setenv("GEPA_MAX_METRIC_CALLS", "500")
	t.Setenv("GEPA_LLM_TEMPERATURE", "0.2")
	t.Setenv("GEPA_USE_MERGE", "true")

	cfg := Load()

	if cfg.LLM.Model != "gpt-4o" {
		t.Errorf("expected model override, got %s", cfg.LLM.Model)
	}
	if cfg.Optimizer.MaxMetricCalls != 500 {
		t.Errorf("expected budget override, got %d", cfg.Optimizer.MaxMetricCalls)
	}
	if cfg.LLM.Temperature != 0.2 {
		t.Errorf("expected temperature override, got %v", cfg.LLM.Temperature)
	}
	if !cfg.Optimizer.UseMerge {
		t.Error("expected merge enabled")
	}
}

func TestEnvHelpersIgnoreGarbage(t *testing.T) {
	t.Setenv("GEPA_MAX_METRIC_CALLS", "not-a-number")
	t.Setenv("GEPA_USE_MERGE", "maybe")

	cfg := Load()

	if cfg.Optimizer.MaxMetricCalls != 200 {
		t.Errorf("expected default on parse failure, got %d", cfg.Optimizer.MaxMetricCalls)
	}
	if cfg.Optimizer.UseMerge {
		t.Error("expected default on parse failure")
	}
}
