// Package config loads GEPA configuration from environment variables.
package config

import (
	"os"
	"strconv"
)

// Config holds all configuration for the gepa CLI
type Config struct {
	LLM       LLMConfig       `json:"llm"`
	Optimizer OptimizerConfig `json:"optimizer"`
	Telemetry TelemetryConfig `json:"telemetry"`
}

// LLMConfig holds the reflection LLM API configuration (OpenAI-compatible)
type LLMConfig struct {
	URL         string  `json:"url"`
	APIKey      string  `json:"api_key"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	// TaskModel runs the program under optimization; defaults to Model.
	TaskModel string `json:"task_model"`
}

// OptimizerConfig holds defaults for the optimization engine
type OptimizerConfig struct {
	MaxMetricCalls      int     `json:"max_metric_calls"`
	MinibatchSize       int     `json:"minibatch_size"`
	PerfectScore        float64 `json:"perfect_score"`
	SkipPerfectScore    bool    `json:"skip_perfect_score"`
	CandidateSelector   string  `json:"candidate_selector"`
	UseMerge            bool    `json:"use_merge"`
	MaxMergeInvocations int     `json:"max_merge_invocations"`
	Seed                int64   `json:"seed"`
	RunDir              string  `json:"run_dir"`
	TrackBestOutputs    bool    `json:"track_best_outputs"`
	EvalConcurrency     int     `json:"eval_concurrency"`
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	ServiceName string `json:"service_name"`
	Environment string `json:"environment"`
	TraceFile   string `json:"trace_file"`
	MetricsAddr string `json:"metrics_addr"`
}

// Load builds a Config from environment variables with defaults.
func Load() *Config {
	return &Config{
		LLM: LLMConfig{
			URL:         GetEnv("GEPA_LLM_URL", "http://localhost:8000/v1"),
			APIKey:      GetEnv("GEPA_LLM_API_KEY", ""),
			Model:       GetEnv("GEPA_LLM_MODEL", "gpt-4o-mini"),
			TaskModel:   GetEnv("GEPA_TASK_MODEL", ""),
			MaxTokens:   GetEnvInt("GEPA_LLM_MAX_TOKENS", 4096),
			Temperature: GetEnvFloat("GEPA_LLM_TEMPERATURE", 0.7),
		},
		Optimizer: OptimizerConfig{
			MaxMetricCalls:      GetEnvInt("GEPA_MAX_METRIC_CALLS", 200),
			MinibatchSize:       GetEnvInt("GEPA_MINIBATCH_SIZE", 3),
			PerfectScore:        GetEnvFloat("GEPA_PERFECT_SCORE", 1.0),
			SkipPerfectScore:    GetEnvBool("GEPA_SKIP_PERFECT_SCORE", true),
			CandidateSelector:   GetEnv("GEPA_CANDIDATE_SELECTOR", "pareto"),
			UseMerge:            GetEnvBool("GEPA_USE_MERGE", false),
			MaxMergeInvocations: GetEnvInt("GEPA_MAX_MERGE_INVOCATIONS", 5),
			Seed:                int64(GetEnvInt("GEPA_SEED", 0)),
			RunDir:              GetEnv("GEPA_RUN_DIR", ""),
			TrackBestOutputs:    GetEnvBool("GEPA_TRACK_BEST_OUTPUTS", false),
			EvalConcurrency:     GetEnvInt("GEPA_EVAL_CONCURRENCY", 4),
		},
		Telemetry: TelemetryConfig{
			ServiceName: GetEnv("GEPA_SERVICE_NAME", "gepa"),
			Environment: GetEnv("GEPA_ENVIRONMENT", "development"),
			TraceFile:   GetEnv("GEPA_TRACE_FILE", ""),
			MetricsAddr: GetEnv("GEPA_METRICS_ADDR", ""),
		},
	}
}

func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func GetEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if result, err := strconv.Atoi(value); err == nil {
			return result
		}
	}
	return defaultValue
}

func GetEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if result, err := strconv.ParseFloat(value, 64); err == nil {
			return result
		}
	}
	return defaultValue
}

func GetEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
