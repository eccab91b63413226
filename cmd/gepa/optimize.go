package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/longregen/gepa/internal/gepa"
	"github.com/longregen/gepa/internal/llm"
	"github.com/longregen/gepa/internal/prompt"
	"github.com/longregen/gepa/pkg/otel"
)

// optimizeCmd runs a GEPA optimization for a single-stage program defined by
// a signature, a seed instruction, and JSONL datasets.
func optimizeCmd() *cobra.Command {
	var (
		trainPath       string
		valPath         string
		signatureStr    string
		stageName       string
		instruction     string
		instructionFile string
		metricName      string
		maxMetricCalls  int
		minibatchSize   int
		seed            int64
		runDir          string
		useMerge        bool
		selector        string
		trackOutputs    bool
	)

	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Run a GEPA optimization",
		Long: `Run a GEPA optimization over a single-stage program.

The train and val datasets are JSONL files of {"inputs": {...}, "outputs": {...}}
records. The signature names the stage's input and output fields, e.g.
"question -> answer"; the metric scores predicted outputs against gold outputs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			telemetry, err := otel.Init(otel.Config{
				ServiceName: cfg.Telemetry.ServiceName,
				Environment: cfg.Telemetry.Environment,
				TraceFile:   cfg.Telemetry.TraceFile,
			})
			if err != nil {
				return fmt.Errorf("init telemetry: %w", err)
			}
			logger := telemetry.Logger
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = telemetry.Shutdown(shutdownCtx)
			}()

			if cfg.Telemetry.MetricsAddr != "" {
				go func() {
					mux := http.NewServeMux()
					mux.Handle("/metrics", promhttp.Handler())
					if err := http.ListenAndServe(cfg.Telemetry.MetricsAddr, mux); err != nil {
						logger.Error("metrics server stopped", "error", err)
					}
				}()
			}

			if instructionFile != "" {
				data, err := os.ReadFile(instructionFile)
				if err != nil {
					return fmt.Errorf("read instruction file: %w", err)
				}
				instruction = string(data)
			}
			if instruction == "" {
				return fmt.Errorf("an instruction is required (--instruction or --instruction-file)")
			}

			sig, err := prompt.ParseSignature(signatureStr)
			if err != nil {
				return err
			}
			metric, err := prompt.MetricByName(metricName)
			if err != nil {
				return err
			}

			trainExamples, err := prompt.LoadExamples(trainPath)
			if err != nil {
				return err
			}
			valExamples, err := prompt.LoadExamples(valPath)
			if err != nil {
				return err
			}

			taskModel := cfg.LLM.TaskModel
			if taskModel == "" {
				taskModel = cfg.LLM.Model
			}
			taskClient := llm.NewClient(cfg.LLM.URL, cfg.LLM.APIKey,
				llm.WithModel(taskModel),
				llm.WithMaxTokens(cfg.LLM.MaxTokens),
				llm.WithTemperature(float32(cfg.LLM.Temperature)),
			)
			reflectionClient := llm.NewClient(cfg.LLM.URL, cfg.LLM.APIKey,
				llm.WithModel(cfg.LLM.Model),
				llm.WithMaxTokens(cfg.LLM.MaxTokens),
			)

			stages := []prompt.Stage{{
				Name:        stageName,
				Signature:   sig,
				Instruction: instruction,
			}}
			adapter, err := prompt.NewProgramAdapter(
				stages,
				metric,
				prompt.NewClientAdapter(taskClient),
				reflectionClient,
				prompt.WithConcurrency(cfg.Optimizer.EvalConcurrency),
				prompt.WithLogger(logger),
			)
			if err != nil {
				return err
			}

			engine, err := gepa.New(gepa.Config{
				SeedCandidate:       adapter.SeedCandidate(),
				Trainset:            prompt.ToDataset(trainExamples),
				Valset:              prompt.ToDataset(valExamples),
				MaxMetricCalls:      maxMetricCalls,
				PerfectScore:        cfg.Optimizer.PerfectScore,
				SkipPerfectScore:    cfg.Optimizer.SkipPerfectScore,
				MinibatchSize:       minibatchSize,
				CandidateSelector:   selector,
				UseMerge:            useMerge,
				MaxMergeInvocations: cfg.Optimizer.MaxMergeInvocations,
				Seed:                seed,
				RunDir:              runDir,
				TrackBestOutputs:    trackOutputs,
				DisplayProgress:     true,
			}, adapter, gepa.WithLogger(logger))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			result, err := engine.Run(ctx)
			if err != nil {
				logger.Error("optimization aborted", "error", err)
			}
			if result == nil {
				return err
			}

			printResultSummary(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&trainPath, "train", "", "Training dataset (JSONL)")
	cmd.Flags().StringVar(&valPath, "val", "", "Validation dataset (JSONL)")
	cmd.Flags().StringVar(&signatureStr, "signature", "question -> answer", "Stage signature")
	cmd.Flags().StringVar(&stageName, "stage", "predictor", "Stage (component) name")
	cmd.Flags().StringVar(&instruction, "instruction", "", "Seed instruction text")
	cmd.Flags().StringVar(&instructionFile, "instruction-file", "", "File holding the seed instruction")
	cmd.Flags().StringVar(&metricName, "metric", "exact_match", "Metric: exact_match or token_overlap")
	cmd.Flags().IntVar(&maxMetricCalls, "max-metric-calls", 0, "Budget on example evaluations (0 = config default)")
	cmd.Flags().IntVar(&minibatchSize, "minibatch-size", 0, "Minibatch size (0 = config default)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "RNG seed")
	cmd.Flags().StringVar(&runDir, "run-dir", "", "Artifact directory")
	cmd.Flags().BoolVar(&useMerge, "merge", false, "Enable the merge proposer")
	cmd.Flags().StringVar(&selector, "selector", "pareto", "Candidate selector: pareto or current_best")
	cmd.Flags().BoolVar(&trackOutputs, "track-best-outputs", false, "Persist best outputs per validation instance")
	_ = cmd.MarkFlagRequired("train")
	_ = cmd.MarkFlagRequired("val")

	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if maxMetricCalls <= 0 {
			maxMetricCalls = cfg.Optimizer.MaxMetricCalls
		}
		if minibatchSize <= 0 {
			minibatchSize = cfg.Optimizer.MinibatchSize
		}
		if seed == 0 {
			seed = cfg.Optimizer.Seed
		}
		if runDir == "" {
			runDir = cfg.Optimizer.RunDir
		}
		return nil
	}

	return cmd
}
