package prompt

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/XiaoConstantine/dspy-go/pkg/core"
	"github.com/XiaoConstantine/dspy-go/pkg/modules"
	"golang.org/x/sync/errgroup"

	"github.com/longregen/gepa/internal/gepa"
	"github.com/longregen/gepa/internal/llm"
)

// Stage is one named pipeline step. Name doubles as the optimizable
// component name; Instruction is the seed instruction text.
type Stage struct {
	Name        string
	Signature   Signature
	Instruction string
}

// StageTrace records what one stage saw and produced for a single example.
type StageTrace struct {
	Component string         `json:"component"`
	Inputs    map[string]any `json:"inputs"`
	Outputs   map[string]any `json:"outputs"`
}

// Trajectory is the full execution trace of one example through the
// pipeline, plus the metric verdict.
type Trajectory struct {
	Stages   []StageTrace `json:"stages"`
	Score    float64      `json:"score"`
	Feedback string       `json:"feedback"`
}

// AdapterOption configures a ProgramAdapter.
type AdapterOption func(*ProgramAdapter)

// WithConcurrency bounds parallel example evaluation.
func WithConcurrency(n int) AdapterOption {
	return func(a *ProgramAdapter) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

// WithLogger sets the adapter logger.
func WithLogger(logger *slog.Logger) AdapterOption {
	return func(a *ProgramAdapter) {
		a.logger = logger
	}
}

// WithMaxReflectiveExamples caps the records per component in the reflection
// corpus.
func WithMaxReflectiveExamples(n int) AdapterOption {
	return func(a *ProgramAdapter) {
		if n > 0 {
			a.maxReflective = n
		}
	}
}

// ProgramAdapter implements gepa.Adapter over a pipeline of dspy-go Predict
// stages. The engine hands it opaque dataset elements; this adapter requires
// them to be prompt.Example values.
type ProgramAdapter struct {
	stages       []Stage
	metric       Metric
	taskLM       core.LLM
	reflectionLM ReflectionLM

	concurrency   int
	maxReflective int
	logger        *slog.Logger
}

// ReflectionLM is the narrow surface the adapter needs from the reflection
// model client; *llm.Client satisfies it.
type ReflectionLM interface {
	Chat(ctx context.Context, messages []llm.Message) (string, error)
}

// NewProgramAdapter wires a pipeline, metric, task LM, and reflection LM
// into a gepa.Adapter.
func NewProgramAdapter(stages []Stage, metric Metric, taskLM core.LLM, reflectionLM ReflectionLM, opts ...AdapterOption) (*ProgramAdapter, error) {
	if len(stages) == 0 {
		return nil, fmt.Errorf("pipeline needs at least one stage")
	}
	seen := make(map[string]struct{}, len(stages))
	for _, st := range stages {
		if st.Name == "" {
			return nil, fmt.Errorf("stage name cannot be empty")
		}
		if _, dup := seen[st.Name]; dup {
			return nil, fmt.Errorf("duplicate stage name %q", st.Name)
		}
		seen[st.Name] = struct{}{}
	}

	a := &ProgramAdapter{
		stages:        stages,
		metric:        metric,
		taskLM:        taskLM,
		reflectionLM:  reflectionLM,
		concurrency:   4,
		maxReflective: 5,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// SeedCandidate returns the component → instruction mapping of the pipeline
// as configured, suitable as the engine's seed.
func (a *ProgramAdapter) SeedCandidate() gepa.Candidate {
	seed := make(gepa.Candidate, len(a.stages))
	for _, st := range a.stages {
		seed[st.Name] = st.Instruction
	}
	return seed
}

// Evaluate runs the candidate's pipeline over every dataset example.
// Examples are evaluated with bounded parallelism; the returned batch is
// index-aligned with the dataset.
func (a *ProgramAdapter) Evaluate(ctx context.Context, dataset []any, candidate gepa.Candidate, captureTraces bool) (*gepa.EvaluationBatch, error) {
	n := len(dataset)
	batch := &gepa.EvaluationBatch{
		Outputs: make([]any, n),
		Scores:  make([]float64, n),
	}
	if captureTraces {
		batch.Trajectories = make([]any, n)
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i := range dataset {
		g.Go(func() error {
			ex, ok := dataset[i].(Example)
			if !ok {
				return fmt.Errorf("dataset element %d is %T, want prompt.Example", i, dataset[i])
			}
			outputs, traj, err := a.runPipeline(gCtx, candidate, ex, captureTraces)
			if err != nil {
				return fmt.Errorf("example %d: %w", i, err)
			}
			verdict, err := a.metric.Score(gCtx, ex, outputs)
			if err != nil {
				return fmt.Errorf("score example %d: %w", i, err)
			}
			batch.Outputs[i] = outputs
			batch.Scores[i] = verdict.Score
			if captureTraces {
				traj.Score = verdict.Score
				traj.Feedback = verdict.Feedback
				batch.Trajectories[i] = traj
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return batch, nil
}

// runPipeline executes the stages in order, threading each stage's outputs
// into the next stage's inputs.
func (a *ProgramAdapter) runPipeline(ctx context.Context, candidate gepa.Candidate, ex Example, captureTraces bool) (map[string]any, *Trajectory, error) {
	inputs := make(map[string]any, len(ex.Inputs))
	for k, v := range ex.Inputs {
		inputs[k] = v
	}

	var traj *Trajectory
	if captureTraces {
		traj = &Trajectory{}
	}

	var outputs map[string]any
	for _, st := range a.stages {
		sig := st.Signature.Signature.WithInstruction(candidate[st.Name])
		predict := modules.NewPredict(sig)
		predict.SetLLM(a.taskLM)

		stageInputs := make(map[string]any, len(st.Signature.Inputs))
		for _, name := range st.Signature.InputNames() {
			stageInputs[name] = inputs[name]
		}

		out, err := predict.Process(ctx, stageInputs)
		if err != nil {
			return nil, nil, fmt.Errorf("stage %s: %w", st.Name, err)
		}

		stageOutputs := make(map[string]any, len(st.Signature.Outputs))
		for _, name := range st.Signature.OutputNames() {
			stageOutputs[name] = out[name]
			inputs[name] = out[name]
		}
		outputs = stageOutputs

		if captureTraces {
			traj.Stages = append(traj.Stages, StageTrace{
				Component: st.Name,
				Inputs:    stageInputs,
				Outputs:   stageOutputs,
			})
		}
	}
	return outputs, traj, nil
}

// MakeReflectiveDataset distills stage traces into per-component reflection
// records.
func (a *ProgramAdapter) MakeReflectiveDataset(ctx context.Context, candidate gepa.Candidate, batch *gepa.EvaluationBatch, components []string) (gepa.ReflectiveDataset, error) {
	reflective := make(gepa.ReflectiveDataset, len(components))
	for _, name := range components {
		var records []gepa.ReflectiveExample
		for _, raw := range batch.Trajectories {
			traj, ok := raw.(*Trajectory)
			if !ok || traj == nil {
				continue
			}
			for _, st := range traj.Stages {
				if st.Component != name {
					continue
				}
				records = append(records, gepa.ReflectiveExample{
					Inputs:           st.Inputs,
					GeneratedOutputs: st.Outputs,
					Feedback:         traj.Feedback,
				})
				break
			}
			if len(records) >= a.maxReflective {
				break
			}
		}
		reflective[name] = records
	}
	return reflective, nil
}

// ProposeNewTexts asks the reflection LM for an improved instruction per
// component. Empty or ambiguous responses are reported as
// gepa.ErrMalformedReflection so the engine records a rejected proposal.
func (a *ProgramAdapter) ProposeNewTexts(ctx context.Context, candidate gepa.Candidate, reflective gepa.ReflectiveDataset, components []string) (map[string]string, error) {
	newTexts := make(map[string]string, len(components))
	for _, name := range components {
		prompt := buildReflectionPrompt(candidate[name], reflective[name])
		response, err := a.reflectionLM.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}})
		if err != nil {
			return nil, fmt.Errorf("reflection for %s: %w", name, err)
		}
		text, ok := ExtractFencedBlock(response)
		if !ok || text == "" {
			return nil, fmt.Errorf("reflection for %s: %w", name, gepa.ErrMalformedReflection)
		}
		a.logger.InfoContext(ctx, "reflection proposed new instruction",
			"component", name, "length", len(text))
		newTexts[name] = text
	}
	return newTexts, nil
}
