package gepa

import "context"

// EvaluationBatch is the result of running a candidate over a dataset.
// Outputs and Scores are index-aligned with the dataset; Trajectories is
// populated only when traces were captured and is opaque to the engine.
type EvaluationBatch struct {
	Outputs      []any
	Scores       []float64
	Trajectories []any
}

// Mean returns the arithmetic mean of the batch scores, 0 for an empty batch.
func (b *EvaluationBatch) Mean() float64 {
	return mean(b.Scores)
}

// ReflectiveExample is one record of the reflection corpus: what a component
// saw, what the program produced, and textual feedback on the outcome. The
// JSON keys are part of the reflection prompt format.
type ReflectiveExample struct {
	Inputs           any    `json:"Inputs"`
	GeneratedOutputs any    `json:"Generated Outputs"`
	Feedback         string `json:"Feedback"`
}

// ReflectiveDataset maps component names to their reflection records.
type ReflectiveDataset map[string][]ReflectiveExample

// Adapter runs candidates against tasks on behalf of the engine. The engine
// never inspects what a candidate does; it only sees component names,
// instruction texts, and per-example scores.
type Adapter interface {
	// Evaluate runs the candidate on every dataset example. The returned
	// batch must satisfy |Outputs| == |Scores| == |dataset|; when
	// captureTraces is set, Trajectories must be index-aligned too.
	Evaluate(ctx context.Context, dataset []any, candidate Candidate, captureTraces bool) (*EvaluationBatch, error)

	// MakeReflectiveDataset distills an evaluation batch (including its
	// trajectories) into per-component reflection records.
	MakeReflectiveDataset(ctx context.Context, candidate Candidate, batch *EvaluationBatch, components []string) (ReflectiveDataset, error)

	// ProposeNewTexts invokes the reflection LM and returns new instruction
	// text for each requested component.
	ProposeNewTexts(ctx context.Context, candidate Candidate, reflective ReflectiveDataset, components []string) (map[string]string, error)
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
