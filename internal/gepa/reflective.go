package gepa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/longregen/gepa/pkg/otel"
)

// Proposal is the outcome of one proposer attempt. Accepted reflects the
// minibatch acceptance policy (strict improvement); the engine still records
// rejected proposals in the trace.
type Proposal struct {
	Candidate        Candidate
	Tag              string
	ParentIdxs       []int
	SubsampleIndices []int
	ScoresBefore     []float64
	ScoresAfter      []float64
	Accepted         bool
}

// ReflectiveProposer produces single-parent mutations: it evaluates the
// parent on a minibatch with traces, asks the adapter to distill a
// reflective dataset, and has the reflection LM rewrite the selected
// components.
type ReflectiveProposer struct {
	adapter           Adapter
	trainset          []any
	candidateSelector CandidateSelector
	componentSelector ComponentSelector
	sampler           MinibatchSampler
	perfectScore      float64
	skipPerfectScore  bool
	logger            *slog.Logger
}

func NewReflectiveProposer(
	adapter Adapter,
	trainset []any,
	candidateSelector CandidateSelector,
	componentSelector ComponentSelector,
	sampler MinibatchSampler,
	perfectScore float64,
	skipPerfectScore bool,
	logger *slog.Logger,
) *ReflectiveProposer {
	return &ReflectiveProposer{
		adapter:           adapter,
		trainset:          trainset,
		candidateSelector: candidateSelector,
		componentSelector: componentSelector,
		sampler:           sampler,
		perfectScore:      perfectScore,
		skipPerfectScore:  skipPerfectScore,
		logger:            logger,
	}
}

// Propose runs one reflective mutation attempt. It returns the proposal (nil
// when the attempt was abandoned), the number of example evaluations
// consumed, and an error for failures the engine should log and skip.
func (p *ReflectiveProposer) Propose(ctx context.Context, state *State) (*Proposal, int, error) {
	ctx, span := otel.Tracer("gepa").Start(ctx, "gepa.proposer.reflective",
		trace.WithAttributes(
			otel.Proposer("reflective"),
			otel.Iteration(state.Iteration),
		))
	defer span.End()

	evalsUsed := 0

	parentIdx, err := p.candidateSelector.SelectCandidateIdx(ctx, state)
	if err != nil {
		return nil, evalsUsed, fmt.Errorf("select parent: %w", err)
	}
	parent := state.Candidates[parentIdx]
	span.SetAttributes(otel.ParentIdx(parentIdx))

	indices, err := p.sampler.NextMinibatchIndices(ctx, len(p.trainset), state.Iteration)
	if err != nil {
		return nil, evalsUsed, fmt.Errorf("sample minibatch: %w", err)
	}
	minibatch := make([]any, len(indices))
	for i, idx := range indices {
		minibatch[i] = p.trainset[idx]
	}

	parentBatch, err := p.adapter.Evaluate(ctx, minibatch, parent, true)
	if err != nil {
		return nil, evalsUsed, fmt.Errorf("evaluate parent on minibatch: %w", err)
	}
	evalsUsed += len(minibatch)
	scoresBefore := parentBatch.Scores

	if p.skipPerfectScore && allAtLeast(scoresBefore, p.perfectScore) {
		// The attempt is abandoned wholesale; nothing is charged against the
		// metric call budget.
		p.logger.InfoContext(ctx, "parent perfect on minibatch, abandoning proposal",
			"parent_idx", parentIdx, "iteration", state.Iteration)
		return nil, 0, nil
	}

	components, err := p.componentSelector.SelectComponents(ctx, state, parentBatch, scoresBefore, parentIdx, parent)
	if err != nil {
		return nil, evalsUsed, fmt.Errorf("select components: %w", err)
	}

	reflective, err := p.adapter.MakeReflectiveDataset(ctx, parent, parentBatch, components)
	if err != nil {
		return nil, evalsUsed, fmt.Errorf("build reflective dataset: %w", err)
	}
	if emptyReflective(reflective, components) {
		p.logger.WarnContext(ctx, "empty reflective dataset, abandoning proposal",
			"parent_idx", parentIdx, "components", components)
		return nil, evalsUsed, nil
	}

	newTexts, err := p.adapter.ProposeNewTexts(ctx, parent, reflective, components)
	if err != nil {
		if errors.Is(err, ErrMalformedReflection) {
			// The attempt still gets a trace entry; no child is evaluated, so
			// no budget is consumed twice.
			p.logger.WarnContext(ctx, "reflection output unusable, rejecting proposal",
				"parent_idx", parentIdx, "error", err)
			return &Proposal{
				Tag:              TagReflective,
				ParentIdxs:       []int{parentIdx},
				SubsampleIndices: indices,
				ScoresBefore:     scoresBefore,
				Accepted:         false,
			}, evalsUsed, nil
		}
		return nil, evalsUsed, fmt.Errorf("propose new texts: %w", err)
	}

	child := parent.Merge(newTexts)
	span.AddEvent("gepa.proposer.candidate")

	childBatch, err := p.adapter.Evaluate(ctx, minibatch, child, false)
	if err != nil {
		return nil, evalsUsed, fmt.Errorf("evaluate child on minibatch: %w", err)
	}
	evalsUsed += len(minibatch)
	scoresAfter := childBatch.Scores

	proposal := &Proposal{
		Candidate:        child,
		Tag:              TagReflective,
		ParentIdxs:       []int{parentIdx},
		SubsampleIndices: indices,
		ScoresBefore:     scoresBefore,
		ScoresAfter:      scoresAfter,
		Accepted:         mean(scoresAfter) > mean(scoresBefore),
	}
	span.SetAttributes(otel.Aggregate(mean(scoresAfter)))
	return proposal, evalsUsed, nil
}

func allAtLeast(scores []float64, threshold float64) bool {
	for _, s := range scores {
		if s < threshold {
			return false
		}
	}
	return len(scores) > 0
}

func emptyReflective(reflective ReflectiveDataset, components []string) bool {
	for _, name := range components {
		if len(reflective[name]) > 0 {
			return false
		}
	}
	return true
}
