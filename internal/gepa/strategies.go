package gepa

import (
	"context"
	"math/rand"

	"go.opentelemetry.io/otel/trace"

	"github.com/longregen/gepa/pkg/otel"
)

// CandidateSelector picks the parent archive index for the next proposal.
type CandidateSelector interface {
	SelectCandidateIdx(ctx context.Context, state *State) (int, error)
}

// ParetoCandidateSelector samples a parent from the per-instance Pareto
// fronts, weighted by front membership.
type ParetoCandidateSelector struct {
	rng *rand.Rand
}

func NewParetoCandidateSelector(rng *rand.Rand) *ParetoCandidateSelector {
	return &ParetoCandidateSelector{rng: rng}
}

func (s *ParetoCandidateSelector) SelectCandidateIdx(ctx context.Context, state *State) (int, error) {
	_, span := otel.Tracer("gepa").Start(ctx, "gepa.strategies.candidate_selector",
		trace.WithAttributes(
			otel.Strategy("pareto"),
			otel.Iteration(state.Iteration),
		))
	defer span.End()

	idx, err := SampleFromParetoFront(state.Fronts, state.AggregateScores, s.rng)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	span.SetAttributes(otel.CandidateIdx(idx))
	return idx, nil
}

// CurrentBestCandidateSelector always picks the highest-aggregate candidate.
type CurrentBestCandidateSelector struct{}

func (s *CurrentBestCandidateSelector) SelectCandidateIdx(ctx context.Context, state *State) (int, error) {
	_, span := otel.Tracer("gepa").Start(ctx, "gepa.strategies.candidate_selector",
		trace.WithAttributes(
			otel.Strategy("current_best"),
			otel.Iteration(state.Iteration),
		))
	defer span.End()

	idx := idxmax(state.AggregateScores)
	span.SetAttributes(otel.CandidateIdx(idx))
	return idx, nil
}

// ComponentSelector decides which components of the parent candidate the
// reflective proposer should rewrite this iteration.
type ComponentSelector interface {
	SelectComponents(ctx context.Context, state *State, batch *EvaluationBatch, scores []float64, parentIdx int, parent Candidate) ([]string, error)
}

// RoundRobinComponentSelector cycles through the sorted component names,
// keeping one cursor per parent so repeated selections of the same parent
// visit its components in order.
type RoundRobinComponentSelector struct {
	cursors map[int]int
}

func NewRoundRobinComponentSelector() *RoundRobinComponentSelector {
	return &RoundRobinComponentSelector{cursors: make(map[int]int)}
}

func (s *RoundRobinComponentSelector) SelectComponents(ctx context.Context, state *State, batch *EvaluationBatch, scores []float64, parentIdx int, parent Candidate) ([]string, error) {
	_, span := otel.Tracer("gepa").Start(ctx, "gepa.strategies.component_selector",
		trace.WithAttributes(
			otel.Strategy("round_robin"),
			otel.Iteration(state.Iteration),
			otel.CandidateIdx(parentIdx),
		))
	defer span.End()

	names := parent.Components()
	if len(names) == 0 {
		return nil, ErrInvariantViolated
	}
	cursor := s.cursors[parentIdx] % len(names)
	s.cursors[parentIdx] = cursor + 1

	name := names[cursor]
	span.SetAttributes(otel.Component(name))
	return []string{name}, nil
}

// MinibatchSampler hands out training-set indices for proposal evaluation.
// Two calls in the same iteration return the same indices so the proposer
// evaluates parent and child on identical data.
type MinibatchSampler interface {
	NextMinibatchIndices(ctx context.Context, datasetSize, iteration int) ([]int, error)
}

// EpochShuffledSampler walks a seeded shuffle of the training set, reshuffling
// whenever the permutation is exhausted (a new epoch).
type EpochShuffledSampler struct {
	batchSize int
	rng       *rand.Rand

	perm []int
	pos  int

	cachedIteration int
	cachedIndices   []int
}

func NewEpochShuffledSampler(batchSize int, rng *rand.Rand) *EpochShuffledSampler {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &EpochShuffledSampler{batchSize: batchSize, rng: rng, cachedIteration: -1}
}

func (s *EpochShuffledSampler) NextMinibatchIndices(ctx context.Context, datasetSize, iteration int) ([]int, error) {
	_, span := otel.Tracer("gepa").Start(ctx, "gepa.strategies.minibatch_sampler",
		trace.WithAttributes(
			otel.Strategy("epoch_shuffled"),
			otel.Iteration(iteration),
		))
	defer span.End()

	if datasetSize <= 0 {
		return nil, ErrEmptyDataset
	}
	if iteration == s.cachedIteration && s.cachedIndices != nil {
		return append([]int(nil), s.cachedIndices...), nil
	}

	want := s.batchSize
	if want > datasetSize {
		want = datasetSize
	}

	indices := make([]int, 0, want)
	for len(indices) < want {
		if s.pos >= len(s.perm) || len(s.perm) != datasetSize {
			s.perm = s.rng.Perm(datasetSize)
			s.pos = 0
		}
		indices = append(indices, s.perm[s.pos])
		s.pos++
	}

	s.cachedIteration = iteration
	s.cachedIndices = append([]int(nil), indices...)
	span.SetAttributes(otel.BatchSize(len(indices)))
	return indices, nil
}
