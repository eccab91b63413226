package gepa

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mergeTestState builds an archive with common parent p and two descendants
// that each improved a different component.
func mergeTestState(t *testing.T) *State {
	t.Helper()
	s := NewState("run_test")
	err := s.Initialize(
		Candidate{"thought": "base", "planner": "base"},
		&EvaluationBatch{Outputs: []any{"o"}, Scores: []float64{0.5}},
		false,
	)
	require.NoError(t, err)

	_, _, err = s.UpdateWithNewProgram(
		[]int{0}, Candidate{"thought": "better", "planner": "base"}, 0.6, []any{"o"}, []float64{0.6}, 0,
	)
	require.NoError(t, err)
	_, _, err = s.UpdateWithNewProgram(
		[]int{0}, Candidate{"thought": "base", "planner": "better"}, 0.7, []any{"o"}, []float64{0.7}, 0,
	)
	require.NoError(t, err)
	return s
}

func mergeStubAdapter() *stubAdapter {
	return &stubAdapter{
		evaluate: func(ctx context.Context, dataset []any, c Candidate, capture bool) (*EvaluationBatch, error) {
			score := 0.0
			if c["thought"] == "better" {
				score += 0.4
			}
			if c["planner"] == "better" {
				score += 0.4
			}
			scores := make([]float64, len(dataset))
			for i := range scores {
				scores[i] = score
			}
			return &EvaluationBatch{Scores: scores, Outputs: make([]any, len(dataset))}, nil
		},
		propose: func(ctx context.Context, c Candidate, r ReflectiveDataset, comps []string) (map[string]string, error) {
			return nil, fmt.Errorf("merge proposer never reflects")
		},
	}
}

func newTestMerger(adapter Adapter, max int) *MergeProposer {
	sampler := NewEpochShuffledSampler(1, rand.New(rand.NewSource(5)))
	return NewMergeProposer(adapter, []any{"t0", "t1"}, sampler, max, slog.Default())
}

func TestMergeProposeCombinesDisjointImprovements(t *testing.T) {
	s := mergeTestState(t)
	m := newTestMerger(mergeStubAdapter(), 5)
	m.ScheduleIfNeeded()
	require.True(t, m.Due())

	proposal, used, err := m.Propose(context.Background(), s)
	require.NoError(t, err)
	require.NotNil(t, proposal)

	assert.Equal(t, TagMerge, proposal.Tag)
	assert.Equal(t, []int{1, 2}, proposal.ParentIdxs)
	assert.Equal(t, Candidate{"thought": "better", "planner": "better"}, proposal.Candidate)
	assert.True(t, proposal.Accepted)
	assert.Equal(t, 2, used)
	assert.False(t, m.Due())
}

func TestMergeProposeDedupsProducedCandidates(t *testing.T) {
	s := mergeTestState(t)
	m := newTestMerger(mergeStubAdapter(), 5)

	m.ScheduleIfNeeded()
	first, _, err := m.Propose(context.Background(), s)
	require.NoError(t, err)
	require.NotNil(t, first)

	m.ScheduleIfNeeded()
	second, used, err := m.Propose(context.Background(), s)
	assert.ErrorIs(t, err, ErrNoEligiblePair)
	assert.Nil(t, second)
	assert.Equal(t, 0, used)
	assert.True(t, m.Due(), "a fruitless attempt keeps its invocation credit")
}

func TestMergeScheduleCapped(t *testing.T) {
	m := newTestMerger(mergeStubAdapter(), 2)
	for i := 0; i < 5; i++ {
		m.ScheduleIfNeeded()
	}
	assert.Equal(t, 2, m.scheduled)
}

func TestMergeNoCommonAncestor(t *testing.T) {
	s := NewState("run_test")
	err := s.Initialize(
		Candidate{"thought": "base", "planner": "base"},
		&EvaluationBatch{Outputs: []any{"o"}, Scores: []float64{0.5}},
		false,
	)
	require.NoError(t, err)

	// One descendant only: no pair exists.
	_, _, err = s.UpdateWithNewProgram(
		[]int{0}, Candidate{"thought": "better", "planner": "base"}, 0.6, []any{"o"}, []float64{0.6}, 0,
	)
	require.NoError(t, err)

	m := newTestMerger(mergeStubAdapter(), 5)
	m.ScheduleIfNeeded()
	proposal, _, err := m.Propose(context.Background(), s)
	assert.ErrorIs(t, err, ErrNoEligiblePair)
	assert.Nil(t, proposal)
}

func TestMergeOverlappingChangesIneligible(t *testing.T) {
	s := NewState("run_test")
	err := s.Initialize(
		Candidate{"thought": "base", "planner": "base"},
		&EvaluationBatch{Outputs: []any{"o"}, Scores: []float64{0.5}},
		false,
	)
	require.NoError(t, err)

	// Both descendants changed the same component.
	_, _, err = s.UpdateWithNewProgram(
		[]int{0}, Candidate{"thought": "better", "planner": "base"}, 0.6, []any{"o"}, []float64{0.6}, 0,
	)
	require.NoError(t, err)
	_, _, err = s.UpdateWithNewProgram(
		[]int{0}, Candidate{"thought": "different", "planner": "base"}, 0.7, []any{"o"}, []float64{0.7}, 0,
	)
	require.NoError(t, err)

	m := newTestMerger(mergeStubAdapter(), 5)
	m.ScheduleIfNeeded()
	proposal, _, err := m.Propose(context.Background(), s)
	assert.ErrorIs(t, err, ErrNoEligiblePair)
	assert.Nil(t, proposal)
}

func TestAncestorSets(t *testing.T) {
	// 0 ← 1 ← 3, 0 ← 2; 3 and 2 share ancestor 0.
	parents := [][]int{{}, {0}, {0}, {1}}
	sets := ancestorSets(parents)

	assert.Empty(t, sets[0])
	assert.Equal(t, map[int]struct{}{0: {}}, sets[1])
	assert.Equal(t, map[int]struct{}{0: {}, 1: {}}, sets[3])

	mrca, ok := mostRecentCommonAncestor(sets, 3, 2)
	require.True(t, ok)
	assert.Equal(t, 0, mrca)
}
