package gepa

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedState(t *testing.T, scores []float64, trackOutputs bool) *State {
	t.Helper()
	outputs := make([]any, len(scores))
	for i := range outputs {
		outputs[i] = "seed output"
	}
	s := NewState("run_test")
	err := s.Initialize(
		Candidate{"instruction": "base"},
		&EvaluationBatch{Outputs: outputs, Scores: scores},
		trackOutputs,
	)
	require.NoError(t, err)
	return s
}

func TestInitializeSeedsFronts(t *testing.T) {
	s := seedState(t, []float64{0.5, 0.6}, false)

	assert.Len(t, s.Candidates, 1)
	assert.Equal(t, []float64{0.55}, s.AggregateScores)
	assert.Equal(t, []float64{0.5, 0.6}, s.FrontScores)
	for i := range s.Fronts {
		assert.Equal(t, map[int]struct{}{0: {}}, s.Fronts[i], "front %d", i)
	}
	assert.NoError(t, s.Consistent())
}

func TestInitializeIdempotent(t *testing.T) {
	a := seedState(t, []float64{0.5, 0.6}, true)
	b := seedState(t, []float64{0.5, 0.6}, true)

	assert.Equal(t, a.AggregateScores, b.AggregateScores)
	assert.Equal(t, a.Fronts, b.Fronts)
	assert.Equal(t, a.FrontScores, b.FrontScores)
}

func TestInitializeRejectsEmpty(t *testing.T) {
	s := NewState("run_test")
	err := s.Initialize(Candidate{}, &EvaluationBatch{Scores: []float64{0.5}}, false)
	assert.Error(t, err)

	err = s.Initialize(Candidate{"x": "y"}, &EvaluationBatch{}, false)
	assert.ErrorIs(t, err, ErrEmptyDataset)
}

func TestUpdateReplacesAndExtendsFronts(t *testing.T) {
	s := seedState(t, []float64{0.5, 0.6}, true)

	child := Candidate{"instruction": "improved"}
	newIdx, bestIdx, err := s.UpdateWithNewProgram(
		[]int{0}, child, 0.65, []any{"better", "same"}, []float64{0.7, 0.6}, 4,
	)
	require.NoError(t, err)

	assert.Equal(t, 1, newIdx)
	assert.Equal(t, 1, bestIdx)
	assert.Len(t, s.Candidates, 2)
	// Instance 0 improved: front replaced. Instance 1 tied: front extended.
	assert.Equal(t, map[int]struct{}{1: {}}, s.Fronts[0])
	assert.Equal(t, map[int]struct{}{0: {}, 1: {}}, s.Fronts[1])
	assert.Equal(t, []float64{0.7, 0.6}, s.FrontScores)
	assert.Equal(t, 4, s.TotalNumEvals)
	assert.NoError(t, s.Consistent())

	// Best-outputs log mirrors the fronts.
	assert.Len(t, s.BestOutputs[0], 1)
	assert.Equal(t, 1, s.BestOutputs[0][0].CandidateIdx)
	assert.Len(t, s.BestOutputs[1], 2)
}

func TestUpdateWorseScoresLeaveFronts(t *testing.T) {
	s := seedState(t, []float64{0.5, 0.6}, false)

	_, bestIdx, err := s.UpdateWithNewProgram(
		[]int{0}, Candidate{"instruction": "worse"}, 0.3, nil, []float64{0.3, 0.3}, 2,
	)
	require.NoError(t, err)

	assert.Equal(t, 0, bestIdx)
	assert.Equal(t, map[int]struct{}{0: {}}, s.Fronts[0])
	assert.Equal(t, map[int]struct{}{0: {}}, s.Fronts[1])
	assert.NoError(t, s.Consistent())
}

func TestUpdateRejectsWrongLength(t *testing.T) {
	s := seedState(t, []float64{0.5, 0.6}, false)

	_, _, err := s.UpdateWithNewProgram(
		[]int{0}, Candidate{"instruction": "x"}, 0.5, nil, []float64{0.5}, 2,
	)
	assert.ErrorIs(t, err, ErrInvariantViolated)
}

func TestBestIdxTiesBreakLow(t *testing.T) {
	s := seedState(t, []float64{0.5, 0.5}, false)
	_, bestIdx, err := s.UpdateWithNewProgram(
		[]int{0}, Candidate{"instruction": "tied"}, 0.5, nil, []float64{0.5, 0.5}, 2,
	)
	require.NoError(t, err)
	assert.Equal(t, 0, bestIdx)
}

func TestPerfectAchieved(t *testing.T) {
	s := seedState(t, []float64{1.0, 1.0}, false)
	assert.True(t, s.PerfectAchieved(1.0))

	s = seedState(t, []float64{1.0, 0.9}, false)
	assert.False(t, s.PerfectAchieved(1.0))
}

func TestConsistentDetectsCorruption(t *testing.T) {
	s := seedState(t, []float64{0.5, 0.6}, false)
	s.Fronts[0][3] = struct{}{}
	assert.Error(t, s.Consistent())
}
