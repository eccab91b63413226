package gepa

import (
	"fmt"
)

// Proposal tags recorded in the trace log.
const (
	TagSeed       = "seed"
	TagReflective = "reflective"
	TagMerge      = "merge"
)

// TraceEntry records one proposal attempt, accepted or not. Trace order is
// proposal order; rejected proposals get an entry with NewIdx == -1 and no
// archive append.
type TraceEntry struct {
	Iteration        int       `json:"iteration" msgpack:"iteration"`
	Tag              string    `json:"tag" msgpack:"tag"`
	Accepted         bool      `json:"accepted" msgpack:"accepted"`
	ParentIdxs       []int     `json:"parent_idxs" msgpack:"parent_idxs"`
	NewIdx           int       `json:"new_idx" msgpack:"new_idx"`
	SubsampleIndices []int     `json:"subsample_indices,omitempty" msgpack:"subsample_indices"`
	ScoresBefore     []float64 `json:"scores_before,omitempty" msgpack:"scores_before"`
	ScoresAfter      []float64 `json:"scores_after,omitempty" msgpack:"scores_after"`
}

// BestOutput is one (candidate, output) pair that achieved the current best
// score on a validation instance.
type BestOutput struct {
	CandidateIdx int `json:"candidate_idx" msgpack:"candidate_idx"`
	Output       any `json:"output" msgpack:"output"`
}

// State is the candidate archive plus all per-instance bookkeeping. It is
// exclusively owned by one engine instance: the engine mutates it, proposers
// and strategies only read it.
type State struct {
	RunID string

	// Candidates is append-only; index 0 is the seed.
	Candidates      []Candidate
	AggregateScores []float64
	// PerInstanceScores[k][i] is candidate k's score on validation example i.
	PerInstanceScores [][]float64
	// ParentIdxs[k] lists the archive indices candidate k was derived from;
	// empty for the seed. Indices form a DAG, never owning references.
	ParentIdxs [][]int

	// FrontScores[i] is the best score seen on instance i; Fronts[i] is the
	// set of candidate indices tied at that score.
	FrontScores []float64
	Fronts      []map[int]struct{}

	Trace []TraceEntry

	TrackBestOutputs bool
	// BestOutputs[i] lists the outputs that achieved FrontScores[i].
	BestOutputs [][]BestOutput

	NumFullDSEvals int
	TotalNumEvals  int
	Iteration      int
}

// NewState returns an empty state for the given run.
func NewState(runID string) *State {
	return &State{RunID: runID}
}

// Initialize seeds the archive with the initial candidate and its full
// validation evaluation. Every per-instance front starts as {0}.
func (s *State) Initialize(seed Candidate, base *EvaluationBatch, trackBestOutputs bool) error {
	if len(seed) == 0 {
		return fmt.Errorf("seed candidate has no components")
	}
	if len(base.Scores) == 0 {
		return ErrEmptyDataset
	}
	if len(base.Outputs) != len(base.Scores) {
		return fmt.Errorf("%w: %d outputs for %d scores", ErrInvariantViolated, len(base.Outputs), len(base.Scores))
	}

	n := len(base.Scores)
	s.Candidates = []Candidate{seed.Clone()}
	s.AggregateScores = []float64{mean(base.Scores)}
	s.PerInstanceScores = [][]float64{append([]float64(nil), base.Scores...)}
	s.ParentIdxs = [][]int{{}}
	s.FrontScores = append([]float64(nil), base.Scores...)
	s.Fronts = make([]map[int]struct{}, n)
	for i := range s.Fronts {
		s.Fronts[i] = map[int]struct{}{0: {}}
	}
	s.TrackBestOutputs = trackBestOutputs
	if trackBestOutputs {
		s.BestOutputs = make([][]BestOutput, n)
		for i := range s.BestOutputs {
			s.BestOutputs[i] = []BestOutput{{CandidateIdx: 0, Output: base.Outputs[i]}}
		}
	}
	s.Trace = []TraceEntry{{Tag: TagSeed, Accepted: true, ParentIdxs: []int{}, NewIdx: 0}}
	return nil
}

// NumInstances returns the validation set size the state was seeded with.
func (s *State) NumInstances() int {
	return len(s.FrontScores)
}

// BestIdx returns the archive index with the highest aggregate score,
// smallest index on ties.
func (s *State) BestIdx() int {
	return idxmax(s.AggregateScores)
}

// PerfectAchieved reports whether every per-instance best score has reached
// the given perfect score.
func (s *State) PerfectAchieved(perfect float64) bool {
	for _, v := range s.FrontScores {
		if v < perfect {
			return false
		}
	}
	return len(s.FrontScores) > 0
}

// UpdateWithNewProgram appends an accepted candidate together with its full
// validation evaluation and refreshes the per-instance fronts. Returns the
// new archive index and the best index so far.
func (s *State) UpdateWithNewProgram(parentIdxs []int, candidate Candidate, aggregate float64, outputs []any, scores []float64, totalEvals int) (int, int, error) {
	if len(scores) != s.NumInstances() {
		return 0, 0, fmt.Errorf("%w: score vector length %d, validation set length %d",
			ErrInvariantViolated, len(scores), s.NumInstances())
	}
	if s.TrackBestOutputs && len(outputs) != len(scores) {
		return 0, 0, fmt.Errorf("%w: %d outputs for %d scores", ErrInvariantViolated, len(outputs), len(scores))
	}

	newIdx := len(s.Candidates)
	s.Candidates = append(s.Candidates, candidate.Clone())
	s.AggregateScores = append(s.AggregateScores, aggregate)
	s.PerInstanceScores = append(s.PerInstanceScores, append([]float64(nil), scores...))
	s.ParentIdxs = append(s.ParentIdxs, append([]int(nil), parentIdxs...))

	for i, score := range scores {
		switch {
		case score > s.FrontScores[i]:
			s.FrontScores[i] = score
			s.Fronts[i] = map[int]struct{}{newIdx: {}}
			if s.TrackBestOutputs {
				s.BestOutputs[i] = []BestOutput{{CandidateIdx: newIdx, Output: outputs[i]}}
			}
		case score == s.FrontScores[i]:
			s.Fronts[i][newIdx] = struct{}{}
			if s.TrackBestOutputs {
				s.BestOutputs[i] = append(s.BestOutputs[i], BestOutput{CandidateIdx: newIdx, Output: outputs[i]})
			}
		}
	}

	s.TotalNumEvals = totalEvals
	return newIdx, s.BestIdx(), nil
}

// AppendTrace records one proposal attempt.
func (s *State) AppendTrace(entry TraceEntry) {
	s.Trace = append(s.Trace, entry)
}

// Consistent verifies the archive and front invariants. Used by tests; the
// engine does not call it.
func (s *State) Consistent() error {
	if len(s.Candidates) != len(s.AggregateScores) || len(s.Candidates) != len(s.PerInstanceScores) {
		return fmt.Errorf("%w: %d candidates, %d aggregates, %d score rows",
			ErrInvariantViolated, len(s.Candidates), len(s.AggregateScores), len(s.PerInstanceScores))
	}
	if len(s.Candidates) != len(s.ParentIdxs) {
		return fmt.Errorf("%w: %d candidates, %d parent entries", ErrInvariantViolated, len(s.Candidates), len(s.ParentIdxs))
	}
	n := s.NumInstances()
	for k, row := range s.PerInstanceScores {
		if len(row) != n {
			return fmt.Errorf("%w: candidate %d has %d instance scores, want %d", ErrInvariantViolated, k, len(row), n)
		}
	}
	for i, front := range s.Fronts {
		if len(front) == 0 {
			return fmt.Errorf("%w: front %d is empty", ErrInvariantViolated, i)
		}
		best := s.PerInstanceScores[0][i]
		for k := range s.PerInstanceScores {
			if s.PerInstanceScores[k][i] > best {
				best = s.PerInstanceScores[k][i]
			}
		}
		if best != s.FrontScores[i] {
			return fmt.Errorf("%w: front %d score %v, matrix max %v", ErrInvariantViolated, i, s.FrontScores[i], best)
		}
		for k := range front {
			if k < 0 || k >= len(s.PerInstanceScores) {
				return fmt.Errorf("%w: front %d references candidate %d, archive has %d",
					ErrInvariantViolated, i, k, len(s.PerInstanceScores))
			}
			if s.PerInstanceScores[k][i] != best {
				return fmt.Errorf("%w: candidate %d on front %d scores %v, max is %v",
					ErrInvariantViolated, k, i, s.PerInstanceScores[k][i], best)
			}
		}
	}
	if s.TrackBestOutputs {
		for i, entries := range s.BestOutputs {
			if len(entries) != len(s.Fronts[i]) {
				return fmt.Errorf("%w: best-outputs log for instance %d has %d entries, front has %d",
					ErrInvariantViolated, i, len(entries), len(s.Fronts[i]))
			}
			for _, e := range entries {
				if _, ok := s.Fronts[i][e.CandidateIdx]; !ok {
					return fmt.Errorf("%w: best-outputs log for instance %d lists candidate %d, not a front member",
						ErrInvariantViolated, i, e.CandidateIdx)
				}
			}
		}
	}
	return nil
}
