package gepa

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/longregen/gepa/shared/jsonutil"
)

// Result is the immutable snapshot the engine returns. It always reflects
// the last consistent state, including on cancellation and abort.
type Result struct {
	RunID             string      `json:"run_id"`
	Candidates        []Candidate `json:"candidates"`
	AggregateScores   []float64   `json:"aggregate_scores"`
	PerInstanceScores [][]float64 `json:"per_instance_scores"`
	// PerInstanceBestCandidates[i] is the smallest-index candidate achieving
	// the best score on instance i; ParetoFronts[i] is the full tied set.
	PerInstanceBestCandidates []int        `json:"per_instance_best_candidates"`
	ParetoFronts              [][]int      `json:"pareto_fronts"`
	BestIdx                   int          `json:"best_idx"`
	BestCandidate             Candidate    `json:"best_candidate"`
	Trace                     []TraceEntry `json:"trace"`
	NumFullDSEvals            int          `json:"num_full_ds_evals"`
	TotalNumEvals             int          `json:"total_num_evals"`
	Seed                      int64        `json:"seed"`
	RunDir                    string       `json:"run_dir,omitempty"`
}

// BuildResult snapshots the state into a Result.
func BuildResult(state *State, seed int64, runDir string) *Result {
	fronts := make([][]int, len(state.Fronts))
	bestPer := make([]int, len(state.Fronts))
	for i, front := range state.Fronts {
		members := make([]int, 0, len(front))
		for k := range front {
			members = append(members, k)
		}
		sort.Ints(members)
		fronts[i] = members
		if len(members) > 0 {
			bestPer[i] = members[0]
		}
	}

	bestIdx := state.BestIdx()
	return &Result{
		RunID:                     state.RunID,
		Candidates:                state.Candidates,
		AggregateScores:           state.AggregateScores,
		PerInstanceScores:         state.PerInstanceScores,
		PerInstanceBestCandidates: bestPer,
		ParetoFronts:              fronts,
		BestIdx:                   bestIdx,
		BestCandidate:             state.Candidates[bestIdx],
		Trace:                     state.Trace,
		NumFullDSEvals:            state.NumFullDSEvals,
		TotalNumEvals:             state.TotalNumEvals,
		Seed:                      seed,
		RunDir:                    runDir,
	}
}

// Save writes result.json and a msgpack state checkpoint under runDir.
func (r *Result) Save(runDir string, state *State) error {
	if err := jsonutil.WriteFile(filepath.Join(runDir, "result.json"), r); err != nil {
		return fmt.Errorf("write result.json: %w", err)
	}
	if state != nil {
		if err := writeCheckpoint(filepath.Join(runDir, "state.msgpack"), state); err != nil {
			return fmt.Errorf("write state checkpoint: %w", err)
		}
	}
	return nil
}

// LoadResult reads a result.json written by Save.
func LoadResult(path string) (*Result, error) {
	var r Result
	if err := jsonutil.ReadFile(path, &r); err != nil {
		return nil, fmt.Errorf("read result: %w", err)
	}
	return &r, nil
}

// stateCheckpoint is the msgpack on-disk form of the mutable state.
type stateCheckpoint struct {
	RunID             string       `msgpack:"run_id"`
	Candidates        []Candidate  `msgpack:"candidates"`
	AggregateScores   []float64    `msgpack:"aggregate_scores"`
	PerInstanceScores [][]float64  `msgpack:"per_instance_scores"`
	ParentIdxs        [][]int      `msgpack:"parent_idxs"`
	FrontScores       []float64    `msgpack:"front_scores"`
	Fronts            [][]int      `msgpack:"fronts"`
	Trace             []TraceEntry `msgpack:"trace"`
	NumFullDSEvals    int          `msgpack:"num_full_ds_evals"`
	TotalNumEvals     int          `msgpack:"total_num_evals"`
	Iteration         int          `msgpack:"iteration"`
}

func writeCheckpoint(path string, state *State) error {
	fronts := make([][]int, len(state.Fronts))
	for i, front := range state.Fronts {
		members := make([]int, 0, len(front))
		for k := range front {
			members = append(members, k)
		}
		sort.Ints(members)
		fronts[i] = members
	}
	cp := stateCheckpoint{
		RunID:             state.RunID,
		Candidates:        state.Candidates,
		AggregateScores:   state.AggregateScores,
		PerInstanceScores: state.PerInstanceScores,
		ParentIdxs:        state.ParentIdxs,
		FrontScores:       state.FrontScores,
		Fronts:            fronts,
		Trace:             state.Trace,
		NumFullDSEvals:    state.NumFullDSEvals,
		TotalNumEvals:     state.TotalNumEvals,
		Iteration:         state.Iteration,
	}
	b, err := msgpack.Marshal(&cp)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// writeBestOutputs persists the best-outputs log for one validation instance:
// one file per candidate that achieved the instance's current best score.
func writeBestOutputs(runDir string, instance int, entries []BestOutput) error {
	dir := filepath.Join(runDir, "generated_best_outputs_valset", fmt.Sprintf("task_%d", instance))
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, e := range entries {
		path := filepath.Join(dir, fmt.Sprintf("candidate_%d.json", e.CandidateIdx))
		if err := jsonutil.WriteFile(path, e.Output); err != nil {
			return err
		}
	}
	return nil
}
