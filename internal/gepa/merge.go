package gepa

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"go.opentelemetry.io/otel/trace"

	"github.com/longregen/gepa/pkg/otel"
	"github.com/longregen/gepa/shared/jsonutil"
)

// MergeProposer combines two descendants that improved disjoint component
// sets over a common ancestor into one crossover candidate.
type MergeProposer struct {
	adapter  Adapter
	trainset []any
	sampler  MinibatchSampler
	logger   *slog.Logger

	maxInvocations int
	scheduled      int
	invoked        int

	// proposed holds canonical signatures of merge candidates already
	// produced, so the same crossover is never proposed twice.
	proposed map[string]struct{}
}

func NewMergeProposer(adapter Adapter, trainset []any, sampler MinibatchSampler, maxInvocations int, logger *slog.Logger) *MergeProposer {
	return &MergeProposer{
		adapter:        adapter,
		trainset:       trainset,
		sampler:        sampler,
		logger:         logger,
		maxInvocations: maxInvocations,
		proposed:       make(map[string]struct{}),
	}
}

// ScheduleIfNeeded queues one merge attempt. Called by the engine after each
// accepted reflective proposal; the total number of attempts is capped by
// maxInvocations.
func (m *MergeProposer) ScheduleIfNeeded() {
	if m.scheduled+m.invoked < m.maxInvocations {
		m.scheduled++
	}
}

// Due reports whether a merge attempt is queued.
func (m *MergeProposer) Due() bool {
	return m.scheduled > 0
}

// mergePair is one eligible crossover: candidates A and B with disjoint
// changed-component sets over their most-recent common ancestor.
type mergePair struct {
	a, b, ancestor int
	merged         Candidate
	rank           float64
}

// Propose runs one merge attempt. Returns ErrNoEligiblePair when every
// remaining candidate pair is ineligible or already produced; the queued
// attempt keeps its invocation credit in that case.
func (m *MergeProposer) Propose(ctx context.Context, state *State) (*Proposal, int, error) {
	ctx, span := otel.Tracer("gepa").Start(ctx, "gepa.proposer.merge",
		trace.WithAttributes(
			otel.Proposer("merge"),
			otel.Iteration(state.Iteration),
		))
	defer span.End()

	evalsUsed := 0

	pair, ok := m.findEligiblePair(state)
	if !ok {
		span.RecordError(ErrNoEligiblePair)
		return nil, evalsUsed, ErrNoEligiblePair
	}
	m.logger.InfoContext(ctx, "merging candidates",
		"a", pair.a, "b", pair.b, "ancestor", pair.ancestor, "iteration", state.Iteration)

	indices, err := m.sampler.NextMinibatchIndices(ctx, len(m.trainset), state.Iteration)
	if err != nil {
		return nil, evalsUsed, fmt.Errorf("sample minibatch: %w", err)
	}
	minibatch := make([]any, len(indices))
	for i, idx := range indices {
		minibatch[i] = m.trainset[idx]
	}

	// Baseline for acceptance: the stronger parent on the same minibatch.
	strongParent := pair.a
	if state.AggregateScores[pair.b] > state.AggregateScores[pair.a] {
		strongParent = pair.b
	}
	parentBatch, err := m.adapter.Evaluate(ctx, minibatch, state.Candidates[strongParent], false)
	if err != nil {
		return nil, evalsUsed, fmt.Errorf("evaluate parent on minibatch: %w", err)
	}
	evalsUsed += len(minibatch)

	mergedBatch, err := m.adapter.Evaluate(ctx, minibatch, pair.merged, false)
	if err != nil {
		return nil, evalsUsed, fmt.Errorf("evaluate merged candidate on minibatch: %w", err)
	}
	evalsUsed += len(minibatch)

	m.proposed[candidateSignature(pair.merged)] = struct{}{}
	m.scheduled--
	m.invoked++

	span.AddEvent("gepa.proposer.candidate")
	span.SetAttributes(
		otel.ParentIdx(pair.a),
		otel.Aggregate(mergedBatch.Mean()),
	)

	return &Proposal{
		Candidate:        pair.merged,
		Tag:              TagMerge,
		ParentIdxs:       []int{pair.a, pair.b},
		SubsampleIndices: indices,
		ScoresBefore:     parentBatch.Scores,
		ScoresAfter:      mergedBatch.Scores,
		Accepted:         mergedBatch.Mean() > parentBatch.Mean(),
	}, evalsUsed, nil
}

// findEligiblePair enumerates candidate pairs with a common ancestor and
// disjoint improvements, ranked by summed aggregate score descending, and
// returns the best-ranked pair not already produced.
func (m *MergeProposer) findEligiblePair(state *State) (mergePair, bool) {
	ancestors := ancestorSets(state.ParentIdxs)

	var pairs []mergePair
	for a := 0; a < len(state.Candidates); a++ {
		for b := a + 1; b < len(state.Candidates); b++ {
			p, ok := mostRecentCommonAncestor(ancestors, a, b)
			if !ok {
				continue
			}
			base := state.Candidates[p]
			changedA := diffComponents(base, state.Candidates[a])
			changedB := diffComponents(base, state.Candidates[b])
			if len(changedA) == 0 || len(changedB) == 0 {
				continue
			}
			if intersects(changedA, changedB) {
				continue
			}

			merged := base.Clone()
			for _, name := range changedA {
				merged[name] = state.Candidates[a][name]
			}
			for _, name := range changedB {
				merged[name] = state.Candidates[b][name]
			}
			if merged.Equal(state.Candidates[a]) || merged.Equal(state.Candidates[b]) {
				continue
			}

			pairs = append(pairs, mergePair{
				a:        a,
				b:        b,
				ancestor: p,
				merged:   merged,
				rank:     state.AggregateScores[a] + state.AggregateScores[b],
			})
		}
	}

	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].rank > pairs[j].rank
	})

	for _, pair := range pairs {
		if _, seen := m.proposed[candidateSignature(pair.merged)]; seen {
			continue
		}
		return pair, true
	}
	return mergePair{}, false
}

// ancestorSets computes, for each archive index, the set of its proper
// ancestors over the parent DAG.
func ancestorSets(parentIdxs [][]int) []map[int]struct{} {
	sets := make([]map[int]struct{}, len(parentIdxs))
	for k := range parentIdxs {
		// Parents always precede children in the archive, so sets[p] is
		// complete by the time k is processed.
		set := make(map[int]struct{})
		for _, p := range parentIdxs[k] {
			set[p] = struct{}{}
			for anc := range sets[p] {
				set[anc] = struct{}{}
			}
		}
		sets[k] = set
	}
	return sets
}

// mostRecentCommonAncestor returns the highest archive index that is an
// ancestor of both a and b.
func mostRecentCommonAncestor(ancestors []map[int]struct{}, a, b int) (int, bool) {
	best, found := -1, false
	for anc := range ancestors[a] {
		if _, ok := ancestors[b][anc]; !ok {
			continue
		}
		if anc > best {
			best = anc
			found = true
		}
	}
	return best, found
}

func intersects(a, b []string) bool {
	set := make(map[string]struct{}, len(a))
	for _, s := range a {
		set[s] = struct{}{}
	}
	for _, s := range b {
		if _, ok := set[s]; ok {
			return true
		}
	}
	return false
}

// candidateSignature returns a canonical string for dedup; JSON object keys
// are emitted sorted, so equal candidates share a signature.
func candidateSignature(c Candidate) string {
	return jsonutil.MustJSON(c)
}
