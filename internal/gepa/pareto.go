package gepa

import (
	"fmt"
	"math/rand"
	"sort"
)

// idxmax returns the smallest index attaining the maximum value.
func idxmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}

// RemoveDominated iteratively removes dominated candidates from the given
// per-instance fronts and returns the surviving fronts. A candidate is
// dominated iff every front it participates in contains another remaining
// member; removal drops the lowest-aggregate dominated candidate first
// (ties broken by insertion order) and repeats until a fixpoint.
func RemoveDominated(fronts []map[int]struct{}, aggregates []float64) []map[int]struct{} {
	filtered := make([]map[int]struct{}, len(fronts))
	for i, front := range fronts {
		filtered[i] = make(map[int]struct{}, len(front))
		for k := range front {
			filtered[i][k] = struct{}{}
		}
	}

	for {
		victim, found := lowestDominated(filtered, aggregates)
		if !found {
			return filtered
		}
		for _, front := range filtered {
			delete(front, victim)
		}
	}
}

// lowestDominated finds the dominated candidate with the lowest aggregate
// score, breaking ties by ascending candidate index.
func lowestDominated(fronts []map[int]struct{}, aggregates []float64) (int, bool) {
	members := make(map[int]bool)
	for _, front := range fronts {
		for k := range front {
			members[k] = true
		}
	}

	victim, found := -1, false
	for k := range members {
		dominated := true
		for _, front := range fronts {
			if _, ok := front[k]; !ok {
				continue
			}
			if len(front) < 2 {
				dominated = false
				break
			}
		}
		if !dominated {
			continue
		}
		if !found || aggregates[k] < aggregates[victim] || (aggregates[k] == aggregates[victim] && k < victim) {
			victim = k
			found = true
		}
	}
	return victim, found
}

// SampleFromParetoFront removes dominated candidates and then draws one
// survivor, weighted by the number of fronts it appears in. Deterministic
// given the rng state.
func SampleFromParetoFront(fronts []map[int]struct{}, aggregates []float64, rng *rand.Rand) (int, error) {
	filtered := RemoveDominated(fronts, aggregates)

	weights := make(map[int]int)
	total := 0
	for _, front := range filtered {
		for k := range front {
			weights[k]++
			total++
		}
	}
	if total == 0 {
		return 0, ErrEmptyFronts
	}

	survivors := make([]int, 0, len(weights))
	for k := range weights {
		survivors = append(survivors, k)
	}
	sort.Ints(survivors)

	draw := rng.Intn(total)
	for _, k := range survivors {
		draw -= weights[k]
		if draw < 0 {
			return k, nil
		}
	}
	// Unreachable: the weights sum to total.
	return 0, fmt.Errorf("pareto sampling fell through with %d survivors", len(survivors))
}
