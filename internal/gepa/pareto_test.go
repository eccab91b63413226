package gepa

import (
	"math/rand"
	"testing"
)

func fronts(sets ...[]int) []map[int]struct{} {
	out := make([]map[int]struct{}, len(sets))
	for i, members := range sets {
		out[i] = make(map[int]struct{}, len(members))
		for _, k := range members {
			out[i][k] = struct{}{}
		}
	}
	return out
}

func TestIdxmax(t *testing.T) {
	cases := []struct {
		values []float64
		want   int
	}{
		{[]float64{0.1, 0.5, 0.3}, 1},
		{[]float64{0.5, 0.5, 0.3}, 0},
		{[]float64{-1, -2, -0.5}, 2},
		{[]float64{0.7}, 0},
	}
	for _, tc := range cases {
		if got := idxmax(tc.values); got != tc.want {
			t.Errorf("idxmax(%v) = %d, want %d", tc.values, got, tc.want)
		}
	}
}

func TestRemoveDominatedKeepsSoleFrontMembers(t *testing.T) {
	// Candidate 0 is alone on front 0, candidate 1 alone on front 1; neither
	// can be removed.
	f := fronts([]int{0}, []int{1})
	got := RemoveDominated(f, []float64{0.2, 0.9})

	if len(got[0]) != 1 || len(got[1]) != 1 {
		t.Fatalf("expected both sole members kept, got %v", got)
	}
}

func TestRemoveDominatedDropsLowestAggregate(t *testing.T) {
	// All three candidates share every front; the two weaker ones go.
	f := fronts([]int{0, 1, 2}, []int{0, 1, 2})
	got := RemoveDominated(f, []float64{0.4, 0.8, 0.6})

	for i, front := range got {
		if len(front) != 1 {
			t.Fatalf("front %d: expected single survivor, got %v", i, front)
		}
		if _, ok := front[1]; !ok {
			t.Errorf("front %d: expected candidate 1 to survive, got %v", i, front)
		}
	}
}

func TestRemoveDominatedFixpoint(t *testing.T) {
	// Removing 0 leaves 1 alone on front 0, which then protects 1 while 2
	// becomes dominated on front 1.
	f := fronts([]int{0, 1}, []int{1, 2})
	got := RemoveDominated(f, []float64{0.4, 0.8, 0.6})

	if _, ok := got[0][1]; !ok || len(got[0]) != 1 {
		t.Errorf("front 0: want {1}, got %v", got[0])
	}
	if _, ok := got[1][1]; !ok || len(got[1]) != 1 {
		t.Errorf("front 1: want {1}, got %v", got[1])
	}
}

func TestRemoveDominatedDoesNotMutateInput(t *testing.T) {
	f := fronts([]int{0, 1}, []int{1, 2})
	RemoveDominated(f, []float64{0.4, 0.8, 0.6})

	if len(f[0]) != 2 || len(f[1]) != 2 {
		t.Errorf("input fronts mutated: %v", f)
	}
}

func TestSampleFromParetoFrontDeterministic(t *testing.T) {
	// Candidate 1 dominates after removal; sampling must return it whatever
	// the rng says.
	f := fronts([]int{0, 1}, []int{1, 2})
	rng := rand.New(rand.NewSource(123))

	got, err := SampleFromParetoFront(f, []float64{0.4, 0.8, 0.6}, rng)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 1 {
		t.Errorf("expected candidate 1, got %d", got)
	}
}

func TestSampleFromParetoFrontWeighted(t *testing.T) {
	// Two sole-front members with different coverage; both must be reachable
	// over many draws and frequencies must lean toward the wider one.
	f := fronts([]int{0}, []int{1}, []int{1}, []int{1})
	rng := rand.New(rand.NewSource(7))

	counts := map[int]int{}
	for i := 0; i < 400; i++ {
		got, err := SampleFromParetoFront(f, []float64{0.5, 0.6}, rng)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		counts[got]++
	}
	if counts[0] == 0 || counts[1] == 0 {
		t.Fatalf("expected both candidates sampled, got %v", counts)
	}
	if counts[1] <= counts[0] {
		t.Errorf("expected candidate 1 (3 fronts) sampled more than candidate 0 (1 front), got %v", counts)
	}
}

func TestSampleFromParetoFrontEmpty(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	if _, err := SampleFromParetoFront(nil, nil, rng); err == nil {
		t.Error("expected error for empty fronts")
	}
}
