package gepa

import "errors"

var (
	// ErrBudgetExhausted signals that the metric call budget is spent.
	ErrBudgetExhausted = errors.New("metric call budget exhausted")

	// ErrEmptyDataset signals an empty train or validation set.
	ErrEmptyDataset = errors.New("dataset is empty")

	// ErrEmptyFronts signals that every per-instance front is empty, which
	// cannot happen for a state seeded through Initialize.
	ErrEmptyFronts = errors.New("all pareto fronts are empty")

	// ErrNoEligiblePair signals that the merge proposer found no candidate
	// pair with disjoint improvements over a common ancestor.
	ErrNoEligiblePair = errors.New("no eligible merge pair")

	// ErrInvariantViolated signals a broken state invariant; the engine
	// aborts with the last consistent snapshot when it sees this.
	ErrInvariantViolated = errors.New("state invariant violated")

	// ErrMalformedReflection signals an empty or ambiguous reflection LM
	// response. The proposer records the attempt as rejected instead of
	// silently falling back to the parent.
	ErrMalformedReflection = errors.New("malformed reflection output")
)
