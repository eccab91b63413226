package gepa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/longregen/gepa/internal/adapters/metrics"
	"github.com/longregen/gepa/pkg/otel"
	"github.com/longregen/gepa/shared/id"
)

// Config holds all options a caller may pass to the engine.
type Config struct {
	// SeedCandidate is the initial component → instruction mapping (required).
	SeedCandidate Candidate
	// Trainset feeds minibatch proposal evaluation; Valset feeds full
	// evaluation and the Pareto fronts. Elements are opaque to the engine.
	Trainset []any
	Valset   []any

	// MaxMetricCalls is the hard budget on example-level evaluations. The
	// baseline full evaluation is exempt.
	MaxMetricCalls int
	// PerfectScore triggers early exit once every per-instance best score
	// reaches it.
	PerfectScore float64
	// SkipPerfectScore abandons proposals whose parent is already perfect on
	// the minibatch.
	SkipPerfectScore bool

	MinibatchSize int
	// CandidateSelector is "pareto" or "current_best".
	CandidateSelector string

	UseMerge            bool
	MaxMergeInvocations int

	Seed int64

	// RunDir, when set, receives result.json, a state checkpoint, and the
	// best-outputs tree.
	RunDir           string
	TrackBestOutputs bool
	// DisplayProgress enables periodic progress log lines. Cosmetic only.
	DisplayProgress bool
}

// Candidate selector names accepted by Config.
const (
	SelectorPareto      = "pareto"
	SelectorCurrentBest = "current_best"
)

// Engine runs the budgeted Genetic-Pareto optimization loop. It is
// single-threaded: all adapter calls block, and the state is owned by the
// engine alone.
type Engine struct {
	cfg     Config
	adapter Adapter
	logger  *slog.Logger

	state      *State
	reflective *ReflectiveProposer
	merge      *MergeProposer

	stopRequested atomic.Bool

	// Progress mirrors for the cosmetic ticker goroutine.
	progIteration  atomic.Int64
	progCandidates atomic.Int64
	progEvals      atomic.Int64
	progBestX1000  atomic.Int64
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New validates the configuration and wires the strategies and proposers
// from a single seeded RNG.
func New(cfg Config, adapter Adapter, opts ...Option) (*Engine, error) {
	if len(cfg.SeedCandidate) == 0 {
		return nil, fmt.Errorf("seed candidate is required")
	}
	if len(cfg.Valset) == 0 {
		return nil, fmt.Errorf("valset: %w", ErrEmptyDataset)
	}
	if len(cfg.Trainset) == 0 {
		return nil, fmt.Errorf("trainset: %w", ErrEmptyDataset)
	}
	if adapter == nil {
		return nil, fmt.Errorf("adapter is required")
	}
	if cfg.MinibatchSize <= 0 {
		cfg.MinibatchSize = 3
	}
	if cfg.CandidateSelector == "" {
		cfg.CandidateSelector = SelectorPareto
	}

	e := &Engine{
		cfg:     cfg,
		adapter: adapter,
		logger:  slog.Default(),
		state:   NewState(id.NewRun()),
	}
	for _, opt := range opts {
		opt(e)
	}

	// All randomness flows from the root seed; strategies get their own
	// deterministically forked RNGs.
	root := rand.New(rand.NewSource(cfg.Seed))
	samplerRng := rand.New(rand.NewSource(root.Int63()))
	selectorRng := rand.New(rand.NewSource(root.Int63()))

	sampler := NewEpochShuffledSampler(cfg.MinibatchSize, samplerRng)

	var candSel CandidateSelector
	switch cfg.CandidateSelector {
	case SelectorPareto:
		candSel = NewParetoCandidateSelector(selectorRng)
	case SelectorCurrentBest:
		candSel = &CurrentBestCandidateSelector{}
	default:
		return nil, fmt.Errorf("unknown candidate selector %q", cfg.CandidateSelector)
	}

	e.reflective = NewReflectiveProposer(
		adapter,
		cfg.Trainset,
		candSel,
		NewRoundRobinComponentSelector(),
		sampler,
		cfg.PerfectScore,
		cfg.SkipPerfectScore,
		e.logger,
	)
	if cfg.UseMerge {
		e.merge = NewMergeProposer(adapter, cfg.Trainset, sampler, cfg.MaxMergeInvocations, e.logger)
	}

	return e, nil
}

// RequestStop asks the engine to stop at its next suspension point.
func (e *Engine) RequestStop() {
	e.stopRequested.Store(true)
}

func (e *Engine) cancelled(ctx context.Context) bool {
	return ctx.Err() != nil || e.stopRequested.Load()
}

// Run executes the optimization loop until the budget is exhausted, every
// per-instance best score is perfect, or cancellation. Once the seed is
// initialized, the returned snapshot reflects the last consistent state, also
// when err is non-nil; if the baseline evaluation or initialization fails,
// the result is nil.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	ctx, span := otel.Tracer("gepa").Start(ctx, "gepa.engine.run",
		trace.WithAttributes(
			otel.RunID(e.state.RunID),
			otel.Optimizer("GEPA"),
		))
	defer span.End()

	e.logger.InfoContext(ctx, "starting optimization run",
		"run_id", e.state.RunID,
		"valset_size", len(e.cfg.Valset),
		"trainset_size", len(e.cfg.Trainset),
		"max_metric_calls", e.cfg.MaxMetricCalls,
		"seed", e.cfg.Seed,
	)

	// Baseline: one full validation pass for the seed, exempt from the
	// metric call budget.
	baseBatch, err := e.evaluateFull(ctx, e.cfg.SeedCandidate)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("baseline evaluation: %w", err)
	}
	if err := e.state.Initialize(e.cfg.SeedCandidate, baseBatch, e.cfg.TrackBestOutputs); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("initialize state: %w", err)
	}
	e.state.NumFullDSEvals = 1
	metrics.ArchiveSize.Set(1)
	metrics.BestAggregateScore.Set(e.state.AggregateScores[0])
	e.persistBestOutputs(ctx, 0)
	e.updateProgress()

	stopProgress := func() {}
	if e.cfg.DisplayProgress {
		stopProgress = e.startProgressTicker(ctx, 10*time.Second)
	}
	defer stopProgress()

	runErr := e.loop(ctx)
	if errors.Is(runErr, ErrBudgetExhausted) {
		// Expected termination, not a failure.
		e.logger.InfoContext(ctx, "metric call budget exhausted",
			"total_num_evals", e.state.TotalNumEvals,
			"max_metric_calls", e.cfg.MaxMetricCalls)
		runErr = nil
	}

	result := BuildResult(e.state, e.cfg.Seed, e.cfg.RunDir)
	if e.cfg.RunDir != "" {
		if err := result.Save(e.cfg.RunDir, e.state); err != nil {
			e.logger.ErrorContext(ctx, "failed to save run artifacts", "run_dir", e.cfg.RunDir, "error", err)
		}
	}

	span.AddEvent("gepa.engine.completed")
	span.SetAttributes(
		otel.BestIdx(result.BestIdx),
		otel.Aggregate(result.AggregateScores[result.BestIdx]),
		otel.EvalsUsed(result.TotalNumEvals),
	)
	e.logger.InfoContext(ctx, "optimization run complete",
		"run_id", e.state.RunID,
		"candidates", len(result.Candidates),
		"best_idx", result.BestIdx,
		"best_aggregate", result.AggregateScores[result.BestIdx],
		"total_num_evals", result.TotalNumEvals,
		"num_full_ds_evals", result.NumFullDSEvals,
	)
	if runErr != nil {
		span.RecordError(runErr)
	}
	return result, runErr
}

func (e *Engine) loop(ctx context.Context) error {
	if e.state.PerfectAchieved(e.cfg.PerfectScore) {
		e.logger.InfoContext(ctx, "perfect score at initialization, no proposals needed")
		return nil
	}

	// Abandoned proposals can leave the budget untouched; bail out if the
	// loop stops making progress entirely.
	const maxStalledIterations = 10
	stalled := 0

	for e.state.TotalNumEvals < e.cfg.MaxMetricCalls {
		if e.cancelled(ctx) {
			e.logger.InfoContext(ctx, "stop requested, returning snapshot", "iteration", e.state.Iteration)
			return nil
		}

		evalsBefore := e.state.TotalNumEvals

		e.state.Iteration++
		iterCtx, iterSpan := otel.Tracer("gepa").Start(ctx, "gepa.engine.iteration",
			trace.WithAttributes(
				otel.RunID(e.state.RunID),
				otel.Optimizer("GEPA"),
				otel.Iteration(e.state.Iteration),
			))
		metrics.IterationsTotal.Inc()

		accepted, err := e.runIteration(iterCtx)
		iterSpan.End()
		e.updateProgress()
		if err != nil {
			return err
		}

		if accepted && e.state.PerfectAchieved(e.cfg.PerfectScore) {
			e.logger.InfoContext(ctx, "perfect score achieved", "iteration", e.state.Iteration)
			return nil
		}

		if e.state.TotalNumEvals == evalsBefore && !accepted {
			stalled++
			if stalled >= maxStalledIterations {
				e.logger.WarnContext(ctx, "no progress for consecutive iterations, stopping",
					"iterations", stalled)
				return nil
			}
		} else {
			stalled = 0
		}
	}
	return ErrBudgetExhausted
}

// runIteration performs one SELECT → PROPOSE → maybe FULL_EVAL → maybe MERGE
// pass. Returns whether any proposal was accepted this iteration.
func (e *Engine) runIteration(ctx context.Context) (bool, error) {
	proposal, used, err := e.reflective.Propose(ctx, e.state)
	e.state.TotalNumEvals += used
	metrics.EvaluationsTotal.WithLabelValues("minibatch").Add(float64(used))
	if err != nil {
		// Per-proposal failures are logged and skipped; the run goes on.
		metrics.ProposalsTotal.WithLabelValues("reflective", "failed").Inc()
		e.logger.ErrorContext(ctx, "reflective proposal failed",
			"iteration", e.state.Iteration, "error", err)
		return false, nil
	}
	if proposal == nil {
		metrics.ProposalsTotal.WithLabelValues("reflective", "abandoned").Inc()
		return false, nil
	}

	accepted, err := e.applyProposal(ctx, proposal)
	if err != nil {
		return false, err
	}
	if !accepted {
		return false, nil
	}

	if e.merge != nil {
		e.merge.ScheduleIfNeeded()
		if e.merge.Due() {
			if e.cancelled(ctx) {
				return true, nil
			}
			if err := e.runMerge(ctx); err != nil {
				return true, err
			}
		}
	}
	return true, nil
}

func (e *Engine) runMerge(ctx context.Context) error {
	proposal, used, err := e.merge.Propose(ctx, e.state)
	e.state.TotalNumEvals += used
	metrics.EvaluationsTotal.WithLabelValues("minibatch").Add(float64(used))
	if errors.Is(err, ErrNoEligiblePair) {
		metrics.ProposalsTotal.WithLabelValues("merge", "abandoned").Inc()
		e.logger.InfoContext(ctx, "no eligible merge pair", "iteration", e.state.Iteration)
		return nil
	}
	if err != nil {
		metrics.ProposalsTotal.WithLabelValues("merge", "failed").Inc()
		e.logger.ErrorContext(ctx, "merge proposal failed",
			"iteration", e.state.Iteration, "error", err)
		return nil
	}
	_, err = e.applyProposal(ctx, proposal)
	return err
}

// applyProposal records the proposal in the trace and, when it passed the
// minibatch acceptance policy, runs the full validation evaluation and
// updates the state.
func (e *Engine) applyProposal(ctx context.Context, proposal *Proposal) (bool, error) {
	entry := TraceEntry{
		Iteration:        e.state.Iteration,
		Tag:              proposal.Tag,
		Accepted:         false,
		ParentIdxs:       proposal.ParentIdxs,
		NewIdx:           -1,
		SubsampleIndices: proposal.SubsampleIndices,
		ScoresBefore:     proposal.ScoresBefore,
		ScoresAfter:      proposal.ScoresAfter,
	}

	if !proposal.Accepted {
		e.state.AppendTrace(entry)
		metrics.ProposalsTotal.WithLabelValues(proposal.Tag, "rejected").Inc()
		trace.SpanFromContext(ctx).AddEvent("gepa.engine.rejected")
		e.logger.InfoContext(ctx, "proposal rejected",
			"iteration", e.state.Iteration,
			"tag", proposal.Tag,
			"parent_idxs", proposal.ParentIdxs,
			"mean_before", mean(proposal.ScoresBefore),
			"mean_after", mean(proposal.ScoresAfter),
		)
		return false, nil
	}

	// Suspension point between minibatch and full evaluation.
	if e.cancelled(ctx) {
		e.state.AppendTrace(entry)
		return false, nil
	}

	fullBatch, err := e.evaluateFull(ctx, proposal.Candidate)
	if err != nil {
		e.state.AppendTrace(entry)
		if errors.Is(err, ErrInvariantViolated) {
			return false, err
		}
		metrics.ProposalsTotal.WithLabelValues(proposal.Tag, "failed").Inc()
		e.logger.ErrorContext(ctx, "full evaluation failed, proposal skipped",
			"iteration", e.state.Iteration, "error", err)
		return false, nil
	}
	e.state.TotalNumEvals += len(e.cfg.Valset)
	e.state.NumFullDSEvals++
	metrics.EvaluationsTotal.WithLabelValues("full").Add(float64(len(e.cfg.Valset)))

	newIdx, bestIdx, err := e.state.UpdateWithNewProgram(
		proposal.ParentIdxs,
		proposal.Candidate,
		fullBatch.Mean(),
		fullBatch.Outputs,
		fullBatch.Scores,
		e.state.TotalNumEvals,
	)
	if err != nil {
		// Invariant violations are fatal: abort with the current snapshot.
		e.state.AppendTrace(entry)
		return false, err
	}
	entry.Accepted = true
	entry.NewIdx = newIdx
	e.state.AppendTrace(entry)
	e.persistBestOutputs(ctx, newIdx)

	metrics.ProposalsTotal.WithLabelValues(proposal.Tag, "accepted").Inc()
	metrics.ArchiveSize.Set(float64(len(e.state.Candidates)))
	metrics.BestAggregateScore.Set(e.state.AggregateScores[bestIdx])

	span := trace.SpanFromContext(ctx)
	span.AddEvent("gepa.engine.accepted")
	span.AddEvent("gepa.memory.updated")
	e.logger.InfoContext(ctx, "proposal accepted",
		"iteration", e.state.Iteration,
		"tag", proposal.Tag,
		"parent_idxs", proposal.ParentIdxs,
		"new_idx", newIdx,
		"aggregate", fullBatch.Mean(),
		"best_idx", bestIdx,
		"evals_used", e.state.TotalNumEvals,
	)
	return true, nil
}

func (e *Engine) evaluateFull(ctx context.Context, candidate Candidate) (*EvaluationBatch, error) {
	ctx, span := otel.Tracer("gepa").Start(ctx, "gepa.engine.full_evaluation",
		trace.WithAttributes(
			otel.RunID(e.state.RunID),
			otel.Iteration(e.state.Iteration),
			otel.BatchSize(len(e.cfg.Valset)),
		))
	defer span.End()

	batch, err := e.adapter.Evaluate(ctx, e.cfg.Valset, candidate, false)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if len(batch.Scores) != len(e.cfg.Valset) {
		err := fmt.Errorf("%w: adapter returned %d scores for %d examples",
			ErrInvariantViolated, len(batch.Scores), len(e.cfg.Valset))
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(otel.Aggregate(batch.Mean()))
	return batch, nil
}

// persistBestOutputs writes the best-outputs tree for every instance the
// given candidate is on the front of.
func (e *Engine) persistBestOutputs(ctx context.Context, candidateIdx int) {
	if !e.cfg.TrackBestOutputs || e.cfg.RunDir == "" {
		return
	}
	for i, front := range e.state.Fronts {
		if _, ok := front[candidateIdx]; !ok {
			continue
		}
		if err := writeBestOutputs(e.cfg.RunDir, i, e.state.BestOutputs[i]); err != nil {
			e.logger.WarnContext(ctx, "failed to persist best outputs",
				"instance", i, "error", err)
		}
	}
}

// updateProgress refreshes the atomic mirrors the ticker goroutine reads.
func (e *Engine) updateProgress() {
	e.progIteration.Store(int64(e.state.Iteration))
	e.progCandidates.Store(int64(len(e.state.Candidates)))
	e.progEvals.Store(int64(e.state.TotalNumEvals))
	e.progBestX1000.Store(int64(e.state.AggregateScores[e.state.BestIdx()] * 1000))
}

// startProgressTicker logs a progress line on an interval until the returned
// stop function is called.
func (e *Engine) startProgressTicker(ctx context.Context, interval time.Duration) func() {
	tickCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-tickCtx.Done():
				return
			case <-ticker.C:
				e.logger.InfoContext(ctx, "optimization progress",
					"iteration", e.progIteration.Load(),
					"candidates", e.progCandidates.Load(),
					"best_aggregate", float64(e.progBestX1000.Load())/1000,
					"evals_used", e.progEvals.Load(),
					"budget", e.cfg.MaxMetricCalls,
				)
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
