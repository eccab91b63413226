package otel

import "go.opentelemetry.io/otel/attribute"

// Standard attribute keys for GEPA telemetry.
const (
	AttrRunID        = "run.id"
	AttrOptimizer    = "optimizer"
	AttrIteration    = "iteration"
	AttrStrategy     = "strategy"
	AttrProposer     = "proposer"
	AttrCandidateIdx = "candidate.idx"
	AttrParentIdx    = "parent.idx"
	AttrComponent    = "component.name"
	AttrAggregate    = "score.aggregate"
	AttrBestIdx      = "best.idx"
	AttrEvalsUsed    = "budget.evals_used"
	AttrBatchSize    = "batch.size"
	AttrLLMModel     = "llm.model"
	AttrLLMProvider  = "llm.provider"
)

func RunID(id string) attribute.KeyValue       { return attribute.String(AttrRunID, id) }
func Optimizer(name string) attribute.KeyValue { return attribute.String(AttrOptimizer, name) }
func Iteration(i int) attribute.KeyValue       { return attribute.Int(AttrIteration, i) }
func Strategy(name string) attribute.KeyValue  { return attribute.String(AttrStrategy, name) }
func Proposer(name string) attribute.KeyValue  { return attribute.String(AttrProposer, name) }
func CandidateIdx(i int) attribute.KeyValue    { return attribute.Int(AttrCandidateIdx, i) }
func ParentIdx(i int) attribute.KeyValue       { return attribute.Int(AttrParentIdx, i) }
func Component(name string) attribute.KeyValue { return attribute.String(AttrComponent, name) }
func Aggregate(v float64) attribute.KeyValue   { return attribute.Float64(AttrAggregate, v) }
func BestIdx(i int) attribute.KeyValue         { return attribute.Int(AttrBestIdx, i) }
func EvalsUsed(n int) attribute.KeyValue       { return attribute.Int(AttrEvalsUsed, n) }
func BatchSize(n int) attribute.KeyValue       { return attribute.Int(AttrBatchSize, n) }
func LLMModel(model string) attribute.KeyValue { return attribute.String(AttrLLMModel, model) }
func LLMProvider(p string) attribute.KeyValue  { return attribute.String(AttrLLMProvider, p) }
