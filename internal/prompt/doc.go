// Package prompt bridges the GEPA engine and dspy-go programs.
//
// A program is a pipeline of named stages, each a dspy-go Predict module
// whose instruction text is one optimizable component. The package provides:
//
// Signature: declarative input/output specifications for stages
//
//	sig := prompt.MustParseSignature("question -> answer")
//
// ProgramAdapter: the gepa.Adapter implementation that runs the pipeline per
// example, scores outputs with a Metric, distills reflective datasets from
// stage traces, and asks the reflection LM for improved instructions.
//
//	adapter, _ := prompt.NewProgramAdapter(stages, metric, taskLM, reflectionLM)
//	engine, _ := gepa.New(cfg, adapter)
//
// ClientAdapter: adapts the llm.Client to dspy-go's core.LLM interface so
// Predict modules run against any OpenAI-compatible endpoint.
package prompt
