package prompt

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/longregen/gepa/internal/gepa"
	"github.com/longregen/gepa/internal/llm"
)

// scriptedLM returns canned reflection responses in order.
type scriptedLM struct {
	responses []string
	calls     int
}

func (s *scriptedLM) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	if s.calls >= len(s.responses) {
		return "", nil
	}
	resp := s.responses[s.calls]
	s.calls++
	return resp, nil
}

func testStages() []Stage {
	return []Stage{{
		Name:        "answer_generator",
		Signature:   MustParseSignature("question -> answer"),
		Instruction: "Answer the question.",
	}}
}

func TestSeedCandidate(t *testing.T) {
	adapter, err := NewProgramAdapter(testStages(), &ExactMatchMetric{}, nil, &scriptedLM{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	seed := adapter.SeedCandidate()
	if len(seed) != 1 || seed["answer_generator"] != "Answer the question." {
		t.Errorf("unexpected seed: %v", seed)
	}
}

func TestNewProgramAdapterRejectsBadStages(t *testing.T) {
	if _, err := NewProgramAdapter(nil, &ExactMatchMetric{}, nil, &scriptedLM{}); err == nil {
		t.Error("expected error for empty pipeline")
	}

	dup := []Stage{
		{Name: "x", Signature: MustParseSignature("a -> b")},
		{Name: "x", Signature: MustParseSignature("b -> c")},
	}
	if _, err := NewProgramAdapter(dup, &ExactMatchMetric{}, nil, &scriptedLM{}); err == nil {
		t.Error("expected error for duplicate stage names")
	}
}

func TestMakeReflectiveDataset(t *testing.T) {
	adapter, err := NewProgramAdapter(testStages(), &ExactMatchMetric{}, nil, &scriptedLM{}, WithMaxReflectiveExamples(2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	trajectories := make([]any, 3)
	for i := range trajectories {
		trajectories[i] = &Trajectory{
			Stages: []StageTrace{{
				Component: "answer_generator",
				Inputs:    map[string]any{"question": "q"},
				Outputs:   map[string]any{"answer": "a"},
			}},
			Feedback: "Expected: b, Got: a",
		}
	}
	batch := &gepa.EvaluationBatch{Trajectories: trajectories}

	reflective, err := adapter.MakeReflectiveDataset(
		context.Background(),
		gepa.Candidate{"answer_generator": "Answer the question."},
		batch,
		[]string{"answer_generator"},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	records := reflective["answer_generator"]
	if len(records) != 2 {
		t.Fatalf("expected cap at 2 records, got %d", len(records))
	}
	if records[0].Feedback != "Expected: b, Got: a" {
		t.Errorf("unexpected feedback: %q", records[0].Feedback)
	}
}

func TestProposeNewTextsParsesFence(t *testing.T) {
	lm := &scriptedLM{responses: []string{"```\nBe precise.\n```"}}
	adapter, err := NewProgramAdapter(testStages(), &ExactMatchMetric{}, nil, lm)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reflective := gepa.ReflectiveDataset{
		"answer_generator": {{Inputs: "q", GeneratedOutputs: "a", Feedback: "wrong"}},
	}
	newTexts, err := adapter.ProposeNewTexts(
		context.Background(),
		gepa.Candidate{"answer_generator": "Answer the question."},
		reflective,
		[]string{"answer_generator"},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if newTexts["answer_generator"] != "Be precise." {
		t.Errorf("unexpected new text: %q", newTexts["answer_generator"])
	}
}

func TestProposeNewTextsMalformed(t *testing.T) {
	lm := &scriptedLM{responses: []string{"no fence here"}}
	adapter, err := NewProgramAdapter(testStages(), &ExactMatchMetric{}, nil, lm)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = adapter.ProposeNewTexts(
		context.Background(),
		gepa.Candidate{"answer_generator": "Answer the question."},
		gepa.ReflectiveDataset{},
		[]string{"answer_generator"},
	)
	if err == nil {
		t.Fatal("expected malformed reflection error")
	}
	if !errors.Is(err, gepa.ErrMalformedReflection) {
		t.Errorf("expected gepa.ErrMalformedReflection, got %v", err)
	}
}

func TestLoadExamples(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/train.jsonl"
	content := `{"inputs": {"question": "2+2?"}, "outputs": {"answer": "4"}}

{"inputs": {"question": "3+3?"}, "outputs": {"answer": "6"}}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	examples, err := LoadExamples(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(examples) != 2 {
		t.Fatalf("expected 2 examples, got %d", len(examples))
	}
	if examples[0].Inputs["question"] != "2+2?" || examples[1].Outputs["answer"] != "6" {
		t.Errorf("unexpected examples: %+v", examples)
	}
}

func TestLoadExamplesRejectsMalformed(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/bad.jsonl"
	if err := os.WriteFile(path, []byte("{not json}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadExamples(path); err == nil {
		t.Error("expected error for malformed JSONL")
	}
}
