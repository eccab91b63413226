package prompt

import (
	"strings"
	"testing"

	"github.com/longregen/gepa/internal/gepa"
)

func TestExtractFencedBlockTerminated(t *testing.T) {
	response := "Here is the improved instruction:\n```\nAnswer concisely.\nCite sources.\n```\nHope this helps."
	got, ok := ExtractFencedBlock(response)
	if !ok {
		t.Fatal("expected a fenced block")
	}
	if got != "Answer concisely.\nCite sources." {
		t.Errorf("unexpected inner text: %q", got)
	}
}

func TestExtractFencedBlockUnterminated(t *testing.T) {
	response := "```text\nAnswer concisely."
	got, ok := ExtractFencedBlock(response)
	if !ok {
		t.Fatal("expected a fenced block")
	}
	if got != "Answer concisely." {
		t.Errorf("unexpected inner text: %q", got)
	}
}

func TestExtractFencedBlockLanguageTag(t *testing.T) {
	response := "```markdown\nStep by step.\n```"
	got, ok := ExtractFencedBlock(response)
	if !ok || got != "Step by step." {
		t.Errorf("expected language tag dropped, got %q (ok=%v)", got, ok)
	}
}

func TestExtractFencedBlockNoFence(t *testing.T) {
	if _, ok := ExtractFencedBlock("Just plain text."); ok {
		t.Error("expected no fence to be rejected")
	}
	if _, ok := ExtractFencedBlock(""); ok {
		t.Error("expected empty response to be rejected")
	}
}

func TestBuildReflectionPrompt(t *testing.T) {
	records := []gepa.ReflectiveExample{
		{
			Inputs:           map[string]any{"question": "2+2?"},
			GeneratedOutputs: map[string]any{"answer": "5"},
			Feedback:         "Expected: 4, Got: 5",
		},
	}
	prompt := buildReflectionPrompt("Answer the question.", records)

	for _, want := range []string{
		"Answer the question.",
		"2+2?",
		"Expected: 4, Got: 5",
		"fenced code block",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if strings.Contains(prompt, "{{") {
		t.Errorf("unreplaced placeholder in prompt:\n%s", prompt)
	}
}
