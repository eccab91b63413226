package prompt

import (
	"strconv"
	"strings"

	"github.com/longregen/gepa/internal/gepa"
	"github.com/longregen/gepa/shared/jsonutil"
)

const reflectionFallbackPrompt = `You are improving the instruction of one component of an LLM program.

CURRENT INSTRUCTION:
{{current_instruction}}

Below are examples of what the component received, what it produced, and
feedback on the program's final output.

{{examples}}

Study the feedback, identify what the current instruction gets wrong or
leaves underspecified, and write an improved instruction for this component.
Keep everything that already works; address the observed failures; include
any domain detail the examples reveal.

Respond with ONLY the new instruction inside a fenced code block.`

// buildReflectionPrompt renders the reflection prompt for one component.
func buildReflectionPrompt(currentInstruction string, records []gepa.ReflectiveExample) string {
	var sb strings.Builder
	for i, rec := range records {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("### Example ")
		sb.WriteString(strconv.Itoa(i + 1))
		sb.WriteString("\n")
		sb.WriteString("Inputs: ")
		sb.WriteString(jsonutil.MustJSON(rec.Inputs))
		sb.WriteString("\nGenerated Outputs: ")
		sb.WriteString(jsonutil.MustJSON(rec.GeneratedOutputs))
		sb.WriteString("\nFeedback: ")
		sb.WriteString(rec.Feedback)
		sb.WriteString("\n")
	}

	vars := map[string]string{
		"current_instruction": currentInstruction,
		"examples":            sb.String(),
	}
	return renderTemplate(reflectionFallbackPrompt, vars)
}

// renderTemplate substitutes {{key}} placeholders.
func renderTemplate(template string, vars map[string]string) string {
	out := template
	for key, value := range vars {
		out = strings.ReplaceAll(out, "{{"+key+"}}", value)
	}
	return out
}

// ExtractFencedBlock returns the raw inner text of the first fenced code
// block in s. Both terminated and unterminated fences are accepted; a
// response with no fence returns ok == false.
func ExtractFencedBlock(s string) (string, bool) {
	start := strings.Index(s, "```")
	if start < 0 {
		return "", false
	}
	rest := s[start+3:]

	// Drop the optional language tag on the fence line.
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	} else {
		// Fence with no newline after it; nothing inside.
		return "", false
	}

	if end := strings.Index(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimRight(rest, "\n"), true
}
