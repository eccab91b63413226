package prompt

import (
	"fmt"
	"strings"

	"github.com/XiaoConstantine/dspy-go/pkg/core"
)

// Signature wraps dspy-go's signature with a stable name.
type Signature struct {
	core.Signature
	Name string
}

// MustParseSignature creates a signature from a string or panics.
func MustParseSignature(sig string) Signature {
	s, err := ParseSignature(sig)
	if err != nil {
		panic(fmt.Sprintf("failed to parse signature: %v", err))
	}
	return s
}

// ParseSignature creates a signature from a string like
// "input1, input2 -> output1, output2".
func ParseSignature(sig string) (Signature, error) {
	parts := strings.Split(sig, "->")
	if len(parts) != 2 {
		return Signature{}, fmt.Errorf("invalid signature format: %s", sig)
	}

	inputNames := parseFields(strings.TrimSpace(parts[0]))
	outputNames := parseFields(strings.TrimSpace(parts[1]))
	if len(inputNames) == 0 || len(outputNames) == 0 {
		return Signature{}, fmt.Errorf("signature needs inputs and outputs: %s", sig)
	}

	inputs := make([]core.InputField, len(inputNames))
	for i, name := range inputNames {
		inputs[i] = core.InputField{Field: core.NewField(name)}
	}
	outputs := make([]core.OutputField, len(outputNames))
	for i, name := range outputNames {
		outputs[i] = core.OutputField{Field: core.NewField(name)}
	}

	return Signature{
		Signature: core.NewSignature(inputs, outputs),
		Name:      generateName(sig),
	}, nil
}

// parseFields splits comma-separated field definitions into names, dropping
// any ": type" annotations.
func parseFields(fieldStr string) []string {
	if fieldStr == "" {
		return nil
	}
	parts := strings.Split(fieldStr, ",")
	names := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if idx := strings.Index(part, ":"); idx >= 0 {
			part = strings.TrimSpace(part[:idx])
		}
		names = append(names, part)
	}
	return names
}

// generateName creates a name from the signature string.
func generateName(sig string) string {
	name := strings.ReplaceAll(sig, "->", "_to_")
	name = strings.ReplaceAll(name, ",", "_")
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.ReplaceAll(name, ":", "_")
	return name
}

// InputNames returns the signature's input field names in order.
func (s Signature) InputNames() []string {
	names := make([]string, len(s.Inputs))
	for i, f := range s.Inputs {
		names[i] = f.Name
	}
	return names
}

// OutputNames returns the signature's output field names in order.
func (s Signature) OutputNames() []string {
	names := make([]string, len(s.Outputs))
	for i, f := range s.Outputs {
		names[i] = f.Name
	}
	return names
}
