package prompt

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// LoadExamples reads a JSONL file where each line is
// {"inputs": {...}, "outputs": {...}}.
func LoadExamples(path string) ([]Example, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()

	var examples []Example
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var ex Example
		if err := json.Unmarshal([]byte(text), &ex); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		if len(ex.Inputs) == 0 {
			return nil, fmt.Errorf("%s line %d: example has no inputs", path, line)
		}
		examples = append(examples, ex)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	return examples, nil
}

// ToDataset converts examples to the opaque form the engine passes around.
func ToDataset(examples []Example) []any {
	out := make([]any, len(examples))
	for i, ex := range examples {
		out[i] = ex
	}
	return out
}
