// Package jsonutil provides common JSON helper functions.
package jsonutil

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// MustJSON marshals v to a JSON string.
// Returns an empty string on error.
func MustJSON(v any) string {
	if v == nil {
		return "{}"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// MustMarshalIndent marshals v to a pretty-printed JSON string.
// Returns an empty string on error.
func MustMarshalIndent(v any) string {
	if v == nil {
		return "{}"
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return ""
	}
	return string(b)
}

// WriteFile marshals v to indented JSON and writes it to path, creating
// parent directories as needed.
func WriteFile(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// ReadFile reads JSON from path into v.
func ReadFile(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}
