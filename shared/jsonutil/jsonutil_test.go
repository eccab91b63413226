package jsonutil

import (
	"path/filepath"
	"testing"
)

func TestMustJSON(t *testing.T) {
	if got := MustJSON(map[string]string{"b": "2", "a": "1"}); got != `{"a":"1","b":"2"}` {
		t.Errorf("unexpected JSON: %s", got)
	}
	if got := MustJSON(nil); got != "{}" {
		t.Errorf("expected {} for nil, got %s", got)
	}
}

func TestWriteReadFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "out.json")
	in := map[string]any{"name": "gepa", "count": 3.0}

	if err := WriteFile(path, in); err != nil {
		t.Fatalf("write: %v", err)
	}

	var out map[string]any
	if err := ReadFile(path, &out); err != nil {
		t.Fatalf("read: %v", err)
	}
	if out["name"] != "gepa" || out["count"] != 3.0 {
		t.Errorf("round trip mismatch: %v", out)
	}
}
