package gepa

import "sort"

// Candidate is a mapping from component name to instruction text. The set of
// component names is fixed by the seed candidate and never changes across
// iterations. Candidates are treated as immutable: mutation goes through
// Merge, which returns a fresh map.
type Candidate map[string]string

// Clone returns a copy of the candidate.
func (c Candidate) Clone() Candidate {
	out := make(Candidate, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Merge returns a new candidate with the given component texts replaced.
// Components not present in the receiver are ignored: the component set is
// fixed at seeding time.
func (c Candidate) Merge(newTexts map[string]string) Candidate {
	out := c.Clone()
	for name, text := range newTexts {
		if _, ok := out[name]; ok {
			out[name] = text
		}
	}
	return out
}

// Equal reports whether two candidates hold identical component texts.
func (c Candidate) Equal(other Candidate) bool {
	if len(c) != len(other) {
		return false
	}
	for k, v := range c {
		if ov, ok := other[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

// Components returns the sorted component names.
func (c Candidate) Components() []string {
	names := make([]string, 0, len(c))
	for k := range c {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// diffComponents returns the sorted component names on which a differs from base.
func diffComponents(base, a Candidate) []string {
	var changed []string
	for name, text := range a {
		if base[name] != text {
			changed = append(changed, name)
		}
	}
	sort.Strings(changed)
	return changed
}
