package types

import "sort"

// LabelSet is a deduplicated set of destination label names.
type LabelSet struct {
	names map[string]struct{}
}

// NewLabelSet builds a set from the given names, ignoring empty ones.
func NewLabelSet(names ...string) *LabelSet {
	s := &LabelSet{names: make(map[string]struct{}, len(names))}
	for _, n := range names {
		s.Add(n)
	}
	return s
}

// Add inserts a label. Empty names are ignored.
func (s *LabelSet) Add(name string) {
	if name == "" {
		return
	}
	if s.names == nil {
		s.names = make(map[string]struct{})
	}
	s.names[name] = struct{}{}
}

// Remove deletes a label if present.
func (s *LabelSet) Remove(name string) {
	if s == nil {
		return
	}
	delete(s.names, name)
}

// Has reports whether name is in the set.
func (s *LabelSet) Has(name string) bool {
	if s == nil {
		return false
	}
	_, ok := s.names[name]
	return ok
}

// Len returns the number of labels.
func (s *LabelSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.names)
}

// Names returns the labels sorted alphabetically.
func (s *LabelSet) Names() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.names))
	for n := range s.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
