package crdt

import "sort"

// Set is a replicated add/remove set of opaque byte elements. Local adds
// and removes are staged and collapse into one SetUpdate operation.
type Set struct {
	key     string
	elems   map[string]struct{}
	adds    map[string]struct{}
	removes map[string]struct{}
}

func NewSet(key string) *Set {
	return &Set{
		key:     key,
		elems:   make(map[string]struct{}),
		adds:    make(map[string]struct{}),
		removes: make(map[string]struct{}),
	}
}

func (s *Set) Key() string    { return s.key }
func (s *Set) Type() DataType { return TypeSet }

// Add stages an element addition. A staged removal of the same element is
// superseded.
func (s *Set) Add(elem []byte) *Set {
	key := string(elem)
	delete(s.removes, key)
	s.adds[key] = struct{}{}
	return s
}

// Remove stages an element removal. A staged addition of the same element is
// superseded.
func (s *Set) Remove(elem []byte) *Set {
	key := string(elem)
	delete(s.adds, key)
	s.removes[key] = struct{}{}
	return s
}

// Contains reports element membership with staged updates applied.
func (s *Set) Contains(elem []byte) bool {
	key := string(elem)
	if _, ok := s.removes[key]; ok {
		return false
	}
	if _, ok := s.adds[key]; ok {
		return true
	}
	_, ok := s.elems[key]
	return ok
}

// Elements returns the membership view with staged updates applied, sorted
// for deterministic output.
func (s *Set) Elements() [][]byte {
	merged := make(map[string]struct{}, len(s.elems)+len(s.adds))
	for k := range s.elems {
		merged[k] = struct{}{}
	}
	for k := range s.adds {
		merged[k] = struct{}{}
	}
	for k := range s.removes {
		delete(merged, k)
	}
	return sortedElems(merged)
}

// Operations returns at most one SetUpdate covering all staged changes.
func (s *Set) Operations() []Operation {
	if len(s.adds) == 0 && len(s.removes) == 0 {
		return nil
	}
	return []Operation{SetUpdate{
		Key:     s.key,
		Adds:    sortedElems(s.adds),
		Removes: sortedElems(s.removes),
	}}
}

// ClearStaged drops staged updates, typically after a successful store.
func (s *Set) ClearStaged() {
	s.adds = make(map[string]struct{})
	s.removes = make(map[string]struct{})
}

func sortedElems(m map[string]struct{}) [][]byte {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([][]byte, len(keys))
	for i, k := range keys {
		out[i] = []byte(k)
	}
	return out
}
