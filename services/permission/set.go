package permission

// Set is an immutable, insertion-ordered set of permission identifiers.
// A nil *Set behaves as the empty set.
type Set struct {
	ids   []string
	index map[string]struct{}
}

// NewSet builds a set from ids, collapsing duplicates and dropping empty ids
func NewSet(ids ...string) *Set {
	s := &Set{
		ids:   make([]string, 0, len(ids)),
		index: make(map[string]struct{}, len(ids)),
	}
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, dup := s.index[id]; dup {
			continue
		}
		s.index[id] = struct{}{}
		s.ids = append(s.ids, id)
	}
	return s
}

// Contains reports whether id is a member of the set
func (s *Set) Contains(id string) bool {
	if s == nil {
		return false
	}
	_, ok := s.index[id]
	return ok
}

// ContainsAny reports whether at least one of ids is a member
func (s *Set) ContainsAny(ids []string) bool {
	for _, id := range ids {
		if s.Contains(id) {
			return true
		}
	}
	return false
}

// ContainsAll reports whether every one of ids is a member. Empty ids is true.
func (s *Set) ContainsAll(ids []string) bool {
	for _, id := range ids {
		if !s.Contains(id) {
			return false
		}
	}
	return true
}

// IDs returns a copy of the identifiers in insertion order
func (s *Set) IDs() []string {
	if s == nil {
		return []string{}
	}
	out := make([]string, len(s.ids))
	copy(out, s.ids)
	return out
}

// Len returns the number of identifiers
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	return len(s.ids)
}
