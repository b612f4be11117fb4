package permission

import (
	"maps"
	"slices"
)

// Set is a set of permission names.
type Set map[string]struct{}

func NewSet(names ...string) Set {
	s := make(Set, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

func (s Set) Has(name string) bool {
	_, ok := s[name]
	return ok
}

func (s Set) Add(names ...string) {
	for _, n := range names {
		s[n] = struct{}{}
	}
}

// Merge adds every name of other not in skip.
func (s Set) Merge(other, skip Set) {
	for n := range other {
		if skip.Has(n) {
			continue
		}
		s[n] = struct{}{}
	}
}

// Names returns the names sorted.
func (s Set) Names() []string {
	return slices.Sorted(maps.Keys(s))
}
