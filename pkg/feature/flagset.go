package feature

import (
	"maps"
	"reflect"
	"slices"
)

// FlagSet is an immutable, indexed collection of features. A nil *FlagSet is
// valid and empty, which lets readers load it from an atomic pointer without
// checking for the initial state.
type FlagSet struct {
	features map[string]*Feature
}

// NewFlagSet indexes features by key. Later duplicates replace earlier ones.
func NewFlagSet(features []Feature) *FlagSet {
	set := &FlagSet{features: make(map[string]*Feature, len(features))}
	for i := range features {
		f := features[i]
		if f.Key == "" {
			continue
		}
		set.features[f.Key] = &f
	}
	return set
}

// Get returns the feature stored under key. The returned value is shared and
// must not be modified.
func (s *FlagSet) Get(key string) (*Feature, bool) {
	if s == nil {
		return nil, false
	}
	f, ok := s.features[key]
	return f, ok
}

// Len returns the number of features in the set.
func (s *FlagSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.features)
}

// Keys returns the feature keys in sorted order.
func (s *FlagSet) Keys() []string {
	if s == nil {
		return nil
	}
	return slices.Sorted(maps.Keys(s.features))
}

// Changes lists what differs between two sets.
type Changes struct {
	Added   []string
	Updated []string
	Removed []string
}

// Empty reports whether no flag changed.
func (c Changes) Empty() bool {
	return len(c.Added) == 0 && len(c.Updated) == 0 && len(c.Removed) == 0
}

// Diff compares prev against s. Either side may be nil.
func (s *FlagSet) Diff(prev *FlagSet) Changes {
	var c Changes
	for _, key := range s.Keys() {
		cur, _ := s.Get(key)
		old, ok := prev.Get(key)
		switch {
		case !ok:
			c.Added = append(c.Added, key)
		case !reflect.DeepEqual(old, cur):
			c.Updated = append(c.Updated, key)
		}
	}
	for _, key := range prev.Keys() {
		if _, ok := s.Get(key); !ok {
			c.Removed = append(c.Removed, key)
		}
	}
	return c
}
