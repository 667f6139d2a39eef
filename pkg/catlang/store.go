package catlang

import "sort"

// Variables holds the last value assigned to each name.
type Variables struct {
	values map[string]int32
}

// NewVariables returns an empty store.
func NewVariables() *Variables {
	return &Variables{values: make(map[string]int32)}
}

// Get looks up name.
func (v *Variables) Get(name string) (int32, bool) {
	value, ok := v.values[name]
	return value, ok
}

// Set creates or overwrites name.
func (v *Variables) Set(name string, value int32) {
	v.values[name] = value
}

// Len returns the number of defined variables.
func (v *Variables) Len() int {
	return len(v.values)
}

// Names returns the defined names in sorted order.
func (v *Variables) Names() []string {
	names := make([]string, 0, len(v.values))
	for name := range v.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns a copy of the store contents.
func (v *Variables) Snapshot() map[string]int32 {
	out := make(map[string]int32, len(v.values))
	for name, value := range v.values {
		out[name] = value
	}
	return out
}
