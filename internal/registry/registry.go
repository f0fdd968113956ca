// SPDX-License-Identifier: Apache-2.0

// Package registry holds the declared, process-static mappings from symbolic
// names to the small integer discriminators stored in the fact tables.
package registry

import (
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
)

const (
	EventTypePrefix = "ET_"
	StateKeyPrefix  = "SK_"
)

// Registry is an immutable name -> id declaration filtered by a naming prefix.
type Registry struct {
	kind   string
	prefix string
	decl   map[string]any

	once      sync.Once
	available map[string]any
	ids       map[int]string
}

// New copies decl; later changes to the caller's map are not observed.
func New(kind, prefix string, decl map[string]any) *Registry {
	return &Registry{
		kind:   kind,
		prefix: prefix,
		decl:   maps.Clone(decl),
	}
}

// EventTypes builds the registry of event types (ET_ prefix).
func EventTypes(decl map[string]any) *Registry {
	return New("event type", EventTypePrefix, decl)
}

// StateKeys builds the registry of state keys (SK_ prefix).
func StateKeys(decl map[string]any) *Registry {
	return New("state key", StateKeyPrefix, decl)
}

func (r *Registry) Kind() string   { return r.kind }
func (r *Registry) Prefix() string { return r.prefix }

func (r *Registry) load() {
	r.once.Do(func() {
		r.available = make(map[string]any, len(r.decl))
		r.ids = make(map[int]string, len(r.decl))
		for name, value := range r.decl {
			if !strings.HasPrefix(name, r.prefix) {
				continue
			}
			r.available[name] = value
			if id, ok := asInt(value); ok {
				r.ids[id] = name
			}
		}
	})
}

// Available returns the declared entries carrying the registry prefix.
// Values are returned as declared; non-integer values are not rejected here.
func (r *Registry) Available() map[string]any {
	r.load()
	return maps.Clone(r.available)
}

// IsValid reports whether id is one of the declared integer values.
func (r *Registry) IsValid(id int) bool {
	r.load()
	_, ok := r.ids[id]
	return ok
}

// Name returns the declared name for id.
func (r *Registry) Name(id int) (string, bool) {
	r.load()
	name, ok := r.ids[id]
	return name, ok
}

// IDs returns the sorted integer ids. It fails if any declared value is not
// an integer, naming the offending entry.
func (r *Registry) IDs() ([]int, error) {
	r.load()

	names := make([]string, 0, len(r.available))
	for name := range r.available {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]int, 0, len(names))
	for _, name := range names {
		id, ok := asInt(r.available[name])
		if !ok {
			return nil, fmt.Errorf("%s %s has non-integer id %v", r.kind, name, r.available[name])
		}
		out = append(out, id)
	}
	sort.Ints(out)
	return out, nil
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	default:
		return 0, false
	}
}
