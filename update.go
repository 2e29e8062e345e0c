package stand

import (
	"reflect"

	"github.com/goliatone/go-stand/layering"
)

// Update is accepted by Store.SetState. It is either a *Partial (object
// shaped) or a Mutate (mutator shaped).
type Update interface {
	apply(s *Store, current map[string]any) (next map[string]any, patches []Patch, err error)
	kind() string
}

// Partial is an ordered set of top-level keys to merge into the state. Keys
// keep their insertion order; setting a key twice keeps its first position
// and the last value.
type Partial struct {
	keys   []string
	values map[string]any
}

// NewPartial returns an empty partial.
func NewPartial() *Partial {
	return &Partial{values: map[string]any{}}
}

// PartialOf builds a partial from m with keys in sorted order.
func PartialOf(m map[string]any) *Partial {
	p := NewPartial()
	for _, key := range sortedKeys(m) {
		p.With(key, m[key])
	}
	return p
}

// With sets key to value and returns p for chaining.
func (p *Partial) With(key string, value any) *Partial {
	if p.values == nil {
		p.values = map[string]any{}
	}
	if _, exists := p.values[key]; !exists {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value
	return p
}

// Keys returns the keys in merge order.
func (p *Partial) Keys() []string {
	if p == nil {
		return nil
	}
	out := make([]string, len(p.keys))
	copy(out, p.keys)
	return out
}

// Get returns the value stored for key.
func (p *Partial) Get(key string) (any, bool) {
	if p == nil {
		return nil, false
	}
	value, ok := p.values[key]
	return value, ok
}

// Len returns the number of keys.
func (p *Partial) Len() int {
	if p == nil {
		return 0
	}
	return len(p.keys)
}

func (p *Partial) kind() string { return "partial" }

func (p *Partial) apply(_ *Store, current map[string]any) (map[string]any, []Patch, error) {
	next := make(map[string]any, len(current)+p.Len())
	for key, value := range current {
		next[key] = value
	}
	return next, p.mergeInto(next, make([]Patch, 0, p.Len())), nil
}

// mergeInto writes every key of p into target, appending one patch per key.
func (p *Partial) mergeInto(target map[string]any, patches []Patch) []Patch {
	if p == nil {
		return patches
	}
	for _, key := range p.keys {
		value := ToRaw(p.values[key])
		target[key] = value
		patches = append(patches, Patch{Path: key, Value: value})
	}
	return patches
}

// Mutate is a mutator-shaped update. It receives a handle over a private copy
// of the current state; direct writes become patches, and a returned
// composite (a *Partial, a map[string]any or a handle resolving to one) is
// merged afterwards with one patch per top-level key.
type Mutate func(draft *Handle) any

func (m Mutate) kind() string { return "mutate" }

func (m Mutate) apply(s *Store, current map[string]any) (map[string]any, []Patch, error) {
	if m == nil {
		return nil, nil, ErrNilMutator
	}
	draft := layering.Clone(current)
	if draft == nil {
		draft = map[string]any{}
	}

	var (
		result Result
		err    error
	)
	s.engine.Controls().Without(func() {
		result, err = s.engine.Produce(draft, Mutator(m))
	}, Tracking, Packing)
	if err != nil {
		return nil, nil, err
	}

	patches := result.Patches
	if merge := mergeSource(result.Value, draft); merge != nil {
		patches = merge.mergeInto(draft, patches)
	}
	return draft, patches, nil
}

// mergeSource turns a mutator's return value into a partial. Values that are
// not objects, and the draft root itself, yield nil.
func mergeSource(value any, root map[string]any) *Partial {
	switch typed := ToRaw(value).(type) {
	case *Partial:
		return typed
	case map[string]any:
		if typed == nil || sameMap(typed, root) {
			return nil
		}
		return PartialOf(typed)
	default:
		return nil
	}
}

func sameMap(a, b map[string]any) bool {
	return reflect.ValueOf(a).UnsafePointer() == reflect.ValueOf(b).UnsafePointer()
}
