package stand

import "strconv"

// Tracked is a read-only view over a delivered projection. Every field read
// appends its full path to the owning subscription's dependency set, so a
// consumer that reads beyond its selector still gets refreshed.
type Tracked struct {
	value any
	path  string
	deps  *DependencySet
}

// Path returns the state path of the viewed value.
func (t *Tracked) Path() string {
	return t.path
}

// Raw returns the viewed value without recording a read.
func (t *Tracked) Raw() any {
	return t.value
}

// Get reads field, recording its path. Composite values come back as nested
// Tracked views.
func (t *Tracked) Get(field string) any {
	full := joinPath(t.path, field)
	t.deps.Add(full)
	value, _ := rawField(t.value, field)
	if isComposite(value) {
		return &Tracked{value: ToRaw(value), path: full, deps: t.deps}
	}
	return value
}

// Lookup reads a dot-separated path, recording every segment. Absent values
// yield nil.
func (t *Tracked) Lookup(path string) any {
	var current any = t
	for _, segment := range splitPath(path) {
		view, ok := current.(*Tracked)
		if !ok {
			return nil
		}
		current = view.Get(segment)
	}
	return current
}

// Keys lists field names without recording reads.
func (t *Tracked) Keys() []string {
	switch typed := t.value.(type) {
	case map[string]any:
		return sortedKeys(typed)
	case []any:
		keys := make([]string, len(typed))
		for i := range typed {
			keys[i] = strconv.Itoa(i)
		}
		return keys
	default:
		return nil
	}
}

// Len returns the number of fields or elements without recording reads.
func (t *Tracked) Len() int {
	switch typed := t.value.(type) {
	case map[string]any:
		return len(typed)
	case []any:
		return len(typed)
	default:
		return 0
	}
}
