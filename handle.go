package stand

import "strconv"

// Handle is a recording view over a composite value (map[string]any, []any or
// another Handle). Reads through Get record dependency paths and writes
// through Set record patches, subject to the engine's control flags.
type Handle struct {
	target any
	path   string
	rec    *recorder
}

// Path returns the location of the wrapped value inside the produced base.
func (h *Handle) Path() string {
	if h == nil {
		return ""
	}
	return h.path
}

// Raw returns the value wrapped one level down. Use ToRaw to resolve chains.
func (h *Handle) Raw() any {
	if h == nil {
		return nil
	}
	return h.target
}

// Get reads field, recording its path when tracking is enabled. Composite
// values come back wrapped in a new Handle while packing is enabled.
func (h *Handle) Get(field string) any {
	if h == nil {
		dereferencePanic("read", field, "handle is nil")
	}
	full := joinPath(h.path, field)
	value := h.read(field)
	if h.rec.controls.Enabled(Tracking) {
		h.rec.deps.Add(full)
	}
	if isComposite(value) && h.rec.controls.Enabled(Packing) {
		return h.rec.wrap(value, full)
	}
	return value
}

// Set assigns value to field on the wrapped value and, when triggering is
// enabled, appends a patch. The assignment always happens.
func (h *Handle) Set(field string, value any) {
	if h == nil {
		dereferencePanic("write", field, "handle is nil")
	}
	full := joinPath(h.path, field)
	h.write(field, full, ToRaw(value))
	if h.rec.controls.Enabled(Triggering) {
		h.rec.emit(Patch{Path: full, Value: value})
	}
}

// At reads field and returns it as a Handle, raising a dereference fault when
// the value is absent, not composite, or was not wrapped because packing is
// paused.
func (h *Handle) At(field string) *Handle {
	value := h.Get(field)
	if next, ok := value.(*Handle); ok {
		return next
	}
	full := joinPath(h.path, field)
	switch {
	case value == nil:
		dereferencePanic("read", full, "value is absent")
	case isComposite(value):
		dereferencePanic("read", full, "packing is paused")
	default:
		dereferencePanic("read", full, "value is not composite")
	}
	return nil
}

// Lookup reads a dot-separated path relative to h. Every segment read through
// a handle is recorded; segments below an unwrapped composite are not.
func (h *Handle) Lookup(path string) any {
	var current any = h
	walked := h.Path()
	for _, segment := range splitPath(path) {
		current = step(current, segment, walked, "read")
		walked = joinPath(walked, segment)
	}
	return current
}

// Assign writes value at a dot-separated path relative to h and records one
// patch for the full path, even when packing is paused and the parent is a
// raw composite.
func (h *Handle) Assign(path string, value any) {
	segments := splitPath(path)
	if len(segments) == 0 {
		dereferencePanic("write", h.Path(), "path is empty")
	}
	var parent any = h
	walked := h.Path()
	for _, segment := range segments[:len(segments)-1] {
		parent = step(parent, segment, walked, "write")
		walked = joinPath(walked, segment)
	}
	last := segments[len(segments)-1]
	switch typed := parent.(type) {
	case *Handle:
		typed.Set(last, value)
	case map[string]any, []any:
		full := joinPath(walked, last)
		writeRaw(typed, last, full, ToRaw(value))
		if h.rec.controls.Enabled(Triggering) {
			h.rec.emit(Patch{Path: full, Value: value})
		}
	case nil:
		dereferencePanic("write", joinPath(walked, last), "parent is absent")
	default:
		dereferencePanic("write", joinPath(walked, last), "parent is not composite")
	}
}

// Keys lists the field names of the wrapped value without recording reads.
// Map keys are sorted; slices yield their indexes.
func (h *Handle) Keys() []string {
	switch typed := ToRaw(h).(type) {
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
func (h *Handle) Len() int {
	switch typed := ToRaw(h).(type) {
	case map[string]any:
		return len(typed)
	case []any:
		return len(typed)
	default:
		return 0
	}
}

func (h *Handle) read(field string) any {
	switch typed := h.target.(type) {
	case *Handle:
		return typed.Get(field)
	default:
		value, _ := rawField(typed, field)
		return value
	}
}

func (h *Handle) write(field, full string, value any) {
	if inner, ok := h.target.(*Handle); ok {
		inner.Set(field, value)
		return
	}
	writeRaw(h.target, field, full, value)
}

func writeRaw(target any, field, full string, value any) {
	switch typed := target.(type) {
	case map[string]any:
		if typed == nil {
			dereferencePanic("write", full, "map is nil")
		}
		typed[field] = value
	case []any:
		index, ok := sliceIndex(typed, field)
		if !ok {
			dereferencePanic("write", full, "index out of range")
		}
		typed[index] = value
	default:
		dereferencePanic("write", full, "target is not composite")
	}
}

func step(current any, segment, walked, op string) any {
	switch typed := current.(type) {
	case *Handle:
		return typed.Get(segment)
	case map[string]any, []any:
		value, _ := rawField(typed, segment)
		return value
	case nil:
		dereferencePanic(op, joinPath(walked, segment), "parent is absent")
	default:
		dereferencePanic(op, joinPath(walked, segment), "parent is not composite")
	}
	return nil
}
