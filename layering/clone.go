// Package layering copies and composes untyped state documents.
package layering

// Clone returns a deep copy of doc. Nested map[string]any and []any values are
// copied; every other value is shared with the original.
func Clone(doc map[string]any) map[string]any {
	if doc == nil {
		return nil
	}
	out := make(map[string]any, len(doc))
	for key, value := range doc {
		out[key] = CloneValue(value)
	}
	return out
}

// CloneValue deep copies document composites and returns leaves unchanged.
func CloneValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return Clone(typed)
	case []any:
		if typed == nil {
			return typed
		}
		out := make([]any, len(typed))
		for i := range typed {
			out[i] = CloneValue(typed[i])
		}
		return out
	default:
		return value
	}
}
