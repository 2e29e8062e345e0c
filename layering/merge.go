package layering

// MergeLayers composes documents ordered from strongest to weakest, returning a
// new document that keeps keys from stronger layers while filling missing keys
// from weaker ones. Nested documents merge recursively; any other value from a
// stronger layer replaces the weaker value wholesale. Inputs are not modified.
func MergeLayers(layers ...map[string]any) map[string]any {
	merged := map[string]any{}
	for i := len(layers) - 1; i >= 0; i-- {
		merged = mergeDocument(layers[i], merged)
	}
	return merged
}

func mergeDocument(strong, weak map[string]any) map[string]any {
	out := make(map[string]any, len(strong)+len(weak))
	for key, value := range weak {
		out[key] = CloneValue(value)
	}
	for key, value := range strong {
		strongDoc, strongIsDoc := value.(map[string]any)
		weakDoc, weakIsDoc := out[key].(map[string]any)
		if strongIsDoc && weakIsDoc && strongDoc != nil {
			out[key] = mergeDocument(strongDoc, weakDoc)
			continue
		}
		out[key] = CloneValue(value)
	}
	return out
}
