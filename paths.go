package stand

import (
	"sort"
	"strconv"
	"strings"
)

// PathSeparator joins field names into a path.
const PathSeparator = "."

func joinPath(prefix, segment string) string {
	if prefix == "" {
		return segment
	}
	return prefix + PathSeparator + segment
}

func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, PathSeparator)
}

// Covers reports whether a write at path invalidates a dependency on dep. The
// rule is segment aware: "a" covers "a", "a.b" and "a.bc" but not "ab", and a
// write to an ancestor never covers a deeper dependency. The empty dependency
// denotes the root and covers every path.
func Covers(dep, path string) bool {
	if dep == "" {
		return true
	}
	if !strings.HasPrefix(path, dep) {
		return false
	}
	return len(path) == len(dep) || strings.HasPrefix(path[len(dep):], PathSeparator)
}

// Relevant reports whether any patch path is covered by any dependency.
func Relevant(deps []string, patches []Patch) bool {
	for _, patch := range patches {
		for _, dep := range deps {
			if Covers(dep, patch.Path) {
				return true
			}
		}
	}
	return false
}

// isComposite reports whether value can be wrapped in a Handle.
func isComposite(value any) bool {
	switch typed := value.(type) {
	case map[string]any, []any:
		return true
	case *Handle:
		return typed != nil
	default:
		return false
	}
}

// lookupPath walks raw composites along path. Handles are resolved without
// recording anything.
func lookupPath(value any, path string) (any, bool) {
	current := value
	for _, segment := range splitPath(path) {
		next, ok := rawField(ToRaw(current), segment)
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}

func rawField(target any, field string) (any, bool) {
	switch typed := target.(type) {
	case map[string]any:
		value, ok := typed[field]
		return value, ok
	case []any:
		index, ok := sliceIndex(typed, field)
		if !ok {
			return nil, false
		}
		return typed[index], true
	default:
		return nil, false
	}
}

func sliceIndex(slice []any, field string) (int, bool) {
	index, err := strconv.Atoi(field)
	if err != nil || index < 0 || index >= len(slice) {
		return 0, false
	}
	return index, true
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
