package activity

import (
	"strings"
	"time"
)

// Identity names who a store acts on behalf of. Stores stamp it on every
// event they emit.
type Identity struct {
	ActorID  string
	UserID   string
	TenantID string
}

// StateEventInput describes the common fields for store lifecycle events.
type StateEventInput struct {
	Identity
	StoreID  string
	Channel  string
	Metadata map[string]any
	// Paths lists the patch paths of one update, in write order.
	Paths      []string
	OccurredAt time.Time
}

// BuildStateUpdatedEvent constructs an event for a committed update.
func BuildStateUpdatedEvent(input StateEventInput) Event {
	return buildStateEvent(VerbStateUpdated, input)
}

// BuildStateDisposedEvent constructs an event for a store reset by Dispose.
func BuildStateDisposedEvent(input StateEventInput) Event {
	return buildStateEvent(VerbStateDisposed, input)
}

func buildStateEvent(verb string, input StateEventInput) Event {
	metadata := cloneMap(input.Metadata)
	if input.Paths != nil {
		metadata = ensureMetadata(metadata)
		metadata["paths"] = append([]string{}, input.Paths...)
		metadata["patch_count"] = len(input.Paths)
		if roots := rootFields(input.Paths); len(roots) > 0 {
			metadata["fields"] = roots
		}
	}

	objectID := strings.TrimSpace(input.StoreID)
	if objectID == "" {
		objectID = ObjectTypeState
	}

	return Event{
		Verb:       verb,
		ActorID:    strings.TrimSpace(input.ActorID),
		UserID:     strings.TrimSpace(input.UserID),
		TenantID:   strings.TrimSpace(input.TenantID),
		ObjectType: ObjectTypeState,
		ObjectID:   objectID,
		Channel:    strings.TrimSpace(input.Channel),
		Metadata:   metadata,
		OccurredAt: input.OccurredAt,
	}
}

// rootFields returns the distinct top-level fields touched by paths.
func rootFields(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	var roots []string
	for _, path := range paths {
		root, _, _ := strings.Cut(path, ".")
		if root == "" {
			continue
		}
		if _, ok := seen[root]; ok {
			continue
		}
		seen[root] = struct{}{}
		roots = append(roots, root)
	}
	return roots
}

func ensureMetadata(meta map[string]any) map[string]any {
	if meta == nil {
		return map[string]any{}
	}
	return meta
}
