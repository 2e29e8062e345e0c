package activity

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Verbs and object type used for store lifecycle events.
const (
	VerbStateUpdated  = "state.updated"
	VerbStateDisposed = "state.disposed"
	ObjectTypeState   = "state"
)

// Event describes one store lifecycle occurrence. ObjectID is the store ID.
// Update events carry "paths", "patch_count" and "fields" metadata.
type Event struct {
	Verb       string
	ActorID    string
	UserID     string
	TenantID   string
	ObjectType string
	ObjectID   string
	Channel    string
	Metadata   map[string]any
	OccurredAt time.Time
}

// Paths returns the patch paths recorded in the event metadata, or nil.
func (e Event) Paths() []string {
	paths, _ := toPaths(e.Metadata["paths"])
	return paths
}

// Fields returns the distinct top-level fields touched by the event.
func (e Event) Fields() []string {
	fields, _ := toPaths(e.Metadata["fields"])
	return fields
}

// Touches reports whether any recorded path is field or lies under it.
func (e Event) Touches(field string) bool {
	for _, path := range e.Paths() {
		if path == field || strings.HasPrefix(path, field+".") {
			return true
		}
	}
	return false
}

// ActivityHook receives normalized activity events.
type ActivityHook interface {
	Notify(ctx context.Context, event Event) error
}

// HookFunc allows plain functions to satisfy ActivityHook.
type HookFunc func(ctx context.Context, event Event) error

// Notify dispatches to the underlying function.
func (fn HookFunc) Notify(ctx context.Context, event Event) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, event)
}

// Hooks fans out events to zero or more hooks.
type Hooks []ActivityHook

// Enabled reports whether there are any hooks to notify.
func (h Hooks) Enabled() bool {
	return len(h) > 0
}

// Notify normalizes the event and forwards it to every hook, joining their
// errors. Events without a verb or store ID are dropped.
func (h Hooks) Notify(ctx context.Context, event Event) error {
	if len(h) == 0 {
		return nil
	}

	normalized := NormalizeEvent(event)
	if normalized.Verb == "" || normalized.ObjectID == "" {
		return nil
	}

	if ctx == nil {
		ctx = context.Background()
	}

	var errs []error
	for _, hook := range h {
		if hook == nil {
			continue
		}
		if err := hook.Notify(ctx, normalized); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NormalizeEvent trims identifiers, defaults the object type to "state" and
// the timestamp to now, and copies metadata. Path metadata decoded as []any
// is converted back to []string, blank paths are dropped and "patch_count"
// and "fields" are filled in when missing.
func NormalizeEvent(event Event) Event {
	normalized := event
	normalized.Verb = strings.TrimSpace(event.Verb)
	normalized.ActorID = strings.TrimSpace(event.ActorID)
	normalized.UserID = strings.TrimSpace(event.UserID)
	normalized.TenantID = strings.TrimSpace(event.TenantID)
	normalized.ObjectType = strings.TrimSpace(event.ObjectType)
	if normalized.ObjectType == "" {
		normalized.ObjectType = ObjectTypeState
	}
	normalized.ObjectID = strings.TrimSpace(event.ObjectID)
	normalized.Channel = strings.TrimSpace(event.Channel)
	normalized.Metadata = normalizeMetadata(event.Metadata)
	if normalized.OccurredAt.IsZero() {
		normalized.OccurredAt = time.Now()
	}
	return normalized
}

func normalizeMetadata(src map[string]any) map[string]any {
	meta := cloneMap(src)
	raw, ok := meta["paths"]
	if !ok {
		return meta
	}
	paths, ok := toPaths(raw)
	if !ok {
		delete(meta, "paths")
		return meta
	}
	meta["paths"] = paths
	if _, ok := meta["patch_count"]; !ok {
		meta["patch_count"] = len(paths)
	}
	if _, ok := meta["fields"]; !ok {
		if roots := rootFields(paths); len(roots) > 0 {
			meta["fields"] = roots
		}
	}
	return meta
}

// toPaths copies a []string or []any of strings, skipping blank entries.
func toPaths(value any) ([]string, bool) {
	var out []string
	switch typed := value.(type) {
	case []string:
		out = make([]string, 0, len(typed))
		for _, path := range typed {
			if path = strings.TrimSpace(path); path != "" {
				out = append(out, path)
			}
		}
	case []any:
		out = make([]string, 0, len(typed))
		for _, item := range typed {
			path, ok := item.(string)
			if !ok {
				return nil, false
			}
			if path = strings.TrimSpace(path); path != "" {
				out = append(out, path)
			}
		}
	default:
		return nil, false
	}
	return out, true
}

func cloneMap(src map[string]any) map[string]any {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]any, len(src))
	for key, value := range src {
		dst[key] = value
	}
	return dst
}
