package activity

import (
	"context"
	"sync"
)

// CaptureHook records normalized events in memory. Err, when set, is
// returned from every Notify after the event is recorded.
type CaptureHook struct {
	Events []Event
	Err    error
	mu     sync.Mutex
}

// Notify records the event and returns any configured error.
func (h *CaptureHook) Notify(_ context.Context, event Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Events = append(h.Events, NormalizeEvent(event))
	return h.Err
}

// Snapshot returns a copy of the recorded events.
func (h *CaptureHook) Snapshot() []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Event(nil), h.Events...)
}

// Verbs lists the verbs of the recorded events in arrival order.
func (h *CaptureHook) Verbs() []string {
	events := h.Snapshot()
	verbs := make([]string, len(events))
	for i, event := range events {
		verbs[i] = event.Verb
	}
	return verbs
}

// Updates returns the recorded state.updated events.
func (h *CaptureHook) Updates() []Event {
	return h.withVerb(VerbStateUpdated)
}

// Disposals returns the recorded state.disposed events.
func (h *CaptureHook) Disposals() []Event {
	return h.withVerb(VerbStateDisposed)
}

// Last returns the most recent event.
func (h *CaptureHook) Last() (Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.Events) == 0 {
		return Event{}, false
	}
	return h.Events[len(h.Events)-1], true
}

// Reset drops every recorded event.
func (h *CaptureHook) Reset() {
	h.mu.Lock()
	h.Events = nil
	h.mu.Unlock()
}

func (h *CaptureHook) withVerb(verb string) []Event {
	var out []Event
	for _, event := range h.Snapshot() {
		if event.Verb == verb {
			out = append(out, event)
		}
	}
	return out
}
