package stand

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goliatone/go-stand/layering"
	"github.com/goliatone/go-stand/pkg/activity"
	"github.com/google/uuid"
)

// Listener receives the new canonical state and the patches of one update.
type Listener func(state map[string]any, patches []Patch)

// WatchFunc receives a refreshed projection and the patches that caused it.
type WatchFunc func(value any, patches []Patch)

// Store owns a canonical state document and notifies listeners with the
// patches produced by every update.
//
// Delivered snapshots are never modified afterwards: partial updates build a
// new top-level map and mutators run against a private deep copy.
//
// Every method is safe for concurrent use. Updates from different goroutines
// run one whole pass at a time, listeners included, so listeners observe
// snapshots in commit order.
type Store struct {
	id     string
	cfg    storeConfig
	engine *Engine

	// pass is held from commit until the last listener returns.
	pass *passLock

	mu        sync.RWMutex
	state     map[string]any
	listeners []*listenerEntry

	emitter  *activity.Emitter
	evalOnce sync.Once
}

type listenerEntry struct {
	fn     Listener
	active atomic.Bool
}

// NewStore constructs a store with an empty state, or with the merged
// WithDefaults documents.
func NewStore(opts ...Option) *Store {
	cfg := applyOptions(opts)
	s := &Store{
		id:     uuid.NewString(),
		cfg:    cfg,
		engine: NewEngine(WithControls(cfg.controls)),
		pass:   newPassLock(),
		state:  initialState(cfg),
	}
	s.emitter = activity.NewEmitter(cfg.activityHooks, activity.Config{
		Enabled: len(cfg.activityHooks) > 0,
		Channel: cfg.activityChannel,
	})
	return s
}

func initialState(cfg storeConfig) map[string]any {
	if len(cfg.defaults) == 0 {
		return map[string]any{}
	}
	return layering.MergeLayers(cfg.defaults...)
}

// ID returns the store's identifier used in logs and activity events.
func (s *Store) ID() string {
	return s.id
}

// Engine returns the engine used for mutator updates and selectors.
func (s *Store) Engine() *Engine {
	return s.engine
}

// GetState returns the canonical state without copying it.
func (s *Store) GetState() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// SetState applies update, installs the new state and then calls every
// listener once, in subscription order, with the new state and the full patch
// sequence. An error means no listener was notified and the state is
// unchanged.
//
// A SetState issued by a listener runs its own complete pass before the
// outer pass continues; its depth counts against WithMaxDepth. Calls from
// other goroutines wait until the current pass, nested passes included, has
// finished.
func (s *Store) SetState(update Update) error {
	if update == nil {
		return ErrNilUpdate
	}
	depth := s.pass.acquire()
	defer s.pass.release()

	start := time.Now()
	event := UpdateLogEvent{StoreID: s.id, Kind: update.kind(), Depth: depth}
	if s.cfg.maxDepth > 0 && depth > s.cfg.maxDepth {
		event.Err = fmt.Errorf("%w: limit %d", ErrMaxDepthExceeded, s.cfg.maxDepth)
		s.cfg.logger.LogUpdate(event)
		return event.Err
	}

	state, patches, listeners, err := s.commit(update)
	if err != nil {
		event.Err = err
		event.Duration = time.Since(start)
		s.cfg.logger.LogUpdate(event)
		return err
	}

	notified := 0
	for _, entry := range listeners {
		if !entry.active.Load() {
			continue
		}
		entry.fn(state, patches)
		notified++
	}

	event.Patches = len(patches)
	event.Listeners = notified
	event.Duration = time.Since(start)
	s.cfg.logger.LogUpdate(event)
	s.emitUpdated(patches)
	return nil
}

func (s *Store) commit(update Update) (map[string]any, []Patch, []*listenerEntry, error) {
	next, patches, err := update.apply(s, s.GetState())
	if err != nil {
		return nil, nil, nil, err
	}
	if patches == nil {
		patches = []Patch{}
	}

	s.mu.Lock()
	s.state = next
	listeners := append([]*listenerEntry(nil), s.listeners...)
	s.mu.Unlock()
	return next, patches, listeners, nil
}

// Subscribe registers listener and returns a function that removes it. The
// returned function is safe to call more than once.
func (s *Store) Subscribe(listener Listener) (unsubscribe func()) {
	if listener == nil {
		return func() {}
	}
	entry := &listenerEntry{fn: listener}
	entry.active.Store(true)

	s.mu.Lock()
	s.listeners = append(s.listeners, entry)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			entry.active.Store(false)
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, candidate := range s.listeners {
				if candidate == entry {
					s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
					break
				}
			}
		})
	}
}

// Dispose resets the state to an empty document and drops every listener.
// The store remains usable.
func (s *Store) Dispose() {
	s.pass.acquire()
	s.mu.Lock()
	for _, entry := range s.listeners {
		entry.active.Store(false)
	}
	s.listeners = nil
	s.state = map[string]any{}
	s.mu.Unlock()
	s.pass.release()

	s.emit(activity.BuildStateDisposedEvent(activity.StateEventInput{
		Identity: s.cfg.identity,
		StoreID:  s.id,
	}))
}

// Listeners returns the number of registered listeners.
func (s *Store) Listeners() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.listeners)
}

// NewSubscription builds a subscription that shares the store's engine,
// evaluator and logger. Extra options are applied last.
func (s *Store) NewSubscription(sel Selector, opts ...SubscriptionOption) *Subscription {
	base := []SubscriptionOption{
		WithSubscriptionEngine(s.engine),
		WithSubscriptionEvaluator(s.evaluator()),
		WithSubscriptionLogger(s.cfg.logger),
	}
	return NewSubscription(sel, append(base, opts...)...)
}

// Watch is a headless consumer: it acquires the selector's dependencies from
// the current state and calls fn with the refreshed projection whenever a
// relevant batch of patches is delivered. A failed projection skips fn and
// is reported to the store's logger.
func (s *Store) Watch(sel Selector, fn WatchFunc) (unsubscribe func(), err error) {
	if fn == nil {
		return nil, fmt.Errorf("stand: watch callback is required")
	}
	sub := s.NewSubscription(sel)
	if err := sub.Acquire(s.GetState()); err != nil {
		return nil, err
	}
	return s.Subscribe(func(state map[string]any, patches []Patch) {
		if value, ok := sub.Refresh(state, patches); ok {
			fn(value, patches)
		}
	}), nil
}

func (s *Store) emitUpdated(patches []Patch) {
	if !s.emitter.Enabled() {
		return
	}
	paths := make([]string, len(patches))
	for i, patch := range patches {
		paths[i] = patch.Path
	}
	s.emit(activity.BuildStateUpdatedEvent(activity.StateEventInput{
		Identity: s.cfg.identity,
		StoreID:  s.id,
		Paths:    paths,
	}))
}

func (s *Store) emit(event activity.Event) {
	if !s.emitter.Enabled() {
		return
	}
	if err := s.emitter.Emit(context.Background(), event); err != nil {
		s.cfg.logger.LogUpdate(UpdateLogEvent{StoreID: s.id, Kind: "activity", Err: err})
	}
}
