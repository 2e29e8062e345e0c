// Package bind connects a store to a reactive runtime. A runtime supplies,
// per consumer instance, a persistent state cell, a once-per-lifetime effect
// and a stable identity; Hook.Use builds selective subscriptions on top.
package bind

import (
	"errors"
	"fmt"
	"sync"

	stand "github.com/goliatone/go-stand"
)

// ErrNoRuntime reports a missing runtime provider, or a Use call made while
// no consumer is rendering.
var ErrNoRuntime = errors.New("bind: no runtime configured")

// Runtime is the per-consumer contract a UI layer implements.
type Runtime interface {
	// State returns a getter/setter pair for a cell that persists across
	// renders of the same consumer. init runs only on first use.
	State(init func() any) (get func() any, set func(any))
	// Effect runs setup once per consumer lifetime; the returned teardown
	// runs once when the consumer is disposed.
	Effect(setup func() (teardown func()))
	// Identity is stable for the lifetime of the consumer.
	Identity() string
}

// Provider returns the runtime of the consumer currently rendering, or nil.
type Provider func() Runtime

// SetFunc applies an update to the store.
type SetFunc func(stand.Update) error

// GetFunc returns the current state.
type GetFunc func() map[string]any

// SetupFunc returns the initial state. It may capture set and get to build
// actions stored in the state.
type SetupFunc func(set SetFunc, get GetFunc) map[string]any

// Middleware wraps the setter/getter pair. Middlewares apply in order, so the
// last one is outermost.
type Middleware func(set SetFunc, get GetFunc) (SetFunc, GetFunc)

// Factory creates hooks bound to one runtime provider.
type Factory struct {
	provider Provider
	opts     []stand.Option
}

// Bind returns a factory for provider. Store options are applied to every
// store the factory creates.
func Bind(provider Provider, opts ...stand.Option) (*Factory, error) {
	if provider == nil {
		return nil, ErrNoRuntime
	}
	return &Factory{provider: provider, opts: append([]stand.Option(nil), opts...)}, nil
}

// Create builds a store, threads its setter and getter through mws and seeds
// it with the state returned by setup.
func (f *Factory) Create(setup SetupFunc, mws ...Middleware) (*Hook, error) {
	store := stand.NewStore(f.opts...)
	var set SetFunc = store.SetState
	var get GetFunc = store.GetState
	for _, mw := range mws {
		if mw == nil {
			continue
		}
		set, get = mw(set, get)
	}

	h := &Hook{
		store:    store,
		provider: f.provider,
		set:      set,
		get:      get,
		envs:     map[string]*stand.DependencySet{},
	}
	if setup != nil {
		if initial := setup(set, get); initial != nil {
			if err := set(stand.PartialOf(initial)); err != nil {
				return nil, fmt.Errorf("bind: seed state: %w", err)
			}
		}
	}
	return h, nil
}

// Hook is the consumer-facing handle of a bound store.
type Hook struct {
	store    *stand.Store
	provider Provider
	set      SetFunc
	get      GetFunc

	mu   sync.Mutex
	envs map[string]*stand.DependencySet
}

// Use projects the state through sel for the consumer currently rendering.
// The first call per consumer subscribes to the store; later renders return
// the cached projection, which is refreshed only when a patch touches one of
// the consumer's dependencies. Composite projections come back as
// *stand.Tracked views whose reads extend those dependencies.
func (h *Hook) Use(sel stand.Selector) (any, error) {
	rt := h.provider()
	if rt == nil {
		return nil, ErrNoRuntime
	}
	deps := h.env(rt.Identity())

	getSub, _ := rt.State(func() any {
		return h.store.NewSubscription(sel, stand.WithDependencies(deps))
	})
	sub := getSub().(*stand.Subscription)

	var projectErr error
	getValue, setValue := rt.State(func() any {
		value, err := sub.Project(h.get())
		projectErr = err
		return value
	})
	if projectErr != nil {
		return nil, projectErr
	}

	id := rt.Identity()
	rt.Effect(func() func() {
		// A failed acquire is logged by the subscription; the consumer keeps
		// whatever dependencies its tracked reads add later.
		_ = sub.Acquire(h.get())
		unsubscribe := h.store.Subscribe(func(_ map[string]any, patches []stand.Patch) {
			if value, ok := sub.Refresh(h.get(), patches); ok {
				setValue(value)
			}
		})
		return func() {
			unsubscribe()
			h.dropEnv(id)
		}
	})

	return sub.Track(getValue()), nil
}

// Set applies u through the middleware chain.
func (h *Hook) Set(u stand.Update) error {
	return h.set(u)
}

// Get returns the state through the middleware chain.
func (h *Hook) Get() map[string]any {
	return h.get()
}

// Subscribe registers a raw store listener.
func (h *Hook) Subscribe(listener stand.Listener) (unsubscribe func()) {
	return h.store.Subscribe(listener)
}

// Store returns the underlying store.
func (h *Hook) Store() *stand.Store {
	return h.store
}

// Dependencies returns the dependency paths recorded for a consumer identity.
func (h *Hook) Dependencies(identity string) []string {
	h.mu.Lock()
	deps := h.envs[identity]
	h.mu.Unlock()
	if deps == nil {
		return nil
	}
	return deps.Paths()
}

// Consumers returns the number of consumers with a live dependency set.
func (h *Hook) Consumers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.envs)
}

func (h *Hook) env(identity string) *stand.DependencySet {
	h.mu.Lock()
	defer h.mu.Unlock()
	deps, ok := h.envs[identity]
	if !ok {
		deps = stand.NewDependencySet()
		h.envs[identity] = deps
	}
	return deps
}

func (h *Hook) dropEnv(identity string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.envs, identity)
}
