package bind

import (
	"sync"

	"github.com/google/uuid"
)

// Renderer is a headless runtime: it renders consumers as plain functions,
// re-rendering an instance synchronously when one of its cells changes.
// Renders are serialised; a cell change made while a render is in progress
// is queued and drained before the triggering call returns.
type Renderer struct {
	mu      sync.Mutex
	busy    bool
	queue   []*Instance
	current *Instance
}

// NewRenderer constructs an idle renderer.
func NewRenderer() *Renderer {
	return &Renderer{}
}

// Current returns the runtime of the instance being rendered, or nil. It is
// the Provider to pass to Bind.
func (r *Renderer) Current() Runtime {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return nil
	}
	return r.current
}

// Mount creates an instance for render and renders it once, then runs its
// effects.
func (r *Renderer) Mount(render func()) *Instance {
	inst := &Instance{
		id:       uuid.NewString(),
		renderer: r,
		render:   render,
	}
	r.schedule(inst)
	return inst
}

func (r *Renderer) schedule(inst *Instance) {
	r.mu.Lock()
	for _, queued := range r.queue {
		if queued == inst {
			r.mu.Unlock()
			return
		}
	}
	r.queue = append(r.queue, inst)
	if r.busy {
		r.mu.Unlock()
		return
	}
	r.busy = true
	r.mu.Unlock()
	r.drain()
}

func (r *Renderer) drain() {
	defer func() {
		if rec := recover(); rec != nil {
			r.mu.Lock()
			r.busy = false
			r.current = nil
			r.queue = nil
			r.mu.Unlock()
			panic(rec)
		}
	}()
	for {
		r.mu.Lock()
		if len(r.queue) == 0 {
			r.busy = false
			r.mu.Unlock()
			return
		}
		next := r.queue[0]
		r.queue = r.queue[1:]
		r.current = next
		r.mu.Unlock()

		rendered := next.renderOnce()

		r.mu.Lock()
		r.current = nil
		r.mu.Unlock()
		if rendered {
			next.runEffects()
		}
	}
}

// Instance is one mounted consumer. Cells and effects are matched to calls by
// their order within the render function.
type Instance struct {
	id       string
	renderer *Renderer
	render   func()

	mu         sync.Mutex
	cells      []*cell
	effects    []*effect
	cellCursor int
	effCursor  int
	renders    int
	disposed   bool
}

type cell struct {
	value any
}

type effect struct {
	setup    func() func()
	ran      bool
	teardown func()
}

// ID returns the instance identity.
func (i *Instance) ID() string {
	return i.id
}

// Identity implements Runtime.
func (i *Instance) Identity() string {
	return i.id
}

// Renders returns how many times the instance has rendered.
func (i *Instance) Renders() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.renders
}

// State implements Runtime.
func (i *Instance) State(init func() any) (get func() any, set func(any)) {
	i.mu.Lock()
	index := i.cellCursor
	i.cellCursor++
	created := index >= len(i.cells)
	if created {
		i.cells = append(i.cells, &cell{})
	}
	c := i.cells[index]
	i.mu.Unlock()

	if created && init != nil {
		value := init()
		i.mu.Lock()
		c.value = value
		i.mu.Unlock()
	}

	get = func() any {
		i.mu.Lock()
		defer i.mu.Unlock()
		return c.value
	}
	set = func(value any) {
		i.mu.Lock()
		c.value = value
		disposed := i.disposed
		i.mu.Unlock()
		if !disposed {
			i.renderer.schedule(i)
		}
	}
	return get, set
}

// Effect implements Runtime. Setups run after the render that first
// registered them.
func (i *Instance) Effect(setup func() (teardown func())) {
	i.mu.Lock()
	defer i.mu.Unlock()
	index := i.effCursor
	i.effCursor++
	if index >= len(i.effects) {
		i.effects = append(i.effects, &effect{setup: setup})
	}
}

// Dispose runs every teardown once, in reverse registration order. The
// instance never renders again.
func (i *Instance) Dispose() {
	i.mu.Lock()
	if i.disposed {
		i.mu.Unlock()
		return
	}
	i.disposed = true
	effects := i.effects
	i.effects = nil
	i.mu.Unlock()

	for idx := len(effects) - 1; idx >= 0; idx-- {
		if teardown := effects[idx].teardown; teardown != nil {
			teardown()
		}
	}
}

// Disposed reports whether Dispose has been called.
func (i *Instance) Disposed() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.disposed
}

func (i *Instance) renderOnce() bool {
	i.mu.Lock()
	if i.disposed {
		i.mu.Unlock()
		return false
	}
	i.cellCursor = 0
	i.effCursor = 0
	i.renders++
	i.mu.Unlock()

	if i.render != nil {
		i.render()
	}
	return true
}

func (i *Instance) runEffects() {
	for {
		i.mu.Lock()
		var pending *effect
		for _, eff := range i.effects {
			if !eff.ran {
				pending = eff
				break
			}
		}
		if pending == nil || i.disposed {
			i.mu.Unlock()
			return
		}
		pending.ran = true
		i.mu.Unlock()

		if pending.setup == nil {
			continue
		}
		teardown := pending.setup()
		i.mu.Lock()
		pending.teardown = teardown
		i.mu.Unlock()
	}
}
