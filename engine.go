package stand

import "fmt"

// Patch records one write: the full path written and the value assigned.
type Patch struct {
	Path  string `json:"path"`
	Value any    `json:"value"`
}

// PatchFunc receives each patch synchronously as it is recorded.
type PatchFunc func(Patch)

// Mutator runs once against the root handle of a Produce call.
type Mutator func(draft *Handle) any

// Result is the outcome of a Produce call.
type Result struct {
	Patches []Patch
	Deps    []string
	Value   any
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithControls makes the engine consult controls instead of its own flags.
func WithControls(controls *Controls) EngineOption {
	return func(e *Engine) {
		if controls != nil {
			e.controls = controls
		}
	}
}

// Engine wraps composite values in recording handles. Its flags are scoped to
// the engine instance; separate engines never observe each other's pauses.
type Engine struct {
	controls *Controls
}

// NewEngine constructs an engine with every flag enabled.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	if e.controls == nil {
		e.controls = NewControls()
	}
	return e
}

// Controls exposes the flag stacks consulted by the engine.
func (e *Engine) Controls() *Controls {
	return e.controls
}

// Produce wraps base in a handle with an empty path, runs fn exactly once and
// returns the recorded patches, the distinct dependency paths in first-touch
// order and fn's return value. Writes mutate base in place. A dereference
// fault raised inside fn is returned as an error; other panics propagate.
func (e *Engine) Produce(base any, fn Mutator, onPatch ...PatchFunc) (result Result, err error) {
	if fn == nil {
		return Result{}, ErrNilMutator
	}
	if !isComposite(base) {
		return Result{}, fmt.Errorf("%w: got %T", ErrNotComposite, base)
	}

	rec := &recorder{
		controls: e.controls,
		deps:     NewDependencySet(),
		patches:  []Patch{},
		onPatch:  onPatch,
	}
	root := &Handle{target: base, rec: rec}

	defer func() {
		if recovered := recover(); recovered != nil {
			derefErr, ok := recovered.(*DereferenceError)
			if !ok {
				panic(recovered)
			}
			result = Result{}
			err = derefErr
		}
	}()

	value := fn(root)
	return Result{
		Patches: rec.patches,
		Deps:    rec.deps.Paths(),
		Value:   value,
	}, nil
}

// Produce runs fn on a fresh engine with every flag enabled.
func Produce(base any, fn Mutator, onPatch ...PatchFunc) (Result, error) {
	return NewEngine().Produce(base, fn, onPatch...)
}

type recorder struct {
	controls *Controls
	deps     *DependencySet
	patches  []Patch
	onPatch  []PatchFunc
}

func (r *recorder) wrap(value any, path string) *Handle {
	return &Handle{target: value, path: path, rec: r}
}

func (r *recorder) emit(patch Patch) {
	r.patches = append(r.patches, patch)
	for _, fn := range r.onPatch {
		if fn != nil {
			fn(patch)
		}
	}
}
