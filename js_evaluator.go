//go:build js_eval

package stand

import (
	"fmt"
	"strconv"

	"github.com/dop251/goja"
)

// jsEvaluator runs selector expressions with goja. When the snapshot is a
// *Handle, state fields are exposed as dynamic objects so every property the
// script touches is recorded as a read.
type jsEvaluator struct {
	cache    ProgramCache
	registry *FunctionRegistry
}

// NewJSEvaluator constructs an Evaluator backed by goja.
func NewJSEvaluator(opts ...JSEvaluatorOption) Evaluator {
	cfg := applyJSEvaluatorOptions(opts)
	return &jsEvaluator{
		cache:    cfg.cache,
		registry: cfg.registry,
	}
}

func (e *jsEvaluator) Evaluate(ctx RuleContext, expression string) (any, error) {
	if expression == "" {
		return nil, wrapEvaluatorError("js", fmt.Errorf("expression must not be empty"))
	}
	program, err := e.loadOrCompile(expression)
	if err != nil {
		return nil, err
	}
	return e.run(ctx.withDefaults(), expression, program)
}

func (e *jsEvaluator) Compile(expression string, _ ...CompileOption) (CompiledRule, error) {
	if expression == "" {
		return nil, wrapEvaluatorError("js", fmt.Errorf("expression must not be empty"))
	}
	program, err := e.loadOrCompile(expression)
	if err != nil {
		return nil, err
	}
	return &jsCompiledRule{
		evaluator:  e,
		expression: expression,
		program:    program,
	}, nil
}

func (e *jsEvaluator) loadOrCompile(expression string) (*goja.Program, error) {
	if e.cache != nil {
		if cached, ok := e.cache.Get("js:" + expression); ok {
			if program, ok := cached.(*goja.Program); ok {
				return program, nil
			}
		}
	}
	program, err := goja.Compile("", wrapJSExpression(expression), false)
	if err != nil {
		return nil, wrapEvaluationError("js", expression, err)
	}
	if e.cache != nil {
		e.cache.Set("js:"+expression, program)
	}
	return program, nil
}

func (e *jsEvaluator) run(ctx RuleContext, expression string, program *goja.Program) (result any, err error) {
	vm := goja.New()
	e.injectContext(vm, ctx)
	defer func() {
		// A dereference fault raised from a dynamic object surfaces here as a
		// Go panic; keep it intact so Produce can report it.
		if r := recover(); r != nil {
			if deref, ok := r.(*DereferenceError); ok {
				panic(deref)
			}
			err = wrapEvaluationError("js", expression, fmt.Errorf("%v", r))
		}
	}()
	value, runErr := vm.RunProgram(program)
	if runErr != nil {
		return nil, wrapEvaluationError("js", expression, runErr)
	}
	return ToRaw(exportJS(value)), nil
}

func (e *jsEvaluator) injectContext(vm *goja.Runtime, ctx RuleContext) {
	vm.Set("now", ctx.timestamp())
	vm.Set("args", ctx.Args)
	vm.Set("metadata", ctx.Metadata)
	if handle, ok := ctx.Snapshot.(*Handle); ok {
		vm.Set("__state", vm.NewDynamicObject(&jsObject{vm: vm, handle: handle}))
	} else {
		vm.Set("__state", ctx.document())
	}
	if e.registry != nil {
		vm.Set("call", func(name string, arguments ...any) (any, error) {
			return e.registry.Call(name, arguments...)
		})
		for _, name := range e.registry.Names() {
			fn := name
			vm.Set(fn, func(arguments ...any) (any, error) {
				return e.registry.Call(fn, arguments...)
			})
		}
	}
}

// Scripts run sloppy so that with() can scope state fields as globals.
func wrapJSExpression(expression string) string {
	return fmt.Sprintf("(function(){ with (__state) { return (%s); } })()", expression)
}

func exportJS(value goja.Value) any {
	if value == nil {
		return nil
	}
	if obj, ok := value.(*goja.Object); ok {
		switch typed := obj.Export().(type) {
		case *jsObject:
			return typed.handle
		case *jsArray:
			return typed.handle
		}
	}
	return value.Export()
}

type jsCompiledRule struct {
	evaluator  *jsEvaluator
	expression string
	program    *goja.Program
}

func (r *jsCompiledRule) Evaluate(ctx RuleContext) (any, error) {
	if r.evaluator == nil {
		return nil, wrapEvaluatorError("js", fmt.Errorf("compiled rule missing evaluator"))
	}
	return r.evaluator.run(ctx.withDefaults(), r.expression, r.program)
}

// jsObject exposes a map handle to goja. Reads go through Handle.Get and
// therefore follow the engine's tracking flag.
type jsObject struct {
	vm     *goja.Runtime
	handle *Handle
}

func (o *jsObject) Get(key string) goja.Value {
	value := o.handle.Get(key)
	if _, ok := rawField(ToRaw(o.handle), key); !ok {
		return goja.Undefined()
	}
	return jsValue(o.vm, value)
}

func (o *jsObject) Set(key string, value goja.Value) bool {
	o.handle.Set(key, value.Export())
	return true
}

func (o *jsObject) Has(key string) bool {
	_, ok := rawField(ToRaw(o.handle), key)
	return ok
}

func (o *jsObject) Delete(string) bool {
	return false
}

func (o *jsObject) Keys() []string {
	return o.handle.Keys()
}

// jsArray exposes a slice handle to goja.
type jsArray struct {
	vm     *goja.Runtime
	handle *Handle
}

func (a *jsArray) Len() int {
	return a.handle.Len()
}

func (a *jsArray) Get(idx int) goja.Value {
	if idx < 0 || idx >= a.handle.Len() {
		return goja.Undefined()
	}
	return jsValue(a.vm, a.handle.Get(strconv.Itoa(idx)))
}

func (a *jsArray) Set(idx int, value goja.Value) bool {
	if idx < 0 || idx >= a.handle.Len() {
		return false
	}
	a.handle.Set(strconv.Itoa(idx), value.Export())
	return true
}

func (a *jsArray) SetLen(int) bool {
	return false
}

func jsValue(vm *goja.Runtime, value any) goja.Value {
	handle, ok := value.(*Handle)
	if !ok {
		return vm.ToValue(value)
	}
	if _, isSlice := ToRaw(handle).([]any); isSlice {
		return vm.NewDynamicArray(&jsArray{vm: vm, handle: handle})
	}
	return vm.NewDynamicObject(&jsObject{vm: vm, handle: handle})
}

func jsEvaluatorAvailable() bool {
	return true
}

func isJSEvaluator(e Evaluator) bool {
	_, ok := e.(*jsEvaluator)
	return ok
}
