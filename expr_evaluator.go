package stand

import (
	"fmt"
	"strconv"

	exprlang "github.com/expr-lang/expr"
	exprast "github.com/expr-lang/expr/ast"
	exprparser "github.com/expr-lang/expr/parser"
	exprvm "github.com/expr-lang/expr/vm"
)

// ExprEvaluatorOption configures an expr evaluator instance.
type ExprEvaluatorOption func(*exprEvaluator)

// ExprWithProgramCache wires a ProgramCache into the expr evaluator.
func ExprWithProgramCache(cache ProgramCache) ExprEvaluatorOption {
	return func(e *exprEvaluator) {
		e.cache = cache
	}
}

// ExprWithFunctionRegistry wires a FunctionRegistry into the expr evaluator.
func ExprWithFunctionRegistry(registry *FunctionRegistry) ExprEvaluatorOption {
	return func(e *exprEvaluator) {
		if registry == nil {
			return
		}
		e.registry = registry.Clone()
	}
}

// exprEvaluator executes selector expressions using github.com/expr-lang/expr.
type exprEvaluator struct {
	cache    ProgramCache
	registry *FunctionRegistry
}

// NewExprEvaluator constructs an Evaluator backed by expr-lang/expr. It also
// implements DependencyExtractor.
func NewExprEvaluator(opts ...ExprEvaluatorOption) Evaluator {
	e := &exprEvaluator{}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Evaluate compiles and runs expression against the state in ctx.Snapshot.
func (e *exprEvaluator) Evaluate(ctx RuleContext, expression string) (any, error) {
	if expression == "" {
		return nil, wrapEvaluatorError("expr", fmt.Errorf("expression must not be empty"))
	}
	program, err := e.loadOrCompile(expression)
	if err != nil {
		return nil, err
	}
	result, err := exprlang.Run(program, e.environment(ctx.withDefaults()))
	if err != nil {
		return nil, wrapEvaluationError("expr", expression, err)
	}
	return result, nil
}

// Compile returns a compiled rule that evaluates expression per invocation.
func (e *exprEvaluator) Compile(expression string, _ ...CompileOption) (CompiledRule, error) {
	if expression == "" {
		return nil, wrapEvaluatorError("expr", fmt.Errorf("expression must not be empty"))
	}
	program, err := e.loadOrCompile(expression)
	if err != nil {
		return nil, err
	}
	return &exprCompiledRule{
		evaluator:  e,
		program:    program,
		expression: expression,
	}, nil
}

// Dependencies lists the member paths expression reads from the state, each
// preceded by its prefixes, in source order. Function names and reserved
// roots are skipped.
func (e *exprEvaluator) Dependencies(expression string) ([]string, error) {
	if expression == "" {
		return nil, wrapEvaluatorError("expr", fmt.Errorf("expression must not be empty"))
	}
	tree, err := exprparser.Parse(expression)
	if err != nil {
		return nil, wrapEvaluationError("expr", expression, err)
	}
	collector := &exprPathCollector{
		skip:    e.registryNames(),
		callees: map[exprast.Node]struct{}{},
	}
	exprast.Walk(&tree.Node, collector)
	return collector.paths(), nil
}

func (e *exprEvaluator) loadOrCompile(expression string) (*exprvm.Program, error) {
	if e.cache != nil {
		if cached, ok := e.cache.Get("expr:" + expression); ok {
			if program, ok := cached.(*exprvm.Program); ok {
				return program, nil
			}
		}
	}
	options := []exprlang.Option{
		exprlang.Env(map[string]any{}),
		exprlang.AllowUndefinedVariables(),
	}
	for _, name := range e.registryNames() {
		options = append(options, exprlang.Function(name, e.registryFunction(name)))
	}
	program, err := exprlang.Compile(expression, options...)
	if err != nil {
		return nil, wrapEvaluationError("expr", expression, err)
	}
	if e.cache != nil {
		e.cache.Set("expr:"+expression, program)
	}
	return program, nil
}

type exprCompiledRule struct {
	evaluator  *exprEvaluator
	program    *exprvm.Program
	expression string
}

func (r *exprCompiledRule) Evaluate(ctx RuleContext) (any, error) {
	if r.evaluator == nil {
		return nil, wrapEvaluatorError("expr", fmt.Errorf("compiled rule missing evaluator"))
	}
	if r.program == nil {
		return r.evaluator.Evaluate(ctx, r.expression)
	}
	result, err := exprlang.Run(r.program, r.evaluator.environment(ctx.withDefaults()))
	if err != nil {
		return nil, wrapEvaluationError("expr", r.expression, err)
	}
	return result, nil
}

func (e *exprEvaluator) environment(ctx RuleContext) map[string]any {
	env := map[string]any{}
	for key, value := range ctx.document() {
		env[key] = value
	}
	env["now"] = ctx.timestamp()
	env["args"] = ctx.Args
	env["metadata"] = ctx.Metadata
	if e.registry != nil {
		env["call"] = func(name string, arguments ...any) (any, error) {
			return e.registry.Call(name, arguments...)
		}
	}
	return env
}

func (e *exprEvaluator) registryNames() []string {
	if e == nil || e.registry == nil {
		return nil
	}
	return e.registry.Names()
}

func (e *exprEvaluator) registryFunction(name string) func(...any) (any, error) {
	return func(arguments ...any) (any, error) {
		return e.registry.Call(name, arguments...)
	}
}

// exprPathCollector gathers identifier/member chains and every prefix of
// them, mirroring the reads a tracked run would record. Walk visits children
// before parents, so callees are only known to be callees after the fact.
type exprPathCollector struct {
	skip    []string
	order   []exprast.Node
	found   map[exprast.Node]string
	callees map[exprast.Node]struct{}
}

func (c *exprPathCollector) Visit(node *exprast.Node) {
	if call, ok := (*node).(*exprast.CallNode); ok {
		c.callees[call.Callee] = struct{}{}
	}
	path, ok := exprMemberPath(*node)
	if !ok || c.skipped(path) {
		return
	}
	if c.found == nil {
		c.found = map[exprast.Node]string{}
	}
	c.found[*node] = path
	c.order = append(c.order, *node)
}

func (c *exprPathCollector) skipped(path string) bool {
	root := splitPath(path)[0]
	if reservedRoot(root) {
		return true
	}
	for _, name := range c.skip {
		if name == root {
			return true
		}
	}
	return false
}

func (c *exprPathCollector) paths() []string {
	deps := NewDependencySet()
	for _, node := range c.order {
		if _, callee := c.callees[node]; callee {
			continue
		}
		deps.Add(c.found[node])
	}
	return deps.Paths()
}

func exprMemberPath(node exprast.Node) (string, bool) {
	switch typed := node.(type) {
	case *exprast.IdentifierNode:
		return typed.Value, typed.Value != ""
	case *exprast.MemberNode:
		if typed.Method {
			return "", false
		}
		parent, ok := exprMemberPath(typed.Node)
		if !ok {
			return "", false
		}
		switch property := typed.Property.(type) {
		case *exprast.StringNode:
			return joinPath(parent, property.Value), true
		case *exprast.IntegerNode:
			return joinPath(parent, strconv.Itoa(property.Value)), true
		}
	}
	return "", false
}
