package stand

import (
	"errors"
	"fmt"
	"time"
)

var ErrNoEvaluator = errors.New("stand: evaluator not configured")

// reserved roots are injected into every expression environment and never
// count as state dependencies.
var reservedRoots = map[string]struct{}{
	"now":      {},
	"args":     {},
	"metadata": {},
	"call":     {},
}

func reservedRoot(name string) bool {
	_, ok := reservedRoots[name]
	return ok
}

// Evaluate runs expr against the current state using the configured
// evaluator.
func (s *Store) Evaluate(expr string) (any, error) {
	return s.EvaluateWith(RuleContext{}, expr)
}

// EvaluateWith runs expr against ctx, falling back to the current state when
// ctx.Snapshot is nil.
func (s *Store) EvaluateWith(ctx RuleContext, expr string) (any, error) {
	if expr == "" {
		return nil, fmt.Errorf("stand: expression must not be empty")
	}
	evaluator := s.evaluator()
	if evaluator == nil {
		return nil, ErrNoEvaluator
	}
	if ctx.Snapshot == nil {
		ctx.Snapshot = s.GetState()
	}
	ctx = ctx.withDefaults()
	engine := evaluatorEngineName(evaluator)
	start := time.Now()
	value, err := evaluator.Evaluate(ctx, expr)
	err = wrapEvaluationError(engine, expr, err)
	s.cfg.logger.LogEvaluation(EvaluationLogEvent{
		Engine:   engine,
		Expr:     expr,
		Duration: time.Since(start),
		Err:      err,
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// evaluator returns the configured evaluator, building the expr default on
// first use.
func (s *Store) evaluator() Evaluator {
	s.evalOnce.Do(func() {
		if s.cfg.evaluator != nil {
			return
		}
		var opts []ExprEvaluatorOption
		if s.cfg.programCache != nil {
			opts = append(opts, ExprWithProgramCache(s.cfg.programCache))
		}
		if s.cfg.functions != nil {
			opts = append(opts, ExprWithFunctionRegistry(s.cfg.functions))
		}
		s.cfg.evaluator = NewExprEvaluator(opts...)
	})
	return s.cfg.evaluator
}

func evaluatorEngineName(e Evaluator) string {
	switch e.(type) {
	case nil:
		return "unknown"
	case *exprEvaluator:
		return "expr"
	case *celEvaluator:
		return "cel"
	default:
		if isJSEvaluator(e) {
			return "js"
		}
		return "custom"
	}
}
