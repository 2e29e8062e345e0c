package stand

import (
	"sync"
	"time"
)

// SubscriptionOption configures a Subscription.
type SubscriptionOption func(*Subscription)

// WithSubscriptionEngine sets the engine used to run function selectors.
func WithSubscriptionEngine(engine *Engine) SubscriptionOption {
	return func(s *Subscription) {
		if engine != nil {
			s.engine = engine
		}
	}
}

// WithSubscriptionEvaluator sets the evaluator used by expression selectors.
func WithSubscriptionEvaluator(evaluator Evaluator) SubscriptionOption {
	return func(s *Subscription) {
		if evaluator != nil {
			s.evaluator = evaluator
		}
	}
}

// WithSubscriptionLogger sets the logger used for expression evaluations.
func WithSubscriptionLogger(logger Logger) SubscriptionOption {
	return func(s *Subscription) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDependencies shares deps with the subscription, so dependencies
// survive across subscriptions created for the same consumer.
func WithDependencies(deps *DependencySet) SubscriptionOption {
	return func(s *Subscription) {
		if deps != nil {
			s.deps = deps
		}
	}
}

// Subscription is the per-consumer dependency set plus the selector that
// projects the state. The selector variant is fixed at construction.
type Subscription struct {
	selector  Selector
	deps      *DependencySet
	engine    *Engine
	evaluator Evaluator
	logger    Logger

	mu        sync.Mutex
	base      string
	trackable bool
}

// NewSubscription constructs a subscription for sel.
func NewSubscription(sel Selector, opts ...SubscriptionOption) *Subscription {
	s := &Subscription{selector: sel}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.deps == nil {
		s.deps = NewDependencySet()
	}
	if s.engine == nil {
		s.engine = NewEngine()
	}
	if s.evaluator == nil {
		s.evaluator = NewExprEvaluator()
	}
	if s.logger == nil {
		s.logger = noopLogger{}
	}
	switch sel.kind {
	case selectAll:
		s.trackable = true
	case selectPath:
		s.base, s.trackable = sel.path, true
	}
	return s
}

// Selector returns the subscription's selector.
func (s *Subscription) Selector() Selector {
	return s.selector
}

// Dependencies returns the live dependency set.
func (s *Subscription) Dependencies() *DependencySet {
	return s.deps
}

// Acquire records the selector's dependencies against state: the reads of a
// function selector, the path of a path selector and its ancestors, or the
// member paths of an expression. SelectAll acquires nothing. Failures are
// returned as *EvaluationError and also sent to the logger.
func (s *Subscription) Acquire(state map[string]any) error {
	switch s.selector.kind {
	case selectFunc:
		_, err := s.runFunc(state)
		return s.report(StageAcquire, err)
	case selectPath:
		// Every ancestor is a dependency: a write to "user" replaces
		// "user.age" as well.
		var walked string
		for _, segment := range splitPath(s.selector.path) {
			walked = joinPath(walked, segment)
			s.deps.Add(walked)
		}
		return nil
	case selectExpr:
		return s.report(StageAcquire, s.acquireExpr(state))
	default:
		return nil
	}
}

// Relevant reports whether any patch touches a dependency.
func (s *Subscription) Relevant(patches []Patch) bool {
	return s.deps.Matches(patches)
}

// Project re-applies the selector to state. Function selectors run through
// the engine again and any newly read paths join the dependency set.
func (s *Subscription) Project(state map[string]any) (any, error) {
	switch s.selector.kind {
	case selectFunc:
		value, err := s.runFunc(state)
		return value, s.report(StageProject, err)
	case selectPath:
		value, _ := lookupPath(state, s.selector.path)
		return value, nil
	case selectExpr:
		return s.evaluate(StageProject, RuleContext{Snapshot: state})
	default:
		return state, nil
	}
}

// Refresh re-projects state when patches touch a dependency. ok is false
// when the batch is irrelevant or the projection failed; failures have
// already been logged.
func (s *Subscription) Refresh(state map[string]any, patches []Patch) (value any, ok bool) {
	if !s.Relevant(patches) {
		return nil, false
	}
	value, err := s.Project(state)
	if err != nil {
		return nil, false
	}
	return value, true
}

// Track wraps a composite projection in a Tracked view that records further
// reads into the dependency set. Values whose state path is unknown, and
// non-composite values, are returned unchanged.
func (s *Subscription) Track(value any) any {
	s.mu.Lock()
	base, trackable := s.base, s.trackable
	s.mu.Unlock()
	raw := ToRaw(value)
	if !trackable || !isComposite(raw) {
		return raw
	}
	return &Tracked{value: raw, path: base, deps: s.deps}
}

func (s *Subscription) runFunc(state map[string]any) (any, error) {
	if state == nil {
		state = map[string]any{}
	}
	controls := s.engine.Controls()
	controls.Enable(Tracking)
	controls.Enable(Packing)
	defer func() {
		controls.Resume(Packing)
		controls.Resume(Tracking)
	}()

	result, err := s.engine.Produce(state, Mutator(s.selector.fn))
	if err != nil {
		return nil, err
	}
	s.deps.AddAll(result.Deps)

	s.mu.Lock()
	if handle, ok := result.Value.(*Handle); ok {
		s.base, s.trackable = handle.Path(), true
	} else {
		s.base, s.trackable = "", false
	}
	s.mu.Unlock()
	return ToRaw(result.Value), nil
}

func (s *Subscription) acquireExpr(state map[string]any) error {
	if extractor, ok := s.evaluator.(DependencyExtractor); ok {
		deps, err := extractor.Dependencies(s.selector.expr)
		if err != nil {
			return err
		}
		s.deps.AddAll(deps)
		return nil
	}
	if state == nil {
		state = map[string]any{}
	}

	controls := s.engine.Controls()
	controls.Enable(Tracking)
	controls.Enable(Packing)
	defer func() {
		controls.Resume(Packing)
		controls.Resume(Tracking)
	}()

	var evalErr error
	result, err := s.engine.Produce(state, func(draft *Handle) any {
		_, evalErr = s.evaluator.Evaluate(RuleContext{Snapshot: draft}.withDefaults(), s.selector.expr)
		return nil
	})
	if err != nil {
		return err
	}
	if evalErr != nil {
		return evalErr
	}
	s.deps.AddAll(result.Deps)
	return nil
}

func (s *Subscription) evaluate(stage Stage, ctx RuleContext) (any, error) {
	ctx = ctx.withDefaults()
	start := time.Now()
	value, err := s.evaluator.Evaluate(ctx, s.selector.expr)
	if err != nil {
		err = selectorError(s.selector, evaluatorEngineName(s.evaluator), stage, err)
	}
	s.logger.LogEvaluation(EvaluationLogEvent{
		Engine:   evaluatorEngineName(s.evaluator),
		Expr:     s.selector.expr,
		Duration: time.Since(start),
		Err:      err,
	})
	return value, err
}

// report wraps and logs a selector failure that did not go through evaluate.
func (s *Subscription) report(stage Stage, err error) error {
	if err == nil {
		return nil
	}
	engine, label := s.selector.Kind(), s.selector.String()
	if s.selector.kind == selectExpr {
		engine, label = evaluatorEngineName(s.evaluator), s.selector.expr
	}
	err = selectorError(s.selector, engine, stage, err)
	s.logger.LogEvaluation(EvaluationLogEvent{
		Engine: engine,
		Expr:   label,
		Err:    err,
	})
	return err
}
