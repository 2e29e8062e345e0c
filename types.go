package stand

import (
	"time"

	"github.com/goliatone/go-stand/pkg/activity"
)

// DefaultMaxDepth bounds nested SetState calls issued from listeners.
const DefaultMaxDepth = 64

// RuleContext carries inputs needed when evaluating an expression selector.
// Snapshot is either a state document or a *Handle over one.
type RuleContext struct {
	Snapshot any
	Now      *time.Time
	Args     map[string]any
	Metadata map[string]any
}

func (ctx RuleContext) withDefaultNow() RuleContext {
	if ctx.Now != nil {
		return ctx
	}
	now := time.Now()
	ctx.Now = &now
	return ctx
}

func (ctx RuleContext) timestamp() time.Time {
	ctx = ctx.withDefaultNow()
	return *ctx.Now
}

func (ctx RuleContext) withDefaultMaps() RuleContext {
	if ctx.Args == nil {
		ctx.Args = map[string]any{}
	}
	if ctx.Metadata == nil {
		ctx.Metadata = map[string]any{}
	}
	return ctx
}

func (ctx RuleContext) withDefaults() RuleContext {
	return ctx.withDefaultNow().withDefaultMaps()
}

// document returns the raw snapshot as a map, or an empty map.
func (ctx RuleContext) document() map[string]any {
	if doc, ok := ToRaw(ctx.Snapshot).(map[string]any); ok && doc != nil {
		return doc
	}
	return map[string]any{}
}

// Evaluator executes expressions against a rule context.
type Evaluator interface {
	Evaluate(ctx RuleContext, expr string) (any, error)
	Compile(expr string, opts ...CompileOption) (CompiledRule, error)
}

// DependencyExtractor is implemented by evaluators that can list the state
// paths an expression reads without running it.
type DependencyExtractor interface {
	Dependencies(expr string) ([]string, error)
}

// CompiledRule represents a reusable expression program.
type CompiledRule interface {
	Evaluate(ctx RuleContext) (any, error)
}

// CompileOption configures evaluator compile behaviour.
type CompileOption interface {
	applyCompileOption(*compileConfig)
}

type compileConfig struct{}

type compileOptionFunc func(*compileConfig)

func (f compileOptionFunc) applyCompileOption(cfg *compileConfig) {
	if f != nil {
		f(cfg)
	}
}

// Option configures a Store.
type Option func(*storeConfig)

type storeConfig struct {
	controls        *Controls
	evaluator       Evaluator
	programCache    ProgramCache
	functions       *FunctionRegistry
	logger          Logger
	activityHooks   activity.Hooks
	activityChannel string
	identity        activity.Identity
	maxDepth        int
	defaults        []map[string]any
}

func applyOptions(opts []Option) storeConfig {
	cfg := storeConfig{maxDepth: DefaultMaxDepth}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.logger == nil {
		cfg.logger = noopLogger{}
	}
	return cfg
}

// WithEvaluator sets the evaluator used by expression selectors.
func WithEvaluator(e Evaluator) Option {
	return func(cfg *storeConfig) {
		cfg.evaluator = e
	}
}

// WithEngineControls shares controls with the store's engine.
func WithEngineControls(controls *Controls) Option {
	return func(cfg *storeConfig) {
		cfg.controls = controls
	}
}

// WithMaxDepth bounds nested SetState calls made from listeners. Zero or a
// negative value disables the guard.
func WithMaxDepth(depth int) Option {
	return func(cfg *storeConfig) {
		cfg.maxDepth = depth
	}
}

// WithDefaults seeds the initial state by merging documents ordered from
// strongest to weakest.
func WithDefaults(layers ...map[string]any) Option {
	return func(cfg *storeConfig) {
		cfg.defaults = append([]map[string]any(nil), layers...)
	}
}

// WithActivityHooks attaches activity hooks notified after every update and
// on Dispose. Nil hooks are dropped.
func WithActivityHooks(hooks activity.Hooks, channel string) Option {
	normalized := cloneActivityHooks(hooks)
	return func(cfg *storeConfig) {
		cfg.activityHooks = normalized
		cfg.activityChannel = channel
	}
}

// WithActivityIdentity stamps the actor, user and tenant on every activity
// event the store emits.
func WithActivityIdentity(identity activity.Identity) Option {
	return func(cfg *storeConfig) {
		cfg.identity = identity
	}
}

func cloneActivityHooks(hooks activity.Hooks) activity.Hooks {
	if len(hooks) == 0 {
		return nil
	}
	normalized := make([]activity.ActivityHook, 0, len(hooks))
	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		normalized = append(normalized, hook)
	}
	if len(normalized) == 0 {
		return nil
	}
	return activity.Hooks(normalized)
}
