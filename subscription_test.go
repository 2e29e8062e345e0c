package stand

import (
	"errors"
	"reflect"
	"testing"
)

func patches(paths ...string) []Patch {
	out := make([]Patch, len(paths))
	for i, path := range paths {
		out[i] = Patch{Path: path}
	}
	return out
}

func TestDependencySetKeepsFirstTouchOrder(t *testing.T) {
	deps := NewDependencySet("b", "a")
	if deps.Add("b") {
		t.Fatalf("duplicate add should report false")
	}
	if !deps.Add("c") {
		t.Fatalf("new path should report true")
	}
	if !reflect.DeepEqual(deps.Paths(), []string{"b", "a", "c"}) || deps.Len() != 3 || !deps.Has("a") {
		t.Fatalf("unexpected set %v", deps.Paths())
	}
}

func TestRelevanceRule(t *testing.T) {
	deps := NewDependencySet("a")
	if !deps.Matches(patches("a.b")) {
		t.Fatalf("a.b should refresh a dependency on a")
	}
	if deps.Matches(patches("d")) {
		t.Fatalf("d should not refresh a dependency on a")
	}
	if deps.Matches(patches("ab")) {
		t.Fatalf("ab must not match a")
	}
	if NewDependencySet("a.b").Matches(patches("a")) {
		t.Fatalf("ancestor writes must not cascade")
	}
	if NewDependencySet().Matches(patches("a")) {
		t.Fatalf("empty set matches nothing")
	}
}

func TestFuncSelectorAcquireAndProject(t *testing.T) {
	state := map[string]any{
		"user":  map[string]any{"name": "ada", "age": 36},
		"count": 1,
	}
	sub := NewSubscription(SelectFunc(func(draft *Handle) any {
		return draft.At("user").Get("name")
	}))
	if err := sub.Acquire(state); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !reflect.DeepEqual(sub.Dependencies().Paths(), []string{"user", "user.name"}) {
		t.Fatalf("unexpected deps %v", sub.Dependencies().Paths())
	}
	if !sub.Relevant(patches("user.name")) || sub.Relevant(patches("count")) {
		t.Fatalf("unexpected relevance")
	}

	value, err := sub.Project(state)
	if err != nil || value != "ada" {
		t.Fatalf("expected ada, got %v %v", value, err)
	}
}

func TestFuncSelectorProjectUnionsNewReads(t *testing.T) {
	sub := NewSubscription(SelectFunc(func(draft *Handle) any {
		if draft.Get("flag") == true {
			return draft.Get("extra")
		}
		return nil
	}))
	if err := sub.Acquire(map[string]any{"flag": false}); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if sub.Dependencies().Has("extra") {
		t.Fatalf("extra not read yet")
	}
	if _, err := sub.Project(map[string]any{"flag": true, "extra": 1}); err != nil {
		t.Fatalf("project: %v", err)
	}
	if !sub.Dependencies().Has("extra") {
		t.Fatalf("project should add newly observed reads")
	}
}

func TestFuncSelectorRunsWithStoreFlagsPaused(t *testing.T) {
	engine := NewEngine()
	engine.Controls().Pause(Tracking)
	engine.Controls().Pause(Packing)
	sub := NewSubscription(SelectFunc(func(draft *Handle) any {
		return draft.Get("user")
	}), WithSubscriptionEngine(engine))

	if err := sub.Acquire(map[string]any{"user": map[string]any{"name": "ada"}}); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !sub.Dependencies().Has("user") {
		t.Fatalf("selector runs must track regardless of outer pauses")
	}
	if engine.Controls().Enabled(Tracking) || engine.Controls().Depth(Tracking) != 1 {
		t.Fatalf("outer pause must be restored after the run")
	}
}

func TestFuncSelectorDereferenceError(t *testing.T) {
	sub := NewSubscription(SelectFunc(func(draft *Handle) any {
		return draft.Lookup("missing.name")
	}))
	if err := sub.Acquire(map[string]any{}); !errors.Is(err, ErrDereference) {
		t.Fatalf("expected dereference error, got %v", err)
	}
}

func TestPathSelector(t *testing.T) {
	state := map[string]any{"user": map[string]any{"profile": map[string]any{"name": "ada"}}}
	sub := NewSubscription(SelectPath("user.profile"))
	if err := sub.Acquire(state); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !reflect.DeepEqual(sub.Dependencies().Paths(), []string{"user", "user.profile"}) {
		t.Fatalf("unexpected deps %v", sub.Dependencies().Paths())
	}
	value, _ := sub.Project(state)
	if !reflect.DeepEqual(value, map[string]any{"name": "ada"}) {
		t.Fatalf("unexpected projection %v", value)
	}
	if missing, _ := NewSubscription(SelectPath("nope.x")).Project(state); missing != nil {
		t.Fatalf("absent path should project nil, got %v", missing)
	}
}

func TestSelectAllProjectsStateAndTracksReads(t *testing.T) {
	state := map[string]any{"user": map[string]any{"name": "ada"}, "count": 1}
	sub := NewSubscription(SelectAll())
	if err := sub.Acquire(state); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if sub.Dependencies().Len() != 0 {
		t.Fatalf("SelectAll acquires nothing")
	}
	value, _ := sub.Project(state)
	view, ok := sub.Track(value).(*Tracked)
	if !ok {
		t.Fatalf("expected tracked view, got %T", sub.Track(value))
	}
	if view.Lookup("user.name") != "ada" {
		t.Fatalf("unexpected lookup result")
	}
	if !reflect.DeepEqual(sub.Dependencies().Paths(), []string{"user", "user.name"}) {
		t.Fatalf("unexpected deps %v", sub.Dependencies().Paths())
	}
	if !sub.Relevant(patches("user.name")) || sub.Relevant(patches("count")) {
		t.Fatalf("unexpected relevance after tracked reads")
	}
}

func TestTrackUsesSelectorBasePath(t *testing.T) {
	state := map[string]any{"user": map[string]any{"name": "ada", "tags": []any{"x"}}}
	sub := NewSubscription(SelectFunc(func(draft *Handle) any { return draft.Get("user") }))
	value, err := sub.Project(state)
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	view := sub.Track(value).(*Tracked)
	if view.Path() != "user" {
		t.Fatalf("expected base path user, got %q", view.Path())
	}
	tags := view.Get("tags").(*Tracked)
	if tags.Get("0") != "x" || tags.Len() != 1 {
		t.Fatalf("unexpected tags view")
	}
	if !sub.Dependencies().Has("user.tags.0") {
		t.Fatalf("expected nested read recorded, got %v", sub.Dependencies().Paths())
	}
}

func TestTrackPassesScalarsThrough(t *testing.T) {
	sub := NewSubscription(SelectFunc(func(draft *Handle) any { return draft.Get("n") }))
	value, _ := sub.Project(map[string]any{"n": 3})
	if sub.Track(value) != 3 {
		t.Fatalf("scalars are returned unchanged")
	}
}

func TestExprSelectorExtractsDependencies(t *testing.T) {
	state := map[string]any{"user": map[string]any{"age": 36}, "limit": 18, "other": true}
	sub := NewSubscription(SelectExpr("user.age >= limit"))
	if err := sub.Acquire(state); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !reflect.DeepEqual(sub.Dependencies().Paths(), []string{"user", "user.age", "limit"}) {
		t.Fatalf("unexpected deps %v", sub.Dependencies().Paths())
	}
	value, err := sub.Project(state)
	if err != nil || value != true {
		t.Fatalf("expected true, got %v %v", value, err)
	}
	if sub.Relevant(patches("other")) {
		t.Fatalf("other is not read by the expression")
	}
}

// lookupEvaluator reads the expression as a path through the snapshot, so
// it works with handles and does not extract dependencies statically.
type lookupEvaluator struct{}

func (lookupEvaluator) Evaluate(ctx RuleContext, expr string) (any, error) {
	if handle, ok := ctx.Snapshot.(*Handle); ok {
		return handle.Lookup(expr), nil
	}
	value, _ := lookupPath(ctx.Snapshot, expr)
	return value, nil
}

func (lookupEvaluator) Compile(string, ...CompileOption) (CompiledRule, error) {
	return nil, errors.New("not supported")
}

func TestExprSelectorFallsBackToTrackedRun(t *testing.T) {
	state := map[string]any{"a": map[string]any{"b": 1}}
	sub := NewSubscription(SelectExpr("a.b"), WithSubscriptionEvaluator(lookupEvaluator{}))
	if err := sub.Acquire(state); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if !reflect.DeepEqual(sub.Dependencies().Paths(), []string{"a", "a.b"}) {
		t.Fatalf("unexpected deps %v", sub.Dependencies().Paths())
	}
	value, err := sub.Project(state)
	if err != nil || value != 1 {
		t.Fatalf("expected 1, got %v %v", value, err)
	}
}

func TestExprSelectorLogsEvaluations(t *testing.T) {
	var events []EvaluationLogEvent
	logger := LoggerFuncs{Evaluation: func(e EvaluationLogEvent) { events = append(events, e) }}
	sub := NewSubscription(SelectExpr("x +"), WithSubscriptionLogger(logger))
	if _, err := sub.Project(map[string]any{"x": 1}); err == nil {
		t.Fatalf("expected evaluation error")
	}
	if len(events) != 1 || events[0].Engine != "expr" || events[0].Err == nil {
		t.Fatalf("unexpected log events %+v", events)
	}
	var evalErr *EvaluationError
	if !errors.As(events[0].Err, &evalErr) || evalErr.Expr != "x +" {
		t.Fatalf("expected EvaluationError, got %v", events[0].Err)
	}
}

func TestSharedDependencySet(t *testing.T) {
	shared := NewDependencySet("kept")
	sub := NewSubscription(SelectPath("a"), WithDependencies(shared))
	_ = sub.Acquire(nil)
	if !reflect.DeepEqual(shared.Paths(), []string{"kept", "a"}) {
		t.Fatalf("unexpected shared deps %v", shared.Paths())
	}
}

func TestSelectorFallbacks(t *testing.T) {
	cases := map[string]Selector{
		"all":        SelectAll(),
		"func nil":   SelectFunc(nil),
		"path empty": SelectPath(""),
		"expr empty": SelectExpr(""),
	}
	for name, sel := range cases {
		if sel.Kind() != "all" {
			t.Fatalf("%s: expected all, got %s", name, sel.Kind())
		}
	}
	if SelectPath("a.b").String() != "path(a.b)" || SelectExpr("x > 1").String() != "expr(x > 1)" {
		t.Fatalf("unexpected selector strings")
	}
}

func TestStoreWatchRefreshesOnRelevantPatches(t *testing.T) {
	store := NewStore(WithDefaults(map[string]any{"a": map[string]any{"b": 1}, "d": 0}))
	var seen []any
	unsubscribe, err := store.Watch(SelectFunc(func(draft *Handle) any {
		return draft.At("a").Get("b")
	}), func(value any, _ []Patch) {
		seen = append(seen, value)
	})
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer unsubscribe()

	_ = store.SetState(NewPartial().With("d", 1))
	_ = store.SetState(Mutate(func(draft *Handle) any {
		return map[string]any{"a": map[string]any{"b": 2}}
	}))
	_ = store.SetState(NewPartial().With("ab", true))

	if !reflect.DeepEqual(seen, []any{2}) {
		t.Fatalf("expected a single refresh with 2, got %v", seen)
	}
}

func TestStoreWatchExpression(t *testing.T) {
	store := NewStore(WithDefaults(map[string]any{"count": 1, "noise": 0}))
	var seen []any
	unsubscribe, err := store.Watch(SelectExpr("count * 10"), func(value any, _ []Patch) {
		seen = append(seen, value)
	})
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer unsubscribe()

	_ = store.SetState(NewPartial().With("noise", 1))
	_ = store.SetState(NewPartial().With("count", 2))
	if !reflect.DeepEqual(seen, []any{20}) {
		t.Fatalf("expected [20], got %v", seen)
	}
}

func TestStoreWatchPathRefreshesOnAncestorWrites(t *testing.T) {
	store := NewStore(WithDefaults(map[string]any{"a": map[string]any{"b": 1}}))
	var seen []any
	unsubscribe, err := store.Watch(SelectPath("a.b"), func(value any, _ []Patch) {
		seen = append(seen, value)
	})
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer unsubscribe()

	if err := store.SetState(NewPartial().With("a", map[string]any{"b": 2})); err != nil {
		t.Fatalf("partial: %v", err)
	}
	if err := store.SetState(Mutate(func(draft *Handle) any {
		draft.Assign("a.b", 3)
		return nil
	})); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := store.SetState(Mutate(func(draft *Handle) any {
		draft.Set("a", map[string]any{"b": 4})
		return nil
	})); err != nil {
		t.Fatalf("set: %v", err)
	}
	_ = store.SetState(NewPartial().With("ab", true))
	_ = store.SetState(NewPartial().With("a2", map[string]any{"b": 0}))

	if !reflect.DeepEqual(seen, []any{2, 3, 4}) {
		t.Fatalf("expected refreshes [2 3 4], got %v", seen)
	}
}

func TestStoreWatchLogsSelectorFailures(t *testing.T) {
	var logged []EvaluationLogEvent
	store := NewStore(
		WithDefaults(map[string]any{"a": map[string]any{"b": 1}}),
		WithLogger(LoggerFuncs{Evaluation: func(event EvaluationLogEvent) { logged = append(logged, event) }}),
	)
	calls := 0
	unsubscribe, err := store.Watch(SelectFunc(func(draft *Handle) any {
		return draft.At("a").Get("b")
	}), func(any, []Patch) { calls++ })
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer unsubscribe()

	if err := store.SetState(NewPartial().With("a", 5)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if calls != 0 {
		t.Fatalf("failed projection must not reach the callback")
	}
	if len(logged) != 1 {
		t.Fatalf("expected one logged failure, got %+v", logged)
	}
	event := logged[0]
	if event.Engine != "func" || !errors.Is(event.Err, ErrSelector) || !errors.Is(event.Err, ErrDereference) {
		t.Fatalf("unexpected log event %+v", event)
	}
	var evalErr *EvaluationError
	if !errors.As(event.Err, &evalErr) || evalErr.Stage != StageProject {
		t.Fatalf("expected project stage, got %v", event.Err)
	}
}

func TestStoreWatchAcquireFailureIsReturnedAndLogged(t *testing.T) {
	var logged []EvaluationLogEvent
	store := NewStore(WithLogger(LoggerFuncs{
		Evaluation: func(event EvaluationLogEvent) { logged = append(logged, event) },
	}))
	_, err := store.Watch(SelectFunc(func(draft *Handle) any {
		return draft.Lookup("missing.deep")
	}), func(any, []Patch) {})
	if !errors.Is(err, ErrSelector) || !errors.Is(err, ErrDereference) {
		t.Fatalf("expected selector dereference error, got %v", err)
	}
	if len(logged) != 1 || logged[0].Err != err {
		t.Fatalf("expected the failure to be logged once, got %+v", logged)
	}
	if store.Listeners() != 0 {
		t.Fatalf("failed watch must not subscribe")
	}
}

func TestStoreWatchRequiresCallback(t *testing.T) {
	if _, err := NewStore().Watch(SelectAll(), nil); err == nil {
		t.Fatalf("expected error for nil callback")
	}
}
