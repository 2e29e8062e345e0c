package bind_test

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"

	stand "github.com/goliatone/go-stand"
	"github.com/goliatone/go-stand/bind"
)

func newCounterHook(t *testing.T, r *bind.Renderer, mws ...bind.Middleware) *bind.Hook {
	t.Helper()
	factory, err := bind.Bind(r.Current)
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	hook, err := factory.Create(func(set bind.SetFunc, get bind.GetFunc) map[string]any {
		return map[string]any{
			"count": 0,
			"user":  map[string]any{"name": "ada", "age": 36},
			"inc": func() error {
				return set(stand.Mutate(func(draft *stand.Handle) any {
					return map[string]any{"count": get()["count"].(int) + 1}
				}))
			},
		}
	}, mws...)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return hook
}

func TestBindRequiresProvider(t *testing.T) {
	if _, err := bind.Bind(nil); !errors.Is(err, bind.ErrNoRuntime) {
		t.Fatalf("expected ErrNoRuntime, got %v", err)
	}
}

func TestUseOutsideRenderFails(t *testing.T) {
	hook := newCounterHook(t, bind.NewRenderer())
	if _, err := hook.Use(stand.SelectPath("count")); !errors.Is(err, bind.ErrNoRuntime) {
		t.Fatalf("expected ErrNoRuntime, got %v", err)
	}
}

func TestCreateSeedsState(t *testing.T) {
	hook := newCounterHook(t, bind.NewRenderer())
	state := hook.Get()
	if state["count"] != 0 {
		t.Fatalf("expected seeded count, got %v", state["count"])
	}
	if _, ok := state["inc"].(func() error); !ok {
		t.Fatalf("expected action stored in state, got %T", state["inc"])
	}
}

func TestUsePathRefreshesOnlyOnRelevantPatches(t *testing.T) {
	r := bind.NewRenderer()
	hook := newCounterHook(t, r)

	var seen []any
	inst := r.Mount(func() {
		value, err := hook.Use(stand.SelectPath("count"))
		if err != nil {
			t.Fatalf("use: %v", err)
		}
		seen = append(seen, value)
	})

	if inst.Renders() != 1 || seen[0] != 0 {
		t.Fatalf("expected one render with 0, got %d %v", inst.Renders(), seen)
	}

	if err := hook.Set(stand.NewPartial().With("unrelated", true)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if inst.Renders() != 1 {
		t.Fatalf("unrelated patch should not re-render, got %d renders", inst.Renders())
	}

	inc := hook.Get()["inc"].(func() error)
	if err := inc(); err != nil {
		t.Fatalf("inc: %v", err)
	}
	if inst.Renders() != 2 || seen[1] != 1 {
		t.Fatalf("expected re-render with 1, got %d %v", inst.Renders(), seen)
	}
}

func TestUseFuncSelectorTracksReads(t *testing.T) {
	r := bind.NewRenderer()
	hook := newCounterHook(t, r)

	var names []any
	inst := r.Mount(func() {
		value, err := hook.Use(stand.SelectFunc(func(h *stand.Handle) any {
			return h.Get("user")
		}))
		if err != nil {
			t.Fatalf("use: %v", err)
		}
		view, ok := value.(*stand.Tracked)
		if !ok {
			t.Fatalf("expected tracked view, got %T", value)
		}
		names = append(names, view.Get("name"))
	})

	deps := hook.Dependencies(inst.ID())
	if len(deps) != 2 || deps[0] != "user" || deps[1] != "user.name" {
		t.Fatalf("unexpected deps %v", deps)
	}

	if err := hook.Set(stand.NewPartial().With("count", 5)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if inst.Renders() != 1 {
		t.Fatalf("count patch should not re-render a user consumer")
	}

	if err := hook.Set(stand.Mutate(func(draft *stand.Handle) any {
		draft.Set("user", map[string]any{"name": "grace", "age": 36})
		return nil
	})); err != nil {
		t.Fatalf("set: %v", err)
	}
	if inst.Renders() != 2 || names[1] != "grace" {
		t.Fatalf("expected re-render with grace, got %d %v", inst.Renders(), names)
	}
}

func TestUseAllAcquiresFromTrackedReads(t *testing.T) {
	r := bind.NewRenderer()
	hook := newCounterHook(t, r)

	var counts []any
	inst := r.Mount(func() {
		value, err := hook.Use(stand.SelectAll())
		if err != nil {
			t.Fatalf("use: %v", err)
		}
		counts = append(counts, value.(*stand.Tracked).Get("count"))
	})

	if err := hook.Set(stand.NewPartial().With("user", map[string]any{"name": "x"})); err != nil {
		t.Fatalf("set: %v", err)
	}
	if inst.Renders() != 1 {
		t.Fatalf("unread field should not re-render")
	}
	if err := hook.Set(stand.NewPartial().With("count", 9)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if inst.Renders() != 2 || counts[1] != 9 {
		t.Fatalf("expected re-render with 9, got %d %v", inst.Renders(), counts)
	}
}

func TestDisposeUnsubscribesOnce(t *testing.T) {
	r := bind.NewRenderer()
	hook := newCounterHook(t, r)

	inst := r.Mount(func() {
		if _, err := hook.Use(stand.SelectPath("count")); err != nil {
			t.Fatalf("use: %v", err)
		}
	})
	if hook.Store().Listeners() != 1 || hook.Consumers() != 1 {
		t.Fatalf("expected one listener and consumer, got %d %d", hook.Store().Listeners(), hook.Consumers())
	}

	inst.Dispose()
	inst.Dispose()
	if hook.Store().Listeners() != 0 || hook.Consumers() != 0 {
		t.Fatalf("expected teardown, got %d listeners %d consumers", hook.Store().Listeners(), hook.Consumers())
	}
	if err := hook.Set(stand.NewPartial().With("count", 2)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if inst.Renders() != 1 {
		t.Fatalf("disposed instance should not render, got %d", inst.Renders())
	}
}

func TestEffectsRunOncePerInstance(t *testing.T) {
	r := bind.NewRenderer()
	runs, teardowns := 0, 0
	var set func(any)
	inst := r.Mount(func() {
		rt := r.Current()
		_, set = rt.State(func() any { return 0 })
		rt.Effect(func() func() {
			runs++
			return func() { teardowns++ }
		})
	})
	set(1)
	set(2)
	if inst.Renders() != 3 {
		t.Fatalf("expected 3 renders, got %d", inst.Renders())
	}
	if runs != 1 {
		t.Fatalf("expected effect to run once, got %d", runs)
	}
	inst.Dispose()
	if teardowns != 1 {
		t.Fatalf("expected one teardown, got %d", teardowns)
	}
}

func TestUseLogsFailedRefresh(t *testing.T) {
	r := bind.NewRenderer()
	var logged []stand.EvaluationLogEvent
	factory, err := bind.Bind(r.Current, stand.WithLogger(stand.LoggerFuncs{
		Evaluation: func(event stand.EvaluationLogEvent) { logged = append(logged, event) },
	}))
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	hook, err := factory.Create(func(bind.SetFunc, bind.GetFunc) map[string]any {
		return map[string]any{"user": map[string]any{"name": "ada"}}
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	inst := r.Mount(func() {
		if _, err := hook.Use(stand.SelectFunc(func(h *stand.Handle) any {
			return h.At("user").Get("name")
		})); err != nil {
			t.Fatalf("use: %v", err)
		}
	})

	if err := hook.Set(stand.NewPartial().With("user", "gone")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if inst.Renders() != 1 {
		t.Fatalf("failed refresh must not re-render, got %d renders", inst.Renders())
	}
	if len(logged) != 1 || !errors.Is(logged[0].Err, stand.ErrSelector) {
		t.Fatalf("expected the failed refresh to be logged, got %+v", logged)
	}
}

func TestLogMiddlewareWrapsSetAndGet(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	hook := newCounterHook(t, bind.NewRenderer(), bind.LogMiddleware(logger))

	_ = hook.Get()
	if err := hook.Set(stand.NewPartial().With("count", 3)); err != nil {
		t.Fatalf("set: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "bind set") || !strings.Contains(out, "update=partial") {
		t.Fatalf("expected set log, got %q", out)
	}
	if !strings.Contains(out, "bind get") {
		t.Fatalf("expected get log, got %q", out)
	}
}

func TestMiddlewareOrder(t *testing.T) {
	var calls []string
	tag := func(name string) bind.Middleware {
		return func(set bind.SetFunc, get bind.GetFunc) (bind.SetFunc, bind.GetFunc) {
			return func(u stand.Update) error {
				calls = append(calls, name)
				return set(u)
			}, get
		}
	}
	factory, err := bind.Bind(bind.NewRenderer().Current)
	if err != nil {
		t.Fatalf("bind: %v", err)
	}
	if _, err := factory.Create(func(bind.SetFunc, bind.GetFunc) map[string]any {
		return map[string]any{"a": 1}
	}, tag("inner"), tag("outer")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(calls) != 2 || calls[0] != "outer" || calls[1] != "inner" {
		t.Fatalf("expected outer then inner, got %v", calls)
	}
}
