package stand

import "testing"

func TestControlsZeroValueEnabled(t *testing.T) {
	var c Controls
	for _, f := range allFlags {
		if !c.Enabled(f) {
			t.Fatalf("expected %s enabled on zero value", f)
		}
	}
}

func TestControlsNestedPauseEnableResume(t *testing.T) {
	c := NewControls()

	c.Pause(Tracking)  // true -> false
	c.Enable(Tracking) // false -> true
	c.Pause(Tracking)  // true -> false
	if c.Enabled(Tracking) || c.Depth(Tracking) != 3 {
		t.Fatalf("expected paused at depth 3, got %v depth %d", c.Enabled(Tracking), c.Depth(Tracking))
	}

	if got := c.Resume(Tracking); got != true {
		t.Fatalf("first resume should restore true, got %v", got)
	}
	if got := c.Resume(Tracking); got != false {
		t.Fatalf("second resume should restore false, got %v", got)
	}
	if got := c.Resume(Tracking); got != true {
		t.Fatalf("third resume should restore true, got %v", got)
	}
	if c.Depth(Tracking) != 0 {
		t.Fatalf("expected empty stack, got %d", c.Depth(Tracking))
	}
}

func TestControlsResumeOnEmptyStackYieldsTrue(t *testing.T) {
	c := NewControls()
	if got := c.Resume(Packing); !got || !c.Enabled(Packing) {
		t.Fatalf("expected resume on empty stack to enable, got %v", got)
	}
}

func TestControlsFlagsAreIndependent(t *testing.T) {
	c := NewControls()
	c.Pause(Triggering)
	if !c.Enabled(Tracking) || !c.Enabled(Packing) {
		t.Fatalf("pausing triggering must not affect other flags")
	}
	if c.Enabled(Triggering) {
		t.Fatalf("expected triggering paused")
	}
}

func TestControlsReset(t *testing.T) {
	c := NewControls()
	c.Pause(Packing)
	c.Pause(Packing)
	c.Pause(Tracking)
	c.Reset(Packing)
	if !c.Enabled(Packing) || c.Depth(Packing) != 0 {
		t.Fatalf("expected packing reset")
	}
	if c.Enabled(Tracking) {
		t.Fatalf("reset of packing must not touch tracking")
	}
	c.ResetAll()
	if !c.Enabled(Tracking) || c.Depth(Tracking) != 0 {
		t.Fatalf("expected tracking reset by ResetAll")
	}
}

func TestControlsSuspendReleaseIsIdempotent(t *testing.T) {
	c := NewControls()
	c.Pause(Tracking)
	release := c.Suspend(Tracking, Packing)
	if c.Enabled(Tracking) || c.Enabled(Packing) {
		t.Fatalf("expected both flags paused")
	}
	release()
	release()
	if c.Enabled(Tracking) {
		t.Fatalf("tracking should return to its outer paused value")
	}
	if !c.Enabled(Packing) {
		t.Fatalf("packing should be restored")
	}
	if c.Depth(Tracking) != 1 || c.Depth(Packing) != 0 {
		t.Fatalf("unexpected depths %d %d", c.Depth(Tracking), c.Depth(Packing))
	}
}

func TestControlsWithoutRestoresOnPanic(t *testing.T) {
	c := NewControls()
	func() {
		defer func() { _ = recover() }()
		c.Without(func() {
			panic("boom")
		}, Triggering)
	}()
	if !c.Enabled(Triggering) || c.Depth(Triggering) != 0 {
		t.Fatalf("expected triggering restored after panic")
	}
}

func TestControlsNilReceiver(t *testing.T) {
	var c *Controls
	c.Pause(Tracking)
	if !c.Enabled(Tracking) || !c.Resume(Tracking) || c.Depth(Tracking) != 0 {
		t.Fatalf("nil controls should behave as always enabled")
	}
}

func TestFlagString(t *testing.T) {
	cases := map[Flag]string{Tracking: "tracking", Triggering: "triggering", Packing: "packing", Flag(9): "unknown"}
	for flag, want := range cases {
		if got := flag.String(); got != want {
			t.Fatalf("expected %q, got %q", want, got)
		}
	}
}
