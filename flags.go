package stand

import "sync"

// Flag names one of the engine switches.
type Flag int

const (
	// Tracking controls whether reads populate the dependency set.
	Tracking Flag = iota
	// Triggering controls whether writes emit patches.
	Triggering
	// Packing controls whether composite reads are wrapped in handles.
	Packing
)

func (f Flag) String() string {
	switch f {
	case Tracking:
		return "tracking"
	case Triggering:
		return "triggering"
	case Packing:
		return "packing"
	default:
		return "unknown"
	}
}

// Controls holds the three flag stacks consulted by an Engine. Each flag has a
// current value and a stack of previous values. The zero value has every flag
// enabled and is ready to use.
type Controls struct {
	mu     sync.Mutex
	off    [3]bool
	stacks [3][]bool
}

// NewControls returns controls with every flag enabled.
func NewControls() *Controls {
	return &Controls{}
}

// Enabled reports the current value of f.
func (c *Controls) Enabled(f Flag) bool {
	if c == nil || !f.valid() {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.off[f]
}

// Pause pushes the current value of f and sets it to false.
func (c *Controls) Pause(f Flag) {
	c.push(f, false)
}

// Enable pushes the current value of f and sets it to true.
func (c *Controls) Enable(f Flag) {
	c.push(f, true)
}

// Resume pops the previous value of f, defaulting to true on an empty stack,
// and returns the resulting value.
func (c *Controls) Resume(f Flag) bool {
	if c == nil || !f.valid() {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	stack := c.stacks[f]
	value := true
	if n := len(stack); n > 0 {
		value = stack[n-1]
		c.stacks[f] = stack[:n-1]
	}
	c.off[f] = !value
	return value
}

// Reset clears the stack of f and forces it to true.
func (c *Controls) Reset(f Flag) {
	if c == nil || !f.valid() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stacks[f] = nil
	c.off[f] = false
}

// ResetAll resets every flag.
func (c *Controls) ResetAll() {
	for _, f := range allFlags {
		c.Reset(f)
	}
}

// Depth returns the number of saved values for f.
func (c *Controls) Depth(f Flag) int {
	if c == nil || !f.valid() {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.stacks[f])
}

// Suspend pauses every given flag and returns a release function that resumes
// them in reverse order. Calling release more than once is a no-op.
func (c *Controls) Suspend(flags ...Flag) (release func()) {
	for _, f := range flags {
		c.Pause(f)
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			for i := len(flags) - 1; i >= 0; i-- {
				c.Resume(flags[i])
			}
		})
	}
}

// Without runs fn with the given flags paused, restoring them on every exit
// path including panics.
func (c *Controls) Without(fn func(), flags ...Flag) {
	release := c.Suspend(flags...)
	defer release()
	fn()
}

func (c *Controls) push(f Flag, value bool) {
	if c == nil || !f.valid() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stacks[f] = append(c.stacks[f], !c.off[f])
	c.off[f] = !value
}

var allFlags = [...]Flag{Tracking, Triggering, Packing}

func (f Flag) valid() bool {
	return f >= Tracking && f <= Packing
}
