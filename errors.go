package stand

import (
	"errors"
	"fmt"
)

var (
	// ErrNotComposite indicates Produce received a base that cannot be wrapped.
	ErrNotComposite = errors.New("stand: base must be a composite value")
	// ErrNilMutator indicates Produce was called without a mutator.
	ErrNilMutator = errors.New("stand: mutator is required")
	// ErrNilUpdate indicates SetState was called without an update.
	ErrNilUpdate = errors.New("stand: update is required")
	// ErrDereference is matched by every *DereferenceError.
	ErrDereference = errors.New("stand: invalid dereference")
	// ErrMaxDepthExceeded indicates nested SetState calls from listeners went
	// deeper than the configured limit.
	ErrMaxDepthExceeded = errors.New("stand: nested update depth exceeded")
)

// DereferenceError reports a read or write that traversed an absent or
// non-composite node. Handles raise it as a panic; Produce and SetState return
// it as an error.
type DereferenceError struct {
	Op     string
	Path   string
	Reason string
}

func (e *DereferenceError) Error() string {
	if e == nil {
		return "<nil>"
	}
	path := e.Path
	if path == "" {
		path = "<root>"
	}
	return fmt.Sprintf("stand: cannot %s %q: %s", e.Op, path, e.Reason)
}

// Is reports whether target is ErrDereference.
func (e *DereferenceError) Is(target error) bool {
	return target == ErrDereference
}

func dereferencePanic(op, path, reason string) {
	panic(&DereferenceError{Op: op, Path: path, Reason: reason})
}
