package stand

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSelector is matched by every *EvaluationError raised for a subscription
// selector.
var ErrSelector = errors.New("stand: selector failed")

// Stage names the point of a subscription's life at which a selector failed.
type Stage string

const (
	// StageAcquire is the initial dependency discovery.
	StageAcquire Stage = "acquire"
	// StageProject is a re-projection after relevant patches.
	StageProject Stage = "project"
)

// EvaluationError reports a failed expression or selector evaluation.
// Selector is empty for plain Evaluate calls.
type EvaluationError struct {
	Engine   string
	Expr     string
	Selector string
	Stage    Stage
	Err      error
}

func (e *EvaluationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "stand: %s evaluator", e.Engine)
	if e.Selector != "" {
		fmt.Fprintf(&b, " selector=%s", e.Selector)
		if e.Stage != "" {
			fmt.Fprintf(&b, " stage=%s", e.Stage)
		}
	}
	if e.Expr != "" || e.Selector == "" {
		b.WriteString(" ")
		b.WriteString(describeExpression(e.Expr))
	}
	fmt.Fprintf(&b, ": %v", e.Err)
	return b.String()
}

func (e *EvaluationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target is ErrSelector and the error came from a
// subscription selector.
func (e *EvaluationError) Is(target error) bool {
	return target == ErrSelector && e != nil && e.Selector != ""
}

// Dereference returns the traversal failure behind the error, if any.
func (e *EvaluationError) Dereference() (*DereferenceError, bool) {
	var deref *DereferenceError
	if e == nil || !errors.As(e.Err, &deref) {
		return nil, false
	}
	return deref, true
}

func describeExpression(expr string) string {
	if expr == "" {
		return "expr=<empty>"
	}
	return fmt.Sprintf("expr=%q", expr)
}

func wrapEvaluatorError(engine string, err error) error {
	if err == nil {
		return nil
	}

	var evalErr *EvaluationError
	if errors.As(err, &evalErr) {
		return err
	}

	if strings.HasPrefix(err.Error(), "stand:") {
		return err
	}
	return fmt.Errorf("stand: %s evaluator: %w", engine, err)
}

func wrapEvaluationError(engine, expr string, err error) error {
	if err == nil {
		return nil
	}

	var evalErr *EvaluationError
	if errors.As(err, &evalErr) {
		if evalErr.Engine == "" {
			evalErr.Engine = engine
		}
		if evalErr.Expr == "" {
			evalErr.Expr = expr
		}
		return evalErr
	}

	return &EvaluationError{
		Engine: engine,
		Expr:   expr,
		Err:    err,
	}
}

// selectorError tags err with the selector and stage it failed in. An
// evaluator error that already carries metadata keeps it.
func selectorError(sel Selector, engine string, stage Stage, err error) error {
	if err == nil {
		return nil
	}
	wrapped := wrapEvaluationError(engine, sel.expr, err)
	evalErr, ok := wrapped.(*EvaluationError)
	if !ok {
		return wrapped
	}
	if evalErr.Selector == "" {
		evalErr.Selector = sel.Kind()
	}
	if evalErr.Stage == "" {
		evalErr.Stage = stage
	}
	return evalErr
}
