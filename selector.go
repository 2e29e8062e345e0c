package stand

import "fmt"

type selectorKind int

const (
	selectAll selectorKind = iota
	selectFunc
	selectPath
	selectExpr
)

// Selector chooses which part of the state a consumer projects. It is a
// closed variant built with SelectAll, SelectFunc, SelectPath or SelectExpr;
// the zero value selects the whole state.
type Selector struct {
	kind selectorKind
	fn   func(*Handle) any
	path string
	expr string
}

// SelectAll projects the whole state. Its dependencies come only from reads
// made through the tracked view returned to the consumer.
func SelectAll() Selector {
	return Selector{kind: selectAll}
}

// SelectFunc projects through fn, whose reads on the handle become the
// consumer's dependencies. A nil fn selects the whole state.
func SelectFunc(fn func(*Handle) any) Selector {
	if fn == nil {
		return SelectAll()
	}
	return Selector{kind: selectFunc, fn: fn}
}

// SelectPath projects the value at a dot-separated path, which is also the
// single dependency. An empty path selects the whole state.
func SelectPath(path string) Selector {
	if path == "" {
		return SelectAll()
	}
	return Selector{kind: selectPath, path: path}
}

// SelectExpr projects the result of an expression evaluated against the
// state. An empty expression selects the whole state.
func SelectExpr(expr string) Selector {
	if expr == "" {
		return SelectAll()
	}
	return Selector{kind: selectExpr, expr: expr}
}

// Kind names the variant: "all", "func", "path" or "expr".
func (s Selector) Kind() string {
	switch s.kind {
	case selectFunc:
		return "func"
	case selectPath:
		return "path"
	case selectExpr:
		return "expr"
	default:
		return "all"
	}
}

func (s Selector) String() string {
	switch s.kind {
	case selectPath:
		return fmt.Sprintf("path(%s)", s.path)
	case selectExpr:
		return fmt.Sprintf("expr(%s)", s.expr)
	default:
		return s.Kind()
	}
}
