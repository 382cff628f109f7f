// Package partialeval folds host-closed subtrees of expression trees
// to constants.
package partialeval

import (
	"github.com/go-faster/mongoql/expr"
)

// Evaluate replaces every maximal subtree that does not depend on lambda
// parameters with a constant holding its value.
//
// Errors of evaluated host functions are returned as is.
func Evaluate(n expr.Node) (expr.Node, error) {
	if n == nil {
		return nil, nil
	}
	f := &folder{nominated: map[expr.Node]struct{}{}}
	nominate(n, f.nominated)
	if len(f.nominated) == 0 {
		return n, nil
	}
	return expr.Rewrite(f, n)
}

// nominate marks evaluable nodes bottom-up.
//
// A node is evaluable if it can be evaluated on host and all of its
// children are evaluable.
func nominate(n expr.Node, set map[expr.Node]struct{}) bool {
	evaluable := true
	for _, c := range expr.Children(n) {
		if c == nil {
			continue
		}
		if !nominate(c, set) {
			evaluable = false
		}
	}
	if !evaluable || !canEvaluate(n) {
		return false
	}
	set[n] = struct{}{}
	return true
}

func canEvaluate(n expr.Node) bool {
	switch n := n.(type) {
	case *expr.Parameter, *expr.Lambda:
		return false
	case *expr.Constant:
		_, isCollection := expr.IsCollection(n)
		return !isCollection
	case *expr.Call:
		return n.Method != nil && n.Method.Evaluable()
	default:
		return true
	}
}

type folder struct {
	nominated map[expr.Node]struct{}
}

var _ expr.Rewriter = (*folder)(nil)

// Walk implements [expr.Rewriter].
func (f *folder) Walk(n expr.Node) expr.Rewriter {
	if _, ok := f.nominated[n]; ok {
		// Evaluated as a whole.
		return nil
	}
	return f
}

// Rewrite implements [expr.Rewriter].
func (f *folder) Rewrite(n expr.Node) (expr.Node, error) {
	if _, ok := f.nominated[n]; !ok {
		return n, nil
	}
	if _, ok := n.(*expr.Constant); ok {
		return n, nil
	}
	v, err := expr.Eval(n)
	if err != nil {
		return nil, err
	}
	return &expr.Constant{Value: v, Typ: n.Type()}, nil
}
