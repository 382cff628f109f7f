package expr

import (
	"reflect"
	"slices"
)

// Rewriter accepts a Node and returns a new node (or just its argument).
type Rewriter interface {
	// Rewrite is applied to nodes in depth-first order, after
	// the node children are rewritten.
	Rewrite(Node) (Node, error)

	// Walk is called during node traversal and the returned Rewriter
	// is used for all the children of Node.
	//
	// If the returned rewriter is nil, then traversal does not proceed
	// past Node.
	Walk(Node) Rewriter
}

// RewriteFunc is a [Rewriter] that descends into every node.
type RewriteFunc func(Node) (Node, error)

// Rewrite implements [Rewriter].
func (f RewriteFunc) Rewrite(n Node) (Node, error) { return f(n) }

// Walk implements [Rewriter].
func (f RewriteFunc) Walk(Node) Rewriter { return f }

// Rewrite recursively applies a Rewriter in depth-first order.
//
// Children are visited in fixed order: member and unary operands, binary
// left then right, call arguments then receiver, lambda body, conditional
// test, then and else branches, composite literal fields then constructor
// arguments, list elements, invocation arguments then callee.
//
// If no child has changed (by [Equal]), the original node is passed to
// r.Rewrite. Otherwise, a node of the same kind is reconstructed.
func Rewrite(r Rewriter, n Node) (Node, error) {
	if n == nil {
		return nil, nil
	}
	if rc := r.Walk(n); rc != nil {
		var err error
		n, err = rewriteChildren(rc, n)
		if err != nil {
			return nil, err
		}
	}
	return r.Rewrite(n)
}

func rewriteNode(r Rewriter, n Node, changed *bool) (Node, error) {
	if n == nil {
		return nil, nil
	}
	rn, err := Rewrite(r, n)
	if err != nil {
		return nil, err
	}
	if !Equal(n, rn) {
		*changed = true
	}
	return rn, nil
}

func rewriteNodes(r Rewriter, nodes []Node, changed *bool) ([]Node, error) {
	if len(nodes) == 0 {
		return nodes, nil
	}
	var (
		result = make([]Node, len(nodes))
		local  bool
	)
	for i, n := range nodes {
		rn, err := rewriteNode(r, n, &local)
		if err != nil {
			return nil, err
		}
		result[i] = rn
	}
	if !local {
		return nodes, nil
	}
	*changed = true
	return result, nil
}

func rewriteChildren(r Rewriter, n Node) (Node, error) {
	var (
		changed bool
		err     error
	)
	switch n := n.(type) {
	case *Constant, *Parameter:
		return n, nil
	case *Member:
		inner, err := rewriteNode(r, n.Inner, &changed)
		if err != nil || !changed {
			return n, err
		}
		return &Member{Inner: inner, Name: n.Name, Typ: n.Typ}, nil
	case *Unary:
		operand, err := rewriteNode(r, n.Operand, &changed)
		if err != nil || !changed {
			return n, err
		}
		return &Unary{Op: n.Op, Operand: operand, Typ: n.Typ}, nil
	case *Binary:
		left, err := rewriteNode(r, n.Left, &changed)
		if err != nil {
			return nil, err
		}
		right, err := rewriteNode(r, n.Right, &changed)
		if err != nil || !changed {
			return n, err
		}
		return &Binary{Op: n.Op, Left: left, Right: right, Typ: n.Typ}, nil
	case *Call:
		args, err := rewriteNodes(r, n.Args, &changed)
		if err != nil {
			return nil, err
		}
		obj, err := rewriteNode(r, n.Object, &changed)
		if err != nil || !changed {
			return n, err
		}
		return &Call{Method: n.Method, Object: obj, Args: args, Typ: n.Typ}, nil
	case *Lambda:
		body, err := rewriteNode(r, n.Body, &changed)
		if err != nil || !changed {
			return n, err
		}
		return &Lambda{Params: n.Params, Body: body, Typ: n.Typ}, nil
	case *Conditional:
		var test, then, els Node
		if test, err = rewriteNode(r, n.Test, &changed); err != nil {
			return nil, err
		}
		if then, err = rewriteNode(r, n.Then, &changed); err != nil {
			return nil, err
		}
		if els, err = rewriteNode(r, n.Else, &changed); err != nil || !changed {
			return n, err
		}
		return &Conditional{Test: test, Then: then, Else: els, Typ: n.Typ}, nil
	case *New:
		fields := n.Fields
		if len(n.Fields) > 0 {
			var local bool
			fields = make([]FieldInit, len(n.Fields))
			for i, f := range n.Fields {
				v, err := rewriteNode(r, f.Value, &local)
				if err != nil {
					return nil, err
				}
				fields[i] = FieldInit{Name: f.Name, Value: v}
			}
			if local {
				changed = true
			} else {
				fields = n.Fields
			}
		}
		args, err := rewriteNodes(r, n.Args, &changed)
		if err != nil || !changed {
			return n, err
		}
		return &New{Ctor: n.Ctor, Args: args, ArgFields: n.ArgFields, Fields: fields, Typ: n.Typ}, nil
	case *List:
		elems, err := rewriteNodes(r, n.Elems, &changed)
		if err != nil || !changed {
			return n, err
		}
		return &List{Elems: elems, Typ: n.Typ}, nil
	case *Invoke:
		args, err := rewriteNodes(r, n.Args, &changed)
		if err != nil {
			return nil, err
		}
		fn, err := rewriteNode(r, n.Fn, &changed)
		if err != nil || !changed {
			return n, err
		}
		return &Invoke{Fn: fn, Args: args, Typ: n.Typ}, nil
	default:
		return n, nil
	}
}

// Children returns children of n in traversal order.
func Children(n Node) []Node {
	switch n := n.(type) {
	case *Member:
		return []Node{n.Inner}
	case *Unary:
		return []Node{n.Operand}
	case *Binary:
		return []Node{n.Left, n.Right}
	case *Call:
		r := slices.Clone(n.Args)
		if n.Object != nil {
			r = append(r, n.Object)
		}
		return r
	case *Lambda:
		return []Node{n.Body}
	case *Conditional:
		return []Node{n.Test, n.Then, n.Else}
	case *New:
		r := make([]Node, 0, len(n.Fields)+len(n.Args))
		for _, f := range n.Fields {
			r = append(r, f.Value)
		}
		return append(r, n.Args...)
	case *List:
		return n.Elems
	case *Invoke:
		return append(slices.Clone(n.Args), n.Fn)
	default:
		return nil
	}
}

// Walk traverses tree in pre-order.
//
// If cb returns false, children of node are skipped.
func Walk(n Node, cb func(Node) bool) {
	if n == nil || !cb(n) {
		return
	}
	for _, c := range Children(n) {
		Walk(c, cb)
	}
}

// Visit calls cb for every node of type N.
func Visit[N Node](root Node, cb func(N) error) (rerr error) {
	Walk(root, func(n Node) bool {
		if rerr != nil {
			return false
		}
		match, ok := n.(N)
		if !ok {
			return true
		}
		rerr = cb(match)
		return rerr == nil
	})
	return rerr
}

// Contains whether tree contains given parameter.
func Contains(root Node, p *Parameter) bool {
	found := false
	Walk(root, func(n Node) bool {
		if found {
			return false
		}
		if n == Node(p) {
			found = true
		}
		return !found
	})
	return found
}

// Equal reports whether a and b are structurally equal.
//
// Parameters are compared by identity, constants by value.
func Equal(a, b Node) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a == b {
		return true
	}
	if a.Type() != b.Type() {
		return false
	}
	switch a := a.(type) {
	case *Constant:
		b, ok := b.(*Constant)
		return ok && reflect.DeepEqual(a.Value, b.Value)
	case *Parameter:
		// Compared by identity above.
		return false
	case *Member:
		b, ok := b.(*Member)
		return ok && a.Name == b.Name && Equal(a.Inner, b.Inner)
	case *Unary:
		b, ok := b.(*Unary)
		return ok && a.Op == b.Op && Equal(a.Operand, b.Operand)
	case *Binary:
		b, ok := b.(*Binary)
		return ok && a.Op == b.Op && Equal(a.Left, b.Left) && Equal(a.Right, b.Right)
	case *Call:
		b, ok := b.(*Call)
		return ok && a.Method == b.Method && Equal(a.Object, b.Object) && equalNodes(a.Args, b.Args)
	case *Lambda:
		b, ok := b.(*Lambda)
		if !ok || len(a.Params) != len(b.Params) {
			return false
		}
		for i := range a.Params {
			if a.Params[i] != b.Params[i] {
				return false
			}
		}
		return Equal(a.Body, b.Body)
	case *Conditional:
		b, ok := b.(*Conditional)
		return ok && Equal(a.Test, b.Test) && Equal(a.Then, b.Then) && Equal(a.Else, b.Else)
	case *New:
		b, ok := b.(*New)
		if !ok || len(a.Fields) != len(b.Fields) || !slices.Equal(a.ArgFields, b.ArgFields) {
			return false
		}
		if !sameFunc(a.Ctor, b.Ctor) {
			return false
		}
		for i := range a.Fields {
			if a.Fields[i].Name != b.Fields[i].Name || !Equal(a.Fields[i].Value, b.Fields[i].Value) {
				return false
			}
		}
		return equalNodes(a.Args, b.Args)
	case *List:
		b, ok := b.(*List)
		return ok && equalNodes(a.Elems, b.Elems)
	case *Invoke:
		b, ok := b.(*Invoke)
		return ok && Equal(a.Fn, b.Fn) && equalNodes(a.Args, b.Args)
	default:
		return false
	}
}

func equalNodes(a, b []Node) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

func sameFunc(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Kind() != reflect.Func || vb.Kind() != reflect.Func {
		return false
	}
	return va.Type() == vb.Type() && va.Pointer() == vb.Pointer()
}
