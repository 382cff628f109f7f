// Package expr defines typed expression trees compiled by mongoql.
//
// Trees are immutable: every node owns its children and carries the static
// Go type of the value it denotes. Query sources are slices of documents,
// query operators are [Call] nodes of [KindQuery] methods.
package expr

import (
	"reflect"
)

// Node is an expression tree node.
type Node interface {
	// Type returns static type of the node value.
	Type() reflect.Type
	// String returns textual form of the node.
	String() string

	node()
}

func (*Constant) node()    {}
func (*Parameter) node()   {}
func (*Member) node()      {}
func (*Unary) node()       {}
func (*Binary) node()      {}
func (*Call) node()        {}
func (*Lambda) node()      {}
func (*Conditional) node() {}
func (*New) node()         {}
func (*List) node()        {}
func (*Invoke) node()      {}

// Constant is a literal value.
type Constant struct {
	Value any
	Typ   reflect.Type
}

// Type implements [Node].
func (n *Constant) Type() reflect.Type { return n.Typ }

// Parameter is a lambda parameter.
//
// Parameters are compared by identity.
type Parameter struct {
	Name string
	Typ  reflect.Type
}

// Type implements [Node].
func (n *Parameter) Type() reflect.Type { return n.Typ }

// Member is a struct field access.
type Member struct {
	Inner Node
	// Name is a Go field name.
	Name string
	Typ  reflect.Type
}

// Type implements [Node].
func (n *Member) Type() reflect.Type { return n.Typ }

// Unary is an unary operation.
type Unary struct {
	Op      UnaryOp
	Operand Node
	Typ     reflect.Type
}

// Type implements [Node].
func (n *Unary) Type() reflect.Type { return n.Typ }

// Binary is a binary operation.
type Binary struct {
	Op    BinaryOp
	Left  Node
	Right Node
	Typ   reflect.Type
}

// Type implements [Node].
func (n *Binary) Type() reflect.Type { return n.Typ }

// Call is a call of a registered method.
type Call struct {
	Method *Method
	// Object is a method receiver, nil for functions.
	Object Node
	Args   []Node
	Typ    reflect.Type
}

// Type implements [Node].
func (n *Call) Type() reflect.Type { return n.Typ }

// Tag returns tag of called method.
func (n *Call) Tag() MethodTag {
	if n.Method == nil {
		return MethodUnknown
	}
	return n.Method.Tag
}

// Lambda is a function literal.
type Lambda struct {
	Params []*Parameter
	Body   Node
	Typ    reflect.Type
}

// Type implements [Node].
func (n *Lambda) Type() reflect.Type { return n.Typ }

// Conditional is a ternary conditional expression.
type Conditional struct {
	Test Node
	Then Node
	Else Node
	Typ  reflect.Type
}

// Type implements [Node].
func (n *Conditional) Type() reflect.Type { return n.Typ }

// FieldInit is a field initializer of composite literal.
type FieldInit struct {
	Name  string
	Value Node
}

// New constructs a struct value.
//
// If Ctor is set, it is called with evaluated Args, and the i-th argument
// initializes field ArgFields[i]. Fields are assigned after construction.
type New struct {
	Ctor      any
	Args      []Node
	ArgFields []string
	Fields    []FieldInit
	Typ       reflect.Type
}

// Type implements [Node].
func (n *New) Type() reflect.Type { return n.Typ }

// List constructs a slice.
type List struct {
	Elems []Node
	Typ   reflect.Type
}

// Type implements [Node].
func (n *List) Type() reflect.Type { return n.Typ }

// Invoke calls a function value.
type Invoke struct {
	Fn   Node
	Args []Node
	Typ  reflect.Type
}

// Type implements [Node].
func (n *Invoke) Type() reflect.Type { return n.Typ }

// CollectionRef is a value of query source constant.
type CollectionRef struct {
	Name string
}

// IsCollection whether n is a query source constant.
func IsCollection(n Node) (CollectionRef, bool) {
	c, ok := n.(*Constant)
	if !ok {
		return CollectionRef{}, false
	}
	ref, ok := c.Value.(CollectionRef)
	return ref, ok
}

// Collection returns query source of documents of given type.
func Collection(name string, elem reflect.Type) *Constant {
	return &Constant{
		Value: CollectionRef{Name: name},
		Typ:   reflect.SliceOf(elem),
	}
}

// UnwrapLambda returns lambda from n.
func UnwrapLambda(n Node) (*Lambda, bool) {
	l, ok := n.(*Lambda)
	return l, ok
}
