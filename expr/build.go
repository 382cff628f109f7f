package expr

import (
	"fmt"
	"reflect"
)

// Builder functions below panic on ill-typed input, like regexp.MustCompile
// they are meant for trees constructed by code, not by end users.

var (
	boolType = reflect.TypeFor[bool]()
	intType  = reflect.TypeFor[int]()
)

// Const returns constant of value dynamic type.
func Const(v any) *Constant {
	return &Constant{Value: v, Typ: reflect.TypeOf(v)}
}

// ConstOf returns constant of given type.
func ConstOf(v any, t reflect.Type) *Constant {
	return &Constant{Value: v, Typ: t}
}

// Param returns new parameter.
func Param(name string, t reflect.Type) *Parameter {
	return &Parameter{Name: name, Typ: t}
}

// Field returns field access.
func Field(inner Node, name string) *Member {
	t := inner.Type()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		panic(fmt.Sprintf("expr.Field: %s is not a struct", t))
	}
	f, ok := t.FieldByName(name)
	if !ok {
		panic(fmt.Sprintf("expr.Field: %s has no field %q", t, name))
	}
	return &Member{Inner: inner, Name: name, Typ: f.Type}
}

// Path returns chain of field accesses.
func Path(inner Node, names ...string) Node {
	for _, name := range names {
		inner = Field(inner, name)
	}
	return inner
}

// Not returns logical negation.
func Not(x Node) *Unary {
	return &Unary{Op: OpNot, Operand: x, Typ: boolType}
}

// Neg returns arithmetic negation.
func Neg(x Node) *Unary {
	return &Unary{Op: OpNegate, Operand: x, Typ: x.Type()}
}

// Len returns builtin len() call.
func Len(x Node) *Unary {
	return &Unary{Op: OpLen, Operand: x, Typ: intType}
}

// Convert returns type conversion.
func Convert(x Node, t reflect.Type) *Unary {
	return &Unary{Op: OpConvert, Operand: x, Typ: t}
}

// BinaryOf returns binary operation of given type.
func BinaryOf(op BinaryOp, l, r Node, t reflect.Type) *Binary {
	return &Binary{Op: op, Left: l, Right: r, Typ: t}
}

func compare(op BinaryOp, l, r Node) *Binary {
	return BinaryOf(op, l, r, boolType)
}

// Eq returns `l == r`.
func Eq(l, r Node) *Binary { return compare(OpEq, l, r) }

// NotEq returns `l != r`.
func NotEq(l, r Node) *Binary { return compare(OpNotEq, l, r) }

// Lt returns `l < r`.
func Lt(l, r Node) *Binary { return compare(OpLt, l, r) }

// Lte returns `l <= r`.
func Lte(l, r Node) *Binary { return compare(OpLte, l, r) }

// Gt returns `l > r`.
func Gt(l, r Node) *Binary { return compare(OpGt, l, r) }

// Gte returns `l >= r`.
func Gte(l, r Node) *Binary { return compare(OpGte, l, r) }

// AndAlso returns `l && r`.
func AndAlso(l, r Node) *Binary { return compare(OpAndAlso, l, r) }

// OrElse returns `l || r`.
func OrElse(l, r Node) *Binary { return compare(OpOrElse, l, r) }

func arith(op BinaryOp, l, r Node) *Binary {
	return BinaryOf(op, l, r, l.Type())
}

// Add returns `l + r`.
func Add(l, r Node) *Binary { return arith(OpAdd, l, r) }

// Sub returns `l - r`.
func Sub(l, r Node) *Binary { return arith(OpSub, l, r) }

// Mul returns `l * r`.
func Mul(l, r Node) *Binary { return arith(OpMul, l, r) }

// Div returns `l / r`.
func Div(l, r Node) *Binary { return arith(OpDiv, l, r) }

// Mod returns `l % r`.
func Mod(l, r Node) *Binary { return arith(OpMod, l, r) }

// BitAnd returns `l & r`.
func BitAnd(l, r Node) *Binary { return arith(OpBitAnd, l, r) }

// Coalesce returns left value if it is not nil, right otherwise.
func Coalesce(l, r Node) *Binary { return BinaryOf(OpCoalesce, l, r, r.Type()) }

// Index returns index expression.
func Index(x, i Node) *Binary {
	t := x.Type()
	var elem reflect.Type
	switch t.Kind() {
	case reflect.String:
		elem = reflect.TypeFor[byte]()
	case reflect.Slice, reflect.Array, reflect.Map:
		elem = t.Elem()
	default:
		panic(fmt.Sprintf("expr.Index: cannot index %s", t))
	}
	return BinaryOf(OpIndex, x, i, elem)
}

// CallOf returns call of registered function.
func CallOf(tag MethodTag, args ...Node) *Call {
	return newCall(tag, nil, nil, args)
}

// MethodCall returns call of registered method on receiver.
func MethodCall(recv Node, tag MethodTag, args ...Node) *Call {
	return newCall(tag, recv, nil, args)
}

// CallTyped returns call with explicit result type.
func CallTyped(tag MethodTag, t reflect.Type, args ...Node) *Call {
	return newCall(tag, nil, t, args)
}

func newCall(tag MethodTag, recv Node, t reflect.Type, args []Node) *Call {
	m := MustMethod(tag)
	if err := m.checkArity(len(args)); err != nil {
		panic(err.Error())
	}
	if m.Receiver != (recv != nil) {
		panic(fmt.Sprintf("expr: method %s receiver mismatch", m.Name))
	}
	if t == nil {
		t = m.ResultType(recv, args)
	}
	if t == nil {
		panic(fmt.Sprintf("expr: cannot infer result type of %s", m.Name))
	}
	return &Call{Method: m, Object: recv, Args: args, Typ: t}
}

// Func returns lambda with given parameters.
func Func(body Node, params ...*Parameter) *Lambda {
	in := make([]reflect.Type, len(params))
	for i, p := range params {
		in[i] = p.Typ
	}
	return &Lambda{
		Params: params,
		Body:   body,
		Typ:    reflect.FuncOf(in, []reflect.Type{body.Type()}, false),
	}
}

// Cond returns conditional expression.
func Cond(test, then, els Node) *Conditional {
	return &Conditional{Test: test, Then: then, Else: els, Typ: then.Type()}
}

// Init returns field initializer.
func Init(name string, v Node) FieldInit {
	return FieldInit{Name: name, Value: v}
}

// NewStruct returns composite literal of struct type t.
func NewStruct(t reflect.Type, fields ...FieldInit) *New {
	for _, f := range fields {
		if _, ok := t.FieldByName(f.Name); !ok {
			panic(fmt.Sprintf("expr.NewStruct: %s has no field %q", t, f.Name))
		}
	}
	return &New{Fields: fields, Typ: t}
}

// ListOf returns slice literal.
func ListOf(elem reflect.Type, elems ...Node) *List {
	return &List{Elems: elems, Typ: reflect.SliceOf(elem)}
}

// InvokeFunc returns call of function value.
func InvokeFunc(fn Node, args ...Node) *Invoke {
	ft := fn.Type()
	if ft.Kind() != reflect.Func || ft.NumOut() == 0 {
		panic(fmt.Sprintf("expr.InvokeFunc: cannot call %s", ft))
	}
	return &Invoke{Fn: fn, Args: args, Typ: ft.Out(0)}
}
