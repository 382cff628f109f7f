package expr

import (
	"math"
	"reflect"

	"github.com/go-faster/errors"
)

// Eval evaluates closed expression on host.
//
// Errors returned by host methods and constructors are returned unwrapped,
// panics are not recovered.
func Eval(n Node) (any, error) {
	v, err := eval(n)
	if err != nil {
		return nil, err
	}
	if !v.IsValid() {
		return nil, nil
	}
	return v.Interface(), nil
}

func evalConvert(v reflect.Value, t reflect.Type) (reflect.Value, error) {
	if !v.IsValid() {
		return reflect.Zero(t), nil
	}
	if v.Type() == t {
		return v, nil
	}
	if t.Kind() == reflect.Interface && v.Type().Implements(t) {
		r := reflect.New(t).Elem()
		r.Set(v)
		return r, nil
	}
	if !v.Type().ConvertibleTo(t) {
		return reflect.Value{}, errors.Errorf("cannot convert %s to %s", v.Type(), t)
	}
	return v.Convert(t), nil
}

func eval(n Node) (reflect.Value, error) {
	switch n := n.(type) {
	case *Constant:
		if n.Value == nil {
			if n.Typ == nil {
				return reflect.Value{}, nil
			}
			return reflect.Zero(n.Typ), nil
		}
		return reflect.ValueOf(n.Value), nil
	case *Parameter:
		return reflect.Value{}, errors.Errorf("parameter %q is not bound", n.Name)
	case *Member:
		inner, err := eval(n.Inner)
		if err != nil {
			return reflect.Value{}, err
		}
		for inner.Kind() == reflect.Pointer || inner.Kind() == reflect.Interface {
			if inner.IsNil() {
				return reflect.Value{}, errors.Errorf("nil dereference in %s", n)
			}
			inner = inner.Elem()
		}
		if inner.Kind() != reflect.Struct {
			return reflect.Value{}, errors.Errorf("%s is not a struct", inner.Type())
		}
		f := inner.FieldByName(n.Name)
		if !f.IsValid() {
			return reflect.Value{}, errors.Errorf("%s has no field %q", inner.Type(), n.Name)
		}
		return f, nil
	case *Unary:
		return evalUnary(n)
	case *Binary:
		return evalBinary(n)
	case *Call:
		var recv reflect.Value
		if n.Object != nil {
			v, err := eval(n.Object)
			if err != nil {
				return reflect.Value{}, err
			}
			recv = v
		}
		args, err := evalNodes(n.Args)
		if err != nil {
			return reflect.Value{}, err
		}
		if n.Method == nil {
			return reflect.Value{}, errors.New("call of unknown method")
		}
		return n.Method.Eval(recv, args)
	case *Lambda:
		return reflect.Value{}, errors.Errorf("lambda %s is not evaluable", n)
	case *Conditional:
		test, err := eval(n.Test)
		if err != nil {
			return reflect.Value{}, err
		}
		if test.Kind() != reflect.Bool {
			return reflect.Value{}, errors.Errorf("condition is %s, not bool", test.Type())
		}
		if test.Bool() {
			return eval(n.Then)
		}
		return eval(n.Else)
	case *New:
		return evalNew(n)
	case *List:
		elems, err := evalNodes(n.Elems)
		if err != nil {
			return reflect.Value{}, err
		}
		r := reflect.MakeSlice(n.Typ, 0, len(elems))
		for _, e := range elems {
			e, err := evalConvert(e, n.Typ.Elem())
			if err != nil {
				return reflect.Value{}, err
			}
			r = reflect.Append(r, e)
		}
		return r, nil
	case *Invoke:
		args, err := evalNodes(n.Args)
		if err != nil {
			return reflect.Value{}, err
		}
		fn, err := eval(n.Fn)
		if err != nil {
			return reflect.Value{}, err
		}
		return callFunc(fn, args)
	default:
		return reflect.Value{}, errors.Errorf("unexpected node %T", n)
	}
}

func evalNodes(nodes []Node) ([]reflect.Value, error) {
	r := make([]reflect.Value, len(nodes))
	for i, n := range nodes {
		v, err := eval(n)
		if err != nil {
			return nil, err
		}
		r[i] = v
	}
	return r, nil
}

var errorType = reflect.TypeFor[error]()

func callFunc(fn reflect.Value, args []reflect.Value) (reflect.Value, error) {
	if fn.Kind() != reflect.Func {
		return reflect.Value{}, errors.Errorf("cannot call %s", fn.Type())
	}
	if fn.IsNil() {
		return reflect.Value{}, errors.New("call of nil function")
	}
	ft := fn.Type()
	if ft.NumIn() != len(args) {
		return reflect.Value{}, errors.Errorf("%s: got %d arguments", ft, len(args))
	}
	in := make([]reflect.Value, len(args))
	for i, arg := range args {
		v, err := evalConvert(arg, ft.In(i))
		if err != nil {
			return reflect.Value{}, err
		}
		in[i] = v
	}
	out := fn.Call(in)
	if len(out) == 2 && ft.Out(1) == errorType {
		if err, _ := out[1].Interface().(error); err != nil {
			return reflect.Value{}, err
		}
	}
	if len(out) == 0 {
		return reflect.Value{}, nil
	}
	return out[0], nil
}

func evalNew(n *New) (reflect.Value, error) {
	// Initializers are evaluated before constructor arguments.
	fields := make([]reflect.Value, len(n.Fields))
	for i, f := range n.Fields {
		v, err := eval(f.Value)
		if err != nil {
			return reflect.Value{}, err
		}
		fields[i] = v
	}
	args, err := evalNodes(n.Args)
	if err != nil {
		return reflect.Value{}, err
	}

	var r reflect.Value
	if n.Ctor != nil {
		v, err := callFunc(reflect.ValueOf(n.Ctor), args)
		if err != nil {
			return reflect.Value{}, err
		}
		r = reflect.New(n.Typ).Elem()
		v, err = evalConvert(v, n.Typ)
		if err != nil {
			return reflect.Value{}, err
		}
		r.Set(v)
	} else {
		if len(args) > 0 {
			return reflect.Value{}, errors.New("constructor arguments without constructor")
		}
		r = reflect.New(n.Typ).Elem()
	}
	for i, f := range n.Fields {
		fv := r.FieldByName(f.Name)
		if !fv.IsValid() || !fv.CanSet() {
			return reflect.Value{}, errors.Errorf("%s: cannot set field %q", n.Typ, f.Name)
		}
		v, err := evalConvert(fields[i], fv.Type())
		if err != nil {
			return reflect.Value{}, err
		}
		fv.Set(v)
	}
	return r, nil
}

func evalUnary(n *Unary) (reflect.Value, error) {
	v, err := eval(n.Operand)
	if err != nil {
		return reflect.Value{}, err
	}
	switch n.Op {
	case OpNot:
		if v.Kind() != reflect.Bool {
			return reflect.Value{}, errors.Errorf("cannot negate %s", v.Type())
		}
		return reflect.ValueOf(!v.Bool()), nil
	case OpNegate:
		r := reflect.New(v.Type()).Elem()
		switch {
		case v.CanInt():
			r.SetInt(-v.Int())
		case v.CanFloat():
			r.SetFloat(-v.Float())
		default:
			return reflect.Value{}, errors.Errorf("cannot negate %s", v.Type())
		}
		return r, nil
	case OpConvert:
		return evalConvert(v, n.Typ)
	case OpLen:
		switch v.Kind() {
		case reflect.String, reflect.Slice, reflect.Array, reflect.Map, reflect.Chan:
			return reflect.ValueOf(v.Len()), nil
		default:
			return reflect.Value{}, errors.Errorf("invalid argument for len: %s", v.Type())
		}
	default:
		return reflect.Value{}, errors.Errorf("unexpected unary op %s", n.Op)
	}
}

func evalBinary(n *Binary) (reflect.Value, error) {
	left, err := eval(n.Left)
	if err != nil {
		return reflect.Value{}, err
	}
	switch n.Op {
	case OpAndAlso, OpOrElse:
		if left.Kind() != reflect.Bool {
			return reflect.Value{}, errors.Errorf("%s is not bool", left.Type())
		}
		if n.Op == OpAndAlso && !left.Bool() {
			return reflect.ValueOf(false), nil
		}
		if n.Op == OpOrElse && left.Bool() {
			return reflect.ValueOf(true), nil
		}
		return eval(n.Right)
	case OpCoalesce:
		if left.IsValid() && !isNil(left) {
			return evalConvert(left, n.Typ)
		}
		right, err := eval(n.Right)
		if err != nil {
			return reflect.Value{}, err
		}
		return evalConvert(right, n.Typ)
	}

	right, err := eval(n.Right)
	if err != nil {
		return reflect.Value{}, err
	}
	switch n.Op {
	case OpIndex:
		return evalIndex(left, right)
	case OpEq, OpNotEq:
		eq := valuesEqual(left, right)
		return reflect.ValueOf(eq == (n.Op == OpEq)), nil
	case OpLt, OpLte, OpGt, OpGte:
		c, err := evalCompare(reflect.Value{}, []reflect.Value{left, right})
		if err != nil {
			return reflect.Value{}, err
		}
		var r bool
		switch cv := c.Int(); n.Op {
		case OpLt:
			r = cv < 0
		case OpLte:
			r = cv <= 0
		case OpGt:
			r = cv > 0
		case OpGte:
			r = cv >= 0
		}
		return reflect.ValueOf(r), nil
	default:
		return evalArith(n.Op, left, right, n.Typ)
	}
}

func isNil(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	default:
		return false
	}
}

func valuesEqual(a, b reflect.Value) bool {
	if !a.IsValid() || !b.IsValid() {
		return (!a.IsValid() || isNil(a)) && (!b.IsValid() || isNil(b))
	}
	if a.Type() != b.Type() && b.Type().ConvertibleTo(a.Type()) {
		b = b.Convert(a.Type())
	}
	return reflect.DeepEqual(a.Interface(), b.Interface())
}

func evalIndex(x, i reflect.Value) (reflect.Value, error) {
	switch x.Kind() {
	case reflect.Map:
		k, err := evalConvert(i, x.Type().Key())
		if err != nil {
			return reflect.Value{}, err
		}
		v := x.MapIndex(k)
		if !v.IsValid() {
			return reflect.Zero(x.Type().Elem()), nil
		}
		return v, nil
	case reflect.String, reflect.Slice, reflect.Array:
		if !i.CanInt() {
			return reflect.Value{}, errors.Errorf("invalid index type %s", i.Type())
		}
		// Out of range access panics like in Go.
		return x.Index(int(i.Int())), nil
	default:
		return reflect.Value{}, errors.Errorf("cannot index %s", x.Type())
	}
}

func evalArith(op BinaryOp, left, right reflect.Value, t reflect.Type) (reflect.Value, error) {
	if t.Kind() == reflect.String {
		if op != OpAdd {
			return reflect.Value{}, errors.Errorf("operator %s is not defined on strings", op)
		}
		return reflect.ValueOf(left.String() + right.String()).Convert(t), nil
	}
	r := reflect.New(t).Elem()
	switch {
	case r.CanInt():
		a, b := toInt(left), toInt(right)
		var v int64
		switch op {
		case OpAdd:
			v = a + b
		case OpSub:
			v = a - b
		case OpMul:
			v = a * b
		case OpDiv:
			v = a / b
		case OpMod:
			v = a % b
		case OpBitAnd:
			v = a & b
		case OpBitOr:
			v = a | b
		case OpBitXor:
			v = a ^ b
		default:
			return reflect.Value{}, errors.Errorf("unexpected operator %s", op)
		}
		r.SetInt(v)
	case r.CanUint():
		a, b := uint64(toInt(left)), uint64(toInt(right))
		var v uint64
		switch op {
		case OpAdd:
			v = a + b
		case OpSub:
			v = a - b
		case OpMul:
			v = a * b
		case OpDiv:
			v = a / b
		case OpMod:
			v = a % b
		case OpBitAnd:
			v = a & b
		case OpBitOr:
			v = a | b
		case OpBitXor:
			v = a ^ b
		default:
			return reflect.Value{}, errors.Errorf("unexpected operator %s", op)
		}
		r.SetUint(v)
	case r.CanFloat():
		a, _ := toFloat(left)
		b, _ := toFloat(right)
		var v float64
		switch op {
		case OpAdd:
			v = a + b
		case OpSub:
			v = a - b
		case OpMul:
			v = a * b
		case OpDiv:
			v = a / b
		case OpMod:
			v = math.Mod(a, b)
		default:
			return reflect.Value{}, errors.Errorf("operator %s is not defined on floats", op)
		}
		r.SetFloat(v)
	default:
		return reflect.Value{}, errors.Errorf("operator %s is not defined on %s", op, t)
	}
	return r, nil
}

func toInt(v reflect.Value) int64 {
	switch {
	case v.CanInt():
		return v.Int()
	case v.CanUint():
		return int64(v.Uint())
	case v.CanFloat():
		return int64(v.Float())
	default:
		return 0
	}
}
