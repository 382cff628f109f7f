package translate

import (
	"reflect"
	"strconv"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/go-faster/mongoql/expr"
	"github.com/go-faster/mongoql/internal/mqlast"
	"github.com/go-faster/mongoql/mqlerrors"
	"github.com/go-faster/mongoql/serializer"
)

// FilterLambda translates predicate over document described by s.
func (c *Context) FilterLambda(n expr.Node, s serializer.Serializer) (mqlast.Filter, error) {
	cc, body, err := c.bindLambda(n, Document(s))
	if err != nil {
		return nil, err
	}
	return cc.Filter(body)
}

// Filter translates boolean expression to a query filter.
func (c *Context) Filter(n expr.Node) (mqlast.Filter, error) {
	switch n := n.(type) {
	case *expr.Binary:
		switch n.Op {
		case expr.OpAndAlso, expr.OpOrElse:
			left, err := c.Filter(n.Left)
			if err != nil {
				return nil, err
			}
			right, err := c.Filter(n.Right)
			if err != nil {
				return nil, err
			}
			if n.Op == expr.OpAndAlso {
				return mqlast.AndOf(left, right), nil
			}
			return mqlast.OrOf(left, right), nil
		}
		if n.Op.IsComparison() {
			return c.comparisonFilter(n)
		}
	case *expr.Unary:
		if n.Op == expr.OpNot {
			f, err := c.Filter(n.Operand)
			if err != nil {
				return nil, err
			}
			return mqlast.Negate(f), nil
		}
	case *expr.Constant:
		if v, ok := n.Value.(bool); ok {
			if v {
				return &mqlast.MatchesEverything{}, nil
			}
			return &mqlast.MatchesNothing{}, nil
		}
	case *expr.Call:
		return c.methodFilter(n)
	}
	if n.Type() != nil && n.Type().Kind() == reflect.Bool {
		// Boolean field.
		field, err := c.filterField(n)
		if err != nil {
			return nil, err
		}
		return mqlast.Eq(field.Path, true), nil
	}
	return nil, mqlerrors.Unsupported(n, "not a predicate")
}

// filterField resolves field used as filter subject.
func (c *Context) filterField(n expr.Node) (ResolvedField, error) {
	f, err := c.ResolveField(n)
	if err != nil {
		return f, err
	}
	if f.IsVariable() {
		return f, mqlerrors.Unsupported(n, "variables cannot be used in filters")
	}
	return f, nil
}

func (c *Context) filterValue(n expr.Node, f ResolvedField, v any) (any, error) {
	r, err := f.Serializer.Serialize(v)
	if err != nil {
		return nil, mqlerrors.Unsupportedf(n, "serialize %v: %s", v, err)
	}
	return r, nil
}

// comparisonDetector tries to translate comparison of particular shape.
//
// Returns nil filter if shape does not match.
type comparisonDetector func(c *Context, n expr.Node, op expr.BinaryOp, left expr.Node, right *expr.Constant) (mqlast.Filter, error)

func (c *Context) comparisonFilter(n *expr.Binary) (mqlast.Filter, error) {
	op, left, right := n.Op, n.Left, n.Right
	if _, ok := constantOf(left); ok {
		if _, ok := constantOf(right); !ok {
			left, right = right, left
			op = op.Flip()
		}
	}
	rc, ok := constantOf(right)
	if !ok {
		return nil, mqlerrors.Unsupported(n, "comparison operand is not a constant")
	}
	return c.comparison(n, op, left, rc)
}

func (c *Context) comparison(n expr.Node, op expr.BinaryOp, left expr.Node, right *expr.Constant) (mqlast.Filter, error) {
	// Detectors are tried in order, first match wins.
	for _, detect := range [...]comparisonDetector{
		(*Context).arrayLengthFilter,
		(*Context).countFilter,
		(*Context).bitMaskFilter,
		(*Context).compareFilter,
		(*Context).moduloFilter,
		(*Context).stringFilter,
	} {
		f, err := detect(c, n, op, left, right)
		if err != nil {
			return nil, err
		}
		if f != nil {
			return f, nil
		}
	}

	field, err := c.filterField(left)
	if err != nil {
		return nil, err
	}
	v, err := c.filterValue(n, field, right.Value)
	if err != nil {
		return nil, err
	}
	return &mqlast.FieldFilter{
		Path: field.Path,
		Op:   &mqlast.Comparison{Op: cmpOp(op), Value: v},
	}, nil
}

func cmpOp(op expr.BinaryOp) mqlast.CmpOp {
	switch op {
	case expr.OpEq:
		return mqlast.CmpEq
	case expr.OpNotEq:
		return mqlast.CmpNe
	case expr.OpLt:
		return mqlast.CmpLt
	case expr.OpLte:
		return mqlast.CmpLte
	case expr.OpGt:
		return mqlast.CmpGt
	case expr.OpGte:
		return mqlast.CmpGte
	default:
		panic("unexpected comparison " + op.String())
	}
}

func (c *Context) arrayLengthFilter(n expr.Node, op expr.BinaryOp, left expr.Node, right *expr.Constant) (mqlast.Filter, error) {
	u, ok := left.(*expr.Unary)
	if !ok || u.Op != expr.OpLen || !expr.IsSequence(u.Operand.Type()) {
		return nil, nil
	}
	return c.sizeFilter(n, op, u.Operand, right)
}

func (c *Context) countFilter(n expr.Node, op expr.BinaryOp, left expr.Node, right *expr.Constant) (mqlast.Filter, error) {
	call, ok := left.(*expr.Call)
	if !ok || call.Tag() != expr.SeqCount || len(call.Args) != 1 || !expr.IsSequence(call.Args[0].Type()) {
		return nil, nil
	}
	return c.sizeFilter(n, op, call.Args[0], right)
}

// sizeFilter translates comparison of array length.
func (c *Context) sizeFilter(n expr.Node, op expr.BinaryOp, array expr.Node, right *expr.Constant) (mqlast.Filter, error) {
	if !isIntegral(right.Typ) {
		return nil, mqlerrors.Unsupported(n, "array length compared with non-integer")
	}
	field, err := c.filterField(array)
	if err != nil {
		return nil, err
	}
	size := toInt64(right.Value)

	// elemExists returns filter for len(array) > i.
	elemExists := func(i int64) mqlast.Filter {
		if i < 0 {
			return &mqlast.MatchesEverything{}
		}
		return &mqlast.FieldFilter{
			Path: joinPath(field.Path, strconv.FormatInt(i, 10)),
			Op:   &mqlast.Exists{Exists: true},
		}
	}

	switch op {
	case expr.OpEq, expr.OpNotEq:
		var f mqlast.Filter = &mqlast.FieldFilter{Path: field.Path, Op: &mqlast.Size{N: size}}
		if size < 0 {
			f = &mqlast.MatchesNothing{}
		}
		if op == expr.OpNotEq {
			f = mqlast.Negate(f)
		}
		return f, nil
	case expr.OpGt:
		return elemExists(size), nil
	case expr.OpGte:
		return elemExists(size - 1), nil
	case expr.OpLt:
		return mqlast.Negate(elemExists(size - 1)), nil
	case expr.OpLte:
		return mqlast.Negate(elemExists(size)), nil
	default:
		return nil, mqlerrors.Unsupported(n, "unexpected operator")
	}
}

func (c *Context) bitMaskFilter(n expr.Node, op expr.BinaryOp, left expr.Node, right *expr.Constant) (mqlast.Filter, error) {
	b, ok := left.(*expr.Binary)
	if !ok || b.Op != expr.OpBitAnd {
		return nil, nil
	}
	subject, maskNode := b.Left, b.Right
	if _, ok := constantOf(subject); ok {
		subject, maskNode = maskNode, subject
	}
	mc, ok := constantOf(maskNode)
	if !ok || !isIntegral(mc.Typ) || !isIntegral(right.Typ) {
		return nil, mqlerrors.Unsupported(n, "bit mask must be an integer constant")
	}
	field, err := c.filterField(subject)
	if err != nil {
		return nil, err
	}
	mask, value := toInt64(mc.Value), toInt64(right.Value)

	var bitsOp mqlast.BitsOp
	switch {
	case op == expr.OpEq && value == 0:
		bitsOp = mqlast.BitsAllClear
	case op == expr.OpEq && value == mask:
		bitsOp = mqlast.BitsAllSet
	case op == expr.OpNotEq && value == 0:
		bitsOp = mqlast.BitsAnySet
	case op == expr.OpNotEq && value == mask:
		bitsOp = mqlast.BitsAnyClear
	default:
		return nil, mqlerrors.Unsupported(n, "bit mask must be compared with zero or the mask")
	}
	return &mqlast.FieldFilter{
		Path: field.Path,
		Op:   &mqlast.Bits{Op: bitsOp, Mask: mask},
	}, nil
}

func (c *Context) compareFilter(n expr.Node, op expr.BinaryOp, left expr.Node, right *expr.Constant) (mqlast.Filter, error) {
	call, ok := left.(*expr.Call)
	if !ok || (call.Tag() != expr.StringsCompare && call.Tag() != expr.CmpCompare) {
		return nil, nil
	}
	if !isIntegral(right.Typ) || toInt64(right.Value) != 0 {
		return nil, mqlerrors.Unsupported(n, "compare result must be compared with zero")
	}
	return c.comparisonFilter(&expr.Binary{
		Op:    op,
		Left:  call.Args[0],
		Right: call.Args[1],
		Typ:   reflect.TypeFor[bool](),
	})
}

func (c *Context) moduloFilter(n expr.Node, op expr.BinaryOp, left expr.Node, right *expr.Constant) (mqlast.Filter, error) {
	b, ok := left.(*expr.Binary)
	if !ok || b.Op != expr.OpMod {
		return nil, nil
	}
	divisor, ok := constantOf(b.Right)
	if !ok || !isIntegral(divisor.Typ) || divisor.Typ != right.Typ {
		return nil, mqlerrors.Unsupported(n, "divisor and remainder must be constants of the same integer type")
	}
	if op != expr.OpEq && op != expr.OpNotEq {
		return nil, mqlerrors.Unsupported(n, "modulo can only be compared for equality")
	}
	field, err := c.filterField(b.Left)
	if err != nil {
		return nil, err
	}
	var fieldOp mqlast.FieldOp = &mqlast.Mod{
		Divisor:   toInt64(divisor.Value),
		Remainder: toInt64(right.Value),
	}
	if op == expr.OpNotEq {
		fieldOp = mqlast.NegateOp(fieldOp)
	}
	return &mqlast.FieldFilter{Path: field.Path, Op: fieldOp}, nil
}

func (c *Context) methodFilter(n *expr.Call) (mqlast.Filter, error) {
	switch n.Tag() {
	case expr.StringsContains, expr.StringsHasPrefix, expr.StringsHasSuffix, expr.StringsEqualFold:
		return c.stringPredicate(n)
	case expr.SeqContains:
		return c.containsFilter(n)
	case expr.SeqAny:
		return c.anyFilter(n)
	}
	if n.Type() != nil && n.Type().Kind() == reflect.Bool {
		// Boolean field, like First(x.Flags).
		if field, err := c.filterField(n); err == nil {
			return mqlast.Eq(field.Path, true), nil
		}
	}
	return nil, mqlerrors.Unsupported(n, "method is not supported in filters")
}

func (c *Context) containsFilter(n *expr.Call) (mqlast.Filter, error) {
	list, item := n.Args[0], n.Args[1]
	if lc, ok := constantOf(list); ok {
		field, err := c.filterField(item)
		if err != nil {
			return nil, err
		}
		values := bson.A{}
		if lc.Value != nil {
			rv := reflect.ValueOf(lc.Value)
			for i := 0; i < rv.Len(); i++ {
				v, err := c.filterValue(n, field, rv.Index(i).Interface())
				if err != nil {
					return nil, err
				}
				values = append(values, v)
			}
		}
		return &mqlast.FieldFilter{Path: field.Path, Op: &mqlast.In{Values: values}}, nil
	}

	ic, ok := constantOf(item)
	if !ok {
		return nil, mqlerrors.Unsupported(n, "either sequence or value must be a constant")
	}
	field, err := c.filterField(list)
	if err != nil {
		return nil, err
	}
	arr, ok := serializer.AsArray(field.Serializer)
	if !ok {
		return nil, mqlerrors.Unsupportedf(n, "%s is not an array", list)
	}
	v, err := c.filterValue(n, ResolvedField{Path: field.Path, Serializer: arr.Item()}, ic.Value)
	if err != nil {
		return nil, err
	}
	return mqlast.Eq(field.Path, v), nil
}

func (c *Context) anyFilter(n *expr.Call) (mqlast.Filter, error) {
	field, err := c.filterField(n.Args[0])
	if err != nil {
		return nil, err
	}
	if len(n.Args) == 1 {
		return &mqlast.FieldFilter{
			Path: joinPath(field.Path, "0"),
			Op:   &mqlast.Exists{Exists: true},
		}, nil
	}
	arr, ok := serializer.AsArray(field.Serializer)
	if !ok {
		return nil, mqlerrors.Unsupportedf(n, "%s is not an array", n.Args[0])
	}
	cc, body, err := c.bindLambda(n.Args[1], Symbol{Serializer: arr.Item()})
	if err != nil {
		return nil, err
	}
	elem, err := cc.Filter(body)
	if err != nil {
		return nil, err
	}
	return &mqlast.FieldFilter{Path: field.Path, Op: &mqlast.ElemMatch{Filter: elem}}, nil
}
