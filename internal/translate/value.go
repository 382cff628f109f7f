package translate

import (
	"reflect"
	"regexp"

	"github.com/go-faster/mongoql/expr"
	"github.com/go-faster/mongoql/internal/mqlast"
	"github.com/go-faster/mongoql/mqlerrors"
	"github.com/go-faster/mongoql/serializer"
)

// ValueLambda translates lambda over document described by s to
// an aggregation expression.
func (c *Context) ValueLambda(n expr.Node, s serializer.Serializer) (mqlast.Expr, error) {
	cc, body, err := c.bindLambda(n, Document(s))
	if err != nil {
		return nil, err
	}
	return cc.Value(body)
}

// Value translates expression to an aggregation expression.
func (c *Context) Value(n expr.Node) (mqlast.Expr, error) {
	if isPlainPath(n) {
		f, err := c.ResolveField(n)
		if err != nil {
			return nil, err
		}
		return fieldExpr(f), nil
	}

	switch n := n.(type) {
	case *expr.Constant:
		if _, ok := expr.IsCollection(n); ok {
			return nil, mqlerrors.Unsupported(n, "query source cannot be used as a value")
		}
		return c.constantValue(n, nil)
	case *expr.Member:
		return c.memberValue(n)
	case *expr.Unary:
		return c.unaryValue(n)
	case *expr.Binary:
		return c.binaryValue(n)
	case *expr.Conditional:
		args, err := c.values(n.Test, n.Then, n.Else)
		if err != nil {
			return nil, err
		}
		return mqlast.Cond(args[0], args[1], args[2]), nil
	case *expr.Call:
		return c.callValue(n)
	case *expr.New:
		return c.newValue(n)
	case *expr.List:
		elems, err := c.values(n.Elems...)
		if err != nil {
			return nil, err
		}
		return &mqlast.Array{Elems: elems}, nil
	case *expr.Lambda:
		return nil, mqlerrors.Unsupported(n, "function literal cannot be used as a value")
	}
	return nil, mqlerrors.Unsupported(n, "")
}

// isPlainPath whether n is a chain of member accesses on a parameter.
//
// Array element access is not a plain path: aggregation field paths
// do not index arrays.
func isPlainPath(n expr.Node) bool {
	for {
		switch v := n.(type) {
		case *expr.Parameter:
			return true
		case *expr.Member:
			n = v.Inner
		case *expr.Unary:
			if v.Op != expr.OpConvert {
				return false
			}
			n = v.Operand
		default:
			return false
		}
	}
}

func fieldExpr(f ResolvedField) mqlast.Expr {
	if f.Path == "" {
		return mqlast.Root()
	}
	return mqlast.Path(f.Path)
}

func (c *Context) values(nodes ...expr.Node) ([]mqlast.Expr, error) {
	r := make([]mqlast.Expr, len(nodes))
	for i, n := range nodes {
		v, err := c.Value(n)
		if err != nil {
			return nil, err
		}
		r[i] = v
	}
	return r, nil
}

// constantValue serializes constant, using s if set.
func (c *Context) constantValue(n *expr.Constant, s serializer.Serializer) (mqlast.Expr, error) {
	if n.Value == nil {
		return mqlast.Value(nil), nil
	}
	if s == nil {
		t := n.Typ
		if t == nil {
			t = reflect.TypeOf(n.Value)
		}
		var err error
		if s, err = c.serializerOf(n, t); err != nil {
			return nil, err
		}
	}
	v, err := s.Serialize(n.Value)
	if err != nil {
		return nil, mqlerrors.Unsupportedf(n, "serialize %v: %s", n.Value, err)
	}
	return mqlast.Value(v), nil
}

func (c *Context) memberValue(n *expr.Member) (mqlast.Expr, error) {
	inner, err := c.Value(n.Inner)
	if err != nil {
		return nil, err
	}
	s, err := c.serializerOf(n.Inner, n.Inner.Type())
	if err != nil {
		return nil, err
	}
	doc, ok := serializer.AsDocument(s)
	if !ok {
		return nil, mqlerrors.Unsupportedf(n, "%s is not a document", n.Inner)
	}
	m, ok := c.fields.Member(doc, n.Name)
	if !ok {
		return nil, mqlerrors.Unsupportedf(n, "unknown member %q", n.Name)
	}
	return &mqlast.NamedOperator{Op: "$getField", Args: []mqlast.Field{
		{Name: "field", Value: &mqlast.Literal{Value: m.ElementName}},
		{Name: "input", Value: inner},
	}}, nil
}

func (c *Context) unaryValue(n *expr.Unary) (mqlast.Expr, error) {
	x, err := c.Value(n.Operand)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case expr.OpNot:
		return mqlast.Op("$not", x), nil
	case expr.OpNegate:
		return mqlast.Op("$subtract", mqlast.Value(int32(0)), x), nil
	case expr.OpLen:
		t := n.Operand.Type()
		switch {
		case isString(t):
			return mqlast.Op("$strLenCP", x), nil
		case expr.IsSequence(t):
			return mqlast.Op("$size", x), nil
		}
		return nil, mqlerrors.Unsupportedf(n, "len of %s", t)
	case expr.OpConvert:
		return convertValue(n, x)
	}
	return nil, mqlerrors.Unsupported(n, "unexpected operator")
}

func convertValue(n *expr.Unary, x mqlast.Expr) (mqlast.Expr, error) {
	from, to := n.Operand.Type(), n.Typ
	if from == to {
		return x, nil
	}
	switch to.Kind() {
	case reflect.Int, reflect.Int64, reflect.Uint, reflect.Uint32, reflect.Uint64:
		return mqlast.Op("$toLong", x), nil
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Uint8, reflect.Uint16:
		return mqlast.Op("$toInt", x), nil
	case reflect.Float32, reflect.Float64:
		return mqlast.Op("$toDouble", x), nil
	case reflect.String:
		if isIntegral(from) {
			// string(rune) is not a number formatting.
			break
		}
		return mqlast.Op("$toString", x), nil
	}
	return nil, mqlerrors.Unsupportedf(n, "conversion from %s to %s", from, to)
}

var binaryOperators = map[expr.BinaryOp]string{
	expr.OpAdd:      "$add",
	expr.OpSub:      "$subtract",
	expr.OpMul:      "$multiply",
	expr.OpDiv:      "$divide",
	expr.OpMod:      "$mod",
	expr.OpBitAnd:   "$bitAnd",
	expr.OpBitOr:    "$bitOr",
	expr.OpBitXor:   "$bitXor",
	expr.OpAndAlso:  "$and",
	expr.OpOrElse:   "$or",
	expr.OpEq:       "$eq",
	expr.OpNotEq:    "$ne",
	expr.OpLt:       "$lt",
	expr.OpLte:      "$lte",
	expr.OpGt:       "$gt",
	expr.OpGte:      "$gte",
	expr.OpCoalesce: "$ifNull",
	expr.OpIndex:    "$arrayElemAt",
}

func (c *Context) binaryValue(n *expr.Binary) (mqlast.Expr, error) {
	if n.Op == expr.OpIndex && !expr.IsSequence(n.Left.Type()) {
		return nil, mqlerrors.Unsupportedf(n, "index of %s", n.Left.Type())
	}
	left, right, err := c.operands(n.Left, n.Right)
	if err != nil {
		return nil, err
	}
	op, ok := binaryOperators[n.Op]
	if !ok {
		return nil, mqlerrors.Unsupported(n, "unexpected operator")
	}
	switch {
	case n.Op == expr.OpAdd && isString(n.Typ):
		op = "$concat"
	case n.Op == expr.OpDiv && isIntegral(n.Typ):
		// Integer division truncates.
		return mqlast.Op("$trunc", mqlast.Op(op, left, right)), nil
	}
	return mqlast.Op(op, left, right), nil
}

// operands translates binary operands, serializing constant operand
// with serializer of the field on the other side.
func (c *Context) operands(l, r expr.Node) (left, right mqlast.Expr, err error) {
	fieldOf := func(n expr.Node) serializer.Serializer {
		if !isPlainPath(n) {
			return nil
		}
		f, err := c.ResolveField(n)
		if err != nil {
			return nil
		}
		return f.Serializer
	}
	operand := func(n, other expr.Node) (mqlast.Expr, error) {
		if cc, ok := constantOf(n); ok {
			if s := fieldOf(other); s != nil && s.ValueType() == cc.Typ {
				return c.constantValue(cc, s)
			}
		}
		return c.Value(n)
	}
	if left, err = operand(l, r); err != nil {
		return nil, nil, err
	}
	if right, err = operand(r, l); err != nil {
		return nil, nil, err
	}
	return left, right, nil
}

func (c *Context) callValue(n *expr.Call) (mqlast.Expr, error) {
	switch n.Tag() {
	case expr.TimeNow:
		return &mqlast.Var{Name: "NOW"}, nil
	case expr.TimeYear, expr.TimeMonth, expr.TimeDay, expr.TimeHour, expr.TimeMinute, expr.TimeSecond:
		return c.timeValue(n)
	case expr.SeqCount, expr.SeqFirst, expr.SeqContains, expr.SeqAny,
		expr.SeqSum, expr.SeqAverage, expr.SeqMin, expr.SeqMax:
		return c.sequenceValue(n)
	}
	if n.Method != nil && n.Method.Kind == expr.KindQuery {
		return nil, mqlerrors.Unsupported(n, "query operator cannot be used as a value")
	}
	return c.stringValue(n)
}

var timeOperators = map[expr.MethodTag]string{
	expr.TimeYear:   "$year",
	expr.TimeMonth:  "$month",
	expr.TimeDay:    "$dayOfMonth",
	expr.TimeHour:   "$hour",
	expr.TimeMinute: "$minute",
	expr.TimeSecond: "$second",
}

func (c *Context) timeValue(n *expr.Call) (mqlast.Expr, error) {
	x, err := c.Value(n.Object)
	if err != nil {
		return nil, err
	}
	return mqlast.Op(timeOperators[n.Tag()], x), nil
}

// itemSerializer returns serializer of sequence items.
func (c *Context) itemSerializer(n expr.Node) (serializer.Serializer, error) {
	if isPlainPath(n) {
		if f, err := c.ResolveField(n); err == nil {
			if arr, ok := serializer.AsArray(f.Serializer); ok {
				return arr.Item(), nil
			}
		}
	}
	t := n.Type()
	if !expr.IsSequence(t) {
		return nil, mqlerrors.Unsupportedf(n, "%s is not a sequence", t)
	}
	return c.serializerOf(n, t.Elem())
}

// mapValue translates per-item lambda as $map over input.
func (c *Context) mapValue(input expr.Node, inputExpr mqlast.Expr, fn expr.Node) (mqlast.Expr, error) {
	l, ok := expr.UnwrapLambda(fn)
	if !ok || len(l.Params) != 1 {
		return nil, mqlerrors.Unsupported(fn, "expected function of one argument")
	}
	item, err := c.itemSerializer(input)
	if err != nil {
		return nil, err
	}
	name := variableName(l.Params[0])
	in, err := c.With(l.Params[0], Variable(name, item)).Value(l.Body)
	if err != nil {
		return nil, err
	}
	return &mqlast.NamedOperator{Op: "$map", Args: []mqlast.Field{
		{Name: "input", Value: inputExpr},
		{Name: "as", Value: mqlast.Value(name)},
		{Name: "in", Value: in},
	}}, nil
}

var variableNameRe = regexp.MustCompile(`^[a-z][a-zA-Z0-9_]*$`)

// variableName returns name of expression variable for parameter.
func variableName(p *expr.Parameter) string {
	if variableNameRe.MatchString(p.Name) {
		return p.Name
	}
	return "this"
}

var sequenceOperators = map[expr.MethodTag]string{
	expr.SeqSum:     "$sum",
	expr.SeqAverage: "$avg",
	expr.SeqMin:     "$min",
	expr.SeqMax:     "$max",
}

func (c *Context) sequenceValue(n *expr.Call) (mqlast.Expr, error) {
	if n.Tag() == expr.SeqContains {
		list, item, err := c.operandsContains(n)
		if err != nil {
			return nil, err
		}
		return mqlast.Op("$in", item, list), nil
	}

	input, err := c.Value(n.Args[0])
	if err != nil {
		return nil, err
	}
	switch n.Tag() {
	case expr.SeqCount:
		return mqlast.Op("$size", input), nil
	case expr.SeqFirst:
		return mqlast.Op("$arrayElemAt", input, mqlast.Value(int32(0))), nil
	case expr.SeqAny:
		if len(n.Args) == 1 {
			return mqlast.Op("$gt", mqlast.Op("$size", input), mqlast.Value(int32(0))), nil
		}
		m, err := c.mapValue(n.Args[0], input, n.Args[1])
		if err != nil {
			return nil, err
		}
		return mqlast.Op("$anyElementTrue", m), nil
	}
	op := sequenceOperators[n.Tag()]
	if len(n.Args) == 2 {
		m, err := c.mapValue(n.Args[0], input, n.Args[1])
		if err != nil {
			return nil, err
		}
		return mqlast.Op(op, m), nil
	}
	return mqlast.Op(op, input), nil
}

func (c *Context) operandsContains(n *expr.Call) (list, item mqlast.Expr, err error) {
	if list, err = c.Value(n.Args[0]); err != nil {
		return nil, nil, err
	}
	if ic, ok := constantOf(n.Args[1]); ok {
		s, err := c.itemSerializer(n.Args[0])
		if err != nil {
			return nil, nil, err
		}
		item, err = c.constantValue(ic, s)
		return list, item, err
	}
	item, err = c.Value(n.Args[1])
	return list, item, err
}

func (c *Context) stringValue(n *expr.Call) (mqlast.Expr, error) {
	args, err := c.values(n.Args...)
	if err != nil {
		return nil, err
	}
	zero := mqlast.Value(int32(0))
	switch n.Tag() {
	case expr.StringsToLower:
		return mqlast.Op("$toLower", args[0]), nil
	case expr.StringsToUpper:
		return mqlast.Op("$toUpper", args[0]), nil
	case expr.StringsTrimSpace:
		return trimValue("$trim", args[0], nil), nil
	case expr.StringsTrim:
		return trimValue("$trim", args[0], args[1]), nil
	case expr.StringsTrimLeft:
		return trimValue("$ltrim", args[0], args[1]), nil
	case expr.StringsTrimRight:
		return trimValue("$rtrim", args[0], args[1]), nil
	case expr.StringsContains:
		return mqlast.Op("$gte", mqlast.Op("$indexOfCP", args[0], args[1]), zero), nil
	case expr.StringsHasPrefix:
		return mqlast.Op("$eq", mqlast.Op("$indexOfCP", args[0], args[1]), zero), nil
	case expr.StringsHasSuffix:
		lit, ok := stringConstant(n.Args[1])
		if !ok {
			return nil, mqlerrors.Unsupported(n, "suffix must be a constant")
		}
		return &mqlast.NamedOperator{Op: "$regexMatch", Args: []mqlast.Field{
			{Name: "input", Value: args[0]},
			{Name: "regex", Value: mqlast.Value(regexp.QuoteMeta(lit) + "$")},
			{Name: "options", Value: mqlast.Value("s")},
		}}, nil
	case expr.StringsEqualFold:
		return mqlast.Op("$eq", mqlast.Op("$strcasecmp", args[0], args[1]), zero), nil
	case expr.StringsIndex, expr.StringsIndexRune, expr.StringsIndexByte:
		if n.Tag() != expr.StringsIndex {
			// Search value is a character code.
			cc, ok := constantOf(n.Args[1])
			if !ok {
				return nil, mqlerrors.Unsupported(n, "character must be a constant")
			}
			args[1] = mqlast.Value(string(rune(toInt64(cc.Value))))
		}
		return mqlast.Op("$indexOfCP", args[0], args[1]), nil
	case expr.StringsIndexFrom:
		return mqlast.Op("$indexOfCP", args[0], args[1], args[2]), nil
	case expr.StringsIndexFromCount:
		end := mqlast.Op("$add", args[2], args[3])
		return mqlast.Op("$indexOfCP", args[0], args[1], args[2], end), nil
	case expr.StringsIndexFold:
		return mqlast.Op("$indexOfCP", mqlast.Op("$toLower", args[0]), mqlast.Op("$toLower", args[1])), nil
	case expr.StringsCompare, expr.CmpCompare:
		return mqlast.Op("$cmp", args[0], args[1]), nil
	case expr.StringsSplit:
		return mqlast.Op("$split", args[0], args[1]), nil
	}
	return nil, mqlerrors.Unsupported(n, "method cannot be translated")
}

func trimValue(op string, input, chars mqlast.Expr) mqlast.Expr {
	args := []mqlast.Field{{Name: "input", Value: input}}
	if chars != nil {
		args = append(args, mqlast.Field{Name: "chars", Value: chars})
	}
	return &mqlast.NamedOperator{Op: op, Args: args}
}

func (c *Context) newValue(n *expr.New) (mqlast.Expr, error) {
	s, err := c.serializerOf(n, n.Typ)
	if err != nil {
		return nil, err
	}
	doc, ok := serializer.AsDocument(s)
	if !ok {
		return nil, mqlerrors.Unsupportedf(n, "%s is not a document", n.Typ)
	}
	inits, err := newInits(n)
	if err != nil {
		return nil, err
	}

	fields := make([]mqlast.Field, 0, len(inits))
	for _, init := range inits {
		m, ok := c.fields.Member(doc, init.Name)
		if !ok {
			return nil, mqlerrors.Unsupportedf(n, "unknown member %q", init.Name)
		}
		var v mqlast.Expr
		if cc, ok := constantOf(init.Value); ok {
			v, err = c.constantValue(cc, m.Serializer)
		} else {
			v, err = c.Value(init.Value)
		}
		if err != nil {
			return nil, err
		}
		fields = append(fields, mqlast.Field{Name: m.ElementName, Value: v})
	}
	return &mqlast.Document{Fields: fields}, nil
}
