package expr

import (
	"cmp"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-faster/errors"
)

// MethodKind defines where method can be evaluated.
type MethodKind int

const (
	// KindHost is a method that can be evaluated locally.
	KindHost MethodKind = iota + 1
	// KindQuery is a query operator, it becomes a pipeline stage.
	KindQuery
	// KindServer is a method that is only translated, never evaluated.
	KindServer
)

// MethodTag identifies a recognized method.
type MethodTag int

const (
	MethodUnknown MethodTag = iota

	// Package strings.
	StringsContains
	StringsHasPrefix
	StringsHasSuffix
	StringsEqualFold
	StringsToLower
	StringsToUpper
	StringsTrimSpace
	StringsTrim
	StringsTrimLeft
	StringsTrimRight
	StringsIndex
	StringsIndexByte
	StringsIndexRune
	StringsIndexAny
	StringsIndexFrom
	StringsIndexFromCount
	StringsIndexFold
	StringsCompare
	StringsSplit
	CmpCompare

	// Sequences.
	SeqCount
	SeqFirst
	SeqContains
	SeqAny
	SeqSum
	SeqAverage
	SeqMin
	SeqMax

	// Package time.
	TimeNow
	TimeYear
	TimeMonth
	TimeDay
	TimeHour
	TimeMinute
	TimeSecond

	// Query operators.
	QueryWhere
	QuerySelect
	QuerySelectMany
	QueryOrderBy
	QueryOrderByDescending
	QueryThenBy
	QueryThenByDescending
	QuerySkip
	QueryTake
	QueryDistinct
	QueryGroupBy
	QueryUnionWith
	QuerySample
	QueryLookup
	QueryBucket
	QueryFacet
	QueryMerge
	QueryCount
	QueryFirst

	lastMethodTag
)

// Method describes a recognized method.
type Method struct {
	Tag  MethodTag
	Name string
	Kind MethodKind
	// Receiver is true if method is called on object.
	Receiver bool
	// MinArgs and MaxArgs define arity, MaxArgs < 0 means variadic.
	MinArgs int
	MaxArgs int

	result func(recv Node, args []Node) reflect.Type
	eval   func(recv reflect.Value, args []reflect.Value) (reflect.Value, error)
}

// String implements fmt.Stringer.
func (m *Method) String() string {
	return m.Name
}

// Evaluable whether method can be evaluated locally.
func (m *Method) Evaluable() bool {
	return m.Kind == KindHost && m.eval != nil
}

// ResultType returns type of call result.
func (m *Method) ResultType(recv Node, args []Node) reflect.Type {
	if m.result == nil {
		return nil
	}
	return m.result(recv, args)
}

// Eval calls method on host.
//
// Errors returned by the method itself are returned as is.
func (m *Method) Eval(recv reflect.Value, args []reflect.Value) (reflect.Value, error) {
	if !m.Evaluable() {
		return reflect.Value{}, errors.Errorf("method %s is not evaluable", m.Name)
	}
	return m.eval(recv, args)
}

func (m *Method) checkArity(n int) error {
	if n < m.MinArgs || (m.MaxArgs >= 0 && n > m.MaxArgs) {
		return errors.Errorf("%s: unexpected number of arguments %d", m.Name, n)
	}
	return nil
}

// LookupMethod returns registered method by tag.
func LookupMethod(tag MethodTag) (*Method, bool) {
	if tag <= MethodUnknown || tag >= lastMethodTag {
		return nil, false
	}
	m := methods[tag]
	return m, m != nil
}

// MustMethod returns registered method by tag or panics.
func MustMethod(tag MethodTag) *Method {
	m, ok := LookupMethod(tag)
	if !ok {
		panic(fmt.Sprintf("unknown method tag %d", tag))
	}
	return m
}

// methods is initialized once and never modified.
var methods = func() (r [lastMethodTag]*Method) {
	add := func(m *Method) {
		if r[m.Tag] != nil {
			panic(fmt.Sprintf("method %s registered twice", m.Name))
		}
		r[m.Tag] = m
	}

	for _, m := range []*Method{
		hostFunc(StringsContains, "strings.Contains", strings.Contains),
		hostFunc(StringsHasPrefix, "strings.HasPrefix", strings.HasPrefix),
		hostFunc(StringsHasSuffix, "strings.HasSuffix", strings.HasSuffix),
		hostFunc(StringsEqualFold, "strings.EqualFold", strings.EqualFold),
		hostFunc(StringsToLower, "strings.ToLower", strings.ToLower),
		hostFunc(StringsToUpper, "strings.ToUpper", strings.ToUpper),
		hostFunc(StringsTrimSpace, "strings.TrimSpace", strings.TrimSpace),
		hostFunc(StringsTrim, "strings.Trim", strings.Trim),
		hostFunc(StringsTrimLeft, "strings.TrimLeft", strings.TrimLeft),
		hostFunc(StringsTrimRight, "strings.TrimRight", strings.TrimRight),
		hostFunc(StringsIndex, "strings.Index", strings.Index),
		hostFunc(StringsIndexByte, "strings.IndexByte", strings.IndexByte),
		hostFunc(StringsIndexRune, "strings.IndexRune", strings.IndexRune),
		hostFunc(StringsIndexAny, "strings.IndexAny", strings.IndexAny),
		hostFunc(StringsIndexFrom, "expr.IndexFrom", IndexFrom),
		hostFunc(StringsIndexFromCount, "expr.IndexFromCount", IndexFromCount),
		hostFunc(StringsIndexFold, "expr.IndexFold", IndexFold),
		hostFunc(StringsCompare, "strings.Compare", strings.Compare),
		hostFunc(StringsSplit, "strings.Split", strings.Split),
		{
			Tag:     CmpCompare,
			Name:    "cmp.Compare",
			Kind:    KindHost,
			MinArgs: 2,
			MaxArgs: 2,
			result:  fixedType(reflect.TypeFor[int]()),
			eval:    evalCompare,
		},

		seqFunc(SeqCount, "expr.Count", 1, 1, fixedType(reflect.TypeFor[int]()), evalCount),
		seqFunc(SeqFirst, "expr.First", 1, 1, elemType, evalFirst),
		seqFunc(SeqContains, "expr.ContainsValue", 2, 2, fixedType(reflect.TypeFor[bool]()), evalContains),
		seqFunc(SeqAny, "expr.Any", 1, 2, fixedType(reflect.TypeFor[bool]()), evalAny),
		seqFunc(SeqSum, "expr.Sum", 1, 2, selectorOrElemType, evalSum),
		seqFunc(SeqAverage, "expr.Average", 1, 2, fixedType(reflect.TypeFor[float64]()), evalAverage),
		seqFunc(SeqMin, "expr.Min", 1, 2, selectorOrElemType, evalMinMax(-1)),
		seqFunc(SeqMax, "expr.Max", 1, 2, selectorOrElemType, evalMinMax(1)),

		{
			Tag:    TimeNow,
			Name:   "time.Now",
			Kind:   KindHost,
			result: fixedType(reflect.TypeFor[time.Time]()),
			eval: func(reflect.Value, []reflect.Value) (reflect.Value, error) {
				return reflect.ValueOf(time.Now()), nil
			},
		},
		timeMethod(TimeYear, "Year", reflect.TypeFor[int](), func(t time.Time) any { return t.Year() }),
		timeMethod(TimeMonth, "Month", reflect.TypeFor[time.Month](), func(t time.Time) any { return t.Month() }),
		timeMethod(TimeDay, "Day", reflect.TypeFor[int](), func(t time.Time) any { return t.Day() }),
		timeMethod(TimeHour, "Hour", reflect.TypeFor[int](), func(t time.Time) any { return t.Hour() }),
		timeMethod(TimeMinute, "Minute", reflect.TypeFor[int](), func(t time.Time) any { return t.Minute() }),
		timeMethod(TimeSecond, "Second", reflect.TypeFor[int](), func(t time.Time) any { return t.Second() }),

		queryOp(QueryWhere, "Where", 2, 2, sameType(0)),
		queryOp(QuerySelect, "Select", 2, 2, sliceOfLambdaResult(1)),
		queryOp(QuerySelectMany, "SelectMany", 2, 2, lambdaResult(1)),
		queryOp(QueryOrderBy, "OrderBy", 2, 2, sameType(0)),
		queryOp(QueryOrderByDescending, "OrderByDescending", 2, 2, sameType(0)),
		queryOp(QueryThenBy, "ThenBy", 2, 2, sameType(0)),
		queryOp(QueryThenByDescending, "ThenByDescending", 2, 2, sameType(0)),
		queryOp(QuerySkip, "Skip", 2, 2, sameType(0)),
		queryOp(QueryTake, "Take", 2, 2, sameType(0)),
		queryOp(QueryDistinct, "Distinct", 1, 1, sameType(0)),
		// Result type of following operators depends on caller, see CallTyped.
		queryOp(QueryGroupBy, "GroupBy", 2, 2, nil),
		queryOp(QueryUnionWith, "UnionWith", 2, 2, sameType(0)),
		queryOp(QuerySample, "Sample", 2, 2, sameType(0)),
		queryOp(QueryLookup, "Lookup", 5, 5, nil),
		queryOp(QueryBucket, "Bucket", 3, 4, nil),
		queryOp(QueryFacet, "Facet", 3, -1, nil),
		queryOp(QueryMerge, "Merge", 2, 3, sameType(0)),
		queryOp(QueryCount, "Count", 1, 1, fixedType(reflect.TypeFor[int]())),
		queryOp(QueryFirst, "First", 1, 1, elemType),
	} {
		add(m)
	}
	return r
}()

func fixedType(t reflect.Type) func(Node, []Node) reflect.Type {
	return func(Node, []Node) reflect.Type { return t }
}

func sameType(i int) func(Node, []Node) reflect.Type {
	return func(_ Node, args []Node) reflect.Type {
		if i >= len(args) {
			return nil
		}
		return args[i].Type()
	}
}

func elemType(_ Node, args []Node) reflect.Type {
	if len(args) == 0 {
		return nil
	}
	return sequenceElem(args[0].Type())
}

func lambdaResult(i int) func(Node, []Node) reflect.Type {
	return func(_ Node, args []Node) reflect.Type {
		if i >= len(args) {
			return nil
		}
		l, ok := args[i].(*Lambda)
		if !ok {
			return nil
		}
		return l.Body.Type()
	}
}

func sliceOfLambdaResult(i int) func(Node, []Node) reflect.Type {
	r := lambdaResult(i)
	return func(recv Node, args []Node) reflect.Type {
		t := r(recv, args)
		if t == nil {
			return nil
		}
		return reflect.SliceOf(t)
	}
}

func selectorOrElemType(recv Node, args []Node) reflect.Type {
	if len(args) == 2 {
		return lambdaResult(1)(recv, args)
	}
	return elemType(recv, args)
}

func sequenceElem(t reflect.Type) reflect.Type {
	if t == nil {
		return nil
	}
	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		return t.Elem()
	default:
		return nil
	}
}

// IsSequence whether t is a sequence type.
//
// Strings are not sequences.
func IsSequence(t reflect.Type) bool {
	return sequenceElem(t) != nil
}

func hostFunc(tag MethodTag, name string, f any) *Method {
	fv := reflect.ValueOf(f)
	ft := fv.Type()
	return &Method{
		Tag:     tag,
		Name:    name,
		Kind:    KindHost,
		MinArgs: ft.NumIn(),
		MaxArgs: ft.NumIn(),
		result:  fixedType(ft.Out(0)),
		eval: func(_ reflect.Value, args []reflect.Value) (reflect.Value, error) {
			in := make([]reflect.Value, len(args))
			for i, arg := range args {
				pt := ft.In(i)
				if !arg.IsValid() {
					return reflect.Value{}, errors.Errorf("%s: argument %d is nil", name, i)
				}
				if arg.Type() != pt {
					if !arg.Type().ConvertibleTo(pt) {
						return reflect.Value{}, errors.Errorf("%s: cannot use %s as %s", name, arg.Type(), pt)
					}
					arg = arg.Convert(pt)
				}
				in[i] = arg
			}
			return fv.Call(in)[0], nil
		},
	}
}

func seqFunc(
	tag MethodTag, name string,
	minArgs, maxArgs int,
	result func(Node, []Node) reflect.Type,
	eval func(reflect.Value, []reflect.Value) (reflect.Value, error),
) *Method {
	return &Method{
		Tag:     tag,
		Name:    name,
		Kind:    KindHost,
		MinArgs: minArgs,
		MaxArgs: maxArgs,
		result:  result,
		eval:    eval,
	}
}

func timeMethod(tag MethodTag, name string, result reflect.Type, f func(time.Time) any) *Method {
	return &Method{
		Tag:      tag,
		Name:     name,
		Kind:     KindHost,
		Receiver: true,
		result:   fixedType(result),
		eval: func(recv reflect.Value, _ []reflect.Value) (reflect.Value, error) {
			t, ok := recv.Interface().(time.Time)
			if !ok {
				return reflect.Value{}, errors.Errorf("%s: unexpected receiver %s", name, recv.Type())
			}
			return reflect.ValueOf(f(t)), nil
		},
	}
}

func queryOp(tag MethodTag, name string, minArgs, maxArgs int, result func(Node, []Node) reflect.Type) *Method {
	return &Method{
		Tag:     tag,
		Name:    name,
		Kind:    KindQuery,
		MinArgs: minArgs,
		MaxArgs: maxArgs,
		result:  result,
	}
}

func evalCompare(_ reflect.Value, args []reflect.Value) (reflect.Value, error) {
	a, b := args[0], args[1]
	if a.Type() != b.Type() {
		return reflect.Value{}, errors.Errorf("cmp.Compare: mismatched types %s and %s", a.Type(), b.Type())
	}
	var r int
	switch {
	case a.CanInt():
		r = cmp.Compare(a.Int(), b.Int())
	case a.CanUint():
		r = cmp.Compare(a.Uint(), b.Uint())
	case a.CanFloat():
		r = cmp.Compare(a.Float(), b.Float())
	case a.Kind() == reflect.String:
		r = cmp.Compare(a.String(), b.String())
	default:
		return reflect.Value{}, errors.Errorf("cmp.Compare: unordered type %s", a.Type())
	}
	return reflect.ValueOf(r), nil
}

func evalCount(_ reflect.Value, args []reflect.Value) (reflect.Value, error) {
	return reflect.ValueOf(args[0].Len()), nil
}

// ErrEmptySequence is returned by First on empty sequence.
var ErrEmptySequence = errors.New("sequence contains no elements")

func evalFirst(_ reflect.Value, args []reflect.Value) (reflect.Value, error) {
	if args[0].Len() == 0 {
		return reflect.Value{}, ErrEmptySequence
	}
	return args[0].Index(0), nil
}

func evalContains(_ reflect.Value, args []reflect.Value) (reflect.Value, error) {
	seq, v := args[0], args[1]
	for i := 0; i < seq.Len(); i++ {
		if reflect.DeepEqual(seq.Index(i).Interface(), v.Interface()) {
			return reflect.ValueOf(true), nil
		}
	}
	return reflect.ValueOf(false), nil
}

func evalAny(_ reflect.Value, args []reflect.Value) (reflect.Value, error) {
	if len(args) != 1 {
		return reflect.Value{}, errors.New("expr.Any: predicate is not evaluable")
	}
	return reflect.ValueOf(args[0].Len() > 0), nil
}

func toFloat(v reflect.Value) (float64, bool) {
	switch {
	case v.CanInt():
		return float64(v.Int()), true
	case v.CanUint():
		return float64(v.Uint()), true
	case v.CanFloat():
		return v.Float(), true
	default:
		return 0, false
	}
}

func evalSum(_ reflect.Value, args []reflect.Value) (reflect.Value, error) {
	if len(args) != 1 {
		return reflect.Value{}, errors.New("expr.Sum: selector is not evaluable")
	}
	seq := args[0]
	sum := reflect.New(seq.Type().Elem()).Elem()
	for i := 0; i < seq.Len(); i++ {
		e := seq.Index(i)
		switch {
		case e.CanInt():
			sum.SetInt(sum.Int() + e.Int())
		case e.CanUint():
			sum.SetUint(sum.Uint() + e.Uint())
		case e.CanFloat():
			sum.SetFloat(sum.Float() + e.Float())
		default:
			return reflect.Value{}, errors.Errorf("expr.Sum: non-numeric element %s", e.Type())
		}
	}
	return sum, nil
}

func evalAverage(_ reflect.Value, args []reflect.Value) (reflect.Value, error) {
	if len(args) != 1 {
		return reflect.Value{}, errors.New("expr.Average: selector is not evaluable")
	}
	seq := args[0]
	if seq.Len() == 0 {
		return reflect.Value{}, ErrEmptySequence
	}
	var sum float64
	for i := 0; i < seq.Len(); i++ {
		f, ok := toFloat(seq.Index(i))
		if !ok {
			return reflect.Value{}, errors.Errorf("expr.Average: non-numeric element %s", seq.Index(i).Type())
		}
		sum += f
	}
	return reflect.ValueOf(sum / float64(seq.Len())), nil
}

func evalMinMax(sign int) func(reflect.Value, []reflect.Value) (reflect.Value, error) {
	return func(_ reflect.Value, args []reflect.Value) (reflect.Value, error) {
		if len(args) != 1 {
			return reflect.Value{}, errors.New("selector is not evaluable")
		}
		seq := args[0]
		if seq.Len() == 0 {
			return reflect.Value{}, ErrEmptySequence
		}
		best := seq.Index(0)
		for i := 1; i < seq.Len(); i++ {
			e := seq.Index(i)
			c, err := evalCompare(reflect.Value{}, []reflect.Value{e, best})
			if err != nil {
				return reflect.Value{}, err
			}
			if int(c.Int())*sign > 0 {
				best = e
			}
		}
		return best, nil
	}
}
