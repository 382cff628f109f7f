package translate

import (
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-faster/mongoql/expr"
	"github.com/go-faster/mongoql/internal/mqlast"
	"github.com/go-faster/mongoql/mqlerrors"
	"github.com/go-faster/mongoql/serializer"
)

type testColor int

const (
	colorRed testColor = iota + 1
	colorGreen
)

func (c testColor) String() string {
	switch c {
	case colorRed:
		return "Red"
	case colorGreen:
		return "Green"
	default:
		return fmt.Sprintf("testColor(%d)", int(c))
	}
}

type testAddress struct {
	City string
	Zip  string `bson:"zip_code"`
}

type testOrder struct {
	ID       int64 `bson:"_id"`
	PersonID int64
	Total    int
}

type testPerson struct {
	ID      int64 `bson:"_id"`
	Name    string
	Age     int
	N       int
	Flags   int
	Active  bool
	Tags    []string
	Color   testColor
	Shade   testColor `bson:",string"`
	Address testAddress
	Orders  []testOrder
	Born    time.Time
}

var (
	personType = reflect.TypeFor[testPerson]()
	orderType  = reflect.TypeFor[testOrder]()
)

func newTestContext() *Context {
	return NewContext(serializer.NewRegistry(serializer.Lower), NewFieldNames())
}

func compileFilter(t *testing.T, body func(x *expr.Parameter) expr.Node) (string, error) {
	t.Helper()

	c := newTestContext()
	x := expr.Param("x", personType)
	s, err := c.registry.Lookup(personType)
	require.NoError(t, err)

	f, err := c.FilterLambda(expr.Func(body(x), x), s)
	if err != nil {
		return "", err
	}
	return mqlast.Format(f), nil
}

func TestFilter(t *testing.T) {
	var (
		age    = func(x *expr.Parameter) expr.Node { return expr.Field(x, "Age") }
		name   = func(x *expr.Parameter) expr.Node { return expr.Field(x, "Name") }
		tags   = func(x *expr.Parameter) expr.Node { return expr.Field(x, "Tags") }
		flags  = func(x *expr.Parameter) expr.Node { return expr.Field(x, "Flags") }
		active = func(x *expr.Parameter) expr.Node { return expr.Field(x, "Active") }
		order  = expr.Param("o", orderType)
		tag    = expr.Param("t", reflect.TypeFor[string]())
	)
	tests := []struct {
		body func(x *expr.Parameter) expr.Node
		want string
	}{
		{
			func(x *expr.Parameter) expr.Node { return expr.Eq(age(x), expr.Const(21)) },
			`{"age":{"$eq":21}}`,
		},
		{
			func(x *expr.Parameter) expr.Node { return expr.Eq(expr.Const(21), age(x)) },
			`{"age":{"$eq":21}}`,
		},
		{
			func(x *expr.Parameter) expr.Node { return expr.Lt(expr.Const(21), age(x)) },
			`{"age":{"$gt":21}}`,
		},
		{
			func(x *expr.Parameter) expr.Node { return expr.Eq(expr.Len(tags(x)), expr.Const(3)) },
			`{"tags":{"$size":3}}`,
		},
		{
			func(x *expr.Parameter) expr.Node { return expr.NotEq(expr.Len(tags(x)), expr.Const(3)) },
			`{"tags":{"$not":{"$size":3}}}`,
		},
		{
			func(x *expr.Parameter) expr.Node { return expr.Gt(expr.CallOf(expr.SeqCount, tags(x)), expr.Const(2)) },
			`{"tags.2":{"$exists":true}}`,
		},
		{
			func(x *expr.Parameter) expr.Node { return expr.Lte(expr.Len(tags(x)), expr.Const(2)) },
			`{"tags.2":{"$exists":false}}`,
		},
		{
			func(x *expr.Parameter) expr.Node {
				return expr.Eq(expr.Mod(expr.Field(x, "N"), expr.Const(4)), expr.Const(1))
			},
			`{"n":{"$mod":[4,1]}}`,
		},
		{
			func(x *expr.Parameter) expr.Node {
				return expr.NotEq(expr.Mod(expr.Field(x, "N"), expr.Const(4)), expr.Const(1))
			},
			`{"n":{"$not":{"$mod":[4,1]}}}`,
		},
		{
			func(x *expr.Parameter) expr.Node { return expr.Eq(expr.BitAnd(flags(x), expr.Const(6)), expr.Const(0)) },
			`{"flags":{"$bitsAllClear":6}}`,
		},
		{
			func(x *expr.Parameter) expr.Node { return expr.Eq(expr.BitAnd(flags(x), expr.Const(6)), expr.Const(6)) },
			`{"flags":{"$bitsAllSet":6}}`,
		},
		{
			func(x *expr.Parameter) expr.Node { return expr.NotEq(expr.BitAnd(flags(x), expr.Const(6)), expr.Const(0)) },
			`{"flags":{"$bitsAnySet":6}}`,
		},
		{
			func(x *expr.Parameter) expr.Node { return expr.NotEq(expr.BitAnd(expr.Const(6), flags(x)), expr.Const(6)) },
			`{"flags":{"$bitsAnyClear":6}}`,
		},
		{
			func(x *expr.Parameter) expr.Node { return expr.CallOf(expr.StringsHasPrefix, name(x), expr.Const("Al")) },
			`{"name":{"$regex":"^Al.*","$options":"s"}}`,
		},
		{
			func(x *expr.Parameter) expr.Node { return active(x) },
			`{"active":{"$eq":true}}`,
		},
		{
			func(x *expr.Parameter) expr.Node { return expr.Not(active(x)) },
			`{"active":{"$ne":true}}`,
		},
		{
			func(x *expr.Parameter) expr.Node {
				return expr.AndAlso(expr.Gt(age(x), expr.Const(18)), expr.Eq(name(x), expr.Const("Bob")))
			},
			`{"$and":[{"age":{"$gt":18}},{"name":{"$eq":"Bob"}}]}`,
		},
		{
			func(x *expr.Parameter) expr.Node {
				return expr.Not(expr.OrElse(expr.Gt(age(x), expr.Const(18)), expr.Eq(name(x), expr.Const("Bob"))))
			},
			`{"$nor":[{"age":{"$gt":18}},{"name":{"$eq":"Bob"}}]}`,
		},
		{
			func(x *expr.Parameter) expr.Node { return expr.AndAlso(expr.Const(true), expr.Eq(age(x), expr.Const(1))) },
			`{"age":{"$eq":1}}`,
		},
		{
			func(x *expr.Parameter) expr.Node { return expr.CallOf(expr.SeqContains, expr.Const([]int{1, 2}), age(x)) },
			`{"age":{"$in":[1,2]}}`,
		},
		{
			func(x *expr.Parameter) expr.Node { return expr.CallOf(expr.SeqContains, tags(x), expr.Const("a")) },
			`{"tags":{"$eq":"a"}}`,
		},
		{
			func(x *expr.Parameter) expr.Node { return expr.CallOf(expr.SeqAny, tags(x)) },
			`{"tags.0":{"$exists":true}}`,
		},
		{
			func(x *expr.Parameter) expr.Node {
				return expr.CallOf(expr.SeqAny, expr.Field(x, "Orders"),
					expr.Func(expr.Gt(expr.Field(order, "Total"), expr.Const(10)), order),
				)
			},
			`{"orders":{"$elemMatch":{"total":{"$gt":10}}}}`,
		},
		{
			func(x *expr.Parameter) expr.Node {
				return expr.CallOf(expr.SeqAny, tags(x), expr.Func(expr.Eq(tag, expr.Const("a")), tag))
			},
			`{"tags":{"$elemMatch":{"$eq":"a"}}}`,
		},
		{
			func(x *expr.Parameter) expr.Node { return expr.Eq(expr.Path(x, "Address", "Zip"), expr.Const("75")) },
			`{"address.zip_code":{"$eq":"75"}}`,
		},
		{
			func(x *expr.Parameter) expr.Node { return expr.Eq(expr.CallOf(expr.SeqFirst, tags(x)), expr.Const("a")) },
			`{"tags.0":{"$eq":"a"}}`,
		},
		{
			func(x *expr.Parameter) expr.Node { return expr.Eq(expr.Index(tags(x), expr.Const(1)), expr.Const("b")) },
			`{"tags.1":{"$eq":"b"}}`,
		},
		{
			func(x *expr.Parameter) expr.Node { return expr.Const(false) },
			`{"_id":{"$type":-1}}`,
		},
		{
			func(x *expr.Parameter) expr.Node { return expr.Const(true) },
			`{}`,
		},
		{
			func(x *expr.Parameter) expr.Node {
				return expr.Eq(expr.CallOf(expr.StringsToUpper, name(x)), expr.Const("abc"))
			},
			`{"_id":{"$type":-1}}`,
		},
		{
			func(x *expr.Parameter) expr.Node {
				return expr.Lt(expr.CallOf(expr.StringsCompare, name(x), expr.Const("b")), expr.Const(0))
			},
			`{"name":{"$lt":"b"}}`,
		},
		{
			func(x *expr.Parameter) expr.Node {
				return expr.Gte(expr.CallOf(expr.CmpCompare, age(x), expr.Const(3)), expr.Const(0))
			},
			`{"age":{"$gte":3}}`,
		},
		{
			func(x *expr.Parameter) expr.Node {
				return expr.Eq(expr.Convert(expr.Field(x, "Color"), reflect.TypeFor[int]()), expr.Const(2))
			},
			`{"color":{"$eq":2}}`,
		},
		{
			func(x *expr.Parameter) expr.Node { return expr.Eq(expr.Field(x, "Color"), expr.Const(colorGreen)) },
			`{"color":{"$eq":2}}`,
		},
		{
			func(x *expr.Parameter) expr.Node { return expr.Eq(expr.Field(x, "Shade"), expr.Const(colorRed)) },
			`{"shade":{"$eq":"Red"}}`,
		},
		{
			func(x *expr.Parameter) expr.Node { return expr.Eq(expr.Field(x, "ID"), expr.Const(int64(7))) },
			`{"_id":{"$eq":7}}`,
		},
	}
	for i, tt := range tests {
		tt := tt
		t.Run(fmt.Sprintf("Test%d", i+1), func(t *testing.T) {
			got, err := compileFilter(t, tt.body)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestFilterUnsupported(t *testing.T) {
	var (
		age  = func(x *expr.Parameter) expr.Node { return expr.Field(x, "Age") }
		name = func(x *expr.Parameter) expr.Node { return expr.Field(x, "Name") }
	)
	tests := []func(x *expr.Parameter) expr.Node{
		func(x *expr.Parameter) expr.Node { return expr.Eq(age(x), expr.Field(x, "N")) },
		func(x *expr.Parameter) expr.Node {
			return expr.Gt(expr.Mod(expr.Field(x, "N"), expr.Const(4)), expr.Const(1))
		},
		func(x *expr.Parameter) expr.Node {
			return expr.Eq(expr.Mod(expr.Field(x, "N"), expr.Const(int64(4))), expr.Const(1))
		},
		func(x *expr.Parameter) expr.Node {
			return expr.Eq(expr.BitAnd(expr.Field(x, "Flags"), expr.Const(6)), expr.Const(2))
		},
		func(x *expr.Parameter) expr.Node {
			return expr.Eq(expr.CallOf(expr.StringsCompare, name(x), expr.Const("a")), expr.Const(1))
		},
		func(x *expr.Parameter) expr.Node {
			return expr.Lt(expr.CallOf(expr.StringsToUpper, name(x)), expr.Const("A"))
		},
		func(x *expr.Parameter) expr.Node {
			return expr.Eq(expr.Len(expr.CallOf(expr.StringsTrimSpace, name(x))), expr.Const(2))
		},
		func(x *expr.Parameter) expr.Node {
			return expr.Eq(expr.CallOf(expr.StringsIndexFrom, name(x), expr.Const("a"), expr.Const(-1)), expr.Const(1))
		},
		func(x *expr.Parameter) expr.Node {
			return expr.Eq(expr.Index(name(x), expr.Const(-1)), expr.Const(byte('a')))
		},
		func(x *expr.Parameter) expr.Node {
			return expr.Gt(expr.CallOf(expr.StringsIndex, name(x), expr.Const("a")), expr.Const(1))
		},
		func(x *expr.Parameter) expr.Node {
			return expr.Eq(expr.Index(expr.Field(x, "Tags"), expr.Const(-1)), expr.Const("a"))
		},
		func(x *expr.Parameter) expr.Node {
			return expr.Eq(expr.Convert(expr.Field(x, "Name"), reflect.TypeFor[[]byte]()), expr.Const([]byte("a")))
		},
		func(x *expr.Parameter) expr.Node { return age(x) },
		// Trims of letters do not commute with case conversion.
		func(x *expr.Parameter) expr.Node {
			trimmed := expr.CallOf(expr.StringsTrimLeft, name(x), expr.Const("a"))
			return expr.Eq(expr.CallOf(expr.StringsToLower, trimmed), expr.Const("b"))
		},
		func(x *expr.Parameter) expr.Node {
			lower := expr.CallOf(expr.StringsToLower, name(x))
			return expr.Eq(expr.CallOf(expr.StringsTrimLeft, lower, expr.Const("A")), expr.Const("b"))
		},
		func(x *expr.Parameter) expr.Node {
			trimmed := expr.CallOf(expr.StringsTrim, name(x), expr.Const("a"))
			return expr.CallOf(expr.StringsEqualFold, trimmed, expr.Const("b"))
		},
	}
	for i, body := range tests {
		body := body
		t.Run(fmt.Sprintf("Test%d", i+1), func(t *testing.T) {
			_, err := compileFilter(t, body)
			require.Error(t, err)
			require.True(t, mqlerrors.IsUnsupported(err), "unexpected error %v", err)
		})
	}
}

func TestComparisonDetectorOrder(t *testing.T) {
	var (
		name  = func(x *expr.Parameter) expr.Node { return expr.Field(x, "Name") }
		tags  = func(x *expr.Parameter) expr.Node { return expr.Field(x, "Tags") }
		n     = func(x *expr.Parameter) expr.Node { return expr.Field(x, "N") }
		flags = func(x *expr.Parameter) expr.Node { return expr.Field(x, "Flags") }
	)
	tests := []struct {
		body func(x *expr.Parameter) expr.Node
		want string
		// Subtree and reason of expected error.
		errExpr   string
		errReason string
	}{
		{
			body: func(x *expr.Parameter) expr.Node { return expr.Eq(expr.Len(tags(x)), expr.Const(2)) },
			want: `{"tags":{"$size":2}}`,
		},
		{
			body: func(x *expr.Parameter) expr.Node {
				return expr.Gt(expr.CallOf(expr.SeqCount, tags(x)), expr.Const(1))
			},
			want: `{"tags.1":{"$exists":true}}`,
		},
		{
			// Strings are not arrays.
			body: func(x *expr.Parameter) expr.Node { return expr.Eq(expr.Len(name(x)), expr.Const(3)) },
			want: `{"name":{"$regex":"^.{3}$","$options":"s"}}`,
		},
		{
			body: func(x *expr.Parameter) expr.Node {
				return expr.Eq(expr.BitAnd(expr.Len(tags(x)), expr.Const(1)), expr.Const(0))
			},
			errExpr:   "len(x.Tags)",
			errReason: "not a field",
		},
		{
			body: func(x *expr.Parameter) expr.Node {
				return expr.Eq(expr.BitAnd(flags(x), expr.Const(6)), expr.Const(6))
			},
			want: `{"flags":{"$bitsAllSet":6}}`,
		},
		{
			body: func(x *expr.Parameter) expr.Node {
				return expr.Eq(expr.CallOf(expr.CmpCompare, expr.Len(tags(x)), expr.Const(2)), expr.Const(0))
			},
			want: `{"tags":{"$size":2}}`,
		},
		{
			body: func(x *expr.Parameter) expr.Node {
				return expr.Eq(expr.CallOf(expr.StringsCompare, name(x), expr.Const("a")), expr.Const(1))
			},
			errExpr:   `(strings.Compare(x.Name, "a") == 1)`,
			errReason: "compare result must be compared with zero",
		},
		{
			body: func(x *expr.Parameter) expr.Node {
				return expr.Lt(expr.Mod(n(x), expr.Const(4)), expr.Const(1))
			},
			errExpr:   "((x.N % 4) < 1)",
			errReason: "modulo can only be compared for equality",
		},
		{
			body: func(x *expr.Parameter) expr.Node {
				return expr.Eq(expr.Mod(expr.Len(tags(x)), expr.Const(2)), expr.Const(0))
			},
			errExpr:   "len(x.Tags)",
			errReason: "not a field",
		},
		{
			body: func(x *expr.Parameter) expr.Node {
				return expr.Eq(expr.CallOf(expr.StringsToLower, name(x)), expr.Const("a"))
			},
			want: `{"name":{"$regex":"^a$","$options":"is"}}`,
		},
		{
			// Direct comparison is the last resort.
			body: func(x *expr.Parameter) expr.Node { return expr.Eq(name(x), expr.Const("a")) },
			want: `{"name":{"$eq":"a"}}`,
		},
	}
	for i, tt := range tests {
		tt := tt
		t.Run(fmt.Sprintf("Test%d", i+1), func(t *testing.T) {
			got, err := compileFilter(t, tt.body)
			if tt.errReason == "" {
				require.NoError(t, err)
				require.Equal(t, tt.want, got)
				return
			}
			var unsupported *mqlerrors.UnsupportedError
			require.ErrorAs(t, err, &unsupported)
			require.Equal(t, tt.errExpr, unsupported.Expr)
			require.Equal(t, tt.errReason, unsupported.Reason)
		})
	}
}

func TestFilterErrorNamesSubtree(t *testing.T) {
	y := expr.Param("y", personType)
	_, err := compileFilter(t, func(x *expr.Parameter) expr.Node {
		return expr.AndAlso(
			expr.Eq(expr.Field(x, "Age"), expr.Const(1)),
			expr.Eq(expr.Field(y, "Age"), expr.Const(2)),
		)
	})
	require.Error(t, err)

	var unsupported *mqlerrors.UnsupportedError
	require.ErrorAs(t, err, &unsupported)
	require.Equal(t, "y", unsupported.Expr)
	require.Contains(t, err.Error(), `parameter "y" is not bound`)
}

func TestComparisonSymmetry(t *testing.T) {
	ops := []expr.BinaryOp{expr.OpEq, expr.OpNotEq, expr.OpLt, expr.OpLte, expr.OpGt, expr.OpGte}
	values := []any{0, 21, -5}
	boolType := reflect.TypeFor[bool]()
	for i, op := range ops {
		for j, v := range values {
			op, v := op, v
			t.Run(fmt.Sprintf("Test%d_%d", i+1, j+1), func(t *testing.T) {
				direct, err := compileFilter(t, func(x *expr.Parameter) expr.Node {
					return expr.BinaryOf(op, expr.Field(x, "Age"), expr.Const(v), boolType)
				})
				require.NoError(t, err)
				swapped, err := compileFilter(t, func(x *expr.Parameter) expr.Node {
					return expr.BinaryOf(op.Flip(), expr.Const(v), expr.Field(x, "Age"), boolType)
				})
				require.NoError(t, err)
				require.Equal(t, direct, swapped)
			})
		}
	}
}

func TestResolveField(t *testing.T) {
	c := newTestContext()
	s := c.registry.MustLookup(personType)
	x := expr.Param("x", personType)
	cc := c.With(x, Document(s))

	tests := []struct {
		n    expr.Node
		path string
		typ  reflect.Type
	}{
		{x, "", personType},
		{expr.Field(x, "Name"), "name", reflect.TypeFor[string]()},
		{expr.Field(x, "ID"), "_id", reflect.TypeFor[int64]()},
		{expr.Path(x, "Address", "Zip"), "address.zip_code", reflect.TypeFor[string]()},
		{expr.CallOf(expr.SeqFirst, expr.Field(x, "Orders")), "orders.0", orderType},
		{expr.Field(expr.Index(expr.Field(x, "Orders"), expr.Const(2)), "Total"), "orders.2.total", reflect.TypeFor[int]()},
		{expr.Convert(expr.Field(x, "Color"), reflect.TypeFor[int]()), "color", reflect.TypeFor[testColor]()},
		{expr.Convert(expr.Field(x, "Age"), reflect.TypeFor[float64]()), "age", reflect.TypeFor[float64]()},
	}
	for i, tt := range tests {
		tt := tt
		t.Run(fmt.Sprintf("Test%d", i+1), func(t *testing.T) {
			first, err := cc.ResolveField(tt.n)
			require.NoError(t, err)
			require.Equal(t, tt.path, first.Path)
			require.Equal(t, tt.typ, first.Serializer.ValueType())

			// Resolution is idempotent.
			second, err := cc.ResolveField(tt.n)
			require.NoError(t, err)
			require.Equal(t, first.Path, second.Path)
			require.Equal(t, first.Serializer, second.Serializer)
		})
	}
}

func TestResolveFieldWrapped(t *testing.T) {
	c := newTestContext()
	v := expr.Param("v", reflect.TypeFor[int]())
	cc := c.With(v, Document(serializer.NewWrapped(c.registry.MustLookup(v.Typ))))

	f, err := cc.ResolveField(v)
	require.NoError(t, err)
	require.Equal(t, "_v", f.Path)
	require.Equal(t, v.Typ, f.Serializer.ValueType())
}

func TestSymbolTable(t *testing.T) {
	var (
		x     = expr.Param("x", personType)
		y     = expr.Param("y", personType)
		table *SymbolTable
	)
	_, ok := table.Lookup(x)
	require.False(t, ok)

	outer := table.With(x, Variable("outer", nil))
	inner := outer.With(x, Variable("inner", nil)).With(y, Document(nil))

	sym, ok := inner.Lookup(x)
	require.True(t, ok)
	require.Equal(t, "$inner", sym.Name)

	sym, ok = outer.Lookup(x)
	require.True(t, ok)
	require.Equal(t, "$outer", sym.Name)

	_, ok = outer.Lookup(y)
	require.False(t, ok)

	cur, ok := inner.Current()
	require.True(t, ok)
	require.True(t, cur.IsCurrent)
}

func TestFieldNamesConcurrent(t *testing.T) {
	r := serializer.NewRegistry(serializer.Lower)
	doc, ok := serializer.AsDocument(r.MustLookup(personType))
	require.True(t, ok)

	const workers = 32
	var (
		cache = NewFieldNames()
		wg    sync.WaitGroup
		got   = make([]serializer.MemberInfo, workers)
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, ok := cache.Member(doc, "Address")
			if ok {
				got[i] = m
			}
		}(i)
	}
	wg.Wait()

	for _, m := range got {
		require.Equal(t, "address", m.ElementName)
		require.Equal(t, got[0].Serializer, m.Serializer)
	}

	_, ok = cache.Member(doc, "Unknown")
	require.False(t, ok)

	stats := cache.Stats()
	require.Equal(t, 1, stats.Entries)
	require.Equal(t, uint64(workers+1), stats.Hits+stats.Misses)
}
