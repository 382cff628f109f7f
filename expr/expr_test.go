package expr

import (
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

type testAddress struct {
	City string
}

type testPerson struct {
	Name    string
	Age     int
	Tags    []string
	Address testAddress
	Born    time.Time
}

var personType = reflect.TypeFor[testPerson]()

func TestRewriteUnchanged(t *testing.T) {
	x := Param("x", personType)
	root := Func(
		AndAlso(
			Gt(Field(x, "Age"), Const(21)),
			CallOf(StringsHasPrefix, Field(x, "Name"), Const("Al")),
		),
		x,
	)

	got, err := Rewrite(RewriteFunc(func(n Node) (Node, error) {
		// Rebuild constants, value stays the same.
		if c, ok := n.(*Constant); ok {
			return &Constant{Value: c.Value, Typ: c.Typ}, nil
		}
		return n, nil
	}), root)
	require.NoError(t, err)
	// No child changed by value, so original root is kept.
	require.Same(t, root, got)
}

func TestRewriteReplace(t *testing.T) {
	x := Param("x", personType)
	age := Field(x, "Age")
	root := Func(Gt(age, Add(Const(20), Const(1))), x)

	got, err := Rewrite(RewriteFunc(func(n Node) (Node, error) {
		if b, ok := n.(*Binary); ok && b.Op == OpAdd {
			return Const(21), nil
		}
		return n, nil
	}), root)
	require.NoError(t, err)
	require.NotSame(t, root, got)

	l := got.(*Lambda)
	require.Equal(t, root.Params, l.Params)
	cmpNode := l.Body.(*Binary)
	require.Equal(t, OpGt, cmpNode.Op)
	require.Same(t, age, cmpNode.Left.(*Member))
	require.Equal(t, 21, cmpNode.Right.(*Constant).Value)
	require.Equal(t, "func(x) { return (x.Age > 21) }", got.String())
}

func TestRewriteOrder(t *testing.T) {
	x := Param("x", personType)
	var (
		a = Const("a")
		b = Const("b")
		c = Const("c")
		d = Const("d")
	)
	tests := []struct {
		root Node
		want []Node
	}{
		{CallOf(StringsHasPrefix, a, b), []Node{a, b}},
		{MethodCall(CallOf(TimeNow), TimeYear), nil},
		{Cond(Eq(a, b), c, d), []Node{a, b, c, d}},
		{
			&New{
				Ctor:      func(s string) testAddress { return testAddress{City: s} },
				Args:      []Node{c},
				ArgFields: []string{"City"},
				Fields:    []FieldInit{Init("City", d)},
				Typ:       reflect.TypeFor[testAddress](),
			},
			// Initializers first.
			[]Node{d, c},
		},
		{Func(Eq(Field(x, "Name"), a), x), []Node{a}},
	}
	for i, tt := range tests {
		tt := tt
		t.Run(fmt.Sprintf("Test%d", i+1), func(t *testing.T) {
			var got []Node
			_, err := Rewrite(RewriteFunc(func(n Node) (Node, error) {
				if c, ok := n.(*Constant); ok {
					got = append(got, c)
				}
				return n, nil
			}), tt.root)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestEqual(t *testing.T) {
	x := Param("x", personType)
	y := Param("y", personType)

	require.True(t, Equal(Field(x, "Age"), Field(x, "Age")))
	require.False(t, Equal(Field(x, "Age"), Field(y, "Age")))
	require.True(t, Equal(Const(1), Const(1)))
	require.False(t, Equal(Const(1), Const(int64(1))))
	require.True(t, Equal(
		CallOf(StringsContains, Field(x, "Name"), Const("a")),
		CallOf(StringsContains, Field(x, "Name"), Const("a")),
	))
	require.False(t, Equal(
		CallOf(StringsContains, Field(x, "Name"), Const("a")),
		CallOf(StringsHasPrefix, Field(x, "Name"), Const("a")),
	))
	require.True(t, Equal(nil, nil))
	require.False(t, Equal(nil, x))
}

func TestVisit(t *testing.T) {
	x := Param("x", personType)
	root := Func(AndAlso(
		Eq(Field(x, "Name"), Const("a")),
		Gt(Len(Field(x, "Tags")), Const(1)),
	), x)

	var members []string
	require.NoError(t, Visit(root, func(m *Member) error {
		members = append(members, m.Name)
		return nil
	}))
	require.Equal(t, []string{"Name", "Tags"}, members)
	require.True(t, Contains(root, x))
	require.False(t, Contains(root, Param("x", personType)))
}

func TestEval(t *testing.T) {
	tests := []struct {
		n    Node
		want any
	}{
		{Add(Const(20), Const(1)), 21},
		{Sub(Const(2.5), Const(0.5)), 2.0},
		{Mod(Const(10), Const(4)), 2},
		{BitAnd(Const(uint8(7)), Const(uint8(2))), uint8(2)},
		{Add(Const("foo"), Const("bar")), "foobar"},
		{Eq(Const("a"), Const("a")), true},
		{Lt(Const(1), Const(2)), true},
		{AndAlso(Const(false), Index(Const([]bool{}), Const(10))), false},
		{Not(Const(true)), false},
		{Neg(Const(3)), -3},
		{Len(Const("hello")), 5},
		{Convert(Const(3), reflect.TypeFor[float64]()), 3.0},
		{Field(Const(testPerson{Name: "Alice"}), "Name"), "Alice"},
		{Index(Const([]string{"a", "b"}), Const(1)), "b"},
		{Index(Const("abc"), Const(1)), byte('b')},
		{Cond(Const(true), Const(1), Const(2)), 1},
		{CallOf(StringsToUpper, Const("abc")), "ABC"},
		{CallOf(StringsIndexFrom, Const("abcabc"), Const("b"), Const(2)), 4},
		{CallOf(StringsIndexFold, Const("ABC"), Const("bc")), 1},
		{CallOf(SeqCount, Const([]int{1, 2, 3})), 3},
		{CallOf(SeqSum, Const([]int{1, 2, 3})), 6},
		{CallOf(SeqAverage, Const([]int{1, 2, 3})), 2.0},
		{CallOf(SeqMax, Const([]int{1, 3, 2})), 3},
		{CallOf(SeqContains, Const([]string{"a", "b"}), Const("b")), true},
		{CallOf(CmpCompare, Const(1), Const(2)), -1},
		{ListOf(reflect.TypeFor[int](), Const(1), Const(2)), []int{1, 2}},
		{InvokeFunc(Const(func(a int) int { return a * 2 }), Const(4)), 8},
		{
			NewStruct(personType, Init("Name", Const("Bob")), Init("Age", Const(3))),
			testPerson{Name: "Bob", Age: 3},
		},
	}
	for i, tt := range tests {
		tt := tt
		t.Run(fmt.Sprintf("Test%d", i+1), func(t *testing.T) {
			got, err := Eval(tt.n)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("Eval(%s) mismatch (-want +got):\n%s", tt.n, diff)
			}
		})
	}
}

func TestEvalErrors(t *testing.T) {
	hostErr := fmt.Errorf("host failure")
	x := Param("x", personType)

	_, err := Eval(Field(x, "Name"))
	require.Error(t, err)

	_, err = Eval(InvokeFunc(Const(func() (int, error) { return 0, hostErr })))
	// Host error is not wrapped.
	require.Same(t, hostErr, err)

	_, err = Eval(CallOf(SeqFirst, Const([]int{})))
	require.ErrorIs(t, err, ErrEmptySequence)
}

func TestString(t *testing.T) {
	x := Param("x", personType)
	tests := []struct {
		n    Node
		want string
	}{
		{Eq(Field(x, "Age"), Const(21)), "(x.Age == 21)"},
		{CallOf(StringsHasPrefix, Field(x, "Name"), Const("Al")), `strings.HasPrefix(x.Name, "Al")`},
		{Len(Field(x, "Tags")), "len(x.Tags)"},
		{Index(Field(x, "Name"), Const(0)), "x.Name[0]"},
		{Convert(Field(x, "Age"), reflect.TypeFor[int64]()), "int64(x.Age)"},
		{Collection("people", personType), `collection("people")`},
		{MethodCall(Field(x, "Born"), TimeYear), `x.Born.Year()`},
	}
	for i, tt := range tests {
		tt := tt
		t.Run(fmt.Sprintf("Test%d", i+1), func(t *testing.T) {
			require.Equal(t, tt.want, tt.n.String())
		})
	}
}
