package partialeval

import (
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-faster/mongoql/expr"
)

type testPerson struct {
	Name    string
	Age     int
	Address testAddress
}

type testAddress struct {
	City string
}

var personType = reflect.TypeFor[testPerson]()

func TestEvaluateClosesLiterals(t *testing.T) {
	x := expr.Param("x", personType)
	root := expr.Func(
		expr.Gt(
			expr.Field(x, "Age"),
			expr.Sub(expr.MethodCall(expr.CallOf(expr.TimeNow), expr.TimeYear), expr.Const(18)),
		),
		x,
	)

	got, err := Evaluate(root)
	require.NoError(t, err)

	body := got.(*expr.Lambda).Body.(*expr.Binary)
	require.Same(t, root.Body.(*expr.Binary).Left, body.Left)

	c, ok := body.Right.(*expr.Constant)
	require.True(t, ok, "right side should be folded, got %s", body.Right)
	require.Equal(t, reflect.TypeFor[int](), c.Typ)
	year := time.Now().Year()
	require.Contains(t, []int{year - 18, year - 17}, c.Value)
}

func TestEvaluate(t *testing.T) {
	x := expr.Param("x", personType)
	captured := "Al"
	people := expr.Collection("people", personType)

	tests := []struct {
		root expr.Node
		want string
	}{
		// Nothing to fold.
		{expr.Func(expr.Eq(expr.Field(x, "Age"), expr.Const(21)), x), "func(x) { return (x.Age == 21) }"},
		{
			expr.Func(expr.CallOf(expr.StringsHasPrefix, expr.Field(x, "Name"), expr.Add(expr.Const(captured), expr.Const("ice"))), x),
			`func(x) { return strings.HasPrefix(x.Name, "Alice") }`,
		},
		{
			expr.Func(expr.CallOf(expr.StringsHasPrefix, expr.CallOf(expr.StringsToUpper, expr.Field(x, "Name")), expr.CallOf(expr.StringsToUpper, expr.Const("al"))), x),
			`func(x) { return strings.HasPrefix(strings.ToUpper(x.Name), "AL") }`,
		},
		{
			expr.Func(expr.Eq(expr.Field(x, "Address"), expr.NewStruct(reflect.TypeFor[testAddress](), expr.Init("City", expr.Const("Paris")))), x),
			"func(x) { return (x.Address == {Paris}) }",
		},
		// Lambda without parameter references is kept, its body is folded.
		{expr.Func(expr.Add(expr.Const(1), expr.Const(2)), x), "func(x) { return 3 }"},
		// Query operators are never evaluated.
		{
			expr.CallOf(expr.QueryTake, people, expr.Mul(expr.Const(2), expr.Const(5))),
			`Take(collection("people"), 10)`,
		},
		{
			expr.CallOf(expr.QueryWhere, people, expr.Func(expr.Gt(expr.Field(x, "Age"), expr.Add(expr.Const(20), expr.Const(1))), x)),
			`Where(collection("people"), func(x) { return (x.Age > 21) })`,
		},
	}
	for i, tt := range tests {
		tt := tt
		t.Run(fmt.Sprintf("Test%d", i+1), func(t *testing.T) {
			got, err := Evaluate(tt.root)
			require.NoError(t, err)
			require.Equal(t, tt.want, got.String())
		})
	}
}

func TestEvaluateUnchanged(t *testing.T) {
	x := expr.Param("x", personType)
	root := expr.Func(expr.Eq(expr.Field(x, "Age"), expr.Const(21)), x)

	got, err := Evaluate(root)
	require.NoError(t, err)
	require.Same(t, root, got)
}

func TestEvaluateHostError(t *testing.T) {
	hostErr := fmt.Errorf("closure failed")
	x := expr.Param("x", personType)
	root := expr.Func(
		expr.Eq(
			expr.Field(x, "Age"),
			expr.InvokeFunc(expr.Const(func() (int, error) { return 0, hostErr })),
		),
		x,
	)

	_, err := Evaluate(root)
	require.Same(t, hostErr, err)
}

func TestNominate(t *testing.T) {
	x := expr.Param("x", personType)
	sum := expr.Add(expr.Const(1), expr.Const(2))
	age := expr.Field(x, "Age")
	cmp := expr.Gt(age, sum)
	root := expr.Func(cmp, x)

	set := map[expr.Node]struct{}{}
	require.False(t, nominate(root, set))

	for _, n := range []expr.Node{sum, sum.Left, sum.Right} {
		_, ok := set[n]
		require.True(t, ok, "%s should be nominated", n)
	}
	for _, n := range []expr.Node{x, age, cmp, root} {
		_, ok := set[n]
		require.False(t, ok, "%s should not be nominated", n)
	}
}
