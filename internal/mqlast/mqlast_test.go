package mqlast

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestFilterRender(t *testing.T) {
	tests := []struct {
		f    Filter
		want string
	}{
		{Eq("age", int32(21)), `{"age":{"$eq":21}}`},
		{&FieldFilter{Path: "tags", Op: &Size{N: 3}}, `{"tags":{"$size":3}}`},
		{&FieldFilter{Path: "n", Op: &Mod{Divisor: int64(4), Remainder: int64(1)}}, `{"n":{"$mod":[4,1]}}`},
		{&FieldFilter{Path: "name", Op: &Regex{Pattern: "^Al.*", Options: "s"}}, `{"name":{"$regex":"^Al.*","$options":"s"}}`},
		{&FieldFilter{Path: "tags.2", Op: &Exists{Exists: true}}, `{"tags.2":{"$exists":true}}`},
		{&FieldFilter{Path: "flags", Op: &Bits{Op: BitsAnySet, Mask: int64(6)}}, `{"flags":{"$bitsAnySet":6}}`},
		{&FieldFilter{Path: "c", Op: &In{Values: bson.A{"a", "b"}}}, `{"c":{"$in":["a","b"]}}`},
		{&FieldFilter{Path: "c", Op: &In{Negated: true}}, `{"c":{"$nin":[]}}`},
		{&MatchesNothing{}, `{"_id":{"$type":-1}}`},
		{&MatchesEverything{}, `{}`},
		{
			&Or{Filters: []Filter{Eq("a", int32(1)), Eq("b", int32(2))}},
			`{"$or":[{"a":{"$eq":1}},{"b":{"$eq":2}}]}`,
		},
		{
			&FieldFilter{Path: "tags", Op: &ElemMatch{Filter: &FieldFilter{Op: &Comparison{Op: CmpGt, Value: int32(1)}}}},
			`{"tags":{"$elemMatch":{"$gt":1}}}`,
		},
		{&ExprFilter{Expr: Op("$gt", Path("a"), Path("b"))}, `{"$expr":{"$gt":["$a","$b"]}}`},
	}
	for i, tt := range tests {
		tt := tt
		t.Run(fmt.Sprintf("Test%d", i+1), func(t *testing.T) {
			require.Equal(t, tt.want, Format(tt.f))
		})
	}
}

func TestNegate(t *testing.T) {
	tests := []struct {
		f    Filter
		want string
	}{
		{Eq("a", int32(1)), `{"a":{"$ne":1}}`},
		{Compare("a", CmpNe, int32(1)), `{"a":{"$eq":1}}`},
		{Compare("a", CmpGt, int32(1)), `{"a":{"$not":{"$gt":1}}}`},
		{&FieldFilter{Path: "tags", Op: &Size{N: 2}}, `{"tags":{"$not":{"$size":2}}}`},
		{&FieldFilter{Path: "tags.2", Op: &Exists{Exists: true}}, `{"tags.2":{"$exists":false}}`},
		{&FieldFilter{Path: "c", Op: &In{Values: bson.A{int32(1)}}}, `{"c":{"$nin":[1]}}`},
		{&FieldFilter{Path: "n", Op: &Regex{Pattern: "^a", Options: "s"}}, `{"n":{"$not":{"$regex":"^a","$options":"s"}}}`},
		{&MatchesNothing{}, `{}`},
		{&MatchesEverything{}, `{"_id":{"$type":-1}}`},
		{
			&Or{Filters: []Filter{Eq("a", int32(1)), Eq("b", int32(2))}},
			`{"$nor":[{"a":{"$eq":1}},{"b":{"$eq":2}}]}`,
		},
		{
			&And{Filters: []Filter{Eq("a", int32(1)), Eq("b", int32(2))}},
			`{"$nor":[{"$and":[{"a":{"$eq":1}},{"b":{"$eq":2}}]}]}`,
		},
		{&ExprFilter{Expr: Path("flag")}, `{"$expr":{"$not":"$flag"}}`},
	}
	for i, tt := range tests {
		tt := tt
		t.Run(fmt.Sprintf("Test%d", i+1), func(t *testing.T) {
			require.Equal(t, tt.want, Format(Negate(tt.f)))
		})
	}

	// Double negation.
	f := Compare("a", CmpLt, int32(3))
	require.Equal(t, Format(f), Format(Negate(Negate(f))))
}

func TestAndOrOf(t *testing.T) {
	a, b, c := Eq("a", int32(1)), Eq("b", int32(2)), Eq("c", int32(3))

	require.Equal(t, `{}`, Format(AndOf()))
	require.Equal(t, Format(a), Format(AndOf(a, &MatchesEverything{})))
	require.Equal(t, `{"_id":{"$type":-1}}`, Format(AndOf(a, &MatchesNothing{})))
	require.Equal(t,
		`{"$and":[{"a":{"$eq":1}},{"b":{"$eq":2}},{"c":{"$eq":3}}]}`,
		Format(AndOf(AndOf(a, b), c)),
	)

	require.Equal(t, `{"_id":{"$type":-1}}`, Format(OrOf()))
	require.Equal(t, `{}`, Format(OrOf(a, &MatchesEverything{})))
	require.Equal(t,
		`{"$or":[{"a":{"$eq":1}},{"b":{"$eq":2}},{"c":{"$eq":3}}]}`,
		Format(OrOf(a, OrOf(b, c))),
	)
}

func TestExprRender(t *testing.T) {
	tests := []struct {
		e    Expr
		want string
	}{
		{Path("a.b"), `"$a.b"`},
		{Root(), `"$$ROOT"`},
		{&Var{Name: "x.a"}, `"$$x.a"`},
		{Value("plain"), `"plain"`},
		{Value("$dollar"), `{"$literal":"$dollar"}`},
		{Value(bson.D{{Key: "$gt", Value: 1}}), `{"$literal":{"$gt":1}}`},
		{Value(bson.A{"a", "$b"}), `{"$literal":["a","$b"]}`},
		{&Literal{Value: int32(1)}, `{"$literal":1}`},
		{Op("$toLower", Path("name")), `{"$toLower":"$name"}`},
		{Op("$size", &Array{Elems: []Expr{Value(int32(1))}}), `{"$size":[[1]]}`},
		{Op("$size", Value(bson.A{int32(1), int32(2)})), `{"$size":[[1,2]]}`},
		{Op("$size", Value(bson.A{"$a"})), `{"$size":{"$literal":["$a"]}}`},
		{Op("$add", Path("a"), Value(int32(1))), `{"$add":["$a",1]}`},
		{
			Cond(Op("$gt", Path("a"), Value(int32(0))), Value("pos"), Value("neg")),
			`{"$cond":{"if":{"$gt":["$a",0]},"then":"pos","else":"neg"}}`,
		},
		{
			&NamedOperator{Op: "$trim", Args: []Field{{Name: "input", Value: Path("s")}, {Name: "chars", Value: Value("_")}}},
			`{"$trim":{"input":"$s","chars":"_"}}`,
		},
		{
			&Document{Fields: []Field{{Name: "n", Value: Path("name")}}},
			`{"n":"$name"}`,
		},
	}
	for i, tt := range tests {
		tt := tt
		t.Run(fmt.Sprintf("Test%d", i+1), func(t *testing.T) {
			require.Equal(t, tt.want, Format(tt.e))
		})
	}
}

func TestStageRender(t *testing.T) {
	tests := []struct {
		s    Stage
		want string
	}{
		{&Match{Filter: Eq("age", int32(21))}, `{"$match":{"age":{"$eq":21}}}`},
		{&Skip{N: 5}, `{"$skip":5}`},
		{&Limit{N: 10}, `{"$limit":10}`},
		{&Sort{Fields: []SortField{{Path: "age"}, {Path: "name", Desc: true}}}, `{"$sort":{"age":1,"name":-1}}`},
		{
			&Project{Fields: []ProjectField{
				{Name: "n", Value: Path("name")},
				{Name: "one", Value: Value(int32(1))},
				{Name: "ok", Value: Value(true)},
				{Name: "s", Value: Value("x")},
				{Name: "d", Value: &Document{Fields: []Field{{Name: "z", Value: Value(int64(0))}}}},
				{Name: "_id", Exclude: true},
			}},
			`{"$project":{"n":"$name","one":{"$literal":1},"ok":{"$literal":true},"s":"x","d":{"z":{"$literal":0}},"_id":0}}`,
		},
		{
			&Group{ID: Path("city"), Accumulators: []Field{{Name: "n", Value: Op("$sum", Value(int32(1)))}}},
			`{"$group":{"_id":"$city","n":{"$sum":1}}}`,
		},
		{&Unwind{Path: "tags"}, `{"$unwind":"$tags"}`},
		{
			&Unwind{Path: "tags", IncludeArrayIndex: "i", PreserveNullAndEmptyArrays: true},
			`{"$unwind":{"path":"$tags","includeArrayIndex":"i","preserveNullAndEmptyArrays":true}}`,
		},
		{&ReplaceRoot{NewRoot: Path("address")}, `{"$replaceRoot":{"newRoot":"$address"}}`},
		{&UnionWith{Collection: "other"}, `{"$unionWith":"other"}`},
		{
			&UnionWith{Collection: "other", Pipeline: []Stage{&Limit{N: 1}}},
			`{"$unionWith":{"coll":"other","pipeline":[{"$limit":1}]}}`,
		},
		{&Sample{Size: 3}, `{"$sample":{"size":3}}`},
		{
			&Lookup{From: "orders", LocalField: "_id", ForeignField: "user", As: "orders"},
			`{"$lookup":{"from":"orders","localField":"_id","foreignField":"user","as":"orders"}}`,
		},
		{
			&Bucket{GroupBy: Path("age"), Boundaries: bson.A{int32(0), int32(18)}},
			`{"$bucket":{"groupBy":"$age","boundaries":[0,18]}}`,
		},
		{
			&Bucket{
				GroupBy:    Path("age"),
				Boundaries: bson.A{int32(0), int32(18)},
				Default:    "other",
				HasDefault: true,
				Output:     []Field{{Name: "count", Value: Op("$sum", Value(int32(1)))}},
			},
			`{"$bucket":{"groupBy":"$age","boundaries":[0,18],"default":"other","output":{"count":{"$sum":1}}}}`,
		},
		{
			&Facet{Facets: []FacetPipeline{
				{Name: "first", Pipeline: []Stage{&Limit{N: 1}}},
				{Name: "all"},
			}},
			`{"$facet":{"first":[{"$limit":1}],"all":[]}}`,
		},
		{&Merge{Into: "out"}, `{"$merge":{"into":"out"}}`},
		{
			&Merge{Into: "out", On: []string{"a", "b"}, WhenMatched: WhenMatchedKeepExisting, WhenNotMatched: WhenNotMatchedDiscard},
			`{"$merge":{"into":"out","on":["a","b"],"whenMatched":"keepExisting","whenNotMatched":"discard"}}`,
		},
		{&Count{Field: "_v"}, `{"$count":"_v"}`},
	}
	for i, tt := range tests {
		tt := tt
		t.Run(fmt.Sprintf("Test%d", i+1), func(t *testing.T) {
			require.Equal(t, tt.want, Format(tt.s))
		})
	}
}

func TestPipeline(t *testing.T) {
	var p Pipeline
	require.Nil(t, p.Last())

	p.Append(&Match{Filter: Eq("a", int32(1))})
	p.Append(&Match{Filter: Eq("b", int32(2))})
	require.Len(t, p.Stages, 1)

	p.Append(&Skip{N: 5})
	p.Append(&Limit{N: 10})
	p.Append(&Match{Filter: Eq("c", int32(3))})
	require.Len(t, p.Stages, 4)

	clone := p.Clone()
	clone.ReplaceLast(&Limit{N: 1})
	require.IsType(t, &Match{}, p.Last())

	require.Equal(t,
		`[{"$match":{"$and":[{"a":{"$eq":1}},{"b":{"$eq":2}}]}},{"$skip":5},{"$limit":10},{"$match":{"c":{"$eq":3}}}]`,
		FormatPipeline(p.Render()),
	)
}
