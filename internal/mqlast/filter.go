// Package mqlast contains MongoDB query language intermediate representation.
package mqlast

import (
	"go.mongodb.org/mongo-driver/bson"
)

// Filter is a query filter, the argument of $match.
type Filter interface {
	// Render returns filter document.
	Render() bson.D
	filter()
}

func (*And) filter()               {}
func (*Or) filter()                {}
func (*Nor) filter()               {}
func (*FieldFilter) filter()       {}
func (*ExprFilter) filter()        {}
func (*MatchesNothing) filter()    {}
func (*MatchesEverything) filter() {}

// And is a $and filter.
type And struct {
	Filters []Filter
}

// Render implements [Filter].
func (f *And) Render() bson.D {
	return bson.D{{Key: "$and", Value: renderFilters(f.Filters)}}
}

// Or is a $or filter.
type Or struct {
	Filters []Filter
}

// Render implements [Filter].
func (f *Or) Render() bson.D {
	return bson.D{{Key: "$or", Value: renderFilters(f.Filters)}}
}

// Nor is a $nor filter.
type Nor struct {
	Filters []Filter
}

// Render implements [Filter].
func (f *Nor) Render() bson.D {
	return bson.D{{Key: "$nor", Value: renderFilters(f.Filters)}}
}

func renderFilters(filters []Filter) bson.A {
	r := make(bson.A, len(filters))
	for i, f := range filters {
		r[i] = f.Render()
	}
	return r
}

// FieldFilter applies operation to the field.
type FieldFilter struct {
	// Path is a dotted field path.
	//
	// Empty path means the current element, used by $elemMatch
	// over scalar arrays.
	Path string
	Op   FieldOp
}

// Render implements [Filter].
func (f *FieldFilter) Render() bson.D {
	if f.Path == "" {
		return f.Op.Render()
	}
	return bson.D{{Key: f.Path, Value: f.Op.Render()}}
}

// ExprFilter is a $expr filter.
type ExprFilter struct {
	Expr Expr
}

// Render implements [Filter].
func (f *ExprFilter) Render() bson.D {
	return bson.D{{Key: "$expr", Value: f.Expr.Render()}}
}

// MatchesNothing is a filter that never matches.
type MatchesNothing struct{}

// Render implements [Filter].
func (*MatchesNothing) Render() bson.D {
	return bson.D{{Key: "_id", Value: bson.D{{Key: "$type", Value: int32(-1)}}}}
}

// MatchesEverything is a filter that always matches.
type MatchesEverything struct{}

// Render implements [Filter].
func (*MatchesEverything) Render() bson.D {
	return bson.D{}
}

// Negate returns negation of filter.
func Negate(f Filter) Filter {
	switch f := f.(type) {
	case *MatchesNothing:
		return &MatchesEverything{}
	case *MatchesEverything:
		return &MatchesNothing{}
	case *Or:
		return &Nor{Filters: f.Filters}
	case *Nor:
		if len(f.Filters) == 1 {
			return f.Filters[0]
		}
		return &Or{Filters: f.Filters}
	case *FieldFilter:
		if f.Path == "" {
			// Operator document without path cannot be negated in place.
			return &Nor{Filters: []Filter{f}}
		}
		return &FieldFilter{Path: f.Path, Op: NegateOp(f.Op)}
	case *ExprFilter:
		return &ExprFilter{Expr: Op("$not", f.Expr)}
	default:
		return &Nor{Filters: []Filter{f}}
	}
}

// AndOf returns conjunction of filters, flattening nested $and.
func AndOf(filters ...Filter) Filter {
	var r []Filter
	for _, f := range filters {
		switch f := f.(type) {
		case *MatchesEverything:
			continue
		case *MatchesNothing:
			return f
		case *And:
			r = append(r, f.Filters...)
		default:
			r = append(r, f)
		}
	}
	switch len(r) {
	case 0:
		return &MatchesEverything{}
	case 1:
		return r[0]
	default:
		return &And{Filters: r}
	}
}

// OrOf returns disjunction of filters, flattening nested $or.
func OrOf(filters ...Filter) Filter {
	var r []Filter
	for _, f := range filters {
		switch f := f.(type) {
		case *MatchesNothing:
			continue
		case *MatchesEverything:
			return f
		case *Or:
			r = append(r, f.Filters...)
		default:
			r = append(r, f)
		}
	}
	switch len(r) {
	case 0:
		return &MatchesNothing{}
	case 1:
		return r[0]
	default:
		return &Or{Filters: r}
	}
}
