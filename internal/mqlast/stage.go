package mqlast

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
)

// Stage is an aggregation pipeline stage.
type Stage interface {
	// Name returns stage operator name, like "$match".
	Name() string
	// Render returns stage document.
	Render() bson.D
	stage()
}

func (*Match) stage()       {}
func (*Project) stage()     {}
func (*Group) stage()       {}
func (*Sort) stage()        {}
func (*Skip) stage()        {}
func (*Limit) stage()       {}
func (*Unwind) stage()      {}
func (*ReplaceRoot) stage() {}
func (*UnionWith) stage()   {}
func (*Sample) stage()      {}
func (*Lookup) stage()      {}
func (*Bucket) stage()      {}
func (*Facet) stage()       {}
func (*Merge) stage()       {}
func (*Count) stage()       {}

func stageDoc(name string, v any) bson.D {
	return bson.D{{Key: name, Value: v}}
}

// Match is a $match stage.
type Match struct {
	Filter Filter
}

// Name implements [Stage].
func (*Match) Name() string { return "$match" }

// Render implements [Stage].
func (s *Match) Render() bson.D { return stageDoc(s.Name(), s.Filter.Render()) }

// ProjectField is a $project specification field.
type ProjectField struct {
	Name string
	// Exclude renders field as 0.
	Exclude bool
	// Value is a computed value, nil means inclusion.
	Value Expr
}

// Project is a $project stage.
type Project struct {
	Fields []ProjectField
}

// Name implements [Stage].
func (*Project) Name() string { return "$project" }

// Render implements [Stage].
func (s *Project) Render() bson.D {
	body := make(bson.D, len(s.Fields))
	for i, f := range s.Fields {
		var v any
		switch {
		case f.Exclude:
			v = int32(0)
		case f.Value == nil:
			v = int32(1)
		default:
			v = renderProjected(f.Value)
		}
		body[i] = bson.E{Key: f.Name, Value: v}
	}
	return stageDoc(s.Name(), body)
}

// Group is a $group stage.
type Group struct {
	ID           Expr
	Accumulators []Field
}

// Name implements [Stage].
func (*Group) Name() string { return "$group" }

// Render implements [Stage].
func (s *Group) Render() bson.D {
	body := make(bson.D, 0, len(s.Accumulators)+1)
	body = append(body, bson.E{Key: "_id", Value: s.ID.Render()})
	body = append(body, renderFields(s.Accumulators)...)
	return stageDoc(s.Name(), body)
}

// SortField is a sort key.
type SortField struct {
	Path string
	Desc bool
}

// Sort is a $sort stage.
type Sort struct {
	Fields []SortField
}

// Name implements [Stage].
func (*Sort) Name() string { return "$sort" }

// Render implements [Stage].
func (s *Sort) Render() bson.D {
	body := make(bson.D, len(s.Fields))
	for i, f := range s.Fields {
		dir := int32(1)
		if f.Desc {
			dir = -1
		}
		body[i] = bson.E{Key: f.Path, Value: dir}
	}
	return stageDoc(s.Name(), body)
}

// Skip is a $skip stage.
type Skip struct {
	N int64
}

// Name implements [Stage].
func (*Skip) Name() string { return "$skip" }

// Render implements [Stage].
func (s *Skip) Render() bson.D { return stageDoc(s.Name(), s.N) }

// Limit is a $limit stage.
type Limit struct {
	N int64
}

// Name implements [Stage].
func (*Limit) Name() string { return "$limit" }

// Render implements [Stage].
func (s *Limit) Render() bson.D { return stageDoc(s.Name(), s.N) }

// Unwind is a $unwind stage.
type Unwind struct {
	Path                       string
	IncludeArrayIndex          string
	PreserveNullAndEmptyArrays bool
}

// Name implements [Stage].
func (*Unwind) Name() string { return "$unwind" }

// Render implements [Stage].
func (s *Unwind) Render() bson.D {
	path := "$" + s.Path
	if s.IncludeArrayIndex == "" && !s.PreserveNullAndEmptyArrays {
		return stageDoc(s.Name(), path)
	}
	body := bson.D{{Key: "path", Value: path}}
	if s.IncludeArrayIndex != "" {
		body = append(body, bson.E{Key: "includeArrayIndex", Value: s.IncludeArrayIndex})
	}
	if s.PreserveNullAndEmptyArrays {
		body = append(body, bson.E{Key: "preserveNullAndEmptyArrays", Value: true})
	}
	return stageDoc(s.Name(), body)
}

// ReplaceRoot is a $replaceRoot stage.
type ReplaceRoot struct {
	NewRoot Expr
}

// Name implements [Stage].
func (*ReplaceRoot) Name() string { return "$replaceRoot" }

// Render implements [Stage].
func (s *ReplaceRoot) Render() bson.D {
	return stageDoc(s.Name(), bson.D{{Key: "newRoot", Value: s.NewRoot.Render()}})
}

// UnionWith is a $unionWith stage.
type UnionWith struct {
	Collection string
	Pipeline   []Stage
}

// Name implements [Stage].
func (*UnionWith) Name() string { return "$unionWith" }

// Render implements [Stage].
func (s *UnionWith) Render() bson.D {
	if len(s.Pipeline) == 0 {
		return stageDoc(s.Name(), s.Collection)
	}
	return stageDoc(s.Name(), bson.D{
		{Key: "coll", Value: s.Collection},
		{Key: "pipeline", Value: renderStages(s.Pipeline)},
	})
}

// Sample is a $sample stage.
type Sample struct {
	Size int64
}

// Name implements [Stage].
func (*Sample) Name() string { return "$sample" }

// Render implements [Stage].
func (s *Sample) Render() bson.D {
	return stageDoc(s.Name(), bson.D{{Key: "size", Value: s.Size}})
}

// Lookup is a $lookup stage with equality match.
type Lookup struct {
	From         string
	LocalField   string
	ForeignField string
	As           string
}

// Name implements [Stage].
func (*Lookup) Name() string { return "$lookup" }

// Render implements [Stage].
func (s *Lookup) Render() bson.D {
	return stageDoc(s.Name(), bson.D{
		{Key: "from", Value: s.From},
		{Key: "localField", Value: s.LocalField},
		{Key: "foreignField", Value: s.ForeignField},
		{Key: "as", Value: s.As},
	})
}

// Bucket is a $bucket stage.
type Bucket struct {
	GroupBy    Expr
	Boundaries bson.A
	// Default is a bucket for values outside of boundaries.
	//
	// Omitted if HasDefault is false.
	Default    any
	HasDefault bool
	Output     []Field
}

// Name implements [Stage].
func (*Bucket) Name() string { return "$bucket" }

// Render implements [Stage].
func (s *Bucket) Render() bson.D {
	body := bson.D{
		{Key: "groupBy", Value: s.GroupBy.Render()},
		{Key: "boundaries", Value: s.Boundaries},
	}
	if s.HasDefault {
		body = append(body, bson.E{Key: "default", Value: s.Default})
	}
	if len(s.Output) > 0 {
		body = append(body, bson.E{Key: "output", Value: renderFields(s.Output)})
	}
	return stageDoc(s.Name(), body)
}

// FacetPipeline is a named $facet sub-pipeline.
type FacetPipeline struct {
	Name     string
	Pipeline []Stage
}

// Facet is a $facet stage.
type Facet struct {
	Facets []FacetPipeline
}

// Name implements [Stage].
func (*Facet) Name() string { return "$facet" }

// Render implements [Stage].
func (s *Facet) Render() bson.D {
	body := make(bson.D, len(s.Facets))
	for i, f := range s.Facets {
		body[i] = bson.E{Key: f.Name, Value: renderStages(f.Pipeline)}
	}
	return stageDoc(s.Name(), body)
}

// WhenMatched defines $merge behavior for matching documents.
type WhenMatched int

const (
	WhenMatchedUnset WhenMatched = iota
	WhenMatchedReplace
	WhenMatchedKeepExisting
	WhenMatchedMerge
	WhenMatchedFail
)

// String implements fmt.Stringer.
func (w WhenMatched) String() string {
	switch w {
	case WhenMatchedReplace:
		return "replace"
	case WhenMatchedKeepExisting:
		return "keepExisting"
	case WhenMatchedMerge:
		return "merge"
	case WhenMatchedFail:
		return "fail"
	default:
		return fmt.Sprintf("<unknown whenMatched %d>", int(w))
	}
}

// WhenNotMatched defines $merge behavior for new documents.
type WhenNotMatched int

const (
	WhenNotMatchedUnset WhenNotMatched = iota
	WhenNotMatchedInsert
	WhenNotMatchedDiscard
	WhenNotMatchedFail
)

// String implements fmt.Stringer.
func (w WhenNotMatched) String() string {
	switch w {
	case WhenNotMatchedInsert:
		return "insert"
	case WhenNotMatchedDiscard:
		return "discard"
	case WhenNotMatchedFail:
		return "fail"
	default:
		return fmt.Sprintf("<unknown whenNotMatched %d>", int(w))
	}
}

// Merge is a $merge stage.
type Merge struct {
	Into           string
	On             []string
	WhenMatched    WhenMatched
	WhenNotMatched WhenNotMatched
}

// Name implements [Stage].
func (*Merge) Name() string { return "$merge" }

// Render implements [Stage].
func (s *Merge) Render() bson.D {
	body := bson.D{{Key: "into", Value: s.Into}}
	switch len(s.On) {
	case 0:
	case 1:
		body = append(body, bson.E{Key: "on", Value: s.On[0]})
	default:
		on := make(bson.A, len(s.On))
		for i, f := range s.On {
			on[i] = f
		}
		body = append(body, bson.E{Key: "on", Value: on})
	}
	if s.WhenMatched != WhenMatchedUnset {
		body = append(body, bson.E{Key: "whenMatched", Value: s.WhenMatched.String()})
	}
	if s.WhenNotMatched != WhenNotMatchedUnset {
		body = append(body, bson.E{Key: "whenNotMatched", Value: s.WhenNotMatched.String()})
	}
	return stageDoc(s.Name(), body)
}

// Count is a $count stage.
type Count struct {
	Field string
}

// Name implements [Stage].
func (*Count) Name() string { return "$count" }

// Render implements [Stage].
func (s *Count) Render() bson.D { return stageDoc(s.Name(), s.Field) }

func renderStages(stages []Stage) bson.A {
	r := make(bson.A, len(stages))
	for i, s := range stages {
		r[i] = s.Render()
	}
	return r
}
