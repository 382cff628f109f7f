package mqlast

import (
	"slices"

	"go.mongodb.org/mongo-driver/bson"
)

// Pipeline is a sequence of stages.
type Pipeline struct {
	Stages []Stage
}

// Append adds stage to the end of pipeline.
//
// Consecutive $match stages are fused into a single $match with $and.
func (p *Pipeline) Append(s Stage) {
	if m, ok := s.(*Match); ok {
		if prev, ok := p.Last().(*Match); ok {
			p.ReplaceLast(&Match{Filter: AndOf(prev.Filter, m.Filter)})
			return
		}
	}
	p.Stages = append(p.Stages, s)
}

// Last returns last stage, if any.
func (p *Pipeline) Last() Stage {
	if len(p.Stages) == 0 {
		return nil
	}
	return p.Stages[len(p.Stages)-1]
}

// ReplaceLast replaces last stage.
func (p *Pipeline) ReplaceLast(s Stage) {
	if len(p.Stages) == 0 {
		p.Stages = append(p.Stages, s)
		return
	}
	p.Stages[len(p.Stages)-1] = s
}

// Clone returns copy of pipeline.
func (p *Pipeline) Clone() *Pipeline {
	return &Pipeline{Stages: slices.Clone(p.Stages)}
}

// Render returns stage documents.
func (p *Pipeline) Render() []bson.D {
	r := make([]bson.D, len(p.Stages))
	for i, s := range p.Stages {
		r[i] = s.Render()
	}
	return r
}
