package mqlast

import (
	"strings"

	"go.mongodb.org/mongo-driver/bson"
)

// Expr is an aggregation expression.
type Expr interface {
	// Render returns expression value.
	Render() any
	expr()
}

func (*FieldPath) expr()     {}
func (*Var) expr()           {}
func (*Constant) expr()      {}
func (*Literal) expr()       {}
func (*Operator) expr()      {}
func (*NamedOperator) expr() {}
func (*Document) expr()      {}
func (*Array) expr()         {}

// FieldPath references a field of the current document, like "$a.b".
type FieldPath struct {
	Path string
}

// Render implements [Expr].
func (e *FieldPath) Render() any {
	return "$" + e.Path
}

// Var references a variable, like "$$ROOT".
type Var struct {
	Name string
}

// Render implements [Expr].
func (e *Var) Render() any {
	return "$$" + e.Name
}

// Constant is a constant value.
//
// Values that could be interpreted as expressions are wrapped in $literal.
type Constant struct {
	Value any
}

// Render implements [Expr].
func (e *Constant) Render() any {
	if needsLiteral(e.Value) {
		return bson.D{{Key: "$literal", Value: e.Value}}
	}
	return e.Value
}

func needsLiteral(v any) bool {
	switch v := v.(type) {
	case string:
		return strings.HasPrefix(v, "$")
	case bson.D:
		for _, f := range v {
			if strings.HasPrefix(f.Key, "$") || needsLiteral(f.Value) {
				return true
			}
		}
	case bson.A:
		for _, e := range v {
			if needsLiteral(e) {
				return true
			}
		}
	}
	return false
}

// Literal is a value always wrapped in $literal.
type Literal struct {
	Value any
}

// Render implements [Expr].
func (e *Literal) Render() any {
	return bson.D{{Key: "$literal", Value: e.Value}}
}

// Operator is an expression operator with positional arguments,
// like {$add: [a, b]}.
type Operator struct {
	Op   string
	Args []Expr
}

// Render implements [Expr].
//
// A single argument is rendered bare unless it renders to an array,
// which the server would read as an argument list.
func (e *Operator) Render() any {
	if len(e.Args) == 1 {
		v := e.Args[0].Render()
		if _, isArray := v.(bson.A); !isArray {
			return bson.D{{Key: e.Op, Value: v}}
		}
		return bson.D{{Key: e.Op, Value: bson.A{v}}}
	}
	return bson.D{{Key: e.Op, Value: renderExprs(e.Args)}}
}

// NamedOperator is an expression operator with named arguments,
// like {$trim: {input: a, chars: b}}.
type NamedOperator struct {
	Op   string
	Args []Field
}

// Render implements [Expr].
func (e *NamedOperator) Render() any {
	return bson.D{{Key: e.Op, Value: renderFields(e.Args)}}
}

// Field is a named expression.
type Field struct {
	Name  string
	Value Expr
}

// Document is a document expression.
type Document struct {
	Fields []Field
}

// Render implements [Expr].
func (e *Document) Render() any {
	return renderFields(e.Fields)
}

// Array is an array expression.
type Array struct {
	Elems []Expr
}

// Render implements [Expr].
func (e *Array) Render() any {
	return renderExprs(e.Elems)
}

func renderExprs(exprs []Expr) bson.A {
	r := make(bson.A, len(exprs))
	for i, e := range exprs {
		r[i] = e.Render()
	}
	return r
}

func renderFields(fields []Field) bson.D {
	r := make(bson.D, len(fields))
	for i, f := range fields {
		r[i] = bson.E{Key: f.Name, Value: f.Value.Render()}
	}
	return r
}

// renderProjected renders expression as a $project value.
//
// Numbers and booleans mean inclusion or exclusion in projections,
// so constants are always literal.
func renderProjected(e Expr) any {
	switch e := e.(type) {
	case *Constant:
		switch e.Value.(type) {
		case bool, int, int32, int64, float64:
			return bson.D{{Key: "$literal", Value: e.Value}}
		}
	case *Document:
		r := make(bson.D, len(e.Fields))
		for i, f := range e.Fields {
			r[i] = bson.E{Key: f.Name, Value: renderProjected(f.Value)}
		}
		return r
	}
	return e.Render()
}
