package translate

import (
	"reflect"

	"github.com/go-faster/mongoql/expr"
	"github.com/go-faster/mongoql/mqlerrors"
	"github.com/go-faster/mongoql/serializer"
)

// Context holds translation state.
//
// Context is immutable, binding a symbol returns a new one.
type Context struct {
	registry *serializer.Registry
	fields   *FieldNames
	symbols  *SymbolTable
}

// NewContext creates new [Context].
//
// Nil arguments are replaced with process-wide defaults.
func NewContext(registry *serializer.Registry, fields *FieldNames) *Context {
	if registry == nil {
		registry = serializer.Default()
	}
	if fields == nil {
		fields = DefaultFieldNames()
	}
	return &Context{
		registry: registry,
		fields:   fields,
	}
}

// Symbols returns symbol table.
func (c *Context) Symbols() *SymbolTable {
	return c.symbols
}

// With returns copy of context with bound parameter.
func (c *Context) With(p *expr.Parameter, s Symbol) *Context {
	r := *c
	r.symbols = c.symbols.With(p, s)
	return &r
}

func (c *Context) serializerOf(n expr.Node, t reflect.Type) (serializer.Serializer, error) {
	s, err := c.registry.Lookup(t)
	if err != nil {
		return nil, mqlerrors.Unsupportedf(n, "no serializer: %s", err)
	}
	return s, nil
}

// bindLambda binds single lambda parameter to symbol.
func (c *Context) bindLambda(n expr.Node, s Symbol) (*Context, expr.Node, error) {
	l, ok := expr.UnwrapLambda(n)
	if !ok {
		return nil, nil, mqlerrors.Unsupported(n, "expected function literal")
	}
	if len(l.Params) != 1 {
		return nil, nil, mqlerrors.Unsupportedf(n, "expected function of one argument, got %d", len(l.Params))
	}
	return c.With(l.Params[0], s), l.Body, nil
}
