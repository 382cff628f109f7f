// Package translate compiles expression trees to MongoDB query IR.
package translate

import (
	"strings"

	"github.com/go-faster/mongoql/expr"
	"github.com/go-faster/mongoql/serializer"
)

// Symbol is a value bound to a lambda parameter.
type Symbol struct {
	// Name is a path prefix of the value.
	//
	// Empty name denotes the current document, names starting with "$"
	// denote expression variables.
	Name string
	// Serializer describes the value.
	Serializer serializer.Serializer
	// IsCurrent is true for the document flowing through the pipeline.
	IsCurrent bool
}

// Document returns symbol of the current document.
func Document(s serializer.Serializer) Symbol {
	return Symbol{Serializer: s, IsCurrent: true}
}

// Variable returns symbol of expression variable.
func Variable(name string, s serializer.Serializer) Symbol {
	return Symbol{Name: "$" + name, Serializer: s}
}

// SymbolTable is a persistent mapping of parameters to symbols.
//
// The nil table is empty.
type SymbolTable struct {
	parent *SymbolTable
	param  *expr.Parameter
	sym    Symbol
}

// With returns new table with given binding, t is not modified.
func (t *SymbolTable) With(p *expr.Parameter, s Symbol) *SymbolTable {
	return &SymbolTable{parent: t, param: p, sym: s}
}

// Lookup returns symbol bound to parameter.
//
// Innermost binding wins.
func (t *SymbolTable) Lookup(p *expr.Parameter) (Symbol, bool) {
	for ; t != nil; t = t.parent {
		if t.param == p {
			return t.sym, true
		}
	}
	return Symbol{}, false
}

// Current returns innermost current document symbol.
func (t *SymbolTable) Current() (Symbol, bool) {
	for ; t != nil; t = t.parent {
		if t.sym.IsCurrent {
			return t.sym, true
		}
	}
	return Symbol{}, false
}

// ResolvedField is a document field referenced by an expression.
type ResolvedField struct {
	// Path is a dotted field path.
	Path string
	// Serializer describes field value.
	Serializer serializer.Serializer
}

// IsVariable whether field is a path of an expression variable.
func (f ResolvedField) IsVariable() bool {
	return strings.HasPrefix(f.Path, "$")
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	if name == "" {
		return parent
	}
	return parent + "." + name
}
