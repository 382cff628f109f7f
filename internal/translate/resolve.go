package translate

import (
	"reflect"
	"strconv"

	"github.com/go-faster/mongoql/expr"
	"github.com/go-faster/mongoql/mqlerrors"
	"github.com/go-faster/mongoql/serializer"
)

// ResolveField resolves expression to a document field.
func (c *Context) ResolveField(n expr.Node) (ResolvedField, error) {
	switch n := n.(type) {
	case *expr.Parameter:
		sym, ok := c.symbols.Lookup(n)
		if !ok {
			return ResolvedField{}, mqlerrors.Unsupportedf(n, "parameter %q is not bound", n.Name)
		}
		if w, ok := serializer.IsWrapped(sym.Serializer); ok {
			return ResolvedField{
				Path:       joinPath(sym.Name, serializer.WrappedElementName),
				Serializer: w.Value,
			}, nil
		}
		return ResolvedField{Path: sym.Name, Serializer: sym.Serializer}, nil
	case *expr.Member:
		inner, err := c.ResolveField(n.Inner)
		if err != nil {
			return ResolvedField{}, err
		}
		doc, ok := serializer.AsDocument(inner.Serializer)
		if !ok {
			return ResolvedField{}, mqlerrors.Unsupportedf(n, "%s is not a document", n.Inner)
		}
		m, ok := c.fields.Member(doc, n.Name)
		if !ok {
			return ResolvedField{}, mqlerrors.Unsupportedf(n, "unknown member %q", n.Name)
		}
		return ResolvedField{
			Path:       joinPath(inner.Path, m.ElementName),
			Serializer: m.Serializer,
		}, nil
	case *expr.Unary:
		if n.Op != expr.OpConvert {
			break
		}
		inner, err := c.ResolveField(n.Operand)
		if err != nil {
			return ResolvedField{}, err
		}
		return c.resolveConvert(n, inner)
	case *expr.Call:
		if n.Tag() != expr.SeqFirst || len(n.Args) != 1 {
			break
		}
		return c.resolveElement(n, n.Args[0], 0)
	case *expr.Binary:
		if n.Op != expr.OpIndex {
			break
		}
		i, ok := n.Right.(*expr.Constant)
		if !ok || !isIntegral(i.Typ) || !expr.IsSequence(n.Left.Type()) {
			break
		}
		idx := toInt64(i.Value)
		if idx < 0 {
			return ResolvedField{}, mqlerrors.Unsupported(n, "negative index")
		}
		return c.resolveElement(n, n.Left, idx)
	}
	return ResolvedField{}, mqlerrors.Unsupported(n, "not a field")
}

func (c *Context) resolveElement(n, array expr.Node, idx int64) (ResolvedField, error) {
	container, err := c.ResolveField(array)
	if err != nil {
		return ResolvedField{}, err
	}
	arr, ok := serializer.AsArray(container.Serializer)
	if !ok {
		return ResolvedField{}, mqlerrors.Unsupportedf(n, "%s is not an array", array)
	}
	return ResolvedField{
		Path:       joinPath(container.Path, strconv.FormatInt(idx, 10)),
		Serializer: arr.Item(),
	}, nil
}

func (c *Context) resolveConvert(n *expr.Unary, inner ResolvedField) (ResolvedField, error) {
	from := inner.Serializer.ValueType()
	if from == n.Typ {
		return inner, nil
	}
	if e, ok := serializer.AsEnum(inner.Serializer); ok {
		if e.Underlying() != n.Typ {
			return ResolvedField{}, mqlerrors.Unsupportedf(n, "enum %s is not %s", from, n.Typ)
		}
		return ResolvedField{
			Path:       inner.Path,
			Serializer: e.WithRepresentation(serializer.RepInt),
		}, nil
	}
	if isNumeric(from) && isNumeric(n.Typ) {
		s, err := c.serializerOf(n, n.Typ)
		if err != nil {
			return ResolvedField{}, err
		}
		return ResolvedField{Path: inner.Path, Serializer: s}, nil
	}
	return ResolvedField{}, mqlerrors.Unsupportedf(n, "conversion from %s", from)
}

func isIntegral(t reflect.Type) bool {
	if t == nil {
		return false
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	default:
		return false
	}
}

func isNumeric(t reflect.Type) bool {
	if isIntegral(t) {
		return true
	}
	return t != nil && (t.Kind() == reflect.Float32 || t.Kind() == reflect.Float64)
}

func toInt64(v any) int64 {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint())
	default:
		return 0
	}
}

func constantOf(n expr.Node) (*expr.Constant, bool) {
	c, ok := n.(*expr.Constant)
	if !ok {
		return nil, false
	}
	if _, isCollection := expr.IsCollection(c); isCollection {
		return nil, false
	}
	return c, true
}
