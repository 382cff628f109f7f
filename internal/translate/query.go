package translate

import (
	"reflect"

	"github.com/go-faster/mongoql/expr"
	"github.com/go-faster/mongoql/internal/mqlast"
	"github.com/go-faster/mongoql/mqlerrors"
	"github.com/go-faster/mongoql/serializer"
)

// Pipeline is a translated query.
type Pipeline struct {
	// Collection is a name of the source collection.
	//
	// Empty for sub-pipelines of $facet.
	Collection string
	mqlast.Pipeline
	// Output describes documents produced by the pipeline.
	Output serializer.Serializer

	// group is the trailing $group stage a following Select may fuse into.
	group *pendingGroup
}

// querySource is a sequence parameter standing for the input of
// a sub-pipeline.
type querySource struct {
	param  *expr.Parameter
	output serializer.Serializer
}

// Query translates query tree to a pipeline.
func (c *Context) Query(n expr.Node) (*Pipeline, error) {
	return c.query(n, nil)
}

func (c *Context) query(n expr.Node, src *querySource) (*Pipeline, error) {
	switch n := n.(type) {
	case *expr.Constant:
		ref, ok := expr.IsCollection(n)
		if !ok {
			break
		}
		s, err := c.serializerOf(n, n.Typ.Elem())
		if err != nil {
			return nil, err
		}
		return &Pipeline{Collection: ref.Name, Output: s}, nil
	case *expr.Parameter:
		if src == nil || src.param != n {
			break
		}
		return &Pipeline{Output: src.output}, nil
	case *expr.Call:
		if n.Method == nil || n.Method.Kind != expr.KindQuery {
			break
		}
		p, err := c.query(n.Args[0], src)
		if err != nil {
			return nil, err
		}
		group := p.group
		p.group = nil
		if err := c.stage(p, n, group); err != nil {
			return nil, err
		}
		return p, nil
	}
	return nil, mqlerrors.Unsupported(n, "not a query")
}

// stage appends stages of query operator to p.
func (c *Context) stage(p *Pipeline, n *expr.Call, group *pendingGroup) error {
	switch n.Tag() {
	case expr.QueryWhere:
		return c.where(p, n)
	case expr.QuerySelect:
		if group != nil {
			ok, err := c.fuseGroupSelect(p, n, group)
			if err != nil || ok {
				return err
			}
		}
		return c.selectStage(p, n)
	case expr.QuerySelectMany:
		return c.selectMany(p, n)
	case expr.QueryOrderBy, expr.QueryOrderByDescending:
		field, err := c.sortField(p, n)
		if err != nil {
			return err
		}
		p.Append(&mqlast.Sort{Fields: []mqlast.SortField{field}})
		return nil
	case expr.QueryThenBy, expr.QueryThenByDescending:
		field, err := c.sortField(p, n)
		if err != nil {
			return err
		}
		prev, ok := p.Last().(*mqlast.Sort)
		if !ok {
			return mqlerrors.Unsupported(n, "ThenBy must follow OrderBy")
		}
		fields := append(append([]mqlast.SortField(nil), prev.Fields...), field)
		p.ReplaceLast(&mqlast.Sort{Fields: fields})
		return nil
	case expr.QuerySkip:
		v, err := countArg(n)
		if err != nil {
			return err
		}
		p.Append(&mqlast.Skip{N: v})
		return nil
	case expr.QueryTake:
		v, err := countArg(n)
		if err != nil {
			return err
		}
		p.Append(&mqlast.Limit{N: v})
		return nil
	case expr.QuerySample:
		v, err := countArg(n)
		if err != nil {
			return err
		}
		p.Append(&mqlast.Sample{Size: v})
		return nil
	case expr.QueryDistinct:
		c.distinct(p)
		return nil
	case expr.QueryGroupBy:
		return c.groupBy(p, n)
	case expr.QueryUnionWith:
		return c.unionWith(p, n)
	case expr.QueryLookup:
		return c.lookup(p, n)
	case expr.QueryBucket:
		return c.bucket(p, n)
	case expr.QueryFacet:
		return c.facet(p, n)
	case expr.QueryMerge:
		return c.merge(p, n)
	case expr.QueryCount:
		s, err := c.serializerOf(n, reflect.TypeFor[int64]())
		if err != nil {
			return err
		}
		p.Append(&mqlast.Count{Field: serializer.WrappedElementName})
		p.Output = serializer.NewWrapped(s)
		return nil
	case expr.QueryFirst:
		p.Append(&mqlast.Limit{N: 1})
		return nil
	}
	return mqlerrors.Unsupported(n, "unknown query operator")
}

func countArg(n *expr.Call) (int64, error) {
	cc, ok := constantOf(n.Args[1])
	if !ok || !isIntegral(cc.Typ) {
		return 0, mqlerrors.Unsupportedf(n, "argument of %s must be an integer constant", n.Method.Name)
	}
	v := toInt64(cc.Value)
	if v < 0 {
		return 0, mqlerrors.Unsupportedf(n, "negative argument of %s", n.Method.Name)
	}
	return v, nil
}

func (c *Context) where(p *Pipeline, n *expr.Call) error {
	f, err := c.FilterLambda(n.Args[1], p.Output)
	if err != nil {
		if !mqlerrors.IsUnsupported(err) {
			return err
		}
		// Predicate is not expressible as a query filter, try
		// aggregation expression.
		e, exprErr := c.ValueLambda(n.Args[1], p.Output)
		if exprErr != nil {
			return err
		}
		f = &mqlast.ExprFilter{Expr: e}
	}
	p.Append(&mqlast.Match{Filter: f})
	return nil
}

// outputOf returns serializer of lambda body value.
func (c *Context) outputOf(body expr.Node) (serializer.Serializer, error) {
	if isPlainPath(body) {
		if f, err := c.ResolveField(body); err == nil {
			return f.Serializer, nil
		}
	}
	return c.serializerOf(body, body.Type())
}

func excludeID() mqlast.ProjectField {
	return mqlast.ProjectField{Name: "_id", Exclude: true}
}

func (c *Context) selectStage(p *Pipeline, n *expr.Call) error {
	l, ok := expr.UnwrapLambda(n.Args[1])
	if !ok || len(l.Params) != 1 {
		return mqlerrors.Unsupported(n.Args[1], "expected function of one argument")
	}
	if l.Body == l.Params[0] {
		// Identity.
		return nil
	}
	cc := c.With(l.Params[0], Document(p.Output))

	if nn, ok := l.Body.(*expr.New); ok {
		v, err := cc.newValue(nn)
		if err != nil {
			return err
		}
		out, err := c.serializerOf(nn, nn.Typ)
		if err != nil {
			return err
		}
		doc := v.(*mqlast.Document)
		fields := make([]mqlast.ProjectField, 0, len(doc.Fields)+1)
		hasID := false
		for _, f := range doc.Fields {
			hasID = hasID || f.Name == "_id"
			fields = append(fields, mqlast.ProjectField{Name: f.Name, Value: f.Value})
		}
		if !hasID {
			fields = append(fields, excludeID())
		}
		p.Append(&mqlast.Project{Fields: fields})
		p.Output = out
		return nil
	}

	out, err := cc.outputOf(l.Body)
	if err != nil {
		return err
	}
	v, err := cc.Value(l.Body)
	if err != nil {
		return err
	}
	if _, ok := serializer.AsDocument(out); ok {
		p.Append(&mqlast.ReplaceRoot{NewRoot: v})
		p.Output = out
		return nil
	}
	p.Append(&mqlast.Project{Fields: []mqlast.ProjectField{
		{Name: serializer.WrappedElementName, Value: v},
		excludeID(),
	}})
	p.Output = serializer.NewWrapped(out)
	return nil
}

func (c *Context) selectMany(p *Pipeline, n *expr.Call) error {
	cc, body, err := c.bindLambda(n.Args[1], Document(p.Output))
	if err != nil {
		return err
	}
	field, err := cc.filterField(body)
	if err != nil {
		return err
	}
	arr, ok := serializer.AsArray(field.Serializer)
	if !ok || field.Path == "" {
		return mqlerrors.Unsupported(body, "not an array field")
	}
	item := arr.Item()

	p.Append(&mqlast.Unwind{Path: field.Path})
	if _, ok := serializer.AsDocument(item); ok {
		p.Append(&mqlast.ReplaceRoot{NewRoot: mqlast.Path(field.Path)})
		p.Output = item
		return nil
	}
	p.Append(&mqlast.Project{Fields: []mqlast.ProjectField{
		{Name: serializer.WrappedElementName, Value: mqlast.Path(field.Path)},
		excludeID(),
	}})
	p.Output = serializer.NewWrapped(item)
	return nil
}

func (c *Context) sortField(p *Pipeline, n *expr.Call) (mqlast.SortField, error) {
	cc, body, err := c.bindLambda(n.Args[1], Document(p.Output))
	if err != nil {
		return mqlast.SortField{}, err
	}
	field, err := cc.filterField(body)
	if err != nil {
		return mqlast.SortField{}, err
	}
	if field.Path == "" {
		return mqlast.SortField{}, mqlerrors.Unsupported(body, "cannot sort by the whole document")
	}
	desc := n.Tag() == expr.QueryOrderByDescending || n.Tag() == expr.QueryThenByDescending
	return mqlast.SortField{Path: field.Path, Desc: desc}, nil
}

func (c *Context) distinct(p *Pipeline) {
	if _, ok := serializer.IsWrapped(p.Output); ok {
		p.Append(&mqlast.Group{ID: mqlast.Path(serializer.WrappedElementName)})
		p.Append(&mqlast.Project{Fields: []mqlast.ProjectField{
			{Name: serializer.WrappedElementName, Value: mqlast.Path("_id")},
			excludeID(),
		}})
		return
	}
	p.Append(&mqlast.Group{ID: mqlast.Root()})
	p.Append(&mqlast.ReplaceRoot{NewRoot: mqlast.Path("_id")})
}

func (c *Context) unionWith(p *Pipeline, n *expr.Call) error {
	other, err := c.Query(n.Args[1])
	if err != nil {
		return err
	}
	if other.Collection == "" {
		return mqlerrors.Unsupported(n.Args[1], "union source must be a collection")
	}
	p.Append(&mqlast.UnionWith{
		Collection: other.Collection,
		Pipeline:   other.Stages,
	})
	return nil
}

// resultElem returns element type of query operator result.
func resultElem(n *expr.Call) (reflect.Type, error) {
	t := n.Type()
	if !expr.IsSequence(t) {
		return nil, mqlerrors.Unsupportedf(n, "result of %s is not a sequence", n.Method.Name)
	}
	return t.Elem(), nil
}

// memberName returns element name of Go field of document type t.
func (c *Context) memberName(n expr.Node, t reflect.Type, name string) (string, error) {
	s, err := c.serializerOf(n, t)
	if err != nil {
		return "", err
	}
	doc, ok := serializer.AsDocument(s)
	if !ok {
		return "", mqlerrors.Unsupportedf(n, "%s is not a document", t)
	}
	m, ok := c.fields.Member(doc, name)
	if !ok {
		return "", mqlerrors.Unsupportedf(n, "unknown member %q of %s", name, t)
	}
	return m.ElementName, nil
}

func stringArg(n *expr.Call, i int) (string, error) {
	s, ok := stringConstant(n.Args[i])
	if !ok {
		return "", mqlerrors.Unsupportedf(n.Args[i], "argument of %s must be a string constant", n.Method.Name)
	}
	return s, nil
}
