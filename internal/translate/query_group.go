package translate

import (
	"reflect"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/go-faster/mongoql/expr"
	"github.com/go-faster/mongoql/internal/mqlast"
	"github.com/go-faster/mongoql/mqlerrors"
	"github.com/go-faster/mongoql/serializer"
)

// pendingGroup is a $group stage produced by GroupBy.
type pendingGroup struct {
	stage    *mqlast.Group
	grouping *serializer.Grouping
	// element describes grouped documents.
	element serializer.Serializer
}

func (c *Context) groupBy(p *Pipeline, n *expr.Call) error {
	elem, err := resultElem(n)
	if err != nil {
		return err
	}
	cc, body, err := c.bindLambda(n.Args[1], Document(p.Output))
	if err != nil {
		return err
	}
	key, err := cc.Value(body)
	if err != nil {
		return err
	}
	keySerializer, err := cc.outputOf(body)
	if err != nil {
		return err
	}

	stage := &mqlast.Group{
		ID: key,
		Accumulators: []mqlast.Field{{
			Name:  serializer.GroupElementsElementName,
			Value: mqlast.Op("$push", mqlast.Root()),
		}},
	}
	g := serializer.NewGrouping(elem, keySerializer, p.Output)
	p.Append(stage)
	p.group = &pendingGroup{
		stage:    stage,
		grouping: g,
		element:  p.Output,
	}
	p.Output = g
	return nil
}

var accumulators = map[expr.MethodTag]string{
	expr.SeqSum:     "$sum",
	expr.SeqAverage: "$avg",
	expr.SeqMin:     "$min",
	expr.SeqMax:     "$max",
	expr.SeqFirst:   "$first",
}

// fuseGroupSelect merges projection of groups into the $group stage.
//
// Returns false if selector is not a composition of group key and
// accumulators over group elements.
func (c *Context) fuseGroupSelect(p *Pipeline, n *expr.Call, g *pendingGroup) (bool, error) {
	if p.Last() != mqlast.Stage(g.stage) {
		return false, nil
	}
	l, ok := expr.UnwrapLambda(n.Args[1])
	if !ok || len(l.Params) != 1 {
		return false, nil
	}
	nn, ok := l.Body.(*expr.New)
	if !ok {
		return false, nil
	}
	inits, err := newInits(nn)
	if err != nil {
		return false, nil
	}
	out, err := c.serializerOf(nn, nn.Typ)
	if err != nil {
		return false, err
	}
	doc, ok := serializer.AsDocument(out)
	if !ok {
		return false, nil
	}

	cc := c.With(l.Params[0], Document(g.grouping))
	var (
		accs    []mqlast.Field
		project []mqlast.ProjectField
		hasID   bool
	)
	for _, init := range inits {
		m, ok := c.fields.Member(doc, init.Name)
		if !ok {
			return false, nil
		}
		if isPlainPath(init.Value) {
			f, err := cc.ResolveField(init.Value)
			if err != nil || !isKeyPath(f.Path) {
				return false, nil
			}
			hasID = hasID || m.ElementName == "_id"
			project = append(project, mqlast.ProjectField{Name: m.ElementName, Value: mqlast.Path(f.Path)})
			continue
		}
		acc, ok, err := c.accumulator(init.Value, l.Params[0], g)
		if err != nil || !ok || m.ElementName == "_id" {
			// Not fusable, projection is translated over groups.
			return false, nil
		}
		accs = append(accs, mqlast.Field{Name: m.ElementName, Value: acc})
		project = append(project, mqlast.ProjectField{Name: m.ElementName, Value: mqlast.Path(m.ElementName)})
	}
	if !hasID {
		project = append(project, excludeID())
	}

	p.ReplaceLast(&mqlast.Group{ID: g.stage.ID, Accumulators: accs})
	p.Append(&mqlast.Project{Fields: project})
	p.Output = out
	return true, nil
}

func isKeyPath(path string) bool {
	return path == serializer.GroupKeyElementName ||
		strings.HasPrefix(path, serializer.GroupKeyElementName+".")
}

// accumulator translates aggregate over group elements, like Sum(g.Elements, f).
func (c *Context) accumulator(n expr.Node, group *expr.Parameter, g *pendingGroup) (mqlast.Expr, bool, error) {
	isElements := func(n expr.Node) bool {
		m, ok := n.(*expr.Member)
		return ok && m.Name == "Elements" && m.Inner == expr.Node(group)
	}
	element := mqlast.Root()
	if _, ok := serializer.IsWrapped(g.element); ok {
		element = mqlast.Path(serializer.WrappedElementName)
	}

	switch n := n.(type) {
	case *expr.Unary:
		if n.Op == expr.OpLen && isElements(n.Operand) {
			return mqlast.Op("$sum", mqlast.Value(int32(1))), true, nil
		}
	case *expr.Call:
		if len(n.Args) == 0 || !isElements(n.Args[0]) {
			break
		}
		if n.Tag() == expr.SeqCount {
			return mqlast.Op("$sum", mqlast.Value(int32(1))), true, nil
		}
		op, ok := accumulators[n.Tag()]
		if !ok {
			break
		}
		if len(n.Args) == 1 {
			return mqlast.Op(op, element), true, nil
		}
		v, err := c.ValueLambda(n.Args[1], g.element)
		if err != nil {
			return nil, false, err
		}
		return mqlast.Op(op, v), true, nil
	}
	return nil, false, nil
}

// newInits returns field initializers of composite literal,
// including fields set by constructor arguments.
func newInits(n *expr.New) ([]expr.FieldInit, error) {
	if len(n.Args) != len(n.ArgFields) {
		return nil, mqlerrors.Unsupported(n, "constructor arguments are not mapped to fields")
	}
	inits := make([]expr.FieldInit, 0, len(n.Args)+len(n.Fields))
	for i, arg := range n.Args {
		inits = append(inits, expr.Init(n.ArgFields[i], arg))
	}
	return append(inits, n.Fields...), nil
}

func (c *Context) lookup(p *Pipeline, n *expr.Call) error {
	elem, err := resultElem(n)
	if err != nil {
		return err
	}
	ref, ok := expr.IsCollection(n.Args[1])
	if !ok {
		return mqlerrors.Unsupported(n.Args[1], "lookup source must be a collection")
	}
	foreign, err := c.serializerOf(n.Args[1], n.Args[1].Type().Elem())
	if err != nil {
		return err
	}

	keyOf := func(fn expr.Node, s serializer.Serializer) (string, error) {
		cc, body, err := c.bindLambda(fn, Document(s))
		if err != nil {
			return "", err
		}
		f, err := cc.filterField(body)
		if err != nil {
			return "", err
		}
		if f.Path == "" {
			return "", mqlerrors.Unsupported(body, "lookup key must be a field")
		}
		return f.Path, nil
	}
	local, err := keyOf(n.Args[2], p.Output)
	if err != nil {
		return err
	}
	foreignField, err := keyOf(n.Args[3], foreign)
	if err != nil {
		return err
	}
	as, err := stringArg(n, 4)
	if err != nil {
		return err
	}
	asName, err := c.memberName(n, elem, as)
	if err != nil {
		return err
	}
	out, err := c.serializerOf(n, elem)
	if err != nil {
		return err
	}

	p.Append(&mqlast.Lookup{
		From:         ref.Name,
		LocalField:   local,
		ForeignField: foreignField,
		As:           asName,
	})
	p.Output = out
	return nil
}

func (c *Context) bucket(p *Pipeline, n *expr.Call) error {
	elem, err := resultElem(n)
	if err != nil {
		return err
	}
	cc, body, err := c.bindLambda(n.Args[1], Document(p.Output))
	if err != nil {
		return err
	}
	groupBy, err := cc.Value(body)
	if err != nil {
		return err
	}
	key, err := cc.outputOf(body)
	if err != nil {
		return err
	}

	bc, ok := constantOf(n.Args[2])
	if !ok || !expr.IsSequence(bc.Typ) {
		return mqlerrors.Unsupported(n.Args[2], "boundaries must be a constant slice")
	}
	rv := reflect.ValueOf(bc.Value)
	if bc.Value == nil || rv.Len() < 2 {
		return mqlerrors.Unsupported(n.Args[2], "at least two boundaries are required")
	}
	boundaries := make(bson.A, rv.Len())
	for i := range boundaries {
		v, err := c.filterValue(n, ResolvedField{Serializer: key}, rv.Index(i).Interface())
		if err != nil {
			return err
		}
		boundaries[i] = v
	}

	stage := &mqlast.Bucket{GroupBy: groupBy, Boundaries: boundaries}
	if len(n.Args) > 3 {
		dc, ok := constantOf(n.Args[3])
		if !ok {
			return mqlerrors.Unsupported(n.Args[3], "default bucket must be a constant")
		}
		v, err := c.constantValue(dc, nil)
		if err != nil {
			return err
		}
		stage.Default = v.(*mqlast.Constant).Value
		stage.HasDefault = true
	}
	out, err := c.serializerOf(n, elem)
	if err != nil {
		return err
	}
	p.Append(stage)
	p.Output = out
	return nil
}

func (c *Context) facet(p *Pipeline, n *expr.Call) error {
	elem, err := resultElem(n)
	if err != nil {
		return err
	}
	if (len(n.Args)-1)%2 != 0 {
		return mqlerrors.Unsupported(n, "facets must be pairs of name and pipeline")
	}
	stage := &mqlast.Facet{}
	for i := 1; i < len(n.Args); i += 2 {
		name, err := stringArg(n, i)
		if err != nil {
			return err
		}
		elementName, err := c.memberName(n, elem, name)
		if err != nil {
			return err
		}
		l, ok := expr.UnwrapLambda(n.Args[i+1])
		if !ok || len(l.Params) != 1 {
			return mqlerrors.Unsupported(n.Args[i+1], "expected function of one argument")
		}
		sub, err := c.query(l.Body, &querySource{param: l.Params[0], output: p.Output})
		if err != nil {
			return err
		}
		if sub.Collection != "" {
			return mqlerrors.Unsupported(l.Body, "facet must read its input")
		}
		stage.Facets = append(stage.Facets, mqlast.FacetPipeline{
			Name:     elementName,
			Pipeline: sub.Stages,
		})
	}
	out, err := c.serializerOf(n, elem)
	if err != nil {
		return err
	}
	p.Append(stage)
	p.Output = out
	return nil
}

var (
	whenMatched = map[expr.WhenMatched]mqlast.WhenMatched{
		expr.MergeDefault:      mqlast.WhenMatchedUnset,
		expr.MergeReplace:      mqlast.WhenMatchedReplace,
		expr.MergeKeepExisting: mqlast.WhenMatchedKeepExisting,
		expr.MergeMerge:        mqlast.WhenMatchedMerge,
		expr.MergeFail:         mqlast.WhenMatchedFail,
	}
	whenNotMatched = map[expr.WhenNotMatched]mqlast.WhenNotMatched{
		expr.InsertDefault: mqlast.WhenNotMatchedUnset,
		expr.InsertNew:     mqlast.WhenNotMatchedInsert,
		expr.InsertDiscard: mqlast.WhenNotMatchedDiscard,
		expr.InsertFail:    mqlast.WhenNotMatchedFail,
	}
)

func (c *Context) merge(p *Pipeline, n *expr.Call) error {
	into, ok := stringConstant(n.Args[1])
	if !ok {
		ref, isCollection := expr.IsCollection(n.Args[1])
		if !isCollection {
			return mqlerrors.Unsupported(n.Args[1], "merge target must be a collection name")
		}
		into = ref.Name
	}
	stage := &mqlast.Merge{Into: into}
	if len(n.Args) > 2 {
		oc, ok := constantOf(n.Args[2])
		if !ok {
			return mqlerrors.Unsupported(n.Args[2], "merge options must be a constant")
		}
		var opts expr.MergeOptions
		switch v := oc.Value.(type) {
		case expr.MergeOptions:
			opts = v
		case *expr.MergeOptions:
			if v != nil {
				opts = *v
			}
		default:
			return mqlerrors.Unsupportedf(n.Args[2], "unexpected merge options %T", oc.Value)
		}
		if stage.WhenMatched, ok = whenMatched[opts.WhenMatched]; !ok {
			return mqlerrors.Unsupportedf(n.Args[2], "unknown %s", opts.WhenMatched)
		}
		if stage.WhenNotMatched, ok = whenNotMatched[opts.WhenNotMatched]; !ok {
			return mqlerrors.Unsupportedf(n.Args[2], "unknown %s", opts.WhenNotMatched)
		}
		if len(opts.On) > 0 {
			doc, ok := serializer.AsDocument(p.Output)
			if !ok {
				return mqlerrors.Unsupported(n, "merge keys of non-document output")
			}
			for _, name := range opts.On {
				m, ok := c.fields.Member(doc, name)
				if !ok {
					return mqlerrors.Unsupportedf(n.Args[2], "unknown member %q", name)
				}
				stage.On = append(stage.On, m.ElementName)
			}
		}
	}
	p.Append(stage)
	return nil
}
