// Package mongoql compiles Go expression trees over document types to
// MongoDB queries and aggregation pipelines.
package mongoql

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"

	"github.com/go-faster/mongoql/expr"
	"github.com/go-faster/mongoql/internal/mqlast"
	"github.com/go-faster/mongoql/internal/partialeval"
	"github.com/go-faster/mongoql/internal/translate"
	"github.com/go-faster/mongoql/mqlerrors"
	"github.com/go-faster/mongoql/serializer"
)

// Compiler translates expression trees.
//
// Compiler is safe for concurrent use.
type Compiler struct {
	registry    *serializer.Registry
	fieldNames  *translate.FieldNames
	partialEval bool
	logger      *zap.Logger

	tracer      trace.Tracer
	compiled    metric.Int64Counter
	unsupported metric.Int64Counter
	stages      metric.Int64Histogram
}

// NewCompiler creates new Compiler.
func NewCompiler(opts Options) (*Compiler, error) {
	if err := opts.validate(); err != nil {
		return nil, errors.Wrap(err, "validate options")
	}
	opts.setDefaults()

	meter := opts.MeterProvider.Meter("github.com/go-faster/mongoql")
	compiled, err := meter.Int64Counter("mongoql.compile.count",
		metric.WithDescription("Number of compiled expressions"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "compile counter")
	}
	unsupported, err := meter.Int64Counter("mongoql.compile.unsupported",
		metric.WithDescription("Number of expressions rejected as unsupported"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "unsupported counter")
	}
	stages, err := meter.Int64Histogram("mongoql.compile.stages",
		metric.WithDescription("Number of stages of compiled pipelines"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "stages histogram")
	}

	return &Compiler{
		registry:    opts.Registry,
		fieldNames:  opts.fieldNames,
		partialEval: !opts.DisablePartialEval,
		logger:      opts.Logger,
		tracer:      opts.TracerProvider.Tracer("mongoql.Compiler"),
		compiled:    compiled,
		unsupported: unsupported,
		stages:      stages,
	}, nil
}

// Result is a compiled aggregation pipeline.
type Result struct {
	// Collection is a name of the source collection.
	Collection string
	// Stages is a list of pipeline stages.
	Stages []bson.D
	// Output describes documents produced by the pipeline.
	Output serializer.Serializer
}

// String returns JSON representation of stages.
func (r *Result) String() string {
	return mqlast.FormatPipeline(r.Stages)
}

const (
	kindPipeline   = "pipeline"
	kindFilter     = "filter"
	kindExpression = "expression"
)

// Compile translates query tree to an aggregation pipeline.
func (c *Compiler) Compile(ctx context.Context, query expr.Node) (_ *Result, rerr error) {
	ctx, span := c.start(ctx, kindPipeline)
	defer func() {
		c.finish(ctx, span, kindPipeline, rerr)
	}()

	query, err := c.prepare(query)
	if err != nil {
		return nil, err
	}
	p, err := c.newContext().Query(query)
	if err != nil {
		return nil, err
	}
	if p.Collection == "" {
		return nil, mqlerrors.Unsupported(query, "query does not read a collection")
	}

	r := &Result{
		Collection: p.Collection,
		Stages:     p.Render(),
		Output:     p.Output,
	}
	c.stages.Record(ctx, int64(len(r.Stages)))
	span.SetAttributes(
		attribute.String("mongoql.collection", r.Collection),
		attribute.Int("mongoql.stages", len(r.Stages)),
	)
	c.log(ctx).Debug("Compiled pipeline",
		zap.String("collection", r.Collection),
		zap.Stringer("pipeline", r),
	)
	return r, nil
}

// CompileFilter translates predicate to a query filter document.
//
// Predicate must be a function of one document argument.
func (c *Compiler) CompileFilter(ctx context.Context, predicate *expr.Lambda) (_ bson.D, rerr error) {
	ctx, span := c.start(ctx, kindFilter)
	defer func() {
		c.finish(ctx, span, kindFilter, rerr)
	}()

	n, s, err := c.prepareLambda(predicate)
	if err != nil {
		return nil, err
	}
	f, err := c.newContext().FilterLambda(n, s)
	if err != nil {
		return nil, err
	}

	r := f.Render()
	c.log(ctx).Debug("Compiled filter", zap.String("filter", mqlast.Format(r)))
	return r, nil
}

// CompileExpression translates function to an aggregation expression.
//
// Function must be a function of one document argument.
func (c *Compiler) CompileExpression(ctx context.Context, fn *expr.Lambda) (_ any, rerr error) {
	ctx, span := c.start(ctx, kindExpression)
	defer func() {
		c.finish(ctx, span, kindExpression, rerr)
	}()

	n, s, err := c.prepareLambda(fn)
	if err != nil {
		return nil, err
	}
	v, err := c.newContext().ValueLambda(n, s)
	if err != nil {
		return nil, err
	}

	r := v.Render()
	c.log(ctx).Debug("Compiled expression", zap.String("expression", mqlast.Format(r)))
	return r, nil
}

func (c *Compiler) newContext() *translate.Context {
	return translate.NewContext(c.registry, c.fieldNames)
}

func (c *Compiler) prepare(n expr.Node) (expr.Node, error) {
	if n == nil {
		return nil, errors.New("nil expression")
	}
	if !c.partialEval {
		return n, nil
	}
	return partialeval.Evaluate(n)
}

func (c *Compiler) prepareLambda(l *expr.Lambda) (expr.Node, serializer.Serializer, error) {
	if l == nil {
		return nil, nil, errors.New("nil function")
	}
	if len(l.Params) != 1 {
		return nil, nil, mqlerrors.Unsupportedf(l, "expected function of one argument, got %d", len(l.Params))
	}
	s, err := c.registry.Lookup(l.Params[0].Typ)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "lookup serializer of %s", l.Params[0].Typ)
	}
	n, err := c.prepare(l)
	if err != nil {
		return nil, nil, err
	}
	return n, s, nil
}

func (c *Compiler) start(ctx context.Context, kind string) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, "mongoql.Compile",
		trace.WithAttributes(attribute.String("mongoql.kind", kind)),
	)
}

func (c *Compiler) finish(ctx context.Context, span trace.Span, kind string, err error) {
	attrs := metric.WithAttributes(attribute.String("mongoql.kind", kind))
	c.compiled.Add(ctx, 1, attrs)
	if err != nil {
		span.RecordError(err)
		var unsupported *mqlerrors.UnsupportedError
		if errors.As(err, &unsupported) {
			c.unsupported.Add(ctx, 1, attrs)
			c.log(ctx).Warn("Unsupported expression",
				zap.String("kind", kind),
				zap.String("expr", unsupported.Expr),
				zap.String("reason", unsupported.Reason),
			)
		}
	}
	span.End()
}

func (c *Compiler) log(ctx context.Context) *zap.Logger {
	if c.logger != nil {
		return c.logger
	}
	return zctx.From(ctx)
}
