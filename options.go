package mongoql

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/go-faster/errors"

	"github.com/go-faster/mongoql/internal/translate"
	"github.com/go-faster/mongoql/serializer"
)

// Options sets Compiler options.
type Options struct {
	// Registry provides serializers of document types.
	//
	// If nil, registry with Naming convention is created.
	Registry *serializer.Registry

	// Naming is a naming convention of document fields.
	//
	// Must match convention of Registry, if both are set.
	Naming serializer.Convention

	// DisablePartialEval disables folding of host-closed subtrees.
	//
	// Query trees must contain only constants and parameters then.
	DisablePartialEval bool

	// Logger overrides logger from context.
	Logger *zap.Logger

	// TracerProvider provides OpenTelemetry tracer for this compiler.
	TracerProvider trace.TracerProvider
	// MeterProvider provides OpenTelemetry meter for this compiler.
	MeterProvider metric.MeterProvider

	fieldNames *translate.FieldNames
}

func (o *Options) setDefaults() {
	if o.Registry == nil {
		if o.Naming == serializer.Lower {
			o.Registry = serializer.Default()
		} else {
			o.Registry = serializer.NewRegistry(o.Naming)
		}
	}
	if o.TracerProvider == nil {
		o.TracerProvider = otel.GetTracerProvider()
	}
	if o.MeterProvider == nil {
		o.MeterProvider = otel.GetMeterProvider()
	}
	if o.fieldNames == nil {
		o.fieldNames = translate.DefaultFieldNames()
	}
}

func (o Options) validate() (err error) {
	switch o.Naming {
	case serializer.Lower, serializer.SnakeCase, serializer.CamelCase, serializer.AsIs:
	default:
		err = multierr.Append(err, errors.Errorf("unknown naming convention %s", o.Naming))
	}
	if o.Registry != nil && o.Naming != serializer.Lower && o.Registry.Convention() != o.Naming {
		err = multierr.Append(err, errors.Errorf(
			"naming %s does not match registry naming %s", o.Naming, o.Registry.Convention(),
		))
	}
	return err
}
