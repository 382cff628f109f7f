package serializer

import (
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/go-faster/errors"
	"golang.org/x/exp/constraints"
)

var timeType = reflect.TypeFor[time.Time]()

// Scalar serializes numbers, strings, booleans, byte slices and time.
type Scalar struct {
	typ reflect.Type
}

// NewScalar creates new [Scalar].
func NewScalar(t reflect.Type) *Scalar {
	return &Scalar{typ: t}
}

// ValueType implements [Serializer].
func (s *Scalar) ValueType() reflect.Type { return s.typ }

// Serialize implements [Serializer].
func (s *Scalar) Serialize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	return serializeScalar(reflect.ValueOf(v))
}

func isScalar(t reflect.Type) bool {
	if t == timeType {
		return true
	}
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.String:
		return true
	case reflect.Slice:
		return t.Elem().Kind() == reflect.Uint8
	default:
		return false
	}
}

func serializeScalar(v reflect.Value) (any, error) {
	if v.Type() == timeType {
		return v.Interface().(time.Time), nil
	}
	switch v.Kind() {
	case reflect.Bool:
		return v.Bool(), nil
	case reflect.Int8, reflect.Int16, reflect.Int32:
		return int32(v.Int()), nil
	case reflect.Int, reflect.Int64:
		return v.Int(), nil
	case reflect.Uint8, reflect.Uint16:
		return int32(v.Uint()), nil
	case reflect.Uint, reflect.Uint32, reflect.Uint64:
		return uintToInt64(v.Uint())
	case reflect.Float32, reflect.Float64:
		return v.Float(), nil
	case reflect.String:
		return v.String(), nil
	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			if v.IsNil() {
				return nil, nil
			}
			return v.Bytes(), nil
		}
	}
	return nil, errors.Errorf("unsupported scalar type %s", v.Type())
}

func uintToInt64[U constraints.Unsigned](u U) (int64, error) {
	if uint64(u) > math.MaxInt64 {
		return 0, errors.Errorf("value %d overflows int64", u)
	}
	return int64(u), nil
}

// Enum serializes named integer types implementing [fmt.Stringer].
type Enum struct {
	typ reflect.Type
	rep Representation
}

// Representation defines enum wire representation.
type Representation int

const (
	// RepInt stores enum as its numeric value.
	RepInt Representation = iota
	// RepString stores enum as its String() value.
	RepString
)

// String implements fmt.Stringer.
func (r Representation) String() string {
	switch r {
	case RepInt:
		return "int"
	case RepString:
		return "string"
	default:
		return fmt.Sprintf("<unknown representation %d>", int(r))
	}
}

var stringerType = reflect.TypeFor[fmt.Stringer]()

// IsEnum whether t is an enum type.
func IsEnum(t reflect.Type) bool {
	if t.Name() == "" || t.PkgPath() == "" {
		return false
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return t.Implements(stringerType)
	default:
		return false
	}
}

// NewEnum creates new [Enum].
func NewEnum(t reflect.Type, rep Representation) *Enum {
	return &Enum{typ: t, rep: rep}
}

// ValueType implements [Serializer].
func (s *Enum) ValueType() reflect.Type { return s.typ }

// Representation returns wire representation.
func (s *Enum) Representation() Representation { return s.rep }

// WithRepresentation returns copy of serializer with given representation.
func (s *Enum) WithRepresentation(rep Representation) *Enum {
	return &Enum{typ: s.typ, rep: rep}
}

// Underlying returns underlying numeric type of the enum.
func (s *Enum) Underlying() reflect.Type {
	return underlyingBasic(s.typ)
}

// Serialize implements [Serializer].
func (s *Enum) Serialize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Type() != s.typ {
		if !rv.Type().ConvertibleTo(s.typ) {
			return nil, errors.Errorf("cannot serialize %s as %s", rv.Type(), s.typ)
		}
		rv = rv.Convert(s.typ)
	}
	if s.rep == RepString {
		return rv.Interface().(fmt.Stringer).String(), nil
	}
	return serializeScalar(rv.Convert(s.Underlying()))
}

var basicTypes = map[reflect.Kind]reflect.Type{
	reflect.Int:     reflect.TypeFor[int](),
	reflect.Int8:    reflect.TypeFor[int8](),
	reflect.Int16:   reflect.TypeFor[int16](),
	reflect.Int32:   reflect.TypeFor[int32](),
	reflect.Int64:   reflect.TypeFor[int64](),
	reflect.Uint:    reflect.TypeFor[uint](),
	reflect.Uint8:   reflect.TypeFor[uint8](),
	reflect.Uint16:  reflect.TypeFor[uint16](),
	reflect.Uint32:  reflect.TypeFor[uint32](),
	reflect.Uint64:  reflect.TypeFor[uint64](),
	reflect.Float32: reflect.TypeFor[float32](),
	reflect.Float64: reflect.TypeFor[float64](),
	reflect.String:  reflect.TypeFor[string](),
	reflect.Bool:    reflect.TypeFor[bool](),
}

func underlyingBasic(t reflect.Type) reflect.Type {
	if b, ok := basicTypes[t.Kind()]; ok {
		return b
	}
	return t
}

// Dynamic serializes values of interface types as is.
type Dynamic struct {
	typ reflect.Type
}

// NewDynamic creates new [Dynamic].
func NewDynamic(t reflect.Type) *Dynamic {
	return &Dynamic{typ: t}
}

// ValueType implements [Serializer].
func (s *Dynamic) ValueType() reflect.Type { return s.typ }

// Serialize implements [Serializer].
func (s *Dynamic) Serialize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	rv := reflect.ValueOf(v)
	if isScalar(rv.Type()) {
		return serializeScalar(rv)
	}
	return v, nil
}

// Pointer serializes pointers using element serializer.
type Pointer struct {
	typ  reflect.Type
	elem Serializer
}

var _ Unwrapper = (*Pointer)(nil)

// NewPointer creates new [Pointer].
func NewPointer(t reflect.Type, elem Serializer) *Pointer {
	return &Pointer{typ: t, elem: elem}
}

// ValueType implements [Serializer].
func (s *Pointer) ValueType() reflect.Type { return s.typ }

// Unwrap implements [Unwrapper].
func (s *Pointer) Unwrap() Serializer { return s.elem }

// Serialize implements [Serializer].
func (s *Pointer) Serialize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, nil
		}
		rv = rv.Elem()
	}
	return s.elem.Serialize(rv.Interface())
}
