// Package serializer describes how Go values map to BSON document fields.
//
// Serializers are consulted by the query compiler to resolve field names
// and to convert literal values to their wire form.
package serializer

import (
	"reflect"
)

// Serializer converts values of some Go type to wire values.
type Serializer interface {
	// ValueType returns Go type of serialized values.
	ValueType() reflect.Type
	// Serialize converts v to a wire value.
	//
	// Result is one of: nil, bool, int32, int64, float64, string,
	// []byte, time.Time, bson.A or bson.D.
	Serialize(v any) (any, error)
}

// MemberInfo describes a document member.
type MemberInfo struct {
	// Name is a Go field name.
	Name string
	// ElementName is a name of the document field.
	ElementName string
	// Serializer is a serializer of the member value.
	Serializer Serializer
	// OmitEmpty is true if zero values are not stored.
	OmitEmpty bool

	index []int
}

// DocumentSerializer serializes values as documents.
type DocumentSerializer interface {
	Serializer
	// Member returns member by Go field name.
	Member(name string) (MemberInfo, bool)
}

// ArraySerializer serializes values as arrays.
type ArraySerializer interface {
	Serializer
	// Item returns serializer of array items.
	Item() Serializer
}

// Unwrapper is implemented by serializers that delegate to another one,
// like pointer serializers.
type Unwrapper interface {
	Unwrap() Serializer
}

// Underlying returns innermost serializer of s.
func Underlying(s Serializer) Serializer {
	for {
		u, ok := s.(Unwrapper)
		if !ok {
			return s
		}
		s = u.Unwrap()
	}
}

// AsDocument returns document serializer of s, if any.
func AsDocument(s Serializer) (DocumentSerializer, bool) {
	d, ok := Underlying(s).(DocumentSerializer)
	return d, ok
}

// AsArray returns array serializer of s, if any.
func AsArray(s Serializer) (ArraySerializer, bool) {
	a, ok := Underlying(s).(ArraySerializer)
	return a, ok
}

// AsEnum returns enum serializer of s, if any.
func AsEnum(s Serializer) (*Enum, bool) {
	e, ok := Underlying(s).(*Enum)
	return e, ok
}
