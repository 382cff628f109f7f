package serializer

import (
	"reflect"

	"github.com/go-faster/errors"
)

const (
	// WrappedElementName is the element name of wrapped scalar outputs.
	WrappedElementName = "_v"
	// GroupKeyElementName is the element name of grouping key.
	GroupKeyElementName = "_id"
	// GroupElementsElementName is the element name of grouped documents.
	GroupElementsElementName = "_elements"
)

// Wrapped describes a scalar stored as {_v: value}.
//
// Pipeline stages that produce non-document values wrap them.
type Wrapped struct {
	Value Serializer
}

// NewWrapped creates new [Wrapped].
func NewWrapped(value Serializer) *Wrapped {
	return &Wrapped{Value: value}
}

// ValueType implements [Serializer].
func (s *Wrapped) ValueType() reflect.Type { return s.Value.ValueType() }

// Serialize implements [Serializer].
func (s *Wrapped) Serialize(v any) (any, error) {
	return s.Value.Serialize(v)
}

// IsWrapped whether s describes wrapped values.
func IsWrapped(s Serializer) (*Wrapped, bool) {
	w, ok := s.(*Wrapped)
	return w, ok
}

// Grouping describes output of grouping stage: {_id: key, _elements: [...]}.
type Grouping struct {
	typ      reflect.Type
	key      Serializer
	elements Serializer
}

var _ DocumentSerializer = (*Grouping)(nil)

// NewGrouping creates new [Grouping].
//
// The typ must be a struct with Key and Elements fields.
func NewGrouping(typ reflect.Type, key, element Serializer) *Grouping {
	elemsType := reflect.SliceOf(element.ValueType())
	if f, ok := typ.FieldByName("Elements"); ok {
		elemsType = f.Type
	}
	return &Grouping{
		typ:      typ,
		key:      key,
		elements: NewArray(elemsType, element),
	}
}

// ValueType implements [Serializer].
func (s *Grouping) ValueType() reflect.Type { return s.typ }

// Key returns key serializer.
func (s *Grouping) Key() Serializer { return s.key }

// Elements returns grouped elements serializer.
func (s *Grouping) Elements() Serializer { return s.elements }

// Member implements [DocumentSerializer].
func (s *Grouping) Member(name string) (MemberInfo, bool) {
	switch name {
	case "Key":
		return MemberInfo{Name: name, ElementName: GroupKeyElementName, Serializer: s.key}, true
	case "Elements":
		return MemberInfo{Name: name, ElementName: GroupElementsElementName, Serializer: s.elements}, true
	default:
		return MemberInfo{}, false
	}
}

// Serialize implements [Serializer].
func (s *Grouping) Serialize(any) (any, error) {
	return nil, errors.Errorf("grouping %s cannot be used as a value", s.typ)
}
