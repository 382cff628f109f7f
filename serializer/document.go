package serializer

import (
	"reflect"
	"slices"
	"strings"

	"github.com/go-faster/errors"
	"go.mongodb.org/mongo-driver/bson"
)

// Struct serializes Go structs as documents.
type Struct struct {
	typ     reflect.Type
	members []MemberInfo
	byName  map[string]int
}

var _ DocumentSerializer = (*Struct)(nil)

// NewStruct creates new [Struct] with given members.
//
// Members with a Name of a struct field are read from that field.
func NewStruct(t reflect.Type, members ...MemberInfo) *Struct {
	s := &Struct{
		typ:     t,
		members: make([]MemberInfo, 0, len(members)),
		byName:  make(map[string]int, len(members)),
	}
	for _, m := range members {
		s.add(m)
	}
	return s
}

func (s *Struct) add(m MemberInfo) {
	if m.index == nil && s.typ.Kind() == reflect.Struct {
		if f, ok := s.typ.FieldByName(m.Name); ok {
			m.index = f.Index
		}
	}
	if idx, ok := s.byName[m.Name]; ok {
		s.members[idx] = m
		return
	}
	s.byName[m.Name] = len(s.members)
	s.members = append(s.members, m)
}

// ValueType implements [Serializer].
func (s *Struct) ValueType() reflect.Type { return s.typ }

// Member implements [DocumentSerializer].
func (s *Struct) Member(name string) (MemberInfo, bool) {
	idx, ok := s.byName[name]
	if !ok {
		return MemberInfo{}, false
	}
	return s.members[idx], true
}

// Members returns all members in declaration order.
func (s *Struct) Members() []MemberInfo {
	return slices.Clone(s.members)
}

// Serialize implements [Serializer].
func (s *Struct) Serialize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Type() != s.typ {
		return nil, errors.Errorf("cannot serialize %s as %s", rv.Type(), s.typ)
	}
	doc := make(bson.D, 0, len(s.members))
	for _, m := range s.members {
		if m.index == nil {
			continue
		}
		fv, err := rv.FieldByIndexErr(m.index)
		if err != nil {
			// Nil embedded pointer.
			continue
		}
		if m.OmitEmpty && fv.IsZero() {
			continue
		}
		val, err := m.Serializer.Serialize(fv.Interface())
		if err != nil {
			return nil, errors.Wrapf(err, "serialize %s", m.Name)
		}
		doc = append(doc, bson.E{Key: m.ElementName, Value: val})
	}
	return doc, nil
}

// Array serializes slices and arrays.
type Array struct {
	typ  reflect.Type
	item Serializer
}

var _ ArraySerializer = (*Array)(nil)

// NewArray creates new [Array].
func NewArray(t reflect.Type, item Serializer) *Array {
	return &Array{typ: t, item: item}
}

// ValueType implements [Serializer].
func (s *Array) ValueType() reflect.Type { return s.typ }

// Item implements [ArraySerializer].
func (s *Array) Item() Serializer { return s.item }

// Serialize implements [Serializer].
func (s *Array) Serialize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice:
		if rv.IsNil() {
			return nil, nil
		}
	case reflect.Array:
	default:
		return nil, errors.Errorf("cannot serialize %s as array", rv.Type())
	}
	arr := make(bson.A, rv.Len())
	for i := range arr {
		val, err := s.item.Serialize(rv.Index(i).Interface())
		if err != nil {
			return nil, errors.Wrapf(err, "serialize [%d]", i)
		}
		arr[i] = val
	}
	return arr, nil
}

// Map serializes string-keyed maps as documents.
//
// Every key is a member with the same element name.
type Map struct {
	typ   reflect.Type
	value Serializer
}

var _ DocumentSerializer = (*Map)(nil)

// NewMap creates new [Map].
func NewMap(t reflect.Type, value Serializer) *Map {
	return &Map{typ: t, value: value}
}

// ValueType implements [Serializer].
func (s *Map) ValueType() reflect.Type { return s.typ }

// Member implements [DocumentSerializer].
func (s *Map) Member(name string) (MemberInfo, bool) {
	return MemberInfo{Name: name, ElementName: name, Serializer: s.value}, true
}

// Serialize implements [Serializer].
func (s *Map) Serialize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, errors.Errorf("cannot serialize %s as document", rv.Type())
	}
	if rv.IsNil() {
		return nil, nil
	}
	keys := rv.MapKeys()
	slices.SortFunc(keys, func(a, b reflect.Value) int {
		return strings.Compare(a.String(), b.String())
	})
	doc := make(bson.D, 0, len(keys))
	for _, k := range keys {
		val, err := s.value.Serialize(rv.MapIndex(k).Interface())
		if err != nil {
			return nil, errors.Wrapf(err, "serialize %q", k.String())
		}
		doc = append(doc, bson.E{Key: k.String(), Value: val})
	}
	return doc, nil
}
