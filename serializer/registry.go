package serializer

import (
	"reflect"
	"strings"
	"sync"

	"github.com/go-faster/errors"
)

// Registry builds and caches serializers for Go types.
//
// Registry is safe for concurrent use.
type Registry struct {
	conv Convention

	mux   sync.RWMutex
	types map[reflect.Type]Serializer
}

// NewRegistry creates new [Registry] with given naming convention.
func NewRegistry(conv Convention) *Registry {
	return &Registry{
		conv:  conv,
		types: map[reflect.Type]Serializer{},
	}
}

var defaultRegistry = NewRegistry(Lower)

// Default returns process-wide registry.
func Default() *Registry {
	return defaultRegistry
}

// Convention returns naming convention of the registry.
func (r *Registry) Convention() Convention {
	return r.conv
}

// Register sets custom serializer for its value type.
func (r *Registry) Register(s Serializer) {
	r.mux.Lock()
	defer r.mux.Unlock()
	r.types[s.ValueType()] = s
}

// Lookup returns serializer for given type.
func (r *Registry) Lookup(t reflect.Type) (Serializer, error) {
	if t == nil {
		return nil, errors.New("nil type")
	}

	r.mux.RLock()
	s, ok := r.types[t]
	r.mux.RUnlock()
	if ok {
		return s, nil
	}

	r.mux.Lock()
	defer r.mux.Unlock()
	return r.lookupLocked(t)
}

// MustLookup is like [Registry.Lookup], but panics on error.
func (r *Registry) MustLookup(t reflect.Type) Serializer {
	s, err := r.Lookup(t)
	if err != nil {
		panic(err)
	}
	return s
}

func (r *Registry) lookupLocked(t reflect.Type) (Serializer, error) {
	if s, ok := r.types[t]; ok {
		return s, nil
	}
	s, err := r.build(t)
	if err != nil {
		return nil, errors.Wrapf(err, "build %s", t)
	}
	r.types[t] = s
	return s, nil
}

func (r *Registry) build(t reflect.Type) (Serializer, error) {
	switch {
	case IsEnum(t):
		return NewEnum(t, RepInt), nil
	case isScalar(t):
		return NewScalar(t), nil
	}

	switch t.Kind() {
	case reflect.Pointer:
		elem, err := r.lookupLocked(t.Elem())
		if err != nil {
			return nil, err
		}
		return NewPointer(t, elem), nil
	case reflect.Slice, reflect.Array:
		item, err := r.lookupLocked(t.Elem())
		if err != nil {
			return nil, err
		}
		return NewArray(t, item), nil
	case reflect.Map:
		if t.Key().Kind() != reflect.String {
			return nil, errors.Errorf("unsupported map key %s", t.Key())
		}
		value, err := r.lookupLocked(t.Elem())
		if err != nil {
			return nil, err
		}
		return NewMap(t, value), nil
	case reflect.Interface:
		return NewDynamic(t), nil
	case reflect.Struct:
		s := NewStruct(t)
		// Register before building members, so recursive types
		// refer to the same serializer.
		r.types[t] = s
		if err := r.buildMembers(s, t, nil); err != nil {
			delete(r.types, t)
			return nil, err
		}
		return s, nil
	default:
		return nil, errors.Errorf("unsupported kind %s", t.Kind())
	}
}

type structTag struct {
	name      string
	skip      bool
	omitEmpty bool
	inline    bool
	asString  bool
}

func parseTag(f reflect.StructField) (tag structTag) {
	raw, ok := f.Tag.Lookup("bson")
	if !ok {
		return tag
	}
	if raw == "-" {
		tag.skip = true
		return tag
	}
	name, opts, _ := strings.Cut(raw, ",")
	tag.name = name
	for opts != "" {
		var opt string
		opt, opts, _ = strings.Cut(opts, ",")
		switch opt {
		case "omitempty":
			tag.omitEmpty = true
		case "inline":
			tag.inline = true
		case "string":
			tag.asString = true
		}
	}
	return tag
}

func (r *Registry) buildMembers(s *Struct, t reflect.Type, index []int) error {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag := parseTag(f)
		if tag.skip {
			continue
		}
		fieldIndex := append(append([]int(nil), index...), i)

		if tag.inline {
			ft := f.Type
			if ft.Kind() == reflect.Pointer {
				ft = ft.Elem()
			}
			if ft.Kind() != reflect.Struct {
				return errors.Errorf("inline field %s is not a struct", f.Name)
			}
			if err := r.buildMembers(s, ft, fieldIndex); err != nil {
				return errors.Wrapf(err, "inline %s", f.Name)
			}
			continue
		}

		fs, err := r.lookupLocked(f.Type)
		if err != nil {
			return errors.Wrapf(err, "field %s", f.Name)
		}
		if tag.asString {
			e, ok := AsEnum(fs)
			if !ok {
				return errors.Errorf("field %s: string option requires enum, got %s", f.Name, f.Type)
			}
			if p, ok := fs.(*Pointer); ok {
				fs = NewPointer(p.ValueType(), e.WithRepresentation(RepString))
			} else {
				fs = e.WithRepresentation(RepString)
			}
		}

		name := tag.name
		if name == "" {
			name = r.conv.ElementName(f.Name)
		}
		s.add(MemberInfo{
			Name:        f.Name,
			ElementName: name,
			Serializer:  fs,
			OmitEmpty:   tag.omitEmpty,
			index:       fieldIndex,
		})
	}
	return nil
}
