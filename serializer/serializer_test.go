package serializer

import (
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

type testColor int

const (
	colorRed testColor = iota + 1
	colorGreen
)

func (c testColor) String() string {
	switch c {
	case colorRed:
		return "Red"
	case colorGreen:
		return "Green"
	default:
		return fmt.Sprintf("testColor(%d)", int(c))
	}
}

type testMeta struct {
	Source string `bson:"src"`
}

type testNode struct {
	Name     string
	Children []*testNode
}

type testDoc struct {
	ID        int64     `bson:"_id"`
	FirstName string    `bson:",omitempty"`
	Age       int
	Color     testColor
	Shade     testColor `bson:"shade,string"`
	Tags      []string
	Labels    map[string]int
	Created   time.Time
	Secret    string `bson:"-"`
	Meta      testMeta `bson:",inline"`
	Extra     any

	hidden int
}

func TestRegistryStruct(t *testing.T) {
	r := NewRegistry(CamelCase)
	s, err := r.Lookup(reflect.TypeFor[testDoc]())
	require.NoError(t, err)

	doc, ok := AsDocument(s)
	require.True(t, ok)

	for _, tt := range []struct {
		name    string
		element string
	}{
		{"ID", "_id"},
		{"FirstName", "firstName"},
		{"Age", "age"},
		{"Color", "color"},
		{"Shade", "shade"},
		{"Source", "src"},
	} {
		m, ok := doc.Member(tt.name)
		require.True(t, ok, tt.name)
		assert.Equal(t, tt.element, m.ElementName, tt.name)
	}

	for _, name := range []string{"Secret", "hidden", "Meta", "Unknown"} {
		_, ok := doc.Member(name)
		assert.False(t, ok, name)
	}

	color, _ := doc.Member("Color")
	e, ok := AsEnum(color.Serializer)
	require.True(t, ok)
	require.Equal(t, RepInt, e.Representation())

	shade, _ := doc.Member("Shade")
	e, ok = AsEnum(shade.Serializer)
	require.True(t, ok)
	require.Equal(t, RepString, e.Representation())

	tags, _ := doc.Member("Tags")
	arr, ok := AsArray(tags.Serializer)
	require.True(t, ok)
	require.Equal(t, reflect.TypeFor[string](), arr.Item().ValueType())

	// Cached.
	s2, err := r.Lookup(reflect.TypeFor[testDoc]())
	require.NoError(t, err)
	require.Same(t, s, s2)
}

func TestRegistrySerialize(t *testing.T) {
	r := NewRegistry(Lower)
	s := r.MustLookup(reflect.TypeFor[testDoc]())

	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	v, err := s.Serialize(testDoc{
		ID:      10,
		Age:     21,
		Color:   colorGreen,
		Shade:   colorRed,
		Tags:    []string{"a"},
		Labels:  map[string]int{"b": 2, "a": 1},
		Created: created,
		Secret:  "x",
		Meta:    testMeta{Source: "api"},
	})
	require.NoError(t, err)
	require.Equal(t, bson.D{
		{Key: "_id", Value: int64(10)},
		{Key: "age", Value: int64(21)},
		{Key: "color", Value: int64(2)},
		{Key: "shade", Value: "Red"},
		{Key: "tags", Value: bson.A{"a"}},
		{Key: "labels", Value: bson.D{
			{Key: "a", Value: int64(1)},
			{Key: "b", Value: int64(2)},
		}},
		{Key: "created", Value: created},
		{Key: "src", Value: "api"},
		{Key: "extra", Value: nil},
	}, v)
}

func TestRegistryRecursive(t *testing.T) {
	r := NewRegistry(Lower)
	s, err := r.Lookup(reflect.TypeFor[testNode]())
	require.NoError(t, err)

	doc, ok := AsDocument(s)
	require.True(t, ok)
	children, ok := doc.Member("Children")
	require.True(t, ok)
	arr, ok := AsArray(children.Serializer)
	require.True(t, ok)

	item, ok := AsDocument(arr.Item())
	require.True(t, ok)
	require.Same(t, s, item)

	v, err := s.Serialize(testNode{Name: "root", Children: []*testNode{{Name: "leaf"}}})
	require.NoError(t, err)
	require.Equal(t, bson.D{
		{Key: "name", Value: "root"},
		{Key: "children", Value: bson.A{
			bson.D{{Key: "name", Value: "leaf"}, {Key: "children", Value: nil}},
		}},
	}, v)
}

func TestRegistryConcurrent(t *testing.T) {
	r := NewRegistry(Lower)
	typ := reflect.TypeFor[testDoc]()

	var (
		wg  sync.WaitGroup
		got = make([]Serializer, 16)
	)
	for i := range got {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got[i] = r.MustLookup(typ)
		}()
	}
	wg.Wait()
	for _, s := range got {
		require.Same(t, got[0], s)
	}
}

func TestRegistryErrors(t *testing.T) {
	r := NewRegistry(Lower)
	for i, typ := range []reflect.Type{
		reflect.TypeFor[chan int](),
		reflect.TypeFor[map[int]string](),
		reflect.TypeFor[struct{ F func() }](),
		reflect.TypeFor[struct {
			N int `bson:"n,string"`
		}](),
	} {
		t.Run(fmt.Sprintf("Test%d", i+1), func(t *testing.T) {
			_, err := r.Lookup(typ)
			require.Error(t, err)
		})
	}
}

func TestScalarSerialize(t *testing.T) {
	tests := []struct {
		v    any
		want any
	}{
		{int8(1), int32(1)},
		{int32(2), int32(2)},
		{3, int64(3)},
		{uint16(4), int32(4)},
		{uint64(5), int64(5)},
		{float32(1.5), 1.5},
		{"s", "s"},
		{true, true},
		{[]byte("b"), []byte("b")},
		{nil, nil},
	}
	for i, tt := range tests {
		tt := tt
		t.Run(fmt.Sprintf("Test%d", i+1), func(t *testing.T) {
			var typ reflect.Type
			if tt.v != nil {
				typ = reflect.TypeOf(tt.v)
			}
			got, err := NewScalar(typ).Serialize(tt.v)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}

	_, err := NewScalar(reflect.TypeFor[uint64]()).Serialize(uint64(1 << 63))
	require.Error(t, err)
}

func TestEnumSerialize(t *testing.T) {
	s := NewEnum(reflect.TypeFor[testColor](), RepInt)
	require.True(t, IsEnum(reflect.TypeFor[testColor]()))
	require.False(t, IsEnum(reflect.TypeFor[int]()))
	require.Equal(t, reflect.TypeFor[int](), s.Underlying())

	v, err := s.Serialize(colorGreen)
	require.NoError(t, err)
	require.Equal(t, int64(2), v)

	v, err = s.WithRepresentation(RepString).Serialize(colorGreen)
	require.NoError(t, err)
	require.Equal(t, "Green", v)

	// Underlying values are converted.
	v, err = s.WithRepresentation(RepString).Serialize(1)
	require.NoError(t, err)
	require.Equal(t, "Red", v)
}

func TestGrouping(t *testing.T) {
	type group struct {
		Key      string
		Elements []testMeta
	}
	r := NewRegistry(Lower)
	key := r.MustLookup(reflect.TypeFor[string]())
	elem := r.MustLookup(reflect.TypeFor[testMeta]())
	g := NewGrouping(reflect.TypeFor[group](), key, elem)

	m, ok := g.Member("Key")
	require.True(t, ok)
	require.Equal(t, "_id", m.ElementName)
	require.Same(t, key, m.Serializer)

	m, ok = g.Member("Elements")
	require.True(t, ok)
	require.Equal(t, "_elements", m.ElementName)
	arr, ok := AsArray(m.Serializer)
	require.True(t, ok)
	require.Same(t, elem, arr.Item())

	_, err := g.Serialize(group{})
	require.Error(t, err)
}
