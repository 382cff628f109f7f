package translate

import (
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/atomic"
	"golang.org/x/sync/singleflight"

	"github.com/go-faster/mongoql/serializer"
)

const fieldShards = 32

// FieldNames caches member lookups of struct serializers.
//
// Entries never change once added, so readers never wait for writers of
// other entries. Safe for concurrent use.
type FieldNames struct {
	shards [fieldShards]fieldShard
	group  singleflight.Group

	hits   atomic.Uint64
	misses atomic.Uint64
}

type fieldKey struct {
	doc  *serializer.Struct
	name string
}

type fieldShard struct {
	mux     sync.RWMutex
	entries map[fieldKey]serializer.MemberInfo
}

// NewFieldNames creates new [FieldNames].
func NewFieldNames() *FieldNames {
	c := &FieldNames{}
	for i := range c.shards {
		c.shards[i].entries = map[fieldKey]serializer.MemberInfo{}
	}
	return c
}

var defaultFieldNames = NewFieldNames()

// DefaultFieldNames returns process-wide cache.
func DefaultFieldNames() *FieldNames {
	return defaultFieldNames
}

// CacheStats is a cache usage statistics.
type CacheStats struct {
	Hits    uint64
	Misses  uint64
	Entries int
}

// Stats returns cache statistics.
func (c *FieldNames) Stats() CacheStats {
	s := CacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}
	for i := range c.shards {
		sh := &c.shards[i]
		sh.mux.RLock()
		s.Entries += len(sh.entries)
		sh.mux.RUnlock()
	}
	return s
}

func (c *FieldNames) shard(key fieldKey) *fieldShard {
	h := xxhash.New()
	_, _ = h.WriteString(key.doc.ValueType().String())
	_, _ = h.WriteString(".")
	_, _ = h.WriteString(key.name)
	return &c.shards[h.Sum64()%fieldShards]
}

// Member returns member of document by Go field name.
//
// Only struct serializers are cached, other documents are queried directly.
func (c *FieldNames) Member(doc serializer.DocumentSerializer, name string) (serializer.MemberInfo, bool) {
	s, ok := doc.(*serializer.Struct)
	if !ok || c == nil {
		return doc.Member(name)
	}

	key := fieldKey{doc: s, name: name}
	sh := c.shard(key)

	sh.mux.RLock()
	m, ok := sh.entries[key]
	sh.mux.RUnlock()
	if ok {
		c.hits.Inc()
		return m, true
	}
	c.misses.Inc()

	v, _, _ := c.group.Do(fmt.Sprintf("%p.%s", s, name), func() (any, error) {
		m, ok := s.Member(name)
		if !ok {
			return nil, nil
		}
		sh.mux.Lock()
		if existing, ok := sh.entries[key]; ok {
			m = existing
		} else {
			sh.entries[key] = m
		}
		sh.mux.Unlock()
		return m, nil
	})
	if v == nil {
		return serializer.MemberInfo{}, false
	}
	return v.(serializer.MemberInfo), true
}
