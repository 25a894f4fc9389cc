// Package store provides the concurrent keyed tables used for sessions
// and cached credentials.
package store

import (
	"sync"

	"github.com/zeebo/xxh3"
)

const shardCount = 16

// Store is the table abstraction the session layer depends on. Sharded
// is the in-process implementation.
type Store[V any] interface {
	Get(key string) (V, bool)
	Put(key string, value V)
	Delete(key string) (V, bool)
	DeleteIf(key string, pred func(V) bool) (V, bool)
	Range(fn func(key string, value V) bool)
	Len() int
}

type shard[V any] struct {
	mu    sync.RWMutex
	items map[string]V
}

// Sharded spreads keys over 16 independently locked maps.
type Sharded[V any] struct {
	shards [shardCount]*shard[V]
}

var _ Store[int] = (*Sharded[int])(nil)

// NewSharded creates an empty table.
func NewSharded[V any]() *Sharded[V] {
	s := &Sharded[V]{}
	for i := range s.shards {
		s.shards[i] = &shard[V]{items: make(map[string]V)}
	}
	return s
}

func (s *Sharded[V]) shardFor(key string) *shard[V] {
	return s.shards[xxh3.HashString(key)%shardCount]
}

func (s *Sharded[V]) Get(key string) (V, bool) {
	sh := s.shardFor(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	v, ok := sh.items[key]
	return v, ok
}

func (s *Sharded[V]) Put(key string, value V) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	sh.items[key] = value
	sh.mu.Unlock()
}

// Delete removes key and returns the value it held.
func (s *Sharded[V]) Delete(key string) (V, bool) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	v, ok := sh.items[key]
	if ok {
		delete(sh.items, key)
	}
	return v, ok
}

// DeleteIf removes key only when pred holds for its current value.
// pred runs under the shard lock and must not call back into the table.
func (s *Sharded[V]) DeleteIf(key string, pred func(V) bool) (V, bool) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	v, ok := sh.items[key]
	if !ok || !pred(v) {
		var zero V
		return zero, false
	}
	delete(sh.items, key)
	return v, true
}

// Range calls fn for every entry until it returns false. Each shard is
// copied under its read lock first, so fn may call back into the table.
func (s *Sharded[V]) Range(fn func(key string, value V) bool) {
	for _, sh := range s.shards {
		sh.mu.RLock()
		snapshot := make(map[string]V, len(sh.items))
		for k, v := range sh.items {
			snapshot[k] = v
		}
		sh.mu.RUnlock()

		for k, v := range snapshot {
			if !fn(k, v) {
				return
			}
		}
	}
}

func (s *Sharded[V]) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		n += len(sh.items)
		sh.mu.RUnlock()
	}
	return n
}
