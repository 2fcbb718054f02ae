package cache

import (
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru"
)

// entry wraps a cached value with freshness bookkeeping.
type entry struct {
	value    any
	hash     string // content hash of the inputs the value was derived from
	lastUsed uint64 // generation the entry was last read or written in
}

// Storage is one LRU-backed compartment of the cache. Get validates entries
// against the caller-provided input hash: a hit with a different hash is a
// miss, because the artifact was derived from different inputs.
type Storage struct {
	mu         sync.Mutex
	lru        *lru.Cache
	generation uint64

	hits   atomic.Uint64
	misses atomic.Uint64
}

func newStorage(size int) *Storage {
	l, err := lru.New(size)
	if err != nil {
		// lru.New only fails for non-positive sizes, which New guards against.
		panic(err)
	}
	return &Storage{lru: l}
}

func (s *Storage) setGeneration(g uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation = g
}

// Get returns the cached value for key if its input hash matches.
func (s *Storage) Get(key, hash string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.lru.Get(key)
	if !ok {
		s.misses.Add(1)
		return nil, false
	}
	e := v.(*entry)
	if e.hash != hash {
		s.misses.Add(1)
		return nil, false
	}
	e.lastUsed = s.generation
	s.hits.Add(1)
	return e.value, true
}

// Put stores value for key, derived from inputs identified by hash.
func (s *Storage) Put(key, hash string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lru.Add(key, &entry{value: value, hash: hash, lastUsed: s.generation})
}

func (s *Storage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Len()
}

func (s *Storage) Purge() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lru.Purge()
}

// Stats returns cumulative hit/miss counts.
func (s *Storage) Stats() (hits, misses uint64) {
	return s.hits.Load(), s.misses.Load()
}

// sweep drops entries that have not been used for staleGenerations builds.
// Runs only while the cache is idle.
func (s *Storage) sweep(generation uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.lru.Keys() {
		v, ok := s.lru.Peek(k)
		if !ok {
			continue
		}
		if e := v.(*entry); generation-e.lastUsed > staleGenerations {
			s.lru.Remove(k)
		}
	}
}
