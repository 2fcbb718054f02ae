// Package cache is the process-scoped store of reusable build artifacts.
// A Cache outlives any single build: the compiler brackets every build with
// EndIdle/BeginIdle, and entries written during a build are tagged with that
// build's generation so stale reuse can be detected.
package cache

import "sync"

const (
	defaultResolveSize = 4096
	defaultBuildSize   = 2048

	// Entries untouched for this many generations are dropped during idle
	// maintenance.
	staleGenerations = 8
)

type Options struct {
	ResolveSize int
	BuildSize   int
}

// Cache has two logical states, idle and active. EndIdle marks the start of
// a build (build-scoped writes allowed), BeginIdle marks its end and runs
// maintenance while no build is in flight.
type Cache struct {
	mu         sync.Mutex
	idle       bool
	generation uint64

	resolve *Storage
	build   *Storage
}

func New(opts Options) *Cache {
	if opts.ResolveSize <= 0 {
		opts.ResolveSize = defaultResolveSize
	}
	if opts.BuildSize <= 0 {
		opts.BuildSize = defaultBuildSize
	}
	return &Cache{
		idle:    true,
		resolve: newStorage(opts.ResolveSize),
		build:   newStorage(opts.BuildSize),
	}
}

// EndIdle transitions the cache into the active state for a new build.
func (c *Cache) EndIdle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.idle {
		return
	}
	c.idle = false
	c.generation++
	c.resolve.setGeneration(c.generation)
	c.build.setGeneration(c.generation)
}

// BeginIdle transitions back to idle and performs maintenance. Must only be
// called once the build that called EndIdle has fully settled.
func (c *Cache) BeginIdle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.idle {
		return
	}
	c.idle = true
	c.resolve.sweep(c.generation)
	c.build.sweep(c.generation)
}

func (c *Cache) IsIdle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.idle
}

// Generation returns the current build generation. Generation 1 is the first
// build of the process.
func (c *Cache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// Resolve is the storage for resolution results.
func (c *Cache) Resolve() *Storage {
	return c.resolve
}

// Build is the storage for built module snapshots.
func (c *Cache) Build() *Storage {
	return c.build
}

// Clear drops all cached entries.
func (c *Cache) Clear() {
	c.resolve.Purge()
	c.build.Purge()
}
