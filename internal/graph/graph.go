// Package graph holds the dependency graph built by the make phase: the set
// of known dependencies, the modules they resolved to, and the edges between
// them. Dependency ids are allocated before resolution and stay stable for
// the lifetime of the process, which is what allows an incremental rebuild to
// match old and new graph nodes.
package graph

import (
	"maps"
	"slices"
	"sync"
	"sync/atomic"
)

// DependencyID is the stable handle for a dependency record. Ids are unique
// per process; a dependency that survives a rebuild keeps its id.
type DependencyID int64

var nextDependencyID atomic.Int64

// Dependency kinds.
const (
	KindEntry  = "entry"
	KindImport = "import"
)

// Dependency is a request for a module, before or after resolution.
type Dependency struct {
	id      DependencyID
	Request string // the raw request, e.g. "./src/index.js"
	Kind    string
	FromDir string   // directory the request resolves against
	Symbols []string // imported symbols; "*" means everything
}

// NewDependency allocates the id eagerly. The id is the handle used both in
// the graph and in force-build sets, and must exist before the make phase
// resolves the request.
func NewDependency(request, kind, fromDir string) *Dependency {
	return &Dependency{
		id:      DependencyID(nextDependencyID.Add(1)),
		Request: request,
		Kind:    kind,
		FromDir: fromDir,
	}
}

func (d *Dependency) ID() DependencyID {
	return d.id
}

// Module is one resolved, built module.
type Module struct {
	Identifier string // unique module identifier (resolved path, query preserved)
	File       string // on-disk file backing the module, used for invalidation
	Source     []byte

	// Filled in by the build/parse step.
	Dependencies   []DependencyID // outgoing dependencies, in source order
	Exports        []string
	SideEffectFree bool
	Bailout        bool // dynamic constructs defeated analysis
}

// importEdge records which dependency a module satisfied.
type importEdge struct {
	module string
	origin DependencyID
}

// ModuleGraph is safe for concurrent use; the make phase builds it from
// several workers at once.
type ModuleGraph struct {
	mu           sync.RWMutex
	dependencies map[DependencyID]*Dependency
	modules      map[string]*Module
	depToModule  map[DependencyID]string
	origins      map[string]DependencyID // module identifier -> dependency that introduced it
}

func NewModuleGraph() *ModuleGraph {
	return &ModuleGraph{
		dependencies: map[DependencyID]*Dependency{},
		modules:      map[string]*Module{},
		depToModule:  map[DependencyID]string{},
		origins:      map[string]DependencyID{},
	}
}

func (g *ModuleGraph) AddDependency(d *Dependency) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dependencies[d.id] = d
}

func (g *ModuleGraph) Dependency(id DependencyID) (*Dependency, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	d, ok := g.dependencies[id]
	return d, ok
}

// AddModule inserts the module and records the dependency that introduced
// it. Re-adding an existing identifier replaces the module record but keeps
// the original origin edge.
func (g *ModuleGraph) AddModule(m *Module, origin DependencyID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.modules[m.Identifier]; !ok {
		g.origins[m.Identifier] = origin
	}
	g.modules[m.Identifier] = m
}

func (g *ModuleGraph) Module(identifier string) (*Module, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	m, ok := g.modules[identifier]
	return m, ok
}

// SetResolvedModule records the "this dependency resolves to this module"
// edge.
func (g *ModuleGraph) SetResolvedModule(id DependencyID, identifier string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.depToModule[id] = identifier
}

// ModuleByDependency follows the resolution edge of a dependency.
func (g *ModuleGraph) ModuleByDependency(id DependencyID) (*Module, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ident, ok := g.depToModule[id]
	if !ok {
		return nil, false
	}
	m, ok := g.modules[ident]
	return m, ok
}

// Origin returns the dependency that introduced a module.
func (g *ModuleGraph) Origin(identifier string) (DependencyID, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	id, ok := g.origins[identifier]
	return id, ok
}

// ModuleIdentifiers returns all module identifiers, sorted for determinism.
func (g *ModuleGraph) ModuleIdentifiers() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Sorted(maps.Keys(g.modules))
}

// Modules returns a snapshot of the module map.
func (g *ModuleGraph) Modules() map[string]*Module {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return maps.Clone(g.modules)
}

func (g *ModuleGraph) NumModules() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.modules)
}

// RevokeModule removes a module and its resolution edges, returning its
// outgoing dependency ids so the caller can force-build them again or revoke
// further. The dependency records themselves stay: their ids are the stable
// handles a rebuild matches on.
func (g *ModuleGraph) RevokeModule(identifier string) []DependencyID {
	g.mu.Lock()
	defer g.mu.Unlock()
	m, ok := g.modules[identifier]
	if !ok {
		return nil
	}
	delete(g.modules, identifier)
	delete(g.origins, identifier)
	for id, ident := range g.depToModule {
		if ident == identifier {
			delete(g.depToModule, id)
		}
	}
	return slices.Clone(m.Dependencies)
}

// IncomingDependencies returns the ids of dependencies currently resolved to
// the module, in stable order.
func (g *ModuleGraph) IncomingDependencies(identifier string) []DependencyID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []DependencyID
	for id, ident := range g.depToModule {
		if ident == identifier {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}

// ModulesByFile returns the identifiers of modules backed by the given file.
func (g *ModuleGraph) ModulesByFile(file string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []string
	for ident, m := range g.modules {
		if m.File == file {
			out = append(out, ident)
		}
	}
	slices.Sort(out)
	return out
}
