package pipeline

import (
	"context"
	"fmt"
	"path"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/packmill/packmill/internal/cache"
	"github.com/packmill/packmill/internal/diagnostics"
	"github.com/packmill/packmill/internal/graph"
	"github.com/packmill/packmill/internal/resolve"
)

// MakeParam tells the make phase what to (re)build. A fresh param builds the
// whole graph from the registered entries; a forced param rebuilds only the
// named dependencies, leaving the rest of a reused graph alone.
type MakeParam struct {
	fresh      bool
	forceBuild []graph.DependencyID
}

func NewMakeParam() *MakeParam {
	return &MakeParam{fresh: true}
}

func ForcedMakeParam(deps []graph.DependencyID) *MakeParam {
	return &MakeParam{forceBuild: deps}
}

// Fresh reports whether the param requests a from-scratch graph build.
func (p *MakeParam) Fresh() bool {
	return p.fresh
}

// AddForceBuildDependency appends dependencies to the force-build set.
// Make-hook plugins use this to inject work beyond what the entries reach.
func (p *MakeParam) AddForceBuildDependency(ids ...graph.DependencyID) {
	p.forceBuild = append(p.forceBuild, ids...)
}

// ForceBuildDeps returns the dependencies that must be rebuilt regardless of
// what the graph already holds.
func (p *MakeParam) ForceBuildDeps() []graph.DependencyID {
	return p.forceBuild
}

const makeConcurrency = 8

type makeTask struct {
	dep   graph.DependencyID
	force bool
}

// makeRunner drives module discovery for one compilation: resolve a request,
// read and parse the file, record the module and its outgoing dependencies,
// and queue whatever those point at. Modules are built level by level with a
// bounded worker group; a failing module becomes a diagnostic, not a build
// failure.
type makeRunner struct {
	compilation *Compilation
	resolvers   *resolve.Factory
	cache       *cache.Cache

	mu      sync.Mutex
	visited map[string]struct{}
	next    []makeTask
}

func newMakeRunner(compilation *Compilation, resolvers *resolve.Factory, c *cache.Cache) *makeRunner {
	return &makeRunner{
		compilation: compilation,
		resolvers:   resolvers,
		cache:       c,
		visited:     map[string]struct{}{},
	}
}

func (r *makeRunner) Run(ctx context.Context, param *MakeParam) error {
	var current []makeTask
	if param.Fresh() {
		for _, item := range r.compilation.Entries() {
			current = append(current, makeTask{dep: item.DependencyID, force: true})
		}
	}
	for _, id := range param.ForceBuildDeps() {
		current = append(current, makeTask{dep: id, force: true})
	}

	for len(current) > 0 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(makeConcurrency)
		for _, task := range current {
			g.Go(func() error {
				return r.buildModule(gctx, task)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		r.mu.Lock()
		current = r.next
		r.next = nil
		r.mu.Unlock()
	}

	return nil
}

func (r *makeRunner) buildModule(ctx context.Context, task makeTask) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	comp := r.compilation
	dep, ok := comp.Graph.Dependency(task.dep)
	if !ok {
		return fmt.Errorf("unknown dependency %d", task.dep)
	}

	resolver := r.resolvers.Default()

	resolution, err := r.resolveCached(resolver, dep)
	if err != nil {
		comp.PushDiagnostic(diagnostics.Error(dep.Request, "cannot resolve %q from %q: %v", dep.Request, dep.FromDir, err))
		return nil
	}

	identifier := resolution.Identifier()
	comp.Graph.SetResolvedModule(task.dep, identifier)

	if !r.claim(identifier) {
		return nil
	}
	if _, ok := comp.Graph.Module(identifier); ok && !task.force {
		// Carried over from a previous build; its subtree is already there.
		return nil
	}

	source, err := resolver.Read(resolution)
	if err != nil {
		comp.PushDiagnostic(diagnostics.Error(identifier, "cannot read module: %v", err))
		return nil
	}

	contentHash := ContentVersion(source)
	var parsed parsedModule
	if cached, ok := r.cache.Build().Get(identifier, contentHash); ok {
		parsed = cached.(parsedModule)
	} else {
		parsed = parseSource(source)
		r.cache.Build().Put(identifier, contentHash, parsed)
	}

	module := &graph.Module{
		Identifier:     identifier,
		File:           resolution.Path,
		Source:         source,
		Exports:        parsed.exports,
		SideEffectFree: parsed.sideEffectFree,
		Bailout:        parsed.bailout,
	}

	fromDir := path.Dir(resolution.Path)
	for _, imp := range parsed.imports {
		child := graph.NewDependency(imp.request, graph.KindImport, fromDir)
		child.Symbols = imp.symbols
		comp.Graph.AddDependency(child)
		module.Dependencies = append(module.Dependencies, child.ID())
		r.enqueue(makeTask{dep: child.ID()})
	}

	comp.Graph.AddModule(module, task.dep)
	return nil
}

func (r *makeRunner) resolveCached(resolver *resolve.Resolver, dep *graph.Dependency) (resolve.Resolution, error) {
	key := dep.FromDir + "\x00" + dep.Request
	hash := r.compilation.Options.Resolve.Key()
	if cached, ok := r.cache.Resolve().Get(key, hash); ok {
		return cached.(resolve.Resolution), nil
	}
	resolution, err := resolver.Resolve(dep.FromDir, dep.Request)
	if err != nil {
		return resolve.Resolution{}, err
	}
	r.cache.Resolve().Put(key, hash, resolution)
	return resolution, nil
}

// claim marks identifier as handled this make pass. Two dependencies can race
// to the same module; only the first builds it.
func (r *makeRunner) claim(identifier string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.visited[identifier]; ok {
		return false
	}
	r.visited[identifier] = struct{}{}
	return true
}

func (r *makeRunner) enqueue(task makeTask) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next = append(r.next, task)
}
