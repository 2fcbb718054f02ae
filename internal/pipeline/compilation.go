package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/packmill/packmill/internal/config"
	"github.com/packmill/packmill/internal/diagnostics"
	"github.com/packmill/packmill/internal/graph"
	"github.com/packmill/packmill/internal/logging"
)

// EntryItem ties an entry's dependency record to its configuration.
type EntryItem struct {
	DependencyID graph.DependencyID
	Options      *config.Entry
}

// Compilation holds the state of a single build pass: the module graph under
// construction, the registered entries, produced assets, and the results of
// export-usage analysis. A Compiler creates a fresh Compilation per build and
// threads it through the plugin hooks.
type Compilation struct {
	Options *config.Root
	Graph   *graph.ModuleGraph

	driver *PluginDriver
	logger *logging.Logger

	mu      sync.Mutex
	entries map[string]EntryItem
	assets  map[string]*Asset
	emitted map[string]struct{}
	diags   diagnostics.Batch

	// Filled in by export-usage analysis between finish and seal. A nil
	// IncludeModuleIDs means every module is included.
	UsedSymbolRefs           map[string]map[string]struct{}
	BailoutModuleIdentifiers map[string]struct{}
	SideEffectsFreeModules   map[string]struct{}
	IncludeModuleIDs         map[string]struct{}
	ModuleItemMap            map[string][]string

	// BuildGeneration counts builds of the owning Compiler, starting at 1.
	BuildGeneration int64
}

func NewCompilation(options *config.Root, driver *PluginDriver, logger *logging.Logger, generation int64) *Compilation {
	return &Compilation{
		Options:         options,
		Graph:           graph.NewModuleGraph(),
		driver:          driver,
		logger:          logger,
		entries:         map[string]EntryItem{},
		assets:          map[string]*Asset{},
		emitted:         map[string]struct{}{},
		BuildGeneration: generation,
	}
}

// IsFirstBuild reports whether this compilation belongs to the compiler's
// first build, before any incremental state exists.
func (c *Compilation) IsFirstBuild() bool {
	return c.BuildGeneration == 1
}

// AddEntry registers a named entry backed by an already-recorded dependency.
// Re-adding a name replaces the previous record.
func (c *Compilation) AddEntry(name string, id graph.DependencyID, opts *config.Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[name] = EntryItem{DependencyID: id, Options: opts}
}

// Entries returns the registered entries keyed by name.
func (c *Compilation) Entries() map[string]EntryItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := make(map[string]EntryItem, len(c.entries))
	for name, item := range c.entries {
		result[name] = item
	}
	return result
}

// EntryNames returns entry names in stable order.
func (c *Compilation) EntryNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EmitAsset records an asset under filename, replacing any previous one.
func (c *Compilation) EmitAsset(filename string, asset *Asset) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.assets[filename] = asset
}

// GetAsset returns the asset recorded under filename, or nil.
func (c *Compilation) GetAsset(filename string) *Asset {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.assets[filename]
}

// Assets returns a copy of the asset table.
func (c *Compilation) Assets() map[string]*Asset {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := make(map[string]*Asset, len(c.assets))
	for name, asset := range c.assets {
		result[name] = asset
	}
	return result
}

// AssetFilenames returns the recorded asset names in stable order.
func (c *Compilation) AssetFilenames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.assets))
	for name := range c.assets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MarkEmitted records that filename reached the output directory this build.
func (c *Compilation) MarkEmitted(filename string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emitted[filename] = struct{}{}
}

// Emitted reports whether filename was written to disk this build.
func (c *Compilation) Emitted(filename string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.emitted[filename]
	return ok
}

// PushDiagnostic appends diagnostics to the compilation. Safe to call from
// concurrent make workers.
func (c *Compilation) PushDiagnostic(ds ...diagnostics.Diagnostic) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.diags.Push(ds...)
}

// Diagnostics returns the accumulated diagnostics.
func (c *Compilation) Diagnostics() []diagnostics.Diagnostic {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.diags.Items()
}

// Errors returns only the error-severity diagnostics.
func (c *Compilation) Errors() []diagnostics.Diagnostic {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.diags.Errors()
}

// Finish runs the finish hook. Module-level diagnostics have already been
// pushed during make; this is where plugins get a last look at the completed
// graph before sealing.
func (c *Compilation) Finish(ctx context.Context) error {
	return c.driver.Finish(ctx, c)
}

// Seal renders one chunk per entry and records it as an asset. Modules are
// concatenated in dependency-first order, each at most once per chunk, and
// modules excluded by export-usage analysis are skipped. Sealing never
// touches disk; that is emit's job.
func (c *Compilation) Seal(ctx context.Context) error {
	for _, name := range c.EntryNames() {
		item := c.entries[name]
		mod, ok := c.Graph.ModuleByDependency(item.DependencyID)
		if !ok {
			c.PushDiagnostic(diagnostics.Error(name, "entry was never resolved"))
			continue
		}

		var buf strings.Builder
		seen := map[string]struct{}{}
		c.renderModule(&buf, mod, seen)

		filename := name + ".js"
		c.EmitAsset(filename, NewAsset([]byte(buf.String())))
		c.logger.Debugf("sealed chunk %q (%d modules)", filename, len(seen))
	}
	return nil
}

func (c *Compilation) renderModule(buf *strings.Builder, mod *graph.Module, seen map[string]struct{}) {
	if _, ok := seen[mod.Identifier]; ok {
		return
	}
	if c.IncludeModuleIDs != nil {
		if _, ok := c.IncludeModuleIDs[mod.Identifier]; !ok {
			return
		}
	}
	seen[mod.Identifier] = struct{}{}

	for _, id := range mod.Dependencies {
		if dep, ok := c.Graph.ModuleByDependency(id); ok {
			c.renderModule(buf, dep, seen)
		}
	}

	fmt.Fprintf(buf, "// module: %s\n", mod.Identifier)
	buf.Write(mod.Source)
	if len(mod.Source) > 0 && mod.Source[len(mod.Source)-1] != '\n' {
		buf.WriteByte('\n')
	}
}

// Done runs the done hook after a build settles, successful or not.
func (c *Compilation) Done(ctx context.Context) error {
	return c.driver.Done(ctx, c)
}
