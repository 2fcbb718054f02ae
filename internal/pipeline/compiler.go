package pipeline

import (
	"context"
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/packmill/packmill/internal/cache"
	"github.com/packmill/packmill/internal/config"
	pmfs "github.com/packmill/packmill/internal/fs"
	"github.com/packmill/packmill/internal/graph"
	"github.com/packmill/packmill/internal/logging"
	"github.com/packmill/packmill/internal/metrics"
	"github.com/packmill/packmill/internal/progress"
	"github.com/packmill/packmill/internal/resolve"
	"github.com/packmill/packmill/internal/util"
)

// Compiler owns the long-lived build state: the plugin driver, the resolver
// factory, the module cache, and the last finished compilation. It runs one
// build at a time; Build and Rebuild serialize on an internal lock.
type Compiler struct {
	options *config.Root
	plugins []Plugin
	output  pmfs.WritableFS
	input   iofs.FS
	mounts  map[string]iofs.FS
	logger  *logging.Logger
	bar     *progress.Bar

	driver    *PluginDriver
	resolvers *resolve.Factory
	cache     *cache.Cache

	mu          sync.Mutex
	generation  int64
	compilation *Compilation      // last finished compilation, nil before the first build
	versions    map[string]string // asset filename -> content version last written
}

func New(options *config.Root) *Compiler {
	return &Compiler{
		options:  options,
		output:   pmfs.NewOSFS(),
		logger:   logging.NewLogger(logging.Config{Level: logging.LevelError}),
		bar:      progress.Null(),
		versions: map[string]string{},
	}
}

// WithPlugins appends plugins to the compiler. The entry plugin is always
// installed first, ahead of anything passed here.
func (c *Compiler) WithPlugins(plugins ...Plugin) *Compiler {
	c.plugins = append(c.plugins, plugins...)
	return c
}

// WithOutputFS overrides where emitted assets are written.
func (c *Compiler) WithOutputFS(output pmfs.WritableFS) *Compiler {
	c.output = output
	return c
}

// WithInputFS overrides the filesystem module sources are resolved and read
// from. The default is the host filesystem rooted at the configured context.
func (c *Compiler) WithInputFS(input iofs.FS) *Compiler {
	c.input = input
	return c
}

// WithMounts adds extra filesystems addressable by resolve aliases.
func (c *Compiler) WithMounts(mounts map[string]iofs.FS) *Compiler {
	c.mounts = mounts
	return c
}

func (c *Compiler) WithLogger(logger *logging.Logger) *Compiler {
	c.logger = logger
	return c
}

func (c *Compiler) WithProgressBar(bar *progress.Bar) *Compiler {
	c.bar = bar
	return c
}

func (c *Compiler) init() {
	if c.driver != nil {
		return
	}
	if c.input == nil {
		c.input = os.DirFS(c.options.Context)
	}
	if c.logger.Level() >= logging.LevelDebug {
		c.input = util.NewTraceFS(c.input, c.logger)
	}
	if ok, err := pmfs.FSContainsFiles(c.input); err == nil && !ok {
		c.logger.Warnf("source context %q contains no files", c.options.Context)
	}
	c.resolvers = resolve.NewFactory(c.options.Resolve, c.input, c.mounts)
	plugins := append([]Plugin{NewEntryPlugin()}, c.plugins...)
	c.driver = NewPluginDriver(c.options, plugins, c.resolvers)
	c.cache = cache.New(cache.Options{})
}

// Options returns the configuration the compiler was built with.
func (c *Compiler) Options() *config.Root {
	return c.options
}

// LastCompilation returns the most recently finished compilation, or nil.
func (c *Compiler) LastCompilation() *Compilation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.compilation
}

// Build runs a full build from scratch: fresh compilation, fresh graph,
// every entry rebuilt.
func (c *Compiler) Build(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.init()

	compilation := c.newCompilation()
	return c.run(ctx, compilation, NewMakeParam())
}

// Rebuild runs an incremental build reacting to the given changed files.
// Without incremental make enabled, or before the first build, it degrades
// to a full build.
func (c *Compiler) Rebuild(ctx context.Context, changedFiles []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.init()

	prev := c.compilation
	if prev == nil || !c.options.IncrementalRebuildMakeEnabled() {
		compilation := c.newCompilation()
		return c.run(ctx, compilation, NewMakeParam())
	}

	compilation := c.newCompilation()
	compilation.Graph = prev.Graph
	for name, item := range prev.Entries() {
		compilation.AddEntry(name, item.DependencyID, item.Options)
	}

	var forced []graph.DependencyID
	for _, file := range changedFiles {
		for _, ident := range compilation.Graph.ModulesByFile(file) {
			// Every dependency resolved to the module must re-resolve, or
			// importers other than the origin lose their edges.
			forced = append(forced, compilation.Graph.IncomingDependencies(ident)...)
			compilation.Graph.RevokeModule(ident)
			c.logger.Debugf("revoked module %q for changed file %q", ident, file)
		}
	}
	slices.Sort(forced)
	forced = slices.Compact(forced)

	return c.run(ctx, compilation, ForcedMakeParam(forced))
}

func (c *Compiler) newCompilation() *Compilation {
	c.generation++
	return NewCompilation(c.options, c.driver, c.logger, c.generation)
}

// run is the shared build skeleton: lifecycle hooks around compile, cache
// idle bookkeeping, and the final emit and done handling.
func (c *Compiler) run(ctx context.Context, compilation *Compilation, param *MakeParam) error {
	target := c.options.Output.Path
	start := time.Now()
	metrics.BuildCount.Inc()
	metrics.LastBuildStart.WithLabelValues(target).SetToCurrentTime()
	defer func() {
		metrics.LastBuildEnd.WithLabelValues(target).SetToCurrentTime()
		metrics.BuildDuration.WithLabelValues(target).Observe(time.Since(start).Seconds())
		metrics.ResolverCacheSize.Set(float64(c.resolvers.NumEntries()))
	}()

	c.cache.EndIdle()
	c.resolvers.ClearEntries()

	err := func() error {
		if err := c.driver.BeforeCompile(ctx); err != nil {
			return fmt.Errorf("before_compile: %w", err)
		}
		if err := c.driver.ThisCompilation(ctx, compilation); err != nil {
			return fmt.Errorf("this_compilation: %w", err)
		}
		if err := c.driver.Compilation(ctx, compilation); err != nil {
			return fmt.Errorf("compilation: %w", err)
		}
		return c.compile(ctx, compilation, param)
	}()

	c.compilation = compilation

	// A failed phase aborts the rest of the lifecycle: the done hook only
	// ever sees builds that ran to completion.
	if err != nil {
		metrics.BuildFailed.WithLabelValues(target, "compile").Inc()
		c.settle(compilation)
		return err
	}

	c.cache.BeginIdle()

	if !c.options.Output.NoEmit {
		if err := c.emitAssets(ctx, compilation); err != nil {
			metrics.BuildFailed.WithLabelValues(target, "emit").Inc()
			c.settle(compilation)
			return errors.Join(ErrEmitFailed, err)
		}
	}

	return c.compileDone(ctx, compilation)
}

func (c *Compiler) settle(compilation *Compilation) {
	c.bar.Finish()
	for _, d := range compilation.Diagnostics() {
		c.logger.Warnf("%s", d)
	}
}

func (c *Compiler) compile(ctx context.Context, compilation *Compilation, param *MakeParam) error {
	if err := c.driver.Make(ctx, compilation, param); err != nil {
		return fmt.Errorf("make hook: %w", err)
	}

	runner := newMakeRunner(compilation, c.resolvers, c.cache)
	before := compilation.Graph.NumModules()
	if err := runner.Run(ctx, param); err != nil {
		return fmt.Errorf("make: %w", err)
	}
	built := compilation.Graph.NumModules() - before
	if built > 0 {
		metrics.ModulesBuilt.WithLabelValues(c.options.Output.Path).Add(float64(built))
	}
	c.bar.Add(1)

	if err := c.driver.FinishMake(ctx, compilation); err != nil {
		return fmt.Errorf("finish_make: %w", err)
	}
	if err := compilation.Finish(ctx); err != nil {
		return fmt.Errorf("finish: %w", err)
	}

	compilation.IncludeModuleIDs = map[string]struct{}{}
	for _, ident := range compilation.Graph.ModuleIdentifiers() {
		compilation.IncludeModuleIDs[ident] = struct{}{}
	}

	if c.analysisEnabled() {
		result := Analyze(compilation.Graph, compilation.Entries())
		compilation.UsedSymbolRefs = result.UsedSymbolRefs
		compilation.BailoutModuleIdentifiers = result.BailoutModules
		compilation.SideEffectsFreeModules = result.SideEffectFreeModules
		compilation.ModuleItemMap = result.ModuleItemMap
		compilation.PushDiagnostic(result.Diagnostics...)
		if c.options.Optimization.TreeShaking && c.options.Optimization.SideEffects {
			compilation.IncludeModuleIDs = result.IncludeModuleIDs
		}
	}
	c.bar.Add(1)

	if err := compilation.Seal(ctx); err != nil {
		return fmt.Errorf("seal: %w", err)
	}
	c.bar.Add(1)

	if err := c.driver.AfterCompile(ctx, compilation); err != nil {
		return fmt.Errorf("after_compile: %w", err)
	}

	compilation.PushDiagnostic(c.driver.TakeDiagnostics()...)
	return nil
}

// analysisEnabled reports whether export-usage analysis runs at all. Library
// output formats that expose static exports need the analysis results even
// when tree shaking itself is off.
func (c *Compiler) analysisEnabled() bool {
	if c.options.Optimization.TreeShaking {
		return true
	}
	for _, t := range c.options.Output.EnabledLibraryTypes() {
		if t == config.LibraryTypeModule || t == config.LibraryTypeCommonJSStatic {
			return true
		}
	}
	return false
}

func (c *Compiler) compileDone(ctx context.Context, compilation *Compilation) error {
	c.settle(compilation)
	if err := compilation.Done(ctx); err != nil {
		return fmt.Errorf("done: %w", err)
	}
	return nil
}
