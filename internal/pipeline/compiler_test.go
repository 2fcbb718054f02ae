package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"

	"github.com/packmill/packmill/internal/config"
	pmfs "github.com/packmill/packmill/internal/fs"
	"github.com/packmill/packmill/internal/graph"
	"github.com/packmill/packmill/internal/util"
)

func testConfig(entries map[string]string) *config.Root {
	root := &config.Root{Entry: map[string]*config.Entry{}}
	for name, imp := range entries {
		root.Entry[name] = &config.Entry{Name: name, Import: imp}
	}
	root.ApplyDefaults()
	return root
}

func chunk(t *testing.T, out *pmfs.MemFS, name string) string {
	t.Helper()
	if !out.Exists("dist/" + name) {
		t.Fatalf("expected asset %q in the output directory", name)
	}
	return string(out.Content("dist/" + name))
}

func TestBuildRendersDependencyFirst(t *testing.T) {
	ctx := context.Background()
	input := util.MapFS(map[string]string{
		"src/index.js": "import { greet } from './lib.js'\ngreet()\n",
		"src/lib.js":   "export function greet() {}\n",
	})
	out := pmfs.NewMemFS()

	c := New(testConfig(map[string]string{"main": "./src/index.js"})).
		WithInputFS(input).
		WithOutputFS(out)

	if err := c.Build(ctx); err != nil {
		t.Fatal(err)
	}

	content := chunk(t, out, "main.js")
	lib := strings.Index(content, "// module: src/lib.js")
	index := strings.Index(content, "// module: src/index.js")
	if lib < 0 || index < 0 {
		t.Fatalf("expected both module headers in chunk, got:\n%s", content)
	}
	if lib > index {
		t.Errorf("expected dependency before importer, got:\n%s", content)
	}

	comp := c.LastCompilation()
	if comp == nil || !comp.IsFirstBuild() {
		t.Fatal("expected a first-build compilation")
	}
	if len(comp.Errors()) != 0 {
		t.Errorf("expected no error diagnostics, got %v", comp.Errors())
	}
	if !comp.Emitted("main.js") {
		t.Error("expected main.js to be marked emitted")
	}
}

func TestSharedModuleAppearsInEveryChunk(t *testing.T) {
	ctx := context.Background()
	input := util.MapFS(map[string]string{
		"a.js":      "import { shared } from './shared.js'\nshared()\n",
		"b.js":      "import { shared } from './shared.js'\nshared()\n",
		"shared.js": "export function shared() {}\n",
	})
	out := pmfs.NewMemFS()

	c := New(testConfig(map[string]string{"a": "./a.js", "b": "./b.js"})).
		WithInputFS(input).
		WithOutputFS(out)

	if err := c.Build(ctx); err != nil {
		t.Fatal(err)
	}

	comp := c.LastCompilation()
	if exp, act := 3, comp.Graph.NumModules(); exp != act {
		t.Errorf("expected shared module built once, %d modules total, got %d", exp, act)
	}
	for _, name := range []string{"a.js", "b.js"} {
		if !strings.Contains(chunk(t, out, name), "// module: shared.js") {
			t.Errorf("expected %q to contain the shared module", name)
		}
	}
	if diff := cmp.Diff([]string{"a.js", "b.js"}, comp.AssetFilenames()); diff != "" {
		t.Errorf("unexpected assets (-want +got):\n%s", diff)
	}
}

func TestUnresolvedEntryBecomesDiagnostic(t *testing.T) {
	ctx := context.Background()
	out := pmfs.NewMemFS()

	c := New(testConfig(map[string]string{"main": "./missing.js"})).
		WithInputFS(util.MapFS(map[string]string{"other.js": ""})).
		WithOutputFS(out)

	// Resolution failures degrade to diagnostics, not a failed build.
	if err := c.Build(ctx); err != nil {
		t.Fatal(err)
	}

	comp := c.LastCompilation()
	if len(comp.Errors()) == 0 {
		t.Fatal("expected error diagnostics for the unresolved entry")
	}
	found := false
	for _, d := range comp.Diagnostics() {
		if strings.Contains(d.Message, "entry was never resolved") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected an unresolved-entry diagnostic, got %v", comp.Diagnostics())
	}
	if out.Exists("dist/main.js") {
		t.Error("expected no chunk for an unresolved entry")
	}
}

func TestNoEmitSkipsAllWrites(t *testing.T) {
	ctx := context.Background()
	out := pmfs.NewMemFS()

	options := testConfig(map[string]string{"main": "./index.js"})
	options.Output.NoEmit = true

	c := New(options).
		WithInputFS(util.MapFS(map[string]string{"index.js": "const a = 1\n"})).
		WithOutputFS(out)

	if err := c.Build(ctx); err != nil {
		t.Fatal(err)
	}
	if out.WriteCount() != 0 {
		t.Errorf("expected zero writes with emission off, got %d", out.WriteCount())
	}
	if comp := c.LastCompilation(); comp.GetAsset("main.js") == nil {
		t.Error("expected the asset to exist in the compilation even without emission")
	}
}

func TestIncrementalEmitSkipsUnchangedAssets(t *testing.T) {
	ctx := context.Background()
	out := pmfs.NewMemFS()

	options := testConfig(map[string]string{"main": "./index.js"})
	options.Incremental.RebuildEmitAsset = true

	c := New(options).
		WithInputFS(util.MapFS(map[string]string{"index.js": "const a = 1\n"})).
		WithOutputFS(out)

	if err := c.Build(ctx); err != nil {
		t.Fatal(err)
	}
	writes := out.WriteCount()
	if writes == 0 {
		t.Fatal("expected the first build to write")
	}

	if err := c.Build(ctx); err != nil {
		t.Fatal(err)
	}
	if out.WriteCount() != writes {
		t.Errorf("expected the unchanged asset to be skipped, writes went %d -> %d", writes, out.WriteCount())
	}
	if c.LastCompilation().Emitted("main.js") {
		t.Error("expected main.js not to be marked emitted on the skipped build")
	}
}

func TestRebuildAfterFileChange(t *testing.T) {
	ctx := context.Background()
	lib := &fstest.MapFile{Data: []byte("export const version = 'one'\n")}
	input := fstest.MapFS{
		"src/index.js": &fstest.MapFile{Data: []byte("import { version } from './lib.js'\nconsole.log(version)\n")},
		"src/lib.js":   lib,
	}
	out := pmfs.NewMemFS()

	options := testConfig(map[string]string{"main": "./src/index.js"})
	options.Incremental.RebuildMake = true
	options.Incremental.RebuildEmitAsset = true

	c := New(options).WithInputFS(input).WithOutputFS(out)

	if err := c.Build(ctx); err != nil {
		t.Fatal(err)
	}
	first := c.LastCompilation()
	if !strings.Contains(chunk(t, out, "main.js"), "'one'") {
		t.Fatal("expected the first build to render the original source")
	}

	lib.Data = []byte("export const version = 'two'\n")
	if err := c.Rebuild(ctx, []string{"src/lib.js"}); err != nil {
		t.Fatal(err)
	}

	second := c.LastCompilation()
	if second.Graph != first.Graph {
		t.Error("expected the rebuild to reuse the module graph")
	}
	if second.IsFirstBuild() {
		t.Error("expected a later build generation")
	}
	if !strings.Contains(chunk(t, out, "main.js"), "'two'") {
		t.Error("expected the rebuild to pick up the changed source")
	}

	// A rebuild with nothing changed emits nothing.
	writes := out.WriteCount()
	if err := c.Rebuild(ctx, nil); err != nil {
		t.Fatal(err)
	}
	if out.WriteCount() != writes {
		t.Errorf("expected no writes on a no-op rebuild, writes went %d -> %d", writes, out.WriteCount())
	}
}

func TestRebuildWithoutIncrementalMakeDegrades(t *testing.T) {
	ctx := context.Background()
	out := pmfs.NewMemFS()

	c := New(testConfig(map[string]string{"main": "./index.js"})).
		WithInputFS(util.MapFS(map[string]string{"index.js": "const a = 1\n"})).
		WithOutputFS(out)

	if err := c.Build(ctx); err != nil {
		t.Fatal(err)
	}
	first := c.LastCompilation()

	if err := c.Rebuild(ctx, []string{"index.js"}); err != nil {
		t.Fatal(err)
	}
	second := c.LastCompilation()
	if second.Graph == first.Graph {
		t.Error("expected a fresh graph when incremental make is off")
	}
	if !out.Exists("dist/main.js") {
		t.Error("expected the degraded rebuild to emit")
	}
}

func TestCleanWipesOutputBeforeFirstEmit(t *testing.T) {
	ctx := context.Background()
	out := pmfs.NewMemFS()
	if err := out.CreateDirAll(ctx, "dist"); err != nil {
		t.Fatal(err)
	}
	if err := out.Write(ctx, "dist/stale.js", []byte("old")); err != nil {
		t.Fatal(err)
	}

	options := testConfig(map[string]string{"main": "./index.js"})
	options.Output.Clean = true

	c := New(options).
		WithInputFS(util.MapFS(map[string]string{"index.js": "const a = 1\n"})).
		WithOutputFS(out)

	if err := c.Build(ctx); err != nil {
		t.Fatal(err)
	}
	if out.Exists("dist/stale.js") {
		t.Error("expected the leftover file to be cleaned")
	}
	if !out.Exists("dist/main.js") {
		t.Error("expected the chunk to be written after cleaning")
	}
}

func TestCleanHonorsKeepPatterns(t *testing.T) {
	ctx := context.Background()
	out := pmfs.NewMemFS()
	if err := out.CreateDirAll(ctx, "dist"); err != nil {
		t.Fatal(err)
	}
	for name, data := range map[string]string{"dist/stale.js": "old", "dist/notes.txt": "keep me"} {
		if err := out.Write(ctx, name, []byte(data)); err != nil {
			t.Fatal(err)
		}
	}

	options := testConfig(map[string]string{"main": "./index.js"})
	options.Output.Clean = true
	options.Output.Keep = config.StringSet{"*.txt"}

	c := New(options).
		WithInputFS(util.MapFS(map[string]string{"index.js": "const a = 1\n"})).
		WithOutputFS(out)

	if err := c.Build(ctx); err != nil {
		t.Fatal(err)
	}
	if out.Exists("dist/stale.js") {
		t.Error("expected the stale file to be removed")
	}
	if !out.Exists("dist/notes.txt") {
		t.Error("expected the kept file to survive cleaning")
	}
}

func TestCleanPrunesStaleEmittedAssets(t *testing.T) {
	ctx := context.Background()
	out := pmfs.NewMemFS()

	options := testConfig(map[string]string{"main": "./index.js", "extra": "./extra.js"})
	options.Output.Clean = true
	options.Incremental.RebuildEmitAsset = true

	c := New(options).
		WithInputFS(util.MapFS(map[string]string{
			"index.js": "const a = 1\n",
			"extra.js": "const b = 2\n",
		})).
		WithOutputFS(out)

	if err := c.Build(ctx); err != nil {
		t.Fatal(err)
	}
	if !out.Exists("dist/extra.js") {
		t.Fatal("expected both chunks after the first build")
	}

	// The second build no longer produces extra.js, and a file placed in the
	// output directory by someone else is not ours to delete.
	delete(options.Entry, "extra")
	if err := out.Write(ctx, "dist/external.txt", []byte("not ours")); err != nil {
		t.Fatal(err)
	}
	if err := c.Build(ctx); err != nil {
		t.Fatal(err)
	}

	if out.Exists("dist/extra.js") {
		t.Error("expected the no-longer-emitted chunk to be pruned")
	}
	if !out.Exists("dist/external.txt") {
		t.Error("expected the externally-placed file to survive pruning")
	}
	if !out.Exists("dist/main.js") {
		t.Error("expected the current chunk to survive pruning")
	}
}

func TestTreeShakingExcludesUnusedModules(t *testing.T) {
	ctx := context.Background()
	input := util.MapFS(map[string]string{
		"src/index.js": "import { used } from './lib.js'\nimport './dead.js'\nconsole.log(used)\n",
		"src/lib.js":   "export const used = 1\nexport const unused = 2\n",
		"src/dead.js":  "export const nothing = 3\n",
	})
	out := pmfs.NewMemFS()

	options := testConfig(map[string]string{"main": "./src/index.js"})
	options.Optimization = config.Optimization{TreeShaking: true, SideEffects: true}

	c := New(options).WithInputFS(input).WithOutputFS(out)
	if err := c.Build(ctx); err != nil {
		t.Fatal(err)
	}

	content := chunk(t, out, "main.js")
	if !strings.Contains(content, "// module: src/lib.js") {
		t.Error("expected the used module to stay in the chunk")
	}
	if strings.Contains(content, "// module: src/dead.js") {
		t.Error("expected the unused side-effect-free module to be dropped")
	}

	comp := c.LastCompilation()
	if _, ok := comp.UsedSymbolRefs["src/lib.js"]["used"]; !ok {
		t.Errorf("expected 'used' to be recorded as used, got %v", comp.UsedSymbolRefs)
	}
	if _, ok := comp.SideEffectsFreeModules["src/dead.js"]; !ok {
		t.Error("expected dead.js to be recognized as side-effect free")
	}
}

func TestLibraryOutputAnalyzesWithoutNarrowing(t *testing.T) {
	ctx := context.Background()
	input := util.MapFS(map[string]string{
		"src/index.js": "import './dead.js'\nexport const api = 1\n",
		"src/dead.js":  "export const nothing = 3\n",
	})
	out := pmfs.NewMemFS()

	options := testConfig(map[string]string{"main": "./src/index.js"})
	options.Output.Library = &config.Library{Types: config.StringSet{config.LibraryTypeModule}}

	c := New(options).WithInputFS(input).WithOutputFS(out)
	if err := c.Build(ctx); err != nil {
		t.Fatal(err)
	}

	comp := c.LastCompilation()
	if comp.UsedSymbolRefs == nil {
		t.Fatal("expected analysis to run for a static library output")
	}
	// Without both tree_shaking and side_effects the chunk keeps everything.
	if !strings.Contains(chunk(t, out, "main.js"), "// module: src/dead.js") {
		t.Error("expected the unused module to stay without tree shaking enabled")
	}
}

func TestBailoutModuleKeepsItsImports(t *testing.T) {
	ctx := context.Background()
	input := util.MapFS(map[string]string{
		"src/index.js": "import './dead.js'\neval(code)\n",
		"src/dead.js":  "export const nothing = 3\n",
	})
	out := pmfs.NewMemFS()

	options := testConfig(map[string]string{"main": "./src/index.js"})
	options.Optimization = config.Optimization{TreeShaking: true, SideEffects: true}

	c := New(options).WithInputFS(input).WithOutputFS(out)
	if err := c.Build(ctx); err != nil {
		t.Fatal(err)
	}

	comp := c.LastCompilation()
	if _, ok := comp.BailoutModuleIdentifiers["src/index.js"]; !ok {
		t.Fatal("expected the eval module to bail out of analysis")
	}
	if !strings.Contains(chunk(t, out, "main.js"), "// module: src/dead.js") {
		t.Error("expected imports of a bailout module to be retained")
	}
	warned := false
	for _, d := range comp.Diagnostics() {
		if strings.Contains(d.Message, "defeats export analysis") {
			warned = true
		}
	}
	if !warned {
		t.Errorf("expected a bailout warning, got %v", comp.Diagnostics())
	}
}

type failingPlugin struct {
	err error
}

func (p *failingPlugin) Name() string { return "failing" }

func (p *failingPlugin) BeforeCompile(ctx context.Context) error { return p.err }

func TestHookErrorFailsBuild(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")

	c := New(testConfig(map[string]string{"main": "./index.js"})).
		WithInputFS(util.MapFS(map[string]string{"index.js": ""})).
		WithOutputFS(pmfs.NewMemFS()).
		WithPlugins(&failingPlugin{err: boom})

	err := c.Build(ctx)
	if !errors.Is(err, boom) {
		t.Fatalf("expected the hook error to surface, got %v", err)
	}
	if !strings.Contains(err.Error(), "before_compile") {
		t.Errorf("expected the failing phase in the error, got %v", err)
	}
	if c.LastCompilation() == nil {
		t.Error("expected the failed compilation to remain inspectable")
	}
}

func TestWriteFailureDoesNotStopOtherAssets(t *testing.T) {
	ctx := context.Background()
	out := pmfs.NewMemFS()
	diskFull := errors.New("disk full")
	out.FailWrites("dist/a.js", diskFull)

	c := New(testConfig(map[string]string{"a": "./a.js", "b": "./b.js"})).
		WithInputFS(util.MapFS(map[string]string{"a.js": "const a = 1\n", "b.js": "const b = 2\n"})).
		WithOutputFS(out)

	err := c.Build(ctx)
	if !errors.Is(err, diskFull) {
		t.Fatalf("expected the write failure to surface, got %v", err)
	}
	if !out.Exists("dist/b.js") {
		t.Error("expected the unaffected asset to be written anyway")
	}
	comp := c.LastCompilation()
	if comp.Emitted("a.js") {
		t.Error("expected the failed asset not to be marked emitted")
	}
	if !comp.Emitted("b.js") {
		t.Error("expected the written asset to be marked emitted")
	}
}

type extraAssetPlugin struct{}

func (p *extraAssetPlugin) Name() string { return "extra-asset" }

func (p *extraAssetPlugin) Finish(ctx context.Context, c *Compilation) error {
	c.EmitAsset("extra.txt?v=1", NewAsset([]byte("payload")))
	return nil
}

func TestAssetQueryNeverReachesDisk(t *testing.T) {
	ctx := context.Background()
	out := pmfs.NewMemFS()

	c := New(testConfig(map[string]string{"main": "./index.js"})).
		WithInputFS(util.MapFS(map[string]string{"index.js": ""})).
		WithOutputFS(out).
		WithPlugins(&extraAssetPlugin{})

	if err := c.Build(ctx); err != nil {
		t.Fatal(err)
	}
	if !out.Exists("dist/extra.txt") {
		t.Fatal("expected the plugin asset under its query-less path")
	}
	if out.Exists("dist/extra.txt?v=1") {
		t.Error("expected no query suffix on disk")
	}
	if !c.LastCompilation().Emitted("extra.txt?v=1") {
		t.Error("expected the asset tracked under its full name")
	}
}

type recordingPlugin struct {
	mu      sync.Mutex
	emitted []string
}

func (p *recordingPlugin) Name() string { return "recording" }

func (p *recordingPlugin) AssetEmitted(ctx context.Context, args *AssetEmittedArgs) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.emitted = append(p.emitted, args.TargetPath)
	return nil
}

func TestAssetEmittedHookFiresPerWrite(t *testing.T) {
	ctx := context.Background()
	rec := &recordingPlugin{}

	c := New(testConfig(map[string]string{"main": "./index.js"})).
		WithInputFS(util.MapFS(map[string]string{"index.js": "const a = 1\n"})).
		WithOutputFS(pmfs.NewMemFS()).
		WithPlugins(rec)

	if err := c.Build(ctx); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"dist/main.js"}, rec.emitted); diff != "" {
		t.Errorf("unexpected emitted notifications (-want +got):\n%s", diff)
	}
}

type sideDepPlugin struct{}

func (p *sideDepPlugin) Name() string { return "side-dep" }

func (p *sideDepPlugin) Make(ctx context.Context, c *Compilation, param *MakeParam) error {
	dep := graph.NewDependency("./side.js", graph.KindImport, ".")
	c.Graph.AddDependency(dep)
	param.AddForceBuildDependency(dep.ID())
	return nil
}

func TestMakePluginForcesExtraModules(t *testing.T) {
	ctx := context.Background()
	input := util.MapFS(map[string]string{
		"index.js": "const a = 1\n",
		"side.js":  "export const injected = true\n",
	})

	c := New(testConfig(map[string]string{"main": "./index.js"})).
		WithInputFS(input).
		WithOutputFS(pmfs.NewMemFS()).
		WithPlugins(&sideDepPlugin{})

	if err := c.Build(ctx); err != nil {
		t.Fatal(err)
	}

	comp := c.LastCompilation()
	if _, ok := comp.Graph.Module("side.js"); !ok {
		t.Error("expected the force-built module in the graph")
	}
	if len(comp.Errors()) != 0 {
		t.Errorf("expected no error diagnostics, got %v", comp.Errors())
	}
}

type doneRecorder struct {
	finishMakeErr error

	mu   sync.Mutex
	done int
}

func (p *doneRecorder) Name() string { return "done-recorder" }

func (p *doneRecorder) FinishMake(ctx context.Context, c *Compilation) error {
	return p.finishMakeErr
}

func (p *doneRecorder) Done(ctx context.Context, c *Compilation) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done++
	return nil
}

func (p *doneRecorder) doneCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

func TestDoneHookSkippedWhenBuildFails(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("finish make exploded")
	rec := &doneRecorder{finishMakeErr: boom}

	c := New(testConfig(map[string]string{"main": "./index.js"})).
		WithInputFS(util.MapFS(map[string]string{"index.js": "const a = 1\n"})).
		WithOutputFS(pmfs.NewMemFS()).
		WithPlugins(rec)

	err := c.Build(ctx)
	if !errors.Is(err, boom) {
		t.Fatalf("expected the hook error to surface, got %v", err)
	}
	if got := rec.doneCalls(); got != 0 {
		t.Errorf("expected no done notification for a failed build, got %d", got)
	}
}

func TestDoneHookFiresOncePerFinishedBuild(t *testing.T) {
	ctx := context.Background()
	rec := &doneRecorder{}

	c := New(testConfig(map[string]string{"main": "./index.js"})).
		WithInputFS(util.MapFS(map[string]string{"index.js": "const a = 1\n"})).
		WithOutputFS(pmfs.NewMemFS()).
		WithPlugins(rec)

	if err := c.Build(ctx); err != nil {
		t.Fatal(err)
	}
	if got := rec.doneCalls(); got != 1 {
		t.Errorf("expected exactly one done notification, got %d", got)
	}
}

type namedHookPlugin struct {
	name string
	err  error

	mu  *sync.Mutex
	log *[]string
}

func (p *namedHookPlugin) Name() string { return p.name }

func (p *namedHookPlugin) BeforeCompile(ctx context.Context) error {
	p.mu.Lock()
	*p.log = append(*p.log, p.name)
	p.mu.Unlock()
	return p.err
}

func TestHookErrorStopsLaterPlugins(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("second plugin failed")

	var mu sync.Mutex
	var log []string
	plugins := []Plugin{
		&namedHookPlugin{name: "first", mu: &mu, log: &log},
		&namedHookPlugin{name: "second", err: boom, mu: &mu, log: &log},
		&namedHookPlugin{name: "third", mu: &mu, log: &log},
	}

	c := New(testConfig(map[string]string{"main": "./index.js"})).
		WithInputFS(util.MapFS(map[string]string{"index.js": "const a = 1\n"})).
		WithOutputFS(pmfs.NewMemFS()).
		WithPlugins(plugins...)

	err := c.Build(ctx)
	if !errors.Is(err, boom) {
		t.Fatalf("expected the second plugin's error, got %v", err)
	}
	if diff := cmp.Diff([]string{"first", "second"}, log); diff != "" {
		t.Errorf("unexpected hook invocations (-want +got):\n%s", diff)
	}
}
