// Package pipeline is the orchestration core of the bundler: the build-phase
// state machine (Compiler), the per-build mutable state (Compilation), the
// ordered hook dispatcher (PluginDriver) and the incremental make phase that
// rebuilds the module graph from forced dependencies.
package pipeline

import (
	"context"
)

// Plugin is the minimal contract every plugin satisfies. Hook participation
// is declared by additionally implementing the per-hook interfaces below;
// a hook a plugin does not implement is a no-op for that plugin.
type Plugin interface {
	Name() string
}

// Hook interfaces. The driver invokes them in plugin registration order and
// stops at the first error.

type BeforeCompilePlugin interface {
	BeforeCompile(ctx context.Context) error
}

// ThisCompilationPlugin fires only for compilations the compiler created
// fresh, CompilationPlugin for any compilation. Both fire on every Build
// because this core always replaces the compilation wholesale.
type ThisCompilationPlugin interface {
	ThisCompilation(ctx context.Context, c *Compilation) error
}

type CompilationPlugin interface {
	Compilation(ctx context.Context, c *Compilation) error
}

// MakePlugin participates in the make phase. The plugin may register
// dependencies into the module graph and append them to the force-build set
// of param.
type MakePlugin interface {
	Make(ctx context.Context, c *Compilation, param *MakeParam) error
}

type FinishMakePlugin interface {
	FinishMake(ctx context.Context, c *Compilation) error
}

type FinishPlugin interface {
	Finish(ctx context.Context, c *Compilation) error
}

type EmitPlugin interface {
	Emit(ctx context.Context, c *Compilation) error
}

type AfterEmitPlugin interface {
	AfterEmit(ctx context.Context, c *Compilation) error
}

type AfterCompilePlugin interface {
	AfterCompile(ctx context.Context, c *Compilation) error
}

type DonePlugin interface {
	Done(ctx context.Context, c *Compilation) error
}

// AssetEmittedPlugin is notified once per physically written asset.
type AssetEmittedPlugin interface {
	AssetEmitted(ctx context.Context, args *AssetEmittedArgs) error
}

// AssetEmittedArgs is the immutable event record passed to AssetEmitted.
type AssetEmittedArgs struct {
	Filename    string
	OutputPath  string
	Source      []byte
	TargetPath  string
	Compilation *Compilation
}
