package pipeline

import (
	"context"
	"sync"

	"github.com/packmill/packmill/internal/config"
	"github.com/packmill/packmill/internal/diagnostics"
	"github.com/packmill/packmill/internal/resolve"
)

// PluginDriver fans one hook call out to every registered plugin, in
// registration order, awaiting each before moving to the next. Later plugins
// observe earlier plugins' mutations of the shared Compilation; the first
// plugin to fail short-circuits the remaining ones.
//
// The driver holds no build state of its own, only the plugin list and a
// side channel for plugin-raised diagnostics drained once per compile.
type PluginDriver struct {
	Options         *config.Root
	ResolverFactory *resolve.Factory

	plugins []Plugin

	mu          sync.Mutex
	diagnostics []diagnostics.Diagnostic
}

func NewPluginDriver(options *config.Root, plugins []Plugin, resolverFactory *resolve.Factory) *PluginDriver {
	return &PluginDriver{
		Options:         options,
		ResolverFactory: resolverFactory,
		plugins:         plugins,
	}
}

// Plugins returns the registered plugins in order.
func (d *PluginDriver) Plugins() []Plugin {
	return d.plugins
}

// AddDiagnostic records a plugin-raised diagnostic. It is consumed by the
// orchestrator via TakeDiagnostics after the after_compile hook.
func (d *PluginDriver) AddDiagnostic(ds ...diagnostics.Diagnostic) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.diagnostics = append(d.diagnostics, ds...)
}

// TakeDiagnostics drains the accumulated plugin diagnostics.
func (d *PluginDriver) TakeDiagnostics() []diagnostics.Diagnostic {
	d.mu.Lock()
	defer d.mu.Unlock()
	ds := d.diagnostics
	d.diagnostics = nil
	return ds
}

func (d *PluginDriver) BeforeCompile(ctx context.Context) error {
	for _, p := range d.plugins {
		if h, ok := p.(BeforeCompilePlugin); ok {
			if err := h.BeforeCompile(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *PluginDriver) ThisCompilation(ctx context.Context, c *Compilation) error {
	for _, p := range d.plugins {
		if h, ok := p.(ThisCompilationPlugin); ok {
			if err := h.ThisCompilation(ctx, c); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *PluginDriver) Compilation(ctx context.Context, c *Compilation) error {
	for _, p := range d.plugins {
		if h, ok := p.(CompilationPlugin); ok {
			if err := h.Compilation(ctx, c); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *PluginDriver) Make(ctx context.Context, c *Compilation, param *MakeParam) error {
	for _, p := range d.plugins {
		if h, ok := p.(MakePlugin); ok {
			if err := h.Make(ctx, c, param); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *PluginDriver) FinishMake(ctx context.Context, c *Compilation) error {
	for _, p := range d.plugins {
		if h, ok := p.(FinishMakePlugin); ok {
			if err := h.FinishMake(ctx, c); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *PluginDriver) Finish(ctx context.Context, c *Compilation) error {
	for _, p := range d.plugins {
		if h, ok := p.(FinishPlugin); ok {
			if err := h.Finish(ctx, c); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *PluginDriver) Emit(ctx context.Context, c *Compilation) error {
	for _, p := range d.plugins {
		if h, ok := p.(EmitPlugin); ok {
			if err := h.Emit(ctx, c); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *PluginDriver) AfterEmit(ctx context.Context, c *Compilation) error {
	for _, p := range d.plugins {
		if h, ok := p.(AfterEmitPlugin); ok {
			if err := h.AfterEmit(ctx, c); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *PluginDriver) AfterCompile(ctx context.Context, c *Compilation) error {
	for _, p := range d.plugins {
		if h, ok := p.(AfterCompilePlugin); ok {
			if err := h.AfterCompile(ctx, c); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *PluginDriver) Done(ctx context.Context, c *Compilation) error {
	for _, p := range d.plugins {
		if h, ok := p.(DonePlugin); ok {
			if err := h.Done(ctx, c); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *PluginDriver) AssetEmitted(ctx context.Context, args *AssetEmittedArgs) error {
	for _, p := range d.plugins {
		if h, ok := p.(AssetEmittedPlugin); ok {
			if err := h.AssetEmitted(ctx, args); err != nil {
				return err
			}
		}
	}
	return nil
}
