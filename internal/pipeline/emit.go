package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"golang.org/x/sync/errgroup"

	pmfs "github.com/packmill/packmill/internal/fs"
	"github.com/packmill/packmill/internal/metrics"
)

// ErrEmitFailed marks build failures originating in the emission stage, after
// the compilation itself succeeded. Callers can match it with errors.Is to
// tell a broken build from an unwritable output target.
var ErrEmitFailed = errors.New("emit failed")

// emitAssets writes the compilation's assets to the output filesystem. With
// incremental emission on, assets whose content version matches the previous
// build are skipped. Writes run concurrently; every asset gets its attempt
// and the first error is reported after all of them settle.
func (c *Compiler) emitAssets(ctx context.Context, compilation *Compilation) error {
	target := c.options.Output.Path
	start := time.Now()
	defer func() {
		metrics.AssetEmitDuration.WithLabelValues(target).Observe(time.Since(start).Seconds())
	}()

	if c.options.Output.Clean {
		if len(c.versions) == 0 {
			c.cleanOutput(ctx, compilation)
		} else {
			c.pruneStale(ctx, compilation)
		}
	}

	if err := c.driver.Emit(ctx, compilation); err != nil {
		return fmt.Errorf("emit hook: %w", err)
	}

	assets := compilation.Assets()
	incremental := c.options.IncrementalRebuildEmitAssetEnabled()
	newVersions := make(map[string]string, len(assets))

	var g errgroup.Group
	for filename, asset := range assets {
		version := asset.Info.Version
		if incremental {
			newVersions[filename] = version
			if version != "" && c.versions[filename] == version {
				metrics.AssetsSkipped.WithLabelValues(target).Inc()
				c.logger.Debugf("asset %q unchanged, skipping write", filename)
				continue
			}
		}
		g.Go(func() error {
			return c.emitAsset(ctx, compilation, filename, asset)
		})
	}

	err := g.Wait()
	if incremental {
		c.versions = newVersions
	}
	if err != nil {
		return err
	}

	if err := c.driver.AfterEmit(ctx, compilation); err != nil {
		return fmt.Errorf("after_emit hook: %w", err)
	}
	return nil
}

func (c *Compiler) emitAsset(ctx context.Context, compilation *Compilation, filename string, asset *Asset) error {
	target := c.options.Output.Path
	source := asset.GetSource()

	// The asset keeps its query-bearing name in the compilation, but the
	// query never reaches the filesystem.
	diskName := filename
	if i := strings.IndexByte(diskName, '?'); i >= 0 {
		diskName = diskName[:i]
	}
	targetPath := path.Join(target, diskName)

	if err := c.output.CreateDirAll(ctx, path.Dir(targetPath)); err != nil {
		metrics.AssetEmitFailed.WithLabelValues(target).Inc()
		return fmt.Errorf("emit %s: %w", filename, err)
	}
	if err := c.output.Write(ctx, targetPath, source); err != nil {
		metrics.AssetEmitFailed.WithLabelValues(target).Inc()
		return fmt.Errorf("emit %s: %w", filename, err)
	}

	metrics.AssetsEmitted.WithLabelValues(target).Inc()
	compilation.MarkEmitted(filename)

	return c.driver.AssetEmitted(ctx, &AssetEmittedArgs{
		Filename:    filename,
		OutputPath:  target,
		Source:      source,
		TargetPath:  targetPath,
		Compilation: compilation,
	})
}

// cleanOutput empties the output directory ahead of the first emission.
// Failures here are logged and ignored; a leftover file never fails a build.
func (c *Compiler) cleanOutput(ctx context.Context, compilation *Compilation) {
	target := c.options.Output.Path
	keep := c.keepMatchers()

	if len(keep) == 0 {
		if err := c.output.RemoveDirAll(ctx, target); err != nil {
			c.logger.Warnf("failed to clean output directory %q: %v", target, err)
		}
		return
	}

	lister, ok := c.output.(pmfs.ListableFS)
	if !ok {
		c.logger.Debugf("output filesystem is not listable, skipping clean")
		return
	}
	files, err := lister.List(ctx, target)
	if err != nil {
		c.logger.Warnf("failed to list output directory %q: %v", target, err)
		return
	}
	for _, file := range files {
		if matchAny(keep, file) {
			continue
		}
		if err := c.output.RemoveFile(ctx, path.Join(target, file)); err != nil {
			c.logger.Warnf("failed to remove %q: %v", file, err)
		}
	}
}

// pruneStale removes files that earlier builds emitted but the current
// compilation no longer produces. Only tracked filenames are candidates;
// files the output directory acquired by other means are never touched.
func (c *Compiler) pruneStale(ctx context.Context, compilation *Compilation) {
	target := c.options.Output.Path
	keep := c.keepMatchers()

	current := map[string]struct{}{}
	for _, filename := range compilation.AssetFilenames() {
		current[filename] = struct{}{}
	}

	for filename := range c.versions {
		if _, ok := current[filename]; ok {
			continue
		}
		diskName := filename
		if i := strings.IndexByte(diskName, '?'); i >= 0 {
			diskName = diskName[:i]
		}
		if matchAny(keep, diskName) {
			continue
		}
		if err := c.output.RemoveFile(ctx, path.Join(target, diskName)); err != nil {
			c.logger.Warnf("failed to remove stale file %q: %v", diskName, err)
		}
		delete(c.versions, filename)
	}
}

// keepMatchers compiles the configured keep patterns. The patterns were
// validated at config load, so compile failures only happen for options
// constructed in code; those patterns are skipped.
func (c *Compiler) keepMatchers() []glob.Glob {
	var matchers []glob.Glob
	for _, pattern := range c.options.Output.Keep {
		g, err := glob.Compile(pattern)
		if err != nil {
			c.logger.Warnf("invalid keep pattern %q: %v", pattern, err)
			continue
		}
		matchers = append(matchers, g)
	}
	return matchers
}

func matchAny(matchers []glob.Glob, file string) bool {
	for _, m := range matchers {
		if m.Match(file) {
			return true
		}
	}
	return false
}
