package service

import (
	"context"
	iofs "io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/packmill/packmill/internal/config"
	pmfs "github.com/packmill/packmill/internal/fs"
	"github.com/packmill/packmill/internal/logging"
	"github.com/packmill/packmill/internal/pipeline"
	"github.com/packmill/packmill/internal/pool"
	"github.com/packmill/packmill/internal/progress"
	"github.com/packmill/packmill/internal/watch"
)

// Service wires a compiler into a worker pool and, in watch mode, a
// filesystem watcher. Single-shot mode runs one build and returns its
// outcome; watch mode keeps rebuilding until the context is canceled.
type Service struct {
	options    *config.Root
	logger     *logging.Logger
	bar        *progress.Bar
	output     pmfs.WritableFS
	input      iofs.FS
	singleShot bool
	plugins    []pipeline.Plugin

	worker *BuildWorker
}

func New(options *config.Root) *Service {
	return &Service{
		options: options,
		logger:  logging.NewLogger(logging.Config{Level: logging.LevelError}),
		bar:     progress.Null(),
	}
}

func (s *Service) WithLogger(logger *logging.Logger) *Service {
	s.logger = logger
	return s
}

func (s *Service) WithProgressBar(bar *progress.Bar) *Service {
	s.bar = bar
	return s
}

func (s *Service) WithOutputFS(output pmfs.WritableFS) *Service {
	s.output = output
	return s
}

func (s *Service) WithInputFS(input iofs.FS) *Service {
	s.input = input
	return s
}

func (s *Service) WithSingleShot(singleShot bool) *Service {
	s.singleShot = singleShot
	return s
}

func (s *Service) WithPlugins(plugins ...pipeline.Plugin) *Service {
	s.plugins = append(s.plugins, plugins...)
	return s
}

// Status returns the worker's last reported status.
func (s *Service) Status() Status {
	if s.worker == nil {
		return Status{}
	}
	return s.worker.Status()
}

// Compiler returns the underlying compiler once Run has assembled it.
func (s *Service) Compiler() *pipeline.Compiler {
	if s.worker == nil {
		return nil
	}
	return s.worker.compiler
}

// Run assembles the compiler and blocks until the service is done: after one
// iteration in single-shot mode, or until ctx cancelation in watch mode.
func (s *Service) Run(ctx context.Context) error {
	compiler := pipeline.New(s.options).
		WithLogger(s.logger).
		WithProgressBar(s.bar)
	if s.output != nil {
		compiler = compiler.WithOutputFS(s.output)
	}
	if s.input != nil {
		compiler = compiler.WithInputFS(s.input)
	}

	plugins := s.plugins
	if s.options.Minify != nil {
		plugins = append([]pipeline.Plugin{pipeline.NewMinifyPlugin(s.options.Minify)}, plugins...)
	}
	compiler = compiler.WithPlugins(plugins...)

	const name = "build"
	s.worker = NewBuildWorker(name, s.options, compiler, s.logger, s.bar).
		WithSingleShot(s.singleShot)

	workers := pool.New(1)
	workers.Add(name, s.worker.Execute)

	if !s.singleShot && s.options.Watch != nil && len(s.options.Watch.Paths) > 0 {
		watcher := watch.New(s.options.Watch.Paths, time.Duration(s.options.Watch.Debounce), s.logger)
		go func() {
			if err := watcher.Run(ctx, func(files []string) {
				s.worker.Invalidate(rebasePaths(s.options.Context, files)...)
				if err := workers.Trigger(name); err != nil {
					s.logger.Warnf("failed to trigger rebuild: %v", err)
				}
			}); err != nil {
				s.logger.Warnf("watcher stopped: %v", err)
			}
		}()
	}

	if s.singleShot {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for !s.worker.Done() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}
		return nil
	}

	<-ctx.Done()
	return ctx.Err()
}

// rebasePaths maps watcher paths, which carry the watched directory prefix,
// onto the input filesystem root so they line up with module file
// identifiers. Paths outside the root pass through unchanged.
func rebasePaths(root string, files []string) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		rel, err := filepath.Rel(root, filepath.FromSlash(f))
		if err != nil || rel == ".." || strings.HasPrefix(rel, "../") {
			out = append(out, f)
			continue
		}
		out = append(out, filepath.ToSlash(rel))
	}
	return out
}
