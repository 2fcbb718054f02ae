package service

import (
	"cmp"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/packmill/packmill/internal/config"
	"github.com/packmill/packmill/internal/diagnostics"
	"github.com/packmill/packmill/internal/logging"
	"github.com/packmill/packmill/internal/pipeline"
	"github.com/packmill/packmill/internal/progress"
)

var (
	defaultInterval = 30 * time.Second
	errorInterval   = 30 * time.Second
)

// BuildWorker runs one compiler on a schedule. The first iteration is a full
// build; later iterations rebuild incrementally from whatever file changes
// were queued with Invalidate since the last run. The worker reports its
// outcome as a Status and its return value is the pool deadline for the next
// iteration.
type BuildWorker struct {
	name     string
	options  *config.Root
	compiler *pipeline.Compiler
	changed  chan struct{}
	done     chan struct{}

	singleShot bool
	log        *logging.Logger
	bar        *progress.Bar
	interval   time.Duration

	mu      sync.Mutex
	pending map[string]struct{}
	status  Status
	built   bool
}

func NewBuildWorker(name string, options *config.Root, compiler *pipeline.Compiler, logger *logging.Logger, bar *progress.Bar) *BuildWorker {
	return &BuildWorker{
		name:     name,
		options:  options,
		compiler: compiler,
		log:      logger,
		bar:      bar,
		changed:  make(chan struct{}), done: make(chan struct{}),
		interval: defaultInterval,
		pending:  map[string]struct{}{},
	}
}

// WithSingleShot makes the worker retire after its first iteration.
func (w *BuildWorker) WithSingleShot(singleShot bool) *BuildWorker {
	w.singleShot = singleShot
	return w
}

func (w *BuildWorker) WithInterval(d config.Duration) *BuildWorker {
	w.interval = cmp.Or(time.Duration(d), defaultInterval)
	return w
}

func (w *BuildWorker) Done() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

// Invalidate queues changed files for the next iteration.
func (w *BuildWorker) Invalidate(files ...string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, f := range files {
		w.pending[f] = struct{}{}
	}
}

// Status returns the outcome of the last finished iteration.
func (w *BuildWorker) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// UpdateConfig retires the worker when the effective configuration changed,
// so the service can replace it with a fresh one.
func (w *BuildWorker) UpdateConfig(options *config.Root) {
	if options == nil || !w.options.Equal(options) {
		w.changeConfiguration()
	}
}

// Execute runs one build iteration and returns the next deadline.
func (w *BuildWorker) Execute(ctx context.Context) time.Time {
	defer w.bar.Add(1)

	if w.configurationChanged() {
		return w.die()
	}

	files := w.takePending()

	var err error
	if !w.firstBuildDone() {
		err = w.compiler.Build(ctx)
	} else {
		// Rebuild degrades to a full build when incremental make is off.
		err = w.compiler.Rebuild(ctx, files)
	}
	if err != nil {
		w.log.Warnf("build %q failed: %v", w.name, err)
		state := BuildStateBuildFailed
		if errors.Is(err, pipeline.ErrEmitFailed) {
			state = BuildStateEmitFailed
		}
		return w.report(state, err)
	}

	return w.report(BuildStateSuccess, nil)
}

func (w *BuildWorker) takePending() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	files := make([]string, 0, len(w.pending))
	for f := range w.pending {
		files = append(files, f)
	}
	w.pending = map[string]struct{}{}
	return files
}

func (w *BuildWorker) firstBuildDone() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.built
}

func (w *BuildWorker) report(state BuildState, err error) time.Time {
	interval := w.interval

	w.mu.Lock()
	w.built = true
	w.status = Status{State: state}
	if err != nil {
		interval = errorInterval // faster retry on error
		w.status.Message = err.Error()
	}
	if c := w.compiler.LastCompilation(); c != nil {
		for _, d := range c.Diagnostics() {
			if d.Severity == diagnostics.SeverityError {
				w.status.Errors++
			} else {
				w.status.Warnings++
			}
		}
	}
	w.mu.Unlock()

	if w.singleShot {
		return w.die()
	}

	return time.Now().Add(interval)
}

func (w *BuildWorker) changeConfiguration() {
	select {
	case <-w.changed:
	default:
		close(w.changed)
	}
}

func (w *BuildWorker) configurationChanged() bool {
	select {
	case <-w.changed:
		return true
	default:
		return false
	}
}

func (w *BuildWorker) die() time.Time {
	close(w.done)

	var zero time.Time
	return zero
}
