package packmill

import (
	"context"
	"errors"
	iofs "io/fs"

	"github.com/packmill/packmill/internal/config"
	pmfs "github.com/packmill/packmill/internal/fs"
	"github.com/packmill/packmill/internal/logging"
	"github.com/packmill/packmill/internal/service"
)

// Runner is a configured bundler instance.
type Runner struct {
	configYAML []byte
	logger     *logging.Logger
	input      iofs.FS
	output     pmfs.WritableFS

	svc *service.Service
}

// Status reports the outcome of the last build iteration.
type Status struct {
	Success  bool
	Message  string
	Warnings int
	Errors   int
}

func New() *Runner {
	return &Runner{logger: logging.NewLogger(logging.Config{Level: logging.LevelError})}
}

// WithConfig sets the YAML configuration document.
func (r *Runner) WithConfig(bs []byte) *Runner {
	r.configYAML = bs
	return r
}

// WithLogLevel adjusts logging verbosity: "debug", "info", "warn" or
// "error" (the default).
func (r *Runner) WithLogLevel(level string) *Runner {
	levels := map[string]int{
		"debug": logging.LevelDebug,
		"info":  logging.LevelInfo,
		"warn":  logging.LevelWarn,
		"error": logging.LevelError,
	}
	r.logger = logging.NewLogger(logging.Config{Level: levels[level]})
	return r
}

// WithInputFS overrides the filesystem sources are read from.
func (r *Runner) WithInputFS(input iofs.FS) *Runner {
	r.input = input
	return r
}

// WithOutputFS overrides the filesystem assets are written to.
func (r *Runner) WithOutputFS(output pmfs.WritableFS) *Runner {
	r.output = output
	return r
}

// Prepare validates the configuration and readies the runner. It must be
// called before Build or Watch.
func (r *Runner) Prepare() (*Runner, error) {
	if r.configYAML == nil {
		return nil, errors.New("no configuration given")
	}
	cfg, err := config.Parse(r.configYAML)
	if err != nil {
		return nil, err
	}

	svc := service.New(cfg).WithLogger(r.logger)
	if r.input != nil {
		svc = svc.WithInputFS(r.input)
	}
	if r.output != nil {
		svc = svc.WithOutputFS(r.output)
	}
	r.svc = svc
	return r, nil
}

// Build runs a single build and returns an error if it failed outright.
// Module-level problems surface as diagnostics in Status instead.
func (r *Runner) Build(ctx context.Context) error {
	if r.svc == nil {
		return errors.New("runner not prepared")
	}
	if err := r.svc.WithSingleShot(true).Run(ctx); err != nil {
		return err
	}
	if status := r.svc.Status(); status.State != service.BuildStateSuccess {
		return errors.New(status.Message)
	}
	return nil
}

// Watch builds continuously until ctx is canceled.
func (r *Runner) Watch(ctx context.Context) error {
	if r.svc == nil {
		return errors.New("runner not prepared")
	}
	err := r.svc.WithSingleShot(false).Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Status returns the outcome of the last finished build iteration.
func (r *Runner) Status() Status {
	if r.svc == nil {
		return Status{}
	}
	s := r.svc.Status()
	return Status{
		Success:  s.State == service.BuildStateSuccess,
		Message:  s.Message,
		Warnings: s.Warnings,
		Errors:   s.Errors,
	}
}
