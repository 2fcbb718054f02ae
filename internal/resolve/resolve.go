// Package resolve provides path resolution for module requests. The factory
// caches resolver instances keyed by their resolution options; the cache is
// cleared once per build so resolutions from a previous generation cannot
// leak into the next one.
package resolve

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"sync"

	"github.com/packmill/packmill/internal/config"
	"github.com/packmill/packmill/internal/fs/mountfs"
)

// ErrNotFound is returned when a request cannot be resolved to a file.
var ErrNotFound = errors.New("module not found")

// Factory hands out resolvers. Two requests with equal resolve options share
// one resolver instance.
type Factory struct {
	mu         sync.Mutex
	base       config.Resolve
	fsys       fs.FS
	mounts     mountfs.MountFS
	mountNames map[string]struct{}
	entries    map[string]*Resolver
}

// NewFactory builds a factory over the given source filesystem. mounts maps
// alias names to the filesystems backing them; requests starting with an
// alias resolve inside its mount instead of the base filesystem.
func NewFactory(base config.Resolve, fsys fs.FS, mounts map[string]fs.FS) *Factory {
	names := make(map[string]struct{}, len(mounts))
	for name := range mounts {
		names[name] = struct{}{}
	}
	return &Factory{
		base:       base,
		fsys:       fsys,
		mounts:     mountfs.New(mounts),
		mountNames: names,
		entries:    map[string]*Resolver{},
	}
}

// Get returns the resolver for the given options, constructing and caching
// it if needed.
func (f *Factory) Get(opts config.Resolve) *Resolver {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := opts.Key()
	if r, ok := f.entries[key]; ok {
		return r
	}
	r := &Resolver{opts: opts, fsys: f.fsys, mounts: f.mounts, mountNames: f.mountNames}
	f.entries[key] = r
	return r
}

// Default returns the resolver for the factory's base options.
func (f *Factory) Default() *Resolver {
	return f.Get(f.base)
}

// ClearEntries invalidates all cached resolver instances. Called once per
// build, before the module graph is rebuilt.
func (f *Factory) ClearEntries() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = map[string]*Resolver{}
}

// NumEntries reports how many resolvers are currently cached.
func (f *Factory) NumEntries() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

// Resolution is the result of resolving one request.
type Resolution struct {
	// Path is the resolved file path, relative to the source filesystem
	// root, without any query suffix.
	Path string
	// Query is the raw query suffix of the request ("?raw"), if any.
	Query string
}

// Identifier returns the module identifier for this resolution, preserving
// the query suffix.
func (r *Resolution) Identifier() string {
	return r.Path + r.Query
}

// Resolver resolves requests under one fixed set of options.
type Resolver struct {
	opts       config.Resolve
	fsys       fs.FS
	mounts     mountfs.MountFS
	mountNames map[string]struct{}
}

// Resolve maps a request issued from the given directory to a file.
// Relative requests resolve against dir; aliased requests resolve inside
// their mount; anything else resolves against the filesystem root.
func (r *Resolver) Resolve(dir, request string) (Resolution, error) {
	query := ""
	if i := strings.IndexByte(request, '?'); i >= 0 {
		request, query = request[:i], request[i:]
	}
	if request == "" {
		return Resolution{}, fmt.Errorf("resolve %q: empty request", request+query)
	}

	if alias, rest, ok := r.matchAlias(request); ok {
		// An alias backed by a mount resolves inside it; otherwise the
		// alias target is a path rewrite within the base filesystem.
		if _, mounted := r.mountNames[alias]; mounted {
			p, err := r.probe(r.mounts, path.Join(alias, rest))
			if err != nil {
				return Resolution{}, fmt.Errorf("resolve %q from alias %q: %w", request, alias, err)
			}
			return Resolution{Path: p, Query: query}, nil
		}
		p, err := r.probe(r.fsys, path.Join(r.opts.Alias[alias], rest))
		if err != nil {
			return Resolution{}, fmt.Errorf("resolve %q from alias %q: %w", request, alias, err)
		}
		return Resolution{Path: p, Query: query}, nil
	}

	base := "."
	if strings.HasPrefix(request, "./") || strings.HasPrefix(request, "../") {
		base = dir
	}
	p, err := r.probe(r.fsys, path.Join(base, request))
	if err != nil {
		return Resolution{}, fmt.Errorf("resolve %q in %q: %w", request, dir, err)
	}
	return Resolution{Path: p, Query: query}, nil
}

// matchAlias finds the alias mount a request falls under, if any.
func (r *Resolver) matchAlias(request string) (alias, rest string, ok bool) {
	for name := range r.opts.Alias {
		if request == name {
			return name, ".", true
		}
		if strings.HasPrefix(request, name+"/") {
			return name, request[len(name)+1:], true
		}
	}
	return "", "", false
}

// probe tries the candidate path itself, then with each configured
// extension, then as a directory with index files.
func (r *Resolver) probe(fsys fs.FS, p string) (string, error) {
	if r.isFile(fsys, p) {
		return p, nil
	}
	for _, ext := range r.opts.Extensions {
		if candidate := p + ext; r.isFile(fsys, candidate) {
			return candidate, nil
		}
	}
	for _, ext := range r.opts.Extensions {
		if candidate := path.Join(p, "index"+ext); r.isFile(fsys, candidate) {
			return candidate, nil
		}
	}
	return "", ErrNotFound
}

func (r *Resolver) isFile(fsys fs.FS, p string) bool {
	if !fs.ValidPath(p) {
		return false
	}
	fi, err := fs.Stat(fsys, p)
	return err == nil && !fi.IsDir()
}

// Read loads the content of a previously resolved path.
func (r *Resolver) Read(resolution Resolution) ([]byte, error) {
	for name := range r.mountNames {
		if resolution.Path == name || strings.HasPrefix(resolution.Path, name+"/") {
			return fs.ReadFile(r.mounts, resolution.Path)
		}
	}
	return fs.ReadFile(r.fsys, resolution.Path)
}
