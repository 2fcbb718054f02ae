package fs

import (
	"context"
	"fmt"
	"maps"
	"path"
	"strings"
	"sync"
)

// MemFS is an in-memory WritableFS. It records every physical write so tests
// can assert that unchanged builds do not rewrite their outputs, and it can
// be armed to fail writes for specific paths.
type MemFS struct {
	mu       sync.Mutex
	files    map[string][]byte
	dirs     map[string]bool
	writes   int
	removed  []string
	failures map[string]error
}

func NewMemFS() *MemFS {
	return &MemFS{
		files:    map[string][]byte{},
		dirs:     map[string]bool{"": true, ".": true},
		failures: map[string]error{},
	}
}

// FailWrites makes every subsequent Write to path return err.
func (m *MemFS) FailWrites(path string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[clean(path)] = err
}

func (m *MemFS) CreateDirAll(ctx context.Context, dir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	dir = clean(dir)
	for dir != "." && dir != "" {
		m.dirs[dir] = true
		dir = path.Dir(dir)
	}
	return nil
}

func (m *MemFS) Write(ctx context.Context, p string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p = clean(p)
	if err, ok := m.failures[p]; ok {
		return err
	}
	if dir := path.Dir(p); !m.dirs[dir] {
		return fmt.Errorf("write %s: parent directory does not exist", p)
	}
	m.files[p] = append([]byte(nil), data...)
	m.writes++
	return nil
}

func (m *MemFS) RemoveFile(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p = clean(p)
	delete(m.files, p)
	m.removed = append(m.removed, p)
	return nil
}

func (m *MemFS) RemoveDirAll(ctx context.Context, dir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	dir = clean(dir)
	for p := range m.files {
		if p == dir || strings.HasPrefix(p, dir+"/") {
			delete(m.files, p)
		}
	}
	for p := range m.dirs {
		if p == dir || strings.HasPrefix(p, dir+"/") {
			delete(m.dirs, p)
		}
	}
	return nil
}

func (m *MemFS) List(ctx context.Context, dir string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	dir = clean(dir)
	var files []string
	for p := range m.files {
		if dir == "." {
			files = append(files, p)
		} else if strings.HasPrefix(p, dir+"/") {
			files = append(files, strings.TrimPrefix(p, dir+"/"))
		}
	}
	return files, nil
}

// Exists reports whether a file was written and not removed since.
func (m *MemFS) Exists(p string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[clean(p)]
	return ok
}

// Content returns the current content of a file, or nil.
func (m *MemFS) Content(p string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.files[clean(p)]
}

// Files returns a snapshot of all files.
func (m *MemFS) Files() map[string][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return maps.Clone(m.files)
}

// WriteCount returns the number of successful physical writes so far.
func (m *MemFS) WriteCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Removed returns the paths passed to RemoveFile, in order.
func (m *MemFS) Removed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.removed...)
}

func clean(p string) string {
	return path.Clean(strings.TrimPrefix(strings.ReplaceAll(p, "\\", "/"), "./"))
}
