package fs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// WritableFS is the output filesystem contract consumed by the asset
// emission stage. All operations are context-aware and fallible; the
// concrete implementation decides about durability and atomicity.
type WritableFS interface {
	CreateDirAll(ctx context.Context, path string) error
	Write(ctx context.Context, path string, data []byte) error
	RemoveFile(ctx context.Context, path string) error
	RemoveDirAll(ctx context.Context, path string) error
}

// ListableFS is an optional capability of a WritableFS. Emission uses it to
// find stale files in the output directory; without it, pruning is skipped.
type ListableFS interface {
	// List returns the files under dir relative to dir, in any order.
	List(ctx context.Context, dir string) ([]string, error)
}

// OSFS implements WritableFS on the host filesystem.
type OSFS struct{}

func NewOSFS() *OSFS {
	return &OSFS{}
}

func (*OSFS) CreateDirAll(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return os.MkdirAll(path, 0o755)
}

func (*OSFS) Write(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (*OSFS) RemoveFile(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

func (*OSFS) RemoveDirAll(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Remove the directory contents rather than the directory itself so an
	// output path that is a mount point or the process working directory
	// stays valid.
	entries, err := os.ReadDir(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(path, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func (*OSFS) List(ctx context.Context, dir string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var files []string
	err := filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			rel, err := filepath.Rel(dir, p)
			if err != nil {
				return err
			}
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	})
	return files, err
}
