// Package mountfs composes existing fs.FS instances under path prefixes,
// which is how resolver aliases map a request prefix onto another module
// root. The directories between the root and the mount points do not exist
// anywhere; they are synthesized on demand.
//
// Derived from testing/fstest, go1.25.2:
// Copyright 2020 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
package mountfs

import (
	"io"
	"io/fs"
	"path"
	"slices"
	"strings"
	"time"
)

// MountFS serves each mounted filesystem under its key. Every lookup walks
// the mount map, so it suits a handful of mounts rather than hundreds.
// Changing the map while the filesystem is in use is a race.
type MountFS map[string]fs.FS

func New(m map[string]fs.FS) MountFS {
	return m
}

var _ fs.FS = MountFS(nil)

// Open resolves name against the mounts. An exact mount key opens the
// mount's root; a name under a mount key is delegated to that mount; any
// other name is a synthesized directory spanning the mount prefixes, or
// does not exist.
func (fsys MountFS) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	if mounted, ok := fsys[name]; ok {
		return &mountRoot{path: name, dirInfo: dirInfo{name: path.Base(name)}, fsys: mounted}, nil
	}
	for prefix, mounted := range fsys {
		if strings.HasPrefix(name, prefix+"/") {
			return mounted.Open(name[len(prefix)+1:])
		}
	}

	children := map[string]bool{}
	if name == "." {
		for prefix := range fsys {
			if i := strings.Index(prefix, "/"); i >= 0 {
				children[prefix[:i]] = true
			} else if prefix != "." {
				children[prefix] = true
			}
		}
	} else {
		dir := name + "/"
		for prefix := range fsys {
			if !strings.HasPrefix(prefix, dir) {
				continue
			}
			elem := prefix[len(dir):]
			if i := strings.Index(elem, "/"); i >= 0 {
				elem = elem[:i]
			}
			children[elem] = true
		}
		// No mount lives at or below the name: it does not exist.
		if len(children) == 0 {
			return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
		}
	}

	entries := make([]dirInfo, 0, len(children))
	for child := range children {
		entries = append(entries, dirInfo{name: child})
	}
	slices.SortFunc(entries, func(a, b dirInfo) int {
		return strings.Compare(a.name, b.name)
	})

	elem := name
	if i := strings.LastIndex(name, "/"); i >= 0 {
		elem = name[i+1:]
	}
	return &syntheticDir{path: name, dirInfo: dirInfo{name: elem}, entries: entries}, nil
}

// dirInfo is the fs.FileInfo and fs.DirEntry of a synthesized directory.
type dirInfo struct {
	name string
}

func (i *dirInfo) Name() string               { return path.Base(i.name) }
func (i *dirInfo) Size() int64                { return 0 }
func (i *dirInfo) Mode() fs.FileMode          { return fs.ModeDir | 0555 }
func (i *dirInfo) Type() fs.FileMode          { return fs.ModeDir }
func (i *dirInfo) ModTime() time.Time         { return time.Time{} }
func (i *dirInfo) IsDir() bool                { return true }
func (i *dirInfo) Sys() any                   { return nil }
func (i *dirInfo) Info() (fs.FileInfo, error) { return i, nil }

func (i *dirInfo) String() string {
	return fs.FormatFileInfo(i)
}

// syntheticDir is an open directory that exists only as a mount prefix.
type syntheticDir struct {
	path string
	dirInfo
	entries []dirInfo
	offset  int
}

func (d *syntheticDir) Stat() (fs.FileInfo, error) { return &d.dirInfo, nil }
func (*syntheticDir) Close() error                 { return nil }
func (d *syntheticDir) Read(b []byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.path, Err: fs.ErrInvalid}
}

func (d *syntheticDir) ReadDir(count int) ([]fs.DirEntry, error) {
	n := len(d.entries) - d.offset
	if n == 0 && count > 0 {
		return nil, io.EOF
	}
	if count > 0 && n > count {
		n = count
	}
	list := make([]fs.DirEntry, n)
	for i := range list {
		list[i] = &d.entries[d.offset+i]
	}
	d.offset += n
	return list, nil
}

// mountRoot is an open directory sitting exactly at a mount key.
type mountRoot struct {
	path string
	dirInfo
	fsys fs.FS
}

func (*mountRoot) Close() error                 { return nil }
func (d *mountRoot) Stat() (fs.FileInfo, error) { return &d.dirInfo, nil }
func (d *mountRoot) Read(b []byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.path, Err: fs.ErrInvalid}
}

// ReadDir lists the mounted filesystem's root. The count is ignored; mounts
// are listed wholesale during resolution.
func (d *mountRoot) ReadDir(int) ([]fs.DirEntry, error) {
	return fs.ReadDir(d.fsys, ".")
}
