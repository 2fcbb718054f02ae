package util

import (
	"io/fs"

	"github.com/packmill/packmill/internal/logging"
)

// TraceFS logs every Open on the wrapped filesystem. The compiler wraps its
// input filesystem with it at debug level, making resolver probing visible.
type TraceFS struct {
	fsys fs.FS
	log  *logging.Logger
}

func NewTraceFS(fsys fs.FS, logger *logging.Logger) fs.FS {
	return &TraceFS{fsys: fsys, log: logger}
}

func (t *TraceFS) Open(p string) (fs.File, error) {
	f, err := t.fsys.Open(p)
	if err != nil {
		t.log.Debugf("open(%s) => %v", p, err)
		return f, err
	}
	if fi, err := f.Stat(); err == nil {
		if fi.IsDir() {
			t.log.Debugf("open(%s) => dir", p)
		} else {
			t.log.Debugf("open(%s) => size=%d", p, fi.Size())
		}
	}
	return f, nil
}
