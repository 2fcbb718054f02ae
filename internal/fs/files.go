package fs

import (
	"errors"
	"io/fs"
)

var errStopWalk = errors.New("stop walk")

// FSContainsFiles reports whether fsys holds at least one regular file.
// The compiler checks this up front: a source context without files can
// never resolve an entry, and an early warning beats a resolve diagnostic.
func FSContainsFiles(fsys fs.FS) (bool, error) {
	err := fs.WalkDir(fsys, ".", func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return errStopWalk
		}
		return nil
	})
	switch {
	case errors.Is(err, errStopWalk):
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	}
	return false, err
}
