// Package dump models the scoped, on-disk artifact a source adapter may
// produce for a single pipeline tick. A Handle's lifetime is strictly
// bounded by one tick: the pipeline guarantees Close is called on every
// exit path (success, failure, or panic, through a deferred Close), and Close
// deletes the backing file if one was set and still exists.
package dump

import "os"

// Handle is a scoped acquisition of an on-disk dump artifact. Path is empty
// for sources that don't materialize a file of their own (e.g. GlobFolder,
// which backs up files already on disk — see source.Folder.Dump).
type Handle struct {
	// Path is the absolute path of the dump file, or "" if this source
	// produced no standalone artifact.
	Path string
}

// New wraps path in a Handle. Pass "" for sources with no standalone artifact.
func New(path string) *Handle {
	return &Handle{Path: path}
}

// Close deletes the backing file if Path is set and the file exists.
// Safe to call multiple times and safe to call on a nil Handle.
func (h *Handle) Close() error {
	if h == nil || h.Path == "" {
		return nil
	}
	if _, err := os.Stat(h.Path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return os.Remove(h.Path)
}
