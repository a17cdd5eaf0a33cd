// Package destination implements the pluggable "where" side of a backup:
// adapters that accept local files/folders and place them — optionally
// compressed — under a remote path. Four variants are provided — ObjectBucket
// (S3-compatible object storage), SecureShell (remote host over ssh/rsync),
// LocalDirectory (a directory on the same machine), and VersionControl (a
// git repository) — grounded respectively on galeone/bacup's remotes/aws.rs,
// remotes/ssh.rs, remotes/localhost.rs, and remotes/git.rs.
package destination

import (
	"context"
	"errors"
	"path"
	"path/filepath"
	"strings"
)

// ErrNotADirectory is returned by UploadFolderCompressed when the given
// local path is not a directory, per spec.md §4.5.
var ErrNotADirectory = errors.New("destination: not a directory")

// ErrUnsupported is returned by VersionControl's Enumerate/Delete, which
// have no meaningful operation against a git history, per spec.md §4.5.
var ErrUnsupported = errors.New("destination: operation not supported by this backend")

// Destination is implemented by every "where" adapter. All methods may
// block on network or filesystem I/O. remote paths are always given and
// returned relative to the backend's own root; a leading separator is
// normalized away by the adapter when the underlying store dislikes one.
type Destination interface {
	UploadFile(ctx context.Context, local, remote string) error
	// UploadFolder writes each entry of locals to
	// remote / (local − prefix), per spec.md §4.5. prefix is the common
	// local prefix the pipeline computed over locals (pipeline.CommonPrefix)
	// — every element of locals must lie under it.
	UploadFolder(ctx context.Context, locals []string, prefix, remote string) error
	UploadFileCompressed(ctx context.Context, local, remote string) error
	UploadFolderCompressed(ctx context.Context, localDir, remote string) error
	Enumerate(ctx context.Context, remoteDir string) ([]string, error)
	Delete(ctx context.Context, remote string) error
	// Name is the symbolic name the operator gave this destination.
	Name() string
}

// remoteParent returns the parent of a remote path using forward-slash
// semantics (every backend here addresses remotes with '/', including
// LocalDirectory, whose remote-side paths are store-relative, not OS
// paths). Returns "/" if remote has no parent.
func remoteParent(remote string) string {
	p := path.Dir(path.Clean(remote))
	if p == "." {
		return "/"
	}
	return p
}

// relativeToPrefix strips prefix from local and returns the remainder using
// forward-slash separators, suitable for joining onto a remote root — this
// is the "local − common_prefix" the spec's upload_folder contract calls
// for, as opposed to just the local path's basename.
func relativeToPrefix(local, prefix string) string {
	rel, err := filepath.Rel(prefix, local)
	if err != nil {
		// local does not actually live under prefix — the caller violated
		// its own contract. Fall back to the basename rather than produce
		// a path that could escape remote via "..".
		return filepath.Base(local)
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || strings.HasPrefix(rel, "../") || rel == ".." {
		return filepath.Base(local)
	}
	return rel
}
