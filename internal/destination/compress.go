package destination

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/gzip"
)

// timestampLayout formats the UTC minute embedded in every compressed
// artifact's name: zero-padded year-month-day-hour.minute, per spec.md §6.
const timestampLayout = "2006-01-02-15.04"

// CompressedFileName computes the remote path for a compressed single file:
// "<remote_prefix_parent>/YYYY-MM-DD-HH.MM-<basename>.gz", per spec.md §6.
// now is passed in (rather than read from time.Now inside) so callers can
// guarantee every artifact produced within one upload shares one timestamp.
func CompressedFileName(remote string, now time.Time) string {
	parent := remoteParent(remote)
	base := path.Base(remote)
	return path.Join(parent, fmt.Sprintf("%s-%s.gz", now.UTC().Format(timestampLayout), base))
}

// CompressedFolderName computes the remote path for a compressed (tar+gzip)
// folder: "<remote_prefix_parent>/YYYY-MM-DD-HH.MM-<basename>.tar.gz".
func CompressedFolderName(remote string, now time.Time) string {
	parent := remoteParent(remote)
	base := path.Base(remote)
	return path.Join(parent, fmt.Sprintf("%s-%s.tar.gz", now.UTC().Format(timestampLayout), base))
}

// compressFile gzips local and returns the path to a new temp file holding
// the compressed bytes. The caller owns cleanup of the returned path.
//
// Uses klauspost/compress/gzip (grounded on scttfrdmn-objectfs and
// eef808a24ff-aistore, both of which pull this package in for the same
// purpose) instead of the stdlib compress/gzip.
func compressFile(local string) (string, error) {
	src, err := os.Open(local)
	if err != nil {
		return "", fmt.Errorf("destination: opening %q for compression: %w", local, err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp("", "bacup-compress-*.gz")
	if err != nil {
		return "", fmt.Errorf("destination: creating temp file: %w", err)
	}
	defer tmp.Close()

	gw := gzip.NewWriter(tmp)
	if _, err := io.Copy(gw, src); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("destination: compressing %q: %w", local, err)
	}
	if err := gw.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("destination: finalizing compression of %q: %w", local, err)
	}
	return tmp.Name(), nil
}

// compressFolder tars localDir (rooted at its own base name, so the archive
// extracts to a single top-level directory) and gzips the result, returning
// the path to a new temp file. The caller owns cleanup.
//
// archive/tar is stdlib: no third-party tar writer exists anywhere in the
// example pack (see DESIGN.md), so only the gzip layer uses a library.
func compressFolder(localDir string) (string, error) {
	info, err := os.Stat(localDir)
	if err != nil {
		return "", fmt.Errorf("destination: stat %q: %w", localDir, err)
	}
	if !info.IsDir() {
		return "", ErrNotADirectory
	}

	tmp, err := os.CreateTemp("", "bacup-compress-*.tar.gz")
	if err != nil {
		return "", fmt.Errorf("destination: creating temp file: %w", err)
	}
	defer tmp.Close()

	gw := gzip.NewWriter(tmp)
	tw := tar.NewWriter(gw)

	root := filepath.Base(localDir)
	walkErr := filepath.Walk(localDir, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(localDir, p)
		if relErr != nil {
			return relErr
		}
		name := path.Join(root, filepath.ToSlash(rel))
		if rel == "." {
			name = root
		}

		hdr, hdrErr := tar.FileInfoHeader(fi, "")
		if hdrErr != nil {
			return hdrErr
		}
		hdr.Name = name
		if fi.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if fi.IsDir() {
			return nil
		}
		f, openErr := os.Open(p)
		if openErr != nil {
			return openErr
		}
		defer f.Close()
		_, copyErr := io.Copy(tw, f)
		return copyErr
	})

	if walkErr != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("destination: archiving %q: %w", localDir, walkErr)
	}
	if err := tw.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("destination: finalizing archive of %q: %w", localDir, err)
	}
	if err := gw.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("destination: finalizing compression of %q: %w", localDir, err)
	}
	return tmp.Name(), nil
}
