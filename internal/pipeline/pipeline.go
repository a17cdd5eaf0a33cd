// Package pipeline runs one Backup through the sequence the daemon promises
// on every firing: dump, enumerate, classify, upload, retain. It is grounded
// on galeone/bacup's backup.rs and on agent/internal/executor's
// one-job-at-a-time, structured-logging shape for how a single unit of work
// is driven end to end.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/galeone/bacup/internal/destination"
	"github.com/galeone/bacup/internal/source"
)

// Backup is one named (what, where, remote_path, compress, keep_last)
// binding from the configuration document, per spec.md §6. The cadence
// (`when`) is not stored here; it is passed to scheduler.Register separately.
type Backup struct {
	Name        string
	Source      source.Source
	Destination destination.Destination
	RemotePath  string
	Compress    bool
	KeepLast    int
}

// Pipeline drives a fixed set of Backups. Each backup runs under its own
// mutex so that a slow tick for one backup never blocks another — the
// single-flight guarantee (spec.md §5, §8) is per backup, not global.
type Pipeline struct {
	logger *zap.Logger
	mu     sync.Map // name -> *sync.Mutex, one per backup
}

// New returns a Pipeline that logs through logger.
func New(logger *zap.Logger) *Pipeline {
	return &Pipeline{logger: logger.Named("pipeline")}
}

func (p *Pipeline) lockFor(name string) *sync.Mutex {
	m, _ := p.mu.LoadOrStore(name, &sync.Mutex{})
	return m.(*sync.Mutex)
}

// Run executes one firing of b. It never returns an error to the caller —
// every failure is logged and the tick ends — because the scheduler that
// invokes Run has nothing meaningful to do with an error except log it
// again, per spec.md §7's "logged; tick aborted" treatment for most kinds.
// If the previous firing for this backup is still in flight, Run logs a
// warning and returns without doing anything (the single-flight property,
// spec.md §8).
func (p *Pipeline) Run(ctx context.Context, b Backup) {
	lock := p.lockFor(b.Name)
	if !lock.TryLock() {
		p.logger.Warn("skipping fire: previous tick still running", zap.String("backup", b.Name))
		return
	}
	defer lock.Unlock()

	log := p.logger.With(zap.String("backup", b.Name))

	handle, err := b.Source.Dump(ctx)
	if err != nil {
		log.Error("dump failed, aborting tick", zap.Error(err))
		return
	}
	defer func() {
		if cerr := handle.Close(); cerr != nil {
			log.Warn("dump handle cleanup failed", zap.Error(cerr))
		}
	}()

	paths, err := b.Source.Enumerate()
	if err != nil {
		log.Error("enumerate failed, aborting tick", zap.Error(err))
		return
	}
	if len(paths) == 0 {
		log.Info("no artifacts produced, tick is a no-op success")
		return
	}

	prefix, err := CommonPrefix(paths)
	if err != nil {
		log.Error("paths do not share a common prefix, aborting tick", zap.Error(err))
		return
	}

	kind, root := classify(paths, prefix, b.Compress)
	log = log.With(zap.String("direction", string(kind)))

	switch kind {
	case multiArtifactFolder:
		if err := b.Destination.UploadFolder(ctx, paths, prefix, b.RemotePath); err != nil {
			log.Error("upload_folder failed", zap.Error(err))
			return
		}
		log.Info("upload_folder succeeded", zap.Int("count", len(paths)))

	case singleArtifactFolderUncompressed:
		files, err := walkFiles(root)
		if err != nil {
			log.Error("walking single-directory artifact failed", zap.String("local", root), zap.Error(err))
			return
		}
		if len(files) == 0 {
			log.Info("directory artifact has no files, tick is a no-op success", zap.String("local", root))
			return
		}
		if err := b.Destination.UploadFolder(ctx, files, root, b.RemotePath); err != nil {
			log.Error("upload_folder failed", zap.String("local", root), zap.Error(err))
			return
		}
		log.Info("upload_folder succeeded", zap.String("local", root), zap.Int("count", len(files)))

	case singleArtifactFolderCompressed:
		if err := b.Destination.UploadFolderCompressed(ctx, root, b.RemotePath); err != nil {
			log.Error("upload_folder_compressed failed", zap.String("local", root), zap.Error(err))
			return
		}
		log.Info("upload_folder_compressed succeeded", zap.String("local", root))
		p.applyRetention(ctx, log, b)

	case singleArtifactFileCompressed:
		if err := b.Destination.UploadFileCompressed(ctx, root, b.RemotePath); err != nil {
			log.Error("upload_file_compressed failed", zap.String("local", root), zap.Error(err))
			return
		}
		log.Info("upload_file_compressed succeeded", zap.String("local", root))
		p.applyRetention(ctx, log, b)

	case singleArtifactFile:
		if err := b.Destination.UploadFile(ctx, root, b.RemotePath); err != nil {
			log.Error("upload_file failed", zap.String("local", root), zap.Error(err))
			return
		}
		log.Info("upload_file succeeded", zap.String("local", root))
	}
}

// applyRetention implements spec.md §4.2: after a successful compressed
// upload with keep_last = N set, list the remote parent, and delete the
// oldest surplus by embedded timestamp (ties broken lexicographically).
// Failures here are logged but never fail the tick — RetentionFailed is a
// non-fatal error kind per spec.md §7.
func (p *Pipeline) applyRetention(ctx context.Context, log *zap.Logger, b Backup) {
	if b.KeepLast <= 0 {
		return
	}

	parent := remoteParent(b.RemotePath)
	entries, err := b.Destination.Enumerate(ctx, parent)
	if err != nil {
		log.Warn("retention: enumerate failed", zap.String("remote", parent), zap.Error(err))
		return
	}
	if len(entries) <= b.KeepLast {
		return
	}

	sort.Slice(entries, func(i, j int) bool {
		ti, iok := extractTimestamp(entries[i])
		tj, jok := extractTimestamp(entries[j])
		switch {
		case iok && jok && ti != tj:
			return ti < tj
		case iok != jok:
			// Entries without a recognizable timestamp sort first, so
			// unrelated files never survive a purge ahead of real backups.
			return !iok
		default:
			return entries[i] < entries[j]
		}
	})

	surplus := len(entries) - b.KeepLast
	for _, victim := range entries[:surplus] {
		if err := b.Destination.Delete(ctx, victim); err != nil {
			log.Warn("retention: delete failed", zap.String("remote", victim), zap.Error(err))
			continue
		}
		log.Info("retention: deleted surplus artifact", zap.String("remote", victim))
	}
}

var timestampPattern = regexp.MustCompile(`(\d{4}-\d{2}-\d{2}-\d{2}\.\d{2})`)

// extractTimestamp pulls the "YYYY-MM-DD-HH.MM" token embedded by
// destination.CompressedFileName/CompressedFolderName out of a remote path.
// The returned string sorts lexicographically in timestamp order because
// every field is zero-padded, so string comparison alone ranks entries
// correctly without parsing to a time.Time.
func extractTimestamp(remote string) (string, bool) {
	m := timestampPattern.FindStringSubmatch(filepath.Base(remote))
	if m == nil {
		return "", false
	}
	return m[1], true
}

func remoteParent(remote string) string {
	clean := strings.TrimRight(remote, "/")
	idx := strings.LastIndex(clean, "/")
	if idx <= 0 {
		return "/"
	}
	return clean[:idx]
}

// CommonPrefix implements spec.md §4.1 step 3: the lexicographically
// smallest element in paths; if there is more than one element, its parent
// directory instead. Every element must share that prefix or an error is
// returned — a source that violates its own enumerate contract is a bug we
// refuse to silently paper over.
func CommonPrefix(paths []string) (string, error) {
	if len(paths) == 0 {
		return "", fmt.Errorf("pipeline: CommonPrefix of empty list")
	}
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)
	smallest := sorted[0]

	prefix := smallest
	if len(sorted) > 1 {
		prefix = filepath.Dir(smallest)
	}

	for _, p := range sorted {
		if !strings.HasPrefix(p, prefix) {
			return "", fmt.Errorf("pipeline: path %q does not share common prefix %q", p, prefix)
		}
	}
	return prefix, nil
}

type dispatchKind string

const (
	multiArtifactFolder              dispatchKind = "upload_folder"
	singleArtifactFolderUncompressed dispatchKind = "upload_folder_single_dir"
	singleArtifactFolderCompressed   dispatchKind = "upload_folder_compressed"
	singleArtifactFileCompressed     dispatchKind = "upload_file_compressed"
	singleArtifactFile               dispatchKind = "upload_file"
)

// classify implements spec.md §4.1 steps 4-5. root is the single path to
// upload when kind is not multiArtifactFolder: either the one artifact in
// the list, or (when compress collapses a shared tree) the common prefix
// directory itself.
//
// A source.Folder pattern with no glob metacharacter resolves to exactly one
// path that may itself be a directory (e.g. "[folders.x] pattern =
// '/data/app'", per folder.go's fixedPrefix/filepath.Glob fallback). That
// case has no file to hand UploadFile, so when uncompressed it is
// singleArtifactFolderUncompressed instead of singleArtifactFile — the
// caller walks it and uploads its files individually, which is the same
// upload_folder contract a recursive glob producing the same files would
// get.
func classify(paths []string, prefix string, compress bool) (dispatchKind, string) {
	if len(paths) <= 1 {
		root := paths[0]
		if compress {
			if isDir(root) {
				return singleArtifactFolderCompressed, root
			}
			return singleArtifactFileCompressed, root
		}
		if isDir(root) {
			return singleArtifactFolderUncompressed, root
		}
		return singleArtifactFile, root
	}

	if compress {
		// A multi-element list under one shared prefix, compressed: the
		// tree is replaced by its root directory and treated as one item.
		return singleArtifactFolderCompressed, prefix
	}

	return multiArtifactFolder, ""
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// walkFiles returns every regular file under root, sorted, for dispatching
// a bare-directory artifact through the same upload_folder path a recursive
// glob over the same tree would take.
func walkFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		files = append(files, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
