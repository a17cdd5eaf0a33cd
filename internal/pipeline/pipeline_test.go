package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/galeone/bacup/internal/dump"
)

// fakeSource is a minimal source.Source for pipeline tests.
type fakeSource struct {
	name       string
	dumpPath   string
	dumpErr    error
	entries    []string
	enumErr    error
	dumpCalls  int
	closeCalls int
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Dump(ctx context.Context) (*dump.Handle, error) {
	f.dumpCalls++
	if f.dumpErr != nil {
		return nil, f.dumpErr
	}
	return dump.New(f.dumpPath), nil
}

func (f *fakeSource) Enumerate() ([]string, error) {
	return f.entries, f.enumErr
}

// fakeDestination is a minimal destination.Destination recording every call.
type fakeDestination struct {
	mu sync.Mutex

	uploadFileCalls             [][2]string
	uploadFolderCalls           [][]string
	uploadFolderPrefixes        []string
	uploadFileCompressedCalls   [][2]string
	uploadFolderCompressedCalls [][2]string

	remoteFiles []string
	deleted     []string

	uploadErr error
}

func (d *fakeDestination) Name() string { return "fake" }

func (d *fakeDestination) UploadFile(ctx context.Context, local, remote string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.uploadFileCalls = append(d.uploadFileCalls, [2]string{local, remote})
	return d.uploadErr
}

func (d *fakeDestination) UploadFolder(ctx context.Context, locals []string, prefix, remote string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.uploadFolderCalls = append(d.uploadFolderCalls, locals)
	d.uploadFolderPrefixes = append(d.uploadFolderPrefixes, prefix)
	return d.uploadErr
}

func (d *fakeDestination) UploadFileCompressed(ctx context.Context, local, remote string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.uploadFileCompressedCalls = append(d.uploadFileCompressedCalls, [2]string{local, remote})
	return d.uploadErr
}

func (d *fakeDestination) UploadFolderCompressed(ctx context.Context, localDir, remote string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.uploadFolderCompressedCalls = append(d.uploadFolderCompressedCalls, [2]string{localDir, remote})
	return d.uploadErr
}

func (d *fakeDestination) Enumerate(ctx context.Context, remoteDir string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.remoteFiles...), nil
}

func (d *fakeDestination) Delete(ctx context.Context, remote string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deleted = append(d.deleted, remote)
	var kept []string
	for _, f := range d.remoteFiles {
		if f != remote {
			kept = append(kept, f)
		}
	}
	d.remoteFiles = kept
	return nil
}

func TestCommonPrefixSingleElement(t *testing.T) {
	got, err := CommonPrefix([]string{"/a/b/c.sql"})
	if err != nil {
		t.Fatalf("CommonPrefix: %v", err)
	}
	if got != "/a/b/c.sql" {
		t.Fatalf("CommonPrefix() = %q, want %q", got, "/a/b/c.sql")
	}
}

func TestCommonPrefixMultipleElements(t *testing.T) {
	got, err := CommonPrefix([]string{"/a/b/two.txt", "/a/b/one.txt"})
	if err != nil {
		t.Fatalf("CommonPrefix: %v", err)
	}
	if got != "/a/b" {
		t.Fatalf("CommonPrefix() = %q, want %q", got, "/a/b")
	}
}

func TestCommonPrefixRejectsDivergentPaths(t *testing.T) {
	if _, err := CommonPrefix([]string{"/a/one.txt", "/b/two.txt"}); err == nil {
		t.Fatal("expected error for divergent paths")
	}
}

func TestDumpScopeCleanedUpAfterSuccess(t *testing.T) {
	dir := t.TempDir()
	dumpFile := filepath.Join(dir, "home-dump.sql")
	if err := os.WriteFile(dumpFile, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}

	src := &fakeSource{name: "home", dumpPath: dumpFile, entries: []string{dumpFile}}
	dst := &fakeDestination{}

	p := New(zaptest.NewLogger(t))
	p.Run(context.Background(), Backup{Name: "home-backup", Source: src, Destination: dst, RemotePath: "/remote"})

	if _, err := os.Stat(dumpFile); !os.IsNotExist(err) {
		t.Fatalf("dump file %q should have been removed, stat err = %v", dumpFile, err)
	}
	if len(dst.uploadFileCalls) != 1 {
		t.Fatalf("UploadFile calls = %d, want 1", len(dst.uploadFileCalls))
	}
}

func TestDumpScopeCleanedUpAfterUploadFailure(t *testing.T) {
	dir := t.TempDir()
	dumpFile := filepath.Join(dir, "home-dump.sql")
	if err := os.WriteFile(dumpFile, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}

	src := &fakeSource{name: "home", dumpPath: dumpFile, entries: []string{dumpFile}}
	dst := &fakeDestination{uploadErr: fmt.Errorf("network unreachable")}

	p := New(zaptest.NewLogger(t))
	p.Run(context.Background(), Backup{Name: "home-backup", Source: src, Destination: dst, RemotePath: "/remote"})

	if _, err := os.Stat(dumpFile); !os.IsNotExist(err) {
		t.Fatalf("dump file should be removed even after upload failure, stat err = %v", err)
	}
}

func TestNoOpWhenEnumerateEmpty(t *testing.T) {
	src := &fakeSource{name: "empty", entries: nil}
	dst := &fakeDestination{}

	p := New(zaptest.NewLogger(t))
	p.Run(context.Background(), Backup{Name: "empty-backup", Source: src, Destination: dst, RemotePath: "/remote"})

	if len(dst.uploadFileCalls)+len(dst.uploadFolderCalls) != 0 {
		t.Fatal("expected no upload calls for empty enumerate result")
	}
}

func TestSingleFlightSkipsOverlappingFire(t *testing.T) {
	src := &fakeSource{name: "slow", entries: []string{"/tmp/x"}}
	dst := &fakeDestination{}
	p := New(zaptest.NewLogger(t))

	b := Backup{Name: "slow-backup", Source: src, Destination: dst, RemotePath: "/remote"}
	lock := p.lockFor(b.Name)
	lock.Lock()
	defer lock.Unlock()

	done := make(chan struct{})
	go func() {
		p.Run(context.Background(), b)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run should return immediately when the backup's lock is held")
	}
	if src.dumpCalls != 0 {
		t.Fatalf("dumpCalls = %d, want 0 (tick should have been skipped)", src.dumpCalls)
	}
}

func TestRetentionDeletesOldestSurplus(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, "db.sql")
	if err := os.WriteFile(local, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}

	src := &fakeSource{name: "db", dumpPath: local, entries: []string{local}}
	dst := &fakeDestination{
		remoteFiles: []string{
			"/remote/2024-01-01-00.00-db.sql.gz",
			"/remote/2024-01-02-00.00-db.sql.gz",
			"/remote/2024-01-03-00.00-db.sql.gz",
			"/remote/2024-01-04-00.00-db.sql.gz",
		},
	}

	p := New(zaptest.NewLogger(t))
	p.Run(context.Background(), Backup{
		Name: "db-backup", Source: src, Destination: dst,
		RemotePath: "/remote/db.sql", Compress: true, KeepLast: 2,
	})

	if len(dst.remoteFiles) != 2 {
		t.Fatalf("remaining files = %v, want 2 entries", dst.remoteFiles)
	}
	for _, keep := range dst.remoteFiles {
		if keep != "/remote/2024-01-03-00.00-db.sql.gz" && keep != "/remote/2024-01-04-00.00-db.sql.gz" {
			t.Fatalf("unexpected surviving file %q", keep)
		}
	}
	if len(dst.deleted) != 2 {
		t.Fatalf("deleted = %v, want 2 entries", dst.deleted)
	}
}

func TestClassifySingleFileUncompressed(t *testing.T) {
	kind, root := classify([]string{"/a/file.txt"}, "/a/file.txt", false)
	if kind != singleArtifactFile || root != "/a/file.txt" {
		t.Fatalf("classify() = (%v, %v)", kind, root)
	}
}

func TestClassifyMultiArtifactUncompressed(t *testing.T) {
	kind, _ := classify([]string{"/a/one.txt", "/a/two.txt"}, "/a", false)
	if kind != multiArtifactFolder {
		t.Fatalf("classify() = %v, want multiArtifactFolder", kind)
	}
}

func TestClassifyMultiArtifactCompressedCollapses(t *testing.T) {
	kind, root := classify([]string{"/a/one.txt", "/a/two.txt"}, "/a", true)
	if kind != singleArtifactFolderCompressed || root != "/a" {
		t.Fatalf("classify() = (%v, %v), want (singleArtifactFolderCompressed, /a)", kind, root)
	}
}

func TestClassifySingleDirectoryUncompressed(t *testing.T) {
	dir := t.TempDir()
	kind, root := classify([]string{dir}, dir, false)
	if kind != singleArtifactFolderUncompressed || root != dir {
		t.Fatalf("classify() = (%v, %v), want (singleArtifactFolderUncompressed, %v)", kind, root, dir)
	}
}

// TestUploadFolderPreservesRelativeLayout exercises the "Prefix stripping"
// testable property (spec.md §8): a multi-artifact folder upload must pass
// the pipeline's computed common prefix through to the destination, not
// just the bare file list, so each adapter can place files at
// remote/(local-prefix) instead of colliding on a flattened basename.
func TestUploadFolderPreservesRelativeLayout(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "sub")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	a := filepath.Join(dir, "one.txt")
	b := filepath.Join(nested, "one.txt")
	for _, p := range []string{a, b} {
		if err := os.WriteFile(p, []byte("data"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	src := &fakeSource{name: "tree", entries: []string{a, b}}
	dst := &fakeDestination{}

	p := New(zaptest.NewLogger(t))
	p.Run(context.Background(), Backup{Name: "tree-backup", Source: src, Destination: dst, RemotePath: "/remote"})

	if len(dst.uploadFolderCalls) != 1 {
		t.Fatalf("UploadFolder calls = %d, want 1", len(dst.uploadFolderCalls))
	}
	if dst.uploadFolderPrefixes[0] != dir {
		t.Fatalf("UploadFolder prefix = %q, want %q", dst.uploadFolderPrefixes[0], dir)
	}
}
