package destination

import (
	"compress/gzip"
	"io"
	"os"
	"testing"
	"time"
)

func TestCompressedFileName(t *testing.T) {
	when := time.Date(2024, 3, 7, 9, 5, 0, 0, time.UTC)
	got := CompressedFileName("/backups/home/db.sql", when)
	want := "/backups/home/2024-03-07-09.05-db.sql.gz"
	if got != want {
		t.Fatalf("CompressedFileName() = %q, want %q", got, want)
	}
}

func TestCompressedFolderName(t *testing.T) {
	when := time.Date(2024, 12, 31, 23, 59, 0, 0, time.UTC)
	got := CompressedFolderName("/backups/photos", when)
	want := "/backups/2024-12-31-23.59-photos.tar.gz"
	if got != want {
		t.Fatalf("CompressedFolderName() = %q, want %q", got, want)
	}
}

func TestRemoteParent(t *testing.T) {
	cases := map[string]string{
		"/a/b/c": "/a/b",
		"/a":     "/",
		"a":      "/",
		"/":      "/",
	}
	for in, want := range cases {
		if got := remoteParent(in); got != want {
			t.Errorf("remoteParent(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCompressFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := dir + "/plain.txt"
	if err := os.WriteFile(src, []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}

	compressed, err := compressFile(src)
	if err != nil {
		t.Fatalf("compressFile: %v", err)
	}
	defer os.Remove(compressed)

	if compressed == src {
		t.Fatal("compressFile returned the source path unchanged")
	}

	f, err := os.Open(compressed)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	got, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("reading decompressed data: %v", err)
	}
	if string(got) != "hello world" {
		t.Fatalf("decompressed data = %q, want %q", got, "hello world")
	}
}

func TestCompressFolderRejectsFile(t *testing.T) {
	dir := t.TempDir()
	f := dir + "/not-a-dir.txt"
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := compressFolder(f); err != ErrNotADirectory {
		t.Fatalf("compressFolder(file) error = %v, want ErrNotADirectory", err)
	}
}
