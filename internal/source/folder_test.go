package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFolderEnumerateFlatGlob(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.txt", "b.txt", "c.log"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	f, err := NewFolder("home", filepath.Join(dir, "*.txt"))
	if err != nil {
		t.Fatalf("NewFolder: %v", err)
	}

	got, err := f.Enumerate()
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Enumerate() = %v, want 2 entries", got)
	}
}

func TestFolderEnumerateRecursiveGlob(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "sub", "deeper")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(nested, "x.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "top.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	f, err := NewFolder("home", filepath.Join(dir, "**", "*.txt"))
	if err != nil {
		t.Fatalf("NewFolder: %v", err)
	}

	got, err := f.Enumerate()
	if err != nil {
		t.Fatalf("Enumerate: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Enumerate() = %v, want 2 entries", got)
	}
}

func TestFolderConstructionRejectsRelativePattern(t *testing.T) {
	if _, err := NewFolder("home", "relative/*.txt"); err == nil {
		t.Fatal("expected error for relative glob base")
	}
}

func TestFolderDumpIsNoop(t *testing.T) {
	dir := t.TempDir()
	f, err := NewFolder("home", filepath.Join(dir, "*"))
	if err != nil {
		t.Fatalf("NewFolder: %v", err)
	}
	h, err := f.Dump(context.Background())
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	if h.Path != "" {
		t.Fatalf("Dump().Path = %q, want empty", h.Path)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
