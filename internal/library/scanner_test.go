package library

import (
	"os"
	"path/filepath"
	"testing"
)

func TestScanFindsEligibleFilesRecursively(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	write := func(path string) {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write(filepath.Join(dir, "a.mp3"))
	write(filepath.Join(sub, "b.FLAC"))
	write(filepath.Join(dir, "notes.txt"))

	found, err := Scan(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("found %d files, want 2: %v", len(found), found)
	}
}

func TestScanMissingRootIsError(t *testing.T) {
	if _, err := Scan(filepath.Join(t.TempDir(), "does-not-exist")); err == nil {
		t.Fatal("expected error for missing root")
	}
}

func TestScanEmptyDirIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	found, err := Scan(dir)
	if err != nil {
		t.Fatalf("unexpected error scanning empty dir: %v", err)
	}
	if len(found) != 0 {
		t.Fatalf("expected no files, got %v", found)
	}
}
