package cart

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveTriesExtensionsInOrder(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "jingle.mp3"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	path, ok := Resolve(dir, "jingle")
	if !ok || filepath.Base(path) != "jingle.mp3" {
		t.Fatalf("Resolve = %q, %v", path, ok)
	}
}

func TestResolveAbsolutePath(t *testing.T) {
	dir := t.TempDir()
	abs := filepath.Join(dir, "song.wav")
	if err := os.WriteFile(abs, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	path, ok := Resolve("/irrelevant", abs)
	if !ok || path != abs {
		t.Fatalf("Resolve(absolute) = %q, %v", path, ok)
	}
}

func TestResolveMissingCartFails(t *testing.T) {
	dir := t.TempDir()
	if _, ok := Resolve(dir, "nope"); ok {
		t.Fatal("expected Resolve to fail for a missing cart")
	}
	if Exists(dir, "nope") {
		t.Fatal("expected Exists to be false for a missing cart")
	}
}
