// Package library implements the recursive audio-file scanner —
// Grounded on a filepath.WalkDir shape, narrowed to
// this scope: it enumerates eligible file paths only, and surfaces any
// read-dir/entry-read failure as the scan's own error, since a broken
// directory must be distinguishable from an empty one.
package library

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Extensions is the fixed, case-insensitive allow-list.
var Extensions = []string{"flac", "wav", "mp3", "m4a", "aac", "ogg", "opus"}

func isEligible(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	ext = strings.TrimPrefix(ext, ".")
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Scan walks root depth-first and returns every eligible file path,
// sorted for deterministic ordering. The root not existing is itself an
// error; any other filesystem error encountered while walking aborts the
// scan and is returned, rather than being logged and skipped.
func Scan(root string) ([]string, error) {
	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("library root %q: %w", root, err)
	}

	var found []string
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("scanning %q: %w", path, err)
		}
		if d.IsDir() {
			return nil
		}
		if isEligible(path) {
			found = append(found, path)
		}
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	sort.Strings(found)
	return found, nil
}
