// Package cart resolves a LogItem's cart field — either an absolute
// filesystem path or a logical code probed against the shared carts
// directory.
package cart

import (
	"os"
	"path/filepath"
)

// Extensions is the probe order used when cart is a bare code rather
// than a path.
var Extensions = []string{"flac", "wav", "mp3", "m4a", "aac", "ogg", "opus"}

// Resolve returns the on-disk path for cart, trying it as an absolute
// path first, then as a code under cartsDir with each extension in
// Extensions. ok is false if nothing resolves.
func Resolve(cartsDir, cart string) (path string, ok bool) {
	if cart == "" {
		return "", false
	}
	if filepath.IsAbs(cart) {
		if exists(cart) {
			return cart, true
		}
		return "", false
	}
	for _, ext := range Extensions {
		candidate := filepath.Join(cartsDir, cart+"."+ext)
		if exists(candidate) {
			return candidate, true
		}
	}
	return "", false
}

// Exists reports whether cart resolves to an existing file, without
// returning the path — used by the top-up controller's active-length
// computation.
func Exists(cartsDir, cart string) bool {
	_, ok := Resolve(cartsDir, cart)
	return ok
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
