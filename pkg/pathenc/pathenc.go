// Package pathenc converts filesystem paths to the stable three-component
// "double-colon path" roots used as the global namespace for a file's
// symbols.
package pathenc

import (
	"crypto/sha256"
	"encoding/base32"
	"path/filepath"
	"strings"
)

// sillyStems are file stems that carry no useful information on their
// own (e.g. every Python package has an __init__.py); for these the
// parent directory name is used in their place.
var sillyStems = map[string]bool{
	"__init__": true,
	"mod":      true,
	"index":    true,
}

// Encode returns the stable, deterministic three-element suffix for
// cpath: the (possibly silly-stem-substituted) file stem, the parent
// directory's base name, and a 6-character alphanumeric salt derived
// from the SHA-256 of the full path. Two files with the same basename in
// the same parent directory never collide because the salt is a
// function of the complete path, not just the stem+parent pair.
func Encode(cpath string) []string {
	clean := filepath.ToSlash(filepath.Clean(cpath))
	base := filepath.Base(clean)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	parentDir := filepath.Base(filepath.Dir(clean))

	if sillyStems[stem] {
		stem = parentDir
		parentDir = filepath.Base(filepath.Dir(filepath.Dir(clean)))
	}

	return []string{stem, parentDir, salt(clean)}
}

// salt derives a deterministic 6-character alphanumeric token from the
// SHA-256 of the full path, stable across process restarts.
func salt(fullPath string) string {
	sum := sha256.Sum256([]byte(fullPath))
	encoded := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(sum[:])
	return "$" + strings.ToLower(encoded[:6])
}
