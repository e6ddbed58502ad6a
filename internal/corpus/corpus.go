// Package corpus maps knowledge directories to their cache identity.
// Every per-corpus artifact (vector database, tracking manifest, lock
// file) lives under cacheRoot/Key(dir).
package corpus

import (
	"fmt"
	"hash/crc32"
	"path/filepath"
	"regexp"
	"strings"
)

var nonAlnumRe = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// Sanitize derives a human-readable name from a directory path: the
// last two path elements joined, non-alphanumeric runs collapsed to a
// hyphen, lowercased.
//
//	/home/quant0/projects/xfiles → projects-xfiles
func Sanitize(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = filepath.Clean(dir)
	}

	parts := strings.Split(strings.Trim(abs, string(filepath.Separator)), string(filepath.Separator))
	if len(parts) > 2 {
		parts = parts[len(parts)-2:]
	}

	name := nonAlnumRe.ReplaceAllString(strings.Join(parts, "-"), "-")
	return strings.ToLower(strings.Trim(name, "-"))
}

// Key returns the cache key for a directory: the sanitized name plus a
// crc of the full path, so distinct directories that sanitize to the
// same name never share cache state.
func Key(dir string) string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = filepath.Clean(dir)
	}
	sum := crc32.ChecksumIEEE([]byte(abs))
	return fmt.Sprintf("%s-%08x", Sanitize(dir), sum)
}

// CacheDir returns the per-corpus cache directory under cacheRoot.
func CacheDir(cacheRoot, dir string) string {
	return filepath.Join(cacheRoot, Key(dir))
}
