// SPDX-License-Identifier: MIT

package mediapath

import (
	"net/url"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Clean returns the canonical absolute form of path, with symlinks
// resolved. Paths the OS cannot resolve (typically because they do not
// exist) are returned unchanged so the caller can produce a precise error.
func Clean(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return path
	}
	return real
}

// IsUnderRoot reports whether path sits at or below root. Both arguments
// must already be canonical; the check is purely lexical so a symlink that
// was not resolved beforehand can still escape.
func IsUnderRoot(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	if filepath.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return true
}

// HasTraversal performs robust checks against path traversal attempts.
// It decodes the input multiple times to catch double-encoding, applies
// Unicode normalization, and searches for dangerous sequences including NULs.
func HasTraversal(p string) bool {
	decoded := p
	// Attempt multiple decode passes to catch double/triple encodings
	for i := 0; i < 3; i++ {
		prev := decoded
		if d, err := url.PathUnescape(decoded); err == nil {
			decoded = d
		} else if d2, err2 := url.QueryUnescape(decoded); err2 == nil {
			decoded = d2
		}
		if decoded == prev {
			break
		}
	}

	lower := strings.ToLower(decoded)
	dangerSubstrings := []string{
		"..",        // parent traversal
		"%00",       // encoded NUL
		"%c0%ae",    // overlong UTF-8 for '.'
		"%e0%80%ae", // another overlong variant
	}
	for _, pat := range dangerSubstrings {
		if strings.Contains(lower, pat) {
			return true
		}
	}
	if strings.ContainsRune(decoded, 0x00) {
		return true
	}

	// Normalize and check again for dot-dot
	normalized := norm.NFC.String(decoded)
	return strings.Contains(normalized, "..")
}
