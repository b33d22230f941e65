package gpumem

import (
	"path/filepath"

	"golang.org/x/text/unicode/norm"
)

// canonicalPath returns the registry key for a file path. Lexically
// equivalent spellings and Unicode normalization variants of one name map
// to the same key; case is significant.
func canonicalPath(p string) string {
	return norm.NFC.String(filepath.Clean(p))
}
