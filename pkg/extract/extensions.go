package extract

import (
	"path/filepath"
	"strings"
)

// suffixes lists every recognized archive suffix, compound ".tar.*"
// forms first; a bare ".gz", ".bz2", ".xz" or ".zst" is not recognized.
var suffixes = []string{
	".tar.gz", ".tar.bz2", ".tar.xz", ".tar.zst",
	".tgz", ".tbz2", ".txz",
	".tar", ".zip", ".jar", ".war",
}

// GetExtension returns the archive suffix from a URL or file name,
// handling the compound ".tar.*" suffixes before falling back to
// filepath.Ext.
func GetExtension(name string) string {
	if idx := strings.Index(name, "?"); idx != -1 {
		name = name[:idx]
	}
	lower := strings.ToLower(name)
	for _, s := range suffixes {
		if strings.HasSuffix(lower, s) {
			return s
		}
	}
	return filepath.Ext(name)
}

// IsArchive reports whether path's suffix is one this package knows
// how to extract.
func IsArchive(path string) bool {
	lower := strings.ToLower(path)
	for _, s := range suffixes {
		if strings.HasSuffix(lower, s) {
			return true
		}
	}
	return false
}

// Stem strips a recognized archive suffix from name, for deriving a
// default extraction directory name from an archive file name.
func Stem(name string) string {
	ext := GetExtension(name)
	if ext == "" {
		return name
	}
	return strings.TrimSuffix(name, ext)
}
