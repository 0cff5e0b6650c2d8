// Package discovery walks a project tree and selects the source files the
// generate pipeline will summarize, filtering ignored directories, binary
// content, and oversized files.
package discovery

import (
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultMaxFileBytes skips files larger than this; summarizing a megabyte
// of generated code is cost without value.
const DefaultMaxFileBytes = 256 * 1024

// defaultIgnoreDirs are skipped in every project.
var defaultIgnoreDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	"node_modules": true,
	"vendor":       true,
	"dist":         true,
	"build":        true,
	"target":       true,
	".idea":        true,
	".vscode":      true,
}

// Options configures a walk.
type Options struct {
	Root           string
	IgnorePatterns []string // extra glob patterns matched against relative paths
	MaxFileBytes   int64
	Extensions     []string // when set, only these extensions (with dot) are kept
}

// Discover returns the sorted absolute paths of all candidate source files
// under opts.Root.
func Discover(opts Options) ([]string, error) {
	maxBytes := opts.MaxFileBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFileBytes
	}

	extSet := make(map[string]bool, len(opts.Extensions))
	for _, e := range opts.Extensions {
		extSet[strings.ToLower(e)] = true
	}

	var files []string
	err := filepath.WalkDir(opts.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}

		rel, relErr := filepath.Rel(opts.Root, path)
		if relErr != nil {
			return nil
		}

		if d.IsDir() {
			if path == opts.Root {
				return nil
			}
			if defaultIgnoreDirs[d.Name()] || strings.HasPrefix(d.Name(), ".") || matchesAny(rel, opts.IgnorePatterns) {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(d.Name(), ".") || matchesAny(rel, opts.IgnorePatterns) {
			return nil
		}
		if len(extSet) > 0 && !extSet[strings.ToLower(filepath.Ext(d.Name()))] {
			return nil
		}

		info, infoErr := d.Info()
		if infoErr != nil || info.Size() == 0 || info.Size() > maxBytes {
			return nil
		}

		if looksBinary(path) {
			return nil
		}

		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(files)
	return files, nil
}

// matchesAny checks a relative path against glob patterns; a pattern also
// matches when any path segment prefix matches, so "docs" ignores the whole
// subtree.
func matchesAny(rel string, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, rel); ok {
			return true
		}
		if ok, _ := filepath.Match(p, filepath.Base(rel)); ok {
			return true
		}
		if rel == p || strings.HasPrefix(rel, p+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// looksBinary sniffs the first KB for NUL bytes.
func looksBinary(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return true
	}
	defer f.Close()

	buf := make([]byte, 1024)
	n, _ := f.Read(buf)
	return bytes.IndexByte(buf[:n], 0) >= 0
}
