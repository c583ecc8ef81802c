// Package scan lists the entries of a directory tree, filtered by kind and by
// glob-style exclude patterns.
package scan

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"

	"github.com/cokeSchlumpf/openwhisk-action-manager/pkg/errors"
)

// EntryKind selects which entries ListEntries returns.
type EntryKind int

const (
	// Any matches both files and directories.
	Any EntryKind = iota
	// Directory only matches directories.
	Directory
	// File only matches regular files, including symlinks to them.
	File
)

func (kind EntryKind) matches(fi os.FileInfo) bool {
	switch kind {
	case Directory:
		return fi.IsDir()
	case File:
		return fi.Mode().IsRegular()
	default:
		return true
	}
}

// ListEntries returns the paths of the entries under root, relative to root.
// Entries whose slash-separated relative path matches any of the exclude patterns are
// skipped. An excluded directory isn't descended into, so none of its
// children are returned either.
//
// Symlinks are followed, both for the root and for the entries below it, so
// a linked directory is listed and descended into like a real one and a
// linked file is listed as a file. Links that point back to one of their own
// ancestors are skipped, as are dangling links.
//
// The result is sorted so that it doesn't depend on the order in which the
// filesystem reports entries. A root that doesn't exist yields no entries.
func ListEntries(fs afero.Fs, root string, excludes []string, kind EntryKind, recursive bool) ([]string, error) {
	if err := validatePatterns(excludes); err != nil {
		return nil, err
	}

	rootInfo, err := fs.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.WithContext(err, "stat root")
	}

	if !rootInfo.IsDir() {
		return nil, nil
	}

	w := walker{
		fs:        fs,
		root:      root,
		excludes:  excludes,
		kind:      kind,
		recursive: recursive,
	}
	if err := w.walk("", []os.FileInfo{rootInfo}); err != nil {
		return nil, errors.WithContext(err, fmt.Sprintf("walk %q", root))
	}

	sort.Strings(w.entries)
	return w.entries, nil
}

type walker struct {
	fs        afero.Fs
	root      string
	excludes  []string
	kind      EntryKind
	recursive bool

	entries []string
}

// walk lists the directory at `relDir`. `ancestors` holds the stat of every
// directory from the root down to `relDir`.
func (w *walker) walk(relDir string, ancestors []os.FileInfo) error {
	dir := filepath.Join(w.root, filepath.FromSlash(relDir))
	children, err := afero.ReadDir(w.fs, dir)
	if err != nil {
		return errors.WithContext(err, fmt.Sprintf("read %q", dir))
	}

	for _, child := range children {
		relPath := path.Join(relDir, child.Name())
		if Excluded(relPath, w.excludes) {
			continue
		}

		// Stat rather than use the ReadDir result so that symlinks are
		// resolved to their targets.
		fi, err := w.fs.Stat(filepath.Join(dir, child.Name()))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return errors.WithContext(err, fmt.Sprintf("stat %q", relPath))
		}

		if fi.IsDir() && isAncestor(fi, ancestors) {
			continue
		}

		if w.kind.matches(fi) {
			w.entries = append(w.entries, relPath)
		}

		if fi.IsDir() && w.recursive {
			if err := w.walk(relPath, append(ancestors, fi)); err != nil {
				return err
			}
		}
	}
	return nil
}

func isAncestor(fi os.FileInfo, ancestors []os.FileInfo) bool {
	for _, ancestor := range ancestors {
		if os.SameFile(fi, ancestor) {
			return true
		}
	}
	return false
}

// Excluded returns whether the slash-separated relative path matches any of
// the patterns.
func Excluded(relPath string, patterns []string) bool {
	for _, pattern := range patterns {
		if ok, err := doublestar.Match(pattern, relPath); err == nil && ok {
			return true
		}
	}
	return false
}

// RequireDir returns a ConfigurationError if path isn't an existing
// directory. It's used for inputs that must exist, such as the deployment
// root.
func RequireDir(fs afero.Fs, path string) error {
	fi, err := fs.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.ConfigurationError{
				Msg: fmt.Sprintf("%q does not exist.", path),
			}
		}
		return errors.WithContext(err, "stat")
	}

	if !fi.IsDir() {
		return errors.ConfigurationError{
			Msg: fmt.Sprintf("%q is not a directory.", path),
		}
	}
	return nil
}

func validatePatterns(patterns []string) error {
	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(pattern) {
			return errors.ConfigurationError{
				Msg: fmt.Sprintf("Invalid exclude pattern %q.", pattern),
			}
		}
	}
	return nil
}
