package sync

import (
	"crypto/md5" // #nosec G501
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/cokeSchlumpf/openwhisk-action-manager/pkg/errors"
	"github.com/cokeSchlumpf/openwhisk-action-manager/pkg/scan"
)

// Mocked out for unit testing.
var fs = afero.NewOsFs()

// Fingerprint returns a digest of the files in `dir` that don't match any of
// the excludes. Each file is hashed along with its relative path, and the
// file hashes are combined in sorted path order. Therefore, the fingerprint
// only changes if a file's contents change, or if a file is added, removed or
// renamed.
func Fingerprint(dir string, excludes []string) (string, error) {
	files, err := scan.ListEntries(fs, dir, excludes, scan.File, true)
	if err != nil {
		return "", errors.WithContext(err, "list files")
	}

	hasher := md5.New() // #nosec G401
	for _, file := range files {
		fileHash, err := hashFile(dir, file)
		if err != nil {
			return "", errors.WithContext(err, fmt.Sprintf("hash %q", file))
		}
		hasher.Write(fileHash)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// hashFile returns the md5 hash of the file's relative path and contents.
func hashFile(dir, relPath string) ([]byte, error) {
	f, err := fs.Open(filepath.Join(dir, filepath.FromSlash(relPath)))
	if err != nil {
		return nil, errors.WithContext(err, "open")
	}
	defer f.Close()

	hasher := md5.New() // #nosec G401
	fmt.Fprintf(hasher, "%s\x00", relPath)
	if _, err := io.Copy(hasher, f); err != nil {
		return nil, errors.WithContext(err, "read")
	}
	return hasher.Sum(nil), nil
}
