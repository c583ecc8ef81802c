// Package build prepares action directories for deployment. It runs the
// action's build command, and packs the directory into a zip archive.
package build

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/cokeSchlumpf/openwhisk-action-manager/pkg/errors"
	"github.com/cokeSchlumpf/openwhisk-action-manager/pkg/scan"
)

// Mocked out for unit testing.
var (
	fs         = afero.NewOsFs()
	runCommand = runCommandImpl
)

// DefaultNodeCommand is run for actions that contain a package.json and don't
// specify their own build command.
var DefaultNodeCommand = []string{"npm", "install", "--production", "--no-audit", "--no-fund"}

// Only the tail of the build output is included in errors.
const maxOutputInError = 2048

// archiveModTime is the modification time of every file in an archive. It's
// the earliest time representable in the zip format.
var archiveModTime = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

// Archive is the deployable artifact for an action.
type Archive struct {
	// Contents is the zip file.
	Contents []byte

	// Files are the paths in the archive, relative to the action directory.
	Files []string
}

// Builder builds action directories into archives.
type Builder interface {
	// Build runs `command` within `dir`, and archives the result. If the
	// command is empty, the default command for the directory's contents is
	// used, if any.
	Build(ctx context.Context, dir string, command []string) (Archive, error)
}

type builder struct {
	archiveExcludes []string
}

// New returns a Builder that omits files matching the exclude patterns from
// the archives. The patterns are relative to the action directory.
func New(archiveExcludes []string) Builder {
	return builder{archiveExcludes: archiveExcludes}
}

func (b builder) Build(ctx context.Context, dir string, command []string) (Archive, error) {
	if len(command) == 0 {
		command = defaultCommand(dir)
	}

	if len(command) != 0 {
		log.WithFields(log.Fields{
			"dir":     dir,
			"command": strings.Join(command, " "),
		}).Debug("Running build command")

		if output, err := runCommand(ctx, dir, command); err != nil {
			return Archive{}, errors.WithContext(commandError{command, output, err}, "run build command")
		}
	}

	archive, err := Zip(dir, b.archiveExcludes)
	if err != nil {
		return Archive{}, errors.WithContext(err, "create archive")
	}
	return archive, nil
}

// Zip archives the files in `dir` that don't match any of the excludes.
// Files are added in sorted order, with their modification times zeroed,
// so that the same directory contents always produce the same bytes.
func Zip(dir string, excludes []string) (Archive, error) {
	files, err := scan.ListEntries(fs, dir, excludes, scan.File, true)
	if err != nil {
		return Archive{}, errors.WithContext(err, "list files")
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, file := range files {
		if err := addFile(zw, dir, file); err != nil {
			return Archive{}, errors.WithContext(err, fmt.Sprintf("add %q", file))
		}
	}

	if err := zw.Close(); err != nil {
		return Archive{}, errors.WithContext(err, "close")
	}
	return Archive{Contents: buf.Bytes(), Files: files}, nil
}

func addFile(zw *zip.Writer, dir, relPath string) error {
	path := filepath.Join(dir, filepath.FromSlash(relPath))
	fi, err := fs.Stat(path)
	if err != nil {
		return errors.WithContext(err, "stat")
	}

	header, err := zip.FileInfoHeader(fi)
	if err != nil {
		return errors.WithContext(err, "file header")
	}
	header.Name = relPath
	header.Method = zip.Deflate
	header.Modified = archiveModTime

	w, err := zw.CreateHeader(header)
	if err != nil {
		return errors.WithContext(err, "create entry")
	}

	f, err := fs.Open(path)
	if err != nil {
		return errors.WithContext(err, "open")
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return errors.WithContext(err, "copy")
	}
	return nil
}

func defaultCommand(dir string) []string {
	if _, err := fs.Stat(filepath.Join(dir, "package.json")); err == nil {
		return DefaultNodeCommand
	}
	return nil
}

type commandError struct {
	command []string
	output  string
	err     error
}

func (err commandError) Error() string {
	output := err.output
	if len(output) > maxOutputInError {
		output = "..." + output[len(output)-maxOutputInError:]
	}
	return fmt.Sprintf("`%s` failed (%s). Output:\n%s",
		strings.Join(err.command, " "), err.err, output)
}

func (err commandError) Unwrap() error {
	return err.err
}

func runCommandImpl(ctx context.Context, dir string, command []string) (string, error) {
	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.Dir = dir
	cmd.Env = os.Environ()

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	err := cmd.Run()
	return output.String(), err
}
