package inventory

import (
	"bytes"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	defaultFileMode os.FileMode = 0o644
	defaultDirMode  os.FileMode = 0o755
)

type (
	// Document is a parsed inventory file. The node tree keeps comments, key order and quoting.
	Document struct {
		// Path to the inventory file.
		Path string
		// Document node.
		Root *yaml.Node
		// Digest of the file contents as last read or written.
		sum uint64
		// Whether sum is meaningful.
		loaded bool
	}

	// WriteOptions controls how a document is written.
	WriteOptions struct {
		// Copy the previous file to Path+BackupSuffix before writing.
		Backup bool
		// Backup path suffix.
		BackupSuffix string
		// Fail if the file changed on disk since it was read.
		ConflictCheck bool
		// Logger for best-effort steps.
		Logger Logger
	}
)

// absPath resolves a path for error messages.
func absPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}

	return abs
}

// ReadDocument reads and parses an inventory file.
func ReadDocument(path string) (*Document, error) {
	abs := absPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return nil, newError(ErrNotFound,
				"Expected location: "+abs+"\nCreate the file or specify a different path with --inventory",
				"inventory file not found: %s", path)
		case errors.Is(err, fs.ErrPermission):
			return nil, newError(ErrPermissionDenied,
				"Check file permissions or try running with appropriate privileges",
				"permission denied reading inventory file: %s", abs)
		default:
			return nil, wrapError(err, ErrParse, "Check the file at: "+abs, "failed to read inventory file")
		}
	}

	root := &yaml.Node{}
	if err := yaml.Unmarshal(data, root); err != nil {
		return nil, wrapError(err, ErrParse,
			"The file may be corrupted or have invalid YAML syntax. Check the file at: "+abs,
			"failed to parse inventory file")
	}

	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 || isNull(root.Content[0]) {
		return nil, newError(ErrEmpty,
			"The inventory file exists but contains no data. See ansible/inventory/hosts.yml.example for a template.",
			"inventory file is empty: %s", abs)
	}

	return &Document{
		Path:   path,
		Root:   root,
		sum:    xxhash.Sum64(data),
		loaded: true,
	}, nil
}

// Body returns the top-level node of the document.
func (d *Document) Body() *yaml.Node {
	if d.Root == nil || len(d.Root.Content) == 0 {
		return nil
	}

	return resolveAlias(d.Root.Content[0])
}

// Encode renders the document as YAML.
func (d *Document) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)

	enc := yaml.NewEncoder(buf)
	enc.SetIndent(2)

	if err := enc.Encode(d.Root); err != nil {
		return nil, errors.Wrap(err, "yaml encoding error")
	}

	if err := enc.Close(); err != nil {
		return nil, errors.Wrap(err, "yaml encoding error")
	}

	return buf.Bytes(), nil
}

// writeError classifies an OS error raised while writing the inventory.
func writeError(err error, path string) error {
	if errors.Is(err, fs.ErrPermission) {
		return wrapError(err, ErrPermissionDenied,
			"Check file permissions or try running with appropriate privileges",
			"permission denied writing inventory file %s", path)
	}

	return wrapError(err, ErrWriteFailed,
		"Check disk space and file system permissions",
		"failed to write inventory file %s", path)
}

// Write replaces the inventory file with the document contents. The new contents are written to a
// temporary file in the same directory and renamed into place.
func (d *Document) Write(opts WriteOptions) error {
	abs := absPath(d.Path)

	// A symlinked inventory is replaced at its target.
	target := d.Path
	if resolved, err := filepath.EvalSymlinks(d.Path); err == nil {
		target = resolved
	}
	dir := filepath.Dir(target)

	data, err := d.Encode()
	if err != nil {
		return wrapError(err, ErrWriteFailed, "", "failed to render inventory file %s", abs)
	}

	if err := yaml.Unmarshal(data, &yaml.Node{}); err != nil {
		return wrapError(err, ErrWriteFailed, "The inventory file was left unchanged",
			"rendered inventory file %s does not parse", abs)
	}

	if err := os.MkdirAll(dir, defaultDirMode); err != nil {
		return writeError(err, abs)
	}

	mode := defaultFileMode

	current, err := os.ReadFile(target)
	switch {
	case err == nil:
		if opts.ConflictCheck && d.loaded && xxhash.Sum64(current) != d.sum {
			return newError(ErrConflict,
				"Another process changed the file since it was read. Re-run the command.",
				"inventory file %s was modified concurrently", abs)
		}

		if info, err := os.Stat(target); err == nil {
			mode = info.Mode().Perm()
		}

		if opts.Backup {
			backup := d.Path + opts.BackupSuffix
			if err := os.WriteFile(backup, current, mode); err != nil {
				if opts.Logger != nil {
					opts.Logger.Warnf("[%s] failed to create inventory backup: %v", backup, err)
				}
			} else if opts.Logger != nil {
				opts.Logger.Debugf("[%s] created inventory backup", backup)
			}
		}
	case !errors.Is(err, fs.ErrNotExist):
		return writeError(err, abs)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return writeError(err, abs)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if _, err := tmp.Write(data); err != nil {
		return writeError(err, abs)
	}

	if err := tmp.Sync(); err != nil {
		return writeError(err, abs)
	}

	if err := tmp.Close(); err != nil {
		return writeError(err, abs)
	}

	if err := os.Chmod(tmp.Name(), mode); err != nil {
		return writeError(err, abs)
	}

	if err := os.Rename(tmp.Name(), target); err != nil {
		return writeError(err, abs)
	}

	d.sum = xxhash.Sum64(data)
	d.loaded = true

	return nil
}
