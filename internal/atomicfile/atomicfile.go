// Package atomicfile replaces files by writing a temp file in the same
// directory and renaming it over the target.
package atomicfile

import (
	"errors"
	"os"
	"path/filepath"
)

// Write creates the parent directory (0700) if needed and atomically
// replaces path with data. The final file has mode perm.
func Write(path string, data []byte, perm os.FileMode) error {
	if path == "" {
		return errors.New("atomicfile: path is empty")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	// No-op once renamed.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
