package storage

import (
	"os"
	"path/filepath"
)

// EnsureParentDir creates the directory holding the database file at path.
func EnsureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0700)
}
