// Package fs provides the filesystem abstraction used throughout the
// tool. Production code uses the OS filesystem; tests swap in an
// in-memory one via SetFS.
package fs

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// FS is the active filesystem. Tests replace it with afero.NewMemMapFs().
var FS afero.Fs = afero.NewOsFs()

// SetFS replaces the active filesystem and returns a restore function.
func SetFS(fs afero.Fs) func() {
	prev := FS
	FS = fs
	return func() { FS = prev }
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := FS.Stat(path)
	return err == nil
}

// IsDir reports whether path exists and is a directory.
func IsDir(path string) bool {
	info, err := FS.Stat(path)
	return err == nil && info.IsDir()
}

// WriteDurable writes data to path so that after a crash either the
// old content or the new content is visible, never a partial write.
// It writes to a temp file in the same directory, fsyncs it, renames
// it over path, and fsyncs the directory.
func WriteDurable(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := afero.TempFile(FS, dir, "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("creating temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		tmp.Close()
		FS.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("writing %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("syncing %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		FS.Remove(tmpName)
		return fmt.Errorf("closing %s: %w", tmpName, err)
	}
	if err := FS.Chmod(tmpName, perm); err != nil {
		FS.Remove(tmpName)
		return fmt.Errorf("chmod %s: %w", tmpName, err)
	}
	if err := FS.Rename(tmpName, path); err != nil {
		FS.Remove(tmpName)
		return fmt.Errorf("renaming %s to %s: %w", tmpName, path, err)
	}

	syncDir(dir)
	return nil
}

// syncDir fsyncs a directory. Best effort: the in-memory filesystem
// used by tests does not support opening directories.
func syncDir(dir string) {
	if _, ok := FS.(*afero.OsFs); !ok {
		return
	}
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	defer d.Close()
	d.Sync()
}

// CopyFile copies src to dst, preserving the source file mode.
func CopyFile(src, dst string) error {
	info, err := FS.Stat(src)
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}
	data, err := afero.ReadFile(FS, src)
	if err != nil {
		return fmt.Errorf("reading %s: %w", src, err)
	}
	if err := afero.WriteFile(FS, dst, data, info.Mode().Perm()); err != nil {
		return fmt.Errorf("writing %s: %w", dst, err)
	}
	return nil
}
