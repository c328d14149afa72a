// Package vfs defines the filesystem capability contract shared by the
// real-disk adapter, the durable delta layer and the overlay that merges
// them. Every adapter reports missing paths with ErrNotFound so callers can
// layer fallback logic with errors.Is.
package vfs

import (
	"errors"
	"io"
	"io/fs"
	"path/filepath"
	"time"
)

var (
	// ErrNotFound reports a path absent from the adapter (or masked by a
	// tombstone in the overlay). Never retried.
	ErrNotFound = errors.New("path not found")

	// ErrNotEmpty reports an Rmdir on a directory that still has children.
	ErrNotEmpty = errors.New("directory not empty")

	// ErrManifestCorrupt reports an unreadable or unparseable change
	// manifest. Loading fails open to empty sets; the error is logged,
	// not returned.
	ErrManifestCorrupt = errors.New("manifest corrupt")
)

// FileInfo is the adapter-neutral stat result.
type FileInfo struct {
	Name    string
	Size    int64
	Mode    fs.FileMode
	ModTime time.Time
	IsDir   bool
}

// DirEntry pairs a child name with its stat info for ReadDirPlus.
type DirEntry struct {
	Name string
	Info FileInfo
}

// File is an open handle. Adapters that buffer in memory flush on Close.
type File interface {
	io.Reader
	io.Writer
	io.Seeker
	io.Closer
}

// FS is the filesystem capability every layer implements. All paths are
// absolute and cleaned; use ResolvePath to normalize caller input first.
//
// Implementations are not required to be safe for concurrent use by
// multiple writers; the agent loop serializes all operations.
type FS interface {
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte, mode fs.FileMode) error
	Stat(path string) (FileInfo, error)
	Lstat(path string) (FileInfo, error)
	ReadDir(path string) ([]string, error)
	ReadDirPlus(path string) ([]DirEntry, error)
	Access(path string) error
	Mkdir(path string, mode fs.FileMode) error
	Unlink(path string) error
	Rmdir(path string) error
	Rm(path string) error
	Rename(oldPath, newPath string) error
	CopyFile(src, dst string) error
	Symlink(target, linkPath string) error
	Readlink(path string) (string, error)
	Open(path string) (File, error)
}

// ResolvePath normalizes p to an absolute, cleaned path. Relative paths are
// resolved against baseDir, never against the process working directory.
func ResolvePath(baseDir, p string) string {
	if !filepath.IsAbs(p) {
		p = filepath.Join(baseDir, p)
	}
	return filepath.Clean(p)
}

// MkdirAll creates path and any missing parents on fsys, ignoring segments
// that already exist.
func MkdirAll(fsys FS, path string, mode fs.FileMode) error {
	path = filepath.Clean(path)
	if path == "/" || path == "." {
		return nil
	}
	if info, err := fsys.Stat(path); err == nil {
		if info.IsDir {
			return nil
		}
		return fs.ErrExist
	}
	if err := MkdirAll(fsys, filepath.Dir(path), mode); err != nil {
		return err
	}
	return fsys.Mkdir(path, mode)
}
