package vfs

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
)

// OSFS adapts the real disk to the FS contract. It is the base view of the
// overlay and the commit target of the apply engine.
type OSFS struct{}

var _ FS = (*OSFS)(nil)

// NewOSFS returns a real-disk adapter.
func NewOSFS() *OSFS { return &OSFS{} }

func mapOSErr(err error, path string) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	return err
}

func osInfo(fi fs.FileInfo) FileInfo {
	return FileInfo{
		Name:    fi.Name(),
		Size:    fi.Size(),
		Mode:    fi.Mode(),
		ModTime: fi.ModTime(),
		IsDir:   fi.IsDir(),
	}
}

func (o *OSFS) ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, mapOSErr(err, path)
	}
	return data, nil
}

func (o *OSFS) WriteFile(path string, data []byte, mode fs.FileMode) error {
	if err := os.WriteFile(path, data, mode); err != nil {
		return mapOSErr(err, path)
	}
	return nil
}

func (o *OSFS) Stat(path string) (FileInfo, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return FileInfo{}, mapOSErr(err, path)
	}
	return osInfo(fi), nil
}

func (o *OSFS) Lstat(path string) (FileInfo, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		return FileInfo{}, mapOSErr(err, path)
	}
	return osInfo(fi), nil
}

func (o *OSFS) ReadDir(path string) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, mapOSErr(err, path)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

func (o *OSFS) ReadDirPlus(path string) ([]DirEntry, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, mapOSErr(err, path)
	}
	out := make([]DirEntry, 0, len(entries))
	for _, e := range entries {
		fi, err := e.Info()
		if err != nil {
			// Entry vanished between listing and stat; skip it.
			continue
		}
		out = append(out, DirEntry{Name: e.Name(), Info: osInfo(fi)})
	}
	return out, nil
}

func (o *OSFS) Access(path string) error {
	if _, err := os.Stat(path); err != nil {
		return mapOSErr(err, path)
	}
	return nil
}

func (o *OSFS) Mkdir(path string, mode fs.FileMode) error {
	if err := os.Mkdir(path, mode); err != nil {
		return mapOSErr(err, path)
	}
	return nil
}

func (o *OSFS) Unlink(path string) error {
	if err := os.Remove(path); err != nil {
		return mapOSErr(err, path)
	}
	return nil
}

func (o *OSFS) Rmdir(path string) error {
	if err := os.Remove(path); err != nil {
		return mapOSErr(err, path)
	}
	return nil
}

func (o *OSFS) Rm(path string) error {
	if _, err := os.Lstat(path); err != nil {
		return mapOSErr(err, path)
	}
	return os.RemoveAll(path)
}

func (o *OSFS) Rename(oldPath, newPath string) error {
	if err := os.Rename(oldPath, newPath); err != nil {
		return mapOSErr(err, oldPath)
	}
	return nil
}

func (o *OSFS) CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return mapOSErr(err, src)
	}
	defer in.Close()

	fi, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fi.Mode())
	if err != nil {
		return mapOSErr(err, dst)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func (o *OSFS) Symlink(target, linkPath string) error {
	if err := os.Symlink(target, linkPath); err != nil {
		return mapOSErr(err, linkPath)
	}
	return nil
}

func (o *OSFS) Readlink(path string) (string, error) {
	target, err := os.Readlink(path)
	if err != nil {
		return "", mapOSErr(err, path)
	}
	return target, nil
}

func (o *OSFS) Open(path string) (File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, mapOSErr(err, path)
	}
	return f, nil
}
