// Package overlay merges a read-only base view of the real disk with a
// mutable delta layer. Reads fall through to the base; every mutation is
// captured by the delta, so the real disk is never touched until the
// recorded changes are explicitly applied.
//
// An overlay is owned by a single session and is not safe for concurrent
// use: the agent loop awaits one tool call at a time.
package overlay

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/nstogner/drydock/pkg/vfs"
)

// FS merges base and delta under the FS contract. Tombstones recorded in
// the manifest outrank base presence: a deleted path stays invisible even
// though the underlying real file still exists on disk.
type FS struct {
	base     vfs.FS
	delta    vfs.FS
	baseDir  string
	manifest *vfs.Manifest
}

var _ vfs.FS = (*FS)(nil)

// New builds an overlay with a fresh manifest. baseDir anchors relative
// paths; it is typically the session's working directory.
func New(base, delta vfs.FS, baseDir string) *FS {
	return &FS{
		base:     base,
		delta:    delta,
		baseDir:  baseDir,
		manifest: vfs.NewManifest(),
	}
}

// Resume builds an overlay on top of an existing delta layer, restoring
// the manifest that was persisted when the session closed.
func Resume(base, delta vfs.FS, baseDir string) *FS {
	o := New(base, delta, baseDir)
	o.manifest = vfs.LoadManifest(delta)
	return o
}

// Manifest exposes the change bookkeeping for apply and inspection.
func (o *FS) Manifest() *vfs.Manifest { return o.manifest }

// PersistManifest flushes the manifest into the delta layer. Called when
// the owning session closes.
func (o *FS) PersistManifest() error { return o.manifest.Persist(o.delta) }

func (o *FS) resolve(p string) string { return vfs.ResolvePath(o.baseDir, p) }

func notFound(path string) error {
	return fmt.Errorf("%s: %w", path, vfs.ErrNotFound)
}

// --- Reads: tombstone, then delta, then base. ---

func (o *FS) ReadFile(path string) ([]byte, error) {
	p := o.resolve(path)
	if o.manifest.IsDeleted(p) {
		return nil, notFound(p)
	}
	data, err := o.delta.ReadFile(p)
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, vfs.ErrNotFound) {
		return nil, err
	}
	return o.base.ReadFile(p)
}

func (o *FS) Stat(path string) (vfs.FileInfo, error) {
	p := o.resolve(path)
	if o.manifest.IsDeleted(p) {
		return vfs.FileInfo{}, notFound(p)
	}
	info, err := o.delta.Stat(p)
	if err == nil {
		return info, nil
	}
	if !errors.Is(err, vfs.ErrNotFound) {
		return vfs.FileInfo{}, err
	}
	return o.base.Stat(p)
}

func (o *FS) Lstat(path string) (vfs.FileInfo, error) {
	p := o.resolve(path)
	if o.manifest.IsDeleted(p) {
		return vfs.FileInfo{}, notFound(p)
	}
	info, err := o.delta.Lstat(p)
	if err == nil {
		return info, nil
	}
	if !errors.Is(err, vfs.ErrNotFound) {
		return vfs.FileInfo{}, err
	}
	return o.base.Lstat(p)
}

func (o *FS) Access(path string) error {
	p := o.resolve(path)
	if o.manifest.IsDeleted(p) {
		return notFound(p)
	}
	err := o.delta.Access(p)
	if err == nil {
		return nil
	}
	if !errors.Is(err, vfs.ErrNotFound) {
		return err
	}
	return o.base.Access(p)
}

func (o *FS) Readlink(path string) (string, error) {
	p := o.resolve(path)
	if o.manifest.IsDeleted(p) {
		return "", notFound(p)
	}
	target, err := o.delta.Readlink(p)
	if err == nil {
		return target, nil
	}
	if !errors.Is(err, vfs.ErrNotFound) {
		return "", err
	}
	return o.base.Readlink(p)
}

// --- Directory listing: union minus tombstoned children. ---

func (o *FS) ReadDir(path string) ([]string, error) {
	p := o.resolve(path)
	if o.manifest.IsDeleted(p) {
		return nil, notFound(p)
	}

	deltaNames, deltaErr := o.delta.ReadDir(p)
	baseNames, baseErr := o.base.ReadDir(p)
	if deltaErr != nil && baseErr != nil {
		return nil, baseErr
	}

	seen := make(map[string]struct{})
	var names []string
	for _, n := range append(deltaNames, baseNames...) {
		child := filepath.Join(p, n)
		if child == vfs.ManifestPath {
			continue
		}
		if o.manifest.IsDeleted(child) {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		names = append(names, n)
	}
	return names, nil
}

func (o *FS) ReadDirPlus(path string) ([]vfs.DirEntry, error) {
	p := o.resolve(path)
	if o.manifest.IsDeleted(p) {
		return nil, notFound(p)
	}

	deltaEntries, deltaErr := o.delta.ReadDirPlus(p)
	baseEntries, baseErr := o.base.ReadDirPlus(p)
	if deltaErr != nil && baseErr != nil {
		return nil, baseErr
	}

	seen := make(map[string]struct{})
	var out []vfs.DirEntry
	for _, e := range append(deltaEntries, baseEntries...) {
		child := filepath.Join(p, e.Name)
		if child == vfs.ManifestPath {
			continue
		}
		if o.manifest.IsDeleted(child) {
			continue
		}
		if _, dup := seen[e.Name]; dup {
			continue
		}
		seen[e.Name] = struct{}{}
		out = append(out, e)
	}
	return out, nil
}

// --- Writes: delta only, then bookkeeping. ---

func (o *FS) WriteFile(path string, data []byte, mode fs.FileMode) error {
	p := o.resolve(path)
	if err := o.delta.WriteFile(p, data, mode); err != nil {
		return err
	}
	o.manifest.MarkModified(p)
	return nil
}

func (o *FS) Mkdir(path string, mode fs.FileMode) error {
	p := o.resolve(path)
	if err := o.delta.Mkdir(p, mode); err != nil {
		return err
	}
	o.manifest.MarkModified(p)
	return nil
}

func (o *FS) Symlink(target, linkPath string) error {
	p := o.resolve(linkPath)
	if err := o.delta.Symlink(target, p); err != nil {
		return err
	}
	o.manifest.MarkModified(p)
	return nil
}

// --- Deletes: record the tombstone before delegating, and tolerate the
// delta not holding the path. Deletion tracking must succeed even when the
// path only ever existed in the base view. ---

func (o *FS) Unlink(path string) error {
	p := o.resolve(path)
	o.manifest.MarkDeleted(p)
	if err := o.delta.Unlink(p); err != nil && !errors.Is(err, vfs.ErrNotFound) {
		return err
	}
	return nil
}

func (o *FS) Rmdir(path string) error {
	p := o.resolve(path)
	o.manifest.MarkDeleted(p)
	if err := o.delta.Rmdir(p); err != nil && !errors.Is(err, vfs.ErrNotFound) {
		return err
	}
	return nil
}

func (o *FS) Rm(path string) error {
	p := o.resolve(path)
	o.manifest.MarkDeleted(p)
	if err := o.delta.Rm(p); err != nil && !errors.Is(err, vfs.ErrNotFound) {
		return err
	}
	return nil
}

// Rename copies the source up from the base view first when the delta has
// never seen it, so the delegated rename always operates on delta state.
// Bookkeeping happens only after the delegation succeeds, keeping tombstone
// state consistent with the delta layer when the rename fails.
func (o *FS) Rename(oldPath, newPath string) error {
	p := o.resolve(oldPath)
	q := o.resolve(newPath)
	if o.manifest.IsDeleted(p) {
		return notFound(p)
	}

	if err := o.copyUp(p); err != nil {
		return err
	}
	if err := o.delta.Rename(p, q); err != nil {
		return err
	}

	o.manifest.MarkDeleted(p)
	o.manifest.MarkModified(q)
	return nil
}

func (o *FS) CopyFile(src, dst string) error {
	p := o.resolve(src)
	q := o.resolve(dst)

	data, err := o.ReadFile(p)
	if err != nil {
		return err
	}
	mode := fs.FileMode(0644)
	if info, statErr := o.Stat(p); statErr == nil {
		mode = info.Mode
	}
	if err := o.delta.WriteFile(q, data, mode); err != nil {
		return err
	}
	o.manifest.MarkModified(q)
	return nil
}

// Open copies base content up into the delta before handing out a handle,
// so handle-based writers never silently target the base view. The handle
// is wrapped to mark the path modified once it has been written through.
//
// A tombstoned path opens as an empty file rather than failing: Open is
// open-for-create, like WriteFile. The base content is not copied up, and
// the tombstone clears only when the handle is actually written.
func (o *FS) Open(path string) (vfs.File, error) {
	p := o.resolve(path)
	if !o.manifest.IsDeleted(p) {
		if err := o.copyUp(p); err != nil {
			return nil, err
		}
	}
	f, err := o.delta.Open(p)
	if err != nil {
		return nil, err
	}
	return &trackedFile{File: f, path: p, manifest: o.manifest}, nil
}

// copyUp materializes p in the delta layer from the base view. A path
// already present in the delta, or absent everywhere, is left alone.
func (o *FS) copyUp(p string) error {
	if _, err := o.delta.Stat(p); err == nil {
		return nil
	} else if !errors.Is(err, vfs.ErrNotFound) {
		return err
	}

	data, err := o.base.ReadFile(p)
	if err != nil {
		if errors.Is(err, vfs.ErrNotFound) {
			return nil
		}
		return err
	}
	mode := fs.FileMode(0644)
	if info, statErr := o.base.Stat(p); statErr == nil {
		mode = info.Mode
	}
	return o.delta.WriteFile(p, data, mode)
}

// trackedFile marks the path modified when the handle is written through.
type trackedFile struct {
	vfs.File
	path     string
	manifest *vfs.Manifest
	wrote    bool
}

func (t *trackedFile) Write(b []byte) (int, error) {
	n, err := t.File.Write(b)
	if n > 0 {
		t.wrote = true
	}
	return n, err
}

func (t *trackedFile) Close() error {
	err := t.File.Close()
	if t.wrote {
		t.manifest.MarkModified(t.path)
	}
	return err
}
