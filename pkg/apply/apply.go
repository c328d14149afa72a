// Package apply turns a closed session's recorded delta back into real
// filesystem mutations, gated by explicit confirmation.
package apply

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/nstogner/drydock/pkg/vfs"
)

// Status classifies a planned change.
type Status byte

const (
	StatusAdded    Status = 'A' // absent from the real filesystem
	StatusModified Status = 'M' // present and will be overwritten
	StatusDeleted  Status = 'D' // still on disk and will be removed
)

// Change is one planned mutation of the real filesystem.
type Change struct {
	Path   string
	Status Status
	Size   int64       // delta-layer byte size; zero for directories, symlinks and deletions
	Mode   fs.FileMode // delta-layer mode; distinguishes directories and symlinks
}

// Engine previews and commits a session's recorded changes. The delta
// layer is opened read-only by convention; only target is mutated.
type Engine struct {
	delta    vfs.FS
	target   vfs.FS
	manifest *vfs.Manifest
}

// New builds an engine over a session's delta layer and the commit target
// (normally the real disk). The manifest is loaded from the delta.
func New(delta, target vfs.FS) *Engine {
	return &Engine{
		delta:    delta,
		target:   target,
		manifest: vfs.LoadManifest(delta),
	}
}

// Manifest exposes the loaded change bookkeeping.
func (e *Engine) Manifest() *vfs.Manifest { return e.manifest }

// Plan reports every modified path with its delta-layer size, and every
// deleted path that the target filesystem still has. Modified paths may be
// regular files, directories or symlinks; the delta metadata decides. Paths
// are sorted within each group, modifications first.
func (e *Engine) Plan() ([]Change, error) {
	var changes []Change

	for _, p := range e.manifest.Modified() {
		info, err := e.delta.Lstat(p)
		if err != nil {
			return nil, fmt.Errorf("stat %s in delta: %w", p, err)
		}
		status := StatusModified
		if err := e.target.Access(p); errors.Is(err, vfs.ErrNotFound) {
			status = StatusAdded
		}
		c := Change{Path: p, Status: status, Mode: info.Mode}
		if info.Mode.IsRegular() {
			c.Size = info.Size
		}
		changes = append(changes, c)
	}

	for _, p := range e.manifest.Deleted() {
		// A deletion only matters if the real path is still there.
		err := e.target.Access(p)
		if errors.Is(err, vfs.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("check %s on target: %w", p, err)
		}
		changes = append(changes, Change{Path: p, Status: StatusDeleted})
	}

	return changes, nil
}

// Commit executes the plan against the target: parent directories are
// created as needed, modified content is written whole-file, deleted paths
// are removed. Fail-fast, not transactional: the first error aborts the
// remaining loop and is returned alongside the count applied so far.
func (e *Engine) Commit(changes []Change) (int, error) {
	applied := 0
	for _, c := range changes {
		switch c.Status {
		case StatusAdded, StatusModified:
			if err := e.commitWrite(c); err != nil {
				return applied, err
			}
		case StatusDeleted:
			if err := e.target.Rm(c.Path); err != nil && !errors.Is(err, vfs.ErrNotFound) {
				return applied, fmt.Errorf("remove %s: %w", c.Path, err)
			}
		default:
			return applied, fmt.Errorf("unknown change status %q for %s", c.Status, c.Path)
		}
		applied++
	}
	return applied, nil
}

// commitWrite materializes one modified path on the target: a directory is
// created in place, a symlink is recreated from its recorded target, and a
// regular file is written whole from the delta content.
func (e *Engine) commitWrite(c Change) error {
	if err := vfs.MkdirAll(e.target, filepath.Dir(c.Path), 0755); err != nil {
		return fmt.Errorf("create parent directories for %s: %w", c.Path, err)
	}

	switch {
	case c.Mode.IsDir():
		mode := c.Mode.Perm()
		if mode == 0 {
			mode = 0755
		}
		if err := vfs.MkdirAll(e.target, c.Path, mode); err != nil {
			return fmt.Errorf("create directory %s: %w", c.Path, err)
		}

	case c.Mode&fs.ModeSymlink != 0:
		linkTarget, err := e.delta.Readlink(c.Path)
		if err != nil {
			return fmt.Errorf("read symlink %s from delta: %w", c.Path, err)
		}
		// Symlink creation fails on an existing path, so clear it first.
		if err := e.target.Unlink(c.Path); err != nil && !errors.Is(err, vfs.ErrNotFound) {
			return fmt.Errorf("replace %s: %w", c.Path, err)
		}
		if err := e.target.Symlink(linkTarget, c.Path); err != nil {
			return fmt.Errorf("create symlink %s: %w", c.Path, err)
		}

	default:
		data, err := e.delta.ReadFile(c.Path)
		if err != nil {
			return fmt.Errorf("read %s from delta: %w", c.Path, err)
		}
		mode := c.Mode.Perm()
		if mode == 0 {
			mode = 0644
		}
		if err := e.target.WriteFile(c.Path, data, mode); err != nil {
			return fmt.Errorf("write %s: %w", c.Path, err)
		}
	}
	return nil
}
