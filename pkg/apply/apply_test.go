package apply

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nstogner/drydock/pkg/vfs"
	"github.com/nstogner/drydock/pkg/vfs/badgerfs"
	"github.com/nstogner/drydock/pkg/vfs/overlay"
)

// setupSession simulates a closed session: an overlay over targetDir whose
// manifest has been persisted into the delta layer.
func setupSession(t *testing.T, targetDir string, mutate func(*overlay.FS)) vfs.FS {
	t.Helper()

	delta, err := badgerfs.Open(badgerfs.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { delta.Close() })

	o := overlay.New(vfs.NewOSFS(), delta, targetDir)
	mutate(o)
	require.NoError(t, o.PersistManifest())
	return delta
}

func TestPlanClassifiesChanges(t *testing.T) {
	targetDir := t.TempDir()
	existing := filepath.Join(targetDir, "existing.txt")
	doomed := filepath.Join(targetDir, "doomed.txt")
	require.NoError(t, os.WriteFile(existing, []byte("old"), 0644))
	require.NoError(t, os.WriteFile(doomed, []byte("bye"), 0644))

	delta := setupSession(t, targetDir, func(o *overlay.FS) {
		require.NoError(t, o.WriteFile("existing.txt", []byte("new content"), 0644))
		require.NoError(t, o.WriteFile("brand-new.txt", []byte("hi"), 0644))
		require.NoError(t, o.Unlink("doomed.txt"))
	})

	eng := New(delta, vfs.NewOSFS())
	plan, err := eng.Plan()
	require.NoError(t, err)
	require.Len(t, plan, 3)

	byPath := make(map[string]Change)
	for _, c := range plan {
		byPath[c.Path] = c
	}

	require.Equal(t, StatusAdded, byPath[filepath.Join(targetDir, "brand-new.txt")].Status)
	require.Equal(t, int64(2), byPath[filepath.Join(targetDir, "brand-new.txt")].Size)
	require.Equal(t, StatusModified, byPath[existing].Status)
	require.Equal(t, int64(11), byPath[existing].Size)
	require.Equal(t, StatusDeleted, byPath[doomed].Status)
}

func TestPlanSkipsDeletionsAlreadyGone(t *testing.T) {
	targetDir := t.TempDir()
	ghost := filepath.Join(targetDir, "ghost.txt")
	require.NoError(t, os.WriteFile(ghost, []byte("x"), 0644))

	delta := setupSession(t, targetDir, func(o *overlay.FS) {
		require.NoError(t, o.Unlink("ghost.txt"))
	})

	// The user removed it themselves between sessions.
	require.NoError(t, os.Remove(ghost))

	eng := New(delta, vfs.NewOSFS())
	plan, err := eng.Plan()
	require.NoError(t, err)
	require.Empty(t, plan)
}

func TestCommitAppliesPlan(t *testing.T) {
	targetDir := t.TempDir()
	doomed := filepath.Join(targetDir, "doomed.txt")
	require.NoError(t, os.WriteFile(doomed, []byte("bye"), 0644))

	delta := setupSession(t, targetDir, func(o *overlay.FS) {
		require.NoError(t, o.WriteFile("deep/nested/file.txt", []byte("payload"), 0644))
		require.NoError(t, o.Unlink("doomed.txt"))
	})

	eng := New(delta, vfs.NewOSFS())
	plan, err := eng.Plan()
	require.NoError(t, err)

	applied, err := eng.Commit(plan)
	require.NoError(t, err)
	require.Equal(t, 2, applied)

	// Parent directories were created on the way.
	data, err := os.ReadFile(filepath.Join(targetDir, "deep", "nested", "file.txt"))
	require.NoError(t, err)
	require.Equal(t, "payload", string(data))

	_, err = os.Stat(doomed)
	require.True(t, os.IsNotExist(err))
}

func TestPlanAndCommitDirectoriesAndSymlinks(t *testing.T) {
	targetDir := t.TempDir()

	delta := setupSession(t, targetDir, func(o *overlay.FS) {
		require.NoError(t, o.Mkdir("newdir", 0755))
		require.NoError(t, o.WriteFile("file.txt", []byte("data"), 0644))
		require.NoError(t, o.Symlink("file.txt", "link"))
	})

	eng := New(delta, vfs.NewOSFS())
	plan, err := eng.Plan()
	require.NoError(t, err)
	require.Len(t, plan, 3)

	byPath := make(map[string]Change)
	for _, c := range plan {
		byPath[c.Path] = c
	}

	dir := byPath[filepath.Join(targetDir, "newdir")]
	require.Equal(t, StatusAdded, dir.Status)
	require.True(t, dir.Mode.IsDir())
	require.Zero(t, dir.Size)

	link := byPath[filepath.Join(targetDir, "link")]
	require.Equal(t, StatusAdded, link.Status)
	require.NotZero(t, link.Mode&fs.ModeSymlink)

	applied, err := eng.Commit(plan)
	require.NoError(t, err)
	require.Equal(t, 3, applied)

	info, err := os.Stat(filepath.Join(targetDir, "newdir"))
	require.NoError(t, err)
	require.True(t, info.IsDir())

	linkTarget, err := os.Readlink(filepath.Join(targetDir, "link"))
	require.NoError(t, err)
	require.Equal(t, "file.txt", linkTarget)
}

// accessErrFS fails every Access call, standing in for a target path the
// process cannot check (e.g. a permission error).
type accessErrFS struct {
	vfs.FS
	err error
}

func (f accessErrFS) Access(path string) error { return f.err }

func TestPlanSurfacesDeletionCheckErrors(t *testing.T) {
	targetDir := t.TempDir()
	doomed := filepath.Join(targetDir, "doomed.txt")
	require.NoError(t, os.WriteFile(doomed, []byte("bye"), 0644))

	delta := setupSession(t, targetDir, func(o *overlay.FS) {
		require.NoError(t, o.Unlink("doomed.txt"))
	})

	// A deletion must not be silently dropped when the target check fails
	// for a reason other than the path being gone.
	eng := New(delta, accessErrFS{FS: vfs.NewOSFS(), err: errors.New("permission denied")})
	_, err := eng.Plan()
	require.Error(t, err)
	require.Contains(t, err.Error(), "permission denied")
}

func TestCommitFailFastReportsPartialProgress(t *testing.T) {
	targetDir := t.TempDir()

	delta := setupSession(t, targetDir, func(o *overlay.FS) {
		require.NoError(t, o.WriteFile("ok.txt", []byte("fine"), 0644))
	})

	eng := New(delta, vfs.NewOSFS())
	plan, err := eng.Plan()
	require.NoError(t, err)

	// Append a change whose content is not in the delta; it must abort the
	// loop after the first successful write.
	plan = append(plan, Change{Path: filepath.Join(targetDir, "missing.txt"), Status: StatusModified})

	applied, err := eng.Commit(plan)
	require.Error(t, err)
	require.Equal(t, 1, applied)

	_, statErr := os.Stat(filepath.Join(targetDir, "ok.txt"))
	require.NoError(t, statErr)
}

func TestEngineWithEmptyManifest(t *testing.T) {
	delta, err := badgerfs.Open(badgerfs.InMemoryConfig())
	require.NoError(t, err)
	defer delta.Close()

	eng := New(delta, vfs.NewOSFS())
	plan, err := eng.Plan()
	require.NoError(t, err)
	require.Empty(t, plan)

	applied, err := eng.Commit(plan)
	require.NoError(t, err)
	require.Zero(t, applied)
}
