package badgerfs

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nstogner/drydock/pkg/vfs"
)

func newTestFS(t *testing.T) *FS {
	t.Helper()
	fsys, err := Open(InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { fsys.Close() })
	return fsys
}

func TestWriteReadRoundTrip(t *testing.T) {
	fsys := newTestFS(t)

	require.NoError(t, fsys.WriteFile("/a/b.txt", []byte("hello"), 0644))

	data, err := fsys.ReadFile("/a/b.txt")
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))

	info, err := fsys.Stat("/a/b.txt")
	require.NoError(t, err)
	require.Equal(t, "b.txt", info.Name)
	require.Equal(t, int64(5), info.Size)
	require.False(t, info.IsDir)
}

func TestReadFileMissing(t *testing.T) {
	fsys := newTestFS(t)

	_, err := fsys.ReadFile("/nope")
	require.ErrorIs(t, err, vfs.ErrNotFound)
}

func TestImplicitDirectories(t *testing.T) {
	fsys := newTestFS(t)

	require.NoError(t, fsys.WriteFile("/src/pkg/main.go", []byte("x"), 0644))

	// Parents with children but no record of their own stat as directories.
	info, err := fsys.Stat("/src")
	require.NoError(t, err)
	require.True(t, info.IsDir)

	names, err := fsys.ReadDir("/src")
	require.NoError(t, err)
	require.Equal(t, []string{"pkg"}, names)

	names, err = fsys.ReadDir("/src/pkg")
	require.NoError(t, err)
	require.Equal(t, []string{"main.go"}, names)
}

func TestReadDirMissing(t *testing.T) {
	fsys := newTestFS(t)

	_, err := fsys.ReadDir("/nope")
	require.ErrorIs(t, err, vfs.ErrNotFound)
}

func TestMkdirAndRmdir(t *testing.T) {
	fsys := newTestFS(t)

	require.NoError(t, fsys.Mkdir("/d", 0755))
	info, err := fsys.Stat("/d")
	require.NoError(t, err)
	require.True(t, info.IsDir)

	require.NoError(t, fsys.WriteFile("/d/f", []byte("x"), 0644))
	require.ErrorIs(t, fsys.Rmdir("/d"), vfs.ErrNotEmpty)

	require.NoError(t, fsys.Unlink("/d/f"))
	require.NoError(t, fsys.Rmdir("/d"))
	require.ErrorIs(t, fsys.Access("/d"), vfs.ErrNotFound)
}

func TestUnlinkMissing(t *testing.T) {
	fsys := newTestFS(t)
	require.ErrorIs(t, fsys.Unlink("/nope"), vfs.ErrNotFound)
}

func TestRmRecursive(t *testing.T) {
	fsys := newTestFS(t)

	require.NoError(t, fsys.WriteFile("/tree/a", []byte("a"), 0644))
	require.NoError(t, fsys.WriteFile("/tree/sub/b", []byte("b"), 0644))
	require.NoError(t, fsys.Mkdir("/tree/empty", 0755))

	require.NoError(t, fsys.Rm("/tree"))

	require.ErrorIs(t, fsys.Access("/tree/a"), vfs.ErrNotFound)
	require.ErrorIs(t, fsys.Access("/tree/sub/b"), vfs.ErrNotFound)
	require.ErrorIs(t, fsys.Access("/tree"), vfs.ErrNotFound)
}

func TestRenameMovesSubtree(t *testing.T) {
	fsys := newTestFS(t)

	require.NoError(t, fsys.WriteFile("/old/a", []byte("a"), 0644))
	require.NoError(t, fsys.WriteFile("/old/sub/b", []byte("b"), 0644))

	require.NoError(t, fsys.Rename("/old", "/new"))

	data, err := fsys.ReadFile("/new/a")
	require.NoError(t, err)
	require.Equal(t, "a", string(data))

	data, err = fsys.ReadFile("/new/sub/b")
	require.NoError(t, err)
	require.Equal(t, "b", string(data))

	require.ErrorIs(t, fsys.Access("/old/a"), vfs.ErrNotFound)
}

func TestRenameMissing(t *testing.T) {
	fsys := newTestFS(t)
	require.ErrorIs(t, fsys.Rename("/nope", "/dst"), vfs.ErrNotFound)
}

func TestCopyFile(t *testing.T) {
	fsys := newTestFS(t)

	require.NoError(t, fsys.WriteFile("/src", []byte("payload"), 0600))
	require.NoError(t, fsys.CopyFile("/src", "/dst"))

	data, err := fsys.ReadFile("/dst")
	require.NoError(t, err)
	require.Equal(t, "payload", string(data))

	info, err := fsys.Stat("/dst")
	require.NoError(t, err)
	require.Equal(t, info.Mode, mustStat(t, fsys, "/src").Mode)
}

func TestSymlink(t *testing.T) {
	fsys := newTestFS(t)

	require.NoError(t, fsys.Symlink("/target", "/link"))

	target, err := fsys.Readlink("/link")
	require.NoError(t, err)
	require.Equal(t, "/target", target)

	_, err = fsys.Readlink("/nope")
	require.ErrorIs(t, err, vfs.ErrNotFound)
}

func TestOpenWriteFlushOnClose(t *testing.T) {
	fsys := newTestFS(t)

	f, err := fsys.Open("/buffered")
	require.NoError(t, err)

	_, err = f.Write([]byte("first"))
	require.NoError(t, err)

	// Not visible until the handle is closed.
	_, err = fsys.ReadFile("/buffered")
	require.ErrorIs(t, err, vfs.ErrNotFound)

	require.NoError(t, f.Close())

	data, err := fsys.ReadFile("/buffered")
	require.NoError(t, err)
	require.Equal(t, "first", string(data))
}

func TestOpenReadSeek(t *testing.T) {
	fsys := newTestFS(t)
	require.NoError(t, fsys.WriteFile("/f", []byte("abcdef"), 0644))

	f, err := fsys.Open("/f")
	require.NoError(t, err)
	defer f.Close()

	_, err = f.Seek(2, io.SeekStart)
	require.NoError(t, err)

	data, err := io.ReadAll(f)
	require.NoError(t, err)
	require.Equal(t, "cdef", string(data))
}

func TestPersistenceAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	fsys, err := Open(Config{Path: dir, SyncWrites: true})
	require.NoError(t, err)
	require.NoError(t, fsys.WriteFile("/kept", []byte("survives"), 0644))
	require.NoError(t, fsys.Close())

	fsys, err = Open(Config{Path: dir, SyncWrites: true})
	require.NoError(t, err)
	defer fsys.Close()

	data, err := fsys.ReadFile("/kept")
	require.NoError(t, err)
	require.Equal(t, "survives", string(data))
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(Config{})
	require.Error(t, err)
	require.False(t, errors.Is(err, vfs.ErrNotFound))
}

func mustStat(t *testing.T, fsys *FS, path string) vfs.FileInfo {
	t.Helper()
	info, err := fsys.Stat(path)
	require.NoError(t, err)
	return info
}
