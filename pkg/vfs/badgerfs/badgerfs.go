// Package badgerfs persists a session's delta layer in BadgerDB. Each path
// maps to a metadata record and, for regular files, a content record; the
// store is embedded, durable and cheap to open per session.
package badgerfs

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/nstogner/drydock/pkg/vfs"
)

const (
	metaPrefix    = "m:"
	contentPrefix = "c:"
)

// Config holds the knobs for opening a delta store.
type Config struct {
	// Path is the directory for the BadgerDB files. Ignored when InMemory
	// is set.
	Path string

	// InMemory keeps everything in RAM. Used by tests.
	InMemory bool

	// SyncWrites forces durable writes. On by default for real sessions.
	SyncWrites bool

	// Logger receives BadgerDB's own log output. Nil disables it.
	Logger *slog.Logger
}

// DefaultConfig returns the production configuration for path.
func DefaultConfig(path string) Config {
	return Config{Path: path, SyncWrites: true}
}

// InMemoryConfig returns a throwaway configuration for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// FS is a durable delta layer over BadgerDB.
type FS struct {
	db *badger.DB
}

var _ vfs.FS = (*FS)(nil)

// Open opens (creating if necessary) the delta store described by cfg.
// Callers must Close it when the session ends.
func Open(cfg Config) (*FS, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for a persistent delta store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create delta store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open delta store: %w", err)
	}
	return &FS{db: db}, nil
}

// Close releases the underlying database.
func (b *FS) Close() error { return b.db.Close() }

// badgerLogger adapts slog to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}
func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}
func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// meta is the per-path metadata record.
type meta struct {
	Mode       fs.FileMode `json:"mode"`
	ModTime    time.Time   `json:"mod_time"`
	Size       int64       `json:"size"`
	IsDir      bool        `json:"is_dir,omitempty"`
	LinkTarget string      `json:"link_target,omitempty"`
}

func metaKey(path string) []byte    { return []byte(metaPrefix + path) }
func contentKey(path string) []byte { return []byte(contentPrefix + path) }

func notFound(path string) error {
	return fmt.Errorf("%s: %w", path, vfs.ErrNotFound)
}

func (b *FS) getMeta(txn *badger.Txn, path string) (meta, error) {
	item, err := txn.Get(metaKey(path))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return meta{}, notFound(path)
		}
		return meta{}, err
	}
	var m meta
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &m)
	}); err != nil {
		return meta{}, fmt.Errorf("decode metadata for %s: %w", path, err)
	}
	return m, nil
}

func (b *FS) putMeta(txn *badger.Txn, path string, m meta) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return txn.Set(metaKey(path), data)
}

func (b *FS) info(path string, m meta) vfs.FileInfo {
	return vfs.FileInfo{
		Name:    filepath.Base(path),
		Size:    m.Size,
		Mode:    m.Mode,
		ModTime: m.ModTime,
		IsDir:   m.IsDir,
	}
}

func (b *FS) ReadFile(path string) ([]byte, error) {
	var data []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(contentKey(path))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return notFound(path)
			}
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (b *FS) WriteFile(path string, data []byte, mode fs.FileMode) error {
	return b.db.Update(func(txn *badger.Txn) error {
		if err := b.putMeta(txn, path, meta{
			Mode:    mode,
			ModTime: time.Now(),
			Size:    int64(len(data)),
		}); err != nil {
			return err
		}
		return txn.Set(contentKey(path), data)
	})
}

func (b *FS) Stat(path string) (vfs.FileInfo, error) {
	var out vfs.FileInfo
	err := b.db.View(func(txn *badger.Txn) error {
		m, err := b.getMeta(txn, path)
		if err == nil {
			out = b.info(path, m)
			return nil
		}
		if !errors.Is(err, vfs.ErrNotFound) {
			return err
		}
		// A path with children but no record of its own is an implicit
		// directory, created as a side effect of writing below it.
		if b.hasChildren(txn, path) {
			out = vfs.FileInfo{Name: filepath.Base(path), Mode: fs.ModeDir | 0755, IsDir: true}
			return nil
		}
		return err
	})
	if err != nil {
		return vfs.FileInfo{}, err
	}
	return out, nil
}

func (b *FS) Lstat(path string) (vfs.FileInfo, error) {
	// Symlinks are stored as their own metadata record, so Lstat and Stat
	// observe the same state.
	return b.Stat(path)
}

func (b *FS) Access(path string) error {
	_, err := b.Stat(path)
	return err
}

func (b *FS) hasChildren(txn *badger.Txn, path string) bool {
	prefix := []byte(metaPrefix + childPrefix(path))
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()
	it.Rewind()
	return it.ValidForPrefix(prefix)
}

func childPrefix(dir string) string {
	if strings.HasSuffix(dir, "/") {
		return dir
	}
	return dir + "/"
}

func (b *FS) ReadDir(path string) ([]string, error) {
	entries, err := b.ReadDirPlus(path)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	return names, nil
}

func (b *FS) ReadDirPlus(path string) ([]vfs.DirEntry, error) {
	var out []vfs.DirEntry
	err := b.db.View(func(txn *badger.Txn) error {
		prefix := []byte(metaPrefix + childPrefix(path))
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		seen := make(map[string]struct{})
		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			rest := strings.TrimPrefix(string(item.Key()), string(prefix))
			name, _, nested := strings.Cut(rest, "/")
			if name == "" {
				continue
			}
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}

			if nested {
				// Deeper record implies an intermediate directory.
				out = append(out, vfs.DirEntry{
					Name: name,
					Info: vfs.FileInfo{Name: name, Mode: fs.ModeDir | 0755, IsDir: true},
				})
				continue
			}
			var m meta
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &m)
			}); err != nil {
				return err
			}
			out = append(out, vfs.DirEntry{Name: name, Info: b.info(name, m)})
		}

		if len(out) == 0 {
			if _, err := b.getMeta(txn, path); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *FS) Mkdir(path string, mode fs.FileMode) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return b.putMeta(txn, path, meta{
			Mode:    mode | fs.ModeDir,
			ModTime: time.Now(),
			IsDir:   true,
		})
	})
}

func (b *FS) Unlink(path string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		if _, err := b.getMeta(txn, path); err != nil {
			return err
		}
		if err := txn.Delete(metaKey(path)); err != nil {
			return err
		}
		return txn.Delete(contentKey(path))
	})
}

func (b *FS) Rmdir(path string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		if b.hasChildren(txn, path) {
			return fmt.Errorf("%s: %w", path, vfs.ErrNotEmpty)
		}
		if _, err := b.getMeta(txn, path); err != nil {
			return err
		}
		return txn.Delete(metaKey(path))
	})
}

func (b *FS) Rm(path string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		keys, err := b.subtreeKeys(txn, path)
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			return notFound(path)
		}
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// subtreeKeys collects every key belonging to path itself or anything
// beneath it.
func (b *FS) subtreeKeys(txn *badger.Txn, path string) ([][]byte, error) {
	var keys [][]byte
	for _, keyPrefix := range []string{metaPrefix, contentPrefix} {
		exact := []byte(keyPrefix + path)
		if _, err := txn.Get(exact); err == nil {
			keys = append(keys, exact)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return nil, err
		}

		prefix := []byte(keyPrefix + childPrefix(path))
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		it.Close()
	}
	return keys, nil
}

func (b *FS) Rename(oldPath, newPath string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		keys, err := b.subtreeKeys(txn, oldPath)
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			return notFound(oldPath)
		}
		for _, k := range keys {
			item, err := txn.Get(k)
			if err != nil {
				return err
			}
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			key := string(k)
			keyPrefix, rest := key[:2], key[2:]
			moved := newPath + strings.TrimPrefix(rest, oldPath)
			if err := txn.Set([]byte(keyPrefix+moved), val); err != nil {
				return err
			}
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *FS) CopyFile(src, dst string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		m, err := b.getMeta(txn, src)
		if err != nil {
			return err
		}
		item, err := txn.Get(contentKey(src))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return notFound(src)
			}
			return err
		}
		data, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		m.ModTime = time.Now()
		if err := b.putMeta(txn, dst, m); err != nil {
			return err
		}
		return txn.Set(contentKey(dst), data)
	})
}

func (b *FS) Symlink(target, linkPath string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return b.putMeta(txn, linkPath, meta{
			Mode:       fs.ModeSymlink | 0777,
			ModTime:    time.Now(),
			LinkTarget: target,
		})
	})
}

func (b *FS) Readlink(path string) (string, error) {
	var target string
	err := b.db.View(func(txn *badger.Txn) error {
		m, err := b.getMeta(txn, path)
		if err != nil {
			return err
		}
		if m.LinkTarget == "" {
			return fmt.Errorf("%s: not a symlink", path)
		}
		target = m.LinkTarget
		return nil
	})
	if err != nil {
		return "", err
	}
	return target, nil
}

// Open returns a handle buffered in memory; writes reach the store when the
// handle is closed. A missing path opens as an empty file.
func (b *FS) Open(path string) (vfs.File, error) {
	data, err := b.ReadFile(path)
	if err != nil && !errors.Is(err, vfs.ErrNotFound) {
		return nil, err
	}
	mode := fs.FileMode(0644)
	if info, statErr := b.Stat(path); statErr == nil {
		mode = info.Mode
	}
	return &file{fs: b, path: path, buf: data, mode: mode}, nil
}
