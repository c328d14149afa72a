package vfs

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
)

// ManifestPath is the hidden, well-known location of the change manifest
// inside a delta layer. Directory listings in the overlay never expose it.
const ManifestPath = "/.drydock-manifest.json"

// Manifest tracks which paths a session modified and which it deleted.
// The two sets are mutually exclusive by construction: marking a path
// modified clears its tombstone, marking it deleted clears its modified
// mark. This invariant holds regardless of the order filesystem operations
// are delegated in.
type Manifest struct {
	modified map[string]struct{}
	deleted  map[string]struct{}
}

// NewManifest returns an empty manifest.
func NewManifest() *Manifest {
	return &Manifest{
		modified: make(map[string]struct{}),
		deleted:  make(map[string]struct{}),
	}
}

// MarkModified records a write to path and clears any tombstone.
func (m *Manifest) MarkModified(path string) {
	delete(m.deleted, path)
	m.modified[path] = struct{}{}
}

// MarkDeleted records a tombstone for path and clears any modified mark.
func (m *Manifest) MarkDeleted(path string) {
	delete(m.modified, path)
	m.deleted[path] = struct{}{}
}

// IsDeleted reports whether path has a tombstone.
func (m *Manifest) IsDeleted(path string) bool {
	_, ok := m.deleted[path]
	return ok
}

// IsModified reports whether path carries a modified mark.
func (m *Manifest) IsModified(path string) bool {
	_, ok := m.modified[path]
	return ok
}

// Empty reports whether both sets are empty.
func (m *Manifest) Empty() bool {
	return len(m.modified) == 0 && len(m.deleted) == 0
}

// Modified returns the modified paths, sorted.
func (m *Manifest) Modified() []string { return sortedKeys(m.modified) }

// Deleted returns the deleted paths, sorted.
func (m *Manifest) Deleted() []string { return sortedKeys(m.deleted) }

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type manifestFile struct {
	Modified []string `json:"modified"`
	Deleted  []string `json:"deleted"`
}

// Persist writes the manifest to its well-known path inside delta. A
// manifest with nothing recorded is not written at all.
func (m *Manifest) Persist(delta FS) error {
	if m.Empty() {
		return nil
	}
	data, err := json.Marshal(manifestFile{
		Modified: m.Modified(),
		Deleted:  m.Deleted(),
	})
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := delta.WriteFile(ManifestPath, data, 0644); err != nil {
		return fmt.Errorf("persist manifest: %w", err)
	}
	return nil
}

// LoadManifest reads the manifest back from delta. Two encodings are
// accepted: the current {"modified":[...],"deleted":[...]} object and the
// legacy bare array meaning "modified only". A missing, unreadable or
// unparseable manifest loads as empty sets; corruption is logged rather
// than returned so the apply workflow stays available, at the cost of
// possibly hiding recorded changes from the user.
func LoadManifest(delta FS) *Manifest {
	m := NewManifest()

	data, err := delta.ReadFile(ManifestPath)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			slog.Warn("change manifest unreadable, treating session as having no changes",
				"path", ManifestPath, "error", err)
		}
		return m
	}

	var mf manifestFile
	if err := json.Unmarshal(data, &mf); err != nil {
		var legacy []string
		if legacyErr := json.Unmarshal(data, &legacy); legacyErr != nil {
			slog.Warn("change manifest corrupt, treating session as having no changes",
				"path", ManifestPath, "error", fmt.Errorf("%w: %v", ErrManifestCorrupt, err))
			return m
		}
		mf = manifestFile{Modified: legacy}
	}

	for _, p := range mf.Modified {
		m.MarkModified(p)
	}
	for _, p := range mf.Deleted {
		m.MarkDeleted(p)
	}
	return m
}
