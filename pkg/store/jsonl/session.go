package jsonl

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nstogner/drydock/pkg/store"
)

// Session implements the store.Session interface using a JSONL file.
// The file is append-only: the header is the first line, every later line
// is one entry of the conversation forest.
type Session struct {
	mu         sync.RWMutex
	id         string
	filePath   string
	entries    map[string]store.Entry // ID -> Entry lookup
	leafID     string                 // Current tip of the tree; "" means next append roots
	fileHandle *os.File
	labels     map[string]string // EntryID -> Current Label
	notify     func(string)
	header     store.Header
}

func (s *Session) ID() string           { return s.id }
func (s *Session) Path() string         { return s.filePath }
func (s *Session) LeafID() string       { return s.leafID }
func (s *Session) Header() store.Header { return s.header }

// newID generates an entry id, retrying on the (vanishingly unlikely)
// collision with an existing entry. After a bounded number of retries it
// appends a nanosecond timestamp, which is unique within a single-writer
// session.
func (s *Session) newID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := 0; i < 5; i++ {
		id := uuid.New().String()
		if _, exists := s.entries[id]; !exists {
			return id
		}
	}
	return fmt.Sprintf("%s-%d", uuid.New().String(), time.Now().UnixNano())
}

// Append persists a generic entry and advances the leaf pointer. An entry
// arriving without a parent is attached to the current leaf.
func (s *Session) Append(e store.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ParentID == nil && s.leafID != "" {
		pid := s.leafID
		e.ParentID = &pid
	}

	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	if err := s.writeLine(e); err != nil {
		return err
	}

	s.entries[e.ID] = e
	s.leafID = e.ID

	if e.Type == store.TypeLabel && e.Label != nil {
		s.labels[e.Label.TargetID] = e.Label.Label
	}

	if s.notify != nil {
		s.notify(s.id)
	}

	return nil
}

func (s *Session) AppendMessage(role store.MessageRole, content []store.Content) (string, error) {
	e := store.Entry{
		Type: store.TypeMessage,
		ID:   s.newID(),
		Message: &store.MessageEntry{
			Role:    role,
			Content: content,
		},
	}
	if err := s.Append(e); err != nil {
		return "", err
	}
	return e.ID, nil
}

func (s *Session) AppendModelChange(provider, modelID string) (string, error) {
	e := store.Entry{
		Type: store.TypeModelChange,
		ID:   s.newID(),
		ModelChange: &store.ModelChangeEntry{
			Provider: provider,
			ModelID:  modelID,
		},
	}
	if err := s.Append(e); err != nil {
		return "", err
	}
	return e.ID, nil
}

func (s *Session) AppendCompaction(summary, firstKeptID string, tokens int) (string, error) {
	e := store.Entry{
		Type: store.TypeCompaction,
		ID:   s.newID(),
		Compaction: &store.CompactionEntry{
			Summary:          summary,
			FirstKeptEntryID: firstKeptID,
			TokensBefore:     tokens,
		},
	}
	if err := s.Append(e); err != nil {
		return "", err
	}
	return e.ID, nil
}

func (s *Session) AppendSessionInfo(name string) (string, error) {
	e := store.Entry{
		Type: store.TypeSessionInfo,
		ID:   s.newID(),
		SessionInfo: &store.SessionInfoEntry{
			Name: name,
		},
	}
	if err := s.Append(e); err != nil {
		return "", err
	}
	return e.ID, nil
}

func (s *Session) SetLabel(targetID string, label string) (string, error) {
	e := store.Entry{
		Type: store.TypeLabel,
		ID:   s.newID(),
		Label: &store.LabelEntry{
			TargetID: targetID,
			Label:    label,
		},
	}
	if err := s.Append(e); err != nil {
		return "", err
	}
	return e.ID, nil
}

// Branch moves the leaf pointer without touching the log. The next append
// becomes a sibling of whatever was previously appended after entryID. The
// id must name an existing entry; use ResetLeaf to start a new root.
func (s *Session) Branch(entryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[entryID]; !ok {
		return fmt.Errorf("%w: %s", store.ErrInvalidEntry, entryID)
	}

	s.leafID = entryID
	return nil
}

// ResetLeaf clears the leaf pointer so the next append starts a new root.
// Prior entries stay reachable through GetEntry and GetTree.
func (s *Session) ResetLeaf() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leafID = ""
}

func (s *Session) BranchWithSummary(branchFromID string, summary string) (string, error) {
	if err := s.Branch(branchFromID); err != nil {
		return "", err
	}

	e := store.Entry{
		Type: store.TypeBranchSummary,
		ID:   s.newID(),
		BranchSummary: &store.BranchSummaryEntry{
			Summary: summary,
			FromID:  branchFromID,
		},
	}
	if err := s.Append(e); err != nil {
		return "", err
	}
	return e.ID, nil
}

func (s *Session) GetEntry(id string) (store.Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	return e, ok
}

// GetBranch walks parent pointers from fromID back to a null parent,
// returning the path in root-to-leaf order. fromID "" means the current
// leaf; a "" leaf yields an empty branch.
func (s *Session) GetBranch(fromID string) ([]store.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getBranchLocked(fromID)
}

func (s *Session) getBranchLocked(fromID string) ([]store.Entry, error) {
	currID := fromID
	if currID == "" {
		currID = s.leafID
	}
	if currID == "" {
		return nil, nil
	}
	if _, ok := s.entries[currID]; !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrInvalidEntry, currID)
	}

	var path []store.Entry
	for currID != "" {
		e, ok := s.entries[currID]
		if !ok {
			return nil, fmt.Errorf("broken parent link: %s", currID)
		}
		path = append([]store.Entry{e}, path...)

		if e.ParentID == nil {
			break
		}
		currID = *e.ParentID
	}
	return path, nil
}

func (s *Session) GetChildren(parentID string) []store.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var children []store.Entry
	for _, e := range s.entries {
		if e.ParentID != nil && *e.ParentID == parentID {
			children = append(children, e)
		}
	}
	sort.Slice(children, func(i, j int) bool {
		return children[i].Timestamp.Before(children[j].Timestamp)
	})
	return children
}

// BuildContext reconstructs the provider-ready history for the current
// branch. Sibling branches never leak in: only the leaf's ancestry counts.
func (s *Session) BuildContext() (store.Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	branch, err := s.getBranchLocked("")
	if err != nil {
		return store.Context{}, err
	}
	return store.BuildContext(branch), nil
}

func (s *Session) GetTree() ([]store.TreeNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byParent := make(map[string][]store.Entry)
	var roots []store.Entry

	for _, e := range s.entries {
		if e.ParentID == nil || s.entries[*e.ParentID].ID == "" {
			roots = append(roots, e)
		} else {
			byParent[*e.ParentID] = append(byParent[*e.ParentID], e)
		}
	}

	var build func(store.Entry) store.TreeNode
	build = func(e store.Entry) store.TreeNode {
		node := store.TreeNode{
			Entry: e,
			Label: s.labels[e.ID],
		}
		children := byParent[e.ID]
		sort.Slice(children, func(i, j int) bool {
			return children[i].Timestamp.Before(children[j].Timestamp)
		})

		for _, child := range children {
			node.Children = append(node.Children, build(child))
		}
		return node
	}

	var tree []store.TreeNode
	sort.Slice(roots, func(i, j int) bool {
		return roots[i].Timestamp.Before(roots[j].Timestamp)
	})
	for _, r := range roots {
		tree = append(tree, build(r))
	}

	return tree, nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fileHandle != nil {
		return s.fileHandle.Close()
	}
	return nil
}

func (s *Session) writeLine(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := s.fileHandle.Write(append(data, '\n')); err != nil {
		return err
	}
	return nil
}

// Refresh re-reads the log from disk. Useful when another process appended
// to the same session file.
func (s *Session) Refresh() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.fileHandle.Seek(0, 0); err != nil {
		return err
	}

	scanner := bufio.NewScanner(s.fileHandle)

	if scanner.Scan() {
		var h store.Header
		if err := json.Unmarshal(scanner.Bytes(), &h); err == nil {
			s.header = h
		}
	}

	var lastID string
	for scanner.Scan() {
		var e store.Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue // skip bad lines
		}
		s.entries[e.ID] = e
		lastID = e.ID

		if e.Type == store.TypeLabel && e.Label != nil {
			s.labels[e.Label.TargetID] = e.Label.Label
		}
	}

	if err := scanner.Err(); err != nil {
		return err
	}

	if lastID != "" {
		s.leafID = lastID
	}

	return nil
}
