package store_test

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/nstogner/drydock/pkg/store"
	"github.com/nstogner/drydock/pkg/store/jsonl"
)

func setupManager(t *testing.T) (store.Manager, string) {
	tempDir := t.TempDir()
	return jsonl.NewManager(tempDir), tempDir
}

func textContent(s string) []store.Content {
	return []store.Content{{Type: store.ContentTypeText, Text: &store.TextContent{Content: s}}}
}

func TestSession_AppendAndBranch(t *testing.T) {
	m, tempDir := setupManager(t)
	s, err := m.NewSession(tempDir, "")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	// 1. Append messages
	msg1, err := s.AppendMessage(store.RoleUser, textContent("Hello"))
	if err != nil {
		t.Fatal(err)
	}
	msg2, err := s.AppendMessage(store.RoleAssistant, textContent("Hi"))
	if err != nil {
		t.Fatal(err)
	}

	// 2. Check the branch
	branch, err := s.GetBranch("")
	if err != nil {
		t.Fatal(err)
	}
	if len(branch) != 2 {
		t.Errorf("expected 2 entries, got %d", len(branch))
	}
	if branch[0].ID != msg1 || branch[1].ID != msg2 {
		t.Error("branch order or IDs mismatch")
	}
	if branch[0].ParentID != nil {
		t.Error("first entry should be a root")
	}
	if branch[1].ParentID == nil || *branch[1].ParentID != msg1 {
		t.Error("second entry should be a child of the first")
	}

	// 3. Branching: the new entry becomes a sibling of msg2
	if err := s.Branch(msg1); err != nil {
		t.Fatal(err)
	}
	msg3, err := s.AppendMessage(store.RoleAssistant, textContent("New branch"))
	if err != nil {
		t.Fatal(err)
	}

	branch, err = s.GetBranch("")
	if err != nil {
		t.Fatal(err)
	}
	if len(branch) != 2 {
		t.Errorf("expected 2 entries in branch, got %d", len(branch))
	}
	if branch[0].ID != msg1 || branch[1].ID != msg3 {
		t.Error("sibling branch leaked into the current branch")
	}

	children := s.GetChildren(msg1)
	if len(children) != 2 {
		t.Errorf("expected 2 children of %s, got %d", msg1, len(children))
	}

	printJSONLFiles(t, tempDir)
}

func TestSession_BranchUnknownEntry(t *testing.T) {
	m, tempDir := setupManager(t)
	s, err := m.NewSession(tempDir, "")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.Branch("no-such-entry"); !errors.Is(err, store.ErrInvalidEntry) {
		t.Errorf("expected ErrInvalidEntry, got %v", err)
	}

	// The empty id is not a reset shorthand; that is ResetLeaf's job.
	if err := s.Branch(""); !errors.Is(err, store.ErrInvalidEntry) {
		t.Errorf("expected ErrInvalidEntry for empty id, got %v", err)
	}
}

func TestSession_ResetLeaf(t *testing.T) {
	m, tempDir := setupManager(t)
	s, err := m.NewSession(tempDir, "")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	id1, _ := s.AppendMessage(store.RoleUser, textContent("first line"))

	s.ResetLeaf()
	if s.LeafID() != "" {
		t.Errorf("leafID should be cleared, got %s", s.LeafID())
	}

	id2, err := s.AppendMessage(store.RoleUser, textContent("second line"))
	if err != nil {
		t.Fatal(err)
	}

	e, ok := s.GetEntry(id2)
	if !ok {
		t.Fatal("entry not found after reset")
	}
	if e.ParentID != nil {
		t.Error("entry appended after reset should be a new root")
	}

	// Prior entries stay reachable.
	if _, ok := s.GetEntry(id1); !ok {
		t.Error("pre-reset entry no longer reachable")
	}
	tree, err := s.GetTree()
	if err != nil {
		t.Fatal(err)
	}
	if len(tree) != 2 {
		t.Errorf("expected 2 roots in the forest, got %d", len(tree))
	}
}

func TestSession_BuildContextModelFolding(t *testing.T) {
	m, tempDir := setupManager(t)
	s, err := m.NewSession(tempDir, "")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	s.AppendModelChange("gemini", "gemini-2.0-flash")
	forkPoint, _ := s.AppendMessage(store.RoleUser, textContent("Hello"))
	s.AppendModelChange("gemini", "gemini-2.5-pro")
	s.AppendMessage(store.RoleAssistant, textContent("Hi from pro"))

	ctx, err := s.BuildContext()
	if err != nil {
		t.Fatal(err)
	}
	if ctx.Model.ModelID != "gemini-2.5-pro" {
		t.Errorf("expected model folded to gemini-2.5-pro, got %s", ctx.Model.ModelID)
	}

	// A model change on a sibling branch must not affect this one.
	if err := s.Branch(forkPoint); err != nil {
		t.Fatal(err)
	}
	s.AppendMessage(store.RoleAssistant, textContent("Hi from flash"))

	ctx, err = s.BuildContext()
	if err != nil {
		t.Fatal(err)
	}
	if ctx.Model.ModelID != "gemini-2.0-flash" {
		t.Errorf("sibling branch model change leaked, got %s", ctx.Model.ModelID)
	}
	if len(ctx.Messages) != 2 {
		t.Errorf("expected 2 messages, got %d", len(ctx.Messages))
	}
}

func TestSession_BuildContextCompaction(t *testing.T) {
	m, tempDir := setupManager(t)
	s, err := m.NewSession(tempDir, "")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	s.AppendMessage(store.RoleUser, textContent("old question"))
	s.AppendMessage(store.RoleAssistant, textContent("old answer"))
	kept, _ := s.AppendMessage(store.RoleUser, textContent("recent question"))
	if _, err := s.AppendCompaction("Earlier we discussed X.", kept, 100); err != nil {
		t.Fatal(err)
	}
	s.AppendMessage(store.RoleAssistant, textContent("recent answer"))

	ctx, err := s.BuildContext()
	if err != nil {
		t.Fatal(err)
	}

	// Summary stands in for the discarded prefix.
	if len(ctx.Messages) != 3 {
		t.Fatalf("expected 3 messages (summary + 2 kept), got %d", len(ctx.Messages))
	}
	if ctx.Messages[0].Role != store.RoleAssistant ||
		ctx.Messages[0].Content[0].Text.Content != "Earlier we discussed X." {
		t.Errorf("summary message mismatch: %+v", ctx.Messages[0])
	}
	if ctx.Messages[1].Content[0].Text.Content != "recent question" {
		t.Error("first kept entry missing from context")
	}
}

func TestSession_Persistence(t *testing.T) {
	m, tempDir := setupManager(t)
	s, err := m.NewSession(tempDir, "")
	if err != nil {
		t.Fatal(err)
	}
	msg1, _ := s.AppendMessage(store.RoleUser, textContent("Store me"))
	id := s.ID()
	s.Close()

	// Reload
	s2, err := m.LoadSession(id)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()

	if s2.LeafID() != msg1 {
		t.Errorf("leafID not restored, got %s, want %s", s2.LeafID(), msg1)
	}
	if s2.Header().WorkingDir != tempDir {
		t.Errorf("working dir not restored, got %s", s2.Header().WorkingDir)
	}

	printJSONLFiles(t, tempDir)
}

func TestSession_LabelsAndTree(t *testing.T) {
	m, tempDir := setupManager(t)
	s, err := m.NewSession(tempDir, "")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	id1, _ := s.AppendMessage(store.RoleUser, textContent("One"))
	s.SetLabel(id1, "start")
	s.AppendMessage(store.RoleAssistant, textContent("Two"))

	tree, err := s.GetTree()
	if err != nil {
		t.Fatal(err)
	}

	if len(tree) != 1 || tree[0].Label != "start" {
		t.Errorf("tree structure or label missing, got %+v", tree)
	}
}

func TestSession_BranchWithSummary(t *testing.T) {
	m, tempDir := setupManager(t)
	s, err := m.NewSession(tempDir, "")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	id1, _ := s.AppendMessage(store.RoleUser, textContent("Root"))
	s.AppendMessage(store.RoleAssistant, textContent("Path A"))

	idSummary, err := s.BranchWithSummary(id1, "Summarizing Path A")
	if err != nil {
		t.Fatal(err)
	}

	if s.LeafID() != idSummary {
		t.Errorf("leafID not updated to summary, got %s", s.LeafID())
	}

	ctx, err := s.BuildContext()
	if err != nil {
		t.Fatal(err)
	}
	// Root message plus the summary rendered as an assistant message.
	if len(ctx.Messages) != 2 {
		t.Errorf("expected 2 messages, got %d", len(ctx.Messages))
	}
}

func TestManager_ForkListContinue(t *testing.T) {
	m, tempDir := setupManager(t)
	s1, err := m.NewSession(tempDir, "")
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	s1.AppendMessage(store.RoleUser, textContent("Source"))
	id1 := s1.ID()
	s1.Close()

	// Fork
	s2, err := m.ForkFrom(id1)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()

	if s2.ID() == id1 {
		t.Error("forked session should have new ID")
	}
	if s2.Header().ParentSession != id1 {
		t.Errorf("fork should record its parent, got %q", s2.Header().ParentSession)
	}
	if s2.Header().WorkingDir != tempDir {
		t.Error("fork should inherit the working directory")
	}

	// List
	list, err := m.ListSessions()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) < 2 {
		t.Errorf("expected at least 2 sessions, got %d", len(list))
	}

	// ContinueRecent
	sRecent, err := m.ContinueRecent()
	if err != nil {
		t.Fatal(err)
	}
	defer sRecent.Close()
	if sRecent.ID() != s2.ID() {
		t.Errorf("ContinueRecent should return s2, got %s", sRecent.ID())
	}
}

func TestManager_DeltaDirAndStatus(t *testing.T) {
	m, tempDir := setupManager(t)
	s, err := m.NewSession(tempDir, "")
	if err != nil {
		t.Fatal(err)
	}
	id := s.ID()
	s.Close()

	dd := m.DeltaDir(id)
	if !filepath.IsAbs(dd) {
		t.Errorf("DeltaDir should be absolute, got %s", dd)
	}
	if filepath.Base(dd) != id {
		t.Errorf("DeltaDir should end with the session id, got %s", dd)
	}

	if err := m.SetSessionStatus(id, store.SessionStatusClosed); err != nil {
		t.Fatal(err)
	}
	list, err := m.ListSessions()
	if err != nil {
		t.Fatal(err)
	}
	if list[0].Status != store.SessionStatusClosed {
		t.Errorf("status not updated, got %s", list[0].Status)
	}
}

func TestSession_DirectAppend(t *testing.T) {
	m, tempDir := setupManager(t)
	s, err := m.NewSession(tempDir, "")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if s.Path() == "" || !filepath.IsAbs(s.Path()) {
		t.Errorf("Path() should be absolute, got %s", s.Path())
	}

	directID := "direct-id-123"
	err = s.Append(store.Entry{
		ID:   directID,
		Type: store.TypeMessage,
		Message: &store.MessageEntry{
			Role:    store.RoleUser,
			Content: textContent("Direct append"),
		},
	})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	if s.LeafID() != directID {
		t.Errorf("LeafID should be %s, got %s", directID, s.LeafID())
	}
}

func printJSONLFiles(t *testing.T, dir string) {
	files, _ := filepath.Glob(filepath.Join(dir, "sessions", "*.jsonl"))
	for _, f := range files {
		fmt.Printf("\n--- File: %s ---\n", filepath.Base(f))
		content, _ := os.ReadFile(f)
		fmt.Println(string(content))
		fmt.Println("-----------------")
	}
}
