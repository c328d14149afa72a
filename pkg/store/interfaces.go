package store

import "errors"

// ErrInvalidEntry reports a Branch or GetBranch call naming an entry id
// that does not exist in the session.
var ErrInvalidEntry = errors.New("entry not found")

// Manager defines the interface for managing sessions under a storage root.
type Manager interface {
	// NewSession initializes a new session anchored to workingDir.
	// parentSessionID: Optional ID of the session this one was forked from.
	NewSession(workingDir, parentSessionID string) (Session, error)

	// LoadSession opens an existing session file by its ID and marks it
	// resumed.
	LoadSession(id string) (Session, error)

	// ContinueRecent finds and loads the most recently modified session.
	ContinueRecent() (Session, error)

	// ForkFrom creates a new session seeded with an existing session's
	// history.
	ForkFrom(id string) (Session, error)

	// ListSessions returns metadata for all known sessions, most recently
	// modified first.
	ListSessions() ([]SessionInfo, error)

	// SetSessionStatus updates the status of a session.
	SetSessionStatus(id, status string) error

	// DeltaDir returns the directory holding the delta layer for a
	// session id. The directory is not created by this call.
	DeltaDir(id string) string

	// Subscribe returns a channel that emits session IDs when an event
	// occurs in any managed session.
	Subscribe() <-chan string
}

// Session defines the interface for interacting with a single conversation
// session. It manages the in-memory state and persistence for a
// conversation tree.
//
// A session is owned by a single caller; its methods are not safe for
// concurrent use by multiple writers.
type Session interface {
	// ID returns the session's unique identifier.
	ID() string

	// Path returns the absolute path to the session's storage file.
	Path() string

	// Header returns the session metadata.
	Header() Header

	// LeafID returns the ID of the current tip of the conversation tree,
	// or "" when the next append starts a new root.
	LeafID() string

	// Append adds a generic entry as a child of the current leaf and
	// advances the leaf pointer.
	Append(entry Entry) error

	// AppendMessage appends a conversation message and returns its id.
	AppendMessage(role MessageRole, content []Content) (string, error)

	// AppendModelChange records a shift in the underlying LLM.
	AppendModelChange(provider, modelID string) (string, error)

	// AppendCompaction records a summary of truncated history.
	// summary: The LLM-generated summarization text.
	// firstKeptID: The ID of the earliest entry preserved after this compaction.
	// tokens: The token count of the context before this compaction occurred.
	AppendCompaction(summary, firstKeptID string, tokens int) (string, error)

	// AppendSessionInfo updates metadata like the session's display name.
	AppendSessionInfo(name string) (string, error)

	// SetLabel associates a bookmark string with an entry (empty string
	// clears it).
	SetLabel(targetID string, label string) (string, error)

	// Branch moves the leaf pointer to an earlier entry without touching
	// the log; the next append becomes a sibling of whatever followed it.
	// Returns ErrInvalidEntry for an unknown id.
	Branch(entryID string) error

	// BranchWithSummary moves the leaf pointer and appends a summary of
	// the abandoned path.
	BranchWithSummary(branchFromID string, summary string) (string, error)

	// ResetLeaf clears the leaf pointer; the next append starts a new
	// root while all prior entries stay reachable.
	ResetLeaf()

	// GetEntry looks up a single entry by id.
	GetEntry(id string) (Entry, bool)

	// GetBranch walks parent pointers from fromID (or the current leaf
	// when fromID is "") back to the root, returned in root-to-leaf order.
	GetBranch(fromID string) ([]Entry, error)

	// GetChildren returns the direct children of parentID, sorted by
	// timestamp ascending.
	GetChildren(parentID string) []Entry

	// GetTree returns the full session as a hierarchical forest.
	GetTree() ([]TreeNode, error)

	// BuildContext reconstructs the provider-ready history for the
	// current branch: messages in order plus the active model.
	BuildContext() (Context, error)

	// Refresh reloads the session state from the underlying storage.
	Refresh() error

	// Close releases any resources (like file handles) held by the session.
	Close() error
}
