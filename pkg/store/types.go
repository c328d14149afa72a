package store

import (
	"time"
)

// EntryType defines the kind of session entry
type EntryType string

const (
	TypeSession       EntryType = "session"
	TypeMessage       EntryType = "message"
	TypeModelChange   EntryType = "model_change"
	TypeCompaction    EntryType = "compaction"
	TypeLabel         EntryType = "label"
	TypeSessionInfo   EntryType = "session_info"
	TypeBranchSummary EntryType = "branch_summary"
)

// MessageRole defines the role of a message in the conversation.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
	RoleTool      MessageRole = "tool" // For tool results
)

// Header is the first line of the file (metadata). It anchors the session
// to the working directory its overlay is based on.
type Header struct {
	Type          EntryType `json:"type"` // Always "session"
	ID            string    `json:"id"`
	WorkingDir    string    `json:"working_dir"`
	Version       int       `json:"version"`
	ParentSession string    `json:"parent_session,omitempty"`
	CreatedAt     time.Time `json:"timestamp"`
}

// Entry is a "Tagged Union" that represents any record in the session log.
type Entry struct {
	Type      EntryType `json:"type"`
	ID        string    `json:"id"`
	ParentID  *string   `json:"parent_id"` // Pointer to allow null for root
	Timestamp time.Time `json:"timestamp"`

	// Payload pointers - only one will be non-nil
	Message       *MessageEntry       `json:"message,omitempty"`
	ModelChange   *ModelChangeEntry   `json:"model_change,omitempty"`
	Compaction    *CompactionEntry    `json:"compaction,omitempty"`
	Label         *LabelEntry         `json:"label,omitempty"`
	SessionInfo   *SessionInfoEntry   `json:"session_info,omitempty"`
	BranchSummary *BranchSummaryEntry `json:"branch_summary,omitempty"`
}

// MessageEntry represents a conversation message. Model tags an assistant
// message with the model that produced it.
type MessageEntry struct {
	Role    MessageRole `json:"role"`
	Content []Content   `json:"content"`
	Model   string      `json:"model,omitempty"`
}

// ModelChangeEntry records a shift in the underlying LLM.
type ModelChangeEntry struct {
	Provider string `json:"provider"`
	ModelID  string `json:"model_id"`
}

// CompactionEntry contains a summary of discarded history.
type CompactionEntry struct {
	Summary          string `json:"summary"`
	FirstKeptEntryID string `json:"first_kept_entry_id"`
	TokensBefore     int    `json:"tokens_before"`
}

// LabelEntry associates a bookmark with an entry.
type LabelEntry struct {
	TargetID string `json:"target_id"`
	Label    string `json:"label,omitempty"` // empty to remove
}

// SessionInfoEntry updates session metadata.
type SessionInfoEntry struct {
	Name string `json:"name"`
}

// BranchSummaryEntry captures context from an abandoned path.
type BranchSummaryEntry struct {
	Summary string `json:"summary"`
	FromID  string `json:"from_id"`
}

// ContentType defines the kind of message content.
type ContentType string

const (
	ContentTypeText       ContentType = "text"
	ContentTypeToolUse    ContentType = "tool_use"
	ContentTypeToolResult ContentType = "tool_result"
)

// Content represents a single component of a message.
type Content struct {
	Type ContentType `json:"type"`

	// Only one of these will be non-nil
	Text       *TextContent       `json:"text,omitempty"`
	ToolUse    *ToolUseContent    `json:"tool_use,omitempty"`
	ToolResult *ToolResultContent `json:"tool_result,omitempty"`
}

// TextContent contains literal text.
type TextContent struct {
	Content string `json:"content"`
}

// ToolUseContent represents a call to a tool.
type ToolUseContent struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// ToolResultContent represents the outcome of a tool call, keyed back to
// the tool call by ToolUseID.
type ToolResultContent struct {
	ToolUseID string `json:"tool_use_id"`
	IsError   bool   `json:"is_error"`
	Content   string `json:"content"`
}

// ModelRef identifies a provider/model pair.
type ModelRef struct {
	Provider string
	ModelID  string
}

// Context is the provider-ready reconstruction of the current branch:
// the linear message history plus the active model at the leaf.
type Context struct {
	Messages []MessageEntry
	Model    ModelRef
}

// SessionInfo provides metadata about a session file.
type SessionInfo struct {
	ID           string
	Path         string
	Name         string
	Status       string
	WorkingDir   string
	Created      time.Time
	Modified     time.Time
	MessageCount int
}

const (
	SessionStatusActive  = "active"
	SessionStatusClosed  = "closed"
	SessionStatusResumed = "resumed"
)

// TreeNode represents a hierarchical view of the session.
type TreeNode struct {
	Entry    Entry
	Children []TreeNode
	Label    string
}
