// Package sandbox isolates shell command execution from the host. Each
// session gets its own container; the session's working directory is
// mounted read-only so commands can inspect but never mutate the real
// tree.
package sandbox

import "context"

// Result represents the output of a sandbox execution.
type Result struct {
	// ExitCode is the command's exit status.
	ExitCode int `json:"exit_code"`
	// Stdout is the standard output.
	Stdout string `json:"stdout,omitempty"`
	// Stderr is the standard error.
	Stderr string `json:"stderr,omitempty"`
}

// Manager defines the interface for managing sandboxes.
type Manager interface {
	// RunCommand executes a shell command within the sandbox for the
	// given session, lazily initializing the sandbox if it's not running.
	// workDir is the host directory exposed (read-only) at /workspace.
	RunCommand(ctx context.Context, sessionID, workDir, command string) (*Result, error)

	// Stop terminates the sandbox for the given session.
	Stop(ctx context.Context, sessionID string) error

	// Close releases any resources held by the manager (e.g. docker client).
	Close() error
}
