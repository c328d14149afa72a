package tools

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nstogner/drydock/pkg/vfs"
)

// RegisterFileTools wires the file manipulation tools against fsys and adds
// them to the registry.
func RegisterFileTools(r *Registry, fsys vfs.FS) {
	r.Register(&ListFilesTool{FS: fsys})
	r.Register(&ReadFileTool{FS: fsys})
	r.Register(&WriteFileTool{FS: fsys})
	r.Register(&DeleteTool{FS: fsys})
	r.Register(&RenameTool{FS: fsys})
}

func stringArg(input map[string]any, key string) (string, error) {
	v, ok := input[key].(string)
	if !ok {
		return "", fmt.Errorf("argument '%s' is required and must be a string", key)
	}
	return v, nil
}

// --- List Files Tool ---

type ListFilesTool struct {
	FS vfs.FS
}

func (t *ListFilesTool) Name() string { return "ls" }

func (t *ListFilesTool) Description() string {
	return "List files in a directory. Arguments: path (string)."
}

func (t *ListFilesTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{"type": "string", "description": "The directory path to list."},
		},
		"required": []string{"path"},
	}
}

func (t *ListFilesTool) Execute(ctx context.Context, input map[string]any) (any, error) {
	path, err := stringArg(input, "path")
	if err != nil {
		return nil, err
	}

	slog.Info("Listing files", "path", path)
	entries, err := t.FS.ReadDirPlus(path)
	if err != nil {
		return nil, fmt.Errorf("failed to list directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		suffix := ""
		if e.Info.IsDir {
			suffix = "/"
		}
		names = append(names, e.Name+suffix)
	}
	return names, nil
}

// --- Read File Tool ---

type ReadFileTool struct {
	FS vfs.FS
}

func (t *ReadFileTool) Name() string { return "read_file" }

func (t *ReadFileTool) Description() string {
	return "Read the contents of a file. Arguments: path (string)."
}

func (t *ReadFileTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{"type": "string", "description": "The file path to read."},
		},
		"required": []string{"path"},
	}
}

func (t *ReadFileTool) Execute(ctx context.Context, input map[string]any) (any, error) {
	path, err := stringArg(input, "path")
	if err != nil {
		return nil, err
	}

	slog.Info("Reading file", "path", path)
	data, err := t.FS.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return string(data), nil
}

// --- Write File Tool ---

type WriteFileTool struct {
	FS vfs.FS
}

func (t *WriteFileTool) Name() string { return "write_file" }

func (t *WriteFileTool) Description() string {
	return "Write content to a file. Arguments: path (string), content (string)."
}

func (t *WriteFileTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path":    map[string]any{"type": "string", "description": "The file path to write to."},
			"content": map[string]any{"type": "string", "description": "The content to write."},
		},
		"required": []string{"path", "content"},
	}
}

func (t *WriteFileTool) Execute(ctx context.Context, input map[string]any) (any, error) {
	path, err := stringArg(input, "path")
	if err != nil {
		return nil, err
	}
	content, err := stringArg(input, "content")
	if err != nil {
		return nil, err
	}

	slog.Info("Writing file", "path", path, "size", len(content))

	if err := t.FS.WriteFile(path, []byte(content), 0644); err != nil {
		return nil, fmt.Errorf("failed to write file: %w", err)
	}
	return "success", nil
}

// --- Delete Tool ---

type DeleteTool struct {
	FS vfs.FS
}

func (t *DeleteTool) Name() string { return "delete" }

func (t *DeleteTool) Description() string {
	return "Delete a file or directory (recursively). Arguments: path (string)."
}

func (t *DeleteTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{"type": "string", "description": "The path to delete."},
		},
		"required": []string{"path"},
	}
}

func (t *DeleteTool) Execute(ctx context.Context, input map[string]any) (any, error) {
	path, err := stringArg(input, "path")
	if err != nil {
		return nil, err
	}

	slog.Info("Deleting path", "path", path)
	if err := t.FS.Rm(path); err != nil {
		return nil, fmt.Errorf("failed to delete: %w", err)
	}
	return "success", nil
}

// --- Rename Tool ---

type RenameTool struct {
	FS vfs.FS
}

func (t *RenameTool) Name() string { return "rename" }

func (t *RenameTool) Description() string {
	return "Rename or move a file. Arguments: old_path (string), new_path (string)."
}

func (t *RenameTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"old_path": map[string]any{"type": "string", "description": "The current path."},
			"new_path": map[string]any{"type": "string", "description": "The destination path."},
		},
		"required": []string{"old_path", "new_path"},
	}
}

func (t *RenameTool) Execute(ctx context.Context, input map[string]any) (any, error) {
	oldPath, err := stringArg(input, "old_path")
	if err != nil {
		return nil, err
	}
	newPath, err := stringArg(input, "new_path")
	if err != nil {
		return nil, err
	}

	slog.Info("Renaming path", "old", oldPath, "new", newPath)
	if err := t.FS.Rename(oldPath, newPath); err != nil {
		return nil, fmt.Errorf("failed to rename: %w", err)
	}
	return "success", nil
}
