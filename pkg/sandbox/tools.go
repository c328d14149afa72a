package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
)

const ToolNameRunCommand = "run_command"

// RunCommandTool exposes sandboxed shell execution as an agent tool. It is
// bound to one session at construction time.
type RunCommandTool struct {
	Manager   Manager
	SessionID string
	WorkDir   string
}

func (t *RunCommandTool) Name() string { return ToolNameRunCommand }

func (t *RunCommandTool) Description() string {
	return "Run a shell command in an isolated sandbox with the working directory mounted read-only at /workspace. Arguments: command (string)."
}

func (t *RunCommandTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "The shell command to run.",
			},
		},
		"required": []string{"command"},
	}
}

func (t *RunCommandTool) Execute(ctx context.Context, input map[string]any) (any, error) {
	command, ok := input["command"].(string)
	if !ok {
		return nil, fmt.Errorf("argument 'command' is required and must be a string")
	}

	res, err := t.Manager.RunCommand(ctx, t.SessionID, t.WorkDir, command)
	if err != nil {
		return nil, err
	}

	out, err := json.Marshal(res)
	if err != nil {
		return nil, err
	}
	return string(out), nil
}
