package runner

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nstogner/drydock/pkg/models"
	"github.com/nstogner/drydock/pkg/store"
)

// RunStep performs a single step of the agent's logic based on the session
// state: a user or tool message at the leaf triggers a model call, an
// assistant message with tool calls triggers their execution. Returns true
// when the branch has settled (assistant message, no pending tool calls).
func (r *Runner) RunStep(ctx context.Context) (bool, error) {
	sctx, err := r.sess.BuildContext()
	if err != nil {
		return false, fmt.Errorf("failed to build session context: %w", err)
	}

	if len(sctx.Messages) == 0 {
		slog.Debug("No context messages found, skipping step")
		return true, nil
	}

	last := sctx.Messages[len(sctx.Messages)-1]

	switch last.Role {
	case store.RoleUser, store.RoleTool:
		slog.Info("Calling model", "sessionID", r.sess.ID())
		if err := r.stepCallModel(ctx, sctx); err != nil {
			slog.Error("Model call failed", "error", err)
			return false, err
		}
		return false, nil
	case store.RoleAssistant:
		toolCalls := extractToolCalls(last)
		if len(toolCalls) > 0 {
			return false, r.stepExecuteTools(ctx, toolCalls)
		}
		return true, nil
	default:
		slog.Debug("Skipping step: unhandled leaf role", "role", last.Role)
		return true, nil
	}
}

func (r *Runner) stepCallModel(ctx context.Context, sctx store.Context) error {
	contextMessages := []models.AgentMessage{{
		Role: store.RoleUser,
		Content: []store.Content{{
			Type: store.ContentTypeText,
			Text: &store.TextContent{Content: systemPrompt},
		}},
	}}

	for _, msg := range sctx.Messages {
		contextMessages = append(contextMessages, models.AgentMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	stream, err := r.provider.Stream(ctx, r.activeModel(sctx), contextMessages, r.toolDecls())
	if err != nil {
		return fmt.Errorf("model stream error: %w", err)
	}
	defer stream.Close()

	assistantMsg, err := stream.FullMessage()
	if err != nil {
		return fmt.Errorf("model response error: %w", err)
	}

	if _, err := r.sess.AppendMessage(store.RoleAssistant, assistantMsg.Content); err != nil {
		return fmt.Errorf("failed to append assistant message: %w", err)
	}

	return nil
}

func (r *Runner) stepExecuteTools(ctx context.Context, toolCalls []store.Content) error {
	for _, toolCall := range toolCalls {
		toolName := toolCall.ToolUse.Name

		var resultMsg string
		isError := false

		tool, ok := r.registry.Get(toolName)
		if !ok {
			resultMsg = fmt.Sprintf("Error: Tool '%s' not found.", toolName)
			isError = true
			slog.Warn("Unknown tool called", "tool", toolName)
		} else {
			slog.Info("Executing tool", "sessionID", r.sess.ID(), "tool", toolName)
			out, err := tool.Execute(ctx, toolCall.ToolUse.Input)
			if err != nil {
				resultMsg = fmt.Sprintf("Error: %v", err)
				isError = true
				slog.Error("Tool execution failed", "tool", toolName, "error", err)
			} else {
				resultMsg = formatToolResult(out)
			}
		}

		content := []store.Content{
			{
				Type: store.ContentTypeToolResult,
				ToolResult: &store.ToolResultContent{
					ToolUseID: toolCall.ToolUse.ID,
					IsError:   isError,
					Content:   resultMsg,
				},
			},
		}

		if _, err := r.sess.AppendMessage(store.RoleTool, content); err != nil {
			return fmt.Errorf("failed to append tool result: %w", err)
		}
	}
	return nil
}

func formatToolResult(out any) string {
	switch v := out.(type) {
	case nil:
		return "(no output)"
	case string:
		if v == "" {
			return "(no output)"
		}
		return v
	case []string:
		if len(v) == 0 {
			return "(empty)"
		}
		res := ""
		for _, s := range v {
			res += s + "\n"
		}
		return res
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Helper to extract tool calls from a message
func extractToolCalls(msg store.MessageEntry) []store.Content {
	var calls []store.Content
	for _, c := range msg.Content {
		if c.Type == store.ContentTypeToolUse {
			calls = append(calls, c)
		}
	}
	return calls
}

const systemPrompt = `System: You are a coding agent operating on a virtual view of the user's project. File changes you make are captured in an isolated layer and applied to the real disk only after the user reviews them. Use the provided tools to inspect and modify files; use run_command for shell access (the workspace there is read-only). Use Markdown for all responses.`
