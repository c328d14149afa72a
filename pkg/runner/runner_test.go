package runner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/nstogner/drydock/pkg/models"
	"github.com/nstogner/drydock/pkg/store"
	"github.com/nstogner/drydock/pkg/store/jsonl"
	"github.com/nstogner/drydock/pkg/tools"
	"github.com/nstogner/drydock/pkg/vfs"
	"github.com/nstogner/drydock/pkg/vfs/badgerfs"
	"github.com/nstogner/drydock/pkg/vfs/overlay"
)

// scriptedProvider replays a fixed sequence of assistant messages.
type scriptedProvider struct {
	script []models.AgentMessage
	calls  int
}

func (p *scriptedProvider) List(ctx context.Context) ([]string, error) {
	return []string{"scripted"}, nil
}

func (p *scriptedProvider) Stream(ctx context.Context, modelName string, messages []models.AgentMessage, decls []models.ToolDecl) (models.ModelStream, error) {
	msg := p.script[p.calls]
	p.calls++
	return &scriptedStream{msg: msg}, nil
}

type scriptedStream struct {
	msg models.AgentMessage
}

func (s *scriptedStream) FullMessage() (models.AgentMessage, error) { return s.msg, nil }
func (s *scriptedStream) Close() error                              { return nil }

func textMsg(s string) models.AgentMessage {
	return models.AgentMessage{
		Role: store.RoleAssistant,
		Content: []store.Content{{
			Type: store.ContentTypeText,
			Text: &store.TextContent{Content: s},
		}},
	}
}

func toolCallMsg(id, name string, input map[string]any) models.AgentMessage {
	return models.AgentMessage{
		Role: store.RoleAssistant,
		Content: []store.Content{{
			Type: store.ContentTypeToolUse,
			ToolUse: &store.ToolUseContent{
				ID:    id,
				Name:  name,
				Input: input,
			},
		}},
	}
}

func setupRunner(t *testing.T, provider models.ModelProvider) (*Runner, store.Session, *overlay.FS, string) {
	t.Helper()

	workDir := t.TempDir()
	storageDir := t.TempDir()

	mgr := jsonl.NewManager(storageDir)
	sess, err := mgr.NewSession(workDir, "")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { sess.Close() })

	delta, err := badgerfs.Open(badgerfs.InMemoryConfig())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { delta.Close() })

	o := overlay.New(vfs.NewOSFS(), delta, workDir)
	registry := tools.NewRegistry()
	tools.RegisterFileTools(registry, o)

	r := New(sess, provider, registry, store.ModelRef{Provider: "test", ModelID: "scripted"})
	return r, sess, o, workDir
}

func TestRunTurnTextOnly(t *testing.T) {
	provider := &scriptedProvider{script: []models.AgentMessage{textMsg("hello back")}}
	r, sess, _, _ := setupRunner(t, provider)

	if err := r.RunTurn(context.Background(), "hello"); err != nil {
		t.Fatal(err)
	}

	ctx, err := sess.BuildContext()
	if err != nil {
		t.Fatal(err)
	}
	if len(ctx.Messages) != 2 {
		t.Fatalf("expected user + assistant, got %d messages", len(ctx.Messages))
	}
	if ctx.Messages[1].Role != store.RoleAssistant {
		t.Errorf("expected assistant reply, got %s", ctx.Messages[1].Role)
	}
	if provider.calls != 1 {
		t.Errorf("expected 1 model call, got %d", provider.calls)
	}
}

func TestRunTurnExecutesToolsAgainstOverlay(t *testing.T) {
	provider := &scriptedProvider{script: []models.AgentMessage{
		toolCallMsg("call-1", "write_file", map[string]any{"path": "out.txt", "content": "from agent"}),
		textMsg("done"),
	}}
	r, sess, o, workDir := setupRunner(t, provider)

	if err := r.RunTurn(context.Background(), "write a file"); err != nil {
		t.Fatal(err)
	}

	// The write landed in the overlay, not on disk.
	data, err := o.ReadFile("out.txt")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "from agent" {
		t.Errorf("overlay content mismatch: %q", data)
	}
	if _, err := os.Stat(filepath.Join(workDir, "out.txt")); !os.IsNotExist(err) {
		t.Error("real disk should be untouched")
	}

	// History: user, assistant(tool call), tool result, assistant(text).
	ctx, err := sess.BuildContext()
	if err != nil {
		t.Fatal(err)
	}
	if len(ctx.Messages) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(ctx.Messages))
	}
	toolMsg := ctx.Messages[2]
	if toolMsg.Role != store.RoleTool {
		t.Fatalf("expected tool result message, got role %s", toolMsg.Role)
	}
	tr := toolMsg.Content[0].ToolResult
	if tr == nil || tr.ToolUseID != "call-1" || tr.IsError {
		t.Errorf("tool result mismatch: %+v", tr)
	}
}

func TestRunTurnUnknownToolReportsError(t *testing.T) {
	provider := &scriptedProvider{script: []models.AgentMessage{
		toolCallMsg("call-1", "no_such_tool", nil),
		textMsg("recovered"),
	}}
	r, sess, _, _ := setupRunner(t, provider)

	if err := r.RunTurn(context.Background(), "try it"); err != nil {
		t.Fatal(err)
	}

	ctx, err := sess.BuildContext()
	if err != nil {
		t.Fatal(err)
	}
	tr := ctx.Messages[2].Content[0].ToolResult
	if tr == nil || !tr.IsError {
		t.Errorf("expected error tool result, got %+v", tr)
	}
}

func TestRunTurnCancellationBetweenSteps(t *testing.T) {
	provider := &scriptedProvider{script: []models.AgentMessage{
		toolCallMsg("call-1", "write_file", map[string]any{"path": "a.txt", "content": "x"}),
		textMsg("never reached"),
	}}
	r, _, _, _ := setupRunner(t, provider)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.RunTurn(ctx, "go")
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if provider.calls != 0 {
		t.Errorf("no model call should start after cancellation, got %d", provider.calls)
	}
}
