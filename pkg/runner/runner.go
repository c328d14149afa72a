// Package runner drives the agent loop for a single session: reconstruct
// the branch context, call the model, execute the tool calls it returns,
// and record everything as session entries.
package runner

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nstogner/drydock/pkg/models"
	"github.com/nstogner/drydock/pkg/store"
	"github.com/nstogner/drydock/pkg/tools"
)

// Runner executes agent steps for one session. All filesystem effects go
// through the tools wired into the registry, which in a live session are
// bound to the session's overlay.
type Runner struct {
	sess     store.Session
	provider models.ModelProvider
	registry *tools.Registry

	// fallback is used when the branch carries no model change yet.
	fallback store.ModelRef

	// MaxSteps bounds one RunTurn loop so a misbehaving model cannot spin
	// tool calls forever.
	MaxSteps int
}

func New(sess store.Session, provider models.ModelProvider, registry *tools.Registry, fallback store.ModelRef) *Runner {
	return &Runner{
		sess:     sess,
		provider: provider,
		registry: registry,
		fallback: fallback,
		MaxSteps: 32,
	}
}

// RunTurn appends the user's message and steps the agent until it produces
// an assistant message with no tool calls. Cancellation takes effect
// between steps, never mid-write.
func (r *Runner) RunTurn(ctx context.Context, userInput string) error {
	_, err := r.sess.AppendMessage(store.RoleUser, []store.Content{{
		Type: store.ContentTypeText,
		Text: &store.TextContent{Content: userInput},
	}})
	if err != nil {
		return fmt.Errorf("failed to append user message: %w", err)
	}

	for i := 0; i < r.MaxSteps; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		done, err := r.RunStep(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
	return fmt.Errorf("turn did not settle within %d steps", r.MaxSteps)
}

// StopSession marks the turn loop's session closed. The caller is
// responsible for persisting the overlay manifest first.
func (r *Runner) StopSession(manager store.Manager) error {
	return manager.SetSessionStatus(r.sess.ID(), store.SessionStatusClosed)
}

func (r *Runner) toolDecls() []models.ToolDecl {
	var decls []models.ToolDecl
	for _, t := range r.registry.List() {
		decls = append(decls, models.ToolDecl{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.InputSchema(),
		})
	}
	return decls
}

func (r *Runner) activeModel(ctx store.Context) string {
	if ctx.Model.ModelID != "" {
		return ctx.Model.ModelID
	}
	slog.Debug("No model on branch, using fallback", "model", r.fallback.ModelID)
	return r.fallback.ModelID
}
