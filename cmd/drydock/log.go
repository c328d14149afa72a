package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/nstogner/drydock/pkg/store"
	"github.com/nstogner/drydock/pkg/store/jsonl"
)

var (
	roleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("4"))
	metaStyle  = lipgloss.NewStyle().Faint(true)
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	leafStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
)

func newLogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "log <session-id>",
		Short: "Show a session's conversation tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager := jsonl.NewManager(cfg.StorageRoot)
			sess, err := manager.LoadSession(args[0])
			if err != nil {
				return err
			}
			defer sess.Close()

			tree, err := sess.GetTree()
			if err != nil {
				return err
			}
			for _, root := range tree {
				printNode(root, 0, sess.LeafID())
			}
			return nil
		},
	}
}

func printNode(node store.TreeNode, depth int, leafID string) {
	indent := strings.Repeat("  ", depth)

	line := fmt.Sprintf("%s%s %s", indent, roleStyle.Render(entryTitle(node.Entry)), entrySummary(node.Entry))
	if node.Label != "" {
		line += " " + labelStyle.Render("["+node.Label+"]")
	}
	if node.Entry.ID == leafID {
		line += " " + leafStyle.Render("<- leaf")
	}
	line += " " + metaStyle.Render(shortID(node.Entry.ID))
	fmt.Println(line)

	for _, child := range node.Children {
		printNode(child, depth+1, leafID)
	}
}

func entryTitle(e store.Entry) string {
	switch e.Type {
	case store.TypeMessage:
		return string(e.Message.Role)
	case store.TypeModelChange:
		return "model"
	case store.TypeCompaction:
		return "compaction"
	case store.TypeBranchSummary:
		return "branch-summary"
	case store.TypeSessionInfo:
		return "info"
	case store.TypeLabel:
		return "label"
	default:
		return string(e.Type)
	}
}

func entrySummary(e store.Entry) string {
	const max = 60

	var text string
	switch e.Type {
	case store.TypeMessage:
		for _, c := range e.Message.Content {
			switch c.Type {
			case store.ContentTypeText:
				text = c.Text.Content
			case store.ContentTypeToolUse:
				text = fmt.Sprintf("tool call: %s", c.ToolUse.Name)
			case store.ContentTypeToolResult:
				text = "tool result"
			}
			if text != "" {
				break
			}
		}
	case store.TypeModelChange:
		text = fmt.Sprintf("%s/%s", e.ModelChange.Provider, e.ModelChange.ModelID)
	case store.TypeCompaction:
		text = e.Compaction.Summary
	case store.TypeBranchSummary:
		text = e.BranchSummary.Summary
	case store.TypeSessionInfo:
		text = e.SessionInfo.Name
	case store.TypeLabel:
		text = e.Label.Label
	}

	text = strings.ReplaceAll(text, "\n", " ")
	if len(text) > max {
		text = text[:max] + "..."
	}
	return text
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
