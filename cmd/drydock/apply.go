package main

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/nstogner/drydock/pkg/apply"
	"github.com/nstogner/drydock/pkg/store/jsonl"
	"github.com/nstogner/drydock/pkg/vfs"
	"github.com/nstogner/drydock/pkg/vfs/badgerfs"
)

var (
	addedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	modifiedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	deletedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

func newApplyCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "apply <session-id>",
		Short: "Review and apply a session's recorded changes to the real filesystem",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(args[0], yes)
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "apply without prompting")
	return cmd
}

func runApply(sessionID string, yes bool) error {
	manager := jsonl.NewManager(cfg.StorageRoot)

	delta, err := badgerfs.Open(badgerfs.DefaultConfig(manager.DeltaDir(sessionID)))
	if err != nil {
		return fmt.Errorf("open delta layer for session %s: %w", sessionID, err)
	}
	defer delta.Close()

	eng := apply.New(delta, vfs.NewOSFS())
	plan, err := eng.Plan()
	if err != nil {
		return err
	}

	if len(plan) == 0 {
		fmt.Println("No changes recorded.")
		return nil
	}

	for _, c := range plan {
		switch c.Status {
		case apply.StatusAdded:
			fmt.Printf("%s %s\n", addedStyle.Render("A"), changeDetail(c))
		case apply.StatusModified:
			fmt.Printf("%s %s\n", modifiedStyle.Render("M"), changeDetail(c))
		case apply.StatusDeleted:
			fmt.Printf("%s %s\n", deletedStyle.Render("D"), c.Path)
		}
	}

	if !yes && !confirm("Apply these changes?") {
		fmt.Println("Cancelled.")
		return nil
	}

	applied, err := eng.Commit(plan)
	if err != nil {
		fmt.Printf("Applied %d file(s)\n", applied)
		return err
	}
	fmt.Printf("Applied %d file(s)\n", applied)
	return nil
}

func changeDetail(c apply.Change) string {
	switch {
	case c.Mode.IsDir():
		return c.Path + "/"
	case c.Mode&fs.ModeSymlink != 0:
		return c.Path + " (symlink)"
	default:
		return fmt.Sprintf("%s (%d bytes)", c.Path, c.Size)
	}
}

// confirm prompts on the terminal; an empty answer means yes.
func confirm(prompt string) bool {
	fmt.Printf("%s [Y/n] ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "" || answer == "y" || answer == "yes"
}
