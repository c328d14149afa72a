package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/nstogner/drydock/pkg/store/jsonl"
)

var (
	idStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("5"))
	dimStyle    = lipgloss.NewStyle().Faint(true)
)

func newSessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List sessions, most recently modified first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			manager := jsonl.NewManager(cfg.StorageRoot)
			infos, err := manager.ListSessions()
			if err != nil {
				return err
			}
			if len(infos) == 0 {
				fmt.Println("No sessions.")
				return nil
			}

			for _, info := range infos {
				name := info.Name
				if name == "" {
					name = "(unnamed)"
				}
				fmt.Printf("%s  %-8s  %s  %s\n",
					idStyle.Render(info.ID),
					statusStyle.Render(info.Status),
					name,
					dimStyle.Render(info.Modified.Format("2006-01-02 15:04")+"  "+info.WorkingDir),
				)
			}
			return nil
		},
	}
}
