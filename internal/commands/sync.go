package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/diogo/chatsync/internal/coordinator"
)

// NewSyncCmd creates the sync command
func NewSyncCmd(deps *Dependencies) *cobra.Command {
	var only string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Load everything from the server and show a summary",
		Long: `Load conversations, templates and folders from the server, record the
sync time and print a summary. --only reloads one list once more after
the initial load, which picks up changes made while it ran.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var kind coordinator.Kind
			if only != "" {
				k, err := coordinator.ParseKind(only)
				if err != nil {
					return err
				}
				kind = k
			}

			s, err := openSyncedSession(cmd, deps)
			if err != nil {
				return err
			}
			defer s.Close()

			if kind != "" {
				if err := s.coord.Invalidate(cmd.Context(), kind); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			t := newTable(out, "LIST", "COUNT")
			t.row("conversations", len(s.store.Conversations()))
			t.row("templates", len(s.store.Templates()))
			t.row("folders", len(s.store.Folders()))
			if err := t.flush(); err != nil {
				return err
			}
			dimColor.Fprintf(out, "synced at %s\n", s.coord.LastSyncTime().Format("2006-01-02 15:04:05"))
			return nil
		},
	}
	cmd.Flags().StringVar(&only, "only", "", fmt.Sprintf("Reload one list: %s, %s or %s",
		coordinator.KindConversations, coordinator.KindTemplates, coordinator.KindFolders))
	return cmd
}
