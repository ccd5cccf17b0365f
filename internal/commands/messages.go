package commands

import (
	"github.com/spf13/cobra"
)

// NewMessagesCmd creates the messages command group
func NewMessagesCmd(deps *Dependencies) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "messages",
		Short: "Manage individual messages",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete messages",
		Long:  "Delete messages by id. Several ids are deleted with a single request.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}

			s, err := openCLISession(cmd, deps)
			if err != nil {
				return err
			}
			defer s.Close()

			if len(ids) == 1 {
				err = s.store.DeleteMessage(cmd.Context(), ids[0])
			} else {
				err = s.store.BatchDeleteMessages(cmd.Context(), ids)
			}
			if err != nil {
				return err
			}
			printSuccess(cmd.ErrOrStderr(), "%d message(s) deleted", len(ids))
			return nil
		},
	})
	return cmd
}
