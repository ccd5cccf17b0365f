package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewFoldersCmd creates the folders command group
func NewFoldersCmd(deps *Dependencies) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "folders",
		Aliases: []string{"folder"},
		Short:   "Manage conversation folders",
	}

	var color string
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openCLISession(cmd, deps)
			if err != nil {
				return err
			}
			defer s.Close()

			folder, err := s.store.CreateFolder(cmd.Context(), args[0], color)
			if err != nil {
				return err
			}
			printSuccess(cmd.ErrOrStderr(), "Folder %q created (id %d)", folder.Name, folder.ID)
			return nil
		},
	}
	create.Flags().StringVar(&color, "color", "", "Folder colour (default #1890ff)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List folders",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				s, err := openCLISession(cmd, deps)
				if err != nil {
					return err
				}
				defer s.Close()

				if err := s.store.LoadFolders(cmd.Context()); err != nil {
					return err
				}
				folders := s.store.Folders()
				if len(folders) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No folders found.")
					return nil
				}

				t := newTable(cmd.OutOrStdout(), "ID", "NAME", "COLOR")
				for _, f := range folders {
					t.row(f.ID, f.Name, f.Color)
				}
				return t.flush()
			},
		},
		create,
		&cobra.Command{
			Use:   "rename <id> <name>",
			Short: "Rename a folder",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				ids, err := parseIDs(args[:1])
				if err != nil {
					return err
				}

				s, err := openCLISession(cmd, deps)
				if err != nil {
					return err
				}
				defer s.Close()

				ctx := cmd.Context()
				if err := s.store.LoadFolders(ctx); err != nil {
					return err
				}
				if err := s.store.RenameFolder(ctx, ids[0], args[1]); err != nil {
					return err
				}
				printSuccess(cmd.ErrOrStderr(), "Folder %d renamed to %q", ids[0], args[1])
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Delete a folder; its conversations become unfiled",
			Args:  cobra.ExactArgs(1),
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

				if err := s.store.DeleteFolder(cmd.Context(), ids[0]); err != nil {
					return err
				}
				printSuccess(cmd.ErrOrStderr(), "Folder %d deleted", ids[0])
				return nil
			},
		},
	)
	return cmd
}
