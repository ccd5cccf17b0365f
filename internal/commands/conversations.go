package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/diogo/chatsync/internal/chat"
	"github.com/diogo/chatsync/internal/models"
)

// openCLISession opens a store session printing notifications to stderr
func openCLISession(cmd *cobra.Command, deps *Dependencies) (*session, error) {
	return deps.openSession(cmd.ErrOrStderr(), sessionOptions{
		notifier:    cliNotifier{w: cmd.ErrOrStderr()},
		logToStderr: verboseFlag,
		verbose:     verboseFlag,
	})
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := strconv.ParseInt(a, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid id: %s", a)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// NewConversationsCmd creates the conversations command group
func NewConversationsCmd(deps *Dependencies) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"conv", "history"},
		Short:   "Manage conversations",
	}
	cmd.AddCommand(
		newConversationsListCmd(deps),
		newConversationsShowCmd(deps),
		newConversationsDeleteCmd(deps),
		newConversationsMoveCmd(deps),
	)
	return cmd
}

func newConversationsListCmd(deps *Dependencies) *cobra.Command {
	var keyword, folder string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := models.ParseFolderFilter(folder)
			if err != nil {
				return fmt.Errorf("invalid folder %q: use all, none or a folder id", folder)
			}

			s, err := openCLISession(cmd, deps)
			if err != nil {
				return err
			}
			defer s.Close()

			s.store.SetSearchKeyword(keyword)
			s.store.SetFolderFilter(filter)
			if err := s.store.LoadConversations(cmd.Context()); err != nil {
				return err
			}

			convs := s.store.Conversations()
			if len(convs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No conversations found.")
				return nil
			}

			t := newTable(cmd.OutOrStdout(), "ID", "TITLE", "MODEL", "FOLDER", "UPDATED")
			for _, c := range convs {
				folderCol := "-"
				if c.FolderID != nil {
					folderCol = strconv.FormatInt(*c.FolderID, 10)
				}
				t.row(c.ID, truncate(c.Title, 40), c.ModelName, folderCol, chat.FormatRelativeTime(c.UpdatedAt))
			}
			return t.flush()
		},
	}
	cmd.Flags().StringVarP(&keyword, "keyword", "k", "", "Only titles containing keyword")
	cmd.Flags().StringVar(&folder, "folder", "", "Folder id, or none for unfiled conversations")
	return cmd
}

func newConversationsShowCmd(deps *Dependencies) *cobra.Command {
	var format, output string

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print or export a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			if format == "" && output != "" {
				format = filepath.Ext(output)
			}
			exportFormat, err := chat.ParseExportFormat(format)
			if err != nil {
				return err
			}

			s, err := openCLISession(cmd, deps)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := cmd.Context()
			if err := s.store.LoadConversations(ctx); err != nil {
				return err
			}
			conv := models.Conversation{ID: ids[0]}
			for _, c := range s.store.Conversations() {
				if c.ID == conv.ID {
					conv = c
				}
			}
			if err := s.store.SelectConversation(ctx, conv); err != nil {
				return err
			}

			data, err := chat.Export(conv, s.store.Messages(), exportFormat)
			if err != nil {
				return err
			}
			if output != "" {
				if err := os.WriteFile(output, data, 0o644); err != nil {
					return fmt.Errorf("failed to write export: %w", err)
				}
				printSuccess(cmd.ErrOrStderr(), "Conversation %d exported to %s", conv.ID, output)
				return nil
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "markdown, json or yaml (default from --output extension, else markdown)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to a file")
	return cmd
}

func newConversationsDeleteCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete conversations",
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
				if err := s.store.DeleteConversation(cmd.Context(), ids[0]); err != nil {
					return err
				}
				printSuccess(cmd.ErrOrStderr(), "Conversation %d deleted", ids[0])
				return nil
			}
			return s.store.BatchDeleteConversations(cmd.Context(), ids)
		},
	}
}

func newConversationsMoveCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "move <id> <folder-id|none>",
		Short: "Move a conversation into a folder, or out of it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args[:1])
			if err != nil {
				return err
			}
			filter, err := models.ParseFolderFilter(args[1])
			if err != nil || filter.IsAll() {
				return fmt.Errorf("invalid folder %q: use none or a folder id", args[1])
			}

			var folderID *int64
			if id, ok := filter.FolderID(); ok {
				folderID = &id
			}

			s, err := openCLISession(cmd, deps)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.store.MoveConversationToFolder(cmd.Context(), ids[0], folderID); err != nil {
				return err
			}
			if folderID == nil {
				printSuccess(cmd.ErrOrStderr(), "Conversation %d removed from its folder", ids[0])
			} else {
				printSuccess(cmd.ErrOrStderr(), "Conversation %d moved to folder %d", ids[0], *folderID)
			}
			return nil
		},
	}
}
