package commands

import (
	"github.com/spf13/cobra"

	"github.com/diogo/chatsync/internal/render"
	"github.com/diogo/chatsync/internal/tui"
)

// NewChatCmd creates the interactive chat command
func NewChatCmd(deps *Dependencies) *cobra.Command {
	var conversation int64

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Long: `Start an interactive chat session.

Conversations, templates and folders are loaded on start and settings are
saved as you change them. Type /help for the available commands and press
Esc or Ctrl+C to leave. Logs are written to chatsync.log in the config
directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, deps, conversation)
		},
	}
	cmd.Flags().Int64VarP(&conversation, "conversation", "c", 0, "Open an existing conversation")
	return cmd
}

func runChat(cmd *cobra.Command, deps *Dependencies, conversation int64) error {
	notifier := tui.NewNotifier()
	s, err := deps.openSession(cmd.ErrOrStderr(), sessionOptions{
		notifier:    notifier,
		verbose:     verboseFlag,
		coordinated: true,
	})
	if err != nil {
		return err
	}
	defer s.Close()

	opts := tui.Options{
		Render:       render.OptionsFromConfig(s.cfg.Markdown, deps.TerminalWidth()),
		Conversation: conversation,
	}
	return deps.TUI.RunChat(cmd.Context(), s.store, s.coord, notifier, opts)
}
