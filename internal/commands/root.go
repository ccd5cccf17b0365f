// Package commands provides CLI commands for chatsync.
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/diogo/chatsync/internal/config"
)

var (
	// Global flags
	verboseFlag   bool
	configDirFlag string

	// Version info (set at build time)
	Version   = "0.1.0"
	BuildTime = "unknown"
)

// NewRootCmd creates the root command with every subcommand attached
func NewRootCmd(deps *Dependencies) *cobra.Command {
	if deps == nil {
		deps = NewDependencies()
	}
	opts := &queryOptions{}

	cmd := &cobra.Command{
		Use:   "chatsync [prompt]",
		Short: "Terminal client for a streaming chat backend",
		Long: `chatsync keeps your conversations, prompt templates and folders in sync
with a chat backend and streams replies as they are generated.

Examples:
  chatsync chat                          Start interactive chat
  chatsync "What is Go?"                 Send a single message
  chatsync -c 42 "And in Rust?"          Continue conversation 42
  chatsync -t Reviewer -f main.go        Use a prompt template
  cat notes.md | chatsync                Read the message from stdin
  chatsync "Hello" -o reply.md           Save the reply to a file
  chatsync conversations list            List conversations
  chatsync config set base_url http://localhost:8080/api`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if configDirFlag != "" {
				config.SetConfigDir(configDirFlag)
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if v, _ := cmd.Flags().GetBool("version"); v {
				fmt.Fprintf(cmd.OutOrStdout(), "chatsync %s (built %s)\n", Version, BuildTime)
				return nil
			}

			prompt, ok, err := readPrompt(cmd, opts, args)
			if err != nil {
				return err
			}
			if !ok {
				return cmd.Help()
			}
			return runQuery(cmd, deps, opts, prompt)
		},
	}

	cmd.PersistentFlags().BoolVar(&verboseFlag, "verbose", false, "Log debug output to stderr")
	cmd.PersistentFlags().StringVar(&configDirFlag, "config-dir", "", "Configuration directory (default ~/.chatsync)")
	cmd.Flags().StringVarP(&opts.model, "model", "m", "", "Model to use for this message")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Save the reply to a file")
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "Read the message from a file")
	cmd.Flags().Int64VarP(&opts.conversation, "conversation", "c", 0, "Continue an existing conversation")
	cmd.Flags().StringVarP(&opts.template, "template", "t", "", "Prompt template id or name")
	cmd.Flags().BoolVarP(&opts.raw, "raw", "r", false, "Print only the reply text")
	cmd.Flags().BoolP("version", "v", false, "Show version and exit")

	cmd.AddCommand(
		NewChatCmd(deps),
		NewConfigCmd(deps),
		NewConversationsCmd(deps),
		NewMessagesCmd(deps),
		NewFoldersCmd(deps),
		NewTemplatesCmd(deps),
		NewSettingsCmd(deps),
		NewSyncCmd(deps),
	)
	return cmd
}

// Execute runs the root command
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd(NewDependencies()).ExecuteContext(ctx); err != nil {
		errorColor.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
