package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/diogo/chatsync/internal/models"
)

// openSyncedSession opens a coordinated session and runs initialization,
// so that settings changes made by the command are persisted
func openSyncedSession(cmd *cobra.Command, deps *Dependencies) (*session, error) {
	s, err := deps.openSession(cmd.ErrOrStderr(), sessionOptions{
		notifier:    cliNotifier{w: cmd.ErrOrStderr()},
		logToStderr: verboseFlag,
		verbose:     verboseFlag,
		coordinated: true,
	})
	if err != nil {
		return nil, err
	}
	if err := s.coord.Initialize(cmd.Context()); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// NewTemplatesCmd creates the templates command group
func NewTemplatesCmd(deps *Dependencies) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "templates",
		Aliases: []string{"template", "tpl"},
		Short:   "Manage prompt templates",
	}
	cmd.AddCommand(
		newTemplatesListCmd(deps),
		newTemplatesCreateCmd(deps),
		newTemplatesUpdateCmd(deps),
		newTemplatesDeleteCmd(deps),
		newTemplatesUseCmd(deps),
	)
	return cmd
}

func newTemplatesListCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List prompt templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSyncedSession(cmd, deps)
			if err != nil {
				return err
			}
			defer s.Close()

			templates := s.store.Templates()
			if len(templates) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No templates found.")
				return nil
			}

			selected, hasSelected := s.store.SelectedTemplate()
			t := newTable(cmd.OutOrStdout(), "ID", "NAME", "PROMPT", "")
			for _, tmpl := range templates {
				mark := ""
				if tmpl.IsFavorite {
					mark = "★"
				}
				if hasSelected && selected.ID == tmpl.ID {
					mark += successColor.Sprint(" (selected)")
				}
				t.row(tmpl.ID, tmpl.Name, truncate(tmpl.Content, 50), mark)
			}
			return t.flush()
		},
	}
}

func newTemplatesCreateCmd(deps *Dependencies) *cobra.Command {
	var tmpl models.PromptTemplate

	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a prompt template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tmpl.Name = args[0]
			if strings.TrimSpace(tmpl.Content) == "" {
				return fmt.Errorf("--content is required")
			}

			s, err := openCLISession(cmd, deps)
			if err != nil {
				return err
			}
			defer s.Close()

			created, err := s.store.CreateTemplate(cmd.Context(), tmpl)
			if err != nil {
				return err
			}
			printSuccess(cmd.ErrOrStderr(), "Template %q created (id %d)", created.Name, created.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&tmpl.Content, "content", "", "System prompt text")
	cmd.Flags().StringVar(&tmpl.Description, "description", "", "Short description")
	cmd.Flags().BoolVar(&tmpl.IsFavorite, "favorite", false, "Mark as favorite")
	return cmd
}

func newTemplatesUpdateCmd(deps *Dependencies) *cobra.Command {
	var name, content, description string

	cmd := &cobra.Command{
		Use:   "update <id|name>",
		Short: "Change a prompt template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSyncedSession(cmd, deps)
			if err != nil {
				return err
			}
			defer s.Close()

			tmpl, err := findTemplate(s.store.Templates(), args[0])
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("name") {
				tmpl.Name = name
			}
			if flags.Changed("content") {
				tmpl.Content = content
			}
			if flags.Changed("description") {
				tmpl.Description = description
			}

			updated, err := s.store.UpdateTemplate(cmd.Context(), tmpl)
			if err != nil {
				return err
			}
			printSuccess(cmd.ErrOrStderr(), "Template %q updated", updated.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "New name")
	cmd.Flags().StringVar(&content, "content", "", "New system prompt text")
	cmd.Flags().StringVar(&description, "description", "", "New description")
	return cmd
}

func newTemplatesDeleteCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id|name>",
		Short: "Delete a prompt template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSyncedSession(cmd, deps)
			if err != nil {
				return err
			}
			defer s.Close()

			tmpl, err := findTemplate(s.store.Templates(), args[0])
			if err != nil {
				return err
			}
			if err := s.store.DeleteTemplate(cmd.Context(), tmpl.ID); err != nil {
				return err
			}
			printSuccess(cmd.ErrOrStderr(), "Template %q deleted", tmpl.Name)
			return nil
		},
	}
}

func newTemplatesUseCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "use <id|name|none>",
		Short: "Select the template used for new conversations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSyncedSession(cmd, deps)
			if err != nil {
				return err
			}
			defer s.Close()

			if strings.EqualFold(args[0], "none") {
				s.store.SelectTemplate(nil)
				printSuccess(cmd.ErrOrStderr(), "Template selection cleared")
				return nil
			}

			tmpl, err := findTemplate(s.store.Templates(), args[0])
			if err != nil {
				return err
			}
			s.store.SelectTemplate(&tmpl)
			printSuccess(cmd.ErrOrStderr(), "Using template %q", tmpl.Name)
			return nil
		},
	}
}
