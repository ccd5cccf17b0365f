package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/diogo/chatsync/internal/chat"
	"github.com/diogo/chatsync/internal/config"
	"github.com/diogo/chatsync/internal/models"
	"github.com/diogo/chatsync/internal/storage"
)

// NewSettingsCmd creates the command for the persisted chat settings.
// These work offline, directly on the settings store.
func NewSettingsCmd(deps *Dependencies) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change the persisted chat settings",
		Long: `Show the settings remembered between sessions: the selected model,
the selected prompt template, the history limit and the last sync time.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSettings(deps, func(cfg config.Config, kv storage.KV, settings models.PersistedSettings) error {
				return printSettings(cmd, cfg, settings)
			})
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "set <model|history_limit> <value>",
			Short: "Change a persisted setting",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withSettings(deps, func(_ config.Config, kv storage.KV, settings models.PersistedSettings) error {
					switch args[0] {
					case "model":
						settings.SelectedModel = args[1]
					case "history_limit":
						n, err := strconv.Atoi(args[1])
						if err != nil || n <= 0 {
							return fmt.Errorf("history_limit must be a positive integer, got %q", args[1])
						}
						settings.HistoryLimit = n
					default:
						return fmt.Errorf("unknown setting: %s (use 'templates use' for the template)", args[0])
					}
					if err := config.SaveSettings(kv, settings); err != nil {
						return err
					}
					printSuccess(cmd.OutOrStdout(), "%s = %s", args[0], args[1])
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "reset",
			Short: "Forget the persisted settings",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withSettings(deps, func(_ config.Config, kv storage.KV, _ models.PersistedSettings) error {
					if err := kv.Delete(models.SettingsStorageKey); err != nil {
						return err
					}
					printSuccess(cmd.OutOrStdout(), "Settings reset")
					return nil
				})
			},
		},
	)
	return cmd
}

// withSettings loads the persisted settings, with configured defaults, and
// passes them to fn with the open store
func withSettings(deps *Dependencies, fn func(config.Config, storage.KV, models.PersistedSettings) error) error {
	cfg, err := deps.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	kv, err := deps.OpenKV(cfg)
	if err != nil {
		return fmt.Errorf("failed to open settings store: %w", err)
	}
	defer kv.Close()

	defaults := models.DefaultSettings()
	if cfg.DefaultModel != "" {
		defaults.SelectedModel = cfg.DefaultModel
	}
	if cfg.HistoryLimit > 0 {
		defaults.HistoryLimit = cfg.HistoryLimit
	}
	settings, err := config.LoadSettings(kv, defaults)
	if err != nil {
		return err
	}
	return fn(cfg, kv, settings)
}

func printSettings(cmd *cobra.Command, cfg config.Config, settings models.PersistedSettings) error {
	template := "-"
	if t := settings.SelectedTemplate; t != nil {
		template = fmt.Sprintf("%s (id %d)", t.Name, t.ID)
	}
	lastSync := "never"
	if !settings.LastSyncTime.IsZero() {
		lastSync = chat.FormatRelativeTime(settings.LastSyncTime)
	}

	t := newTable(cmd.OutOrStdout(), "SETTING", "VALUE")
	t.row("model", settings.SelectedModel)
	t.row("template", template)
	t.row("history_limit", settings.HistoryLimit)
	t.row("last_sync", lastSync)
	t.row("storage", cfg.StorageBackend)
	return t.flush()
}
