package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/diogo/chatsync/internal/config"
)

// NewConfigCmd creates a new config command
func NewConfigCmd(deps *Dependencies) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change configuration",
		Long: fmt.Sprintf(`Show the configuration, or change a value with 'config set'.

Keys: %s`, strings.Join(config.Keys(), ", ")),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := deps.LoadConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return printConfig(cmd, cfg)
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "set <key> <value>",
			Short: "Set a configuration value",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := deps.LoadConfig()
				if err != nil {
					return fmt.Errorf("failed to load config: %w", err)
				}
				if err := cfg.Set(args[0], args[1]); err != nil {
					return err
				}
				if err := config.SaveConfig(cfg); err != nil {
					return err
				}
				printSuccess(cmd.OutOrStdout(), "%s = %s", args[0], args[1])
				return nil
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the configuration file path",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				path, err := config.GetConfigPath()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
				return nil
			},
		},
	)
	return cmd
}

func printConfig(cmd *cobra.Command, cfg config.Config) error {
	// Flatten through JSON so the output keys match the ones 'set' accepts
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	t := newTable(cmd.OutOrStdout(), "KEY", "VALUE")
	for _, key := range config.Keys() {
		group, name, nested := strings.Cut(key, ".")
		value := fields[group]
		if nested {
			if m, ok := value.(map[string]any); ok {
				value = m[name]
			}
		}
		t.row(key, value)
	}
	return t.flush()
}
