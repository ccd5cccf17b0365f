package render

import (
	"os"

	"github.com/diogo/chatsync/internal/config"
)

// OptionsFromConfig builds render options from the markdown section of cfg.
// GLAMOUR_STYLE overrides the configured style.
func OptionsFromConfig(cfg config.MarkdownConfig, terminalWidth int) Options {
	opts := DefaultOptions()
	if cfg.Style != "" {
		opts.Style = cfg.Style
	}
	switch {
	case cfg.Width > 0:
		opts.Width = cfg.Width
	case terminalWidth > 0:
		opts.Width = terminalWidth
	}

	if style := os.Getenv("GLAMOUR_STYLE"); style != "" {
		opts.Style = style
	}
	return opts
}
