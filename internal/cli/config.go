package cli

import (
	"errors"
	"net/url"
	"strings"

	"grocer-cli/internal/store"

	"github.com/spf13/cobra"
)

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change config.json",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the config and its location",
		RunE: app.runE(func(cmd *cobra.Command, args []string) error {
			cfg, err := app.config()
			if err != nil {
				return writeErr(cmd, err)
			}
			path, _ := store.ConfigPath()
			api, _ := app.apiBaseURL()
			return writeData(cmd, app, map[string]any{"path": path, "config": cfg, "effectiveApi": api})
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set-api <url>",
		Short: "Set the default API base URL",
		Args:  cobra.ExactArgs(1),
		RunE: app.runE(func(cmd *cobra.Command, args []string) error {
			raw := strings.TrimRight(strings.TrimSpace(args[0]), "/")
			u, err := url.Parse(raw)
			if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				return writeErr(cmd, errors.New("api url must be http(s)://host[/path]"))
			}
			cfg, err := app.config()
			if err != nil {
				return writeErr(cmd, err)
			}
			cfg.APIBaseURL = raw
			if err := store.SaveConfig(cfg); err != nil {
				return writeErr(cmd, err)
			}
			return writeData(cmd, app, cfg)
		}),
	})

	var style string
	setStyle := &cobra.Command{
		Use:   "set-style",
		Short: "Set the markdown style of the assistant panel (dark|light|notty|auto)",
		RunE: app.runE(func(cmd *cobra.Command, args []string) error {
			cfg, err := app.config()
			if err != nil {
				return writeErr(cmd, err)
			}
			if cfg.TUI == nil {
				cfg.TUI = &store.TUIConfig{}
			}
			cfg.TUI.MarkdownStyle = strings.TrimSpace(style)
			if err := store.SaveConfig(cfg); err != nil {
				return writeErr(cmd, err)
			}
			return writeData(cmd, app, cfg)
		}),
	}
	setStyle.Flags().StringVar(&style, "style", "", "glamour standard style name")
	_ = setStyle.MarkFlagRequired("style")
	cmd.AddCommand(setStyle)
	return cmd
}
