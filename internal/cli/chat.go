package cli

import (
	"strings"

	"grocer-cli/internal/assistant"
	"grocer-cli/internal/model"

	"github.com/spf13/cobra"
)

func newChatCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "chat <message...>",
		Short: "Send one message to the list assistant",
		Args:  cobra.MinimumNArgs(1),
		RunE: app.runE(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := app.loadList(ctx)
			if err != nil {
				return writeErr(cmd, err)
			}
			mutated := false
			b := assistant.New(app.gw, s.ListID(), func() {
				mutated = true
				_ = s.Refresh(ctx, true)
			},
				assistant.WithLogger(app.log),
				assistant.WithAuthFailure(app.sess.Logout),
				assistant.WithDetector(app.detector()),
			)
			reply, err := b.Send(ctx, strings.Join(args, " "))
			if err != nil {
				return writeErr(cmd, err)
			}
			out := struct {
				Reply   model.ChatMessage `json:"reply"`
				Mutated bool              `json:"mutated"`
				Items   *model.Grouping   `json:"items,omitempty"`
			}{Reply: reply, Mutated: mutated}
			if mutated {
				g := s.Grouping()
				out.Items = &g
			}
			return writeData(cmd, app, out)
		}),
	}
}

// detector prefers the backend's mutated flag and falls back to keywords,
// optionally from config.
func (app *App) detector() assistant.Detector {
	kw := assistant.KeywordDetector{}
	if cfg, err := app.config(); err == nil && cfg.TUI != nil && len(cfg.TUI.AssistantKeywords) > 0 {
		kw.Keywords = cfg.TUI.AssistantKeywords
	}
	return assistant.StructuredDetector{Fallback: kw}
}
