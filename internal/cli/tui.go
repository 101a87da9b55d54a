package cli

import (
	"grocer-cli/internal/tui"

	"github.com/spf13/cobra"
)

func newTUICmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Start the interactive TUI",
		Args:  cobra.NoArgs,
		RunE: app.runE(func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd, app)
		}),
	}
}

// runTUI resumes the stored session (if any) and hands over to the TUI. An
// explicit --list/GROCER_LIST opens that list after sign-in.
func runTUI(cmd *cobra.Command, app *App) error {
	ctx := cmd.Context()
	if err := app.connect(ctx); err != nil {
		return writeErr(cmd, err)
	}
	cfg, err := app.config()
	if err != nil {
		return writeErr(cmd, err)
	}
	return tui.Run(ctx, tui.Deps{
		Session:  app.sess,
		Gateway:  app.gw,
		KV:       app.kv,
		Config:   cfg,
		Logger:   app.log,
		Metrics:  app.metrics,
		Detector: app.detector(),
		ListID:   app.ListID,
	})
}
