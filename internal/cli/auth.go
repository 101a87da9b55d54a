package cli

import (
	"bufio"
	"errors"
	"io"
	"strings"

	"grocer-cli/internal/model"

	"github.com/spf13/cobra"
)

func newLoginCmd(app *App) *cobra.Command {
	var (
		username      string
		password      string
		passwordStdin bool
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session token",
		RunE: app.runE(func(cmd *cobra.Command, args []string) error {
			if passwordStdin {
				p, err := readSecret(cmd.InOrStdin())
				if err != nil {
					return writeErr(cmd, err)
				}
				password = p
			}
			if strings.TrimSpace(username) == "" || password == "" {
				return writeErr(cmd, errors.New("username and password are required (use --password-stdin to pipe the password)"))
			}
			ctx := cmd.Context()
			if err := app.connect(ctx); err != nil {
				return writeErr(cmd, err)
			}
			if !app.sess.Login(ctx, username, password) {
				return writeErr(cmd, errors.New(app.sess.LastError()))
			}
			return writeData(cmd, app, map[string]any{"user": app.sess.User()})
		}),
	}
	cmd.Flags().StringVarP(&username, "username", "u", envOr("GROCER_USERNAME", ""), "Username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (prefer --password-stdin)")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin")
	return cmd
}

func readSecret(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newLogoutCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		RunE: app.runE(func(cmd *cobra.Command, args []string) error {
			if err := app.connect(cmd.Context()); err != nil {
				return writeErr(cmd, err)
			}
			app.sess.Logout()
			return writeData(cmd, app, map[string]any{"loggedOut": true})
		}),
	}
}

func newWhoamiCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user (revalidated against the server)",
		RunE: app.runE(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := app.requireSession(ctx); err != nil {
				return writeErr(cmd, err)
			}
			if err := app.sess.FetchAndSetUser(ctx); err != nil {
				return writeErr(cmd, app.handle(err))
			}
			var u model.User
			if p := app.sess.User(); p != nil {
				u = *p
			}
			return writeData(cmd, app, u)
		}),
	}
}
