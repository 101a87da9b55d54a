package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"grocer-cli/internal/format"
	"grocer-cli/internal/gateway"
	"grocer-cli/internal/logging"
	"grocer-cli/internal/metrics"
	"grocer-cli/internal/session"
	"grocer-cli/internal/store"
	"grocer-cli/internal/syncer"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type App struct {
	API         string
	Format      string
	PrettyJSON  bool
	ListID      int64
	LogFile     string
	MetricsAddr string

	// HTTPClient overrides the gateway transport (tests).
	HTTPClient *http.Client

	cfg     *store.Config
	kv      store.KV
	gw      *gateway.Client
	sess    *session.Session
	metrics *metrics.Metrics
	log     *slog.Logger
	closers []func() error
}

func NewRootCmd() *cobra.Command {
	// A missing .env is the normal case.
	_ = godotenv.Load()

	app := &App{}

	cmd := &cobra.Command{
		Use:          "grocer",
		Short:        "Grocery list CLI + TUI",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # Start the interactive TUI
  grocer

  # Sign in, pick a list, add an item
  grocer login --username ada
  grocer lists use 12
  grocer items add --name Milk --category Dairy

  # Grouped items of a list (shortcut for: grocer items list --list 12)
  grocer list-12
`),
		RunE: app.runE(func(cmd *cobra.Command, args []string) error {
			// No subcommand => interactive TUI.
			if cmd.HasSubCommands() && len(args) == 0 {
				return runTUI(cmd, app)
			}
			return cmd.Help()
		}),
	}

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := format.Validate(app.Format); err != nil {
			return writeErr(cmd, err)
		}
		interactive := cmd == cmd.Root() || cmd.Name() == "tui"
		l, closeLog, err := logging.Setup(logging.Options{File: app.LogFile, Discard: interactive && app.LogFile == ""})
		if err != nil {
			return writeErr(cmd, fmt.Errorf("open log file: %w", err))
		}
		app.log = l
		app.closers = append(app.closers, closeLog)
		return nil
	}

	cmd.PersistentFlags().StringVar(&app.API, "api", envOr("GROCER_API_URL", ""), "API base URL (default: config apiBaseUrl or "+gateway.DefaultBaseURL+")")
	cmd.PersistentFlags().StringVar(&app.Format, "format", envOr("GROCER_FORMAT", "json"), "Output format (json|edn)")
	cmd.PersistentFlags().BoolVar(&app.PrettyJSON, "pretty", false, "Pretty-print output")
	cmd.PersistentFlags().Int64Var(&app.ListID, "list", envInt("GROCER_LIST"), "List id (overrides currentListId in config.json)")
	cmd.PersistentFlags().StringVar(&app.LogFile, "log-file", envOr("GROCER_LOG_FILE", ""), "Write logs to this file")
	cmd.PersistentFlags().StringVar(&app.MetricsAddr, "metrics-addr", envOr("GROCER_METRICS_ADDR", ""), "Serve Prometheus metrics on this address (e.g. 127.0.0.1:9464)")

	cmd.AddCommand(newLoginCmd(app))
	cmd.AddCommand(newLogoutCmd(app))
	cmd.AddCommand(newWhoamiCmd(app))
	cmd.AddCommand(newListsCmd(app))
	cmd.AddCommand(newItemsCmd(app))
	cmd.AddCommand(newCategoriesCmd(app))
	cmd.AddCommand(newChatCmd(app))
	cmd.AddCommand(newConfigCmd(app))
	cmd.AddCommand(newDocsCmd(app))
	cmd.AddCommand(newTUICmd(app))

	return cmd
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envInt(k string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(os.Getenv(k)), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// config loads config.json once.
func (app *App) config() (*store.Config, error) {
	if app.cfg != nil {
		return app.cfg, nil
	}
	cfg, err := store.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	app.cfg = cfg
	return cfg, nil
}

// apiBaseURL resolves flag/env > config > default.
func (app *App) apiBaseURL() (string, error) {
	if v := strings.TrimSpace(app.API); v != "" {
		return v, nil
	}
	cfg, err := app.config()
	if err != nil {
		return "", err
	}
	if cfg.APIBaseURL != "" {
		return cfg.APIBaseURL, nil
	}
	return gateway.DefaultBaseURL, nil
}

// connect opens the state store, builds the gateway and restores the
// session. It is idempotent.
func (app *App) connect(ctx context.Context) error {
	if app.sess != nil {
		return nil
	}
	base, err := app.apiBaseURL()
	if err != nil {
		return err
	}
	if app.log == nil {
		app.log = slog.Default()
	}
	app.metrics = metrics.New()
	if app.MetricsAddr != "" {
		if err := app.serveMetrics(); err != nil {
			return err
		}
	}

	kv, err := store.OpenDefaultState(ctx)
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}
	app.kv = kv
	app.closers = append(app.closers, kv.Close)

	opts := []gateway.Option{gateway.WithLogger(app.log), gateway.WithMetrics(app.metrics)}
	if app.HTTPClient != nil {
		opts = append(opts, gateway.WithHTTPClient(app.HTTPClient))
	}
	app.gw = gateway.New(base, opts...)
	app.sess = session.New(kv, app.gw, session.WithLogger(app.log), session.WithMetrics(app.metrics))
	return app.sess.Restore(ctx)
}

func (app *App) serveMetrics() error {
	ln, err := net.Listen("tcp", app.MetricsAddr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	srv := &http.Server{Handler: app.metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.log.Warn("metrics server stopped", "err", err)
		}
	}()
	app.log.Info("serving metrics", "addr", ln.Addr().String())
	app.closers = append(app.closers, srv.Close)
	return nil
}

// requireSession connects and ensures an authenticated session, resolving
// the identity when only a token is stored.
func (app *App) requireSession(ctx context.Context) error {
	if err := app.connect(ctx); err != nil {
		return err
	}
	switch app.sess.State() {
	case session.StateAuthenticated:
		return nil
	case session.StateResolving:
		if err := app.sess.FetchAndSetUser(ctx); err != nil {
			return errNotLoggedIn{}
		}
		return nil
	default:
		return errNotLoggedIn{}
	}
}

// listID resolves --list/GROCER_LIST > config currentListId.
func (app *App) listID() (int64, error) {
	if app.ListID > 0 {
		return app.ListID, nil
	}
	cfg, err := app.config()
	if err != nil {
		return 0, err
	}
	if cfg.CurrentListID > 0 {
		return cfg.CurrentListID, nil
	}
	return 0, errNoList{}
}

// loadList returns a synchronizer loaded with the selected list.
func (app *App) loadList(ctx context.Context) (*syncer.Synchronizer, error) {
	if err := app.requireSession(ctx); err != nil {
		return nil, err
	}
	id, err := app.listID()
	if err != nil {
		return nil, err
	}
	s := syncer.New(app.gw,
		syncer.WithLogger(app.log),
		syncer.WithMetrics(app.metrics),
		syncer.WithAuthFailure(app.sess.Logout),
	)
	app.closers = append(app.closers, func() error { s.Close(); return nil })
	if err := s.Load(ctx, id); err != nil {
		if msg := s.Err(); msg != "" {
			return nil, &gateway.Error{Kind: gateway.KindOf(err), Status: gateway.StatusOf(err), Message: msg, Err: err}
		}
		return nil, err
	}
	return s, nil
}

// handle logs the session out on auth failures before the error is printed.
func (app *App) handle(err error) error {
	if app.sess != nil {
		app.sess.HandleError(err)
	}
	return err
}

// runE releases everything the command opened once it returns, including
// on error (cobra skips post-run hooks then).
func (app *App) runE(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		defer app.close()
		return fn(cmd, args)
	}
}

func (app *App) close() {
	for i := len(app.closers) - 1; i >= 0; i-- {
		_ = app.closers[i]()
	}
	app.closers = nil
}

func (app *App) meta() *format.Meta {
	m := &format.Meta{}
	if app.gw != nil {
		m.API = app.gw.BaseURL()
	}
	if id, err := app.listID(); err == nil {
		m.ListID = id
	}
	return m
}

func writeOut(cmd *cobra.Command, app *App, v any) error {
	return format.Write(cmd.OutOrStdout(), v, app.Format, app.PrettyJSON)
}

func writeData(cmd *cobra.Command, app *App, data any, hints ...string) error {
	return writeOut(cmd, app, format.Envelope{Data: data, Meta: app.meta(), Hints: hints})
}

func writeErr(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), gateway.Message(err))
	return err
}
