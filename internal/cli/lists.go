package cli

import (
	"strconv"
	"strings"

	"grocer-cli/internal/lists"
	"grocer-cli/internal/model"
	"grocer-cli/internal/store"

	"github.com/spf13/cobra"
)

func parseID(kind, raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, kind+"-")
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		return 0, badIDError{kind: kind, raw: raw}
	}
	return n, nil
}

func (app *App) listsController() *lists.Controller {
	return lists.New(app.gw,
		lists.WithLogger(app.log),
		lists.WithAuthFailure(app.sess.Logout),
		lists.WithCurrentUser(app.sess.User),
	)
}

func newListsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lists",
		Short: "Shopping list commands",
	}
	cmd.AddCommand(newListsListCmd(app))
	cmd.AddCommand(newListsShowCmd(app))
	cmd.AddCommand(newListsCreateCmd(app))
	cmd.AddCommand(newListsUpdateCmd(app))
	cmd.AddCommand(newListsDeleteCmd(app))
	cmd.AddCommand(newListsUseCmd(app))
	cmd.AddCommand(newMembersCmd(app))
	return cmd
}

func newListsListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your shopping lists (sorted by name)",
		RunE: app.runE(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := app.requireSession(ctx); err != nil {
				return writeErr(cmd, err)
			}
			ls, err := app.listsController().Fetch(ctx)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeData(cmd, app, ls)
		}),
	}
}

func newListsShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <list-id>",
		Short: "Show one list with its members",
		Args:  cobra.ExactArgs(1),
		RunE: app.runE(func(cmd *cobra.Command, args []string) error {
			id, err := parseID("list", args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			ctx := cmd.Context()
			if err := app.requireSession(ctx); err != nil {
				return writeErr(cmd, err)
			}
			l, err := app.gw.GetList(ctx, id)
			if err != nil {
				return writeErr(cmd, app.handle(err))
			}
			return writeData(cmd, app, l)
		}),
	}
}

func newListsCreateCmd(app *App) *cobra.Command {
	var (
		name string
		typ  string
		use  bool
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a list",
		RunE: app.runE(func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := app.requireSession(ctx); err != nil {
				return writeErr(cmd, err)
			}
			l, err := app.listsController().Create(ctx, name, model.ListType(typ))
			if err != nil {
				return writeErr(cmd, err)
			}
			if use {
				if err := app.useList(l.ID); err != nil {
					return writeErr(cmd, err)
				}
			}
			return writeData(cmd, app, l)
		}),
	}
	cmd.Flags().StringVar(&name, "name", "", "List name")
	cmd.Flags().StringVar(&typ, "type", string(model.ListTypePrivate), "List type (private|shared)")
	cmd.Flags().BoolVar(&use, "use", false, "Make it the current list")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newListsUpdateCmd(app *App) *cobra.Command {
	var (
		name string
		typ  string
	)
	cmd := &cobra.Command{
		Use:   "update <list-id>",
		Short: "Rename a list or change its type (only changed fields are sent)",
		Args:  cobra.ExactArgs(1),
		RunE: app.runE(func(cmd *cobra.Command, args []string) error {
			id, err := parseID("list", args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			ctx := cmd.Context()
			if err := app.requireSession(ctx); err != nil {
				return writeErr(cmd, err)
			}
			l, changed, err := app.listsController().Update(ctx, id, name, model.ListType(typ))
			if err != nil {
				return writeErr(cmd, err)
			}
			if !changed {
				return writeData(cmd, app, l, "nothing changed; no request sent")
			}
			return writeData(cmd, app, l)
		}),
	}
	cmd.Flags().StringVar(&name, "name", "", "New name")
	cmd.Flags().StringVar(&typ, "type", "", "New type (private|shared)")
	return cmd
}

func newListsDeleteCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <list-id>",
		Short: "Delete a list (owner only)",
		Args:  cobra.ExactArgs(1),
		RunE: app.runE(func(cmd *cobra.Command, args []string) error {
			id, err := parseID("list", args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			ctx := cmd.Context()
			if err := app.requireSession(ctx); err != nil {
				return writeErr(cmd, err)
			}
			if err := app.listsController().Delete(ctx, id); err != nil {
				return writeErr(cmd, err)
			}
			if cfg, err := app.config(); err == nil && cfg.CurrentListID == id {
				cfg.CurrentListID = 0
				_ = store.SaveConfig(cfg)
			}
			return writeData(cmd, app, map[string]any{"deleted": id})
		}),
	}
}

func newListsUseCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "use <list-id>",
		Short: "Set the current list",
		Args:  cobra.ExactArgs(1),
		RunE: app.runE(func(cmd *cobra.Command, args []string) error {
			id, err := parseID("list", args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			ctx := cmd.Context()
			if err := app.requireSession(ctx); err != nil {
				return writeErr(cmd, err)
			}
			l, err := app.gw.GetList(ctx, id)
			if err != nil {
				return writeErr(cmd, app.handle(err))
			}
			if err := app.useList(id); err != nil {
				return writeErr(cmd, err)
			}
			return writeData(cmd, app, l)
		}),
	}
}

func (app *App) useList(id int64) error {
	cfg, err := app.config()
	if err != nil {
		return err
	}
	cfg.CurrentListID = id
	return store.SaveConfig(cfg)
}

func newMembersCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "members",
		Short: "List membership commands",
	}

	var username string
	add := &cobra.Command{
		Use:   "add <list-id>",
		Short: "Add a member by username",
		Args:  cobra.ExactArgs(1),
		RunE: app.runE(func(cmd *cobra.Command, args []string) error {
			id, err := parseID("list", args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			ctx := cmd.Context()
			if err := app.requireSession(ctx); err != nil {
				return writeErr(cmd, err)
			}
			m, err := app.listsController().AddMember(ctx, id, username)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeData(cmd, app, m)
		}),
	}
	add.Flags().StringVar(&username, "username", "", "Username to add")
	_ = add.MarkFlagRequired("username")

	rm := &cobra.Command{
		Use:   "rm <list-id> <user-id>",
		Short: "Remove a member (not the owner, not yourself)",
		Args:  cobra.ExactArgs(2),
		RunE: app.runE(func(cmd *cobra.Command, args []string) error {
			listID, err := parseID("list", args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			userID, err := parseID("user", args[1])
			if err != nil {
				return writeErr(cmd, err)
			}
			ctx := cmd.Context()
			if err := app.requireSession(ctx); err != nil {
				return writeErr(cmd, err)
			}
			c := app.listsController()
			if _, err := c.Fetch(ctx); err != nil {
				return writeErr(cmd, err)
			}
			if err := c.RemoveMember(ctx, listID, userID); err != nil {
				return writeErr(cmd, err)
			}
			return writeData(cmd, app, map[string]any{"removed": userID, "listId": listID})
		}),
	}

	cmd.AddCommand(add, rm)
	return cmd
}
