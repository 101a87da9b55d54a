package cli

import (
	"grocer-cli/internal/model"
	"grocer-cli/internal/syncer"

	"github.com/spf13/cobra"
)

func newItemsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "items",
		Short: "Item commands (scoped to --list or the current list)",
	}
	cmd.AddCommand(newItemsListCmd(app))
	cmd.AddCommand(newItemsAddCmd(app))
	cmd.AddCommand(newItemsEditCmd(app))
	cmd.AddCommand(newItemsTickCmd(app))
	cmd.AddCommand(newItemsRmCmd(app))
	return cmd
}

func newItemsListCmd(app *App) *cobra.Command {
	var flat bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show items grouped by category",
		RunE: app.runE(func(cmd *cobra.Command, args []string) error {
			s, err := app.loadList(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			if flat {
				return writeData(cmd, app, s.Items())
			}
			return writeData(cmd, app, s.Grouping())
		}),
	}
	cmd.Flags().BoolVar(&flat, "flat", false, "Ungrouped items in server order")
	return cmd
}

func newItemsAddCmd(app *App) *cobra.Command {
	var (
		in       syncer.NewItem
		category string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an item (creates the category when --category names a new one)",
		RunE: app.runE(func(cmd *cobra.Command, args []string) error {
			s, err := app.loadList(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			if category != "" && in.CategoryID == 0 {
				if c, ok := model.CategoryNamed(s.Categories(), category); ok {
					in.CategoryID = c.ID
				} else {
					in.NewCategoryName = category
				}
			}
			it, err := s.AddItem(cmd.Context(), in)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeData(cmd, app, it)
		}),
	}
	cmd.Flags().StringVar(&in.Name, "name", "", "Item name")
	cmd.Flags().StringVar(&in.Note, "note", "", "Note")
	cmd.Flags().Int64Var(&in.CategoryID, "category-id", 0, "Category id")
	cmd.Flags().StringVar(&category, "category", "", "Category name (existing or new)")
	cmd.Flags().BoolVar(&in.PriceMatch, "price-match", false, "Flag for price matching")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newItemsEditCmd(app *App) *cobra.Command {
	var (
		name       string
		note       string
		categoryID int64
		priceMatch bool
	)
	cmd := &cobra.Command{
		Use:   "edit <item-id>",
		Short: "Edit an item; only changed fields are sent",
		Args:  cobra.ExactArgs(1),
		RunE: app.runE(func(cmd *cobra.Command, args []string) error {
			id, err := parseID("item", args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			s, err := app.loadList(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			cur, ok := s.Item(id)
			if !ok {
				return writeErr(cmd, notFoundError{kind: "item", id: id})
			}
			e := syncer.ItemEdit{Name: cur.Name, CategoryID: cur.Category.ID, PriceMatch: cur.PriceMatch}
			if cur.Note != nil {
				e.Note = *cur.Note
			}
			f := cmd.Flags()
			if f.Changed("name") {
				e.Name = name
			}
			if f.Changed("note") {
				e.Note = note
			}
			if f.Changed("category-id") {
				e.CategoryID = categoryID
			}
			if f.Changed("price-match") {
				e.PriceMatch = priceMatch
			}
			s.BeginEdit(id)
			it, err := s.EditItem(cmd.Context(), id, e)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeData(cmd, app, it)
		}),
	}
	cmd.Flags().StringVar(&name, "name", "", "New name")
	cmd.Flags().StringVar(&note, "note", "", "New note (empty clears it)")
	cmd.Flags().Int64Var(&categoryID, "category-id", 0, "Move to category")
	cmd.Flags().BoolVar(&priceMatch, "price-match", false, "Price match flag")
	return cmd
}

func newItemsTickCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "tick <item-id>",
		Short: "Toggle an item's ticked state",
		Args:  cobra.ExactArgs(1),
		RunE: app.runE(func(cmd *cobra.Command, args []string) error {
			id, err := parseID("item", args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			s, err := app.loadList(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			it, err := s.ToggleTick(cmd.Context(), id)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeData(cmd, app, it)
		}),
	}
}

func newItemsRmCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <item-id>",
		Short: "Delete an item",
		Args:  cobra.ExactArgs(1),
		RunE: app.runE(func(cmd *cobra.Command, args []string) error {
			id, err := parseID("item", args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			s, err := app.loadList(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := s.DeleteItem(cmd.Context(), id); err != nil {
				return writeErr(cmd, err)
			}
			return writeData(cmd, app, map[string]any{"deleted": id})
		}),
	}
}

func newCategoriesCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "categories",
		Aliases: []string{"cats"},
		Short:   "Category commands (scoped to --list or the current list)",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List categories sorted by name",
		RunE: app.runE(func(cmd *cobra.Command, args []string) error {
			s, err := app.loadList(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			g := s.Grouping()
			out := make([]model.Category, 0, len(g.Groups))
			for _, grp := range g.Groups {
				out = append(out, grp.Category)
			}
			return writeData(cmd, app, out)
		}),
	})

	var name string
	add := &cobra.Command{
		Use:   "add",
		Short: "Create a category",
		RunE: app.runE(func(cmd *cobra.Command, args []string) error {
			s, err := app.loadList(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			c, err := s.AddCategory(cmd.Context(), name)
			if err != nil {
				return writeErr(cmd, err)
			}
			return writeData(cmd, app, c)
		}),
	}
	add.Flags().StringVar(&name, "name", "", "Category name")
	_ = add.MarkFlagRequired("name")
	cmd.AddCommand(add)

	cmd.AddCommand(&cobra.Command{
		Use:   "rm <category-id>",
		Short: "Delete an empty category",
		Args:  cobra.ExactArgs(1),
		RunE: app.runE(func(cmd *cobra.Command, args []string) error {
			id, err := parseID("category", args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			s, err := app.loadList(cmd.Context())
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := s.DeleteCategory(cmd.Context(), id); err != nil {
				return writeErr(cmd, err)
			}
			return writeData(cmd, app, map[string]any{"deleted": id})
		}),
	})
	return cmd
}
