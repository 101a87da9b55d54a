package tui

import (
	"fmt"
	"strings"

	"grocer-cli/internal/model"

	"github.com/charmbracelet/bubbles/list"
)

type listItem struct {
	list model.List
	me   int64
}

func (i listItem) FilterValue() string { return i.list.Name }
func (i listItem) Title() string       { return i.list.Name }

func (i listItem) Description() string {
	parts := []string{string(i.list.ListType)}
	if i.list.IsOwner(i.me) {
		parts = append(parts, "owner")
	} else if i.list.Owner.Username != "" {
		parts = append(parts, "by "+i.list.Owner.Username)
	}
	if n := len(i.list.Members); n > 1 {
		parts = append(parts, fmt.Sprintf("%d members", n))
	}
	return strings.Join(parts, " · ")
}

func newListsList() list.Model {
	l := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Lists"
	l.SetShowHelp(false)
	l.SetShowStatusBar(false)
	l.DisableQuitKeybindings()
	return l
}

func listItemsOf(ls []model.List, me int64) []list.Item {
	out := make([]list.Item, 0, len(ls))
	for _, l := range ls {
		out = append(out, listItem{list: l, me: me})
	}
	return out
}

// row is one line of the open list: a category header or an item.
type row struct {
	header   bool
	category model.Category
	item     model.Item
}

// rowsOf flattens a grouping in render order. Orphans are not shown.
func rowsOf(g model.Grouping) []row {
	var out []row
	for _, grp := range g.Groups {
		out = append(out, row{header: true, category: grp.Category})
		for _, it := range grp.Items {
			out = append(out, row{category: grp.Category, item: it})
		}
	}
	return out
}
