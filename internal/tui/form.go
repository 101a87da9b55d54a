package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type formKind int

const (
	formNone formKind = iota
	formLogin
	formNewList
	formAddItem
	formEditItem
	formAddCategory
	formAddMember
)

type formField struct {
	label string
	input textinput.Model
	// toggle fields flip between "yes" and "no" on space.
	toggle bool
}

// form is a small stack of labelled inputs. Tab/shift+tab move focus; the
// caller handles enter and esc.
type form struct {
	kind   formKind
	title  string
	fields []formField
	focus  int
	// itemID is the item being edited (formEditItem).
	itemID int64
}

func newInput(placeholder, value string) textinput.Model {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.Prompt = ""
	ti.CharLimit = 200
	ti.SetValue(value)
	// Blink ticks would need routing through every view; a steady cursor is enough.
	ti.Cursor.SetMode(cursor.CursorStatic)
	return ti
}

func newForm(kind formKind, title string, fields ...formField) *form {
	f := &form{kind: kind, title: title, fields: fields}
	f.setFocus(0)
	return f
}

func field(label, placeholder, value string) formField {
	return formField{label: label, input: newInput(placeholder, value)}
}

func toggleField(label string, on bool) formField {
	v := "no"
	if on {
		v = "yes"
	}
	return formField{label: label, input: newInput("", v), toggle: true}
}

func (f *form) setFocus(i int) {
	if len(f.fields) == 0 {
		return
	}
	i = (i + len(f.fields)) % len(f.fields)
	for j := range f.fields {
		if j == i {
			f.fields[j].input.Focus()
		} else {
			f.fields[j].input.Blur()
		}
	}
	f.focus = i
}

func (f *form) value(i int) string {
	if i < 0 || i >= len(f.fields) {
		return ""
	}
	return strings.TrimSpace(f.fields[i].input.Value())
}

func (f *form) on(i int) bool { return f.value(i) == "yes" }

func (f *form) update(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "tab", "down":
		f.setFocus(f.focus + 1)
		return nil
	case "shift+tab", "up":
		f.setFocus(f.focus - 1)
		return nil
	}
	cur := &f.fields[f.focus]
	if cur.toggle {
		if msg.String() == " " {
			if cur.input.Value() == "yes" {
				cur.input.SetValue("no")
			} else {
				cur.input.SetValue("yes")
			}
		}
		return nil
	}
	var cmd tea.Cmd
	cur.input, cmd = cur.input.Update(msg)
	return cmd
}

func (f *form) view(width int) string {
	labelW := 0
	for _, fl := range f.fields {
		labelW = max(labelW, lipgloss.Width(fl.label))
	}
	lines := []string{styleHeader.Render(f.title), ""}
	for i, fl := range f.fields {
		label := lipgloss.NewStyle().Width(labelW).Render(fl.label)
		marker := "  "
		if i == f.focus {
			marker = "> "
		}
		lines = append(lines, marker+label+"  "+fl.input.View())
	}
	lines = append(lines, "", styleMuted().Render("tab: next field  enter: save  esc: cancel"))
	w := min(max(width-4, 30), 72)
	return styleModal.Width(w).Render(strings.Join(lines, "\n"))
}
