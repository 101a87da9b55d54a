package tui

import (
	"strings"

	"grocer-cli/internal/assistant"
	"grocer-cli/internal/gate"
	"grocer-cli/internal/model"

	"github.com/charmbracelet/lipgloss"
	xansi "github.com/charmbracelet/x/ansi"
	"github.com/muesli/reflow/wordwrap"
)

func (m appModel) View() string {
	switch m.gate.Decide().Render {
	case gate.RenderLoading:
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center,
			m.spinner.View()+" Checking session…")
	case gate.RenderLogin:
		return m.viewLogin()
	}

	bodyH := max(m.height-3, 1)
	var body string
	switch {
	case m.form != nil:
		body = lipgloss.Place(m.width, bodyH, lipgloss.Center, lipgloss.Center, m.form.view(m.width))
	case m.view == viewList && m.showChat:
		listW := max(m.width-m.chatWidth()-1, 20)
		body = lipgloss.JoinHorizontal(lipgloss.Top,
			lipgloss.NewStyle().Width(listW).Height(bodyH).Render(m.viewListBody(listW, bodyH)),
			" ",
			m.viewChat(bodyH),
		)
	case m.view == viewList:
		body = m.viewListBody(m.width, bodyH)
	default:
		body = m.listsList.View()
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.viewHeader(), body, m.viewFooter())
}

func (m appModel) viewHeader() string {
	parts := []string{"grocer"}
	if u := m.deps.Session.User(); u != nil {
		parts = append(parts, u.Username)
	}
	if m.sync != nil {
		if l, ok := m.sync.List(); ok {
			parts = append(parts, l.Name)
		}
	}
	line := styleHeader.Render(strings.Join(parts, " · "))
	if m.busy() {
		line += " " + m.spinner.View()
	}
	return xansi.Truncate(line, m.width, "…")
}

func (m appModel) viewFooter() string {
	var line string
	switch {
	case m.confirm != nil:
		line = styleWarn.Render(m.confirm.prompt)
	case m.status != "" && m.statusErr:
		line = styleError.Render(m.status)
	case m.status != "":
		line = styleOK.Render(m.status)
	default:
		line = styleMuted().Render(m.keyHints())
	}
	return xansi.Truncate(line, m.width, "…")
}

func (m appModel) keyHints() string {
	switch {
	case m.form != nil:
		return "tab: next  enter: save  esc: cancel"
	case m.view == viewList && m.chatFocus:
		return "enter: send  pgup/pgdn: scroll  esc: back to list"
	case m.view == viewList:
		return "a: add  e: edit  space: tick  d: delete  C: category  c: chat  r: refresh  esc: lists  q: quit"
	default:
		return "enter: open  n: new  m: add member  d: delete  /: filter  L: logout  q: quit"
	}
}

func (m appModel) viewLogin() string {
	box := m.login.view(m.width)
	var msg string
	switch {
	case m.loggingIn:
		msg = m.spinner.View() + " Signing in…"
	case m.status != "" && m.statusErr:
		msg = styleError.Render(m.status)
	case m.status != "":
		msg = styleOK.Render(m.status)
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center,
		lipgloss.JoinVertical(lipgloss.Center, box, msg))
}

func (m appModel) viewListBody(width, height int) string {
	s := m.sync
	if s == nil {
		return ""
	}
	var lines []string
	if banner := s.Err(); banner != "" {
		lines = append(lines, styleError.Render(xansi.Truncate(banner, width, "…")))
	}
	if _, ok := s.List(); !ok {
		if s.Loading() {
			lines = append(lines, styleMuted().Render("Loading list…"))
		}
		return strings.Join(lines, "\n")
	}

	rows := rowsOf(s.Grouping())
	if len(rows) == 0 {
		lines = append(lines, styleMuted().Render("No items yet. Press a to add one."))
		return strings.Join(lines, "\n")
	}
	cursor := clamp(m.cursor, 0, len(rows)-1)
	avail := max(height-len(lines), 1)
	start := 0
	if cursor >= avail {
		start = cursor - avail + 1
	}
	editing, isEditing := s.Editing()
	for i := start; i < len(rows) && i < start+avail; i++ {
		line := renderRow(rows[i], isEditing && !rows[i].header && rows[i].item.ID == editing)
		line = xansi.Truncate(line, width-2, "…")
		if i == cursor {
			line = styleSelected.Render("> " + line)
		} else {
			line = "  " + line
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func renderRow(r row, editing bool) string {
	if r.header {
		name := styleCategory.Render(r.category.Name)
		if r.category.ID < 0 {
			name = stylePending.Render(name + " (saving)")
		}
		return name
	}
	return "  " + renderItem(r.item, editing)
}

func renderItem(it model.Item, editing bool) string {
	box := "[ ]"
	if it.IsTicked {
		box = "[x]"
	}
	name := it.Name
	switch {
	case it.IsTicked:
		name = styleTicked.Render(name)
	case it.ID < 0:
		name = stylePending.Render(name)
	}
	line := box + " " + name
	if it.PriceMatch {
		line += " " + styleWarn.Render("$")
	}
	if it.Note != nil && strings.TrimSpace(*it.Note) != "" {
		line += "  " + styleMuted().Render(*it.Note)
	}
	if editing {
		line += "  " + styleMuted().Render("(editing)")
	}
	return line
}

func (m appModel) viewChat(height int) string {
	w := m.chatWidth()
	title := styleHeader.Render("Assistant")
	input := m.chatInput.View()
	if !m.chatFocus {
		input = styleMuted().Render("tab to type")
	}
	return lipgloss.NewStyle().Width(w).Height(height).Render(
		lipgloss.JoinVertical(lipgloss.Left, title, m.chatView.View(), "> "+input),
	)
}

// refreshChat re-renders the transcript into the viewport, pinned to the
// newest turn.
func (m *appModel) refreshChat() {
	if m.chat == nil {
		m.chatView.SetContent("")
		return
	}
	w := max(m.chatView.Width-1, 10)
	style := ""
	if m.deps.Config != nil && m.deps.Config.TUI != nil {
		style = m.deps.Config.TUI.MarkdownStyle
	}
	var parts []string
	for _, msg := range m.chat.Transcript() {
		switch {
		case msg.Role == model.RoleUser:
			parts = append(parts, styleHeader.Render("you")+"\n"+wordwrap.String(msg.Content, w))
		case assistant.IsError(msg):
			parts = append(parts, styleError.Render(wordwrap.String(msg.Content, w)))
		default:
			parts = append(parts, renderMarkdown(msg.Content, style, w))
		}
	}
	if m.chat.Pending() {
		parts = append(parts, styleMuted().Render("thinking…"))
	}
	m.chatView.SetContent(strings.Join(parts, "\n\n"))
	m.chatView.GotoBottom()
}
