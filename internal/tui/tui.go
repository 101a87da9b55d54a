package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
)

// Run starts the interactive TUI and blocks until the user quits. The last
// screen is saved to deps.KV on exit.
func Run(ctx context.Context, deps Deps) error {
	applyThemePreference()
	applyColorProfilePreference()

	m := newAppModel(ctx, deps)
	m.live = true
	defer m.gate.Close()

	final, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if fm, ok := final.(appModel); ok {
		fm.teardownList()
	}
	return err
}
