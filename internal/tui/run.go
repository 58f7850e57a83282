package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
)

// Run opens the editor in the terminal until the user quits or ctx ends.
func Run(ctx context.Context, opts Options) error {
	m, err := New(opts)
	if err != nil {
		return err
	}
	if err := m.Attach(ctx); err != nil {
		return err
	}
	defer m.Detach()

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	m.events.setSend(p.Send)
	defer m.events.setSend(nil)

	_, err = p.Run()
	return err
}
