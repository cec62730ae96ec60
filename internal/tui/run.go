package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
)

// Run starts the monitor and blocks until the user quits or ctx is done.
func Run(ctx context.Context, ctrl Controller, opts Options) error {
	model := NewModel(ctx, ctrl, opts)
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	_, err := program.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
