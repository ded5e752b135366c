package tui

import (
	"fmt"

	"evmarket/pkg/watcher"

	tea "github.com/charmbracelet/bubbletea"
)

// Start runs the terminal UI until the user quits. accounts and w may be nil.
func Start(mk Market, accounts Accounts, w *watcher.Watcher, decimals int, version string) error {
	Version = version
	m := initialModel(mk, accounts, w, decimals)
	defer m.close()

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("alas, there's been an error: %w", err)
	}
	return nil
}
