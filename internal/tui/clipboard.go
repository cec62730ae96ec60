package tui

import (
	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
)

// clipboardCopyMsg is sent after a clipboard copy operation.
type clipboardCopyMsg struct {
	content string
	err     error
}

// writeClipboard is replaced in tests.
var writeClipboard = clipboard.WriteAll

// copyToClipboard returns a command that copies text and reports the
// outcome with a clipboardCopyMsg.
func copyToClipboard(text string) tea.Cmd {
	return func() tea.Msg {
		return clipboardCopyMsg{content: text, err: writeClipboard(text)}
	}
}
