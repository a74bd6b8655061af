package chat

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/papercomputeco/banter/pkg/transcript"
)

// Run starts the chat session and blocks until it ends. On exit the
// transcript is exported best-effort when an export path is configured.
func Run(opts Options) error {
	m := NewModel(opts)
	p := tea.NewProgram(m, tea.WithAltScreen())

	// Config edits made while the session runs are handed to the
	// update loop as messages, never applied from the watcher
	// goroutine directly.
	opts.Config.Watch(func() {
		p.Send(configReloadedMsg{})
	})

	final, err := p.Run()
	if err != nil {
		return fmt.Errorf("run chat: %w", err)
	}

	fm, ok := final.(*Model)
	if !ok {
		return nil
	}
	if path := opts.Config.Chat().ExportPath; path != "" && fm.agent.HistoryCount() > 0 {
		if err := transcript.Save(path, fm.agent.Messages()); err != nil {
			fm.logger.Warn("transcript export on exit failed", zap.Error(err))
		} else {
			fm.logger.Info("transcript exported", zap.String("path", path))
		}
	}
	return nil
}
