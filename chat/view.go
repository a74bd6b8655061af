package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/papercomputeco/banter/pkg/llm"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))

	userLabelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))

	assistantLabelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))

	statusStyle = lipgloss.NewStyle().Faint(true)

	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	inputPromptStyle = lipgloss.NewStyle().Bold(true)
)

// View implements tea.Model.
func (m *Model) View() string {
	if !m.ready {
		return "loading..."
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render(m.headerLine()))
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.statusLine())
	b.WriteString("\n")
	b.WriteString(inputPromptStyle.Render("> ") + m.input.View())
	return b.String()
}

func (m *Model) headerLine() string {
	model := m.cfg.AI().Model
	return fmt.Sprintf("banter | %s (%d messages)", model, m.historyCount())
}

// historyCount counts conversation messages without touching the agent
// while a turn is in flight.
func (m *Model) historyCount() int {
	if m.state != stateStreaming {
		return m.agent.HistoryCount()
	}
	n := 0
	for _, msg := range m.turnView {
		if msg.Role != llm.RoleSystem {
			n++
		}
	}
	return n
}

func (m *Model) statusLine() string {
	switch {
	case m.errText != "":
		return errorStyle.Render("error: " + m.errText)
	case m.state == stateStreaming:
		return statusStyle.Render(m.spin.View() + " thinking... (esc to cancel)")
	case m.status != "":
		return statusStyle.Render(m.status)
	}
	return ""
}

// refreshViewport re-renders the conversation into the viewport. While
// a turn is streaming the history comes from the turnView snapshot and
// the in-flight reply from the display buffer; the agent itself
// belongs to the streaming goroutine until the turn settles.
func (m *Model) refreshViewport(streaming bool) {
	if !m.ready {
		return
	}
	var b strings.Builder

	msgs := m.turnView
	if !streaming {
		msgs = m.agent.Messages()
	}
	for _, msg := range msgs {
		switch msg.Role {
		case llm.RoleUser:
			b.WriteString(userLabelStyle.Render("You"))
			b.WriteString("\n")
			b.WriteString(renderUserContent(msg.Content))
			b.WriteString("\n\n")
		case llm.RoleAssistant:
			b.WriteString(assistantLabelStyle.Render("Assistant"))
			b.WriteString("\n")
			b.WriteString(m.renderMarkdown(msg.Content.PlainText()))
			b.WriteString("\n\n")
		}
	}

	if streaming {
		b.WriteString(assistantLabelStyle.Render("Assistant"))
		b.WriteString("\n")
		// Raw text while streaming; markdown is rendered once the
		// reply is committed.
		b.WriteString(m.streamBuf.String())
		b.WriteString("\n")
	}

	m.viewport.SetContent(b.String())
	if streaming {
		m.viewport.GotoBottom()
	}
}

// renderUserContent shows multimodal messages as their caption plus an
// image marker.
func renderUserContent(c llm.Content) string {
	if !c.IsMultimodal() {
		return c.PlainText()
	}
	text := c.PlainText()
	if text == "" {
		return "[image]"
	}
	return text + " [image]"
}

// renderMarkdown renders assistant markdown, falling back to raw text
// when the renderer is unavailable.
func (m *Model) renderMarkdown(text string) string {
	width := m.width - 2
	if width < 10 {
		width = 10
	}
	r := newRenderer(width)
	if r == nil {
		return text
	}
	out, err := r.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(out, "\n")
}
