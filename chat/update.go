package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/papercomputeco/banter/pkg/client"
	"github.com/papercomputeco/banter/pkg/llm"
	"github.com/papercomputeco/banter/pkg/transcript"
)

// Messages produced by the streaming goroutine and delivered through
// the event channel.
type (
	// streamFragmentMsg carries one fragment of the in-flight reply.
	streamFragmentMsg struct{ text string }

	// turnDoneMsg signals the end of a turn, success or failure.
	turnDoneMsg struct {
		reply string
		err   error
	}

	// configReloadedMsg is sent by the config watcher.
	configReloadedMsg struct{}
)

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.resize(msg), nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case streamFragmentMsg:
		m.streamBuf.WriteString(msg.text)
		m.refreshViewport(true)
		return m, waitForEvent(m.events)

	case turnDoneMsg:
		return m.finishTurn(msg)

	case configReloadedMsg:
		if m.state != stateReady {
			// Applied after the in-flight turn settles.
			m.pendingReload = true
			return m, nil
		}
		m.applyConfig()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) resize(msg tea.WindowSizeMsg) *Model {
	m.width = msg.Width
	m.height = msg.Height

	chromeHeight := 4 // header, status, input, padding
	if !m.ready {
		m.viewport = viewport.New(msg.Width, msg.Height-chromeHeight)
		m.ready = true
	} else {
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height - chromeHeight
	}
	m.input.Width = msg.Width - 4
	m.refreshViewport(m.state == stateStreaming)
	return m
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		if m.state == stateStreaming {
			// Quit once the turn settles; quitting mid-turn would
			// leave the goroutine mutating the agent behind us.
			m.quitting = true
			if m.cancel != nil {
				m.cancel()
			}
			m.status = "cancelling..."
			return m, nil
		}
		return m, tea.Quit

	case tea.KeyEsc:
		if m.state == stateStreaming && m.cancel != nil {
			m.cancel()
			m.status = "cancelling..."
			return m, nil
		}
		return m, nil

	case tea.KeyEnter:
		if m.state != stateReady {
			// Single turn in flight at a time; input stays disabled.
			return m, nil
		}
		return m.submit()

	case tea.KeyPgUp, tea.KeyPgDown, tea.KeyUp, tea.KeyDown:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	if m.state != stateReady {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit handles the enter key: slash commands run inline, anything
// else becomes the next turn.
func (m *Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}
	m.errText = ""
	m.status = ""

	if strings.HasPrefix(text, "/") {
		return m.runCommand(text)
	}

	m.input.SetValue("")
	return m, m.startTurn(m.buildContent(text))
}

// buildContent wraps the text, attaching a pending image as a
// multimodal part list.
func (m *Model) buildContent(text string) llm.Content {
	if m.pendingImage == "" {
		return llm.Text(text)
	}
	path := m.pendingImage
	m.pendingImage = ""
	return llm.Parts(llm.TextPart(text), llm.ImagePart(path))
}

// startTurn launches the streaming turn in a goroutine. Fragments and
// the terminal result arrive as messages over the event channel. The
// goroutine owns the agent until it sends turnDoneMsg; the update loop
// renders from the turnView snapshot in the meantime.
func (m *Model) startTurn(content llm.Content) tea.Cmd {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.state = stateStreaming
	m.streamBuf.Reset()

	// Snapshot taken before the goroutine starts, with the outgoing
	// user message already in place.
	m.turnView = append(m.agent.Messages(), llm.Message{Role: llm.RoleUser, Content: content})

	ch := make(chan tea.Msg, 64)
	m.events = ch
	m.agent.SetOnFragment(func(fragment string) {
		ch <- streamFragmentMsg{text: fragment}
	})

	go func() {
		reply, err := m.agent.RecordTurnStreaming(ctx, content)
		ch <- turnDoneMsg{reply: reply, err: err}
	}()

	m.refreshViewport(true)
	return tea.Batch(m.spin.Tick, waitForEvent(ch))
}

// waitForEvent delivers the next message from the streaming goroutine.
func waitForEvent(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-ch
	}
}

func (m *Model) finishTurn(msg turnDoneMsg) (tea.Model, tea.Cmd) {
	m.state = stateReady
	m.cancel = nil
	m.events = nil
	m.turnView = nil
	m.streamBuf.Reset()

	if m.quitting {
		return m, tea.Quit
	}

	if msg.err != nil {
		if errors.Is(msg.err, context.Canceled) {
			m.status = "turn cancelled, partial reply discarded"
		} else {
			m.errText = msg.err.Error()
			m.logger.Error("turn failed", zap.Error(msg.err))
		}
	}

	if m.pendingReload {
		m.pendingReload = false
		m.applyConfig()
	}

	m.refreshViewport(false)
	m.viewport.GotoBottom()
	return m, nil
}

// applyConfig rebuilds the transport and history bound from the
// current configuration.
func (m *Model) applyConfig() {
	ai := m.cfg.AI()
	m.agent.SetTransport(client.New(client.Config{
		BaseURL:     ai.BaseURL,
		APIKey:      ai.APIKey,
		Model:       ai.Model,
		Temperature: ai.Temperature,
	}, m.logger))
	if n := m.cfg.Chat().MaxHistory; n > 0 {
		m.agent.SetMaxHistory(n)
	}
	m.status = "configuration reloaded"
	m.logger.Info("applied config change", zap.String("model", ai.Model))
}

// runCommand executes a slash command.
func (m *Model) runCommand(text string) (tea.Model, tea.Cmd) {
	m.input.SetValue("")
	name, arg := parseCommand(text)

	switch name {
	case "quit", "exit", "q":
		return m, tea.Quit

	case "clear":
		m.agent.Clear(true)
		m.status = "history cleared"

	case "system":
		if arg == "" {
			if prompt, ok := m.agent.SystemPrompt(); ok {
				m.status = "system: " + prompt
			} else {
				m.status = "no system prompt set"
			}
			break
		}
		m.agent.SetSystemPrompt(arg)
		m.status = "system prompt updated"

	case "preset":
		if arg == "" {
			names := make([]string, 0, len(m.presets))
			for n := range m.presets {
				names = append(names, n)
			}
			m.status = "presets: " + strings.Join(names, ", ")
			break
		}
		prompt, ok := m.presets[arg]
		if !ok {
			m.errText = fmt.Sprintf("unknown preset %q", arg)
			break
		}
		m.agent.SetSystemPrompt(prompt)
		m.status = "preset applied: " + arg

	case "image":
		if arg == "" {
			m.errText = "usage: /image <path>"
			break
		}
		m.pendingImage = arg
		m.status = "image attached to next message: " + arg

	case "export":
		path := arg
		if path == "" {
			path = m.cfg.Chat().ExportPath
		}
		if path == "" {
			m.errText = "usage: /export <path> (or set chat.exportpath)"
			break
		}
		if err := transcript.Save(path, m.agent.Messages()); err != nil {
			m.errText = err.Error()
			m.logger.Error("transcript export failed", zap.Error(err))
			break
		}
		m.status = "transcript saved: " + path

	case "help":
		m.status = "/clear /system <prompt> /preset <name> /image <path> /export [path] /quit"

	default:
		m.errText = fmt.Sprintf("unknown command /%s", name)
	}

	m.refreshViewport(false)
	return m, nil
}

// parseCommand splits "/name arg..." into its name and argument rest.
func parseCommand(text string) (name, arg string) {
	text = strings.TrimPrefix(text, "/")
	fields := strings.SplitN(text, " ", 2)
	name = strings.ToLower(strings.TrimSpace(fields[0]))
	if len(fields) == 2 {
		arg = strings.TrimSpace(fields[1])
	}
	return name, arg
}
