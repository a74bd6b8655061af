// Package chat implements the terminal presentation layer: a Bubble Tea
// program that renders the conversation, captures input and image
// attachments, and drives the agent one turn at a time. Streamed
// fragments are handed from the network goroutine to the update loop
// over a channel; the agent itself is only read between turns.
package chat

import (
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"
	"go.uber.org/zap"

	"github.com/papercomputeco/banter/pkg/agent"
	"github.com/papercomputeco/banter/pkg/config"
	"github.com/papercomputeco/banter/pkg/llm"
)

// state tracks what the view is doing.
type state int

const (
	stateReady     state = iota // waiting for input
	stateStreaming              // a turn is in flight
)

// Model is the Bubble Tea model for the chat session.
type Model struct {
	agent   *agent.Agent
	cfg     *config.Manager
	logger  *zap.Logger
	presets map[string]string

	viewport viewport.Model
	input    textinput.Model
	spin     spinner.Model

	width  int
	height int
	ready  bool

	state state
	// streamBuf mirrors the fragments of the in-flight reply for
	// display only; the agent commits the authoritative text itself.
	streamBuf strings.Builder
	// turnView is the history snapshot rendered while a turn is in
	// flight. The streaming goroutine owns the agent until the turn
	// settles; the update loop must not touch it before then.
	turnView []llm.Message
	events   chan tea.Msg
	cancel   func()
	// quitting defers tea.Quit until the in-flight turn settles, so
	// the agent is never read while the goroutine still owns it.
	quitting bool

	// pendingImage is attached to the next message sent.
	pendingImage string

	status        string
	errText       string
	pendingReload bool
}

// Options wires the model's collaborators.
type Options struct {
	Agent   *agent.Agent
	Config  *config.Manager
	Logger  *zap.Logger
	Presets map[string]string
}

// NewModel creates the chat model.
func NewModel(opts Options) *Model {
	input := textinput.New()
	input.Placeholder = "Type a message, or /help for commands"
	input.Focus()
	input.CharLimit = 0

	spin := spinner.New()
	spin.Spinner = spinner.Dot

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Model{
		agent:   opts.Agent,
		cfg:     opts.Config,
		logger:  logger,
		presets: opts.Presets,
		input:   input,
		spin:    spin,
		state:   stateReady,
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return textinput.Blink
}

// glamourStyle picks a markdown style matching the terminal background.
func glamourStyle() string {
	if termenv.HasDarkBackground() {
		return "dark"
	}
	return "light"
}

// newRenderer builds a markdown renderer for the current width.
func newRenderer(width int) *glamour.TermRenderer {
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(glamourStyle()),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil
	}
	return r
}
