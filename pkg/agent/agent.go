// Package agent maintains multi-turn conversation state for a chat
// session: an ordered message history in OpenAI SDK format
// (system -> user -> assistant -> user -> assistant), a pinned system
// prompt, and a bounded sliding window over past turns.
//
// The agent owns no network concerns. It talks to the upstream model
// through a Transport and integrates replies (whole or streamed) back
// into the history, rolling back the optimistic user append when a
// turn fails.
package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/papercomputeco/banter/pkg/llm"
)

// DefaultMaxHistory is the fallback bound on retained messages.
const DefaultMaxHistory = 50

// ErrNoTransport is returned by turn operations when no Transport has
// been configured.
var ErrNoTransport = errors.New("no transport configured")

// Transport sends a conversation to the upstream model. Implementations
// own all wire concerns, including inlining multimodal image references.
type Transport interface {
	// Chat sends the messages and returns the complete reply.
	Chat(ctx context.Context, messages []llm.Message) (*llm.ChatResponse, error)

	// ChatStream sends the messages and delivers reply text
	// incrementally to onFragment, in arrival order, until the stream
	// terminates.
	ChatStream(ctx context.Context, messages []llm.Message, onFragment func(string)) error
}

// Agent manages a conversation. It is owned by a single goroutine; the
// presentation layer serializes turns (one in flight at a time).
type Agent struct {
	messages   []llm.Message
	maxHistory int
	transport  Transport
	onFragment func(string)
	logger     *zap.Logger
}

// Option configures an Agent at construction time.
type Option func(*Agent)

// WithSystemPrompt pins a system prompt at index 0.
func WithSystemPrompt(prompt string) Option {
	return func(a *Agent) { a.SetSystemPrompt(prompt) }
}

// WithTransport sets the transport used by turn operations.
func WithTransport(t Transport) Option {
	return func(a *Agent) { a.transport = t }
}

// WithMaxHistory bounds the retained history. Non-positive values keep
// the default.
func WithMaxHistory(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.maxHistory = n
		}
	}
}

// WithOnFragment registers the observer invoked for each streamed
// fragment during a streaming turn.
func WithOnFragment(fn func(string)) Option {
	return func(a *Agent) { a.onFragment = fn }
}

// WithLogger sets the logger for trim and rollback events.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Agent) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New creates an Agent with an empty history.
func New(opts ...Option) *Agent {
	a := &Agent{
		maxHistory: DefaultMaxHistory,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// SetSystemPrompt pins the system prompt: the content of an existing
// index-0 system message is replaced, otherwise a new system message is
// inserted at index 0 ahead of the history.
func (a *Agent) SetSystemPrompt(prompt string) {
	if a.hasPinnedSystem() {
		a.messages[0].Content = llm.Text(prompt)
		return
	}
	a.messages = append([]llm.Message{llm.NewSystemMessage(prompt)}, a.messages...)
}

// SystemPrompt returns the pinned system prompt. The second return is
// false when no system message is pinned.
func (a *Agent) SystemPrompt() (string, bool) {
	if !a.hasPinnedSystem() {
		return "", false
	}
	return a.messages[0].Content.PlainText(), true
}

// SetTransport replaces the transport used by turn operations.
func (a *Agent) SetTransport(t Transport) { a.transport = t }

// SetOnFragment replaces the streaming fragment observer.
func (a *Agent) SetOnFragment(fn func(string)) { a.onFragment = fn }

// SetMaxHistory adjusts the history bound. Non-positive values are
// ignored. The new bound takes effect on the next non-silent append.
func (a *Agent) SetMaxHistory(n int) {
	if n > 0 {
		a.maxHistory = n
	}
}

// Append adds a message to the end of the history and trims the oldest
// turn when the bound is exceeded.
func (a *Agent) Append(role llm.Role, content llm.Content) {
	a.append(role, content, false)
}

// AppendSilent adds a message without triggering trimming. Used for
// provisional additions, such as the final commit of a streamed reply
// whose user half already trimmed for the pair.
func (a *Agent) AppendSilent(role llm.Role, content llm.Content) {
	a.append(role, content, true)
}

func (a *Agent) append(role llm.Role, content llm.Content, silent bool) {
	a.messages = append(a.messages, llm.Message{Role: role, Content: content})

	// The +1 reserves room for the pinned system message.
	if silent || len(a.messages) <= a.maxHistory+1 {
		return
	}
	if a.hasPinnedSystem() {
		if len(a.messages) > 2 {
			a.dropOldestPair()
		}
		return
	}
	// No pinned system message: drop the single oldest message. The
	// window shrinks asymmetrically versus the pinned case; this
	// mirrors the behaviour conversations have always had.
	a.messages = a.messages[1:]
	a.logger.Debug("trimmed oldest message", zap.Int("history", len(a.messages)))
}

// dropOldestPair removes the oldest surviving user/assistant pair, the
// two messages following the pinned system message. When only one
// non-system message would remain the pair degenerates to whatever is
// there, keeping the bound tight.
func (a *Agent) dropOldestPair() {
	n := 2
	if len(a.messages)-1 < n {
		n = len(a.messages) - 1
	}
	a.messages = append(a.messages[:1], a.messages[1+n:]...)
	a.logger.Debug("trimmed oldest pair", zap.Int("history", len(a.messages)))
}

// Messages returns a copy of the full history.
func (a *Agent) Messages() []llm.Message {
	out := make([]llm.Message, len(a.messages))
	copy(out, a.messages)
	return out
}

// Context returns the window of messages to send upstream. A
// non-positive limit means the full history. When a system message is
// pinned it is always included: a limit of 1 returns just the system
// message, and larger limits return the system message plus the last
// limit-1 messages of the remaining history.
func (a *Agent) Context(limit int) []llm.Message {
	if limit <= 0 {
		return a.Messages()
	}
	if a.hasPinnedSystem() {
		if limit <= 1 {
			return []llm.Message{a.messages[0]}
		}
		rest := a.messages[1:]
		if n := limit - 1; len(rest) > n {
			rest = rest[len(rest)-n:]
		}
		out := make([]llm.Message, 0, 1+len(rest))
		out = append(out, a.messages[0])
		return append(out, rest...)
	}
	msgs := a.messages
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]llm.Message, len(msgs))
	copy(out, msgs)
	return out
}

// Clear empties the history. With keepSystem, a pinned system message
// survives as the sole remaining message.
func (a *Agent) Clear(keepSystem bool) {
	if keepSystem && a.hasPinnedSystem() {
		a.messages = []llm.Message{a.messages[0]}
		return
	}
	a.messages = nil
}

// HistoryCount returns the number of messages excluding a pinned system
// message.
func (a *Agent) HistoryCount() int {
	n := len(a.messages)
	if a.hasPinnedSystem() {
		n--
	}
	if n < 0 {
		n = 0
	}
	return n
}

// MessagesByRole returns all messages with the given role, in order.
func (a *Agent) MessagesByRole(role llm.Role) []llm.Message {
	var out []llm.Message
	for _, msg := range a.messages {
		if msg.Role == role {
			out = append(out, msg)
		}
	}
	return out
}

// RecordTurn appends the user message, sends the full context through
// the transport, and appends the reply as an assistant message. On
// transport failure the user append is rolled back and no assistant
// message is recorded.
func (a *Agent) RecordTurn(ctx context.Context, userContent llm.Content) (string, error) {
	if a.transport == nil {
		return "", ErrNoTransport
	}

	a.Append(llm.RoleUser, userContent)

	resp, err := a.transport.Chat(ctx, a.Context(0))
	if err != nil {
		a.rollbackAppend()
		return "", fmt.Errorf("chat request: %w", err)
	}

	reply := resp.FirstContent()
	a.Append(llm.RoleAssistant, llm.Text(reply))
	return reply, nil
}

// RecordTurnStreaming appends the user message and streams the reply,
// forwarding each fragment to the registered observer while
// accumulating the full text. On clean termination the accumulated
// text is committed as a single assistant message (silently, since the
// user append already trimmed for the pair); an empty accumulation
// commits nothing. On failure, including cancellation mid-stream, the
// user append is rolled back and the partial accumulation is discarded.
func (a *Agent) RecordTurnStreaming(ctx context.Context, userContent llm.Content) (string, error) {
	if a.transport == nil {
		return "", ErrNoTransport
	}

	a.Append(llm.RoleUser, userContent)

	var full strings.Builder
	err := a.transport.ChatStream(ctx, a.Context(0), func(fragment string) {
		if fragment == "" {
			return
		}
		full.WriteString(fragment)
		if a.onFragment != nil {
			a.onFragment(fragment)
		}
	})
	if err != nil {
		a.rollbackAppend()
		a.logger.Debug("streaming turn failed",
			zap.Int("discarded_bytes", full.Len()),
			zap.Error(err),
		)
		return "", fmt.Errorf("chat stream: %w", err)
	}

	if full.Len() > 0 {
		a.AppendSilent(llm.RoleAssistant, llm.Text(full.String()))
	}
	return full.String(), nil
}

// rollbackAppend removes the most recent message, undoing the
// optimistic user append of a failed turn.
func (a *Agent) rollbackAppend() {
	if len(a.messages) == 0 {
		return
	}
	a.messages = a.messages[:len(a.messages)-1]
	a.logger.Debug("rolled back user message", zap.Int("history", len(a.messages)))
}

func (a *Agent) hasPinnedSystem() bool {
	return len(a.messages) > 0 && a.messages[0].Role == llm.RoleSystem
}

// String summarizes the agent for logs and debugging.
func (a *Agent) String() string {
	prompt, ok := a.SystemPrompt()
	if !ok {
		prompt = "<none>"
	} else if len(prompt) > 30 {
		prompt = prompt[:30] + "..."
	}
	return fmt.Sprintf("Agent(system=%q, history=%d messages)", prompt, a.HistoryCount())
}
