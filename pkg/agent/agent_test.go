package agent_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/banter/pkg/agent"
	"github.com/papercomputeco/banter/pkg/llm"
)

// fakeTransport scripts transport behaviour for turn tests and records
// the context snapshot it was handed.
type fakeTransport struct {
	reply     string
	fragments []string
	err       error

	gotMessages []llm.Message
}

func (f *fakeTransport) Chat(_ context.Context, messages []llm.Message) (*llm.ChatResponse, error) {
	f.gotMessages = messages
	if f.err != nil {
		return nil, f.err
	}
	return &llm.ChatResponse{
		Choices: []llm.Choice{{Message: llm.NewAssistantMessage(f.reply), FinishReason: "stop"}},
	}, nil
}

func (f *fakeTransport) ChatStream(_ context.Context, messages []llm.Message, onFragment func(string)) error {
	f.gotMessages = messages
	for _, fragment := range f.fragments {
		onFragment(fragment)
	}
	return f.err
}

func roles(msgs []llm.Message) []llm.Role {
	out := make([]llm.Role, len(msgs))
	for i, m := range msgs {
		out[i] = m.Role
	}
	return out
}

func texts(msgs []llm.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Content.PlainText()
	}
	return out
}

var _ = Describe("Agent", func() {
	Describe("SetSystemPrompt", func() {
		It("inserts a system message at index 0 ahead of existing history", func() {
			a := agent.New()
			a.Append(llm.RoleUser, llm.Text("hi"))
			a.SetSystemPrompt("S")

			msgs := a.Messages()
			Expect(roles(msgs)).To(Equal([]llm.Role{llm.RoleSystem, llm.RoleUser}))
			Expect(msgs[0].Content.PlainText()).To(Equal("S"))
		})

		It("replaces the content of an existing system message", func() {
			a := agent.New(agent.WithSystemPrompt("first"))
			a.SetSystemPrompt("second")

			Expect(a.Messages()).To(HaveLen(1))
			prompt, ok := a.SystemPrompt()
			Expect(ok).To(BeTrue())
			Expect(prompt).To(Equal("second"))
		})

		It("is idempotent for identical text", func() {
			a := agent.New(agent.WithSystemPrompt("S"))
			a.SetSystemPrompt("S")
			a.SetSystemPrompt("S")

			Expect(a.Messages()).To(HaveLen(1))
		})
	})

	Describe("SystemPrompt", func() {
		It("reports absence without error", func() {
			a := agent.New()
			_, ok := a.SystemPrompt()
			Expect(ok).To(BeFalse())
		})

		It("does not mistake a leading user message for a system prompt", func() {
			a := agent.New()
			a.Append(llm.RoleUser, llm.Text("not a prompt"))
			_, ok := a.SystemPrompt()
			Expect(ok).To(BeFalse())
		})
	})

	Describe("Append trimming", func() {
		Context("with a pinned system message", func() {
			It("keeps the history within maxHistory+1 after any non-silent append", func() {
				a := agent.New(agent.WithSystemPrompt("S"), agent.WithMaxHistory(4))
				for i := 0; i < 20; i++ {
					a.Append(llm.RoleUser, llm.Text("u"))
					a.Append(llm.RoleAssistant, llm.Text("a"))
					Expect(len(a.Messages())).To(BeNumerically("<=", 5))
				}
			})

			It("drops the oldest user/assistant pair in one operation", func() {
				a := agent.New(agent.WithSystemPrompt("S"), agent.WithMaxHistory(4))
				a.Append(llm.RoleUser, llm.Text("u1"))
				a.Append(llm.RoleAssistant, llm.Text("a1"))
				a.Append(llm.RoleUser, llm.Text("u2"))
				a.Append(llm.RoleAssistant, llm.Text("a2"))
				// Fifth non-system message exceeds the bound of 5 total.
				a.Append(llm.RoleUser, llm.Text("u3"))

				Expect(texts(a.Messages())).To(Equal([]string{"S", "u2", "a2", "u3"}))
			})

			It("never leaves a dangling assistant half-turn at index 1", func() {
				a := agent.New(agent.WithSystemPrompt("S"), agent.WithMaxHistory(4))
				for i := 0; i < 7; i++ {
					a.Append(llm.RoleUser, llm.Text("u"))
					a.Append(llm.RoleAssistant, llm.Text("a"))
				}
				msgs := a.Messages()
				Expect(msgs[1].Role).To(Equal(llm.RoleUser))
			})

			It("trims the pair immediately when maxHistory is 2", func() {
				a := agent.New(agent.WithSystemPrompt("S"), agent.WithMaxHistory(2))
				a.Append(llm.RoleUser, llm.Text("u1"))
				a.Append(llm.RoleAssistant, llm.Text("a1"))
				a.Append(llm.RoleUser, llm.Text("u2"))
				Expect(texts(a.Messages())).To(Equal([]string{"S", "u2"}))

				a.Append(llm.RoleAssistant, llm.Text("a2"))
				a.Append(llm.RoleUser, llm.Text("u3"))
				Expect(texts(a.Messages())).To(Equal([]string{"S", "u3"}))
				Expect(a.HistoryCount()).To(Equal(1))
			})
		})

		Context("without a pinned system message", func() {
			It("drops only the single oldest message", func() {
				a := agent.New(agent.WithMaxHistory(3))
				a.Append(llm.RoleUser, llm.Text("u1"))
				a.Append(llm.RoleAssistant, llm.Text("a1"))
				a.Append(llm.RoleUser, llm.Text("u2"))
				a.Append(llm.RoleAssistant, llm.Text("a2"))
				a.Append(llm.RoleUser, llm.Text("u3"))

				Expect(texts(a.Messages())).To(Equal([]string{"a1", "u2", "a2", "u3"}))
			})
		})

		Context("silent appends", func() {
			It("bypasses trimming, and a later non-silent append trims once", func() {
				a := agent.New(agent.WithSystemPrompt("S"), agent.WithMaxHistory(2))
				a.AppendSilent(llm.RoleUser, llm.Text("u1"))
				a.AppendSilent(llm.RoleAssistant, llm.Text("a1"))
				a.AppendSilent(llm.RoleUser, llm.Text("u2"))
				a.AppendSilent(llm.RoleAssistant, llm.Text("a2"))
				Expect(a.Messages()).To(HaveLen(5))

				// One pair, not two, comes off: trimming runs at most
				// once per non-silent append.
				a.Append(llm.RoleUser, llm.Text("u3"))
				Expect(texts(a.Messages())).To(Equal([]string{"S", "u2", "a2", "u3"}))
			})
		})
	})

	Describe("Context", func() {
		var a *agent.Agent

		BeforeEach(func() {
			a = agent.New(agent.WithSystemPrompt("S"))
			a.Append(llm.RoleUser, llm.Text("u1"))
			a.Append(llm.RoleAssistant, llm.Text("a1"))
			a.Append(llm.RoleUser, llm.Text("u2"))
		})

		It("returns the full history for a non-positive limit", func() {
			Expect(texts(a.Context(0))).To(Equal([]string{"S", "u1", "a1", "u2"}))
		})

		It("returns a copy the caller cannot use to mutate internals", func() {
			snapshot := a.Context(0)
			snapshot[0] = llm.NewUserMessage("tampered")

			prompt, ok := a.SystemPrompt()
			Expect(ok).To(BeTrue())
			Expect(prompt).To(Equal("S"))
		})

		It("returns exactly the system message for limit 1", func() {
			Expect(texts(a.Context(1))).To(Equal([]string{"S"}))
		})

		It("always includes the pinned system message in a window", func() {
			Expect(texts(a.Context(2))).To(Equal([]string{"S", "u2"}))
			Expect(texts(a.Context(3))).To(Equal([]string{"S", "a1", "u2"}))
		})

		It("does not duplicate the system message when the limit exceeds the history", func() {
			Expect(texts(a.Context(99))).To(Equal([]string{"S", "u1", "a1", "u2"}))
		})

		It("returns the last limit messages when no system message is pinned", func() {
			b := agent.New()
			b.Append(llm.RoleUser, llm.Text("u1"))
			b.Append(llm.RoleAssistant, llm.Text("a1"))
			b.Append(llm.RoleUser, llm.Text("u2"))

			Expect(texts(b.Context(2))).To(Equal([]string{"a1", "u2"}))
		})
	})

	Describe("Clear", func() {
		It("keeps the pinned system message by default semantics", func() {
			a := agent.New(agent.WithSystemPrompt("S"))
			a.Append(llm.RoleUser, llm.Text("u1"))
			a.Clear(true)

			Expect(texts(a.Messages())).To(Equal([]string{"S"}))
		})

		It("empties the history entirely when asked", func() {
			a := agent.New(agent.WithSystemPrompt("S"))
			a.Append(llm.RoleUser, llm.Text("u1"))
			a.Clear(false)

			Expect(a.Messages()).To(BeEmpty())
			_, ok := a.SystemPrompt()
			Expect(ok).To(BeFalse())
		})
	})

	Describe("HistoryCount and MessagesByRole", func() {
		It("excludes the pinned system message from the count", func() {
			a := agent.New(agent.WithSystemPrompt("S"))
			Expect(a.HistoryCount()).To(Equal(0))

			a.Append(llm.RoleUser, llm.Text("u1"))
			a.Append(llm.RoleAssistant, llm.Text("a1"))
			Expect(a.HistoryCount()).To(Equal(2))
		})

		It("filters by role preserving order", func() {
			a := agent.New(agent.WithSystemPrompt("S"))
			a.Append(llm.RoleUser, llm.Text("u1"))
			a.Append(llm.RoleAssistant, llm.Text("a1"))
			a.Append(llm.RoleUser, llm.Text("u2"))

			Expect(texts(a.MessagesByRole(llm.RoleUser))).To(Equal([]string{"u1", "u2"}))
			Expect(texts(a.MessagesByRole(llm.RoleAssistant))).To(Equal([]string{"a1"}))
			Expect(a.MessagesByRole(llm.RoleSystem)).To(HaveLen(1))
		})
	})

	Describe("RecordTurn", func() {
		It("fails fast when no transport is configured", func() {
			a := agent.New()
			_, err := a.RecordTurn(context.Background(), llm.Text("hi"))
			Expect(err).To(MatchError(agent.ErrNoTransport))
		})

		It("appends the user message and the reply on success", func() {
			transport := &fakeTransport{reply: "hello there"}
			a := agent.New(agent.WithSystemPrompt("S"), agent.WithTransport(transport))

			reply, err := a.RecordTurn(context.Background(), llm.Text("hi"))
			Expect(err).NotTo(HaveOccurred())
			Expect(reply).To(Equal("hello there"))
			Expect(texts(a.Messages())).To(Equal([]string{"S", "hi", "hello there"}))
		})

		It("hands the transport the full context including the new user message", func() {
			transport := &fakeTransport{reply: "ok"}
			a := agent.New(agent.WithSystemPrompt("S"), agent.WithTransport(transport))

			_, err := a.RecordTurn(context.Background(), llm.Text("hi"))
			Expect(err).NotTo(HaveOccurred())
			Expect(texts(transport.gotMessages)).To(Equal([]string{"S", "hi"}))
		})

		It("rolls back the user append on transport failure", func() {
			transport := &fakeTransport{err: errors.New("boom")}
			a := agent.New(agent.WithSystemPrompt("S"), agent.WithTransport(transport))
			before := len(a.Messages())

			_, err := a.RecordTurn(context.Background(), llm.Text("hi"))
			Expect(err).To(HaveOccurred())
			Expect(a.Messages()).To(HaveLen(before))
		})

		It("sends multimodal user content through untouched", func() {
			transport := &fakeTransport{reply: "a cat"}
			a := agent.New(agent.WithTransport(transport))

			content := llm.Parts(llm.TextPart("what is this?"), llm.ImagePart("/tmp/shot.png"))
			_, err := a.RecordTurn(context.Background(), content)
			Expect(err).NotTo(HaveOccurred())
			Expect(transport.gotMessages[0].Content.IsMultimodal()).To(BeTrue())
		})
	})

	Describe("RecordTurnStreaming", func() {
		It("forwards fragments in order and commits the accumulation once", func() {
			transport := &fakeTransport{fragments: []string{"Hel", "lo"}}
			var seen []string
			a := agent.New(
				agent.WithSystemPrompt("S"),
				agent.WithTransport(transport),
				agent.WithOnFragment(func(fragment string) { seen = append(seen, fragment) }),
			)

			reply, err := a.RecordTurnStreaming(context.Background(), llm.Text("hi"))
			Expect(err).NotTo(HaveOccurred())
			Expect(reply).To(Equal("Hello"))
			Expect(seen).To(Equal([]string{"Hel", "lo"}))
			Expect(texts(a.Messages())).To(Equal([]string{"S", "hi", "Hello"}))
		})

		It("skips empty fragments entirely", func() {
			transport := &fakeTransport{fragments: []string{"", "Hi", ""}}
			var seen []string
			a := agent.New(
				agent.WithTransport(transport),
				agent.WithOnFragment(func(fragment string) { seen = append(seen, fragment) }),
			)

			reply, err := a.RecordTurnStreaming(context.Background(), llm.Text("hi"))
			Expect(err).NotTo(HaveOccurred())
			Expect(reply).To(Equal("Hi"))
			Expect(seen).To(Equal([]string{"Hi"}))
		})

		It("commits no assistant message for an empty stream", func() {
			transport := &fakeTransport{}
			a := agent.New(agent.WithSystemPrompt("S"), agent.WithTransport(transport))

			reply, err := a.RecordTurnStreaming(context.Background(), llm.Text("hi"))
			Expect(err).NotTo(HaveOccurred())
			Expect(reply).To(Equal(""))
			Expect(texts(a.Messages())).To(Equal([]string{"S", "hi"}))
		})

		It("discards partial accumulation and rolls back on mid-stream failure", func() {
			transport := &fakeTransport{fragments: []string{"par", "tial"}, err: context.Canceled}
			a := agent.New(agent.WithSystemPrompt("S"), agent.WithTransport(transport))

			_, err := a.RecordTurnStreaming(context.Background(), llm.Text("hi"))
			Expect(err).To(MatchError(context.Canceled))
			Expect(texts(a.Messages())).To(Equal([]string{"S"}))
		})

		It("works without a registered observer", func() {
			transport := &fakeTransport{fragments: []string{"ok"}}
			a := agent.New(agent.WithTransport(transport))

			reply, err := a.RecordTurnStreaming(context.Background(), llm.Text("hi"))
			Expect(err).NotTo(HaveOccurred())
			Expect(reply).To(Equal("ok"))
		})
	})
})
