package tuicmder

import (
	"context"
	"errors"
	"io"
	"strings"

	bubbletea "github.com/charmbracelet/bubbletea"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatstream/pkg/chat"
	"github.com/papercomputeco/chatstream/pkg/conversation"
)

type fakeStreamer struct {
	body  string
	block bool
}

func (f *fakeStreamer) OpenStream(ctx context.Context, _, _ string) (io.ReadCloser, error) {
	if f.block {
		return &blockingBody{ctx: ctx}, nil
	}
	return io.NopCloser(strings.NewReader(f.body)), nil
}

// blockingBody never yields data and fails once ctx is cancelled.
type blockingBody struct {
	ctx context.Context
}

func (b *blockingBody) Read([]byte) (int, error) {
	<-b.ctx.Done()
	return 0, b.ctx.Err()
}

func (b *blockingBody) Close() error { return nil }

func key(t bubbletea.KeyType) bubbletea.KeyMsg {
	return bubbletea.KeyMsg{Type: t}
}

func runes(s string) bubbletea.KeyMsg {
	return bubbletea.KeyMsg{Type: bubbletea.KeyRunes, Runes: []rune(s)}
}

func update(m tuiModel, msg bubbletea.Msg) (tuiModel, bubbletea.Cmd) {
	next, cmd := m.Update(msg)
	return next.(tuiModel), cmd
}

var _ = Describe("tuiModel", func() {
	var (
		ctx      context.Context
		streamer *fakeStreamer
		svc      *chat.Service
		m        tuiModel
	)

	BeforeEach(func() {
		ctx = context.Background()
		streamer = &fakeStreamer{body: "event: token\ndata: Hello\n\nevent: done\ndata:\n\n"}
		svc = chat.NewService(streamer, conversation.NewTranscript("conv-1", nil))
		m = newTUIModel(ctx, svc, nil)
	})

	AfterEach(func() {
		svc.Close()
	})

	submit := func(text string) tuiModel {
		m.input.SetValue(text)
		next, cmd := update(m, key(bubbletea.KeyEnter))
		Expect(cmd).NotTo(BeNil())
		return next
	}

	It("shows a hint for an empty conversation", func() {
		Expect(m.View()).To(ContainSubstring("No messages yet"))
		Expect(m.View()).To(ContainSubstring("conv-1"))
	})

	It("ignores Enter on blank input", func() {
		m.input.SetValue("   ")
		next, cmd := update(m, key(bubbletea.KeyEnter))
		Expect(cmd).To(BeNil())
		Expect(next.turn).To(BeNil())
	})

	It("streams a reply and commits it when the turn completes", func() {
		m = submit("hi")
		Expect(m.turn).NotTo(BeNil())
		Expect(m.input.Value()).To(BeEmpty())

		res := m.turn.Wait()
		Expect(res.Outcome).To(Equal(chat.OutcomeCompleted))

		m, _ = update(m, turnDoneMsg{result: res})
		Expect(m.turn).To(BeNil())
		Expect(m.status).To(BeEmpty())
		Expect(m.input.Focused()).To(BeTrue())

		msgs := svc.Transcript().Messages()
		Expect(msgs).To(HaveLen(2))
		Expect(m.rendered).To(HaveKey(msgs[1].ID))
	})

	It("disables the input while a reply streams", func() {
		streamer.block = true
		m = submit("hi")

		m, _ = update(m, runes("x"))
		Expect(m.input.Value()).To(BeEmpty())
		Expect(m.input.Focused()).To(BeFalse())

		next, cmd := update(m, key(bubbletea.KeyEnter))
		Expect(cmd).To(BeNil())
		Expect(next.turn).To(Equal(m.turn))
	})

	It("cancels the streaming reply on Esc", func() {
		streamer.block = true
		m = submit("hi")

		m2, cmd := update(m, key(bubbletea.KeyEsc))
		Expect(cmd).NotTo(BeNil())
		Expect(cmd()).To(Equal(cancelledMsg{}))
		Expect(svc.Streaming()).To(BeFalse())

		res := m2.turn.Wait()
		Expect(res.Outcome).To(Equal(chat.OutcomeCancelled))

		m2, _ = update(m2, turnDoneMsg{result: res})
		Expect(m2.status).To(Equal("reply cancelled"))
		Expect(m2.statusErr).To(BeFalse())
		Expect(svc.Transcript().Messages()).To(HaveLen(1))
	})

	It("does nothing on Esc while idle", func() {
		_, cmd := update(m, key(bubbletea.KeyEsc))
		Expect(cmd).To(BeNil())
	})

	It("shows server errors in the status line", func() {
		streamer.body = "event: error\ndata: boom\n\n"
		m = submit("hi")

		m, _ = update(m, turnDoneMsg{result: m.turn.Wait()})
		Expect(m.statusErr).To(BeTrue())
		Expect(m.status).To(Equal("server error: boom"))
		Expect(m.View()).To(ContainSubstring("server error: boom"))
	})

	It("warns about a reply that ended without done", func() {
		streamer.body = "event: token\ndata: par\n\n"
		m = submit("hi")

		m, _ = update(m, turnDoneMsg{result: m.turn.Wait()})
		Expect(m.statusErr).To(BeFalse())
		Expect(m.status).To(ContainSubstring("discarded"))
	})

	It("resizes the viewport with the window", func() {
		m, _ = update(m, bubbletea.WindowSizeMsg{Width: 120, Height: 40})
		Expect(m.viewport.Width).To(Equal(120))
		Expect(m.viewport.Height).To(Equal(40 - chromeLines))
	})

	It("quits on Ctrl+C", func() {
		_, cmd := update(m, key(bubbletea.KeyCtrlC))
		Expect(cmd).NotTo(BeNil())
		Expect(cmd()).To(Equal(bubbletea.Quit()))

		_, err := svc.Submit(ctx, "late", nil)
		Expect(err).To(MatchError(chat.ErrClosed))
	})

	Describe("new conversation", func() {
		It("switches to the created conversation and remembers it", func() {
			var remembered string
			m = newTUIModel(ctx, svc, func(context.Context) (*conversation.Transcript, error) {
				return conversation.NewTranscript("conv-2", nil), nil
			})
			m.remember = func(id string) error {
				remembered = id
				return nil
			}

			_, cmd := update(m, key(bubbletea.KeyCtrlN))
			Expect(cmd).NotTo(BeNil())

			m, _ = update(m, cmd())
			Expect(svc.Transcript().ConversationID()).To(Equal("conv-2"))
			Expect(remembered).To(Equal("conv-2"))
			Expect(m.status).To(ContainSubstring("conv-2"))
		})

		It("reports a failure to create one", func() {
			m = newTUIModel(ctx, svc, func(context.Context) (*conversation.Transcript, error) {
				return nil, errors.New("backend down")
			})

			_, cmd := update(m, key(bubbletea.KeyCtrlN))
			m, _ = update(m, cmd())
			Expect(m.statusErr).To(BeTrue())
			Expect(m.status).To(Equal("backend down"))
			Expect(svc.Transcript().ConversationID()).To(Equal("conv-1"))
		})
	})

	Describe("waitForTurn", func() {
		It("asks for a redraw when tokens arrived", func() {
			streamer.block = true
			m = submit("hi")

			m.refresh <- struct{}{}
			Expect(waitForTurn(m.turn, m.refresh)()).To(Equal(refreshMsg{}))
		})

		It("delivers the result once the turn ends", func() {
			m = submit("hi")
			<-m.turn.Done()

			// Drain the redraw request left by the token.
			select {
			case <-m.refresh:
			default:
			}

			msg := waitForTurn(m.turn, m.refresh)()
			Expect(msg).To(BeAssignableToTypeOf(turnDoneMsg{}))
			Expect(msg.(turnDoneMsg).result.Outcome).To(Equal(chat.OutcomeCompleted))
		})
	})

	Describe("renderHeaderLine", func() {
		It("pads between the two sides", func() {
			Expect(renderHeaderLine(10, "ab", "cd")).To(Equal("ab      cd"))
		})

		It("keeps a single space when too narrow", func() {
			Expect(renderHeaderLine(2, "ab", "cd")).To(Equal("ab cd"))
		})
	})
})
