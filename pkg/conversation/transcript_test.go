package conversation_test

import (
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatstream/pkg/conversation"
)

var _ = Describe("Transcript", func() {
	var t *conversation.Transcript

	BeforeEach(func() {
		t = conversation.NewTranscript("conv-1", []conversation.Message{
			conversation.NewMessage("conv-1", conversation.RoleUser, "hi"),
			conversation.NewMessage("conv-1", conversation.RoleAssistant, "hello"),
		})
	})

	It("starts from history", func() {
		Expect(t.ConversationID()).To(Equal("conv-1"))
		Expect(t.Len()).To(Equal(2))
		_, ok := t.Pending()
		Expect(ok).To(BeFalse())
	})

	It("appends user messages in order", func() {
		m := t.AppendUser("next")
		Expect(m.Role).To(Equal(conversation.RoleUser))
		Expect(m.ConversationID).To(Equal("conv-1"))
		Expect(m.ID).NotTo(BeEmpty())

		msgs := t.Messages()
		Expect(msgs).To(HaveLen(3))
		Expect(msgs[2].Content).To(Equal("next"))
	})

	Describe("the pending placeholder", func() {
		BeforeEach(func() {
			t.AppendUser("question")
			Expect(t.Begin()).To(Succeed())
		})

		It("is shown last in snapshots while pending", func() {
			t.AppendToken("Bon")
			t.AppendToken("jour")

			msgs := t.Messages()
			Expect(msgs).To(HaveLen(4))
			last := msgs[3]
			Expect(last.Pending).To(BeTrue())
			Expect(last.Role).To(Equal(conversation.RoleAssistant))
			Expect(last.Content).To(Equal("Bonjour"))
			Expect(t.Len()).To(Equal(3))
		})

		It("allows only one at a time", func() {
			Expect(t.Begin()).To(MatchError(conversation.ErrPending))
		})

		It("becomes a finalized message on commit", func() {
			t.AppendToken("answer")

			m, ok := t.Commit()
			Expect(ok).To(BeTrue())
			Expect(m.Content).To(Equal("answer"))
			Expect(m.Pending).To(BeFalse())

			msgs := t.Messages()
			Expect(msgs).To(HaveLen(4))
			Expect(msgs[3].Pending).To(BeFalse())
			_, ok = t.Pending()
			Expect(ok).To(BeFalse())
		})

		It("is removed without a trace on discard", func() {
			t.AppendToken("half an ans")

			partial, ok := t.Discard()
			Expect(ok).To(BeTrue())
			Expect(partial).To(Equal("half an ans"))
			Expect(t.Messages()).To(HaveLen(3))
		})

		It("can begin again after it was resolved", func() {
			_, ok := t.Discard()
			Expect(ok).To(BeTrue())
			Expect(t.Begin()).To(Succeed())
		})
	})

	It("ignores tokens and resolution without a placeholder", func() {
		Expect(t.AppendToken("stray")).To(BeFalse())
		_, ok := t.Commit()
		Expect(ok).To(BeFalse())
		_, ok = t.Discard()
		Expect(ok).To(BeFalse())
		Expect(t.Len()).To(Equal(2))
	})

	It("drops pending flags from history", func() {
		m := conversation.NewMessage("conv-1", conversation.RoleAssistant, "x")
		m.Pending = true
		tr := conversation.NewTranscript("conv-1", []conversation.Message{m})
		Expect(tr.Messages()[0].Pending).To(BeFalse())
	})

	It("returns snapshots that do not alias the transcript", func() {
		msgs := t.Messages()
		msgs[0].Content = "mutated"
		Expect(t.Messages()[0].Content).To(Equal("hi"))
	})

	It("serializes concurrent token appends", func() {
		Expect(t.Begin()).To(Succeed())

		var wg sync.WaitGroup
		for range 50 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				t.AppendToken("x")
				_ = t.Messages()
			}()
		}
		wg.Wait()

		text, ok := t.Pending()
		Expect(ok).To(BeTrue())
		Expect(text).To(HaveLen(50))
	})
})

var _ = Describe("Role", func() {
	It("validates known roles", func() {
		Expect(conversation.RoleUser.Valid()).To(BeTrue())
		Expect(conversation.RoleAssistant.Valid()).To(BeTrue())
		Expect(conversation.RoleSystem.Valid()).To(BeTrue())
		Expect(conversation.Role("tool").Valid()).To(BeFalse())
	})
})
