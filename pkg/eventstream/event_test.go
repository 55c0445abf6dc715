package eventstream_test

import (
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatstream/pkg/conversation"
	"github.com/papercomputeco/chatstream/pkg/eventstream"
)

var _ = Describe("Event", func() {
	var (
		now       time.Time
		user      conversation.Message
		assistant conversation.Message
	)

	BeforeEach(func() {
		now = time.Unix(1735689600, 0).UTC()
		user = conversation.NewMessage("conv-1", conversation.RoleUser, "hello")
		assistant = conversation.NewMessage("conv-1", conversation.RoleAssistant, "hi")
	})

	It("marshals TurnCompletedEvent with expected top-level keys", func() {
		event := eventstream.NewTurnCompletedEvent(
			eventstream.EventSource{Service: "chatstream-api", Generator: "echo"},
			user, assistant,
			eventstream.TurnRequestMeta{StartedAt: now.Add(-2 * time.Second), CompletedAt: now, Tokens: 3},
		)

		payload, err := json.Marshal(event)
		Expect(err).NotTo(HaveOccurred())

		var got map[string]any
		Expect(json.Unmarshal(payload, &got)).To(Succeed())

		Expect(got).To(HaveKey("schema_version"))
		Expect(got).To(HaveKey("event_type"))
		Expect(got).To(HaveKey("event_id"))
		Expect(got).To(HaveKey("emitted_at"))
		Expect(got).To(HaveKey("source"))
		Expect(got).To(HaveKey("conversation_id"))
		Expect(got).To(HaveKey("request_meta"))
		Expect(got).To(HaveKey("user"))
		Expect(got).To(HaveKey("assistant"))
	})

	It("fills in the envelope", func() {
		event := eventstream.NewTurnCompletedEvent(
			eventstream.EventSource{Service: "chatstream-api"},
			user, assistant,
			eventstream.TurnRequestMeta{StartedAt: now.Add(-1500 * time.Millisecond), CompletedAt: now},
		)

		Expect(event.SchemaVersion).To(Equal(eventstream.SchemaVersionV1))
		Expect(event.EventType).To(Equal(eventstream.EventTypeTurnCompleted))
		Expect(event.EventID).NotTo(BeEmpty())
		Expect(event.ConversationID).To(Equal("conv-1"))
		Expect(event.RequestMeta.DurationMs).To(Equal(int64(1500)))
	})

	It("defines stable event constants", func() {
		Expect(eventstream.SchemaVersionV1).To(BeNumerically(">", 0))
		Expect(eventstream.EventTypeTurnCompleted).To(Equal("chatstream.turn.completed"))
	})

	It("provides ErrNilTurnEvent for nil payload validation", func() {
		Expect(eventstream.ErrNilTurnEvent).NotTo(BeNil())
		Expect(eventstream.ErrNilTurnEvent).To(MatchError("nil turn event"))
	})
})
