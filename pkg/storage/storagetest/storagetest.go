// Package storagetest holds the ginkgo specs every storage.Driver must pass.
package storagetest

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatstream/pkg/conversation"
	"github.com/papercomputeco/chatstream/pkg/storage"
)

// at returns a fixed UTC instant offset by seconds, to keep orderings
// deterministic.
func at(seconds int) time.Time {
	return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC).Add(time.Duration(seconds) * time.Second)
}

func conv(id, title string, seconds int) conversation.Conversation {
	return conversation.Conversation{ID: id, Title: title, CreatedAt: at(seconds), UpdatedAt: at(seconds)}
}

func msg(id, convID string, role conversation.Role, content string, seconds int) conversation.Message {
	return conversation.Message{ID: id, ConversationID: convID, Role: role, Content: content, CreatedAt: at(seconds)}
}

// DriverBehaviors registers the shared driver specs. newDriver is called
// before each spec and must return an empty store.
func DriverBehaviors(newDriver func() storage.Driver) {
	var (
		driver storage.Driver
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = nil
		driver = newDriver()
	})

	AfterEach(func() {
		if driver != nil {
			Expect(driver.Close()).To(Succeed())
		}
	})

	Describe("conversations", func() {
		It("stores and retrieves a conversation", func() {
			c := conv("c1", "first", 0)
			Expect(driver.CreateConversation(ctx, c)).To(Succeed())

			got, err := driver.GetConversation(ctx, "c1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal("c1"))
			Expect(got.Title).To(Equal("first"))
			Expect(got.CreatedAt.Equal(c.CreatedAt)).To(BeTrue())
		})

		It("returns NotFoundError for a missing conversation", func() {
			_, err := driver.GetConversation(ctx, "missing")
			Expect(err).To(HaveOccurred())
			Expect(storage.IsNotFound(err)).To(BeTrue())
			Expect(err).To(MatchError(storage.NotFoundError{ID: "missing"}))
		})

		It("rejects a duplicate conversation", func() {
			Expect(driver.CreateConversation(ctx, conv("c1", "a", 0))).To(Succeed())
			Expect(driver.CreateConversation(ctx, conv("c1", "b", 1))).NotTo(Succeed())
		})

		It("rejects a conversation without an id", func() {
			Expect(driver.CreateConversation(ctx, conversation.Conversation{Title: "x"})).NotTo(Succeed())
		})

		It("lists an empty store as an empty slice", func() {
			convs, err := driver.ListConversations(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(convs).To(BeEmpty())
		})

		It("lists the most recently updated first", func() {
			Expect(driver.CreateConversation(ctx, conv("old", "old", 0))).To(Succeed())
			Expect(driver.CreateConversation(ctx, conv("new", "new", 10))).To(Succeed())

			convs, err := driver.ListConversations(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(convs).To(HaveLen(2))
			Expect(convs[0].ID).To(Equal("new"))

			// A reply to the old conversation moves it to the top.
			Expect(driver.AppendMessage(ctx, msg("m1", "old", conversation.RoleUser, "bump", 20))).To(Succeed())

			convs, err = driver.ListConversations(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(convs[0].ID).To(Equal("old"))
			Expect(convs[0].UpdatedAt.Equal(at(20))).To(BeTrue())
		})
	})

	Describe("messages", func() {
		BeforeEach(func() {
			Expect(driver.CreateConversation(ctx, conv("c1", "chat", 0))).To(Succeed())
		})

		It("returns messages in append order", func() {
			Expect(driver.AppendMessage(ctx, msg("m1", "c1", conversation.RoleUser, "hi", 1))).To(Succeed())
			Expect(driver.AppendMessage(ctx, msg("m2", "c1", conversation.RoleAssistant, "hello\nthere", 2))).To(Succeed())
			Expect(driver.AppendMessage(ctx, msg("m3", "c1", conversation.RoleUser, "bye", 2))).To(Succeed())

			msgs, err := driver.Messages(ctx, "c1")
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(HaveLen(3))
			Expect(msgs[0].ID).To(Equal("m1"))
			Expect(msgs[1].Role).To(Equal(conversation.RoleAssistant))
			Expect(msgs[1].Content).To(Equal("hello\nthere"))
			Expect(msgs[2].ID).To(Equal("m3"))
			Expect(msgs[2].ConversationID).To(Equal("c1"))
		})

		It("ignores a message appended twice", func() {
			m := msg("m1", "c1", conversation.RoleUser, "hi", 1)
			Expect(driver.AppendMessage(ctx, m)).To(Succeed())
			Expect(driver.AppendMessage(ctx, m)).To(Succeed())

			msgs, err := driver.Messages(ctx, "c1")
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(HaveLen(1))
		})

		It("does not move UpdatedAt backwards", func() {
			Expect(driver.AppendMessage(ctx, msg("m1", "c1", conversation.RoleUser, "late", 30))).To(Succeed())
			Expect(driver.AppendMessage(ctx, msg("m2", "c1", conversation.RoleUser, "early", 5))).To(Succeed())

			got, err := driver.GetConversation(ctx, "c1")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.UpdatedAt.Equal(at(30))).To(BeTrue())
		})

		It("rejects messages for a missing conversation", func() {
			err := driver.AppendMessage(ctx, msg("m1", "missing", conversation.RoleUser, "hi", 1))
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})

		It("returns NotFoundError when listing messages of a missing conversation", func() {
			_, err := driver.Messages(ctx, "missing")
			Expect(storage.IsNotFound(err)).To(BeTrue())
		})

		It("returns an empty slice for a new conversation", func() {
			msgs, err := driver.Messages(ctx, "c1")
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).NotTo(BeNil())
			Expect(msgs).To(BeEmpty())
		})

		It("never stores the pending flag", func() {
			m := msg("m1", "c1", conversation.RoleAssistant, "x", 1)
			m.Pending = true
			Expect(driver.AppendMessage(ctx, m)).To(Succeed())

			msgs, err := driver.Messages(ctx, "c1")
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs[0].Pending).To(BeFalse())
		})

		It("handles concurrent appends", func() {
			var wg sync.WaitGroup
			for i := range 20 {
				wg.Add(1)
				go func(i int) {
					defer GinkgoRecover()
					defer wg.Done()
					id := "m" + string(rune('a'+i))
					Expect(driver.AppendMessage(ctx, msg(id, "c1", conversation.RoleUser, id, i))).To(Succeed())
				}(i)
			}
			wg.Wait()

			msgs, err := driver.Messages(ctx, "c1")
			Expect(err).NotTo(HaveOccurred())
			Expect(msgs).To(HaveLen(20))
		})
	})
}
