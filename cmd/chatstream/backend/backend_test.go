package backend_test

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatstream/cmd/chatstream/backend"
	"github.com/papercomputeco/chatstream/pkg/client"
	"github.com/papercomputeco/chatstream/pkg/conversation"
	"github.com/papercomputeco/chatstream/pkg/dotdir"
)

type fakeConversations struct {
	history map[string][]conversation.Message
	created []string
}

func (f *fakeConversations) CreateConversation(_ context.Context, title string) (conversation.Conversation, error) {
	conv := conversation.NewConversation(title)
	f.created = append(f.created, conv.ID)
	f.history[conv.ID] = nil
	return conv, nil
}

func (f *fakeConversations) Messages(_ context.Context, id string) ([]conversation.Message, error) {
	msgs, ok := f.history[id]
	if !ok {
		return nil, &client.TransportError{Method: http.MethodGet, URL: "/api/conversations/" + id, StatusCode: http.StatusNotFound}
	}
	return msgs, nil
}

func newCommand(t *backend.Target) *cobra.Command {
	cmd := &cobra.Command{Use: "test", RunE: func(*cobra.Command, []string) error { return nil }}
	cmd.Flags().String("config-dir", "", "")
	backend.AddFlags(cmd, t)
	return cmd
}

var _ = Describe("Target", func() {
	var (
		ctx    context.Context
		dir    string
		target *backend.Target
		convs  *fakeConversations
	)

	BeforeEach(func() {
		ctx = context.Background()
		dir = GinkgoT().TempDir()
		target = &backend.Target{APITarget: "http://localhost:8081", ConfigDir: dir}
		convs = &fakeConversations{history: map[string][]conversation.Message{}}
	})

	Describe("AddFlags", func() {
		It("registers the client flags with config defaults", func() {
			cmd := newCommand(&backend.Target{})

			flag := cmd.Flags().Lookup("api-target")
			Expect(flag).NotTo(BeNil())
			Expect(flag.Shorthand).To(Equal("a"))
			Expect(flag.DefValue).To(Equal("http://localhost:8081"))

			Expect(cmd.Flags().Lookup("token")).NotTo(BeNil())
			Expect(cmd.Flags().Lookup("timeout").DefValue).To(Equal("30s"))
		})
	})

	Describe("Load", func() {
		It("prefers flags over the config file", func() {
			data := []byte("[client]\napi_target = \"http://file:9000\"\ntoken = \"from-file\"\n")
			Expect(os.WriteFile(filepath.Join(dir, "config.toml"), data, 0o600)).To(Succeed())

			t := &backend.Target{}
			cmd := newCommand(t)
			Expect(cmd.Flags().Set("config-dir", dir)).To(Succeed())
			Expect(cmd.Flags().Set("api-target", "http://flag:9001")).To(Succeed())

			Expect(t.Load(cmd)).To(Succeed())
			Expect(t.APITarget).To(Equal("http://flag:9001"))
			Expect(t.Token).To(Equal("from-file"))
			Expect(t.ConfigDir).To(Equal(dir))
		})

		It("reads environment overrides", func() {
			GinkgoT().Setenv("CHATSTREAM_CLIENT_TOKEN", "from-env")

			t := &backend.Target{}
			cmd := newCommand(t)
			Expect(cmd.Flags().Set("config-dir", dir)).To(Succeed())

			Expect(t.Load(cmd)).To(Succeed())
			Expect(t.Token).To(Equal("from-env"))
		})
	})

	Describe("Client", func() {
		It("rejects an invalid timeout", func() {
			target.Timeout = "soon"
			_, err := target.Client(nil)
			Expect(err).To(MatchError(ContainSubstring("invalid timeout")))
		})

		It("builds a client for a valid target", func() {
			target.Timeout = "5s"
			c, err := target.Client(nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(c).NotTo(BeNil())
		})
	})

	Describe("Open", func() {
		It("creates and remembers a conversation on first use", func() {
			tr, err := target.Open(ctx, convs, "", false)
			Expect(err).NotTo(HaveOccurred())
			Expect(convs.created).To(ConsistOf(tr.ConversationID()))

			state, err := dotdir.NewManager().LoadSession(dir)
			Expect(err).NotTo(HaveOccurred())
			id, ok := state.LastConversation(target.APITarget)
			Expect(ok).To(BeTrue())
			Expect(id).To(Equal(tr.ConversationID()))
		})

		It("resumes the last conversation with its history", func() {
			convs.history["conv-1"] = []conversation.Message{
				conversation.NewMessage("conv-1", conversation.RoleUser, "hi"),
			}
			Expect(target.Remember("conv-1")).To(Succeed())

			tr, err := target.Open(ctx, convs, "", false)
			Expect(err).NotTo(HaveOccurred())
			Expect(tr.ConversationID()).To(Equal("conv-1"))
			Expect(tr.Len()).To(Equal(1))
			Expect(convs.created).To(BeEmpty())
		})

		It("starts a new conversation when the remembered one is gone", func() {
			Expect(target.Remember("deleted")).To(Succeed())

			tr, err := target.Open(ctx, convs, "", false)
			Expect(err).NotTo(HaveOccurred())
			Expect(tr.ConversationID()).NotTo(Equal("deleted"))
			Expect(convs.created).To(HaveLen(1))
		})

		It("ignores the remembered conversation when asked for a fresh one", func() {
			convs.history["conv-1"] = nil
			Expect(target.Remember("conv-1")).To(Succeed())

			tr, err := target.Open(ctx, convs, "", true)
			Expect(err).NotTo(HaveOccurred())
			Expect(tr.ConversationID()).NotTo(Equal("conv-1"))
		})

		It("fails for an explicit conversation that does not exist", func() {
			_, err := target.Open(ctx, convs, "missing", false)
			Expect(err).To(HaveOccurred())
			Expect(backend.IsNotFound(err)).To(BeTrue())
		})
	})

	Describe("Describe", func() {
		It("asks the user to sign in again on auth failures", func() {
			err := &client.TransportError{StatusCode: http.StatusUnauthorized}
			Expect(backend.Describe(err)).To(ContainSubstring("sign in again"))
		})

		It("reports an unreachable backend", func() {
			err := &client.TransportError{Cause: errors.New("connection refused")}
			Expect(backend.Describe(err)).To(Equal("backend unreachable: connection refused"))
		})
	})
})
