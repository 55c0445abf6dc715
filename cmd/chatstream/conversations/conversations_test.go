package conversationscmder_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	conversationscmder "github.com/papercomputeco/chatstream/cmd/chatstream/conversations"
	"github.com/papercomputeco/chatstream/pkg/conversation"
	"github.com/papercomputeco/chatstream/pkg/dotdir"
)

var _ = Describe("NewConversationsCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := conversationscmder.NewConversationsCmd()
		Expect(cmd.Use).To(Equal("conversations"))
		Expect(cmd.Aliases).To(ContainElement("conv"))
	})

	It("has list, new, and show subcommands", func() {
		cmd := conversationscmder.NewConversationsCmd()
		cmds := cmd.Commands()
		subcommands := make([]string, 0, len(cmds))
		for _, sub := range cmds {
			subcommands = append(subcommands, sub.Name())
		}
		Expect(subcommands).To(ContainElements("list", "new", "show"))
	})
})

var _ = Describe("Conversations command execution", func() {
	var (
		mux       *http.ServeMux
		server    *httptest.Server
		configDir string
		out       *bytes.Buffer
	)

	BeforeEach(func() {
		mux = http.NewServeMux()
		server = httptest.NewServer(mux)
		configDir = GinkgoT().TempDir()
		out = &bytes.Buffer{}
	})

	AfterEach(func() {
		server.Close()
	})

	execute := func(args ...string) error {
		root := &cobra.Command{Use: "chatstream"}
		root.PersistentFlags().String("config-dir", "", "")
		root.AddCommand(conversationscmder.NewConversationsCmd())
		root.SetOut(out)
		root.SetErr(out)
		root.SetArgs(append(args, "--config-dir", configDir, "--api-target", server.URL))
		return root.Execute()
	}

	Describe("list subcommand", func() {
		It("prints conversations and marks the current one", func() {
			mux.HandleFunc("GET /api/conversations", func(w http.ResponseWriter, _ *http.Request) {
				_ = json.NewEncoder(w).Encode(conversation.ListResponse{
					Count: 2,
					Conversations: []conversation.Conversation{
						{ID: "conv-b", Title: "second", UpdatedAt: time.Now()},
						{ID: "conv-a", UpdatedAt: time.Now()},
					},
				})
			})
			Expect(dotdir.NewManager().RememberConversation(server.URL, "conv-b", configDir)).To(Succeed())

			Expect(execute("conversations", "list")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("* "))
			Expect(out.String()).To(ContainSubstring("conv-b"))
			Expect(out.String()).To(ContainSubstring("second"))
			Expect(out.String()).To(ContainSubstring("(untitled)"))
			Expect(out.String()).To(ContainSubstring("2 conversations"))
		})

		It("says so when there are none", func() {
			mux.HandleFunc("GET /api/conversations", func(w http.ResponseWriter, _ *http.Request) {
				_ = json.NewEncoder(w).Encode(conversation.ListResponse{})
			})

			Expect(execute("conversations", "list")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("No conversations yet."))
		})

		It("fails with a sign in hint on 401", func() {
			mux.HandleFunc("GET /api/conversations", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
			})

			err := execute("conversations", "list")
			Expect(err).To(MatchError(ContainSubstring("sign in again")))
		})

		It("rejects any arguments", func() {
			Expect(execute("conversations", "list", "extra")).To(HaveOccurred())
		})
	})

	Describe("new subcommand", func() {
		It("creates a conversation and makes it current", func() {
			titles := make(chan string, 1)
			mux.HandleFunc("POST /api/conversations", func(w http.ResponseWriter, r *http.Request) {
				var req conversation.CreateRequest
				_ = json.NewDecoder(r.Body).Decode(&req)
				titles <- req.Title
				w.WriteHeader(http.StatusCreated)
				_ = json.NewEncoder(w).Encode(conversation.Conversation{ID: "conv-new", Title: req.Title})
			})

			Expect(execute("conversations", "new", "release planning")).To(Succeed())
			Expect(titles).To(Receive(Equal("release planning")))
			Expect(out.String()).To(ContainSubstring("conv-new"))

			state, err := dotdir.NewManager().LoadSession(configDir)
			Expect(err).NotTo(HaveOccurred())
			id, ok := state.LastConversation(server.URL)
			Expect(ok).To(BeTrue())
			Expect(id).To(Equal("conv-new"))
		})

		It("accepts at most one title argument", func() {
			Expect(execute("conversations", "new", "a", "b")).To(HaveOccurred())
		})
	})

	Describe("show subcommand", func() {
		It("prints the messages in order", func() {
			mux.HandleFunc("GET /api/conversations/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(conversation.MessagesResponse{
					ConversationID: r.PathValue("id"),
					Messages: []conversation.Message{
						{ID: "m1", Role: conversation.RoleUser, Content: "salut"},
						{ID: "m2", Role: conversation.RoleAssistant, Content: "Bonjour"},
					},
				})
			})

			Expect(execute("conversations", "show", "conv-1", "--raw")).To(Succeed())
			Expect(out.String()).To(MatchRegexp(`(?s)salut.*Bonjour`))
		})

		It("reports a missing conversation", func() {
			mux.HandleFunc("GET /api/conversations/{id}/messages", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNotFound)
				_ = json.NewEncoder(w).Encode(conversation.ErrorResponse{Error: "conversation not found"})
			})

			err := execute("conversations", "show", "nope")
			Expect(err).To(MatchError(ContainSubstring("conversation not found")))
		})

		It("requires exactly one argument", func() {
			Expect(execute("conversations", "show")).To(HaveOccurred())
		})
	})
})
