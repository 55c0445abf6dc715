package chatcmder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/gbytes"

	"github.com/papercomputeco/chatstream/cmd/chatstream/backend"
	"github.com/papercomputeco/chatstream/pkg/chat"
	"github.com/papercomputeco/chatstream/pkg/client"
	"github.com/papercomputeco/chatstream/pkg/conversation"
	"github.com/papercomputeco/chatstream/pkg/dotdir"
)

var _ = Describe("repl", func() {
	var (
		ctx        context.Context
		mux        *http.ServeMux
		server     *httptest.Server
		out        *gbytes.Buffer
		interrupts chan os.Signal
		target     *backend.Target
		svc        *chat.Service
		cl         *client.Client
	)

	BeforeEach(func() {
		ctx = context.Background()
		mux = http.NewServeMux()
		server = httptest.NewServer(mux)
		out = gbytes.NewBuffer()
		interrupts = make(chan os.Signal, 1)
		target = &backend.Target{APITarget: server.URL, ConfigDir: GinkgoT().TempDir()}

		var err error
		cl, err = client.New(server.URL)
		Expect(err).NotTo(HaveOccurred())
		svc = chat.NewService(cl, conversation.NewTranscript("conv-1", nil))
	})

	AfterEach(func() {
		svc.Close()
		server.Close()
	})

	newREPL := func(in io.Reader) *repl {
		return &repl{
			svc:        svc,
			convs:      cl,
			target:     target,
			in:         in,
			out:        out,
			interrupts: interrupts,
			plain:      true,
		}
	}

	streamReply := func(frames string) {
		mux.HandleFunc("POST /api/chat/stream", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprint(w, frames)
		})
	}

	It("prints the reply as it streams and keeps it in the transcript", func() {
		streamReply("event: token\ndata: Hel\n\nevent: token\ndata: lo\n\nevent: done\ndata:\n\n")

		Expect(newREPL(strings.NewReader("hi\n/exit\n")).run(ctx)).To(Succeed())

		Expect(string(out.Contents())).To(ContainSubstring("you> assistant> Hello\n"))
		msgs := svc.Transcript().Messages()
		Expect(msgs).To(HaveLen(2))
		Expect(msgs[1].Content).To(Equal("Hello"))
	})

	It("reports a server error event", func() {
		streamReply("event: token\ndata: par\n\nevent: error\ndata: boom\n\n")

		Expect(newREPL(strings.NewReader("hi\n")).run(ctx)).To(Succeed())

		Expect(string(out.Contents())).To(ContainSubstring("✗ server error: boom"))
		Expect(svc.Transcript().Messages()).To(HaveLen(1))
	})

	It("warns when the stream ends without done", func() {
		streamReply("event: token\ndata: par\n\n")

		Expect(newREPL(strings.NewReader("hi\n")).run(ctx)).To(Succeed())
		Expect(string(out.Contents())).To(ContainSubstring("reply ended before the server confirmed it"))
	})

	It("asks the user to sign in again on 401", func() {
		mux.HandleFunc("POST /api/chat/stream", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})

		Expect(newREPL(strings.NewReader("hi\n")).run(ctx)).To(Succeed())
		Expect(string(out.Contents())).To(ContainSubstring("sign in again"))
	})

	It("cancels a streaming reply on interrupt and quits on the next one", func() {
		mux.HandleFunc("POST /api/chat/stream", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "event: token\ndata: first\n\n")
			w.(http.Flusher).Flush()
			<-r.Context().Done()
		})

		pr, pw := io.Pipe()
		defer pw.Close()

		done := make(chan error, 1)
		go func() { done <- newREPL(pr).run(ctx) }()

		_, err := pw.Write([]byte("hi\n"))
		Expect(err).NotTo(HaveOccurred())
		Eventually(out).Should(gbytes.Say("first"))

		interrupts <- os.Interrupt
		Eventually(out).Should(gbytes.Say(`\(reply cancelled\)`))
		Expect(svc.Streaming()).To(BeFalse())

		interrupts <- os.Interrupt
		Eventually(done).Should(Receive(BeNil()))
	})

	Describe("commands", func() {
		It("starts a new conversation and remembers it", func() {
			mux.HandleFunc("POST /api/conversations", func(w http.ResponseWriter, r *http.Request) {
				var req conversation.CreateRequest
				_ = json.NewDecoder(r.Body).Decode(&req)
				w.WriteHeader(http.StatusCreated)
				_ = json.NewEncoder(w).Encode(conversation.Conversation{ID: "conv-2", Title: req.Title})
			})

			Expect(newREPL(strings.NewReader("/new planning\n")).run(ctx)).To(Succeed())

			Expect(svc.Transcript().ConversationID()).To(Equal("conv-2"))
			Expect(string(out.Contents())).To(ContainSubstring("✓ New conversation conv-2"))

			state, err := dotdir.NewManager().LoadSession(target.ConfigDir)
			Expect(err).NotTo(HaveOccurred())
			id, ok := state.LastConversation(server.URL)
			Expect(ok).To(BeTrue())
			Expect(id).To(Equal("conv-2"))
		})

		It("switches to an existing conversation with its history", func() {
			mux.HandleFunc("GET /api/conversations/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(conversation.MessagesResponse{
					ConversationID: r.PathValue("id"),
					Messages: []conversation.Message{
						conversation.NewMessage(r.PathValue("id"), conversation.RoleUser, "earlier"),
					},
				})
			})

			Expect(newREPL(strings.NewReader("/switch conv-9\n")).run(ctx)).To(Succeed())

			Expect(svc.Transcript().ConversationID()).To(Equal("conv-9"))
			Expect(svc.Transcript().Len()).To(Equal(1))
			Expect(string(out.Contents())).To(ContainSubstring("Switched (1 messages)"))
		})

		It("requires an id for /switch", func() {
			Expect(newREPL(strings.NewReader("/switch\n")).run(ctx)).To(Succeed())
			Expect(string(out.Contents())).To(ContainSubstring("usage: /switch <conversation id>"))
		})

		It("lists conversations and marks the current one", func() {
			mux.HandleFunc("GET /api/conversations", func(w http.ResponseWriter, _ *http.Request) {
				_ = json.NewEncoder(w).Encode(conversation.ListResponse{
					Count: 2,
					Conversations: []conversation.Conversation{
						{ID: "conv-1", Title: "current"},
						{ID: "conv-3"},
					},
				})
			})

			Expect(newREPL(strings.NewReader("/list\n")).run(ctx)).To(Succeed())

			Expect(string(out.Contents())).To(ContainSubstring("* conv-1  current"))
			Expect(string(out.Contents())).To(ContainSubstring("  conv-3  (untitled)"))
		})

		It("rejects unknown commands", func() {
			Expect(newREPL(strings.NewReader("/dance\n")).run(ctx)).To(Succeed())
			Expect(string(out.Contents())).To(ContainSubstring("unknown command /dance"))
		})
	})

	It("quits on interrupt while idle", func() {
		pr, pw := io.Pipe()
		defer pw.Close()

		done := make(chan error, 1)
		go func() { done <- newREPL(pr).run(ctx) }()

		interrupts <- os.Interrupt
		Eventually(done).Should(Receive(BeNil()))
	})

	It("shows a resumed conversation in the banner", func() {
		svc.Switch(conversation.NewTranscript("conv-5", []conversation.Message{
			conversation.NewMessage("conv-5", conversation.RoleUser, "hi"),
			conversation.NewMessage("conv-5", conversation.RoleAssistant, "hello"),
		}))

		Expect(newREPL(strings.NewReader("")).run(ctx)).To(Succeed())
		Expect(string(out.Contents())).To(ContainSubstring("✓ Resuming conv-5 (2 messages)"))
	})
})
