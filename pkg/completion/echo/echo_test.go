package echo_test

import (
	"context"
	"errors"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatstream/pkg/completion"
	"github.com/papercomputeco/chatstream/pkg/completion/echo"
	"github.com/papercomputeco/chatstream/pkg/conversation"
)

func request(text string) completion.Request {
	return completion.Request{
		ConversationID: "conv-1",
		History: []conversation.Message{
			conversation.NewMessage("conv-1", conversation.RoleUser, text),
		},
	}
}

var _ = Describe("Echo generator", func() {
	collect := func(g *echo.Generator, ctx context.Context, text string) ([]string, error) {
		var tokens []string
		err := g.Generate(ctx, request(text), func(t string) error {
			tokens = append(tokens, t)
			return nil
		})
		return tokens, err
	}

	It("replays the message word by word", func() {
		tokens, err := collect(echo.New(), context.Background(), "hello big world")
		Expect(err).NotTo(HaveOccurred())
		Expect(tokens).To(Equal([]string{"hello ", "big ", "world"}))
		Expect(strings.Join(tokens, "")).To(Equal("hello big world"))
	})

	It("emits the prefix first", func() {
		tokens, err := collect(echo.New(echo.WithPrefix("echo: ")), context.Background(), "hi")
		Expect(err).NotTo(HaveOccurred())
		Expect(tokens).To(Equal([]string{"echo: ", "hi"}))
	})

	It("emits nothing for an empty history", func() {
		var n int
		err := echo.New().Generate(context.Background(), completion.Request{}, func(string) error {
			n++
			return nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(BeZero())
	})

	It("stops when emit fails", func() {
		stop := errors.New("client went away")
		var n int
		err := echo.New().Generate(context.Background(), request("a b c"), func(string) error {
			n++
			return stop
		})
		Expect(err).To(MatchError(stop))
		Expect(n).To(Equal(1))
	})

	It("stops when the context is cancelled", func() {
		ctx, cancel := context.WithCancel(context.Background())
		g := echo.New(echo.WithDelay(5 * time.Millisecond))

		var n int
		err := g.Generate(ctx, request("a b c d e f"), func(string) error {
			n++
			cancel()
			return nil
		})
		Expect(err).To(MatchError(context.Canceled))
		Expect(n).To(Equal(1))
	})

	It("is named echo", func() {
		Expect(echo.New().Name()).To(Equal("echo"))
	})
})
