// Package chatcmder provides the chat command, a line REPL against a
// chatstream backend.
package chatcmder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/papercomputeco/chatstream/cmd/chatstream/backend"
	"github.com/papercomputeco/chatstream/pkg/chat"
	"github.com/papercomputeco/chatstream/pkg/client"
	"github.com/papercomputeco/chatstream/pkg/cliui"
	"github.com/papercomputeco/chatstream/pkg/logger"
)

type chatCommander struct {
	target         backend.Target
	conversationID string
	fresh          bool
	record         string
	debug          bool

	logger *slog.Logger
}

const chatLongDesc string = `Start an interactive chat session against a chatstream backend.

Each message is sent to the backend and the assistant reply is printed as
it streams in. Press Ctrl+C to stop a reply that is still streaming; press
it again while idle to quit.

By default the conversation last used against the same backend is resumed.
Pass --conversation to open a specific one or --new to start fresh.

Commands:
  /new            Start a new conversation
  /switch <id>    Switch to another conversation
  /list           List conversations
  /exit           Quit (Ctrl+D works too)

Examples:
  chatstream chat
  chatstream chat --api-target http://localhost:8081 --new
  chatstream chat --record replies.sse`

const chatShortDesc string = "Interactive chat against a chatstream backend"

func NewChatCmd() *cobra.Command {
	cmder := &chatCommander{}

	cmd := &cobra.Command{
		Use:   "chat",
		Short: chatShortDesc,
		Long:  chatLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.target.Load(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run(cmd.Context())
		},
	}

	backend.AddFlags(cmd, &cmder.target)
	cmd.Flags().StringVarP(&cmder.conversationID, "conversation", "c", "", "Conversation ID to open")
	cmd.Flags().BoolVar(&cmder.fresh, "new", false, "Start a new conversation instead of resuming the last one")
	cmd.Flags().StringVar(&cmder.record, "record", "", "Append the raw event stream of every reply to this file")

	return cmd
}

func (c *chatCommander) run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	c.logger = logger.New(
		logger.WithDebug(c.debug),
		logger.WithPretty(true),
		logger.WithWriter(os.Stderr),
	)

	cl, err := c.target.Client(c.logger)
	if err != nil {
		return err
	}

	plain := !isTerminal(os.Stdout)
	if err := c.connect(ctx, cl, plain); err != nil {
		return fmt.Errorf("%s", backend.Describe(err))
	}

	transcript, err := c.target.Open(ctx, cl, c.conversationID, c.fresh)
	if err != nil {
		return fmt.Errorf("%s", backend.Describe(err))
	}

	opts := []chat.Option{chat.WithLogger(c.logger)}
	if c.record != "" {
		f, err := os.OpenFile(c.record, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("opening record file: %w", err)
		}
		defer f.Close()
		opts = append(opts, chat.WithRecorder(f))
	}

	svc := chat.NewService(cl, transcript, opts...)
	defer svc.Close()

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	r := &repl{
		svc:        svc,
		convs:      cl,
		target:     &c.target,
		in:         os.Stdin,
		out:        os.Stdout,
		interrupts: interrupts,
		plain:      plain,
	}
	return r.run(ctx)
}

// connect checks that the backend answers before the prompt is shown.
func (c *chatCommander) connect(ctx context.Context, cl *client.Client, plain bool) error {
	ping := func() error { return cl.Ping(ctx) }
	if plain {
		return ping()
	}
	return cliui.Step(os.Stdout, "Connecting to "+c.target.APITarget, ping)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
