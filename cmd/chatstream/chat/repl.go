package chatcmder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/papercomputeco/chatstream/cmd/chatstream/backend"
	"github.com/papercomputeco/chatstream/pkg/chat"
	"github.com/papercomputeco/chatstream/pkg/cliui"
	"github.com/papercomputeco/chatstream/pkg/conversation"
	"github.com/papercomputeco/chatstream/pkg/stream"
	"github.com/papercomputeco/chatstream/pkg/utils"
)

type conversations interface {
	backend.Conversations
	ListConversations(ctx context.Context) ([]conversation.Conversation, error)
}

// repl reads one message per line and prints each reply as it streams.
type repl struct {
	svc    *chat.Service
	convs  conversations
	target *backend.Target

	in  io.Reader
	out io.Writer

	// interrupts cancels a streaming reply, or quits while idle.
	interrupts <-chan os.Signal

	// plain disables styling, e.g. when stdout is not a terminal.
	plain bool
}

func (r *repl) run(ctx context.Context) error {
	r.banner()

	done := make(chan struct{})
	defer close(done)
	lines, scanErr := r.readLines(done)

	for {
		fmt.Fprint(r.out, r.style(cliui.UserLabel, "you> "))

		var input string
		select {
		case <-r.interrupts:
			fmt.Fprintln(r.out)
			return nil
		case line, ok := <-lines:
			if !ok {
				fmt.Fprintln(r.out)
				if err := <-scanErr; err != nil {
					return fmt.Errorf("reading input: %w", err)
				}
				return nil
			}
			input = strings.TrimSpace(line)
		}

		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			quit, err := r.command(ctx, input)
			if err != nil {
				r.fail(backend.Describe(err))
			}
			if quit {
				return nil
			}
			continue
		}

		r.turn(ctx, input)
	}
}

// readLines feeds stdin lines to the loop so an interrupt can end the
// prompt while a read is blocked.
func (r *repl) readLines(done <-chan struct{}) (<-chan string, <-chan error) {
	lines := make(chan string)
	errc := make(chan error, 1)

	go func() {
		defer close(lines)

		scanner := bufio.NewScanner(r.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				errc <- nil
				return
			}
		}
		errc <- scanner.Err()
	}()

	return lines, errc
}

func (r *repl) turn(ctx context.Context, text string) {
	fmt.Fprint(r.out, r.style(cliui.AssistantLabel, "assistant> "))

	turn, err := r.svc.Submit(ctx, text, func(token string) {
		fmt.Fprint(r.out, token)
	})
	if err != nil {
		fmt.Fprintln(r.out)
		r.fail(err.Error())
		return
	}

	select {
	case <-turn.Done():
	case <-r.interrupts:
		turn.Cancel()
	}

	r.report(turn.Wait())
}

func (r *repl) report(res chat.Result) {
	fmt.Fprintln(r.out)

	switch res.Outcome {
	case chat.OutcomeCompleted:
		fmt.Fprintln(r.out)

	case chat.OutcomeCancelled:
		fmt.Fprintf(r.out, "  %s\n\n", r.style(cliui.DimStyle, "(reply cancelled)"))

	case chat.OutcomeTruncated:
		fmt.Fprintf(r.out, "  %s\n\n", r.style(cliui.WarnStyle, "! reply ended before the server confirmed it; discarded"))

	case chat.OutcomeFailed:
		var perr *stream.ProtocolError
		if errors.As(res.Err, &perr) {
			r.fail("server error: " + perr.Payload)
			return
		}
		r.fail(backend.Describe(res.Err))
	}
}

// command runs a slash command. It reports whether the REPL should quit.
func (r *repl) command(ctx context.Context, input string) (bool, error) {
	name, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/exit", "/quit":
		return true, nil

	case "/new":
		tr, err := backend.New(ctx, r.convs, arg)
		if err != nil {
			return false, err
		}
		return false, r.switchTo(tr, "New conversation")

	case "/switch":
		if arg == "" {
			return false, errors.New("usage: /switch <conversation id>")
		}
		tr, err := backend.Load(ctx, r.convs, arg)
		if err != nil {
			return false, err
		}
		return false, r.switchTo(tr, fmt.Sprintf("Switched (%d messages)", tr.Len()))

	case "/list":
		convs, err := r.convs.ListConversations(ctx)
		if err != nil {
			return false, err
		}
		current := r.svc.Transcript().ConversationID()
		for _, conv := range convs {
			marker := " "
			if conv.ID == current {
				marker = "*"
			}
			fmt.Fprintf(r.out, "  %s %s  %s\n", marker, r.style(cliui.IDStyle, conv.ID), titleOf(conv))
		}
		fmt.Fprintln(r.out)
		return false, nil

	default:
		return false, fmt.Errorf("unknown command %s", name)
	}
}

func (r *repl) switchTo(tr *conversation.Transcript, msg string) error {
	r.svc.Switch(tr)
	fmt.Fprintf(r.out, "  %s %s %s\n\n",
		r.mark(),
		msg,
		r.style(cliui.IDStyle, utils.ShortID(tr.ConversationID())),
	)
	if r.target == nil {
		return nil
	}
	return r.target.Remember(tr.ConversationID())
}

func (r *repl) banner() {
	tr := r.svc.Transcript()

	fmt.Fprintln(r.out)
	if tr.Len() > 0 {
		fmt.Fprintf(r.out, "  %s Resuming %s %s\n",
			r.mark(),
			r.style(cliui.IDStyle, utils.ShortID(tr.ConversationID())),
			r.style(cliui.DimStyle, fmt.Sprintf("(%d messages)", tr.Len())),
		)
	} else {
		fmt.Fprintf(r.out, "  %s New conversation %s\n",
			r.style(cliui.DimStyle, "●"),
			r.style(cliui.IDStyle, utils.ShortID(tr.ConversationID())),
		)
	}
	fmt.Fprintf(r.out, "  %s\n\n", r.style(cliui.DimStyle, "Type your message and press Enter. Ctrl+C stops a reply, /exit or Ctrl+D quits."))
}

func (r *repl) fail(msg string) {
	mark := cliui.FailMark
	if r.plain {
		mark = "✗"
	}
	fmt.Fprintf(r.out, "  %s %s\n\n", mark, msg)
}

func (r *repl) mark() string {
	if r.plain {
		return "✓"
	}
	return cliui.SuccessMark
}

func (r *repl) style(s lipgloss.Style, text string) string {
	if r.plain {
		return text
	}
	return s.Render(text)
}

func titleOf(conv conversation.Conversation) string {
	if conv.Title == "" {
		return "(untitled)"
	}
	return utils.Truncate(conv.Title, 60)
}
