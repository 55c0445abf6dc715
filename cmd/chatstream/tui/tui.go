// Package tuicmder provides the tui command, a full-screen chat against a
// chatstream backend.
package tuicmder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	bubbletea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatstream/cmd/chatstream/backend"
	"github.com/papercomputeco/chatstream/pkg/chat"
	"github.com/papercomputeco/chatstream/pkg/conversation"
	"github.com/papercomputeco/chatstream/pkg/dotdir"
	"github.com/papercomputeco/chatstream/pkg/logger"
)

func init() {
	// Force TrueColor profile to fix lipgloss color detection issue
	// See: https://github.com/charmbracelet/lipgloss/issues/439
	renderer := lipgloss.NewRenderer(os.Stdout, termenv.WithProfile(termenv.TrueColor))
	renderer.SetColorProfile(termenv.TrueColor)
	lipgloss.SetDefaultRenderer(renderer)
}

const debugLogFile = "tui.log"

type tuiCommander struct {
	target         backend.Target
	conversationID string
	fresh          bool
	debug          bool
}

const tuiLongDesc string = `Open a full-screen chat against a chatstream backend.

Replies stream into a scrollable transcript and finished replies are
rendered as markdown. The input is disabled while a reply streams.

Keys:
  enter      Send the message
  esc        Stop the streaming reply
  ctrl+n     Start a new conversation
  pgup/pgdn  Scroll the transcript
  ctrl+c     Quit

With --debug, logs are written to tui.log in the .chatstream/ directory.

Examples:
  chatstream tui
  chatstream tui --conversation 6f1c2a9e-...`

const tuiShortDesc string = "Full-screen chat against a chatstream backend"

func NewTUICmd() *cobra.Command {
	cmder := &tuiCommander{}

	cmd := &cobra.Command{
		Use:   "tui",
		Short: tuiShortDesc,
		Long:  tuiLongDesc,
		Args:  cobra.NoArgs,
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

	return cmd
}

func (c *tuiCommander) run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	log, closeLog, err := c.newLogger()
	if err != nil {
		return err
	}
	defer closeLog()

	cl, err := c.target.Client(log)
	if err != nil {
		return err
	}

	transcript, err := c.target.Open(ctx, cl, c.conversationID, c.fresh)
	if err != nil {
		return fmt.Errorf("%s", backend.Describe(err))
	}

	svc := chat.NewService(cl, transcript, chat.WithLogger(log))
	defer svc.Close()

	model := newTUIModel(ctx, svc, func(ctx context.Context) (*conversation.Transcript, error) {
		return backend.New(ctx, cl, "")
	})
	model.remember = c.target.Remember

	program := bubbletea.NewProgram(model,
		bubbletea.WithContext(ctx),
		bubbletea.WithAltScreen(),
	)
	_, err = program.Run()
	return err
}

// newLogger writes to a file because the terminal belongs to the TUI.
func (c *tuiCommander) newLogger() (*slog.Logger, func(), error) {
	if !c.debug {
		return logger.Nop(), func() {}, nil
	}

	dir, err := dotdir.NewManager().Target(c.target.ConfigDir)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.OpenFile(filepath.Join(dir, debugLogFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening debug log: %w", err)
	}

	log := logger.New(logger.WithDebug(true), logger.WithWriter(f))
	return log, func() { _ = f.Close() }, nil
}
