package conversationscmder

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatstream/cmd/chatstream/backend"
	"github.com/papercomputeco/chatstream/pkg/cliui"
)

const newLongDesc string = `Create a conversation and make it the current one.

The next "chatstream chat" or "chatstream tui" resumes it.

Examples:
  chatstream conversations new
  chatstream conversations new "release planning"`

const newShortDesc string = "Create a conversation"

type newCommander struct {
	target backend.Target
}

func newNewCmd() *cobra.Command {
	cmder := &newCommander{}

	cmd := &cobra.Command{
		Use:   "new [title]",
		Short: newShortDesc,
		Long:  newLongDesc,
		Args:  cobra.MaximumNArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.target.Load(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd.OutOrStdout(), strings.Join(args, " "))
		},
	}

	backend.AddFlags(cmd, &cmder.target)

	return cmd
}

func (c *newCommander) run(ctx context.Context, w io.Writer, title string) error {
	cl, err := c.target.Client(nil)
	if err != nil {
		return err
	}

	conv, err := cl.CreateConversation(ctx, strings.TrimSpace(title))
	if err != nil {
		return fmt.Errorf("%s", backend.Describe(err))
	}

	if err := c.target.Remember(conv.ID); err != nil {
		return err
	}

	fmt.Fprintf(w, "\n  %s Created %s\n\n", cliui.SuccessMark, cliui.IDStyle.Render(conv.ID))
	return nil
}
