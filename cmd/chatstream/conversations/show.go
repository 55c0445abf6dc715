package conversationscmder

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatstream/cmd/chatstream/backend"
	"github.com/papercomputeco/chatstream/pkg/cliui"
	"github.com/papercomputeco/chatstream/pkg/conversation"
)

const showLongDesc string = `Print the messages of a conversation, oldest first.

Assistant replies are rendered as markdown unless --raw is set.

Examples:
  chatstream conversations show 6f1c2a9e-...
  chatstream conversations show 6f1c2a9e-... --raw`

const showShortDesc string = "Print the messages of a conversation"

type showCommander struct {
	target backend.Target
	raw    bool
}

func newShowCmd() *cobra.Command {
	cmder := &showCommander{}

	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: showShortDesc,
		Long:  showLongDesc,
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.target.Load(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), cmd.OutOrStdout(), args[0])
		},
	}

	backend.AddFlags(cmd, &cmder.target)
	cmd.Flags().BoolVar(&cmder.raw, "raw", false, "Print replies without markdown rendering")

	return cmd
}

func (c *showCommander) run(ctx context.Context, w io.Writer, id string) error {
	cl, err := c.target.Client(nil)
	if err != nil {
		return err
	}

	msgs, err := cl.Messages(ctx, id)
	if err != nil {
		return fmt.Errorf("%s", backend.Describe(err))
	}

	c.print(w, msgs)
	return nil
}

func (c *showCommander) print(w io.Writer, msgs []conversation.Message) {
	if len(msgs) == 0 {
		fmt.Fprintf(w, "\n  %s\n\n", cliui.DimStyle.Render("No messages yet."))
		return
	}

	fmt.Fprintln(w)
	for _, msg := range msgs {
		switch msg.Role {
		case conversation.RoleUser:
			fmt.Fprintf(w, "%s %s\n\n", cliui.UserLabel.Render("you>"), msg.Content)

		default:
			fmt.Fprintln(w, cliui.AssistantLabel.Render("assistant>"))
			if c.raw {
				fmt.Fprintf(w, "%s\n\n", msg.Content)
				continue
			}
			rendered, err := cliui.RenderMarkdown(msg.Content)
			if err != nil {
				rendered = msg.Content + "\n"
			}
			fmt.Fprintln(w, rendered)
		}
	}
}
