package conversationscmder

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatstream/cmd/chatstream/backend"
	"github.com/papercomputeco/chatstream/pkg/cliui"
	"github.com/papercomputeco/chatstream/pkg/conversation"
	"github.com/papercomputeco/chatstream/pkg/dotdir"
	"github.com/papercomputeco/chatstream/pkg/utils"
)

const listLongDesc string = `List the conversations on the backend, most recently updated first.

The current conversation is marked with *.

Examples:
  chatstream conversations list
  chatstream conversations list --api-target http://localhost:8081`

const listShortDesc string = "List conversations"

type listCommander struct {
	target backend.Target
}

func newListCmd() *cobra.Command {
	cmder := &listCommander{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: listShortDesc,
		Long:  listLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.target.Load(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.Context(), cmd.OutOrStdout())
		},
	}

	backend.AddFlags(cmd, &cmder.target)

	return cmd
}

func (c *listCommander) run(ctx context.Context, w io.Writer) error {
	cl, err := c.target.Client(nil)
	if err != nil {
		return err
	}

	convs, err := cl.ListConversations(ctx)
	if err != nil {
		return fmt.Errorf("%s", backend.Describe(err))
	}

	state, err := dotdir.NewManager().LoadSession(c.target.ConfigDir)
	if err != nil {
		return fmt.Errorf("loading session state: %w", err)
	}
	current, _ := state.LastConversation(c.target.APITarget)

	printConversations(w, convs, current)
	return nil
}

func printConversations(w io.Writer, convs []conversation.Conversation, current string) {
	if len(convs) == 0 {
		fmt.Fprintf(w, "\n  %s\n\n", cliui.DimStyle.Render("No conversations yet."))
		return
	}

	fmt.Fprintln(w)
	for _, conv := range convs {
		marker := " "
		if conv.ID == current {
			marker = "*"
		}
		fmt.Fprintf(w, "  %s %s  %s  %s\n",
			marker,
			cliui.IDStyle.Render(conv.ID),
			titleOf(conv),
			cliui.DimStyle.Render(conv.UpdatedAt.Local().Format(time.DateTime)),
		)
	}
	fmt.Fprintf(w, "\n  %s\n\n", cliui.DimStyle.Render(fmt.Sprintf("%d conversations", len(convs))))
}

func titleOf(conv conversation.Conversation) string {
	if conv.Title == "" {
		return cliui.DimStyle.Render("(untitled)")
	}
	return cliui.ValueStyle.Render(utils.Truncate(conv.Title, 60))
}
