// Package conversationscmder provides the conversations command for listing
// and creating conversations on a chatstream backend.
package conversationscmder

import (
	"github.com/spf13/cobra"
)

const conversationsLongDesc string = `Manage conversations on a chatstream backend.

Use subcommands to list, create or inspect conversations:
  chatstream conversations list          List conversations, newest first
  chatstream conversations new [title]   Create a conversation and make it current
  chatstream conversations show <id>     Print the messages of a conversation

The current conversation is the one "chatstream chat" and "chatstream tui"
resume by default.`

const conversationsShortDesc string = "Manage conversations"

func NewConversationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conversations",
		Aliases: []string{"conv"},
		Short:   conversationsShortDesc,
		Long:    conversationsLongDesc,
	}

	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newNewCmd())
	cmd.AddCommand(newShowCmd())

	return cmd
}
