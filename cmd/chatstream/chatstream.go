// Package chatstreamcmder
package chatstreamcmder

import (
	"github.com/spf13/cobra"

	chatcmder "github.com/papercomputeco/chatstream/cmd/chatstream/chat"
	configcmder "github.com/papercomputeco/chatstream/cmd/chatstream/config"
	conversationscmder "github.com/papercomputeco/chatstream/cmd/chatstream/conversations"
	initcmder "github.com/papercomputeco/chatstream/cmd/chatstream/init"
	servecmder "github.com/papercomputeco/chatstream/cmd/chatstream/serve"
	tuicmder "github.com/papercomputeco/chatstream/cmd/chatstream/tui"
	versioncmder "github.com/papercomputeco/chatstream/cmd/version"
)

const chatstreamLongDesc string = `Chatstream is a streaming chat client and completion server.

Chat against a running backend:
  chatstream chat                 Line-based chat in the terminal
  chatstream tui                  Full-screen chat
  chatstream conversations list   List stored conversations

Run the backend:
  chatstream serve                Run the completion server

Manage local state:
  chatstream init                 Create a local .chatstream/ directory
  chatstream config list          Show configuration values`

const chatstreamShortDesc string = "Chatstream - streaming chat"

func NewChatstreamCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "chatstream",
		Short:        chatstreamShortDesc,
		Long:         chatstreamLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to the .chatstream/ directory")

	// Add subcommands
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(tuicmder.NewTUICmd())
	cmd.AddCommand(conversationscmder.NewConversationsCmd())
	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
