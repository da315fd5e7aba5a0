// Package chatstreamcmder
package chatstreamcmder

import (
	"github.com/spf13/cobra"

	authcmder "github.com/papercomputeco/chatstream/cmd/chatstream/auth"
	chatcmder "github.com/papercomputeco/chatstream/cmd/chatstream/chat"
	configcmder "github.com/papercomputeco/chatstream/cmd/chatstream/config"
	mockcmder "github.com/papercomputeco/chatstream/cmd/chatstream/mock"
	versioncmder "github.com/papercomputeco/chatstream/cmd/version"
)

const chatstreamLongDesc string = `chatstream is a streaming chat client for OpenAI-compatible
chat completions endpoints.

Replies render as they arrive. Run it using:
  chatstream chat              Start an interactive chat
  chatstream chat --plain      Line-oriented chat for pipes and dumb terminals
  chatstream auth openai       Store an API key
  chatstream mock              Run a local mock completions server`

const chatstreamShortDesc string = "chatstream - streaming LLM chat"

func NewChatstreamCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "chatstream",
		Short:        chatstreamShortDesc,
		Long:         chatstreamLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .chatstream/ config directory")

	// Add subcommands
	cmd.AddCommand(chatcmder.NewChatCmd())
	cmd.AddCommand(authcmder.NewAuthCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(mockcmder.NewMockCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
