// Package chatwirecmder is the root chatwire command.
package chatwirecmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/papercomputeco/chatwire/cmd/chatwire/config"
	replaycmder "github.com/papercomputeco/chatwire/cmd/chatwire/replay"
	servecmder "github.com/papercomputeco/chatwire/cmd/chatwire/serve"
	versioncmder "github.com/papercomputeco/chatwire/cmd/version"
)

const chatwireLongDesc string = `Chatwire normalizes streamed chat completions.

OpenAI-compatible, DashScope (Qwen) and Ollama streams are rewritten into one
event-stream protocol: text, tool_calls, stop, usage and data frames, with
parallel tool-call fragments bound to their calls.

  chatwire serve             Run the normalizing proxy
  chatwire replay <file>     Normalize a captured stream
  chatwire config            Manage persistent configuration`

const chatwireShortDesc string = "Chatwire - streaming chat-completion normalizer"

func NewChatwireCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "chatwire",
		Short:        chatwireShortDesc,
		Long:         chatwireLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override the .chatwire/ config directory")

	cmd.AddCommand(servecmder.NewServeCmd())
	cmd.AddCommand(replaycmder.NewReplayCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
