// Package configcmder provides the config command for managing the
// persistent chatwire configuration stored in the .chatwire/ directory.
package configcmder

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatwire/pkg/cliui"
	"github.com/papercomputeco/chatwire/pkg/config"
)

const configLongDesc string = `Manage persistent chatwire configuration.

Configuration is stored as config.toml in the .chatwire/ directory and
provides default values for command flags. Flags and CHATWIRE_ environment
variables take precedence over config file values.

Keys use dotted notation matching the TOML section structure:
  proxy.listen, proxy.upstream, proxy.family, proxy.workers,
  eventstream.provider, eventstream.brokers, eventstream.topic,
  eventstream.client_id, log.json, log.debug, log.file

Examples:
  chatwire config init --preset ollama
  chatwire config set proxy.family qwen
  chatwire config set proxy.upstream https://dashscope.aliyuncs.com/compatible-mode
  chatwire config get proxy.family
  chatwire config list`

const configShortDesc string = "Manage persistent chatwire configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

func completeKeys(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
	if len(args) == 0 {
		return config.ValidConfigKeys(), cobra.ShellCompDirectiveNoFileComp
	}
	return nil, cobra.ShellCompDirectiveNoFileComp
}

func unknownKeyError(key string) error {
	return fmt.Errorf("unknown config key: %q\n\nValid keys: %s",
		key, strings.Join(config.ValidConfigKeys(), ", "))
}

func printTarget(w io.Writer, cfger *config.Configer) {
	if target := cfger.GetTarget(); target != "" {
		fmt.Fprintf(w, "\n  %s %s\n\n",
			cliui.KeyStyle.Render("Config file:"),
			cliui.DimStyle.Render(target),
		)
		return
	}
	fmt.Fprintf(w, "\n  %s\n\n", cliui.DimStyle.Render("No config file found. Using defaults."))
}
