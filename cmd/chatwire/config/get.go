package configcmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatwire/pkg/cliui"
	"github.com/papercomputeco/chatwire/pkg/config"
)

const getLongDesc string = `Get a configuration value.

Prints the value stored in config.toml, or the default when the key is not
set there.

Examples:
  chatwire config get proxy.family
  chatwire config get eventstream.brokers`

const getShortDesc string = "Get a configuration value"

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "get <key>",
		Short:             getShortDesc,
		Long:              getLongDesc,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: completeKeys,
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runGet(cmd, args[0], configDir)
		},
	}
}

func runGet(cmd *cobra.Command, key, configDir string) error {
	if !config.IsValidConfigKey(key) {
		return unknownKeyError(key)
	}

	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	value, err := cfger.GetConfigValue(key)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	printTarget(w, cfger)
	fmt.Fprintf(w, "  %s\n\n", cliui.KeyValue(key, value))
	return nil
}
