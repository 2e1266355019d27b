package configcmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatwire/pkg/cliui"
	"github.com/papercomputeco/chatwire/pkg/config"
)

const listLongDesc string = `List all configuration values.

Examples:
  chatwire config list`

const listShortDesc string = "List all configuration values"

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: listShortDesc,
		Long:  listLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runList(cmd, configDir)
		},
	}
}

func runList(cmd *cobra.Command, configDir string) error {
	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	w := cmd.OutOrStdout()
	printTarget(w, cfger)

	for _, key := range config.ValidConfigKeys() {
		value, err := cfger.GetConfigValue(key)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  %s\n", cliui.KeyValue(key, value))
	}
	fmt.Fprintln(w)

	return nil
}
