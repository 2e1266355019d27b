package configcmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatwire/pkg/cliui"
	"github.com/papercomputeco/chatwire/pkg/config"
)

const setLongDesc string = `Set a configuration value.

Writes the value to config.toml, creating ~/.chatwire/ when no .chatwire/
directory exists yet. proxy.family must name a known transformer family.

Examples:
  chatwire config set proxy.family ollama
  chatwire config set proxy.upstream http://localhost:11434
  chatwire config set eventstream.provider kafka
  chatwire config set eventstream.brokers kafka-1:9092,kafka-2:9092`

const setShortDesc string = "Set a configuration value"

func newSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "set <key> <value>",
		Short:             setShortDesc,
		Long:              setLongDesc,
		Args:              cobra.ExactArgs(2),
		ValidArgsFunction: completeKeys,
		RunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runSet(cmd, args[0], args[1], configDir)
		},
	}
}

func runSet(cmd *cobra.Command, key, value, configDir string) error {
	if !config.IsValidConfigKey(key) {
		return unknownKeyError(key)
	}

	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := cfger.SetConfigValue(key, value); err != nil {
		return err
	}

	// The target is known only after the first save creates it.
	w := cmd.OutOrStdout()
	printTarget(w, cfger)
	fmt.Fprintf(w, "  %s Set %s\n\n", cliui.SuccessMark, cliui.KeyValue(key, value))
	return nil
}
