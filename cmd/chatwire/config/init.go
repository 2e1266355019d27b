package configcmder

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatwire/pkg/cliui"
	"github.com/papercomputeco/chatwire/pkg/config"
	"github.com/papercomputeco/chatwire/pkg/dotdir"
)

const initLongDesc string = `Write a starting config.toml.

Without --preset the file holds the defaults. A preset points the proxy at a
known upstream and pins its transformer family:

  openai   https://api.openai.com                           family openai
  qwen     https://dashscope.aliyuncs.com/compatible-mode   family qwen
  ollama   http://localhost:11434                           family ollama

--local creates ./.chatwire/ in the current directory, which takes
precedence over ~/.chatwire/ for commands run from here.

Examples:
  chatwire config init --preset ollama
  chatwire config init --local --preset qwen
  chatwire config init --force`

const initShortDesc string = "Write a starting config.toml"

type initOptions struct {
	preset string
	local  bool
	force  bool
}

func newInitCmd() *cobra.Command {
	opts := &initOptions{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: initShortDesc,
		Long:  initLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runInit(cmd, opts, configDir)
		},
	}

	cmd.Flags().StringVarP(&opts.preset, "preset", "p", "",
		fmt.Sprintf("Upstream preset (%s)", strings.Join(config.ValidPresetNames(), ", ")))
	cmd.Flags().BoolVar(&opts.local, "local", false, "Create .chatwire/ in the current directory")
	cmd.Flags().BoolVar(&opts.force, "force", false, "Overwrite an existing config.toml")

	_ = cmd.RegisterFlagCompletionFunc("preset", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return config.ValidPresetNames(), cobra.ShellCompDirectiveNoFileComp
	})

	return cmd
}

func runInit(cmd *cobra.Command, opts *initOptions, configDir string) error {
	cfg := config.NewDefaultConfig()
	if opts.preset != "" {
		var err error
		if cfg, err = config.PresetConfig(opts.preset); err != nil {
			return err
		}
	}

	if opts.local {
		if configDir != "" {
			return errors.New("--local and --config-dir are mutually exclusive")
		}
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("getting current directory: %w", err)
		}
		configDir = filepath.Join(cwd, dotdir.DirName)
	}

	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if target := cfger.GetTarget(); target != "" && !opts.force {
		if _, err := os.Stat(target); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", target)
		}
	}

	if err := cfger.SaveConfig(cfg); err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	printTarget(w, cfger)
	fmt.Fprintf(w, "  %s %s\n", cliui.SuccessMark, cliui.KeyValue("proxy.upstream", cfg.Proxy.Upstream))
	fmt.Fprintf(w, "  %s %s\n\n", cliui.SuccessMark, cliui.KeyValue("proxy.family", cfg.Proxy.Family))
	return nil
}
