// Package versioncmder
package versioncmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatwire/pkg/transformer"
	"github.com/papercomputeco/chatwire/pkg/utils"
)

type VersionCommander struct{}

func NewVersionCmd() *cobra.Command {
	cmder := &VersionCommander{}

	cmd := &cobra.Command{
		Use:   "version",
		Short: "displays version",
		Long:  "displays the version of this CLI and the transformer families it supports",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	return cmd
}

func (c *VersionCommander) run(cmd *cobra.Command) error {
	fmt.Fprintf(cmd.OutOrStdout(), "Version: %s\nSha: %s\nBuilt at: %s\nFamilies: %v\n",
		utils.Version, utils.Sha, utils.Buildtime, transformer.SupportedFamilies())
	return nil
}
