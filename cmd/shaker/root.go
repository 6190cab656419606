package main

import (
	"github.com/spf13/cobra"

	"github.com/salt-formulas/shaker/pkg/cli/check"
	"github.com/salt-formulas/shaker/pkg/cli/install"
	"github.com/salt-formulas/shaker/pkg/cli/update"
	"github.com/salt-formulas/shaker/pkg/version"
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     version.CLIName,
		Short:   "Resolve and install salt formula dependencies",
		Version: version.Version,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			initLogger(cmd)
		},
	}

	cmd.PersistentFlags().String("root-dir", ".", "Project directory containing metadata.yml")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable informational output")
	cmd.PersistentFlags().Bool("debug", false, "Enable debug output")

	cmd.AddCommand(check.NewCommand())
	cmd.AddCommand(install.NewCommand())
	cmd.AddCommand(update.NewCommand())

	return cmd
}
