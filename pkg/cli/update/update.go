// Package update implements the update subcommand: recalculate the whole
// dependency graph from metadata.yml, install it, and rewrite the lockfile.
package update

import (
	"fmt"

	"github.com/pingcap/errors"
	"github.com/spf13/cobra"

	"github.com/salt-formulas/shaker/pkg/cli/clicommon"
	"github.com/salt-formulas/shaker/pkg/metadata"
	"github.com/salt-formulas/shaker/pkg/resolver"
	"github.com/salt-formulas/shaker/pkg/workspace"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Recalculate dependencies from metadata.yml, install them and pin the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := clicommon.LoadApp(cmd)
			if err != nil {
				return err
			}
			simulate, err := cmd.Flags().GetBool("simulate")
			if err != nil {
				return errors.Wrap(err, "get simulate flag")
			}
			backup, err := cmd.Flags().GetBool("backup")
			if err != nil {
				return errors.Wrap(err, "get backup flag")
			}

			r, err := app.GraphResolver()
			if err != nil {
				return err
			}
			if err := r.Resolve(cmd.Context(), resolver.Options{IgnoreLocalRequirements: true}); err != nil {
				return err
			}

			if simulate {
				fmt.Fprintln(cmd.OutOrStdout(), "Simulation mode, no changes will be made. Resolved requirements:") //nolint:errcheck
				for _, line := range r.RequirementsLines() {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", line) //nolint:errcheck
				}
				return nil
			}

			m := app.Materializer(false)
			updated, failed, err := m.Install(cmd.Context(), r.Dependencies(), workspace.InstallOptions{
				Overwrite:   true,
				RemoteCheck: true,
			})
			if err != nil {
				return err
			}
			if failed > 0 {
				return errors.Errorf("%d of %d formulas failed to install", failed, updated+failed)
			}

			if _, err := metadata.WriteRequirementsFile(app.RequirementsPath(), r.PinnedLines(), true, backup); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated %d formulas\n", updated) //nolint:errcheck
			return nil
		},
	}
	cmd.Flags().Bool("simulate", false, "Resolve and print the requirements without touching the filesystem")
	cmd.Flags().Bool("backup", false, "Keep the previous requirements file as a .last copy")
	return cmd
}
