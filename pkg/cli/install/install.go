// Package install implements the install subcommand: materialize the pinned
// lockfile as-is, without recalculating the graph.
package install

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
		Use:   "install",
		Short: "Install the formulas pinned in formula-requirements.txt",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := clicommon.LoadApp(cmd)
			if err != nil {
				return err
			}
			simulate, err := cmd.Flags().GetBool("simulate")
			if err != nil {
				return errors.Wrap(err, "get simulate flag")
			}
			remoteCheck, err := cmd.Flags().GetBool("remote-check")
			if err != nil {
				return errors.Wrap(err, "get remote-check flag")
			}

			deps := app.LocalRequirements
			if len(deps) == 0 {
				return errors.Errorf("no requirements found in %q, run update first", app.RequirementsPath())
			}
			if remoteCheck {
				if err := resolver.PinSet(cmd.Context(), app.Client, deps, false); err != nil {
					return err
				}
			}

			m := app.Materializer(simulate)
			updated, failed, err := m.Install(cmd.Context(), deps, workspace.InstallOptions{
				RemoteCheck: remoteCheck,
			})
			if err != nil {
				return err
			}
			if failed > 0 {
				return errors.Errorf("%d of %d formulas failed to install", failed, updated+failed)
			}

			if remoteCheck && !simulate {
				if _, err := metadata.WriteRequirementsFile(app.RequirementsPath(), deps.PinnedLines(), true, false); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Installed %d formulas\n", updated) //nolint:errcheck
			return nil
		},
	}
	cmd.Flags().Bool("simulate", false, "Log the actions without touching the filesystem")
	cmd.Flags().Bool("remote-check", false, "Re-resolve pinned tags against the remote before installing")
	return cmd
}
