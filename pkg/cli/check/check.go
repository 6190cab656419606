// Package check implements the check subcommand: compare the pinned lockfile
// against what a fresh resolution of metadata.yml would produce.
package check

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/salt-formulas/shaker/pkg/cli/clicommon"
	"github.com/salt-formulas/shaker/pkg/metadata"
	"github.com/salt-formulas/shaker/pkg/resolver"
)

func NewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Report differences between the pinned requirements and a fresh resolution",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := clicommon.LoadApp(cmd)
			if err != nil {
				return err
			}

			current := app.LocalRequirements
			if err := resolver.PinSet(cmd.Context(), app.Client, current, false); err != nil {
				return err
			}

			r, err := app.GraphResolver()
			if err != nil {
				return err
			}
			if err := r.Resolve(cmd.Context(), resolver.Options{IgnoreLocalRequirements: true}); err != nil {
				return err
			}

			changes := metadata.CompareRequirements(current.RequirementLines(), r.RequirementsLines())
			if len(changes) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No formula requirements changes found") //nolint:errcheck
				return nil
			}
			for _, change := range changes {
				switch {
				case change.Old == "":
					fmt.Fprintf(cmd.OutOrStdout(), "New entry %s\n", change.New) //nolint:errcheck
				case change.New == "":
					fmt.Fprintf(cmd.OutOrStdout(), "Deprecated entry %s\n", change.Old) //nolint:errcheck
				default:
					fmt.Fprintf(cmd.OutOrStdout(), "Changed entry %s != %s\n", change.Old, change.New) //nolint:errcheck
				}
			}
			return nil
		},
	}
}
