package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRecalculateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recalculate",
		Short: "Recompute the derived BOM from the structural fields",
		Long: `Persist the structural fields and ask the service to regenerate the
derived bill-of-materials (panels, edge bands, fasteners). On success
the recalculated state becomes the new baseline and pending structural
changes are confirmed. Existing CAM artifacts are not touched; rerun
'camline generate' to refresh them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, "")
			if err != nil {
				return err
			}
			defer a.close(ctx)

			if err := a.sess.Recalculate(ctx); err != nil {
				return err
			}

			spec := a.sess.Spec()
			summary := spec.ComputeSummary()
			printResult([]string{
				fmt.Sprintf("Recalculated order %s", spec.OrderID),
				fmt.Sprintf("  panels:           %d", summary.PanelCount),
				fmt.Sprintf("  panel area:       %.2f m2", summary.PanelAreaM2),
				fmt.Sprintf("  edge band length: %.0f mm", summary.EdgeBandLengthMM),
				fmt.Sprintf("  hardware cost:    %.2f", summary.HardwareCost),
			}, spec)
			return nil
		},
	}

	return cmd
}
