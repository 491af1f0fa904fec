package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newResumeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume <order-id>",
		Short: "Resume editing an order",
		Long: `Load the order's current specification from the service and make it
the active order for the following commands. The loaded state becomes
the baseline for change classification; previously generated artifacts
are restored from the local store.`,
		Example: `  # Resume an order
  camline resume order-4711`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, args[0])
			if err != nil {
				return err
			}
			defer a.close(ctx)

			spec := a.sess.Spec()
			summary := spec.ComputeSummary()

			lines := []string{
				fmt.Sprintf("Resumed order %s", spec.OrderID),
				fmt.Sprintf("  type:       %s", spec.FurnitureType),
				fmt.Sprintf("  dimensions: %.0f x %.0f x %.0f mm",
					spec.Dimensions.WidthMM, spec.Dimensions.HeightMM, spec.Dimensions.DepthMM),
				fmt.Sprintf("  material:   %s %.0f mm", spec.BodyMaterial.Type, spec.BodyMaterial.ThicknessMM),
				fmt.Sprintf("  panels:     %d", summary.PanelCount),
			}
			if a.gate.IsSelected() {
				lines = append(lines, fmt.Sprintf("  profile:    %s", a.gate.Profile()))
			} else {
				lines = append(lines, "  profile:    not selected")
			}

			printResult(lines, spec)
			return nil
		},
	}

	return cmd
}
