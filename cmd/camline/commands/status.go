package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/camline/camline/pkg/jobs"
)

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the active order's editing and pipeline state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, "")
			if err != nil {
				return err
			}
			defer a.close(ctx)

			stages := a.orch.Stages()
			profile := a.gate.Profile()
			if profile == "" {
				profile = "(not selected)"
			}

			lines := []string{
				fmt.Sprintf("Order %s", a.sess.OrderID()),
				fmt.Sprintf("  save status:    %s", a.sess.SaveStatus()),
				fmt.Sprintf("  needs recalc:   %t", a.sess.NeedsRecalculation()),
				fmt.Sprintf("  profile:        %s", profile),
				"Stages:",
			}
			for _, kind := range []jobs.Kind{jobs.KindLayout, jobs.KindGCode, jobs.KindDrilling} {
				state := stages[kind]
				line := fmt.Sprintf("  %-9s %s", kind, state.Status)
				if state.ArtifactRef != "" {
					line += fmt.Sprintf("  %s", state.ArtifactRef)
				}
				if state.Err != nil {
					line += fmt.Sprintf("  (%s)", state.Err.Message)
				}
				lines = append(lines, line)
			}

			printResult(lines, map[string]interface{}{
				"order_id":            a.sess.OrderID(),
				"save_status":         a.sess.SaveStatus(),
				"needs_recalculation": a.sess.NeedsRecalculation(),
				"machine_profile":     a.gate.Profile(),
				"stages":              stages,
			})
			return nil
		},
	}
}
