package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/camline/camline/pkg/jobs"
	"github.com/camline/camline/pkg/pipeline"
)

func newGenerateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate <layout|gcode|drilling>",
		Short: "Generate a manufacturing artifact for the active order",
		Long: `Run one pipeline stage and wait for its artifact.

Stage dependencies are handled transparently: generating the cutting
program (gcode) first generates the cutting layout when none exists.
The gcode and drilling stages need a machine profile; without one the
request is deferred and 'camline profile set <id>' both selects the
profile and runs the deferred stage.`,
		Example: `  # Generate the cutting layout
  camline generate layout

  # Generate the CNC cutting program (layout is generated if missing)
  camline generate gcode`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"layout", "gcode", "drilling"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			kind := jobs.Kind(args[0])
			if err := kind.Validate(); err != nil {
				return err
			}

			a, err := newApp(ctx, "")
			if err != nil {
				return err
			}
			defer a.close(ctx)

			if a.sess.NeedsRecalculation() {
				return pipeline.NewPreconditionError(
					"structural changes pending, run 'camline recalculate' first")
			}

			state, err := a.orch.Generate(ctx, kind)
			if err != nil {
				if pipeline.IsPrecondition(err) && !a.gate.IsSelected() {
					printResult([]string{
						fmt.Sprintf("The %s stage needs a machine profile.", kind),
						"Select one with 'camline profile set <id>' to continue.",
					}, state)
					return nil
				}
				return err
			}

			printResult([]string{
				fmt.Sprintf("%s ready (job %s)", kind, state.JobID),
				fmt.Sprintf("  artifact: %s", state.ArtifactRef),
			}, state)
			return nil
		},
	}

	return cmd
}
