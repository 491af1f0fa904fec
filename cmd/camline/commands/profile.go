package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newProfileCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or select the machine profile",
		Long: `The machine profile selects the CNC controller dialect the cutting and
drilling programs are generated for. There is no default: until a
profile is selected, the gcode and drilling stages refuse to run.`,
	}

	cmd.AddCommand(newProfileShowCommand())
	cmd.AddCommand(newProfileSetCommand())

	return cmd
}

func newProfileShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the selected machine profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, "")
			if err != nil {
				return err
			}
			defer a.close(ctx)

			if !a.gate.IsSelected() {
				printResult([]string{"No machine profile selected."}, map[string]interface{}{
					"selected": false,
				})
				return nil
			}
			printResult([]string{
				fmt.Sprintf("Machine profile: %s", a.gate.Profile()),
			}, map[string]interface{}{
				"selected": true,
				"profile":  a.gate.Profile(),
			})
			return nil
		},
	}
}

func newProfileSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set <profile-id>",
		Short: "Select the machine profile",
		Example: `  camline profile set biesse_rover
  camline profile set homag_centateq`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, "")
			if err != nil {
				return err
			}
			defer a.close(ctx)

			if err := a.gate.Select(ctx, args[0]); err != nil {
				return err
			}
			printResult([]string{
				fmt.Sprintf("Machine profile set to %s.", args[0]),
			}, map[string]interface{}{
				"selected": true,
				"profile":  args[0],
			})
			return nil
		},
	}
}
