package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/camline/camline/pkg/bom"
)

func newSetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <field>=<value>...",
		Short: "Edit fields of the active order's specification",
		Long: `Apply one or more field edits to the active specification. Every edit
is classified: incidental edits are saved automatically, structural
edits (dimensions, body material, furniture type) set the
recalculation flag and must be confirmed with 'camline recalculate'.

Fields:
  width, height, depth          outer dimensions in mm (structural)
  material                      body material type (structural)
  thickness                     body material thickness in mm (structural)
  type                          furniture type (structural)
  hardware.<name>.quantity      hardware piece count (incidental)
  panel.<name>.quantity         panel count (incidental)`,
		Example: `  # Widen the cabinet (structural, requires recalculation)
  camline set width=800

  # Bump a hardware count (saved automatically)
  camline set hardware.hinge.quantity=6

  # Several edits at once
  camline set width=800 depth=600 material=mdf`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, "")
			if err != nil {
				return err
			}
			defer a.close(ctx)

			structural := false
			for _, arg := range args {
				key, value, ok := strings.Cut(arg, "=")
				if !ok {
					return fmt.Errorf("invalid edit %q, expected <field>=<value>", arg)
				}

				mutate, err := buildMutation(key, value)
				if err != nil {
					return err
				}

				class, err := a.sess.ApplyEdit(mutate)
				if err != nil {
					return fmt.Errorf("edit %q rejected: %w", arg, err)
				}
				if class.IsStructural() {
					structural = true
				}
			}

			if structural {
				printResult([]string{
					"Structural change applied.",
					"The derived BOM is out of date, run 'camline recalculate' to confirm.",
				}, map[string]interface{}{
					"classification":         "structural",
					"recalculation_required": true,
				})
				return nil
			}

			// A one-shot invocation exits before the debounce fires, so
			// persist the burst now.
			if err := a.sess.Flush(ctx); err != nil {
				return err
			}
			printResult([]string{"Saved."}, map[string]interface{}{
				"classification": "incidental",
				"saved":          true,
			})
			return nil
		},
	}

	return cmd
}

// buildMutation maps a field path to a specification mutation.
func buildMutation(key, value string) (func(*bom.Specification), error) {
	switch key {
	case "width", "height", "depth", "thickness":
		mm, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("field %s needs a numeric value, got %q", key, value)
		}
		return func(spec *bom.Specification) {
			switch key {
			case "width":
				spec.Dimensions.WidthMM = mm
			case "height":
				spec.Dimensions.HeightMM = mm
			case "depth":
				spec.Dimensions.DepthMM = mm
			case "thickness":
				spec.BodyMaterial.ThicknessMM = mm
			}
		}, nil
	case "material":
		return func(spec *bom.Specification) {
			spec.BodyMaterial.Type = value
		}, nil
	case "type":
		return func(spec *bom.Specification) {
			spec.FurnitureType = bom.FurnitureType(value)
		}, nil
	}

	parts := strings.Split(key, ".")
	if len(parts) == 3 && parts[2] == "quantity" {
		quantity, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("field %s needs an integer value, got %q", key, value)
		}
		name := parts[1]
		switch parts[0] {
		case "hardware":
			return func(spec *bom.Specification) {
				for i := range spec.Hardware {
					if spec.Hardware[i].Name == name {
						spec.Hardware[i].Quantity = quantity
					}
				}
			}, nil
		case "panel":
			return func(spec *bom.Specification) {
				for i := range spec.Panels {
					if spec.Panels[i].Name == name {
						spec.Panels[i].Quantity = quantity
					}
				}
			}, nil
		}
	}

	return nil, fmt.Errorf("unknown field: %s", key)
}
