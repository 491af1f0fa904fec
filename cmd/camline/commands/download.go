package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/camline/camline/pkg/jobs"
)

func newDownloadCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "download <layout|gcode|drilling>",
		Short: "Download a generated artifact",
		Long: `Resolve the last successful artifact of a stage to its bytes and write
them to a file. The stage must have been generated in this or a
previous session.`,
		Example: `  # Save the cutting program
  camline download gcode -o order-4711.nc

  # Print the layout DXF to stdout
  camline download layout -o -`,
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

			rec, err := a.store.GetArtifact(ctx, a.sess.OrderID(), kind)
			if err != nil {
				return fmt.Errorf("no %s artifact recorded, run 'camline generate %s' first", kind, kind)
			}

			body, err := a.client.DownloadArtifact(ctx, rec.JobID)
			if err != nil {
				return err
			}
			defer body.Close()

			var dst io.Writer
			if output == "-" {
				dst = os.Stdout
			} else {
				file, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("failed to create output file: %w", err)
				}
				defer file.Close()
				dst = file
			}

			written, err := io.Copy(dst, body)
			if err != nil {
				return fmt.Errorf("failed to write artifact: %w", err)
			}

			if output != "-" {
				fmt.Printf("Wrote %s (%d bytes) to %s\n", rec.ArtifactRef, written, output)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "-", "output file path, '-' for stdout")

	return cmd
}
