package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k"
	"github.com/jpfielding/htj2k.go/pkg/logging"
	"github.com/spf13/cobra"
)

// NewExpandCmd decodes an HTJ2K codestream into an image file
func NewExpandCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expand",
		Short: "decode an HTJ2K codestream to an image",
		Long:  "Reads a .j2c HTJ2K codestream and writes a PGM/PPM, PNG, TIFF or BMP image.",
		RunE: func(cmd *cobra.Command, args []string) error {
			in, _ := cmd.Flags().GetString("input")
			out, _ := cmd.Flags().GetString("output")
			if in == "" || out == "" {
				return fmt.Errorf("--input and --output are required")
			}
			opts := &htj2k.DecodeOptions{}
			var err error
			s, _ := cmd.Flags().GetString("skip-res")
			if opts.SkipResolutions, err = parseSkip(s); err != nil {
				return err
			}
			opts.Resilient, _ = cmd.Flags().GetBool("resilient")
			opts.Workers, _ = cmd.Flags().GetInt("workers")
			ctx := logging.AppendCtx(ctx, slog.String("cmd", "expand"), slog.String("input", in))
			opts.Diagnostics = htj2k.NewDiagnostics(slog.Default())

			data, err := os.ReadFile(in)
			if err != nil {
				return fmt.Errorf("failed to open file: %w", err)
			}
			start := time.Now()
			img, m, err := htj2k.DecodeImage(ctx, data, opts)
			if err != nil {
				return err
			}
			if err := writeImage(out, img); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Elapsed time = %f\n", time.Since(start).Seconds())
			slog.DebugContext(ctx, "expanded",
				"run", m.RunID, "width", img.Width, "height", img.Height,
				"tiles", m.Tiles, "packets", m.Packets, "events", m.Events)
			return nil
		},
	}
	pf := cmd.PersistentFlags()
	pf.StringP("input", "i", "", "input codestream")
	pf.StringP("output", "o", "", "output image (pgm, ppm, png, tiff, bmp)")
	pf.String("skip-res", "", "resolutions to skip, x or x,x")
	pf.Bool("resilient", false, "zero-fill corrupt blocks and packets instead of failing")
	pf.Int("workers", 0, "worker goroutines, 0 = GOMAXPROCS")
	return cmd
}
