package cmd

import (
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"time"

	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k"
	"github.com/jpfielding/htj2k.go/pkg/logging"
	"github.com/spf13/cobra"
)

// NewCompressCmd encodes an image file into an HTJ2K codestream
func NewCompressCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compress",
		Short: "encode an image as an HTJ2K codestream",
		Long:  "Reads a PGM/PPM, PNG, TIFF or BMP image and writes a .j2c HTJ2K codestream.",
		RunE: func(cmd *cobra.Command, args []string) error {
			in, _ := cmd.Flags().GetString("input")
			out, _ := cmd.Flags().GetString("output")
			if in == "" || out == "" {
				return fmt.Errorf("--input and --output are required")
			}
			opts, err := compressOptions(cmd)
			if err != nil {
				return err
			}
			strict, _ := cmd.Flags().GetBool("strict")
			ctx := logging.AppendCtx(ctx, slog.String("cmd", "compress"), slog.String("input", in))
			opts.Diagnostics = htj2k.NewDiagnostics(slog.Default())

			img, err := readImage(ctx, in, strict, opts.Diagnostics)
			if err != nil {
				return err
			}
			if s, _ := cmd.Flags().GetString("image-offset"); s != "" {
				x, y, err := parsePair(s)
				if err != nil {
					return err
				}
				img.Offset = image.Point{X: x, Y: y}
			}

			start := time.Now()
			data, m, err := htj2k.EncodeImage(ctx, img, opts)
			if err != nil {
				return err
			}
			err = writeFile(out, func(w io.Writer) error {
				_, err := w.Write(data)
				return err
			})
			if err != nil {
				return fmt.Errorf("failed to write codestream: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Elapsed time = %f\n", time.Since(start).Seconds())
			slog.DebugContext(ctx, "compressed",
				"run", m.RunID, "config", m.ConfigID,
				"tiles", m.Tiles, "blocks", m.CodeBlocks, "passes", m.Passes,
				"bytes", m.Bytes, "iterations", m.Iterations, "events", m.Events)
			return nil
		},
	}
	pf := cmd.PersistentFlags()
	pf.StringP("input", "i", "", "input image (pgm, ppm, png, tiff, bmp)")
	pf.StringP("output", "o", "", "output codestream")
	pf.Int("num-decomps", 5, "number of wavelet decompositions")
	pf.Float64("qstep", 0, "irreversible base quantization step, 0 = 0.0039")
	pf.Bool("reversible", false, "lossless 5/3 path")
	pf.Bool("color-trans", true, "colour transform on the first three components")
	pf.String("prog-order", "RPCL", "progression order (LRCP, RLCP, RPCL, PCRL, CPRL)")
	pf.String("block-size", "{64,64}", "code-block {height,width}")
	pf.String("precincts", "", "precinct sizes {x,y},{x,y},... from the coarsest resolution")
	pf.String("tile-offset", "", "tile grid offset {x,y}")
	pf.String("tile-size", "", "tile {width,height}")
	pf.String("image-offset", "", "image offset {x,y} from the grid origin")
	pf.String("tileparts", "", "tile-part divisions: R, C or RC")
	pf.Bool("tlm", false, "write a TLM marker")
	pf.Float64("bpp", 0, "rate target in bits per pixel, 0 = keep every pass")
	pf.Bool("per-tile-rate", false, "split the rate target over tiles by area")
	pf.Int("layers", 1, "quality layers")
	pf.Bool("strict", false, "fail on samples outside the declared precision instead of clipping")
	pf.String("comment", "", "COM marker text")
	pf.Int("workers", 0, "worker goroutines, 0 = GOMAXPROCS")
	return cmd
}
