package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k"
	"github.com/spf13/cobra"
)

// NewInfoCmd prints the main header of a codestream
func NewInfoCmd(ctx context.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info",
		Short: "describe an HTJ2K codestream",
		Long:  "Parses the headers of a .j2c codestream and prints its geometry and coding parameters.",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("input")
			if path == "" && len(args) > 0 {
				path = args[0]
			}
			if path == "" {
				return fmt.Errorf("file path is required. Use --input flag or provide as argument")
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to open file: %w", err)
			}
			info, err := htj2k.Inspect(data)
			if err != nil {
				return fmt.Errorf("parse error: %w", err)
			}
			switch format, _ := cmd.Flags().GetString("format"); format {
			case "text":
				printInfo(cmd.OutOrStdout(), info)
			default:
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}
			return nil
		},
	}
	pf := cmd.PersistentFlags()
	pf.StringP("input", "i", "", "codestream path")
	pf.StringP("format", "f", "json", "output format (text|json)")
	return cmd
}

func printInfo(w io.Writer, info *htj2k.Info) {
	fmt.Fprintf(w, "Image: %dx%d at %d,%d\n", info.Width, info.Height, info.Offset.X, info.Offset.Y)
	for i, c := range info.Components {
		sign := "unsigned"
		if c.Signed {
			sign = "signed"
		}
		fmt.Fprintf(w, "Component %d: %d-bit %s, separation %dx%d\n", i, c.Precision, sign, c.XRsiz, c.YRsiz)
	}
	fmt.Fprintf(w, "Tiles: %d of %dx%d at %d,%d, %d tile-parts\n", info.Tiles, info.TileSize.W, info.TileSize.H, info.TileOffset.X, info.TileOffset.Y, info.TileParts)
	transform := "9/7 irreversible"
	if info.Reversible {
		transform = "5/3 reversible"
	}
	fmt.Fprintf(w, "Transform: %s, %d levels, colour transform %t\n", transform, info.Levels, info.ColourTransform)
	fmt.Fprintf(w, "Progression: %s, %d layers\n", info.Progression, info.Layers)
	fmt.Fprintf(w, "Code-block: %dx%d\n", info.Block.W, info.Block.H)
	for r, p := range info.Precincts {
		fmt.Fprintf(w, "Precinct r%d: %dx%d\n", r, p.W, p.H)
	}
	fmt.Fprintf(w, "MagB: %d, TLM %t\n", info.MagB, info.TLM)
	for _, c := range info.Comments {
		fmt.Fprintf(w, "Comment: %s\n", c)
	}
}
