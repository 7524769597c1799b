package cmd

import (
	"fmt"
	"image"
	"strconv"
	"strings"

	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k"
	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/codestream"
	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/packet"
	"github.com/spf13/cobra"
)

// parsePair reads "{x,y}" or "x,y".
func parsePair(s string) (int, int, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(strings.TrimPrefix(s, "{"), "}")
	a, b, ok := strings.Cut(s, ",")
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q is not a pair", htj2k.ErrConfiguration, s)
	}
	x, err := strconv.Atoi(strings.TrimSpace(a))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q: %v", htj2k.ErrConfiguration, s, err)
	}
	y, err := strconv.Atoi(strings.TrimSpace(b))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q: %v", htj2k.ErrConfiguration, s, err)
	}
	return x, y, nil
}

// parseSizes reads "{x,y},{x,y},..." as widths and heights.
func parseSizes(s string) ([]htj2k.Size, error) {
	var sizes []htj2k.Size
	for _, part := range strings.Split(s, "},") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		w, h, err := parsePair(part)
		if err != nil {
			return nil, err
		}
		sizes = append(sizes, htj2k.Size{W: w, H: h})
	}
	return sizes, nil
}

// parseTileParts reads any combination of R and C.
func parseTileParts(s string) (codestream.Division, error) {
	var d codestream.Division
	for _, r := range strings.ToUpper(s) {
		switch r {
		case 'R':
			d.Resolution = true
		case 'C':
			d.Component = true
		default:
			return d, fmt.Errorf("%w: tile-part division %q, want R, C or RC", htj2k.ErrConfiguration, s)
		}
	}
	return d, nil
}

// parseSkip reads "x" or "x,y". Reading and reconstruction always skip the
// same number of resolutions, so y must equal x when given.
func parseSkip(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	a, b, two := strings.Cut(s, ",")
	x, err := strconv.Atoi(strings.TrimSpace(a))
	if err != nil || x < 0 {
		return 0, fmt.Errorf("%w: skip-res %q", htj2k.ErrConfiguration, s)
	}
	if two {
		y, err := strconv.Atoi(strings.TrimSpace(b))
		if err != nil || y != x {
			return 0, fmt.Errorf("%w: skip-res %q, reconstruction must skip what reading skips", htj2k.ErrConfiguration, s)
		}
	}
	return x, nil
}

// compressOptions maps the compress flags onto encoder options.
func compressOptions(cmd *cobra.Command) (*htj2k.Options, error) {
	f := cmd.Flags()
	o := htj2k.DefaultOptions()
	o.Levels, _ = f.GetInt("num-decomps")
	o.QStep, _ = f.GetFloat64("qstep")
	o.Reversible, _ = f.GetBool("reversible")
	o.ColourTransform, _ = f.GetBool("color-trans")
	o.TLM, _ = f.GetBool("tlm")
	o.Layers, _ = f.GetInt("layers")
	o.BitsPerPixel, _ = f.GetFloat64("bpp")
	o.PerTileRate, _ = f.GetBool("per-tile-rate")
	o.Comment, _ = f.GetString("comment")
	o.Workers, _ = f.GetInt("workers")

	var err error
	prog, _ := f.GetString("prog-order")
	if o.Progression, err = packet.ParseProgression(prog); err != nil {
		return nil, err
	}
	if s, _ := f.GetString("block-size"); s != "" {
		// the pair is height then width
		h, w, err := parsePair(s)
		if err != nil {
			return nil, err
		}
		o.Block = htj2k.Size{W: w, H: h}
	}
	if s, _ := f.GetString("precincts"); s != "" {
		if o.Precincts, err = parseSizes(s); err != nil {
			return nil, err
		}
	}
	if s, _ := f.GetString("tile-size"); s != "" {
		w, h, err := parsePair(s)
		if err != nil {
			return nil, err
		}
		o.TileSize = htj2k.Size{W: w, H: h}
	}
	if s, _ := f.GetString("tile-offset"); s != "" {
		x, y, err := parsePair(s)
		if err != nil {
			return nil, err
		}
		o.TileOffset = image.Point{X: x, Y: y}
	}
	if s, _ := f.GetString("tileparts"); s != "" {
		if o.TileParts, err = parseTileParts(s); err != nil {
			return nil, err
		}
	}
	return o, nil
}
