package htj2k

import (
	"fmt"
	"image"
	"math/bits"
	"runtime"

	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/codestream"
	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/geom"
	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/packet"
	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/quant"
)

// Size is a width and height in samples.
type Size struct {
	W, H int
}

// Options configures encoding
type Options struct {
	Levels          int                // DWT decomposition levels (default: 5)
	QStep           float64            // irreversible base step, 0 = quant.DefaultQStep
	Reversible      bool               // 5/3 lossless path
	ColourTransform bool               // RCT/ICT on the first three components
	Progression     packet.Progression // packet order (default: RPCL)
	Block           Size               // code-block size (default: 64x64)
	// Precincts lists precinct sizes from the coarsest resolution; the last
	// entry repeats for finer ones. Empty means one precinct per resolution.
	Precincts    []Size
	TileSize     Size        // zero = a single tile
	TileOffset   image.Point // tile grid origin
	TileParts    codestream.Division
	TLM          bool
	Layers       int     // quality layers (default: 1)
	BitsPerPixel float64 // rate target in bits per pixel, 0 = keep every pass
	// PerTileRate splits the rate target over tiles by area instead of
	// optimizing the whole image at once
	PerTileRate bool
	Comment     string
	Workers     int // 0 = GOMAXPROCS

	Diagnostics *Diagnostics `json:"-"`
}

// DefaultOptions returns default encoding options
func DefaultOptions() *Options {
	return &Options{
		Levels:          5,
		ColourTransform: true,
		Progression:     packet.RPCL,
		Block:           Size{64, 64},
		Layers:          1,
	}
}

// DecodeOptions configures decoding
type DecodeOptions struct {
	// SkipResolutions drops the finest resolutions, halving the output size
	// for each one
	SkipResolutions int
	// Resilient zero-fills blocks and packets that fail to parse instead of
	// aborting
	Resilient bool
	// MaxSamples bounds the samples a header may declare across all
	// components; 0 means DefaultMaxSamples
	MaxSamples  int64
	Workers     int
	Diagnostics *Diagnostics `json:"-"`
}

// DefaultMaxSamples is the decode size limit when none is set: 128Mi
// samples, 512MiB of working coefficients.
const DefaultMaxSamples = 1 << 27

func (o *DecodeOptions) maxSamples() int64 {
	if o.MaxSamples <= 0 {
		return DefaultMaxSamples
	}
	return o.MaxSamples
}

func workers(n int) int {
	if n <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return n
}

// log2Exact returns n's exponent when n is a power of two.
func log2Exact(n int) (int, bool) {
	if n <= 0 || n&(n-1) != 0 {
		return 0, false
	}
	return bits.TrailingZeros(uint(n)), true
}

// style resolves the geometry options into COD parameters.
func (o *Options) style() (geom.Style, error) {
	s := geom.Style{Levels: o.Levels}
	var ok bool
	if s.CBW, ok = log2Exact(o.Block.W); !ok {
		return s, fmt.Errorf("%w: code-block width %d is not a power of two", ErrConfiguration, o.Block.W)
	}
	if s.CBH, ok = log2Exact(o.Block.H); !ok {
		return s, fmt.Errorf("%w: code-block height %d is not a power of two", ErrConfiguration, o.Block.H)
	}
	if o.Levels < 0 || o.Levels > geom.MaxLevels {
		return s, fmt.Errorf("%w: %d decomposition levels", ErrConfiguration, o.Levels)
	}
	if len(o.Precincts) == 0 {
		s.PPx, s.PPy = geom.UniformPrecincts(o.Levels)
	} else {
		for r := 0; r <= o.Levels; r++ {
			p := o.Precincts[min(r, len(o.Precincts)-1)]
			px, okx := log2Exact(p.W)
			py, oky := log2Exact(p.H)
			if !okx || !oky {
				return s, fmt.Errorf("%w: precinct %dx%d is not a power of two", ErrConfiguration, p.W, p.H)
			}
			s.PPx = append(s.PPx, px)
			s.PPy = append(s.PPy, py)
		}
	}
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// grid places the image and the tiles on the reference grid.
func (o *Options) grid(img *Image) (geom.Grid, error) {
	area := img.area()
	g := geom.Grid{
		XSiz: area.X1, YSiz: area.Y1,
		XOsiz: area.X0, YOsiz: area.Y0,
		XTOsiz: o.TileOffset.X, YTOsiz: o.TileOffset.Y,
		XTsiz: o.TileSize.W, YTsiz: o.TileSize.H,
	}
	if g.XTsiz == 0 && g.YTsiz == 0 {
		g.XTsiz, g.YTsiz = g.XSiz-g.XTOsiz, g.YSiz-g.YTOsiz
	}
	if err := g.Validate(); err != nil {
		return g, err
	}
	if g.NumTiles() > 65535 {
		return g, fmt.Errorf("%w: %d tiles", ErrConfiguration, g.NumTiles())
	}
	return g, nil
}

// validate fills defaults and rejects incompatible parameters before any
// coding work starts.
func (o *Options) validate() (*Options, error) {
	if o == nil {
		o = DefaultOptions()
	}
	v := *o
	if v.Layers == 0 {
		v.Layers = 1
	}
	if v.Block == (Size{}) {
		v.Block = Size{64, 64}
	}
	switch {
	case !v.Progression.Valid():
		return nil, fmt.Errorf("%w: progression order %d", ErrConfiguration, v.Progression)
	case v.Layers < 1 || v.Layers > 0xFFFF:
		return nil, fmt.Errorf("%w: %d quality layers", ErrConfiguration, v.Layers)
	case v.QStep < 0 || v.BitsPerPixel < 0:
		return nil, fmt.Errorf("%w: negative qstep or rate", ErrConfiguration)
	case v.Reversible && v.QStep > 0:
		return nil, fmt.Errorf("%w: qstep %g requests quantization on the reversible path", ErrConfiguration, v.QStep)
	case v.Reversible && v.BitsPerPixel > 0:
		return nil, fmt.Errorf("%w: rate target %g bpp truncates the reversible path", ErrConfiguration, v.BitsPerPixel)
	case v.TileSize.W < 0 || v.TileSize.H < 0 || (v.TileSize.W == 0) != (v.TileSize.H == 0):
		return nil, fmt.Errorf("%w: tile size %dx%d", ErrConfiguration, v.TileSize.W, v.TileSize.H)
	case len(v.Comment) > 0xFFFF-4:
		return nil, fmt.Errorf("%w: comment of %d bytes", ErrConfiguration, len(v.Comment))
	}
	if !v.Reversible && v.QStep == 0 {
		v.QStep = quant.DefaultQStep
	}
	return &v, nil
}
