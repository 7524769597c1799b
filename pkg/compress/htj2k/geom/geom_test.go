package geom

import (
	"testing"

	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGrid_ClippedTiles(t *testing.T) {
	g := Grid{XSiz: 257, YSiz: 130, XTsiz: 128, YTsiz: 128}
	require.NoError(t, g.Validate())
	assert.Equal(t, 3, g.TilesX())
	assert.Equal(t, 2, g.TilesY())

	tiles := g.Tiles()
	require.Len(t, tiles, 6)
	assert.Equal(t, Rect{0, 0, 128, 128}, tiles[0])
	assert.Equal(t, 1, tiles[2].Width(), "last column is 257-2*128 wide")
	assert.Equal(t, 2, tiles[3].Height(), "last row is 130-128 high")
	assert.Equal(t, Rect{256, 128, 257, 130}, tiles[5])

	// a decoder rebuilding the grid from the same header fields agrees
	again := Grid{XSiz: 257, YSiz: 130, XTsiz: 128, YTsiz: 128}
	assert.Equal(t, tiles, again.Tiles())
}

func TestGrid_Offsets(t *testing.T) {
	g := Grid{XSiz: 100, YSiz: 50, XOsiz: 10, YOsiz: 5, XTsiz: 32, YTsiz: 32, XTOsiz: 0, YTOsiz: 0}
	require.NoError(t, g.Validate())
	assert.Equal(t, 4, g.TilesX())
	assert.Equal(t, 2, g.TilesY())
	assert.Equal(t, Rect{10, 5, 32, 32}, g.TileRect(0))
	assert.Equal(t, Rect{96, 32, 100, 50}, g.TileRect(7))
}

func TestGrid_Validate(t *testing.T) {
	tests := []struct {
		name string
		g    Grid
	}{
		{"empty image", Grid{XSiz: 10, YSiz: 10, XOsiz: 10, XTsiz: 8, YTsiz: 8}},
		{"zero tile", Grid{XSiz: 10, YSiz: 10}},
		{"tile offset past image offset", Grid{XSiz: 10, YSiz: 10, XOsiz: 2, XTOsiz: 3, XTsiz: 8, YTsiz: 8}},
		{"first tile misses origin", Grid{XSiz: 20, YSiz: 20, XOsiz: 9, XTsiz: 8, YTsiz: 8}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.g.Validate(), errs.ErrConfiguration)
		})
	}
}

func TestBandRect(t *testing.T) {
	tc := Rect{0, 0, 9, 7}
	assert.Equal(t, Rect{0, 0, 5, 4}, BandRect(tc, 1, LL))
	assert.Equal(t, Rect{0, 0, 4, 4}, BandRect(tc, 1, HL))
	assert.Equal(t, Rect{0, 0, 5, 3}, BandRect(tc, 1, LH))
	assert.Equal(t, Rect{0, 0, 4, 3}, BandRect(tc, 1, HH))

	// odd origin puts the extra sample in the high band
	odd := Rect{1, 1, 4, 4}
	assert.Equal(t, 1, BandRect(odd, 1, LL).Width())
	assert.Equal(t, 2, BandRect(odd, 1, HL).Width())
}

func TestLayout_BlocksClipped(t *testing.T) {
	ppx, ppy := UniformPrecincts(0)
	tc, err := Layout(Rect{0, 0, 100, 70}, 1, 1, Style{Levels: 0, CBW: 6, CBH: 6, PPx: ppx, PPy: ppy})
	require.NoError(t, err)
	require.Len(t, tc.Resolutions, 1)
	res := tc.Resolutions[0]
	require.Len(t, res.Precincts, 1)
	pb := res.Precincts[0].Bands[0]
	assert.Equal(t, 2, pb.BlocksX)
	assert.Equal(t, 2, pb.BlocksY)
	assert.Equal(t, Rect{0, 0, 64, 64}, pb.Blocks[0])
	assert.Equal(t, Rect{64, 64, 100, 70}, pb.Blocks[3])
}

func TestLayout_Precincts(t *testing.T) {
	// 3 levels, 32x32 precincts at every resolution above the coarsest
	s := Style{Levels: 3, CBW: 6, CBH: 6, PPx: []int{15, 5, 5, 5}, PPy: []int{15, 5, 5, 5}}
	tc, err := Layout(Rect{0, 0, 128, 96}, 1, 1, s)
	require.NoError(t, err)
	require.Len(t, tc.Resolutions, 4)

	top := tc.Resolutions[3]
	assert.Equal(t, Rect{0, 0, 128, 96}, top.Rect)
	assert.Equal(t, 4, top.PrecinctsX)
	assert.Equal(t, 3, top.PrecinctsY)
	require.Len(t, top.Bands, 3)
	// band code-blocks are clipped to half the precinct size
	assert.Equal(t, 4, top.Bands[0].CBW)
	for _, p := range top.Precincts {
		for _, pb := range p.Bands {
			assert.Equal(t, 1, len(pb.Blocks))
			assert.Equal(t, 16, pb.Blocks[0].Width())
		}
	}
	last := top.Precincts[len(top.Precincts)-1]
	assert.Equal(t, 96, last.X)
	assert.Equal(t, 64, last.Y)

	low := tc.Resolutions[0]
	assert.Equal(t, Rect{0, 0, 16, 12}, low.Rect)
	assert.Equal(t, 1, len(low.Precincts))
	assert.Equal(t, LL, low.Bands[0].Orient)
}

func TestStyle_Validate(t *testing.T) {
	ppx, ppy := UniformPrecincts(2)
	assert.NoError(t, Style{Levels: 2, CBW: 6, CBH: 6, PPx: ppx, PPy: ppy}.Validate())
	assert.ErrorIs(t, Style{Levels: 2, CBW: 7, CBH: 2, PPx: ppx, PPy: ppy}.Validate(), errs.ErrConfiguration)
	assert.ErrorIs(t, Style{Levels: 2, CBW: 1, CBH: 6, PPx: ppx, PPy: ppy}.Validate(), errs.ErrConfiguration)
	assert.ErrorIs(t, Style{Levels: 2, CBW: 6, CBH: 6, PPx: []int{15, 0, 15}, PPy: ppy}.Validate(), errs.ErrConfiguration)
	assert.ErrorIs(t, Style{Levels: 33, CBW: 6, CBH: 6}.Validate(), errs.ErrConfiguration)
}
