package htj2k

import (
	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/dwt"
	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/geom"
)

// codeBlock locates one code-block inside its tile.
type codeBlock struct {
	comp, res, prec int
	band            int // pyramid index, selects the QCD step
	orient          geom.Orient
	level           int
	bandRect        geom.Rect
	rect            geom.Rect // band coordinates
}

func (cb *codeBlock) size() (int, int) { return cb.rect.Width(), cb.rect.Height() }

// tileLayout is the geometry of one tile across all components. Blocks are
// listed in packet order: component, resolution, precinct, then the
// precinct's bands and their blocks in raster order.
type tileLayout struct {
	index  int
	rect   geom.Rect
	comps  []*geom.TileComponent
	blocks []codeBlock
	// precinct[c][r][p] is the index of the precinct's first block
	precinct [][][]int
	// base is the index of the tile's first block in the image-wide list
	base int
}

// precinctBlocks returns the first block index and block count of a precinct.
func (tl *tileLayout) precinctBlocks(c, r, p int) (int, int) {
	return tl.precinct[c][r][p], tl.comps[c].Resolutions[r].Precincts[p].NumBlocks()
}

// layoutTiles computes every tile's geometry from header-level parameters,
// so encoder and decoder agree by construction.
func layoutTiles(g geom.Grid, seps [][2]int, s geom.Style) ([]*tileLayout, error) {
	tiles := make([]*tileLayout, g.NumTiles())
	base := 0
	for t := range tiles {
		tl, err := layoutTile(g, t, seps, s, base)
		if err != nil {
			return nil, err
		}
		base += len(tl.blocks)
		tiles[t] = tl
	}
	return tiles, nil
}

// layoutTile computes the geometry of tile t whose first block has the
// image-wide index base.
func layoutTile(g geom.Grid, t int, seps [][2]int, s geom.Style, base int) (*tileLayout, error) {
	tl := &tileLayout{index: t, rect: g.TileRect(t), base: base}
	for c, sep := range seps {
		tc, err := geom.Layout(tl.rect, sep[0], sep[1], s)
		if err != nil {
			return nil, err
		}
		tl.comps = append(tl.comps, tc)
		tl.precinct = append(tl.precinct, make([][]int, len(tc.Resolutions)))
		for r, res := range tc.Resolutions {
			tl.precinct[c][r] = make([]int, len(res.Precincts))
			for p := range res.Precincts {
				tl.precinct[c][r][p] = len(tl.blocks)
				for i, pb := range res.Precincts[p].Bands {
					b := res.Bands[i]
					for _, rect := range pb.Blocks {
						tl.blocks = append(tl.blocks, codeBlock{
							comp:     c,
							res:      r,
							prec:     p,
							band:     dwt.BandIndex(r, b.Orient),
							orient:   b.Orient,
							level:    b.Level,
							bandRect: b.Rect,
							rect:     rect,
						})
					}
				}
			}
		}
	}
	return tl, nil
}

// copyBlock moves a block between its band plane and a dense buffer.
func copyBlock[T any](cb *codeBlock, band []T, buf []T, toBand bool) {
	bw := cb.bandRect.Width()
	w := cb.rect.Width()
	for y := cb.rect.Y0; y < cb.rect.Y1; y++ {
		off := (y-cb.bandRect.Y0)*bw + cb.rect.X0 - cb.bandRect.X0
		row := buf[(y-cb.rect.Y0)*w : (y-cb.rect.Y0+1)*w]
		if toBand {
			copy(band[off:off+w], row)
		} else {
			copy(row, band[off:off+w])
		}
	}
}

// copyRect moves samples of r between a plane covering src and one covering dst.
func copyRect[T any](src geom.Rect, from []T, dst geom.Rect, to []T, r geom.Rect) {
	w := r.Width()
	for y := r.Y0; y < r.Y1; y++ {
		s := (y-src.Y0)*src.Width() + r.X0 - src.X0
		d := (y-dst.Y0)*dst.Width() + r.X0 - dst.X0
		copy(to[d:d+w], from[s:s+w])
	}
}
