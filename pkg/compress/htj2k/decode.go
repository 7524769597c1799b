package htj2k

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/block"
	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/codestream"
	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/dwt"
	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/geom"
	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/quant"
	"golang.org/x/sync/errgroup"
)

type decoder struct {
	o      *DecodeOptions
	h      *codestream.Header
	grid   geom.Grid
	style  geom.Style
	table  quant.Table
	kernel dwt.Kernel
	colour bool
	skip   int
	tiles  []*tileLayout
	diag   *Diagnostics
}

// DecodeImage reconstructs the image held by an HTJ2K codestream.
func DecodeImage(ctx context.Context, data []byte, opts *DecodeOptions) (*Image, *Metrics, error) {
	m := &Metrics{Bytes: len(data)}
	sw := newStopwatch(m)
	defer sw.stop()
	if opts == nil {
		opts = &DecodeOptions{}
	}

	cs, err := codestream.Parse(data)
	if err != nil {
		return nil, m, err
	}
	tileData := cs.TileData()
	d, err := newDecoder(&cs.Header, tileData, opts)
	if err != nil {
		return nil, m, err
	}
	m.Tiles = len(d.tiles)
	sw.lap("header")

	recv := make([][]received, len(d.tiles))
	counts := make([]int, len(d.tiles))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers(opts.Workers))
	for t, tl := range d.tiles {
		if tl == nil {
			err := fmt.Errorf("%w: tile %d has no tile-part", ErrBitstreamCorruption, t)
			d.diag.corruption(ctx, EventMissingTile, err, "tile", t)
			continue
		}
		g.Go(func() error {
			var err error
			recv[t], counts[t], err = d.parseTile(gctx, tl, tileData[t])
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, m, err
	}
	for _, n := range counts {
		m.Packets += n
	}
	sw.lap("packets")

	// doubled coefficients per block
	values := make([][][]int32, len(d.tiles))
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(workers(opts.Workers))
	for t, tl := range d.tiles {
		if tl == nil {
			continue
		}
		values[t] = make([][]int32, len(tl.blocks))
		for k := range tl.blocks {
			cb := &tl.blocks[k]
			if cb.res > d.style.Levels-d.skip {
				continue
			}
			m.CodeBlocks++
			m.Passes += recv[t][k].passes
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				rv := &recv[t][k]
				w, h := cb.size()
				dec := block.Decoder{MagnitudeBits: d.table.MagnitudeBits(cb.band), Midpoint: d.kernel == dwt.Irreversible97}
				out, err := dec.Decode(rv.data, rv.passes, rv.segments, w, h, rv.zeroPlanes)
				if err != nil {
					err = fmt.Errorf("tile %d component %d block %v: %w", t, cb.comp, cb.rect, err)
					if !opts.Resilient {
						return err
					}
					d.diag.corruption(gctx, EventCorruptBlock, err, "tile", t, "component", cb.comp, "resolution", cb.res)
					out = make([]int32, w*h)
				}
				values[t][k] = out
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, m, err
	}
	sw.lap("block")

	img := d.newImage()
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(workers(opts.Workers))
	for t, tl := range d.tiles {
		if tl == nil {
			d.fillMissing(t, img)
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return d.reconstruct(tl, values[t], img)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, m, err
	}
	sw.lap("reconstruct")
	m.Events = d.diag.Counts()
	return img, m, nil
}

// newDecoder validates the header and lays out the tiles present in
// tileData. A missing tile fails strict decoding and is left nil otherwise.
func newDecoder(h *codestream.Header, tileData map[int][]byte, o *DecodeOptions) (*decoder, error) {
	d := &decoder{o: o, h: h, diag: o.Diagnostics, grid: h.SIZ.Grid(), style: h.COD.Style(), kernel: h.COD.Transform}
	comps := h.SIZ.Components
	precision := comps[0].Precision
	seps := make([][2]int, len(comps))
	for c, ci := range comps {
		if ci.Precision != precision || ci.Precision > 16 {
			return nil, fmt.Errorf("%w: component %d precision %d, all components must share a precision of at most 16 bits", ErrCodestreamMismatch, c, ci.Precision)
		}
		seps[c] = [2]int{ci.XRsiz, ci.YRsiz}
	}
	if o.SkipResolutions < 0 || o.SkipResolutions > d.style.Levels {
		return nil, fmt.Errorf("%w: cannot skip %d of %d resolutions", ErrCodestreamMismatch, o.SkipResolutions, d.style.Levels)
	}
	d.skip = o.SkipResolutions
	if h.COD.MCT != 0 {
		if len(comps) < 3 || seps[1] != seps[0] || seps[2] != seps[0] || comps[1].Signed != comps[0].Signed || comps[2].Signed != comps[0].Signed {
			return nil, fmt.Errorf("%w: colour transform over unlike components", ErrCodestreamMismatch)
		}
		d.colour = true
	}
	d.table = h.QCD.Table(precision)
	if err := d.table.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCodestreamMismatch, err)
	}
	if h.CAP != nil {
		for i := range d.table.Steps {
			if mb := d.table.MagnitudeBits(i); mb > h.CAP.MagB() {
				return nil, fmt.Errorf("%w: band %d uses %d bit-planes, CAP allows %d", ErrCodestreamMismatch, i, mb, h.CAP.MagB())
			}
		}
	}
	if err := d.checkSize(o.maxSamples()); err != nil {
		return nil, err
	}
	d.tiles = make([]*tileLayout, d.grid.NumTiles())
	base := 0
	for t := range d.tiles {
		if _, ok := tileData[t]; !ok {
			if !o.Resilient {
				return nil, fmt.Errorf("%w: tile %d has no tile-part", ErrBitstreamCorruption, t)
			}
			continue
		}
		tl, err := layoutTile(d.grid, t, seps, d.style, base)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCodestreamMismatch, err)
		}
		base += len(tl.blocks)
		d.tiles[t] = tl
	}
	return d, nil
}

// checkSize rejects headers declaring more samples than limit before any
// per-tile or per-sample state is allocated.
func (d *decoder) checkSize(limit int64) error {
	if tx, ty := int64(d.grid.TilesX()), int64(d.grid.TilesY()); tx > 0 && ty > limit/tx {
		return fmt.Errorf("%w: %dx%d tiles exceed the %d sample limit", ErrCodestreamMismatch, tx, ty, limit)
	}
	var total int64
	for c, ci := range d.h.SIZ.Components {
		r := geom.ComponentRect(d.grid.ImageRect(), ci.XRsiz, ci.YRsiz)
		w, h := int64(r.Width()), int64(r.Height())
		if w > 0 && h > (limit-total)/w {
			return fmt.Errorf("%w: component %d of %dx%d exceeds the %d sample limit", ErrCodestreamMismatch, c, w, h, limit)
		}
		total += w * h
	}
	return nil
}

// reduce maps a rectangle of a full-resolution component to the decoded
// resolution.
func (d *decoder) reduce(r geom.Rect) geom.Rect {
	return geom.ResolutionRect(r, d.style.Levels, d.style.Levels-d.skip)
}

func (d *decoder) newImage() *Image {
	area := d.reduce(d.grid.ImageRect())
	img := &Image{Width: area.Width(), Height: area.Height(), Offset: image.Point{X: area.X0, Y: area.Y0}}
	for _, ci := range d.h.SIZ.Components {
		cr := d.reduce(geom.ComponentRect(d.grid.ImageRect(), ci.XRsiz, ci.YRsiz))
		img.Components = append(img.Components, Component{
			Precision: ci.Precision,
			Signed:    ci.Signed,
			Dx:        ci.XRsiz,
			Dy:        ci.YRsiz,
			Width:     cr.Width(),
			Height:    cr.Height(),
			Data:      make([]int32, cr.Area()),
		})
	}
	return img
}

// fillMissing writes the zero-coefficient reconstruction of tile t: every
// sample sits at its component's DC level.
func (d *decoder) fillMissing(t int, img *Image) {
	tr := d.grid.TileRect(t)
	for c := range img.Components {
		comp := &img.Components[c]
		lo, hi := comp.bounds()
		v := int32(0)
		if !comp.Signed {
			v = 1 << uint(comp.Precision-1)
		}
		v = min(max(v, lo), hi)
		cr := d.reduce(geom.ComponentRect(d.grid.ImageRect(), comp.Dx, comp.Dy))
		r := d.reduce(geom.ComponentRect(tr, comp.Dx, comp.Dy)).Intersect(cr)
		for y := r.Y0; y < r.Y1; y++ {
			row := comp.Data[(y-cr.Y0)*cr.Width() : (y-cr.Y0+1)*cr.Width()]
			for x := r.X0; x < r.X1; x++ {
				row[x-cr.X0] = v
			}
		}
	}
}

// reconstruct dequantizes, inverse transforms and colour converts one tile
// and writes its samples into img. Tiles cover disjoint samples, so tiles
// may run concurrently.
func (d *decoder) reconstruct(tl *tileLayout, values [][]int32, img *Image) error {
	levels := d.style.Levels
	n := len(tl.comps)
	ints := make([][]int32, n)
	floats := make([][]float64, n)
	rects := make([]geom.Rect, n)

	for c, tc := range tl.comps {
		bands := make([][]int32, dwt.NumBands(levels))
		for r := 0; r <= levels-d.skip; r++ {
			for _, b := range tc.Resolutions[r].Bands {
				bands[dwt.BandIndex(r, b.Orient)] = make([]int32, b.Rect.Area())
			}
		}
		for k := range tl.blocks {
			cb := &tl.blocks[k]
			if cb.comp != c || values[k] == nil {
				continue
			}
			copyBlock(cb, bands[cb.band], values[k], true)
		}

		var err error
		if d.kernel == dwt.Reversible53 {
			pyr := make([]dwt.Band[int32], len(bands))
			for i, data := range bands {
				if data != nil {
					quant.Halve(data, data)
				}
				pyr[i].Data = data
			}
			ints[c], rects[c], err = dwt.Inverse53(pyr, tc.Rect, levels, d.skip)
		} else {
			pyr := make([]dwt.Band[float64], len(bands))
			for i, data := range bands {
				if data == nil {
					continue
				}
				pyr[i].Data = make([]float64, len(data))
				quant.Dequantize(data, d.table.Delta(levels, i), pyr[i].Data)
			}
			floats[c], rects[c], err = dwt.Inverse97(pyr, tc.Rect, levels, d.skip)
		}
		if err != nil {
			return err
		}
	}

	if d.colour {
		if d.kernel == dwt.Reversible53 {
			InverseRCT(ints[0], ints[1], ints[2])
		} else {
			InverseICT(floats[0], floats[1], floats[2])
		}
	}
	if d.kernel == dwt.Irreversible97 {
		for c := range floats {
			ints[c] = make([]int32, len(floats[c]))
			for i, v := range floats[c] {
				ints[c][i] = int32(math.Round(v))
			}
		}
	}

	for c := range ints {
		comp := &img.Components[c]
		lo, hi := comp.bounds()
		shift := int32(0)
		if !comp.Signed {
			shift = 1 << uint(comp.Precision-1)
		}
		for i, v := range ints[c] {
			ints[c][i] = min(max(v+shift, lo), hi)
		}
		cr := d.reduce(geom.ComponentRect(d.grid.ImageRect(), comp.Dx, comp.Dy))
		copyRect(rects[c], ints[c], cr, comp.Data, rects[c])
	}
	return nil
}
