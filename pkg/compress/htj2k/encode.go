package htj2k

import (
	"context"
	"fmt"
	"math"

	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/block"
	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/codestream"
	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/dwt"
	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/geom"
	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/quant"
	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/rate"
	"github.com/jpfielding/htj2k.go/pkg/util"
	"golang.org/x/sync/errgroup"
)

// maxRateIterations bounds the re-allocation rounds that absorb packet
// header overhead when a rate target is set.
const maxRateIterations = 8

type encoder struct {
	o         *Options
	img       *Image
	grid      geom.Grid
	style     geom.Style
	table     quant.Table
	kernel    dwt.Kernel
	colour    bool
	precision int
	tiles     []*tileLayout
	diag      *Diagnostics
}

// EncodeImage compresses img into an HTJ2K codestream. On error no bytes
// are returned.
func EncodeImage(ctx context.Context, img *Image, opts *Options) ([]byte, *Metrics, error) {
	m := &Metrics{}
	sw := newStopwatch(m)
	defer sw.stop()

	e, err := newEncoder(img, opts)
	if err != nil {
		return nil, m, err
	}
	m.ConfigID, _ = util.HashUUID(e.o)
	m.Tiles = len(e.tiles)
	sw.lap("setup")

	coeffs := make([][][][]int32, len(e.tiles))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers(e.o.Workers))
	for t, tl := range e.tiles {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			coeffs[t] = e.transform(tl)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, m, err
	}
	sw.lap("transform")

	// without a rate target every block keeps its lossless cleanup
	candidates := 1
	if e.o.BitsPerPixel > 0 {
		candidates = block.DefaultCandidates
	}
	encoded := make([][]*block.Encoded, len(e.tiles))
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(workers(e.o.Workers))
	for t, tl := range e.tiles {
		encoded[t] = make([]*block.Encoded, len(tl.blocks))
		for k := range tl.blocks {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				cb := &tl.blocks[k]
				w, h := cb.size()
				buf := make([]int32, w*h)
				copyBlock(cb, coeffs[t][cb.comp][cb.band], buf, false)
				enc, err := block.Encode(buf, w, h, block.Params{
					MagnitudeBits: e.table.MagnitudeBits(cb.band),
					Candidates:    candidates,
				})
				if err != nil {
					return fmt.Errorf("tile %d component %d block %v: %w", t, cb.comp, cb.rect, err)
				}
				encoded[t][k] = enc
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, m, err
	}
	sw.lap("block")

	var blocks []rate.Block
	for t, tl := range e.tiles {
		for k := range tl.blocks {
			blocks = append(blocks, e.rateBlock(t, &tl.blocks[k], encoded[t][k]))
		}
	}
	m.CodeBlocks = len(blocks)

	data, alloc, packets, err := e.control(ctx, m, blocks, encoded)
	if err != nil {
		return nil, m, err
	}
	sw.lap("assemble")

	for b := range blocks {
		m.Passes += alloc.Total(b)
	}
	m.Packets = packets
	m.Bytes = len(data)
	m.Events = e.diag.Counts()
	e.diag.Debug(ctx, "encoded image",
		"width", img.Width, "height", img.Height,
		"tiles", m.Tiles, "blocks", m.CodeBlocks, "bytes", m.Bytes)
	return data, m, nil
}

func newEncoder(img *Image, opts *Options) (*encoder, error) {
	o, err := opts.validate()
	if err != nil {
		return nil, err
	}
	e := &encoder{o: o, img: img, diag: o.Diagnostics}
	if e.precision, err = img.validate(); err != nil {
		return nil, err
	}
	if e.style, err = o.style(); err != nil {
		return nil, err
	}
	if e.grid, err = o.grid(img); err != nil {
		return nil, err
	}
	if o.ColourTransform && len(img.Components) >= 3 {
		e.colour = true
		for c := 1; c < 3; c++ {
			dx0, dy0 := img.Components[0].separation()
			dx, dy := img.Components[c].separation()
			if dx != dx0 || dy != dy0 || img.Components[c].Signed != img.Components[0].Signed {
				return nil, fmt.Errorf("%w: colour transform needs three alike components", ErrConfiguration)
			}
		}
	}
	if o.Reversible {
		e.kernel = dwt.Reversible53
		e.table = quant.Reversible(e.style.Levels, e.precision, e.colour)
	} else {
		e.kernel = dwt.Irreversible97
		e.table = quant.Irreversible(e.style.Levels, e.precision, o.QStep)
	}
	if err := e.table.Validate(); err != nil {
		return nil, err
	}
	seps := make([][2]int, len(img.Components))
	for c := range img.Components {
		seps[c][0], seps[c][1] = img.Components[c].separation()
	}
	if e.tiles, err = layoutTiles(e.grid, seps, e.style); err != nil {
		return nil, err
	}
	return e, nil
}

// transform level shifts, colour transforms, decomposes and quantizes the
// components of one tile, returning [component][band] indices.
func (e *encoder) transform(tl *tileLayout) [][][]int32 {
	n := len(e.img.Components)
	planes := make([][]int32, n)
	for c := range e.img.Components {
		comp := &e.img.Components[c]
		tc := tl.comps[c]
		planes[c] = make([]int32, tc.Rect.Area())
		copyRect(comp.rect(e.img.area()), comp.Data, tc.Rect, planes[c], tc.Rect)
		if !comp.Signed {
			shift := int32(1) << uint(comp.Precision-1)
			for i := range planes[c] {
				planes[c][i] -= shift
			}
		}
	}

	out := make([][][]int32, n)
	if e.kernel == dwt.Reversible53 {
		if e.colour {
			ForwardRCT(planes[0], planes[1], planes[2])
		}
		for c := range planes {
			bands := dwt.Forward53(planes[c], tl.comps[c].Rect, e.style.Levels)
			out[c] = make([][]int32, len(bands))
			for i := range bands {
				out[c][i] = bands[i].Data
			}
		}
		return out
	}

	fplanes := make([][]float64, n)
	for c := range planes {
		fplanes[c] = make([]float64, len(planes[c]))
		for i, v := range planes[c] {
			fplanes[c][i] = float64(v)
		}
	}
	if e.colour {
		ForwardICT(fplanes[0], fplanes[1], fplanes[2])
	}
	clamped := 0
	for c := range fplanes {
		bands := dwt.Forward97(fplanes[c], tl.comps[c].Rect, e.style.Levels)
		out[c] = make([][]int32, len(bands))
		for i := range bands {
			q := make([]int32, len(bands[i].Data))
			quant.Quantize(bands[i].Data, e.table.Delta(e.style.Levels, i), q)
			limit := int32(1)<<uint(e.table.MagnitudeBits(i)) - 1
			for j, v := range q {
				if v > limit {
					q[j] = limit
					clamped++
				} else if v < -limit {
					q[j] = -limit
					clamped++
				}
			}
			out[c][i] = q
		}
	}
	e.diag.Count(EventCoeffClamped, clamped)
	return out
}

// rateBlock offers each HT set of a block as a rate chain, weighting its
// distortion into sample-domain squared error.
func (e *encoder) rateBlock(t int, cb *codeBlock, enc *block.Encoded) rate.Block {
	delta := e.table.Delta(e.style.Levels, cb.band)
	w := delta * dwt.BandNorm(e.kernel, cb.orient, cb.level)
	rb := rate.Block{Scope: t, Chains: make([]rate.Chain, len(enc.Sets))}
	for c := range enc.Sets {
		set := &enc.Sets[c]
		ch := rate.Chain{Lengths: set.Lengths(), Distortion: make([]float64, len(set.Passes))}
		for i, p := range set.Passes {
			ch.Distortion[i] = p.Distortion * w * w
		}
		rb.Chains[c] = ch
	}
	return rb
}

// control selects truncation points and assembles the codestream, shrinking
// the block budget until the whole codestream meets the rate target.
func (e *encoder) control(ctx context.Context, m *Metrics, blocks []rate.Block, encoded [][]*block.Encoded) ([]byte, *rate.Allocation, int, error) {
	if e.o.BitsPerPixel == 0 {
		alloc := rate.All(blocks, e.o.Layers)
		m.Iterations = 1
		data, packets, err := e.assemble(ctx, alloc, encoded)
		return data, alloc, packets, err
	}

	target := int(math.Floor(e.o.BitsPerPixel * float64(e.img.Width) * float64(e.img.Height) / 8))
	empty := make([]codestream.Tile, len(e.tiles))
	for t := range empty {
		empty[t] = codestream.Tile{Index: t, Parts: [][]byte{nil}}
	}
	frame, err := codestream.Assemble(e.header(), empty, e.o.TLM)
	if err != nil {
		return nil, nil, 0, err
	}
	budget := target - len(frame)

	var (
		data    []byte
		alloc   *rate.Allocation
		packets int
	)
	for it := 0; it < maxRateIterations; it++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, 0, err
		}
		m.Iterations++
		alloc = e.allocate(blocks, budget)
		if data, packets, err = e.assemble(ctx, alloc, encoded); err != nil {
			return nil, nil, 0, err
		}
		over := len(data) - target
		if over <= 0 {
			return data, alloc, packets, nil
		}
		if budget <= 0 {
			break
		}
		budget -= over
	}
	e.diag.Count(EventRateOvershoot, 1)
	e.diag.WarnOnce(ctx, EventRateOvershoot, "rate target not met", "target", target, "bytes", len(data))
	return data, alloc, packets, nil
}

func (e *encoder) allocate(blocks []rate.Block, budget int) *rate.Allocation {
	if !e.o.PerTileRate || len(e.tiles) == 1 {
		return rate.Allocate(blocks, budget, e.o.Layers)
	}
	total := e.img.area().Area()
	budgets := map[int]int{}
	for t, tl := range e.tiles {
		budgets[t] = int(int64(budget) * int64(tl.rect.Area()) / int64(total))
	}
	return rate.AllocateScoped(blocks, budgets, e.o.Layers)
}

// assemble writes every tile's packets in parallel and concatenates them.
func (e *encoder) assemble(ctx context.Context, alloc *rate.Allocation, encoded [][]*block.Encoded) ([]byte, int, error) {
	tiles := make([]codestream.Tile, len(e.tiles))
	counts := make([]int, len(e.tiles))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers(e.o.Workers))
	for t, tl := range e.tiles {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			var err error
			tiles[t], counts[t], err = e.writeTile(tl, alloc, encoded[t])
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	packets := 0
	for _, n := range counts {
		packets += n
	}
	data, err := codestream.Assemble(e.header(), tiles, e.o.TLM)
	return data, packets, err
}

func (e *encoder) header() *codestream.Header {
	siz := codestream.SIZ{
		Rsiz:   codestream.RsizHT,
		XSiz:   uint32(e.grid.XSiz),
		YSiz:   uint32(e.grid.YSiz),
		XOsiz:  uint32(e.grid.XOsiz),
		YOsiz:  uint32(e.grid.YOsiz),
		XTsiz:  uint32(e.grid.XTsiz),
		YTsiz:  uint32(e.grid.YTsiz),
		XTOsiz: uint32(e.grid.XTOsiz),
		YTOsiz: uint32(e.grid.YTOsiz),
	}
	for c := range e.img.Components {
		comp := &e.img.Components[c]
		dx, dy := comp.separation()
		siz.Components = append(siz.Components, codestream.ComponentInfo{
			Precision: comp.Precision,
			Signed:    comp.Signed,
			XRsiz:     dx,
			YRsiz:     dy,
		})
	}
	maxMb := 0
	for i := range e.table.Steps {
		maxMb = max(maxMb, e.table.MagnitudeBits(i))
	}
	cod := codestream.COD{
		Progression:    e.o.Progression,
		Layers:         uint16(e.o.Layers),
		Levels:         byte(e.style.Levels),
		CBWExp:         byte(e.style.CBW - 2),
		CBHExp:         byte(e.style.CBH - 2),
		CodeBlockStyle: codestream.CodeBlockHT,
		Transform:      e.kernel,
	}
	if e.colour {
		cod.MCT = 1
	}
	if len(e.o.Precincts) > 0 {
		cod.Scod |= codestream.ScodPrecincts
		cod.Precincts = codestream.Precincts(e.style)
	}
	h := &codestream.Header{
		SIZ: siz,
		CAP: &codestream.CAP{Pcap: codestream.PcapHT, Ccap15: codestream.Ccap15For(maxMb, e.kernel == dwt.Irreversible97)},
		COD: cod,
		QCD: codestream.QCD{Style: e.table.Style, Guard: e.table.Guard, Steps: e.table.Steps},
	}
	if e.o.Comment != "" {
		h.Comments = []codestream.COM{{Registration: codestream.CommentLatin1, Data: []byte(e.o.Comment)}}
	}
	return h
}
