package geom

import (
	"fmt"

	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/errs"
)

// MaxLevels is the largest decomposition depth the codestream can signal.
const MaxLevels = 32

// DefaultPrecinctExp is the precinct exponent used when precincts are not
// user defined; it makes one precinct cover the whole resolution.
const DefaultPrecinctExp = 15

// Style carries the COD fields that shape a tile-component.
type Style struct {
	Levels int
	// code-block size exponents, 2..6 each
	CBW, CBH int
	// precinct exponents indexed by resolution (0 = coarsest)
	PPx, PPy []int
}

// Validate checks the coding style against the codestream limits.
func (s Style) Validate() error {
	if s.Levels < 0 || s.Levels > MaxLevels {
		return fmt.Errorf("%w: %d decomposition levels, want 0..%d", errs.ErrConfiguration, s.Levels, MaxLevels)
	}
	if s.CBW < 2 || s.CBW > 6 || s.CBH < 2 || s.CBH > 6 || s.CBW+s.CBH > 12 {
		return fmt.Errorf("%w: code-block %dx%d", errs.ErrConfiguration, 1<<uint(s.CBW), 1<<uint(s.CBH))
	}
	if len(s.PPx) != s.Levels+1 || len(s.PPy) != s.Levels+1 {
		return fmt.Errorf("%w: %d precinct sizes for %d resolutions", errs.ErrConfiguration, len(s.PPx), s.Levels+1)
	}
	for r := range s.PPx {
		lo := 0
		if r > 0 {
			lo = 1
		}
		if s.PPx[r] < lo || s.PPx[r] > 15 || s.PPy[r] < lo || s.PPy[r] > 15 {
			return fmt.Errorf("%w: precinct exponent %d,%d at resolution %d", errs.ErrConfiguration, s.PPx[r], s.PPy[r], r)
		}
	}
	return nil
}

// UniformPrecincts returns precinct exponents covering every resolution with
// the default maximal precinct.
func UniformPrecincts(levels int) (ppx, ppy []int) {
	ppx = make([]int, levels+1)
	ppy = make([]int, levels+1)
	for i := range ppx {
		ppx[i] = DefaultPrecinctExp
		ppy[i] = DefaultPrecinctExp
	}
	return ppx, ppy
}

// TileComponent is the coefficient pyramid geometry of one component of one tile.
type TileComponent struct {
	Tile        Rect // reference grid
	Rect        Rect // component coordinates
	Dx, Dy      int
	Levels      int
	Resolutions []*Resolution
}

// Resolution is one level of the pyramid, coarsest first.
type Resolution struct {
	Level                  int
	Rect                   Rect
	PPx, PPy               int
	PrecinctsX, PrecinctsY int
	Bands                  []Band
	Precincts              []Precinct
}

// Band is a subband of a resolution.
type Band struct {
	Orient Orient
	Level  int // decomposition level nb
	Rect   Rect
	// effective code-block exponents
	CBW, CBH int
}

// Precinct groups the code-blocks of a resolution that share a packet.
type Precinct struct {
	Index int
	Rect  Rect // resolution coordinates
	// reference grid position used by the position-driven progressions
	X, Y  int
	Bands []PrecinctBand
}

// PrecinctBand is the part of a band covered by a precinct.
type PrecinctBand struct {
	Rect             Rect // band coordinates
	BlocksX, BlocksY int
	Blocks           []Rect
}

// NumBlocks returns the number of code-blocks in the precinct.
func (p *Precinct) NumBlocks() int {
	n := 0
	for _, b := range p.Bands {
		n += len(b.Blocks)
	}
	return n
}

// Layout computes the full geometry of a component with sample separation
// (dx, dy) inside the reference grid tile rectangle.
func Layout(tile Rect, dx, dy int, s Style) (*TileComponent, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if dx <= 0 || dy <= 0 {
		return nil, fmt.Errorf("%w: sample separation %dx%d", errs.ErrConfiguration, dx, dy)
	}
	tc := &TileComponent{
		Tile:   tile,
		Rect:   ComponentRect(tile, dx, dy),
		Dx:     dx,
		Dy:     dy,
		Levels: s.Levels,
	}
	for r := 0; r <= s.Levels; r++ {
		tc.Resolutions = append(tc.Resolutions, layoutResolution(tc, r, s))
	}
	return tc, nil
}

func layoutResolution(tc *TileComponent, r int, s Style) *Resolution {
	res := &Resolution{
		Level: r,
		Rect:  ResolutionRect(tc.Rect, s.Levels, r),
		PPx:   s.PPx[r],
		PPy:   s.PPy[r],
	}
	bpx, bpy := res.PPx, res.PPy
	if r == 0 {
		res.Bands = []Band{{Orient: LL, Level: s.Levels}}
	} else {
		bpx--
		bpy--
		nb := s.Levels - r + 1
		res.Bands = []Band{{Orient: HL, Level: nb}, {Orient: LH, Level: nb}, {Orient: HH, Level: nb}}
	}
	for i := range res.Bands {
		b := &res.Bands[i]
		b.Rect = BandRect(tc.Rect, b.Level, b.Orient)
		b.CBW = min(s.CBW, bpx)
		b.CBH = min(s.CBH, bpy)
	}

	if res.Rect.Width() > 0 {
		res.PrecinctsX = CeilDivPow2(res.Rect.X1, res.PPx) - FloorDivPow2(res.Rect.X0, res.PPx)
	}
	if res.Rect.Height() > 0 {
		res.PrecinctsY = CeilDivPow2(res.Rect.Y1, res.PPy) - FloorDivPow2(res.Rect.Y0, res.PPy)
	}
	originX := FloorDivPow2(res.Rect.X0, res.PPx) << uint(res.PPx)
	originY := FloorDivPow2(res.Rect.Y0, res.PPy) << uint(res.PPy)
	scale := s.Levels - r

	for j := 0; j < res.PrecinctsY; j++ {
		for i := 0; i < res.PrecinctsX; i++ {
			px := originX + i<<uint(res.PPx)
			py := originY + j<<uint(res.PPy)
			p := Precinct{
				Index: j*res.PrecinctsX + i,
				Rect:  Rect{px, py, px + 1<<uint(res.PPx), py + 1<<uint(res.PPy)}.Intersect(res.Rect),
				X:     max(tc.Tile.X0, (px*tc.Dx)<<uint(scale)),
				Y:     max(tc.Tile.Y0, (py*tc.Dy)<<uint(scale)),
			}
			// precinct partition in band coordinates
			bx, by := px, py
			if r > 0 {
				bx, by = px>>1, py>>1
			}
			for _, b := range res.Bands {
				area := Rect{bx, by, bx + 1<<uint(bpx), by + 1<<uint(bpy)}.Intersect(b.Rect)
				p.Bands = append(p.Bands, layoutBlocks(area, b.CBW, b.CBH))
			}
			res.Precincts = append(res.Precincts, p)
		}
	}
	return res
}

func layoutBlocks(area Rect, cbw, cbh int) PrecinctBand {
	pb := PrecinctBand{Rect: area}
	if area.Empty() {
		return pb
	}
	x0 := FloorDivPow2(area.X0, cbw) << uint(cbw)
	y0 := FloorDivPow2(area.Y0, cbh) << uint(cbh)
	pb.BlocksX = (CeilDivPow2(area.X1, cbw)<<uint(cbw) - x0) >> uint(cbw)
	pb.BlocksY = (CeilDivPow2(area.Y1, cbh)<<uint(cbh) - y0) >> uint(cbh)
	for j := 0; j < pb.BlocksY; j++ {
		for i := 0; i < pb.BlocksX; i++ {
			cx := x0 + i<<uint(cbw)
			cy := y0 + j<<uint(cbh)
			pb.Blocks = append(pb.Blocks, Rect{cx, cy, cx + 1<<uint(cbw), cy + 1<<uint(cbh)}.Intersect(area))
		}
	}
	return pb
}
