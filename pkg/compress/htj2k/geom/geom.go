// Package geom partitions an image on the JPEG 2000 reference grid into tiles,
// tile-components, resolutions, subbands, precincts and code-blocks.
//
// Every quantity is derived from header fields alone (SIZ and COD), so the
// encoder and decoder compute identical layouts.
package geom

import (
	"fmt"

	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/errs"
)

// Rect is a half-open rectangle [X0,X1) x [Y0,Y1).
type Rect struct {
	X0, Y0, X1, Y1 int
}

// Width returns the rectangle width
func (r Rect) Width() int { return r.X1 - r.X0 }

// Height returns the rectangle height
func (r Rect) Height() int { return r.Y1 - r.Y0 }

// Area returns width*height, zero for empty rectangles.
func (r Rect) Area() int {
	if r.Empty() {
		return 0
	}
	return r.Width() * r.Height()
}

// Empty reports whether the rectangle holds no samples
func (r Rect) Empty() bool { return r.X1 <= r.X0 || r.Y1 <= r.Y0 }

// Intersect returns the overlap of r and o
func (r Rect) Intersect(o Rect) Rect {
	out := Rect{max(r.X0, o.X0), max(r.Y0, o.Y0), min(r.X1, o.X1), min(r.Y1, o.Y1)}
	if out.X1 < out.X0 {
		out.X1 = out.X0
	}
	if out.Y1 < out.Y0 {
		out.Y1 = out.Y0
	}
	return out
}

func (r Rect) String() string {
	return fmt.Sprintf("(%d,%d)-(%d,%d)", r.X0, r.Y0, r.X1, r.Y1)
}

// CeilDiv returns ceil(a/b) for b > 0.
func CeilDiv(a, b int) int {
	if a >= 0 {
		return (a + b - 1) / b
	}
	return -((-a) / b)
}

// CeilDivPow2 returns ceil(a / 2^n), valid for negative a.
func CeilDivPow2(a, n int) int {
	return (a + (1 << uint(n)) - 1) >> uint(n)
}

// FloorDivPow2 returns floor(a / 2^n), valid for negative a.
func FloorDivPow2(a, n int) int {
	return a >> uint(n)
}

// Orient is a subband orientation.
type Orient int

const (
	LL Orient = iota
	HL        // horizontally high-pass
	LH        // vertically high-pass
	HH
)

func (o Orient) String() string {
	switch o {
	case LL:
		return "LL"
	case HL:
		return "HL"
	case LH:
		return "LH"
	case HH:
		return "HH"
	default:
		return "Unknown"
	}
}

// Offsets returns (xob, yob), the high-pass flags of the orientation.
func (o Orient) Offsets() (int, int) {
	switch o {
	case HL:
		return 1, 0
	case LH:
		return 0, 1
	case HH:
		return 1, 1
	default:
		return 0, 0
	}
}

// ResolutionRect returns the bounds of resolution r of a tile-component with
// the given number of decomposition levels.
func ResolutionRect(tc Rect, levels, r int) Rect {
	s := levels - r
	return Rect{CeilDivPow2(tc.X0, s), CeilDivPow2(tc.Y0, s), CeilDivPow2(tc.X1, s), CeilDivPow2(tc.Y1, s)}
}

// BandRect returns the bounds of the subband with orientation o at
// decomposition level nb (nb >= 1, or nb == 0 for the untransformed LL).
func BandRect(tc Rect, nb int, o Orient) Rect {
	if nb == 0 {
		return tc
	}
	xob, yob := o.Offsets()
	half := 1 << uint(nb-1)
	return Rect{
		CeilDivPow2(tc.X0-half*xob, nb),
		CeilDivPow2(tc.Y0-half*yob, nb),
		CeilDivPow2(tc.X1-half*xob, nb),
		CeilDivPow2(tc.Y1-half*yob, nb),
	}
}

// Grid mirrors the SIZ marker geometry fields.
type Grid struct {
	XSiz, YSiz     int // reference grid extent
	XOsiz, YOsiz   int // image offset
	XTsiz, YTsiz   int // tile size
	XTOsiz, YTOsiz int // tile grid offset
}

// Validate checks the grid relations required by the codestream syntax.
func (g Grid) Validate() error {
	switch {
	case g.XSiz <= g.XOsiz || g.YSiz <= g.YOsiz:
		return fmt.Errorf("%w: empty image area %dx%d at offset %d,%d", errs.ErrConfiguration, g.XSiz-g.XOsiz, g.YSiz-g.YOsiz, g.XOsiz, g.YOsiz)
	case g.XOsiz < 0 || g.YOsiz < 0 || g.XTOsiz < 0 || g.YTOsiz < 0:
		return fmt.Errorf("%w: negative offset", errs.ErrConfiguration)
	case g.XTsiz <= 0 || g.YTsiz <= 0:
		return fmt.Errorf("%w: tile size %dx%d", errs.ErrConfiguration, g.XTsiz, g.YTsiz)
	case g.XTOsiz > g.XOsiz || g.YTOsiz > g.YOsiz:
		return fmt.Errorf("%w: tile offset %d,%d beyond image offset %d,%d", errs.ErrConfiguration, g.XTOsiz, g.YTOsiz, g.XOsiz, g.YOsiz)
	case g.XTOsiz+g.XTsiz <= g.XOsiz || g.YTOsiz+g.YTsiz <= g.YOsiz:
		return fmt.Errorf("%w: first tile does not cover the image origin", errs.ErrConfiguration)
	}
	return nil
}

// TilesX returns the number of tile columns
func (g Grid) TilesX() int { return CeilDiv(g.XSiz-g.XTOsiz, g.XTsiz) }

// TilesY returns the number of tile rows
func (g Grid) TilesY() int { return CeilDiv(g.YSiz-g.YTOsiz, g.YTsiz) }

// NumTiles returns the total number of tiles
func (g Grid) NumTiles() int { return g.TilesX() * g.TilesY() }

// TileRect returns the reference grid bounds of tile t (raster order),
// clipped to the image area.
func (g Grid) TileRect(t int) Rect {
	p := t % g.TilesX()
	q := t / g.TilesX()
	return Rect{
		X0: max(g.XTOsiz+p*g.XTsiz, g.XOsiz),
		Y0: max(g.YTOsiz+q*g.YTsiz, g.YOsiz),
		X1: min(g.XTOsiz+(p+1)*g.XTsiz, g.XSiz),
		Y1: min(g.YTOsiz+(q+1)*g.YTsiz, g.YSiz),
	}
}

// Tiles returns every tile rectangle in raster order
func (g Grid) Tiles() []Rect {
	out := make([]Rect, g.NumTiles())
	for i := range out {
		out[i] = g.TileRect(i)
	}
	return out
}

// ImageRect returns the image area on the reference grid.
func (g Grid) ImageRect() Rect {
	return Rect{g.XOsiz, g.YOsiz, g.XSiz, g.YSiz}
}

// ComponentRect maps a reference grid rectangle onto a component sampled with
// separation (dx, dy).
func ComponentRect(r Rect, dx, dy int) Rect {
	return Rect{CeilDiv(r.X0, dx), CeilDiv(r.Y0, dy), CeilDiv(r.X1, dx), CeilDiv(r.Y1, dy)}
}
