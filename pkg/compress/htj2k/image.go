package htj2k

import (
	"fmt"
	"image"

	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/geom"
)

// Component is one plane of samples, row-major.
type Component struct {
	Precision int  // bits per sample, 1-16
	Signed    bool // two's complement samples
	Dx, Dy    int  // sample separation on the reference grid, 0 means 1
	// Width and Height are the sample dimensions of the plane
	Width, Height int
	Data          []int32
}

// Image is a decoded picture: an image area on the reference grid and one
// sample plane per component.
type Image struct {
	Width, Height int
	// Offset is the image origin on the reference grid
	Offset     image.Point
	Components []Component
}

// NewImage allocates an image of n components sharing one precision.
func NewImage(width, height, n, precision int) *Image {
	img := &Image{Width: width, Height: height}
	for i := 0; i < n; i++ {
		img.Components = append(img.Components, Component{
			Precision: precision,
			Dx:        1,
			Dy:        1,
			Width:     width,
			Height:    height,
			Data:      make([]int32, width*height),
		})
	}
	return img
}

// area returns the image area on the reference grid
func (img *Image) area() geom.Rect {
	return geom.Rect{X0: img.Offset.X, Y0: img.Offset.Y, X1: img.Offset.X + img.Width, Y1: img.Offset.Y + img.Height}
}

func (c *Component) separation() (int, int) {
	return max(c.Dx, 1), max(c.Dy, 1)
}

// rect returns the component's sample bounds for the given image area.
func (c *Component) rect(area geom.Rect) geom.Rect {
	dx, dy := c.separation()
	return geom.ComponentRect(area, dx, dy)
}

// bounds returns the smallest and largest representable sample.
func (c *Component) bounds() (int32, int32) {
	if c.Signed {
		return -(1 << uint(c.Precision-1)), 1<<uint(c.Precision-1) - 1
	}
	return 0, 1<<uint(c.Precision) - 1
}

// validate checks the image is codable and returns the shared precision.
func (img *Image) validate() (int, error) {
	if img == nil || img.Width <= 0 || img.Height <= 0 {
		return 0, fmt.Errorf("%w: empty image", ErrConfiguration)
	}
	if img.Offset.X < 0 || img.Offset.Y < 0 {
		return 0, fmt.Errorf("%w: negative image offset %v", ErrConfiguration, img.Offset)
	}
	if len(img.Components) == 0 || len(img.Components) > 16384 {
		return 0, fmt.Errorf("%w: %d components", ErrConfiguration, len(img.Components))
	}
	precision := img.Components[0].Precision
	for i := range img.Components {
		c := &img.Components[i]
		if c.Precision < 1 || c.Precision > 16 {
			return 0, fmt.Errorf("%w: component %d precision %d, want 1..16", ErrConfiguration, i, c.Precision)
		}
		if c.Precision != precision {
			return 0, fmt.Errorf("%w: component %d precision %d differs from %d", ErrConfiguration, i, c.Precision, precision)
		}
		dx, dy := c.separation()
		if dx > 255 || dy > 255 {
			return 0, fmt.Errorf("%w: component %d separation %dx%d", ErrConfiguration, i, dx, dy)
		}
		r := c.rect(img.area())
		if c.Width != r.Width() || c.Height != r.Height() || len(c.Data) != r.Area() {
			return 0, fmt.Errorf("%w: component %d holds %dx%d (%d samples), grid needs %dx%d", ErrConfiguration, i, c.Width, c.Height, len(c.Data), r.Width(), r.Height())
		}
		lo, hi := c.bounds()
		for _, v := range c.Data {
			if v < lo || v > hi {
				return 0, fmt.Errorf("%w: component %d sample %d outside %d..%d", ErrPrecisionOverflow, i, v, lo, hi)
			}
		}
	}
	return precision, nil
}
