package htj2k

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"io"
)

// FromImage converts a Go image into sample planes. Gray images give one
// component, every other model three (alpha is dropped). 16-bit models keep
// 16 bits.
func FromImage(m image.Image) (*Image, error) {
	b := m.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("%w: empty image", ErrConfiguration)
	}
	switch src := m.(type) {
	case *image.Gray:
		img := NewImage(w, h, 1, 8)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				img.Components[0].Data[y*w+x] = int32(src.GrayAt(b.Min.X+x, b.Min.Y+y).Y)
			}
		}
		return img, nil
	case *image.Gray16:
		img := NewImage(w, h, 1, 16)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				img.Components[0].Data[y*w+x] = int32(src.Gray16At(b.Min.X+x, b.Min.Y+y).Y)
			}
		}
		return img, nil
	case *image.RGBA64, *image.NRGBA64:
		img := NewImage(w, h, 3, 16)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				c := color.NRGBA64Model.Convert(m.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA64)
				i := y*w + x
				img.Components[0].Data[i] = int32(c.R)
				img.Components[1].Data[i] = int32(c.G)
				img.Components[2].Data[i] = int32(c.B)
			}
		}
		return img, nil
	default:
		img := NewImage(w, h, 3, 8)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				c := color.NRGBAModel.Convert(m.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
				i := y*w + x
				img.Components[0].Data[i] = int32(c.R)
				img.Components[1].Data[i] = int32(c.G)
				img.Components[2].Data[i] = int32(c.B)
			}
		}
		return img, nil
	}
}

// ToImage converts one or three full-resolution components into a Go
// image, widening samples to 8 or 16 bits.
func (img *Image) ToImage() (image.Image, error) {
	n := len(img.Components)
	if n != 1 && n < 3 {
		return nil, fmt.Errorf("%w: %d components have no image model", ErrConfiguration, n)
	}
	planes := min(n, 3)
	depth := 8
	for c := 0; c < planes; c++ {
		comp := &img.Components[c]
		if comp.Width != img.Width || comp.Height != img.Height {
			return nil, fmt.Errorf("%w: component %d is subsampled", ErrConfiguration, c)
		}
		if comp.Precision > 8 {
			depth = 16
		}
	}
	// sample returns component c at i scaled to depth bits
	sample := func(c, i int) uint32 {
		comp := &img.Components[c]
		v := comp.Data[i]
		if comp.Signed {
			v += 1 << uint(comp.Precision-1)
		}
		return uint32(v) << uint(depth-comp.Precision)
	}

	w, h := img.Width, img.Height
	r := image.Rect(0, 0, w, h)
	switch {
	case n == 1 && depth == 8:
		out := image.NewGray(r)
		for i := range img.Components[0].Data {
			out.Pix[i] = uint8(sample(0, i))
		}
		return out, nil
	case n == 1:
		out := image.NewGray16(r)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				out.SetGray16(x, y, color.Gray16{Y: uint16(sample(0, y*w+x))})
			}
		}
		return out, nil
	case depth == 8:
		out := image.NewRGBA(r)
		for i := 0; i < w*h; i++ {
			out.Pix[4*i] = uint8(sample(0, i))
			out.Pix[4*i+1] = uint8(sample(1, i))
			out.Pix[4*i+2] = uint8(sample(2, i))
			out.Pix[4*i+3] = 0xFF
		}
		return out, nil
	default:
		out := image.NewRGBA64(r)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				i := y*w + x
				out.SetRGBA64(x, y, color.RGBA64{R: uint16(sample(0, i)), G: uint16(sample(1, i)), B: uint16(sample(2, i)), A: 0xFFFF})
			}
		}
		return out, nil
	}
}

// Encode writes m as an HTJ2K codestream
func Encode(w io.Writer, m image.Image, opts *Options) error {
	img, err := FromImage(m)
	if err != nil {
		return err
	}
	data, _, err := EncodeImage(context.Background(), img, opts)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// Decode reads an HTJ2K codestream as a Go image
func Decode(r io.Reader) (image.Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	img, _, err := DecodeImage(context.Background(), data, nil)
	if err != nil {
		return nil, err
	}
	return img.ToImage()
}

// DecodeConfig returns the image configuration without decoding
func DecodeConfig(r io.Reader) (image.Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return image.Config{}, err
	}
	info, err := Inspect(data)
	if err != nil {
		return image.Config{}, err
	}
	model := color.Model(color.RGBAModel)
	wide := false
	for _, c := range info.Components {
		wide = wide || c.Precision > 8
	}
	switch {
	case len(info.Components) == 1 && wide:
		model = color.Gray16Model
	case len(info.Components) == 1:
		model = color.GrayModel
	case wide:
		model = color.RGBA64Model
	}
	return image.Config{ColorModel: model, Width: info.Width, Height: info.Height}, nil
}

// Register format with image package
func init() {
	image.RegisterFormat("j2c", "\xff\x4f\xff\x51", Decode, DecodeConfig)
}
