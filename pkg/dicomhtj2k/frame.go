package dicomhtj2k

import (
	"encoding/binary"
	"fmt"

	"github.com/cocosip/go-dicom/pkg/imaging/imagetypes"
	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k"
)

// frame describes the native layout of one uncompressed DICOM frame:
// little-endian samples, colour-by-pixel when Samples is 3.
type frame struct {
	Width, Height int
	Samples       int
	BitsAllocated int
	BitsStored    int
	Signed        bool
}

func frameOf(fi *imagetypes.FrameInfo) frame {
	return frame{
		Width:         int(fi.Width),
		Height:        int(fi.Height),
		Samples:       int(fi.SamplesPerPixel),
		BitsAllocated: int(fi.BitsAllocated),
		BitsStored:    int(fi.BitsStored),
		Signed:        fi.PixelRepresentation != 0,
	}
}

func (f frame) validate() error {
	switch {
	case f.Width <= 0 || f.Height <= 0:
		return fmt.Errorf("%w: frame %dx%d", htj2k.ErrConfiguration, f.Width, f.Height)
	case f.Samples != 1 && f.Samples != 3:
		return fmt.Errorf("%w: %d samples per pixel", htj2k.ErrConfiguration, f.Samples)
	case f.BitsAllocated != 8 && f.BitsAllocated != 16:
		return fmt.Errorf("%w: %d bits allocated", htj2k.ErrConfiguration, f.BitsAllocated)
	case f.BitsStored < 1 || f.BitsStored > f.BitsAllocated:
		return fmt.Errorf("%w: %d of %d bits stored", htj2k.ErrConfiguration, f.BitsStored, f.BitsAllocated)
	}
	return nil
}

// size is the byte length of the native frame
func (f frame) size() int {
	return f.Width * f.Height * f.Samples * f.BitsAllocated / 8
}

// toImage unpacks native samples, ignoring bits above BitsStored.
func (f frame) toImage(data []byte) (*htj2k.Image, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}
	if len(data) < f.size() {
		return nil, fmt.Errorf("%w: frame holds %d bytes, want %d", htj2k.ErrConfiguration, len(data), f.size())
	}
	img := htj2k.NewImage(f.Width, f.Height, f.Samples, f.BitsStored)
	for c := range img.Components {
		img.Components[c].Signed = f.Signed
	}
	mask := uint32(1)<<uint(f.BitsStored) - 1
	sign := uint32(1) << uint(f.BitsStored-1)
	bytesPer := f.BitsAllocated / 8
	for i := 0; i < f.Width*f.Height*f.Samples; i++ {
		var raw uint32
		if bytesPer == 1 {
			raw = uint32(data[i])
		} else {
			raw = uint32(binary.LittleEndian.Uint16(data[2*i:]))
		}
		raw &= mask
		v := int32(raw)
		if f.Signed && raw&sign != 0 {
			v -= int32(mask) + 1
		}
		img.Components[i%f.Samples].Data[i/f.Samples] = v
	}
	return img, nil
}

// fromImage packs decoded samples into the native layout, sign extending
// signed samples to the allocated width.
func (f frame) fromImage(img *htj2k.Image) ([]byte, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}
	if img.Width != f.Width || img.Height != f.Height || len(img.Components) != f.Samples {
		return nil, fmt.Errorf("%w: decoded %dx%d with %d components, want %dx%d with %d", htj2k.ErrCodestreamMismatch,
			img.Width, img.Height, len(img.Components), f.Width, f.Height, f.Samples)
	}
	for c := range img.Components {
		if len(img.Components[c].Data) != f.Width*f.Height {
			return nil, fmt.Errorf("%w: component %d is subsampled", htj2k.ErrCodestreamMismatch, c)
		}
	}
	out := make([]byte, f.size())
	bytesPer := f.BitsAllocated / 8
	for i := 0; i < f.Width*f.Height*f.Samples; i++ {
		v := img.Components[i%f.Samples].Data[i/f.Samples]
		if bytesPer == 1 {
			out[i] = byte(v)
		} else {
			binary.LittleEndian.PutUint16(out[2*i:], uint16(v))
		}
	}
	return out, nil
}
