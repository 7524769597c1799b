// Package dicomhtj2k registers the codec with the go-dicom codec registry.
//
// Frames carry HT codestreams whose CxtVLC codebook is built in-house rather
// than taken from the ITU-T T.814 tables, so standard HTJ2K decoders cannot
// read them. They are registered under private transfer syntaxes instead of
// 1.2.840.10008.1.2.4.201-203.
package dicomhtj2k

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/bits"

	"github.com/cocosip/go-dicom/pkg/dicom/endian"
	"github.com/cocosip/go-dicom/pkg/dicom/transfer"
	"github.com/cocosip/go-dicom/pkg/dicom/uid"
	"github.com/cocosip/go-dicom/pkg/imaging/codec"
	"github.com/cocosip/go-dicom/pkg/imaging/imagetypes"
	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k"
	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/packet"
	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/quant"
	"github.com/jpfielding/htj2k.go/pkg/util"
)

// Private transfer syntaxes, each a 2.25 UID derived from a fixed name.
var (
	LosslessSyntax     = privateSyntax("lossless", "HTJ2K.go Lossless", false)
	LosslessRPCLSyntax = privateSyntax("lossless-rpcl", "HTJ2K.go Lossless RPCL", false)
	LossySyntax        = privateSyntax("lossy", "HTJ2K.go", true)
)

func privateSyntax(key, name string, lossy bool) *transfer.Syntax {
	u := uid.New(util.OIDUUID("github.com/jpfielding/htj2k.go/dicom/"+key), name, uid.TypeTransferSyntax, false)
	b := transfer.NewBuilder(u).
		SetExplicitVR(true).
		SetEncapsulated(true).
		SetEndian(endian.Little)
	if lossy {
		b.SetLossy(true, "HTJ2K_GO")
	}
	return b.Build()
}

var _ codec.Codec = (*Codec)(nil)

// Codec encodes and decodes frames for one transfer syntax:
//   - LosslessSyntax, reversible 5/3
//   - LosslessRPCLSyntax, reversible 5/3 in RPCL order
//   - LossySyntax, irreversible 9/7 with an optional rate target
type Codec struct {
	transferSyntax *transfer.Syntax
	lossless       bool
}

// NewLosslessCodec creates the lossless codec
func NewLosslessCodec() *Codec {
	return &Codec{transferSyntax: LosslessSyntax, lossless: true}
}

// NewLosslessRPCLCodec creates the lossless RPCL codec
func NewLosslessRPCLCodec() *Codec {
	return &Codec{transferSyntax: LosslessRPCLSyntax, lossless: true}
}

// NewCodec creates the lossy codec
func NewCodec() *Codec {
	return &Codec{transferSyntax: LossySyntax}
}

// Name returns the codec name
func (c *Codec) Name() string {
	switch {
	case c.transferSyntax == LosslessRPCLSyntax:
		return "HTJ2K.go Lossless RPCL"
	case c.lossless:
		return "HTJ2K.go Lossless"
	default:
		return "HTJ2K.go"
	}
}

// TransferSyntax returns the transfer syntax this codec handles
func (c *Codec) TransferSyntax() *transfer.Syntax {
	return c.transferSyntax
}

// GetDefaultParameters returns the default codec parameters
func (c *Codec) GetDefaultParameters() codec.Parameters {
	return NewParameters()
}

// Encode compresses every frame of oldPixelData into newPixelData
func (c *Codec) Encode(oldPixelData imagetypes.PixelData, newPixelData imagetypes.PixelData, parameters codec.Parameters) error {
	if oldPixelData == nil || newPixelData == nil {
		return fmt.Errorf("source and destination PixelData cannot be nil")
	}
	fi := oldPixelData.GetFrameInfo()
	if fi == nil {
		return fmt.Errorf("failed to get frame info from source pixel data")
	}
	p := from(parameters)
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid HTJ2K parameters: %w", err)
	}
	f := frameOf(fi)
	opts := c.options(p, f)

	frameCount := oldPixelData.FrameCount()
	if frameCount == 0 {
		return fmt.Errorf("source pixel data is empty (no frames)")
	}
	for i := 0; i < frameCount; i++ {
		native, err := oldPixelData.GetFrame(i)
		if err != nil {
			return fmt.Errorf("failed to get frame %d: %w", i, err)
		}
		encoded, err := encodeFrame(context.Background(), native, f, opts)
		if err != nil {
			return fmt.Errorf("HTJ2K encode failed for frame %d: %w", i, err)
		}
		if err := newPixelData.AddFrame(encoded); err != nil {
			return fmt.Errorf("failed to add encoded frame %d: %w", i, err)
		}
	}
	return nil
}

// Decode expands every frame of oldPixelData into newPixelData
func (c *Codec) Decode(oldPixelData imagetypes.PixelData, newPixelData imagetypes.PixelData, _ codec.Parameters) error {
	if oldPixelData == nil || newPixelData == nil {
		return fmt.Errorf("source and destination PixelData cannot be nil")
	}
	fi := oldPixelData.GetFrameInfo()
	if fi == nil {
		return fmt.Errorf("failed to get frame info from source pixel data")
	}
	f := frameOf(fi)

	frameCount := oldPixelData.FrameCount()
	if frameCount == 0 {
		return fmt.Errorf("source pixel data is empty (no frames)")
	}
	for i := 0; i < frameCount; i++ {
		data, err := oldPixelData.GetFrame(i)
		if err != nil {
			return fmt.Errorf("failed to get frame %d: %w", i, err)
		}
		if len(data) == 0 {
			return fmt.Errorf("frame %d pixel data is empty", i)
		}
		native, err := decodeFrame(context.Background(), data, f)
		if err != nil {
			return fmt.Errorf("HTJ2K decode failed for frame %d: %w", i, err)
		}
		if err := newPixelData.AddFrame(native); err != nil {
			return fmt.Errorf("failed to add decoded frame %d: %w", i, err)
		}
	}
	return nil
}

// options maps codec parameters onto encoder options for frame f.
func (c *Codec) options(p *Parameters, f frame) *htj2k.Options {
	o := htj2k.DefaultOptions()
	o.Levels = clampLevels(p.NumLevels, f.Width, f.Height)
	o.Block = htj2k.Size{W: floorPow2(p.BlockWidth), H: floorPow2(p.BlockHeight)}
	o.Layers = p.NumLayers
	o.ColourTransform = p.AllowMCT && f.Samples == 3
	o.Progression = packet.RPCL
	o.Reversible = c.lossless
	if !c.lossless {
		o.QStep = qstep(p.Quality)
		o.BitsPerPixel = p.Rate
	}
	return o
}

// qstep doubles the base step for every ten quality points below 100.
func qstep(quality int) float64 {
	return quant.DefaultQStep * math.Pow(2, float64(100-quality)/10)
}

// clampLevels keeps the lowest resolution at least one sample wide.
func clampLevels(levels, w, h int) int {
	for levels > 0 && min(w, h)>>uint(levels) == 0 {
		levels--
	}
	return levels
}

func floorPow2(n int) int {
	if n <= 0 {
		return 0
	}
	return 1 << uint(bits.Len(uint(n))-1)
}

func encodeFrame(ctx context.Context, native []byte, f frame, opts *htj2k.Options) ([]byte, error) {
	img, err := f.toImage(native)
	if err != nil {
		return nil, err
	}
	o := *opts
	o.Diagnostics = htj2k.NewDiagnostics(slog.Default())
	data, _, err := htj2k.EncodeImage(ctx, img, &o)
	return data, err
}

// decodeFrame expands one codestream. A zero BitsAllocated in f is taken
// from the codestream's precision.
func decodeFrame(ctx context.Context, data []byte, f frame) ([]byte, error) {
	img, _, err := htj2k.DecodeImage(ctx, data, &htj2k.DecodeOptions{Diagnostics: htj2k.NewDiagnostics(slog.Default())})
	if err != nil {
		return nil, err
	}
	precision := img.Components[0].Precision
	if f.BitsStored == 0 {
		f.BitsStored = precision
		f.Signed = img.Components[0].Signed
	}
	if f.BitsAllocated == 0 {
		f.BitsAllocated = 8
		if precision > 8 {
			f.BitsAllocated = 16
		}
	}
	if f.Width == 0 && f.Height == 0 && f.Samples == 0 {
		f.Width, f.Height, f.Samples = img.Width, img.Height, len(img.Components)
	}
	return f.fromImage(img)
}

// Register adds the three codecs to the global registry
func Register() {
	registry := codec.GetGlobalRegistry()
	registry.RegisterCodec(LosslessSyntax, NewLosslessCodec())
	registry.RegisterCodec(LosslessRPCLSyntax, NewLosslessRPCLCodec())
	registry.RegisterCodec(LossySyntax, NewCodec())
}

func init() {
	Register()
}
