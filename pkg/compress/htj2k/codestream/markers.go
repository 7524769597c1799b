// Package codestream reads and writes the marker segments of an HTJ2K
// codestream (ITU-T T.800 Annex A, with the T.814 CAP extension) and splits
// tile data into tile-parts.
package codestream

import (
	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/dwt"
	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/geom"
	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/packet"
	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/quant"
)

// Marker codes (ITU-T T.800 Table A.1, T.814 Table A.2)
const (
	// Delimiting markers
	MarkerSOC = 0xFF4F // Start of codestream
	MarkerSOT = 0xFF90 // Start of tile-part
	MarkerSOD = 0xFF93 // Start of data
	MarkerEOC = 0xFFD9 // End of codestream

	// Fixed information markers
	MarkerSIZ = 0xFF51 // Image and tile size
	MarkerCAP = 0xFF50 // Extended capabilities

	// Functional markers
	MarkerCOD = 0xFF52 // Coding style default
	MarkerCOC = 0xFF53 // Coding style component
	MarkerQCD = 0xFF5C // Quantization default
	MarkerQCC = 0xFF5D // Quantization component
	MarkerPOC = 0xFF5F // Progression order change

	// Pointer markers
	MarkerTLM = 0xFF55 // Tile-part lengths
	MarkerPLT = 0xFF58 // Packet length, tile-part header

	// Informational markers
	MarkerCOM = 0xFF64 // Comment
)

// Rsiz bit announcing Part 15 capabilities
const RsizHT = 0x4000

// Pcap bit for Part 15 in CAP
const PcapHT = 0x00020000

// Ccap15 fields
const (
	Ccap15Irreversible = 0x0020 // irreversible transform in use
	Ccap15MagBMask     = 0x001F
)

// Coding style flags (ITU-T T.800 Table A.13)
const (
	ScodPrecincts = 0x01 // Custom precinct sizes
	ScodSOP       = 0x02
	ScodEPH       = 0x04
)

// Code-block style flags (ITU-T T.800 Table A.19, T.814 Table A.4)
const (
	CodeBlockHT    = 0x40 // High-throughput block coding
	CodeBlockMixed = 0x80 // HT and MQ coded sets may mix within a block
)

// Comment registration values
const (
	CommentBinary = 0
	CommentLatin1 = 1
)

// ComponentInfo holds one component of SIZ
type ComponentInfo struct {
	Precision int  // Bit depth (1-38)
	Signed    bool // True if signed samples
	XRsiz     int  // Horizontal sample separation
	YRsiz     int  // Vertical sample separation
}

// SIZ holds image and tile size parameters (ITU-T T.800 A.5.1)
type SIZ struct {
	Rsiz       uint16
	XSiz       uint32 // Reference grid width
	YSiz       uint32 // Reference grid height
	XOsiz      uint32 // Image horizontal offset
	YOsiz      uint32 // Image vertical offset
	XTsiz      uint32 // Tile width
	YTsiz      uint32 // Tile height
	XTOsiz     uint32 // Tile grid horizontal offset
	YTOsiz     uint32 // Tile grid vertical offset
	Components []ComponentInfo
}

// Grid returns the reference grid described by SIZ.
func (s *SIZ) Grid() geom.Grid {
	return geom.Grid{
		XSiz: int(s.XSiz), YSiz: int(s.YSiz),
		XOsiz: int(s.XOsiz), YOsiz: int(s.YOsiz),
		XTsiz: int(s.XTsiz), YTsiz: int(s.YTsiz),
		XTOsiz: int(s.XTOsiz), YTOsiz: int(s.YTOsiz),
	}
}

// CAP holds the extended capabilities (ITU-T T.814 A.3)
type CAP struct {
	Pcap   uint32
	Ccap15 uint16
}

// MagB returns the magnitude bound signalled by Ccap15: the largest Mb any
// code-block of the codestream may use.
func (c CAP) MagB() int {
	b := int(c.Ccap15 & Ccap15MagBMask)
	switch {
	case b == 0:
		return 8
	case b < 20:
		return b + 8
	case b < 31:
		return 4*(b-19) + 27
	default:
		return 74
	}
}

// Ccap15For encodes the Ccap15 word for a maximum Mb.
func Ccap15For(maxMb int, irreversible bool) uint16 {
	var v uint16
	switch {
	case maxMb <= 8:
		v = 0
	case maxMb < 28:
		v = uint16(maxMb - 8)
	case maxMb <= 71:
		v = uint16(19 + (maxMb-24)/4)
	default:
		v = 31
	}
	if irreversible {
		v |= Ccap15Irreversible
	}
	return v
}

// COD holds coding style default parameters (ITU-T T.800 A.6.1)
type COD struct {
	Scod           byte
	Progression    packet.Progression
	Layers         uint16
	MCT            byte // 1 when the colour transform is applied
	Levels         byte
	CBWExp, CBHExp byte // code-block exponents minus 2
	CodeBlockStyle byte
	Transform      dwt.Kernel
	// PPx | PPy<<4 per resolution, present when Scod has ScodPrecincts
	Precincts []byte
}

// Style returns the geometry parameters carried by COD.
func (c *COD) Style() geom.Style {
	s := geom.Style{
		Levels: int(c.Levels),
		CBW:    int(c.CBWExp) + 2,
		CBH:    int(c.CBHExp) + 2,
	}
	if c.Scod&ScodPrecincts == 0 {
		s.PPx, s.PPy = geom.UniformPrecincts(s.Levels)
		return s
	}
	for _, b := range c.Precincts {
		s.PPx = append(s.PPx, int(b&0x0F))
		s.PPy = append(s.PPy, int(b>>4))
	}
	return s
}

// QCD holds quantization default parameters (ITU-T T.800 A.6.4)
type QCD struct {
	Style quant.Style
	Guard int
	Steps []quant.StepSize
}

// Table returns the quantization table for components of a precision.
func (q *QCD) Table(precision int) quant.Table {
	return quant.Table{Style: q.Style, Guard: q.Guard, Precision: precision, Steps: q.Steps}
}

// SOT holds tile-part header parameters (ITU-T T.800 A.4.2)
type SOT struct {
	TileIndex    uint16
	TilePartLen  uint32 // Psot, 0 = up to EOC
	TilePartIdx  byte
	NumTileParts byte // 0 = not specified
}

// COM holds comment data (ITU-T T.800 A.9.2)
type COM struct {
	Registration uint16
	Data         []byte
}

// TLMEntry is one tile-part length record of TLM
type TLMEntry struct {
	TileIndex uint16
	Length    uint32
}
