package codestream

import (
	"fmt"

	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/bitio"
	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/errs"
	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/quant"
)

// sotSegment is the byte size of SOT (marker included); a tile-part adds the
// two byte SOD marker to it.
const sotSegment = 12

// maxTLMEntries keeps Ltlm within 16 bits.
const maxTLMEntries = (0xFFFF - 4) / 6

// Writer writes JPEG 2000 codestream structure
type Writer struct {
	w *bitio.ByteWriter
}

// NewWriter creates a new codestream writer over an in-memory buffer
func NewWriter() *Writer {
	return &Writer{w: bitio.NewByteWriter()}
}

// Bytes returns the codestream written so far
func (c *Writer) Bytes() []byte { return c.w.Bytes() }

// Len returns the number of bytes written
func (c *Writer) Len() int { return c.w.Len() }

// WriteSOC writes the Start of Codestream marker
func (c *Writer) WriteSOC() {
	c.w.WriteUint16(MarkerSOC)
}

// WriteSIZ writes the SIZ marker segment
func (c *Writer) WriteSIZ(siz *SIZ) {
	c.w.WriteUint16(MarkerSIZ)
	c.w.WriteUint16(uint16(38 + 3*len(siz.Components)))
	c.w.WriteUint16(siz.Rsiz)
	c.w.WriteUint32(siz.XSiz)
	c.w.WriteUint32(siz.YSiz)
	c.w.WriteUint32(siz.XOsiz)
	c.w.WriteUint32(siz.YOsiz)
	c.w.WriteUint32(siz.XTsiz)
	c.w.WriteUint32(siz.YTsiz)
	c.w.WriteUint32(siz.XTOsiz)
	c.w.WriteUint32(siz.YTOsiz)
	c.w.WriteUint16(uint16(len(siz.Components)))
	for _, comp := range siz.Components {
		ssiz := byte(comp.Precision - 1)
		if comp.Signed {
			ssiz |= 0x80
		}
		_ = c.w.WriteByte(ssiz)
		_ = c.w.WriteByte(byte(comp.XRsiz))
		_ = c.w.WriteByte(byte(comp.YRsiz))
	}
}

// WriteCAP writes the CAP marker segment with a single Ccap15 entry
func (c *Writer) WriteCAP(cp *CAP) {
	c.w.WriteUint16(MarkerCAP)
	c.w.WriteUint16(8)
	c.w.WriteUint32(cp.Pcap)
	c.w.WriteUint16(cp.Ccap15)
}

// WriteCOD writes the COD marker segment
func (c *Writer) WriteCOD(cod *COD) {
	c.w.WriteUint16(MarkerCOD)
	length := 12
	if cod.Scod&ScodPrecincts != 0 {
		length += len(cod.Precincts)
	}
	c.w.WriteUint16(uint16(length))
	_ = c.w.WriteByte(cod.Scod)
	_ = c.w.WriteByte(byte(cod.Progression))
	c.w.WriteUint16(cod.Layers)
	_ = c.w.WriteByte(cod.MCT)
	_ = c.w.WriteByte(cod.Levels)
	_ = c.w.WriteByte(cod.CBWExp)
	_ = c.w.WriteByte(cod.CBHExp)
	_ = c.w.WriteByte(cod.CodeBlockStyle)
	_ = c.w.WriteByte(byte(cod.Transform))
	if cod.Scod&ScodPrecincts != 0 {
		c.w.WriteBytes(cod.Precincts)
	}
}

// WriteQCD writes the QCD marker segment
func (c *Writer) WriteQCD(qcd *QCD) {
	c.w.WriteUint16(MarkerQCD)
	if qcd.Style == quant.StyleNone {
		c.w.WriteUint16(uint16(3 + len(qcd.Steps)))
	} else {
		c.w.WriteUint16(uint16(3 + 2*len(qcd.Steps)))
	}
	_ = c.w.WriteByte(byte(qcd.Guard)<<5 | byte(qcd.Style))
	for _, s := range qcd.Steps {
		if qcd.Style == quant.StyleNone {
			_ = c.w.WriteByte(byte(s.Exponent << 3))
		} else {
			c.w.WriteUint16(uint16(s.Exponent<<11 | s.Mantissa))
		}
	}
}

// WriteCOM writes a COM marker segment
func (c *Writer) WriteCOM(com *COM) {
	c.w.WriteUint16(MarkerCOM)
	c.w.WriteUint16(uint16(4 + len(com.Data)))
	c.w.WriteUint16(com.Registration)
	c.w.WriteBytes(com.Data)
}

// WriteTLM writes TLM marker segments with 16-bit tile indices and 32-bit
// tile-part lengths, splitting long lists over several segments.
func (c *Writer) WriteTLM(entries []TLMEntry) {
	for z := 0; len(entries) > 0; z++ {
		n := min(len(entries), maxTLMEntries)
		c.w.WriteUint16(MarkerTLM)
		c.w.WriteUint16(uint16(4 + 6*n))
		_ = c.w.WriteByte(byte(z))
		_ = c.w.WriteByte(0x60)
		for _, e := range entries[:n] {
			c.w.WriteUint16(e.TileIndex)
			c.w.WriteUint32(e.Length)
		}
		entries = entries[n:]
	}
}

// WriteSOT writes the SOT marker segment
func (c *Writer) WriteSOT(sot *SOT) {
	c.w.WriteUint16(MarkerSOT)
	c.w.WriteUint16(10)
	c.w.WriteUint16(sot.TileIndex)
	c.w.WriteUint32(sot.TilePartLen)
	_ = c.w.WriteByte(sot.TilePartIdx)
	_ = c.w.WriteByte(sot.NumTileParts)
}

// WriteSOD writes the Start of Data marker
func (c *Writer) WriteSOD() {
	c.w.WriteUint16(MarkerSOD)
}

// WriteEOC writes the End of Codestream marker
func (c *Writer) WriteEOC() {
	c.w.WriteUint16(MarkerEOC)
}

// WriteBytes writes raw data
func (c *Writer) WriteBytes(data []byte) {
	c.w.WriteBytes(data)
}

// Tile is the coded data of one tile, already divided into tile-parts.
type Tile struct {
	Index int
	Parts [][]byte
}

// Assemble writes a complete codestream: main header, optional TLM, every
// tile-part in tile order and EOC.
func Assemble(h *Header, tiles []Tile, tlm bool) ([]byte, error) {
	c := NewWriter()
	c.WriteSOC()
	c.WriteSIZ(&h.SIZ)
	if h.CAP != nil {
		c.WriteCAP(h.CAP)
	}
	c.WriteCOD(&h.COD)
	c.WriteQCD(&h.QCD)
	for i := range h.Comments {
		c.WriteCOM(&h.Comments[i])
	}

	var entries []TLMEntry
	for _, t := range tiles {
		if len(t.Parts) > 255 {
			return nil, fmt.Errorf("%w: tile %d needs %d tile-parts, at most 255", errs.ErrConfiguration, t.Index, len(t.Parts))
		}
		if t.Index > 0xFFFE {
			return nil, fmt.Errorf("%w: tile index %d", errs.ErrConfiguration, t.Index)
		}
		for _, p := range t.Parts {
			entries = append(entries, TLMEntry{TileIndex: uint16(t.Index), Length: uint32(sotSegment + 2 + len(p))})
		}
	}
	if tlm {
		c.WriteTLM(entries)
	}

	for _, t := range tiles {
		for i, p := range t.Parts {
			c.WriteSOT(&SOT{
				TileIndex:    uint16(t.Index),
				TilePartLen:  uint32(sotSegment + 2 + len(p)),
				TilePartIdx:  byte(i),
				NumTileParts: byte(len(t.Parts)),
			})
			c.WriteSOD()
			c.WriteBytes(p)
		}
	}
	c.WriteEOC()
	return c.Bytes(), nil
}
