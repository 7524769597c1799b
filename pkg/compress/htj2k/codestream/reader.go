package codestream

import (
	"fmt"

	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/bitio"
	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/dwt"
	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/errs"
	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/geom"
	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/packet"
	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/quant"
)

// Header is the main header of a codestream.
type Header struct {
	SIZ      SIZ
	CAP      *CAP
	COD      COD
	QCD      QCD
	Comments []COM
	TLM      []TLMEntry
}

// TilePart is one tile-part with its packet data.
type TilePart struct {
	SOT  SOT
	Data []byte
}

// Codestream is a parsed codestream.
type Codestream struct {
	Header
	TileParts []TilePart
}

// TileData concatenates the tile-parts of every tile in tile-part order.
func (c *Codestream) TileData() map[int][]byte {
	out := map[int][]byte{}
	for _, tp := range c.TileParts {
		t := int(tp.SOT.TileIndex)
		out[t] = append(out[t], tp.Data...)
	}
	return out
}

// Reader reads JPEG 2000 codestream structure
type Reader struct {
	r *bitio.ByteReader
}

// NewReader creates a new codestream reader
func NewReader(data []byte) *Reader {
	return &Reader{r: bitio.NewByteReader(data)}
}

// Parse reads a complete codestream.
func Parse(data []byte) (*Codestream, error) {
	c := NewReader(data)
	cs := &Codestream{}
	marker, err := c.ReadMainHeader(&cs.Header)
	if err != nil {
		return nil, err
	}
	for marker == MarkerSOT {
		tp, next, err := c.readTilePart()
		if err != nil {
			return nil, err
		}
		if int(tp.SOT.TileIndex) >= cs.SIZ.Grid().NumTiles() {
			return nil, fmt.Errorf("%w: tile index %d of %d tiles", errs.ErrCodestreamMismatch, tp.SOT.TileIndex, cs.SIZ.Grid().NumTiles())
		}
		cs.TileParts = append(cs.TileParts, tp)
		marker = next
	}
	if marker != MarkerEOC {
		return nil, fmt.Errorf("%w: expected SOT or EOC, got 0x%04X", errs.ErrBitstreamCorruption, marker)
	}
	return cs, nil
}

// ReadMainHeader reads SOC through the first SOT and returns that marker.
func (c *Reader) ReadMainHeader(h *Header) (uint16, error) {
	marker, err := c.r.ReadUint16()
	if err != nil {
		return 0, fmt.Errorf("reading SOC: %w", err)
	}
	if marker != MarkerSOC {
		return 0, fmt.Errorf("%w: expected SOC (0x%04X), got 0x%04X", errs.ErrCodestreamMismatch, MarkerSOC, marker)
	}
	var seen struct{ siz, cod, qcd bool }
	for {
		marker, err = c.r.ReadUint16()
		if err != nil {
			return 0, fmt.Errorf("reading marker: %w", err)
		}
		if marker == MarkerSOT || marker == MarkerEOC {
			break
		}
		seg, err := c.segment()
		if err != nil {
			return 0, err
		}
		switch marker {
		case MarkerSIZ:
			err, seen.siz = readSIZ(seg, &h.SIZ), true
		case MarkerCAP:
			h.CAP = &CAP{}
			err = readCAP(seg, h.CAP)
		case MarkerCOD:
			err, seen.cod = readCOD(seg, &h.COD), true
		case MarkerQCD:
			err, seen.qcd = readQCD(seg, &h.QCD), true
		case MarkerCOM:
			var com COM
			if err = readCOM(seg, &com); err == nil {
				h.Comments = append(h.Comments, com)
			}
		case MarkerTLM:
			h.TLM, err = readTLM(seg, h.TLM)
		case MarkerCOC, MarkerQCC, MarkerPOC:
			err = fmt.Errorf("%w: marker 0x%04X is not supported", errs.ErrCodestreamMismatch, marker)
		}
		if err != nil {
			return 0, err
		}
	}
	if !seen.siz || !seen.cod || !seen.qcd {
		return 0, fmt.Errorf("%w: main header lacks SIZ, COD or QCD", errs.ErrCodestreamMismatch)
	}
	return marker, h.Validate()
}

// segment reads a marker segment length and returns its payload.
func (c *Reader) segment() (*bitio.ByteReader, error) {
	length, err := c.r.ReadUint16()
	if err != nil {
		return nil, err
	}
	if length < 2 {
		return nil, fmt.Errorf("%w: marker segment length %d", errs.ErrBitstreamCorruption, length)
	}
	payload, err := c.r.ReadBytes(int(length) - 2)
	if err != nil {
		return nil, err
	}
	return bitio.NewByteReader(payload), nil
}

func (c *Reader) readTilePart() (TilePart, uint16, error) {
	start := c.r.Pos() - 2
	seg, err := c.segment()
	if err != nil {
		return TilePart{}, 0, err
	}
	tp := TilePart{}
	if err := readSOT(seg, &tp.SOT); err != nil {
		return TilePart{}, 0, err
	}
	for {
		marker, err := c.r.ReadUint16()
		if err != nil {
			return TilePart{}, 0, err
		}
		if marker == MarkerSOD {
			break
		}
		if marker == MarkerCOD || marker == MarkerQCD || marker == MarkerCOC || marker == MarkerQCC || marker == MarkerPOC {
			return TilePart{}, 0, fmt.Errorf("%w: tile-part header marker 0x%04X is not supported", errs.ErrCodestreamMismatch, marker)
		}
		if _, err := c.segment(); err != nil {
			return TilePart{}, 0, err
		}
	}

	var n int
	if tp.SOT.TilePartLen == 0 {
		// runs up to the EOC marker
		n = c.r.Remaining() - 2
	} else {
		n = start + int(tp.SOT.TilePartLen) - c.r.Pos()
	}
	if tp.Data, err = c.r.ReadBytes(n); err != nil {
		return TilePart{}, 0, fmt.Errorf("tile %d part %d: %w", tp.SOT.TileIndex, tp.SOT.TilePartIdx, err)
	}
	next, err := c.r.ReadUint16()
	if err != nil {
		return TilePart{}, 0, fmt.Errorf("%w: missing EOC", errs.ErrBitstreamCorruption)
	}
	return tp, next, nil
}

// Validate checks the main header describes a codestream this codec decodes.
func (h *Header) Validate() error {
	if err := h.SIZ.Grid().Validate(); err != nil {
		return fmt.Errorf("%w: %w", errs.ErrCodestreamMismatch, err)
	}
	if len(h.SIZ.Components) == 0 {
		return fmt.Errorf("%w: no components", errs.ErrCodestreamMismatch)
	}
	for i, comp := range h.SIZ.Components {
		if comp.Precision < 1 || comp.Precision > 38 || comp.XRsiz < 1 || comp.YRsiz < 1 {
			return fmt.Errorf("%w: component %d precision %d separation %dx%d", errs.ErrCodestreamMismatch, i, comp.Precision, comp.XRsiz, comp.YRsiz)
		}
	}
	if h.COD.CodeBlockStyle&CodeBlockHT == 0 {
		return fmt.Errorf("%w: code-blocks are not HT coded", errs.ErrCodestreamMismatch)
	}
	if h.COD.CodeBlockStyle&CodeBlockMixed != 0 {
		return fmt.Errorf("%w: mixed HT and MQ code-blocks", errs.ErrCodestreamMismatch)
	}
	if h.COD.Transform != dwt.Reversible53 && h.COD.Transform != dwt.Irreversible97 {
		return fmt.Errorf("%w: transform %d", errs.ErrCodestreamMismatch, h.COD.Transform)
	}
	if !h.COD.Progression.Valid() {
		return fmt.Errorf("%w: progression order %d", errs.ErrCodestreamMismatch, h.COD.Progression)
	}
	if h.COD.Layers == 0 {
		return fmt.Errorf("%w: zero quality layers", errs.ErrCodestreamMismatch)
	}
	if err := h.COD.Style().Validate(); err != nil {
		return fmt.Errorf("%w: %w", errs.ErrCodestreamMismatch, err)
	}
	if h.QCD.Style == quant.StyleDerived {
		return fmt.Errorf("%w: derived quantization", errs.ErrCodestreamMismatch)
	}
	if want := dwt.NumBands(int(h.COD.Levels)); len(h.QCD.Steps) != want {
		return fmt.Errorf("%w: %d quantization steps for %d subbands", errs.ErrCodestreamMismatch, len(h.QCD.Steps), want)
	}
	if (h.QCD.Style == quant.StyleNone) != (h.COD.Transform == dwt.Reversible53) {
		return fmt.Errorf("%w: quantization style %d with %s transform", errs.ErrCodestreamMismatch, h.QCD.Style, h.COD.Transform)
	}
	return nil
}

func readSIZ(r *bitio.ByteReader, siz *SIZ) error {
	var err error
	fields := []*uint32{&siz.XSiz, &siz.YSiz, &siz.XOsiz, &siz.YOsiz, &siz.XTsiz, &siz.YTsiz, &siz.XTOsiz, &siz.YTOsiz}
	if siz.Rsiz, err = r.ReadUint16(); err != nil {
		return err
	}
	for _, f := range fields {
		if *f, err = r.ReadUint32(); err != nil {
			return err
		}
	}
	n, err := r.ReadUint16()
	if err != nil {
		return err
	}
	siz.Components = make([]ComponentInfo, n)
	for i := range siz.Components {
		b, err := r.ReadBytes(3)
		if err != nil {
			return err
		}
		siz.Components[i] = ComponentInfo{
			Precision: int(b[0]&0x7F) + 1,
			Signed:    b[0]&0x80 != 0,
			XRsiz:     int(b[1]),
			YRsiz:     int(b[2]),
		}
	}
	return nil
}

func readCAP(r *bitio.ByteReader, cp *CAP) error {
	var err error
	if cp.Pcap, err = r.ReadUint32(); err != nil {
		return err
	}
	if cp.Pcap&PcapHT != 0 {
		cp.Ccap15, err = r.ReadUint16()
	}
	return err
}

func readCOD(r *bitio.ByteReader, cod *COD) error {
	b, err := r.ReadBytes(10)
	if err != nil {
		return err
	}
	cod.Scod = b[0]
	cod.Progression = packet.Progression(b[1])
	cod.Layers = uint16(b[2])<<8 | uint16(b[3])
	cod.MCT = b[4]
	cod.Levels = b[5]
	cod.CBWExp = b[6]
	cod.CBHExp = b[7]
	cod.CodeBlockStyle = b[8]
	cod.Transform = dwt.Kernel(b[9])
	cod.Precincts = nil
	if cod.Scod&ScodPrecincts != 0 {
		pp, err := r.ReadBytes(int(cod.Levels) + 1)
		if err != nil {
			return err
		}
		cod.Precincts = append([]byte(nil), pp...)
	}
	return nil
}

func readQCD(r *bitio.ByteReader, qcd *QCD) error {
	sqcd, err := r.ReadByte()
	if err != nil {
		return err
	}
	qcd.Guard = int(sqcd >> 5)
	qcd.Style = quant.Style(sqcd & 0x1F)
	qcd.Steps = nil
	for r.Remaining() > 0 {
		if qcd.Style == quant.StyleNone {
			b, _ := r.ReadByte()
			qcd.Steps = append(qcd.Steps, quant.StepSize{Exponent: int(b >> 3)})
			continue
		}
		v, err := r.ReadUint16()
		if err != nil {
			return err
		}
		qcd.Steps = append(qcd.Steps, quant.StepSize{Exponent: int(v >> 11), Mantissa: int(v & 0x7FF)})
	}
	return nil
}

func readCOM(r *bitio.ByteReader, com *COM) error {
	var err error
	if com.Registration, err = r.ReadUint16(); err != nil {
		return err
	}
	data, _ := r.ReadBytes(r.Remaining())
	com.Data = append([]byte(nil), data...)
	return nil
}

func readTLM(r *bitio.ByteReader, entries []TLMEntry) ([]TLMEntry, error) {
	hdr, err := r.ReadBytes(2)
	if err != nil {
		return nil, err
	}
	st := int(hdr[1]>>4) & 0x3
	sp := int(hdr[1]>>6) & 0x1
	for r.Remaining() > 0 {
		var e TLMEntry
		switch st {
		case 1:
			b, err := r.ReadByte()
			if err != nil {
				return nil, err
			}
			e.TileIndex = uint16(b)
		case 2:
			if e.TileIndex, err = r.ReadUint16(); err != nil {
				return nil, err
			}
		default:
			e.TileIndex = uint16(len(entries))
		}
		if sp == 1 {
			e.Length, err = r.ReadUint32()
		} else {
			var v uint16
			v, err = r.ReadUint16()
			e.Length = uint32(v)
		}
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func readSOT(r *bitio.ByteReader, sot *SOT) error {
	b, err := r.ReadBytes(8)
	if err != nil {
		return err
	}
	sot.TileIndex = uint16(b[0])<<8 | uint16(b[1])
	sot.TilePartLen = uint32(b[2])<<24 | uint32(b[3])<<16 | uint32(b[4])<<8 | uint32(b[5])
	sot.TilePartIdx = b[6]
	sot.NumTileParts = b[7]
	return nil
}

// Precincts packs per-resolution precinct exponents for COD.
func Precincts(s geom.Style) []byte {
	out := make([]byte, len(s.PPx))
	for i := range out {
		out[i] = byte(s.PPx[i]&0x0F) | byte(s.PPy[i]&0x0F)<<4
	}
	return out
}
