package codestream

import (
	"testing"

	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/dwt"
	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/errs"
	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/geom"
	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/packet"
	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/quant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHeader() *Header {
	q := quant.Reversible(2, 8, false)
	return &Header{
		SIZ: SIZ{
			Rsiz: RsizHT,
			XSiz: 40, YSiz: 24,
			XTsiz: 32, YTsiz: 32,
			Components: []ComponentInfo{{Precision: 8, XRsiz: 1, YRsiz: 1}},
		},
		CAP: &CAP{Pcap: PcapHT, Ccap15: Ccap15For(10, false)},
		COD: COD{
			Scod:           ScodPrecincts,
			Progression:    packet.RPCL,
			Layers:         2,
			Levels:         2,
			CBWExp:         4,
			CBHExp:         4,
			CodeBlockStyle: CodeBlockHT,
			Transform:      dwt.Reversible53,
			Precincts:      []byte{0x77, 0x88, 0x99},
		},
		QCD:      QCD{Style: q.Style, Guard: q.Guard, Steps: q.Steps},
		Comments: []COM{{Registration: CommentLatin1, Data: []byte("htj2k")}},
	}
}

func TestAssembleParse_RoundTrip(t *testing.T) {
	for _, tlm := range []bool{false, true} {
		h := testHeader()
		tiles := []Tile{
			{Index: 0, Parts: [][]byte{{1, 2, 3}, {4}}},
			{Index: 1, Parts: [][]byte{{5, 6}}},
		}
		data, err := Assemble(h, tiles, tlm)
		require.NoError(t, err)
		assert.Equal(t, []byte{0xFF, 0x4F}, data[:2])
		assert.Equal(t, []byte{0xFF, 0xD9}, data[len(data)-2:])

		cs, err := Parse(data)
		require.NoError(t, err)
		assert.Equal(t, h.SIZ, cs.SIZ)
		assert.Equal(t, h.CAP, cs.CAP)
		assert.Equal(t, h.COD, cs.COD)
		assert.Equal(t, h.QCD, cs.QCD)
		assert.Equal(t, h.Comments, cs.Comments)
		require.Len(t, cs.TileParts, 3)
		assert.Equal(t, byte(1), cs.TileParts[1].SOT.TilePartIdx)
		assert.Equal(t, byte(2), cs.TileParts[1].SOT.NumTileParts)
		assert.Equal(t, map[int][]byte{0: {1, 2, 3, 4}, 1: {5, 6}}, cs.TileData())

		if tlm {
			assert.Equal(t, []TLMEntry{{0, 17}, {0, 15}, {1, 16}}, cs.TLM)
		} else {
			assert.Empty(t, cs.TLM)
		}
	}
}

func TestParse_OpenEndedTilePart(t *testing.T) {
	c := NewWriter()
	h := testHeader()
	c.WriteSOC()
	c.WriteSIZ(&h.SIZ)
	c.WriteCOD(&h.COD)
	c.WriteQCD(&h.QCD)
	c.WriteSOT(&SOT{TileIndex: 1})
	c.WriteSOD()
	c.WriteBytes([]byte{9, 8, 7})
	c.WriteEOC()

	cs, err := Parse(c.Bytes())
	require.NoError(t, err)
	require.Len(t, cs.TileParts, 1)
	assert.Equal(t, []byte{9, 8, 7}, cs.TileParts[0].Data)
	assert.Nil(t, cs.CAP)
}

func TestCcap15(t *testing.T) {
	tests := []struct {
		mb   int
		want int // decoded bound, never below mb
	}{
		{1, 8}, {8, 8}, {9, 9}, {27, 27}, {28, 31}, {31, 31}, {32, 35}, {71, 71}, {72, 74},
	}
	for _, tt := range tests {
		c := CAP{Ccap15: Ccap15For(tt.mb, true)}
		assert.Equal(t, tt.want, c.MagB(), "mb %d", tt.mb)
		assert.GreaterOrEqual(t, c.MagB(), tt.mb)
		assert.NotZero(t, c.Ccap15&Ccap15Irreversible)
	}
	assert.Zero(t, Ccap15For(12, false)&Ccap15Irreversible)
}

func TestCOD_Style(t *testing.T) {
	h := testHeader()
	s := h.COD.Style()
	assert.Equal(t, geom.Style{Levels: 2, CBW: 6, CBH: 6, PPx: []int{7, 8, 9}, PPy: []int{7, 8, 9}}, s)
	assert.Equal(t, h.COD.Precincts, Precincts(s))

	h.COD.Scod = 0
	s = h.COD.Style()
	assert.Equal(t, []int{15, 15, 15}, s.PPx)
}

func TestParse_Errors(t *testing.T) {
	valid, err := Assemble(testHeader(), []Tile{{Index: 0, Parts: [][]byte{{1, 2}}}}, false)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(h *Header)
		data   func() []byte
		want   error
	}{
		{name: "not HT", mutate: func(h *Header) { h.COD.CodeBlockStyle = 0 }, want: errs.ErrCodestreamMismatch},
		{name: "mixed HT", mutate: func(h *Header) { h.COD.CodeBlockStyle |= CodeBlockMixed }, want: errs.ErrCodestreamMismatch},
		{name: "bad transform", mutate: func(h *Header) { h.COD.Transform = 3 }, want: errs.ErrCodestreamMismatch},
		{name: "bad progression", mutate: func(h *Header) { h.COD.Progression = 6 }, want: errs.ErrCodestreamMismatch},
		{name: "no layers", mutate: func(h *Header) { h.COD.Layers = 0 }, want: errs.ErrCodestreamMismatch},
		{name: "step count", mutate: func(h *Header) { h.QCD.Steps = h.QCD.Steps[:3] }, want: errs.ErrCodestreamMismatch},
		{name: "style mismatch", mutate: func(h *Header) { h.COD.Transform = dwt.Irreversible97 }, want: errs.ErrCodestreamMismatch},
		{name: "empty grid", mutate: func(h *Header) { h.SIZ.XOsiz = 40 }, want: errs.ErrCodestreamMismatch},
		{name: "no SOC", data: func() []byte { return valid[2:] }, want: errs.ErrCodestreamMismatch},
		{name: "truncated", data: func() []byte { return valid[:len(valid)-5] }, want: errs.ErrBitstreamCorruption},
		{name: "missing EOC", data: func() []byte { return valid[:len(valid)-2] }, want: errs.ErrBitstreamCorruption},
		{name: "empty", data: func() []byte { return nil }, want: errs.ErrBitstreamCorruption},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := valid
			if tt.mutate != nil {
				h := testHeader()
				tt.mutate(h)
				data, err = Assemble(h, []Tile{{Index: 0, Parts: [][]byte{{1, 2}}}}, false)
				require.NoError(t, err)
			}
			if tt.data != nil {
				data = tt.data()
			}
			_, err := Parse(data)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParse_RejectsComponentOverrides(t *testing.T) {
	h := testHeader()
	c := NewWriter()
	c.WriteSOC()
	c.WriteSIZ(&h.SIZ)
	c.WriteCOD(&h.COD)
	c.WriteQCD(&h.QCD)
	c.w.WriteUint16(MarkerQCC)
	c.w.WriteUint16(4)
	c.w.WriteUint16(0)
	c.WriteEOC()
	_, err := Parse(c.Bytes())
	assert.ErrorIs(t, err, errs.ErrCodestreamMismatch)
}

func TestSplit(t *testing.T) {
	packets := []Packet{
		{Resolution: 0, Component: 0, Data: []byte{1}},
		{Resolution: 0, Component: 1, Data: []byte{2}},
		{Resolution: 1, Component: 0, Data: []byte{3}},
		{Resolution: 1, Component: 1, Data: []byte{4}},
	}
	parts, err := Split(packets, Division{})
	require.NoError(t, err)
	assert.Equal(t, [][]byte{{1, 2, 3, 4}}, parts)

	parts, err = Split(packets, Division{Resolution: true})
	require.NoError(t, err)
	assert.Equal(t, [][]byte{{1, 2}, {3, 4}}, parts)

	parts, err = Split(packets, Division{Resolution: true, Component: true})
	require.NoError(t, err)
	assert.Len(t, parts, 4)

	many := make([]Packet, 300)
	for i := range many {
		many[i].Resolution = i
	}
	_, err = Split(many, Division{Resolution: true})
	assert.ErrorIs(t, err, errs.ErrConfiguration)
}
