package htj2k

import (
	"image"

	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/codestream"
	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/dwt"
	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/packet"
)

// Info summarizes a codestream without decoding it.
type Info struct {
	Width, Height   int
	Offset          image.Point
	Components      []codestream.ComponentInfo
	Tiles           int
	TileSize        Size
	TileOffset      image.Point
	TileParts       int
	Levels          int
	Layers          int
	Progression     packet.Progression
	Reversible      bool
	ColourTransform bool
	Block           Size
	Precincts       []Size // per resolution, coarsest first
	MagB            int    // 0 when CAP is absent
	TLM             bool
	Comments        []string
}

// Inspect parses the headers of a codestream.
func Inspect(data []byte) (*Info, error) {
	cs, err := codestream.Parse(data)
	if err != nil {
		return nil, err
	}
	g := cs.SIZ.Grid()
	s := cs.COD.Style()
	info := &Info{
		Width:           g.XSiz - g.XOsiz,
		Height:          g.YSiz - g.YOsiz,
		Offset:          image.Point{X: g.XOsiz, Y: g.YOsiz},
		Components:      cs.SIZ.Components,
		Tiles:           g.NumTiles(),
		TileSize:        Size{g.XTsiz, g.YTsiz},
		TileOffset:      image.Point{X: g.XTOsiz, Y: g.YTOsiz},
		TileParts:       len(cs.TileParts),
		Levels:          s.Levels,
		Layers:          int(cs.COD.Layers),
		Progression:     cs.COD.Progression,
		Reversible:      cs.COD.Transform == dwt.Reversible53,
		ColourTransform: cs.COD.MCT != 0,
		Block:           Size{1 << uint(s.CBW), 1 << uint(s.CBH)},
		TLM:             len(cs.TLM) > 0,
	}
	for r := range s.PPx {
		info.Precincts = append(info.Precincts, Size{1 << uint(s.PPx[r]), 1 << uint(s.PPy[r])})
	}
	if cs.CAP != nil {
		info.MagB = cs.CAP.MagB()
	}
	for _, c := range cs.Comments {
		if c.Registration == codestream.CommentLatin1 {
			info.Comments = append(info.Comments, string(c.Data))
		}
	}
	return info, nil
}
