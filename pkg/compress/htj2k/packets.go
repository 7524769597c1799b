package htj2k

import (
	"context"
	"fmt"

	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/block"
	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/codestream"
	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/packet"
	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/rate"
)

// writeTile emits the packets of one tile in progression order and divides
// them into tile-parts.
func (e *encoder) writeTile(tl *tileLayout, alloc *rate.Allocation, encoded []*block.Encoded) (codestream.Tile, int, error) {
	layers := alloc.NumLayers()
	writers := make([][][]*packet.Writer, len(tl.comps))
	for c, tc := range tl.comps {
		writers[c] = make([][]*packet.Writer, len(tc.Resolutions))
		for r, res := range tc.Resolutions {
			writers[c][r] = make([]*packet.Writer, len(res.Precincts))
			for p := range res.Precincts {
				start, n := tl.precinctBlocks(c, r, p)
				first := make([]int, n)
				zero := make([]int, n)
				for j := range first {
					b := tl.base + start + j
					first[j] = -1
					for l := 0; l < layers; l++ {
						if alloc.Passes[l][b] > 0 {
							first[j] = l
							break
						}
					}
					if first[j] >= 0 {
						zero[j] = encoded[start+j].Sets[alloc.Chains[b]].ZeroPlanes
					}
				}
				writers[c][r][p] = packet.NewWriter(&res.Precincts[p], first, zero)
			}
		}
	}

	steps, err := packet.Sequence(e.o.Progression, layers, tl.comps)
	if err != nil {
		return codestream.Tile{}, 0, err
	}
	packets := make([]codestream.Packet, 0, len(steps))
	for _, st := range steps {
		start, n := tl.precinctBlocks(st.Component, st.Resolution, st.Precinct)
		contribs := make([]packet.Contribution, n)
		for j := range contribs {
			b := tl.base + start + j
			from := 0
			if st.Layer > 0 {
				from = alloc.Passes[st.Layer-1][b]
			}
			to := alloc.Passes[st.Layer][b]
			if to == from {
				continue
			}
			set := &encoded[start+j].Sets[alloc.Chains[b]]
			contribs[j] = packet.Contribution{
				Passes:     to - from,
				ZeroPlanes: set.ZeroPlanes,
				Lengths:    packet.Segments(from, set.Lengths()[from:to]),
				Data:       set.Data[set.Bytes(from):set.Bytes(to)],
			}
		}
		data, err := writers[st.Component][st.Resolution][st.Precinct].Write(st.Layer, contribs)
		if err != nil {
			return codestream.Tile{}, 0, err
		}
		packets = append(packets, codestream.Packet{Resolution: st.Resolution, Component: st.Component, Data: data})
	}
	parts, err := codestream.Split(packets, e.o.TileParts)
	if err != nil {
		return codestream.Tile{}, 0, fmt.Errorf("tile %d: %w", tl.index, err)
	}
	return codestream.Tile{Index: tl.index, Parts: parts}, len(packets), nil
}

// received accumulates the codeword segments a block collects over its
// packets.
type received struct {
	zeroPlanes int
	passes     int
	segments   []int
	data       []byte
}

// parseTile reads the packets of one tile. In resilient mode a packet that
// fails to parse ends the tile: blocks keep the passes already received.
func (d *decoder) parseTile(ctx context.Context, tl *tileLayout, data []byte) ([]received, int, error) {
	recv := make([]received, len(tl.blocks))
	readers := make([][][]*packet.Reader, len(tl.comps))
	for c, tc := range tl.comps {
		readers[c] = make([][]*packet.Reader, len(tc.Resolutions))
		for r, res := range tc.Resolutions {
			readers[c][r] = make([]*packet.Reader, len(res.Precincts))
			for p := range res.Precincts {
				readers[c][r][p] = packet.NewReader(&res.Precincts[p])
			}
		}
	}
	steps, err := packet.Sequence(d.h.COD.Progression, int(d.h.COD.Layers), tl.comps)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrCodestreamMismatch, err)
	}

	pos, count := 0, 0
	for _, st := range steps {
		contribs, n, err := readers[st.Component][st.Resolution][st.Precinct].Read(data[pos:], st.Layer)
		if err != nil {
			err = fmt.Errorf("tile %d packet %+v: %w", tl.index, st, err)
			if !d.o.Resilient {
				return nil, 0, err
			}
			d.diag.corruption(ctx, EventCorruptPacket, err, "tile", tl.index)
			break
		}
		pos += n
		count++
		start, _ := tl.precinctBlocks(st.Component, st.Resolution, st.Precinct)
		for j, c := range contribs {
			if c.Passes == 0 {
				continue
			}
			rv := &recv[start+j]
			rv.zeroPlanes = c.ZeroPlanes
			lengths := c.Lengths
			if packet.Continues(rv.passes) && len(rv.segments) > 0 && len(lengths) > 0 {
				// the MagRef pass extends the refinement segment
				rv.segments[len(rv.segments)-1] += lengths[0]
				lengths = lengths[1:]
			}
			rv.segments = append(rv.segments, lengths...)
			rv.passes += c.Passes
			rv.data = append(rv.data, c.Data...)
		}
	}
	if len(recv) > 0 {
		d.diag.Debug(ctx, "parsed tile", "tile", tl.index, "packets", count, "bytes", pos, "unused", len(data)-pos)
	}
	return recv, count, nil
}
