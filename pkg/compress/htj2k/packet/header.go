// Package packet writes and parses packets: a header of tag-tree coded
// inclusion and zero bit-plane information, pass counts and codeword segment
// lengths, followed by the new segment bytes of every contributing
// code-block.
package packet

import (
	"fmt"
	"math/bits"

	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/bitio"
	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/errs"
	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/geom"
)

// initialLblock is the starting bit count of a block's segment lengths.
const initialLblock = 3

// maxLblock bounds the length indicator so a corrupt comma code cannot
// overflow a 32-bit length.
const maxLblock = 31

// Contribution is what one code-block adds to one packet.
type Contribution struct {
	// Passes is the count of new coding passes
	Passes int
	// ZeroPlanes is signalled with the block's first contribution
	ZeroPlanes int
	// Lengths holds the bytes added to each codeword segment the new passes
	// touch, see SegmentPasses
	Lengths []int
	// Data is the concatenation of the new segment bytes
	Data []byte
}

// passesPerSet is the pass count of one HT set: cleanup, SigProp, MagRef.
const passesPerSet = 3

// SegmentPasses splits n new passes of a block that already holds prior
// passes into codeword segments and returns the pass count of each. The
// cleanup pass of an HT set ends its own segment; the SigProp and MagRef
// passes share the next one.
func SegmentPasses(prior, n int) []int {
	var out []int
	for i := prior; i < prior+n; i++ {
		if len(out) == 0 || i%passesPerSet != passesPerSet-1 {
			out = append(out, 0)
		}
		out[len(out)-1]++
	}
	return out
}

// Segments groups the lengths of consecutive passes starting after prior
// passes into codeword segment lengths.
func Segments(prior int, lengths []int) []int {
	var out []int
	i := 0
	for _, n := range SegmentPasses(prior, len(lengths)) {
		total := 0
		for _, l := range lengths[i : i+n] {
			total += l
		}
		out = append(out, total)
		i += n
	}
	return out
}

// Continues reports whether passes that follow prior passes extend the
// block's last codeword segment rather than opening a new one.
func Continues(prior int) bool {
	return prior%passesPerSet == passesPerSet-1
}

// lengthBits is the width of a segment length field: Lblock plus
// floor(log2) of the passes in the segment.
func lengthBits(lblock, passes int) int {
	return lblock + bits.Len(uint(passes)) - 1
}

type blockState struct {
	included bool
	lblock   int
	passes   int
}

type bandTrees struct {
	w, h       int
	incl, zero *TagTree
}

// coder is the precinct state shared by packet writers and readers.
type coder struct {
	bands  []bandTrees
	blocks []blockState
}

func newCoder(p *geom.Precinct) coder {
	c := coder{}
	for _, b := range p.Bands {
		c.bands = append(c.bands, bandTrees{
			w:    b.BlocksX,
			h:    b.BlocksY,
			incl: NewTagTree(b.BlocksX, b.BlocksY),
			zero: NewTagTree(b.BlocksX, b.BlocksY),
		})
	}
	c.blocks = make([]blockState, p.NumBlocks())
	for i := range c.blocks {
		c.blocks[i].lblock = initialLblock
	}
	return c
}

// Writer produces the packets of one precinct, layer by layer.
type Writer struct {
	coder
}

// NewWriter prepares a precinct's tag trees. first holds the layer of each
// block's first contribution (negative when it never contributes) and zero
// its zero bit-plane count, both in precinct block order.
func NewWriter(p *geom.Precinct, first, zero []int) *Writer {
	w := &Writer{coder: newCoder(p)}
	k := 0
	for _, b := range w.bands {
		for y := 0; y < b.h; y++ {
			for x := 0; x < b.w; x++ {
				if first[k] >= 0 {
					b.incl.Set(x, y, first[k])
					b.zero.Set(x, y, zero[k])
				}
				k++
			}
		}
	}
	return w
}

// Write encodes the packet for layer from the per-block contributions.
func (w *Writer) Write(layer int, contribs []Contribution) ([]byte, error) {
	if len(contribs) != len(w.blocks) {
		return nil, fmt.Errorf("%w: %d contributions for %d blocks", errs.ErrConfiguration, len(contribs), len(w.blocks))
	}
	bw := bitio.NewBitWriter()
	empty := true
	for _, c := range contribs {
		if c.Passes > 0 {
			empty = false
			break
		}
	}
	if empty {
		bw.WriteBit(0)
		return bw.Bytes(), nil
	}
	bw.WriteBit(1)

	k := 0
	for _, b := range w.bands {
		for y := 0; y < b.h; y++ {
			for x := 0; x < b.w; x++ {
				c, st := contribs[k], &w.blocks[k]
				k++
				if !st.included {
					b.incl.Encode(bw, x, y, layer+1)
				} else if c.Passes > 0 {
					bw.WriteBit(1)
				} else {
					bw.WriteBit(0)
				}
				if c.Passes == 0 {
					continue
				}
				if !st.included {
					b.zero.Encode(bw, x, y, unknown)
					st.included = true
				}
				segs := SegmentPasses(st.passes, c.Passes)
				if len(c.Lengths) != len(segs) {
					return nil, fmt.Errorf("%w: %d segment lengths for %d passes after %d", errs.ErrConfiguration, len(c.Lengths), c.Passes, st.passes)
				}
				writePassCount(bw, c.Passes)
				grow := 0
				for i, l := range c.Lengths {
					grow = max(grow, bits.Len(uint(l))-lengthBits(st.lblock, segs[i]))
				}
				bw.WriteOnes(grow)
				bw.WriteBit(0)
				st.lblock += grow
				for i, l := range c.Lengths {
					bw.WriteBits(uint32(l), lengthBits(st.lblock, segs[i]))
				}
				st.passes += c.Passes
			}
		}
	}
	out := bw.Bytes()
	for _, c := range contribs {
		out = append(out, c.Data...)
	}
	return out, nil
}

// Reader parses the packets of one precinct, layer by layer.
type Reader struct {
	coder
	zero []int
}

// NewReader prepares an empty precinct state.
func NewReader(p *geom.Precinct) *Reader {
	r := &Reader{coder: newCoder(p)}
	r.zero = make([]int, len(r.blocks))
	return r
}

// Read parses the packet for layer at the start of data and returns the
// contributions and the packet's byte length. On error the precinct state is
// left as it was before the call.
func (r *Reader) Read(data []byte, layer int) ([]Contribution, int, error) {
	saved := r.snapshot()
	contribs, n, err := r.read(data, layer)
	if err != nil {
		r.coder = saved
		return nil, 0, err
	}
	return contribs, n, nil
}

func (r *Reader) snapshot() coder {
	c := coder{blocks: append([]blockState(nil), r.blocks...)}
	for _, b := range r.bands {
		c.bands = append(c.bands, bandTrees{w: b.w, h: b.h, incl: b.incl.clone(), zero: b.zero.clone()})
	}
	return c
}

func (r *Reader) read(data []byte, layer int) ([]Contribution, int, error) {
	contribs := make([]Contribution, len(r.blocks))
	br := bitio.NewBitReader(data)
	present, err := br.ReadBit()
	if err != nil {
		return nil, 0, err
	}
	if present == 0 {
		br.Align()
		return contribs, br.Pos(), nil
	}

	k := 0
	for _, b := range r.bands {
		for y := 0; y < b.h; y++ {
			for x := 0; x < b.w; x++ {
				c, st := &contribs[k], &r.blocks[k]
				var in bool
				if !st.included {
					if in, err = b.incl.Decode(br, x, y, layer+1); err != nil {
						return nil, 0, err
					}
				} else {
					bit, err := br.ReadBit()
					if err != nil {
						return nil, 0, err
					}
					in = bit == 1
				}
				if in {
					if !st.included {
						zp, err := decodeZero(b.zero, br, x, y)
						if err != nil {
							return nil, 0, err
						}
						r.zero[k] = zp
						st.included = true
					}
					if err = readLengths(br, c, st); err != nil {
						return nil, 0, err
					}
				}
				c.ZeroPlanes = r.zero[k]
				k++
			}
		}
	}
	br.Align()
	pos := br.Pos()
	if pos > len(data) {
		return nil, 0, fmt.Errorf("%w: packet header overruns data", errs.ErrBitstreamCorruption)
	}
	for i := range contribs {
		c := &contribs[i]
		total := 0
		for _, l := range c.Lengths {
			total += l
		}
		if total > len(data)-pos {
			return nil, 0, fmt.Errorf("%w: packet body needs %d bytes, %d left", errs.ErrBitstreamCorruption, total, len(data)-pos)
		}
		if total > 0 {
			c.Data = data[pos : pos+total]
		}
		pos += total
	}
	return contribs, pos, nil
}

func decodeZero(t *TagTree, br *bitio.BitReader, x, y int) (int, error) {
	for threshold := 1; ; threshold++ {
		below, err := t.Decode(br, x, y, threshold)
		if err != nil {
			return 0, err
		}
		if below {
			return t.Value(x, y), nil
		}
		if threshold > 64 {
			return 0, fmt.Errorf("%w: zero bit-plane count out of range", errs.ErrBitstreamCorruption)
		}
	}
}

func readLengths(br *bitio.BitReader, c *Contribution, st *blockState) error {
	n, err := readPassCount(br)
	if err != nil {
		return err
	}
	c.Passes = n
	segs := SegmentPasses(st.passes, n)
	st.passes += n
	for {
		bit, err := br.ReadBit()
		if err != nil {
			return err
		}
		if bit == 0 {
			break
		}
		st.lblock++
		if st.lblock > maxLblock {
			return fmt.Errorf("%w: segment length indicator of %d bits", errs.ErrBitstreamCorruption, st.lblock)
		}
	}
	c.Lengths = make([]int, len(segs))
	for i := range c.Lengths {
		nb := lengthBits(st.lblock, segs[i])
		if nb > maxLblock {
			return fmt.Errorf("%w: segment length field of %d bits", errs.ErrBitstreamCorruption, nb)
		}
		v, err := br.ReadBits(nb)
		if err != nil {
			return err
		}
		c.Lengths[i] = int(v)
	}
	return nil
}

// writePassCount writes the number of new passes:
// 1 "0", 2 "10", 3-5 "11xx", 6-36 "1111xxxxx", 37-164 "111111111xxxxxxx".
func writePassCount(w *bitio.BitWriter, n int) {
	switch {
	case n == 1:
		w.WriteBit(0)
	case n == 2:
		w.WriteBits(0x2, 2)
	case n <= 5:
		w.WriteBits(0x3, 2)
		w.WriteBits(uint32(n-3), 2)
	case n <= 36:
		w.WriteOnes(4)
		w.WriteBits(uint32(n-6), 5)
	default:
		w.WriteOnes(9)
		w.WriteBits(uint32(n-37), 7)
	}
}

func readPassCount(r *bitio.BitReader) (int, error) {
	bit, err := r.ReadBit()
	if err != nil || bit == 0 {
		return 1, err
	}
	if bit, err = r.ReadBit(); err != nil || bit == 0 {
		return 2, err
	}
	v, err := r.ReadBits(2)
	if err != nil || v < 3 {
		return 3 + int(v), err
	}
	if v, err = r.ReadBits(5); err != nil || v < 31 {
		return 6 + int(v), err
	}
	v, err = r.ReadBits(7)
	return 37 + int(v), err
}
