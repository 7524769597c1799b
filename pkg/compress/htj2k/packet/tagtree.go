package packet

import "github.com/jpfielding/htj2k.go/pkg/compress/htj2k/bitio"

// unknown is the value of a tag tree node nothing has been learnt about.
const unknown = 1 << 30

// TagTree codes a grid of non-negative values as a quad-tree of minima.
// Levels are stored as flat arrays, leaves first; the parent of node (x, y)
// is (x/2, y/2) on the next level.
type TagTree struct {
	widths, heights []int
	value           [][]int
	low             [][]int
	known           [][]bool
}

// NewTagTree builds the tree for a w x h leaf grid. Every value starts
// unknown, which suits a decoder; an encoder calls Set for every leaf.
func NewTagTree(w, h int) *TagTree {
	w, h = max(w, 1), max(h, 1)
	t := &TagTree{}
	for {
		t.widths = append(t.widths, w)
		t.heights = append(t.heights, h)
		n := w * h
		v := make([]int, n)
		for i := range v {
			v[i] = unknown
		}
		t.value = append(t.value, v)
		t.low = append(t.low, make([]int, n))
		t.known = append(t.known, make([]bool, n))
		if w == 1 && h == 1 {
			break
		}
		w, h = (w+1)/2, (h+1)/2
	}
	return t
}

// Levels returns the depth of the tree including leaves and root.
func (t *TagTree) Levels() int { return len(t.widths) }

// Set assigns leaf (x, y) and lowers its ancestors to keep them minima.
func (t *TagTree) Set(x, y, v int) {
	for l := range t.widths {
		i := y*t.widths[l] + x
		if l > 0 && t.value[l][i] <= v {
			return
		}
		t.value[l][i] = v
		x, y = x>>1, y>>1
	}
}

// Value returns the leaf value learnt so far.
func (t *TagTree) Value(x, y int) int {
	return t.value[0][y*t.widths[0]+x]
}

func (t *TagTree) path(x, y int) []int {
	p := make([]int, len(t.widths))
	for l := range p {
		p[l] = y*t.widths[l] + x
		x, y = x>>1, y>>1
	}
	return p
}

// Encode writes the bits that tell a decoder whether leaf (x, y) is below
// threshold, and its exact value if so.
func (t *TagTree) Encode(w *bitio.BitWriter, x, y, threshold int) {
	p := t.path(x, y)
	low := 0
	for l := len(p) - 1; l >= 0; l-- {
		i := p[l]
		if low > t.low[l][i] {
			t.low[l][i] = low
		} else {
			low = t.low[l][i]
		}
		for low < threshold {
			if low >= t.value[l][i] {
				if !t.known[l][i] {
					w.WriteBit(1)
					t.known[l][i] = true
				}
				break
			}
			w.WriteBit(0)
			low++
		}
		t.low[l][i] = low
	}
}

// Decode reads the bits written by Encode and reports whether leaf (x, y) is
// below threshold.
func (t *TagTree) Decode(r *bitio.BitReader, x, y, threshold int) (bool, error) {
	p := t.path(x, y)
	low := 0
	for l := len(p) - 1; l >= 0; l-- {
		i := p[l]
		if low > t.low[l][i] {
			t.low[l][i] = low
		} else {
			low = t.low[l][i]
		}
		for low < threshold && low < t.value[l][i] {
			bit, err := r.ReadBit()
			if err != nil {
				return false, err
			}
			if bit == 1 {
				t.value[l][i] = low
			} else {
				low++
			}
		}
		t.low[l][i] = low
	}
	return t.value[0][p[0]] < threshold, nil
}

// clone copies the coding state so a failed parse can be rolled back.
func (t *TagTree) clone() *TagTree {
	c := &TagTree{widths: t.widths, heights: t.heights}
	for l := range t.value {
		c.value = append(c.value, append([]int(nil), t.value[l]...))
		c.low = append(c.low, append([]int(nil), t.low[l]...))
		c.known = append(c.known, append([]bool(nil), t.known[l]...))
	}
	return c
}
