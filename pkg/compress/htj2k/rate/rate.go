// Package rate selects code-block truncation points.
//
// A block offers one or more chains of passes, e.g. one per candidate
// cleanup plane, of which a codestream carries exactly one. Every (chain,
// pass count) point of a block is reduced to the convex hull of the block's
// rate-distortion points. Hull increments from every block are ordered by
// distortion-rate slope and admitted greedily. Admission stops at the first
// increment that does not fit the budget, so a larger budget always reaches
// the same or a later hull point of every block.
package rate

import (
	"math"
	"sort"
)

// Chain is one sequence of passes a block can be truncated in.
type Chain struct {
	// Lengths holds the byte length of each pass
	Lengths []int
	// Distortion holds the weighted distortion reduction of each pass
	Distortion []float64
}

// Bytes returns the length of the first n passes.
func (c Chain) Bytes(n int) int {
	total := 0
	for _, l := range c.Lengths[:n] {
		total += l
	}
	return total
}

func (c Chain) gain(n int) float64 {
	d := 0.0
	for i := 0; i < n && i < len(c.Distortion); i++ {
		d += c.Distortion[i]
	}
	return d
}

// Block is the pass table of one coded block.
type Block struct {
	// Scope groups blocks that share a budget, e.g. the tile index
	Scope int
	// Chains holds the alternative pass sequences of the block
	Chains []Chain
}

// Single returns a block with one chain.
func Single(scope int, lengths []int, distortion []float64) Block {
	return Block{Scope: scope, Chains: []Chain{{Lengths: lengths, Distortion: distortion}}}
}

// Allocation holds cumulative pass counts, Passes[layer][block], within the
// chain Chains[block] every layer of that block draws from.
type Allocation struct {
	Passes [][]int
	Chains []int
}

func newAllocation(layers, blocks int) *Allocation {
	a := &Allocation{Passes: make([][]int, layers), Chains: make([]int, blocks)}
	for l := range a.Passes {
		a.Passes[l] = make([]int, blocks)
	}
	return a
}

// NumLayers returns the layer count
func (a *Allocation) NumLayers() int {
	return len(a.Passes)
}

// Total returns the pass count of block b after the final layer.
func (a *Allocation) Total(b int) int {
	if len(a.Passes) == 0 {
		return 0
	}
	return a.Passes[len(a.Passes)-1][b]
}

// New returns the passes block b gains in layer l.
func (a *Allocation) New(l, b int) int {
	if l == 0 {
		return a.Passes[0][b]
	}
	return a.Passes[l][b] - a.Passes[l-1][b]
}

// Bytes returns the block data bytes selected by the final layer.
func (a *Allocation) Bytes(blocks []Block) int {
	total := 0
	for b, blk := range blocks {
		if n := a.Total(b); n > 0 {
			total += blk.Chains[a.Chains[b]].Bytes(n)
		}
	}
	return total
}

// point is a block truncated to n passes of a chain.
type point struct {
	chain, n int
	rate     int
	gain     float64
}

// increment moves block from hull point `from` to `to`.
type increment struct {
	block    int
	from, to int
	target   point
	bytes    int
	slope    float64
	infinite bool
}

// All selects every pass of every block in the final layer, drawing from
// the chain with the largest total distortion reduction. Earlier layers
// split the data by slope into equal byte shares.
func All(blocks []Block, layers int) *Allocation {
	layers = max(layers, 1)
	picked := make([]int, len(blocks))
	sub := make([]Block, len(blocks))
	total := 0
	for i, b := range blocks {
		best := -1.0
		for c, ch := range b.Chains {
			if g := ch.gain(len(ch.Lengths)); g > best {
				best, picked[i] = g, c
			}
		}
		if len(b.Chains) == 0 {
			continue
		}
		ch := b.Chains[picked[i]]
		sub[i] = Block{Scope: b.Scope, Chains: []Chain{ch}}
		total += ch.Bytes(len(ch.Lengths))
	}
	a := Allocate(sub, total, layers)
	last := a.Passes[layers-1]
	for i, b := range sub {
		if len(b.Chains) > 0 {
			last[i] = len(b.Chains[0].Lengths)
		}
	}
	a.Chains = picked
	return a
}

// Allocate selects truncation points for blocks under a budget of block data
// bytes. Layer l receives budget*(l+1)/layers.
func Allocate(blocks []Block, budget, layers int) *Allocation {
	layers = max(layers, 1)
	a := newAllocation(layers, len(blocks))

	var incs []increment
	for i, b := range blocks {
		incs = append(incs, hull(i, b)...)
	}
	sort.SliceStable(incs, func(i, j int) bool {
		x, y := incs[i], incs[j]
		if x.infinite != y.infinite {
			return x.infinite
		}
		if x.slope != y.slope {
			return x.slope > y.slope
		}
		if x.block != y.block {
			return x.block < y.block
		}
		return x.to < y.to
	})

	// reached[l][b] is the hull point block b stands on after layer l
	reached := make([][]point, layers)
	cur := make([]point, len(blocks))
	next, used := 0, 0
	for l := 0; l < layers; l++ {
		limit := int(int64(budget) * int64(l+1) / int64(layers))
		for next < len(incs) && used+incs[next].bytes <= limit {
			inc := incs[next]
			if inc.target.rate >= cur[inc.block].rate {
				cur[inc.block] = inc.target
			}
			used += inc.bytes
			next++
		}
		reached[l] = append([]point(nil), cur...)
	}

	// every layer of a block follows the chain of its final point
	for b, blk := range blocks {
		final := cur[b]
		if final.n == 0 {
			continue
		}
		a.Chains[b] = final.chain
		ch := blk.Chains[final.chain]
		for l := range a.Passes {
			n := 0
			for n < final.n && ch.Bytes(n+1) <= reached[l][b].rate {
				n++
			}
			a.Passes[l][b] = n
		}
	}
	return a
}

// AllocateScoped runs Allocate separately for each scope with its own budget.
// Blocks whose scope has no budget keep no passes.
func AllocateScoped(blocks []Block, budgets map[int]int, layers int) *Allocation {
	layers = max(layers, 1)
	a := newAllocation(layers, len(blocks))
	groups := map[int][]int{}
	var scopes []int
	for i, b := range blocks {
		if _, ok := groups[b.Scope]; !ok {
			scopes = append(scopes, b.Scope)
		}
		groups[b.Scope] = append(groups[b.Scope], i)
	}
	for _, s := range scopes {
		idx := groups[s]
		sub := make([]Block, len(idx))
		for j, i := range idx {
			sub[j] = blocks[i]
		}
		part := Allocate(sub, budgets[s], layers)
		for j, i := range idx {
			a.Chains[i] = part.Chains[j]
			for l := range a.Passes {
				a.Passes[l][i] = part.Passes[l][j]
			}
		}
	}
	return a
}

// points returns the block's truncation points that reduce distortion
// beyond every cheaper point, ordered by rate, led by the empty point.
func points(b Block) []point {
	var all []point
	for c, ch := range b.Chains {
		rate, gain := 0, 0.0
		for i, l := range ch.Lengths {
			rate += l
			if i < len(ch.Distortion) {
				gain += ch.Distortion[i]
			}
			all = append(all, point{chain: c, n: i + 1, rate: rate, gain: gain})
		}
	}
	sort.SliceStable(all, func(i, j int) bool {
		x, y := all[i], all[j]
		if x.rate != y.rate {
			return x.rate < y.rate
		}
		if x.gain != y.gain {
			return x.gain > y.gain
		}
		return x.n > y.n
	})
	out := []point{{}}
	for _, p := range all {
		if p.gain > out[len(out)-1].gain {
			out = append(out, p)
		}
	}
	return out
}

// hull returns the convex hull increments of a block's rate-distortion
// points. Increment endpoints index the points returned by points.
func hull(idx int, b Block) []increment {
	pts := points(b)
	keep := []int{0}
	for i := 1; i < len(pts); i++ {
		for len(keep) >= 2 {
			a, m := pts[keep[len(keep)-2]], pts[keep[len(keep)-1]]
			// drop m when the chord a->i is at least as steep as a->m
			left := (m.gain - a.gain) * float64(pts[i].rate-m.rate)
			right := (pts[i].gain - m.gain) * float64(m.rate-a.rate)
			if left > right {
				break
			}
			keep = keep[:len(keep)-1]
		}
		keep = append(keep, i)
	}

	out := make([]increment, 0, len(keep)-1)
	for k := 1; k < len(keep); k++ {
		from, to := keep[k-1], keep[k]
		inc := increment{
			block:  idx,
			from:   from,
			to:     to,
			target: pts[to],
			bytes:  pts[to].rate - pts[from].rate,
		}
		dd := pts[to].gain - pts[from].gain
		switch {
		case inc.bytes == 0 && dd > 0:
			inc.infinite = true
		case inc.bytes == 0:
			inc.slope = math.Inf(-1)
		default:
			inc.slope = dd / float64(inc.bytes)
		}
		out = append(out, inc)
	}
	return out
}
