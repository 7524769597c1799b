package packet

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/errs"
	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/geom"
)

// Progression is the packet nesting order signalled in COD.
type Progression byte

const (
	LRCP Progression = 0 // Layer-Resolution-Component-Position
	RLCP Progression = 1 // Resolution-Layer-Component-Position
	RPCL Progression = 2 // Resolution-Position-Component-Layer
	PCRL Progression = 3 // Position-Component-Resolution-Layer
	CPRL Progression = 4 // Component-Position-Resolution-Layer
)

// String returns the progression order name
func (p Progression) String() string {
	switch p {
	case LRCP:
		return "LRCP"
	case RLCP:
		return "RLCP"
	case RPCL:
		return "RPCL"
	case PCRL:
		return "PCRL"
	case CPRL:
		return "CPRL"
	default:
		return "Unknown"
	}
}

// Valid reports whether p is one of the five orders
func (p Progression) Valid() bool { return p <= CPRL }

// ParseProgression accepts an order name in any case.
func ParseProgression(s string) (Progression, error) {
	for p := LRCP; p <= CPRL; p++ {
		if strings.EqualFold(s, p.String()) {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown progression order %q", errs.ErrConfiguration, s)
}

// Step addresses one packet of a tile.
type Step struct {
	Layer      int
	Resolution int
	Component  int
	Precinct   int
}

// position is a precinct visited by a position-driven order.
type position struct {
	c, r, p int
	x, y    int
}

// Sequence lists every packet of a tile in progression order. Position
// driven orders visit precincts by their reference grid origin, top to
// bottom and left to right.
func Sequence(order Progression, layers int, comps []*geom.TileComponent) ([]Step, error) {
	maxRes := 0
	for _, tc := range comps {
		maxRes = max(maxRes, len(tc.Resolutions))
	}
	precincts := func(c, r int) int {
		if r >= len(comps[c].Resolutions) {
			return 0
		}
		return len(comps[c].Resolutions[r].Precincts)
	}
	var steps []Step
	emit := func(l, r, c, p int) {
		steps = append(steps, Step{Layer: l, Resolution: r, Component: c, Precinct: p})
	}
	positions := func(cs []int, rs []int) []position {
		var out []position
		for _, c := range cs {
			for _, r := range rs {
				for p := 0; p < precincts(c, r); p++ {
					pr := comps[c].Resolutions[r].Precincts[p]
					out = append(out, position{c: c, r: r, p: p, x: pr.X, y: pr.Y})
				}
			}
		}
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].y != out[j].y {
				return out[i].y < out[j].y
			}
			return out[i].x < out[j].x
		})
		return out
	}
	allComps := make([]int, len(comps))
	for i := range allComps {
		allComps[i] = i
	}
	allRes := make([]int, maxRes)
	for i := range allRes {
		allRes[i] = i
	}

	switch order {
	case LRCP:
		for l := 0; l < layers; l++ {
			for r := 0; r < maxRes; r++ {
				for c := range comps {
					for p := 0; p < precincts(c, r); p++ {
						emit(l, r, c, p)
					}
				}
			}
		}
	case RLCP:
		for r := 0; r < maxRes; r++ {
			for l := 0; l < layers; l++ {
				for c := range comps {
					for p := 0; p < precincts(c, r); p++ {
						emit(l, r, c, p)
					}
				}
			}
		}
	case RPCL:
		for r := 0; r < maxRes; r++ {
			for _, pos := range positions(allComps, []int{r}) {
				for l := 0; l < layers; l++ {
					emit(l, pos.r, pos.c, pos.p)
				}
			}
		}
	case PCRL:
		for _, pos := range positions(allComps, allRes) {
			for l := 0; l < layers; l++ {
				emit(l, pos.r, pos.c, pos.p)
			}
		}
	case CPRL:
		for c := range comps {
			for _, pos := range positions([]int{c}, allRes) {
				for l := 0; l < layers; l++ {
					emit(l, pos.r, pos.c, pos.p)
				}
			}
		}
	default:
		return nil, fmt.Errorf("%w: progression order %d", errs.ErrConfiguration, order)
	}
	return steps, nil
}
