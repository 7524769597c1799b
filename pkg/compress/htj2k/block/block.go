// Package block implements the high-throughput code-block coder.
//
// A block is coded as one HT set: a cleanup pass at bit-plane p0 carrying
// every magnitude bit at and above p0, then a significance propagation pass
// and a magnitude refinement pass for plane p0-1. The cleanup segment holds
// three byte streams: MagSgn grows forward from the start, MEL grows forward
// after it and VLC grows backward from the end. The last two bytes carry the
// 12-bit combined MEL and VLC length, Scup. The refinement passes share a
// second segment: SigProp bits grow forward from its start and MagRef bits
// grow backward from its end, so the data for fewer passes is always a byte
// prefix of the data for more.
//
// Encode can code several sets of one block at different cleanup planes;
// rate control picks one of them and truncates it.
package block

import (
	"fmt"

	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/errs"
)

// DefaultCandidates is the number of cleanup planes tried per block when a
// rate target is set.
const DefaultCandidates = 4

// MaxPasses is the pass count of one HT set.
const MaxPasses = 3

// maxScup bounds the combined MEL and VLC length of a cleanup segment.
const maxScup = 4079

// PassKind identifies a coding pass.
type PassKind uint8

const (
	Cleanup PassKind = iota
	SigProp
	MagRef
)

func (k PassKind) String() string {
	switch k {
	case Cleanup:
		return "cleanup"
	case SigProp:
		return "sigprop"
	case MagRef:
		return "magref"
	default:
		return "unknown"
	}
}

// Pass describes one coded pass.
type Pass struct {
	Kind  PassKind
	Plane int
	// Length is the byte count this pass adds
	Length int
	// Distortion is the squared-error reduction in quantization index units
	Distortion float64
}

// PassAt returns the kind and bit-plane of pass i of a set whose cleanup is
// at p0.
func PassAt(p0, i int) (PassKind, int) {
	switch i {
	case 0:
		return Cleanup, p0
	case 1:
		return SigProp, p0 - 1
	default:
		return MagRef, p0 - 1
	}
}

// Params controls block encoding.
type Params struct {
	// MagnitudeBits is Mb, the bit-planes available to the band
	MagnitudeBits int
	// Candidates is the number of cleanup planes coded, from plane 0 up;
	// 0 or 1 codes a single lossless cleanup pass
	Candidates int
}

// Set is one HT set of a block.
type Set struct {
	// Plane is the cleanup bit-plane p0
	Plane int
	// ZeroPlanes is the missing MSB count signalled for the set, Mb-1-p0
	ZeroPlanes int
	Data       []byte
	Passes     []Pass
}

// Bytes returns the cumulative length of the first n passes.
func (s *Set) Bytes(n int) int {
	total := 0
	for _, p := range s.Passes[:n] {
		total += p.Length
	}
	return total
}

// Lengths returns the per-pass lengths.
func (s *Set) Lengths() []int {
	out := make([]int, len(s.Passes))
	for i, p := range s.Passes {
		out[i] = p.Length
	}
	return out
}

// Encoded is the coded form of one block: no sets for an all-zero block,
// otherwise one set per candidate cleanup plane, finest first.
type Encoded struct {
	Width, Height int
	Sets          []Set
}

func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{errs.ErrBitstreamCorruption}, args...)...)
}
