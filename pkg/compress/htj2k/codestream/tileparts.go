package codestream

import (
	"fmt"

	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k/errs"
)

// Packet is one coded packet of a tile in progression order.
type Packet struct {
	Resolution int
	Component  int
	Data       []byte
}

// Division selects where a tile is cut into tile-parts.
type Division struct {
	Resolution bool // new part when the resolution changes
	Component  bool // new part when the component changes
}

// Split concatenates the packets of a tile into tile-parts, opening a new
// part whenever a selected packet attribute changes.
func Split(packets []Packet, d Division) ([][]byte, error) {
	var parts [][]byte
	var cur []byte
	for i, p := range packets {
		if i > 0 {
			prev := packets[i-1]
			if (d.Resolution && p.Resolution != prev.Resolution) || (d.Component && p.Component != prev.Component) {
				parts = append(parts, cur)
				cur = nil
			}
		}
		cur = append(cur, p.Data...)
	}
	parts = append(parts, cur)
	if len(parts) > 255 {
		return nil, fmt.Errorf("%w: %d tile-parts, at most 255", errs.ErrConfiguration, len(parts))
	}
	return parts, nil
}
