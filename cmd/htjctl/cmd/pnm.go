package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strconv"

	"github.com/jpfielding/htj2k.go/pkg/compress/htj2k"
)

// pnm holds a binary PGM (P5) or PPM (P6) raster.
type pnm struct {
	width, height int
	maxval        int
	samples       [][]int // per channel, row-major
}

func readPNM(r io.Reader) (*pnm, error) {
	br := bufio.NewReader(r)
	magic, err := pnmToken(br)
	if err != nil {
		return nil, err
	}
	channels := 0
	switch magic {
	case "P5":
		channels = 1
	case "P6":
		channels = 3
	default:
		return nil, fmt.Errorf("unsupported netpbm type %q", magic)
	}
	var vals [3]int
	for i := range vals {
		tok, err := pnmToken(br)
		if err != nil {
			return nil, err
		}
		if vals[i], err = strconv.Atoi(tok); err != nil || vals[i] <= 0 {
			return nil, fmt.Errorf("bad netpbm header field %q", tok)
		}
	}
	p := &pnm{width: vals[0], height: vals[1], maxval: vals[2]}
	if p.maxval > 0xFFFF {
		return nil, fmt.Errorf("netpbm maxval %d", p.maxval)
	}
	bytesPer := 1
	if p.maxval > 0xFF {
		bytesPer = 2
	}
	n := p.width * p.height
	raw := make([]byte, n*channels*bytesPer)
	if _, err := io.ReadFull(br, raw); err != nil {
		return nil, fmt.Errorf("netpbm raster: %w", err)
	}
	p.samples = make([][]int, channels)
	for c := range p.samples {
		p.samples[c] = make([]int, n)
	}
	for i := 0; i < n*channels; i++ {
		v := int(raw[i*bytesPer])
		if bytesPer == 2 {
			v = v<<8 | int(raw[i*bytesPer+1])
		}
		p.samples[i%channels][i/channels] = v
	}
	return p, nil
}

// pnmToken returns the next header token, skipping comments. Exactly one
// whitespace byte after the last token is consumed.
func pnmToken(br *bufio.Reader) (string, error) {
	var tok []byte
	for {
		b, err := br.ReadByte()
		if err != nil {
			if len(tok) > 0 && err == io.EOF {
				return string(tok), nil
			}
			return "", fmt.Errorf("netpbm header: %w", err)
		}
		switch {
		case b == '#' && len(tok) == 0:
			if _, err := br.ReadString('\n'); err != nil {
				return "", fmt.Errorf("netpbm header: %w", err)
			}
		case b == ' ' || b == '\t' || b == '\n' || b == '\r':
			if len(tok) > 0 {
				return string(tok), nil
			}
		default:
			tok = append(tok, b)
		}
	}
}

// writePNM writes one or three full-resolution components; signed samples
// are offset into the unsigned range.
func writePNM(w io.Writer, img *htj2k.Image) error {
	magic := "P5"
	switch len(img.Components) {
	case 1:
	case 3:
		magic = "P6"
	default:
		return fmt.Errorf("%w: %d components do not fit a netpbm file", htj2k.ErrConfiguration, len(img.Components))
	}
	for c := range img.Components {
		if img.Components[c].Width != img.Width || img.Components[c].Height != img.Height {
			return fmt.Errorf("%w: component %d is subsampled", htj2k.ErrConfiguration, c)
		}
	}
	precision := img.Components[0].Precision
	maxval := 1<<uint(precision) - 1
	bytesPer := 1
	if maxval > 0xFF {
		bytesPer = 2
	}
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%s\n%d %d\n%d\n", magic, img.Width, img.Height, maxval)
	for i := 0; i < img.Width*img.Height; i++ {
		for c := range img.Components {
			comp := &img.Components[c]
			v := int(comp.Data[i])
			if comp.Signed {
				v += 1 << uint(precision-1)
			}
			if bytesPer == 2 {
				bw.WriteByte(byte(v >> 8))
			}
			bw.WriteByte(byte(v))
		}
	}
	return bw.Flush()
}
