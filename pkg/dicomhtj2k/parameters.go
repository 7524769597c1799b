package dicomhtj2k

import (
	"github.com/cocosip/go-dicom/pkg/imaging/codec"
)

var _ codec.Parameters = (*Parameters)(nil)

// Parameters tunes HTJ2K frame encoding.
type Parameters struct {
	// NumLevels is the number of DWT decompositions, clamped to what the
	// frame size supports
	NumLevels   int
	BlockWidth  int
	BlockHeight int
	// Quality (1-100) selects the quantization step of the lossy syntax;
	// 100 uses the finest default step
	Quality int
	// Rate is a target in bits per pixel for the lossy syntax, 0 = none
	Rate      float64
	NumLayers int
	AllowMCT  bool

	params map[string]any
}

// NewParameters returns the defaults
func NewParameters() *Parameters {
	return &Parameters{
		NumLevels:   5,
		BlockWidth:  64,
		BlockHeight: 64,
		Quality:     90,
		NumLayers:   1,
		AllowMCT:    true,
		params:      map[string]any{},
	}
}

// GetParameter implements codec.Parameters
func (p *Parameters) GetParameter(name string) any {
	switch name {
	case "numLevels":
		return p.NumLevels
	case "blockWidth":
		return p.BlockWidth
	case "blockHeight":
		return p.BlockHeight
	case "quality":
		return p.Quality
	case "rate":
		return p.Rate
	case "numLayers":
		return p.NumLayers
	case "allowMCT":
		return p.AllowMCT
	default:
		return p.params[name]
	}
}

// SetParameter implements codec.Parameters. Values of the wrong type for a
// known name are ignored.
func (p *Parameters) SetParameter(name string, value any) {
	switch name {
	case "numLevels":
		if v, ok := value.(int); ok {
			p.NumLevels = v
		}
	case "blockWidth":
		if v, ok := value.(int); ok {
			p.BlockWidth = v
		}
	case "blockHeight":
		if v, ok := value.(int); ok {
			p.BlockHeight = v
		}
	case "quality":
		if v, ok := value.(int); ok {
			p.Quality = v
		}
	case "rate":
		switch v := value.(type) {
		case float64:
			p.Rate = v
		case int:
			p.Rate = float64(v)
		}
	case "numLayers":
		if v, ok := value.(int); ok {
			p.NumLayers = v
		}
	case "allowMCT":
		if v, ok := value.(bool); ok {
			p.AllowMCT = v
		}
	default:
		if p.params == nil {
			p.params = map[string]any{}
		}
		p.params[name] = value
	}
}

// Validate resets out-of-range values to their defaults
func (p *Parameters) Validate() error {
	d := NewParameters()
	if p.NumLevels < 0 || p.NumLevels > 32 {
		p.NumLevels = d.NumLevels
	}
	if p.BlockWidth < 4 || p.BlockWidth > 64 {
		p.BlockWidth = d.BlockWidth
	}
	if p.BlockHeight < 4 || p.BlockHeight > 64 {
		p.BlockHeight = d.BlockHeight
	}
	if p.Quality < 1 || p.Quality > 100 {
		p.Quality = d.Quality
	}
	if p.Rate < 0 {
		p.Rate = 0
	}
	if p.NumLayers < 1 {
		p.NumLayers = d.NumLayers
	}
	return nil
}

// from copies the known names of generic parameters over the defaults.
func from(params codec.Parameters) *Parameters {
	if params == nil {
		return NewParameters()
	}
	if p, ok := params.(*Parameters); ok {
		return p
	}
	p := NewParameters()
	for _, name := range []string{"numLevels", "blockWidth", "blockHeight", "quality", "rate", "numLayers", "allowMCT"} {
		if v := params.GetParameter(name); v != nil {
			p.SetParameter(name, v)
		}
	}
	return p
}
