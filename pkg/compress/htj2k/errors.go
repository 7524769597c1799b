package htj2k

import "github.com/jpfielding/htj2k.go/pkg/compress/htj2k/errs"

// Error kinds, test with errors.Is
var (
	ErrConfiguration       = errs.ErrConfiguration
	ErrCodestreamMismatch  = errs.ErrCodestreamMismatch
	ErrBitstreamCorruption = errs.ErrBitstreamCorruption
	ErrPrecisionOverflow   = errs.ErrPrecisionOverflow
)
