// Package errs holds the error taxonomy shared by the htj2k codec packages.
package errs

import "errors"

var (
	// ErrConfiguration reports an invalid or incompatible parameter combination.
	// It is always raised before any coding work starts.
	ErrConfiguration = errors.New("htj2k: invalid configuration")
	// ErrCodestreamMismatch reports header fields the decoder cannot reconcile.
	ErrCodestreamMismatch = errors.New("htj2k: codestream mismatch")
	// ErrBitstreamCorruption reports malformed packet or block data.
	ErrBitstreamCorruption = errors.New("htj2k: bitstream corruption")
	// ErrPrecisionOverflow reports samples outside the declared bit depth.
	ErrPrecisionOverflow = errors.New("htj2k: sample precision overflow")
)
