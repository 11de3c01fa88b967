package match

import "errors"

var (
	// ErrDimensionMismatch is returned when an embedder yields vectors of the wrong width.
	ErrDimensionMismatch = errors.New("match: embedding dimension mismatch")

	// ErrIndexNotReady is returned by Stats before the first successful build.
	ErrIndexNotReady = errors.New("match: index not built")
)
