package hashtree

import "errors"

var (
	ErrCorruptOutboard = errors.New("hashtree: corrupt outboard")
	ErrOverflow        = errors.New("hashtree: size overflows outboard addressing")
	ErrChunkIndex      = errors.New("hashtree: chunk index out of range")
)
