package mmap

import "errors"

// AccessPattern is the madvise hint applied to a mapping.
type AccessPattern int

const (
	AccessDefault AccessPattern = iota
	AccessSequential
	AccessRandom
	AccessWillNeed
	AccessDontNeed
)

var (
	ErrClosed        = errors.New("mmap: mapping is closed")
	ErrInvalidSize   = errors.New("mmap: size must be positive")
	ErrInvalidOffset = errors.New("mmap: offset must be non-negative")
)
