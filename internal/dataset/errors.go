package dataset

import "errors"

// Sentinel errors for dataset loading.
var (
	ErrBadMagic     = errors.New("bad magic number")
	ErrTruncated    = errors.New("truncated dataset file")
	ErrBadHeader    = errors.New("invalid dataset header")
	ErrSizeMismatch = errors.New("image and label counts differ")
	ErrEmpty        = errors.New("dataset is empty")
)
