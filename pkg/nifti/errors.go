package nifti

import (
	"errors"
	"fmt"

	"niftislice/pkg/visualization"
)

// Common errors
var (
	ErrInvalidMagic        = errors.New("invalid NIfTI magic")
	ErrTruncatedHeader     = errors.New("truncated NIfTI header")
	ErrUnsupportedFormat   = errors.New("unsupported format")
	ErrUnsupportedDataType = errors.New("unsupported voxel data type")
	ErrIOFailure           = errors.New("voxel data read failed")

	// Export constraint errors, shared with the visualization package.
	ErrUnsupportedDimensionality = visualization.ErrUnsupportedDimensionality
	ErrUnsupportedAxis           = visualization.ErrUnsupportedAxis
	ErrSliceOutOfRange           = visualization.ErrSliceOutOfRange
)

// MagicError reports the first header word as read under both byte orders
// when neither matches a known NIfTI header size.
type MagicError struct {
	LittleEndian int32
	BigEndian    int32
}

func (e *MagicError) Error() string {
	return fmt.Sprintf("%v: sizeof_hdr reads %d (little-endian) / %d (big-endian)",
		ErrInvalidMagic, e.LittleEndian, e.BigEndian)
}

// Unwrap lets errors.Is match ErrInvalidMagic.
func (e *MagicError) Unwrap() error {
	return ErrInvalidMagic
}
