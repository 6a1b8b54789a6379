package models

// Slice is a single 2D plane taken from a volume, stored row-major.
type Slice struct {
	// Pixels holds Width*Height intensities, row-major
	Pixels []float32

	// Width and Height are the plane dimensions in voxels
	Width  int
	Height int

	// Index is the position of this slice along the extraction axis,
	// or -1 for a projection
	Index int
}

// NewSlice allocates a zeroed slice of the given size.
func NewSlice(width, height, index int) *Slice {
	return &Slice{
		Pixels: make([]float32, width*height),
		Width:  width,
		Height: height,
		Index:  index,
	}
}

// At returns the value at column x, row y.
func (s *Slice) At(x, y int) float32 {
	return s.Pixels[y*s.Width+x]
}
