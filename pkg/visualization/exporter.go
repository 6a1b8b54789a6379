package visualization

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"niftislice/internal/models"
)

// AxialAxis is the only axis slices and projections can be taken along.
const AxialAxis = 2

// Export constraint errors
var (
	ErrUnsupportedDimensionality = errors.New("unsupported dimensionality: only 3D volumes can be exported")
	ErrUnsupportedAxis           = errors.New("unsupported axis: only axis 2 (axial) is supported")
	ErrSliceOutOfRange           = errors.New("slice index out of range")
)

// Volume is the read access the exporter needs from a voxel source.
type Volume interface {
	// Dimensions returns the sizes of the active dimensions, x first
	Dimensions() []int

	// Float32At returns voxel i of the flattened volume
	Float32At(i int) float32
}

// Exporter extracts axial slices and projections from a 3D volume and
// writes them as 8-bit grayscale rasters.
type Exporter struct {
	// volume is the voxel source
	volume Volume

	// dimensions of the volume
	width  int
	height int
	depth  int

	// format and jpegQuality control SaveImage output
	format      Format
	jpegQuality int
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithFormat sets the raster format used by Save* methods.
func WithFormat(f Format) Option {
	return func(e *Exporter) { e.format = f }
}

// WithJPEGQuality sets the quality for JPEG output.
func WithJPEGQuality(q int) Option {
	return func(e *Exporter) { e.jpegQuality = q }
}

// NewExporter creates an exporter for a 3D volume.
func NewExporter(volume Volume, opts ...Option) (*Exporter, error) {
	dims := volume.Dimensions()
	if len(dims) != 3 {
		return nil, fmt.Errorf("%w: volume has %d dimensions", ErrUnsupportedDimensionality, len(dims))
	}

	e := &Exporter{
		volume:      volume,
		width:       dims[0],
		height:      dims[1],
		depth:       dims[2],
		format:      FormatPNG,
		jpegQuality: 90,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Depth returns the number of slices along the axial axis.
func (e *Exporter) Depth() int {
	return e.depth
}

// ExtractSlice copies one axial plane out of the volume.
func (e *Exporter) ExtractSlice(axis, index int) (*models.Slice, error) {
	if axis != AxialAxis {
		return nil, fmt.Errorf("%w: got axis %d", ErrUnsupportedAxis, axis)
	}
	if index < 0 || index >= e.depth {
		return nil, fmt.Errorf("%w: index %d, depth %d", ErrSliceOutOfRange, index, e.depth)
	}

	s := models.NewSlice(e.width, e.height, index)
	base := index * e.width * e.height
	for i := range s.Pixels {
		s.Pixels[i] = e.volume.Float32At(base + i)
	}
	return s, nil
}

// MaximumIntensityProjection normalizes every axial slice, folds them with
// an element-wise max and normalizes the folded plane once more.
func (e *Exporter) MaximumIntensityProjection(axis int) (*models.Slice, error) {
	if axis != AxialAxis {
		return nil, fmt.Errorf("%w: got axis %d", ErrUnsupportedAxis, axis)
	}

	mip := models.NewSlice(e.width, e.height, -1)
	for z := 0; z < e.depth; z++ {
		s, err := e.ExtractSlice(axis, z)
		if err != nil {
			return nil, err
		}
		norm := Normalize(s.Pixels)
		if z == 0 {
			copy(mip.Pixels, norm)
			continue
		}
		for i, v := range norm {
			if v > mip.Pixels[i] {
				mip.Pixels[i] = v
			}
		}
	}

	mip.Pixels = Normalize(mip.Pixels)
	return mip, nil
}

// SaveSlice normalizes and writes one slice.
func (e *Exporter) SaveSlice(s *models.Slice, filename string) error {
	norm := &models.Slice{
		Pixels: Normalize(s.Pixels),
		Width:  s.Width,
		Height: s.Height,
		Index:  s.Index,
	}
	return SaveImage(ToGray(norm), filename, e.format, e.jpegQuality)
}

// ExportSlice extracts, normalizes and writes a single slice.
func (e *Exporter) ExportSlice(filename string, axis, index int) error {
	s, err := e.ExtractSlice(axis, index)
	if err != nil {
		return err
	}
	return e.SaveSlice(s, filename)
}

// ExportMIP writes the maximum-intensity projection along axis.
func (e *Exporter) ExportMIP(filename string, axis int) error {
	mip, err := e.MaximumIntensityProjection(axis)
	if err != nil {
		return err
	}
	return SaveImage(ToGray(mip), filename, e.format, e.jpegQuality)
}

// SaveSliceSequence writes every slice along axis as
// <baseName>_<index>.<ext> with a 3-digit index and returns the paths.
func (e *Exporter) SaveSliceSequence(baseName string, axis int) ([]string, error) {
	if axis != AxialAxis {
		return nil, fmt.Errorf("%w: got axis %d", ErrUnsupportedAxis, axis)
	}
	if dir := filepath.Dir(baseName); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	paths := make([]string, 0, e.depth)
	for z := 0; z < e.depth; z++ {
		filename := SequenceName(baseName, z, e.format)
		if err := e.ExportSlice(filename, axis, z); err != nil {
			return paths, fmt.Errorf("slice %d: %w", z, err)
		}
		paths = append(paths, filename)
	}
	return paths, nil
}

// SequenceName formats the file name for slice index of a sequence.
func SequenceName(baseName string, index int, f Format) string {
	return fmt.Sprintf("%s_%03d.%s", baseName, index, f.Extension())
}
