// Package nifti reads NIfTI-1 and NIfTI-2 volumes: header decoding with
// byte-order and version detection, lazy voxel loading through a memory
// mapping or a streaming decode, per-volume statistics and axial slice and
// projection export.
//
// Open a volume with Read; voxel data is loaded on first access:
//
//	img, err := nifti.Read("brain.nii.gz")
//	if err != nil {
//		return err
//	}
//	stats := img.Statistics()
//	err = img.ExportMIPToPNG("brain_mip.png", 2)
package nifti

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"niftislice/pkg/visualization"
)

// Image is a NIfTI volume: its header, the path it came from and voxel
// data that is materialized at most once, on first access.
type Image struct {
	filename  string
	dataPath  string
	header    *Header
	dtype     DataType
	sform     *mat.Dense
	threshold int64
	limit     int64
	log       log.FieldLogger

	mu       sync.Mutex
	strategy Strategy
	voxels   *Voxels
}

// Option configures Read.
type Option func(*Image)

// WithLogger sets the logger used for load diagnostics.
func WithLogger(l log.FieldLogger) Option {
	return func(img *Image) { img.log = l }
}

// WithMmapThreshold overrides the payload size above which uncompressed
// data is memory-mapped.
func WithMmapThreshold(bytes int64) Option {
	return func(img *Image) { img.threshold = bytes }
}

// Read opens path (.nii, .nii.gz, .hdr or .hdr.gz) and decodes its header.
// Voxel data is not read until Data or a method that needs it is called.
func Read(path string, opts ...Option) (*Image, error) {
	img := &Image{
		filename:  path,
		threshold: DefaultMmapThreshold,
		limit:     maxInMemoryVoxels,
		log:       log.StandardLogger(),
	}
	for _, opt := range opts {
		opt(img)
	}

	single := true
	img.dataPath = path
	if p, ok := pairedDataPath(path); ok {
		single = false
		img.dataPath = p
	}

	h, err := readHeaderFile(path, single)
	if err != nil {
		return nil, err
	}
	img.header = h

	dt, err := Resolve(int(h.DatatypeCode))
	if err != nil {
		byBits, bitsErr := ResolveByBitpix(int(h.Bitpix))
		if bitsErr != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		img.log.WithFields(log.Fields{
			"path":     path,
			"datatype": h.DatatypeCode,
			"bitpix":   h.Bitpix,
			"resolved": byBits.Name,
		}).Warn("Unknown datatype code, resolved by bitpix")
		dt = byBits
	}
	img.dtype = dt

	if h.SformCode > 0 {
		rows := make([]float64, 0, 12)
		rows = append(rows, h.SrowX[:]...)
		rows = append(rows, h.SrowY[:]...)
		rows = append(rows, h.SrowZ[:]...)
		img.sform = mat.NewDense(3, 4, rows)
	}

	img.log.WithFields(log.Fields{
		"path":      path,
		"version":   h.Version(),
		"byteOrder": h.ByteOrder,
		"dims":      h.Dimensions(),
		"datatype":  dt.Name,
	}).Debug("Read NIfTI header")

	return img, nil
}

// pairedDataPath returns the .img file paired with a .hdr header.
func pairedDataPath(path string) (string, bool) {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".hdr"):
		return path[:len(path)-len(".hdr")] + ".img", true
	case strings.HasSuffix(lower, ".hdr.gz"):
		return path[:len(path)-len(".hdr.gz")] + ".img.gz", true
	}
	return "", false
}

func readHeaderFile(path string, singleFile bool) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if isGzip(path) {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("%s: opening gzip stream: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}

	h, err := ReadHeader(r, singleFile)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return h, nil
}

// Filename returns the path the image was read from.
func (img *Image) Filename() string {
	return img.filename
}

// DataPath returns the file holding the voxel payload.
func (img *Image) DataPath() string {
	return img.dataPath
}

// Header returns a copy of the decoded header.
func (img *Image) Header() Header {
	return *img.header
}

// Dimensions returns the sizes of the active dimensions.
func (img *Image) Dimensions() []int {
	return img.header.Dimensions()
}

// DataType returns the resolved voxel element type.
func (img *Image) DataType() DataType {
	return img.dtype
}

// Data returns the voxel data, loading it on the first call. Concurrent
// callers wait for the single load and all observe the same result.
//
// Load failures are not returned: the image falls back to a zero-filled
// array and logs a warning, so a failed load is indistinguishable from an
// all-zero volume except through LoadStrategy.
func (img *Image) Data() *Voxels {
	img.mu.Lock()
	defer img.mu.Unlock()

	if img.voxels == nil {
		l := &loader{
			path:      img.dataPath,
			header:    img.header,
			dtype:     img.dtype,
			threshold: img.threshold,
			limit:     img.limit,
			log:       img.log,
		}
		img.voxels, img.strategy = l.load()
	}
	return img.voxels
}

// MappedBuffer returns the memory-mapped view if the data was mapped.
func (img *Image) MappedBuffer() (*MappedBuffer, bool) {
	v := img.Data()
	return v.Mapped(), v.IsMapped()
}

// LoadStrategy reports how the data was materialized, or StrategyUnloaded.
func (img *Image) LoadStrategy() Strategy {
	img.mu.Lock()
	defer img.mu.Unlock()
	return img.strategy
}

// Statistics computes min, max, mean and population standard deviation
// over the finite voxel values.
func (img *Image) Statistics() Statistics {
	return ComputeStatistics(img.Data())
}

// VoxelToWorld maps voxel indices through the sform affine. Without an
// sform the coordinates are returned unchanged.
func (img *Image) VoxelToWorld(ijk [3]float64) [3]float64 {
	if img.sform == nil {
		return ijk
	}
	var out mat.VecDense
	out.MulVec(img.sform, mat.NewVecDense(4, []float64{ijk[0], ijk[1], ijk[2], 1}))
	return [3]float64{out.AtVec(0), out.AtVec(1), out.AtVec(2)}
}

// Exporter returns a slice/projection exporter over the image data.
func (img *Image) Exporter(opts ...visualization.Option) (*visualization.Exporter, error) {
	if dims := img.Dimensions(); len(dims) != 3 {
		return nil, fmt.Errorf("%w: volume has %d dimensions", ErrUnsupportedDimensionality, len(dims))
	}
	v := img.Data()
	return visualization.NewExporter(&volumeView{
		dims: img.Dimensions(),
		n:    v.Len(),
		at:   v.accessor(),
	}, opts...)
}

// ExportSliceToPNG writes one normalized slice as an 8-bit grayscale PNG.
func (img *Image) ExportSliceToPNG(path string, axis, index int) error {
	e, err := img.Exporter()
	if err != nil {
		return err
	}
	return e.ExportSlice(path, axis, index)
}

// ExportAllSlicesToPNG writes every slice along axis as
// <baseName>_<3-digit-index>.png and returns the written paths.
func (img *Image) ExportAllSlicesToPNG(baseName string, axis int) ([]string, error) {
	e, err := img.Exporter()
	if err != nil {
		return nil, err
	}
	return e.SaveSliceSequence(baseName, axis)
}

// ExportMIPToPNG writes the maximum-intensity projection along axis.
func (img *Image) ExportMIPToPNG(path string, axis int) error {
	e, err := img.Exporter()
	if err != nil {
		return err
	}
	return e.ExportMIP(path, axis)
}

// String summarizes the image for logs and CLI output.
func (img *Image) String() string {
	return fmt.Sprintf("%s: NIfTI-%d %v %s", filepath.Base(img.filename),
		img.header.Version(), img.Dimensions(), img.dtype.Name)
}

// volumeView adapts decoded voxels to visualization.Volume.
type volumeView struct {
	dims []int
	n    int
	at   func(int) float64
}

func (v *volumeView) Dimensions() []int {
	return v.dims
}

// Float32At returns 0 past the end of a capped fallback array.
func (v *volumeView) Float32At(i int) float32 {
	if i >= v.n {
		return 0
	}
	return float32(v.at(i))
}
