package nifti

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"math/bits"
	"strings"
)

// Header sizes and the first-word signatures that identify them.
const (
	Nifti1HeaderSize = 348
	Nifti2HeaderSize = 540

	nifti1Signature = 348
	nifti2Signature = 540672
)

// Default voxel offsets applied when the stored vox_offset is unusable.
const (
	defaultNifti1VoxOffset = 352
	defaultNifti2VoxOffset = 544
	maxVoxOffset           = 1e9
	maxPixdim              = 1000
)

// Header is the decoded, repaired fixed-layout NIfTI header.
// It is never modified after decoding.
type Header struct {
	IsVersion2 bool
	ByteOrder  binary.ByteOrder

	// Dims[0] is the number of active dimensions; Dims[1..Dims[0]] their sizes.
	Dims         [8]int16
	DatatypeCode int16
	Bitpix       int16
	VoxOffset    int64
	Pixdim       [8]float32

	// Sform rows are only populated when SformCode > 0.
	SformCode int16
	SrowX     [4]float64
	SrowY     [4]float64
	SrowZ     [4]float64

	SclSlope  float64
	SclInter  float64
	XYZTUnits int32
	Descrip   string
	Magic     string
}

// ReadHeader reads and decodes a header from the start of r. singleFile
// selects the vox_offset default for .nii layouts versus .hdr/.img pairs.
func ReadHeader(r io.Reader, singleFile bool) (*Header, error) {
	buf := make([]byte, Nifti2HeaderSize)
	if n, err := io.ReadFull(r, buf[:4]); err != nil {
		return nil, truncated(n, 4, err)
	}

	size, _, err := detectVersion(buf[:4])
	if err != nil {
		return nil, err
	}

	if n, err := io.ReadFull(r, buf[4:size]); err != nil {
		return nil, truncated(4+n, size, err)
	}
	return ParseHeader(buf[:size], singleFile)
}

// ParseHeader decodes a header held in memory. b may be longer than the
// fixed header; trailing bytes are ignored.
func ParseHeader(b []byte, singleFile bool) (*Header, error) {
	if len(b) < 4 {
		return nil, truncated(len(b), 4, nil)
	}
	size, order, err := detectVersion(b)
	if err != nil {
		return nil, err
	}
	if len(b) < size {
		return nil, truncated(len(b), size, nil)
	}

	if size == Nifti2HeaderSize {
		return parseNifti2(b, singleFile), nil
	}
	return parseNifti1(b, order, singleFile), nil
}

// detectVersion reads the first word under both byte orders and returns the
// header size and byte order it identifies.
func detectVersion(b []byte) (int, binary.ByteOrder, error) {
	le := int32(binary.LittleEndian.Uint32(b))
	be := int32(binary.BigEndian.Uint32(b))

	switch {
	case le == nifti1Signature:
		return Nifti1HeaderSize, binary.LittleEndian, nil
	case be == nifti1Signature:
		return Nifti1HeaderSize, binary.BigEndian, nil
	case le == nifti2Signature || be == nifti2Signature:
		return Nifti2HeaderSize, binary.LittleEndian, nil
	}
	return 0, nil, &MagicError{LittleEndian: le, BigEndian: be}
}

func truncated(got, want int, cause error) error {
	if cause != nil && !errors.Is(cause, io.EOF) && !errors.Is(cause, io.ErrUnexpectedEOF) {
		return fmt.Errorf("reading header: %w", cause)
	}
	return fmt.Errorf("%w: got %d bytes, need %d", ErrTruncatedHeader, got, want)
}

func parseNifti1(b []byte, order binary.ByteOrder, singleFile bool) *Header {
	h := &Header{ByteOrder: order}

	for i := range h.Dims {
		h.Dims[i] = int16(order.Uint16(b[40+2*i:]))
	}
	h.DatatypeCode = int16(order.Uint16(b[70:]))
	h.Bitpix = int16(order.Uint16(b[72:]))
	for i := range h.Pixdim {
		h.Pixdim[i] = math.Float32frombits(order.Uint32(b[80+4*i:]))
	}

	voxOffset := float64(math.Float32frombits(order.Uint32(b[108:])))
	h.VoxOffset = repairVoxOffset(voxOffset, singleFile, defaultNifti1VoxOffset)

	h.SclSlope = float64(math.Float32frombits(order.Uint32(b[112:])))
	h.SclInter = float64(math.Float32frombits(order.Uint32(b[116:])))
	h.XYZTUnits = int32(b[123])
	h.Descrip = cString(b[148:228])
	h.SformCode = int16(order.Uint16(b[254:]))
	if h.SformCode > 0 {
		for i := 0; i < 4; i++ {
			h.SrowX[i] = float64(math.Float32frombits(order.Uint32(b[280+4*i:])))
			h.SrowY[i] = float64(math.Float32frombits(order.Uint32(b[296+4*i:])))
			h.SrowZ[i] = float64(math.Float32frombits(order.Uint32(b[312+4*i:])))
		}
	}
	h.Magic = cString(b[344:348])

	h.repairDims()
	h.repairPixdim()
	return h
}

// parseNifti2 decodes the 540-byte layout. NIfTI-2 is always read
// little-endian and its 64-bit dimensions are narrowed to int16.
func parseNifti2(b []byte, singleFile bool) *Header {
	le := binary.LittleEndian
	h := &Header{IsVersion2: true, ByteOrder: le}

	for i := range h.Dims {
		h.Dims[i] = int16(int64(le.Uint64(b[8+8*i:])))
	}
	h.DatatypeCode = int16(le.Uint16(b[40:]))
	h.Bitpix = int16(le.Uint16(b[42:]))
	for i := range h.Pixdim {
		h.Pixdim[i] = float32(math.Float64frombits(le.Uint64(b[52+8*i:])))
	}

	voxOffset := float64(int64(le.Uint64(b[44:])))
	h.VoxOffset = repairVoxOffset(voxOffset, singleFile, defaultNifti2VoxOffset)

	h.Magic = cString(b[4:12])
	h.SclSlope = math.Float64frombits(le.Uint64(b[176:]))
	h.SclInter = math.Float64frombits(le.Uint64(b[184:]))
	h.Descrip = cString(b[240:320])
	h.SformCode = int16(int32(le.Uint32(b[348:])))
	if h.SformCode > 0 {
		for i := 0; i < 4; i++ {
			h.SrowX[i] = math.Float64frombits(le.Uint64(b[400+8*i:]))
			h.SrowY[i] = math.Float64frombits(le.Uint64(b[432+8*i:]))
			h.SrowZ[i] = math.Float64frombits(le.Uint64(b[464+8*i:]))
		}
	}
	h.XYZTUnits = int32(le.Uint32(b[500:]))

	h.repairDims()
	h.repairPixdim()
	return h
}

// repairDims forces dim[0] into [1,7] and every unused or non-positive
// dimension to 1.
func (h *Header) repairDims() {
	if h.Dims[0] < 1 || h.Dims[0] > 7 {
		h.Dims[0] = 3
	}
	n := int(h.Dims[0])
	for i := 1; i < len(h.Dims); i++ {
		if i > n || h.Dims[i] <= 0 {
			h.Dims[i] = 1
		}
	}
}

func (h *Header) repairPixdim() {
	for i, p := range h.Pixdim {
		v := float64(p)
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 || v > maxPixdim {
			h.Pixdim[i] = 1
		}
	}
}

func repairVoxOffset(v float64, singleFile bool, singleFileDefault int64) int64 {
	if math.IsNaN(v) || v <= 0 || v > maxVoxOffset {
		if singleFile {
			return singleFileDefault
		}
		return 0
	}
	return int64(v)
}

// cString trims a fixed-width, NUL-padded field.
func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return strings.TrimSpace(string(b))
}

// NumDims returns the number of active dimensions.
func (h *Header) NumDims() int {
	return int(h.Dims[0])
}

// Dimensions returns the sizes of the active dimensions.
func (h *Header) Dimensions() []int {
	dims := make([]int, h.NumDims())
	for i := range dims {
		dims[i] = int(h.Dims[i+1])
	}
	return dims
}

// NumVoxels is the product of the active dimensions. Seven dimensions of
// up to 32767 can exceed int64; in that case it returns math.MaxInt64 and
// an error wrapping ErrIOFailure.
func (h *Header) NumVoxels() (int64, error) {
	n := uint64(1)
	for _, d := range h.Dimensions() {
		hi, lo := bits.Mul64(n, uint64(d))
		if hi != 0 || lo > math.MaxInt64 {
			return math.MaxInt64, fmt.Errorf("%w: dimensions %v overflow the voxel count",
				ErrIOFailure, h.Dimensions())
		}
		n = lo
	}
	return int64(n), nil
}

// Version returns 1 or 2.
func (h *Header) Version() int {
	if h.IsVersion2 {
		return 2
	}
	return 1
}
