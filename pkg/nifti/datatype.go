package nifti

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// NIfTI datatype codes (nifti1.h DT_*).
const (
	DTUint8      = 2
	DTInt16      = 4
	DTInt32      = 8
	DTFloat32    = 16
	DTComplex64  = 32
	DTFloat64    = 64
	DTUint16     = 512
	DTFloat128   = 1536
	DTComplex128 = 1792
	DTComplex256 = 2048
)

// DataType describes how one voxel element is laid out on disk.
type DataType struct {
	Code         int
	BitsPerPixel int
	Name         string
	Signed       bool
	Complex      bool
}

// registry is the single lookup table for every known datatype code. Order
// matters for ResolveByBitpix: the first entry with a matching width wins.
var registry = []DataType{
	{Code: DTUint8, BitsPerPixel: 8, Name: "UINT8"},
	{Code: DTInt16, BitsPerPixel: 16, Name: "INT16", Signed: true},
	{Code: DTInt32, BitsPerPixel: 32, Name: "INT32", Signed: true},
	{Code: DTFloat32, BitsPerPixel: 32, Name: "FLOAT32", Signed: true},
	{Code: DTComplex64, BitsPerPixel: 64, Name: "COMPLEX64", Signed: true, Complex: true},
	{Code: DTFloat64, BitsPerPixel: 64, Name: "FLOAT64", Signed: true},
	{Code: DTUint16, BitsPerPixel: 16, Name: "UINT16"},
	{Code: DTFloat128, BitsPerPixel: 128, Name: "FLOAT128", Signed: true},
	{Code: DTComplex128, BitsPerPixel: 128, Name: "COMPLEX128", Signed: true, Complex: true},
	{Code: DTComplex256, BitsPerPixel: 256, Name: "COMPLEX256", Signed: true, Complex: true},
}

// Resolve returns the datatype registered for a header datatype code.
func Resolve(code int) (DataType, error) {
	for _, dt := range registry {
		if dt.Code == code {
			return dt, nil
		}
	}
	return DataType{}, fmt.Errorf("%w: datatype code %d", ErrUnsupportedFormat, code)
}

// ResolveByBitpix returns the first registered datatype with the given width.
func ResolveByBitpix(bits int) (DataType, error) {
	for _, dt := range registry {
		if dt.BitsPerPixel == bits {
			return dt, nil
		}
	}
	return DataType{}, fmt.Errorf("%w: bitpix %d", ErrUnsupportedFormat, bits)
}

// DataTypes returns a copy of the registry.
func DataTypes() []DataType {
	out := make([]DataType, len(registry))
	copy(out, registry)
	return out
}

// ByteWidth is the size of one element in bytes.
func (dt DataType) ByteWidth() int {
	return dt.BitsPerPixel / 8
}

// Decodable reports whether voxels of this type can be decoded.
func (dt DataType) Decodable() bool {
	switch dt.Code {
	case DTUint8, DTInt16, DTUint16, DTInt32, DTFloat32, DTFloat64:
		return true
	}
	return false
}

func (dt DataType) String() string {
	return dt.Name
}

// decode interprets one element stored in b using the given byte order.
// Callers must check Decodable first.
func (dt DataType) decode(b []byte, order binary.ByteOrder) float64 {
	switch dt.Code {
	case DTUint8:
		return float64(b[0])
	case DTInt16:
		return float64(int16(order.Uint16(b)))
	case DTUint16:
		return float64(order.Uint16(b))
	case DTInt32:
		return float64(int32(order.Uint32(b)))
	case DTFloat32:
		return float64(math.Float32frombits(order.Uint32(b)))
	case DTFloat64:
		return math.Float64frombits(order.Uint64(b))
	}
	return 0
}

// newValues allocates a zeroed typed slice of n elements for the datatype.
// Types without a decoder get a float32 slice.
func (dt DataType) newValues(n int) any {
	switch dt.Code {
	case DTUint8:
		return make([]uint8, n)
	case DTInt16:
		return make([]int16, n)
	case DTUint16:
		return make([]uint16, n)
	case DTInt32:
		return make([]int32, n)
	case DTFloat64:
		return make([]float64, n)
	default:
		return make([]float32, n)
	}
}

// streamChunk is the number of elements decoded per binary.Read call.
const streamChunk = 1 << 16

// readValues decodes n elements from r into a typed slice. The slice grows
// as data arrives, so a stream shorter than its header claims fails before
// the full size is allocated.
func (dt DataType) readValues(r io.Reader, order binary.ByteOrder, n int) (any, error) {
	switch dt.Code {
	case DTUint8:
		return readChunked[uint8](r, order, n)
	case DTInt16:
		return readChunked[int16](r, order, n)
	case DTUint16:
		return readChunked[uint16](r, order, n)
	case DTInt32:
		return readChunked[int32](r, order, n)
	case DTFloat32:
		return readChunked[float32](r, order, n)
	case DTFloat64:
		return readChunked[float64](r, order, n)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedDataType, dt.Name)
}

func readChunked[T uint8 | int16 | uint16 | int32 | float32 | float64](r io.Reader, order binary.ByteOrder, n int) ([]T, error) {
	out := make([]T, 0, min(n, streamChunk))
	buf := make([]T, min(n, streamChunk))
	for len(out) < n {
		chunk := buf[:min(n-len(out), len(buf))]
		if err := binary.Read(r, order, chunk); err != nil {
			return nil, err
		}
		out = append(out, chunk...)
	}
	return out, nil
}
