package nifti

import (
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/exp/mmap"
)

// MappedBuffer is a read-only view over the voxel byte range of a data
// file. Values are decoded on access.
//
// The mapping is released by the runtime once the buffer is unreachable.
type MappedBuffer struct {
	r      *mmap.ReaderAt
	offset int64
	length int64
	dtype  DataType
	order  binary.ByteOrder
}

func mapVoxels(path string, offset, length int64, dt DataType, order binary.ByteOrder) (*MappedBuffer, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mapping %s: %w", path, err)
	}
	if fileLen := int64(r.Len()); offset > fileLen || length > fileLen-offset {
		size := r.Len()
		r.Close()
		return nil, fmt.Errorf("mapping %s: file has %d bytes, voxel data ends at %d: %w",
			path, size, offset+length, io.ErrUnexpectedEOF)
	}
	return &MappedBuffer{r: r, offset: offset, length: length, dtype: dt, order: order}, nil
}

// Len returns the number of voxels in the view.
func (m *MappedBuffer) Len() int {
	return int(m.length / int64(m.dtype.ByteWidth()))
}

// Size returns the view size in bytes.
func (m *MappedBuffer) Size() int64 {
	return m.length
}

// ByteOrder is the on-disk order of the mapped elements.
func (m *MappedBuffer) ByteOrder() binary.ByteOrder {
	return m.order
}

// ReadAt reads raw voxel bytes; off is relative to the start of the voxel data.
func (m *MappedBuffer) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off >= m.length {
		return 0, io.EOF
	}
	if rem := m.length - off; int64(len(p)) > rem {
		n, err := m.r.ReadAt(p[:rem], m.offset+off)
		if err == nil {
			err = io.EOF
		}
		return n, err
	}
	return m.r.ReadAt(p, m.offset+off)
}

// At decodes voxel i. Like a slice index, it panics if i is outside
// [0, Len()).
func (m *MappedBuffer) At(i int) float64 {
	if i < 0 || i >= m.Len() {
		panic(fmt.Sprintf("nifti: mapped voxel index %d out of range [0:%d]", i, m.Len()))
	}
	var buf [8]byte
	w := m.dtype.ByteWidth()
	if _, err := m.r.ReadAt(buf[:w], m.offset+int64(i)*int64(w)); err != nil {
		panic(fmt.Sprintf("nifti: reading mapped voxel %d: %v", i, err))
	}
	return m.dtype.decode(buf[:w], m.order)
}

// Voxels holds materialized voxel data: either a typed slice decoded into
// native byte order or a mapped view.
type Voxels struct {
	dtype  DataType
	count  int
	values any
	mapped *MappedBuffer
}

func newTypedVoxels(dt DataType, values any, count int) *Voxels {
	return &Voxels{dtype: dt, values: values, count: count}
}

func newMappedVoxels(m *MappedBuffer) *Voxels {
	return &Voxels{dtype: m.dtype, mapped: m, count: m.Len()}
}

// Len returns the voxel count.
func (v *Voxels) Len() int {
	return v.count
}

// DataType returns the element type. A fallback array of a type without a
// decoder reports the header type but holds float32 zeros.
func (v *Voxels) DataType() DataType {
	return v.dtype
}

// IsMapped reports whether the voxels are served from a memory mapping.
func (v *Voxels) IsMapped() bool {
	return v.mapped != nil
}

// Mapped returns the underlying view, or nil for decoded data.
func (v *Voxels) Mapped() *MappedBuffer {
	return v.mapped
}

// Values returns the decoded typed slice ([]uint8, []int16, []uint16,
// []int32, []float32 or []float64), or nil when the data is mapped.
func (v *Voxels) Values() any {
	return v.values
}

// At returns voxel i as float64.
func (v *Voxels) At(i int) float64 {
	return v.accessor()(i)
}

// accessor resolves the element type once and returns an indexed reader.
func (v *Voxels) accessor() func(int) float64 {
	if v.mapped != nil {
		return v.mapped.At
	}
	switch vals := v.values.(type) {
	case []uint8:
		return func(i int) float64 { return float64(vals[i]) }
	case []int16:
		return func(i int) float64 { return float64(vals[i]) }
	case []uint16:
		return func(i int) float64 { return float64(vals[i]) }
	case []int32:
		return func(i int) float64 { return float64(vals[i]) }
	case []float32:
		return func(i int) float64 { return float64(vals[i]) }
	case []float64:
		return func(i int) float64 { return vals[i] }
	}
	return func(int) float64 { return 0 }
}
