package nifti

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHeaderLittleEndian(t *testing.T) {
	f := newFixture(mustResolve(t, DTInt16), 64, 32, 10)
	f.pixdim = [8]float32{1, 0.5, 0.75, 2.5, 1, 1, 1, 1}
	f.descrip = "synthetic"

	h, err := ParseHeader(f.bytes(), true)
	require.NoError(t, err)

	assert.False(t, h.IsVersion2)
	assert.Equal(t, binary.LittleEndian, h.ByteOrder)
	assert.Equal(t, [8]int16{3, 64, 32, 10, 1, 1, 1, 1}, h.Dims)
	assert.Equal(t, int16(DTInt16), h.DatatypeCode)
	assert.Equal(t, int16(16), h.Bitpix)
	assert.Equal(t, int64(352), h.VoxOffset)
	assert.Equal(t, f.pixdim, h.Pixdim)
	assert.Equal(t, "synthetic", h.Descrip)
	assert.Equal(t, "n+1", h.Magic)
	assert.Equal(t, []int{64, 32, 10}, h.Dimensions())
	n, err := h.NumVoxels()
	require.NoError(t, err)
	assert.Equal(t, int64(64*32*10), n)
	assert.Equal(t, 1, h.Version())
}

func TestParseHeaderBigEndian(t *testing.T) {
	f := newFixture(mustResolve(t, DTFloat32), 8, 8, 4)
	f.order = binary.BigEndian
	f.voxOffset = 400

	h, err := ParseHeader(f.bytes(), true)
	require.NoError(t, err)

	assert.Equal(t, binary.BigEndian, h.ByteOrder)
	assert.Equal(t, [8]int16{3, 8, 8, 4, 1, 1, 1, 1}, h.Dims)
	assert.Equal(t, int16(DTFloat32), h.DatatypeCode)
	assert.Equal(t, int64(400), h.VoxOffset)
}

func TestParseHeaderSform(t *testing.T) {
	f := newFixture(mustResolve(t, DTUint8), 2, 2, 2)
	f.sformCode = 1
	f.srow = [3][4]float32{{2, 0, 0, -10}, {0, 2, 0, -20}, {0, 0, 3, 5}}

	h, err := ParseHeader(f.bytes(), true)
	require.NoError(t, err)
	assert.Equal(t, int16(1), h.SformCode)
	assert.Equal(t, [4]float64{2, 0, 0, -10}, h.SrowX)
	assert.Equal(t, [4]float64{0, 2, 0, -20}, h.SrowY)
	assert.Equal(t, [4]float64{0, 0, 3, 5}, h.SrowZ)

	f.sformCode = 0
	h, err = ParseHeader(f.bytes(), true)
	require.NoError(t, err)
	assert.Equal(t, [4]float64{}, h.SrowX)
}

func TestParseHeaderNifti2(t *testing.T) {
	b := nifti2Bytes([]int64{40010, 7, 5}, DTFloat64, 64, 544, []float64{1, 1.5, 2, 0, math.NaN()})

	h, err := ParseHeader(b, true)
	require.NoError(t, err)

	assert.True(t, h.IsVersion2)
	assert.Equal(t, binary.LittleEndian, h.ByteOrder)
	assert.Equal(t, 2, h.Version())
	assert.Equal(t, int16(3), h.Dims[0])
	// 40010 wraps to a negative int16, which is then repaired to 1.
	assert.Equal(t, int16(1), h.Dims[1])
	assert.Equal(t, int16(7), h.Dims[2])
	assert.Equal(t, int16(5), h.Dims[3])
	assert.Equal(t, int16(DTFloat64), h.DatatypeCode)
	assert.Equal(t, int16(64), h.Bitpix)
	assert.Equal(t, int64(544), h.VoxOffset)
	assert.Equal(t, float32(1.5), h.Pixdim[1])
	assert.Equal(t, float32(2), h.Pixdim[2])
	assert.Equal(t, float32(1), h.Pixdim[3])
	assert.Equal(t, float32(1), h.Pixdim[4])
	assert.Equal(t, "n+2", h.Magic)
}

func TestParseHeaderNifti2BigEndianSignature(t *testing.T) {
	b := nifti2Bytes([]int64{4, 4, 4}, DTUint8, 8, 0, nil)
	binary.BigEndian.PutUint32(b, nifti2Signature)

	h, err := ParseHeader(b, false)
	require.NoError(t, err)
	assert.True(t, h.IsVersion2)
	assert.Equal(t, binary.LittleEndian, h.ByteOrder)
	assert.Equal(t, int64(0), h.VoxOffset, "split layout defaults to 0")
}

func TestParseHeaderNifti2VoxOffsetDefault(t *testing.T) {
	b := nifti2Bytes([]int64{4, 4, 4}, DTUint8, 8, -1, nil)

	h, err := ParseHeader(b, true)
	require.NoError(t, err)
	assert.Equal(t, int64(544), h.VoxOffset)
}

func TestParseHeaderInvalidMagic(t *testing.T) {
	b := make([]byte, Nifti2HeaderSize)
	copy(b, []byte{0x12, 0x34, 0x56, 0x78})

	_, err := ParseHeader(b, true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidMagic))

	var me *MagicError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, int32(0x78563412), me.LittleEndian)
	assert.Equal(t, int32(0x12345678), me.BigEndian)
	assert.Contains(t, err.Error(), "2018915346")
	assert.Contains(t, err.Error(), "305419896")
}

func TestParseHeaderRealNifti2SizeIsRejected(t *testing.T) {
	b := make([]byte, Nifti2HeaderSize)
	binary.LittleEndian.PutUint32(b, 540)

	_, err := ParseHeader(b, true)
	assert.ErrorIs(t, err, ErrInvalidMagic)
}

func TestParseHeaderTruncated(t *testing.T) {
	f := newFixture(mustResolve(t, DTUint8), 4, 4, 4)
	b := f.bytes()

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"partial magic", b[:3]},
		{"half header", b[:200]},
		{"one byte short", b[:Nifti1HeaderSize-1]},
		{"nifti2 short", nifti2Bytes([]int64{1, 1, 1}, DTUint8, 8, 544, nil)[:400]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseHeader(tt.data, true)
			assert.ErrorIs(t, err, ErrTruncatedHeader)

			_, err = ReadHeader(bytes.NewReader(tt.data), true)
			assert.ErrorIs(t, err, ErrTruncatedHeader)
		})
	}
}

func TestReadHeaderStopsAtFixedSize(t *testing.T) {
	f := newFixture(mustResolve(t, DTInt32), 3, 3, 3)
	r := bytes.NewReader(append(f.bytes(), 0xAA, 0xBB, 0xCC, 0xDD))

	h, err := ReadHeader(r, true)
	require.NoError(t, err)
	assert.Equal(t, int16(DTInt32), h.DatatypeCode)
	assert.Equal(t, 4, r.Len(), "reader should stop after the fixed header")
}

func TestRepairDims(t *testing.T) {
	tests := []struct {
		name string
		in   [8]int16
		want [8]int16
	}{
		{"valid", [8]int16{3, 10, 20, 30, 1, 1, 1, 1}, [8]int16{3, 10, 20, 30, 1, 1, 1, 1}},
		{"zero ndim", [8]int16{0, 10, 20, 30, 5, 5, 5, 5}, [8]int16{3, 10, 20, 30, 1, 1, 1, 1}},
		{"ndim too large", [8]int16{9, 10, 20, 30, 40, 5, 5, 5}, [8]int16{3, 10, 20, 30, 1, 1, 1, 1}},
		{"negative ndim", [8]int16{-1, 2, 2, 2, 2, 2, 2, 2}, [8]int16{3, 2, 2, 2, 1, 1, 1, 1}},
		{"zero active dim", [8]int16{3, 10, 0, 30, 1, 1, 1, 1}, [8]int16{3, 10, 1, 30, 1, 1, 1, 1}},
		{"negative active dim", [8]int16{4, -5, 20, 30, -2, 1, 1, 1}, [8]int16{4, 1, 20, 30, 1, 1, 1, 1}},
		{"inactive dims", [8]int16{2, 10, 20, 30, 40, 0, -1, 7}, [8]int16{2, 10, 20, 1, 1, 1, 1, 1}},
		{"seven dims", [8]int16{7, 2, 3, 4, 5, 6, 7, 0}, [8]int16{7, 2, 3, 4, 5, 6, 7, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(mustResolve(t, DTUint8))
			f.dims = tt.in
			h, err := ParseHeader(f.bytes(), true)
			require.NoError(t, err)
			assert.Equal(t, tt.want, h.Dims)
		})
	}
}

func TestNumVoxelsOverflow(t *testing.T) {
	f := newFixture(mustResolve(t, DTUint8), 32767, 32767, 32767, 32767, 32767)
	h, err := ParseHeader(f.bytes(), true)
	require.NoError(t, err)

	n, err := h.NumVoxels()
	assert.ErrorIs(t, err, ErrIOFailure)
	assert.Equal(t, int64(math.MaxInt64), n)

	f = newFixture(mustResolve(t, DTUint8), 32767, 32767, 32767, 32767)
	h, err = ParseHeader(f.bytes(), true)
	require.NoError(t, err)
	n, err = h.NumVoxels()
	require.NoError(t, err)
	assert.Equal(t, int64(32767)*32767*32767*32767, n)
}

func TestRepairVoxOffset(t *testing.T) {
	tests := []struct {
		name   string
		in     float32
		single bool
		want   int64
	}{
		{"valid single", 352, true, 352},
		{"valid large", 4096, true, 4096},
		{"nan single", float32(math.NaN()), true, 352},
		{"nan split", float32(math.NaN()), false, 0},
		{"zero single", 0, true, 352},
		{"zero split", 0, false, 0},
		{"negative", -16, true, 352},
		{"too large", 2e9, true, 352},
		{"too large split", 2e9, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(mustResolve(t, DTUint8), 2, 2, 2)
			f.voxOffset = tt.in
			h, err := ParseHeader(f.bytes(), tt.single)
			require.NoError(t, err)
			assert.Equal(t, tt.want, h.VoxOffset)
		})
	}
}

func TestRepairPixdim(t *testing.T) {
	f := newFixture(mustResolve(t, DTUint8), 2, 2, 2)
	inf := float32(math.Inf(1))
	f.pixdim = [8]float32{-1, float32(math.NaN()), inf, 0, -2, 1001, 1000, 0.25}

	h, err := ParseHeader(f.bytes(), true)
	require.NoError(t, err)
	assert.Equal(t, [8]float32{1, 1, 1, 1, 1, 1, 1000, 0.25}, h.Pixdim)
}

func TestParseHeaderIdempotent(t *testing.T) {
	f := newFixture(mustResolve(t, DTUint16), 0, 5, -3)
	f.sformCode = 2
	f.srow = [3][4]float32{{1, 0, 0, 1}, {0, 1, 0, 2}, {0, 0, 1, 3}}
	b := f.bytes()

	h1, err := ParseHeader(b, true)
	require.NoError(t, err)
	h2, err := ParseHeader(b, true)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestParseHeaderRandomNifti1(t *testing.T) {
	rng := rand.New(rand.NewPCG(348, 2))
	for i := 0; i < 500; i++ {
		b := make([]byte, Nifti1HeaderSize)
		for j := range b {
			b[j] = byte(rng.UintN(256))
		}
		order := binary.ByteOrder(binary.LittleEndian)
		if i%2 == 1 {
			order = binary.BigEndian
		}
		order.PutUint32(b, Nifti1HeaderSize)

		h, err := ParseHeader(b, i%3 == 0)
		require.NoError(t, err, "iteration %d", i)
		require.Equal(t, order, h.ByteOrder)

		n := int(h.Dims[0])
		require.GreaterOrEqual(t, n, 1)
		require.LessOrEqual(t, n, 7)
		for d := 1; d < 8; d++ {
			if d <= n {
				require.GreaterOrEqual(t, h.Dims[d], int16(1))
			} else {
				require.Equal(t, int16(1), h.Dims[d])
			}
		}
		for _, p := range h.Pixdim {
			require.True(t, p > 0 && p <= maxPixdim)
		}
		require.Greater(t, h.VoxOffset, int64(-1))
	}
}

func TestParseHeaderRandomMagic(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	b := make([]byte, Nifti2HeaderSize)
	for i := 0; i < 1000; i++ {
		w := rng.Uint32()
		le := make([]byte, 4)
		binary.LittleEndian.PutUint32(le, w)
		l := int32(binary.LittleEndian.Uint32(le))
		bg := int32(binary.BigEndian.Uint32(le))
		if l == nifti1Signature || bg == nifti1Signature || l == nifti2Signature || bg == nifti2Signature {
			continue
		}
		copy(b, le)
		_, err := ParseHeader(b, true)
		require.ErrorIs(t, err, ErrInvalidMagic)
	}
}
