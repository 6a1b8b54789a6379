package nifti

import (
	"bytes"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
)

// fixture describes a NIfTI-1 header to synthesize.
type fixture struct {
	order     binary.ByteOrder
	dims      [8]int16
	datatype  int16
	bitpix    int16
	voxOffset float32
	pixdim    [8]float32
	sformCode int16
	srow      [3][4]float32
	descrip   string
}

func newFixture(dt DataType, dims ...int16) fixture {
	f := fixture{
		order:     binary.LittleEndian,
		datatype:  int16(dt.Code),
		bitpix:    int16(dt.BitsPerPixel),
		voxOffset: 352,
	}
	f.dims[0] = int16(len(dims))
	for i, d := range dims {
		f.dims[i+1] = d
	}
	for i := range f.pixdim {
		f.pixdim[i] = 1
	}
	return f
}

// bytes encodes the fixture as a 348-byte NIfTI-1 header.
func (f fixture) bytes() []byte {
	b := make([]byte, Nifti1HeaderSize)
	o := f.order
	o.PutUint32(b[0:], Nifti1HeaderSize)
	for i, d := range f.dims {
		o.PutUint16(b[40+2*i:], uint16(d))
	}
	o.PutUint16(b[70:], uint16(f.datatype))
	o.PutUint16(b[72:], uint16(f.bitpix))
	for i, p := range f.pixdim {
		o.PutUint32(b[80+4*i:], math.Float32bits(p))
	}
	o.PutUint32(b[108:], math.Float32bits(f.voxOffset))
	o.PutUint32(b[112:], math.Float32bits(1))
	copy(b[148:228], f.descrip)
	o.PutUint16(b[254:], uint16(f.sformCode))
	for r := 0; r < 3; r++ {
		for c := 0; c < 4; c++ {
			o.PutUint32(b[280+16*r+4*c:], math.Float32bits(f.srow[r][c]))
		}
	}
	copy(b[344:], "n+1\x00")
	return b
}

// nifti2Bytes builds a 540-byte NIfTI-2 header using the decoder's layout.
// Fields written later overlap the upper dim entries, which are inactive.
func nifti2Bytes(dims []int64, datatype, bitpix int16, voxOffset int64, pixdim []float64) []byte {
	b := make([]byte, Nifti2HeaderSize)
	le := binary.LittleEndian
	le.PutUint32(b[0:], nifti2Signature)
	copy(b[4:12], "n+2\x00\r\n\x1a\n")
	le.PutUint64(b[8:], uint64(len(dims)))
	for i, d := range dims {
		le.PutUint64(b[16+8*i:], uint64(d))
	}
	le.PutUint16(b[40:], uint16(datatype))
	le.PutUint16(b[42:], uint16(bitpix))
	le.PutUint64(b[44:], uint64(voxOffset))
	for i, p := range pixdim {
		le.PutUint64(b[52+8*i:], math.Float64bits(p))
	}
	return b
}

// encode serializes a typed slice in the given byte order.
func encode(t *testing.T, order binary.ByteOrder, values any) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, order, values))
	return buf.Bytes()
}

// writeSingle writes a .nii or .nii.gz file: header, padding up to
// vox_offset, then payload.
func writeSingle(t *testing.T, name string, f fixture, payload []byte) string {
	t.Helper()
	var buf bytes.Buffer
	buf.Write(f.bytes())
	for buf.Len() < int(f.voxOffset) {
		buf.WriteByte(0)
	}
	buf.Write(payload)

	path := filepath.Join(t.TempDir(), name)
	writeFile(t, path, buf.Bytes())
	return path
}

// writePair writes name.hdr and name.img.
func writePair(t *testing.T, name string, f fixture, payload []byte) string {
	t.Helper()
	dir := t.TempDir()
	hdr := filepath.Join(dir, name+".hdr")
	writeFile(t, hdr, f.bytes())
	writeFile(t, filepath.Join(dir, name+".img"), payload)
	return hdr
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if filepath.Ext(path) == ".gz" {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		_, err := zw.Write(data)
		require.NoError(t, err)
		require.NoError(t, zw.Close())
		data = buf.Bytes()
	}
	require.NoError(t, os.WriteFile(path, data, 0644))
}

func mustResolve(t *testing.T, code int) DataType {
	t.Helper()
	dt, err := Resolve(code)
	require.NoError(t, err)
	return dt
}
