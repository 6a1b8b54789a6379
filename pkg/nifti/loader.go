package nifti

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	log "github.com/sirupsen/logrus"
)

// DefaultMmapThreshold is the payload size above which uncompressed voxel
// data is memory-mapped instead of decoded.
const DefaultMmapThreshold int64 = 100 << 20

// maxInMemoryVoxels caps decoded and zero-filled arrays; larger payloads
// can only be served through a mapping.
const maxInMemoryVoxels = math.MaxInt32 - 8

// Strategy identifies how voxel data was materialized.
type Strategy int

const (
	StrategyUnloaded Strategy = iota
	StrategyMapped
	StrategyStreamed
	StrategyFallback
)

func (s Strategy) String() string {
	switch s {
	case StrategyUnloaded:
		return "unloaded"
	case StrategyMapped:
		return "mapped"
	case StrategyStreamed:
		return "streamed"
	case StrategyFallback:
		return "fallback"
	}
	return fmt.Sprintf("Strategy(%d)", int(s))
}

// ChooseStrategy picks the load path for a payload of size bytes. Gzip
// streams cannot be mapped, so they are always streamed.
func ChooseStrategy(compressed bool, size, threshold int64) Strategy {
	if !compressed && size > threshold {
		return StrategyMapped
	}
	return StrategyStreamed
}

// isGzip reports whether a path names a gzip-compressed file.
func isGzip(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".gz")
}

// loader materializes the voxel payload of one data file.
type loader struct {
	path      string
	header    *Header
	dtype     DataType
	threshold int64
	limit     int64
	log       log.FieldLogger
}

// load never fails: any error is logged and replaced by a zero-filled array.
func (l *loader) load() (*Voxels, Strategy) {
	count, err := l.header.NumVoxels()
	width := int64(l.dtype.ByteWidth())
	if err == nil && count > math.MaxInt64/width {
		err = fmt.Errorf("%w: %d voxels of %d bytes overflow the payload size", ErrIOFailure, count, width)
	}
	var size int64
	if err == nil {
		size = count * width
	}
	strategy := ChooseStrategy(isGzip(l.path), size, l.threshold)

	fields := log.Fields{
		"path":     l.path,
		"strategy": strategy,
		"bytes":    size,
		"datatype": l.dtype.Name,
	}
	l.log.WithFields(fields).Debug("Loading voxel data")

	var voxels *Voxels
	switch {
	case err != nil:
	case !l.dtype.Decodable():
		err = fmt.Errorf("%w: %s", ErrUnsupportedDataType, l.dtype.Name)
	case strategy == StrategyMapped:
		var m *MappedBuffer
		m, err = mapVoxels(l.path, l.header.VoxOffset, size, l.dtype, l.header.ByteOrder)
		if err == nil {
			voxels = newMappedVoxels(m)
		}
	default:
		voxels, err = l.stream(count, size)
	}

	if err != nil {
		fields["error"] = err
		return l.fallback(count, fields), StrategyFallback
	}
	return voxels, strategy
}

// stream decodes the payload sequentially. Decompressed streams are not
// seekable, so the bytes before vox_offset are read and discarded.
func (l *loader) stream(count, size int64) (*Voxels, error) {
	if count > l.limit {
		return nil, fmt.Errorf("%w: %d voxels exceed the in-memory limit of %d",
			ErrIOFailure, count, l.limit)
	}

	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}
	defer f.Close()

	var r io.Reader = f
	if isGzip(l.path) {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("%w: opening gzip stream %s: %w", ErrIOFailure, l.path, err)
		}
		defer gz.Close()
		r = gz
	} else {
		fi, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
		}
		if avail := fi.Size() - l.header.VoxOffset; avail < size {
			return nil, fmt.Errorf("%w: %s holds %d payload bytes, need %d: %w",
				ErrIOFailure, l.path, max(avail, 0), size, io.ErrUnexpectedEOF)
		}
	}
	br := bufio.NewReaderSize(r, 1<<20)

	if _, err := io.CopyN(io.Discard, br, l.header.VoxOffset); err != nil {
		return nil, fmt.Errorf("%w: skipping %d header bytes in %s: %w",
			ErrIOFailure, l.header.VoxOffset, l.path, err)
	}

	values, err := l.dtype.readValues(br, l.header.ByteOrder, int(count))
	if err != nil {
		return nil, fmt.Errorf("%w: reading %d voxels from %s: %w", ErrIOFailure, count, l.path, err)
	}
	return newTypedVoxels(l.dtype, values, int(count)), nil
}

// fallback allocates zeros for the expected voxel count and logs why.
func (l *loader) fallback(count int64, fields log.Fields) *Voxels {
	if count > l.limit {
		count = l.limit
	}
	fields["voxels"] = count
	l.log.WithFields(fields).Warn("Failed to load voxel data, using zero-filled volume")
	return newTypedVoxels(l.dtype, l.dtype.newValues(int(count)), int(count))
}
