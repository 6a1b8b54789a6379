package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"niftislice/internal/models"
)

// MidGray is the normalized value used for flat or non-finite input.
const MidGray float32 = 0.5

// Format is an output raster encoding.
type Format int

const (
	FormatPNG Format = iota
	FormatJPEG
	FormatTIFF
	FormatBMP
)

// ParseFormat maps a format name or file extension to a Format.
func ParseFormat(name string) (Format, error) {
	switch strings.TrimPrefix(strings.ToLower(name), ".") {
	case "png":
		return FormatPNG, nil
	case "jpg", "jpeg":
		return FormatJPEG, nil
	case "tif", "tiff":
		return FormatTIFF, nil
	case "bmp":
		return FormatBMP, nil
	}
	return FormatPNG, fmt.Errorf("unknown image format %q", name)
}

// Extension returns the file extension without the dot.
func (f Format) Extension() string {
	switch f {
	case FormatJPEG:
		return "jpg"
	case FormatTIFF:
		return "tiff"
	case FormatBMP:
		return "bmp"
	}
	return "png"
}

func (f Format) String() string {
	return f.Extension()
}

// Normalize stretches the finite values of in to [0,1]. Non-finite values
// map to MidGray, and so does everything when the finite range is empty or
// flat.
func Normalize(in []float32) []float32 {
	out := make([]float32, len(in))

	lo := math.Inf(1)
	hi := math.Inf(-1)
	for _, v := range in {
		x := float64(v)
		if math.IsNaN(x) || math.IsInf(x, 0) {
			continue
		}
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}

	if math.IsInf(lo, 1) || lo == hi {
		for i := range out {
			out[i] = MidGray
		}
		return out
	}

	span := hi - lo
	for i, v := range in {
		x := float64(v)
		if math.IsNaN(x) || math.IsInf(x, 0) {
			out[i] = MidGray
			continue
		}
		out[i] = float32((x - lo) / span)
	}
	return out
}

// ToGray maps normalized values to 8-bit gray: round(v*255) clamped to
// [0,255].
func ToGray(s *models.Slice) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, s.Width, s.Height))
	for y := 0; y < s.Height; y++ {
		for x := 0; x < s.Width; x++ {
			img.SetGray(x, y, color.Gray{Y: toByte(s.At(x, y))})
		}
	}
	return img
}

func toByte(v float32) uint8 {
	x := float64(v)
	if math.IsNaN(x) {
		x = float64(MidGray)
	}
	x = math.Round(x * 255)
	return uint8(math.Max(0, math.Min(255, x)))
}

// SaveImage encodes img to filename, creating parent directories.
func SaveImage(img image.Image, filename string, f Format, jpegQuality int) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
	}

	file, err := os.Create(filename)
	if err != nil {
		return err
	}

	switch f {
	case FormatJPEG:
		err = jpeg.Encode(file, img, &jpeg.Options{Quality: jpegQuality})
	case FormatTIFF:
		err = tiff.Encode(file, img, &tiff.Options{Compression: tiff.Deflate})
	case FormatBMP:
		err = bmp.Encode(file, img)
	default:
		err = png.Encode(file, img)
	}
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filename, err)
	}
	return nil
}
