package contracts

import (
	"fmt"
	"image"
	"math"
)

const (
	// DefaultDPI is assumed when a source carries no resolution.
	DefaultDPI = 72.0
	// PointsPerInch is the PDF user space unit.
	PointsPerInch = 72.0
)

// PageImage is one page as produced by a rasterizer or frame decoder.
// Encoders never modify Raster; normalization produces new images.
type PageImage struct {
	Raster      image.Image
	DpiX        float64
	DpiY        float64
	Orientation int
	Index       int
}

// NewPageImage applies the 72 DPI default to zero resolutions and rejects
// negative or non-finite resolutions and orientation codes outside 1..8.
func NewPageImage(raster image.Image, dpiX, dpiY float64, orientation, index int) (PageImage, error) {
	if raster == nil {
		return PageImage{}, fmt.Errorf("page %d: nil raster", index)
	}
	if !finite(dpiX) || !finite(dpiY) {
		return PageImage{}, fmt.Errorf("page %d: resolution must be finite, got %vx%v", index, dpiX, dpiY)
	}
	if dpiX < 0 || dpiY < 0 {
		return PageImage{}, fmt.Errorf("page %d: resolution must be positive, got %vx%v", index, dpiX, dpiY)
	}
	if dpiX == 0 {
		dpiX = DefaultDPI
	}
	if dpiY == 0 {
		dpiY = DefaultDPI
	}
	if orientation < 1 || orientation > 8 {
		return PageImage{}, fmt.Errorf("page %d: orientation must be in [1,8], got %d", index, orientation)
	}
	return PageImage{
		Raster:      raster,
		DpiX:        dpiX,
		DpiY:        dpiY,
		Orientation: orientation,
		Index:       index,
	}, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// PhysicalSize returns the page size in inches.
func (p PageImage) PhysicalSize() (float64, float64) {
	b := p.Raster.Bounds()
	return float64(b.Dx()) / p.DpiX, float64(b.Dy()) / p.DpiY
}

// ColorClass describes the pixel content of a page after color hints.
type ColorClass int

const (
	ClassBinary ColorClass = iota
	ClassIndexed
	ClassGray
	ClassRGB
)

func (c ColorClass) String() string {
	switch c {
	case ClassBinary:
		return "binary"
	case ClassIndexed:
		return "indexed"
	case ClassGray:
		return "gray"
	case ClassRGB:
		return "rgb"
	}
	return fmt.Sprintf("class(%d)", int(c))
}

// EncodedPage is one compressed page ready to be appended to a container.
//
// Data layout per Mode:
//   - CompressionJPEG: a complete JFIF stream.
//   - CompressionLossless: zlib stream of packed rows, BitsPerComponent 1
//     (1 = white) or 8, Components 1 or 3.
//   - CompressionCCITT: raw CCITT T.6 data, black pixels encoded as black.
type EncodedPage struct {
	Data             []byte
	Mode             Compression
	Class            ColorClass
	Width            int
	Height           int
	Components       int
	BitsPerComponent int
	DpiX             float64
	DpiY             float64
	Index            int
	// Raster is the image that produced Data, kept for writers that embed
	// through their own encoder.
	Raster image.Image
}

// WidthPoints and HeightPoints give the physical page size in PDF points.
func (p EncodedPage) WidthPoints() float64 {
	return float64(p.Width) * PointsPerInch / p.DpiX
}

func (p EncodedPage) HeightPoints() float64 {
	return float64(p.Height) * PointsPerInch / p.DpiY
}
