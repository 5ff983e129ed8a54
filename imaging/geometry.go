package imaging

import (
	"image"
	"math"

	"github.com/nfnt/resize"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// SwapsAxes reports whether orientation code o exchanges width and height.
func SwapsAxes(o int) bool {
	return o >= 5 && o <= 8
}

// Orient returns img transformed so that orientation o (TIFF/EXIF codes
// 1..8) becomes 1. Code 1 and unknown codes return img unchanged.
func Orient(img image.Image, o int) image.Image {
	if o < 2 || o > 8 {
		return img
	}
	b := img.Bounds()
	w, h := float64(b.Dx()), float64(b.Dy())

	// source to destination, for a source anchored at the origin
	var m f64.Aff3
	switch o {
	case 2: // mirror horizontal
		m = f64.Aff3{-1, 0, w, 0, 1, 0}
	case 3: // rotate 180
		m = f64.Aff3{-1, 0, w, 0, -1, h}
	case 4: // mirror vertical
		m = f64.Aff3{1, 0, 0, 0, -1, h}
	case 5: // transpose
		m = f64.Aff3{0, 1, 0, 1, 0, 0}
	case 6: // rotate 90 clockwise
		m = f64.Aff3{0, -1, h, 1, 0, 0}
	case 7: // transverse
		m = f64.Aff3{0, -1, h, -1, 0, w}
	case 8: // rotate 270 clockwise
		m = f64.Aff3{0, 1, 0, -1, 0, w}
	}
	minX, minY := float64(b.Min.X), float64(b.Min.Y)
	m[2] -= m[0]*minX + m[1]*minY
	m[5] -= m[3]*minX + m[4]*minY

	dw, dh := b.Dx(), b.Dy()
	if SwapsAxes(o) {
		dw, dh = dh, dw
	}
	dst := newLike(img, image.Rect(0, 0, dw, dh))
	draw.NearestNeighbor.Transform(dst, m, img, b, draw.Src, nil)
	return dst
}

// newLike allocates a destination that keeps the pixel model of img, so a
// paletted or gray page stays paletted or gray after a transform.
func newLike(img image.Image, r image.Rectangle) draw.Image {
	switch m := img.(type) {
	case *image.Gray:
		return image.NewGray(r)
	case *image.Gray16:
		return image.NewGray16(r)
	case *image.Paletted:
		return image.NewPaletted(r, m.Palette)
	case *image.NRGBA:
		return image.NewNRGBA(r)
	case *image.CMYK:
		return image.NewCMYK(r)
	}
	return image.NewRGBA(r)
}

// Rescale downsamples img so that no axis exceeds target DPI. It never
// upsamples. Axes already at or below the target keep their pixels and
// resolution; the others are scaled by target/dpi and take the target as
// their new resolution. A target <= 0 means no rescaling.
func Rescale(img image.Image, dpiX, dpiY float64, target int, binary bool) (image.Image, float64, float64) {
	if target <= 0 {
		return img, dpiX, dpiY
	}
	t := float64(target)
	sx, sy := 1.0, 1.0
	if dpiX > t {
		sx, dpiX = t/dpiX, t
	}
	if dpiY > t {
		sy, dpiY = t/dpiY, t
	}
	if sx == 1 && sy == 1 {
		return img, dpiX, dpiY
	}
	return scale(img, sx, sy, binary), dpiX, dpiY
}

// Resample scales img in either direction so both axes end up at exactly
// target DPI while the physical size is kept.
func Resample(img image.Image, dpiX, dpiY float64, target int, binary bool) (image.Image, float64, float64) {
	if target <= 0 || dpiX <= 0 || dpiY <= 0 {
		return img, dpiX, dpiY
	}
	t := float64(target)
	if dpiX == t && dpiY == t {
		return img, dpiX, dpiY
	}
	return scale(img, t/dpiX, t/dpiY, binary), t, t
}

func scale(img image.Image, sx, sy float64, binary bool) image.Image {
	b := img.Bounds()
	w := max(1, int(math.Round(float64(b.Dx())*sx)))
	h := max(1, int(math.Round(float64(b.Dy())*sy)))
	if w == b.Dx() && h == b.Dy() {
		return img
	}
	if binary {
		// nearest neighbour only picks existing samples; the threshold
		// keeps the result strictly two-level whatever the source model
		out := resize.Resize(uint(w), uint(h), img, resize.NearestNeighbor)
		return threshold128(ToGray(out))
	}
	return resize.Resize(uint(w), uint(h), img, resize.Bilinear)
}
