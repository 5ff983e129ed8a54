package imaging

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"

	"pdftiff/contracts"
)

// Classify reports what the pixels of img actually contain. Partially
// transparent pixels are judged as composited onto white.
func Classify(img image.Image) contracts.ColorClass {
	switch m := img.(type) {
	case *image.Paletted:
		return classifyPaletted(m)
	case *image.Gray:
		return classifyGray(m)
	}

	b := img.Bounds()
	binary := true
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl := flatten(img.At(x, y))
			if r != g || g != bl {
				return contracts.ClassRGB
			}
			if r != 0 && r != 0xFF {
				binary = false
			}
		}
	}
	if binary {
		return contracts.ClassBinary
	}
	return contracts.ClassGray
}

func classifyPaletted(m *image.Paletted) contracts.ColorClass {
	var used [256]bool
	b := m.Rect
	for y := 0; y < b.Dy(); y++ {
		row := m.Pix[y*m.Stride : y*m.Stride+b.Dx()]
		for _, idx := range row {
			used[idx] = true
		}
	}
	for idx, u := range used {
		if !u || idx >= len(m.Palette) {
			continue
		}
		r, g, bl := flatten(m.Palette[idx])
		if r != g || g != bl || (r != 0 && r != 0xFF) {
			return contracts.ClassIndexed
		}
	}
	return contracts.ClassBinary
}

func classifyGray(m *image.Gray) contracts.ColorClass {
	b := m.Rect
	for y := 0; y < b.Dy(); y++ {
		row := m.Pix[y*m.Stride : y*m.Stride+b.Dx()]
		for _, v := range row {
			if v != 0 && v != 0xFF {
				return contracts.ClassGray
			}
		}
	}
	return contracts.ClassBinary
}

// flatten composites c onto white and returns 8-bit channels.
func flatten(c color.Color) (uint8, uint8, uint8) {
	r, g, b, a := c.RGBA()
	bg := 0xFFFF - a
	return uint8((r + bg) >> 8), uint8((g + bg) >> 8), uint8((b + bg) >> 8)
}

// ToGray returns img as an 8-bit gray raster anchored at the origin with no
// row padding. A raster already in that form is returned as is.
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Rect.Min == (image.Point{}) && g.Stride == g.Rect.Dx() {
		return g
	}
	b := img.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Rect, image.White, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Rect, img, b.Min, draw.Over)
	return dst
}

// ToRGB returns an opaque RGBA raster anchored at the origin. Transparency
// is removed by compositing onto white.
func ToRGB(img image.Image) *image.RGBA {
	if m, ok := img.(*image.RGBA); ok && m.Rect.Min == (image.Point{}) && m.Stride == 4*m.Rect.Dx() && m.Opaque() {
		return m
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Rect, image.White, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Rect, img, b.Min, draw.Over)
	return dst
}

// ApplyColorHint converts img as the hint asks and returns the class the
// encoder should treat the result as. An explicit RGB hint keeps the page in
// color even when every pixel happens to be gray.
func ApplyColorHint(img image.Image, hint contracts.ColorHint) (image.Image, contracts.ColorClass) {
	switch hint {
	case contracts.ColorRGB:
		return ToRGB(img), contracts.ClassRGB
	case contracts.ColorGray:
		g := ToGray(img)
		return g, classifyGray(g)
	case contracts.ColorBinary:
		return Binarize(img), contracts.ClassBinary
	}
	return img, Classify(img)
}
