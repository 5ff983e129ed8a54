package imaging

import "image"

// OtsuThreshold returns the gray level that best separates dark from light
// pixels. ok is false when the histogram has a single populated level and no
// split exists.
func OtsuThreshold(gray []byte) (threshold uint8, ok bool) {
	var hist [256]int
	for _, v := range gray {
		hist[v]++
	}
	total := len(gray)
	sum := 0
	for i, c := range hist {
		sum += i * c
	}
	sumB, wB := 0, 0
	var maxVar float64
	for i, c := range hist {
		wB += c
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += i * c
		mB := float64(sumB) / float64(wB)
		mF := float64(sum-sumB) / float64(wF)
		varBetween := float64(wB) * float64(wF) * (mB - mF) * (mB - mF)
		if varBetween > maxVar {
			maxVar = varBetween
			threshold = uint8(i)
			ok = true
		}
	}
	return threshold, ok
}

// Binarize thresholds img with Otsu's method. Pixels at or below the
// threshold become black (0), the rest white (255). Single-level images fall
// back to a fixed threshold of 128.
func Binarize(img image.Image) *image.Gray {
	g := ToGray(img)
	thresh, ok := OtsuThreshold(g.Pix)
	out := image.NewGray(g.Rect)
	for i, v := range g.Pix {
		dark := v < 128
		if ok {
			dark = v <= thresh
		}
		if !dark {
			out.Pix[i] = 0xFF
		}
	}
	return out
}

// threshold128 maps every pixel to 0 or 255 around the midpoint.
func threshold128(g *image.Gray) *image.Gray {
	out := image.NewGray(g.Rect)
	for i, v := range g.Pix {
		if v >= 128 {
			out.Pix[i] = 0xFF
		}
	}
	return out
}

// PackWhiteIsOne packs a compact gray raster into MSB-first rows, one bit per
// pixel, with a set bit for white (value >= 128). This is the sample layout
// of 1-bit DeviceGray in PDF and BlackIsZero in TIFF.
func PackWhiteIsOne(g *image.Gray) []byte {
	width, height := g.Rect.Dx(), g.Rect.Dy()
	rowBytes := (width + 7) / 8
	out := make([]byte, rowBytes*height)

	for y := 0; y < height; y++ {
		dstRowStart := y * rowBytes
		srcRowStart := y * g.Stride
		var b byte
		bitPos := 7

		for x := 0; x < width; x++ {
			if g.Pix[srcRowStart+x] >= 128 {
				b |= 1 << bitPos
			}
			bitPos--
			if bitPos < 0 {
				out[dstRowStart] = b
				dstRowStart++
				b = 0
				bitPos = 7
			}
		}

		// if the last byte is not full, write it
		if bitPos != 7 {
			out[dstRowStart] = b
		}
	}
	return out
}
