package converter

import (
	"bytes"
	"image"
	"image/jpeg"
	"math"

	"github.com/klauspost/compress/zlib"
	"github.com/pkg/errors"

	"pdftiff/ccittg4"
	"pdftiff/contracts"
	"pdftiff/imaging"
)

// pixelCodec compresses a normalized raster of the given class. It fills
// the pixel geometry of the result; resolution and index are set by the
// caller.
type pixelCodec func(img image.Image, class contracts.ColorClass, quality float64) (*contracts.EncodedPage, error)

// builtinCodecs lists the codecs compiled into the binary.
var builtinCodecs = map[contracts.Compression]pixelCodec{
	contracts.CompressionJPEG:     encodeJPEG,
	contracts.CompressionLossless: encodeFlate,
	contracts.CompressionCCITT:    encodeCCITT,
}

// jpegQuality maps a quality factor in [0,1] to the 1..100 scale.
func jpegQuality(q float64) int {
	v := int(math.Round(q * 100))
	if v < 1 {
		return 1
	}
	if v > 100 {
		return 100
	}
	return v
}

func encodeJPEG(img image.Image, class contracts.ColorClass, quality float64) (*contracts.EncodedPage, error) {
	var src image.Image
	comps := 3
	if class == contracts.ClassBinary || class == contracts.ClassGray {
		src = imaging.ToGray(img)
		comps = 1
	} else {
		src = imaging.ToRGB(img)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, &jpeg.Options{Quality: jpegQuality(quality)}); err != nil {
		return nil, errors.Wrap(err, "jpeg encode")
	}
	b := src.Bounds()
	return &contracts.EncodedPage{
		Data:             buf.Bytes(),
		Mode:             contracts.CompressionJPEG,
		Class:            class,
		Width:            b.Dx(),
		Height:           b.Dy(),
		Components:       comps,
		BitsPerComponent: 8,
		Raster:           src,
	}, nil
}

// encodeFlate stores binary pages as 1-bit rows, gray pages as 8-bit gray and
// everything else as 8-bit RGB, all zlib compressed.
func encodeFlate(img image.Image, class contracts.ColorClass, _ float64) (*contracts.EncodedPage, error) {
	var (
		raw   []byte
		src   image.Image
		comps = 1
		bpc   = 8
	)
	switch class {
	case contracts.ClassBinary:
		g := imaging.ToGray(img)
		raw, src, bpc = imaging.PackWhiteIsOne(g), g, 1
	case contracts.ClassGray:
		g := imaging.ToGray(img)
		raw, src = g.Pix, g
	default:
		m := imaging.ToRGB(img)
		raw = make([]byte, 0, m.Rect.Dx()*m.Rect.Dy()*3)
		for i := 0; i < len(m.Pix); i += 4 {
			raw = append(raw, m.Pix[i], m.Pix[i+1], m.Pix[i+2])
		}
		src, comps = m, 3
	}

	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return nil, errors.Wrap(err, "zlib writer")
	}
	if _, err := zw.Write(raw); err != nil {
		return nil, errors.Wrap(err, "zlib write")
	}
	if err := zw.Close(); err != nil {
		return nil, errors.Wrap(err, "zlib close")
	}
	b := src.Bounds()
	return &contracts.EncodedPage{
		Data:             buf.Bytes(),
		Mode:             contracts.CompressionLossless,
		Class:            class,
		Width:            b.Dx(),
		Height:           b.Dy(),
		Components:       comps,
		BitsPerComponent: bpc,
		Raster:           src,
	}, nil
}

func encodeCCITT(img image.Image, class contracts.ColorClass, _ float64) (*contracts.EncodedPage, error) {
	if class != contracts.ClassBinary {
		return nil, errors.Errorf("ccitt needs binary content, got %s", class)
	}
	g := imaging.ToGray(img)
	w, h := g.Rect.Dx(), g.Rect.Dy()
	data, err := ccittg4.EncodePacked(ccittg4.PackGray(g.Pix, w, h), w, h)
	if err != nil {
		return nil, errors.Wrap(err, "ccitt g4 encode")
	}
	return &contracts.EncodedPage{
		Data:             data,
		Mode:             contracts.CompressionCCITT,
		Class:            class,
		Width:            w,
		Height:           h,
		Components:       1,
		BitsPerComponent: 1,
		Raster:           g,
	}, nil
}
