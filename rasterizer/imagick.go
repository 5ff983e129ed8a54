//go:build imagick

package rasterizer

import (
	"bytes"
	"image/png"
	"io"
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/gographics/imagick.v2/imagick"

	"pdftiff/contracts"
	"pdftiff/observability"
)

var imagickInit sync.Once

func init() {
	register("imagick", func(l observability.Logger) (contracts.Rasterizer, error) {
		return NewImageMagick(l), nil
	})
}

// ImageMagick renders pages through MagickWand, which delegates PDF input
// to Ghostscript.
type ImageMagick struct {
	logger observability.Logger
}

func NewImageMagick(logger observability.Logger) *ImageMagick {
	imagickInit.Do(imagick.Initialize)
	return &ImageMagick{logger: observability.OrNop(logger)}
}

func (m *ImageMagick) Rasterize(r io.Reader, dpi int) ([]contracts.PageImage, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "read pdf")
	}
	if dpi <= 0 {
		dpi = renderDPI
	}

	mw := imagick.NewMagickWand()
	defer mw.Destroy()
	// density has to be set before the read to take effect
	if err := mw.SetResolution(float64(dpi), float64(dpi)); err != nil {
		return nil, errors.Wrap(err, "set density")
	}
	if err := mw.ReadImageBlob(data); err != nil {
		return nil, errors.Wrap(err, "read pdf")
	}

	n := int(mw.GetNumberImages())
	pages := make([]contracts.PageImage, 0, n)
	for i := 0; i < n; i++ {
		mw.SetIteratorIndex(i)
		if err := mw.SetImageFormat("PNG"); err != nil {
			return nil, errors.Wrapf(err, "page %d", i)
		}
		img, err := png.Decode(bytes.NewReader(mw.GetImageBlob()))
		if err != nil {
			return nil, errors.Wrapf(err, "decode page %d", i)
		}
		page, err := contracts.NewPageImage(img, float64(dpi), float64(dpi), 1, i)
		if err != nil {
			return nil, err
		}
		pages = append(pages, page)
	}
	m.logger.Debug("imagemagick rendered document", observability.Int("pages", n))
	return pages, nil
}
