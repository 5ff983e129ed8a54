//go:build vips

package rasterizer

import (
	"io"
	"sync"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/pkg/errors"

	"pdftiff/contracts"
	"pdftiff/observability"
)

var vipsStartup sync.Once

func init() {
	register("vips", func(l observability.Logger) (contracts.Rasterizer, error) {
		return NewVips(l), nil
	})
}

// Vips renders pages with libvips, which loads PDFs through poppler or
// pdfium.
type Vips struct {
	logger observability.Logger
}

func NewVips(logger observability.Logger) *Vips {
	vipsStartup.Do(func() { vips.Startup(nil) })
	return &Vips{logger: observability.OrNop(logger)}
}

func (v *Vips) Rasterize(r io.Reader, dpi int) ([]contracts.PageImage, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "read pdf")
	}
	if dpi <= 0 {
		dpi = renderDPI
	}

	probe, err := vips.LoadImageFromBuffer(data, vips.NewImportParams())
	if err != nil {
		return nil, errors.Wrap(err, "load pdf")
	}
	n := probe.Pages()
	probe.Close()

	pages := make([]contracts.PageImage, 0, n)
	for i := 0; i < n; i++ {
		params := vips.NewImportParams()
		params.Density.Set(dpi)
		params.Page.Set(i)
		params.NumPages.Set(1)
		ref, err := vips.LoadImageFromBuffer(data, params)
		if err != nil {
			return nil, errors.Wrapf(err, "render page %d", i)
		}
		img, err := ref.ToImage(vips.NewDefaultExportParams())
		ref.Close()
		if err != nil {
			return nil, errors.Wrapf(err, "export page %d", i)
		}
		page, err := contracts.NewPageImage(img, float64(dpi), float64(dpi), 1, i)
		if err != nil {
			return nil, err
		}
		pages = append(pages, page)
	}
	v.logger.Debug("vips rendered document", observability.Int("pages", n))
	return pages, nil
}
