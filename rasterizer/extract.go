package rasterizer

import (
	"bytes"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pkg/errors"
	_ "golang.org/x/image/tiff"

	"pdftiff/contracts"
	"pdftiff/imaging"
	"pdftiff/observability"
)

var disableConfigDir sync.Once

// ImageExtractor rasterizes scanned PDFs with pdfcpu. Every page must be a
// single image drawn over the whole MediaBox: no text, no painted paths and
// an image whose aspect ratio matches the page. Anything else fails with
// ErrNoRaster, since the page cannot be reproduced without rendering.
type ImageExtractor struct {
	logger observability.Logger
}

func NewImageExtractor(logger observability.Logger) *ImageExtractor {
	disableConfigDir.Do(api.DisableConfigDir)
	return &ImageExtractor{logger: observability.OrNop(logger)}
}

func (e *ImageExtractor) config() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	conf.Cmd = model.EXTRACTIMAGES
	return conf
}

// Rasterize returns one page image per PDF page at dpi. A dpi of zero keeps
// each image's own resolution.
func (e *ImageExtractor) Rasterize(r io.Reader, dpi int) ([]contracts.PageImage, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "read pdf")
	}
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), e.config())
	if err != nil {
		return nil, errors.Wrap(err, "read pdf")
	}
	dims, err := ctx.PageDims()
	if err != nil {
		return nil, errors.Wrap(err, "read page sizes")
	}
	if len(dims) != ctx.PageCount {
		return nil, errors.New("corrupt page dimensions")
	}

	pages := make([]contracts.PageImage, 0, len(dims))
	for i, dim := range dims {
		if dim.Width <= 0 || dim.Height <= 0 {
			return nil, errors.Errorf("page %d: empty media box", i)
		}
		img, err := e.pageImage(ctx, i+1)
		if err != nil {
			return nil, errors.Wrapf(err, "page %d", i)
		}
		b := img.Bounds()
		if !sameAspect(b.Dx(), b.Dy(), dim.Width, dim.Height) {
			return nil, errors.Wrapf(ErrNoRaster, "page %d: image does not cover the page", i)
		}
		dpiX := float64(b.Dx()) * contracts.PointsPerInch / dim.Width
		dpiY := float64(b.Dy()) * contracts.PointsPerInch / dim.Height

		if dpi > 0 {
			binary := imaging.Classify(img) == contracts.ClassBinary
			img, dpiX, dpiY = imaging.Resample(img, dpiX, dpiY, dpi, binary)
		}
		page, err := contracts.NewPageImage(img, dpiX, dpiY, 1, i)
		if err != nil {
			return nil, err
		}
		e.logger.Debug("page extracted",
			observability.Int("page", i),
			observability.Int("width", img.Bounds().Dx()),
			observability.Int("height", img.Bounds().Dy()),
		)
		pages = append(pages, page)
	}
	return pages, nil
}

// pageImage returns the decoded image of a page made of exactly one image.
func (e *ImageExtractor) pageImage(ctx *model.Context, pageNr int) (image.Image, error) {
	content, err := pdfcpu.ExtractPageContent(ctx, pageNr)
	if err != nil {
		return nil, errors.Wrap(err, "read content")
	}
	raw, err := io.ReadAll(content)
	if err != nil {
		return nil, errors.Wrap(err, "read content")
	}
	ops := scanContent(raw)
	if ops.text > 0 || ops.paints > 0 || ops.inline {
		return nil, errors.Wrap(ErrNoRaster, "page has vector content")
	}
	if ops.draws != 1 {
		return nil, errors.Wrapf(ErrNoRaster, "page draws %d objects", ops.draws)
	}

	mm, err := pdfcpu.ExtractPageImages(ctx, pageNr, false)
	if err != nil {
		return nil, errors.Wrap(err, "extract images")
	}
	var found []model.Image
	for _, m := range mm {
		if !m.Thumb && !m.IsImgMask {
			found = append(found, m)
		}
	}
	if len(found) != 1 {
		return nil, errors.Wrapf(ErrNoRaster, "page holds %d images", len(found))
	}
	img, _, err := image.Decode(found[0])
	if err != nil {
		e.logger.Warn("undecodable image",
			observability.Int("page", pageNr-1),
			observability.String("type", found[0].FileType),
			observability.Error("error", err),
		)
		return nil, errors.Wrap(ErrNoRaster, err.Error())
	}
	return img, nil
}

// sameAspect reports whether a w x h image stretched over the page keeps
// its proportions, within one pixel or one percent.
func sameAspect(w, h int, pageW, pageH float64) bool {
	want := float64(w) * pageH / pageW
	return math.Abs(want-float64(h)) <= math.Max(1, 0.01*float64(h))
}

type pageOps struct {
	draws  int
	text   int
	paints int
	inline bool
}

// scanContent counts the operators of a content stream that put marks on
// the page. Operands, strings and dictionaries are skipped.
func scanContent(b []byte) pageOps {
	var ops pageOps
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case isSpace(c):
			i++
		case c == '%':
			for i < len(b) && b[i] != '\n' && b[i] != '\r' {
				i++
			}
		case c == '(':
			i = skipString(b, i)
		case c == '<':
			if i+1 < len(b) && b[i+1] == '<' {
				i += 2
				continue
			}
			for i < len(b) && b[i] != '>' {
				i++
			}
			i++
		case c == '/':
			i++
			for i < len(b) && isRegular(b[i]) {
				i++
			}
		case !isRegular(c):
			i++
		default:
			j := i
			for j < len(b) && isRegular(b[j]) {
				j++
			}
			switch string(b[i:j]) {
			case "Do":
				ops.draws++
			case "BT":
				ops.text++
			case "S", "s", "f", "F", "f*", "B", "B*", "b", "b*", "sh":
				ops.paints++
			case "BI":
				// inline image data is binary, stop here
				ops.inline = true
				return ops
			}
			i = j
		}
	}
	return ops
}

// skipString returns the index after the literal string starting at i.
func skipString(b []byte, i int) int {
	depth := 0
	for ; i < len(b); i++ {
		switch b[i] {
		case '\\':
			i++
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return i
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f', 0:
		return true
	}
	return false
}

func isRegular(c byte) bool {
	if isSpace(c) {
		return false
	}
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return false
	}
	return true
}
