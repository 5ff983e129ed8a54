package pdf_writer

import (
	"bytes"
	"fmt"
	"image/png"
	"io"
	"time"

	"github.com/phpdave11/gofpdf"

	"pdftiff/contracts"
)

// fixed so that identical input always gives identical bytes
var gofpdfCreationDate = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// GofpdfWriter lays pages out with gofpdf. JPEG pages are embedded as they
// are; lossless pages are handed over as PNG, which gofpdf stores with
// FlateDecode. gofpdf has no CCITT support.
type GofpdfWriter struct {
	pdf *gofpdf.Fpdf
	dst io.Writer
	n   int
}

func NewGofpdfWriter(dst io.Writer) *GofpdfWriter {
	pdf := gofpdf.NewCustom(&gofpdf.InitType{UnitStr: "pt"})
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCreationDate(gofpdfCreationDate)
	pdf.SetModificationDate(gofpdfCreationDate)
	pdf.SetCatalogSort(true)
	return &GofpdfWriter{pdf: pdf, dst: dst}
}

func (g *GofpdfWriter) WritePage(page *contracts.EncodedPage) error {
	var (
		data []byte
		opts gofpdf.ImageOptions
	)
	switch page.Mode {
	case contracts.CompressionJPEG:
		data, opts = page.Data, gofpdf.ImageOptions{ImageType: "JPG", ReadDpi: false}
	case contracts.CompressionLossless:
		if page.Raster == nil {
			return fmt.Errorf("lossless page %d has no raster", page.Index)
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, page.Raster); err != nil {
			return fmt.Errorf("error encoding PNG: %v", err)
		}
		data, opts = buf.Bytes(), gofpdf.ImageOptions{ImageType: "PNG", ReadDpi: false}
	default:
		return fmt.Errorf("gofpdf backend does not support %s", page.Mode)
	}

	width, height := page.WidthPoints(), page.HeightPoints()
	imageID := fmt.Sprintf("img_%d", g.n)
	g.n++

	g.pdf.AddPageFormat("P", gofpdf.SizeType{Wd: width, Ht: height})
	g.pdf.RegisterImageOptionsReader(imageID, opts, bytes.NewReader(data))
	g.pdf.ImageOptions(imageID, 0, 0, width, height, false, opts, 0, "")
	if err := g.pdf.Error(); err != nil {
		return fmt.Errorf("error adding page: %v", err)
	}
	return nil
}

func (g *GofpdfWriter) Finish() error {
	if g.n == 0 {
		return fmt.Errorf("pdf has no pages")
	}
	if err := g.pdf.Output(g.dst); err != nil {
		return fmt.Errorf("error saving PDF file: %v", err)
	}
	return nil
}

// GofpdfFactory opens GofpdfWriters. CCITT is not offered, so AUTO never
// picks it and an explicit CCITT request on binary pages fails.
type GofpdfFactory struct{}

func (GofpdfFactory) NewWriter(dst io.Writer) (contracts.ContainerWriter, error) {
	return NewGofpdfWriter(dst), nil
}

func (GofpdfFactory) Modes() []contracts.Compression {
	return []contracts.Compression{contracts.CompressionJPEG, contracts.CompressionLossless}
}
