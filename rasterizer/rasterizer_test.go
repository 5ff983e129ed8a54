package rasterizer

import (
	"bufio"
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os/exec"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/phpdave11/gofpdf"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdftiff/contracts"
	"pdftiff/pdf_writer"
)

func grayFlatePage(t *testing.T, w, h int, dpi float64) *contracts.EncodedPage {
	raw := make([]byte, w*h)
	for i := range raw {
		raw[i] = uint8(i)
	}
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	_, err := zw.Write(raw)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return &contracts.EncodedPage{
		Data: buf.Bytes(), Mode: contracts.CompressionLossless, Class: contracts.ClassGray,
		Width: w, Height: h, Components: 1, BitsPerComponent: 8, DpiX: dpi, DpiY: dpi,
	}
}

func rgbJPEGPage(t *testing.T, w, h int, dpi float64) *contracts.EncodedPage {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 20, 120, 220, 255
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return &contracts.EncodedPage{
		Data: buf.Bytes(), Mode: contracts.CompressionJPEG, Class: contracts.ClassRGB,
		Width: w, Height: h, Components: 3, BitsPerComponent: 8, DpiX: dpi, DpiY: dpi,
	}
}

func nativePDF(t *testing.T, pages ...*contracts.EncodedPage) []byte {
	t.Helper()
	var buf bytes.Buffer
	pw, err := pdf_writer.NewPDFWriter(&buf)
	require.NoError(t, err)
	for _, p := range pages {
		require.NoError(t, pw.WritePage(p))
	}
	require.NoError(t, pw.Finish())
	return buf.Bytes()
}

func TestRegistry(t *testing.T) {
	r, err := New("", nil)
	require.NoError(t, err)
	assert.IsType(t, &ImageExtractor{}, r)

	_, err = New("no-such-backend", nil)
	assert.Error(t, err)
	assert.Contains(t, Names(), Default)

	want := Default
	if _, err := exec.LookPath("gs"); err == nil {
		want = "ghostscript"
	}
	assert.Equal(t, want, Preferred())
}

func TestImageExtractorResamples(t *testing.T) {
	data := nativePDF(t,
		grayFlatePage(t, 40, 20, 50),
		rgbJPEGPage(t, 30, 30, 150),
	)

	pages, err := NewImageExtractor(nil).Rasterize(bytes.NewReader(data), 100)
	require.NoError(t, err)
	require.Len(t, pages, 2)

	assert.Equal(t, image.Rect(0, 0, 80, 40), pages[0].Raster.Bounds())
	assert.Equal(t, image.Rect(0, 0, 20, 20), pages[1].Raster.Bounds())
	for i, p := range pages {
		assert.Equal(t, i, p.Index)
		assert.InDelta(t, 100.0, p.DpiX, 1e-9)
		assert.InDelta(t, 100.0, p.DpiY, 1e-9)
	}
}

func TestImageExtractorNativeResolution(t *testing.T) {
	data := nativePDF(t, grayFlatePage(t, 40, 20, 50))

	pages, err := NewImageExtractor(nil).Rasterize(bytes.NewReader(data), 0)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, image.Rect(0, 0, 40, 20), pages[0].Raster.Bounds())
	assert.InDelta(t, 50.0, pages[0].DpiX, 0.01)
}

func TestImageExtractorVectorPage(t *testing.T) {
	pdf := gofpdf.New("P", "pt", "A4", "")
	pdf.AddPage()
	pdf.Rect(10, 10, 100, 100, "F")
	var buf bytes.Buffer
	require.NoError(t, pdf.Output(&buf))

	_, err := NewImageExtractor(nil).Rasterize(bytes.NewReader(buf.Bytes()), 72)
	assert.True(t, errors.Is(err, ErrNoRaster), "got %v", err)
}

func blackPNG(t *testing.T, w, h int) []byte {
	img := image.NewGray(image.Rect(0, 0, w, h))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func gofpdfDoc(t *testing.T, draw func(pdf *gofpdf.Fpdf)) []byte {
	t.Helper()
	pdf := gofpdf.New("P", "pt", "A4", "")
	pdf.AddPage()
	draw(pdf)
	var buf bytes.Buffer
	require.NoError(t, pdf.Output(&buf))
	return buf.Bytes()
}

func TestImageExtractorRejectsLogoAndText(t *testing.T) {
	data := gofpdfDoc(t, func(pdf *gofpdf.Fpdf) {
		opts := gofpdf.ImageOptions{ImageType: "PNG"}
		pdf.RegisterImageOptionsReader("logo", opts, bytes.NewReader(blackPNG(t, 100, 100)))
		pdf.ImageOptions("logo", 40, 40, 100, 100, false, opts, 0, "")
		pdf.SetFont("Helvetica", "", 12)
		pdf.Text(40, 400, "Quarterly report")
	})

	_, err := NewImageExtractor(nil).Rasterize(bytes.NewReader(data), 72)
	assert.True(t, errors.Is(err, ErrNoRaster), "got %v", err)
}

func TestImageExtractorRejectsPartialImage(t *testing.T) {
	// a square image on an A4 page leaves most of the page uncovered
	data := gofpdfDoc(t, func(pdf *gofpdf.Fpdf) {
		opts := gofpdf.ImageOptions{ImageType: "PNG"}
		pdf.RegisterImageOptionsReader("logo", opts, bytes.NewReader(blackPNG(t, 100, 100)))
		pdf.ImageOptions("logo", 40, 40, 100, 100, false, opts, 0, "")
	})

	_, err := NewImageExtractor(nil).Rasterize(bytes.NewReader(data), 72)
	assert.True(t, errors.Is(err, ErrNoRaster), "got %v", err)
}

func TestImageExtractorFullPageGofpdf(t *testing.T) {
	data := gofpdfDoc(t, func(pdf *gofpdf.Fpdf) {
		w, h := pdf.GetPageSize()
		opts := gofpdf.ImageOptions{ImageType: "PNG"}
		pdf.RegisterImageOptionsReader("scan", opts, bytes.NewReader(blackPNG(t, 595, 842)))
		pdf.ImageOptions("scan", 0, 0, w, h, false, opts, 0, "")
	})

	pages, err := NewImageExtractor(nil).Rasterize(bytes.NewReader(data), 0)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, image.Rect(0, 0, 595, 842), pages[0].Raster.Bounds())
	assert.InDelta(t, 72.0, pages[0].DpiX, 0.1)
}

func TestScanContent(t *testing.T) {
	ops := scanContent([]byte("q 100 0 0 50 0 0 cm /Im1 Do Q"))
	assert.Equal(t, pageOps{draws: 1}, ops)

	ops = scanContent([]byte("0.57 w 0 G q 10 0 0 10 5 5 cm /I1 Do Q BT /F1 12 Tf 40 400 Td (Do f \\) S) Tj ET"))
	assert.Equal(t, 1, ops.draws)
	assert.Equal(t, 1, ops.text)
	assert.Zero(t, ops.paints)

	ops = scanContent([]byte("% comment Do\n10 10 100 100 re f <</MCID 0>> BDC EMC"))
	assert.Zero(t, ops.draws)
	assert.Equal(t, 1, ops.paints)

	assert.True(t, scanContent([]byte("q BI /W 1 /H 1 ID \x00Do EI Q")).inline)
}

func TestDecodePNGStream(t *testing.T) {
	var stream bytes.Buffer
	for _, v := range []uint8{0x10, 0x80, 0xF0} {
		img := image.NewGray(image.Rect(0, 0, 3, 2))
		for i := range img.Pix {
			img.Pix[i] = v
		}
		require.NoError(t, png.Encode(&stream, img))
	}

	imgs, err := decodePNGStream(bufio.NewReader(&stream))
	require.NoError(t, err)
	require.Len(t, imgs, 3)
	assert.Equal(t, color.Gray{Y: 0x80}, color.GrayModel.Convert(imgs[1].At(1, 1)))

	_, err = decodePNGStream(bufio.NewReader(bytes.NewReader([]byte("garbage"))))
	assert.Error(t, err)
}

func TestGhostscript(t *testing.T) {
	if _, err := exec.LookPath("gs"); err != nil {
		t.Skip("gs not installed")
	}
	g, err := NewGhostscript("", nil)
	require.NoError(t, err)

	data := nativePDF(t, grayFlatePage(t, 72, 36, 72), grayFlatePage(t, 36, 36, 72))
	pages, err := g.Rasterize(bytes.NewReader(data), 144)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, 144, pages[0].Raster.Bounds().Dx())
	assert.Equal(t, 72, pages[0].Raster.Bounds().Dy())
	assert.Equal(t, 144.0, pages[1].DpiX)
}
