package converter

import (
	"bytes"
	"image"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdftiff/contracts"
	"pdftiff/observability"
	"pdftiff/pdf_writer"
	"pdftiff/tiff_writer"
)

func grayRaster(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(i * 3)
	}
	return img
}

func binaryRaster(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x/4+y/4)%2 == 0 {
				img.Pix[y*w+x] = 0xFF
			}
		}
	}
	return img
}

// noiseRaster is an RGB image that compresses poorly without loss.
func noiseRaster(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	seed := uint32(12345)
	for i := 0; i < len(img.Pix); i += 4 {
		for c := 0; c < 3; c++ {
			seed = seed*1664525 + 1013904223
			img.Pix[i+c] = uint8(seed >> 24)
		}
		img.Pix[i+3] = 0xFF
	}
	return img
}

func newPage(t *testing.T, img image.Image, dpiX, dpiY float64, orientation, index int) contracts.PageImage {
	t.Helper()
	p, err := contracts.NewPageImage(img, dpiX, dpiY, orientation, index)
	require.NoError(t, err)
	return p
}

func profile(t *testing.T, c contracts.Compression, q float64, dpi int) contracts.QualityProfile {
	t.Helper()
	p, err := contracts.NewQualityProfile(c, q, dpi, contracts.ColorAuto)
	require.NoError(t, err)
	return p
}

type fakeSource struct {
	pages []contracts.PageImage
	err   error
	calls int
	dpi   int
}

func (f *fakeSource) Rasterize(_ io.Reader, dpi int) ([]contracts.PageImage, error) {
	f.calls++
	f.dpi = dpi
	return f.pages, f.err
}

func (f *fakeSource) Decode(io.Reader) ([]contracts.PageImage, error) {
	f.calls++
	return f.pages, f.err
}

// recordingFactory counts opened containers and keeps every page written.
type recordingFactory struct {
	inner  contracts.ContainerFactory
	mu     sync.Mutex
	opened int
	pages  []*contracts.EncodedPage
}

func (f *recordingFactory) NewWriter(dst io.Writer) (contracts.ContainerWriter, error) {
	f.mu.Lock()
	f.opened++
	f.mu.Unlock()
	w, err := f.inner.NewWriter(dst)
	if err != nil {
		return nil, err
	}
	return &recordingWriter{inner: w, f: f}, nil
}

func (f *recordingFactory) Modes() []contracts.Compression { return f.inner.Modes() }

type recordingWriter struct {
	inner contracts.ContainerWriter
	f     *recordingFactory
}

func (w *recordingWriter) WritePage(p *contracts.EncodedPage) error {
	w.f.mu.Lock()
	w.f.pages = append(w.f.pages, p)
	w.f.mu.Unlock()
	return w.inner.WritePage(p)
}

func (w *recordingWriter) Finish() error { return w.inner.Finish() }

type discardContainer struct{ pages []*contracts.EncodedPage }

func (d *discardContainer) WritePage(p *contracts.EncodedPage) error {
	d.pages = append(d.pages, p)
	return nil
}

func (d *discardContainer) Finish() error { return nil }

func TestResolve(t *testing.T) {
	all := NewResolver([]contracts.Compression{contracts.CompressionJPEG, contracts.CompressionCCITT})
	noJPEG := NewResolver([]contracts.Compression{contracts.CompressionCCITT})

	tests := []struct {
		name      string
		r         *Resolver
		requested contracts.Compression
		class     contracts.ColorClass
		want      contracts.Compression
		fallback  bool
	}{
		{"auto binary", all, contracts.CompressionAuto, contracts.ClassBinary, contracts.CompressionLossless, false},
		{"auto indexed", all, contracts.CompressionAuto, contracts.ClassIndexed, contracts.CompressionLossless, false},
		{"auto gray", all, contracts.CompressionAuto, contracts.ClassGray, contracts.CompressionJPEG, false},
		{"auto rgb", all, contracts.CompressionAuto, contracts.ClassRGB, contracts.CompressionJPEG, false},
		{"auto rgb without jpeg", noJPEG, contracts.CompressionAuto, contracts.ClassRGB, contracts.CompressionLossless, false},
		{"ccitt binary", all, contracts.CompressionCCITT, contracts.ClassBinary, contracts.CompressionCCITT, false},
		{"ccitt rgb", all, contracts.CompressionCCITT, contracts.ClassRGB, contracts.CompressionLossless, true},
		{"ccitt gray", all, contracts.CompressionCCITT, contracts.ClassGray, contracts.CompressionLossless, true},
		{"jpeg binary", all, contracts.CompressionJPEG, contracts.ClassBinary, contracts.CompressionJPEG, false},
		{"lossless rgb", all, contracts.CompressionLossless, contracts.ClassRGB, contracts.CompressionLossless, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reason, err := tt.r.Resolve(tt.requested, tt.class)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.fallback, reason != "")
		})
	}
}

func TestResolverTable(t *testing.T) {
	assert.Equal(t, []contracts.Compression{contracts.CompressionLossless}, NewResolver(nil).Modes())

	r := NewResolver(pdf_writer.GofpdfFactory{}.Modes())
	assert.Equal(t, []contracts.Compression{contracts.CompressionJPEG, contracts.CompressionLossless}, r.Modes())
	_, _, err := r.Resolve(contracts.CompressionCCITT, contracts.ClassBinary)
	assert.True(t, errors.Is(err, ErrCodecUnavailable))

	_, _, err = NewResolver(nil).Resolve(contracts.CompressionJPEG, contracts.ClassRGB)
	assert.True(t, errors.Is(err, ErrCodecUnavailable))
}

func TestJPEGQuality(t *testing.T) {
	assert.Equal(t, 1, jpegQuality(0))
	assert.Equal(t, 80, jpegQuality(0.8))
	assert.Equal(t, 100, jpegQuality(1))
}

func TestEncodeJPEGFailureFallsBack(t *testing.T) {
	// image/jpeg refuses dimensions of 65536 and above
	img := grayRaster(1<<16, 1)
	enc := NewPageEncoder(NewResolver(tiff_writer.Factory{}.Modes()), nil)
	var dst discardContainer

	out := enc.Encode(newPage(t, img, 72, 72, 1, 0), profile(t, contracts.CompressionJPEG, 0.5, 0), &dst)
	require.Equal(t, RecoveredWithFallback, out.Kind, out.Reason)
	assert.Equal(t, contracts.CompressionLossless, out.Page.Mode)
	assert.Contains(t, out.Reason, "jpeg")
	assert.Len(t, dst.pages, 1)
}

func TestEncodeCodecGeometry(t *testing.T) {
	enc := NewPageEncoder(NewResolver(tiff_writer.Factory{}.Modes()), nil)
	tests := []struct {
		name       string
		img        image.Image
		mode       contracts.Compression
		components int
		bpc        int
	}{
		{"ccitt", binaryRaster(16, 8), contracts.CompressionCCITT, 1, 1},
		{"binary flate", binaryRaster(16, 8), contracts.CompressionLossless, 1, 1},
		{"gray flate", grayRaster(16, 8), contracts.CompressionLossless, 1, 8},
		{"rgb flate", noiseRaster(16, 8), contracts.CompressionLossless, 3, 8},
		{"gray jpeg", grayRaster(16, 8), contracts.CompressionJPEG, 1, 8},
		{"rgb jpeg", noiseRaster(16, 8), contracts.CompressionJPEG, 3, 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var dst discardContainer
			out := enc.Encode(newPage(t, tt.img, 96, 96, 1, 3), profile(t, tt.mode, 0.7, 0), &dst)
			require.Equal(t, Success, out.Kind, out.Reason)
			assert.Equal(t, tt.mode, out.Page.Mode)
			assert.Equal(t, tt.components, out.Page.Components)
			assert.Equal(t, tt.bpc, out.Page.BitsPerComponent)
			assert.Equal(t, 16, out.Page.Width)
			assert.Equal(t, 8, out.Page.Height)
			assert.Equal(t, 3, out.Page.Index)
			assert.Equal(t, 96.0, out.Page.DpiX)
		})
	}
}

func TestEncodeOrientationSwapsResolution(t *testing.T) {
	src := &fakeSource{pages: []contracts.PageImage{newPage(t, grayRaster(40, 20), 100, 50, 6, 0)}}
	pdf := &recordingFactory{inner: pdf_writer.Factory{}}
	c := New(WithDecoder(src), WithPDFWriter(pdf))

	_, err := c.Tiff2Pdf(bytes.NewReader(nil), io.Discard, profile(t, contracts.CompressionLossless, 1, 0))
	require.NoError(t, err)
	require.Len(t, pdf.pages, 1)
	p := pdf.pages[0]
	assert.Equal(t, 20, p.Width)
	assert.Equal(t, 40, p.Height)
	assert.Equal(t, 50.0, p.DpiX)
	assert.Equal(t, 100.0, p.DpiY)
	// 0.4in square before and after
	assert.InDelta(t, 0.4*72, p.WidthPoints(), 1e-9)
	assert.InDelta(t, 0.4*72, p.HeightPoints(), 1e-9)
}

func TestEncodeRescalesToTargetDPI(t *testing.T) {
	src := &fakeSource{pages: []contracts.PageImage{newPage(t, grayRaster(40, 30), 200, 100, 1, 0)}}
	tiff := &recordingFactory{inner: tiff_writer.Factory{}}
	c := New(WithRasterizer(src), WithTIFFWriter(tiff))

	_, err := c.Pdf2Tiff(bytes.NewReader(nil), io.Discard, 0, profile(t, contracts.CompressionLossless, 1, 100))
	require.NoError(t, err)
	assert.Equal(t, DefaultDPI, src.dpi)
	require.Len(t, tiff.pages, 1)
	p := tiff.pages[0]
	assert.Equal(t, 20, p.Width)
	assert.Equal(t, 30, p.Height)
	assert.Equal(t, 100.0, p.DpiX)
	assert.Equal(t, 100.0, p.DpiY)
}

func TestEmptyPagesWriteNothing(t *testing.T) {
	src := &fakeSource{}
	c := New(WithRasterizer(src), WithDecoder(src))
	plan, err := contracts.NewSizeControlPlan(1000, contracts.DefaultQualityProfile())
	require.NoError(t, err)

	var out bytes.Buffer
	_, err = c.Pdf2Tiff(bytes.NewReader(nil), &out, 72, contracts.DefaultQualityProfile())
	assert.True(t, errors.Is(err, ErrNoPages))
	_, err = c.Tiff2Pdf(bytes.NewReader(nil), &out, contracts.DefaultQualityProfile())
	assert.True(t, errors.Is(err, ErrNoPages))
	_, err = c.Pdf2TiffSized(bytes.NewReader(nil), &out, 72, plan)
	assert.True(t, errors.Is(err, ErrNoPages))
	_, err = c.Tiff2PdfSized(bytes.NewReader(nil), &out, plan)
	assert.EqualError(t, err, "no pages to convert")
	assert.Zero(t, out.Len())
}

func TestCCITTOnRGBFallsBack(t *testing.T) {
	src := &fakeSource{pages: []contracts.PageImage{
		newPage(t, binaryRaster(32, 32), 100, 100, 1, 0),
		newPage(t, noiseRaster(32, 32), 100, 100, 1, 1),
	}}
	rec := observability.NewRecorder()
	c := New(WithDecoder(src), WithLogger(rec))

	var out bytes.Buffer
	res, err := c.Tiff2Pdf(bytes.NewReader(nil), &out, profile(t, contracts.CompressionCCITT, 0.8, 0))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Pages)
	assert.Equal(t, int64(out.Len()), res.Size)
	require.Len(t, res.Diagnostics, 1)
	d := res.Diagnostics[0]
	assert.Equal(t, 1, d.Page)
	assert.Equal(t, contracts.CompressionCCITT, d.Requested)
	assert.Equal(t, contracts.CompressionLossless, d.Used)
	assert.Equal(t, 1, rec.Count("warn"))
	assert.True(t, bytes.HasPrefix(out.Bytes(), []byte("%PDF-")))
}

func TestUnavailableCodecIsFatal(t *testing.T) {
	src := &fakeSource{pages: []contracts.PageImage{newPage(t, binaryRaster(16, 16), 100, 100, 1, 0)}}
	c := New(WithDecoder(src), WithPDFWriter(pdf_writer.GofpdfFactory{}))

	var out bytes.Buffer
	_, err := c.Tiff2Pdf(bytes.NewReader(nil), &out, profile(t, contracts.CompressionCCITT, 0.8, 0))
	assert.True(t, errors.Is(err, ErrCodecUnavailable), "got %v", err)
	assert.Zero(t, out.Len())
}

func TestInvalidProfileRejected(t *testing.T) {
	c := New(WithDecoder(&fakeSource{}))
	_, err := c.Tiff2Pdf(bytes.NewReader(nil), io.Discard, contracts.QualityProfile{})
	assert.Error(t, err)
}

func TestSearchStopsAtFirstFit(t *testing.T) {
	pages := []contracts.PageImage{newPage(t, noiseRaster(64, 64), 72, 72, 1, 0)}
	p1 := profile(t, contracts.CompressionLossless, 1, 0)
	p2 := profile(t, contracts.CompressionJPEG, 0.3, 36)
	p3 := profile(t, contracts.CompressionJPEG, 0.9, 0)

	enc := NewPageEncoder(NewResolver(tiff_writer.Factory{}.Modes()), nil)
	var b1, b2 bytes.Buffer
	_, err := enc.EncodeDocument(pages, p1, tiff_writer.Factory{}, &b1)
	require.NoError(t, err)
	_, err = enc.EncodeDocument(pages, p2, tiff_writer.Factory{}, &b2)
	require.NoError(t, err)
	require.Greater(t, b1.Len(), b2.Len())

	plan, err := contracts.NewSizeControlPlan(int64(b2.Len()), p1, p2, p3)
	require.NoError(t, err)
	factory := &recordingFactory{inner: tiff_writer.Factory{}}
	rec := observability.NewRecorder()
	var out bytes.Buffer
	res, err := NewSearchController(enc, factory, rec).Run(pages, plan, &out)
	require.NoError(t, err)

	assert.Equal(t, 2, factory.opened, "third profile must not be evaluated")
	assert.Equal(t, 1, res.ProfileIndex)
	assert.True(t, res.BudgetMet)
	assert.Equal(t, []int64{int64(b1.Len()), int64(b2.Len())}, res.TrialSizes)
	assert.Equal(t, b2.Bytes(), out.Bytes())
	assert.Equal(t, 2, rec.Count("info"))
	assert.Zero(t, rec.Count("warn"))
}

func TestSearchExhaustedCommitsLast(t *testing.T) {
	src := &fakeSource{pages: []contracts.PageImage{newPage(t, grayRaster(32, 32), 72, 72, 1, 0)}}
	rec := observability.NewRecorder()
	c := New(WithDecoder(src), WithLogger(rec))
	plan, err := contracts.NewSizeControlPlan(1,
		profile(t, contracts.CompressionLossless, 1, 0),
		profile(t, contracts.CompressionJPEG, 0.5, 0),
	)
	require.NoError(t, err)

	var out bytes.Buffer
	res, err := c.Tiff2PdfSized(bytes.NewReader(nil), &out, plan)
	require.NoError(t, err)
	assert.False(t, res.BudgetMet)
	assert.Equal(t, 1, res.ProfileIndex)
	assert.Len(t, res.TrialSizes, 2)
	assert.Equal(t, int64(out.Len()), res.Size)
	assert.Equal(t, 1, rec.Count("warn"))
}

func TestDeterministicOutput(t *testing.T) {
	src := &fakeSource{pages: []contracts.PageImage{
		newPage(t, noiseRaster(40, 30), 150, 150, 1, 0),
		newPage(t, binaryRaster(24, 24), 300, 300, 8, 1),
		newPage(t, grayRaster(10, 10), 72, 72, 3, 2),
	}}
	plan, err := contracts.NewSizeControlPlan(4000,
		profile(t, contracts.CompressionLossless, 1, 0),
		profile(t, contracts.CompressionAuto, 0.6, 100),
		profile(t, contracts.CompressionJPEG, 0.2, 50),
	)
	require.NoError(t, err)

	for name, factory := range map[string]contracts.ContainerFactory{
		"native pdf": pdf_writer.Factory{},
		"gofpdf":     pdf_writer.GofpdfFactory{},
	} {
		t.Run(name, func(t *testing.T) {
			c := New(WithDecoder(src), WithPDFWriter(factory))
			var a, b bytes.Buffer
			ra, err := c.Tiff2PdfSized(bytes.NewReader(nil), &a, plan)
			require.NoError(t, err)
			rb, err := c.Tiff2PdfSized(bytes.NewReader(nil), &b, plan)
			require.NoError(t, err)
			assert.Equal(t, ra.ProfileIndex, rb.ProfileIndex)
			assert.Equal(t, a.Bytes(), b.Bytes())
		})
	}

	c := New(WithRasterizer(src))
	var a, b bytes.Buffer
	_, err = c.Pdf2TiffSized(bytes.NewReader(nil), &a, 72, plan)
	require.NoError(t, err)
	_, err = c.Pdf2TiffSized(bytes.NewReader(nil), &b, 72, plan)
	require.NoError(t, err)
	assert.Equal(t, a.Bytes(), b.Bytes())
}

func TestPagesFollowIndexOrder(t *testing.T) {
	src := &fakeSource{pages: []contracts.PageImage{
		newPage(t, grayRaster(3, 3), 72, 72, 1, 2),
		newPage(t, grayRaster(1, 1), 72, 72, 1, 0),
		newPage(t, grayRaster(2, 2), 72, 72, 1, 1),
	}}
	tiff := &recordingFactory{inner: tiff_writer.Factory{}}
	c := New(WithRasterizer(src), WithTIFFWriter(tiff))
	_, err := c.Pdf2Tiff(bytes.NewReader(nil), io.Discard, 72, profile(t, contracts.CompressionLossless, 1, 0))
	require.NoError(t, err)
	require.Len(t, tiff.pages, 3)
	for i, p := range tiff.pages {
		assert.Equal(t, i, p.Index)
		assert.Equal(t, i+1, p.Width)
	}
}

func TestRoundTrip(t *testing.T) {
	const dpi = 100
	src := &fakeSource{pages: []contracts.PageImage{
		newPage(t, grayRaster(100, 50), dpi, dpi, 1, 0),
		newPage(t, binaryRaster(64, 80), dpi, dpi, 1, 1),
		newPage(t, noiseRaster(30, 30), dpi, dpi, 1, 2),
	}}
	lossless := profile(t, contracts.CompressionLossless, 1, 0)

	var firstPDF bytes.Buffer
	_, err := New(WithDecoder(src)).Tiff2Pdf(bytes.NewReader(nil), &firstPDF, lossless)
	require.NoError(t, err)

	c := New()
	var tiff, again bytes.Buffer
	res, err := c.Pdf2Tiff(bytes.NewReader(firstPDF.Bytes()), &tiff, dpi, lossless)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Pages)
	res, err = c.Tiff2Pdf(bytes.NewReader(tiff.Bytes()), &again, lossless)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Pages)

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	want, err := api.PageDims(bytes.NewReader(firstPDF.Bytes()), conf)
	require.NoError(t, err)
	got, err := api.PageDims(bytes.NewReader(again.Bytes()), conf)
	require.NoError(t, err)
	require.Len(t, got, len(want))
	for i := range want {
		assert.InDelta(t, want[i].Width, got[i].Width, 0.72, "page %d width", i)
		assert.InDelta(t, want[i].Height, got[i].Height, 0.72, "page %d height", i)
	}
}

func TestFileEntryPoints(t *testing.T) {
	dir := t.TempDir()
	src := &fakeSource{pages: []contracts.PageImage{newPage(t, binaryRaster(16, 16), 200, 200, 1, 0)}}
	c := New(WithRasterizer(src))

	in := filepath.Join(dir, "in.pdf")
	require.NoError(t, os.WriteFile(in, []byte("%PDF-1.7"), 0o644))
	tiffPath := filepath.Join(dir, "out.tif")
	res, err := c.Pdf2TiffFile(in, tiffPath, 200, profile(t, contracts.CompressionCCITT, 0.8, 0))
	require.NoError(t, err)
	info, err := os.Stat(tiffPath)
	require.NoError(t, err)
	assert.Equal(t, res.Size, info.Size())
	_, err = os.Stat(tiffPath + ".tmp")
	assert.True(t, os.IsNotExist(err))

	pdfPath := filepath.Join(dir, "out.pdf")
	plan, err := contracts.NewSizeControlPlan(1<<20, contracts.DefaultQualityProfile())
	require.NoError(t, err)
	sres, err := New().Tiff2PdfSizedFile(tiffPath, pdfPath, plan)
	require.NoError(t, err)
	assert.True(t, sres.BudgetMet)
	data, err := os.ReadFile(pdfPath)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
}

func TestFileEntryPointsLeaveNoPartialOutput(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "broken.tif")
	require.NoError(t, os.WriteFile(garbage, []byte("II*\x00garbage"), 0o644))
	dst := filepath.Join(dir, "broken.pdf")

	_, err := New().Tiff2PdfFile(garbage, dst, contracts.DefaultQualityProfile())
	assert.Error(t, err)
	_, err = os.Stat(dst)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(dst + ".tmp")
	assert.True(t, os.IsNotExist(err))

	_, err = New().Tiff2PdfFile(filepath.Join(dir, "missing.tif"), dst, contracts.DefaultQualityProfile())
	assert.Error(t, err)
}

func TestRunOrdered(t *testing.T) {
	var got []int
	RunOrdered(6, 3, func(i int) error {
		// later tasks finish first
		time.Sleep(time.Duration(6-i) * time.Millisecond)
		if i == 4 {
			return errors.New("boom")
		}
		return nil
	}, func(r BatchResult) {
		got = append(got, r.Index)
		if r.Index == 4 {
			assert.Error(t, r.Err)
		} else {
			assert.NoError(t, r.Err)
		}
	})
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, got)

	RunOrdered(0, 4, func(int) error { t.Fatal("no tasks"); return nil }, func(BatchResult) {})
}

func TestDiagnosticString(t *testing.T) {
	d := Diagnostic{Page: 2, Requested: contracts.CompressionCCITT, Used: contracts.CompressionLossless, Reason: "ccitt requested for rgb content"}
	assert.Equal(t, "page 2: ccitt -> lossless: ccitt requested for rgb content", d.String())
	assert.Equal(t, "recovered", RecoveredWithFallback.String())
}
