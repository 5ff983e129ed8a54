package converter

import (
	"bufio"
	"bytes"
	"io"
	"os"

	"github.com/pkg/errors"

	"pdftiff/contracts"
	"pdftiff/observability"
	"pdftiff/pdf_writer"
	"pdftiff/rasterizer"
	"pdftiff/tiff_reader"
	"pdftiff/tiff_writer"
)

// DefaultDPI is the rasterization resolution used when the caller passes
// zero.
const DefaultDPI = 300

// Result summarizes a direct conversion.
type Result struct {
	Pages       int
	Size        int64
	Diagnostics []Diagnostic
}

// Converter binds a rasterizer, a frame decoder and the two output
// containers to the encoding pipeline. It holds no per-call state and may
// be shared between goroutines as long as its collaborators can.
type Converter struct {
	rasterizer contracts.Rasterizer
	decoder    contracts.FrameDecoder
	pdf        contracts.ContainerFactory
	tiff       contracts.ContainerFactory
	logger     observability.Logger
}

type Option func(*Converter)

func WithRasterizer(r contracts.Rasterizer) Option {
	return func(c *Converter) { c.rasterizer = r }
}

func WithDecoder(d contracts.FrameDecoder) Option {
	return func(c *Converter) { c.decoder = d }
}

// WithPDFWriter replaces the native PDF container, e.g. with
// pdf_writer.GofpdfFactory.
func WithPDFWriter(f contracts.ContainerFactory) Option {
	return func(c *Converter) { c.pdf = f }
}

func WithTIFFWriter(f contracts.ContainerFactory) Option {
	return func(c *Converter) { c.tiff = f }
}

func WithLogger(l observability.Logger) Option {
	return func(c *Converter) { c.logger = l }
}

// New returns a Converter using the pdfcpu image extractor, the TIFF frame
// decoder and the native PDF and TIFF writers unless options say otherwise.
func New(opts ...Option) *Converter {
	c := &Converter{}
	for _, o := range opts {
		o(c)
	}
	c.logger = observability.OrNop(c.logger)
	if c.rasterizer == nil {
		c.rasterizer = rasterizer.NewImageExtractor(c.logger)
	}
	if c.decoder == nil {
		c.decoder = tiff_reader.NewDecoder(c.logger)
	}
	if c.pdf == nil {
		c.pdf = pdf_writer.Factory{}
	}
	if c.tiff == nil {
		c.tiff = tiff_writer.Factory{}
	}
	return c
}

// Pdf2Tiff rasterizes the PDF on r at dpi and writes a multi-page TIFF to w.
func (c *Converter) Pdf2Tiff(r io.Reader, w io.Writer, dpi int, profile contracts.QualityProfile) (Result, error) {
	if err := checkProfile(profile); err != nil {
		return Result{}, err
	}
	pages, err := c.rasterize(r, dpi)
	if err != nil {
		return Result{}, err
	}
	return c.encode(pages, profile, c.tiff, w)
}

// Pdf2TiffSized is Pdf2Tiff with the profile chosen from plan by output
// size. The PDF is rasterized a single time and every trial encodes the
// same pages.
func (c *Converter) Pdf2TiffSized(r io.Reader, w io.Writer, dpi int, plan contracts.SizeControlPlan) (SearchResult, error) {
	pages, err := c.rasterize(r, dpi)
	if err != nil {
		return SearchResult{}, err
	}
	return c.search(pages, plan, c.tiff, w)
}

// Tiff2Pdf decodes every frame of the TIFF on r and writes one PDF page per
// frame to w.
func (c *Converter) Tiff2Pdf(r io.Reader, w io.Writer, profile contracts.QualityProfile) (Result, error) {
	if err := checkProfile(profile); err != nil {
		return Result{}, err
	}
	pages, err := c.decode(r)
	if err != nil {
		return Result{}, err
	}
	return c.encode(pages, profile, c.pdf, w)
}

func (c *Converter) Tiff2PdfSized(r io.Reader, w io.Writer, plan contracts.SizeControlPlan) (SearchResult, error) {
	pages, err := c.decode(r)
	if err != nil {
		return SearchResult{}, err
	}
	return c.search(pages, plan, c.pdf, w)
}

func (c *Converter) Pdf2TiffFile(src, dst string, dpi int, profile contracts.QualityProfile) (res Result, err error) {
	err = convertFile(src, dst, func(r io.Reader, w io.Writer) error {
		res, err = c.Pdf2Tiff(r, w, dpi, profile)
		return err
	})
	return res, err
}

func (c *Converter) Pdf2TiffSizedFile(src, dst string, dpi int, plan contracts.SizeControlPlan) (res SearchResult, err error) {
	err = convertFile(src, dst, func(r io.Reader, w io.Writer) error {
		res, err = c.Pdf2TiffSized(r, w, dpi, plan)
		return err
	})
	return res, err
}

func (c *Converter) Tiff2PdfFile(src, dst string, profile contracts.QualityProfile) (res Result, err error) {
	err = convertFile(src, dst, func(r io.Reader, w io.Writer) error {
		res, err = c.Tiff2Pdf(r, w, profile)
		return err
	})
	return res, err
}

func (c *Converter) Tiff2PdfSizedFile(src, dst string, plan contracts.SizeControlPlan) (res SearchResult, err error) {
	err = convertFile(src, dst, func(r io.Reader, w io.Writer) error {
		res, err = c.Tiff2PdfSized(r, w, plan)
		return err
	})
	return res, err
}

func checkProfile(p contracts.QualityProfile) error {
	if !p.Valid() {
		return errors.New("quality profile was not built with NewQualityProfile")
	}
	return nil
}

func (c *Converter) rasterize(r io.Reader, dpi int) ([]contracts.PageImage, error) {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	pages, err := c.rasterizer.Rasterize(r, dpi)
	if err != nil {
		return nil, errors.Wrap(err, "rasterize")
	}
	return pages, nil
}

func (c *Converter) decode(r io.Reader) ([]contracts.PageImage, error) {
	pages, err := c.decoder.Decode(r)
	if err != nil {
		return nil, errors.Wrap(err, "decode frames")
	}
	return pages, nil
}

// encode runs the direct path into memory first, so a fatal page leaves w
// untouched.
func (c *Converter) encode(pages []contracts.PageImage, profile contracts.QualityProfile, factory contracts.ContainerFactory, w io.Writer) (Result, error) {
	if len(pages) == 0 {
		return Result{}, ErrNoPages
	}
	enc := NewPageEncoder(NewResolver(factory.Modes()), c.logger)
	var buf bytes.Buffer
	diags, err := enc.EncodeDocument(pages, profile, factory, &buf)
	if err != nil {
		return Result{Diagnostics: diags}, err
	}
	n, err := buf.WriteTo(w)
	if err != nil {
		return Result{Diagnostics: diags}, errors.Wrap(err, "write output")
	}
	c.logger.Info("conversion finished",
		observability.Int("pages", len(pages)),
		observability.Int64("size", n),
		observability.String("profile", profile.String()),
		observability.Int("fallbacks", len(diags)),
	)
	return Result{Pages: len(pages), Size: n, Diagnostics: diags}, nil
}

func (c *Converter) search(pages []contracts.PageImage, plan contracts.SizeControlPlan, factory contracts.ContainerFactory, w io.Writer) (SearchResult, error) {
	if len(pages) == 0 {
		return SearchResult{}, ErrNoPages
	}
	enc := NewPageEncoder(NewResolver(factory.Modes()), c.logger)
	return NewSearchController(enc, factory, c.logger).Run(pages, plan, w)
}

// convertFile streams src through fn into dst+".tmp" and renames it over
// dst on success. On failure the temporary file is removed and dst is left
// as it was.
func convertFile(src, dst string, fn func(io.Reader, io.Writer) error) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrap(err, "open source")
	}
	defer in.Close()

	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return errors.Wrap(err, "create output")
	}
	bw := bufio.NewWriter(out)
	if err := fn(bufio.NewReader(in), bw); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := bw.Flush(); err != nil {
		out.Close()
		os.Remove(tmp)
		return errors.Wrap(err, "write output")
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "close output")
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "rename output")
	}
	return nil
}
