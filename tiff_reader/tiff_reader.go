// Package tiff_reader decodes every frame of a TIFF file into page images
// carrying their resolution and orientation.
package tiff_reader

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/jpeg"
	"io"
	"math"

	gtiff "github.com/google/tiff"
	"github.com/pkg/errors"
	"golang.org/x/image/draw"
	xtiff "golang.org/x/image/tiff"

	"pdftiff/contracts"
	"pdftiff/observability"
	"pdftiff/utils"
)

const (
	tImageWidth      = 256
	tImageLength     = 257
	tCompression     = 259
	tStripOffsets    = 273
	tOrientation     = 274
	tRowsPerStrip    = 278
	tStripByteCounts = 279
	tXResolution     = 282
	tYResolution     = 283
	tResolutionUnit  = 296
	tJPEGTables      = 347

	cOldJPEG = 6
	cJPEG    = 7

	unitNone       = 1
	unitCentimeter = 3
)

// Decoder reads multi-frame TIFF files. Pixel data is decoded by
// golang.org/x/image/tiff, one frame at a time; the IFD chain and the tags
// it ignores come from github.com/google/tiff.
type Decoder struct {
	logger observability.Logger
}

func NewDecoder(logger observability.Logger) *Decoder {
	return &Decoder{logger: observability.OrNop(logger)}
}

// Decode returns one PageImage per frame, in file order. Frames without a
// usable resolution get 72 DPI; orientation values outside 1..8 are logged
// and read as 1.
func (d *Decoder) Decode(r io.Reader) ([]contracts.PageImage, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrap(err, "read tiff")
	}
	if len(data) < 8 {
		return nil, errors.New("tiff too short")
	}
	var order binary.ByteOrder = binary.LittleEndian
	if string(data[:2]) == "MM" {
		order = binary.BigEndian
	}

	t, err := gtiff.Parse(bytes.NewReader(data), nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, "parse tiff")
	}

	ifds := t.IFDs()
	pages := make([]contracts.PageImage, 0, len(ifds))
	at := order.Uint32(data[4:8])
	for i, ifd := range ifds {
		img, err := decodeFrame(data, order, at, ifd)
		if err != nil {
			return nil, errors.Wrapf(err, "frame %d", i)
		}
		next := ifd.NextOffset()
		if next > math.MaxUint32 {
			return nil, errors.Errorf("frame %d: next IFD offset %d out of range", i, next)
		}
		at = uint32(next)

		dpiX, dpiY := d.resolution(data, i, ifd)

		orientation := 1
		if v, ok := firstValue(ifd, tOrientation); ok {
			if v >= 1 && v <= 8 {
				orientation = int(v)
			} else {
				d.logger.Warn("invalid orientation, treating as 1",
					observability.Int("page", i),
					observability.Int("orientation", int(v)),
				)
			}
		}

		page, err := contracts.NewPageImage(img, dpiX, dpiY, orientation, i)
		if err != nil {
			return nil, err
		}
		d.logger.Debug("frame decoded",
			observability.Int("page", i),
			observability.Int("width", img.Bounds().Dx()),
			observability.Int("height", img.Bounds().Dy()),
			observability.Float("dpi_x", page.DpiX),
			observability.Float("dpi_y", page.DpiY),
		)
		pages = append(pages, page)
	}
	return pages, nil
}

func decodeFrame(data []byte, order binary.ByteOrder, at uint32, ifd gtiff.IFD) (image.Image, error) {
	switch c, _ := firstValue(ifd, tCompression); c {
	case cJPEG:
		return decodeJPEGFrame(data, ifd)
	case cOldJPEG:
		return nil, errors.New("old-style JPEG compression is not supported")
	}
	img, err := xtiff.Decode(newFrameView(data, order, at))
	if err != nil {
		return nil, errors.Wrap(err, "decode pixels")
	}
	return img, nil
}

// decodeJPEGFrame decodes each strip as a JPEG stream, completing it with
// the shared JPEGTables when present, and stacks the strips.
func decodeJPEGFrame(data []byte, ifd gtiff.IFD) (image.Image, error) {
	w, _ := firstValue(ifd, tImageWidth)
	h, _ := firstValue(ifd, tImageLength)
	offsets := fieldValues(ifd, tStripOffsets)
	counts := fieldValues(ifd, tStripByteCounts)
	if len(offsets) == 0 || len(offsets) != len(counts) {
		return nil, errors.New("missing strip layout")
	}
	strips, err := stripData(data, offsets, counts)
	if err != nil {
		return nil, err
	}
	var tables []byte
	if ifd.HasField(tJPEGTables) {
		tables = ifd.GetField(tJPEGTables).Value().Bytes()
	}

	if len(strips) == 1 {
		img, err := jpeg.Decode(bytes.NewReader(withTables(tables, strips[0])))
		return img, errors.Wrap(err, "decode jpeg strip")
	}

	rows, ok := firstValue(ifd, tRowsPerStrip)
	if !ok || rows == 0 {
		rows = h
	}
	out := image.NewRGBA(image.Rect(0, 0, int(w), int(h)))
	for i, s := range strips {
		img, err := jpeg.Decode(bytes.NewReader(withTables(tables, s)))
		if err != nil {
			return nil, errors.Wrapf(err, "strip %d", i)
		}
		y := i * int(rows)
		draw.Draw(out, image.Rect(0, y, int(w), y+img.Bounds().Dy()), img, img.Bounds().Min, draw.Src)
	}
	return out, nil
}

// stripData slices each strip out of the file.
func stripData(data []byte, offsets, counts []uint32) ([][]byte, error) {
	out := make([][]byte, len(offsets))
	for i := range offsets {
		start, end := uint64(offsets[i]), uint64(offsets[i])+uint64(counts[i])
		if end > uint64(len(data)) {
			return nil, errors.Errorf("strip %d out of bounds", i)
		}
		out[i] = data[start:end]
	}
	return out, nil
}

// withTables merges an abbreviated strip stream with the tables stream:
// tables without its EOI, then the strip without its SOI.
func withTables(tables, strip []byte) []byte {
	if len(tables) < 4 || len(strip) < 2 {
		return strip
	}
	out := make([]byte, 0, len(tables)+len(strip))
	out = append(out, tables[:len(tables)-2]...)
	return append(out, strip[2:]...)
}

// resolution returns the DPI of frame i, zero when unknown. The first frame
// is read through its EXIF view of IFD0; later frames, and a first frame
// go-exif cannot parse, use the IFD tags directly.
func (d *Decoder) resolution(data []byte, i int, ifd gtiff.IFD) (float64, float64) {
	if i == 0 {
		x, y, err := utils.ReadResolution(data)
		if err == nil {
			d.logger.Debug("resolution read", observability.Int("page", i), observability.String("source", "exif"))
			return x, y
		}
		d.logger.Debug("no exif resolution", observability.Error("error", err))
	}
	x, y, found := ifdResolution(ifd)
	if found {
		d.logger.Debug("resolution read", observability.Int("page", i), observability.String("source", "ifd"))
	}
	return x, y
}

// ifdResolution reads the resolution tags in DPI. found is true when the
// tags exist; unitless values give zero so the default applies.
func ifdResolution(ifd gtiff.IFD) (x, y float64, found bool) {
	x, okX := rationalValue(ifd, tXResolution)
	y, okY := rationalValue(ifd, tYResolution)
	if !okX && !okY {
		return 0, 0, false
	}
	if !okX {
		x = y
	}
	if !okY {
		y = x
	}
	switch unit, _ := firstValue(ifd, tResolutionUnit); unit {
	case unitNone:
		return 0, 0, true
	case unitCentimeter:
		return x * 2.54, y * 2.54, true
	}
	return x, y, true
}

// fieldValues returns the integer values of a BYTE, SHORT or LONG field.
func fieldValues(ifd gtiff.IFD, tag uint16) []uint32 {
	if !ifd.HasField(tag) {
		return nil
	}
	f := ifd.GetField(tag)
	b, order := f.Value().Bytes(), f.Value().Order()
	n := int(f.Count())
	out := make([]uint32, 0, n)
	switch f.Type().ID() {
	case 1:
		for i := 0; i < n && i < len(b); i++ {
			out = append(out, uint32(b[i]))
		}
	case 3:
		for i := 0; i < n && 2*i+2 <= len(b); i++ {
			out = append(out, uint32(order.Uint16(b[2*i:])))
		}
	case 4:
		for i := 0; i < n && 4*i+4 <= len(b); i++ {
			out = append(out, order.Uint32(b[4*i:]))
		}
	}
	return out
}

func firstValue(ifd gtiff.IFD, tag uint16) (uint32, bool) {
	v := fieldValues(ifd, tag)
	if len(v) == 0 {
		return 0, false
	}
	return v[0], true
}

func rationalValue(ifd gtiff.IFD, tag uint16) (float64, bool) {
	if !ifd.HasField(tag) {
		return 0, false
	}
	f := ifd.GetField(tag)
	b, order := f.Value().Bytes(), f.Value().Order()
	if f.Type().ID() != 5 || len(b) < 8 {
		return 0, false
	}
	num, den := order.Uint32(b), order.Uint32(b[4:])
	if den == 0 || num == 0 {
		return 0, false
	}
	return float64(num) / float64(den), true
}

// frameView exposes the file with its header pointing at one IFD, so that
// x/image/tiff, which only reads the first IFD, decodes any frame without
// copying the file.
type frameView struct {
	data []byte
	hdr  [8]byte
	pos  int64
}

func newFrameView(data []byte, order binary.ByteOrder, ifdOffset uint32) *frameView {
	v := &frameView{data: data}
	copy(v.hdr[:], data[:8])
	order.PutUint32(v.hdr[4:], ifdOffset)
	return v
}

func (v *frameView) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("negative offset")
	}
	if off >= int64(len(v.data)) {
		return 0, io.EOF
	}
	n := copy(p, v.data[off:])
	for i := off; i < int64(len(v.hdr)) && i < off+int64(n); i++ {
		p[i-off] = v.hdr[i]
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (v *frameView) Read(p []byte) (int, error) {
	n, err := v.ReadAt(p, v.pos)
	v.pos += int64(n)
	return n, err
}
