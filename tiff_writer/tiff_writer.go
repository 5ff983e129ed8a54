// Package tiff_writer writes multi-page little-endian TIFF files with one
// strip per page. Page data is stored exactly as the encoder produced it.
package tiff_writer

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"

	"pdftiff/contracts"
)

// TIFF field types
const (
	dtShort    = 3
	dtLong     = 4
	dtRational = 5
)

// Tags written for every page.
const (
	tNewSubfileType  = 254
	tImageWidth      = 256
	tImageLength     = 257
	tBitsPerSample   = 258
	tCompression     = 259
	tPhotometric     = 262
	tStripOffsets    = 273
	tOrientation     = 274
	tSamplesPerPixel = 277
	tRowsPerStrip    = 278
	tStripByteCounts = 279
	tXResolution     = 282
	tYResolution     = 283
	tPlanarConfig    = 284
	tResolutionUnit  = 296
)

const (
	cCCITTG4 = 4
	cJPEG    = 7
	cDeflate = 8

	pWhiteIsZero = 0
	pBlackIsZero = 1
	pRGB         = 2
	pYCbCr       = 6

	// NewSubfileType bit for one page of a multi-page document
	subfilePage = 2

	resolutionDenominator = 1000
)

type entry struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

type countingWriter struct {
	w      io.Writer
	offset int64
}

func (cw *countingWriter) Write(p []byte) (n int, err error) {
	n, err = cw.w.Write(p)
	cw.offset += int64(n)
	return n, err
}

// TIFFWriter lays pages out as [header][data0][ifd0][data1][ifd1]... Each
// IFD is held back until the next page arrives, so its next-IFD pointer is
// known when it is written.
type TIFFWriter struct {
	cw       *countingWriter
	bw       *bufio.Writer
	pending  []byte
	next     int
	frames   int
	finished bool
}

func NewTIFFWriter(dst io.Writer) *TIFFWriter {
	cw := &countingWriter{w: dst}
	return &TIFFWriter{cw: cw, bw: bufio.NewWriterSize(cw, 1024*1024)}
}

func (tw *TIFFWriter) offset() int64 {
	return tw.cw.offset + int64(tw.bw.Buffered())
}

// WritePage appends one frame.
func (tw *TIFFWriter) WritePage(page *contracts.EncodedPage) error {
	if tw.finished {
		return fmt.Errorf("tiff writer already finished")
	}
	if page.Width <= 0 || page.Height <= 0 {
		return fmt.Errorf("invalid image size %dx%d", page.Width, page.Height)
	}
	entries, err := pageEntries(page)
	if err != nil {
		return err
	}

	dataLen := int64(len(page.Data) + len(page.Data)%2)
	dataOff := int64(8)
	if tw.frames > 0 {
		dataOff = tw.offset() + int64(len(tw.pending))
	}
	// leave room for the IFD and its values
	if dataOff+dataLen+1024 > math.MaxUint32 {
		return fmt.Errorf("tiff exceeds 4 GiB")
	}
	if tw.frames == 0 {
		var hdr [8]byte
		copy(hdr[:], "II*\x00")
		binary.LittleEndian.PutUint32(hdr[4:], uint32(dataOff+dataLen))
		tw.bw.Write(hdr[:])
	} else {
		binary.LittleEndian.PutUint32(tw.pending[tw.next:], uint32(dataOff+dataLen))
		tw.bw.Write(tw.pending)
	}

	tw.bw.Write(page.Data)
	if len(page.Data)%2 == 1 {
		tw.bw.WriteByte(0)
	}

	entries = append(entries,
		longEntry(tStripOffsets, uint32(dataOff)),
		longEntry(tStripByteCounts, uint32(len(page.Data))),
	)
	tw.pending, tw.next = buildIFD(entries, uint32(dataOff+dataLen))
	tw.frames++

	if tw.bw.Buffered() > tw.bw.Size()/2 {
		if err := tw.bw.Flush(); err != nil {
			return fmt.Errorf("error writing frame: %v", err)
		}
	}
	return nil
}

// Finish writes the last IFD with a zero next pointer.
func (tw *TIFFWriter) Finish() error {
	if tw.finished {
		return fmt.Errorf("tiff writer already finished")
	}
	if tw.frames == 0 {
		return fmt.Errorf("tiff has no pages")
	}
	tw.finished = true
	tw.bw.Write(tw.pending)
	tw.pending = nil
	if err := tw.bw.Flush(); err != nil {
		return fmt.Errorf("error writing TIFF: %v", err)
	}
	return nil
}

// pageEntries returns every tag except the strip location.
func pageEntries(page *contracts.EncodedPage) ([]entry, error) {
	var compression, photometric uint16
	switch page.Mode {
	case contracts.CompressionCCITT:
		compression, photometric = cCCITTG4, pWhiteIsZero
	case contracts.CompressionLossless:
		compression, photometric = cDeflate, pBlackIsZero
		if page.Components == 3 {
			photometric = pRGB
		}
	case contracts.CompressionJPEG:
		compression, photometric = cJPEG, pBlackIsZero
		if page.Components == 3 {
			photometric = pYCbCr
		}
	default:
		return nil, fmt.Errorf("unsupported compression %s", page.Mode)
	}
	comps := page.Components
	if comps != 1 && comps != 3 {
		return nil, fmt.Errorf("unsupported component count %d", comps)
	}

	bps := make([]uint16, comps)
	for i := range bps {
		bps[i] = uint16(page.BitsPerComponent)
	}
	return []entry{
		longEntry(tNewSubfileType, subfilePage),
		longEntry(tImageWidth, uint32(page.Width)),
		longEntry(tImageLength, uint32(page.Height)),
		shortEntry(tBitsPerSample, bps...),
		shortEntry(tCompression, compression),
		shortEntry(tPhotometric, photometric),
		shortEntry(tOrientation, 1),
		shortEntry(tSamplesPerPixel, uint16(comps)),
		longEntry(tRowsPerStrip, uint32(page.Height)),
		rationalEntry(tXResolution, page.DpiX),
		rationalEntry(tYResolution, page.DpiY),
		shortEntry(tPlanarConfig, 1),
		shortEntry(tResolutionUnit, 2),
	}, nil
}

func shortEntry(tag uint16, vals ...uint16) entry {
	b := make([]byte, 2*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint16(b[2*i:], v)
	}
	return entry{tag: tag, typ: dtShort, count: uint32(len(vals)), data: b}
}

func longEntry(tag uint16, v uint32) entry {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return entry{tag: tag, typ: dtLong, count: 1, data: b}
}

// rationalEntry stores dpi with three decimals.
func rationalEntry(tag uint16, dpi float64) entry {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint32(b, uint32(math.Round(dpi*resolutionDenominator)))
	binary.LittleEndian.PutUint32(b[4:], resolutionDenominator)
	return entry{tag: tag, typ: dtRational, count: 1, data: b}
}

// buildIFD serializes entries for an IFD at offset at. Values longer than
// four bytes follow the entry table. next is the position of the next-IFD
// pointer, left zero, within the result.
func buildIFD(entries []entry, at uint32) (ifd []byte, next int) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

	tableLen := 2 + 12*len(entries) + 4
	table := make([]byte, tableLen)
	var extra []byte
	binary.LittleEndian.PutUint16(table, uint16(len(entries)))

	for i, e := range entries {
		p := table[2+12*i:]
		binary.LittleEndian.PutUint16(p, e.tag)
		binary.LittleEndian.PutUint16(p[2:], e.typ)
		binary.LittleEndian.PutUint32(p[4:], e.count)
		if len(e.data) <= 4 {
			copy(p[8:12], e.data)
			continue
		}
		binary.LittleEndian.PutUint32(p[8:], at+uint32(tableLen+len(extra)))
		extra = append(extra, e.data...)
		if len(extra)%2 == 1 {
			extra = append(extra, 0)
		}
	}

	return append(table, extra...), tableLen - 4
}

// Factory opens TIFFWriters for every compression mode.
type Factory struct{}

func (Factory) NewWriter(dst io.Writer) (contracts.ContainerWriter, error) {
	return NewTIFFWriter(dst), nil
}

func (Factory) Modes() []contracts.Compression {
	return []contracts.Compression{
		contracts.CompressionJPEG,
		contracts.CompressionLossless,
		contracts.CompressionCCITT,
	}
}
