package pdf_writer

import (
	"bufio"
	"fmt"
	"io"

	"pdftiff/contracts"
)

// PDFWriter streams one image per page into a PDF file. Image, content and
// page objects are written as pages arrive; the page tree, catalog and xref
// are written by Finish.
type PDFWriter struct {
	objects []int64
	bw      *bufio.Writer
	cw      *countingWriter
	objNum  int

	pagesObjID   int64
	pageIDs      []int64
	catalogObjID int64
	finished     bool
}

type countingWriter struct {
	w      io.Writer
	offset int64
}

func NewPDFWriter(dst io.Writer) (*PDFWriter, error) {
	cw := &countingWriter{
		w: dst,
	}
	pw := &PDFWriter{
		cw: cw,
		bw: bufio.NewWriterSize(cw, 1024*1024),
	}

	if _, err := pw.bw.WriteString("%PDF-1.7\n%\xFF\xFF\xFF\xFF\n"); err != nil {
		return nil, fmt.Errorf("error writing PDF header: %v", err)
	}
	// the page tree is written last but every page points at it
	pw.pagesObjID = pw.reserveObject()
	return pw, nil
}

func (cw *countingWriter) Write(p []byte) (n int, err error) {
	n, err = cw.w.Write(p)
	if err == nil {
		cw.offset += int64(n)
	}
	return n, err
}

func (pw *PDFWriter) getOffset() int64 {
	return pw.cw.offset + int64(pw.bw.Buffered())
}

func (pw *PDFWriter) reserveObject() int64 {
	pw.objNum++
	pw.objects = append(pw.objects, 0)
	return int64(pw.objNum)
}

func (pw *PDFWriter) beginObject(id int64) {
	pw.objects[id-1] = pw.getOffset()
	fmt.Fprintf(pw.bw, "%d 0 obj\n", id)
}

func (pw *PDFWriter) newObject() int64 {
	id := pw.reserveObject()
	pw.beginObject(id)
	return id
}

// WritePage appends one page sized from the page resolution and draws the
// encoded image over the whole MediaBox.
func (pw *PDFWriter) WritePage(page *contracts.EncodedPage) error {
	if pw.finished {
		return fmt.Errorf("pdf writer already finished")
	}
	if page.Width <= 0 || page.Height <= 0 {
		return fmt.Errorf("invalid image size %dx%d", page.Width, page.Height)
	}

	var imgID int64
	switch page.Mode {
	case contracts.CompressionCCITT:
		imgID = pw.writeCCITTImage(page.Width, page.Height, page.Data)
	case contracts.CompressionJPEG:
		imgID = pw.writeJPEGImage(page.Width, page.Height, colorSpace(page.Components), page.Data)
	case contracts.CompressionLossless:
		imgID = pw.writeFlateImage(page.Width, page.Height, colorSpace(page.Components), page.BitsPerComponent, page.Data)
	default:
		return fmt.Errorf("unsupported compression %s", page.Mode)
	}

	imgName := fmt.Sprintf("img_%d", len(pw.pageIDs))
	width, height := page.WidthPoints(), page.HeightPoints()
	contentID := pw.writeContent(imgName, width, height)
	pw.pageIDs = append(pw.pageIDs, pw.writePage(imgName, imgID, contentID, width, height))

	// push completed pages out so large documents do not pile up in memory
	if pw.bw.Buffered() > pw.bw.Size()/2 {
		if err := pw.bw.Flush(); err != nil {
			return fmt.Errorf("error writing page: %v", err)
		}
	}
	return nil
}

func colorSpace(components int) string {
	if components == 3 {
		return "/DeviceRGB"
	}
	return "/DeviceGray"
}

func (pw *PDFWriter) writeCCITTImage(width int, height int, data []byte) int64 {
	imgID := pw.newObject()

	pw.bw.WriteString("<<\n") // <-- open main dictionary of image
	pw.bw.WriteString("/Type /XObject\n")
	pw.bw.WriteString("/Subtype /Image\n")
	pw.bw.WriteString(fmt.Sprintf("/Width %d\n/Height %d\n", width, height))
	pw.bw.WriteString("/ColorSpace /DeviceGray\n")
	pw.bw.WriteString("/BitsPerComponent 1\n")
	pw.bw.WriteString("/Filter /CCITTFaxDecode\n")

	// open dictionary DecodeParms
	pw.bw.WriteString("/DecodeParms <<\n")
	pw.bw.WriteString(fmt.Sprintf("/K -1\n/Columns %d\n/Rows %d\n/BlackIs1 false\n", width, height))
	pw.bw.WriteString(">>\n") // <-- close only DecodeParms dictionary

	// Line /Length should be in the main dictionary
	pw.bw.WriteString(fmt.Sprintf("/Length %d\n", len(data)))

	pw.bw.WriteString(">>\n")     // <-- close main dictionary of image
	pw.bw.WriteString("stream\n") // <-- key word "stream" right after closing main dictionary and single new line
	pw.bw.Write(data)
	pw.bw.WriteString("\nendstream\n")
	pw.bw.WriteString("endobj\n")
	return imgID
}

func (pw *PDFWriter) writeJPEGImage(width int, height int, cs string, data []byte) int64 {
	imgID := pw.newObject()
	pw.bw.WriteString("<<\n/Type /XObject\n/Subtype /Image\n")
	pw.bw.WriteString(fmt.Sprintf("/Width %d\n/Height %d\n", width, height))
	pw.bw.WriteString(fmt.Sprintf("/ColorSpace %s\n/BitsPerComponent 8\n", cs))
	pw.bw.WriteString("/Filter /DCTDecode\n")

	pw.bw.WriteString(fmt.Sprintf("/Length %d\n", len(data)))
	pw.bw.WriteString(">>\nstream\n")
	pw.bw.Write(data)
	pw.bw.WriteString("\nendstream\nendobj\n")
	return imgID
}

func (pw *PDFWriter) writeFlateImage(width int, height int, cs string, bpc int, data []byte) int64 {
	imgID := pw.newObject()
	pw.bw.WriteString("<<\n/Type /XObject\n/Subtype /Image\n")
	pw.bw.WriteString(fmt.Sprintf("/Width %d\n/Height %d\n", width, height))
	pw.bw.WriteString(fmt.Sprintf("/ColorSpace %s\n/BitsPerComponent %d\n", cs, bpc))
	pw.bw.WriteString("/Filter /FlateDecode\n")

	pw.bw.WriteString(fmt.Sprintf("/Length %d\n", len(data)))
	pw.bw.WriteString(">>\nstream\n")
	pw.bw.Write(data)
	pw.bw.WriteString("\nendstream\nendobj\n")
	return imgID
}

func (pw *PDFWriter) writeContent(imgName string, width, height float64) int64 {
	content := fmt.Sprintf(
		"q\n%.2f 0 0 %.2f 0 0 cm\n/%s Do\nQ\n",
		width, height, imgName,
	)
	objID := pw.newObject()
	pw.bw.WriteString("<<\n")
	contentBytes := []byte(content)
	pw.bw.WriteString(fmt.Sprintf("/Length %d\n", len(contentBytes)))
	pw.bw.WriteString(">>\n")
	pw.bw.WriteString("stream\n")
	pw.bw.Write(contentBytes)
	pw.bw.WriteString("endstream\nendobj\n")
	return objID
}

func (pw *PDFWriter) writePage(imgName string,
	imgObjID int64,
	contentID int64,
	width, height float64) int64 {
	objID := pw.newObject()
	pw.bw.WriteString("<<\n")
	pw.bw.WriteString("/Type /Page\n")
	pw.bw.WriteString(fmt.Sprintf("/Parent %d 0 R\n", pw.pagesObjID))
	pw.bw.WriteString(fmt.Sprintf("/MediaBox [0 0 %.2f %.2f]\n", width, height))
	pw.bw.WriteString(fmt.Sprintf("/Resources << /XObject << /%s %d 0 R >> >>\n", imgName, imgObjID))
	pw.bw.WriteString(fmt.Sprintf("/Contents %d 0 R\n", contentID))
	pw.bw.WriteString(">>\nendobj\n")
	return objID
}

func (pw *PDFWriter) writeDocumentStructure() {
	pw.beginObject(pw.pagesObjID)
	pw.bw.WriteString("<<\n")
	pw.bw.WriteString("/Type /Pages\n")
	pw.bw.WriteString(fmt.Sprintf("/Count %d\n", len(pw.pageIDs)))
	pw.bw.WriteString("/Kids [\n")
	for _, id := range pw.pageIDs {
		pw.bw.WriteString(fmt.Sprintf("%d 0 R ", id))
	}
	pw.bw.WriteString("]\n>>\nendobj\n")

	pw.catalogObjID = pw.newObject()
	pw.bw.WriteString("<<\n")
	pw.bw.WriteString(fmt.Sprintf("/Type /Catalog\n/Pages %d 0 R\n", pw.pagesObjID))
	pw.bw.WriteString(">>\nendobj\n")
}

// Finish writes the page tree, catalog, xref table and trailer. The writer
// cannot be used afterwards.
func (pw *PDFWriter) Finish() error {
	if pw.finished {
		return fmt.Errorf("pdf writer already finished")
	}
	if len(pw.pageIDs) == 0 {
		return fmt.Errorf("pdf has no pages")
	}
	pw.finished = true

	pw.writeDocumentStructure()
	startXref := pw.getOffset()
	total := len(pw.objects) + 1

	fmt.Fprintf(pw.bw, "xref\n0 %d\n", total)
	fmt.Fprintf(pw.bw, "%010d %05d f \n", 0, 65535)
	for _, off := range pw.objects {
		fmt.Fprintf(pw.bw, "%010d %05d n \n", off, 0)
	}
	fmt.Fprintf(pw.bw,
		"trailer\n<< /Size %d /Root %d 0 R >>\nstartxref\n%d\n%%%%EOF\n",
		total, pw.catalogObjID, startXref,
	)

	// bufio keeps the first write error, so one flush reports any of them
	if err := pw.bw.Flush(); err != nil {
		return fmt.Errorf("error writing PDF: %v", err)
	}
	return nil
}

// Factory opens native PDF writers. It stores JPEG, Flate and CCITT G4
// images without re-encoding them.
type Factory struct{}

func (Factory) NewWriter(dst io.Writer) (contracts.ContainerWriter, error) {
	return NewPDFWriter(dst)
}

func (Factory) Modes() []contracts.Compression {
	return []contracts.Compression{
		contracts.CompressionJPEG,
		contracts.CompressionLossless,
		contracts.CompressionCCITT,
	}
}
