package contracts

type Direction string

const (
	PdfToTiff Direction = "pdf2tiff"
	TiffToPdf Direction = "tiff2pdf"
)

// SourceExtensions lists the input extensions accepted for a direction.
func (d Direction) SourceExtensions() []string {
	if d == PdfToTiff {
		return []string{".pdf"}
	}
	return []string{".tif", ".tiff"}
}

func (d Direction) TargetExtension() string {
	if d == PdfToTiff {
		return ".tif"
	}
	return ".pdf"
}

// ConversionJob is one source file and the file it converts into.
type ConversionJob struct {
	Source    string
	Dest      string
	Name      string
	Direction Direction
	Size      int64
}

type BatchFolder struct {
	Jobs      []ConversionJob
	Failed    []string
	Path      string
	OutputDir string
	TotalSize int64
}
