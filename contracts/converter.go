package contracts

import "io"

// Rasterizer turns page-description input into page rasters at dpi.
type Rasterizer interface {
	Rasterize(r io.Reader, dpi int) ([]PageImage, error)
}

// FrameDecoder turns a multi-frame image container into page rasters with
// their resolution and orientation.
type FrameDecoder interface {
	Decode(r io.Reader) ([]PageImage, error)
}

// ContainerWriter appends encoded pages to an output container in call order.
// Finish writes the trailer; a writer is not usable afterwards.
type ContainerWriter interface {
	WritePage(page *EncodedPage) error
	Finish() error
}

// ContainerFactory opens a container writer on dst. Modes lists the concrete
// compressions the container can embed.
type ContainerFactory interface {
	NewWriter(dst io.Writer) (ContainerWriter, error)
	Modes() []Compression
}
