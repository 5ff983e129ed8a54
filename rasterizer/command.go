package rasterizer

import (
	"bufio"
	"bytes"
	"fmt"
	"image"
	"image/png"
	"io"
	"os/exec"
	"strings"

	"github.com/pkg/errors"

	"pdftiff/contracts"
	"pdftiff/observability"
)

// renderDPI is used by rendering backends when the caller asks for the
// source resolution, which a vector page does not have.
const renderDPI = 300

// Ghostscript renders pages with an external gs process. The PDF is piped
// into stdin and the pages come back on stdout as consecutive PNG images.
type Ghostscript struct {
	path   string
	device string
	logger observability.Logger
}

// NewGhostscript looks path up on $PATH; an empty path means "gs".
func NewGhostscript(path string, logger observability.Logger) (*Ghostscript, error) {
	if path == "" {
		path = "gs"
	}
	bin, err := exec.LookPath(path)
	if err != nil {
		return nil, errors.Wrap(err, "ghostscript not found")
	}
	return &Ghostscript{path: bin, device: "png16m", logger: observability.OrNop(logger)}, nil
}

func (g *Ghostscript) Rasterize(r io.Reader, dpi int) ([]contracts.PageImage, error) {
	if dpi <= 0 {
		dpi = renderDPI
	}
	cmd := exec.Command(g.path,
		"-q", "-dSAFER", "-dBATCH", "-dNOPAUSE",
		"-sDEVICE="+g.device,
		fmt.Sprintf("-r%d", dpi),
		"-sOutputFile=-",
		"-",
	)
	cmd.Stdin = r
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "create stdout pipe")
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrap(err, "start ghostscript")
	}
	g.logger.Debug("ghostscript started", observability.Int("pid", cmd.Process.Pid), observability.Int("dpi", dpi))

	images, decodeErr := decodePNGStream(bufio.NewReader(stdout))
	// drain so gs never blocks on a full pipe after a decode failure
	io.Copy(io.Discard, stdout)
	if err := cmd.Wait(); err != nil {
		return nil, errors.Wrapf(err, "ghostscript: %s", strings.TrimSpace(stderr.String()))
	}
	if decodeErr != nil {
		return nil, decodeErr
	}

	pages := make([]contracts.PageImage, 0, len(images))
	for i, img := range images {
		page, err := contracts.NewPageImage(img, float64(dpi), float64(dpi), 1, i)
		if err != nil {
			return nil, err
		}
		pages = append(pages, page)
	}
	return pages, nil
}

// decodePNGStream decodes PNG images written back to back until EOF. The
// PNG decoder stops right after IEND, so each call leaves the reader at the
// next image.
func decodePNGStream(r *bufio.Reader) ([]image.Image, error) {
	var out []image.Image
	for {
		if _, err := r.Peek(1); err == io.EOF {
			return out, nil
		} else if err != nil {
			return nil, errors.Wrap(err, "read page stream")
		}
		img, err := png.Decode(r)
		if err != nil {
			return nil, errors.Wrapf(err, "decode page %d", len(out))
		}
		out = append(out, img)
	}
}
