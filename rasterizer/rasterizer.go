// Package rasterizer turns PDF documents into page rasters.
//
// The default backend, "pdfcpu", is pure Go: it extracts the image that
// makes up each page and resamples it to the requested resolution, which
// covers scanned documents. Pages drawn with vector content need one of the
// rendering backends: "ghostscript" runs the gs binary, "vips" and
// "imagick" are compiled in with the build tags of the same name.
package rasterizer

import (
	"os/exec"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"pdftiff/contracts"
	"pdftiff/observability"
)

// ErrNoRaster is returned when a page carries nothing the backend can
// turn into pixels.
var ErrNoRaster = errors.New("page has no raster content")

const Default = "pdfcpu"

type constructor func(logger observability.Logger) (contracts.Rasterizer, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]constructor{}
)

func register(name string, c constructor) {
	registryMu.Lock()
	registry[name] = c
	registryMu.Unlock()
}

func init() {
	register(Default, func(l observability.Logger) (contracts.Rasterizer, error) {
		return NewImageExtractor(l), nil
	})
	register("ghostscript", func(l observability.Logger) (contracts.Rasterizer, error) {
		return NewGhostscript("", l)
	})
}

// New returns the backend registered under name. An empty name selects the
// default.
func New(name string, logger observability.Logger) (contracts.Rasterizer, error) {
	if name == "" {
		name = Default
	}
	registryMu.RLock()
	c, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, errors.Errorf("unknown rasterizer %q (available: %v)", name, Names())
	}
	return c(observability.OrNop(logger))
}

// Preferred returns "ghostscript" when gs is on $PATH and Default
// otherwise.
func Preferred() string {
	if _, err := exec.LookPath("gs"); err == nil {
		return "ghostscript"
	}
	return Default
}

// Names lists the registered backends.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
