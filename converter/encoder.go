package converter

import (
	"io"
	"sort"

	"github.com/pkg/errors"

	"pdftiff/contracts"
	"pdftiff/imaging"
	"pdftiff/observability"
)

// PageEncoder turns one PageImage into one container page.
type PageEncoder struct {
	resolver *Resolver
	logger   observability.Logger
}

func NewPageEncoder(resolver *Resolver, logger observability.Logger) *PageEncoder {
	return &PageEncoder{resolver: resolver, logger: observability.OrNop(logger)}
}

// Encode orients the page upright, applies the profile's color hint and
// target resolution, compresses it and appends it to dst. The source raster
// is never modified.
//
// A JPEG failure or CCITT on non-binary content is recovered with lossless
// and reported in the outcome. Anything else that prevents the page from
// being appended is Fatal.
func (e *PageEncoder) Encode(page contracts.PageImage, profile contracts.QualityProfile, dst contracts.ContainerWriter) Outcome {
	fatal := func(err error) Outcome {
		err = errors.Wrapf(err, "page %d", page.Index)
		return Outcome{Kind: Fatal, Reason: err.Error(), Err: err}
	}

	img := imaging.Orient(page.Raster, page.Orientation)
	dpiX, dpiY := page.DpiX, page.DpiY
	if imaging.SwapsAxes(page.Orientation) {
		dpiX, dpiY = dpiY, dpiX
	}

	img, class := imaging.ApplyColorHint(img, profile.ColorHint())
	target, _ := profile.TargetDPI()
	img, dpiX, dpiY = imaging.Rescale(img, dpiX, dpiY, target, class == contracts.ClassBinary)

	mode, reason, err := e.resolver.Resolve(profile.Compression(), class)
	if err != nil {
		return fatal(err)
	}
	out, err := e.resolver.codec(mode)(img, class, profile.Quality())
	if err != nil && mode == contracts.CompressionJPEG {
		reason = "jpeg encode failed: " + err.Error()
		mode = contracts.CompressionLossless
		out, err = e.resolver.codec(mode)(img, class, profile.Quality())
	}
	if err != nil {
		return fatal(err)
	}
	out.DpiX, out.DpiY, out.Index = dpiX, dpiY, page.Index

	if err := dst.WritePage(out); err != nil {
		return fatal(errors.Wrap(err, "append page"))
	}

	if reason != "" {
		e.logger.Warn("compression fallback",
			observability.Int("page", page.Index),
			observability.String("requested", profile.Compression().String()),
			observability.String("used", mode.String()),
			observability.String("reason", reason),
		)
		return Outcome{Kind: RecoveredWithFallback, Page: out, Reason: reason}
	}
	e.logger.Debug("page encoded",
		observability.Int("page", page.Index),
		observability.String("mode", mode.String()),
		observability.String("class", class.String()),
		observability.Int("bytes", len(out.Data)),
	)
	return Outcome{Kind: Success, Page: out}
}

// EncodeDocument writes every page, in index order, into a fresh container
// on dst and finishes it. Fallbacks are returned as diagnostics; the first
// fatal outcome aborts.
func (e *PageEncoder) EncodeDocument(pages []contracts.PageImage, profile contracts.QualityProfile, factory contracts.ContainerFactory, dst io.Writer) ([]Diagnostic, error) {
	if len(pages) == 0 {
		return nil, ErrNoPages
	}
	ordered := append([]contracts.PageImage(nil), pages...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	cw, err := factory.NewWriter(dst)
	if err != nil {
		return nil, errors.Wrap(err, "open container")
	}
	var diags []Diagnostic
	for _, p := range ordered {
		res := e.Encode(p, profile, cw)
		switch res.Kind {
		case Fatal:
			return diags, res.Err
		case RecoveredWithFallback:
			diags = append(diags, Diagnostic{
				Page:      p.Index,
				Requested: profile.Compression(),
				Used:      res.Page.Mode,
				Reason:    res.Reason,
			})
		}
	}
	if err := cw.Finish(); err != nil {
		return diags, errors.Wrap(err, "finish container")
	}
	return diags, nil
}
