package converter

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"pdftiff/contracts"
)

var (
	// ErrNoPages is returned when the source yields an empty page sequence.
	ErrNoPages = errors.New("no pages to convert")
	// ErrCodecUnavailable is returned when an explicitly requested mode has
	// no codec for the output container.
	ErrCodecUnavailable = errors.New("codec unavailable")
)

// OutcomeKind classifies the result of encoding one page.
type OutcomeKind int

const (
	Success OutcomeKind = iota
	RecoveredWithFallback
	Fatal
)

func (k OutcomeKind) String() string {
	switch k {
	case Success:
		return "success"
	case RecoveredWithFallback:
		return "recovered"
	case Fatal:
		return "fatal"
	}
	return fmt.Sprintf("outcome(%d)", int(k))
}

// Outcome is the result of one encode attempt. Page is set unless Kind is
// Fatal, Reason is set unless Kind is Success and Err is set only for Fatal.
type Outcome struct {
	Kind   OutcomeKind
	Page   *contracts.EncodedPage
	Reason string
	Err    error
}

// Diagnostic records a fallback taken while encoding a page.
type Diagnostic struct {
	Page      int
	Requested contracts.Compression
	Used      contracts.Compression
	Reason    string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("page %d: %s -> %s: %s", d.Page, d.Requested, d.Used, d.Reason)
}

// Resolver maps a requested compression and the page content to a concrete
// codec. Its table is fixed at construction.
type Resolver struct {
	codecs map[contracts.Compression]pixelCodec
}

// NewResolver keeps the built-in codecs the container supports. Lossless is
// always kept since every container can store it.
func NewResolver(modes []contracts.Compression) *Resolver {
	table := map[contracts.Compression]pixelCodec{
		contracts.CompressionLossless: builtinCodecs[contracts.CompressionLossless],
	}
	for _, m := range modes {
		if c, ok := builtinCodecs[m]; ok {
			table[m] = c
		}
	}
	return &Resolver{codecs: table}
}

// Modes lists the available concrete modes in ascending order.
func (r *Resolver) Modes() []contracts.Compression {
	out := make([]contracts.Compression, 0, len(r.codecs))
	for m := range r.codecs {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Resolver) has(m contracts.Compression) bool {
	_, ok := r.codecs[m]
	return ok
}

// Resolve picks the concrete mode for content of the given class. reason is
// non-empty when the result differs from an explicit request.
//
// AUTO chooses lossless for binary and indexed content and JPEG for gray and
// RGB, or lossless when JPEG is not in the table. CCITT on anything but
// binary content falls back to lossless. An explicit mode missing from the
// table is an error wrapping ErrCodecUnavailable.
func (r *Resolver) Resolve(requested contracts.Compression, class contracts.ColorClass) (mode contracts.Compression, reason string, err error) {
	switch requested {
	case contracts.CompressionAuto:
		if (class == contracts.ClassGray || class == contracts.ClassRGB) && r.has(contracts.CompressionJPEG) {
			return contracts.CompressionJPEG, "", nil
		}
		return contracts.CompressionLossless, "", nil
	case contracts.CompressionCCITT:
		if class != contracts.ClassBinary {
			return contracts.CompressionLossless, fmt.Sprintf("ccitt requested for %s content", class), nil
		}
	}
	if !r.has(requested) {
		return 0, "", errors.Wrapf(ErrCodecUnavailable, "%s", requested)
	}
	return requested, "", nil
}

func (r *Resolver) codec(m contracts.Compression) pixelCodec {
	return r.codecs[m]
}
