package contracts

import (
	"fmt"
	"math"
	"strings"
)

// Compression is the encoding mode requested for, or resolved on, a page.
type Compression int

const (
	CompressionAuto Compression = iota
	CompressionJPEG
	CompressionLossless
	CompressionCCITT
)

func (c Compression) String() string {
	switch c {
	case CompressionAuto:
		return "auto"
	case CompressionJPEG:
		return "jpeg"
	case CompressionLossless:
		return "lossless"
	case CompressionCCITT:
		return "ccitt"
	}
	return fmt.Sprintf("compression(%d)", int(c))
}

// ParseCompression accepts the names printed by String, case-insensitive.
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return CompressionAuto, nil
	case "jpeg", "jpg":
		return CompressionJPEG, nil
	case "lossless", "flate", "deflate":
		return CompressionLossless, nil
	case "ccitt", "g4":
		return CompressionCCITT, nil
	}
	return CompressionAuto, fmt.Errorf("unknown compression %q", s)
}

// ColorHint forces a color layout onto the page before compression.
type ColorHint int

const (
	ColorAuto ColorHint = iota
	ColorRGB
	ColorGray
	ColorBinary
)

func (h ColorHint) String() string {
	switch h {
	case ColorAuto:
		return "auto"
	case ColorRGB:
		return "rgb"
	case ColorGray:
		return "gray"
	case ColorBinary:
		return "binary"
	}
	return fmt.Sprintf("color(%d)", int(h))
}

func ParseColorHint(s string) (ColorHint, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return ColorAuto, nil
	case "rgb", "color":
		return ColorRGB, nil
	case "gray", "grey":
		return ColorGray, nil
	case "binary", "bw":
		return ColorBinary, nil
	}
	return ColorAuto, fmt.Errorf("unknown color hint %q", s)
}

const (
	DefaultQuality = 0.8
)

// QualityProfile is an immutable set of encoding preferences.
// The zero value is not valid; use NewQualityProfile or DefaultQualityProfile.
type QualityProfile struct {
	compression Compression
	quality     float64
	targetDPI   int
	colorHint   ColorHint
	valid       bool
}

// NewQualityProfile validates its arguments. targetDPI 0 keeps the source
// resolution.
func NewQualityProfile(compression Compression, quality float64, targetDPI int, hint ColorHint) (QualityProfile, error) {
	if compression < CompressionAuto || compression > CompressionCCITT {
		return QualityProfile{}, fmt.Errorf("invalid compression %d", int(compression))
	}
	if math.IsNaN(quality) || quality < 0 || quality > 1 {
		return QualityProfile{}, fmt.Errorf("quality must be between 0.0 and 1.0, got %v", quality)
	}
	if targetDPI < 0 {
		return QualityProfile{}, fmt.Errorf("target DPI must be positive, got %d", targetDPI)
	}
	if hint < ColorAuto || hint > ColorBinary {
		return QualityProfile{}, fmt.Errorf("invalid color hint %d", int(hint))
	}
	return QualityProfile{
		compression: compression,
		quality:     quality,
		targetDPI:   targetDPI,
		colorHint:   hint,
		valid:       true,
	}, nil
}

// MustQualityProfile panics on invalid arguments. Intended for literals.
func MustQualityProfile(compression Compression, quality float64, targetDPI int, hint ColorHint) QualityProfile {
	p, err := NewQualityProfile(compression, quality, targetDPI, hint)
	if err != nil {
		panic(err)
	}
	return p
}

func DefaultQualityProfile() QualityProfile {
	return MustQualityProfile(CompressionAuto, DefaultQuality, 0, ColorAuto)
}

func (p QualityProfile) Compression() Compression { return p.compression }
func (p QualityProfile) Quality() float64         { return p.quality }
func (p QualityProfile) ColorHint() ColorHint     { return p.colorHint }

// TargetDPI reports the requested resolution and whether one was set.
func (p QualityProfile) TargetDPI() (int, bool) { return p.targetDPI, p.targetDPI > 0 }

// Valid reports whether p came from a validating constructor.
func (p QualityProfile) Valid() bool { return p.valid }

func (p QualityProfile) String() string {
	dpi := "source"
	if p.targetDPI > 0 {
		dpi = fmt.Sprint(p.targetDPI)
	}
	return fmt.Sprintf("{compression=%s quality=%.2f dpi=%s color=%s}", p.compression, p.quality, dpi, p.colorHint)
}

// SizeControlPlan is an ordered list of profiles tried until the output fits
// MaxSize. The order is the caller's and is never changed.
type SizeControlPlan struct {
	maxSize  int64
	profiles []QualityProfile
}

func NewSizeControlPlan(maxSize int64, profiles ...QualityProfile) (SizeControlPlan, error) {
	if maxSize <= 0 {
		return SizeControlPlan{}, fmt.Errorf("max size must be positive, got %d", maxSize)
	}
	if len(profiles) == 0 {
		return SizeControlPlan{}, fmt.Errorf("at least one quality profile must be provided")
	}
	for i, p := range profiles {
		if !p.Valid() {
			return SizeControlPlan{}, fmt.Errorf("quality profile %d was not built with NewQualityProfile", i)
		}
	}
	return SizeControlPlan{
		maxSize:  maxSize,
		profiles: append([]QualityProfile(nil), profiles...),
	}, nil
}

func (p SizeControlPlan) MaxSize() int64 { return p.maxSize }

// Profiles returns a copy of the profile list.
func (p SizeControlPlan) Profiles() []QualityProfile {
	return append([]QualityProfile(nil), p.profiles...)
}

func (p SizeControlPlan) Len() int { return len(p.profiles) }
