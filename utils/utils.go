package utils

import (
	"fmt"

	"github.com/dsoprea/go-exif/v3"
	exifcommon "github.com/dsoprea/go-exif/v3/common"
)

const (
	unitNone       = 1
	unitCentimeter = 3
	cmPerInch      = 2.54
)

// ReadResolution returns the X and Y resolution, in dots per inch, stored in
// the first IFD of a TIFF or EXIF-carrying file. Centimetre units are
// converted. A unitless resolution gives zero on both axes. Missing tags are
// an error; callers pick their own default.
func ReadResolution(data []byte) (float64, float64, error) {
	rawExif, err := exif.SearchAndExtractExif(data)
	if err != nil {
		return 0, 0, fmt.Errorf("EXIF not found: %v", err)
	}

	im := exifcommon.NewIfdMapping()
	ti := exif.NewTagIndex()
	if err := exifcommon.LoadStandardIfds(im); err != nil {
		return 0, 0, err
	}

	_, index, err := exif.Collect(im, ti, rawExif)
	if err != nil {
		return 0, 0, err
	}

	dpiX, okX := rationalTag(index.RootIfd, "XResolution")
	dpiY, okY := rationalTag(index.RootIfd, "YResolution")
	if !okX && !okY {
		return 0, 0, fmt.Errorf("no resolution tags")
	}
	// a single tag applies to both axes
	if !okX {
		dpiX = dpiY
	}
	if !okY {
		dpiY = dpiX
	}

	if tag, err := index.RootIfd.FindTagWithName("ResolutionUnit"); err == nil {
		if val, err := tag[0].Value(); err == nil {
			var unit uint16
			switch u := val.(type) {
			case []uint16:
				if len(u) > 0 {
					unit = u[0]
				}
			case uint16:
				unit = u
			}
			switch unit {
			case unitNone:
				return 0, 0, nil
			case unitCentimeter:
				dpiX *= cmPerInch
				dpiY *= cmPerInch
			}
		}
	}
	return dpiX, dpiY, nil
}

func rationalTag(ifd *exif.Ifd, name string) (float64, bool) {
	tag, err := ifd.FindTagWithName(name)
	if err != nil || len(tag) == 0 {
		return 0, false
	}
	val, err := tag[0].Value()
	if err != nil {
		return 0, false
	}
	rats, ok := val.([]exifcommon.Rational)
	if !ok || len(rats) == 0 || rats[0].Denominator == 0 {
		return 0, false
	}
	return float64(rats[0].Numerator) / float64(rats[0].Denominator), true
}
