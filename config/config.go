// Package config loads size-control plans from YAML files:
//
//	max_size: 2MB
//	profiles:
//	  - compression: jpeg
//	    quality: 0.8
//	    target_dpi: 200
//	    color: auto
//	  - compression: ccitt
//	    color: binary
package config

import (
	"bytes"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"pdftiff/contracts"
)

type planFile struct {
	MaxSize  string        `yaml:"max_size"`
	Profiles []profileFile `yaml:"profiles"`
}

type profileFile struct {
	Compression string   `yaml:"compression"`
	Quality     *float64 `yaml:"quality"`
	TargetDPI   int      `yaml:"target_dpi"`
	Color       string   `yaml:"color"`
}

var sizeUnits = []struct {
	suffix string
	factor float64
}{
	{"GB", 1 << 30},
	{"MB", 1 << 20},
	{"KB", 1 << 10},
	{"B", 1},
}

// ParseSize reads a byte count with an optional B, KB, MB or GB suffix
// (binary multiples, case-insensitive). Fractions are allowed with a unit.
func ParseSize(s string) (int64, error) {
	v := strings.ToUpper(strings.TrimSpace(s))
	factor := 1.0
	for _, u := range sizeUnits {
		if strings.HasSuffix(v, u.suffix) {
			v, factor = strings.TrimSpace(strings.TrimSuffix(v, u.suffix)), u.factor
			break
		}
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, errors.Errorf("invalid size %q", s)
	}
	size := int64(math.Round(n * factor))
	if size <= 0 {
		return 0, errors.Errorf("size must be positive, got %q", s)
	}
	return size, nil
}

// ParsePlan decodes a YAML plan. Unknown keys are rejected; a profile
// without a quality uses contracts.DefaultQuality.
func ParsePlan(data []byte) (contracts.SizeControlPlan, error) {
	var pf planFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&pf); err != nil && err != io.EOF {
		return contracts.SizeControlPlan{}, errors.Wrap(err, "parse plan")
	}
	if pf.MaxSize == "" {
		return contracts.SizeControlPlan{}, errors.New("plan has no max_size")
	}
	maxSize, err := ParseSize(pf.MaxSize)
	if err != nil {
		return contracts.SizeControlPlan{}, err
	}

	profiles := make([]contracts.QualityProfile, 0, len(pf.Profiles))
	for i, p := range pf.Profiles {
		qp, err := p.profile()
		if err != nil {
			return contracts.SizeControlPlan{}, errors.Wrapf(err, "profile %d", i)
		}
		profiles = append(profiles, qp)
	}
	return contracts.NewSizeControlPlan(maxSize, profiles...)
}

func (p profileFile) profile() (contracts.QualityProfile, error) {
	c, err := contracts.ParseCompression(p.Compression)
	if err != nil {
		return contracts.QualityProfile{}, err
	}
	hint, err := contracts.ParseColorHint(p.Color)
	if err != nil {
		return contracts.QualityProfile{}, err
	}
	q := contracts.DefaultQuality
	if p.Quality != nil {
		q = *p.Quality
	}
	return contracts.NewQualityProfile(c, q, p.TargetDPI, hint)
}

func LoadPlan(path string) (contracts.SizeControlPlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return contracts.SizeControlPlan{}, errors.Wrap(err, "read plan")
	}
	return ParsePlan(data)
}
