package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"pdftiff/config"
	"pdftiff/contracts"
	"pdftiff/converter"
	"pdftiff/files_manager"
	"pdftiff/history"
	"pdftiff/observability"
	"pdftiff/pdf_writer"
	"pdftiff/rasterizer"
)

// fallbackLadder follows the requested profile when only -max-size is
// given.
var fallbackLadder = []contracts.QualityProfile{
	contracts.MustQualityProfile(contracts.CompressionAuto, 0.6, 200, contracts.ColorAuto),
	contracts.MustQualityProfile(contracts.CompressionAuto, 0.4, 150, contracts.ColorAuto),
	contracts.MustQualityProfile(contracts.CompressionJPEG, 0.25, 100, contracts.ColorGray),
}

type settings struct {
	profile contracts.QualityProfile
	plan    *contracts.SizeControlPlan
	dpi     int
}

// run converts a single file or a whole directory and returns the number
// of failed files. An error means nothing could be attempted.
func run(args InputFlags, logger observability.Logger) (int, error) {
	s, err := buildSettings(args)
	if err != nil {
		return 0, err
	}
	c, err := buildConverter(args, logger)
	if err != nil {
		return 0, err
	}
	jobs, err := buildJobs(args)
	if err != nil {
		return 0, err
	}
	if len(jobs) == 0 {
		logger.Warn("nothing to convert", observability.String("input", args.Input))
		return 0, nil
	}

	var store *history.Store
	if args.HistoryDB != "" {
		if store, err = history.Open(args.HistoryDB); err != nil {
			return 0, err
		}
		defer store.Close()
	}

	logger.Info("starting conversion",
		observability.Int("files", len(jobs)),
		observability.Int("workers", args.Workers),
	)

	failed := 0
	records := make([]history.ConversionRecord, len(jobs))
	converter.RunOrdered(len(jobs), args.Workers, func(i int) error {
		rec, err := convertJob(c, jobs[i], s)
		records[i] = rec
		return err
	}, func(r converter.BatchResult) {
		rec := &records[r.Index]
		rec.DurationMS = r.Duration.Milliseconds()
		if r.Err != nil {
			failed++
			rec.Error = r.Err.Error()
			logger.Error("conversion failed",
				observability.String("source", jobs[r.Index].Source),
				observability.Error("error", r.Err),
			)
		} else {
			logger.Info("converted",
				observability.String("source", jobs[r.Index].Source),
				observability.String("dest", jobs[r.Index].Dest),
				observability.Int("pages", rec.Pages),
				observability.Int64("bytes", rec.Bytes),
			)
		}
		if store != nil {
			if err := store.Record(rec); err != nil {
				logger.Warn("history not recorded", observability.Error("error", err))
			}
		}
	})
	return failed, nil
}

func buildSettings(args InputFlags) (settings, error) {
	c, err := contracts.ParseCompression(args.Compression)
	if err != nil {
		return settings{}, err
	}
	hint, err := contracts.ParseColorHint(args.ColorHint)
	if err != nil {
		return settings{}, err
	}
	profile, err := contracts.NewQualityProfile(c, args.Quality, args.TargetDPI, hint)
	if err != nil {
		return settings{}, err
	}
	s := settings{profile: profile, dpi: args.DPI}

	switch {
	case args.PlanFile != "":
		plan, err := config.LoadPlan(args.PlanFile)
		if err != nil {
			return settings{}, err
		}
		if args.MaxSize > 0 {
			if plan, err = contracts.NewSizeControlPlan(args.MaxSize, plan.Profiles()...); err != nil {
				return settings{}, err
			}
		}
		s.plan = &plan
	case args.MaxSize > 0:
		plan, err := contracts.NewSizeControlPlan(args.MaxSize, append([]contracts.QualityProfile{profile}, fallbackLadder...)...)
		if err != nil {
			return settings{}, err
		}
		s.plan = &plan
	}
	return s, nil
}

func buildConverter(args InputFlags, logger observability.Logger) (*converter.Converter, error) {
	r, err := rasterizer.New(args.Rasterizer, logger)
	if err != nil {
		return nil, err
	}
	opts := []converter.Option{converter.WithLogger(logger), converter.WithRasterizer(r)}
	switch strings.ToLower(args.PDFBackend) {
	case "", "native":
	case "gofpdf":
		opts = append(opts, converter.WithPDFWriter(pdf_writer.GofpdfFactory{}))
	default:
		return nil, fmt.Errorf("unknown pdf backend %q", args.PDFBackend)
	}
	return converter.New(opts...), nil
}

// resolveDirection reads the -direction flag, falling back to the input
// file extension.
func resolveDirection(flag, input string) (contracts.Direction, error) {
	switch strings.ToLower(flag) {
	case string(contracts.PdfToTiff):
		return contracts.PdfToTiff, nil
	case string(contracts.TiffToPdf):
		return contracts.TiffToPdf, nil
	case "":
	default:
		return "", fmt.Errorf("unknown direction %q", flag)
	}
	switch strings.ToLower(filepath.Ext(input)) {
	case ".pdf":
		return contracts.PdfToTiff, nil
	case ".tif", ".tiff":
		return contracts.TiffToPdf, nil
	}
	return "", fmt.Errorf("cannot tell the direction from %q, use -direction", input)
}

func buildJobs(args InputFlags) ([]contracts.ConversionJob, error) {
	stat, err := os.Stat(args.Input)
	if err != nil {
		return nil, err
	}
	if !stat.IsDir() {
		dir, err := resolveDirection(args.Direction, args.Input)
		if err != nil {
			return nil, err
		}
		return []contracts.ConversionJob{{
			Source:    args.Input,
			Dest:      args.Output,
			Name:      filepath.Base(args.Input),
			Direction: dir,
			Size:      stat.Size(),
		}}, nil
	}

	if args.Direction == "" {
		return nil, fmt.Errorf("-direction is required for a directory input")
	}
	dir, err := resolveDirection(args.Direction, "")
	if err != nil {
		return nil, err
	}
	if err := files_manager.CheckProvidedDirs(args.Input, args.Output); err != nil {
		return nil, err
	}
	batch, err := files_manager.BuildJobs(args.Input, args.Output, dir)
	if err != nil {
		return nil, err
	}
	if err := files_manager.EnsureOutputDirs(batch); err != nil {
		return nil, err
	}
	return batch.Jobs, nil
}

func convertJob(c *converter.Converter, j contracts.ConversionJob, s settings) (history.ConversionRecord, error) {
	rec := history.ConversionRecord{Source: j.Source, Dest: j.Dest, Direction: string(j.Direction)}

	if s.plan != nil {
		var (
			res converter.SearchResult
			err error
		)
		if j.Direction == contracts.PdfToTiff {
			res, err = c.Pdf2TiffSizedFile(j.Source, j.Dest, s.dpi, *s.plan)
		} else {
			res, err = c.Tiff2PdfSizedFile(j.Source, j.Dest, *s.plan)
		}
		if err != nil {
			return rec, err
		}
		rec.Profile = s.plan.Profiles()[res.ProfileIndex].String()
		rec.ProfileIndex = res.ProfileIndex
		rec.Pages, rec.Bytes = res.Pages, res.Size
		rec.MaxSize, rec.BudgetMet = res.MaxSize, res.BudgetMet
		rec.Fallbacks = len(res.Diagnostics)
		return rec, nil
	}

	var (
		res converter.Result
		err error
	)
	if j.Direction == contracts.PdfToTiff {
		res, err = c.Pdf2TiffFile(j.Source, j.Dest, s.dpi, s.profile)
	} else {
		res, err = c.Tiff2PdfFile(j.Source, j.Dest, s.profile)
	}
	if err != nil {
		return rec, err
	}
	rec.Profile = s.profile.String()
	rec.Pages, rec.Bytes = res.Pages, res.Size
	rec.BudgetMet = true
	rec.Fallbacks = len(res.Diagnostics)
	return rec, nil
}
