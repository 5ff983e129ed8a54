package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"time"

	"pdftiff/config"
	"pdftiff/contracts"
	"pdftiff/observability"
	"pdftiff/rasterizer"
)

type InputFlags = contracts.InputFlags

func main() {
	args, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		os.Exit(2)
	}

	level := slog.LevelInfo
	if args.Verbose {
		level = slog.LevelDebug
	}
	logger := observability.NewSlog(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	startTime := time.Now()
	failed, err := run(args, logger)
	if err != nil {
		logger.Error("conversion aborted", observability.Error("error", err))
		os.Exit(1)
	}
	logger.Info("done",
		observability.String("elapsed", time.Since(startTime).Round(time.Millisecond).String()),
		observability.Int("failed", failed),
	)
	if failed > 0 {
		os.Exit(1)
	}
}

func parseFlags(argv []string, out io.Writer) (InputFlags, error) {
	fs := flag.NewFlagSet("pdftiff", flag.ContinueOnError)
	fs.SetOutput(out)

	var args InputFlags
	var maxSize string
	fs.StringVar(&args.Direction, "direction", "", "pdf2tiff or tiff2pdf (default: from the input extension)")
	fs.StringVar(&args.Input, "input", "", "Input file, or directory for a batch run")
	fs.StringVar(&args.Output, "output", "", "Output file, or directory for a batch run")
	fs.StringVar(&args.PlanFile, "plan", "", "YAML size-control plan")
	fs.StringVar(&args.Compression, "compression", "auto", "auto, jpeg, lossless or ccitt")
	fs.StringVar(&args.ColorHint, "color", "auto", "auto, rgb, gray or binary")
	fs.Float64Var(&args.Quality, "quality", contracts.DefaultQuality, "Lossy quality (0.0-1.0)")
	fs.IntVar(&args.DPI, "dpi", 300, "Rasterization resolution for PDF input")
	fs.IntVar(&args.TargetDPI, "target-dpi", 0, "Downsample pages above this resolution (0 keeps it)")
	fs.StringVar(&maxSize, "max-size", "", "Output size budget, e.g. 2MB; tries progressively smaller settings")
	fs.StringVar(&args.PDFBackend, "pdf-backend", "native", "native or gofpdf")
	fs.StringVar(&args.Rasterizer, "rasterizer", rasterizer.Preferred(), fmt.Sprintf("PDF rasterizer %v", rasterizer.Names()))
	fs.StringVar(&args.HistoryDB, "history", "", "sqlite file recording every conversion")
	fs.IntVar(&args.Workers, "workers", max(runtime.NumCPU()-1, 1), "Parallel conversions in batch mode")
	fs.BoolVar(&args.Verbose, "v", false, "Debug logging")

	if err := fs.Parse(argv); err != nil {
		return args, err
	}
	if args.Input == "" || args.Output == "" {
		fmt.Fprintln(out, "-input and -output are required")
		fs.Usage()
		return args, fmt.Errorf("missing arguments")
	}
	if maxSize != "" {
		n, err := config.ParseSize(maxSize)
		if err != nil {
			fmt.Fprintln(out, err)
			return args, err
		}
		args.MaxSize = n
	}
	return args, nil
}
