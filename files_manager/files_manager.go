package files_manager

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"pdftiff/contracts"
)

type BatchFolder = contracts.BatchFolder
type ConversionJob = contracts.ConversionJob

// CheckProvidedDirs validates a batch run. The output directory is created
// when missing; the two directories must not contain one another.
func CheckProvidedDirs(inputRootDir string, outputDir string) error {
	if inputRootDir == "" || outputDir == "" {
		return fmt.Errorf("input and output directories required")
	}

	if stat, err := os.Stat(inputRootDir); err != nil || !stat.IsDir() {
		return fmt.Errorf("input directory does not exist or is not a directory")
	}

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("cannot create output directory: %v", err)
	}
	if stat, err := os.Stat(outputDir); err != nil || !stat.IsDir() {
		return fmt.Errorf("output directory does not exist or is not a directory")
	}

	in, err := filepath.Abs(inputRootDir)
	if err != nil {
		return err
	}
	out, err := filepath.Abs(outputDir)
	if err != nil {
		return err
	}
	if in == out {
		return fmt.Errorf("input and output directories must be different")
	}
	if within(in, out) || within(out, in) {
		return fmt.Errorf("input and output directories must not be subdirectories of each other")
	}
	return nil
}

func within(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// GetSourcePaths lists the files of dir with one of exts, skipping
// directories and AppleDouble "._" files.
func GetSourcePaths(dir string, exts []string) ([]string, int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, 0, err
	}
	files := make([]string, 0, len(entries))
	var size int64 = 0
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), "._") {
			continue
		}
		if !hasExt(entry.Name(), exts) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
		size += info.Size()
	}
	return files, size, nil
}

func hasExt(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

// BuildJobs collects the source files of inputDir and of its immediate
// subdirectories. Each one maps to a file of the same base name in
// outputDir, under the same subdirectory. Subdirectories that cannot be
// read are listed in Failed.
func BuildJobs(inputDir, outputDir string, direction contracts.Direction) (BatchFolder, error) {
	batch := BatchFolder{Path: inputDir, OutputDir: outputDir}

	dirs := []string{""}
	entries, err := os.ReadDir(inputDir)
	if err != nil {
		return batch, err
	}
	for _, entry := range entries {
		if entry.IsDir() && !strings.HasPrefix(entry.Name(), ".") {
			dirs = append(dirs, entry.Name())
		}
	}

	for _, sub := range dirs {
		files, size, err := GetSourcePaths(filepath.Join(inputDir, sub), direction.SourceExtensions())
		if err != nil {
			batch.Failed = append(batch.Failed, filepath.Join(inputDir, sub))
			continue
		}
		for _, f := range files {
			info, err := os.Stat(f)
			if err != nil {
				batch.Failed = append(batch.Failed, f)
				continue
			}
			name := strings.TrimSuffix(filepath.Base(f), filepath.Ext(f))
			batch.Jobs = append(batch.Jobs, ConversionJob{
				Source:    f,
				Dest:      filepath.Join(outputDir, sub, name+direction.TargetExtension()),
				Name:      filepath.Join(sub, name),
				Direction: direction,
				Size:      info.Size(),
			})
		}
		batch.TotalSize += size
	}
	return batch, nil
}

// EnsureOutputDirs creates every destination directory of the batch.
func EnsureOutputDirs(batch BatchFolder) error {
	seen := map[string]bool{}
	for _, j := range batch.Jobs {
		dir := filepath.Dir(j.Dest)
		if seen[dir] {
			continue
		}
		seen[dir] = true
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}
