package xcresult

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/xcbolt/xcreport/internal/core"
	"github.com/xcbolt/xcreport/internal/metrics"
	"github.com/xcbolt/xcreport/internal/util"
)

// ReportFormat is the upload format of the flat coverage reports, and the
// input format tag that routes files through this pipeline.
const ReportFormat = "XCODE"

// ConvertedReport is one flat coverage report ready for upload.
type ConvertedReport struct {
	Format string `json:"format"`
	File   string `json:"file"`
}

// Converter turns Xcode result bundles, compact coverage archives and tar
// files of either into flat coverage reports.
type Converter struct {
	Runner  core.Runner
	Config  core.Config
	Emit    core.Emitter
	Metrics *metrics.Pipeline
}

func (c *Converter) xcrun() string {
	if c.Config.Xcrun == "" {
		return "xcrun"
	}
	return c.Config.Xcrun
}

// Convert converts every input. The first fatal error aborts the run. The
// per-run working directory is removed on every return path, including
// cancellation; the reports themselves are written outside of it.
func (c *Converter) Convert(ctx context.Context, inputs []string) (reports []ConvertedReport, err error) {
	start := time.Now()
	defer func() { c.Metrics.RunFinished(len(reports), time.Since(start), err) }()

	if err := core.EnsureToolchain(ctx, c.Runner, c.xcrun()); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, &ConversionError{Message: "cannot convert Xcode reports", Err: err}
	}
	tc := Toolchain{
		Runner:  c.Runner,
		Xcrun:   c.xcrun(),
		Version: core.DetermineToolchainVersion(ctx, c.Runner, c.xcrun(), c.Emit),
	}

	workDir, err := os.MkdirTemp(c.Config.WorkDir, "xcreport-")
	if err != nil {
		return nil, &ConversionError{Message: "cannot create working directory", Err: err}
	}
	defer func() {
		if rmErr := util.RemoveAllIfExists(workDir); rmErr != nil {
			core.EmitMaybe(c.Emit, core.Warn("convert", "Could not remove working directory: "+rmErr.Error()))
		}
	}()

	reports = []ConvertedReport{}
	for i, input := range inputs {
		got, err := c.convertInput(ctx, tc, input, filepath.Join(workDir, strconv.Itoa(i)))
		if err != nil {
			return nil, err
		}
		reports = append(reports, got...)
	}
	return reports, nil
}

func (c *Converter) extractor(tc Toolchain) *CoverageExtractor {
	return &CoverageExtractor{
		Toolchain:       tc,
		Workers:         c.Config.EffectiveWorkers(),
		ShutdownTimeout: time.Duration(c.Config.ShutdownTimeout),
		FileTimeout:     time.Duration(c.Config.FileTimeout),
		Emit:            c.Emit,
		Metrics:         c.Metrics,
	}
}

func (c *Converter) outputDir(input string) (string, error) {
	dir := c.Config.OutputDir
	if dir == "" {
		dir = filepath.Dir(input)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", &ConversionError{Message: "cannot create output directory " + dir, Err: err}
	}
	return dir, nil
}

func (c *Converter) convertInput(ctx context.Context, tc Toolchain, input, scratch string) ([]ConvertedReport, error) {
	path := input
	if IsCompressedArchive(path) {
		dest := filepath.Join(scratch, trimArchiveSuffix(filepath.Base(path)))
		size := ""
		if fi, err := os.Stat(path); err == nil {
			size = " (" + humanize.Bytes(uint64(fi.Size())) + ")"
		}
		core.EmitMaybe(c.Emit, core.Status("convert", "Extracting "+filepath.Base(path)+size, nil))
		if err := ExtractArchive(path, dest); err != nil {
			return nil, err
		}
		path = unwrapExtracted(dest)
	}

	switch {
	case IsCompactArchive(path):
		outDir, err := c.outputDir(input)
		if err != nil {
			return nil, err
		}
		report, err := c.convertArchive(ctx, tc, path, outDir)
		if err != nil {
			return nil, err
		}
		return []ConvertedReport{report}, nil
	case IsFullBundle(path):
		outDir, err := c.outputDir(input)
		if err != nil {
			return nil, err
		}
		return c.convertBundle(ctx, tc, path, scratch, outDir)
	default:
		return nil, &ConversionError{Message: fmt.Sprintf(
			"%s is not an Xcode coverage report: expected a %s or %s directory, or a .tar, .tar.gz, .tgz or .tar.xz archive of one",
			input, BundleExt, CompactArchiveExt)}
	}
}

func (c *Converter) convertBundle(ctx context.Context, tc Toolchain, bundle, scratch, outDir string) ([]ConvertedReport, error) {
	if info, err := ReadBundleInfo(bundle); err != nil {
		core.EmitMaybe(c.Emit, core.Warn("convert", fmt.Sprintf("%s: %v", filepath.Base(bundle), err)))
	} else {
		core.EmitMaybe(c.Emit, core.Log("convert", fmt.Sprintf("%s: result bundle format %s", filepath.Base(bundle), info.Version)))
	}

	rec, err := ReadActionsInvocationRecord(ctx, tc, bundle)
	if err != nil {
		return nil, err
	}
	if !rec.HasCoverageData() {
		core.EmitMaybe(c.Emit, core.Warn("convert", fmt.Sprintf("%s contains no coverage data, nothing to upload for it", filepath.Base(bundle))))
		return nil, nil
	}

	archives, err := MaterializeCoverageArchives(ctx, tc, bundle, rec, scratch, c.Emit)
	if err != nil {
		return nil, err
	}
	reports := make([]ConvertedReport, 0, len(archives))
	for _, archive := range archives {
		report, err := c.convertArchive(ctx, tc, archive, outDir)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func (c *Converter) convertArchive(ctx context.Context, tc Toolchain, archive, outDir string) (ConvertedReport, error) {
	out := reportPath(outDir, archive)
	core.EmitMaybe(c.Emit, core.Status("convert", "Converting "+filepath.Base(archive), nil))
	if err := c.extractor(tc).Extract(ctx, archive, out); err != nil {
		return ConvertedReport{}, err
	}
	return ConvertedReport{Format: ReportFormat, File: out}, nil
}

// unwrapExtracted picks the bundle or archive a tar file contained: its
// single top-level .xcresult/.xccovarchive directory, or the extraction
// directory itself when the tar held the bundle's contents directly.
func unwrapExtracted(dest string) string {
	entries, err := os.ReadDir(dest)
	if err != nil || len(entries) != 1 {
		return dest
	}
	child := filepath.Join(dest, entries[0].Name())
	if IsFullBundle(child) || IsCompactArchive(child) {
		return child
	}
	return dest
}
