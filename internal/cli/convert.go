package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/xcbolt/xcreport/internal/core"
	"github.com/xcbolt/xcreport/internal/metrics"
	"github.com/xcbolt/xcreport/internal/report"
	"github.com/xcbolt/xcreport/internal/util"
	"github.com/xcbolt/xcreport/internal/xcresult"
)

type convertOptions struct {
	format          string
	workers         int
	outputDir       string
	workDir         string
	shutdownTimeout time.Duration
	fileTimeout     time.Duration
	manifest        string
	metricsFile     string
}

func newConvertCmd() *cobra.Command {
	var opts convertOptions

	cmd := &cobra.Command{
		Use:   "convert FILE...",
		Short: "Convert .xcresult bundles, .xccovarchive directories or tar files of them into flat coverage reports",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ac, err := NewAppContext(flags, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			applyConvertFlags(cmd, &ac.Config, opts)
			if err := ac.Config.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runConvert(ctx, ac, core.ExecRunner{}, opts.format, args, opts.manifest)
		},
	}

	cmd.Flags().StringVar(&opts.format, "format", xcresult.ReportFormat, "Report format of the inputs; only XCODE inputs are converted")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "Concurrent per-file xccov conversions (default: one per CPU)")
	cmd.Flags().StringVar(&opts.outputDir, "output-dir", "", "Directory for the flat reports (default: next to each input)")
	cmd.Flags().StringVar(&opts.workDir, "work-dir", "", "Parent of the temporary working directory")
	cmd.Flags().DurationVar(&opts.shutdownTimeout, "shutdown-timeout", 0, "Grace period for in-flight per-file conversions (default 60s)")
	cmd.Flags().DurationVar(&opts.fileTimeout, "file-timeout", 0, "Timeout of a single per-file conversion, 0 keeps the configured value")
	cmd.Flags().StringVar(&opts.manifest, "manifest", "", "Write the format -> reports manifest as JSON to this file")
	cmd.Flags().StringVar(&opts.metricsFile, "metrics-file", "", "Write Prometheus metrics in textfile format to this file")
	return cmd
}

// applyConvertFlags overrides config values with the flags that were set.
func applyConvertFlags(cmd *cobra.Command, cfg *core.Config, opts convertOptions) {
	if cmd.Flags().Changed("workers") {
		cfg.Workers = opts.workers
	}
	if opts.outputDir != "" {
		cfg.OutputDir = opts.outputDir
	}
	if opts.workDir != "" {
		cfg.WorkDir = opts.workDir
	}
	if opts.shutdownTimeout > 0 {
		cfg.ShutdownTimeout = core.Duration(opts.shutdownTimeout)
	}
	if cmd.Flags().Changed("file-timeout") {
		cfg.FileTimeout = core.Duration(opts.fileTimeout)
	}
	if opts.metricsFile != "" {
		cfg.MetricsFile = opts.metricsFile
	}
}

func runConvert(ctx context.Context, ac AppContext, runner core.Runner, format string, files []string, manifest string) error {
	var m *metrics.Pipeline
	if ac.Config.MetricsFile != "" {
		m = metrics.NewPipeline()
		defer func() {
			if err := m.WriteTextfile(ac.Config.MetricsFile); err != nil {
				ac.Emitter.Emit(core.Warn("convert", "Could not write metrics: "+err.Error()))
			}
		}()
	}

	conv := &xcresult.Converter{Runner: runner, Config: ac.Config, Emit: ac.Emitter, Metrics: m}
	reports, err := report.Convert(ctx, conv, map[string][]string{format: files})
	if err != nil {
		return failure("convert", ac.Emitter, err)
	}

	if manifest != "" {
		if err := util.WriteJSONFile(manifest, reports, 0o644); err != nil {
			return fmt.Errorf("write manifest: %w", err)
		}
	}
	if ac.Flags.JSON {
		ac.Emitter.Emit(core.Result("convert", true, map[string]any{"reports": reports}))
		return nil
	}
	n := 0
	for _, f := range reports.Formats() {
		for _, file := range reports[f] {
			ac.Emitter.Emit(core.Status("convert", fmt.Sprintf("%s report: %s", f, file), nil))
			n++
		}
	}
	if n == 0 {
		ac.Emitter.Emit(core.Warn("convert", "No coverage reports produced"))
	}
	return nil
}
