package xcresult

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/xcbolt/xcreport/internal/core"
	"github.com/xcbolt/xcreport/internal/metrics"
)

const (
	DefaultShutdownTimeout = 60 * time.Second

	// Results buffered ahead of the writer, per worker.
	resultWindowPerWorker = 4
)

// ConversionResult is the xccov text of one source file.
type ConversionResult struct {
	SourceFile string
	Coverage   []byte
}

// CoverageExtractor turns a compact coverage archive into one flat text report.
type CoverageExtractor struct {
	Toolchain Toolchain

	// Workers bounds concurrent `xccov --file` calls; 0 means one per CPU.
	Workers int
	// ShutdownTimeout is how long in-flight calls may run once every file
	// was handed to the pool; 0 means DefaultShutdownTimeout.
	ShutdownTimeout time.Duration
	// FileTimeout bounds a single per-file call; 0 disables it.
	FileTimeout time.Duration

	Emit    core.Emitter
	Metrics *metrics.Pipeline
}

func (x *CoverageExtractor) workers() int {
	return core.WorkerCount(x.Workers)
}

func (x *CoverageExtractor) shutdownTimeout() time.Duration {
	if x.ShutdownTimeout > 0 {
		return x.ShutdownTimeout
	}
	return DefaultShutdownTimeout
}

// Extract writes the coverage of every source file in archive to outFile.
// It first tries the single bulk `xccov view --archive` call and only falls
// back to one call per source file when that fails.
func (x *CoverageExtractor) Extract(ctx context.Context, archive, outFile string) error {
	out := x.Toolchain.run(ctx, x.Toolchain.viewArchiveCmd(archive))
	if err := ctx.Err(); err != nil {
		return err
	}
	if out.Success() {
		if err := os.WriteFile(outFile, out.Stdout, 0o644); err != nil {
			return &ConversionError{Message: "cannot write coverage report " + outFile, Err: err}
		}
		x.Metrics.ArchiveConverted(metrics.PathBulk)
		return nil
	}
	core.EmitMaybe(x.Emit, core.Log("convert", fmt.Sprintf("Bulk coverage export of %s failed (%s), converting file by file", filepath.Base(archive), out.ErrorDetail())))

	files, err := x.sourceFiles(ctx, archive)
	if err != nil {
		return err
	}
	if err := x.extractPerFile(ctx, archive, files, outFile); err != nil {
		_ = os.Remove(outFile)
		return err
	}
	x.Metrics.ArchiveConverted(metrics.PathFallback)
	return nil
}

func (x *CoverageExtractor) sourceFiles(ctx context.Context, archive string) ([]string, error) {
	out := x.Toolchain.run(ctx, x.Toolchain.fileListCmd(archive))
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !out.Success() {
		return nil, toolError("cannot list source files of "+archive, out)
	}
	return parseFileList(out.Stdout), nil
}

// parseFileList returns the non-empty lines of `--file-list` output, sorted.
func parseFileList(b []byte) []string {
	files := []string{}
	for _, line := range strings.Split(string(b), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			files = append(files, line)
		}
	}
	sort.Strings(files)
	return files
}

// extractPerFile fans the per-file conversions out over a bounded pool and
// appends their results to outFile in files order. Only this goroutine
// writes the file; workers hand back their result through a one-slot future.
//
// Each wait for the next in-order result is bounded by the shutdown timeout.
// When it elapses, results that are already done are still written and every
// other file is dropped.
func (x *CoverageExtractor) extractPerFile(ctx context.Context, archive string, files []string, outFile string) error {
	f, err := os.Create(outFile)
	if err != nil {
		return &ConversionError{Message: "cannot create coverage report " + outFile, Err: err}
	}
	defer f.Close()
	w := bufio.NewWriter(f)

	workers := x.workers()
	taskCtx, cancelTasks := context.WithCancel(ctx)

	futures := make([]chan *ConversionResult, len(files))
	for i := range futures {
		futures[i] = make(chan *ConversionResult, 1)
	}
	window := make(chan struct{}, workers*resultWindowPerWorker)
	prog := newProgress(archive, len(files), x.Emit)

	p := pool.New().WithMaxGoroutines(workers)
	submitted := make(chan struct{})
	go func() {
		defer close(submitted)
		for i, name := range files {
			select {
			case window <- struct{}{}:
			case <-taskCtx.Done():
				for j := i; j < len(files); j++ {
					futures[j] <- nil
				}
				return
			}
			p.Go(func() {
				res := x.convertFile(taskCtx, archive, name)
				prog.done()
				futures[i] <- res
			})
		}
	}()
	// Runs on every return path: stop outstanding xccov processes, then
	// wait for the workers to exit.
	defer func() {
		cancelTasks()
		<-submitted
		p.Wait()
	}()

	grace := time.NewTimer(x.shutdownTimeout())
	defer grace.Stop()

	for i := range files {
		grace.Reset(x.shutdownTimeout())
		var res *ConversionResult
		select {
		case res = <-futures[i]:
		case <-grace.C:
			return x.dropPending(w, outFile, archive, files, futures[i:], cancelTasks)
		}
		<-window
		if err := x.write(w, outFile, res); err != nil {
			return err
		}
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	prog.finish()
	return x.flush(w, outFile)
}

// dropPending writes the results in pending that are already available, in
// order, cancels the rest and flushes the report.
func (x *CoverageExtractor) dropPending(w *bufio.Writer, outFile, archive string, files []string, pending []chan *ConversionResult, cancelTasks context.CancelFunc) error {
	dropped := 0
	for _, fut := range pending {
		select {
		case res := <-fut:
			if err := x.write(w, outFile, res); err != nil {
				cancelTasks()
				return err
			}
		default:
			dropped++
		}
	}
	cancelTasks()
	core.EmitMaybe(x.Emit, core.Warn("convert", fmt.Sprintf("%s: %d of %d source files still converting after %s, dropping them",
		filepath.Base(archive), dropped, len(files), x.shutdownTimeout())))
	x.Metrics.FilesDroppedAdd(dropped)
	return x.flush(w, outFile)
}

func (x *CoverageExtractor) write(w *bufio.Writer, outFile string, res *ConversionResult) error {
	if res == nil {
		return nil
	}
	if _, err := fmt.Fprintf(w, "%s\n", res.SourceFile); err != nil {
		return &ConversionError{Message: "cannot write coverage report " + outFile, Err: err}
	}
	if _, err := w.Write(res.Coverage); err != nil {
		return &ConversionError{Message: "cannot write coverage report " + outFile, Err: err}
	}
	return nil
}

func (x *CoverageExtractor) flush(w *bufio.Writer, outFile string) error {
	if err := w.Flush(); err != nil {
		return &ConversionError{Message: "cannot write coverage report " + outFile, Err: err}
	}
	return nil
}

// convertFile runs `xccov view --file` for one source file. Failures are
// logged and yield nil; an interrupted call yields nil silently.
func (x *CoverageExtractor) convertFile(ctx context.Context, archive, name string) *ConversionResult {
	if x.FileTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, x.FileTimeout)
		defer cancel()
	}
	out := x.Toolchain.run(ctx, x.Toolchain.viewFileCmd(archive, name))
	switch {
	case out.Success():
		x.Metrics.FileConverted()
		return &ConversionResult{SourceFile: name, Coverage: out.Stdout}
	case errors.Is(out.Err, context.DeadlineExceeded):
		x.Metrics.FileFailed()
		core.EmitMaybe(x.Emit, core.Warn("convert", fmt.Sprintf("Coverage conversion of %s timed out after %s, skipping it", name, x.FileTimeout)))
	case out.Interrupted():
		x.Metrics.FileInterrupted()
	default:
		x.Metrics.FileFailed()
		core.EmitMaybe(x.Emit, core.Warn("convert", fmt.Sprintf("Coverage conversion of %s failed, skipping it: %s", name, out.ErrorDetail())))
	}
	return nil
}
