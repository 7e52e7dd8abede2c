package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPipelineCounters(t *testing.T) {
	p := NewPipeline()
	p.ArchiveConverted(PathBulk)
	p.ArchiveConverted(PathFallback)
	p.ArchiveConverted(PathFallback)
	p.FileConverted()
	p.FileFailed()
	p.FileInterrupted()
	p.FilesDroppedAdd(3)
	p.FilesDroppedAdd(0)
	p.RunFinished(2, time.Second, nil)
	p.RunFinished(5, time.Second, errors.New("boom"))

	if got := testutil.ToFloat64(p.Archives.WithLabelValues(PathFallback)); got != 2 {
		t.Fatalf("fallback archives = %v, want 2", got)
	}
	if got := testutil.ToFloat64(p.Archives.WithLabelValues(PathBulk)); got != 1 {
		t.Fatalf("bulk archives = %v, want 1", got)
	}
	if got := testutil.ToFloat64(p.FilesDropped); got != 3 {
		t.Fatalf("dropped = %v, want 3", got)
	}
	if got := testutil.ToFloat64(p.Reports); got != 2 {
		t.Fatalf("reports = %v, want 2 (failed runs do not count)", got)
	}
	if got := testutil.ToFloat64(p.RunFailures); got != 1 {
		t.Fatalf("run failures = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(p.RunDuration); got != 1 {
		t.Fatalf("histogram series = %d, want 1", got)
	}
}

func TestNilPipelineIsNoop(t *testing.T) {
	var p *Pipeline
	p.ArchiveConverted(PathBulk)
	p.FileConverted()
	p.FilesDroppedAdd(1)
	p.RunFinished(1, time.Second, nil)
	if err := p.WriteTextfile(filepath.Join(t.TempDir(), "m.prom")); err != nil {
		t.Fatalf("WriteTextfile on nil: %v", err)
	}
}

func TestWriteTextfile(t *testing.T) {
	p := NewPipeline()
	p.FileConverted()
	path := filepath.Join(t.TempDir(), "xcreport.prom")
	if err := p.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(b), "xcreport_source_files_converted_total 1") {
		t.Fatalf("textfile missing counter:\n%s", b)
	}
}
