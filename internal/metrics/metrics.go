// Package metrics records conversion pipeline counters on a private
// Prometheus registry that can be written out as a node_exporter textfile.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "xcreport"

// Archive extraction paths.
const (
	PathBulk     = "bulk"
	PathFallback = "fallback"
)

// Pipeline is safe for concurrent use. A nil *Pipeline records nothing.
type Pipeline struct {
	reg *prometheus.Registry

	Reports          prometheus.Counter
	Archives         *prometheus.CounterVec
	FilesConverted   prometheus.Counter
	FilesFailed      prometheus.Counter
	FilesInterrupted prometheus.Counter
	FilesDropped     prometheus.Counter
	RunFailures      prometheus.Counter
	RunDuration      prometheus.Histogram
}

func NewPipeline() *Pipeline {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Pipeline{
		reg: reg,
		Reports: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_total",
			Help:      "Flat coverage reports produced.",
		}),
		Archives: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archives_total",
			Help:      "Compact coverage archives converted, by extraction path.",
		}, []string{"path"}),
		FilesConverted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_files_converted_total",
			Help:      "Source files converted one by one on the fallback path.",
		}),
		FilesFailed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_files_failed_total",
			Help:      "Source files whose xccov call failed or timed out.",
		}),
		FilesInterrupted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_files_interrupted_total",
			Help:      "Source files whose xccov call was interrupted.",
		}),
		FilesDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_files_dropped_total",
			Help:      "Source files still pending when the shutdown timeout elapsed.",
		}),
		RunFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_failures_total",
			Help:      "Conversion runs that ended with an error.",
		}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a conversion run.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}
}

func (p *Pipeline) ArchiveConverted(path string) {
	if p == nil {
		return
	}
	p.Archives.WithLabelValues(path).Inc()
}

func (p *Pipeline) FileConverted() {
	if p == nil {
		return
	}
	p.FilesConverted.Inc()
}

func (p *Pipeline) FileFailed() {
	if p == nil {
		return
	}
	p.FilesFailed.Inc()
}

func (p *Pipeline) FileInterrupted() {
	if p == nil {
		return
	}
	p.FilesInterrupted.Inc()
}

func (p *Pipeline) FilesDroppedAdd(n int) {
	if p == nil || n <= 0 {
		return
	}
	p.FilesDropped.Add(float64(n))
}

func (p *Pipeline) RunFinished(reports int, d time.Duration, err error) {
	if p == nil {
		return
	}
	p.RunDuration.Observe(d.Seconds())
	if err != nil {
		p.RunFailures.Inc()
		return
	}
	p.Reports.Add(float64(reports))
}

// WriteTextfile writes all metrics in the Prometheus text format.
func (p *Pipeline) WriteTextfile(path string) error {
	if p == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, p.reg)
}
