package xcresult

import (
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/xcbolt/xcreport/internal/core"
)

// progress reports fallback conversion throughput every time completion
// crosses a whole percent.
type progress struct {
	archive string
	total   int64
	start   time.Time
	emit    core.Emitter

	completed   atomic.Int64
	lastPercent atomic.Int64
}

func newProgress(archive string, total int, emit core.Emitter) *progress {
	return &progress{archive: filepath.Base(archive), total: int64(total), start: time.Now(), emit: emit}
}

func (p *progress) done() {
	n := p.completed.Add(1)
	if p.total == 0 {
		return
	}
	pct := n * 100 / p.total
	for {
		last := p.lastPercent.Load()
		if pct <= last {
			return
		}
		if p.lastPercent.CompareAndSwap(last, pct) {
			break
		}
	}
	perHour := filesPerHour(n, time.Since(p.start))
	core.EmitMaybe(p.emit, core.Status("convert",
		fmt.Sprintf("%s: %d/%d files (%d%%), ~%s files/hour", p.archive, n, p.total, pct, humanize.Comma(perHour)),
		map[string]any{"archive": p.archive, "completed": n, "total": p.total, "percent": pct, "filesPerHour": perHour},
	))
}

func (p *progress) finish() {
	elapsed := time.Since(p.start)
	core.EmitMaybe(p.emit, core.Status("convert",
		fmt.Sprintf("%s: converted %d files in %.1f seconds", p.archive, p.completed.Load(), elapsed.Seconds()),
		map[string]any{"archive": p.archive, "completed": p.completed.Load(), "total": p.total, "seconds": elapsed.Seconds()},
	))
}

// filesPerHour projects n completions over elapsed to an hourly rate.
func filesPerHour(n int64, elapsed time.Duration) int64 {
	if elapsed <= 0 {
		return 0
	}
	return int64(float64(n) / elapsed.Hours())
}
