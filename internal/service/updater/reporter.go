package updater

import (
	"context"
	"sync"

	"github.com/oshokin/tandem-updater/internal/download"
	"github.com/oshokin/tandem-updater/internal/logger"
)

// Reporter receives pipeline status and progress events. Front ends implement
// it to render the run however they like; the updater never references
// presentation widgets.
type Reporter interface {
	// Stage is invoked once per pipeline stage transition.
	Stage(stage Stage)
	// Progress is invoked after every downloaded chunk. total is
	// download.UnknownTotal when the asset size is not known; callers must
	// then render indeterminate progress instead of a percentage.
	Progress(component string, bytesRead, total int64)
}

// NopReporter discards all events.
type NopReporter struct{}

// Stage implements Reporter.
func (NopReporter) Stage(Stage) {}

// Progress implements Reporter.
func (NopReporter) Progress(string, int64, int64) {}

// progressLogStep is how much of a download must complete between
// indeterminate progress log lines.
const progressLogStep = 10 * 1024 * 1024

// logReporter forwards events to the structured log. It is the default
// reporter when the caller provides none.
type logReporter struct {
	// ctx carries the named logger of the run.
	ctx context.Context

	// mu guards lastMark; downloads report progress concurrently.
	mu sync.Mutex
	// lastMark tracks the last logged decile (or byte step) per component
	// to keep download logging readable.
	lastMark map[string]int64
}

func newLogReporter(ctx context.Context) *logReporter {
	return &logReporter{
		ctx:      ctx,
		lastMark: make(map[string]int64),
	}
}

// Stage logs the pipeline transition.
func (r *logReporter) Stage(stage Stage) {
	logger.InfoKV(r.ctx, "Pipeline stage", "stage", stage.String())
}

// Progress logs download progress once per decile, or once per fixed byte
// step when the total size is unknown.
func (r *logReporter) Progress(component string, bytesRead, total int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if total == download.UnknownTotal || total <= 0 {
		mark := bytesRead / progressLogStep

		// The first chunk always logs so the download is visibly underway.
		last, seen := r.lastMark[component]
		if !seen || mark > last {
			r.lastMark[component] = mark
			logger.InfoKV(r.ctx, "Downloading", "component", component, "bytes", bytesRead)
		}

		return
	}

	percent := bytesRead * 100 / total

	mark := percent / 10
	if mark > r.lastMark[component] {
		r.lastMark[component] = mark
		logger.InfoKV(r.ctx, "Downloading",
			"component", component, "percent", percent, "bytes", bytesRead, "total", total)
	}
}
