package writers

import "github.com/schollz/progressbar/v3"

// Reporter receives incremental tile counts as a writer streams a source to
// disk. The narrow Add(n int) shape matches versatiles.Reporter so the same
// concrete implementation plugs into any writer in this module without any
// of them importing a presentation library themselves.
type Reporter interface {
	Add(n int)
}

// ProgressReporter adapts *progressbar.ProgressBar to Reporter, giving
// long conversions a console tile counter.
type ProgressReporter struct {
	bar *progressbar.ProgressBar
}

// NewProgressReporter creates an indeterminate, tile-counting console bar.
func NewProgressReporter(description string) *ProgressReporter {
	return &ProgressReporter{bar: progressbar.Default(-1, description)}
}

func (p *ProgressReporter) Add(n int) { _ = p.bar.Add(n) }

func report(r Reporter, n int) {
	if r != nil {
		r.Add(n)
	}
}
