package scanner

import (
	"sync"
	"time"

	"dupfinder/imageprocessor"
	"dupfinder/logging"
	"dupfinder/types"
)

// ProgressTracker counts hashing completions and throttles progress events
type ProgressTracker struct {
	mu           sync.Mutex
	fn           ProgressFunc
	every        int
	total        int
	processed    int
	errors       int
	rawProcessed int
	rawErrors    int
	cacheHits    int
	start        time.Time
}

// NewProgressTracker returns a tracker for total items reporting through fn
func NewProgressTracker(total, every int, fn ProgressFunc) *ProgressTracker {
	return &ProgressTracker{
		fn:    fn,
		every: every,
		total: total,
		start: time.Now(),
	}
}

// Done records one finished image and emits a hashing event every `every`
// completions and on the last one
func (p *ProgressTracker) Done(img types.ImageRecord, res imageResult) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.processed++
	isRaw := imageprocessor.IsRawFormat(img.Path)
	if isRaw {
		p.rawProcessed++
	}
	if res.fromCache {
		p.cacheHits++
	}
	if res.err != nil {
		p.errors++
		if isRaw {
			p.rawErrors++
		}
		logging.LogImageProcessed(img.Path, false, res.err.Error())
	} else {
		logging.LogImageProcessed(img.Path, true, "")
	}

	if p.fn != nil && (p.processed%p.every == 0 || p.processed == p.total) {
		p.fn(types.ScanProgress{
			Phase:       types.PhaseHashing,
			Current:     p.processed,
			Total:       p.total,
			CurrentFile: img.Name,
		})
	}
}

// LogCompletionStats writes the final counters to the debug log
func (p *ProgressTracker) LogCompletionStats() {
	p.mu.Lock()
	defer p.mu.Unlock()

	logging.DebugLog("Hashing completed in %v. Processed: %d/%d, Cache hits: %d, Errors: %d, RAW files: %d, RAW errors: %d",
		time.Since(p.start).Round(time.Millisecond), p.processed, p.total, p.cacheHits, p.errors, p.rawProcessed, p.rawErrors)
}
