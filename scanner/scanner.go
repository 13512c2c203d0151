// Package scanner runs the duplicate scan pipeline: list images, hash them
// with a worker pool, group them, and report progress along the way.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"dupfinder/grouping"
	"dupfinder/logging"
	"dupfinder/types"
)

// Scanner wires a media source, the hash cache and a hasher into a full scan
type Scanner struct {
	Source    MediaSource
	Cache     HashCache
	Hasher    PerceptualHasher
	Digest    DigestFunc
	Threshold float64 // in [0,1]; values outside fall back to grouping.DefaultThreshold
	Mode      types.ScanMode
	Workers   int
}

// Scan runs loading, hashing and comparing, and returns the ranked groups.
// progress may be nil. The last event has phase complete, cancelled or error.
func (s *Scanner) Scan(ctx context.Context, progress ProgressFunc) (*types.ScanResult, error) {
	start := time.Now()
	emit := func(p types.ScanProgress) {
		if progress != nil {
			progress(p)
		}
	}
	fail := func(err error) (*types.ScanResult, error) {
		if errors.Is(err, ErrCancelled) || ctx.Err() != nil {
			emit(types.ScanProgress{Phase: types.PhaseCancelled, Message: "Scan cancelled"})
			return nil, ErrCancelled
		}
		logging.LogError("Scan failed: %v", err)
		emit(types.ScanProgress{Phase: types.PhaseError, Message: err.Error()})
		return nil, err
	}

	threshold := s.Threshold
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		threshold = grouping.DefaultThreshold
	}
	mode := s.Mode
	if mode == "" {
		mode = types.ModeSimilar
	}

	emit(types.ScanProgress{Phase: types.PhaseLoading, Message: "Loading images"})
	if s.Source == nil {
		return fail(fmt.Errorf("%w: no media source configured", ErrSourceUnavailable))
	}
	images, err := s.Source.ListImages(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return fail(ErrCancelled)
		}
		return fail(fmt.Errorf("%w: %v", ErrSourceUnavailable, err))
	}
	emit(types.ScanProgress{Phase: types.PhaseLoading, Current: len(images), Total: len(images),
		Message: fmt.Sprintf("Found %d images", len(images))})
	logging.LogInfo("Scanning %d images (mode %s, threshold %.2f)", len(images), mode, threshold)

	emit(types.ScanProgress{Phase: types.PhaseHashing, Total: len(images), Message: "Computing hashes"})
	hashed, stats, err := ComputeHashes(ctx, images,
		Deps{Cache: s.Cache, Hasher: s.Hasher, Digest: s.Digest},
		Options{Workers: s.Workers, Mode: mode},
		progress)
	if err != nil {
		return fail(err)
	}

	emit(types.ScanProgress{Phase: types.PhaseComparing, Total: 1, Message: "Finding duplicates"})
	groups, err := grouping.FindDuplicates(ctx, hashed, threshold, mode)
	if err != nil {
		return fail(err)
	}
	if ctx.Err() != nil {
		return fail(ErrCancelled)
	}
	emit(types.ScanProgress{Phase: types.PhaseComparing, Current: 1, Total: 1})

	result := &types.ScanResult{
		TotalImages: len(images),
		Images:      hashed,
		Unhashed:    stats.Failed,
		Groups:      groups,
		Duration:    time.Since(start),
		Timestamp:   start,
	}
	for _, g := range groups {
		result.TotalDuplicates += len(g.Images) - 1
		result.PotentialSavings += g.PotentialSavings
	}

	logging.LogInfo("Scan finished in %v: %d groups, %d duplicates, %d bytes reclaimable, %d cache hits",
		result.Duration.Round(time.Millisecond), len(groups), result.TotalDuplicates, result.PotentialSavings, stats.CacheHits)
	emit(types.ScanProgress{
		Phase:   types.PhaseComplete,
		Current: len(images),
		Total:   len(images),
		Message: fmt.Sprintf("Found %d duplicate groups", len(groups)),
	})
	return result, nil
}

// Event is one item of the stream returned by Events. The final event has a
// terminal phase and carries either Result or Err.
type Event struct {
	Progress types.ScanProgress
	Result   *types.ScanResult
	Err      error
}

// Events runs s.Scan in the background and streams its progress. The channel
// is closed after the terminal event. A consumer that stops reading must
// cancel ctx.
func Events(ctx context.Context, s *Scanner) <-chan Event {
	ch := make(chan Event, 16)
	go func() {
		defer close(ch)

		var last types.ScanProgress
		send := func(ev Event) bool {
			select {
			case ch <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		result, err := s.Scan(ctx, func(p types.ScanProgress) {
			last = p
			if !p.Phase.Terminal() {
				send(Event{Progress: p})
			}
		})

		final := Event{Progress: last, Result: result, Err: err}
		if ctx.Err() != nil {
			// The consumer may be gone; do not block on the final send.
			select {
			case ch <- final:
			default:
			}
			return
		}
		send(final)
	}()
	return ch
}
