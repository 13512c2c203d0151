package scanner

import (
	"context"
	"errors"
	"fmt"

	"dupfinder/hashing"
	"dupfinder/logging"
	"dupfinder/types"

	"golang.org/x/sync/errgroup"
)

// ComputeHashes fills in the hashes of images using a fixed pool of workers.
// Valid cache entries are reused; the digest is only computed for images
// whose byte size is shared with another image, and the perceptual hash is
// skipped in exact mode. New hashes are written back to the cache once all
// workers finish. The returned slice is a copy in input order.
//
// On cancellation the workers stop taking new images, nothing is written to
// the cache and ErrCancelled is returned.
func ComputeHashes(ctx context.Context, images []types.ImageRecord, deps Deps, opts Options, progress ProgressFunc) ([]types.ImageRecord, *HashStats, error) {
	opts = opts.withDefaults()
	if deps.Digest == nil {
		deps.Digest = hashing.DigestFile
	}
	stats := &HashStats{}
	if len(images) == 0 {
		return nil, stats, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, ErrCancelled
	}

	algorithm := ""
	wantPHash := opts.Mode != types.ModeExact && deps.Hasher != nil
	if deps.Hasher != nil {
		algorithm = deps.Hasher.Name()
	}

	sizeCounts := make(map[int64]int, len(images))
	ids := make([]string, len(images))
	for i, img := range images {
		sizeCounts[img.Size]++
		ids[i] = img.ID
	}

	var cached map[string]types.CacheEntry
	if deps.Cache != nil {
		var err error
		cached, err = deps.Cache.LookupMany(ctx, ids)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ErrCancelled
			}
			return nil, nil, fmt.Errorf("hash cache lookup failed: %w", err)
		}
	}

	results := make([]imageResult, len(images))
	tracker := NewProgressTracker(len(images), opts.ProgressEvery, progress)

	g, gctx := errgroup.WithContext(ctx)
	jobs := make(chan int)

	g.Go(func() error {
		defer close(jobs)
		for i := range images {
			select {
			case jobs <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	for w := 0; w < opts.Workers; w++ {
		g.Go(func() error {
			for i := range jobs {
				if gctx.Err() != nil {
					// Drain without working so the feeder can exit.
					continue
				}
				img := images[i]
				entry, found := cached[img.ID]
				res := hashImage(img, entry, found, sizeCounts[img.Size] >= 2, wantPHash, algorithm, deps)
				results[i] = res
				tracker.Done(img, res)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil || ctx.Err() != nil {
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return nil, nil, err
		}
		logging.DebugLog("Hashing cancelled")
		return nil, nil, ErrCancelled
	}
	tracker.LogCompletionStats()

	out := make([]types.ImageRecord, len(images))
	var pending []types.CacheEntry
	for i, img := range images {
		res := results[i]
		img.Hashes = res.hashes
		out[i] = img

		if res.fromCache {
			stats.CacheHits++
		} else {
			stats.Computed++
		}
		if res.err != nil {
			stats.Failed = append(stats.Failed, img.Path)
		}
		if res.store != nil {
			pending = append(pending, *res.store)
		}
	}

	if deps.Cache != nil && len(pending) > 0 {
		if err := deps.Cache.StoreMany(ctx, pending); err != nil {
			logging.LogWarning("Could not write %d hashes to the cache: %v", len(pending), err)
		} else {
			stats.Stored = len(pending)
		}
	}
	return out, stats, nil
}

// hashImage works out the hashes of one image, reusing the cache entry where
// it is still valid. Failures leave the corresponding hash empty.
func hashImage(img types.ImageRecord, entry types.CacheEntry, found, wantDigest, wantPHash bool, algorithm string, deps Deps) imageResult {
	hashes, valid := cachedHashes(entry, found, img, algorithm)

	needDigest := wantDigest && hashes.Digest == ""
	needPHash := wantPHash && hashes.PerceptualHash == ""
	if !needDigest && !needPHash {
		return imageResult{hashes: hashes, fromCache: valid}
	}

	var errs []error
	produced := false

	if needDigest {
		digest, err := deps.Digest(img.Path)
		if err != nil {
			errs = append(errs, fmt.Errorf("digest: %w", err))
		} else {
			hashes.Digest = digest
			produced = true
		}
	}

	if needPHash {
		phash, err := deps.Hasher.Hash(img.Path)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("perceptual hash: %w", err))
		case len(phash) != deps.Hasher.Bits():
			errs = append(errs, fmt.Errorf("perceptual hash has %d bits, want %d", len(phash), deps.Hasher.Bits()))
		default:
			hashes.PerceptualHash = phash
			produced = true
		}
	}

	res := imageResult{hashes: hashes, err: errors.Join(errs...)}
	if produced {
		res.store = newCacheEntry(img, hashes, algorithm)
	}
	return res
}
