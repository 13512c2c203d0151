package grouping

import (
	"context"

	"dupfinder/logging"
	"dupfinder/types"

	"golang.org/x/sync/errgroup"
)

// FindDuplicates runs the exact and, unless mode is exact-only, the
// similarity grouper concurrently and merges their output.
func FindDuplicates(ctx context.Context, images []types.ImageRecord, threshold float64, mode types.ScanMode) ([]types.DuplicateGroup, error) {
	images = dedupeByID(images)

	var exact, similar []types.DuplicateGroup
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		exact = FindExact(images)
		return ctx.Err()
	})
	if mode != types.ModeExact {
		g.Go(func() error {
			similar = FindSimilar(images, threshold)
			return ctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := Merge(exact, similar)
	logging.DebugLog("Grouping done: %d exact, %d similar, %d merged groups", len(exact), len(similar), len(merged))
	return merged, nil
}

func dedupeByID(images []types.ImageRecord) []types.ImageRecord {
	seen := make(map[string]bool, len(images))
	out := make([]types.ImageRecord, 0, len(images))
	for _, img := range images {
		if seen[img.ID] {
			continue
		}
		seen[img.ID] = true
		out = append(out, img)
	}
	return out
}
