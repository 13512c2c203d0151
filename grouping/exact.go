// Package grouping turns a list of hashed images into ranked duplicate groups.
package grouping

import (
	"sort"

	"dupfinder/types"

	"github.com/google/uuid"
)

// FindExact groups images whose byte size and digest are both equal.
// Images without a digest are skipped.
func FindExact(images []types.ImageRecord) []types.DuplicateGroup {
	// Size first: cheap, and it removes most non-matches
	bySize := make(map[int64][]int)
	var sizes []int64
	for i, img := range images {
		if !img.HasDigest() {
			continue
		}
		if _, ok := bySize[img.Size]; !ok {
			sizes = append(sizes, img.Size)
		}
		bySize[img.Size] = append(bySize[img.Size], i)
	}
	sort.Slice(sizes, func(i, j int) bool { return sizes[i] < sizes[j] })

	var groups []types.DuplicateGroup
	for _, size := range sizes {
		members := bySize[size]
		if len(members) < 2 {
			continue
		}

		byDigest := make(map[string][]int)
		var digests []string
		for _, idx := range members {
			d := images[idx].Hashes.Digest
			if _, ok := byDigest[d]; !ok {
				digests = append(digests, d)
			}
			byDigest[d] = append(byDigest[d], idx)
		}

		for _, d := range digests {
			same := byDigest[d]
			if len(same) < 2 {
				continue
			}
			groups = append(groups, newGroup(images, same, types.MatchExact, 1.0))
		}
	}
	return groups
}

func newGroup(images []types.ImageRecord, members []int, kind types.MatchKind, score float64) types.DuplicateGroup {
	g := types.DuplicateGroup{
		ID:     uuid.NewString(),
		Images: make([]types.ImageRecord, 0, len(members)),
		Kind:   kind,
		Score:  score,
	}
	for _, idx := range members {
		g.Images = append(g.Images, images[idx])
	}
	g.Recompute()
	return g
}
