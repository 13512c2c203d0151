package grouping

import (
	"sort"

	"dupfinder/types"
)

// Merge combines exact and similar groups so that no image appears in two
// groups. Exact groups form the base. Each similar group loses the images
// already claimed; if at least two remain they are folded into the first
// merged group sharing an image with the original similar group (which then
// becomes MatchBoth), or added as a new group. The result is ranked by
// descending potential savings.
func Merge(exact, similar []types.DuplicateGroup) []types.DuplicateGroup {
	merged := make([]types.DuplicateGroup, 0, len(exact)+len(similar))
	claimed := make(map[string]bool)

	for _, g := range exact {
		g.Images = uniqueImages(g.Images, claimed)
		if len(g.Images) < 2 {
			continue
		}
		g.Recompute()
		merged = append(merged, g)
	}

	for _, g := range similar {
		var remaining []types.ImageRecord
		for _, img := range g.Images {
			if !claimed[img.ID] {
				remaining = append(remaining, img)
			}
		}
		remaining = uniqueImages(remaining, nil)
		if len(remaining) < 2 {
			continue
		}

		if pos := overlapping(merged, g.Images); pos >= 0 {
			target := &merged[pos]
			target.Images = append(target.Images, remaining...)
			target.Kind = types.MatchBoth
			target.Recompute()
		} else {
			g.Images = remaining
			g.Recompute()
			merged = append(merged, g)
		}
		for _, img := range remaining {
			claimed[img.ID] = true
		}
	}

	Rank(merged)
	return merged
}

// Rank sorts groups by descending potential savings. Ties keep the group
// whose canonical image has the lowest ID first.
func Rank(groups []types.DuplicateGroup) {
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].PotentialSavings != groups[j].PotentialSavings {
			return groups[i].PotentialSavings > groups[j].PotentialSavings
		}
		return firstID(groups[i]) < firstID(groups[j])
	})
}

func firstID(g types.DuplicateGroup) string {
	if len(g.Images) == 0 {
		return ""
	}
	return g.Images[0].ID
}

// uniqueImages drops repeated IDs and, when claimed is non-nil, IDs already
// claimed; kept IDs are added to claimed.
func uniqueImages(images []types.ImageRecord, claimed map[string]bool) []types.ImageRecord {
	seen := make(map[string]bool, len(images))
	out := images[:0:0]
	for _, img := range images {
		if seen[img.ID] || (claimed != nil && claimed[img.ID]) {
			continue
		}
		seen[img.ID] = true
		out = append(out, img)
	}
	if claimed != nil && len(out) >= 2 {
		for _, img := range out {
			claimed[img.ID] = true
		}
	}
	return out
}

func overlapping(groups []types.DuplicateGroup, images []types.ImageRecord) int {
	ids := make(map[string]bool, len(images))
	for _, img := range images {
		ids[img.ID] = true
	}
	for pos, g := range groups {
		for _, img := range g.Images {
			if ids[img.ID] {
				return pos
			}
		}
	}
	return -1
}
