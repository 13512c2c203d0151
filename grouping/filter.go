package grouping

import (
	"strings"

	"dupfinder/types"
)

// ApplyFilter removes images that do not match criteria from every group,
// drops groups left with fewer than two images or of a kind not allowed,
// recomputes totals and re-ranks. Without active filters the groups are
// returned as is.
func ApplyFilter(groups []types.DuplicateGroup, criteria types.FilterCriteria) []types.DuplicateGroup {
	if !criteria.HasActiveFilters() {
		return groups
	}

	out := make([]types.DuplicateGroup, 0, len(groups))
	for _, g := range groups {
		if !kindAllowed(g.Kind, criteria.MatchKinds) {
			continue
		}

		kept := make([]types.ImageRecord, 0, len(g.Images))
		for _, img := range g.Images {
			if matches(img, criteria) {
				kept = append(kept, img)
			}
		}
		if len(kept) < 2 {
			continue
		}

		g.Images = kept
		g.Recompute()
		out = append(out, g)
	}
	Rank(out)
	return out
}

func matches(img types.ImageRecord, c types.FilterCriteria) bool {
	if len(c.Folders) > 0 {
		ok := false
		for _, f := range c.Folders {
			if strings.EqualFold(img.Folder, f) || strings.Contains(img.Path, f) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}

	if c.DateRange != nil && (img.ModifiedAt < c.DateRange.Start || img.ModifiedAt > c.DateRange.End) {
		return false
	}
	if c.MinSize != nil && img.Size < *c.MinSize {
		return false
	}
	if c.MaxSize != nil && img.Size > *c.MaxSize {
		return false
	}

	if len(c.MimeTypes) > 0 {
		mime := strings.ToLower(img.MimeType)
		ok := false
		for _, m := range c.MimeTypes {
			if strings.Contains(mime, strings.ToLower(m)) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

func kindAllowed(kind types.MatchKind, allowed []types.MatchKind) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, k := range allowed {
		if k == kind {
			return true
		}
	}
	return false
}
