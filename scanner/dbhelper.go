package scanner

import (
	"dupfinder/types"
)

// cachedHashes returns the hashes an entry can still supply for img, and
// whether the entry is valid at all. A perceptual hash from a different
// algorithm is ignored.
func cachedHashes(entry types.CacheEntry, found bool, img types.ImageRecord, algorithm string) (types.HashPair, bool) {
	if !found || !entry.Valid(img) {
		return types.HashPair{}, false
	}
	pair := types.HashPair{Digest: entry.Digest}
	if entry.Algorithm == algorithm {
		pair.PerceptualHash = entry.PerceptualHash
	}
	return pair, true
}

// newCacheEntry builds the entry written after hashing img
func newCacheEntry(img types.ImageRecord, hashes types.HashPair, algorithm string) *types.CacheEntry {
	e := &types.CacheEntry{
		ImageID:        img.ID,
		Path:           img.Path,
		Digest:         hashes.Digest,
		PerceptualHash: hashes.PerceptualHash,
		ModifiedAt:     img.ModifiedAt,
		Size:           img.Size,
	}
	if hashes.PerceptualHash != "" {
		e.Algorithm = algorithm
	}
	return e
}
