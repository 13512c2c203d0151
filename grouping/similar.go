package grouping

import (
	"math"
	"sort"

	"dupfinder/hashing"
	"dupfinder/logging"
	"dupfinder/types"
)

// DefaultThreshold is the similarity used when none is configured
const DefaultThreshold = 0.9

// MaxDistance converts a similarity threshold into the largest Hamming
// distance still considered similar for hashes of the given length.
func MaxDistance(threshold float64, bits int) int {
	if bits <= 0 {
		return 0
	}
	if threshold > 1 {
		threshold = 1
	}
	if threshold < 0 {
		threshold = 0
	}
	// The epsilon keeps (1-0.8)*10 from flooring to 1.
	d := int(math.Floor((1-threshold)*float64(bits) + 1e-9))
	if d < 0 {
		d = 0
	}
	if d > bits {
		d = bits
	}
	return d
}

// Band is a contiguous run of hash bits. Bits are numbered from the most
// significant, matching the bit string order.
type Band struct {
	Start int
	Width int
}

// BandLayout splits a hash of the given length into min(maxDistance+1, bits)
// non-empty bands. When maxDistance < bits, two hashes within maxDistance
// must agree on at least one band because there are more bands than
// differing bits. Larger distances accept every pair; NewIndex does not band
// them at all.
func BandLayout(maxDistance, bits int) []Band {
	if bits <= 0 {
		return nil
	}
	count := maxDistance + 1
	if count > bits {
		count = bits
	}
	if count < 1 {
		count = 1
	}

	// Widths differ by at most one and never exceed ceil(bits/count).
	bands := make([]Band, count)
	for b := 0; b < count; b++ {
		start := b * bits / count
		end := (b + 1) * bits / count
		bands[b] = Band{Start: start, Width: end - start}
	}
	return bands
}

// value extracts the band from a packed hash of the given length
func (b Band) value(hash uint64, bits int) uint64 {
	shift := uint(bits - b.Start - b.Width)
	if b.Width >= 64 {
		return hash >> shift
	}
	return (hash >> shift) & (1<<uint(b.Width) - 1)
}

// Index buckets packed hashes by band value so candidate lookups avoid
// comparing every pair.
type Index struct {
	hashes  []uint64
	bits    int
	bands   []Band
	buckets []map[uint64][]int

	// every hash is a candidate of every other; one bucket, constant key
	all bool

	// seen[j] == gen marks j as already returned for the current query
	seen []uint32
	gen  uint32
}

// NewIndex builds a band index over hashes of the given length
func NewIndex(hashes []uint64, bits, maxDistance int) *Index {
	ix := &Index{
		hashes: hashes,
		bits:   bits,
		seen:   make([]uint32, len(hashes)),
		all:    maxDistance >= bits,
	}

	if ix.all {
		ix.bands = []Band{{Start: 0, Width: bits}}
		ix.buckets = []map[uint64][]int{{0: make([]int, len(hashes))}}
		for i := range hashes {
			ix.buckets[0][0][i] = i
		}
		return ix
	}

	ix.bands = BandLayout(maxDistance, bits)
	ix.buckets = make([]map[uint64][]int, len(ix.bands))
	for b := range ix.bands {
		ix.buckets[b] = make(map[uint64][]int)
	}

	if len(ix.bands) == 1 {
		// Distance 0: the whole hash is the key.
		for i, h := range hashes {
			ix.buckets[0][h] = append(ix.buckets[0][h], i)
		}
		return ix
	}

	for i, h := range hashes {
		for b, band := range ix.bands {
			v := band.value(h, bits)
			ix.buckets[b][v] = append(ix.buckets[b][v], i)
		}
	}
	return ix
}

// Bands returns the band layout in use
func (ix *Index) Bands() []Band { return ix.bands }

// Candidates calls fn once for every index other than i sharing a bucket with i
func (ix *Index) Candidates(i int, fn func(j int)) {
	ix.gen++
	if ix.gen == 0 {
		// Wrapped around: stale marks could collide with the new generation.
		for k := range ix.seen {
			ix.seen[k] = 0
		}
		ix.gen = 1
	}
	ix.seen[i] = ix.gen

	h := ix.hashes[i]
	for b, band := range ix.bands {
		key := h
		switch {
		case ix.all:
			key = 0
		case len(ix.bands) > 1:
			key = band.value(h, ix.bits)
		}
		for _, j := range ix.buckets[b][key] {
			if ix.seen[j] == ix.gen {
				continue
			}
			ix.seen[j] = ix.gen
			fn(j)
		}
	}
}

// FindSimilar groups images whose perceptual hashes are within the distance
// implied by threshold. Clustering is greedy in input order: an image joins
// the first group that claims it and never moves.
func FindSimilar(images []types.ImageRecord, threshold float64) []types.DuplicateGroup {
	members, hashes, bits := packHashes(images)
	if len(members) < 2 {
		return nil
	}

	maxDistance := MaxDistance(threshold, bits)
	ix := NewIndex(hashes, bits, maxDistance)
	logging.DebugLog("Similarity pass: %d hashes of %d bits, max distance %d, %d bands",
		len(hashes), bits, maxDistance, len(ix.Bands()))

	processed := make([]bool, len(hashes))
	var groups []types.DuplicateGroup

	for i := range hashes {
		if processed[i] {
			continue
		}

		set := []int{i}
		ix.Candidates(i, func(j int) {
			if processed[j] {
				return
			}
			if hashing.Hamming(hashes[i], hashes[j]) <= maxDistance {
				set = append(set, j)
			}
		})
		if len(set) < 2 {
			continue
		}

		// Candidates arrive in bucket order; keep input order inside the set.
		sort.Ints(set)
		for _, k := range set {
			processed[k] = true
		}

		score := meanSimilarity(hashes, set, bits)
		idx := make([]int, len(set))
		for n, k := range set {
			idx[n] = members[k]
		}
		groups = append(groups, newGroup(images, idx, types.MatchSimilar, score))
	}
	return groups
}

// packHashes returns the positions of usable images, their packed hashes and
// the common bit length. Images whose hash length differs from the most
// common one are left out.
func packHashes(images []types.ImageRecord) ([]int, []uint64, int) {
	counts := make(map[int]int)
	var order []int
	for _, img := range images {
		n := len(img.Hashes.PerceptualHash)
		if n == 0 || n > hashing.MaxPackedBits {
			continue
		}
		if counts[n] == 0 {
			order = append(order, n)
		}
		counts[n]++
	}

	bits := 0
	for _, n := range order {
		if counts[n] > counts[bits] {
			bits = n
		}
	}
	if bits == 0 {
		return nil, nil, 0
	}

	members := make([]int, 0, counts[bits])
	hashes := make([]uint64, 0, counts[bits])
	for i, img := range images {
		p := img.Hashes.PerceptualHash
		if p == "" {
			continue
		}
		if len(p) != bits {
			logging.LogWarning("Skipping %s: perceptual hash has %d bits, expected %d", img.Path, len(p), bits)
			continue
		}
		v, err := hashing.ParseBits(p)
		if err != nil {
			logging.LogWarning("Skipping %s: %v", img.Path, err)
			continue
		}
		members = append(members, i)
		hashes = append(hashes, v)
	}
	return members, hashes, bits
}

func meanSimilarity(hashes []uint64, set []int, bits int) float64 {
	var total float64
	pairs := 0
	for x := 0; x < len(set); x++ {
		for y := x + 1; y < len(set); y++ {
			d := hashing.Hamming(hashes[set[x]], hashes[set[y]])
			total += 1 - float64(d)/float64(bits)
			pairs++
		}
	}
	if pairs == 0 {
		return 0
	}
	return total / float64(pairs)
}
