package scanner

import (
	"context"
	"errors"

	"dupfinder/types"
)

var (
	// ErrCancelled is returned when the scan context is cancelled. Partial
	// results are discarded.
	ErrCancelled = errors.New("scan cancelled")

	// ErrSourceUnavailable wraps failures of the media source
	ErrSourceUnavailable = errors.New("media source unavailable")
)

// DefaultWorkers is the hashing pool size when none is configured
const DefaultWorkers = 4

// DefaultProgressEvery is how many completions pass between progress events
const DefaultProgressEvery = 20

// HashCache is the persisted hash store consulted before hashing
type HashCache interface {
	LookupMany(ctx context.Context, ids []string) (map[string]types.CacheEntry, error)
	StoreMany(ctx context.Context, entries []types.CacheEntry) error
}

// MediaSource provides the image snapshot to scan
type MediaSource interface {
	ListImages(ctx context.Context) ([]types.ImageRecord, error)
}

// PerceptualHasher computes a perceptual hash of Bits() characters
type PerceptualHasher interface {
	Name() string
	Bits() int
	Hash(path string) (string, error)
}

// DigestFunc computes the exact digest of a file
type DigestFunc func(path string) (string, error)

// ProgressFunc receives progress snapshots. It is called from worker
// goroutines, one call at a time, and should return quickly.
type ProgressFunc func(types.ScanProgress)

// Deps are the collaborators ComputeHashes works with. Cache may be nil.
type Deps struct {
	Cache  HashCache
	Hasher PerceptualHasher
	Digest DigestFunc
}

// Options tune ComputeHashes
type Options struct {
	Workers       int
	Mode          types.ScanMode
	ProgressEvery int
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.ProgressEvery <= 0 {
		o.ProgressEvery = DefaultProgressEvery
	}
	if o.Mode == "" {
		o.Mode = types.ModeSimilar
	}
	return o
}

// HashStats describes where the hashes of a run came from
type HashStats struct {
	CacheHits int      // images served entirely from the cache
	Computed  int      // images that needed at least one computation
	Failed    []string // paths with at least one failed computation
	Stored    int      // cache entries written
}

// imageResult is the outcome of hashing one image
type imageResult struct {
	hashes    types.HashPair
	fromCache bool
	store     *types.CacheEntry
	err       error
}
