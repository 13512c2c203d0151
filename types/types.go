package types

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ImageRecord is a snapshot of one image taken at scan start
type ImageRecord struct {
	ID         string   `json:"id"`
	Path       string   `json:"path"`
	Name       string   `json:"name"`
	Size       int64    `json:"size"`
	ModifiedAt int64    `json:"modified_at"` // unix millis
	MimeType   string   `json:"mime_type"`
	Width      int      `json:"width"`
	Height     int      `json:"height"`
	Folder     string   `json:"folder"`
	Hashes     HashPair `json:"hashes"`
}

// HashPair holds the hashes computed for an image. Empty means not available.
type HashPair struct {
	Digest         string `json:"digest,omitempty"`
	PerceptualHash string `json:"perceptual_hash,omitempty"`
}

// HasDigest reports whether an exact digest is available
func (img ImageRecord) HasDigest() bool { return img.Hashes.Digest != "" }

// HasPerceptualHash reports whether a perceptual hash is available
func (img ImageRecord) HasPerceptualHash() bool { return img.Hashes.PerceptualHash != "" }

// CacheEntry is a persisted hash record keyed by image identity.
// Algorithm names the hasher that produced PerceptualHash.
type CacheEntry struct {
	ImageID        string
	Path           string
	Digest         string
	PerceptualHash string
	Algorithm      string
	ModifiedAt     int64
	Size           int64
	CreatedAt      int64
}

// Valid reports whether the entry still describes the current image
func (e CacheEntry) Valid(img ImageRecord) bool {
	return e.ModifiedAt == img.ModifiedAt && e.Size == img.Size
}

// MatchKind describes why images were grouped together
type MatchKind int

const (
	MatchExact MatchKind = iota
	MatchSimilar
	MatchBoth
)

func (k MatchKind) String() string {
	switch k {
	case MatchExact:
		return "exact"
	case MatchSimilar:
		return "similar"
	case MatchBoth:
		return "both"
	default:
		return fmt.Sprintf("MatchKind(%d)", int(k))
	}
}

// ParseMatchKind converts "exact", "similar" or "both" into a MatchKind
func ParseMatchKind(s string) (MatchKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "exact":
		return MatchExact, nil
	case "similar":
		return MatchSimilar, nil
	case "both":
		return MatchBoth, nil
	}
	return 0, fmt.Errorf("unknown match kind %q", s)
}

// MarshalText implements encoding.TextMarshaler
func (k MatchKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (k *MatchKind) UnmarshalText(b []byte) error {
	parsed, err := ParseMatchKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// DuplicateGroup is a set of two or more images sharing exact or similar content
type DuplicateGroup struct {
	ID               string        `json:"id"`
	Images           []ImageRecord `json:"images"`
	Kind             MatchKind     `json:"kind"`
	Score            float64       `json:"score"`
	TotalSize        int64         `json:"total_size"`
	PotentialSavings int64         `json:"potential_savings"`
}

// SortImages orders images by modification time, then by ID on ties.
// The first image is the canonical one.
func SortImages(images []ImageRecord) {
	sort.SliceStable(images, func(i, j int) bool {
		if images[i].ModifiedAt != images[j].ModifiedAt {
			return images[i].ModifiedAt < images[j].ModifiedAt
		}
		return images[i].ID < images[j].ID
	})
}

// Recompute re-sorts the images and refreshes TotalSize and PotentialSavings
func (g *DuplicateGroup) Recompute() {
	SortImages(g.Images)
	var total int64
	for _, img := range g.Images {
		total += img.Size
	}
	g.TotalSize = total
	g.PotentialSavings = 0
	if len(g.Images) > 0 {
		g.PotentialSavings = total - g.Images[0].Size
	}
}

// Original returns the canonical (earliest-modified) image
func (g DuplicateGroup) Original() (ImageRecord, bool) {
	if len(g.Images) == 0 {
		return ImageRecord{}, false
	}
	best := g.Images[0]
	for _, img := range g.Images[1:] {
		if img.ModifiedAt < best.ModifiedAt || (img.ModifiedAt == best.ModifiedAt && img.ID < best.ID) {
			best = img
		}
	}
	return best, true
}

// Duplicates returns every image except the canonical one
func (g DuplicateGroup) Duplicates() []ImageRecord {
	original, ok := g.Original()
	if !ok {
		return nil
	}
	out := make([]ImageRecord, 0, len(g.Images)-1)
	for _, img := range g.Images {
		if img.ID != original.ID {
			out = append(out, img)
		}
	}
	return out
}

// ScanPhase is the stage a scan is currently in
type ScanPhase string

const (
	PhaseIdle      ScanPhase = "idle"
	PhaseLoading   ScanPhase = "loading"
	PhaseHashing   ScanPhase = "hashing"
	PhaseComparing ScanPhase = "comparing"
	PhaseComplete  ScanPhase = "complete"
	PhaseCancelled ScanPhase = "cancelled"
	PhaseError     ScanPhase = "error"
)

// Terminal reports whether no further events follow this phase
func (p ScanPhase) Terminal() bool {
	return p == PhaseComplete || p == PhaseCancelled || p == PhaseError
}

// ScanProgress is a progress snapshot emitted during a scan
type ScanProgress struct {
	Phase       ScanPhase
	Current     int
	Total       int
	CurrentFile string
	Message     string
}

// Fraction returns Current/Total, or 0 when Total is 0
func (p ScanProgress) Fraction() float64 {
	if p.Total <= 0 {
		return 0
	}
	return float64(p.Current) / float64(p.Total)
}

// DateRange is an inclusive range of unix millis
type DateRange struct {
	Start int64
	End   int64
}

// FilterCriteria narrows a set of duplicate groups
type FilterCriteria struct {
	Folders    []string
	DateRange  *DateRange
	MinSize    *int64
	MaxSize    *int64
	MimeTypes  []string
	MatchKinds []MatchKind
}

// HasActiveFilters reports whether any criterion would remove something
func (c FilterCriteria) HasActiveFilters() bool {
	return len(c.Folders) > 0 ||
		c.DateRange != nil ||
		c.MinSize != nil ||
		c.MaxSize != nil ||
		len(c.MimeTypes) > 0 ||
		len(c.MatchKinds) > 0
}

// TrashItem is an image moved into the trash directory
type TrashItem struct {
	ID           int64  `json:"id"`
	OriginalPath string `json:"original_path"`
	TrashPath    string `json:"trash_path"`
	Name         string `json:"name"`
	Size         int64  `json:"size"`
	MimeType     string `json:"mime_type"`
	DeletedAt    int64  `json:"deleted_at"`
	ExpiresAt    int64  `json:"expires_at"`
}

// IsExpired reports whether the item should be purged at now
func (t TrashItem) IsExpired(now time.Time) bool {
	return now.UnixMilli() >= t.ExpiresAt
}

// DaysUntilExpiry returns whole days remaining, never negative
func (t TrashItem) DaysUntilExpiry(now time.Time) int {
	remaining := t.ExpiresAt - now.UnixMilli()
	if remaining <= 0 {
		return 0
	}
	return int(remaining / (24 * time.Hour).Milliseconds())
}

// ScanResult is the outcome of a complete scan
type ScanResult struct {
	TotalImages      int
	Images           []ImageRecord
	Unhashed         []string
	Groups           []DuplicateGroup
	TotalDuplicates  int
	PotentialSavings int64
	Duration         time.Duration
	Timestamp        time.Time
}

// HasDuplicates reports whether any group was found
func (r ScanResult) HasDuplicates() bool { return len(r.Groups) > 0 }

// ScanMode selects which kinds of duplicates a scan looks for
type ScanMode string

const (
	ModeExact   ScanMode = "exact"
	ModeSimilar ScanMode = "similar" // exact and similar
)

// ParseScanMode accepts "exact", "similar" or "exact-and-similar"
func ParseScanMode(s string) (ScanMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "exact", "exact-only":
		return ModeExact, nil
	case "similar", "exact-and-similar", "all":
		return ModeSimilar, nil
	}
	return "", fmt.Errorf("unknown scan mode %q", s)
}
