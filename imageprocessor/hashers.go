package imageprocessor

import (
	"fmt"
	"image"
	"strings"

	"dupfinder/hashing"

	"github.com/artyom/phash"
	"github.com/corona10/goimagehash"
	"github.com/disintegration/imaging"
)

// Hash algorithm names accepted by NewHasher
const (
	AlgorithmDCT     = "dct"
	AlgorithmDHash   = "dhash"
	AlgorithmPHash64 = "phash64"
)

// Hasher computes a perceptual hash for an image file. Every hash produced
// by one Hasher has Bits() characters.
type Hasher interface {
	Name() string
	Bits() int
	Hash(path string) (string, error)
}

// HashAlgorithms lists the algorithm names NewHasher accepts
func HashAlgorithms() []string {
	return []string{AlgorithmDCT, AlgorithmDHash, AlgorithmPHash64}
}

// NewHasher returns the hasher for algorithm. An empty name selects the DCT hash.
func NewHasher(algorithm string, registry *ImageLoaderRegistry) (Hasher, error) {
	if registry == nil {
		registry = NewImageLoaderRegistry()
	}
	switch strings.ToLower(strings.TrimSpace(algorithm)) {
	case "", AlgorithmDCT:
		return &DCTHasher{registry: registry}, nil
	case AlgorithmDHash:
		return &DifferenceHasher{registry: registry}, nil
	case AlgorithmPHash64:
		return &PHash64Hasher{registry: registry}, nil
	}
	return nil, fmt.Errorf("unknown hash algorithm %q (want one of %s)",
		algorithm, strings.Join(HashAlgorithms(), ", "))
}

// DCTHasher is the 63-bit DCT hash over a 32×32 luma grid
type DCTHasher struct {
	registry *ImageLoaderRegistry
}

func (h *DCTHasher) Name() string { return AlgorithmDCT }
func (h *DCTHasher) Bits() int    { return hashing.PerceptualHashBits }

func (h *DCTHasher) Hash(path string) (string, error) {
	grid, err := LumaGrid(h.registry, path, hashing.GridSize, hashing.GridSize)
	if err != nil {
		return "", err
	}
	return hashing.PerceptualHash(grid)
}

// DifferenceHasher is the 64-bit gradient hash from goimagehash
type DifferenceHasher struct {
	registry *ImageLoaderRegistry
}

func (h *DifferenceHasher) Name() string { return AlgorithmDHash }
func (h *DifferenceHasher) Bits() int    { return hashing.DifferenceHashBits }

func (h *DifferenceHasher) Hash(path string) (string, error) {
	img, err := loadGoImage(h.registry, path)
	if err != nil {
		return "", err
	}
	return DifferenceHashImage(img)
}

// DifferenceHashImage hashes an already decoded image
func DifferenceHashImage(img image.Image) (string, error) {
	if img.Bounds().Empty() {
		return "", hashing.ErrEmptyImage
	}
	dh, err := goimagehash.DifferenceHash(img)
	if err != nil {
		return "", err
	}
	return hashing.FormatBits(dh.GetHash(), hashing.DifferenceHashBits), nil
}

// PHash64Hasher is the 64-bit DCT hash from github.com/artyom/phash
type PHash64Hasher struct {
	registry *ImageLoaderRegistry
}

func (h *PHash64Hasher) Name() string { return AlgorithmPHash64 }
func (h *PHash64Hasher) Bits() int    { return 64 }

func (h *PHash64Hasher) Hash(path string) (string, error) {
	img, err := loadGoImage(h.registry, path)
	if err != nil {
		return "", err
	}
	return PHash64Image(img)
}

// PHash64Image hashes an already decoded image
func PHash64Image(img image.Image) (string, error) {
	if img.Bounds().Empty() {
		return "", hashing.ErrEmptyImage
	}
	v, err := phash.Get(img, func(img image.Image, w, h int) image.Image {
		return imaging.Resize(img, w, h, imaging.Lanczos)
	})
	if err != nil {
		return "", err
	}
	return hashing.FormatBits(v, 64), nil
}
