package hashing

import (
	"fmt"
	"math/bits"
	"strings"
)

// MaxPackedBits is the longest bit string that fits a packed hash
const MaxPackedBits = 64

// ParseBits packs a '0'/'1' string into an integer. The first character is
// the most significant of the len(s) bits.
func ParseBits(s string) (uint64, error) {
	if len(s) == 0 {
		return 0, fmt.Errorf("empty bit string")
	}
	if len(s) > MaxPackedBits {
		return 0, fmt.Errorf("bit string has %d bits, max %d", len(s), MaxPackedBits)
	}
	var v uint64
	for i := 0; i < len(s); i++ {
		v <<= 1
		switch s[i] {
		case '1':
			v |= 1
		case '0':
		default:
			return 0, fmt.Errorf("invalid character %q at %d", s[i], i)
		}
	}
	return v, nil
}

// FormatBits renders the low n bits of v as a '0'/'1' string, most significant first
func FormatBits(v uint64, n int) string {
	var b strings.Builder
	b.Grow(n)
	for i := n - 1; i >= 0; i-- {
		if v>>uint(i)&1 == 1 {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

// Hamming returns the number of differing bits
func Hamming(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// HammingString counts differing positions of two equal-length bit strings.
// It returns -1 when the lengths differ.
func HammingString(a, b string) int {
	if len(a) != len(b) {
		return -1
	}
	d := 0
	for i := 0; i < len(a); i++ {
		if a[i] != b[i] {
			d++
		}
	}
	return d
}

// Similarity returns 1 - distance/length for two bit strings, or 0 when they
// are empty or of different length.
func Similarity(a, b string) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	return 1 - float64(HammingString(a, b))/float64(len(a))
}
