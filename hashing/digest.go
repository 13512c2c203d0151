// Package hashing computes exact digests and perceptual hashes and compares
// perceptual bit strings.
package hashing

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// DigestChunkSize bounds the amount of file content held in memory while hashing
const DigestChunkSize = 8 * 1024

// Digest streams r through MD5 and returns the lowercase hex digest.
// A read failure discards the partial digest.
func Digest(r io.Reader) (string, error) {
	h := md5.New()
	buf := make([]byte, DigestChunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("digest read failed: %w", err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// DigestFile computes the digest of the file at path
func DigestFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("cannot open %s: %w", path, err)
	}
	defer f.Close()

	sum, err := Digest(f)
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	return sum, nil
}
