// Package imageprocessor loads images of the supported formats and turns them
// into the inputs the perceptual hashers need.
package imageprocessor

import (
	"errors"

	"gocv.io/x/gocv"
)

var (
	// ErrNoLoader is returned for files whose extension no loader handles
	ErrNoLoader = errors.New("no loader for file format")

	// ErrUnreadable is returned when the loader for a file's format refuses
	// it, typically because the file is gone
	ErrUnreadable = errors.New("file cannot be loaded")
)

// ImageLoader is the interface that all image loaders must implement
type ImageLoader interface {
	// CanLoad checks if the loader can handle the given file. The registry
	// asks before every load.
	CanLoad(path string) bool

	// LoadImage loads the image as a BGR (or single-channel) Mat.
	// The caller closes it.
	LoadImage(path string) (gocv.Mat, error)
}
