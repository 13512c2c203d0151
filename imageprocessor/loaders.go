package imageprocessor

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"

	"dupfinder/logging"

	"gocv.io/x/gocv"
)

// BaseImageLoader provides common functionality for all image loaders
type BaseImageLoader struct {
	// Formats this loader can handle
	SupportedFormats []FormatType
}

// CanLoad checks if this loader supports the file's format
func (l *BaseImageLoader) CanLoad(path string) bool {
	format := GetFileFormat(path)
	for _, supported := range l.SupportedFormats {
		if format == supported {
			return fileExists(path)
		}
	}
	return false
}

// DefaultLoadImage reads the file in colour through OpenCV
func (l *BaseImageLoader) DefaultLoadImage(path string) (gocv.Mat, error) {
	img := gocv.IMRead(path, gocv.IMReadColor)
	if img.Empty() {
		img.Close()
		return gocv.NewMat(), newImageLoadError("failed to load image", path)
	}
	return img, nil
}

// StandardImageLoader handles common image formats like JPEG, PNG, etc.
type StandardImageLoader struct {
	BaseImageLoader
}

// NewStandardImageLoader creates a new loader for standard image formats
func NewStandardImageLoader() *StandardImageLoader {
	return &StandardImageLoader{
		BaseImageLoader: BaseImageLoader{
			SupportedFormats: []FormatType{
				FormatJPEG,
				FormatPNG,
				FormatGIF,
				FormatBMP,
				FormatWEBP,
				FormatTIFF,
			},
		},
	}
}

// LoadImage loads a standard image format
func (l *StandardImageLoader) LoadImage(path string) (gocv.Mat, error) {
	return l.DefaultLoadImage(path)
}

// previewTags are tried in order; the first one exiftool can extract wins
var previewTags = []string{
	"LargestImagePreview",
	"PreviewImage",
	"JpgFromRaw",
	"OtherImage",
	"ThumbnailImage",
}

// RawPreviewLoader decodes the JPEG preview embedded in camera RAW files.
// Hashing the preview is enough to spot duplicates and avoids a full RAW
// development.
type RawPreviewLoader struct {
	BaseImageLoader
	exiftoolPath string
}

// NewRawPreviewLoader returns a loader for RAW formats, or nil when the
// exiftool binary cannot be found
func NewRawPreviewLoader() *RawPreviewLoader {
	path, err := exec.LookPath("exiftool")
	if err != nil {
		return nil
	}
	return &RawPreviewLoader{
		BaseImageLoader: BaseImageLoader{
			SupportedFormats: []FormatType{
				FormatRAW,
				FormatCR2,
				FormatCR3,
				FormatNEF,
				FormatARW,
				FormatDNG,
			},
		},
		exiftoolPath: path,
	}
}

// LoadImage extracts and decodes the largest embedded preview
func (l *RawPreviewLoader) LoadImage(path string) (gocv.Mat, error) {
	for _, tag := range previewTags {
		data, err := l.extractPreview(path, tag)
		if err != nil || len(data) == 0 {
			continue
		}

		img, err := gocv.IMDecode(data, gocv.IMReadColor)
		if err != nil || img.Empty() {
			img.Close()
			logging.LogWarning("exiftool produced %s for %s but OpenCV couldn't decode it", tag, path)
			continue
		}
		logging.DebugLog("Using %s preview for %s", tag, path)
		return img, nil
	}

	// DNG and some TIFF-based RAWs decode directly
	img := gocv.IMRead(path, gocv.IMReadColor)
	if !img.Empty() {
		return img, nil
	}
	img.Close()
	return gocv.NewMat(), newImageLoadError("failed to extract a preview from RAW image", path)
}

func (l *RawPreviewLoader) extractPreview(path, tag string) ([]byte, error) {
	cmd := exec.Command(l.exiftoolPath, "-b", "-"+tag, path)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("exiftool -%s failed: %w, stderr: %s", tag, err, stderr.String())
	}
	return stdout.Bytes(), nil
}

// fileExists checks if a file exists and is accessible
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// newImageLoadError creates a standardized error for image loading failures
func newImageLoadError(message, path string) error {
	return fmt.Errorf("%s: %s", message, path)
}
