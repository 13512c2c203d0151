package imageprocessor

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"dupfinder/logging"

	"gocv.io/x/gocv"
)

// ImageLoaderRegistry maps file extensions to loaders
type ImageLoaderRegistry struct {
	loaders map[string]ImageLoader
	mutex   sync.RWMutex
}

// NewImageLoaderRegistry creates a registry with the standard loaders and,
// when exiftool is installed, the RAW preview loader
func NewImageLoaderRegistry() *ImageLoaderRegistry {
	registry := &ImageLoaderRegistry{
		loaders: make(map[string]ImageLoader),
	}
	registry.registerStandardLoaders()
	registry.registerRawLoaders()
	return registry
}

func (r *ImageLoaderRegistry) registerStandardLoaders() {
	standardLoader := NewStandardImageLoader()
	for _, ext := range []string{".jpg", ".jpeg", ".png", ".bmp", ".gif", ".webp", ".tif", ".tiff"} {
		r.RegisterLoader(ext, standardLoader)
	}
}

func (r *ImageLoaderRegistry) registerRawLoaders() {
	rawLoader := NewRawPreviewLoader()
	if rawLoader == nil {
		logging.LogInfo("exiftool not found, RAW files will only get an exact digest")
		return
	}
	for ext := range formatExtensions {
		if IsRawFormat(ext) {
			r.RegisterLoader(ext, rawLoader)
		}
	}
	logging.DebugLog("Registered RAW preview loader")
}

// RegisterLoader registers a loader for a file extension, replacing any
// previous one
func (r *ImageLoaderRegistry) RegisterLoader(ext string, loader ImageLoader) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.loaders[strings.ToLower(ext)] = loader
}

// GetLoader returns the loader for path, or nil
func (r *ImageLoaderRegistry) GetLoader(path string) ImageLoader {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return r.loaders[strings.ToLower(filepath.Ext(path))]
}

// CanLoadFile checks if the loader registered for the file's extension
// accepts it
func (r *ImageLoaderRegistry) CanLoadFile(path string) bool {
	loader := r.GetLoader(path)
	return loader != nil && loader.CanLoad(path)
}

// LoadImage loads an image using the appropriate registered loader
func (r *ImageLoaderRegistry) LoadImage(path string) (gocv.Mat, error) {
	loader := r.GetLoader(path)
	if loader == nil {
		return gocv.NewMat(), fmt.Errorf("%w: %s", ErrNoLoader, path)
	}
	if !loader.CanLoad(path) {
		return gocv.NewMat(), fmt.Errorf("%w: %s", ErrUnreadable, path)
	}
	return loader.LoadImage(path)
}
