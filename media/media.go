// Package media lists the images under a set of folders as the immutable
// snapshots the scanner works on.
package media

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"dupfinder/imageprocessor"
	"dupfinder/logging"
	"dupfinder/types"

	"github.com/barasher/go-exiftool"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// FileSource reads images from local folders
type FileSource struct {
	Roots    []string
	Excluded []string // folder names or absolute paths skipped during the walk

	etOnce sync.Once
	etMu   sync.Mutex
	et     *exiftool.Exiftool
}

// NewFileSource returns a source over roots
func NewFileSource(roots, excluded []string) *FileSource {
	return &FileSource{Roots: roots, Excluded: excluded}
}

// Close stops the exiftool process if one was started
func (s *FileSource) Close() error {
	s.etMu.Lock()
	defer s.etMu.Unlock()
	if s.et == nil {
		return nil
	}
	err := s.et.Close()
	s.et = nil
	return err
}

// ListImages walks every root and returns one record per supported image,
// ordered by ID
func (s *FileSource) ListImages(ctx context.Context) ([]types.ImageRecord, error) {
	if len(s.Roots) == 0 {
		return nil, errors.New("no folders to scan")
	}

	seen := make(map[string]bool)
	var images []types.ImageRecord
	for _, root := range s.Roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("cannot resolve %s: %w", root, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", root, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", root)
		}

		err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if err != nil {
				logging.LogError("Error accessing path %s: %v", path, err)
				return nil
			}
			if d.IsDir() {
				if path != abs && s.skipDir(path, d.Name()) {
					return fs.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() || !imageprocessor.IsImageFile(path) || seen[path] {
				return nil
			}

			rec, err := s.record(path)
			if err != nil {
				logging.LogWarning("Skipping %s: %v", path, err)
				return nil
			}
			seen[path] = true
			images = append(images, rec)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	sort.Slice(images, func(i, j int) bool { return images[i].ID < images[j].ID })
	logging.DebugLog("Found %d images under %s", len(images), strings.Join(s.Roots, ", "))
	return images, nil
}

// GetImage returns the record for id, or false when the file is gone or is
// not a supported image
func (s *FileSource) GetImage(ctx context.Context, id string) (types.ImageRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return types.ImageRecord{}, false, err
	}
	path := filepath.Clean(id)
	if !imageprocessor.IsImageFile(path) {
		return types.ImageRecord{}, false, nil
	}
	rec, err := s.record(path)
	if errors.Is(err, fs.ErrNotExist) {
		return types.ImageRecord{}, false, nil
	}
	if err != nil {
		return types.ImageRecord{}, false, err
	}
	return rec, true, nil
}

// Folders lists the distinct folder labels holding images
func (s *FileSource) Folders(ctx context.Context) ([]string, error) {
	images, err := s.ListImages(ctx)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool)
	var out []string
	for _, img := range images {
		if !set[img.Folder] {
			set[img.Folder] = true
			out = append(out, img.Folder)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *FileSource) skipDir(path, name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	for _, ex := range s.Excluded {
		if ex == "" {
			continue
		}
		if strings.EqualFold(name, ex) || filepath.Clean(ex) == path {
			return true
		}
	}
	return false
}

func (s *FileSource) record(path string) (types.ImageRecord, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return types.ImageRecord{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return types.ImageRecord{}, err
	}
	if info.IsDir() {
		return types.ImageRecord{}, fmt.Errorf("%s is a directory", abs)
	}

	rec := types.ImageRecord{
		ID:         abs,
		Path:       abs,
		Name:       filepath.Base(abs),
		Size:       info.Size(),
		ModifiedAt: info.ModTime().UnixMilli(),
		MimeType:   imageprocessor.MimeType(abs),
		Folder:     filepath.Base(filepath.Dir(abs)),
	}

	if imageprocessor.IsRawFormat(abs) {
		s.rawMetadata(&rec)
		return rec, nil
	}

	if cfg, err := decodeConfig(abs); err == nil {
		rec.Width, rec.Height = cfg.Width, cfg.Height
	} else {
		logging.DebugLog("No dimensions for %s: %v", abs, err)
	}
	return rec, nil
}

func decodeConfig(path string) (image.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return image.Config{}, err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	return cfg, err
}

// rawMetadata fills dimensions and MIME type from exiftool when available
func (s *FileSource) rawMetadata(rec *types.ImageRecord) {
	s.etOnce.Do(func() {
		et, err := exiftool.NewExiftool()
		if err != nil {
			logging.LogInfo("exiftool unavailable, RAW dimensions will be missing: %v", err)
			return
		}
		s.et = et
	})

	s.etMu.Lock()
	defer s.etMu.Unlock()
	if s.et == nil {
		return
	}

	infos := s.et.ExtractMetadata(rec.Path)
	if len(infos) == 0 || infos[0].Err != nil {
		return
	}
	fi := infos[0]
	if w, err := fi.GetInt("ImageWidth"); err == nil {
		rec.Width = int(w)
	}
	if h, err := fi.GetInt("ImageHeight"); err == nil {
		rec.Height = int(h)
	}
	if mime, err := fi.GetString("MIMEType"); err == nil && mime != "" {
		rec.MimeType = mime
	}
}
