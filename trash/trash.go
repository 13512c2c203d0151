// Package trash moves images into a holding directory from which they can be
// restored until they expire.
package trash

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"dupfinder/logging"
	"dupfinder/types"
)

// ErrNotFound is returned when a trash item does not exist
var ErrNotFound = errors.New("trash item not found")

// DefaultAutoDeleteDays is how long items stay restorable by default
const DefaultAutoDeleteDays = 30

// Store persists trash records
type Store interface {
	Insert(ctx context.Context, item types.TrashItem) (int64, error)
	List(ctx context.Context) ([]types.TrashItem, error)
	Expired(ctx context.Context, nowMillis int64) ([]types.TrashItem, error)
	Get(ctx context.Context, id int64) (types.TrashItem, bool, error)
	Delete(ctx context.Context, ids ...int64) error
	TotalSize(ctx context.Context) (int64, error)
	Count(ctx context.Context) (int, error)
}

// CacheInvalidator drops cached hashes of images that left their folder
type CacheInvalidator interface {
	Delete(ctx context.Context, ids ...string) error
}

// Manager moves files in and out of the trash directory
type Manager struct {
	store          Store
	cache          CacheInvalidator
	dir            string
	autoDeleteDays int
	now            func() time.Time
}

// NewManager creates dir if needed. cache may be nil.
func NewManager(store Store, cache CacheInvalidator, dir string, autoDeleteDays int) (*Manager, error) {
	if autoDeleteDays < 1 {
		autoDeleteDays = DefaultAutoDeleteDays
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create trash directory %s: %w", dir, err)
	}
	return &Manager{
		store:          store,
		cache:          cache,
		dir:            dir,
		autoDeleteDays: autoDeleteDays,
		now:            time.Now,
	}, nil
}

// Dir returns the trash directory
func (m *Manager) Dir() string { return m.dir }

// MoveToTrash moves images into the trash and returns how many were moved.
// Images that cannot be moved are logged and skipped.
func (m *Manager) MoveToTrash(ctx context.Context, images []types.ImageRecord) (int, error) {
	now := m.now()
	expires := now.Add(time.Duration(m.autoDeleteDays) * 24 * time.Hour)

	moved := 0
	for _, img := range images {
		if err := ctx.Err(); err != nil {
			return moved, err
		}
		if err := m.moveOne(ctx, img, now, expires); err != nil {
			logging.LogError("Could not move %s to trash: %v", img.Path, err)
			continue
		}
		moved++
	}
	return moved, nil
}

func (m *Manager) moveOne(ctx context.Context, img types.ImageRecord, now, expires time.Time) error {
	trashPath, err := m.uniquePath(img.Name)
	if err != nil {
		return err
	}
	if err := moveFile(img.Path, trashPath); err != nil {
		return err
	}

	item := types.TrashItem{
		OriginalPath: img.Path,
		TrashPath:    trashPath,
		Name:         img.Name,
		Size:         img.Size,
		MimeType:     img.MimeType,
		DeletedAt:    now.UnixMilli(),
		ExpiresAt:    expires.UnixMilli(),
	}
	if _, err := m.store.Insert(ctx, item); err != nil {
		// Put the file back so nothing is lost untracked
		if rerr := moveFile(trashPath, img.Path); rerr != nil {
			logging.LogError("File %s is in the trash without a record: %v", trashPath, rerr)
		}
		return err
	}

	if m.cache != nil {
		if err := m.cache.Delete(ctx, img.ID); err != nil {
			logging.LogWarning("Could not drop cached hashes of %s: %v", img.Path, err)
		}
	}
	logging.LogTrashed(img.Path, trashPath, false)
	return nil
}

// Restore moves items back to their original location. An item whose
// original path is occupied again is left in the trash.
func (m *Manager) Restore(ctx context.Context, items []types.TrashItem) (int, error) {
	restored := 0
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return restored, err
		}
		if _, err := os.Stat(item.OriginalPath); err == nil {
			logging.LogWarning("Not restoring %s: a file already exists there", item.OriginalPath)
			continue
		}
		if err := os.MkdirAll(filepath.Dir(item.OriginalPath), 0o755); err != nil {
			logging.LogError("Could not restore %s: %v", item.OriginalPath, err)
			continue
		}
		if err := moveFile(item.TrashPath, item.OriginalPath); err != nil {
			logging.LogError("Could not restore %s: %v", item.OriginalPath, err)
			continue
		}
		if err := m.store.Delete(ctx, item.ID); err != nil {
			logging.LogError("Restored %s but could not drop its trash record: %v", item.OriginalPath, err)
		}
		logging.LogTrashed(item.TrashPath, item.OriginalPath, true)
		restored++
	}
	return restored, nil
}

// DeletePermanently removes the files and records of items
func (m *Manager) DeletePermanently(ctx context.Context, items []types.TrashItem) (int, error) {
	deleted := 0
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		if err := os.Remove(item.TrashPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.LogError("Could not delete %s: %v", item.TrashPath, err)
			continue
		}
		if err := m.store.Delete(ctx, item.ID); err != nil {
			logging.LogError("Could not drop trash record %d: %v", item.ID, err)
			continue
		}
		deleted++
	}
	return deleted, nil
}

// Empty permanently deletes everything in the trash
func (m *Manager) Empty(ctx context.Context) (int, error) {
	items, err := m.store.List(ctx)
	if err != nil {
		return 0, err
	}
	return m.DeletePermanently(ctx, items)
}

// DeleteExpired permanently deletes items whose expiry has passed
func (m *Manager) DeleteExpired(ctx context.Context) (int, error) {
	items, err := m.store.Expired(ctx, m.now().UnixMilli())
	if err != nil {
		return 0, err
	}
	return m.DeletePermanently(ctx, items)
}

// Items lists the trash, most recent first
func (m *Manager) Items(ctx context.Context) ([]types.TrashItem, error) {
	return m.store.List(ctx)
}

// Get returns one item or ErrNotFound
func (m *Manager) Get(ctx context.Context, id int64) (types.TrashItem, error) {
	item, ok, err := m.store.Get(ctx, id)
	if err != nil {
		return types.TrashItem{}, err
	}
	if !ok {
		return types.TrashItem{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return item, nil
}

// Size returns the bytes held in the trash
func (m *Manager) Size(ctx context.Context) (int64, error) {
	return m.store.TotalSize(ctx)
}

// Count returns the number of items in the trash
func (m *Manager) Count(ctx context.Context) (int, error) {
	return m.store.Count(ctx)
}

// uniquePath returns <dir>/<n>_<name> for a n not yet in use
func (m *Manager) uniquePath(name string) (string, error) {
	base := m.now().UnixNano()
	for i := int64(0); i < 1000; i++ {
		p := filepath.Join(m.dir, fmt.Sprintf("%d_%s", base+i, name))
		if _, err := os.Lstat(p); errors.Is(err, os.ErrNotExist) {
			return p, nil
		}
	}
	return "", fmt.Errorf("no free trash name for %s", name)
}

// moveFile renames src to dst, falling back to copy and remove across
// filesystems. The modification time is preserved.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if err := copyFile(src, dst, info.Mode().Perm()); err != nil {
		os.Remove(dst)
		return err
	}
	if err := os.Chtimes(dst, info.ModTime(), info.ModTime()); err != nil {
		logging.DebugLog("Could not keep mtime of %s: %v", dst, err)
	}
	if err := os.Remove(src); err != nil {
		os.Remove(dst)
		return fmt.Errorf("copied but could not remove %s: %w", src, err)
	}
	return nil
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
