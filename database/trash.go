package database

import (
	"context"
	"database/sql"
	"fmt"

	"dupfinder/types"
)

// TrashStore records the files currently held in the trash directory
type TrashStore struct {
	db *sql.DB
}

// NewTrashStore wraps an initialised database
func NewTrashStore(db *sql.DB) *TrashStore {
	return &TrashStore{db: db}
}

const trashColumns = `id, original_path, trash_path, name, size, mime_type, deleted_at, expires_at`

// Insert stores item and returns its new ID
func (s *TrashStore) Insert(ctx context.Context, item types.TrashItem) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO trash_items (original_path, trash_path, name, size, mime_type, deleted_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		item.OriginalPath, item.TrashPath, item.Name, item.Size, item.MimeType, item.DeletedAt, item.ExpiresAt)
	if err != nil {
		return 0, fmt.Errorf("cannot record trash item %s: %w", item.OriginalPath, err)
	}
	return res.LastInsertId()
}

// List returns every item, most recently deleted first
func (s *TrashStore) List(ctx context.Context) ([]types.TrashItem, error) {
	return s.query(ctx, `SELECT `+trashColumns+` FROM trash_items ORDER BY deleted_at DESC, id DESC`)
}

// Expired returns items whose expiry is at or before nowMillis
func (s *TrashStore) Expired(ctx context.Context, nowMillis int64) ([]types.TrashItem, error) {
	return s.query(ctx, `SELECT `+trashColumns+` FROM trash_items WHERE expires_at <= ? ORDER BY id`, nowMillis)
}

// Get returns one item, or false when it does not exist
func (s *TrashStore) Get(ctx context.Context, id int64) (types.TrashItem, bool, error) {
	items, err := s.query(ctx, `SELECT `+trashColumns+` FROM trash_items WHERE id = ?`, id)
	if err != nil || len(items) == 0 {
		return types.TrashItem{}, false, err
	}
	return items[0], true, nil
}

// Delete removes the records for ids. The files are not touched.
func (s *TrashStore) Delete(ctx context.Context, ids ...int64) error {
	for _, id := range ids {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM trash_items WHERE id = ?`, id); err != nil {
			return fmt.Errorf("cannot delete trash record %d: %w", id, err)
		}
	}
	return nil
}

// TotalSize returns the sum of item sizes in bytes
func (s *TrashStore) TotalSize(ctx context.Context) (int64, error) {
	var total sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT SUM(size) FROM trash_items`).Scan(&total); err != nil {
		return 0, fmt.Errorf("cannot sum trash size: %w", err)
	}
	return total.Int64, nil
}

// Count returns the number of items
func (s *TrashStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trash_items`).Scan(&n); err != nil {
		return 0, fmt.Errorf("cannot count trash items: %w", err)
	}
	return n, nil
}

func (s *TrashStore) query(ctx context.Context, query string, args ...interface{}) ([]types.TrashItem, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("trash query: %w", err)
	}
	defer rows.Close()

	var items []types.TrashItem
	for rows.Next() {
		var it types.TrashItem
		var mime sql.NullString
		if err := rows.Scan(&it.ID, &it.OriginalPath, &it.TrashPath, &it.Name, &it.Size, &mime, &it.DeletedAt, &it.ExpiresAt); err != nil {
			return nil, fmt.Errorf("trash query: %w", err)
		}
		it.MimeType = mime.String
		items = append(items, it)
	}
	return items, rows.Err()
}
