package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"dupfinder/types"
)

// lookupChunk keeps IN (...) lists under sqlite's bound-parameter limit
const lookupChunk = 900

// HashCache persists computed hashes keyed by image ID
type HashCache struct {
	db *sql.DB
}

// NewHashCache wraps an initialised database
func NewHashCache(db *sql.DB) *HashCache {
	return &HashCache{db: db}
}

// Lookup returns the entry for id, or false when none is stored
func (c *HashCache) Lookup(ctx context.Context, id string) (types.CacheEntry, bool, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT image_id, path, digest, perceptual_hash, hash_algorithm, modified_at, size, created_at
		FROM image_hashes WHERE image_id = ?`, id)

	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return types.CacheEntry{}, false, nil
	}
	if err != nil {
		return types.CacheEntry{}, false, fmt.Errorf("cache lookup for %s: %w", id, err)
	}
	return e, true, nil
}

// LookupMany returns the stored entries for ids. Missing IDs are absent from
// the map.
func (c *HashCache) LookupMany(ctx context.Context, ids []string) (map[string]types.CacheEntry, error) {
	out := make(map[string]types.CacheEntry, len(ids))
	for start := 0; start < len(ids); start += lookupChunk {
		end := start + lookupChunk
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]

		args := make([]interface{}, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		query := `SELECT image_id, path, digest, perceptual_hash, hash_algorithm, modified_at, size, created_at
			FROM image_hashes WHERE image_id IN (` + placeholders(len(chunk)) + `)`

		rows, err := c.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("cache lookup: %w", err)
		}
		for rows.Next() {
			e, err := scanEntry(rows)
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("cache lookup: %w", err)
			}
			out[e.ImageID] = e
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("cache lookup: %w", err)
		}
	}
	return out, nil
}

// Store inserts or overwrites one entry
func (c *HashCache) Store(ctx context.Context, entry types.CacheEntry) error {
	return c.StoreMany(ctx, []types.CacheEntry{entry})
}

// StoreMany inserts or overwrites entries in a single transaction
func (c *HashCache) StoreMany(ctx context.Context, entries []types.CacheEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("cannot begin cache transaction: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO image_hashes (
			image_id, path, digest, perceptual_hash, hash_algorithm, modified_at, size, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("cannot prepare cache statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UnixMilli()
	for _, e := range entries {
		created := e.CreatedAt
		if created == 0 {
			created = now
		}
		_, err := stmt.ExecContext(ctx,
			e.ImageID,
			e.Path,
			nullIfEmpty(e.Digest),
			nullIfEmpty(e.PerceptualHash),
			nullIfEmpty(e.Algorithm),
			e.ModifiedAt,
			e.Size,
			created,
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("cannot store hashes for %s: %w", e.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("cannot commit cache transaction: %w", err)
	}
	return nil
}

// Delete removes the entries for ids
func (c *HashCache) Delete(ctx context.Context, ids ...string) error {
	for start := 0; start < len(ids); start += lookupChunk {
		end := start + lookupChunk
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]
		args := make([]interface{}, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		_, err := c.db.ExecContext(ctx,
			`DELETE FROM image_hashes WHERE image_id IN (`+placeholders(len(chunk))+`)`, args...)
		if err != nil {
			return fmt.Errorf("cannot delete cache entries: %w", err)
		}
	}
	return nil
}

// Count returns the number of cached entries
func (c *HashCache) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM image_hashes").Scan(&n); err != nil {
		return 0, fmt.Errorf("cannot count cache entries: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(r rowScanner) (types.CacheEntry, error) {
	var e types.CacheEntry
	var digest, phash, algorithm sql.NullString
	err := r.Scan(&e.ImageID, &e.Path, &digest, &phash, &algorithm, &e.ModifiedAt, &e.Size, &e.CreatedAt)
	e.Digest = digest.String
	e.PerceptualHash = phash.String
	e.Algorithm = algorithm.String
	return e, err
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
