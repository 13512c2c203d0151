package database

import (
	"database/sql"
	"fmt"

	"dupfinder/logging"

	_ "github.com/mattn/go-sqlite3"
)

// InitDatabase opens (creating if needed) the sqlite file at dbPath and makes
// sure every table exists
func InitDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	createTablesSQL := `
	CREATE TABLE IF NOT EXISTS image_hashes (
		image_id TEXT PRIMARY KEY,
		path TEXT NOT NULL,
		digest TEXT,
		perceptual_hash TEXT,
		hash_algorithm TEXT,
		modified_at INTEGER NOT NULL,
		size INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_image_hashes_digest ON image_hashes(digest);

	CREATE TABLE IF NOT EXISTS trash_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		original_path TEXT NOT NULL,
		trash_path TEXT NOT NULL,
		name TEXT NOT NULL,
		size INTEGER NOT NULL,
		mime_type TEXT,
		deleted_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_trash_expires_at ON trash_items(expires_at);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`

	if _, err = db.Exec(createTablesSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating tables: %w", err)
	}

	// Older databases predate these columns
	if err := addColumnIfMissing(db, "image_hashes", "hash_algorithm", "TEXT"); err != nil {
		db.Close()
		return nil, err
	}
	if err := addColumnIfMissing(db, "trash_items", "mime_type", "TEXT"); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// OpenDatabase opens an existing database connection
func OpenDatabase(dbPath string) (*sql.DB, error) {
	return sql.Open("sqlite3", dbPath)
}

func addColumnIfMissing(db *sql.DB, table, column, decl string) error {
	var hasColumn bool
	query := fmt.Sprintf("SELECT COUNT(*) FROM pragma_table_info('%s') WHERE name=?", table)
	if err := db.QueryRow(query, column).Scan(&hasColumn); err != nil {
		return fmt.Errorf("error checking for %s column: %w", column, err)
	}
	if hasColumn {
		return nil
	}

	if _, err := db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s;", table, column, decl)); err != nil {
		return fmt.Errorf("error adding %s column: %w", column, err)
	}
	logging.DebugLog("Added '%s' column to existing %s table", column, table)
	return nil
}

// CacheStats summarises the hash cache
type CacheStats struct {
	Entries            int
	WithDigest         int
	WithPerceptualHash int
	UniqueDigests      int
}

// GetCacheStats retrieves statistics about cached hashes
func GetCacheStats(db *sql.DB) (*CacheStats, error) {
	var stats CacheStats

	err := db.QueryRow(`
		SELECT COUNT(*),
			COUNT(NULLIF(digest, '')),
			COUNT(NULLIF(perceptual_hash, '')),
			COUNT(DISTINCT NULLIF(digest, ''))
		FROM image_hashes`).Scan(&stats.Entries, &stats.WithDigest, &stats.WithPerceptualHash, &stats.UniqueDigests)
	if err != nil {
		return nil, fmt.Errorf("failed to get cache stats: %w", err)
	}
	return &stats, nil
}
