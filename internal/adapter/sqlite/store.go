package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/astraldesk/skywall/internal/domain"
	"github.com/astraldesk/skywall/internal/port"
)

// Store implements the catalog and rotation repositories on SQLite
type Store struct {
	db *sql.DB
}

// Ensure Store implements the persistence ports
var (
	_ port.ImageRepository    = (*Store)(nil)
	_ port.RotationRepository = (*Store)(nil)
	_ port.Store              = (*Store)(nil)
)

// Open opens the SQLite database, applying WAL mode and the schema
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -64000", // 64MB cache
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	store := &Store{db: db}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping checks database connectivity
func (s *Store) Ping() error {
	return s.db.Ping()
}

// migrate creates or updates the database schema
func (s *Store) migrate() error {
	migrations := []string{
		// Image catalog. Cache fields stay NULL until bytes are verified.
		`CREATE TABLE IF NOT EXISTS images (
			id TEXT PRIMARY KEY,
			source_url TEXT UNIQUE NOT NULL,
			theme TEXT NOT NULL,
			file_name TEXT NOT NULL,
			byte_size INTEGER NOT NULL DEFAULT 0,
			content_hash TEXT,
			cache_path TEXT,
			fetched_at TIMESTAMP,
			verified_at TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		// One row per screen+filter rotation.
		`CREATE TABLE IF NOT EXISTS rotation_states (
			screen_id TEXT NOT NULL,
			theme_filter TEXT NOT NULL,
			last_shown_id TEXT,
			cycle INTEGER NOT NULL DEFAULT 1,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (screen_id, theme_filter)
		)`,

		// Identifiers already presented in the current cycle.
		`CREATE TABLE IF NOT EXISTS rotation_shown (
			screen_id TEXT NOT NULL,
			theme_filter TEXT NOT NULL,
			image_id TEXT NOT NULL,
			shown_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (screen_id, theme_filter, image_id)
		)`,

		// Sync state and schema bookkeeping.
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_images_theme ON images(theme)`,
		`CREATE INDEX IF NOT EXISTS idx_images_cache_path ON images(cache_path)`,
		`CREATE INDEX IF NOT EXISTS idx_rotation_shown_image ON rotation_shown(image_id)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, migration)
		}
	}

	return nil
}

// GetCatalogStats returns catalog counters for the status surface
func (s *Store) GetCatalogStats() (*domain.CatalogStats, error) {
	stats := &domain.CatalogStats{}

	if err := s.db.QueryRow("SELECT COUNT(*) FROM images").Scan(&stats.TotalImages); err != nil {
		return nil, err
	}

	if err := s.db.QueryRow("SELECT COUNT(*) FROM images WHERE cache_path IS NOT NULL").Scan(&stats.CachedImages); err != nil {
		return nil, err
	}

	var cacheBytes sql.NullInt64
	if err := s.db.QueryRow("SELECT SUM(byte_size) FROM images WHERE cache_path IS NOT NULL").Scan(&cacheBytes); err != nil {
		return nil, err
	}
	stats.CacheBytes = cacheBytes.Int64

	return stats, nil
}

// SetMeta stores a sync-state value
func (s *Store) SetMeta(key, value string) error {
	query := `
		INSERT INTO meta (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`
	_, err := s.db.Exec(query, key, value)
	return err
}

// GetMeta reads a sync-state value. Missing keys return an empty string.
func (s *Store) GetMeta(key string) (string, error) {
	var value sql.NullString
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value.String, nil
}
