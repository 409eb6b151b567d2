package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/astraldesk/skywall/internal/domain"
)

const imageColumns = `id, source_url, theme, file_name, byte_size,
	   content_hash, cache_path, fetched_at, verified_at, created_at, updated_at`

// UpsertImages merges manifest records into the catalog. New identifiers are
// inserted; existing ones get their listing metadata refreshed while cache
// fields (path, hash, size, fetch timestamps) are preserved. Theme is never
// rewritten: the identifier derives from the source URL, which embeds the
// theme directory, so a theme change always arrives as a new identifier.
// Returns the number of newly added records.
func (s *Store) UpsertImages(records []domain.ImageRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var before int64
	if err := tx.QueryRow("SELECT COUNT(*) FROM images").Scan(&before); err != nil {
		return 0, err
	}

	query := `
		INSERT INTO images (id, source_url, theme, file_name)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			file_name = excluded.file_name,
			updated_at = CURRENT_TIMESTAMP
	`

	stmt, err := tx.Prepare(query)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.Exec(rec.ID, rec.SourceURL, rec.Theme.String(), rec.FileName); err != nil {
			return 0, fmt.Errorf("upsert image %s: %w", rec.ID, err)
		}
	}

	var after int64
	if err := tx.QueryRow("SELECT COUNT(*) FROM images").Scan(&after); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	return int(after - before), nil
}

// GetImage retrieves a catalog record by identifier. Returns (nil, nil) when
// the identifier is unknown.
func (s *Store) GetImage(id string) (*domain.ImageRecord, error) {
	query := `SELECT ` + imageColumns + ` FROM images WHERE id = ?`
	return s.scanImage(s.db.QueryRow(query, id))
}

// ListByTheme returns all records matching the filter, ordered by identifier
// so pool ordering is stable across calls.
func (s *Store) ListByTheme(filter domain.Theme) ([]*domain.ImageRecord, error) {
	var (
		rows *sql.Rows
		err  error
	)

	if filter == domain.ThemeAll {
		rows, err = s.db.Query(`SELECT ` + imageColumns + ` FROM images ORDER BY id`)
	} else {
		rows, err = s.db.Query(`SELECT `+imageColumns+` FROM images WHERE theme = ? ORDER BY id`, filter.String())
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return s.scanImages(rows)
}

// ListUncachedByTheme returns up to limit records without cached bytes for a
// filter. Used by prefetch.
func (s *Store) ListUncachedByTheme(filter domain.Theme, limit int) ([]*domain.ImageRecord, error) {
	var (
		rows *sql.Rows
		err  error
	)

	if filter == domain.ThemeAll {
		rows, err = s.db.Query(`SELECT `+imageColumns+` FROM images
			WHERE cache_path IS NULL ORDER BY created_at LIMIT ?`, limit)
	} else {
		rows, err = s.db.Query(`SELECT `+imageColumns+` FROM images
			WHERE cache_path IS NULL AND theme = ? ORDER BY created_at LIMIT ?`, filter.String(), limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return s.scanImages(rows)
}

// ListCached returns every record currently pointing at local bytes.
func (s *Store) ListCached() ([]*domain.ImageRecord, error) {
	rows, err := s.db.Query(`SELECT ` + imageColumns + ` FROM images
		WHERE cache_path IS NOT NULL ORDER BY fetched_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return s.scanImages(rows)
}

// CountByTheme returns the pool size for a filter.
func (s *Store) CountByTheme(filter domain.Theme) (int64, error) {
	var count int64
	var err error
	if filter == domain.ThemeAll {
		err = s.db.QueryRow("SELECT COUNT(*) FROM images").Scan(&count)
	} else {
		err = s.db.QueryRow("SELECT COUNT(*) FROM images WHERE theme = ?", filter.String()).Scan(&count)
	}
	return count, err
}

// SetCached records a verified download for an identifier.
func (s *Store) SetCached(id, cachePath, contentHash string, size int64) error {
	query := `
		UPDATE images SET
			cache_path = ?, content_hash = ?, byte_size = ?,
			fetched_at = CURRENT_TIMESTAMP, verified_at = CURRENT_TIMESTAMP,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	result, err := s.db.Exec(query, cachePath, contentHash, size, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrImageNotFound
	}
	return nil
}

// ClearCached detaches a record from local bytes so it becomes
// "needs re-fetch". The fail-safe for missing or corrupt cache files.
func (s *Store) ClearCached(id string) error {
	query := `
		UPDATE images SET
			cache_path = NULL, content_hash = NULL,
			fetched_at = NULL, verified_at = NULL,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`
	_, err := s.db.Exec(query, id)
	return err
}

// GetEvictionCandidates returns cached records safe to evict, oldest fetch
// first. A record is safe when no active rotation (given as screen+filter
// keys) still owes it a showing in the current cycle; with no active keys
// every cached record qualifies.
func (s *Store) GetEvictionCandidates(activeKeys []domain.RotationKey, limit int) ([]*domain.ImageRecord, error) {
	query := `SELECT ` + imageColumns + ` FROM images i
		WHERE i.cache_path IS NOT NULL`

	args := make([]interface{}, 0, len(activeKeys)*2+1)
	if len(activeKeys) > 0 {
		pairs := make([]string, 0, len(activeKeys))
		for _, key := range activeKeys {
			pairs = append(pairs, "(rs.screen_id = ? AND rs.theme_filter = ?)")
			args = append(args, key.ScreenID, key.Filter.String())
		}
		query += `
		AND NOT EXISTS (
			SELECT 1 FROM rotation_states rs
			WHERE (` + strings.Join(pairs, " OR ") + `)
			  AND (rs.theme_filter = 'all' OR rs.theme_filter = i.theme)
			  AND NOT EXISTS (
				SELECT 1 FROM rotation_shown sh
				WHERE sh.screen_id = rs.screen_id
				  AND sh.theme_filter = rs.theme_filter
				  AND sh.image_id = i.id
			  )
		)`
	}

	query += `
		ORDER BY COALESCE(i.fetched_at, i.created_at) ASC
		LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return s.scanImages(rows)
}

// scanImage scans a single image row, mapping sql.ErrNoRows to (nil, nil)
func (s *Store) scanImage(row *sql.Row) (*domain.ImageRecord, error) {
	rec := &domain.ImageRecord{}
	var theme string
	var contentHash, cachePath sql.NullString

	err := row.Scan(
		&rec.ID, &rec.SourceURL, &theme, &rec.FileName, &rec.ByteSize,
		&contentHash, &cachePath, &rec.FetchedAt, &rec.VerifiedAt,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rec.Theme = domain.Theme(theme)
	if contentHash.Valid {
		rec.ContentHash = contentHash.String
	}
	if cachePath.Valid {
		rec.CachePath = cachePath.String
	}

	return rec, nil
}

// scanImages is a helper to scan multiple image rows
func (s *Store) scanImages(rows *sql.Rows) ([]*domain.ImageRecord, error) {
	var records []*domain.ImageRecord

	for rows.Next() {
		rec := &domain.ImageRecord{}
		var theme string
		var contentHash, cachePath sql.NullString

		err := rows.Scan(
			&rec.ID, &rec.SourceURL, &theme, &rec.FileName, &rec.ByteSize,
			&contentHash, &cachePath, &rec.FetchedAt, &rec.VerifiedAt,
			&rec.CreatedAt, &rec.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}

		rec.Theme = domain.Theme(theme)
		if contentHash.Valid {
			rec.ContentHash = contentHash.String
		}
		if cachePath.Valid {
			rec.CachePath = cachePath.String
		}

		records = append(records, rec)
	}

	return records, rows.Err()
}
