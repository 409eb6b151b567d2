package sqlite

import (
	"database/sql"

	"github.com/astraldesk/skywall/internal/domain"
)

// GetRotationState loads the persisted rotation for a key. A key never seen
// before yields a fresh first-cycle state rather than an error, so callers
// can treat "absent" and "empty" alike.
func (s *Store) GetRotationState(key domain.RotationKey) (*domain.RotationState, error) {
	state := domain.NewRotationState(key)

	var lastShown sql.NullString
	err := s.db.QueryRow(`
		SELECT last_shown_id, cycle, updated_at
		FROM rotation_states
		WHERE screen_id = ? AND theme_filter = ?
	`, key.ScreenID, key.Filter.String()).Scan(&lastShown, &state.Cycle, &state.UpdatedAt)

	if err == sql.ErrNoRows {
		return state, nil
	}
	if err != nil {
		return nil, err
	}
	if lastShown.Valid {
		state.LastShown = lastShown.String
	}

	rows, err := s.db.Query(`
		SELECT image_id FROM rotation_shown
		WHERE screen_id = ? AND theme_filter = ?
	`, key.ScreenID, key.Filter.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		state.Shown[id] = struct{}{}
	}

	return state, rows.Err()
}

// MarkShown durably records a presentation: the identifier joins the cycle's
// shown set and becomes the key's last-shown image. Idempotent for repeated
// identifiers within a cycle.
func (s *Store) MarkShown(key domain.RotationKey, imageID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO rotation_states (screen_id, theme_filter, last_shown_id, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(screen_id, theme_filter) DO UPDATE SET
			last_shown_id = excluded.last_shown_id,
			updated_at = CURRENT_TIMESTAMP
	`, key.ScreenID, key.Filter.String(), imageID)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		INSERT OR IGNORE INTO rotation_shown (screen_id, theme_filter, image_id)
		VALUES (?, ?, ?)
	`, key.ScreenID, key.Filter.String(), imageID)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// ResetRotation starts the key's next cycle: the shown set is cleared and the
// cycle counter bumped. last_shown_id survives so the first pick of the new
// cycle can avoid an immediate repeat.
func (s *Store) ResetRotation(key domain.RotationKey) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		DELETE FROM rotation_shown
		WHERE screen_id = ? AND theme_filter = ?
	`, key.ScreenID, key.Filter.String())
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		INSERT INTO rotation_states (screen_id, theme_filter, cycle, updated_at)
		VALUES (?, ?, 2, CURRENT_TIMESTAMP)
		ON CONFLICT(screen_id, theme_filter) DO UPDATE SET
			cycle = rotation_states.cycle + 1,
			updated_at = CURRENT_TIMESTAMP
	`, key.ScreenID, key.Filter.String())
	if err != nil {
		return err
	}

	return tx.Commit()
}
