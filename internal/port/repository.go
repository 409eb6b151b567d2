package port

import (
	"github.com/astraldesk/skywall/internal/domain"
)

// ImageRepository defines catalog persistence operations
type ImageRepository interface {
	// UpsertImages merges manifest records: new identifiers are added,
	// existing ones have listing metadata refreshed with cache fields
	// preserved. Returns the number of newly added records.
	UpsertImages(records []domain.ImageRecord) (int, error)

	// GetImage retrieves a record by identifier, (nil, nil) when unknown
	GetImage(id string) (*domain.ImageRecord, error)

	// ListByTheme returns records matching the filter in stable order
	ListByTheme(filter domain.Theme) ([]*domain.ImageRecord, error)

	// ListUncachedByTheme returns up to limit records lacking cached bytes
	ListUncachedByTheme(filter domain.Theme, limit int) ([]*domain.ImageRecord, error)

	// ListCached returns every record pointing at local bytes
	ListCached() ([]*domain.ImageRecord, error)

	// CountByTheme returns the pool size for a filter
	CountByTheme(filter domain.Theme) (int64, error)

	// SetCached records a verified download
	SetCached(id, cachePath, contentHash string, size int64) error

	// ClearCached detaches a record from local bytes (needs re-fetch)
	ClearCached(id string) error

	// GetEvictionCandidates returns cached records no active rotation still
	// owes a showing, oldest fetch first
	GetEvictionCandidates(activeKeys []domain.RotationKey, limit int) ([]*domain.ImageRecord, error)
}

// RotationRepository persists per-screen+filter rotation state
type RotationRepository interface {
	// GetRotationState loads the state for a key; unseen keys yield a fresh
	// first-cycle state
	GetRotationState(key domain.RotationKey) (*domain.RotationState, error)

	// MarkShown durably records a presentation and the last-shown identifier
	MarkShown(key domain.RotationKey, imageID string) error

	// ResetRotation clears the shown set and bumps the cycle counter
	ResetRotation(key domain.RotationKey) error
}

// Store exposes lifecycle and bookkeeping shared by the repositories
type Store interface {
	// Ping checks connectivity
	Ping() error

	// Close releases the underlying database
	Close() error

	// GetCatalogStats returns catalog counters for the status surface
	GetCatalogStats() (*domain.CatalogStats, error)

	// SetMeta stores a sync-state value
	SetMeta(key, value string) error

	// GetMeta reads a sync-state value, empty string when missing
	GetMeta(key string) (string, error)
}
