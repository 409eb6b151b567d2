package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// idHexLen is the length of the hex-encoded identifier derived from the
// source URL. 64 bits is plenty for a catalog of a few thousand images.
const idHexLen = 16

// ImageRecord is one catalog entry for a remote image. The identifier is
// derived from the source URL so repeated syncs always produce the same key;
// cache fields stay empty until the bytes have been fetched and verified.
type ImageRecord struct {
	ID          string
	SourceURL   string
	Theme       Theme
	FileName    string
	ByteSize    int64
	ContentHash string
	CachePath   string
	FetchedAt   *time.Time
	VerifiedAt  *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ImageID derives the stable catalog identifier for a source URL.
func ImageID(sourceURL string) string {
	sum := sha256.Sum256([]byte(sourceURL))
	return hex.EncodeToString(sum[:])[:idHexLen]
}

// NewImageRecord builds a catalog record for a manifest entry.
func NewImageRecord(sourceURL string, theme Theme, fileName string) ImageRecord {
	return ImageRecord{
		ID:        ImageID(sourceURL),
		SourceURL: sourceURL,
		Theme:     theme,
		FileName:  fileName,
	}
}

// Cached reports whether the record points at verified local bytes.
func (r *ImageRecord) Cached() bool {
	return r.CachePath != ""
}

// MarkCached records a verified download.
func (r *ImageRecord) MarkCached(cachePath, contentHash string, size int64) {
	r.CachePath = cachePath
	r.ContentHash = contentHash
	r.ByteSize = size
	now := time.Now()
	r.FetchedAt = &now
	r.VerifiedAt = &now
}

// ClearCache detaches the record from local bytes so it becomes
// "needs re-fetch". The fail-safe for missing or corrupt cache files.
func (r *ImageRecord) ClearCache() {
	r.CachePath = ""
	r.ContentHash = ""
	r.FetchedAt = nil
	r.VerifiedAt = nil
}

// ManifestEntry is one image descriptor from the remote archive listing.
type ManifestEntry struct {
	SourceURL string
	Theme     Theme
	FileName  string
}

// CatalogStats summarizes the catalog for the status surface.
type CatalogStats struct {
	TotalImages  int64
	CachedImages int64
	CacheBytes   int64
}
