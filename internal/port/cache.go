package port

import (
	"io"
	"time"
)

// StagedBlob is a fully written but not yet promoted download. The hash and
// sniffed media type are computed while streaming so verification needs no
// second pass over the bytes.
type StagedBlob struct {
	TempPath string
	Hash     string // sha256 hex of the written bytes
	Size     int64
	Sniffed  string // media type detected from the leading bytes
}

// BlobCache is the content-addressed store for image bytes. Writes are
// two-phase: Stage streams into a temporary part file, Promote renames it to
// its content-derived final name, Discard drops it.
type BlobCache interface {
	// RootDir returns the cache root directory
	RootDir() string

	// Stage streams r to a part file, hashing and sniffing as it copies
	Stage(token string, r io.Reader) (*StagedBlob, error)

	// Promote moves a staged blob to its content-addressed final path.
	// When a file with the same content already exists the staged copy is
	// dropped and the existing path returned.
	Promote(staged *StagedBlob, ext string) (string, error)

	// Discard removes a staged blob's part file
	Discard(staged *StagedBlob) error

	// Exists checks whether a cached file is present
	Exists(path string) bool

	// Remove deletes a cached file
	Remove(path string) error

	// Size returns the total bytes stored under the root
	Size() (int64, error)

	// FreeSpace returns the free bytes on the cache filesystem
	FreeSpace() (uint64, error)

	// CleanStaleParts removes part files older than the given age.
	// Returns the number of files deleted.
	CleanStaleParts(olderThan time.Duration) (int, error)
}
