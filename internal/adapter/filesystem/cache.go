package filesystem

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/astraldesk/skywall/internal/port"
)

const (
	partSuffix = ".part"
	sniffLen   = 512
)

// Cache stores image bytes in a flat content-addressed layout: every
// promoted file is named after the sha256 of its content, so re-downloads
// of identical bytes land on the same path.
type Cache struct {
	rootDir    string
	bufferSize int
}

// Ensure Cache implements port.BlobCache
var _ port.BlobCache = (*Cache)(nil)

// NewCache creates a blob cache rooted at rootDir
func NewCache(rootDir string) (*Cache, error) {
	return NewCacheWithBufferSize(rootDir, 1*1024*1024) // 1MB default
}

// NewCacheWithBufferSize creates a blob cache with a custom copy buffer size
func NewCacheWithBufferSize(rootDir string, bufferSize int) (*Cache, error) {
	// Ensure root directory exists
	if err := os.MkdirAll(rootDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache root dir: %w", err)
	}

	if bufferSize <= 0 {
		bufferSize = 1 * 1024 * 1024
	}

	return &Cache{
		rootDir:    rootDir,
		bufferSize: bufferSize,
	}, nil
}

// RootDir returns the cache root directory
func (c *Cache) RootDir() string {
	return c.rootDir
}

// headRecorder keeps the first sniffLen bytes passing through a writer chain
type headRecorder struct {
	buf []byte
}

func (h *headRecorder) Write(p []byte) (int, error) {
	if remain := sniffLen - len(h.buf); remain > 0 {
		if len(p) > remain {
			h.buf = append(h.buf, p[:remain]...)
		} else {
			h.buf = append(h.buf, p...)
		}
	}
	return len(p), nil
}

// Stage streams r into <token>.part under the root, computing the content
// hash and sniffing the media type in the same pass. On any error the part
// file is removed.
func (c *Cache) Stage(token string, r io.Reader) (*port.StagedBlob, error) {
	tempPath := filepath.Join(c.rootDir, token+partSuffix)

	f, err := os.Create(tempPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create part file: %w", err)
	}

	hasher := sha256.New()
	head := &headRecorder{}

	buf := make([]byte, c.bufferSize)
	written, err := io.CopyBuffer(io.MultiWriter(f, hasher, head), r, buf)
	if err != nil {
		f.Close()
		os.Remove(tempPath)
		return nil, fmt.Errorf("failed to write part file: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tempPath)
		return nil, fmt.Errorf("failed to close part file: %w", err)
	}

	return &port.StagedBlob{
		TempPath: tempPath,
		Hash:     hex.EncodeToString(hasher.Sum(nil)),
		Size:     written,
		Sniffed:  http.DetectContentType(head.buf),
	}, nil
}

// Promote renames a staged blob to <hash><ext>. When that path already holds
// the same content the duplicate part file is dropped and the existing path
// returned.
func (c *Cache) Promote(staged *port.StagedBlob, ext string) (string, error) {
	finalPath := filepath.Join(c.rootDir, staged.Hash+normalizeExt(ext))

	if _, err := os.Stat(finalPath); err == nil {
		os.Remove(staged.TempPath)
		return finalPath, nil
	}

	if err := os.Rename(staged.TempPath, finalPath); err != nil {
		return "", fmt.Errorf("failed to promote part file: %w", err)
	}
	return finalPath, nil
}

// Discard removes a staged blob's part file
func (c *Cache) Discard(staged *port.StagedBlob) error {
	if err := os.Remove(staged.TempPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to discard part file: %w", err)
	}
	return nil
}

// Exists checks whether a cached file is present
func (c *Cache) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Remove deletes a cached file
func (c *Cache) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// Size returns total size of files under the root
func (c *Cache) Size() (int64, error) {
	var size int64
	err := filepath.Walk(c.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}

// CleanStaleParts removes part files older than the specified duration.
// Interrupted downloads leave these behind.
func (c *Cache) CleanStaleParts(olderThan time.Duration) (int, error) {
	count := 0
	threshold := time.Now().Add(-olderThan)

	err := filepath.Walk(c.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == partSuffix {
			if info.ModTime().Before(threshold) {
				if removeErr := os.Remove(path); removeErr == nil {
					count++
				}
			}
		}
		return nil
	})
	return count, err
}

// normalizeExt lowercases an extension and guarantees the leading dot.
// An empty extension stays empty.
func normalizeExt(ext string) string {
	if ext == "" {
		return ""
	}
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
