package archive

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/astraldesk/skywall/internal/domain"
	"github.com/astraldesk/skywall/internal/port"
)

const defaultUserAgent = "skywall/1.0"

// Client fetches the image manifest and image bytes from an archive that
// publishes autoindex-style directory listings, one subdirectory per theme.
type Client struct {
	baseURL        *url.URL
	userAgent      string
	limiter        *rate.Limiter
	listClient     *http.Client
	downloadClient *http.Client
	logger         *zap.Logger
}

// Ensure Client implements port.ArchiveClient
var _ port.ArchiveClient = (*Client)(nil)

// ClientConfig contains optional client configuration
type ClientConfig struct {
	UserAgent         string
	RequestTimeout    time.Duration // listing requests (default: 10s)
	RequestsPerSecond float64       // archive-wide rate limit (default: 1)
	Burst             int           // default: 1
}

// NewClient creates an archive client for the given base listing URL.
func NewClient(baseURL string, cfg *ClientConfig, logger *zap.Logger) (*Client, error) {
	// Relative resolution needs the trailing slash.
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid archive base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid archive base URL: unsupported scheme %q", base.Scheme)
	}

	userAgent := defaultUserAgent
	requestTimeout := 10 * time.Second
	rps := 1.0
	burst := 1
	if cfg != nil {
		if cfg.UserAgent != "" {
			userAgent = cfg.UserAgent
		}
		if cfg.RequestTimeout > 0 {
			requestTimeout = cfg.RequestTimeout
		}
		if cfg.RequestsPerSecond > 0 {
			rps = cfg.RequestsPerSecond
		}
		if cfg.Burst > 0 {
			burst = cfg.Burst
		}
	}

	listTransport := &http.Transport{
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	downloadTransport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     120 * time.Second,
		ForceAttemptHTTP2:   true,

		// Image bytes are already compressed
		DisableCompression: true,

		// Response header timeout (not total download timeout)
		ResponseHeaderTimeout: 30 * time.Second,
	}

	return &Client{
		baseURL:   base,
		userAgent: userAgent,
		limiter:   rate.NewLimiter(rate.Limit(rps), burst),
		listClient: &http.Client{
			Transport: listTransport,
			Timeout:   requestTimeout,
		},
		downloadClient: &http.Client{
			Transport: downloadTransport,
			Timeout:   0, // callers bound downloads via ctx
		},
		logger: logger,
	}, nil
}

// FetchManifest walks the archive's root listing and every recognized theme
// subdirectory, returning one entry per image file. Unknown subdirectories
// are skipped. A theme listing that fails to load is skipped with a warning
// so one bad directory does not lose the rest of the manifest; the error is
// surfaced only when every theme fails.
func (c *Client) FetchManifest(ctx context.Context) ([]domain.ManifestEntry, error) {
	root, err := c.fetchListing(ctx, c.baseURL)
	if err != nil {
		return nil, err
	}

	var entries []domain.ManifestEntry
	var themesSeen, themesFailed int
	var lastErr error

	for _, dir := range root {
		if !dir.Dir {
			continue
		}
		theme, err := domain.ParseTheme(dir.Name)
		if err != nil || theme == domain.ThemeAll {
			c.logger.Debug("skipping unrecognized archive directory",
				zap.String("name", dir.Name))
			continue
		}
		themesSeen++

		images, err := c.fetchListing(ctx, dir.URL)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			themesFailed++
			lastErr = err
			c.logger.Warn("theme listing failed, skipping",
				zap.String("theme", theme.String()),
				zap.Error(err))
			continue
		}

		for _, img := range images {
			if img.Dir {
				continue
			}
			entries = append(entries, domain.ManifestEntry{
				SourceURL: img.URL.String(),
				Theme:     theme,
				FileName:  img.Name,
			})
		}
	}

	if themesSeen > 0 && themesFailed == themesSeen {
		return nil, lastErr
	}

	c.logger.Debug("archive manifest fetched",
		zap.Int("themes", themesSeen-themesFailed),
		zap.Int("images", len(entries)))
	return entries, nil
}

// fetchListing downloads and parses one directory index page.
func (c *Client) fetchListing(ctx context.Context, u *url.URL) ([]listingEntry, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, domain.NewNetworkError("list", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, domain.NewNetworkError("list", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := c.listClient.Do(req)
	if err != nil {
		return nil, domain.NewNetworkError("list", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, domain.NewNetworkError("list",
			fmt.Errorf("unexpected status %s for %s", resp.Status, u))
	}

	entries, err := parseListing(u, resp.Body)
	if err != nil {
		return nil, domain.NewParseError("directory listing", err)
	}
	return entries, nil
}

// Download streams the image at sourceURL. The caller owns the returned body.
// Content length is -1 when the archive does not report one. A 404 or 410
// wraps domain.ErrSourceGone so callers can stop retrying until the next
// catalog sync.
func (c *Client) Download(ctx context.Context, sourceURL string) (io.ReadCloser, int64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, domain.NewNetworkError("download", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, 0, domain.NewNetworkError("download", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.downloadClient.Do(req)
	if err != nil {
		return nil, 0, domain.NewNetworkError("download", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return resp.Body, resp.ContentLength, nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		resp.Body.Close()
		return nil, 0, domain.NewNetworkError("download",
			fmt.Errorf("HTTP %d for %s: %w", resp.StatusCode, sourceURL, domain.ErrSourceGone))
	default:
		resp.Body.Close()
		return nil, 0, domain.NewNetworkError("download",
			fmt.Errorf("unexpected status %s for %s", resp.Status, sourceURL))
	}
}
