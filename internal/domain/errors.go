package domain

import "errors"

// Common domain errors
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidInput  = errors.New("invalid input")

	// Rotation errors
	ErrNoEligibleImages = errors.New("no eligible images for filter")
	ErrFetchExhausted   = errors.New("all selection candidates failed to fetch")

	// Catalog errors
	ErrImageNotFound = errors.New("image not found in catalog")
	ErrInvalidTheme  = errors.New("unknown theme")

	// Scheduler errors
	ErrScreenNotFound = errors.New("screen not found")
	ErrAlreadyRunning = errors.New("already running")
	ErrNotRunning     = errors.New("not running")
	ErrEmptyManifest  = errors.New("manifest contains no images")

	// ErrSourceGone marks a download URL the archive no longer serves
	// (404/410). Retrying is pointless until the next catalog sync.
	ErrSourceGone = errors.New("source image no longer available")
)

// NetworkError wraps failures reaching the remote archive (manifest or
// download). Always retryable, never fatal to rotation.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	if e.Err != nil {
		return "network failure during " + e.Op + ": " + e.Err.Error()
	}
	return "network failure during " + e.Op
}

// Unwrap returns the underlying error
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a new network error
func NewNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err}
}

// IsNetworkError reports whether err is (or wraps) a NetworkError.
func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// IntegrityError marks downloaded bytes that failed verification
// (size mismatch or non-image content). The download is discarded and the
// record stays uncached.
type IntegrityError struct {
	Reason string
	Err    error
}

func (e *IntegrityError) Error() string {
	if e.Err != nil {
		return "integrity failure: " + e.Reason + ": " + e.Err.Error()
	}
	return "integrity failure: " + e.Reason
}

// Unwrap returns the underlying error
func (e *IntegrityError) Unwrap() error {
	return e.Err
}

// NewIntegrityError creates a new integrity error
func NewIntegrityError(reason string, err error) *IntegrityError {
	return &IntegrityError{Reason: reason, Err: err}
}

// IsIntegrityError reports whether err is (or wraps) an IntegrityError.
func IsIntegrityError(err error) bool {
	var ie *IntegrityError
	return errors.As(err, &ie)
}

// StorageError wraps catalog or cache persistence failures. Fatal only when
// the store is unavailable at startup; at selection time callers degrade and
// keep retrying persistence.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	if e.Err != nil {
		return "storage failure during " + e.Op + ": " + e.Err.Error()
	}
	return "storage failure during " + e.Op
}

// Unwrap returns the underlying error
func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError creates a new storage error
func NewStorageError(op string, err error) *StorageError {
	return &StorageError{Op: op, Err: err}
}

// IsStorageError reports whether err is (or wraps) a StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// ParseError marks a manifest that could not be interpreted. The existing
// catalog stays untouched when this is returned.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return "parse failure: " + e.Reason + ": " + e.Err.Error()
	}
	return "parse failure: " + e.Reason
}

// Unwrap returns the underlying error
func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewParseError creates a new parse error
func NewParseError(reason string, err error) *ParseError {
	return &ParseError{Reason: reason, Err: err}
}

// IsParseError reports whether err is (or wraps) a ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}
