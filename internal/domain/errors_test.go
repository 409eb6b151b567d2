package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestNetworkError_Error(t *testing.T) {
	tests := []struct {
		name string
		op   string
		err  error
		want string
	}{
		{
			name: "with underlying error",
			op:   "manifest fetch",
			err:  errors.New("connection refused"),
			want: "network failure during manifest fetch: connection refused",
		},
		{
			name: "without underlying error",
			op:   "download",
			err:  nil,
			want: "network failure during download",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ne := NewNetworkError(tt.op, tt.err)
			if got := ne.Error(); got != tt.want {
				t.Errorf("Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsNetworkError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "network error",
			err:  NewNetworkError("download", errors.New("timeout")),
			want: true,
		},
		{
			name: "wrapped network error",
			err:  fmt.Errorf("sync: %w", NewNetworkError("manifest fetch", errors.New("eof"))),
			want: true,
		},
		{
			name: "regular error",
			err:  errors.New("boom"),
			want: false,
		},
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
		{
			name: "integrity error is not a network error",
			err:  NewIntegrityError("size mismatch", nil),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNetworkError(tt.err); got != tt.want {
				t.Errorf("IsNetworkError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIntegrityError_Error(t *testing.T) {
	ie := NewIntegrityError("size mismatch", nil)
	if got, want := ie.Error(), "integrity failure: size mismatch"; got != want {
		t.Errorf("Error() = %v, want %v", got, want)
	}

	wrapped := NewIntegrityError("bad content", errors.New("not an image"))
	if got, want := wrapped.Error(), "integrity failure: bad content: not an image"; got != want {
		t.Errorf("Error() = %v, want %v", got, want)
	}
}

func TestStorageError_Unwrap(t *testing.T) {
	underlying := errors.New("database is locked")
	se := NewStorageError("mark shown", underlying)

	if !errors.Is(se, underlying) {
		t.Error("StorageError should unwrap to the underlying error")
	}
	if !IsStorageError(fmt.Errorf("selection: %w", se)) {
		t.Error("IsStorageError should see through wrapping")
	}
}

func TestTaxonomyIsDisjoint(t *testing.T) {
	ne := NewNetworkError("download", errors.New("timeout"))
	ie := NewIntegrityError("truncated", nil)
	se := NewStorageError("upsert", errors.New("disk full"))
	pe := NewParseError("no theme directories", nil)

	if IsIntegrityError(ne) || IsStorageError(ne) || IsParseError(ne) {
		t.Error("network error matched another taxonomy class")
	}
	if IsNetworkError(ie) || IsStorageError(ie) || IsParseError(ie) {
		t.Error("integrity error matched another taxonomy class")
	}
	if IsNetworkError(se) || IsIntegrityError(se) || IsParseError(se) {
		t.Error("storage error matched another taxonomy class")
	}
	if IsNetworkError(pe) || IsIntegrityError(pe) || IsStorageError(pe) {
		t.Error("parse error matched another taxonomy class")
	}
}

func TestSentinelWrapping(t *testing.T) {
	err := fmt.Errorf("select for screen %s: %w", "screen-0", ErrNoEligibleImages)
	if !errors.Is(err, ErrNoEligibleImages) {
		t.Error("wrapped sentinel should satisfy errors.Is")
	}

	err = fmt.Errorf("tick: %w", ErrFetchExhausted)
	if !errors.Is(err, ErrFetchExhausted) {
		t.Error("wrapped sentinel should satisfy errors.Is")
	}
}
