package source

import (
	"context"
	"errors"

	"github.com/timmy/bingwall/internal/domain"
)

// ErrStatus is returned (wrapped) when the archive answers with a non-2xx status.
var ErrStatus = errors.New("unexpected archive response status")

// Archive defines the interface for remote wallpaper archives.
type Archive interface {
	// GetSourceID returns the unique identifier for this archive.
	GetSourceID() string

	// List returns descriptors for the n most recent wallpapers, newest first
	// as the archive reports them.
	// Parameters:
	//   - ctx: context for cancellation.
	//   - n: number of entries requested.
	// Returns:
	//   - []domain.Wallpaper: entries with absolute image URLs.
	//   - error: non-nil on transport, status or decoding failure.
	List(ctx context.Context, n int) ([]domain.Wallpaper, error)

	// FetchImage downloads the raw image bytes behind an absolute URL.
	FetchImage(ctx context.Context, url string) ([]byte, error)
}
