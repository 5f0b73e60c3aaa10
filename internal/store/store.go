// Package store persists playlist records. Records are written whole: saving a
// playlist replaces its stored videos.
package store

import (
	"context"
	"errors"

	"github.com/ytget/yt-offline/internal/model"
)

// ErrClosed is returned by operations on a closed store
var ErrClosed = errors.New("store closed")

// Store is durable storage for playlists.
// LoadAll returns playlists in the order they were first saved.
type Store interface {
	LoadAll(ctx context.Context) ([]model.PlaylistRecord, error)
	Save(ctx context.Context, record model.PlaylistRecord) error
	Delete(ctx context.Context, url string) error
	Close() error
}
