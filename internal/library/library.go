// Package library keeps the set of known playlists and persists them.
package library

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/ytget/yt-offline/internal/logger"
	"github.com/ytget/yt-offline/internal/model"
	"github.com/ytget/yt-offline/internal/platform"
	"github.com/ytget/yt-offline/internal/store"
)

var (
	// ErrExists is returned when adding a playlist URL that is already known
	ErrExists = errors.New("playlist already exists")
	// ErrNotFound is returned for unknown playlists and videos
	ErrNotFound = errors.New("not found")
)

// Library is the shared collection of playlists
type Library struct {
	store  store.Store
	layout *platform.Layout
	log    *logger.Manager

	mu        sync.RWMutex
	playlists []*model.Playlist
}

// New creates an empty library; call Load to restore stored playlists
func New(st store.Store, layout *platform.Layout, log *logger.Manager) *Library {
	if log == nil {
		log = logger.Default()
	}
	return &Library{store: st, layout: layout, log: log}
}

// Load replaces the in-memory playlists with the stored ones
func (l *Library) Load(ctx context.Context) error {
	records, err := l.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load playlists: %w", err)
	}

	playlists := make([]*model.Playlist, 0, len(records))
	for _, r := range records {
		playlists = append(playlists, model.PlaylistFromRecord(r))
	}

	l.mu.Lock()
	l.playlists = playlists
	l.mu.Unlock()

	l.log.Info().Printf("Loaded %d playlists", len(playlists))
	return nil
}

// Add registers and persists a new playlist
func (l *Library) Add(ctx context.Context, url string) (*model.Playlist, error) {
	if !platform.IsPlaylistURL(url) {
		return nil, fmt.Errorf("invalid playlist URL %q: %w", url, platform.ErrNotPlaylistURL)
	}

	l.mu.Lock()
	if l.findLocked(url) != nil {
		l.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrExists, url)
	}
	p := model.NewPlaylist(url)
	l.playlists = append(l.playlists, p)
	l.mu.Unlock()

	if err := l.Save(ctx, p); err != nil {
		l.mu.Lock()
		l.playlists = slices.DeleteFunc(l.playlists, func(x *model.Playlist) bool { return x == p })
		l.mu.Unlock()
		return nil, err
	}
	return p, nil
}

// Get returns the playlist with the given URL
func (l *Library) Get(url string) (*model.Playlist, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p := l.findLocked(url)
	return p, p != nil
}

// FindByID returns the playlist with the given remote ID
func (l *Library) FindByID(id string) (*model.Playlist, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, p := range l.playlists {
		if p.ID() == id {
			return p, true
		}
	}
	return nil, false
}

// All returns the playlists in the order they were added
func (l *Library) All() []*model.Playlist {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.playlists)
}

// Save persists one playlist
func (l *Library) Save(ctx context.Context, p *model.Playlist) error {
	if err := l.store.Save(ctx, p.Record()); err != nil {
		return fmt.Errorf("save playlist %s: %w", p.URL(), err)
	}
	return nil
}

// SaveAll persists every playlist and returns the joined errors
func (l *Library) SaveAll(ctx context.Context) error {
	var errs []error
	for _, p := range l.All() {
		if err := l.Save(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Remove forgets a playlist, optionally deleting its downloaded files
func (l *Library) Remove(ctx context.Context, url string, deleteFiles bool) error {
	l.mu.Lock()
	p := l.findLocked(url)
	if p == nil {
		l.mu.Unlock()
		return fmt.Errorf("%w: playlist %s", ErrNotFound, url)
	}
	l.playlists = slices.DeleteFunc(l.playlists, func(x *model.Playlist) bool { return x == p })
	l.mu.Unlock()

	if deleteFiles {
		l.DeletePlaylistFiles(p)
	}
	if err := l.store.Delete(ctx, url); err != nil {
		return fmt.Errorf("delete playlist %s: %w", url, err)
	}
	return nil
}

// DeleteVideoFile removes the downloaded and partial files of a video.
// Failures are logged, not returned.
func (l *Library) DeleteVideoFile(v *model.Video) {
	if err := l.layout.DeleteFiles(v.ID()); err != nil {
		l.log.Error().Printf("Failed to delete files of video %s: %v", v.ID(), err)
	}
}

// DeletePlaylistFiles removes the files of every video in the playlist
func (l *Library) DeletePlaylistFiles(p *model.Playlist) {
	for _, v := range p.Videos() {
		l.DeleteVideoFile(v)
	}
}

// Layout returns the filesystem layout the library's videos are stored in
func (l *Library) Layout() *platform.Layout {
	return l.layout
}

// NotDownloaded returns the videos of p, in remote order, that have neither a
// final nor a partial file
func (l *Library) NotDownloaded(p *model.Playlist) []*model.Video {
	var pending []*model.Video
	for _, v := range p.Videos() {
		if l.layout.HasBeenDownloaded(v.ID()) || l.layout.HasPartial(v.ID()) {
			continue
		}
		pending = append(pending, v)
	}
	return pending
}

// FindVideo returns the first playlist holding the video, and the video
func (l *Library) FindVideo(id string) (*model.Playlist, *model.Video) {
	for _, p := range l.All() {
		if v := p.FindVideo(id); v != nil {
			return p, v
		}
	}
	return nil, nil
}

// SetWatchedPosition records a playback position and persists the owning playlist
func (l *Library) SetWatchedPosition(ctx context.Context, videoID string, seconds int) error {
	p, v := l.FindVideo(videoID)
	if v == nil {
		return fmt.Errorf("%w: video %s", ErrNotFound, videoID)
	}
	v.SetWatchedPosition(seconds)
	return l.Save(ctx, p)
}

func (l *Library) findLocked(url string) *model.Playlist {
	for _, p := range l.playlists {
		if p.URL() == url {
			return p
		}
	}
	return nil
}
