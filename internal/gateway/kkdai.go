package gateway

import (
	"context"
	"fmt"

	"github.com/kkdai/youtube/v2"
)

// Stream selection
const (
	PreferredMimeType = "video/mp4"
)

// KKDai talks to YouTube directly through github.com/kkdai/youtube
type KKDai struct {
	emitter
	client *youtube.Client
	opts   options
}

// NewKKDai creates the kkdai backend
func NewKKDai(opts ...Option) *KKDai {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	client := &youtube.Client{}
	if o.httpClient != nil {
		client.HTTPClient = o.httpClient
	}
	return &KKDai{client: client, opts: o}
}

// Initialize has nothing to set up for this backend
func (k *KKDai) Initialize(ctx context.Context) error {
	return ctx.Err()
}

// FetchPlaylist lists the playlist entries
func (k *KKDai) FetchPlaylist(ctx context.Context, url string) (*PlaylistInfo, error) {
	ctx, cancel := k.opts.withTimeout(ctx)
	defer cancel()

	pl, err := k.client.GetPlaylistContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to get playlist: %w", err)
	}

	info := &PlaylistInfo{
		ID:      pl.ID,
		Title:   pl.Title,
		Entries: make([]Entry, 0, len(pl.Videos)),
	}
	for _, v := range pl.Videos {
		info.Entries = append(info.Entries, Entry{ID: v.ID, Title: v.Title})
	}
	if info.Title == "" {
		info.Title = playlistTitleFromEntries(info.Entries)
	}
	return info, nil
}

// FetchVideoMetadata loads title, duration and description of a video
func (k *KKDai) FetchVideoMetadata(ctx context.Context, url string) (*VideoInfo, error) {
	ctx, cancel := k.opts.withTimeout(ctx)
	defer cancel()

	v, err := k.client.GetVideoContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to get video: %w", err)
	}

	return &VideoInfo{
		ID:          v.ID,
		Title:       v.Title,
		Duration:    int(v.Duration.Seconds()),
		Description: v.Description,
	}, nil
}

// Download resolves the best muxed mp4 format and transfers it to the destination.
// An interrupted transfer is resumed from its partial file.
func (k *KKDai) Download(ctx context.Context, req DownloadRequest) error {
	return k.finish(req.Token, k.download(ctx, req))
}

func (k *KKDai) download(ctx context.Context, req DownloadRequest) error {
	video, err := k.client.GetVideoContext(ctx, req.URL)
	if err != nil {
		return fmt.Errorf("failed to get video: %w", err)
	}

	formats := video.Formats.Type(PreferredMimeType).WithAudioChannels()
	if len(formats) == 0 {
		return fmt.Errorf("%w: %s", ErrNoFormat, video.ID)
	}
	formats.Sort()
	format := formats[0]

	return k.opts.withRetry(ctx, "download of "+video.ID, func() error {
		mediaURL, err := k.client.GetStreamURLContext(ctx, video, &format)
		if err != nil {
			return fmt.Errorf("failed to resolve stream: %w", err)
		}
		return k.opts.transfer(ctx, k.emit, mediaURL, req)
	})
}
