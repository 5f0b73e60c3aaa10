package gateway

import (
	"context"
	"fmt"

	"github.com/ytget/ytdlp/v2"

	"github.com/ytget/yt-offline/internal/platform"
)

// Format selection for ytdlp: an empty selector prefers the muxed mp4 itags
const (
	ytdlpFormatSelector = ""
	ytdlpFormatExt      = "mp4"
)

// YTDLP lists playlists and downloads videos with github.com/ytget/ytdlp.
// Video metadata comes from the kkdai client, which returns duration and description.
type YTDLP struct {
	*KKDai
}

// NewYTDLP creates the ytdlp backend
func NewYTDLP(opts ...Option) *YTDLP {
	return &YTDLP{KKDai: NewKKDai(opts...)}
}

// FetchPlaylist lists every entry of the playlist
func (y *YTDLP) FetchPlaylist(ctx context.Context, url string) (*PlaylistInfo, error) {
	playlistID, err := platform.ExtractPlaylistID(url)
	if err != nil {
		return nil, fmt.Errorf("invalid playlist URL %s: %w", url, err)
	}

	ctx, cancel := y.opts.withTimeout(ctx)
	defer cancel()

	items, err := y.downloader().GetPlaylistItemsAll(ctx, playlistID, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to get playlist items: %w", err)
	}

	entries := make([]Entry, 0, len(items))
	for _, it := range items {
		entries = append(entries, Entry{ID: it.VideoID, Title: it.Title})
	}

	return &PlaylistInfo{
		ID:      playlistID,
		Title:   playlistTitleFromEntries(entries),
		Entries: entries,
	}, nil
}

// Download fetches the video to the destination. ytdlp keeps the partial file
// next to the destination and resumes it on the next attempt.
func (y *YTDLP) Download(ctx context.Context, req DownloadRequest) error {
	reporter := newProgressReporter(y.emit, req.Token, y.opts.progressInterval)

	err := y.opts.withRetry(ctx, "download of "+req.URL, func() error {
		d := y.downloader().
			WithFormat(ytdlpFormatSelector, ytdlpFormatExt).
			WithOutputPath(req.Destination).
			WithProgress(func(p ytdlp.Progress) {
				reporter.report(p.DownloadedSize, p.TotalSize)
			})

		if _, err := d.Download(ctx, req.URL); err != nil {
			return fmt.Errorf("failed to download %s: %w", req.URL, err)
		}
		return nil
	})
	return y.finish(req.Token, err)
}

func (y *YTDLP) downloader() *ytdlp.Downloader {
	d := ytdlp.New()
	if y.opts.httpClient != nil {
		d = d.WithHTTPClient(y.opts.httpClient)
	}
	return d
}
