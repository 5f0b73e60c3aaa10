package gateway

import (
	"context"
	"fmt"

	"github.com/ytget/ytdlp/downloader"

	"github.com/ytget/yt-offline/internal/model"
)

// transfer fetches a resolved media URL into req.Destination with ranged requests.
// The downloader writes to req.Destination + platform.PartialExtension, appends to
// that file when it already exists and renames it once the last byte is written.
func (o options) transfer(ctx context.Context, emit func(Event), mediaURL string, req DownloadRequest) error {
	reporter := newProgressReporter(emit, req.Token, o.progressInterval)
	dl := downloader.New(o.httpClient, func(p downloader.Progress) {
		reporter.report(p.DownloadedSize, p.TotalSize)
	}, 0)

	if err := dl.Download(ctx, mediaURL, req.Destination); err != nil {
		return fmt.Errorf("failed to transfer %s: %w", req.URL, err)
	}
	return nil
}

// finish emits the terminal event of a download and returns err unchanged
func (e *emitter) finish(token string, err error) error {
	if err != nil {
		e.emit(statusEvent(model.EventStatusError, token))
		return err
	}
	e.emit(statusEvent(model.EventStatusFinished, token))
	return nil
}
