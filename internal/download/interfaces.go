package download

import (
	"context"

	"github.com/ytget/yt-offline/internal/model"
)

// ProgressObserver receives progress of the download it was registered with.
// It is always invoked through the Coordinator's dispatcher.
type ProgressObserver func(model.DownloadProgress)

// ProgressTap receives every progress value attached to a video, on the
// goroutine that produced it. The terminal clear is reported as ok == false.
type ProgressTap func(videoID string, p model.DownloadProgress, ok bool)

// Downloader is the Coordinator surface used by the scheduler and the HTTP API
type Downloader interface {
	RefreshPlaylist(p *model.Playlist, onUpdate func()) *Job
	DownloadVideo(v *model.Video, onProgress ProgressObserver) *Job
	Active() (videoID string, ok bool)
	Pending() int
}

// Closer stops a Coordinator
type Closer interface {
	Close(ctx context.Context) error
}

var _ Downloader = (*Coordinator)(nil)

// MultiTap returns a tap calling each non-nil tap in order
func MultiTap(taps ...ProgressTap) ProgressTap {
	var active []ProgressTap
	for _, tap := range taps {
		if tap != nil {
			active = append(active, tap)
		}
	}
	if len(active) == 0 {
		return nil
	}
	return func(videoID string, p model.DownloadProgress, ok bool) {
		for _, tap := range active {
			tap(videoID, p, ok)
		}
	}
}
