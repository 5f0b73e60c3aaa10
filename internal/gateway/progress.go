package gateway

import (
	"sync"
	"time"

	"github.com/ytget/yt-offline/internal/model"
)

// progressReporter turns the byte counts reported by the transfer downloader
// into throttled downloading events carrying the request token.
// Bytes already present in a resumed partial file do not count toward the speed.
type progressReporter struct {
	emit     func(Event)
	token    string
	interval time.Duration
	now      func() time.Time

	mu       sync.Mutex
	started  time.Time
	base     int64
	lastEmit time.Time
}

func newProgressReporter(emit func(Event), token string, interval time.Duration) *progressReporter {
	return &progressReporter{
		emit:     emit,
		token:    token,
		interval: interval,
		now:      time.Now,
	}
}

// report records a progress update; the last byte of a transfer is always emitted
func (r *progressReporter) report(downloaded, total int64) {
	r.mu.Lock()
	now := r.now()
	if r.started.IsZero() {
		r.started = now
		r.base = downloaded
	}

	complete := total > 0 && downloaded >= total
	if !r.lastEmit.IsZero() && now.Sub(r.lastEmit) < r.interval && !complete {
		r.mu.Unlock()
		return
	}
	r.lastEmit = now

	speed := 0.0
	if elapsed := now.Sub(r.started).Seconds(); elapsed > 0 {
		speed = float64(downloaded-r.base) / elapsed
	}
	r.mu.Unlock()

	r.emit(Event{
		model.EventKeyStatus:          model.EventStatusDownloading,
		model.EventKeyDownloadedBytes: downloaded,
		model.EventKeyTotalBytes:      total,
		model.EventKeySpeed:           speed,
		EventKeyToken:                 r.token,
	})
}

func statusEvent(status, token string) Event {
	return Event{
		model.EventKeyStatus: status,
		EventKeyToken:        token,
	}
}
