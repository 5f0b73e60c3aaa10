package model

import (
	"fmt"
	"sync"
)

// URL templates
const (
	VideoURLTemplate     = "https://www.youtube.com/watch?v=%s"
	ThumbnailURLTemplate = "https://i.ytimg.com/vi/%s/maxresdefault.jpg"
)

// Time formatting constants
const (
	SecondsPerMinute = 60
	TimeFormat       = "%02d"
)

// Video is a single downloadable item of a playlist.
// Its file state (downloaded, partial) is derived from the ID by platform.Layout.
type Video struct {
	mu sync.RWMutex

	id              string
	title           string
	duration        int // seconds, 0 until metadata is loaded
	details         string
	watchedPosition int // seconds
	progress        *DownloadProgress
}

// VideoRecord is the persisted form of a Video
type VideoRecord struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	Duration        int    `json:"duration"`
	WatchedPosition int    `json:"watched_position"`
	Details         string `json:"details"`
}

// NewVideo creates a video with the given identity
func NewVideo(id, title string) *Video {
	return &Video{id: id, title: title}
}

// VideoFromRecord restores a video from its persisted form
func VideoFromRecord(r VideoRecord) *Video {
	v := NewVideo(r.ID, r.Title)
	v.duration = r.Duration
	v.details = r.Details
	v.watchedPosition = r.WatchedPosition
	return v
}

// VideoURL returns the watch URL for a video ID
func VideoURL(id string) string {
	return fmt.Sprintf(VideoURLTemplate, id)
}

// ID returns the stable remote identifier
func (v *Video) ID() string {
	return v.id
}

// Title returns the video title
func (v *Video) Title() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.title
}

// Duration returns the duration in seconds
func (v *Video) Duration() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.duration
}

// Details returns the free-text description
func (v *Video) Details() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.details
}

// SetMetadata updates the attributes loaded from the remote source
func (v *Video) SetMetadata(title string, duration int, details string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.title = title
	if duration < 0 {
		duration = 0
	}
	v.duration = duration
	v.details = details
}

// WatchedPosition returns the last playback position in seconds
func (v *Video) WatchedPosition() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.watchedPosition
}

// SetWatchedPosition records the playback position reported by the player
func (v *Video) SetWatchedPosition(seconds int) {
	if seconds < 0 {
		seconds = 0
	}
	v.mu.Lock()
	v.watchedPosition = seconds
	v.mu.Unlock()
}

// Progress returns the current operation progress, if any
func (v *Video) Progress() (DownloadProgress, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.progress == nil {
		return DownloadProgress{}, false
	}
	return *v.progress, true
}

// SetProgress attaches progress of the operation currently running on the video
func (v *Video) SetProgress(p DownloadProgress) {
	v.mu.Lock()
	v.progress = &p
	v.mu.Unlock()
}

// ClearProgress marks the video as idle
func (v *Video) ClearProgress() {
	v.mu.Lock()
	v.progress = nil
	v.mu.Unlock()
}

// URL returns the watch URL of the video
func (v *Video) URL() string {
	return VideoURL(v.id)
}

// ThumbnailURL returns the URL of the largest thumbnail
func (v *Video) ThumbnailURL() string {
	return fmt.Sprintf(ThumbnailURLTemplate, v.id)
}

// FormattedTime returns the duration as MM:SS
func (v *Video) FormattedTime() string {
	return formatClock(v.Duration())
}

// FormattedWatchPosition returns the watched position as MM:SS
func (v *Video) FormattedWatchPosition() string {
	return formatClock(v.WatchedPosition())
}

// Record returns the persisted form of the video
func (v *Video) Record() VideoRecord {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return VideoRecord{
		ID:              v.id,
		Title:           v.title,
		Duration:        v.duration,
		WatchedPosition: v.watchedPosition,
		Details:         v.details,
	}
}

// formatClock renders seconds as MM:SS; minutes are not wrapped into hours
func formatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	minutes := seconds / SecondsPerMinute
	secs := seconds % SecondsPerMinute
	return fmt.Sprintf(TimeFormat+":"+TimeFormat, minutes, secs)
}
