package model

import (
	"fmt"
	"strings"
)

// Event keys understood by ProgressFromEvent. They follow the yt-dlp progress
// hook dictionary so backends can pass their records through unchanged.
const (
	EventKeyStatus             = "status"
	EventKeyDownloadedBytes    = "downloaded_bytes"
	EventKeyTotalBytes         = "total_bytes"
	EventKeyTotalBytesEstimate = "total_bytes_estimate"
	EventKeySpeed              = "speed"
)

// Raw status values found in progress events
const (
	EventStatusQueued      = "queued"
	EventStatusPreparing   = "preparing"
	EventStatusDownloading = "downloading"
	EventStatusFinished    = "finished"
	EventStatusError       = "error"
)

// Speed formatting
const (
	bytesPerMB = 1024 * 1024
	bytesPerKB = 1024
)

// DownloadProgress is an immutable snapshot of an operation running on a video
type DownloadProgress struct {
	Status   ProgressStatus
	Fraction float64 // 0.0 to 1.0, meaningful while Downloading
	Speed    float64 // bytes per second, meaningful while Downloading
}

// Queued returns the progress shown right after a download was requested
func Queued() DownloadProgress {
	return DownloadProgress{Status: ProgressQueued}
}

// Preparing returns the progress shown when the worker starts a download
func Preparing() DownloadProgress {
	return DownloadProgress{Status: ProgressPreparing}
}

// Downloading returns a transfer snapshot; fraction is clamped to [0, 1]
func Downloading(fraction, speed float64) DownloadProgress {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	if speed < 0 {
		speed = 0
	}
	return DownloadProgress{Status: ProgressDownloading, Fraction: fraction, Speed: speed}
}

// Finished returns the terminal success snapshot reported by a gateway
func Finished() DownloadProgress {
	return DownloadProgress{Status: ProgressFinished, Fraction: 1}
}

// Failed returns the terminal error snapshot reported by a gateway
func Failed() DownloadProgress {
	return DownloadProgress{Status: ProgressError}
}

// ProgressFromEvent converts a loosely typed gateway event into a DownloadProgress.
// Unknown or missing statuses map to Error.
func ProgressFromEvent(event map[string]any) DownloadProgress {
	status, _ := event[EventKeyStatus].(string)

	switch strings.ToLower(status) {
	case EventStatusQueued:
		return Queued()
	case EventStatusPreparing:
		return Preparing()
	case EventStatusFinished:
		return Finished()
	case EventStatusDownloading:
		downloaded, _ := number(event[EventKeyDownloadedBytes])
		total, ok := number(event[EventKeyTotalBytes])
		if !ok || total <= 0 {
			total, _ = number(event[EventKeyTotalBytesEstimate])
		}
		speed, _ := number(event[EventKeySpeed])

		fraction := 0.0
		if total > 0 {
			fraction = downloaded / total
		}
		return Downloading(fraction, speed)
	default:
		return Failed()
	}
}

// Percent returns the fraction as an integer percentage
func (p DownloadProgress) Percent() int {
	return int(p.Fraction * 100)
}

// IsActive reports whether the operation is still expected to make progress
func (p DownloadProgress) IsActive() bool {
	return p.Status.IsActive()
}

// IsFinished reports whether the gateway reported a terminal state
func (p DownloadProgress) IsFinished() bool {
	return p.Status.IsFinished()
}

// FormattedSpeed returns a human readable speed (e.g., "1.2MB/s"), or "" when unknown
func (p DownloadProgress) FormattedSpeed() string {
	switch {
	case p.Speed <= 0:
		return ""
	case p.Speed >= bytesPerMB:
		return fmt.Sprintf("%.1fMB/s", p.Speed/bytesPerMB)
	default:
		return fmt.Sprintf("%.1fKB/s", p.Speed/bytesPerKB)
	}
}

// String renders the progress for logs
func (p DownloadProgress) String() string {
	if p.Status == ProgressDownloading {
		return fmt.Sprintf("%s %d%%", p.Status, p.Percent())
	}
	return p.Status.String()
}

// UpdateStatusIdle is the status of a ProgressUpdate for a video whose progress was cleared
const UpdateStatusIdle = "Idle"

// ProgressUpdate is the flat form of a video's progress sent to external observers
type ProgressUpdate struct {
	VideoID  string  `json:"video_id"`
	Status   string  `json:"status"`
	Fraction float64 `json:"fraction"`
	Speed    float64 `json:"speed"`
}

// NewProgressUpdate builds the update for a progress value; ok == false reports the clear
func NewProgressUpdate(videoID string, p DownloadProgress, ok bool) ProgressUpdate {
	if !ok {
		return ProgressUpdate{VideoID: videoID, Status: UpdateStatusIdle}
	}
	return ProgressUpdate{
		VideoID:  videoID,
		Status:   p.Status.String(),
		Fraction: p.Fraction,
		Speed:    p.Speed,
	}
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case uint32:
		return float64(n), true
	default:
		return 0, false
	}
}
