package model

// ProgressStatus represents the phase of an in-flight operation on a video
type ProgressStatus string

const (
	// ProgressQueued means the download is waiting behind other work
	ProgressQueued ProgressStatus = "Queued"

	// ProgressPreparing means the worker picked the download up and the gateway is resolving it
	ProgressPreparing ProgressStatus = "Preparing"

	// ProgressDownloading means bytes are being transferred
	ProgressDownloading ProgressStatus = "Downloading"

	// ProgressFinished means the gateway reported the transfer as complete
	ProgressFinished ProgressStatus = "Finished"

	// ProgressError means the gateway reported a failure
	ProgressError ProgressStatus = "Error"
)

// String returns the string representation of ProgressStatus
func (ps ProgressStatus) String() string {
	return string(ps)
}

// IsActive returns true if work is still expected for this status
func (ps ProgressStatus) IsActive() bool {
	return ps == ProgressQueued || ps == ProgressPreparing || ps == ProgressDownloading
}

// IsFinished returns true if the gateway reported a terminal status
func (ps ProgressStatus) IsFinished() bool {
	return ps == ProgressFinished || ps == ProgressError
}

// PlaylistState represents whether a playlist is being synced with its remote source
type PlaylistState string

const (
	PlaylistStateLoading PlaylistState = "loading"
	PlaylistStateLoaded  PlaylistState = "loaded"
)

// String returns the string representation of PlaylistState
func (s PlaylistState) String() string {
	return string(s)
}
