package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// File permissions
const (
	DefaultDirPermissions = 0755
)

// Directory and file naming
const (
	VideosDirName  = "videos"
	AppDirName     = "yt-offline"
	VideoExtension = ".mp4"
	// PartialExtension is the suffix the download backends write to before the
	// final rename; it is the temp file suffix of github.com/ytget/ytdlp/downloader
	PartialExtension = ".tmp"
)

// Android storage
const (
	AndroidDownloadsDir = "/sdcard/Download"
)

// Layout derives every on-disk location from a video ID.
// Files are the only record of download state; nothing here is cached.
type Layout struct {
	root string
}

// NewLayout creates a layout rooted at the given data directory
func NewLayout(root string) *Layout {
	return &Layout{root: root}
}

// Root returns the data directory
func (l *Layout) Root() string {
	return l.root
}

// VideosDir returns the directory holding downloaded videos
func (l *Layout) VideosDir() string {
	return filepath.Join(l.root, VideosDirName)
}

// DownloadLocation returns the final path of a downloaded video
func (l *Layout) DownloadLocation(id string) string {
	return filepath.Join(l.VideosDir(), id+VideoExtension)
}

// PartialLocation returns the path a download in progress writes to
func (l *Layout) PartialLocation(id string) string {
	return l.DownloadLocation(id) + PartialExtension
}

// HasBeenDownloaded reports whether the final file exists
func (l *Layout) HasBeenDownloaded(id string) bool {
	return fileExists(l.DownloadLocation(id))
}

// HasPartial reports whether a partial file exists
func (l *Layout) HasPartial(id string) bool {
	return fileExists(l.PartialLocation(id))
}

// EnsureVideosDir creates the videos directory if needed
func (l *Layout) EnsureVideosDir() error {
	return CreateDirectoryIfNotExists(l.VideosDir())
}

// DeleteFiles removes the final and partial files of a video.
// Files that are already gone are not an error.
func (l *Layout) DeleteFiles(id string) error {
	var errs []error
	for _, path := range []string{
		l.DownloadLocation(id),
		l.PartialLocation(id),
		l.partialPlaybackLink(id),
	} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("failed to remove %s: %w", path, err))
		}
	}
	return errors.Join(errs...)
}

// PlaybackPath returns a path a media player can open for the video.
// A finished download is returned as is. For a partial download a link with a
// playable extension is created next to the partial file, since players pick
// the container from the extension.
func (l *Layout) PlaybackPath(id string) (string, error) {
	final := l.DownloadLocation(id)
	if fileExists(final) {
		return final, nil
	}

	partial := l.PartialLocation(id)
	if !fileExists(partial) {
		return "", fmt.Errorf("no file for video %s: %w", id, os.ErrNotExist)
	}

	link := l.partialPlaybackLink(id)
	if _, err := os.Lstat(link); err == nil {
		return link, nil
	}
	if err := os.Symlink(partial, link); err != nil {
		return "", fmt.Errorf("failed to link partial file: %w", err)
	}
	return link, nil
}

func (l *Layout) partialPlaybackLink(id string) string {
	return l.PartialLocation(id) + VideoExtension
}

// CreateDirectoryIfNotExists creates directory if it doesn't exist
func CreateDirectoryIfNotExists(dirPath string) error {
	if _, err := os.Stat(dirPath); os.IsNotExist(err) {
		return os.MkdirAll(dirPath, DefaultDirPermissions)
	}
	return nil
}

// GetHomeDownloadsDir returns the standard Downloads directory for the user
func GetHomeDownloadsDir() (string, error) {
	// Fyne Android apps run as libdist.so
	isAndroid := runtime.GOOS == "android" ||
		os.Getenv("ANDROID_DATA") != "" ||
		os.Getenv("ANDROID_ROOT") != "" ||
		filepath.Base(os.Args[0]) == "libdist.so"

	if isAndroid {
		return AndroidDownloadsDir, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, "Downloads"), nil
}

// DefaultDataDir returns the data directory used when none is configured
func DefaultDataDir() (string, error) {
	downloads, err := GetHomeDownloadsDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(downloads, AppDirName), nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
